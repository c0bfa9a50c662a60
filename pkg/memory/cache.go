// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memory

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedStore fronts a primary Store with an LRU over search results.
// Any write or reset purges the cache; memory writes are rare relative
// to context-building reads, so wholesale invalidation is cheaper than
// tracking which queries a write affects.
type CachedStore struct {
	primary Store
	cache   *lru.Cache[string, []Record]
}

// NewCachedStore wraps primary with an LRU of the given size.
func NewCachedStore(primary Store, size int) (*CachedStore, error) {
	if primary == nil {
		return nil, fmt.Errorf("primary store is required")
	}
	if size <= 0 {
		size = 128
	}

	cache, err := lru.New[string, []Record](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	return &CachedStore{
		primary: primary,
		cache:   cache,
	}, nil
}

func cacheKey(tier string, q Query) string {
	return fmt.Sprintf("%s|%s|%d|%g|%g|%v", tier, q.Text, q.Limit, q.RelevanceCutoff, q.MinQuality, q.Filters)
}

// Put writes through and purges cached searches.
func (s *CachedStore) Put(ctx context.Context, tier string, rec Record) error {
	if err := s.primary.Put(ctx, tier, rec); err != nil {
		return err
	}
	s.cache.Purge()
	return nil
}

// Search consults the cache first and populates it on miss.
func (s *CachedStore) Search(ctx context.Context, tier string, q Query) ([]Record, error) {
	key := cacheKey(tier, q)
	if records, ok := s.cache.Get(key); ok {
		return records, nil
	}

	records, err := s.primary.Search(ctx, tier, q)
	if err != nil {
		return nil, err
	}

	s.cache.Add(key, records)
	return records, nil
}

// Delete writes through and purges cached searches.
func (s *CachedStore) Delete(ctx context.Context, tier string, id string) error {
	if err := s.primary.Delete(ctx, tier, id); err != nil {
		return err
	}
	s.cache.Purge()
	return nil
}

// Reset writes through and purges cached searches.
func (s *CachedStore) Reset(ctx context.Context, tier string) error {
	if err := s.primary.Reset(ctx, tier); err != nil {
		return err
	}
	s.cache.Purge()
	return nil
}

// Close closes the primary store.
func (s *CachedStore) Close() error {
	return s.primary.Close()
}

// Ensure CachedStore implements Store.
var _ Store = (*CachedStore)(nil)
