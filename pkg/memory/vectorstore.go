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
	"time"

	"github.com/kadirpekel/maestro/pkg/embedders"
	"github.com/kadirpekel/maestro/pkg/vector"
)

// VectorStore is the embedding-backed Store. Each tier maps to a
// vector collection; search scores are cosine similarity and a record
// is kept iff its distance (1 - similarity) does not exceed
// 1 - relevance_cutoff.
type VectorStore struct {
	provider vector.Provider
	embedder embedders.EmbedderProvider
}

// NewVectorStore creates a vector-backed memory store.
func NewVectorStore(provider vector.Provider, embedder embedders.EmbedderProvider) (*VectorStore, error) {
	if provider == nil {
		return nil, fmt.Errorf("vector provider is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	return &VectorStore{
		provider: provider,
		embedder: embedder,
	}, nil
}

// Put embeds the content and upserts it into the tier's collection.
func (s *VectorStore) Put(ctx context.Context, tier string, rec Record) error {
	if err := validTier(tier); err != nil {
		return err
	}

	embedding, err := s.embedder.EmbedWithContext(ctx, rec.Content)
	if err != nil {
		return fmt.Errorf("failed to embed record: %w", err)
	}

	createdAt := rec.CreatedAt
	if createdAt == 0 {
		createdAt = float64(time.Now().UnixNano()) / float64(time.Second)
	}

	metadata := make(map[string]any, len(rec.Metadata)+2)
	for k, v := range rec.Metadata {
		metadata[k] = v
	}
	metadata["content"] = rec.Content
	metadata["created_at"] = createdAt

	return s.provider.Upsert(ctx, tier, rec.ID, embedding, metadata)
}

// Search embeds the query and returns hits within the relevance cutoff.
func (s *VectorStore) Search(ctx context.Context, tier string, q Query) ([]Record, error) {
	if err := validTier(tier); err != nil {
		return nil, err
	}
	if q.Text == "" {
		return nil, nil
	}

	queryEmbedding, err := s.embedder.EmbedWithContext(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	results, err := s.provider.SearchWithFilter(ctx, tier, queryEmbedding, limit, q.Filters)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	records := make([]Record, 0, len(results))
	for _, r := range results {
		distance := 1 - float64(r.Score)
		if q.RelevanceCutoff > 0 && distance > 1-q.RelevanceCutoff {
			continue
		}

		content := r.Content
		if c, ok := r.Metadata["content"].(string); ok && c != "" {
			content = c
		}

		rec := Record{
			ID:       r.ID,
			Content:  content,
			Metadata: r.Metadata,
			Score:    float64(r.Score),
		}

		if q.MinQuality > 0 && rec.Quality() < q.MinQuality {
			continue
		}

		records = append(records, rec)
	}

	return records, nil
}

// Delete removes a record by ID.
func (s *VectorStore) Delete(ctx context.Context, tier string, id string) error {
	if err := validTier(tier); err != nil {
		return err
	}
	return s.provider.Delete(ctx, tier, id)
}

// Reset drops all records in a tier.
func (s *VectorStore) Reset(ctx context.Context, tier string) error {
	if err := validTier(tier); err != nil {
		return err
	}
	return s.provider.DeleteCollection(ctx, tier)
}

// Close releases the embedder; the vector provider is managed by its
// registry.
func (s *VectorStore) Close() error {
	return s.embedder.Close()
}

// Ensure VectorStore implements Store.
var _ Store = (*VectorStore)(nil)
