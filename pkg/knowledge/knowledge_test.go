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

package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/maestro/pkg/vector"
)

// hashEmbedder maps each distinct text to a fixed deterministic vector
// so identical texts collide and different texts diverge.
type hashEmbedder struct{}

func (hashEmbedder) Embed(text string) ([]float32, error) {
	v := make([]float32, 8)
	for i, r := range text {
		v[i%8] += float32(r) / 1000
	}
	return v, nil
}

func (h hashEmbedder) EmbedWithContext(ctx context.Context, text string) ([]float32, error) {
	return h.Embed(text)
}

func (h hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = h.Embed(t)
	}
	return out, nil
}

func (hashEmbedder) GetDimension() int    { return 8 }
func (hashEmbedder) GetModelName() string { return "hash" }
func (hashEmbedder) Close() error         { return nil }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	provider, err := vector.NewChromemProvider(vector.ChromemConfig{})
	require.NoError(t, err)

	store, err := New(Config{Provider: provider, Embedder: hashEmbedder{}})
	require.NoError(t, err)
	return store
}

func TestAddThenSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, "the capital of France is Paris", Scope{}, nil)
	require.NoError(t, err)
	_, err = store.Add(ctx, "water boils at 100 celsius", Scope{}, nil)
	require.NoError(t, err)

	snippets, err := store.Search(ctx, "the capital of France is Paris", Scope{})
	require.NoError(t, err)
	require.NotEmpty(t, snippets)
	assert.Equal(t, "the capital of France is Paris", snippets[0].Text)
}

func TestSearchScopedByAgent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, "internal pricing sheet", Scope{AgentID: "sales"}, nil)
	require.NoError(t, err)

	snippets, err := store.Search(ctx, "internal pricing sheet", Scope{AgentID: "support"})
	require.NoError(t, err)
	assert.Empty(t, snippets)

	snippets, err = store.Search(ctx, "internal pricing sheet", Scope{AgentID: "sales"})
	require.NoError(t, err)
	assert.NotEmpty(t, snippets)
}

func TestEmptyQueryReturnsNothing(t *testing.T) {
	store := newTestStore(t)
	snippets, err := store.Search(context.Background(), "", Scope{})
	require.NoError(t, err)
	assert.Empty(t, snippets)
}

func TestNewRequiresProviderAndEmbedder(t *testing.T) {
	_, err := New(Config{Embedder: hashEmbedder{}})
	require.Error(t, err)

	_, err = New(Config{Provider: vector.NilProvider{}})
	require.Error(t, err)
}
