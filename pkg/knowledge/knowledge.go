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

// Package knowledge provides semantic search over an external knowledge
// store. Ingestion happens out of band; agents and tasks only consume
// the search surface.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/maestro/pkg/embedders"
	"github.com/kadirpekel/maestro/pkg/vector"
)

// Snippet is a single knowledge search hit.
type Snippet struct {
	Text     string
	Score    float64
	Metadata map[string]any
}

// Scope restricts a search to a given agent and, optionally, a user.
// Zero value means unscoped.
type Scope struct {
	AgentID string
	UserID  string
}

// Store is the search surface over a vector-backed knowledge base.
type Store struct {
	provider   vector.Provider
	embedder   embedders.EmbedderProvider
	collection string
	topK       int
}

// Config configures a knowledge store.
type Config struct {
	// Provider for vector storage and search (required).
	Provider vector.Provider

	// Embedder for query embeddings (required).
	Embedder embedders.EmbedderProvider

	// Collection holding the knowledge documents. Default: "knowledge".
	Collection string

	// TopK caps the number of snippets per search. Default: 5.
	TopK int
}

// New creates a knowledge store over a vector provider.
func New(cfg Config) (*Store, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("vector provider is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	collection := cfg.Collection
	if collection == "" {
		collection = "knowledge"
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}

	return &Store{
		provider:   cfg.Provider,
		embedder:   cfg.Embedder,
		collection: collection,
		topK:       topK,
	}, nil
}

// Search returns the most relevant snippets for the query within the
// given scope.
func (s *Store) Search(ctx context.Context, query string, scope Scope) ([]Snippet, error) {
	if query == "" {
		return nil, nil
	}

	queryEmbedding, err := s.embedder.EmbedWithContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var filter map[string]any
	if scope.AgentID != "" || scope.UserID != "" {
		filter = make(map[string]any, 2)
		if scope.AgentID != "" {
			filter["agent_id"] = scope.AgentID
		}
		if scope.UserID != "" {
			filter["user_id"] = scope.UserID
		}
	}

	results, err := s.provider.SearchWithFilter(ctx, s.collection, queryEmbedding, s.topK, filter)
	if err != nil {
		return nil, fmt.Errorf("knowledge search failed: %w", err)
	}

	snippets := make([]Snippet, 0, len(results))
	for _, r := range results {
		text := r.Content
		if c, ok := r.Metadata["content"].(string); ok && c != "" {
			text = c
		}
		if text == "" {
			continue
		}

		snippets = append(snippets, Snippet{
			Text:     text,
			Score:    float64(r.Score),
			Metadata: r.Metadata,
		})
	}

	slog.Debug("Knowledge search completed",
		"query", query,
		"results", len(snippets))

	return snippets, nil
}

// Add embeds and stores a document so it becomes searchable. Useful for
// seeding stores programmatically; bulk ingestion pipelines live
// elsewhere.
func (s *Store) Add(ctx context.Context, text string, scope Scope, metadata map[string]any) (string, error) {
	if text == "" {
		return "", fmt.Errorf("text cannot be empty")
	}

	embedding, err := s.embedder.EmbedWithContext(ctx, text)
	if err != nil {
		return "", fmt.Errorf("failed to embed document: %w", err)
	}

	meta := make(map[string]any, len(metadata)+4)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["content"] = text
	meta["timestamp"] = time.Now().Format(time.RFC3339)
	if scope.AgentID != "" {
		meta["agent_id"] = scope.AgentID
	}
	if scope.UserID != "" {
		meta["user_id"] = scope.UserID
	}

	id := uuid.NewString()
	if err := s.provider.Upsert(ctx, s.collection, id, embedding, meta); err != nil {
		return "", fmt.Errorf("failed to store document: %w", err)
	}

	return id, nil
}

// Clear removes all documents within a scope.
func (s *Store) Clear(ctx context.Context, scope Scope) error {
	filter := map[string]any{}
	if scope.AgentID != "" {
		filter["agent_id"] = scope.AgentID
	}
	if scope.UserID != "" {
		filter["user_id"] = scope.UserID
	}
	if len(filter) == 0 {
		return s.provider.DeleteCollection(ctx, s.collection)
	}
	return s.provider.DeleteByFilter(ctx, s.collection, filter)
}
