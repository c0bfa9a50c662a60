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

// Package embedders turns text into vector embeddings for semantic
// search over memory and knowledge stores.
package embedders

import (
	"context"
	"fmt"

	"github.com/kadirpekel/maestro/pkg/config"
	"github.com/kadirpekel/maestro/pkg/registry"
)

// EmbedderProvider produces vector embeddings from text.
type EmbedderProvider interface {
	// Embed converts text to a vector embedding.
	Embed(text string) ([]float32, error)

	// EmbedWithContext is Embed with cancellation.
	EmbedWithContext(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts in one or more API calls,
	// preserving input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// GetDimension returns the embedding vector dimension.
	GetDimension() int

	// GetModelName returns the model name being used.
	GetModelName() string

	// Close releases any resources held by the embedder.
	Close() error
}

// EmbedderRegistry holds named embedder providers.
type EmbedderRegistry struct {
	*registry.BaseRegistry[EmbedderProvider]
}

func NewEmbedderRegistry() *EmbedderRegistry {
	return &EmbedderRegistry{
		BaseRegistry: registry.NewBaseRegistry[EmbedderProvider](),
	}
}

func (r *EmbedderRegistry) RegisterEmbedder(name string, provider EmbedderProvider) error {
	if name == "" {
		return fmt.Errorf("embedder name cannot be empty")
	}
	if provider == nil {
		return fmt.Errorf("embedder provider cannot be nil")
	}
	return r.Register(name, provider)
}

// CreateEmbedderFromConfig builds and registers a provider from config.
func (r *EmbedderRegistry) CreateEmbedderFromConfig(name string, cfg *config.EmbedderConfig) (EmbedderProvider, error) {
	if name == "" {
		return nil, fmt.Errorf("embedder name cannot be empty")
	}
	if cfg == nil {
		return nil, fmt.Errorf("embedder config cannot be nil")
	}

	provider, err := NewProviderFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	if err := r.RegisterEmbedder(name, provider); err != nil {
		return nil, fmt.Errorf("failed to register embedder: %w", err)
	}

	return provider, nil
}

func (r *EmbedderRegistry) GetEmbedder(name string) (EmbedderProvider, error) {
	provider, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("embedder provider '%s' not found", name)
	}
	return provider, nil
}

// NewProviderFromConfig builds an embedder without registering it.
func NewProviderFromConfig(cfg *config.EmbedderConfig) (EmbedderProvider, error) {
	switch cfg.Type {
	case "openai":
		return NewOpenAIEmbedderFromConfig(cfg)
	case "ollama":
		return NewOllamaEmbedderFromConfig(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedder type: %s", cfg.Type)
	}
}
