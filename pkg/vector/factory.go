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

package vector

import (
	"context"
	"fmt"

	"github.com/kadirpekel/maestro/pkg/config"
	"github.com/kadirpekel/maestro/pkg/registry"
)

// NewProviderFromConfig creates a vector provider from configuration.
// A nil config yields a NilProvider so callers can wire search
// unconditionally.
func NewProviderFromConfig(cfg *config.VectorStoreConfig) (Provider, error) {
	if cfg == nil {
		return NilProvider{}, nil
	}

	switch cfg.Type {
	case "chromem", "":
		return NewChromemProvider(ChromemConfig{
			PersistPath: cfg.Path,
		})

	case "qdrant":
		return NewQdrantProvider(QdrantConfig{
			Host:   cfg.Host,
			Port:   cfg.Port,
			APIKey: cfg.APIKey,
			UseTLS: cfg.UseTLS,
		})

	default:
		return nil, fmt.Errorf("unknown vector store type: %q", cfg.Type)
	}
}

// Registry holds named vector providers.
type Registry struct {
	*registry.BaseRegistry[Provider]
}

func NewRegistry() *Registry {
	return &Registry{
		BaseRegistry: registry.NewBaseRegistry[Provider](),
	}
}

// CreateFromConfig builds and registers a provider under the given name.
func (r *Registry) CreateFromConfig(name string, cfg *config.VectorStoreConfig) (Provider, error) {
	if name == "" {
		return nil, fmt.Errorf("vector store name cannot be empty")
	}

	provider, err := NewProviderFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	if err := r.Register(name, provider); err != nil {
		return nil, fmt.Errorf("failed to register vector store: %w", err)
	}

	return provider, nil
}

// GetProvider retrieves a provider by name.
func (r *Registry) GetProvider(name string) (Provider, error) {
	provider, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("vector store '%s' not found", name)
	}
	return provider, nil
}

// Close closes all registered providers.
func (r *Registry) Close() error {
	var errs []error
	for _, p := range r.List() {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing vector providers: %v", errs)
	}
	return nil
}

// NilProvider is a no-op Provider used when no vector store is
// configured. Searches return nothing and writes succeed silently.
type NilProvider struct{}

func (NilProvider) Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error {
	return nil
}

func (NilProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	return nil, nil
}

func (NilProvider) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]Result, error) {
	return nil, nil
}

func (NilProvider) Delete(ctx context.Context, collection string, id string) error { return nil }

func (NilProvider) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error {
	return nil
}

func (NilProvider) CreateCollection(ctx context.Context, collection string, vectorDimension int) error {
	return nil
}

func (NilProvider) DeleteCollection(ctx context.Context, collection string) error { return nil }

func (NilProvider) Name() string { return "nil" }

func (NilProvider) Close() error { return nil }

// Ensure NilProvider implements Provider.
var _ Provider = NilProvider{}
