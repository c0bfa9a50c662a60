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

package llms

import (
	"context"
	"fmt"

	"github.com/kadirpekel/maestro/pkg/config"
	"github.com/kadirpekel/maestro/pkg/registry"
)

// LLMProvider is the uniform interface over chat-completion backends.
//
// Generate returns the response text, any tool calls the model
// requested, and total tokens consumed.
type LLMProvider interface {
	Generate(ctx context.Context, messages []Message, tools []ToolDefinition, opts *GenerateOptions) (text string, toolCalls []*ToolCall, tokens int, err error)

	GenerateStreaming(ctx context.Context, messages []Message, tools []ToolDefinition, opts *GenerateOptions) (<-chan StreamChunk, error)

	GetModelName() string

	GetMaxTokens() int

	GetTemperature() float64

	Close() error
}

// LLMRegistry holds named LLM providers.
type LLMRegistry struct {
	*registry.BaseRegistry[LLMProvider]
}

func NewLLMRegistry() *LLMRegistry {
	return &LLMRegistry{
		BaseRegistry: registry.NewBaseRegistry[LLMProvider](),
	}
}

func (r *LLMRegistry) RegisterLLM(name string, provider LLMProvider) error {
	if name == "" {
		return fmt.Errorf("LLM name cannot be empty")
	}
	if provider == nil {
		return fmt.Errorf("LLM provider cannot be nil")
	}
	return r.Register(name, provider)
}

// CreateLLMFromConfig builds a provider from config and registers it.
func (r *LLMRegistry) CreateLLMFromConfig(name string, cfg *config.LLMProviderConfig) (LLMProvider, error) {
	if name == "" {
		return nil, fmt.Errorf("LLM name cannot be empty")
	}
	if cfg == nil {
		return nil, fmt.Errorf("LLM config cannot be nil")
	}

	provider, err := NewProviderFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	if err := r.RegisterLLM(name, provider); err != nil {
		return nil, fmt.Errorf("failed to register LLM: %w", err)
	}

	return provider, nil
}

func (r *LLMRegistry) GetLLM(name string) (LLMProvider, error) {
	provider, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("LLM provider '%s' not found", name)
	}
	return provider, nil
}

// NewProviderFromConfig builds a provider from its configuration.
// Ollama runs through the OpenAI-compatible endpoint.
func NewProviderFromConfig(cfg *config.LLMProviderConfig) (LLMProvider, error) {
	var provider LLMProvider
	var err error

	switch cfg.Type {
	case "openai", "ollama":
		provider, err = NewOpenAIProviderFromConfig(cfg)
	case "anthropic":
		provider, err = NewAnthropicProviderFromConfig(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM type: %s (supported: openai, anthropic, ollama)", cfg.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	return provider, nil
}

// NewProviderFromModelID builds a provider from a provider-prefixed
// model identifier such as "anthropic/claude-sonnet-4-20250514".
func NewProviderFromModelID(id string) (LLMProvider, error) {
	cfg := config.FromModelID(id)
	return NewProviderFromConfig(&cfg)
}
