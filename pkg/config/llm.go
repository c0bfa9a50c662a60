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

package config

import (
	"fmt"
	"strings"
)

// LLMProviderConfig configures a single LLM provider binding.
type LLMProviderConfig struct {
	// Type is one of: openai, anthropic, ollama.
	Type string `yaml:"type,omitempty"`

	// Model is the model name (e.g. "gpt-4o-mini").
	Model string `yaml:"model,omitempty"`

	// APIKey for authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty"`

	// Host overrides the default API endpoint.
	Host string `yaml:"host,omitempty"`

	// Temperature is the default sampling temperature; individual chat
	// calls may override it.
	Temperature *float64 `yaml:"temperature,omitempty"`

	// MaxTokens limits response length.
	MaxTokens int `yaml:"max_tokens,omitempty"`

	// Timeout is the per-request timeout in seconds.
	Timeout int `yaml:"timeout,omitempty"`

	// MaxRetries bounds HTTP-level retries.
	MaxRetries int `yaml:"max_retries,omitempty"`

	// RetryDelay is the base retry delay in seconds.
	RetryDelay int `yaml:"retry_delay,omitempty"`
}

// ParseModelID splits a provider-prefixed model identifier such as
// "openai/gpt-4o-mini" or "anthropic/claude-sonnet-4-20250514" into
// provider type and model name. A bare model name defaults to openai.
func ParseModelID(id string) (providerType, model string) {
	if idx := strings.Index(id, "/"); idx > 0 {
		return strings.ToLower(id[:idx]), id[idx+1:]
	}
	return "openai", id
}

// FromModelID builds a provider config from a provider-prefixed model
// identifier, resolving the API key from the environment.
func FromModelID(id string) LLMProviderConfig {
	providerType, model := ParseModelID(id)
	cfg := LLMProviderConfig{
		Type:  providerType,
		Model: model,
	}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults applies per-provider default values.
func (c *LLMProviderConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "openai"
	}
	if c.Model == "" {
		switch c.Type {
		case "anthropic":
			c.Model = "claude-sonnet-4-20250514"
		case "ollama":
			c.Model = "llama3.2"
		default:
			c.Model = "gpt-4o-mini"
		}
	}
	if c.Host == "" {
		switch c.Type {
		case "anthropic":
			c.Host = "https://api.anthropic.com"
		case "ollama":
			// Ollama exposes an OpenAI-compatible endpoint
			c.Host = "http://localhost:11434/v1"
		default:
			c.Host = "https://api.openai.com/v1"
		}
	}
	if c.APIKey == "" {
		c.APIKey = GetProviderAPIKey(c.Type)
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout == 0 {
		c.Timeout = 60
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 2
	}
}

// Validate checks the provider configuration.
func (c *LLMProviderConfig) Validate() error {
	switch c.Type {
	case "openai", "anthropic", "ollama":
	default:
		return fmt.Errorf("invalid llm type %q (valid: openai, anthropic, ollama)", c.Type)
	}

	// Ollama doesn't require an API key
	if c.Type != "ollama" && c.APIKey == "" {
		return fmt.Errorf("api_key is required for llm type %q", c.Type)
	}

	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2")
	}

	return nil
}

// EmbedderConfig configures a text embedding provider.
type EmbedderConfig struct {
	// Type is one of: openai, ollama.
	Type string `yaml:"type,omitempty"`

	// Model is the embedding model name.
	Model string `yaml:"model,omitempty"`

	// APIKey for authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty"`

	// Host overrides the default API endpoint.
	Host string `yaml:"host,omitempty"`

	// Timeout is the per-request timeout in seconds.
	Timeout int `yaml:"timeout,omitempty"`

	// MaxRetries bounds HTTP-level retries.
	MaxRetries int `yaml:"max_retries,omitempty"`

	// Dimension of the produced vectors. Defaults per model.
	Dimension int `yaml:"dimension,omitempty"`

	// BatchSize caps the number of inputs per embeddings request.
	BatchSize int `yaml:"batch_size,omitempty"`
}

// SetDefaults applies per-provider default values.
func (c *EmbedderConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "openai"
	}
	if c.Model == "" {
		switch c.Type {
		case "ollama":
			c.Model = "nomic-embed-text"
		default:
			c.Model = "text-embedding-3-small"
		}
	}
	if c.Host == "" {
		switch c.Type {
		case "ollama":
			c.Host = "http://localhost:11434/v1"
		default:
			c.Host = "https://api.openai.com/v1"
		}
	}
	if c.APIKey == "" {
		c.APIKey = GetProviderAPIKey(c.Type)
	}
	if c.Timeout == 0 {
		c.Timeout = 30
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.Dimension == 0 {
		switch c.Model {
		case "text-embedding-3-large":
			c.Dimension = 3072
		case "nomic-embed-text":
			c.Dimension = 768
		default:
			c.Dimension = 1536
		}
	}
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
}

// Validate checks the embedder configuration.
func (c *EmbedderConfig) Validate() error {
	switch c.Type {
	case "openai", "ollama":
	default:
		return fmt.Errorf("invalid embedder type %q (valid: openai, ollama)", c.Type)
	}
	if c.Type != "ollama" && c.APIKey == "" {
		return fmt.Errorf("api_key is required for embedder type %q", c.Type)
	}
	return nil
}
