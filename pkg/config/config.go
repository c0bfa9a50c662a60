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

// Package config defines the declarative crew configuration: agents,
// tasks, LLM providers, memory, and process settings, loaded from YAML
// with environment variable expansion.
package config

import (
	"fmt"
	"strings"
)

// Config is the root crew configuration.
type Config struct {
	// Name identifies the crew (used in logs and trace service name).
	Name string `yaml:"name,omitempty"`

	// LLMs maps provider names to their configurations.
	LLMs map[string]LLMProviderConfig `yaml:"llms,omitempty"`

	// Embedders maps embedder names to their configurations.
	Embedders map[string]EmbedderConfig `yaml:"embedders,omitempty"`

	// VectorStores maps vector store names to their configurations.
	VectorStores map[string]VectorStoreConfig `yaml:"vector_stores,omitempty"`

	// Memory configures the memory subsystem. Nil disables memory.
	Memory *MemoryConfig `yaml:"memory,omitempty"`

	// Agents in registration order.
	Agents []AgentConfig `yaml:"agents,omitempty"`

	// Tasks in registration order.
	Tasks []TaskConfig `yaml:"tasks,omitempty"`

	// Process selects and tunes the execution strategy.
	Process ProcessConfig `yaml:"process,omitempty"`

	// MaxRetries bounds per-task retry attempts (minimum 3).
	MaxRetries int `yaml:"max_retries,omitempty"`

	// UserID scopes user memory operations.
	UserID string `yaml:"user_id,omitempty"`

	Logging LoggingConfig `yaml:"logging,omitempty"`
	Tracing TracingConfig `yaml:"tracing,omitempty"`
}

// ProcessConfig selects the execution strategy for a crew run.
type ProcessConfig struct {
	// Type is one of: sequential, workflow, hierarchical.
	Type string `yaml:"type,omitempty"`

	// MaxIter bounds workflow task emissions and hierarchical
	// manager rounds.
	MaxIter int `yaml:"max_iter,omitempty"`

	// ManagerLLM names the LLM used for the hierarchical manager.
	ManagerLLM string `yaml:"manager_llm,omitempty"`
}

// LoggingConfig tunes the process-wide logger.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// TracingConfig enables OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled,omitempty"`
	EndpointURL  string  `yaml:"endpoint_url,omitempty"`
	SamplingRate float64 `yaml:"sampling_rate,omitempty"`
	ServiceName  string  `yaml:"service_name,omitempty"`
}

// SetDefaults applies default values across the whole tree.
func (c *Config) SetDefaults() {
	if c.Process.Type == "" {
		c.Process.Type = "sequential"
	}
	if c.Process.MaxIter <= 0 {
		c.Process.MaxIter = 10
	}
	if c.MaxRetries < 3 {
		c.MaxRetries = 3
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "simple"
	}

	for name, llm := range c.LLMs {
		llm.SetDefaults()
		c.LLMs[name] = llm
	}
	for name, emb := range c.Embedders {
		emb.SetDefaults()
		c.Embedders[name] = emb
	}
	for name, vs := range c.VectorStores {
		vs.SetDefaults()
		c.VectorStores[name] = vs
	}
	if c.Memory != nil {
		c.Memory.SetDefaults()
	}
	for i := range c.Agents {
		c.Agents[i].SetDefaults()
	}
	for i := range c.Tasks {
		c.Tasks[i].SetDefaults()
	}
}

// Validate checks cross references and per-component constraints.
func (c *Config) Validate() error {
	switch c.Process.Type {
	case "sequential", "workflow", "hierarchical":
	default:
		return fmt.Errorf("invalid process type %q (valid: sequential, workflow, hierarchical)", c.Process.Type)
	}

	for name, llm := range c.LLMs {
		if err := llm.Validate(); err != nil {
			return fmt.Errorf("llm %q: %w", name, err)
		}
	}
	for name, emb := range c.Embedders {
		if err := emb.Validate(); err != nil {
			return fmt.Errorf("embedder %q: %w", name, err)
		}
	}
	for name, vs := range c.VectorStores {
		if err := vs.Validate(); err != nil {
			return fmt.Errorf("vector store %q: %w", name, err)
		}
	}
	if c.Memory != nil {
		if err := c.Memory.Validate(); err != nil {
			return fmt.Errorf("memory: %w", err)
		}
	}

	agentNames := make(map[string]bool, len(c.Agents))
	for i := range c.Agents {
		a := &c.Agents[i]
		if err := a.Validate(); err != nil {
			return fmt.Errorf("agent %q: %w", a.Name, err)
		}
		if agentNames[a.Name] {
			return fmt.Errorf("duplicate agent name %q", a.Name)
		}
		agentNames[a.Name] = true
		if err := c.validateLLMRef(a.LLM); err != nil {
			return fmt.Errorf("agent %q: %w", a.Name, err)
		}
	}

	taskNames := make(map[string]bool, len(c.Tasks))
	for i := range c.Tasks {
		t := &c.Tasks[i]
		if err := t.Validate(); err != nil {
			return fmt.Errorf("task %q: %w", t.Name, err)
		}
		if taskNames[t.Name] {
			return fmt.Errorf("duplicate task name %q", t.Name)
		}
		taskNames[t.Name] = true
		if t.Agent != "" && !agentNames[t.Agent] {
			return fmt.Errorf("task %q references unknown agent %q", t.Name, t.Agent)
		}
	}
	for i := range c.Tasks {
		t := &c.Tasks[i]
		for _, next := range t.NextTasks {
			if !taskNames[next] {
				return fmt.Errorf("task %q references unknown next task %q", t.Name, next)
			}
		}
	}

	if c.Process.Type == "hierarchical" {
		if err := c.validateLLMRef(c.Process.ManagerLLM); err != nil {
			return fmt.Errorf("process manager: %w", err)
		}
	}

	return nil
}

// validateLLMRef accepts an empty reference (defaults apply), a
// configured llm name, or a provider-prefixed model id such as
// "openai/gpt-4o-mini".
func (c *Config) validateLLMRef(name string) error {
	if name == "" || strings.Contains(name, "/") {
		return nil
	}
	if _, ok := c.LLMs[name]; !ok {
		return fmt.Errorf("references unknown llm %q", name)
	}
	return nil
}
