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

import "fmt"

// AgentConfig configures a single agent.
type AgentConfig struct {
	// Name is the unique agent handle used by task assignment.
	Name string `yaml:"name"`

	// Identity fields composed into the system prompt.
	Role         string `yaml:"role,omitempty"`
	Goal         string `yaml:"goal,omitempty"`
	Backstory    string `yaml:"backstory,omitempty"`
	Instructions string `yaml:"instructions,omitempty"`

	// LLM names an entry in Config.LLMs, or is a provider-prefixed
	// model identifier (e.g. "openai/gpt-4o-mini").
	LLM string `yaml:"llm,omitempty"`

	// ReflectLLM optionally names a separate model for self-reflection.
	ReflectLLM string `yaml:"reflect_llm,omitempty"`

	// SelfReflect enables the reflection loop after each response.
	SelfReflect bool `yaml:"self_reflect,omitempty"`

	// MinReflect and MaxReflect bound reflection rounds.
	MinReflect int `yaml:"min_reflect,omitempty"`
	MaxReflect int `yaml:"max_reflect,omitempty"`

	// Tools names the tools available to this agent.
	Tools []string `yaml:"tools,omitempty"`

	// UseSystemPrompt controls whether identity goes into a system
	// message or is prepended to the user prompt.
	UseSystemPrompt *bool `yaml:"use_system_prompt,omitempty"`

	// Markdown appends a markdown formatting instruction.
	Markdown bool `yaml:"markdown,omitempty"`

	// Verbose enables per-step progress logging.
	Verbose bool `yaml:"verbose,omitempty"`

	// Memory enables memory reads/writes for this agent's tasks.
	Memory bool `yaml:"memory,omitempty"`

	// KnowledgeStore names a vector store searched before each chat.
	KnowledgeStore string `yaml:"knowledge_store,omitempty"`

	// MaxHistoryTokens bounds the history window sent to the model.
	// Zero keeps the full history.
	MaxHistoryTokens int `yaml:"max_history_tokens,omitempty"`
}

// SetDefaults applies default values.
func (c *AgentConfig) SetDefaults() {
	if c.Role == "" {
		c.Role = "Assistant"
	}
	if c.MinReflect <= 0 {
		c.MinReflect = 1
	}
	if c.MaxReflect <= 0 {
		c.MaxReflect = 3
	}
	if c.UseSystemPrompt == nil {
		t := true
		c.UseSystemPrompt = &t
	}
}

// Validate checks the agent configuration.
func (c *AgentConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("agent name is required")
	}
	if c.MinReflect > c.MaxReflect {
		return fmt.Errorf("min_reflect (%d) cannot exceed max_reflect (%d)", c.MinReflect, c.MaxReflect)
	}
	return nil
}
