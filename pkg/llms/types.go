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

// Package llms provides the LLM provider abstraction and the OpenAI,
// Anthropic, and Ollama implementations.
package llms

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPartType identifies a multimodal content part.
type ContentPartType string

const (
	ContentPartTypeText     ContentPartType = "text"
	ContentPartTypeImageURL ContentPartType = "image_url"
)

// ContentPart is one element of a multimodal message. ImageURL may be
// an HTTP(S) URL or a base64 data URI.
type ContentPart struct {
	Type     ContentPartType `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL string          `json:"image_url,omitempty"`
}

// Message is a provider-independent conversation message. Parts, when
// non-empty, take precedence over Content.
type Message struct {
	Role       Role          `json:"role"`
	Content    string        `json:"content,omitempty"`
	Parts      []ContentPart `json:"parts,omitempty"`
	ToolCalls  []*ToolCall   `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

// Text returns the textual content of the message, concatenating text
// parts when the message is multimodal.
func (m *Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var out string
	for _, part := range m.Parts {
		if part.Type == ContentPartTypeText {
			out += part.Text
		}
	}
	return out
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID   string                 `json:"id"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// ToolDefinition describes a callable tool in the wire schema providers
// expect: Parameters is a JSON schema object.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// StreamChunk is one unit of a streaming response.
type StreamChunk struct {
	Type     string
	Text     string
	ToolCall *ToolCall
	Tokens   int
	Error    error
}

// StructuredOutputConfig requests schema-constrained JSON output.
type StructuredOutputConfig struct {
	// Format must be "json" for structured output.
	Format string `json:"format,omitempty"`

	// Schema is a JSON schema (map form) the response must satisfy.
	Schema interface{} `json:"schema,omitempty"`

	// Prefill seeds the assistant response (Anthropic).
	Prefill string `json:"prefill,omitempty"`
}

// GenerateOptions carries per-call overrides. A nil options value uses
// provider defaults throughout.
type GenerateOptions struct {
	// Temperature overrides the provider's configured temperature.
	Temperature *float64

	// Structured constrains the response to a JSON schema.
	Structured *StructuredOutputConfig
}

func (o *GenerateOptions) structured() *StructuredOutputConfig {
	if o == nil {
		return nil
	}
	return o.Structured
}
