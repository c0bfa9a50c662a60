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

// Package tool defines the interfaces for tools agents can invoke and
// the execution conventions shared by all tool calls.
package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/maestro/pkg/observability"
	"github.com/kadirpekel/maestro/pkg/registry"
)

// Tool is the base interface for a callable tool.
type Tool interface {
	// Name returns the unique name of the tool.
	Name() string

	// Description explains what the tool does. Shown to LLMs so they
	// can decide when to use it.
	Description() string
}

// CallableTool extends Tool with synchronous execution.
type CallableTool interface {
	Tool

	// Call executes the tool with the given arguments.
	Call(ctx context.Context, args map[string]any) (map[string]any, error)

	// Schema returns the JSON schema for the tool's parameters.
	// Returns nil if the tool takes no parameters.
	Schema() map[string]any
}

// Definition is a tool definition in the shape LLM function calling
// expects.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToDefinition converts a tool to a Definition.
func ToDefinition(t CallableTool) Definition {
	return Definition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Schema(),
	}
}

// EmptyOutputMessage is returned as tool-result content when a tool
// produces no output.
const EmptyOutputMessage = "Function returned an empty output"

// Execute runs a tool call and renders the result as tool-result
// content. Arguments not declared in the tool's schema are dropped
// before the call. Execution errors are rendered as an {"error": ...}
// object rather than propagated: a failed tool call feeds back into the
// model, it never aborts the conversation.
func Execute(ctx context.Context, t CallableTool, args map[string]any) string {
	ctx, span := observability.GetTracer("maestro.tool").Start(ctx, observability.SpanToolExecution,
		trace.WithAttributes(attribute.String(observability.AttrToolName, t.Name())))
	defer span.End()

	result, err := t.Call(ctx, FilterArgs(t.Schema(), args))
	if err != nil {
		span.SetAttributes(attribute.String(observability.AttrErrorType, "tool"))
		errJSON, _ := json.Marshal(map[string]string{"error": err.Error()})
		return string(errJSON)
	}

	if len(result) == 0 {
		return EmptyOutputMessage
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		errJSON, _ := json.Marshal(map[string]string{"error": fmt.Sprintf("failed to encode tool result: %v", err)})
		return string(errJSON)
	}

	return string(resultJSON)
}

// FilterArgs drops arguments the schema does not declare. Models
// occasionally hallucinate extra parameters; passing them through would
// fail strict decoders.
func FilterArgs(schema map[string]any, args map[string]any) map[string]any {
	if schema == nil || args == nil {
		return args
	}

	properties, ok := schema["properties"].(map[string]any)
	if !ok {
		return args
	}

	filtered := make(map[string]any, len(args))
	for name, value := range args {
		if _, declared := properties[name]; declared {
			filtered[name] = value
		}
	}
	return filtered
}

// Registry holds named tools.
type Registry struct {
	*registry.BaseRegistry[CallableTool]
}

func NewRegistry() *Registry {
	return &Registry{
		BaseRegistry: registry.NewBaseRegistry[CallableTool](),
	}
}

// RegisterTool registers a tool under its own name.
func (r *Registry) RegisterTool(t CallableTool) error {
	if t == nil {
		return fmt.Errorf("tool cannot be nil")
	}
	return r.Register(t.Name(), t)
}

// Resolve returns the named tools, failing on the first unknown name.
func (r *Registry) Resolve(names []string) ([]CallableTool, error) {
	tools := make([]CallableTool, 0, len(names))
	for _, name := range names {
		t, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("tool '%s' not found", name)
		}
		tools = append(tools, t)
	}
	return tools, nil
}
