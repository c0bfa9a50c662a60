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

package task

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// OutputFormat records how an Output was post-processed.
type OutputFormat string

const (
	FormatRaw   OutputFormat = "RAW"
	FormatJSON  OutputFormat = "JSON"
	FormatTyped OutputFormat = "Typed"
)

// summaryLen bounds Output.Summary. The summary is a debug aid only.
const summaryLen = 10

// Output is the immutable result of a successful task execution.
// The one exception: workflow loop bookkeeping appends "\nmore" or
// "\ndone" to Raw to drive condition matching.
type Output struct {
	Description string         `json:"description"`
	Summary     string         `json:"summary"`
	Raw         string         `json:"raw"`
	JSON        map[string]any `json:"json,omitempty"`
	Typed       map[string]any `json:"typed,omitempty"`
	Agent       string         `json:"agent"`
	Format      OutputFormat   `json:"output_format"`
}

// NewOutput constructs a raw output for a completed task.
func NewOutput(description, raw, agent string) *Output {
	summary := raw
	if len(summary) > summaryLen {
		summary = summary[:summaryLen]
	}

	return &Output{
		Description: description,
		Summary:     summary,
		Raw:         raw,
		Agent:       agent,
		Format:      FormatRaw,
	}
}

// String renders the output for persistence: raw text for RAW,
// compact JSON for JSON, pretty-printed JSON for Typed.
func (o *Output) String() string {
	switch o.Format {
	case FormatJSON:
		if data, err := json.Marshal(o.JSON); err == nil {
			return string(data)
		}
	case FormatTyped:
		if data, err := json.MarshalIndent(o.Typed, "", "  "); err == nil {
			return string(data)
		}
	}
	return o.Raw
}

// Decision returns the branch label a workflow should follow: the
// typed "decision" field when present, else the raw text.
func (o *Output) Decision() string {
	if o.Typed != nil {
		if d, ok := o.Typed["decision"].(string); ok && d != "" {
			return d
		}
	}
	if o.JSON != nil {
		if d, ok := o.JSON["decision"].(string); ok && d != "" {
			return d
		}
	}
	return o.Raw
}

// CleanJSONFences strips a leading ```json / ``` fence and a trailing
// ``` fence with surrounding whitespace. Idempotent: cleaning a clean
// string returns it unchanged.
func CleanJSONFences(s string) string {
	cleaned := strings.TrimSpace(s)

	if strings.HasPrefix(cleaned, "```json") {
		cleaned = cleaned[len("```json"):]
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = cleaned[len("```"):]
	}

	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	return strings.TrimSpace(cleaned)
}

// ParseJSON cleans fences and parses the raw text into the JSON field.
// On success the format becomes JSON.
func (o *Output) ParseJSON() error {
	cleaned := CleanJSONFences(o.Raw)

	var parsed map[string]any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return fmt.Errorf("failed to parse output as JSON: %w", err)
	}

	o.JSON = parsed
	o.Format = FormatJSON
	return nil
}

// ParseTyped cleans fences, parses, and validates against the schema.
// On success the format becomes Typed.
func (o *Output) ParseTyped(schema map[string]interface{}) error {
	cleaned := CleanJSONFences(o.Raw)

	var parsed map[string]any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return fmt.Errorf("failed to parse output as JSON: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(parsed),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return fmt.Errorf("output does not match schema: %s", strings.Join(problems, "; "))
	}

	o.Typed = parsed
	o.Format = FormatTyped
	return nil
}

// WriteFile persists the rendered output, creating intermediate
// directories when asked.
func (o *Output) WriteFile(path string, createDirectory bool) error {
	if createDirectory {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
	}

	if err := os.WriteFile(path, []byte(o.String()), 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
