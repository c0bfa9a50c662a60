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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanJSONFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fences", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"leading whitespace", "  ```json\n{\"a\": 1}\n```  ", `{"a": 1}`},
		{"plain text untouched", "just text", "just text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSONFences(tt.in))
		})
	}
}

func TestCleanJSONFencesIdempotent(t *testing.T) {
	inputs := []string{
		"```json\n{\"a\": 1}\n```",
		"```\ntext\n```",
		`{"a": 1}`,
		"plain",
		"",
	}
	for _, in := range inputs {
		once := CleanJSONFences(in)
		assert.Equal(t, once, CleanJSONFences(once))
	}
}

func TestNewOutputSummary(t *testing.T) {
	out := NewOutput("desc", "a very long raw result", "writer")
	assert.Equal(t, "a very lon", out.Summary)
	assert.Equal(t, FormatRaw, out.Format)

	short := NewOutput("desc", "tiny", "writer")
	assert.Equal(t, "tiny", short.Summary)
}

func TestParseJSONRoundTrip(t *testing.T) {
	out := NewOutput("desc", "```json\n{\"answer\": 42, \"ok\": true}\n```", "writer")
	require.NoError(t, out.ParseJSON())
	assert.Equal(t, FormatJSON, out.Format)
	assert.Equal(t, float64(42), out.JSON["answer"])
	assert.Equal(t, true, out.JSON["ok"])
}

func TestParseJSONFailureKeepsRaw(t *testing.T) {
	out := NewOutput("desc", "not json at all", "writer")
	assert.Error(t, out.ParseJSON())
	assert.Equal(t, FormatRaw, out.Format)
	assert.Equal(t, "not json at all", out.Raw)
}

func TestParseTypedValidates(t *testing.T) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"decision": map[string]interface{}{"type": "string"},
		},
		"required": []interface{}{"decision"},
	}

	out := NewOutput("desc", `{"decision": "yes"}`, "writer")
	require.NoError(t, out.ParseTyped(schema))
	assert.Equal(t, FormatTyped, out.Format)
	assert.Equal(t, "yes", out.Typed["decision"])

	bad := NewOutput("desc", `{"verdict": "yes"}`, "writer")
	assert.Error(t, bad.ParseTyped(schema))
	assert.Equal(t, FormatRaw, bad.Format)
}

func TestDecisionPrefersTyped(t *testing.T) {
	out := NewOutput("desc", "raw text fallback", "writer")
	assert.Equal(t, "raw text fallback", out.Decision())

	out.Typed = map[string]any{"decision": "yes"}
	assert.Equal(t, "yes", out.Decision())
}

func TestOutputString(t *testing.T) {
	out := NewOutput("desc", "raw", "writer")
	assert.Equal(t, "raw", out.String())

	out.JSON = map[string]any{"a": float64(1)}
	out.Format = FormatJSON
	assert.JSONEq(t, `{"a": 1}`, out.String())
}

func TestWriteFileCreatesDirectories(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.txt")

	out := NewOutput("desc", "persisted", "writer")
	require.NoError(t, out.WriteFile(path, true))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(data))
}

func TestTaskValidateSchemaConflict(t *testing.T) {
	tk := &Task{
		Description:  "do something",
		OutputJSON:   true,
		OutputSchema: map[string]interface{}{"type": "object"},
	}
	assert.Error(t, tk.Validate())

	tk.OutputSchema = nil
	assert.NoError(t, tk.Validate())
}
