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

package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct {
	name   string
	schema map[string]any
	call   func(ctx context.Context, args map[string]any) (map[string]any, error)

	gotArgs map[string]any
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) Schema() map[string]any {
	if s.schema != nil {
		return s.schema
	}
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (s *stubTool) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	s.gotArgs = args
	if s.call != nil {
		return s.call(ctx, args)
	}
	return nil, nil
}

func TestExecuteRendersResultAsJSON(t *testing.T) {
	st := &stubTool{name: "echo", call: func(ctx context.Context, args map[string]any) (map[string]any, error) {
		return map[string]any{"sum": 5.0}, nil
	}}

	out := Execute(context.Background(), st, nil)
	assert.JSONEq(t, `{"sum": 5}`, out)
}

func TestExecuteRendersErrorAsJSON(t *testing.T) {
	st := &stubTool{name: "boom", call: func(ctx context.Context, args map[string]any) (map[string]any, error) {
		return nil, errors.New("division by zero")
	}}

	out := Execute(context.Background(), st, nil)
	assert.JSONEq(t, `{"error": "division by zero"}`, out)
}

func TestExecuteEmptyOutput(t *testing.T) {
	st := &stubTool{name: "silent"}
	out := Execute(context.Background(), st, nil)
	assert.Equal(t, EmptyOutputMessage, out)
}

func TestExecuteDropsUndeclaredArgs(t *testing.T) {
	st := &stubTool{
		name: "add",
		schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
		},
	}

	Execute(context.Background(), st, map[string]any{"a": 2.0, "b": 3.0, "hallucinated": true})
	assert.Equal(t, map[string]any{"a": 2.0, "b": 3.0}, st.gotArgs)
}

func TestFilterArgsPassthroughWithoutSchema(t *testing.T) {
	args := map[string]any{"x": 1}
	assert.Equal(t, args, FilterArgs(nil, args))
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterTool(&stubTool{name: "alpha"}))
	require.NoError(t, r.RegisterTool(&stubTool{name: "beta"}))

	tools, err := r.Resolve([]string{"beta", "alpha"})
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "beta", tools[0].Name())

	_, err = r.Resolve([]string{"gamma"})
	require.Error(t, err)
}
