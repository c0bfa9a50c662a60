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

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRememberRecallRoundTrip(t *testing.T) {
	mem := newTestMemory(t)
	ctx := context.Background()

	tools, err := Tools(mem, "alice")
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "remember", tools[0].Name())
	assert.Equal(t, "recall", tools[1].Name())

	out, err := tools[0].Call(ctx, map[string]any{"content": "prefers concise answers"})
	require.NoError(t, err)
	assert.NotEmpty(t, out["id"])

	out, err = tools[1].Call(ctx, map[string]any{"query": "concise"})
	require.NoError(t, err)
	facts, ok := out["facts"].([]string)
	require.True(t, ok)
	require.Len(t, facts, 1)
	assert.Equal(t, "prefers concise answers", facts[0])
}

func TestRecallScopedToUser(t *testing.T) {
	mem := newTestMemory(t)
	ctx := context.Background()

	aliceTools, err := Tools(mem, "alice")
	require.NoError(t, err)
	bobTools, err := Tools(mem, "bob")
	require.NoError(t, err)

	_, err = aliceTools[0].Call(ctx, map[string]any{"content": "lives in Berlin"})
	require.NoError(t, err)

	out, err := bobTools[1].Call(ctx, map[string]any{"query": "Berlin"})
	require.NoError(t, err)
	assert.Empty(t, out["facts"])
}
