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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/maestro/pkg/config"
)

func newTestMemory(t *testing.T) *Memory {
	t.Helper()

	cfg := &config.MemoryConfig{
		Provider: "sql",
		Driver:   "sqlite3",
		DSN:      filepath.Join(t.TempDir(), "memory.db"),
	}
	cfg.SetDefaults()

	mem, err := New(cfg, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { mem.Close() })

	return mem
}

func TestMetricsComposite(t *testing.T) {
	m := Metrics{Completeness: 0.8, Relevance: 0.6, Clarity: 1.0, Accuracy: 0.4}
	assert.Equal(t, 0.7, m.Composite())

	// rounding to three decimals
	m = Metrics{Completeness: 0.333, Relevance: 0.333, Clarity: 0.333, Accuracy: 0.333}
	assert.Equal(t, 0.333, m.Composite())

	assert.Equal(t, 0.0, Metrics{}.Composite())
	assert.Equal(t, 1.0, Metrics{1, 1, 1, 1}.Composite())
}

func TestMetricsClamped(t *testing.T) {
	m := Metrics{Completeness: -0.5, Relevance: 1.5, Clarity: 0.5, Accuracy: 0.5}
	clamped := m.Clamped()
	assert.Equal(t, 0.0, clamped.Completeness)
	assert.Equal(t, 1.0, clamped.Relevance)
	assert.Equal(t, 0.5, clamped.Clarity)
}

func TestStoreAndSearchShortTerm(t *testing.T) {
	mem := newTestMemory(t)
	ctx := context.Background()

	id, err := mem.StoreShortTerm(ctx, "the capital of France is Paris",
		WithMetadata(map[string]any{MetaAgentName: "geographer"}))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	records, err := mem.SearchShortTerm(ctx, "France", 5, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "the capital of France is Paris", records[0].Content)
	assert.Equal(t, "geographer", records[0].Metadata[MetaAgentName])

	records, err = mem.SearchShortTerm(ctx, "Germany", 5, 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFinalizeTaskOutputPromotes(t *testing.T) {
	mem := newTestMemory(t)
	ctx := context.Background()

	err := mem.FinalizeTaskOutput(ctx, "high quality result", "writer", 0.9, 0.7, nil)
	require.NoError(t, err)

	short, err := mem.SearchShortTerm(ctx, "high quality", 5, 0)
	require.NoError(t, err)
	require.Len(t, short, 1)
	assert.InDelta(t, 0.9, short[0].Quality(), 1e-9)

	long, err := mem.SearchLongTerm(ctx, "high quality", 5, 0, 0)
	require.NoError(t, err)
	require.Len(t, long, 1)
	assert.Equal(t, "writer", long[0].Metadata[MetaAgentName])
}

func TestFinalizeTaskOutputBelowThreshold(t *testing.T) {
	mem := newTestMemory(t)
	ctx := context.Background()

	err := mem.FinalizeTaskOutput(ctx, "mediocre result", "writer", 0.5, 0.7, nil)
	require.NoError(t, err)

	short, err := mem.SearchShortTerm(ctx, "mediocre", 5, 0)
	require.NoError(t, err)
	assert.Len(t, short, 1)

	long, err := mem.SearchLongTerm(ctx, "mediocre", 5, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, long)
}

func TestSearchLongTermMinQuality(t *testing.T) {
	mem := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, mem.FinalizeTaskOutput(ctx, "scored output", "writer", 0.9, 0.7, nil))

	records, err := mem.SearchLongTerm(ctx, "scored", 5, 0, 0.8)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	records, err = mem.SearchLongTerm(ctx, "scored", 5, 0, 0.95)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStoreMetricsComposite(t *testing.T) {
	mem := newTestMemory(t)
	ctx := context.Background()

	_, err := mem.StoreLongTerm(ctx, "metric scored entry",
		WithMetrics(Metrics{Completeness: 1, Relevance: 1, Clarity: 0.5, Accuracy: 0.5}))
	require.NoError(t, err)

	records, err := mem.SearchLongTerm(ctx, "metric scored", 5, 0, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.InDelta(t, 0.75, records[0].Quality(), 1e-9)
	assert.Equal(t, 1.0, records[0].Metadata["completeness"])
}

func TestEntityStoreAndSearch(t *testing.T) {
	mem := newTestMemory(t)
	ctx := context.Background()

	_, err := mem.StoreEntity(ctx, "Ada Lovelace", "person", "first programmer", "worked with Babbage")
	require.NoError(t, err)

	// non-entity long-term record must not surface in entity search
	_, err = mem.StoreLongTerm(ctx, "Ada Lovelace wrote notes on the analytical engine")
	require.NoError(t, err)

	records, err := mem.SearchEntity(ctx, "Ada Lovelace", 5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Content, "Ada Lovelace(person)")
	assert.Equal(t, CategoryEntity, records[0].Metadata[MetaCategory])
}

func TestUserMemoryScoping(t *testing.T) {
	mem := newTestMemory(t)
	ctx := context.Background()

	_, err := mem.StoreUserMemory(ctx, "user-1", "prefers terse answers", nil)
	require.NoError(t, err)
	_, err = mem.StoreUserMemory(ctx, "user-2", "prefers verbose answers", nil)
	require.NoError(t, err)

	records, err := mem.SearchUserMemory(ctx, "user-1", "prefers", 5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "prefers terse answers", records[0].Content)
}

func TestBuildContextForTask(t *testing.T) {
	mem := newTestMemory(t)
	ctx := context.Background()

	_, err := mem.StoreShortTerm(ctx, "recent note about solar panels")
	require.NoError(t, err)
	require.NoError(t, mem.FinalizeTaskOutput(ctx, "long lived fact about solar panels", "researcher", 0.9, 0.7, nil))

	out := mem.BuildContextForTask(ctx, "solar panels", "", "", 3)
	assert.Contains(t, out, "ShortTerm context:")
	assert.Contains(t, out, "LongTerm context:")
	assert.NotContains(t, out, "Entities found:")
	assert.NotContains(t, out, "User")
}

func TestBuildContextTruncatesSnippets(t *testing.T) {
	mem := newTestMemory(t)
	ctx := context.Background()

	long := "solar "
	for len(long) < 400 {
		long += "panels and more panels "
	}
	_, err := mem.StoreShortTerm(ctx, long)
	require.NoError(t, err)

	out := mem.BuildContextForTask(ctx, "solar", "", "", 3)
	for _, line := range splitLines(out) {
		assert.LessOrEqual(t, len(line), contextSnippetLen+2)
	}
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	return append(lines, s[start:])
}

func TestResetAll(t *testing.T) {
	mem := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, mem.FinalizeTaskOutput(ctx, "something worth forgetting", "writer", 0.9, 0.7, nil))
	require.NoError(t, mem.ResetAll(ctx))

	short, err := mem.SearchShortTerm(ctx, "forgetting", 5, 0)
	require.NoError(t, err)
	assert.Empty(t, short)

	long, err := mem.SearchLongTerm(ctx, "forgetting", 5, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, long)
}

func TestShortTermEviction(t *testing.T) {
	cfg := &config.MemoryConfig{
		Provider:   "sql",
		Driver:     "sqlite3",
		DSN:        filepath.Join(t.TempDir(), "memory.db"),
		MaxRecords: 2,
	}
	cfg.SetDefaults()

	mem, err := New(cfg, Options{})
	require.NoError(t, err)
	defer mem.Close()

	ctx := context.Background()
	_, err = mem.StoreShortTerm(ctx, "entry one")
	require.NoError(t, err)
	_, err = mem.StoreShortTerm(ctx, "entry two")
	require.NoError(t, err)
	_, err = mem.StoreShortTerm(ctx, "entry three")
	require.NoError(t, err)

	records, err := mem.SearchShortTerm(ctx, "entry", 10, 0)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
