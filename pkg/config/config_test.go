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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnvString(t *testing.T) {
	t.Setenv("CONF_KEY", "secret")
	t.Setenv("CONF_EMPTY", "")

	assert.Equal(t, "secret", expandEnvString("${CONF_KEY}"))
	assert.Equal(t, "secret", expandEnvString("$CONF_KEY"))
	assert.Equal(t, "prefix-secret", expandEnvString("prefix-${CONF_KEY}"))
	assert.Equal(t, "fallback", expandEnvString("${CONF_MISSING:-fallback}"))
	assert.Equal(t, "fallback", expandEnvString("${CONF_EMPTY:-fallback}"))
	assert.Equal(t, "", expandEnvString("${CONF_MISSING}"))
	assert.Equal(t, "plain", expandEnvString("plain"))
}

func TestExpandEnvValueRecurses(t *testing.T) {
	t.Setenv("CONF_KEY", "secret")

	in := map[string]any{
		"llms": map[string]any{
			"main": map[string]any{"api_key": "${CONF_KEY}"},
		},
		"list": []any{"$CONF_KEY", 42},
	}
	out := expandEnvMap(in)

	llms := out["llms"].(map[string]any)["main"].(map[string]any)
	assert.Equal(t, "secret", llms["api_key"])
	assert.Equal(t, "secret", out["list"].([]any)[0])
	assert.Equal(t, 42, out["list"].([]any)[1])
}

func TestSetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	assert.Equal(t, "sequential", cfg.Process.Type)
	assert.Equal(t, 10, cfg.Process.MaxIter)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, "info", cfg.Logging.Level)

	cfg = &Config{MaxRetries: 1}
	cfg.SetDefaults()
	assert.Equal(t, 3, cfg.MaxRetries, "retry floor")

	cfg = &Config{MaxRetries: 7}
	cfg.SetDefaults()
	assert.Equal(t, 7, cfg.MaxRetries)
}

func TestValidateCrossReferences(t *testing.T) {
	base := func() *Config {
		cfg := &Config{
			LLMs: map[string]LLMProviderConfig{
				"main": {Type: "openai", Model: "gpt-4o-mini"},
			},
			Agents: []AgentConfig{{Name: "Writer", Role: "Writer", LLM: "main"}},
			Tasks:  []TaskConfig{{Name: "Write", Description: "write", Agent: "Writer"}},
		}
		cfg.SetDefaults()
		return cfg
	}

	require.NoError(t, base().Validate())

	cfg := base()
	cfg.Agents[0].LLM = "missing"
	assert.ErrorContains(t, cfg.Validate(), "unknown llm")

	// provider-prefixed model ids need no llms entry
	cfg = base()
	cfg.Agents[0].LLM = "anthropic/claude-sonnet-4-20250514"
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Tasks[0].Agent = "Ghost"
	assert.ErrorContains(t, cfg.Validate(), "unknown agent")

	cfg = base()
	cfg.Tasks[0].NextTasks = []string{"Nowhere"}
	assert.ErrorContains(t, cfg.Validate(), "unknown next task")

	cfg = base()
	cfg.Tasks = append(cfg.Tasks, TaskConfig{Name: "Write", Description: "again"})
	cfg.SetDefaults()
	assert.ErrorContains(t, cfg.Validate(), "duplicate task name")

	cfg = base()
	cfg.Process.Type = "round_robin"
	assert.ErrorContains(t, cfg.Validate(), "invalid process type")
}
