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

package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/maestro/pkg/config"
	"github.com/kadirpekel/maestro/pkg/llms"
	"github.com/kadirpekel/maestro/pkg/tool"
	"github.com/kadirpekel/maestro/pkg/tool/functiontool"
)

// mockLLM scripts Generate responses by call index.
type mockLLM struct {
	mu       sync.Mutex
	generate func(call int, messages []llms.Message, tools []llms.ToolDefinition, opts *llms.GenerateOptions) (string, []*llms.ToolCall, error)
	calls    int
}

func (m *mockLLM) Generate(ctx context.Context, messages []llms.Message, tools []llms.ToolDefinition, opts *llms.GenerateOptions) (string, []*llms.ToolCall, int, error) {
	m.mu.Lock()
	call := m.calls
	m.calls++
	m.mu.Unlock()

	text, toolCalls, err := m.generate(call, messages, tools, opts)
	return text, toolCalls, 0, err
}

func (m *mockLLM) GenerateStreaming(ctx context.Context, messages []llms.Message, tools []llms.ToolDefinition, opts *llms.GenerateOptions) (<-chan llms.StreamChunk, error) {
	text, _, _, err := m.Generate(ctx, messages, tools, opts)
	if err != nil {
		return nil, err
	}
	ch := make(chan llms.StreamChunk, 2)
	ch <- llms.StreamChunk{Type: "text", Text: text}
	close(ch)
	return ch, nil
}

func (m *mockLLM) GetModelName() string    { return "mock" }
func (m *mockLLM) GetMaxTokens() int       { return 4096 }
func (m *mockLLM) GetTemperature() float64 { return 0.2 }
func (m *mockLLM) Close() error            { return nil }

func (m *mockLLM) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func textOnly(text string) func(int, []llms.Message, []llms.ToolDefinition, *llms.GenerateOptions) (string, []*llms.ToolCall, error) {
	return func(int, []llms.Message, []llms.ToolDefinition, *llms.GenerateOptions) (string, []*llms.ToolCall, error) {
		return text, nil, nil
	}
}

func newTestAgent(t *testing.T, cfg config.AgentConfig, opts Options) *Agent {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "tester"
	}
	cfg.SetDefaults()
	a, err := New(cfg, opts)
	require.NoError(t, err)
	return a
}

func TestChatAppendsExactlyTwoHistoryRecords(t *testing.T) {
	llm := &mockLLM{generate: textOnly("hello back")}
	a := newTestAgent(t, config.AgentConfig{Role: "Greeter"}, Options{LLM: llm})

	out, err := a.Chat(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello back", out)

	history := a.History()
	require.Len(t, history, 2)
	assert.Equal(t, llms.RoleUser, history[0].Role)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, llms.RoleAssistant, history[1].Role)
	assert.Equal(t, "hello back", history[1].Content)
}

type addArgs struct {
	A float64 `json:"a" jsonschema:"required,description=First operand"`
	B float64 `json:"b" jsonschema:"required,description=Second operand"`
}

func TestToolRoundTrip(t *testing.T) {
	var mu sync.Mutex
	var invocations []addArgs
	addTool, err := functiontool.New(
		functiontool.Config{Name: "add", Description: "Add two numbers"},
		func(ctx context.Context, args addArgs) (map[string]any, error) {
			mu.Lock()
			invocations = append(invocations, args)
			mu.Unlock()
			return map[string]any{"sum": args.A + args.B}, nil
		},
	)
	require.NoError(t, err)

	llm := &mockLLM{
		generate: func(call int, messages []llms.Message, tools []llms.ToolDefinition, opts *llms.GenerateOptions) (string, []*llms.ToolCall, error) {
			if call == 0 {
				require.Len(t, tools, 1)
				require.Equal(t, "add", tools[0].Name)
				return "", []*llms.ToolCall{
					{ID: "call_1", Name: "add", Args: map[string]any{"a": float64(2), "b": float64(3)}},
				}, nil
			}
			// the tool result must be visible on the second pass
			last := messages[len(messages)-1]
			require.Equal(t, llms.RoleTool, last.Role)
			require.Equal(t, "call_1", last.ToolCallID)
			require.Contains(t, last.Content, "5")
			return "The answer is 5", nil, nil
		},
	}

	a := newTestAgent(t, config.AgentConfig{Role: "Calculator"}, Options{
		LLM:   llm,
		Tools: []tool.CallableTool{addTool},
	})

	out, err := a.Chat(context.Background(), "What is 2 + 3?")
	require.NoError(t, err)
	assert.Contains(t, out, "5")

	require.Len(t, invocations, 1)
	assert.Equal(t, float64(2), invocations[0].A)
	assert.Equal(t, float64(3), invocations[0].B)

	// tool traffic stays transient
	history := a.History()
	require.Len(t, history, 2)
	assert.Equal(t, "What is 2 + 3?", history[0].Content)
	assert.Equal(t, "The answer is 5", history[1].Content)
}

func TestUnknownToolSurfacedToModel(t *testing.T) {
	noop, err := functiontool.New(
		functiontool.Config{Name: "noop", Description: "Does nothing"},
		func(ctx context.Context, args struct{}) (map[string]any, error) {
			return map[string]any{"ok": true}, nil
		},
	)
	require.NoError(t, err)

	llm := &mockLLM{
		generate: func(call int, messages []llms.Message, tools []llms.ToolDefinition, opts *llms.GenerateOptions) (string, []*llms.ToolCall, error) {
			if call == 0 {
				return "", []*llms.ToolCall{{ID: "c1", Name: "missing", Args: nil}}, nil
			}
			last := messages[len(messages)-1]
			require.Equal(t, llms.RoleTool, last.Role)
			require.Contains(t, last.Content, "not found")
			return "recovered", nil, nil
		},
	}

	a := newTestAgent(t, config.AgentConfig{Role: "Helper"}, Options{
		LLM:   llm,
		Tools: []tool.CallableTool{noop},
	})

	out, err := a.Chat(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
}

func TestReflectionRunsToMaxRounds(t *testing.T) {
	// Main model: initial draft plus one regeneration per round.
	main := &mockLLM{
		generate: func(call int, messages []llms.Message, tools []llms.ToolDefinition, opts *llms.GenerateOptions) (string, []*llms.ToolCall, error) {
			return fmt.Sprintf("draft %d", call), nil, nil
		},
	}
	// Reflector is never satisfied.
	reflector := &mockLLM{
		generate: func(call int, messages []llms.Message, tools []llms.ToolDefinition, opts *llms.GenerateOptions) (string, []*llms.ToolCall, error) {
			require.NotNil(t, opts)
			require.NotNil(t, opts.Structured)
			require.Equal(t, "json", opts.Structured.Format)
			return `{"reflection": "needs more detail", "satisfactory": "no"}`, nil, nil
		},
	}

	a := newTestAgent(t, config.AgentConfig{
		Role:        "Writer",
		SelfReflect: true,
		MinReflect:  1,
		MaxReflect:  3,
	}, Options{LLM: main, ReflectLLM: reflector})

	out, err := a.Chat(context.Background(), "write something")
	require.NoError(t, err)

	// 3 reflection rounds; the final answer is the third regeneration.
	assert.Equal(t, 3, reflector.callCount())
	assert.Equal(t, 4, main.callCount())
	assert.Equal(t, "draft 3", out)

	history := a.History()
	require.Len(t, history, 2)
	assert.Equal(t, "draft 3", history[1].Content)
}

func TestReflectionStopsWhenSatisfied(t *testing.T) {
	main := &mockLLM{generate: textOnly("first draft")}
	reflector := &mockLLM{
		generate: func(call int, messages []llms.Message, tools []llms.ToolDefinition, opts *llms.GenerateOptions) (string, []*llms.ToolCall, error) {
			return `{"reflection": "looks good", "satisfactory": "yes"}`, nil, nil
		},
	}

	a := newTestAgent(t, config.AgentConfig{
		Role:        "Writer",
		SelfReflect: true,
		MinReflect:  1,
		MaxReflect:  3,
	}, Options{LLM: main, ReflectLLM: reflector})

	out, err := a.Chat(context.Background(), "write something")
	require.NoError(t, err)
	assert.Equal(t, "first draft", out)
	assert.Equal(t, 1, reflector.callCount())
	assert.Equal(t, 1, main.callCount())
}

func TestReflectionHonorsMinRounds(t *testing.T) {
	main := &mockLLM{
		generate: func(call int, messages []llms.Message, tools []llms.ToolDefinition, opts *llms.GenerateOptions) (string, []*llms.ToolCall, error) {
			return fmt.Sprintf("draft %d", call), nil, nil
		},
	}
	reflector := &mockLLM{
		generate: func(call int, messages []llms.Message, tools []llms.ToolDefinition, opts *llms.GenerateOptions) (string, []*llms.ToolCall, error) {
			return `{"reflection": "fine", "satisfactory": "yes"}`, nil, nil
		},
	}

	a := newTestAgent(t, config.AgentConfig{
		Role:        "Writer",
		SelfReflect: true,
		MinReflect:  2,
		MaxReflect:  3,
	}, Options{LLM: main, ReflectLLM: reflector})

	out, err := a.Chat(context.Background(), "write something")
	require.NoError(t, err)

	// Round 1 says yes but min is 2, so one regeneration still runs.
	assert.Equal(t, 2, reflector.callCount())
	assert.Equal(t, "draft 1", out)
}

func TestReflectionSkippedForStructuredOutput(t *testing.T) {
	main := &mockLLM{generate: textOnly(`{"answer": 42}`)}
	reflector := &mockLLM{
		generate: func(call int, messages []llms.Message, tools []llms.ToolDefinition, opts *llms.GenerateOptions) (string, []*llms.ToolCall, error) {
			t.Fatal("reflector must not run for structured output")
			return "", nil, nil
		},
	}

	a := newTestAgent(t, config.AgentConfig{
		Role:        "Writer",
		SelfReflect: true,
	}, Options{LLM: main, ReflectLLM: reflector})

	schema := map[string]interface{}{"type": "object"}
	out, err := a.Chat(context.Background(), "answer", WithOutputJSON(schema))
	require.NoError(t, err)
	assert.Equal(t, `{"answer": 42}`, out)
	assert.Equal(t, 0, reflector.callCount())
}

func TestConflictingOutputOptions(t *testing.T) {
	llm := &mockLLM{generate: textOnly("unused")}
	a := newTestAgent(t, config.AgentConfig{Role: "Writer"}, Options{LLM: llm})

	schema := map[string]interface{}{"type": "object"}
	_, err := a.Chat(context.Background(), "x", WithOutputJSON(schema), WithOutputTyped(schema))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
	assert.Equal(t, 0, llm.callCount())
}

func TestJSONInstructionAppendedToPrompt(t *testing.T) {
	var captured []llms.Message
	llm := &mockLLM{
		generate: func(call int, messages []llms.Message, tools []llms.ToolDefinition, opts *llms.GenerateOptions) (string, []*llms.ToolCall, error) {
			captured = messages
			return `{}`, nil, nil
		},
	}

	a := newTestAgent(t, config.AgentConfig{Role: "Extractor"}, Options{LLM: llm})

	_, err := a.Chat(context.Background(), "extract the fields", WithOutputJSON(map[string]interface{}{"type": "object"}))
	require.NoError(t, err)

	require.NotEmpty(t, captured)
	last := captured[len(captured)-1]
	assert.Equal(t, llms.RoleUser, last.Role)
	assert.True(t, strings.HasSuffix(last.Content, "Return ONLY a valid JSON object. No other text or explanation."))

	// the history keeps the original prompt, not the augmented one
	history := a.History()
	require.Len(t, history, 2)
	assert.Equal(t, "extract the fields", history[0].Content)
}

func TestSystemPromptComposition(t *testing.T) {
	var captured []llms.Message
	llm := &mockLLM{
		generate: func(call int, messages []llms.Message, tools []llms.ToolDefinition, opts *llms.GenerateOptions) (string, []*llms.ToolCall, error) {
			captured = messages
			return "ok", nil, nil
		},
	}

	a := newTestAgent(t, config.AgentConfig{
		Role:         "Research analyst",
		Goal:         "find the facts",
		Backstory:    "You worked in a newsroom for a decade.",
		Instructions: "Cite your sources.",
		Markdown:     true,
	}, Options{LLM: llm})

	_, err := a.Chat(context.Background(), "hi")
	require.NoError(t, err)

	require.NotEmpty(t, captured)
	system := captured[0]
	require.Equal(t, llms.RoleSystem, system.Role)
	assert.Contains(t, system.Content, "You worked in a newsroom for a decade.")
	assert.Contains(t, system.Content, "You are Research analyst.")
	assert.Contains(t, system.Content, "Your goal is: find the facts")
	assert.Contains(t, system.Content, "Cite your sources.")
	assert.Contains(t, system.Content, "markdown")
}

func TestSystemPromptDisabled(t *testing.T) {
	var captured []llms.Message
	llm := &mockLLM{
		generate: func(call int, messages []llms.Message, tools []llms.ToolDefinition, opts *llms.GenerateOptions) (string, []*llms.ToolCall, error) {
			captured = messages
			return "ok", nil, nil
		},
	}

	disabled := false
	a := newTestAgent(t, config.AgentConfig{
		Role:            "Plain",
		UseSystemPrompt: &disabled,
	}, Options{LLM: llm})

	_, err := a.Chat(context.Background(), "hi")
	require.NoError(t, err)

	require.Len(t, captured, 1)
	assert.Equal(t, llms.RoleUser, captured[0].Role)
}

func TestStreamingDeliversChunks(t *testing.T) {
	llm := &mockLLM{generate: textOnly("streamed response")}
	a := newTestAgent(t, config.AgentConfig{Role: "Streamer"}, Options{LLM: llm})

	var b strings.Builder
	out, err := a.Chat(context.Background(), "go", WithStream(func(chunk string) {
		b.WriteString(chunk)
	}))
	require.NoError(t, err)
	assert.Equal(t, "streamed response", out)
	assert.Equal(t, out, b.String())
}

func TestWithToolsEmptyDisablesTools(t *testing.T) {
	noop, err := functiontool.New(
		functiontool.Config{Name: "noop", Description: "Does nothing"},
		func(ctx context.Context, args struct{}) (map[string]any, error) {
			return map[string]any{"ok": true}, nil
		},
	)
	require.NoError(t, err)

	llm := &mockLLM{
		generate: func(call int, messages []llms.Message, tools []llms.ToolDefinition, opts *llms.GenerateOptions) (string, []*llms.ToolCall, error) {
			require.Empty(t, tools)
			return "no tools used", nil, nil
		},
	}

	a := newTestAgent(t, config.AgentConfig{Role: "Helper"}, Options{
		LLM:   llm,
		Tools: []tool.CallableTool{noop},
	})

	out, err := a.Chat(context.Background(), "go", WithTools(nil))
	require.NoError(t, err)
	assert.Equal(t, "no tools used", out)
}

func TestDuplicateToolNamesRejected(t *testing.T) {
	mk := func() tool.CallableTool {
		tl, err := functiontool.New(
			functiontool.Config{Name: "dup", Description: "Duplicate"},
			func(ctx context.Context, args struct{}) (map[string]any, error) { return nil, nil },
		)
		require.NoError(t, err)
		return tl
	}

	cfg := config.AgentConfig{Name: "tester", Role: "Helper"}
	cfg.SetDefaults()
	_, err := New(cfg, Options{
		LLM:   &mockLLM{generate: textOnly("x")},
		Tools: []tool.CallableTool{mk(), mk()},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestSessionIsolatesHistory(t *testing.T) {
	llm := &mockLLM{generate: textOnly("reply")}
	a := newTestAgent(t, config.AgentConfig{Role: "Shared"}, Options{LLM: llm})

	_, err := a.Chat(context.Background(), "base conversation")
	require.NoError(t, err)

	s := a.Session("user-1")
	assert.Equal(t, a.ID(), s.ID())
	assert.Empty(t, s.History())

	_, err = s.Chat(context.Background(), "session conversation")
	require.NoError(t, err)

	assert.Len(t, a.History(), 2)
	assert.Len(t, s.History(), 2)
	assert.Equal(t, "base conversation", a.History()[0].Content)
	assert.Equal(t, "session conversation", s.History()[0].Content)
}

func TestSwapHistory(t *testing.T) {
	llm := &mockLLM{generate: textOnly("reply")}
	a := newTestAgent(t, config.AgentConfig{Role: "Bot"}, Options{LLM: llm})

	_, err := a.Chat(context.Background(), "from user A")
	require.NoError(t, err)

	userA := a.SwapHistory(nil)
	require.Len(t, userA, 2)
	assert.Empty(t, a.History())

	_, err = a.Chat(context.Background(), "from user B")
	require.NoError(t, err)
	userB := a.SwapHistory(userA)
	require.Len(t, userB, 2)
	assert.Equal(t, "from user A", a.History()[0].Content)
}

func TestHistoryTrimmerNoOpCases(t *testing.T) {
	history := []llms.Message{
		{Role: llms.RoleUser, Content: "one"},
		{Role: llms.RoleAssistant, Content: "two"},
		{Role: llms.RoleUser, Content: "three"},
		{Role: llms.RoleAssistant, Content: "four"},
	}

	// unlimited budget keeps everything
	unlimited := newHistoryTrimmer(0)
	assert.Len(t, unlimited.trim(history), 4)

	// a single exchange is never trimmed
	tight := newHistoryTrimmer(1)
	pair := history[:2]
	assert.Len(t, tight.trim(pair), 2)
}

func TestChatErrorLeavesHistoryUntouched(t *testing.T) {
	llm := &mockLLM{
		generate: func(call int, messages []llms.Message, tools []llms.ToolDefinition, opts *llms.GenerateOptions) (string, []*llms.ToolCall, error) {
			return "", nil, fmt.Errorf("boom")
		},
	}
	a := newTestAgent(t, config.AgentConfig{Role: "Flaky"}, Options{LLM: llm})

	_, err := a.Chat(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLLM)
	assert.Empty(t, a.History())
}
