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

package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/maestro/pkg/agent"
	"github.com/kadirpekel/maestro/pkg/config"
	"github.com/kadirpekel/maestro/pkg/llms"
	"github.com/kadirpekel/maestro/pkg/memory"
	"github.com/kadirpekel/maestro/pkg/process"
	"github.com/kadirpekel/maestro/pkg/task"
)

// mockLLM answers with a scripted function and records every prompt it
// was sent.
type mockLLM struct {
	mu       sync.Mutex
	generate func(call int, messages []llms.Message) (string, error)
	calls    int
	prompts  []string
}

func (m *mockLLM) Generate(ctx context.Context, messages []llms.Message, tools []llms.ToolDefinition, opts *llms.GenerateOptions) (string, []*llms.ToolCall, int, error) {
	m.mu.Lock()
	call := m.calls
	m.calls++
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llms.RoleUser {
			m.prompts = append(m.prompts, messages[i].Text())
			break
		}
	}
	m.mu.Unlock()

	text, err := m.generate(call, messages)
	return text, nil, 0, err
}

func (m *mockLLM) GenerateStreaming(ctx context.Context, messages []llms.Message, tools []llms.ToolDefinition, opts *llms.GenerateOptions) (<-chan llms.StreamChunk, error) {
	text, _, _, err := m.Generate(ctx, messages, tools, opts)
	if err != nil {
		return nil, err
	}
	ch := make(chan llms.StreamChunk, 1)
	ch <- llms.StreamChunk{Type: "text", Text: text}
	close(ch)
	return ch, nil
}

func (m *mockLLM) GetModelName() string    { return "mock" }
func (m *mockLLM) GetMaxTokens() int       { return 4096 }
func (m *mockLLM) GetTemperature() float64 { return 0.2 }
func (m *mockLLM) Close() error            { return nil }

func (m *mockLLM) lastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

func constantLLM(text string) *mockLLM {
	return &mockLLM{generate: func(int, []llms.Message) (string, error) { return text, nil }}
}

func newAgent(t *testing.T, name, role string, llm llms.LLMProvider) *agent.Agent {
	t.Helper()
	cfg := config.AgentConfig{Name: name, Role: role}
	cfg.SetDefaults()
	a, err := agent.New(cfg, agent.Options{LLM: llm})
	require.NoError(t, err)
	return a
}

func TestSequentialTwoAgentRun(t *testing.T) {
	researcherLLM := constantLLM("2, 3, 5")
	writerLLM := constantLLM("primes bloom bright\nnumbers dance in morning light\nthree gifts from the void")

	o := New(Options{Process: process.NewSequential()})
	o.AddAgent(newAgent(t, "A1", "Researcher", researcherLLM))
	o.AddAgent(newAgent(t, "A2", "Writer", writerLLM))

	id1 := o.AddTask(&task.Task{Name: "T1", Description: "Find 3 prime numbers", ExpectedOutput: "list", Agent: "A1"})
	id2 := o.AddTask(&task.Task{Name: "T2", Description: "Write a haiku using them", ExpectedOutput: "haiku", Agent: "A2"})
	assert.Equal(t, 0, id1)
	assert.Equal(t, 1, id2)

	result, err := o.Start(context.Background())
	require.NoError(t, err)

	assert.Equal(t, task.StatusCompleted, result.Statuses[id1])
	assert.Equal(t, task.StatusCompleted, result.Statuses[id2])

	// auto-wiring fed T1's result into T2's prompt
	prompt := writerLLM.lastPrompt()
	assert.Contains(t, prompt, "You need to do the following task: Write a haiku using them.")
	assert.Contains(t, prompt, "Expected Output: haiku.")
	assert.Contains(t, prompt, "Result of previous task T1:")
	assert.Contains(t, prompt, "2, 3, 5")
	assert.Contains(t, prompt, "Please provide only the final result of your work.")
}

func TestTasksGeneratedFromAgents(t *testing.T) {
	llm := constantLLM("result")
	o := New(Options{})
	o.AddAgent(newAgent(t, "Solo", "Analyst", llm))

	result, err := o.Start(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Statuses, 1)
	assert.Equal(t, task.StatusCompleted, result.Statuses[0])

	tk, ok := o.Task(0)
	require.True(t, ok)
	assert.Equal(t, "Solo", tk.Agent)
}

func TestRetryUntilSuccess(t *testing.T) {
	llm := &mockLLM{generate: func(call int, _ []llms.Message) (string, error) {
		if call < 2 {
			return "", fmt.Errorf("transient provider failure")
		}
		return "finally", nil
	}}

	o := New(Options{MaxRetries: 3})
	o.AddAgent(newAgent(t, "Flaky", "Worker", llm))
	o.AddTask(&task.Task{Name: "T", Description: "try hard", Agent: "Flaky"})

	result, err := o.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, result.Statuses[0])
	assert.Equal(t, "finally", result.Results[0].Raw)
}

func TestRetryExhaustionLeavesTaskFailed(t *testing.T) {
	llm := constantLLM("   ") // blank output never passes the checker

	o := New(Options{MaxRetries: 3})
	o.AddAgent(newAgent(t, "Mute", "Worker", llm))
	o.AddTask(&task.Task{Name: "T", Description: "say something", Agent: "Mute"})

	result, err := o.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, result.Statuses[0])
}

func TestUnknownAgentFailsWithoutRetry(t *testing.T) {
	llm := constantLLM("unused")
	o := New(Options{})
	o.AddAgent(newAgent(t, "Known", "Worker", llm))
	o.AddTask(&task.Task{Name: "T", Description: "orphaned", Agent: "Nobody"})

	result, err := o.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, result.Statuses[0])
	assert.Equal(t, 0, llm.calls)
}

func TestJSONOutputPostProcessing(t *testing.T) {
	llm := constantLLM("```json\n{\"answer\": \"blue\"}\n```")

	o := New(Options{})
	o.AddAgent(newAgent(t, "A", "Worker", llm))
	o.AddTask(&task.Task{Name: "T", Description: "pick a color", Agent: "A", OutputJSON: true})

	result, err := o.Start(context.Background())
	require.NoError(t, err)

	out := result.Results[0]
	require.NotNil(t, out)
	assert.Equal(t, task.FormatJSON, out.Format)
	assert.Equal(t, "blue", out.JSON["answer"])
}

func TestTypedOutputValidation(t *testing.T) {
	llm := constantLLM(`{"decision": "yes"}`)
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"decision": map[string]interface{}{"type": "string"},
		},
		"required": []string{"decision"},
	}

	o := New(Options{})
	o.AddAgent(newAgent(t, "A", "Worker", llm))
	o.AddTask(&task.Task{Name: "T", Description: "decide", Agent: "A", OutputSchema: schema})

	result, err := o.Start(context.Background())
	require.NoError(t, err)

	out := result.Results[0]
	require.NotNil(t, out)
	assert.Equal(t, task.FormatTyped, out.Format)
	assert.Equal(t, "yes", out.Typed["decision"])
}

func TestOutputFileWritten(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "nested", "report.txt")
	llm := constantLLM("the report")

	o := New(Options{})
	o.AddAgent(newAgent(t, "A", "Worker", llm))
	o.AddTask(&task.Task{
		Name: "T", Description: "report", Agent: "A",
		OutputFile: outPath, CreateDirectory: true,
	})

	_, err := o.Start(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "the report", string(data))
}

func TestWorkflowDecisionThroughOrchestrator(t *testing.T) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"decision": map[string]interface{}{"type": "string"},
		},
		"required": []string{"decision"},
	}

	decisions := []string{`{"decision": "yes"}`, `{"decision": "no"}`}
	gateLLM := &mockLLM{generate: func(call int, _ []llms.Message) (string, error) {
		if call < len(decisions) {
			return decisions[call], nil
		}
		return decisions[len(decisions)-1], nil
	}}
	workerLLM := constantLLM("did the work")

	o := New(Options{Process: process.NewWorkflow(), MaxIter: 10})
	o.AddAgent(newAgent(t, "Gate", "Gatekeeper", gateLLM))
	o.AddAgent(newAgent(t, "Worker", "Doer", workerLLM))

	o.AddTask(&task.Task{
		Name: "Start", Description: "should we proceed", Agent: "Gate",
		TaskType: task.TypeDecision, IsStart: true,
		OutputSchema: schema,
		Condition:    map[string][]string{"yes": {"Do"}, "no": {"exit"}},
	})
	o.AddTask(&task.Task{
		Name: "Do", Description: "do the thing", Agent: "Worker",
		NextTasks: []string{"Start"},
	})

	result, err := o.Start(context.Background())
	require.NoError(t, err)

	// the workflow exited via the "no" branch; Do ran exactly once
	assert.Equal(t, 2, gateLLM.calls)
	assert.Equal(t, 1, workerLLM.calls)
	require.NotNil(t, result.Results[1])
	assert.Equal(t, "did the work", result.Results[1].Raw)
}

func TestMemoryPromotionEndToEnd(t *testing.T) {
	judge := constantLLM(`{"completeness": 0.9, "relevance": 0.9, "clarity": 0.9, "accuracy": 0.9}`)

	memCfg := &config.MemoryConfig{
		Provider: "sql",
		Driver:   "sqlite3",
		DSN:      filepath.Join(t.TempDir(), "mem.db"),
	}
	memCfg.SetDefaults()
	mem, err := memory.New(memCfg, memory.Options{Judge: judge})
	require.NoError(t, err)
	defer mem.Close()

	llm := constantLLM("the capital of France is Paris")

	o := New(Options{Memory: mem, UserID: "u1"})
	o.AddAgent(newAgent(t, "A", "Geographer", llm))
	o.AddTask(&task.Task{
		Name: "T", Description: "name the capital of France",
		ExpectedOutput: "a city name", Agent: "A", QualityCheck: true,
	})

	result, err := o.Start(context.Background())
	require.NoError(t, err)
	require.Equal(t, task.StatusCompleted, result.Statuses[0])

	ctx := context.Background()

	short, err := mem.SearchShortTerm(ctx, "capital of France", 5, 0)
	require.NoError(t, err)
	require.NotEmpty(t, short)

	long, err := mem.SearchLongTerm(ctx, "capital of France", 5, 0, 0.8)
	require.NoError(t, err)
	require.Len(t, long, 1)
	assert.InDelta(t, 0.9, long[0].Quality(), 0.001)

	none, err := mem.SearchLongTerm(ctx, "capital of France", 5, 0, 0.95)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCallbackInvoked(t *testing.T) {
	llm := constantLLM("done")

	var got *task.Output
	o := New(Options{})
	o.AddAgent(newAgent(t, "A", "Worker", llm))
	o.AddTask(&task.Task{
		Name: "T", Description: "work", Agent: "A",
		Callback: func(out *task.Output) { got = out },
	})

	_, err := o.Start(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "done", got.Raw)
}

func TestCancellationStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	llm := &mockLLM{generate: func(call int, _ []llms.Message) (string, error) {
		cancel()
		return "", ctx.Err()
	}}

	o := New(Options{})
	o.AddAgent(newAgent(t, "A", "Worker", llm))
	o.AddTask(&task.Task{Name: "T1", Description: "first", Agent: "A"})
	o.AddTask(&task.Task{Name: "T2", Description: "second", Agent: "A"})

	result, err := o.Start(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, task.StatusFailed, result.Statuses[0])
	// the second task was never dispatched
	assert.Equal(t, task.StatusNotStarted, result.Statuses[1])
	assert.Equal(t, 1, llm.calls)
}

func TestStateOperations(t *testing.T) {
	o := New(Options{})

	o.SetState("count", 1)
	v, ok := o.GetState("count")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	o.UpdateState("count", func(current any) any {
		return current.(int) + 1
	})
	v, _ = o.GetState("count")
	assert.Equal(t, 2, v)

	o.ClearState()
	_, ok = o.GetState("count")
	assert.False(t, ok)
}

func TestAssignAgentRebindsTask(t *testing.T) {
	o := New(Options{})
	o.AddAgent(newAgent(t, "First", "Worker", constantLLM("a")))
	o.AddAgent(newAgent(t, "Second", "Worker", constantLLM("b")))
	id := o.AddTask(&task.Task{Name: "T", Description: "work", Agent: "First"})

	require.NoError(t, o.AssignAgent(id, "Second"))
	tk, _ := o.Task(id)
	assert.Equal(t, "Second", tk.Agent)

	require.Error(t, o.AssignAgent(id, "Nobody"))
	require.Error(t, o.AssignAgent(99, "Second"))
}
