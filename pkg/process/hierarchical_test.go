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

package process

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/maestro/pkg/llms"
	"github.com/kadirpekel/maestro/pkg/task"
)

// scriptedLLM returns canned responses in order; used as the manager
// model.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (s *scriptedLLM) Generate(ctx context.Context, messages []llms.Message, tools []llms.ToolDefinition, opts *llms.GenerateOptions) (string, []*llms.ToolCall, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := s.responses[len(s.responses)-1]
	if s.calls < len(s.responses) {
		resp = s.responses[s.calls]
	}
	s.calls++
	return resp, nil, 0, nil
}

func (s *scriptedLLM) GenerateStreaming(ctx context.Context, messages []llms.Message, tools []llms.ToolDefinition, opts *llms.GenerateOptions) (<-chan llms.StreamChunk, error) {
	text, _, _, err := s.Generate(ctx, messages, tools, opts)
	if err != nil {
		return nil, err
	}
	ch := make(chan llms.StreamChunk, 1)
	ch <- llms.StreamChunk{Type: "text", Text: text}
	close(ch)
	return ch, nil
}

func (s *scriptedLLM) GetModelName() string    { return "scripted" }
func (s *scriptedLLM) GetMaxTokens() int       { return 4096 }
func (s *scriptedLLM) GetTemperature() float64 { return 0.2 }
func (s *scriptedLLM) Close() error            { return nil }

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestHierarchicalDispatchesUntilDone(t *testing.T) {
	research := &task.Task{Name: "Research", Description: "research the topic", Agent: "researcher"}
	write := &task.Task{Name: "Write", Description: "write the report", Agent: "writer"}
	exec := newFakeExec(research, write)

	manager := &scriptedLLM{responses: []string{
		`{"task_id": 0, "agent_name": "researcher", "action": "execute"}`,
		`{"task_id": 1, "agent_name": "editor", "action": "execute"}`,
	}}

	var emitted []string
	h := NewHierarchical(manager)
	h.OnEmit = func(t *task.Task) { emitted = append(emitted, t.Name) }

	require.NoError(t, h.Run(context.Background(), exec))

	assert.Equal(t, []string{"Research", "Write"}, emitted)
	assert.Equal(t, 2, manager.callCount())

	// the manager rebound the second task
	assert.Equal(t, "editor", exec.assignments[1])

	// the transient manager task exists and is completed
	require.Len(t, exec.tasks, 3)
	assert.Equal(t, task.StatusCompleted, exec.tasks[2].Status)
	assert.Equal(t, task.StatusCompleted, research.Status)
	assert.Equal(t, task.StatusCompleted, write.Status)
}

func TestHierarchicalStopAction(t *testing.T) {
	pending := &task.Task{Name: "Pending", Description: "never runs", Agent: "worker"}
	exec := newFakeExec(pending)

	manager := &scriptedLLM{responses: []string{
		`{"task_id": 0, "agent_name": "worker", "action": "stop"}`,
	}}

	h := NewHierarchical(manager)
	require.NoError(t, h.Run(context.Background(), exec))

	assert.Empty(t, exec.executed)
	assert.Equal(t, task.StatusNotStarted, pending.Status)
}

func TestHierarchicalInvalidTaskIDStopsDispatch(t *testing.T) {
	only := &task.Task{Name: "Only", Description: "the only task", Agent: "worker"}
	exec := newFakeExec(only)

	manager := &scriptedLLM{responses: []string{
		`{"task_id": 99, "agent_name": "worker", "action": "execute"}`,
	}}

	h := NewHierarchical(manager)
	require.NoError(t, h.Run(context.Background(), exec))
	assert.Empty(t, exec.executed)
}

func TestHierarchicalUnparsableDecisionStopsDispatch(t *testing.T) {
	only := &task.Task{Name: "Only", Description: "the only task", Agent: "worker"}
	exec := newFakeExec(only)

	manager := &scriptedLLM{responses: []string{"not json at all"}}

	h := NewHierarchical(manager)
	require.NoError(t, h.Run(context.Background(), exec))
	assert.Empty(t, exec.executed)
}

func TestHierarchicalRequiresManagerLLM(t *testing.T) {
	exec := newFakeExec(&task.Task{Name: "T", Description: "t"})
	err := (&Hierarchical{}).Run(context.Background(), exec)
	require.Error(t, err)
}
