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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/maestro/pkg/task"
)

// fakeExec is a scripted Executor: ExecuteTask marks tasks completed
// and lets the test shape the result.
type fakeExec struct {
	tasks       []*task.Task
	maxIter     int
	onExec      func(t *task.Task)
	executed    []string
	injects     map[string]string
	assignments map[int]string
}

func newFakeExec(tasks ...*task.Task) *fakeExec {
	f := &fakeExec{
		injects:     make(map[string]string),
		assignments: make(map[int]string),
	}
	for _, t := range tasks {
		f.RegisterTask(t)
	}
	return f
}

func (f *fakeExec) Tasks() []*task.Task { return append([]*task.Task(nil), f.tasks...) }

func (f *fakeExec) Task(id int) (*task.Task, bool) {
	if id < 0 || id >= len(f.tasks) {
		return nil, false
	}
	return f.tasks[id], true
}

func (f *fakeExec) TaskByName(name string) (*task.Task, bool) {
	for _, t := range f.tasks {
		if t.DisplayName() == name {
			return t, true
		}
	}
	return nil, false
}

func (f *fakeExec) RegisterTask(t *task.Task) int {
	t.ID = len(f.tasks)
	if t.Status == "" {
		t.Status = task.StatusNotStarted
	}
	f.tasks = append(f.tasks, t)
	return t.ID
}

func (f *fakeExec) ExecuteTask(ctx context.Context, id int, inject string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	t := f.tasks[id]
	f.executed = append(f.executed, t.DisplayName())
	f.injects[t.DisplayName()] = inject

	t.Status = task.StatusInProgress
	if f.onExec != nil {
		f.onExec(t)
	}
	if t.Status == task.StatusInProgress {
		if t.Result == nil {
			t.Result = task.NewOutput(t.Description, "done: "+t.Description, "worker")
		}
		t.Status = task.StatusCompleted
	}
	return nil
}

func (f *fakeExec) AssignAgent(id int, agentName string) error {
	f.assignments[id] = agentName
	if t, ok := f.Task(id); ok {
		t.Agent = agentName
	}
	return nil
}

func (f *fakeExec) MaxIter() int { return f.maxIter }

func TestSequentialRunsInRegistrationOrder(t *testing.T) {
	exec := newFakeExec(
		&task.Task{Name: "first", Description: "first"},
		&task.Task{Name: "second", Description: "second"},
		&task.Task{Name: "third", Description: "third"},
	)

	require.NoError(t, NewSequential().Run(context.Background(), exec))
	assert.Equal(t, []string{"first", "second", "third"}, exec.executed)
}

func TestSequentialSkipsCompleted(t *testing.T) {
	done := &task.Task{Name: "done", Description: "done", Status: task.StatusCompleted}
	exec := newFakeExec(
		done,
		&task.Task{Name: "pending", Description: "pending"},
	)

	require.NoError(t, NewSequential().Run(context.Background(), exec))
	assert.Equal(t, []string{"pending"}, exec.executed)
}

func TestWorkflowDecisionSequence(t *testing.T) {
	start := &task.Task{
		Name:        "Start",
		Description: "decide",
		TaskType:    task.TypeDecision,
		IsStart:     true,
		Condition:   map[string][]string{"yes": {"Do"}, "no": {"exit"}},
	}
	do := &task.Task{
		Name:        "Do",
		Description: "do the work",
		NextTasks:   []string{"Start"},
	}
	exec := newFakeExec(start, do)

	decisions := []string{"yes", "yes", "no"}
	exec.onExec = func(t *task.Task) {
		if t.Name != "Start" {
			return
		}
		d := decisions[0]
		decisions = decisions[1:]
		t.Result = task.NewOutput(t.Description, `{"decision": "`+d+`"}`, "worker")
		t.Result.Typed = map[string]any{"decision": d}
	}

	var emitted []string
	w := NewWorkflow()
	w.OnEmit = func(t *task.Task) { emitted = append(emitted, t.Name) }

	require.NoError(t, w.Run(context.Background(), exec))
	assert.Equal(t, []string{"Start", "Do", "Start", "Do", "Start"}, emitted)
	// the last Do execution kept its result
	require.NotNil(t, do.Result)
	assert.Contains(t, do.Result.Raw, "do the work")
}

func TestWorkflowRawDecisionFallback(t *testing.T) {
	start := &task.Task{
		Name:        "Gate",
		Description: "approve or reject",
		TaskType:    task.TypeDecision,
		IsStart:     true,
		Condition:   map[string][]string{"approved": {"Ship"}, "rejected": {"exit"}},
	}
	ship := &task.Task{Name: "Ship", Description: "ship it"}
	exec := newFakeExec(start, ship)
	exec.onExec = func(t *task.Task) {
		if t.Name == "Gate" {
			t.Result = task.NewOutput(t.Description, "The change is APPROVED, go ahead.", "worker")
			t.Result.Raw = strings.ToLower(t.Result.Raw)
		}
	}

	w := NewWorkflow()
	w.RawDecisionMatch = true
	require.NoError(t, w.Run(context.Background(), exec))
	assert.Equal(t, []string{"Gate", "Ship"}, exec.executed)
}

func TestWorkflowLoopFromCSV(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "names.csv")
	require.NoError(t, os.WriteFile(input, []byte("Alice\nBob\nCarol\n"), 0644))

	start := &task.Task{
		Name:        "Process names",
		Description: "process each name",
		TaskType:    task.TypeLoop,
		IsStart:     true,
		InputFile:   input,
	}
	exec := newFakeExec(start)

	var emitted []string
	w := NewWorkflow()
	w.OnEmit = func(t *task.Task) { emitted = append(emitted, t.Description) }

	require.NoError(t, w.Run(context.Background(), exec))

	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, emitted)
	assert.Equal(t, task.StatusCompleted, start.Status)

	// three children were materialized after the loop task
	require.Len(t, exec.tasks, 4)
	first, second, third := exec.tasks[1], exec.tasks[2], exec.tasks[3]
	assert.True(t, strings.HasSuffix(first.Result.Raw, "\nmore"))
	assert.True(t, strings.HasSuffix(second.Result.Raw, "\nmore"))
	assert.True(t, strings.HasSuffix(third.Result.Raw, "\ndone"))
}

func TestWorkflowLoopMissingInputFailsStart(t *testing.T) {
	start := &task.Task{
		Name:        "Loop",
		Description: "loop",
		TaskType:    task.TypeLoop,
		IsStart:     true,
		InputFile:   filepath.Join(t.TempDir(), "missing.csv"),
	}
	exec := newFakeExec(start)

	require.NoError(t, NewWorkflow().Run(context.Background(), exec))
	assert.Equal(t, task.StatusFailed, start.Status)
	assert.Empty(t, exec.executed)
}

func TestWorkflowIterationBound(t *testing.T) {
	a := &task.Task{Name: "A", Description: "a", IsStart: true, NextTasks: []string{"B"}}
	b := &task.Task{Name: "B", Description: "b", NextTasks: []string{"A"}}
	exec := newFakeExec(a, b)
	exec.maxIter = 5

	require.NoError(t, NewWorkflow().Run(context.Background(), exec))
	assert.Len(t, exec.executed, 5)
}

func TestWorkflowContextInjection(t *testing.T) {
	a := &task.Task{Name: "A", Description: "produce alpha", IsStart: true, NextTasks: []string{"B"}}
	b := &task.Task{Name: "B", Description: "consume"}
	exec := newFakeExec(a, b)
	exec.onExec = func(t *task.Task) {
		if t.Name == "A" {
			t.Result = task.NewOutput(t.Description, "alpha", "worker")
		}
	}

	require.NoError(t, NewWorkflow().Run(context.Background(), exec))

	assert.Empty(t, exec.injects["A"])
	inject := exec.injects["B"]
	assert.Contains(t, inject, "Input data from previous tasks:")
	assert.Contains(t, inject, "A: alpha")
}

func TestReadLoopItems(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "items.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("Alice,30\nBob,25\n\nCarol,41\n"), 0644))
	items, err := readLoopItems(csvPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, items)

	txtPath := filepath.Join(dir, "items.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("first line\n\nsecond line\n"), 0644))
	items, err = readLoopItems(txtPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"first line", "second line"}, items)

	_, err = readLoopItems(filepath.Join(dir, "absent.txt"))
	require.Error(t, err)
}
