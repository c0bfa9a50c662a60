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
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kadirpekel/maestro/pkg/task"
)

// DefaultMaxIter bounds workflow task emissions when the orchestrator
// does not set a limit.
const DefaultMaxIter = 10

// defaultLoopInput seeds a start task of type loop that names no input
// file.
const defaultLoopInput = "tasks.csv"

// Workflow walks the task graph as a bounded state machine: decision
// tasks branch on their condition map, loop tasks fan out over an input
// file, and every visited task is reset to "not started" so it may be
// revisited within the iteration budget.
type Workflow struct {
	// RawDecisionMatch enables the compatibility fallback that matches
	// condition labels as substrings of the raw output when no
	// structured decision field is present.
	RawDecisionMatch bool

	// OnEmit observes each task just before execution.
	OnEmit func(*task.Task)
}

func NewWorkflow() *Workflow { return &Workflow{} }

func (w *Workflow) Name() string { return KindWorkflow }

// loopState tracks a materialized loop group. All children of one loop
// share the same record.
type loopState struct {
	items     []string
	index     int
	remaining int
}

func (w *Workflow) Run(ctx context.Context, exec Executor) error {
	tasks := exec.Tasks()
	if len(tasks) == 0 {
		return nil
	}

	buildReverseEdges(tasks)

	current := pickStart(tasks)
	loops := make(map[string]*loopState)

	if current != nil && current.TaskType == task.TypeLoop {
		var err error
		current, err = w.materializeLoop(exec, current, loops)
		if err != nil {
			// inaccessible input file: the start task is failed, the
			// run ends consistently
			return nil
		}
	}

	maxIter := exec.MaxIter()
	if maxIter <= 0 {
		maxIter = DefaultMaxIter
	}

	for iter := 0; current != nil; iter++ {
		if iter >= maxIter {
			slog.Info("Workflow reached iteration limit", "max_iter", maxIter)
			return nil
		}

		if w.OnEmit != nil {
			w.OnEmit(current)
		}

		inject := contextInjection(exec, current)
		if err := exec.ExecuteTask(ctx, current.ID, inject); err != nil {
			return err
		}
		failed := current.Status == task.StatusFailed

		if st, ok := loops[current.DisplayName()]; ok && !failed {
			advanceLoop(st, current)
		}

		// Workflow tasks may be revisited.
		current.Status = task.StatusNotStarted

		next, terminate := w.selectNext(exec, current, loops, failed)
		if terminate {
			return nil
		}
		current = next
	}

	return nil
}

// buildReverseEdges derives PreviousTasks from other tasks' NextTasks.
func buildReverseEdges(tasks []*task.Task) {
	byName := make(map[string]*task.Task, len(tasks))
	for _, t := range tasks {
		byName[t.DisplayName()] = t
	}
	for _, t := range tasks {
		for _, next := range t.NextTasks {
			target, ok := byName[next]
			if !ok {
				continue
			}
			if !containsString(target.PreviousTasks, t.DisplayName()) {
				target.PreviousTasks = append(target.PreviousTasks, t.DisplayName())
			}
		}
	}
}

func pickStart(tasks []*task.Task) *task.Task {
	for _, t := range tasks {
		if t.IsStart {
			return t
		}
	}
	return tasks[0]
}

// materializeLoop reads the loop's input file and registers one child
// task per item, chained through complete/retry conditions. The first
// child becomes the new start; the loop task itself is consumed.
func (w *Workflow) materializeLoop(exec Executor, start *task.Task, loops map[string]*loopState) (*task.Task, error) {
	input := start.InputFile
	if input == "" {
		input = defaultLoopInput
	}

	items, err := readLoopItems(input)
	if err != nil {
		slog.Warn("Loop input file unreadable", "task", start.DisplayName(), "file", input, "error", err)
		start.Status = task.StatusFailed
		return nil, err
	}
	if len(items) == 0 {
		start.Status = task.StatusCompleted
		return nil, fmt.Errorf("loop input %q is empty", input)
	}

	state := &loopState{items: items, remaining: len(items)}

	names := make([]string, len(items))
	for i := range items {
		names[i] = fmt.Sprintf("%s_%d", start.DisplayName(), i+1)
	}

	var first *task.Task
	for i, item := range items {
		next := "exit"
		if i+1 < len(items) {
			next = names[i+1]
		}
		child := &task.Task{
			Name:           names[i],
			Description:    item,
			ExpectedOutput: start.ExpectedOutput,
			Agent:          start.Agent,
			Tools:          append([]string(nil), start.Tools...),
			TaskType:       task.TypeLoop,
			IsStart:        i == 0,
			Condition: map[string][]string{
				"complete": {next},
				"retry":    {names[i]},
			},
			QualityCheck: start.QualityCheck,
			Status:       task.StatusNotStarted,
		}
		exec.RegisterTask(child)
		loops[child.DisplayName()] = state
		if i == 0 {
			first = child
		}
	}

	start.IsStart = false
	start.Status = task.StatusCompleted
	return first, nil
}

// advanceLoop moves the shared loop cursor and marks the result with
// the branch suffix: "more" while items remain, "done" on the last one.
func advanceLoop(st *loopState, t *task.Task) {
	st.index++
	st.remaining--
	suffix := "\nmore"
	if st.remaining <= 0 {
		suffix = "\ndone"
	}
	if t.Result != nil {
		t.Result.Raw += suffix
	}
}

// contextInjection renders the "previous results" block passed to the
// executor alongside the task. The stored description is never mutated.
func contextInjection(exec Executor, t *task.Task) string {
	var lines []string
	seen := make(map[string]struct{})

	add := func(name string) {
		if name == "" || name == t.DisplayName() {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		prev, ok := exec.TaskByName(name)
		if !ok {
			return
		}
		if prev.Result != nil && prev.Result.Raw != "" {
			lines = append(lines, fmt.Sprintf("%s: %s", name, prev.Result.Raw))
		} else {
			lines = append(lines, fmt.Sprintf("%s: (no result yet)", name))
		}
	}

	for _, name := range t.PreviousTasks {
		add(name)
	}
	for _, c := range t.Context {
		add(c.TaskName)
	}

	if len(lines) == 0 {
		return ""
	}
	return "\nInput data from previous tasks:\n" + strings.Join(lines, "\n")
}

// selectNext picks the task to run after t, or signals termination.
func (w *Workflow) selectNext(exec Executor, t *task.Task, loops map[string]*loopState, failed bool) (*task.Task, bool) {
	switch t.TaskType {
	case task.TypeDecision, task.TypeLoop:
		// Materialized loop children branch on the loop cursor, not on
		// output text: retry re-runs the item on failure, complete
		// advances to the next one.
		if _, isLoopChild := loops[t.DisplayName()]; isLoopChild {
			label := "complete"
			if failed {
				label = "retry"
			}
			return w.resolveTargets(exec, t, t.Condition[label])
		}

		decision := structuredDecision(t.Result)
		if decision == "" && w.RawDecisionMatch && t.Result != nil {
			raw := strings.ToLower(t.Result.Raw)
			for _, label := range sortedLabels(t.Condition) {
				if strings.Contains(raw, label) {
					return w.resolveTargets(exec, t, t.Condition[label])
				}
			}
		} else if decision != "" {
			if targets, ok := t.Condition[decision]; ok {
				return w.resolveTargets(exec, t, targets)
			}
		}
	}

	if len(t.NextTasks) > 0 {
		next, ok := exec.TaskByName(t.NextTasks[0])
		if !ok {
			slog.Warn("Next task not found, terminating workflow", "task", t.DisplayName(), "next", t.NextTasks[0])
			return nil, true
		}
		return next, false
	}
	return nil, true
}

func (w *Workflow) resolveTargets(exec Executor, t *task.Task, targets []string) (*task.Task, bool) {
	if len(targets) == 0 {
		return nil, true
	}
	name := targets[0]
	if name == "" || name == "exit" {
		return nil, true
	}
	next, ok := exec.TaskByName(name)
	if !ok {
		slog.Warn("Condition target not found, terminating workflow", "task", t.DisplayName(), "target", name)
		return nil, true
	}
	return next, false
}

// structuredDecision extracts the typed or JSON "decision" field,
// lowercased. Empty when the task produced no structured decision.
func structuredDecision(out *task.Output) string {
	if out == nil {
		return ""
	}
	for _, m := range []map[string]interface{}{out.Typed, out.JSON} {
		if m == nil {
			continue
		}
		if v, ok := m["decision"]; ok {
			if s, ok := v.(string); ok {
				return strings.ToLower(strings.TrimSpace(s))
			}
		}
	}
	return ""
}

func sortedLabels(condition map[string][]string) []string {
	labels := make([]string, 0, len(condition))
	for label := range condition {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
