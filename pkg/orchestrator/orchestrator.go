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

// Package orchestrator runs a registered set of agents and tasks to
// completion under a scheduling process. It owns task ids, the per-task
// retry loop, prompt construction, output post-processing, memory
// promotion, and the run-scoped scratch state.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/maestro/pkg/agent"
	"github.com/kadirpekel/maestro/pkg/observability"
	"github.com/kadirpekel/maestro/pkg/knowledge"
	"github.com/kadirpekel/maestro/pkg/memory"
	"github.com/kadirpekel/maestro/pkg/process"
	"github.com/kadirpekel/maestro/pkg/task"
	"github.com/kadirpekel/maestro/pkg/tool"
)

// minMaxRetries is the floor for per-task retry attempts.
const minMaxRetries = 3

// retrySleep separates task attempts.
const retrySleep = time.Second

// CompletionChecker decides whether a task's output counts as done.
type CompletionChecker func(*task.Task) bool

// Options carries the orchestrator's collaborators and tuning.
type Options struct {
	// Process is the scheduling strategy; defaults to sequential.
	Process process.Process

	// MaxRetries bounds task attempts (floor 3).
	MaxRetries int

	// MaxIter bounds workflow emissions; forwarded to the process.
	MaxIter int

	// Memory enables context building and output promotion when set.
	Memory *memory.Memory

	// Knowledge serves task context items that declare a vector store.
	Knowledge *knowledge.Store

	// Tools resolves task tool names to callable tools.
	Tools *tool.Registry

	// UserID scopes memory operations; defaults to "default_user".
	UserID string

	// CompletionChecker overrides the default output check.
	CompletionChecker CompletionChecker

	Verbose bool
}

// Orchestrator coordinates one run of a crew. It implements
// process.Executor.
type Orchestrator struct {
	proc       process.Process
	maxRetries int
	maxIter    int
	memory     *memory.Memory
	knowledge  *knowledge.Store
	tools      *tool.Registry
	userID     string
	runID      string
	verbose    bool

	checker CompletionChecker
	tracer  trace.Tracer

	mu           sync.Mutex
	agents       []*agent.Agent
	agentsByName map[string]*agent.Agent
	tasks        []*task.Task

	stateMu sync.Mutex
	state   map[string]any
}

// New creates an orchestrator for one run.
func New(opts Options) *Orchestrator {
	proc := opts.Process
	if proc == nil {
		proc = process.NewSequential()
	}
	maxRetries := opts.MaxRetries
	if maxRetries < minMaxRetries {
		maxRetries = minMaxRetries
	}
	userID := opts.UserID
	if userID == "" {
		userID = "default_user"
	}
	checker := opts.CompletionChecker
	if checker == nil {
		checker = DefaultCompletionChecker
	}

	return &Orchestrator{
		proc:         proc,
		maxRetries:   maxRetries,
		maxIter:      opts.MaxIter,
		memory:       opts.Memory,
		knowledge:    opts.Knowledge,
		tools:        opts.Tools,
		userID:       userID,
		runID:        uuid.NewString(),
		verbose:      opts.Verbose,
		checker:      checker,
		tracer:       observability.GetTracer("maestro.orchestrator"),
		agentsByName: make(map[string]*agent.Agent),
		state:        make(map[string]any),
	}
}

// RunID identifies this run in memory metadata and logs.
func (o *Orchestrator) RunID() string { return o.runID }

// AddAgent registers an agent under its name.
func (o *Orchestrator) AddAgent(a *agent.Agent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.agents = append(o.agents, a)
	o.agentsByName[a.Name()] = a
}

// AddTask registers a task and returns its id: the insertion index,
// stable for the lifetime of the run.
func (o *Orchestrator) AddTask(t *task.Task) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	t.ID = len(o.tasks)
	if t.Status == "" {
		t.Status = task.StatusNotStarted
	}
	o.tasks = append(o.tasks, t)
	return t.ID
}

// Tasks returns the registered tasks in registration order.
func (o *Orchestrator) Tasks() []*task.Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*task.Task(nil), o.tasks...)
}

// Task resolves a task by id.
func (o *Orchestrator) Task(id int) (*task.Task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if id < 0 || id >= len(o.tasks) {
		return nil, false
	}
	return o.tasks[id], true
}

// TaskByName resolves a task by display name.
func (o *Orchestrator) TaskByName(name string) (*task.Task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, t := range o.tasks {
		if t.DisplayName() == name {
			return t, true
		}
	}
	return nil, false
}

// RegisterTask lets a process add tasks mid-run (loop children, the
// hierarchical manager task).
func (o *Orchestrator) RegisterTask(t *task.Task) int {
	return o.AddTask(t)
}

// AssignAgent rebinds a task to a named agent.
func (o *Orchestrator) AssignAgent(id int, agentName string) error {
	t, ok := o.Task(id)
	if !ok {
		return fmt.Errorf("%w: unknown task id %d", ErrConfig, id)
	}
	o.mu.Lock()
	_, known := o.agentsByName[agentName]
	o.mu.Unlock()
	if !known {
		return fmt.Errorf("%w: unknown agent %q", ErrConfig, agentName)
	}
	t.Agent = agentName
	return nil
}

// MaxIter forwards the workflow iteration bound.
func (o *Orchestrator) MaxIter() int { return o.maxIter }

// RunResult is the outcome of a run: final status and output per task.
type RunResult struct {
	RunID    string
	Statuses map[int]task.Status
	Results  map[int]*task.Output
}

// Start runs all registered tasks under the configured process. The
// returned error is non-nil only for cancellation or construction
// failures; ordinary task failures are reported through statuses.
func (o *Orchestrator) Start(ctx context.Context) (*RunResult, error) {
	if err := o.autoWire(); err != nil {
		return nil, err
	}

	slog.Info("Starting run",
		"run_id", o.runID,
		"process", o.proc.Name(),
		"agents", len(o.agents),
		"tasks", len(o.tasks))

	if _, isWorkflow := o.proc.(*process.Workflow); isWorkflow {
		if err := o.runAsyncStartBatch(ctx); err != nil {
			return o.snapshot(), err
		}
	}

	ctx, span := o.tracer.Start(ctx, observability.SpanProcessRun)
	err := o.proc.Run(ctx, o)
	span.End()
	return o.snapshot(), err
}

// Status returns a task's current status.
func (o *Orchestrator) Status(id int) (task.Status, bool) {
	t, ok := o.Task(id)
	if !ok {
		return "", false
	}
	return t.Status, true
}

// Result returns a task's output, nil until it has one.
func (o *Orchestrator) Result(id int) (*task.Output, bool) {
	t, ok := o.Task(id)
	if !ok {
		return nil, false
	}
	return t.Result, true
}

func (o *Orchestrator) snapshot() *RunResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	result := &RunResult{
		RunID:    o.runID,
		Statuses: make(map[int]task.Status, len(o.tasks)),
		Results:  make(map[int]*task.Output, len(o.tasks)),
	}
	for _, t := range o.tasks {
		result.Statuses[t.ID] = t.Status
		if t.Result != nil {
			result.Results[t.ID] = t.Result
		}
	}
	return result
}

// autoWire applies the registration-order defaults: generate one task
// per agent when none are declared, and chain tasks sequentially when
// the process is sequential or no task declares next_tasks.
func (o *Orchestrator) autoWire() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.agents) == 0 && len(o.tasks) == 0 {
		return fmt.Errorf("%w: nothing to run", ErrConfig)
	}

	if len(o.tasks) == 0 {
		for _, a := range o.agents {
			t := taskFromAgent(a)
			t.ID = len(o.tasks)
			o.tasks = append(o.tasks, t)
		}
	}

	anyNext := false
	for _, t := range o.tasks {
		if len(t.NextTasks) > 0 {
			anyNext = true
			break
		}
	}

	if o.proc.Name() == process.KindSequential || !anyNext {
		for i := 0; i+1 < len(o.tasks); i++ {
			cur, next := o.tasks[i], o.tasks[i+1]
			if len(cur.NextTasks) == 0 {
				cur.NextTasks = []string{next.DisplayName()}
			}
			next.Context = append(next.Context, task.ContextItem{TaskName: cur.DisplayName()})
		}
	}
	return nil
}

// taskFromAgent derives a default task from an agent's declaration.
func taskFromAgent(a *agent.Agent) *task.Task {
	description := a.Instructions()
	if description == "" {
		description = fmt.Sprintf("Perform the work of %s.", a.Role())
	}
	return &task.Task{
		Name:           a.Name(),
		Description:    description,
		ExpectedOutput: "A clear, complete result of the work.",
		Agent:          a.Name(),
		QualityCheck:   true,
		Status:         task.StatusNotStarted,
	}
}

// runAsyncStartBatch executes, in parallel, the workflow start tasks
// marked async_execution before the ordinary walk begins. No ordering
// is guaranteed inside the batch. The tasks lose their start flag so
// the walk does not revisit them.
func (o *Orchestrator) runAsyncStartBatch(ctx context.Context) error {
	var batch []*task.Task
	for _, t := range o.Tasks() {
		if t.IsStart && t.AsyncExecution {
			batch = append(batch, t)
		}
	}
	if len(batch) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range batch {
		id := t.ID
		g.Go(func() error {
			return o.ExecuteTask(gctx, id, "")
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, t := range batch {
		t.IsStart = false
	}
	return nil
}

// ExecuteTask runs one task through the retry loop. It returns an
// error only for cancellation; retry exhaustion leaves the task in its
// last status.
func (o *Orchestrator) ExecuteTask(ctx context.Context, id int, inject string) error {
	t, ok := o.Task(id)
	if !ok {
		return fmt.Errorf("%w: unknown task id %d", ErrConfig, id)
	}

	ctx, span := o.tracer.Start(ctx, observability.SpanTaskExecution,
		trace.WithAttributes(attribute.Int(observability.AttrTaskID, t.ID)))
	defer func() {
		span.SetAttributes(attribute.String(observability.AttrTaskStatus, string(t.Status)))
		span.End()
	}()

	for attempt := 0; attempt < o.maxRetries; attempt++ {
		if ctx.Err() != nil {
			t.Status = task.StatusFailed
			return ctx.Err()
		}

		switch t.Status {
		case task.StatusCompleted:
			return nil
		case task.StatusFailed:
			t.Status = task.StatusInProgress
		}

		err := o.runTask(ctx, t, inject)
		if err != nil {
			if ctx.Err() != nil {
				t.Status = task.StatusFailed
				return ctx.Err()
			}
			t.Status = task.StatusFailed
			slog.Warn("Task attempt failed",
				"task", t.DisplayName(), "attempt", attempt+1, "error", err)
			if !retryable(err) {
				return nil
			}
		} else if o.checker(t) {
			t.Status = task.StatusCompleted
			o.afterCompletion(ctx, t)
			return nil
		} else {
			t.Status = task.StatusFailed
			slog.Warn("Task output rejected by completion checker",
				"task", t.DisplayName(), "attempt", attempt+1)
		}

		if attempt+1 < o.maxRetries {
			select {
			case <-ctx.Done():
				t.Status = task.StatusFailed
				return ctx.Err()
			case <-time.After(retrySleep):
			}
		}
	}
	return nil
}

// runTask performs a single attempt: build the prompt, dispatch to the
// agent, post-process the output.
func (o *Orchestrator) runTask(ctx context.Context, t *task.Task, inject string) error {
	t.Status = task.StatusInProgress

	ag, err := o.agentFor(t)
	if err != nil {
		return err
	}

	prompt := o.buildPrompt(ctx, t, inject)

	chatOpts, err := o.chatOptions(t)
	if err != nil {
		return err
	}

	if t.MaxExecutionTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(t.MaxExecutionTime)*time.Second)
		defer cancel()
	}

	var raw string
	if len(t.Images) > 0 {
		parts, err := buildImageParts(prompt, t.Images)
		if err != nil {
			return err
		}
		raw, err = ag.ChatMultimodal(ctx, parts, chatOpts...)
		if err != nil {
			return err
		}
	} else {
		raw, err = ag.Chat(ctx, prompt, chatOpts...)
		if err != nil {
			return err
		}
	}

	out := task.NewOutput(t.Description, raw, ag.Name())
	if t.OutputSchema != nil {
		if err := out.ParseTyped(t.OutputSchema); err != nil {
			slog.Warn("Typed output validation failed, keeping raw",
				"task", t.DisplayName(), "error", err)
		}
	} else if t.OutputJSON {
		if err := out.ParseJSON(); err != nil {
			slog.Warn("JSON output parse failed, keeping raw",
				"task", t.DisplayName(), "error", err)
		}
	}
	t.Result = out
	return nil
}

func (o *Orchestrator) agentFor(t *task.Task) (*agent.Agent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if t.Agent != "" {
		if a, ok := o.agentsByName[t.Agent]; ok {
			return a, nil
		}
		return nil, fmt.Errorf("%w: task %q references unknown agent %q", ErrConfig, t.DisplayName(), t.Agent)
	}
	if len(o.agents) > 0 {
		return o.agents[0], nil
	}
	return nil, fmt.Errorf("%w: task %q has no agent", ErrConfig, t.DisplayName())
}

func (o *Orchestrator) chatOptions(t *task.Task) ([]agent.ChatOption, error) {
	var opts []agent.ChatOption

	if len(t.Tools) > 0 && o.tools != nil {
		resolved, err := o.tools.Resolve(t.Tools)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
		opts = append(opts, agent.WithTools(resolved))
	}

	if t.OutputSchema != nil {
		opts = append(opts, agent.WithOutputTyped(t.OutputSchema))
	} else if t.OutputJSON {
		opts = append(opts, agent.WithOutputJSON(map[string]interface{}{"type": "object"}))
	}
	return opts, nil
}

// afterCompletion persists the output file, promotes the output to
// memory, and fires the task callback.
func (o *Orchestrator) afterCompletion(ctx context.Context, t *task.Task) {
	out := t.Result

	if t.OutputFile != "" {
		if err := out.WriteFile(t.OutputFile, t.CreateDirectory); err != nil {
			slog.Warn("Failed to write output file",
				"task", t.DisplayName(), "file", t.OutputFile, "error", err)
		}
	}

	if o.memory != nil {
		quality := 0.0
		if t.QualityCheck && o.memory.HasJudge() {
			metrics := o.memory.CalculateQualityMetrics(ctx, out.Raw, t.ExpectedOutput)
			quality = metrics.Accuracy
		}
		extra := map[string]any{
			memory.MetaTaskID: t.ID,
			memory.MetaRunID:  o.runID,
			memory.MetaUserID: o.userID,
		}
		if err := o.memory.FinalizeTaskOutput(ctx, out.Raw, out.Agent, quality, o.memory.PromotionThreshold(), extra); err != nil {
			slog.Warn("Memory promotion failed", "task", t.DisplayName(), "error", err)
		}
	}

	if t.Callback != nil {
		if t.AsyncCallback {
			go t.Callback(out)
		} else {
			t.Callback(out)
		}
	}

	if o.verbose {
		slog.Info("Task completed", "task", t.DisplayName(), "agent", out.Agent, "summary", out.Summary)
	}
}

// DefaultCompletionChecker accepts a JSON output with content, a typed
// output that validated, or any non-blank raw text.
func DefaultCompletionChecker(t *task.Task) bool {
	out := t.Result
	if out == nil {
		return false
	}
	if t.OutputJSON {
		return len(out.JSON) > 0
	}
	if t.OutputSchema != nil {
		return out.Typed != nil
	}
	return strings.TrimSpace(out.Raw) != ""
}

// SetState stores a run-scoped scratch value.
func (o *Orchestrator) SetState(key string, value any) {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	o.state[key] = value
}

// GetState reads a run-scoped scratch value.
func (o *Orchestrator) GetState(key string) (any, bool) {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	v, ok := o.state[key]
	return v, ok
}

// UpdateState applies a read-modify-write atomically. This is the only
// atomicity guarantee offered to concurrent callbacks.
func (o *Orchestrator) UpdateState(key string, fn func(current any) any) {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	o.state[key] = fn(o.state[key])
}

// ClearState drops all scratch values.
func (o *Orchestrator) ClearState() {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	o.state = make(map[string]any)
}

var _ process.Executor = (*Orchestrator)(nil)
