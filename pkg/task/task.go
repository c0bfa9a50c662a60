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

// Package task models a declarative unit of work executed by an agent,
// its lifecycle, and its output post-processing.
package task

import (
	"fmt"
	"strings"

	"github.com/kadirpekel/maestro/pkg/config"
)

// Status is a task's execution state.
type Status string

const (
	StatusNotStarted Status = "not started"
	StatusInProgress Status = "in progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Type distinguishes plain tasks from workflow control tasks.
type Type string

const (
	TypeTask     Type = "task"
	TypeDecision Type = "decision"
	TypeLoop     Type = "loop"
)

// ContextItem is one element of a task's context sequence. Exactly one
// field is set.
type ContextItem struct {
	// Text is a literal string injected verbatim.
	Text string

	// List is a literal list joined by spaces.
	List []string

	// TaskName references another task in the same run; the completed
	// task's raw output is injected.
	TaskName string

	// Knowledge triggers a knowledge search with the task description.
	Knowledge *KnowledgeRef
}

// KnowledgeRef names the knowledge store a context item queries.
type KnowledgeRef struct {
	VectorStore string
}

// Task is the runtime representation of a unit of work. The ID is
// assigned by the orchestrator on registration and never changes.
type Task struct {
	ID   int
	Name string

	Description    string
	ExpectedOutput string
	Agent          string
	Tools          []string

	TaskType  Type
	IsStart   bool
	NextTasks []string
	// PreviousTasks is derived from other tasks' NextTasks by the
	// workflow preamble.
	PreviousTasks []string
	Context       []ContextItem

	// Condition maps a lowercase decision label to next task names.
	// The literal "exit" (or "") terminates the workflow.
	Condition map[string][]string

	InputFile      string
	AsyncExecution bool

	OutputJSON      bool
	OutputSchema    map[string]interface{}
	OutputFile      string
	CreateDirectory bool

	Images []string

	// QualityCheck gates LLM-judged scoring before memory promotion.
	QualityCheck bool

	// MaxExecutionTime caps the chat loop, in seconds. Zero means no cap.
	MaxExecutionTime int

	// Callback runs after the task completes. When Async is true the
	// orchestrator does not wait for it.
	Callback      func(*Output)
	AsyncCallback bool

	Status Status
	Result *Output
}

// FromConfig builds a runtime task from its declaration.
func FromConfig(cfg config.TaskConfig) *Task {
	condition := make(map[string][]string, len(cfg.Condition))
	for label, targets := range cfg.Condition {
		condition[strings.ToLower(label)] = targets
	}

	var items []ContextItem
	for _, name := range cfg.Context {
		items = append(items, ContextItem{TaskName: name})
	}

	qualityCheck := true
	if cfg.QualityCheck != nil {
		qualityCheck = *cfg.QualityCheck
	}

	return &Task{
		Name:             cfg.Name,
		Description:      cfg.Description,
		ExpectedOutput:   cfg.ExpectedOutput,
		Agent:            cfg.Agent,
		Tools:            cfg.Tools,
		TaskType:         Type(cfg.TaskType),
		IsStart:          cfg.IsStart,
		NextTasks:        append([]string(nil), cfg.NextTasks...),
		Context:          items,
		Condition:        condition,
		InputFile:        cfg.InputFile,
		AsyncExecution:   cfg.AsyncExecution,
		OutputJSON:       cfg.OutputJSON,
		OutputSchema:     cfg.OutputSchema,
		OutputFile:       cfg.OutputFile,
		CreateDirectory:  cfg.CreateDirectory,
		Images:           append([]string(nil), cfg.Images...),
		QualityCheck:     qualityCheck,
		MaxExecutionTime: cfg.MaxExecutionTime,
		Status:           StatusNotStarted,
	}
}

// DisplayName is the task's name, falling back to its description.
func (t *Task) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Description
}

// Validate checks declaration-level invariants.
func (t *Task) Validate() error {
	if t.Description == "" {
		return fmt.Errorf("task description is required")
	}
	if t.OutputJSON && t.OutputSchema != nil {
		// JSON parse and typed validation are mutually exclusive
		// output declarations
		return fmt.Errorf("task %q declares both output_json and output_schema", t.DisplayName())
	}
	switch t.TaskType {
	case TypeTask, TypeDecision, TypeLoop, "":
	default:
		return fmt.Errorf("task %q has invalid task_type %q", t.DisplayName(), t.TaskType)
	}
	return nil
}
