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

// Package process implements the task scheduling strategies: sequential,
// workflow (a bounded state machine over the task graph), and
// hierarchical (an LLM manager dispatching tasks to agents).
//
// A Process decides which task runs next; the Executor (implemented by
// the orchestrator) owns execution, retries, and agent binding.
package process

import (
	"context"

	"github.com/kadirpekel/maestro/pkg/task"
)

// Process kinds accepted in configuration.
const (
	KindSequential   = "sequential"
	KindWorkflow     = "workflow"
	KindHierarchical = "hierarchical"
)

// Executor is the orchestrator surface a Process drives. ExecuteTask
// runs the task's full retry loop and returns an error only on
// cancellation; ordinary task failure is reflected in the task status.
type Executor interface {
	// Tasks returns all registered tasks in registration order.
	Tasks() []*task.Task

	// Task resolves a task by its id.
	Task(id int) (*task.Task, bool)

	// TaskByName resolves a task by display name.
	TaskByName(name string) (*task.Task, bool)

	// RegisterTask adds a task mid-run (loop children, manager task)
	// and returns its id.
	RegisterTask(t *task.Task) int

	// ExecuteTask runs one task to completion or retry exhaustion.
	// inject is extra prompt context supplied by the process; empty
	// for strategies that do not inject.
	ExecuteTask(ctx context.Context, id int, inject string) error

	// AssignAgent rebinds a task to a named agent.
	AssignAgent(id int, agentName string) error

	// MaxIter bounds workflow emissions. Non-positive means default.
	MaxIter() int
}

// Process walks the registered tasks in strategy order.
type Process interface {
	Name() string
	Run(ctx context.Context, exec Executor) error
}
