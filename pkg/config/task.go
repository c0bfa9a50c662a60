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

import "fmt"

// TaskConfig configures a single task.
type TaskConfig struct {
	// Name is the unique task handle.
	Name string `yaml:"name"`

	// Description is the work to perform. May contain {placeholder}
	// tokens resolved by the caller before a run.
	Description string `yaml:"description,omitempty"`

	// ExpectedOutput describes the desired result shape.
	ExpectedOutput string `yaml:"expected_output,omitempty"`

	// Agent names the agent assigned to this task. Empty means
	// unassigned (hierarchical manager may assign at runtime).
	Agent string `yaml:"agent,omitempty"`

	// Tools overrides the agent's tool set for this task.
	Tools []string `yaml:"tools,omitempty"`

	// TaskType is one of: task, decision, loop.
	TaskType string `yaml:"task_type,omitempty"`

	// IsStart marks a workflow entry point.
	IsStart bool `yaml:"is_start,omitempty"`

	// NextTasks are forward edges to other tasks by name.
	NextTasks []string `yaml:"next_tasks,omitempty"`

	// Context names tasks whose results feed into this task's prompt.
	Context []string `yaml:"context,omitempty"`

	// Condition maps a decision label to next task name(s), or the
	// literal "exit".
	Condition map[string][]string `yaml:"condition,omitempty"`

	// InputFile seeds a loop task: CSV (first column), XLSX (first
	// column), or plain text (one item per line).
	InputFile string `yaml:"input_file,omitempty"`

	// AsyncExecution allows parallel execution of workflow start tasks.
	AsyncExecution bool `yaml:"async_execution,omitempty"`

	// OutputJSON requests a JSON object response validated against
	// OutputSchema when present.
	OutputJSON bool `yaml:"output_json,omitempty"`

	// OutputSchema is a JSON schema applied to the response. With
	// OutputJSON false the output is validated as typed output.
	OutputSchema map[string]interface{} `yaml:"output_schema,omitempty"`

	// OutputFile persists the raw result to a path.
	OutputFile string `yaml:"output_file,omitempty"`

	// CreateDirectory creates intermediate directories for OutputFile.
	CreateDirectory bool `yaml:"create_directory,omitempty"`

	// Images attaches local paths or HTTP(S) URLs as multimodal parts.
	Images []string `yaml:"images,omitempty"`

	// QualityCheck controls memory promotion after completion.
	QualityCheck *bool `yaml:"quality_check,omitempty"`

	// MaxExecutionTime caps a single execution attempt, in seconds.
	MaxExecutionTime int `yaml:"max_execution_time,omitempty"`
}

// SetDefaults applies default values.
func (c *TaskConfig) SetDefaults() {
	if c.TaskType == "" {
		c.TaskType = "task"
	}
	if c.QualityCheck == nil {
		t := true
		c.QualityCheck = &t
	}
}

// Validate checks the task configuration.
func (c *TaskConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("task name is required")
	}
	switch c.TaskType {
	case "task", "decision", "loop":
	default:
		return fmt.Errorf("invalid task_type %q (valid: task, decision, loop)", c.TaskType)
	}
	return nil
}
