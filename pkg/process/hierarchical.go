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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kadirpekel/maestro/pkg/agent"
	"github.com/kadirpekel/maestro/pkg/config"
	"github.com/kadirpekel/maestro/pkg/llms"
	"github.com/kadirpekel/maestro/pkg/task"
)

const managerRole = "Project manager"

// managerDecision is the structured verdict the manager model returns
// each round.
type managerDecision struct {
	TaskID    int    `json:"task_id"`
	AgentName string `json:"agent_name"`
	Action    string `json:"action"`
}

var managerSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"task_id":    map[string]interface{}{"type": "integer"},
		"agent_name": map[string]interface{}{"type": "string"},
		"action":     map[string]interface{}{"type": "string", "enum": []string{"execute", "stop"}},
	},
	"required":             []string{"task_id", "agent_name", "action"},
	"additionalProperties": false,
}

// Hierarchical delegates scheduling to a manager model: each round the
// manager inspects the task board and either dispatches one task to an
// agent or stops the run.
type Hierarchical struct {
	// ManagerLLM drives the manager agent (required).
	ManagerLLM llms.LLMProvider

	// OnEmit observes each dispatched task.
	OnEmit func(*task.Task)
}

func NewHierarchical(managerLLM llms.LLMProvider) *Hierarchical {
	return &Hierarchical{ManagerLLM: managerLLM}
}

func (h *Hierarchical) Name() string { return KindHierarchical }

func (h *Hierarchical) Run(ctx context.Context, exec Executor) error {
	if h.ManagerLLM == nil {
		return fmt.Errorf("hierarchical process requires a manager llm")
	}

	total := len(exec.Tasks())
	if total == 0 {
		return nil
	}

	mgrCfg := config.AgentConfig{
		Name: managerRole,
		Role: managerRole,
		Goal: "Coordinate the team: pick the next task, assign the best agent, and stop when everything is done.",
	}
	mgrCfg.SetDefaults()
	manager, err := agent.New(mgrCfg, agent.Options{LLM: h.ManagerLLM})
	if err != nil {
		return fmt.Errorf("failed to create manager agent: %w", err)
	}

	managerTask := &task.Task{
		Name:        "Manage team execution",
		Description: "Assign tasks to agents and supervise the run until all tasks are complete.",
		Agent:       managerRole,
		Status:      task.StatusInProgress,
	}
	managerID := exec.RegisterTask(managerTask)

	completed := 0
	for _, t := range exec.Tasks() {
		if t.ID != managerID && t.Status == task.StatusCompleted {
			completed++
		}
	}

	// Guard against a manager that dispatches without converging.
	maxRounds := 3*total + 3

	for round := 0; completed < total && round < maxRounds; round++ {
		prompt := h.buildManagerPrompt(exec, managerID)

		text, err := manager.Chat(ctx, prompt, agent.WithOutputJSON(managerSchema))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("Manager call failed, stopping dispatch", "error", err)
			break
		}

		var decision managerDecision
		if err := json.Unmarshal([]byte(task.CleanJSONFences(text)), &decision); err != nil {
			slog.Warn("Manager decision unparsable, stopping dispatch", "error", err)
			break
		}

		if strings.EqualFold(decision.Action, "stop") {
			break
		}

		selected, ok := exec.Task(decision.TaskID)
		if !ok || selected.ID == managerID {
			slog.Error("Manager selected an unknown task, stopping dispatch", "task_id", decision.TaskID)
			break
		}

		if decision.AgentName != "" && decision.AgentName != selected.Agent {
			if err := exec.AssignAgent(selected.ID, decision.AgentName); err != nil {
				slog.Warn("Manager assignment rejected, keeping current agent",
					"task", selected.DisplayName(), "agent", decision.AgentName, "error", err)
			}
		}

		if h.OnEmit != nil {
			h.OnEmit(selected)
		}

		wasCompleted := selected.Status == task.StatusCompleted
		if err := exec.ExecuteTask(ctx, selected.ID, ""); err != nil {
			return err
		}
		if !wasCompleted && selected.Status == task.StatusCompleted {
			completed++
		}
	}

	managerTask.Status = task.StatusCompleted
	return nil
}

// buildManagerPrompt renders the task board the manager decides over.
func (h *Hierarchical) buildManagerPrompt(exec Executor, managerID int) string {
	type boardEntry struct {
		TaskID      int    `json:"task_id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Status      string `json:"status"`
		Agent       string `json:"agent"`
	}

	var board []boardEntry
	for _, t := range exec.Tasks() {
		if t.ID == managerID {
			continue
		}
		board = append(board, boardEntry{
			TaskID:      t.ID,
			Name:        t.DisplayName(),
			Description: t.Description,
			Status:      string(t.Status),
			Agent:       t.Agent,
		})
	}

	encoded, _ := json.MarshalIndent(board, "", "  ")
	return fmt.Sprintf(
		"Here is the current task board:\n%s\n\n"+
			"Pick the next task to execute and the agent to run it, or stop when all tasks are completed.",
		encoded)
}
