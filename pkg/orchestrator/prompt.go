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
	"strings"

	"github.com/kadirpekel/maestro/pkg/knowledge"
	"github.com/kadirpekel/maestro/pkg/task"
)

const finalInstruction = "Please provide only the final result of your work. Do not add any conversation or extra explanation."

// buildPrompt renders the full task prompt: description and expected
// output, the context section, process-injected previous results,
// relevant memory, and the closing instruction. Pure with respect to
// the task; the stored description is never mutated.
func (o *Orchestrator) buildPrompt(ctx context.Context, t *task.Task, inject string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You need to do the following task: %s.", t.Description)
	if t.ExpectedOutput != "" {
		fmt.Fprintf(&b, "\nExpected Output: %s.", t.ExpectedOutput)
	}

	if lines := o.contextLines(ctx, t); len(lines) > 0 {
		b.WriteString("\nContext:\n")
		b.WriteString(strings.Join(lines, "\n"))
	}

	if inject != "" {
		b.WriteString(inject)
	}

	if o.memory != nil {
		if mc := o.memory.BuildContextForTask(ctx, t.Description, o.userID, "", 0); mc != "" {
			b.WriteString("\n\nRelevant memory context:\n")
			b.WriteString(mc)
		}
	}

	b.WriteString("\n")
	b.WriteString(finalInstruction)
	return b.String()
}

// contextLines renders the task's context items, deduped while
// preserving order.
func (o *Orchestrator) contextLines(ctx context.Context, t *task.Task) []string {
	var lines []string
	seen := make(map[string]struct{})

	add := func(line string) {
		if line == "" {
			return
		}
		if _, dup := seen[line]; dup {
			return
		}
		seen[line] = struct{}{}
		lines = append(lines, line)
	}

	for _, item := range t.Context {
		switch {
		case item.Text != "":
			add("Input Content:\n" + item.Text)

		case len(item.List) > 0:
			add("Input Content: " + strings.Join(item.List, " "))

		case item.TaskName != "":
			prev, ok := o.TaskByName(item.TaskName)
			if !ok {
				continue
			}
			if prev.Status == task.StatusCompleted && prev.Result != nil {
				add(fmt.Sprintf("Result of previous task %s:\n%s", prev.DisplayName(), prev.Result.Raw))
			} else {
				add(fmt.Sprintf("Previous task %s has no result yet.", prev.DisplayName()))
			}

		case item.Knowledge != nil:
			add(o.knowledgeContext(ctx, t))
		}
	}
	return lines
}

// knowledgeContext runs a knowledge search with the task description
// and inlines the hits. Errors degrade to an error marker line, never
// a failed task.
func (o *Orchestrator) knowledgeContext(ctx context.Context, t *task.Task) string {
	if o.knowledge == nil {
		return "[Vector DB Error]: no knowledge store configured"
	}

	snippets, err := o.knowledge.Search(ctx, t.Description, knowledge.Scope{UserID: o.userID})
	if err != nil {
		return fmt.Sprintf("[Vector DB Error]: %v", err)
	}

	texts := make([]string, 0, len(snippets))
	for _, s := range snippets {
		texts = append(texts, s.Text)
	}
	return "[DB Context]: " + strings.Join(texts, " ")
}
