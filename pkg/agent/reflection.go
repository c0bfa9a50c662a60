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

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kadirpekel/maestro/pkg/llms"
)

const reflectionPrompt = "Reflect on your previous response. " +
	"Identify what could be improved and judge whether the response fully satisfies the request."

const regeneratePrompt = "Now regenerate your response using the reflection you made"

var reflectionSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"reflection":   map[string]interface{}{"type": "string"},
		"satisfactory": map[string]interface{}{"type": "string", "enum": []string{"yes", "no"}},
	},
	"required":             []string{"reflection", "satisfactory"},
	"additionalProperties": false,
}

type reflectionResult struct {
	Reflection   string `json:"reflection"`
	Satisfactory string `json:"satisfactory"`
}

// reflect runs the self-reflection loop: critique the current
// response, and regenerate until the critique is satisfied (but at
// least minReflect rounds) or maxReflect rounds have run. Reflection
// traffic never reaches the agent's history.
func (a *Agent) reflect(ctx context.Context, messages []llms.Message, current string, genOpts *llms.GenerateOptions) (string, error) {
	messages = append(messages, llms.Message{Role: llms.RoleAssistant, Content: current})

	structuredOpts := &llms.GenerateOptions{
		Temperature: genOpts.Temperature,
		Structured: &llms.StructuredOutputConfig{
			Format: "json",
			Schema: reflectionSchema,
		},
	}

	for round := 0; round < a.maxReflect; round++ {
		reflectMessages := append(append([]llms.Message(nil), messages...), llms.Message{
			Role:    llms.RoleUser,
			Content: reflectionPrompt,
		})

		text, _, _, err := a.reflectLLM.Generate(ctx, reflectMessages, nil, structuredOpts)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			// a failed reflection costs the attempt, not the chat
			slog.Warn("Reflection call failed", "agent", a.Name(), "round", round+1, "error", err)
			continue
		}

		var result reflectionResult
		if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &result); err != nil {
			slog.Warn("Reflection output unparsable", "agent", a.Name(), "round", round+1, "error", err)
			continue
		}

		if strings.EqualFold(result.Satisfactory, "yes") && round+1 >= a.minReflect {
			return current, nil
		}

		messages = append(messages,
			llms.Message{Role: llms.RoleUser, Content: fmt.Sprintf("Reflection: %s\n%s", result.Reflection, regeneratePrompt)},
		)

		regenerated, _, _, err := a.llm.Generate(ctx, messages, nil, genOpts)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("%w: %v", ErrLLM, err)
		}

		current = regenerated
		messages = append(messages, llms.Message{Role: llms.RoleAssistant, Content: current})
	}

	// max rounds exhausted: last response stands
	return current, nil
}
