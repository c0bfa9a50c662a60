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

package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/kadirpekel/maestro/pkg/llms"
)

// Metrics are the four independent quality sub-scores, each in [0, 1].
type Metrics struct {
	Completeness float64 `json:"completeness"`
	Relevance    float64 `json:"relevance"`
	Clarity      float64 `json:"clarity"`
	Accuracy     float64 `json:"accuracy"`
}

// Composite combines the sub-metrics by weighted sum (equal weights)
// and rounds to three decimals.
func (m Metrics) Composite() float64 {
	sum := 0.25*m.Completeness + 0.25*m.Relevance + 0.25*m.Clarity + 0.25*m.Accuracy
	return math.Round(sum*1000) / 1000
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Clamped returns a copy with every sub-metric forced into [0, 1].
func (m Metrics) Clamped() Metrics {
	return Metrics{
		Completeness: clamp01(m.Completeness),
		Relevance:    clamp01(m.Relevance),
		Clarity:      clamp01(m.Clarity),
		Accuracy:     clamp01(m.Accuracy),
	}
}

var metricsSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"completeness": map[string]interface{}{"type": "number"},
		"relevance":    map[string]interface{}{"type": "number"},
		"clarity":      map[string]interface{}{"type": "number"},
		"accuracy":     map[string]interface{}{"type": "number"},
	},
	"required":             []string{"completeness", "relevance", "clarity", "accuracy"},
	"additionalProperties": false,
}

const judgePromptTemplate = `Evaluate the following task output against the expected output.
Score each dimension as a float between 0 and 1.

Task output:
%s

Expected output:
%s

Return a JSON object with the fields completeness, relevance, clarity and accuracy.`

// JudgeQuality asks an LLM to score the four sub-metrics for a task
// output. Failures return zero metrics so the caller degrades rather
// than aborts.
func JudgeQuality(ctx context.Context, judge llms.LLMProvider, output, expected string) Metrics {
	if judge == nil {
		return Metrics{}
	}

	prompt := fmt.Sprintf(judgePromptTemplate, truncate(output, 4000), truncate(expected, 1000))
	messages := []llms.Message{
		{Role: llms.RoleSystem, Content: "You are a strict evaluator of task outputs. Respond only with the requested JSON object."},
		{Role: llms.RoleUser, Content: prompt},
	}

	text, _, _, err := judge.Generate(ctx, messages, nil, &llms.GenerateOptions{
		Structured: &llms.StructuredOutputConfig{
			Format: "json",
			Schema: metricsSchema,
		},
	})
	if err != nil {
		slog.Warn("Quality judgement failed", "error", err)
		return Metrics{}
	}

	var m Metrics
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &m); err != nil {
		slog.Warn("Quality judgement returned unparsable output", "error", err)
		return Metrics{}
	}

	return m.Clamped()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
