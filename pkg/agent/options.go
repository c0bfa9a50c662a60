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
	"fmt"

	"github.com/kadirpekel/maestro/pkg/tool"
)

// chatParams collects per-chat overrides.
type chatParams struct {
	temperature *float64
	tools       []tool.CallableTool
	toolsSet    bool
	outputJSON  map[string]interface{}
	outputTyped map[string]interface{}
	stream      func(chunk string)
}

// ChatOption customizes a single Chat call.
type ChatOption func(*chatParams)

// WithTemperature overrides the sampling temperature for this call.
func WithTemperature(t float64) ChatOption {
	return func(p *chatParams) { p.temperature = &t }
}

// WithTools replaces the agent's tool set for this call. An empty
// slice disables tools entirely.
func WithTools(tools []tool.CallableTool) ChatOption {
	return func(p *chatParams) {
		p.tools = tools
		p.toolsSet = true
	}
}

// WithOutputJSON requests a JSON object response described by schema.
func WithOutputJSON(schema map[string]interface{}) ChatOption {
	return func(p *chatParams) { p.outputJSON = schema }
}

// WithOutputTyped requests a schema-validated structured response.
func WithOutputTyped(schema map[string]interface{}) ChatOption {
	return func(p *chatParams) { p.outputTyped = schema }
}

// WithStream delivers response text incrementally to fn. Streaming
// applies to the final response pass only; tool rounds are buffered.
func WithStream(fn func(chunk string)) ChatOption {
	return func(p *chatParams) { p.stream = fn }
}

func (p *chatParams) schema() map[string]interface{} {
	if p.outputJSON != nil {
		return p.outputJSON
	}
	return p.outputTyped
}

func (p *chatParams) validate() error {
	if p.outputJSON != nil && p.outputTyped != nil {
		return fmt.Errorf("%w: at most one of output_json and output_typed may be set", ErrConfig)
	}
	return nil
}
