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

// Package maestro orchestrates crews of LLM agents over declarative
// task graphs.
//
// A crew is described in YAML: LLM providers, agents with roles and
// goals, tasks with context dependencies, an execution process
// (sequential, workflow, or hierarchical), and an optional layered
// memory subsystem.
//
// # Quick Start
//
// Install the CLI:
//
//	go install github.com/kadirpekel/maestro/cmd/maestro@latest
//
// Create a crew configuration:
//
//	llms:
//	  main:
//	    type: "openai"
//	    model: "gpt-4o-mini"
//	    api_key: "${OPENAI_API_KEY}"
//
//	agents:
//	  - name: "Researcher"
//	    role: "Research analyst"
//	    goal: "Find accurate, relevant facts"
//	    llm: "main"
//
//	tasks:
//	  - name: "Research"
//	    description: "List the first five prime numbers"
//	    expected_output: "A comma-separated list"
//	    agent: "Researcher"
//
// Run it:
//
//	maestro run crew.yaml
//
// # Using as a Go Library
//
// Import the packages directly:
//
//	import (
//		"github.com/kadirpekel/maestro/pkg/config"
//		"github.com/kadirpekel/maestro/pkg/orchestrator"
//	)
//
//	cfg, loader, err := config.LoadConfigFile(ctx, "crew.yaml")
//	...
//	crew, err := orchestrator.FromConfig(cfg, nil)
//	...
//	result, err := crew.Kickoff(ctx)
//
// The building blocks live under pkg/: agent (conversational runtime),
// orchestrator (registries, retries, context assembly), process
// (execution strategies), memory (layered stores with quality-gated
// promotion), llms, embedders, vector, knowledge, and tool.
package maestro
