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
	"sort"
	"strings"

	"github.com/kadirpekel/maestro/pkg/agent"
	"github.com/kadirpekel/maestro/pkg/config"
	"github.com/kadirpekel/maestro/pkg/embedders"
	"github.com/kadirpekel/maestro/pkg/knowledge"
	"github.com/kadirpekel/maestro/pkg/llms"
	"github.com/kadirpekel/maestro/pkg/memory"
	"github.com/kadirpekel/maestro/pkg/process"
	"github.com/kadirpekel/maestro/pkg/task"
	"github.com/kadirpekel/maestro/pkg/tool"
	"github.com/kadirpekel/maestro/pkg/vector"
)

// defaultModelID is used when an agent or the hierarchical manager
// declares no model.
const defaultModelID = "openai/gpt-4o-mini"

// Crew is a fully assembled run: agents, tasks, memory, and process
// built from one declarative configuration.
type Crew struct {
	Orchestrator *Orchestrator

	memory    *memory.Memory
	llms      map[string]llms.LLMProvider
	embedders map[string]embedders.EmbedderProvider
	vectors   map[string]vector.Provider
}

// FromConfig assembles a crew. Tools may be nil when no task or agent
// declares tool names.
func FromConfig(cfg *config.Config, tools *tool.Registry) (*Crew, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	c := &Crew{
		llms:      make(map[string]llms.LLMProvider),
		embedders: make(map[string]embedders.EmbedderProvider),
		vectors:   make(map[string]vector.Provider),
	}

	mem, err := c.buildMemory(cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.memory = mem

	proc, err := c.buildProcess(cfg)
	if err != nil {
		c.Close()
		return nil, err
	}

	o := New(Options{
		Process:    proc,
		MaxRetries: cfg.MaxRetries,
		MaxIter:    cfg.Process.MaxIter,
		Memory:     mem,
		Tools:      tools,
		UserID:     cfg.UserID,
	})

	for i := range cfg.Agents {
		a, err := c.buildAgent(cfg, &cfg.Agents[i], tools)
		if err != nil {
			c.Close()
			return nil, err
		}
		o.AddAgent(a)
	}

	for i := range cfg.Tasks {
		o.AddTask(task.FromConfig(cfg.Tasks[i]))
	}

	c.Orchestrator = o
	return c, nil
}

// Kickoff runs the crew to completion.
func (c *Crew) Kickoff(ctx context.Context) (*RunResult, error) {
	return c.Orchestrator.Start(ctx)
}

// Close releases all providers the crew constructed.
func (c *Crew) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if c.memory != nil {
		keep(c.memory.Close())
	}
	for _, p := range c.llms {
		keep(p.Close())
	}
	for _, e := range c.embedders {
		keep(e.Close())
	}
	for _, v := range c.vectors {
		keep(v.Close())
	}
	return firstErr
}

// resolveLLM returns a provider for a config entry name or a
// provider-prefixed model id, constructing it once per crew.
func (c *Crew) resolveLLM(cfg *config.Config, name string) (llms.LLMProvider, error) {
	if name == "" {
		name = defaultModelID
	}
	if p, ok := c.llms[name]; ok {
		return p, nil
	}

	var (
		p   llms.LLMProvider
		err error
	)
	if entry, ok := cfg.LLMs[name]; ok {
		p, err = llms.NewProviderFromConfig(&entry)
	} else if strings.Contains(name, "/") {
		p, err = llms.NewProviderFromModelID(name)
	} else {
		return nil, fmt.Errorf("%w: unknown llm %q", ErrConfig, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: llm %q: %v", ErrConfig, name, err)
	}
	c.llms[name] = p
	return p, nil
}

func (c *Crew) resolveEmbedder(cfg *config.Config, name string) (embedders.EmbedderProvider, error) {
	if name == "" {
		// deterministic fallback: first configured embedder by name
		names := make([]string, 0, len(cfg.Embedders))
		for n := range cfg.Embedders {
			names = append(names, n)
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("%w: no embedders configured", ErrConfig)
		}
		sort.Strings(names)
		name = names[0]
	}
	if e, ok := c.embedders[name]; ok {
		return e, nil
	}

	entry, ok := cfg.Embedders[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown embedder %q", ErrConfig, name)
	}
	e, err := embedders.NewProviderFromConfig(&entry)
	if err != nil {
		return nil, fmt.Errorf("%w: embedder %q: %v", ErrConfig, name, err)
	}
	c.embedders[name] = e
	return e, nil
}

func (c *Crew) resolveVector(cfg *config.Config, name string) (vector.Provider, *config.VectorStoreConfig, error) {
	entry, ok := cfg.VectorStores[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown vector store %q", ErrConfig, name)
	}
	if v, ok := c.vectors[name]; ok {
		return v, &entry, nil
	}
	v, err := vector.NewProviderFromConfig(&entry)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: vector store %q: %v", ErrConfig, name, err)
	}
	c.vectors[name] = v
	return v, &entry, nil
}

func (c *Crew) buildMemory(cfg *config.Config) (*memory.Memory, error) {
	if cfg.Memory == nil {
		return nil, nil
	}

	var opts memory.Options

	if cfg.Memory.Provider == "vector" {
		emb, err := c.resolveEmbedder(cfg, cfg.Memory.Embedder)
		if err != nil {
			return nil, err
		}
		opts.Embedder = emb

		if cfg.Memory.VectorStore != "" {
			v, _, err := c.resolveVector(cfg, cfg.Memory.VectorStore)
			if err != nil {
				return nil, err
			}
			opts.VectorProvider = v
		}
	}

	if cfg.Memory.JudgeLLM != "" {
		judge, err := c.resolveLLM(cfg, cfg.Memory.JudgeLLM)
		if err != nil {
			return nil, err
		}
		opts.Judge = judge
	}

	mem, err := memory.New(cfg.Memory, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: memory: %v", ErrConfig, err)
	}
	return mem, nil
}

func (c *Crew) buildProcess(cfg *config.Config) (process.Process, error) {
	switch cfg.Process.Type {
	case process.KindSequential:
		return process.NewSequential(), nil
	case process.KindWorkflow:
		return process.NewWorkflow(), nil
	case process.KindHierarchical:
		manager, err := c.resolveLLM(cfg, cfg.Process.ManagerLLM)
		if err != nil {
			return nil, err
		}
		return process.NewHierarchical(manager), nil
	default:
		return nil, fmt.Errorf("%w: unknown process type %q", ErrConfig, cfg.Process.Type)
	}
}

func (c *Crew) buildAgent(cfg *config.Config, ac *config.AgentConfig, tools *tool.Registry) (*agent.Agent, error) {
	llm, err := c.resolveLLM(cfg, ac.LLM)
	if err != nil {
		return nil, err
	}

	opts := agent.Options{LLM: llm, UserID: cfg.UserID}

	if ac.ReflectLLM != "" {
		reflect, err := c.resolveLLM(cfg, ac.ReflectLLM)
		if err != nil {
			return nil, err
		}
		opts.ReflectLLM = reflect
	}

	if len(ac.Tools) > 0 {
		if tools == nil {
			return nil, fmt.Errorf("%w: agent %q declares tools but no tool registry is configured", ErrConfig, ac.Name)
		}
		resolved, err := tools.Resolve(ac.Tools)
		if err != nil {
			return nil, fmt.Errorf("%w: agent %q: %v", ErrConfig, ac.Name, err)
		}
		opts.Tools = resolved
	}

	if ac.KnowledgeStore != "" {
		v, vsCfg, err := c.resolveVector(cfg, ac.KnowledgeStore)
		if err != nil {
			return nil, err
		}
		emb, err := c.resolveEmbedder(cfg, "")
		if err != nil {
			return nil, fmt.Errorf("%w: agent %q knowledge store needs an embedder: %v", ErrConfig, ac.Name, err)
		}
		ks, err := knowledge.New(knowledge.Config{
			Provider:   v,
			Embedder:   emb,
			Collection: vsCfg.Collection,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: agent %q: %v", ErrConfig, ac.Name, err)
		}
		opts.Knowledge = ks
	}

	a, err := agent.New(*ac, opts)
	if err != nil {
		return nil, fmt.Errorf("agent %q: %w", ac.Name, err)
	}
	return a, nil
}
