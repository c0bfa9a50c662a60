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

// Package agent implements the conversational agent runtime: message
// assembly, the tool-call loop, optional self-reflection, and chat
// history discipline.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/maestro/pkg/config"
	"github.com/kadirpekel/maestro/pkg/knowledge"
	"github.com/kadirpekel/maestro/pkg/llms"
	"github.com/kadirpekel/maestro/pkg/observability"
	"github.com/kadirpekel/maestro/pkg/tool"
)

// maxToolRounds bounds the tool-call loop within one chat.
const maxToolRounds = 10

// jsonOnlyInstruction is appended to the user prompt when an output
// schema is declared.
const jsonOnlyInstruction = "\nReturn ONLY a valid JSON object. No other text or explanation."

// Agent is a single conversational agent. It owns its chat history;
// long-term memory belongs to the orchestrator. One chat at a time per
// instance; concurrent callers must use Session clones or SwapHistory.
type Agent struct {
	id           string
	name         string
	role         string
	goal         string
	backstory    string
	instructions string

	llm        llms.LLMProvider
	reflectLLM llms.LLMProvider
	tools      []tool.CallableTool
	knowledge  *knowledge.Store

	selfReflect bool
	minReflect  int
	maxReflect  int

	useSystemPrompt bool
	markdown        bool
	verbose         bool
	temperature     *float64

	userID string

	historyMu sync.Mutex
	history   []llms.Message
	trimmer   *historyTrimmer

	tracer trace.Tracer
}

// Options carries an agent's collaborators.
type Options struct {
	// LLM is the main chat model (required).
	LLM llms.LLMProvider

	// ReflectLLM is used for reflection parsing; falls back to LLM.
	ReflectLLM llms.LLMProvider

	// Tools the agent may invoke.
	Tools []tool.CallableTool

	// Knowledge augments prompts with retrieved snippets when set.
	Knowledge *knowledge.Store

	// UserID scopes knowledge queries.
	UserID string
}

// New creates an agent from its configuration.
func New(cfg config.AgentConfig, opts Options) (*Agent, error) {
	if opts.LLM == nil {
		return nil, fmt.Errorf("%w: agent %q requires an LLM", ErrConfig, cfg.Name)
	}

	useSystemPrompt := true
	if cfg.UseSystemPrompt != nil {
		useSystemPrompt = *cfg.UseSystemPrompt
	}

	minReflect := cfg.MinReflect
	if minReflect < 1 {
		minReflect = 1
	}
	maxReflect := cfg.MaxReflect
	if maxReflect < minReflect {
		maxReflect = minReflect
	}

	reflectLLM := opts.ReflectLLM
	if reflectLLM == nil {
		reflectLLM = opts.LLM
	}

	// names must be unique within the agent's tool set
	seen := make(map[string]struct{}, len(opts.Tools))
	for _, t := range opts.Tools {
		if _, dup := seen[t.Name()]; dup {
			return nil, fmt.Errorf("%w: agent %q has duplicate tool %q", ErrConfig, cfg.Name, t.Name())
		}
		seen[t.Name()] = struct{}{}
	}

	return &Agent{
		id:              uuid.NewString(),
		name:            cfg.Name,
		role:            cfg.Role,
		goal:            cfg.Goal,
		backstory:       cfg.Backstory,
		instructions:    cfg.Instructions,
		llm:             opts.LLM,
		reflectLLM:      reflectLLM,
		tools:           opts.Tools,
		knowledge:       opts.Knowledge,
		selfReflect:     cfg.SelfReflect,
		minReflect:      minReflect,
		maxReflect:      maxReflect,
		useSystemPrompt: useSystemPrompt,
		markdown:        cfg.Markdown,
		verbose:         cfg.Verbose,
		userID:          opts.UserID,
		trimmer:         newHistoryTrimmer(cfg.MaxHistoryTokens),
		tracer:          observability.GetTracer("maestro.agent"),
	}, nil
}

// ID returns the agent's stable UUID.
func (a *Agent) ID() string { return a.id }

// Name returns the agent's configured name, falling back to its role.
func (a *Agent) Name() string {
	if a.name != "" {
		return a.name
	}
	return a.role
}

// Role returns the agent's role.
func (a *Agent) Role() string { return a.role }

// Instructions returns the agent's standing instructions.
func (a *Agent) Instructions() string { return a.instructions }

// Tools returns the agent's default tool set.
func (a *Agent) Tools() []tool.CallableTool { return a.tools }

// Chat runs one conversational turn and returns the final assistant
// text. On success exactly two records are appended to the history:
// the original prompt and the final response.
func (a *Agent) Chat(ctx context.Context, prompt string, opts ...ChatOption) (string, error) {
	userMsg := llms.Message{Role: llms.RoleUser, Content: prompt}
	return a.chat(ctx, userMsg, prompt, opts...)
}

// ChatMultimodal is Chat with a multimodal prompt. Prompt text used
// for knowledge lookup is the concatenation of the text parts.
func (a *Agent) ChatMultimodal(ctx context.Context, parts []llms.ContentPart, opts ...ChatOption) (string, error) {
	userMsg := llms.Message{Role: llms.RoleUser, Parts: parts}
	return a.chat(ctx, userMsg, userMsg.Text(), opts...)
}

func (a *Agent) chat(ctx context.Context, userMsg llms.Message, promptText string, opts ...ChatOption) (string, error) {
	var p chatParams
	for _, opt := range opts {
		opt(&p)
	}
	if err := p.validate(); err != nil {
		return "", err
	}

	ctx, span := a.tracer.Start(ctx, observability.SpanAgentChat,
		trace.WithAttributes(
			attribute.String(observability.AttrAgentName, a.Name()),
			attribute.String(observability.AttrAgentModel, a.llm.GetModelName()),
		))
	defer span.End()

	tools := a.tools
	if p.toolsSet {
		tools = p.tools
	}

	sendMsg := a.augmentUserMessage(ctx, userMsg, promptText, &p)
	messages := a.assembleMessages(sendMsg, &p)

	genOpts := &llms.GenerateOptions{Temperature: p.temperature}
	if p.temperature == nil {
		genOpts.Temperature = a.temperature
	}
	if schema := p.schema(); schema != nil {
		genOpts.Structured = &llms.StructuredOutputConfig{Format: "json", Schema: schema}
	}

	final, messages, err := a.runToolLoop(ctx, messages, tools, genOpts, p.stream)
	if err != nil {
		return "", err
	}

	if a.selfReflect && p.schema() == nil {
		final, err = a.reflect(ctx, messages, final, genOpts)
		if err != nil {
			return "", err
		}
	}

	// Exactly one user and one assistant record per successful chat;
	// tool and reflection traffic stays transient.
	a.historyMu.Lock()
	a.history = append(a.history, userMsg, llms.Message{Role: llms.RoleAssistant, Content: final})
	a.history = a.trimmer.trim(a.history)
	a.historyMu.Unlock()

	if a.verbose {
		slog.Info("Agent chat completed",
			"agent", a.Name(),
			"response_length", len(final))
	}

	return final, nil
}

// augmentUserMessage applies knowledge retrieval and the JSON-only
// instruction to the outgoing copy of the user message. The original
// prompt is what lands in history.
func (a *Agent) augmentUserMessage(ctx context.Context, userMsg llms.Message, promptText string, p *chatParams) llms.Message {
	suffix := ""

	if a.knowledge != nil && promptText != "" {
		snippets, err := a.knowledge.Search(ctx, promptText, knowledge.Scope{
			AgentID: a.id,
			UserID:  a.userID,
		})
		if err != nil {
			slog.Warn("Knowledge search failed", "agent", a.Name(), "error", err)
		} else if len(snippets) > 0 {
			seen := make(map[string]struct{}, len(snippets))
			var texts []string
			for _, s := range snippets {
				if _, dup := seen[s.Text]; dup {
					continue
				}
				seen[s.Text] = struct{}{}
				texts = append(texts, s.Text)
			}
			suffix += "\n\nKnowledge: " + strings.Join(texts, "\n")
		}
	}

	if p.schema() != nil {
		suffix += jsonOnlyInstruction
	}

	if suffix == "" {
		return userMsg
	}

	if len(userMsg.Parts) > 0 {
		parts := append([]llms.ContentPart(nil), userMsg.Parts...)
		for i := range parts {
			if parts[i].Type == llms.ContentPartTypeText {
				parts[i].Text += suffix
				return llms.Message{Role: userMsg.Role, Parts: parts}
			}
		}
		// no text part to extend; prepend one
		parts = append([]llms.ContentPart{{Type: llms.ContentPartTypeText, Text: strings.TrimSpace(suffix)}}, parts...)
		return llms.Message{Role: userMsg.Role, Parts: parts}
	}

	return llms.Message{Role: userMsg.Role, Content: userMsg.Content + suffix}
}

func (a *Agent) assembleMessages(userMsg llms.Message, p *chatParams) []llms.Message {
	var messages []llms.Message

	if a.useSystemPrompt {
		messages = append(messages, llms.Message{
			Role:    llms.RoleSystem,
			Content: a.buildSystemPrompt(p.schema() != nil),
		})
	}

	a.historyMu.Lock()
	messages = append(messages, a.history...)
	a.historyMu.Unlock()

	return append(messages, userMsg)
}

func (a *Agent) buildSystemPrompt(hasSchema bool) string {
	var b strings.Builder

	if a.backstory != "" {
		b.WriteString(a.backstory)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "You are %s.", orDefault(a.role, "a helpful assistant"))
	if a.goal != "" {
		fmt.Fprintf(&b, "\nYour goal is: %s", a.goal)
	}
	if a.instructions != "" {
		b.WriteString("\n" + a.instructions)
	}
	if a.markdown {
		b.WriteString("\nUse markdown formatting in your responses.")
	}
	if hasSchema {
		b.WriteString("\nReturn only a JSON object that matches the requested schema.")
	}

	return b.String()
}

func orDefault(s, def string) string {
	if s != "" {
		return s
	}
	return def
}

// runToolLoop drives the LLM until it stops requesting tools, then
// returns the final assistant text along with the full transient
// message list (for the reflection phase).
func (a *Agent) runToolLoop(ctx context.Context, messages []llms.Message, tools []tool.CallableTool, genOpts *llms.GenerateOptions, stream func(string)) (string, []llms.Message, error) {
	defs := toolDefinitions(tools)

	// No tools in play: stream directly when asked.
	if stream != nil && len(defs) == 0 {
		text, err := a.generateStreaming(ctx, messages, nil, genOpts, stream)
		return text, messages, err
	}

	toolRounds := 0
	for round := 0; round < maxToolRounds; round++ {
		text, toolCalls, tokens, err := a.llm.Generate(ctx, messages, defs, genOpts)
		if err != nil {
			if ctx.Err() != nil {
				return "", messages, ctx.Err()
			}
			return "", messages, fmt.Errorf("%w: %v", ErrLLM, err)
		}
		_ = tokens

		if len(toolCalls) == 0 {
			if stream != nil && toolRounds > 0 {
				// The buffered rounds are done; re-issue the final
				// pass streaming so the caller sees live chunks.
				streamed, serr := a.generateStreaming(ctx, messages, nil, genOpts, stream)
				if serr == nil {
					return streamed, messages, nil
				}
				slog.Warn("Streaming final pass failed, returning buffered response", "error", serr)
			}
			if stream != nil {
				stream(text)
			}
			return text, messages, nil
		}

		toolRounds++
		messages = append(messages, llms.Message{
			Role:      llms.RoleAssistant,
			Content:   text,
			ToolCalls: toolCalls,
		})

		// Results are appended in the order the model emitted calls.
		for _, tc := range toolCalls {
			result := a.executeTool(ctx, tools, tc)
			messages = append(messages, llms.Message{
				Role:       llms.RoleTool,
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
	}

	// Tool budget exhausted; force a final answer without tools.
	text, _, _, err := a.llm.Generate(ctx, messages, nil, genOpts)
	if err != nil {
		return "", messages, fmt.Errorf("%w: %v", ErrLLM, err)
	}
	return text, messages, nil
}

func (a *Agent) executeTool(ctx context.Context, tools []tool.CallableTool, tc *llms.ToolCall) string {
	for _, t := range tools {
		if t.Name() == tc.Name {
			if a.verbose {
				slog.Info("Executing tool", "agent", a.Name(), "tool", tc.Name)
			}
			return tool.Execute(ctx, t, tc.Args)
		}
	}
	// Unknown tool: recoverable, surfaced to the model like any
	// other tool failure.
	return fmt.Sprintf(`{"error": "tool %s not found"}`, tc.Name)
}

func (a *Agent) generateStreaming(ctx context.Context, messages []llms.Message, defs []llms.ToolDefinition, genOpts *llms.GenerateOptions, stream func(string)) (string, error) {
	ch, err := a.llm.GenerateStreaming(ctx, messages, defs, genOpts)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLLM, err)
	}

	var b strings.Builder
	for chunk := range ch {
		if chunk.Error != nil {
			return "", fmt.Errorf("%w: %v", ErrLLM, chunk.Error)
		}
		if chunk.Text != "" {
			b.WriteString(chunk.Text)
			stream(chunk.Text)
		}
	}
	return b.String(), nil
}

func toolDefinitions(tools []tool.CallableTool) []llms.ToolDefinition {
	if len(tools) == 0 {
		return nil
	}
	defs := make([]llms.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		d := tool.ToDefinition(t)
		defs = append(defs, llms.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return defs
}

// Session returns a clone sharing the agent's configuration and
// collaborators but starting with an empty history, scoped to the
// given user.
func (a *Agent) Session(userID string) *Agent {
	return &Agent{
		id:              a.id,
		name:            a.name,
		role:            a.role,
		goal:            a.goal,
		backstory:       a.backstory,
		instructions:    a.instructions,
		llm:             a.llm,
		reflectLLM:      a.reflectLLM,
		tools:           a.tools,
		knowledge:       a.knowledge,
		selfReflect:     a.selfReflect,
		minReflect:      a.minReflect,
		maxReflect:      a.maxReflect,
		useSystemPrompt: a.useSystemPrompt,
		markdown:        a.markdown,
		verbose:         a.verbose,
		temperature:     a.temperature,
		userID:          userID,
		trimmer:         a.trimmer,
		tracer:          a.tracer,
	}
}

// History returns a copy of the chat history.
func (a *Agent) History() []llms.Message {
	a.historyMu.Lock()
	defer a.historyMu.Unlock()
	return append([]llms.Message(nil), a.history...)
}

// SwapHistory replaces the chat history and returns the previous one.
// Bot-style callers use this to multiplex one agent across users.
func (a *Agent) SwapHistory(history []llms.Message) []llms.Message {
	a.historyMu.Lock()
	defer a.historyMu.Unlock()
	prev := a.history
	a.history = history
	return prev
}

// ClearHistory drops the chat history.
func (a *Agent) ClearHistory() {
	a.historyMu.Lock()
	defer a.historyMu.Unlock()
	a.history = nil
}
