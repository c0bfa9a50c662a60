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
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/maestro/pkg/config"
	"github.com/kadirpekel/maestro/pkg/embedders"
	"github.com/kadirpekel/maestro/pkg/llms"
	"github.com/kadirpekel/maestro/pkg/observability"
	"github.com/kadirpekel/maestro/pkg/vector"
)

// DefaultPromotionThreshold is the minimum composite quality for a
// record to be promoted from short-term to long-term memory.
const DefaultPromotionThreshold = 0.7

// contextSnippetLen bounds each snippet inside a built task context.
const contextSnippetLen = 150

// Memory is the composite store the orchestrator shares across a run.
// It layers entity and user scopes over the short/long tiers, computes
// quality scores, and builds context strings for task prompts.
//
// Writers are serialized by an internal mutex; backends only need to
// support concurrent reads.
type Memory struct {
	store  Store
	judge  llms.LLMProvider
	cfg    *config.MemoryConfig
	tracer trace.Tracer

	writeMu sync.Mutex
}

// Options carries the collaborators a Memory may need beyond its
// backend configuration.
type Options struct {
	// Embedder powers the vector backend. Required when
	// cfg.Provider == "vector".
	Embedder embedders.EmbedderProvider

	// VectorProvider powers the vector backend. Required when
	// cfg.Provider == "vector".
	VectorProvider vector.Provider

	// Judge scores task outputs when quality checking is enabled.
	Judge llms.LLMProvider
}

// New builds a Memory from configuration.
func New(cfg *config.MemoryConfig, opts Options) (*Memory, error) {
	if cfg == nil {
		cfg = &config.MemoryConfig{}
		cfg.SetDefaults()
	}

	var store Store
	var err error

	switch cfg.Provider {
	case "sql", "":
		store, err = NewSQLStore(cfg)
	case "vector":
		store, err = NewVectorStore(opts.VectorProvider, opts.Embedder)
	case "remote":
		store, err = NewRemoteStore(cfg.URL)
	default:
		err = fmt.Errorf("unknown memory provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize > 0 {
		store, err = NewCachedStore(store, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
	}

	return NewWithStore(store, cfg, opts.Judge), nil
}

// NewWithStore builds a Memory over an already-constructed backend.
func NewWithStore(store Store, cfg *config.MemoryConfig, judge llms.LLMProvider) *Memory {
	if cfg == nil {
		cfg = &config.MemoryConfig{}
		cfg.SetDefaults()
	}
	return &Memory{
		store:  store,
		judge:  judge,
		cfg:    cfg,
		tracer: observability.GetTracer("maestro.memory"),
	}
}

// storeParams collects per-write options.
type storeParams struct {
	metadata         map[string]any
	metrics          *Metrics
	evaluatorQuality *float64
}

// StoreOption customizes a single store call.
type StoreOption func(*storeParams)

// WithMetadata attaches metadata to the stored record.
func WithMetadata(md map[string]any) StoreOption {
	return func(p *storeParams) { p.metadata = md }
}

// WithMetrics attaches the four quality sub-metrics; the composite
// score is stored under metadata.quality.
func WithMetrics(m Metrics) StoreOption {
	return func(p *storeParams) { p.metrics = &m }
}

// WithEvaluatorQuality stores a pre-computed quality score verbatim.
func WithEvaluatorQuality(q float64) StoreOption {
	return func(p *storeParams) { p.evaluatorQuality = &q }
}

// StoreShortTerm writes a record to the short-term tier.
func (m *Memory) StoreShortTerm(ctx context.Context, content string, opts ...StoreOption) (string, error) {
	return m.storeTier(ctx, TierShort, content, opts...)
}

// StoreLongTerm writes a record to the long-term tier.
func (m *Memory) StoreLongTerm(ctx context.Context, content string, opts ...StoreOption) (string, error) {
	return m.storeTier(ctx, TierLong, content, opts...)
}

func (m *Memory) storeTier(ctx context.Context, tier string, content string, opts ...StoreOption) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("content cannot be empty")
	}

	var p storeParams
	for _, opt := range opts {
		opt(&p)
	}

	metadata := make(map[string]any, len(p.metadata)+1)
	for k, v := range p.metadata {
		metadata[k] = v
	}

	// Sub-metrics win over a pre-computed score; absent both, no
	// quality key is stored at all.
	if p.metrics != nil {
		clamped := p.metrics.Clamped()
		metadata[MetaQuality] = clamped.Composite()
		metadata["completeness"] = clamped.Completeness
		metadata["relevance"] = clamped.Relevance
		metadata["clarity"] = clamped.Clarity
		metadata["accuracy"] = clamped.Accuracy
	} else if p.evaluatorQuality != nil {
		metadata[MetaQuality] = *p.evaluatorQuality
	}

	rec := Record{
		ID:        uuid.NewString(),
		Content:   content,
		Metadata:  metadata,
		CreatedAt: float64(time.Now().UnixNano()) / float64(time.Second),
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.store.Put(ctx, tier, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// SearchShortTerm queries the short-term tier.
func (m *Memory) SearchShortTerm(ctx context.Context, query string, limit int, relevanceCutoff float64) ([]Record, error) {
	return m.searchTier(ctx, TierShort, Query{
		Text:            query,
		Limit:           limit,
		RelevanceCutoff: relevanceCutoff,
	})
}

// SearchLongTerm queries the long-term tier with an optional quality
// floor.
func (m *Memory) SearchLongTerm(ctx context.Context, query string, limit int, relevanceCutoff, minQuality float64) ([]Record, error) {
	return m.searchTier(ctx, TierLong, Query{
		Text:            query,
		Limit:           limit,
		RelevanceCutoff: relevanceCutoff,
		MinQuality:      minQuality,
	})
}

func (m *Memory) searchTier(ctx context.Context, tier string, q Query) ([]Record, error) {
	ctx, span := m.tracer.Start(ctx, observability.SpanMemoryLookup,
		trace.WithAttributes(attribute.String(observability.AttrMemoryStore, tier)))
	defer span.End()

	if q.RelevanceCutoff == 0 {
		q.RelevanceCutoff = m.cfg.RelevanceCutoff
	}

	records, err := m.store.Search(ctx, tier, q)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("memory.results", len(records)))
	return records, nil
}

// StoreEntity records a named entity as a long-term record with
// category "entity".
func (m *Memory) StoreEntity(ctx context.Context, name, entityType, description, relations string) (string, error) {
	content := fmt.Sprintf("%s(%s): %s", name, entityType, description)
	if relations != "" {
		content += " | relationships: " + relations
	}

	return m.StoreLongTerm(ctx, content, WithMetadata(map[string]any{
		MetaCategory:  CategoryEntity,
		"entity_name": name,
		"entity_type": entityType,
	}))
}

// SearchEntity queries long-term records with category "entity".
func (m *Memory) SearchEntity(ctx context.Context, query string, limit int) ([]Record, error) {
	return m.searchTier(ctx, TierLong, Query{
		Text:    query,
		Limit:   limit,
		Filters: map[string]any{MetaCategory: CategoryEntity},
	})
}

// StoreUserMemory records user-scoped content.
func (m *Memory) StoreUserMemory(ctx context.Context, userID, content string, extra map[string]any) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user ID cannot be empty")
	}

	metadata := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		metadata[k] = v
	}
	metadata[MetaUserID] = userID

	return m.StoreLongTerm(ctx, content, WithMetadata(metadata))
}

// SearchUserMemory queries records scoped to a user.
func (m *Memory) SearchUserMemory(ctx context.Context, userID, query string, limit int) ([]Record, error) {
	return m.searchTier(ctx, TierLong, Query{
		Text:    query,
		Limit:   limit,
		Filters: map[string]any{MetaUserID: userID},
	})
}

// FinalizeTaskOutput persists a completed task's output: always to
// short-term, and to long-term iff the quality score meets the
// threshold. A non-positive threshold falls back to the default.
func (m *Memory) FinalizeTaskOutput(ctx context.Context, content, agentName string, quality, threshold float64, extra map[string]any) error {
	ctx, span := m.tracer.Start(ctx, observability.SpanMemoryPromote,
		trace.WithAttributes(
			attribute.String(observability.AttrAgentName, agentName),
			attribute.Float64("memory.quality", quality),
		))
	defer span.End()

	if threshold <= 0 {
		threshold = DefaultPromotionThreshold
	}

	metadata := map[string]any{MetaAgentName: agentName}
	for k, v := range extra {
		metadata[k] = v
	}

	if _, err := m.StoreShortTerm(ctx, content, WithMetadata(metadata), WithEvaluatorQuality(quality)); err != nil {
		return fmt.Errorf("failed to store short-term record: %w", err)
	}

	if quality >= threshold {
		if _, err := m.StoreLongTerm(ctx, content, WithMetadata(metadata), WithEvaluatorQuality(quality)); err != nil {
			return fmt.Errorf("failed to promote record to long-term: %w", err)
		}
		span.SetAttributes(attribute.Bool("memory.promoted", true))
	}

	return nil
}

// CalculateQualityMetrics scores output against expected output with
// the configured judge model. Returns zero metrics when no judge is
// configured or the judgement fails.
func (m *Memory) CalculateQualityMetrics(ctx context.Context, output, expected string) Metrics {
	ctx, span := m.tracer.Start(ctx, observability.SpanQualityScoring)
	defer span.End()
	return JudgeQuality(ctx, m.judge, output, expected)
}

// BuildContextForTask assembles short-term, long-term, entity, and
// user snippets into one context string with section headers. Backend
// failures degrade to an empty section and a log line; context
// building must never fail a task.
func (m *Memory) BuildContextForTask(ctx context.Context, taskDescr, userID, additional string, maxItems int) string {
	if maxItems <= 0 {
		maxItems = 3
	}

	query := strings.TrimSpace(taskDescr + " " + additional)
	if query == "" {
		return ""
	}

	var b strings.Builder

	appendSection := func(header string, records []Record, err error) {
		if err != nil {
			slog.Warn("Memory context lookup failed", "section", header, "error", err)
			return
		}
		if len(records) == 0 {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(header)
		for _, rec := range records {
			snippet := rec.Content
			if len(snippet) > contextSnippetLen {
				snippet = snippet[:contextSnippetLen]
			}
			b.WriteString("\n- " + snippet)
		}
	}

	short, err := m.SearchShortTerm(ctx, query, maxItems, m.cfg.RelevanceCutoff)
	appendSection("ShortTerm context:", short, err)

	long, err := m.SearchLongTerm(ctx, query, maxItems, m.cfg.RelevanceCutoff, m.cfg.MinQuality)
	appendSection("LongTerm context:", long, err)

	entities, err := m.SearchEntity(ctx, query, maxItems)
	appendSection("Entities found:", entities, err)

	if userID != "" {
		user, err := m.SearchUserMemory(ctx, userID, query, maxItems)
		appendSection(fmt.Sprintf("User %s context:", userID), user, err)
	}

	return b.String()
}

// ResetShortTerm clears the short-term tier.
func (m *Memory) ResetShortTerm(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.store.Reset(ctx, TierShort)
}

// ResetLongTerm clears the long-term tier.
func (m *Memory) ResetLongTerm(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.store.Reset(ctx, TierLong)
}

// ResetAll clears both tiers.
func (m *Memory) ResetAll(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.store.Reset(ctx, TierShort); err != nil {
		return err
	}
	return m.store.Reset(ctx, TierLong)
}

// PromotionThreshold returns the configured threshold, falling back to
// the default.
func (m *Memory) PromotionThreshold() float64 {
	if m.cfg.PromotionThreshold > 0 {
		return m.cfg.PromotionThreshold
	}
	return DefaultPromotionThreshold
}

// HasJudge reports whether a judge model is configured.
func (m *Memory) HasJudge() bool {
	return m.judge != nil
}

// Close releases the backend.
func (m *Memory) Close() error {
	return m.store.Close()
}
