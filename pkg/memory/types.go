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

// Package memory persists conversational and semantic state across
// runs: a short-term store for everything a run produces, a long-term
// store fed by quality-scored promotion, and entity/user scopes layered
// on top. Backends are pluggable (embedded SQL, vector, remote).
package memory

import (
	"context"
	"strconv"
)

// Tier names the two record spaces. They double as SQL table names.
const (
	TierShort = "short_mem"
	TierLong  = "long_mem"
)

// Well-known metadata keys.
const (
	MetaAgentName = "agent_name"
	MetaTaskID    = "task_id"
	MetaUserID    = "user_id"
	MetaCategory  = "category"
	MetaQuality   = "quality"
	MetaRunID     = "run_id"

	CategoryEntity = "entity"
)

// Record is a single memory entry.
type Record struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt float64        `json:"created_at"`
	UpdatedAt float64        `json:"updated_at,omitempty"`

	// Score is the search relevance when the record came from a
	// similarity search; zero for unscored (SQL LIKE) hits.
	Score float64 `json:"score,omitempty"`
}

// Quality returns the stored composite quality, or -1 when absent.
func (r *Record) Quality() float64 {
	if r.Metadata == nil {
		return -1
	}
	switch q := r.Metadata[MetaQuality].(type) {
	case float64:
		return q
	case int:
		return float64(q)
	case string:
		// vector backends round-trip metadata as strings
		if f, err := strconv.ParseFloat(q, 64); err == nil {
			return f
		}
		return -1
	default:
		return -1
	}
}

// Query parameterizes a search against one tier.
type Query struct {
	Text  string
	Limit int

	// RelevanceCutoff keeps vector hits whose cosine distance is at
	// most 1 - cutoff. Ignored by unscored backends.
	RelevanceCutoff float64

	// MinQuality filters by stored composite quality; negative
	// disables the filter.
	MinQuality float64

	// Filters are metadata equality constraints.
	Filters map[string]any
}

// Store is the backend contract shared by the SQL, vector, and remote
// implementations. All writes within a process are serialized by the
// composite Memory, so backends only need to be safe for concurrent
// reads.
type Store interface {
	// Put inserts or replaces a record in a tier.
	Put(ctx context.Context, tier string, rec Record) error

	// Search returns matching records, most relevant first.
	Search(ctx context.Context, tier string, q Query) ([]Record, error)

	// Delete removes a record by ID.
	Delete(ctx context.Context, tier string, id string) error

	// Reset drops all records in a tier.
	Reset(ctx context.Context, tier string) error

	// Close releases backend resources.
	Close() error
}
