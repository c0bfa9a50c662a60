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
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kadirpekel/maestro/pkg/config"
)

// SQLStore is the embedded SQL backend. It is the mandatory default:
// two tables, one per tier, with JSON-encoded metadata. Search is an
// unscored substring match.
//
// The table layout is a compatibility surface shared with other
// runtimes reading the same database; do not alter it.
type SQLStore struct {
	db         *sql.DB
	dialect    string
	maxRecords int
}

const createTierTableSQL = `
CREATE TABLE IF NOT EXISTS %s (
    id TEXT PRIMARY KEY,
    content TEXT,
    meta TEXT,
    created_at REAL
)`

// NewSQLStore opens (or creates) the memory database.
func NewSQLStore(cfg *config.MemoryConfig) (*SQLStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("memory configuration is required")
	}

	switch cfg.Driver {
	case "sqlite3", "postgres", "mysql":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: sqlite3, postgres, mysql)", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s memory database: %w", cfg.Driver, err)
	}

	s := &SQLStore{
		db:         db,
		dialect:    cfg.Driver,
		maxRecords: cfg.MaxRecords,
	}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize memory schema: %w", err)
	}

	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	if s.dialect == "sqlite3" {
		// Concurrent readers during writes need WAL
		if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			return fmt.Errorf("failed to enable WAL: %w", err)
		}
	}

	for _, tier := range []string{TierShort, TierLong} {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(createTierTableSQL, tier)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", tier, err)
		}
	}
	return nil
}

// placeholders renders n positional placeholders for the dialect.
func (s *SQLStore) placeholder(n int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Put inserts or replaces a record.
func (s *SQLStore) Put(ctx context.Context, tier string, rec Record) error {
	if err := validTier(tier); err != nil {
		return err
	}

	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	createdAt := rec.CreatedAt
	if createdAt == 0 {
		createdAt = float64(time.Now().UnixNano()) / float64(time.Second)
	}

	var query string
	switch s.dialect {
	case "postgres":
		query = fmt.Sprintf(`INSERT INTO %s (id, content, meta, created_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, meta = EXCLUDED.meta, created_at = EXCLUDED.created_at`, tier)
	case "mysql":
		query = fmt.Sprintf(`REPLACE INTO %s (id, content, meta, created_at) VALUES (?, ?, ?, ?)`, tier)
	default:
		query = fmt.Sprintf(`INSERT OR REPLACE INTO %s (id, content, meta, created_at) VALUES (?, ?, ?, ?)`, tier)
	}

	if _, err := s.db.ExecContext(ctx, query, rec.ID, rec.Content, string(meta), createdAt); err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}

	if tier == TierShort && s.maxRecords > 0 {
		if err := s.evict(ctx, tier); err != nil {
			return err
		}
	}

	return nil
}

// evict trims the oldest short-term rows beyond the configured cap.
func (s *SQLStore) evict(ctx context.Context, tier string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id IN (
SELECT id FROM %s ORDER BY created_at DESC LIMIT -1 OFFSET %s)`, tier, tier, s.placeholder(1))
	if s.dialect != "sqlite3" {
		// LIMIT -1 is sqlite-specific
		query = fmt.Sprintf(`DELETE FROM %s WHERE id NOT IN (
SELECT id FROM (SELECT id FROM %s ORDER BY created_at DESC LIMIT %s) keep)`, tier, tier, s.placeholder(1))
	}

	if _, err := s.db.ExecContext(ctx, query, s.maxRecords); err != nil {
		return fmt.Errorf("failed to evict old records: %w", err)
	}
	return nil
}

// Search performs a substring match over content, newest first.
// Quality and metadata filters are applied on the decoded meta JSON.
func (s *SQLStore) Search(ctx context.Context, tier string, q Query) ([]Record, error) {
	if err := validTier(tier); err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	// Over-fetch so post-decode filters can still fill the limit
	query := fmt.Sprintf(`SELECT id, content, meta, created_at FROM %s WHERE content LIKE %s ORDER BY created_at DESC LIMIT %s`,
		tier, s.placeholder(1), s.placeholder(2))

	rows, err := s.db.QueryContext(ctx, query, "%"+q.Text+"%", limit*4)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var meta sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Content, &meta, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata for %s: %w", rec.ID, err)
			}
		}

		if !matchesQuery(&rec, q) {
			continue
		}

		records = append(records, rec)
		if len(records) >= limit {
			break
		}
	}

	return records, rows.Err()
}

// Delete removes a record by ID.
func (s *SQLStore) Delete(ctx context.Context, tier string, id string) error {
	if err := validTier(tier); err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = %s`, tier, s.placeholder(1))
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// Reset drops all records in a tier.
func (s *SQLStore) Reset(ctx context.Context, tier string) error {
	if err := validTier(tier); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, tier)); err != nil {
		return fmt.Errorf("failed to reset %s: %w", tier, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func validTier(tier string) error {
	switch tier {
	case TierShort, TierLong:
		return nil
	default:
		return fmt.Errorf("unknown memory tier: %q", tier)
	}
}

// matchesQuery applies quality and metadata filters after decoding.
func matchesQuery(rec *Record, q Query) bool {
	if q.MinQuality > 0 {
		if quality := rec.Quality(); quality < q.MinQuality {
			return false
		}
	}
	for k, want := range q.Filters {
		got, ok := rec.Metadata[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// Ensure SQLStore implements Store.
var _ Store = (*SQLStore)(nil)
