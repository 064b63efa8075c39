// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry records run invocations locally so metrics survive
// shell restarts. Storage is a small SQLite database; callers treat a nil
// *Store as "telemetry disabled".
package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	kind        TEXT NOT NULL,
	name        TEXT NOT NULL,
	success     INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	tokens      INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_name ON runs(kind, name);
CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id);
`

// Store is the local run ledger.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the telemetry database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry database: %w", err)
	}

	// SQLite allows one writer; a single connection avoids lock churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to configure database: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// RunRecord is one completed (or failed) run invocation.
type RunRecord struct {
	SessionID string
	Kind      string // "agent" or "workflow"
	Name      string
	Success   bool
	Duration  time.Duration
	Tokens    int
}

// RecordRun appends a run to the ledger. A nil Store drops the record.
func (s *Store) RecordRun(ctx context.Context, rec RunRecord) error {
	if s == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (session_id, kind, name, success, duration_ms, tokens, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Kind, rec.Name, boolToInt(rec.Success),
		rec.Duration.Milliseconds(), rec.Tokens, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// EntityStat aggregates runs for one agent or workflow.
type EntityStat struct {
	Kind          string `json:"kind"`
	Name          string `json:"name"`
	Runs          int64  `json:"runs"`
	Failures      int64  `json:"failures"`
	AvgDurationMs int64  `json:"avg_duration_ms"`
	TotalTokens   int64  `json:"total_tokens"`
}

// Summary is the aggregate view of the local ledger.
type Summary struct {
	TotalRuns   int64        `json:"total_runs"`
	Successful  int64        `json:"successful"`
	Failed      int64        `json:"failed"`
	TotalTokens int64        `json:"total_tokens"`
	ByEntity    []EntityStat `json:"by_entity,omitempty"`
}

// Summarize aggregates all recorded runs. With detail true the per-entity
// breakdown is included, ordered by run count.
func (s *Store) Summarize(ctx context.Context, detail bool) (*Summary, error) {
	if s == nil {
		return &Summary{}, nil
	}

	var sum Summary
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(success), 0),
		        COALESCE(SUM(1 - success), 0),
		        COALESCE(SUM(tokens), 0)
		 FROM runs`).Scan(&sum.TotalRuns, &sum.Successful, &sum.Failed, &sum.TotalTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize runs: %w", err)
	}

	if !detail {
		return &sum, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, name,
		        COUNT(*),
		        COALESCE(SUM(1 - success), 0),
		        COALESCE(CAST(AVG(duration_ms) AS INTEGER), 0),
		        COALESCE(SUM(tokens), 0)
		 FROM runs
		 GROUP BY kind, name
		 ORDER BY COUNT(*) DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to read per-entity stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var st EntityStat
		if err := rows.Scan(&st.Kind, &st.Name, &st.Runs, &st.Failures, &st.AvgDurationMs, &st.TotalTokens); err != nil {
			return nil, fmt.Errorf("failed to scan entity stats: %w", err)
		}
		sum.ByEntity = append(sum.ByEntity, st)
	}
	return &sum, rows.Err()
}

// SessionRuns returns how many runs this session recorded.
func (s *Store) SessionRuns(ctx context.Context, sessionID string) (int64, error) {
	if s == nil {
		return 0, nil
	}
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM runs WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count session runs: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
