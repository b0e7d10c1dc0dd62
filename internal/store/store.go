// Package store persists conversations, traces, profile facts, summaries,
// scheduled jobs, and cost records in a single SQLite database.
//
// SQLite runs in WAL mode with a single writer connection. That keeps the
// concurrency story trivial for a single-user agent while surviving crashes
// mid-write.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_conversations_session
	ON conversations(session_id, created_at);

CREATE TABLE IF NOT EXISTS tool_executions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id    TEXT NOT NULL,
	tool_name   TEXT NOT NULL,
	tier        TEXT NOT NULL,
	input_json  TEXT NOT NULL,
	output      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_tool_executions_trace
	ON tool_executions(trace_id);

CREATE TABLE IF NOT EXISTS traces (
	trace_id      TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	iterations    INTEGER NOT NULL,
	input_tokens  INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost_usd      REAL NOT NULL,
	duration_ms   INTEGER NOT NULL,
	tools_called  TEXT NOT NULL DEFAULT '[]',
	success       INTEGER NOT NULL DEFAULT 1,
	error_message TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_traces_session
	ON traces(session_id, created_at);

CREATE TABLE IF NOT EXISTS session_summaries (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	summary    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_summaries_session
	ON session_summaries(session_id, created_at);

CREATE TABLE IF NOT EXISTS user_profile (
	category   TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	confidence REAL NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (category, key)
);

CREATE TABLE IF NOT EXISTS chat_sessions (
	channel     TEXT NOT NULL,
	external_id TEXT NOT NULL,
	session_id  TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (channel, external_id)
);

CREATE TABLE IF NOT EXISTS scheduled_jobs (
	job_id     TEXT PRIMARY KEY,
	cron_expr  TEXT NOT NULL,
	prompt     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS costs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id    TEXT NOT NULL,
	model         TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost_usd      REAL NOT NULL,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_costs_session
	ON costs(session_id, created_at);
`

// Store wraps the SQLite handle.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite has one writer anyway, and a single connection
	// means statements never interleave across goroutines.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info("store opened", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CleanupOldData removes conversation turns older than 90 days and traces
// (with their tool execution rows) older than 30 days. Profile facts and
// summaries are kept. Returns rows removed per table.
func (s *Store) CleanupOldData(now time.Time) (conversations, traces int64, err error) {
	convCutoff := now.AddDate(0, 0, -90)
	traceCutoff := now.AddDate(0, 0, -30)

	res, err := s.db.Exec(`DELETE FROM conversations WHERE created_at < ?`, convCutoff.UTC())
	if err != nil {
		return 0, 0, fmt.Errorf("failed to clean conversations: %w", err)
	}
	conversations, _ = res.RowsAffected()

	if _, err := s.db.Exec(
		`DELETE FROM tool_executions WHERE trace_id IN (SELECT trace_id FROM traces WHERE created_at < ?)`,
		traceCutoff.UTC()); err != nil {
		return conversations, 0, fmt.Errorf("failed to clean tool executions: %w", err)
	}
	res, err = s.db.Exec(`DELETE FROM traces WHERE created_at < ?`, traceCutoff.UTC())
	if err != nil {
		return conversations, 0, fmt.Errorf("failed to clean traces: %w", err)
	}
	traces, _ = res.RowsAffected()

	s.logger.Info("cleanup complete",
		zap.Int64("conversations_removed", conversations),
		zap.Int64("traces_removed", traces))
	return conversations, traces, nil
}
