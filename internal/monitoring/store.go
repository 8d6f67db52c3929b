package monitoring

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists request logs to SQLite so history survives restarts.
// The pure-Go driver serializes writes; MaxOpenConns(1) keeps the WAL
// happy under concurrent handlers.
type Store struct {
	db *sql.DB
}

const storeSchema = `
CREATE TABLE IF NOT EXISTS request_logs (
	id         TEXT PRIMARY KEY,
	timestamp  INTEGER NOT NULL,
	router     TEXT NOT NULL,
	message    TEXT NOT NULL,
	response   TEXT,
	latency_ms INTEGER NOT NULL,
	proxied    INTEGER NOT NULL,
	error      TEXT,
	tried      TEXT,
	trace      TEXT
);
CREATE INDEX IF NOT EXISTS idx_request_logs_timestamp ON request_logs(timestamp);
CREATE INDEX IF NOT EXISTS idx_request_logs_router ON request_logs(router);
`

// OpenStore opens (creating if needed) the stats database at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create stats dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open stats db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(storeSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Insert persists one request log.
func (s *Store) Insert(ctx context.Context, entry RequestLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO request_logs
			(id, timestamp, router, message, response, latency_ms, proxied, error, tried, trace)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Timestamp.UnixMilli(),
		entry.Router,
		entry.Message,
		entry.Response,
		entry.LatencyMS,
		boolToInt(entry.Proxied),
		entry.Error,
		strings.Join(entry.Tried, "\n"),
		entry.Trace,
	)
	if err != nil {
		return fmt.Errorf("insert request log: %w", err)
	}
	return nil
}

// Recent returns up to limit logs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]RequestLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, router, message, response, latency_ms, proxied, error, tried, trace
		FROM request_logs ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query request logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var logs []RequestLog
	for rows.Next() {
		var entry RequestLog
		var ts int64
		var proxied int
		var tried string
		if err := rows.Scan(&entry.ID, &ts, &entry.Router, &entry.Message, &entry.Response,
			&entry.LatencyMS, &proxied, &entry.Error, &tried, &entry.Trace); err != nil {
			return nil, fmt.Errorf("scan request log: %w", err)
		}
		entry.Timestamp = time.UnixMilli(ts)
		entry.Proxied = proxied != 0
		if tried != "" {
			entry.Tried = strings.Split(tried, "\n")
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// RouterCounts returns the all-time per-router hit counts.
func (s *Store) RouterCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT router, COUNT(*) FROM request_logs GROUP BY router`)
	if err != nil {
		return nil, fmt.Errorf("query router counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int64)
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scan router count: %w", err)
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

// Prune deletes logs older than the cutoff.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM request_logs WHERE timestamp < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune request logs: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
