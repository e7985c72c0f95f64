package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// SQLiteSink is the reference append-only audit sink: one row per event, an
// index-friendly timestamp column, and a JSON blob for the free-form
// counters snapshot.
type SQLiteSink struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLiteSink opens (creating if needed) the audit_log table at path.
func OpenSQLiteSink(path string, logger *slog.Logger) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite audit sink: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_log (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			ts              DATETIME NOT NULL,
			tenant_id       TEXT NOT NULL,
			conv_id         TEXT NOT NULL,
			event_name      TEXT NOT NULL,
			previous_state  TEXT NOT NULL,
			reason          TEXT NOT NULL,
			counters_json   TEXT,
			user_message    TEXT
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit_log table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_conv ON audit_log (tenant_id, conv_id, ts)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit_log index: %w", err)
	}
	return &SQLiteSink{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// Append writes one event. Callers treat failures as non-fatal; this
// method still returns the error so a caller that does want to act on it
// (e.g. a metrics counter) can.
func (s *SQLiteSink) Append(ctx context.Context, e Event) error {
	countersJSON, err := json.Marshal(e.CountersSnapshot)
	if err != nil {
		return fmt.Errorf("marshal counters snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (ts, tenant_id, conv_id, event_name, previous_state, reason, counters_json, user_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Timestamp, e.TenantID, e.ConvID, e.EventName, e.PreviousState, e.Reason, string(countersJSON), e.UserMessage)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// AppendBestEffort wraps Append for pipeline call sites that must never
// let an audit failure affect the conversation: it logs at WARN and
// swallows the error, matching the "best-effort, non-blocking" resource
// model for the audit sink.
func (s *SQLiteSink) AppendBestEffort(ctx context.Context, e Event) {
	if err := s.Append(ctx, e); err != nil {
		s.logger.Warn("audit append failed", "error", err, "event", e.EventName, "conv_id", e.ConvID)
	}
}

// Recent returns the most recent events across all tenants, newest first.
func (s *SQLiteSink) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, tenant_id, conv_id, event_name, previous_state, reason, counters_json, user_message
		FROM audit_log
		ORDER BY ts DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var countersJSON sql.NullString
		if err := rows.Scan(&e.Timestamp, &e.TenantID, &e.ConvID, &e.EventName, &e.PreviousState, &e.Reason, &countersJSON, &e.UserMessage); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if countersJSON.Valid {
			_ = json.Unmarshal([]byte(countersJSON.String), &e.CountersSnapshot)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log: %w", err)
	}
	return events, nil
}
