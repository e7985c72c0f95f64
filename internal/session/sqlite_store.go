package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"deskagent/internal/fsm"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists sessions to a local sqlite database so a process
// restart doesn't lose in-flight conversations, per the store's crash
// recovery requirement. The schema is a single table keyed by
// (tenant_id, conv_id) holding the session serialised as JSON, mirroring
// the "state checkpoint" shape described for crash recovery: one row per
// conversation, overwritten on every Save.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
}

// OpenSQLiteStore opens (creating if needed) the sessions table at path.
func OpenSQLiteStore(path string, ttl time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite session store: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			tenant_id   TEXT NOT NULL,
			conv_id     TEXT NOT NULL,
			state_json  TEXT NOT NULL,
			last_seen   DATETIME NOT NULL,
			PRIMARY KEY (tenant_id, conv_id)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions table: %w", err)
	}
	return &SQLiteStore{db: db, ttl: ttl}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// serialisable mirrors Session but with fsm.State as a plain string and
// time fields left to encoding/json's native RFC3339 handling, so the
// wire format isn't coupled to the fsm package's internal representation.
type serialisable struct {
	TenantID string
	ConvID   string

	State   string
	Channel Channel

	Qualification Qualification
	PendingSlots  []SlotOffer
	CallerID      string

	History           []Turn
	LastQuestionAsked string
	LastIntent        string

	Counters Counters

	LastSeenAt time.Time
	CreatedAt  time.Time
}

func toSerialisable(s *Session) serialisable {
	return serialisable{
		TenantID: s.TenantID, ConvID: s.ConvID,
		State: string(s.State), Channel: s.Channel,
		Qualification: s.Qualification, PendingSlots: s.PendingSlots, CallerID: s.CallerID,
		History: s.History, LastQuestionAsked: s.LastQuestionAsked, LastIntent: s.LastIntent,
		Counters: s.Counters, LastSeenAt: s.LastSeenAt, CreatedAt: s.CreatedAt,
	}
}

func (ser serialisable) toSession() *Session {
	return &Session{
		TenantID: ser.TenantID, ConvID: ser.ConvID,
		State: fsm.State(ser.State), Channel: ser.Channel,
		Qualification: ser.Qualification, PendingSlots: ser.PendingSlots, CallerID: ser.CallerID,
		History: ser.History, LastQuestionAsked: ser.LastQuestionAsked, LastIntent: ser.LastIntent,
		Counters: ser.Counters, LastSeenAt: ser.LastSeenAt, CreatedAt: ser.CreatedAt,
	}
}

// GetOrCreate loads the persisted session or creates a fresh one in START.
func (s *SQLiteStore) GetOrCreate(ctx context.Context, tenantID, convID string, channel Channel, now time.Time) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT state_json FROM sessions WHERE tenant_id = ? AND conv_id = ?`, tenantID, convID)
	var raw string
	switch err := row.Scan(&raw); err {
	case nil:
		var ser serialisable
		if err := json.Unmarshal([]byte(raw), &ser); err != nil {
			return nil, fmt.Errorf("decode session %s/%s: %w", tenantID, convID, err)
		}
		return ser.toSession(), nil
	case sql.ErrNoRows:
		fresh := New(tenantID, convID, channel, now)
		if err := s.Save(ctx, fresh); err != nil {
			return nil, err
		}
		return fresh, nil
	default:
		return nil, fmt.Errorf("load session %s/%s: %w", tenantID, convID, err)
	}
}

// Save atomically upserts the full session state.
func (s *SQLiteStore) Save(ctx context.Context, sess *Session) error {
	raw, err := json.Marshal(toSerialisable(sess))
	if err != nil {
		return fmt.Errorf("encode session %s/%s: %w", sess.TenantID, sess.ConvID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (tenant_id, conv_id, state_json, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tenant_id, conv_id) DO UPDATE SET state_json = excluded.state_json, last_seen = excluded.last_seen
	`, sess.TenantID, sess.ConvID, string(raw), sess.LastSeenAt)
	if err != nil {
		return fmt.Errorf("save session %s/%s: %w", sess.TenantID, sess.ConvID, err)
	}
	return nil
}

// Touch updates last_seen without requiring the caller to round-trip the
// full session payload.
func (s *SQLiteStore) Touch(ctx context.Context, tenantID, convID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET last_seen = ? WHERE tenant_id = ? AND conv_id = ?`, now, tenantID, convID)
	if err != nil {
		return fmt.Errorf("touch session %s/%s: %w", tenantID, convID, err)
	}
	return nil
}

// IsExpired reports whether s has been idle longer than the store's TTL.
func (s *SQLiteStore) IsExpired(sess *Session, now time.Time) bool {
	return sess.IsExpired(now, s.ttl)
}

// ClearExpired deletes every session row idle longer than the store's TTL,
// returning the count removed. The engine's background sweeper calls this
// on an interval so abandoned conversations don't linger forever in
// storage.
func (s *SQLiteStore) ClearExpired(ctx context.Context, now time.Time) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-s.ttl)
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE last_seen < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("clear expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count cleared sessions: %w", err)
	}
	return int(n), nil
}
