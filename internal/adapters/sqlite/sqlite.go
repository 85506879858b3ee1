// Package sqlite provides the durable mirror of queue state: entries,
// participants, the append-only interaction log, sessions and settings.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/okian/requestline/internal/domain/model"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps a SQLite database configured for single-writer use.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path, applies pragmas and the
// schema. Idempotent; safe to call on an existing file.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under the store's mutation lock.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveEntry upserts one entry. Implements repository.Persister.
func (s *Store) SaveEntry(ctx context.Context, e model.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (id, owner_id, artist, title, link, tier, status, pending_promotion, score, linked_handle, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tier = excluded.tier,
			status = excluded.status,
			pending_promotion = excluded.pending_promotion,
			score = excluded.score,
			linked_handle = excluded.linked_handle`,
		e.ID, e.OwnerID, e.Artist, e.Title, e.Link,
		e.Tier.String(), string(e.Status), boolInt(e.PendingPromotion),
		e.Score, e.LinkedHandle, e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save entry %s: %w", e.ID, err)
	}
	return nil
}

// LoadEntries returns all non-terminal entries for startup restore.
func (s *Store) LoadEntries(ctx context.Context) ([]model.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, artist, title, link, tier, status, pending_promotion, score, linked_handle, created_at
		FROM entries WHERE status = ?`, string(model.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	defer rows.Close()

	var out []model.Entry
	for rows.Next() {
		var (
			e         model.Entry
			tierName  string
			status    string
			pending   int
			createdAt time.Time
		)
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Artist, &e.Title, &e.Link,
			&tierName, &status, &pending, &e.Score, &e.LinkedHandle, &createdAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		tier, ok := model.ParseTier(tierName)
		if !ok {
			return nil, fmt.Errorf("entry %s: unknown tier %q", e.ID, tierName)
		}
		e.Tier = tier
		e.Status = model.Status(status)
		e.PendingPromotion = pending != 0
		e.CreatedAt = createdAt
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveParticipant upserts one participant.
func (s *Store) SaveParticipant(ctx context.Context, p model.Participant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participants (handle, owner_id, points, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(handle) DO UPDATE SET
			owner_id = excluded.owner_id,
			points = excluded.points,
			last_seen = excluded.last_seen`,
		p.Handle, p.OwnerID, p.Points, p.LastSeen.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save participant %s: %w", p.Handle, err)
	}
	return nil
}

// LoadParticipants returns all participants for startup restore.
func (s *Store) LoadParticipants(ctx context.Context) ([]model.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT handle, owner_id, points, last_seen FROM participants`)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	defer rows.Close()

	var out []model.Participant
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.Handle, &p.OwnerID, &p.Points, &p.LastSeen); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AppendEvent writes one interaction event to the append-only log.
// Duplicate event ids are ignored: the log keeps at most one row per event.
func (s *Store) AppendEvent(ctx context.Context, ev model.InteractionEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO interaction_events (event_id, session_id, handle, kind, magnitude, ts)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.EventID, ev.SessionID, ev.Handle, string(ev.Kind), ev.Magnitude, ev.TS.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append event %s: %w", ev.EventID, err)
	}
	return nil
}

// CountSessionEvents returns the number of logged events for one session.
func (s *Store) CountSessionEvents(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM interaction_events WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count session events: %w", err)
	}
	return n, nil
}

// CreateSession records a newly opened session.
func (s *Store) CreateSession(ctx context.Context, sess model.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, host_handle, started_at, ended_at, unplanned)
		VALUES (?, ?, ?, NULL, 0)`,
		sess.ID, sess.HostHandle, sess.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create session %s: %w", sess.ID, err)
	}
	return nil
}

// GetSession returns one session row by id.
func (s *Store) GetSession(ctx context.Context, id string) (model.Session, error) {
	var (
		sess    model.Session
		endedAt sql.NullTime
		unpl    int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, host_handle, started_at, ended_at, unplanned
		FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.HostHandle, &sess.StartedAt, &endedAt, &unpl)
	if err != nil {
		return model.Session{}, fmt.Errorf("get session %s: %w", id, err)
	}
	if endedAt.Valid {
		sess.EndedAt = endedAt.Time
	}
	sess.Unplanned = unpl != 0
	return sess, nil
}

// CloseSession stamps the end of a session.
func (s *Store) CloseSession(ctx context.Context, id string, endedAt time.Time, unplanned bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, unplanned = ? WHERE id = ?`,
		endedAt.UTC(), boolInt(unplanned), id,
	)
	if err != nil {
		return fmt.Errorf("close session %s: %w", id, err)
	}
	return nil
}

// SetSetting stores one key-value setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// GetSetting returns a setting value, or fallback when the key is unset.
func (s *Store) GetSetting(ctx context.Context, key, fallback string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

// Backup writes a consistent copy of the database to destPath.
func (s *Store) Backup(ctx context.Context, destPath string) error {
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, destPath); err != nil {
		return fmt.Errorf("backup to %s: %w", destPath, err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
