package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/accord/internal/engine"
)

// ErrSessionNotFound is returned when no session row exists for an id.
var ErrSessionNotFound = errors.New("session not found")

// ErrStateCorrupt is returned when a stored state no longer matches its hash.
var ErrStateCorrupt = errors.New("session state hash mismatch")

const sessionHashDomain = "accord/session/v1"

// SessionInfo describes a stored session without its state.
type SessionInfo struct {
	ID        string
	StateHash string
	Revision  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session is a stored session with its decoded engine state.
type Session struct {
	SessionInfo
	State engine.State
}

// SaveSession upserts the state of session id and appends entries to its
// journal, in one transaction. The revision counter increments on every
// save; entries are numbered after the last stored seq.
func (s *Store) SaveSession(ctx context.Context, id string, state engine.State, at time.Time, entries ...JournalEntry) (err error) {
	if id == "" {
		return errors.New("save session: empty session id")
	}

	data, err := marshalState(state)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	ts := formatTime(at)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save session: begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, state, state_hash, revision, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			state_hash = excluded.state_hash,
			revision = sessions.revision + 1,
			updated_at = excluded.updated_at
	`, id, string(data), hashState(data), ts, ts)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	if err = appendJournal(ctx, tx, id, at, entries); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("save session: commit: %w", err)
	}
	return nil
}

// LoadSession returns the stored session id.
// Returns ErrSessionNotFound if no row exists and ErrStateCorrupt if the
// state does not match its hash.
func (s *Store) LoadSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, state, state_hash, revision, created_at, updated_at
		FROM sessions
		WHERE id = ?
	`, id)

	var (
		sess                 Session
		data                 string
		createdAt, updatedAt string
	)
	err := row.Scan(&sess.ID, &data, &sess.StateHash, &sess.Revision, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("load session %q: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session %q: %w", id, err)
	}

	if hashState([]byte(data)) != sess.StateHash {
		return Session{}, fmt.Errorf("load session %q: %w", id, ErrStateCorrupt)
	}
	if err := json.Unmarshal([]byte(data), &sess.State); err != nil {
		return Session{}, fmt.Errorf("load session %q: unmarshal state: %w", id, err)
	}
	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return Session{}, fmt.Errorf("load session %q: %w", id, err)
	}
	if sess.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Session{}, fmt.Errorf("load session %q: %w", id, err)
	}
	return sess, nil
}

// ListSessions returns every stored session ordered by id.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, state_hash, revision, created_at, updated_at
		FROM sessions
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	infos := []SessionInfo{}
	for rows.Next() {
		var info SessionInfo
		var createdAt, updatedAt string
		if err := rows.Scan(&info.ID, &info.StateHash, &info.Revision, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if info.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if info.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return infos, nil
}

// DeleteSession removes a session and its journal.
// Returns ErrSessionNotFound if no row exists.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session %q: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete session %q: %w", id, ErrSessionNotFound)
	}
	return nil
}

func marshalState(state engine.State) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return data, nil
}

// hashState returns the hex SHA-256 of domain || 0x00 || data.
func hashState(data []byte) string {
	h := sha256.New()
	h.Write([]byte(sessionHashDomain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
