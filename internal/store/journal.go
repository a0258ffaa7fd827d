package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// EntryKind discriminates journal records.
type EntryKind string

const (
	EntryAction    EntryKind = "action"
	EntryRejection EntryKind = "rejection"
)

// JournalEntry is one journal record. Seq and CreatedAt are assigned by
// the store on write.
type JournalEntry struct {
	Seq          int64     `json:"seq"`
	Kind         EntryKind `json:"kind"`
	Label        string    `json:"label"`
	Checkpointed bool      `json:"checkpointed,omitempty"`
	Code         string    `json:"code,omitempty"` // Rejection code
	CreatedAt    time.Time `json:"createdAt"`
}

// ReadJournal returns the journal of session id ordered by seq.
// Returns an empty slice (not nil) if the session has no entries.
func (s *Store) ReadJournal(ctx context.Context, id string) ([]JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, label, checkpointed, code, created_at
		FROM journal
		WHERE session_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	entries := []JournalEntry{}
	for rows.Next() {
		var e JournalEntry
		var kind, createdAt string
		if err := rows.Scan(&e.Seq, &kind, &e.Label, &e.Checkpointed, &e.Code, &createdAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Kind = EntryKind(kind)
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return entries, nil
}

// AppendJournal appends entries to the journal of an existing session
// without touching its state.
func (s *Store) AppendJournal(ctx context.Context, id string, at time.Time, entries ...JournalEntry) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append journal: begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	if exists == 0 {
		err = fmt.Errorf("append journal %q: %w", id, ErrSessionNotFound)
		return err
	}

	if err = appendJournal(ctx, tx, id, at, entries); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("append journal: commit: %w", err)
	}
	return nil
}

// appendJournal numbers entries after the last seq of the session and
// inserts them within tx.
func appendJournal(ctx context.Context, tx *sql.Tx, id string, at time.Time, entries []JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	var last int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM journal WHERE session_id = ?`, id,
	).Scan(&last); err != nil {
		return fmt.Errorf("read journal seq: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO journal (session_id, seq, kind, label, checkpointed, code, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare journal insert: %w", err)
	}
	defer stmt.Close()

	ts := formatTime(at)
	for i, e := range entries {
		kind := e.Kind
		if kind == "" {
			kind = EntryAction
		}
		if _, err := stmt.ExecContext(ctx, id, last+int64(i)+1, string(kind), e.Label, e.Checkpointed, e.Code, ts); err != nil {
			return fmt.Errorf("append journal entry %d: %w", i, err)
		}
	}
	return nil
}
