// Package store provides SQLite-backed persistence for workbench sessions.
//
// A session row holds the complete engine state as JSON, so a CLI
// invocation can resume where the previous one stopped, undo history
// included. Each save also appends the actions and rejections of that
// invocation to the session journal.
//
// # Tables
//
//   - sessions: id, state JSON, content hash, revision counter
//   - journal: (session_id, seq) ordered action/rejection records
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Journal rows are removed with their session
//
// The state hash is SHA-256 over the stored JSON with domain separation; a
// mismatch on load means the row was edited outside the store.
package store
