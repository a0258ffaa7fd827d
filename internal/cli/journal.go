package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/accord/internal/store"
)

// JournalResult is the JSON payload of the journal command.
type JournalResult struct {
	Session string               `json:"session"`
	Entries []store.JournalEntry `json:"entries"`
}

// SessionView is one row of the sessions listing.
type SessionView struct {
	ID        string    `json:"id"`
	Revision  int64     `json:"revision"`
	StateHash string    `json:"state_hash"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionsOptions holds flags for the sessions command.
type SessionsOptions struct {
	*RootOptions
	Delete string // session to delete instead of listing
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show the change journal of a session",
		Long: `Show every change applied to a session and every request it rejected,
in the order they happened.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(rootOpts, cmd)
		},
	}

	return cmd
}

// NewSessionsCommand creates the sessions command.
func NewSessionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SessionsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List or delete stored sessions",
		Long: `List the sessions in the store, or delete one with --delete.

Deleting a session also removes its journal.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessions(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Delete, "delete", "", "delete the named session")

	return cmd
}

// openStore opens the session store without loading a catalog.
func openStore(opts *RootOptions, cmd *cobra.Command) (*store.Store, error) {
	st, err := store.Open(opts.Database, store.WithLogger(newLogger(opts, cmd)))
	if err != nil {
		return nil, commandError(ErrCodeStore, "failed to open store", err)
	}
	return st, nil
}

func runJournal(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	st, err := openStore(opts, cmd)
	if err != nil {
		return f.Report(err)
	}
	defer st.Close()

	entries, err := st.ReadJournal(cmd.Context(), opts.Session)
	if err != nil {
		return f.Report(commandError(ErrCodeStore, "failed to read journal", err))
	}

	if f.IsJSON() {
		return f.Success(JournalResult{Session: opts.Session, Entries: entries})
	}
	if len(entries) == 0 {
		fmt.Fprintf(f.Writer, "No journal entries for session %s.\n", opts.Session)
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		kind := string(e.Kind)
		if e.Kind == store.EntryRejection {
			kind = "rejected " + e.Code
		} else if !e.Checkpointed {
			kind += " (no undo)"
		}
		rows = append(rows, []string{
			strconv.FormatInt(e.Seq, 10),
			e.CreatedAt.Format(time.RFC3339),
			kind,
			e.Label,
		})
	}
	return f.Table([]string{"SEQ", "TIME", "KIND", "LABEL"}, rows)
}

func runSessions(opts *SessionsOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	st, err := openStore(opts.RootOptions, cmd)
	if err != nil {
		return f.Report(err)
	}
	defer st.Close()

	if opts.Delete != "" {
		err := st.DeleteSession(ctx, opts.Delete)
		if errors.Is(err, store.ErrSessionNotFound) {
			return f.Fail(ExitFailure, ErrCodeStore, fmt.Sprintf("session %q not found", opts.Delete), nil)
		}
		if err != nil {
			return f.Report(commandError(ErrCodeStore, "failed to delete session", err))
		}
		if f.IsJSON() {
			return f.Success(map[string]string{"deleted": opts.Delete})
		}
		fmt.Fprintf(f.Writer, "✓ Deleted session %s\n", opts.Delete)
		return nil
	}

	infos, err := st.ListSessions(ctx)
	if err != nil {
		return f.Report(commandError(ErrCodeStore, "failed to list sessions", err))
	}
	views := make([]SessionView, 0, len(infos))
	for _, info := range infos {
		views = append(views, SessionView{
			ID:        info.ID,
			Revision:  info.Revision,
			StateHash: info.StateHash,
			CreatedAt: info.CreatedAt,
			UpdatedAt: info.UpdatedAt,
		})
	}

	if f.IsJSON() {
		return f.Success(views)
	}
	if len(views) == 0 {
		fmt.Fprintln(f.Writer, "No sessions.")
		return nil
	}
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{
			v.ID,
			strconv.FormatInt(v.Revision, 10),
			v.UpdatedAt.Format(time.RFC3339),
			shortHash(v.StateHash),
		})
	}
	return f.Table([]string{"SESSION", "REVISION", "UPDATED", "STATE"}, rows)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
