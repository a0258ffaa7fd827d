package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/accord/internal/catalog"
	"github.com/roach88/accord/internal/engine"
	"github.com/roach88/accord/internal/store"
)

// workbench is one CLI invocation's view of a session: the store, an engine
// restored from the saved state, and the journal entries recorded since.
type workbench struct {
	store     *store.Store
	engine    *engine.Engine
	sessionID string
	logger    *slog.Logger

	// isNew is true when no saved state existed.
	isNew bool

	pending    []store.JournalEntry
	rejections []engine.Rejection
	now        func() time.Time
}

// loadCatalog loads the fixture directory, or the embedded catalog when dir
// is empty. Fixture errors are returned as-is so callers can report codes.
func loadCatalog(dir string) (*catalog.Catalog, []error) {
	if dir == "" {
		cat, err := catalog.Default()
		if err != nil {
			return nil, []error{err}
		}
		return cat, nil
	}
	return catalog.LoadDir(dir, catalog.LoadModeFailFast)
}

// openWorkbench opens the store and restores the session named in opts.
// A session that does not exist yet starts from an empty formula.
func openWorkbench(ctx context.Context, opts *RootOptions, logger *slog.Logger) (*workbench, error) {
	cat, errs := loadCatalog(opts.Catalog)
	if len(errs) > 0 {
		return nil, commandError(ErrCodeCatalog, "failed to load catalog", errs[0])
	}

	st, err := store.Open(opts.Database, store.WithLogger(logger))
	if err != nil {
		return nil, commandError(ErrCodeStore, "failed to open store", err)
	}

	wb := &workbench{
		store:     st,
		sessionID: opts.Session,
		logger:    logger,
		now:       time.Now,
	}
	wb.engine = engine.New(cat,
		engine.WithLogger(logger),
		engine.WithActionHook(wb.recordAction),
		engine.WithRejectionHook(wb.recordRejection),
	)

	sess, err := st.LoadSession(ctx, opts.Session)
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		wb.isNew = true
		logger.Debug("starting new session", "session", opts.Session)
	case err != nil:
		st.Close()
		return nil, commandError(ErrCodeStore, "failed to load session", err)
	default:
		if err := wb.engine.Restore(sess.State); err != nil {
			st.Close()
			return nil, commandError(ErrCodeStore, "failed to restore session", err)
		}
		logger.Debug("session restored", "session", opts.Session, "revision", sess.Revision)
	}
	return wb, nil
}

func (wb *workbench) recordAction(a engine.Action) {
	wb.pending = append(wb.pending, store.JournalEntry{
		Kind:         store.EntryAction,
		Label:        a.Label,
		Checkpointed: a.Checkpointed,
	})
}

func (wb *workbench) recordRejection(r engine.Rejection) {
	wb.rejections = append(wb.rejections, r)
	wb.pending = append(wb.pending, store.JournalEntry{
		Kind:  store.EntryRejection,
		Label: fmt.Sprintf("%s: %s", r.Op, r.Message),
		Code:  string(r.Code),
	})
}

// takeRejections returns and clears the rejections recorded so far.
func (wb *workbench) takeRejections() []engine.Rejection {
	out := wb.rejections
	wb.rejections = nil
	return out
}

// save persists the engine state and the pending journal entries.
func (wb *workbench) save(ctx context.Context) error {
	if err := wb.store.SaveSession(ctx, wb.sessionID, wb.engine.State(), wb.now(), wb.pending...); err != nil {
		return commandError(ErrCodeStore, "failed to save session", err)
	}
	wb.logger.Debug("session saved", "session", wb.sessionID, "journal_entries", len(wb.pending))
	wb.pending = nil
	return nil
}

func (wb *workbench) Close() error {
	return wb.store.Close()
}

// commandError wraps err as a command-level failure (exit code 2).
func commandError(reason, message string, err error) *ExitError {
	return &ExitError{Code: ExitCommandError, Reason: reason, Message: message, Err: err}
}
