package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// UndoResult is the JSON payload of the undo command.
type UndoResult struct {
	Session   string `json:"session"`
	Undone    string `json:"undone"`
	Remaining int    `json:"remaining"`
}

// NewUndoCommand creates the undo command.
func NewUndoCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "undo",
		Short: "Undo the last change of a session",
		Long: `Restore the formula and batch size saved before the last change.

Up to 10 changes are kept. Clearing the formula and changing the
comparison selection are not undoable.

Exit codes:
  0 - Change undone
  1 - Nothing to undo
  2 - Command error`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUndo(rootOpts, cmd)
		},
	}

	return cmd
}

func runUndo(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	ctx := cmd.Context()

	wb, err := openWorkbench(ctx, opts, newLogger(opts, cmd))
	if err != nil {
		return f.Report(err)
	}
	defer wb.Close()

	labels := wb.engine.HistoryLabels()
	wb.engine.UndoLastAction()
	if rejections := wb.takeRejections(); len(rejections) > 0 {
		return f.Fail(ExitFailure, ErrCodeRejected, "nothing to undo", nil)
	}
	if err := wb.save(ctx); err != nil {
		return f.Report(err)
	}

	result := UndoResult{
		Session:   wb.sessionID,
		Undone:    labels[0],
		Remaining: len(labels) - 1,
	}
	if f.IsJSON() {
		return f.Success(result)
	}
	fmt.Fprintf(f.Writer, "✓ Undone: %s (%d more available)\n", result.Undone, result.Remaining)
	return nil
}
