package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/accord/internal/harness"
	"github.com/roach88/accord/internal/store"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Strict bool // fail when any step is rejected
}

// StepOutcome is what one script step did to the session.
type StepOutcome struct {
	Seq        int      `json:"seq"`
	Op         string   `json:"op"`
	Actions    []string `json:"actions"`
	Rejections []string `json:"rejections,omitempty"` // engine.Rejection.Error()
}

// ApplyResult is the output of the apply command.
type ApplyResult struct {
	Session  string        `json:"session"`
	Steps    []StepOutcome `json:"steps"`
	Rejected int           `json:"rejected"`
	CanUndo  bool          `json:"can_undo"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <script.yaml>",
		Short: "Apply an operation script to a session",
		Long: `Apply a list of engine operations to the session and save it.

The script uses the step format of test scenarios:

  description: "amber accord"
  steps:
    - op: add_formula_group
      args: { formula: F003 }
    - op: set_batch_size
      args: { size: 250 }

Rejected steps leave the formula untouched and are recorded in the journal.
A script error (unknown op, unknown catalog id) aborts before anything is
saved.

Exit codes:
  0 - Script applied
  1 - A step was rejected and --strict was given
  2 - Command error (unreadable script, store error, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "exit 1 if any step is rejected")

	return cmd
}

func runApply(opts *ApplyOptions, scriptPath string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	script, err := harness.LoadScript(scriptPath)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeScript, err.Error(), nil)
	}

	wb, err := openWorkbench(ctx, opts.RootOptions, newLogger(opts.RootOptions, cmd))
	if err != nil {
		return f.Report(err)
	}
	defer wb.Close()
	if wb.isNew {
		f.VerboseLog("Starting new session %q", wb.sessionID)
	}

	result := ApplyResult{Session: wb.sessionID, Steps: make([]StepOutcome, 0, len(script.Steps))}
	for i, step := range script.Steps {
		before := len(wb.pending)
		if err := harness.ApplyStep(wb.engine, step); err != nil {
			return f.Fail(ExitCommandError, ErrCodeScript, fmt.Sprintf("step %d: %v", i+1, err), nil)
		}

		outcome := StepOutcome{Seq: i + 1, Op: step.Op, Actions: []string{}}
		for _, entry := range wb.pending[before:] {
			if entry.Kind == store.EntryAction {
				outcome.Actions = append(outcome.Actions, entry.Label)
			}
		}
		for _, r := range wb.takeRejections() {
			outcome.Rejections = append(outcome.Rejections, r.Error())
		}
		result.Rejected += len(outcome.Rejections)
		result.Steps = append(result.Steps, outcome)
		f.VerboseLog("step %d %s: %d action(s), %d rejection(s)", outcome.Seq, outcome.Op, len(outcome.Actions), len(outcome.Rejections))
	}

	if err := wb.save(ctx); err != nil {
		return f.Report(err)
	}
	result.CanUndo = wb.engine.CanUndo()

	if f.IsJSON() {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		outputApplyText(f, result)
	}

	if opts.Strict && result.Rejected > 0 {
		return &ExitError{Code: ExitFailure, Reason: ErrCodeRejected, Message: fmt.Sprintf("%d step rejection(s)", result.Rejected)}
	}
	return nil
}

func outputApplyText(f *OutputFormatter, result ApplyResult) {
	for _, s := range result.Steps {
		mark := "✓"
		if len(s.Rejections) > 0 {
			mark = "✗"
		}
		line := strings.Join(s.Actions, "; ")
		if line == "" {
			line = "no change"
		}
		fmt.Fprintf(f.Writer, "%s [%d] %s: %s\n", mark, s.Seq, s.Op, line)
		for _, r := range s.Rejections {
			fmt.Fprintf(f.Writer, "    %s\n", r)
		}
	}
	fmt.Fprintf(f.Writer, "\nSession %q saved (%d step(s), %d rejection(s))\n", result.Session, len(result.Steps), result.Rejected)
}
