package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/accord/internal/export"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Name     string        // case name; defaults to the session name
	Out      string        // write the payload to this file
	Endpoint string        // or POST it to this URL
	Timeout  time.Duration // submission timeout
}

// ExportResult is the JSON payload of the export command.
type ExportResult struct {
	CaseID     string                   `json:"case_id"`
	File       string                   `json:"file,omitempty"`
	Submission *export.SubmissionResult `json:"submission,omitempty"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a session's formula as a review case",
		Long: `Build a FormulaReview case from the session's formula and either
write it to a file or submit it to a case-management endpoint.

The payload is validated first; an invalid payload is never written or sent.

Examples:
  accord export --out case.json
  accord export --endpoint https://cases.example.com/api/cases --timeout 10s`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "case name (default: session name)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write the payload to a file")
	cmd.Flags().StringVar(&opts.Endpoint, "endpoint", "", "submit the payload to this URL")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", export.DefaultTimeout, "submission timeout")
	cmd.MarkFlagsMutuallyExclusive("out", "endpoint")
	cmd.MarkFlagsOneRequired("out", "endpoint")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	logger := newLogger(opts.RootOptions, cmd)

	wb, err := openWorkbench(ctx, opts.RootOptions, logger)
	if err != nil {
		return f.Report(err)
	}
	defer wb.Close()

	name := opts.Name
	if name == "" {
		name = wb.sessionID
	}
	payload := export.Build(wb.engine, name, time.Now())
	result := ExportResult{CaseID: payload.CaseID}

	if opts.Out != "" {
		if err := payload.Validate(); err != nil {
			return f.Fail(ExitFailure, ErrCodeExport, "payload failed validation", export.ValidationMessages(err))
		}
		if err := export.WriteFile(opts.Out, payload); err != nil {
			return f.Fail(ExitCommandError, ErrCodeWriteFailed, err.Error(), nil)
		}
		result.File = opts.Out
		if f.IsJSON() {
			return f.Success(result)
		}
		fmt.Fprintf(f.Writer, "✓ Wrote case %s to %s\n", payload.CaseID, opts.Out)
		return nil
	}

	client := export.NewClient(opts.Endpoint, export.WithTimeout(opts.Timeout), export.WithLogger(logger))
	sub := client.Submit(ctx, payload)
	result.Submission = &sub
	if !sub.Success {
		details := interface{}(result)
		if len(sub.ValidationErrors) > 0 {
			details = sub.ValidationErrors
		}
		return f.Fail(ExitFailure, ErrCodeExport, sub.Message, details)
	}

	if f.IsJSON() {
		return f.Success(result)
	}
	fmt.Fprintf(f.Writer, "✓ Submitted case %s: %s\n", payload.CaseID, sub.Message)
	return nil
}
