package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/accord/internal/formula"
)

// SummaryResult is the JSON payload of the summary command.
type SummaryResult struct {
	Session   string          `json:"session"`
	BatchSize float64         `json:"batch_size"`
	Unit      formula.Unit    `json:"unit"`
	Summary   formula.Summary `json:"summary"`
	Groups    int             `json:"groups"`
	Selected  []string        `json:"selected"`
	CanUndo   bool            `json:"can_undo"`
	History   []string        `json:"history"` // Undo labels, newest first
}

// NewSummaryCommand creates the summary command.
func NewSummaryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the totals of a session's formula",
		Long: `Print the derived totals of the active formula: weight, cost,
ingredient count, total concentration, average cost per kg and compliance.

Only plain ingredients count; members of a formula group are excluded until
the group is expanded into the formula.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummary(rootOpts, cmd)
		},
	}

	return cmd
}

func runSummary(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	wb, err := openWorkbench(cmd.Context(), opts, newLogger(opts, cmd))
	if err != nil {
		return f.Report(err)
	}
	defer wb.Close()

	e := wb.engine
	result := SummaryResult{
		Session:   wb.sessionID,
		BatchSize: e.BatchSize(),
		Unit:      e.Unit(),
		Summary:   e.Summary(),
		Groups:    len(e.Items().Groups()),
		Selected:  []string{},
		CanUndo:   e.CanUndo(),
		History:   e.HistoryLabels(),
	}
	for _, ref := range e.Selected() {
		result.Selected = append(result.Selected, ref.ID)
	}

	if f.IsJSON() {
		return f.Success(result)
	}

	s := result.Summary
	w := f.Writer
	fmt.Fprintf(w, "Session %s\n\n", result.Session)
	fmt.Fprintf(w, "  Batch size:          %s %s\n", formatNumber(result.BatchSize), result.Unit)
	fmt.Fprintf(w, "  Ingredients:         %d (+%d group(s))\n", s.IngredientCount, result.Groups)
	fmt.Fprintf(w, "  Total weight:        %s\n", formatAmount(s.TotalWeight))
	fmt.Fprintf(w, "  Total concentration: %s%%\n", formatAmount(s.TotalConcentration))
	fmt.Fprintf(w, "  Total cost:          %s\n", formatAmount(s.TotalCost))
	fmt.Fprintf(w, "  Average cost/kg:     %s\n", formatAmount(s.AverageCostPerKg))
	fmt.Fprintf(w, "  Compliance:          %s\n", s.Compliance)
	if len(result.Selected) > 0 {
		fmt.Fprintf(w, "  Comparing with:      %v\n", result.Selected)
	}
	if result.CanUndo {
		fmt.Fprintf(w, "\nUndo available: %s\n", result.History[0])
	}
	return nil
}
