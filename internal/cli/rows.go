package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/accord/internal/roworder"
)

// RowsResult is the JSON payload of the rows command.
type RowsResult struct {
	Session     string         `json:"session"`
	Rows        []roworder.Row `json:"rows"`
	Fingerprint string         `json:"fingerprint"`
}

// NewRowsCommand creates the rows command.
func NewRowsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rows",
		Short: "Print the unified row order of a session",
		Long: `Print the unified row order shared by every formula view: plain
ingredients, formula groups (with members when expanded), ingredients used by
the selected reference formulas but missing from the formula, then one blank
row. The fingerprint changes only when the layout does.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRows(rootOpts, cmd)
		},
	}

	return cmd
}

func runRows(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	wb, err := openWorkbench(cmd.Context(), opts, newLogger(opts, cmd))
	if err != nil {
		return f.Report(err)
	}
	defer wb.Close()

	rows := wb.engine.Rows()
	fp, err := roworder.Fingerprint(rows)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	if f.IsJSON() {
		return f.Success(RowsResult{Session: wb.sessionID, Rows: rows, Fingerprint: fp})
	}

	table := make([][]string, 0, len(rows))
	for i, r := range rows {
		table = append(table, rowCells(i+1, r))
	}
	if err := f.Table([]string{"#", "KIND", "NAME", "CONC %", "QTY", "NOTE"}, table); err != nil {
		return err
	}
	fmt.Fprintf(f.Writer, "\nfingerprint %s\n", fp)
	return nil
}

// rowCells renders one row. Members are indented under their group and
// missing ingredients list the reference formulas that use them.
func rowCells(n int, r roworder.Row) []string {
	cells := []string{strconv.Itoa(n), string(r.Kind), r.Name(), "", "", ""}
	switch {
	case r.IsMissing():
		cells[1] = "missing"
		sources := make([]string, 0, len(r.Missing.Sources))
		for _, s := range r.Missing.Sources {
			sources = append(sources, fmt.Sprintf("%s %s%%", s.FormulaID, formatNumber(s.Concentration)))
		}
		cells[5] = strings.Join(sources, ", ")
	case r.Kind == roworder.KindFormulaGroup:
		state := "collapsed"
		if r.Group.Expanded {
			state = "expanded"
		}
		cells[3] = formatAmount(r.Group.Metadata.TotalConcentration)
		cells[5] = fmt.Sprintf("%d member(s), %s", r.Group.Metadata.IngredientCount, state)
	case r.Ingredient != nil:
		if r.Kind == roworder.KindExpandedIngredient {
			cells[2] = "  " + cells[2]
		}
		cells[3] = formatAmount(r.Ingredient.Concentration)
		cells[4] = formatAmount(r.Ingredient.Quantity) + " " + string(r.Ingredient.Unit)
		cells[5] = r.Ingredient.Note
	}
	return cells
}
