package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/accord/internal/catalog"
)

// ValidationError is one problem found in a fixture directory.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool              `json:"valid"`
	Ingredients int               `json:"ingredients"`
	Formulas    int               `json:"formulas"`
	Unresolved  []string          `json:"unresolved,omitempty"` // "<formula id>: <ingredient name>"
	Errors      []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <fixtures-dir>",
		Short: "Validate CUE catalog fixtures",
		Long: `Validate a directory of CUE catalog fixtures against the catalog schema.

Every invalid entry is reported with its position, not just the first.
Reference formula ingredients that match nothing in the catalog are listed
as warnings: they are skipped when the formula is imported.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	cat, loadErrors := catalog.LoadDir(dir, catalog.LoadModeCollectAll)
	result := ValidationResult{Valid: len(loadErrors) == 0}
	for _, err := range loadErrors {
		result.Errors = append(result.Errors, toValidationError(err))
	}

	if cat != nil {
		result.Ingredients = len(cat.Ingredients())
		result.Formulas = len(cat.Formulas())
		for _, ref := range cat.Formulas() {
			for _, entry := range ref.Ingredients {
				if entry.Concentration <= 0 {
					continue
				}
				if ing, _ := cat.Match(entry.IngredientName); ing == nil {
					result.Unresolved = append(result.Unresolved, ref.ID+": "+entry.IngredientName)
				}
			}
		}
		f.VerboseLog("Loaded %d ingredient(s), %d formula(s) from %s", result.Ingredients, result.Formulas, dir)
	}

	if f.IsJSON() {
		if !result.Valid {
			_ = f.Error(result.Errors[0].Code, result.Errors[0].Message, result)
			return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
		}
		return f.Success(result)
	}

	if !result.Valid {
		fmt.Fprintln(f.Writer, "✗ Validation failed")
		fmt.Fprintln(f.Writer)
		for _, e := range result.Errors {
			if e.File != "" {
				fmt.Fprintf(f.Writer, "%s:%d:%d\n", e.File, e.Line, e.Column)
			}
			fmt.Fprintf(f.Writer, "  %s: %s\n\n", e.Code, e.Message)
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}

	fmt.Fprintf(f.Writer, "✓ %d ingredient(s), %d formula(s) valid\n", result.Ingredients, result.Formulas)
	for _, u := range result.Unresolved {
		fmt.Fprintf(f.Writer, "  warning: unresolved ingredient %s\n", u)
	}
	return nil
}

// toValidationError maps a catalog load error to its reported form.
func toValidationError(err error) ValidationError {
	var loadErr *catalog.LoadError
	if !errors.As(err, &loadErr) {
		return ValidationError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	ve := ValidationError{Code: loadErr.Code, Message: loadErr.Message}
	if loadErr.Pos.IsValid() {
		ve.File = loadErr.Pos.Filename()
		ve.Line = loadErr.Pos.Line()
		ve.Column = loadErr.Pos.Column()
	}
	return ve
}
