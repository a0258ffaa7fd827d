package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/accord/internal/catalog"
	"github.com/roach88/accord/internal/formula"
)

// CatalogOptions holds flags for the catalog command.
type CatalogOptions struct {
	*RootOptions
	Formulas bool // list the reference-formula library instead of ingredients
}

// CatalogListing is the JSON payload of the catalog command.
type CatalogListing struct {
	Ingredients []*formula.Ingredient      `json:"ingredients,omitempty"`
	Formulas    []formula.ReferenceFormula `json:"formulas,omitempty"`
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CatalogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List catalog ingredients or reference formulas",
		Long: `List the ingredients of the catalog, or with --formulas the reference
formula library. Ids shown here are the ids operation scripts refer to.

Examples:
  accord catalog
  accord catalog --formulas
  accord catalog --catalog ./fixtures --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Formulas, "formulas", false, "list reference formulas")

	return cmd
}

func runCatalog(opts *CatalogOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	cat, errs := loadCatalog(opts.Catalog)
	if len(errs) > 0 {
		return f.Fail(ExitCommandError, ErrCodeCatalog, errs[0].Error(), nil)
	}

	if opts.Formulas {
		return outputFormulas(f, cat)
	}
	return outputIngredients(f, cat)
}

func outputIngredients(f *OutputFormatter, cat *catalog.Catalog) error {
	ings := cat.Ingredients()
	if f.IsJSON() {
		return f.Success(CatalogListing{Ingredients: ings})
	}

	rows := make([][]string, 0, len(ings))
	for _, ing := range ings {
		rows = append(rows, []string{
			ing.ID,
			ing.Name,
			string(ing.Category),
			formatNumber(ing.DefaultConcentration),
			formatNumber(ing.CostPerKg),
			restriction(ing),
		})
	}
	return f.Table([]string{"ID", "NAME", "CATEGORY", "DEFAULT %", "COST/KG", "MAX %"}, rows)
}

func outputFormulas(f *OutputFormatter, cat *catalog.Catalog) error {
	refs := cat.Formulas()
	if f.IsJSON() {
		return f.Success(CatalogListing{Formulas: refs})
	}

	rows := make([][]string, 0, len(refs))
	for _, ref := range refs {
		unresolved := 0
		for _, entry := range ref.Ingredients {
			if entry.Concentration <= 0 {
				continue
			}
			if ing, _ := cat.Match(entry.IngredientName); ing == nil {
				unresolved++
			}
		}
		rows = append(rows, []string{
			ref.ID,
			ref.Name,
			ref.Metadata.Base,
			strconv.Itoa(len(ref.Ingredients)),
			strconv.Itoa(unresolved),
		})
	}
	return f.Table([]string{"ID", "NAME", "BASE", "INGREDIENTS", "UNRESOLVED"}, rows)
}

// restriction renders the compliance ceiling of ing, "-" when none.
func restriction(ing *formula.Ingredient) string {
	if ing.Compliance == nil || ing.Compliance.MaxConcentration == 0 {
		return "-"
	}
	s := formatNumber(ing.Compliance.MaxConcentration)
	if ing.Compliance.Restricted {
		s += " (restricted)"
	}
	return s
}

// formatNumber renders v with the fewest digits that round-trip.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatAmount renders a quantity or percentage with three decimals.
func formatAmount(v float64) string {
	return fmt.Sprintf("%.3f", v)
}
