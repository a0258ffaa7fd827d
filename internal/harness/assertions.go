package harness

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/accord/internal/engine"
	"github.com/roach88/accord/internal/formula"
)

// DefaultTolerance is the absolute tolerance of numeric assertions.
const DefaultTolerance = 1e-6

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s", event.Seq, event.Op)
		if len(event.Actions) > 0 {
			fmt.Fprintf(&buf, " -> %s", strings.Join(event.Actions, "; "))
		}
		if len(event.Rejections) > 0 {
			fmt.Fprintf(&buf, " rejected %v", event.Rejections)
		}
		buf.WriteByte('\n')
	}

	return buf.String()
}

// AssertionContext provides the final state for evaluating assertions.
type AssertionContext struct {
	Engine *engine.Engine
	Result *Result
}

func (c *AssertionContext) fail(a Assertion, expected, actual any) error {
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprint(expected),
		Actual:   fmt.Sprint(actual),
		Trace:    c.Result.Trace,
	}
}

type assertionFunc func(c *AssertionContext, a Assertion) error

var assertionFuncs = map[string]assertionFunc{
	AssertItemCount:            assertItemCount,
	AssertGroupCount:           assertGroupCount,
	AssertUndoDepth:            assertUndoDepth,
	AssertPlainNames:           assertPlainNames,
	AssertGroupNames:           assertGroupNames,
	AssertSelected:             assertSelected,
	AssertBatchSize:            assertBatchSize,
	AssertSummary:              assertSummary,
	AssertQuantity:             assertQuantity,
	AssertConcentration:        assertConcentration,
	AssertCompliance:           assertCompliance,
	AssertRowKinds:             assertRowKinds,
	AssertRowNames:             assertRowNames,
	AssertRejections:           assertRejections,
	AssertOrdered:              assertOrdered,
	AssertQuantitiesConsistent: assertQuantitiesConsistent,
}

// EvaluateAssertions evaluates all assertions against the final state.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string
	if actx == nil || actx.Engine == nil {
		return []string{"assertions require an engine context"}
	}
	actx.Result = result

	for i, assertion := range assertions {
		fn, ok := assertionFuncs[assertion.Type]
		if !ok {
			errors = append(errors, fmt.Sprintf("assertion[%d]: unknown assertion type %q", i, assertion.Type))
			continue
		}
		if err := fn(actx, assertion); err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

func assertItemCount(c *AssertionContext, a Assertion) error {
	if n := len(c.Engine.Items()); n != a.Count {
		return c.fail(a, a.Count, n)
	}
	return nil
}

func assertGroupCount(c *AssertionContext, a Assertion) error {
	if n := len(c.Engine.Items().Groups()); n != a.Count {
		return c.fail(a, a.Count, n)
	}
	return nil
}

func assertUndoDepth(c *AssertionContext, a Assertion) error {
	if n := len(c.Engine.HistoryLabels()); n != a.Count {
		return c.fail(a, a.Count, n)
	}
	return nil
}

func assertPlainNames(c *AssertionContext, a Assertion) error {
	var got []string
	for _, f := range c.Engine.Items().Plain() {
		got = append(got, f.Name())
	}
	return c.compareList(a, a.Names, got)
}

func assertGroupNames(c *AssertionContext, a Assertion) error {
	var got []string
	for _, g := range c.Engine.Items().Groups() {
		got = append(got, g.Name)
	}
	return c.compareList(a, a.Names, got)
}

func assertSelected(c *AssertionContext, a Assertion) error {
	var got []string
	for _, f := range c.Engine.Selected() {
		got = append(got, f.ID)
	}
	return c.compareList(a, a.IDs, got)
}

func assertBatchSize(c *AssertionContext, a Assertion) error {
	return c.compareFloat(a, c.Engine.BatchSize())
}

// summaryFields maps the summary field names accepted by assertions.
var summaryFields = map[string]func(formula.Summary) float64{
	"total_weight":        func(s formula.Summary) float64 { return s.TotalWeight },
	"total_cost":          func(s formula.Summary) float64 { return s.TotalCost },
	"ingredient_count":    func(s formula.Summary) float64 { return float64(s.IngredientCount) },
	"total_concentration": func(s formula.Summary) float64 { return s.TotalConcentration },
	"average_cost_per_kg": func(s formula.Summary) float64 { return s.AverageCostPerKg },
}

func assertSummary(c *AssertionContext, a Assertion) error {
	get, ok := summaryFields[a.Field]
	if !ok {
		return fmt.Errorf("summary: unknown field %q", a.Field)
	}
	return c.compareFloat(a, get(c.Engine.Summary()))
}

func assertQuantity(c *AssertionContext, a Assertion) error {
	f, err := c.line(a)
	if err != nil {
		return err
	}
	return c.compareFloat(a, f.Quantity)
}

func assertConcentration(c *AssertionContext, a Assertion) error {
	f, err := c.line(a)
	if err != nil {
		return err
	}
	return c.compareFloat(a, f.Concentration)
}

func assertCompliance(c *AssertionContext, a Assertion) error {
	if got := c.Engine.Summary().Compliance; string(got) != a.Status {
		return c.fail(a, a.Status, got)
	}
	return nil
}

func assertRowKinds(c *AssertionContext, a Assertion) error {
	var got []string
	for _, r := range c.Engine.Rows() {
		got = append(got, string(r.Kind))
	}
	return c.compareList(a, a.Kinds, got)
}

// assertRowNames compares row display names. The blank sentinel has the
// empty name.
func assertRowNames(c *AssertionContext, a Assertion) error {
	var got []string
	for _, r := range c.Engine.Rows() {
		got = append(got, r.Name())
	}
	return c.compareList(a, a.Names, got)
}

func assertRejections(c *AssertionContext, a Assertion) error {
	return c.compareList(a, a.Codes, c.Result.Rejections())
}

func assertOrdered(c *AssertionContext, a Assertion) error {
	if !c.Engine.Items().IsOrdered() {
		return c.fail(a, "plain ingredients before formula groups", describeKinds(c.Engine.Items()))
	}
	return nil
}

// assertQuantitiesConsistent checks quantity = concentration * batch / 100
// for every plain line and group member.
func assertQuantitiesConsistent(c *AssertionContext, a Assertion) error {
	batch := c.Engine.BatchSize()
	tol := tolerance(a)
	check := func(f formula.FormulaIngredient) error {
		want := formula.QuantityFor(f.Concentration, batch)
		if math.Abs(want-f.Quantity) > tol {
			return c.fail(a, fmt.Sprintf("%s quantity %g", f.ID, want), f.Quantity)
		}
		return nil
	}
	items := c.Engine.Items()
	for _, f := range items.Plain() {
		if err := check(f); err != nil {
			return err
		}
	}
	for _, g := range items.Groups() {
		for _, m := range g.Ingredients {
			if err := check(m); err != nil {
				return err
			}
		}
	}
	return nil
}

// line finds the first line of the assertion's catalog ingredient, plain
// lines before group members.
func (c *AssertionContext) line(a Assertion) (formula.FormulaIngredient, error) {
	id, err := lineTarget(c.Engine, map[string]interface{}{"ingredient": a.Ingredient})
	if err != nil {
		return formula.FormulaIngredient{}, fmt.Errorf("%s: %w", a.Type, err)
	}
	items := c.Engine.Items()
	for _, f := range items.Plain() {
		if f.ID == id {
			return f, nil
		}
	}
	for _, g := range items.Groups() {
		for _, m := range g.Ingredients {
			if m.ID == id {
				return m, nil
			}
		}
	}
	return formula.FormulaIngredient{}, c.fail(a, "a line for "+a.Ingredient, "none")
}

func (c *AssertionContext) compareFloat(a Assertion, got float64) error {
	if math.Abs(got-a.Value) > tolerance(a) {
		return c.fail(a, a.Value, got)
	}
	return nil
}

func (c *AssertionContext) compareList(a Assertion, want, got []string) error {
	if !stringsEqual(want, got) {
		return c.fail(a, fmt.Sprintf("%q", want), fmt.Sprintf("%q", got))
	}
	return nil
}

func tolerance(a Assertion) float64 {
	if a.Tolerance > 0 {
		return a.Tolerance
	}
	return DefaultTolerance
}

func describeKinds(items formula.Items) string {
	kinds := make([]string, len(items))
	for i, it := range items {
		kinds[i] = string(it.Kind())
	}
	return strings.Join(kinds, ",")
}
