package engine

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/accord/internal/catalog"
	"github.com/roach88/accord/internal/formula"
	"github.com/roach88/accord/internal/roworder"
	"github.com/roach88/accord/internal/testutil"
)

type fixture struct {
	eng        *Engine
	cat        *catalog.Catalog
	logs       *bytes.Buffer
	actions    []Action
	rejections []Rejection
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	f := &fixture{cat: cat, logs: &bytes.Buffer{}}
	base := []Option{
		WithLogger(slog.New(slog.NewJSONHandler(f.logs, nil))),
		WithClock(testutil.NewStepClock()),
		WithIDGenerator(testutil.NewSequentialIDs()),
		WithActionHook(func(a Action) { f.actions = append(f.actions, a) }),
		WithRejectionHook(func(r Rejection) { f.rejections = append(f.rejections, r) }),
	}
	f.eng = New(cat, append(base, opts...)...)
	return f
}

func (f *fixture) ingredient(t *testing.T, id string) *formula.Ingredient {
	t.Helper()
	ing, ok := f.cat.Ingredient(id)
	require.True(t, ok, "ingredient %s", id)
	return ing
}

func (f *fixture) formula(t *testing.T, id string) formula.ReferenceFormula {
	t.Helper()
	ref, ok := f.cat.Formula(id)
	require.True(t, ok, "formula %s", id)
	return ref
}

func (f *fixture) rejectionCodes() []RejectionCode {
	var out []RejectionCode
	for _, r := range f.rejections {
		out = append(out, r.Code)
	}
	return out
}

func names(items formula.Items) []string {
	var out []string
	for _, it := range items {
		switch v := it.(type) {
		case formula.FormulaIngredient:
			out = append(out, v.Name())
		case formula.FormulaGroup:
			out = append(out, "group:"+v.Name)
		}
	}
	return out
}

func assertQuantitiesConsistent(t *testing.T, e *Engine) {
	t.Helper()
	check := func(f formula.FormulaIngredient) {
		assert.InDelta(t, f.Concentration*e.BatchSize()/100, f.Quantity, 1e-9, "line %s", f.ID)
	}
	for _, it := range e.Items() {
		switch v := it.(type) {
		case formula.FormulaIngredient:
			check(v)
		case formula.FormulaGroup:
			for _, m := range v.Ingredients {
				check(m)
			}
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)

	e := New(cat)
	assert.Empty(t, e.Items())
	assert.Equal(t, DefaultBatchSize, e.BatchSize())
	assert.Equal(t, formula.UnitGram, e.Unit())
	assert.Empty(t, e.Selected())
	assert.Len(t, e.Library(), 4)
	assert.False(t, e.CanUndo())
	assert.IsType(t, &TimestampIDs{}, e.ids)
}

func TestNew_InvalidBatchSizeFallsBack(t *testing.T) {
	f := newFixture(t, WithBatchSize(-5))
	assert.Equal(t, DefaultBatchSize, f.eng.BatchSize())
}

func TestAddIngredient_SingleLine(t *testing.T) {
	f := newFixture(t)
	f.eng.AddIngredient(f.ingredient(t, "ING001"))

	items := f.eng.Items()
	require.Len(t, items, 1)
	line, ok := items[0].(formula.FormulaIngredient)
	require.True(t, ok)
	assert.Equal(t, "ING001-1", line.ID)
	assert.InDelta(t, 2.0, line.Concentration, 1e-9)
	assert.InDelta(t, 2.0, line.Quantity, 1e-9)
	assert.Equal(t, formula.UnitGram, line.Unit)

	assert.InDelta(t, 0.24, f.eng.Summary().TotalCost, 1e-9)
	assert.Equal(t, []Action{{Label: "Add ingredient: Bergamot", Checkpointed: true}}, f.actions)
}

func TestAddIngredient_SameNameOverwrites(t *testing.T) {
	f := newFixture(t)
	bergamot := f.ingredient(t, "ING001")

	f.eng.AddIngredient(bergamot)
	f.eng.UpdateIngredient("ING001-1", IngredientUpdate{Concentration: ptr(7.5)})
	f.eng.AddIngredient(bergamot)

	items := f.eng.Items()
	require.Len(t, items, 1)
	line := items[0].(formula.FormulaIngredient)
	assert.Equal(t, "ING001-1", line.ID)
	assert.InDelta(t, 2.0, line.Concentration, 1e-9)
	assert.InDelta(t, 2.0, line.Quantity, 1e-9)
	assert.Len(t, f.eng.History(), 3)
}

func TestAddIngredient_NameMatchIgnoresCase(t *testing.T) {
	f := newFixture(t)
	f.eng.AddIngredient(f.ingredient(t, "ING001"))
	f.eng.AddIngredient(&formula.Ingredient{ID: "X9", Name: " BERGAMOT ", DefaultConcentration: 3})

	items := f.eng.Items()
	require.Len(t, items, 1)
	line := items[0].(formula.FormulaIngredient)
	assert.Equal(t, "ING001-1", line.ID)
	assert.InDelta(t, 3.0, line.Concentration, 1e-9)
}

func TestAddIngredient_Malformed(t *testing.T) {
	f := newFixture(t)
	f.eng.AddIngredient(nil)
	f.eng.AddIngredient(&formula.Ingredient{ID: "X"})

	assert.Empty(t, f.eng.Items())
	assert.False(t, f.eng.CanUndo())
	assert.Equal(t, []RejectionCode{CodeMalformedItem, CodeMalformedItem}, f.rejectionCodes())
	assert.Contains(t, f.logs.String(), `"level":"ERROR"`)
}

func TestAddIngredient_InsertsBeforeGroups(t *testing.T) {
	f := newFixture(t)
	f.eng.AddFormulaGroup(f.formula(t, "F003"))
	f.eng.AddIngredient(f.ingredient(t, "ING001"))
	f.eng.AddIngredient(f.ingredient(t, "ING012"))

	assert.Equal(t, []string{"Bergamot", "Linalool", "group:Modern Amber Woods"}, names(f.eng.Items()))
	assert.True(t, f.eng.Items().IsOrdered())
}

func TestSetBatchSize_RescalesQuantities(t *testing.T) {
	f := newFixture(t)
	f.eng.AddIngredient(f.ingredient(t, "ING001"))
	f.eng.AddFormulaGroup(f.formula(t, "F003"))

	f.eng.SetBatchSize(200)

	assert.Equal(t, 200.0, f.eng.BatchSize())
	line := f.eng.Items()[0].(formula.FormulaIngredient)
	assert.InDelta(t, 4.0, line.Quantity, 1e-9)
	assertQuantitiesConsistent(t, f.eng)
}

func TestSetBatchSize_RejectsInvalid(t *testing.T) {
	f := newFixture(t)
	f.eng.AddIngredient(f.ingredient(t, "ING001"))

	for _, size := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		f.eng.SetBatchSize(size)
	}

	assert.Equal(t, DefaultBatchSize, f.eng.BatchSize())
	assert.Len(t, f.eng.History(), 1)
	assert.Equal(t, []RejectionCode{CodeInvalidArgument, CodeInvalidArgument, CodeInvalidArgument, CodeInvalidArgument}, f.rejectionCodes())
}

func TestApplyYielding_WithLossAndRounding(t *testing.T) {
	f := newFixture(t)
	f.eng.AddIngredient(f.ingredient(t, "ING001"))
	f.eng.SetBatchSize(200)

	f.eng.ApplyYielding(YieldOptions{
		TargetYield:    50,
		LossFactor:     10,
		Rounding:       RoundingTenth,
		Scope:          ScopeActive,
		PremixHandling: PremixPreserve,
	})

	assert.Equal(t, 50.0, f.eng.BatchSize())
	line := f.eng.Items()[0].(formula.FormulaIngredient)
	assert.InDelta(t, 55.0, line.Quantity, 1e-9)
	assert.InDelta(t, 2.0, line.Concentration, 1e-9)
	assert.Equal(t, "Apply yielding: 50", f.actions[len(f.actions)-1].Label)

	summary := f.eng.Summary()
	assert.InDelta(t, 55.0, summary.TotalWeight, 1e-9)
	assert.InDelta(t, 2.0, summary.TotalConcentration, 1e-9)
	assert.Equal(t, formula.CompliancePending, summary.Compliance)
}

func TestApplyYielding_LossKeepsComplianceOfFullFormula(t *testing.T) {
	f := newFixture(t)
	f.eng.AddIngredient(f.ingredient(t, "ING005"))
	f.eng.AddIngredient(f.ingredient(t, "ING013"))
	f.eng.UpdateIngredient("ING013-2", IngredientUpdate{Concentration: ptr[float64](90)})
	require.InDelta(t, 100.0, f.eng.Summary().TotalConcentration, 1e-9)

	f.eng.ApplyYielding(YieldOptions{TargetYield: 200, LossFactor: 10})

	summary := f.eng.Summary()
	assert.InDelta(t, 220.0, summary.TotalWeight, 1e-9)
	assert.InDelta(t, 100.0, summary.TotalConcentration, 1e-9)
	assert.Equal(t, formula.CompliancePending, summary.Compliance)
	assert.Empty(t, f.rejections)
}

func TestApplyYielding_ZeroTotalIsRejected(t *testing.T) {
	f := newFixture(t)
	f.eng.ApplyYielding(YieldOptions{TargetYield: 50})

	f.eng.AddIngredient(f.ingredient(t, "ING001"))
	f.eng.UpdateIngredient("ING001-1", IngredientUpdate{Concentration: ptr[float64](0)})
	f.eng.ApplyYielding(YieldOptions{TargetYield: 50})

	assert.Equal(t, DefaultBatchSize, f.eng.BatchSize())
	assert.Equal(t, []RejectionCode{CodeDegenerateYield, CodeDegenerateYield}, f.rejectionCodes())
	assert.Contains(t, f.logs.String(), `"code":"DEGENERATE_YIELD"`)
}

func TestApplyYielding_InvalidOptions(t *testing.T) {
	f := newFixture(t)
	f.eng.AddIngredient(f.ingredient(t, "ING001"))

	f.eng.ApplyYielding(YieldOptions{TargetYield: 0})
	f.eng.ApplyYielding(YieldOptions{TargetYield: 10, LossFactor: -1})
	f.eng.ApplyYielding(YieldOptions{TargetYield: 10, Rounding: "1g"})
	f.eng.ApplyYielding(YieldOptions{TargetYield: 10, Scope: "some"})

	assert.Len(t, f.rejections, 4)
	for _, r := range f.rejections {
		assert.Equal(t, CodeInvalidArgument, r.Code)
	}
	assert.Len(t, f.eng.History(), 1)
}

func TestApplyYielding_PreserveKeepsMemberConcentrations(t *testing.T) {
	f := newFixture(t)
	f.eng.AddIngredient(f.ingredient(t, "ING001"))
	f.eng.AddFormulaGroup(f.formula(t, "F003"))

	f.eng.ApplyYielding(YieldOptions{TargetYield: 50})

	items := f.eng.Items()
	line := items[0].(formula.FormulaIngredient)
	assert.InDelta(t, 50.0, line.Quantity, 1e-9)

	g := items[1].(formula.FormulaGroup)
	require.Len(t, g.Ingredients, 5)
	assert.Equal(t, "Iso E Super", g.Ingredients[0].Name())
	assert.InDelta(t, 20.0, g.Ingredients[0].Concentration, 1e-9)
	assert.InDelta(t, 10.0, g.Ingredients[0].Quantity, 1e-9)
	assert.InDelta(t, 2.0, line.Concentration, 1e-9)
}

func TestApplyYielding_ScopeAllHitsTarget(t *testing.T) {
	f := newFixture(t)
	f.eng.AddIngredient(f.ingredient(t, "ING001"))
	f.eng.AddFormulaGroup(f.formula(t, "F003"))

	f.eng.ApplyYielding(YieldOptions{TargetYield: 50, Scope: ScopeAll})

	total := 0.0
	for _, it := range f.eng.Items() {
		switch v := it.(type) {
		case formula.FormulaIngredient:
			total += v.Quantity
		case formula.FormulaGroup:
			for _, m := range v.Ingredients {
				total += m.Quantity
			}
		}
	}
	assert.InDelta(t, 50.0, total, 1e-9)
	assert.InDelta(t, 2.0, f.eng.Items().Plain()[0].Concentration, 1e-9)
}

func TestAddFormulaGroup_DuplicateIsRejected(t *testing.T) {
	f := newFixture(t)
	ref := f.formula(t, "F003")

	f.eng.AddFormulaGroup(ref)
	f.eng.AddFormulaGroup(ref)

	groups := f.eng.Items().Groups()
	require.Len(t, groups, 1)
	assert.Equal(t, "group-F003-6", groups[0].ID)
	assert.False(t, groups[0].Expanded)
	assert.Equal(t, 5, groups[0].Metadata.IngredientCount)
	assert.InDelta(t, 43.0, groups[0].Metadata.TotalConcentration, 1e-9)

	assert.Equal(t, []RejectionCode{CodeDuplicateFormula}, f.rejectionCodes())
	assert.True(t, IsDuplicate(f.rejections[0]))
	assert.Contains(t, f.logs.String(), `"level":"WARN"`)
	assert.Contains(t, f.logs.String(), `"code":"DUPLICATE_FORMULA"`)
	assert.Len(t, f.eng.History(), 1)
}

func TestAddFormulaGroup_SkipsUnresolvedAndZero(t *testing.T) {
	f := newFixture(t)
	f.eng.AddFormulaGroup(f.formula(t, "F001"))

	g := f.eng.Items().Groups()[0]
	var got []string
	for _, m := range g.Ingredients {
		got = append(got, m.Name())
	}
	assert.Equal(t, []string{"Bergamot", "Rose Absolute", "Oakmoss Absolute", "Patchouli Oil"}, got)

	require.Len(t, f.rejections, 1)
	assert.Equal(t, CodeUnresolvedIngredient, f.rejections[0].Code)
	assert.Equal(t, "Labdanum", f.rejections[0].Subject)
}

func TestAddFormulaGroup_NothingResolves(t *testing.T) {
	f := newFixture(t)
	f.eng.AddFormulaGroup(formula.ReferenceFormula{
		ID:          "FX",
		Name:        "Unknown",
		Ingredients: []formula.ReferenceEntry{{IngredientName: "Ambergris Tincture", Concentration: 1}},
	})

	assert.Empty(t, f.eng.Items())
	assert.False(t, f.eng.CanUndo())
	assert.Equal(t, []RejectionCode{CodeUnresolvedIngredient, CodeUnresolvedIngredient}, f.rejectionCodes())
}

func TestMutualExclusion(t *testing.T) {
	f := newFixture(t)

	f.eng.AddReferenceFormula(f.formula(t, "F001"))
	f.eng.AddFormulaGroup(f.formula(t, "F001"))
	assert.Empty(t, f.eng.Items().Groups())

	f.eng.AddFormulaGroup(f.formula(t, "F003"))
	f.eng.AddReferenceFormula(f.formula(t, "F003"))
	require.Len(t, f.eng.Selected(), 1)
	assert.Equal(t, "F001", f.eng.Selected()[0].ID)

	f.eng.AddReferenceFormula(f.formula(t, "F001"))
	assert.Len(t, f.eng.Selected(), 1)

	assert.Equal(t, []RejectionCode{CodeDuplicateFormula, CodeDuplicateFormula, CodeDuplicateFormula}, f.rejectionCodes())
}

func TestMutualExclusion_UndoRestoresSelectedGroup(t *testing.T) {
	f := newFixture(t)
	f.eng.AddReferenceFormula(f.formula(t, "F001"))
	f.eng.AddFormulaGroup(f.formula(t, "F003"))
	f.eng.RemoveIngredient(f.eng.Items().Groups()[0].ID)
	f.eng.AddReferenceFormula(f.formula(t, "F003"))
	require.Len(t, f.eng.Selected(), 2)

	f.eng.UndoLastAction()

	groups := f.eng.Items().Groups()
	require.Len(t, groups, 1)
	assert.Equal(t, "F003", groups[0].SourceFormulaID)
	require.Len(t, f.eng.Selected(), 1)
	assert.Equal(t, "F001", f.eng.Selected()[0].ID)
	assert.Empty(t, f.rejections)
	assert.Equal(t, Action{Label: "Deselect reference formula: Modern Amber Woods"}, f.actions[len(f.actions)-1])
	assert.Contains(t, f.logs.String(), "selection dropped, formula restored as a group")

	restored := newFixture(t)
	require.NoError(t, restored.eng.Restore(f.eng.State()))
}

func TestReferenceSelection_NoCheckpoint(t *testing.T) {
	f := newFixture(t)
	f.eng.AddReferenceFormula(f.formula(t, "F002"))
	f.eng.AddReferenceFormula(f.formula(t, "F004"))
	f.eng.RemoveReferenceFormula("F002")
	f.eng.RemoveReferenceFormula("F002")

	require.Len(t, f.eng.Selected(), 1)
	assert.Equal(t, "F004", f.eng.Selected()[0].ID)
	assert.False(t, f.eng.CanUndo())
	assert.Equal(t, []RejectionCode{CodeNotFound}, f.rejectionCodes())
	assert.Equal(t, Action{Label: "Deselect reference formula: Fresh Citrus Cologne"}, f.actions[2])
}

func TestToggleFormulaGroup(t *testing.T) {
	f := newFixture(t)
	f.eng.AddFormulaGroup(f.formula(t, "F003"))
	id := f.eng.Items().Groups()[0].ID

	f.eng.ToggleFormulaGroup(id)
	assert.True(t, f.eng.Items().Groups()[0].Expanded)

	rows := f.eng.Rows()
	require.Len(t, rows, 7)
	assert.Equal(t, roworder.KindFormulaGroup, rows[0].Kind)
	assert.Equal(t, roworder.KindExpandedIngredient, rows[1].Kind)
	assert.Equal(t, roworder.KindBlank, rows[6].Kind)

	f.eng.ToggleFormulaGroup(id)
	assert.False(t, f.eng.Items().Groups()[0].Expanded)

	f.eng.ToggleFormulaGroup("nope")
	assert.Equal(t, []RejectionCode{CodeNotFound}, f.rejectionCodes())
}

func TestExpandFormulaGroup_DissolvesIntoPlainRun(t *testing.T) {
	f := newFixture(t)
	f.eng.AddIngredient(f.ingredient(t, "ING001"))
	f.eng.AddFormulaGroup(f.formula(t, "F003"))
	f.eng.AddFormulaGroup(f.formula(t, "F004"))
	id := f.eng.Items().Groups()[0].ID

	f.eng.ExpandFormulaGroup(id)

	assert.Equal(t, []string{
		"Bergamot", "Iso E Super", "Ambroxan", "Vanillin", "Galaxolide", "Hedione",
		"group:Transparent Floral",
	}, names(f.eng.Items()))

	// No group marker remains to toggle or expand.
	f.eng.ToggleFormulaGroup(id)
	f.eng.ExpandFormulaGroup(id)
	assert.Equal(t, []RejectionCode{CodeNotFound, CodeNotFound}, f.rejectionCodes())

	// A dissolved formula can be imported again.
	f.eng.AddFormulaGroup(f.formula(t, "F003"))
	assert.Len(t, f.eng.Items().Groups(), 2)
}

func TestAddIngredientsFromFormula(t *testing.T) {
	f := newFixture(t)
	f.eng.AddIngredient(f.ingredient(t, "ING001"))
	f.eng.AddFormulaGroup(f.formula(t, "F003"))

	f.eng.AddIngredientsFromFormula(f.formula(t, "F001"))

	items := f.eng.Items()
	assert.Equal(t, []string{
		"Bergamot", "Rose Absolute", "Oakmoss Absolute", "Patchouli Oil",
		"group:Modern Amber Woods",
	}, names(items))
	bergamot := items[0].(formula.FormulaIngredient)
	assert.Equal(t, "ING001-1", bergamot.ID)
	assert.InDelta(t, 12.0, bergamot.Concentration, 1e-9)
	assert.InDelta(t, 12.0, bergamot.Quantity, 1e-9)

	assert.Equal(t, []RejectionCode{CodeUnresolvedIngredient}, f.rejectionCodes())
	assert.Equal(t, "Add ingredients from formula: Classic Chypre", f.actions[len(f.actions)-1].Label)
}

func TestAddIngredientsFromFormula_TwiceOverwrites(t *testing.T) {
	f := newFixture(t)
	ref := f.formula(t, "F001")

	f.eng.AddIngredientsFromFormula(ref)
	first := names(f.eng.Items())
	f.eng.UpdateIngredient("ING001-1", IngredientUpdate{Concentration: ptr[float64](1)})

	f.eng.AddIngredientsFromFormula(ref)

	items := f.eng.Items()
	assert.Equal(t, first, names(items))
	assert.InDelta(t, 12.0, items[0].(formula.FormulaIngredient).Concentration, 1e-9)
	assert.Len(t, f.eng.History(), 3)
}

func TestUpdateIngredient(t *testing.T) {
	f := newFixture(t)
	f.eng.AddIngredient(f.ingredient(t, "ING001"))
	f.eng.AddFormulaGroup(f.formula(t, "F003"))
	g := f.eng.Items().Groups()[0]
	member := g.Ingredients[1]

	t.Run("concentration derives quantity", func(t *testing.T) {
		f.eng.UpdateIngredient("ING001-1", IngredientUpdate{Concentration: ptr[float64](5)})
		line := f.eng.Items()[0].(formula.FormulaIngredient)
		assert.InDelta(t, 5.0, line.Quantity, 1e-9)
	})

	t.Run("quantity derives concentration", func(t *testing.T) {
		f.eng.SetBatchSize(200)
		f.eng.UpdateIngredient("ING001-1", IngredientUpdate{Quantity: ptr[float64](30)})
		line := f.eng.Items()[0].(formula.FormulaIngredient)
		assert.InDelta(t, 15.0, line.Concentration, 1e-9)
	})

	t.Run("unit and note", func(t *testing.T) {
		ml := formula.UnitMilliliter
		f.eng.UpdateIngredient("ING001-1", IngredientUpdate{Unit: &ml, Note: ptr("cold pressed")})
		line := f.eng.Items()[0].(formula.FormulaIngredient)
		assert.Equal(t, formula.UnitMilliliter, line.Unit)
		assert.Equal(t, "cold pressed", line.Note)
	})

	t.Run("group member", func(t *testing.T) {
		f.eng.UpdateIngredient(member.ID, IngredientUpdate{Concentration: ptr[float64](4)})
		got := f.eng.Items().Groups()[0]
		assert.InDelta(t, 4.0, got.Ingredients[1].Concentration, 1e-9)
		assert.InDelta(t, 8.0, got.Ingredients[1].Quantity, 1e-9)
		assert.InDelta(t, 44.0, got.Metadata.TotalConcentration, 1e-9)
	})

	t.Run("rejections", func(t *testing.T) {
		before := len(f.eng.History())
		f.rejections = nil
		f.eng.UpdateIngredient(g.ID, IngredientUpdate{Concentration: ptr[float64](1)})
		f.eng.UpdateIngredient("missing", IngredientUpdate{Concentration: ptr[float64](1)})
		f.eng.UpdateIngredient("ING001-1", IngredientUpdate{Concentration: ptr[float64](-1)})
		f.eng.UpdateIngredient("ING001-1", IngredientUpdate{Quantity: ptr(math.Inf(1))})
		assert.Equal(t, []RejectionCode{CodeInvalidArgument, CodeNotFound, CodeInvalidArgument, CodeInvalidArgument}, f.rejectionCodes())
		assert.Len(t, f.eng.History(), before)
	})
}

func TestRemoveIngredient(t *testing.T) {
	f := newFixture(t)
	f.eng.AddIngredient(f.ingredient(t, "ING001"))
	f.eng.AddIngredient(f.ingredient(t, "ING012"))
	f.eng.AddFormulaGroup(f.formula(t, "F003"))
	f.eng.AddFormulaGroup(formula.ReferenceFormula{
		ID:          "FX",
		Name:        "Single",
		Ingredients: []formula.ReferenceEntry{{IngredientName: "Vanillin", Concentration: 1}},
	})
	groups := f.eng.Items().Groups()

	f.eng.RemoveIngredient("ING001-1")
	assert.Equal(t, []string{"Linalool", "group:Modern Amber Woods", "group:Single"}, names(f.eng.Items()))

	f.eng.RemoveIngredient(groups[0].Ingredients[0].ID)
	g := f.eng.Items().Groups()[0]
	assert.Len(t, g.Ingredients, 4)
	assert.Equal(t, 4, g.Metadata.IngredientCount)
	assert.Equal(t, "Remove ingredient: Iso E Super", f.actions[len(f.actions)-1].Label)

	// Removing the last member drops the group.
	f.eng.RemoveIngredient(groups[1].Ingredients[0].ID)
	assert.Equal(t, []string{"Linalool", "group:Modern Amber Woods"}, names(f.eng.Items()))

	f.eng.RemoveIngredient(groups[0].ID)
	assert.Equal(t, []string{"Linalool"}, names(f.eng.Items()))

	f.eng.RemoveIngredient("unknown")
	assert.Equal(t, []RejectionCode{CodeNotFound}, f.rejectionCodes())
}

func TestReplaceFormula(t *testing.T) {
	f := newFixture(t)
	f.eng.SetBatchSize(50)
	bergamot := f.ingredient(t, "ING001")
	hedione := f.ingredient(t, "ING005")

	f.eng.ReplaceFormula(formula.Items{
		formula.FormulaGroup{
			ID: "g1", Name: "Loose", SourceFormulaID: "F009",
			Ingredients: []formula.FormulaIngredient{{ID: "m1", Ingredient: hedione, Concentration: 10}},
		},
		formula.FormulaIngredient{ID: "a", Ingredient: bergamot, Concentration: 4},
		formula.FormulaIngredient{ID: "broken", Concentration: 1},
	})

	items := f.eng.Items()
	assert.Equal(t, []string{"Bergamot", "group:Loose"}, names(items))
	assert.InDelta(t, 2.0, items[0].(formula.FormulaIngredient).Quantity, 1e-9)
	g := items[1].(formula.FormulaGroup)
	assert.InDelta(t, 5.0, g.Ingredients[0].Quantity, 1e-9)
	assert.Equal(t, 1, g.Metadata.IngredientCount)

	assert.Equal(t, []RejectionCode{CodeMalformedItem}, f.rejectionCodes())
	assert.Contains(t, f.logs.String(), `"subject":"broken"`)
}

func TestReplaceFormula_DuplicateGroupsDropped(t *testing.T) {
	f := newFixture(t)
	hedione := f.ingredient(t, "ING005")
	member := func(id string) []formula.FormulaIngredient {
		return []formula.FormulaIngredient{{ID: id, Ingredient: hedione, Concentration: 10}}
	}

	f.eng.ReplaceFormula(formula.Items{
		formula.FormulaGroup{ID: "g1", Name: "First", SourceFormulaID: "F003", Ingredients: member("m1")},
		formula.FormulaGroup{ID: "g2", Name: "Same source", SourceFormulaID: "F003", Ingredients: member("m2")},
		formula.FormulaGroup{ID: "g1", Name: "Same id", SourceFormulaID: "F004", Ingredients: member("m3")},
		formula.FormulaGroup{ID: "g3", Name: "Other", SourceFormulaID: "F004", Ingredients: member("m4")},
	})

	assert.Equal(t, []string{"group:First", "group:Other"}, names(f.eng.Items()))
	assert.Equal(t, []RejectionCode{CodeDuplicateFormula, CodeDuplicateFormula}, f.rejectionCodes())
	assert.NoError(t, f.eng.Restore(f.eng.State()))
}

func TestReplaceWithReferenceFormula(t *testing.T) {
	f := newFixture(t)
	f.eng.AddIngredient(f.ingredient(t, "ING014"))

	f.eng.ReplaceWithReferenceFormula("F002")
	assert.Equal(t, []RejectionCode{CodeNotFound}, f.rejectionCodes())

	f.eng.AddReferenceFormula(f.formula(t, "F002"))
	f.eng.ReplaceWithReferenceFormula("F002")

	assert.Equal(t, []string{"Lemon Oil", "Bergamot", "Lavender Oil", "Linalool", "Ethanol"}, names(f.eng.Items()))
	assert.InDelta(t, 100.0, f.eng.Summary().TotalConcentration, 1e-9)
	assert.Len(t, f.eng.Selected(), 1)
}

func TestClearFormula_IsNotUndoable(t *testing.T) {
	f := newFixture(t)
	f.eng.AddIngredient(f.ingredient(t, "ING001"))
	f.eng.AddIngredient(f.ingredient(t, "ING005"))

	f.eng.ClearFormula()
	assert.Empty(t, f.eng.Items())
	assert.Len(t, f.eng.History(), 2)
	assert.Equal(t, Action{Label: "Clear formula"}, f.actions[len(f.actions)-1])

	f.eng.UndoLastAction()
	assert.Equal(t, []string{"Bergamot"}, names(f.eng.Items()))
}

func TestRoundOffIngredients(t *testing.T) {
	f := newFixture(t)
	f.eng.AddIngredient(f.ingredient(t, "ING001"))
	f.eng.UpdateIngredient("ING001-1", IngredientUpdate{Concentration: ptr(2.345)})
	f.eng.AddFormulaGroup(f.formula(t, "F003"))
	member := f.eng.Items().Groups()[0].Ingredients[0]
	f.eng.UpdateIngredient(member.ID, IngredientUpdate{Concentration: ptr(1.26)})

	f.eng.RoundOffIngredients()

	items := f.eng.Items()
	line := items[0].(formula.FormulaIngredient)
	assert.InDelta(t, 2.3, line.Concentration, 1e-9)
	assert.InDelta(t, 2.3, line.Quantity, 1e-9)
	assert.InDelta(t, 1.3, items[1].(formula.FormulaGroup).Ingredients[0].Concentration, 1e-9)
}

func TestUndo_RoundTrip(t *testing.T) {
	f := newFixture(t)
	f.eng.AddIngredient(f.ingredient(t, "ING001"))
	f.eng.SetBatchSize(250)
	f.eng.AddFormulaGroup(f.formula(t, "F003"))

	f.eng.UndoLastAction()
	assert.Equal(t, []string{"Bergamot"}, names(f.eng.Items()))
	assert.Equal(t, 250.0, f.eng.BatchSize())

	f.eng.UndoLastAction()
	assert.Equal(t, DefaultBatchSize, f.eng.BatchSize())
	assert.InDelta(t, 2.0, f.eng.Items()[0].(formula.FormulaIngredient).Quantity, 1e-9)

	f.eng.UndoLastAction()
	assert.Empty(t, f.eng.Items())
	assert.False(t, f.eng.CanUndo())

	f.eng.UndoLastAction()
	assert.Equal(t, []RejectionCode{CodeNotFound}, f.rejectionCodes())
	assert.Equal(t, "Undo: Add formula group: Modern Amber Woods", f.actions[3].Label)
}

func TestUndo_EvictsOldestBeyondLimit(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 12; i++ {
		f.eng.SetBatchSize(float64(i * 10))
	}
	require.Len(t, f.eng.History(), HistoryLimit)
	assert.Equal(t, "Set batch size: 120", f.eng.History()[0].Label)

	for i := 0; i < HistoryLimit; i++ {
		f.eng.UndoLastAction()
	}
	// The two oldest checkpoints were evicted; the state before op 3 remains.
	assert.Equal(t, 20.0, f.eng.BatchSize())
	assert.False(t, f.eng.CanUndo())
	assert.Empty(t, f.rejections)
}

func TestHistory_IsIsolatedFromCallers(t *testing.T) {
	f := newFixture(t)
	f.eng.AddFormulaGroup(f.formula(t, "F003"))
	f.eng.AddIngredient(f.ingredient(t, "ING001"))

	hist := f.eng.History()
	g := hist[0].Items[0].(formula.FormulaGroup)
	g.Ingredients[0].Concentration = 999

	items := f.eng.Items()
	items[0] = formula.FormulaIngredient{ID: "x"}

	again := f.eng.History()[0].Items[0].(formula.FormulaGroup)
	assert.InDelta(t, 20.0, again.Ingredients[0].Concentration, 1e-9)
	assert.Equal(t, "ING001-7", f.eng.Items()[0].ItemID())
	assert.Equal(t, testutil.Epoch.Add(time.Second), f.eng.History()[0].Timestamp)
}

func TestOrderingInvariant_AcrossOperations(t *testing.T) {
	f := newFixture(t)
	steps := []func(){
		func() { f.eng.AddFormulaGroup(f.formula(t, "F004")) },
		func() { f.eng.AddIngredient(f.ingredient(t, "ING009")) },
		func() { f.eng.AddFormulaGroup(f.formula(t, "F003")) },
		func() { f.eng.AddIngredientsFromFormula(f.formula(t, "F002")) },
		func() { f.eng.ExpandFormulaGroup(f.eng.Items().Groups()[0].ID) },
		func() { f.eng.AddIngredient(f.ingredient(t, "ING015")) },
		func() { f.eng.SetBatchSize(75) },
		func() { f.eng.UndoLastAction() },
	}
	for i, step := range steps {
		step()
		assert.True(t, f.eng.Items().IsOrdered(), "after step %d", i)
		assertQuantitiesConsistent(t, f.eng)
	}
}

func TestSummary_ExcludesGroups(t *testing.T) {
	f := newFixture(t)
	f.eng.AddIngredient(f.ingredient(t, "ING001"))
	f.eng.AddFormulaGroup(f.formula(t, "F003"))

	s := f.eng.Summary()
	assert.Equal(t, 1, s.IngredientCount)
	assert.InDelta(t, 2.0, s.TotalWeight, 1e-9)
	assert.InDelta(t, 2.0, s.TotalConcentration, 1e-9)
}

func TestState_RestoreRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.eng.AddIngredient(f.ingredient(t, "ING001"))
	f.eng.AddFormulaGroup(f.formula(t, "F003"))
	f.eng.AddReferenceFormula(f.formula(t, "F001"))
	f.eng.SetBatchSize(40)

	data, err := json.Marshal(f.eng.State())
	require.NoError(t, err)

	var s State
	require.NoError(t, json.Unmarshal(data, &s))

	g := newFixture(t)
	require.NoError(t, g.eng.Restore(s))

	assert.Equal(t, names(f.eng.Items()), names(g.eng.Items()))
	assert.Equal(t, 40.0, g.eng.BatchSize())
	require.Len(t, g.eng.Selected(), 1)
	assert.Equal(t, "F001", g.eng.Selected()[0].ID)
	assert.Len(t, g.eng.History(), 3)

	// Ingredients are relinked to the shared catalog entries.
	line := g.eng.Items()[0].(formula.FormulaIngredient)
	assert.Same(t, g.ingredient(t, "ING001"), line.Ingredient)

	g.eng.UndoLastAction()
	assert.Equal(t, DefaultBatchSize, g.eng.BatchSize())
}

func TestState_RestoreRejectsInvalid(t *testing.T) {
	f := newFixture(t)
	f.eng.AddIngredient(f.ingredient(t, "ING001"))
	bergamot := f.ingredient(t, "ING001")

	tests := []struct {
		name  string
		state State
	}{
		{"zero batch", State{BatchSize: 0}},
		{"missing ingredient", State{BatchSize: 100, Items: formula.Items{formula.FormulaIngredient{ID: "a"}}}},
		{"unordered", State{BatchSize: 100, Items: formula.Items{
			formula.FormulaGroup{ID: "g", SourceFormulaID: "F003"},
			formula.FormulaIngredient{ID: "a", Ingredient: bergamot},
		}}},
		{"unknown selection", State{BatchSize: 100, Selected: []string{"F404"}}},
		{"selected and grouped", State{BatchSize: 100, Selected: []string{"F003"}, Items: formula.Items{
			formula.FormulaGroup{ID: "g", SourceFormulaID: "F003"},
		}}},
		{"history overflow", State{BatchSize: 100, History: make([]formula.HistoryState, HistoryLimit+1)}},
		{"formula grouped twice", State{BatchSize: 100, Items: formula.Items{
			formula.FormulaGroup{ID: "g1", SourceFormulaID: "F003"},
			formula.FormulaGroup{ID: "g2", SourceFormulaID: "F003"},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, f.eng.Restore(tt.state))
			assert.Equal(t, []string{"Bergamot"}, names(f.eng.Items()))
		})
	}
}

func ptr[T any](v T) *T {
	return &v
}
