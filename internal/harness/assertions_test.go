package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/accord/internal/engine"
)

func evaluate(t *testing.T, e *engine.Engine, result *Result, assertions ...Assertion) []string {
	t.Helper()
	if result == nil {
		result = NewResult()
	}
	return EvaluateAssertions(result, assertions, &AssertionContext{Engine: e})
}

func TestEvaluateAssertions_AllPass(t *testing.T) {
	e, _ := newTestEngine(t)
	require.NoError(t, ApplyStep(e, step("add_ingredient", map[string]interface{}{"ingredient": "ING010"})))
	require.NoError(t, ApplyStep(e, step("add_formula_group", map[string]interface{}{"formula": "F004"})))

	errs := evaluate(t, e, nil,
		Assertion{Type: AssertItemCount, Count: 2},
		Assertion{Type: AssertGroupCount, Count: 1},
		Assertion{Type: AssertUndoDepth, Count: 2},
		Assertion{Type: AssertPlainNames, Names: []string{"Oakmoss Absolute"}},
		Assertion{Type: AssertGroupNames, Names: []string{"Transparent Floral"}},
		Assertion{Type: AssertSelected},
		Assertion{Type: AssertBatchSize, Value: 100},
		Assertion{Type: AssertSummary, Field: "total_weight", Value: 0.5},
		Assertion{Type: AssertSummary, Field: "average_cost_per_kg", Value: 2.1},
		Assertion{Type: AssertQuantity, Ingredient: "ING004", Value: 1.5},
		Assertion{Type: AssertConcentration, Ingredient: "ING005", Value: 25},
		Assertion{Type: AssertCompliance, Status: "pending"},
		Assertion{Type: AssertRowKinds, Kinds: []string{"ingredient", "formulaGroup", "blank"}},
		Assertion{Type: AssertRowNames, Names: []string{"Oakmoss Absolute", "Transparent Floral", ""}},
		Assertion{Type: AssertRejections},
		Assertion{Type: AssertOrdered},
		Assertion{Type: AssertQuantitiesConsistent},
	)
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_SomeFail(t *testing.T) {
	e, _ := newTestEngine(t)
	require.NoError(t, ApplyStep(e, step("add_ingredient", map[string]interface{}{"ingredient": "ING001"})))

	errs := evaluate(t, e, nil,
		Assertion{Type: AssertItemCount, Count: 1},
		Assertion{Type: AssertItemCount, Count: 3},
		Assertion{Type: AssertSummary, Field: "total_cost", Value: 1},
		Assertion{Type: AssertSummary, Field: "total_cost", Value: 0.2401, Tolerance: 0.001},
	)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "Assertion failed: item_count")
	assert.Contains(t, errs[0], "Expected: 3")
	assert.Contains(t, errs[0], "Actual: 1")
	assert.Contains(t, errs[1], "Assertion failed: summary")
}

func TestEvaluateAssertions_UnknownType(t *testing.T) {
	e, _ := newTestEngine(t)
	errs := evaluate(t, e, nil, Assertion{Type: "unknown_type"})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], `unknown assertion type "unknown_type"`)
}

func TestEvaluateAssertions_NoEngine(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{{Type: AssertOrdered}}, nil)
	assert.Equal(t, []string{"assertions require an engine context"}, errs)
}

func TestEvaluateAssertions_MissingLine(t *testing.T) {
	e, _ := newTestEngine(t)
	errs := evaluate(t, e, nil, Assertion{Type: AssertQuantity, Ingredient: "ING001", Value: 1})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "a line for ING001")
}

func TestEvaluateAssertions_UnknownSummaryField(t *testing.T) {
	e, _ := newTestEngine(t)
	errs := evaluate(t, e, nil, Assertion{Type: AssertSummary, Field: "smell"})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], `unknown field "smell"`)
}

func TestEvaluateAssertions_Rejections(t *testing.T) {
	e, _ := newTestEngine(t)
	result := NewResult()
	result.Trace = []TraceEvent{
		{Seq: 1, Op: "undo", Rejections: []string{"NOT_FOUND"}},
		{Seq: 2, Op: "set_batch_size", Rejections: []string{"INVALID_ARGUMENT"}},
	}

	assert.Empty(t, evaluate(t, e, result, Assertion{Type: AssertRejections, Codes: []string{"NOT_FOUND", "INVALID_ARGUMENT"}}))
	errs := evaluate(t, e, result, Assertion{Type: AssertRejections, Codes: []string{"NOT_FOUND"}})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "[2] set_batch_size rejected [INVALID_ARGUMENT]")
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertGroupCount,
		Expected: "2",
		Actual:   "1",
		Trace: []TraceEvent{
			{Seq: 1, Op: "add_formula_group", Actions: []string{"Add formula group: Classic Chypre"}},
			{Seq: 2, Op: "add_formula_group", Rejections: []string{"DUPLICATE_FORMULA"}},
		},
	}

	want := "Assertion failed: group_count\n" +
		"  Expected: 2\n" +
		"  Actual: 1\n" +
		"\nFull trace:\n" +
		"  [1] add_formula_group -> Add formula group: Classic Chypre\n" +
		"  [2] add_formula_group rejected [DUPLICATE_FORMULA]\n"
	assert.Equal(t, want, err.Error())
}
