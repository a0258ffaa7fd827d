package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	bergamot = &Ingredient{ID: "I1", Name: "Bergamot", DefaultConcentration: 2.0, CostPerKg: 0.12}
	iso      = &Ingredient{ID: "I2", Name: "Iso E Super", DefaultConcentration: 10, CostPerKg: 0.05}
)

func line(id string, ing *Ingredient, conc float64) FormulaIngredient {
	return FormulaIngredient{ID: id, Ingredient: ing, Concentration: conc, Quantity: conc, Unit: UnitGram}
}

func TestItems_InsertPlainKeepsGroupsLast(t *testing.T) {
	items := Items{
		line("a", bergamot, 2),
		FormulaGroup{ID: "g1", SourceFormulaID: "F1"},
	}

	out := items.InsertPlain(line("b", iso, 10))

	require.Len(t, out, 3)
	assert.Equal(t, []string{"a", "b", "g1"}, ids(out))
	assert.True(t, out.IsOrdered())
	// The original list is untouched.
	assert.Equal(t, []string{"a", "g1"}, ids(items))
}

func TestItems_PlainRunEnd(t *testing.T) {
	assert.Equal(t, 0, Items{}.PlainRunEnd())
	assert.Equal(t, 1, Items{line("a", bergamot, 1)}.PlainRunEnd())
	assert.Equal(t, 0, Items{FormulaGroup{ID: "g"}, line("a", bergamot, 1)}.PlainRunEnd())
}

func TestItems_NormalizeIsStable(t *testing.T) {
	items := Items{
		FormulaGroup{ID: "g1"},
		line("a", bergamot, 1),
		FormulaGroup{ID: "g2"},
		line("b", iso, 1),
	}
	assert.False(t, items.IsOrdered())

	out := items.Normalize()
	assert.Equal(t, []string{"a", "b", "g1", "g2"}, ids(out))
	assert.True(t, out.IsOrdered())
}

func TestItems_CloneDoesNotAliasGroupMembers(t *testing.T) {
	g := FormulaGroup{ID: "g1", Ingredients: []FormulaIngredient{line("m1", bergamot, 1)}}
	items := Items{g}

	clone := items.Clone()
	cg := clone[0].(FormulaGroup)
	cg.Ingredients[0].Concentration = 50

	assert.Equal(t, 1.0, items[0].(FormulaGroup).Ingredients[0].Concentration)
	// Catalog entries stay shared.
	assert.Same(t, bergamot, cg.Ingredients[0].Ingredient)
}

func TestFormulaGroup_RefreshMetadata(t *testing.T) {
	g := FormulaGroup{Ingredients: []FormulaIngredient{line("m1", bergamot, 1.5), line("m2", iso, 3)}}
	g.RefreshMetadata()
	assert.Equal(t, 2, g.Metadata.IngredientCount)
	assert.InDelta(t, 4.5, g.Metadata.TotalConcentration, 1e-9)
}

func TestItems_FindGroupBySource(t *testing.T) {
	items := Items{line("a", bergamot, 1), FormulaGroup{ID: "g1", SourceFormulaID: "F1"}}

	g, ok := items.FindGroupBySource("F1")
	require.True(t, ok)
	assert.Equal(t, "g1", g.ID)

	_, ok = items.FindGroupBySource("F2")
	assert.False(t, ok)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 55.0, Round(54.99, 1))
	assert.Equal(t, 1.24, Round(1.2351, 2))
	assert.Equal(t, 3.0, Round(3.04, 1))
}

func TestFormulaIngredient_NameWithoutIngredient(t *testing.T) {
	assert.Equal(t, "", FormulaIngredient{ID: "x"}.Name())
	assert.Equal(t, "Bergamot", line("a", bergamot, 1).Name())
}

func ids(items Items) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ItemID()
	}
	return out
}

func TestNameKey(t *testing.T) {
	assert.Equal(t, NameKey("Bergamot"), NameKey("  BERGAMOT "))
	assert.Equal(t, NameKey("Méthyl Ionone"), NameKey("méthyl ionone"))
	assert.NotEqual(t, NameKey("Bergamot"), NameKey("Bergamot Oil"))
}
