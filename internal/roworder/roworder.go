// Package roworder builds the unified row order shared by every formula view.
//
// The active list, the reference comparison, the attribute and the notes
// panels are rendered independently; they stay vertically aligned because
// each one renders from the same []Row produced by Build.
//
// Build is pure: it reads its inputs, never retains them, and returns rows
// holding copies of the lines they describe.
package roworder

import (
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/roach88/accord/internal/formula"
)

// RowKind discriminates row descriptors.
type RowKind string

const (
	KindIngredient         RowKind = "ingredient"
	KindFormulaGroup       RowKind = "formulaGroup"
	KindExpandedIngredient RowKind = "expandedIngredient"
	KindBlank              RowKind = "blank"
)

// Source is one selected reference formula that lists a missing ingredient.
type Source struct {
	FormulaID     string  `json:"formulaId"`
	FormulaName   string  `json:"formulaName"`
	Concentration float64 `json:"concentration"`
}

// MissingIngredient is a synthetic placeholder for an ingredient that a
// selected reference formula uses and the active formula lacks.
type MissingIngredient struct {
	Name    string   `json:"name"`
	Sources []Source `json:"sources"`
}

// Row is one row descriptor.
//
//   - KindIngredient: Ingredient set, or Missing set for a placeholder
//   - KindFormulaGroup: Group set
//   - KindExpandedIngredient: Ingredient is the member, Group its owner
//   - KindBlank: nothing set
type Row struct {
	Kind       RowKind                    `json:"type"`
	Ingredient *formula.FormulaIngredient `json:"ingredient,omitempty"`
	Group      *formula.FormulaGroup      `json:"group,omitempty"`
	Missing    *MissingIngredient         `json:"missing,omitempty"`
}

// IsMissing reports whether the row is a missing-ingredient placeholder.
func (r Row) IsMissing() bool {
	return r.Missing != nil
}

// Name returns the display name of the row ("" for the blank sentinel).
func (r Row) Name() string {
	switch {
	case r.Missing != nil:
		return r.Missing.Name
	case r.Ingredient != nil:
		return r.Ingredient.Name()
	case r.Group != nil:
		return r.Group.Name
	}
	return ""
}

// ID returns a stable identifier for the row within one row order.
func (r Row) ID() string {
	switch {
	case r.Missing != nil:
		return "missing:" + formula.NameKey(r.Missing.Name)
	case r.Ingredient != nil:
		return r.Ingredient.ID
	case r.Group != nil:
		return r.Group.ID
	}
	return string(KindBlank)
}

// Build derives the unified row order from the active items and the
// reference formulas selected for comparison.
//
// Phases, in fixed order:
//  1. plain ingredients, insertion order
//  2. groups, insertion order; an expanded group is followed by its members
//  3. ingredients used (concentration > 0) by a selected reference formula
//     and absent from phases 1-2, sorted alphabetically, one row per name
//  4. exactly one blank sentinel
//
// Members of a collapsed group count as present for phase 3 even though no
// row is emitted for them.
func Build(items formula.Items, selected []formula.ReferenceFormula) []Row {
	rows := make([]Row, 0, len(items)+1)
	present := make(map[string]struct{})

	for _, f := range items.Plain() {
		f := f
		rows = append(rows, Row{Kind: KindIngredient, Ingredient: &f})
		present[formula.NameKey(f.Name())] = struct{}{}
	}

	for _, g := range items.Groups() {
		g := g.Clone()
		rows = append(rows, Row{Kind: KindFormulaGroup, Group: &g})
		for i := range g.Ingredients {
			member := &g.Ingredients[i]
			present[formula.NameKey(member.Name())] = struct{}{}
			if g.Expanded {
				rows = append(rows, Row{Kind: KindExpandedIngredient, Ingredient: member, Group: &g})
			}
		}
	}

	for _, m := range missingIngredients(selected, present) {
		m := m
		rows = append(rows, Row{Kind: KindIngredient, Missing: &m})
	}

	return append(rows, Row{Kind: KindBlank})
}

// missingIngredients collects phase-3 placeholders, merged by name key and
// sorted with an English collator.
func missingIngredients(selected []formula.ReferenceFormula, present map[string]struct{}) []MissingIngredient {
	byKey := make(map[string]int)
	var out []MissingIngredient

	for _, ref := range selected {
		for _, entry := range ref.Ingredients {
			if entry.Concentration <= 0 {
				continue
			}
			key := formula.NameKey(entry.IngredientName)
			if key == "" {
				continue
			}
			if _, ok := present[key]; ok {
				continue
			}
			src := Source{FormulaID: ref.ID, FormulaName: ref.Name, Concentration: entry.Concentration}
			if idx, ok := byKey[key]; ok {
				out[idx].Sources = append(out[idx].Sources, src)
				continue
			}
			byKey[key] = len(out)
			out = append(out, MissingIngredient{
				Name:    strings.TrimSpace(entry.IngredientName),
				Sources: []Source{src},
			})
		}
	}

	col := collate.New(language.English, collate.IgnoreCase)
	slices.SortStableFunc(out, func(a, b MissingIngredient) int {
		if c := col.CompareString(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}
