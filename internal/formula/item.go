package formula

import "math"

// ItemKind discriminates the two variants of Item.
type ItemKind string

const (
	KindIngredient ItemKind = "ingredient"
	KindGroup      ItemKind = "formulaGroup"
)

// Item is a sealed interface over the active formula's line types.
// Only FormulaIngredient and FormulaGroup implement it, both as values so a
// copied slice never aliases a line owned by another snapshot.
type Item interface {
	ItemID() string
	Kind() ItemKind
	item() // Sealed
}

// FormulaIngredient is a line item of the active formula.
type FormulaIngredient struct {
	// ID is synthetic (ingredient id + timestamp) so the same catalog entry
	// added at different times has distinct identities.
	ID            string      `json:"id"`
	Ingredient    *Ingredient `json:"ingredient"`
	Concentration float64     `json:"concentration"` // % of batch
	Quantity      float64     `json:"quantity"`      // Concentration * batchSize / 100
	Unit          Unit        `json:"unit"`
	Note          string      `json:"note,omitempty"`
}

func (FormulaIngredient) item() {}

// ItemID returns the line id.
func (f FormulaIngredient) ItemID() string { return f.ID }

// Kind returns KindIngredient.
func (FormulaIngredient) Kind() ItemKind { return KindIngredient }

// Name returns the catalog name of the ingredient, or "" if the line is
// malformed (no ingredient attached).
func (f FormulaIngredient) Name() string {
	if f.Ingredient == nil {
		return ""
	}
	return f.Ingredient.Name
}

// GroupMetadata caches aggregate figures of a FormulaGroup.
type GroupMetadata struct {
	IngredientCount    int     `json:"ingredientCount"`
	TotalConcentration float64 `json:"totalConcentration"`
}

// FormulaGroup bundles the ingredients imported from one reference formula.
type FormulaGroup struct {
	ID              string              `json:"id"`
	Name            string              `json:"name"`
	SourceFormulaID string              `json:"sourceFormulaId"`
	Expanded        bool                `json:"isExpanded"`
	Ingredients     []FormulaIngredient `json:"ingredients"`
	Metadata        GroupMetadata       `json:"metadata"`
}

func (FormulaGroup) item() {}

// ItemID returns the group id.
func (g FormulaGroup) ItemID() string { return g.ID }

// Kind returns KindGroup.
func (FormulaGroup) Kind() ItemKind { return KindGroup }

// RefreshMetadata recomputes Metadata from the current member list.
func (g *FormulaGroup) RefreshMetadata() {
	total := 0.0
	for _, ing := range g.Ingredients {
		total += ing.Concentration
	}
	g.Metadata = GroupMetadata{
		IngredientCount:    len(g.Ingredients),
		TotalConcentration: total,
	}
}

// Clone returns a copy of the group that shares no member storage with g.
// Ingredient pointers are shared: catalog entries are immutable.
func (g FormulaGroup) Clone() FormulaGroup {
	out := g
	if g.Ingredients != nil {
		out.Ingredients = make([]FormulaIngredient, len(g.Ingredients))
		copy(out.Ingredients, g.Ingredients)
	}
	return out
}

// Items is an ordered active formula list.
type Items []Item

// Clone deep-copies the list so the result can be mutated or retained as a
// checkpoint without affecting the original.
func (items Items) Clone() Items {
	if items == nil {
		return nil
	}
	out := make(Items, len(items))
	for i, it := range items {
		if g, ok := it.(FormulaGroup); ok {
			out[i] = g.Clone()
			continue
		}
		out[i] = it
	}
	return out
}

// PlainRunEnd returns the index of the first FormulaGroup, or len(items) if
// there is none. New plain ingredients are inserted at this position.
func (items Items) PlainRunEnd() int {
	for i, it := range items {
		if it.Kind() == KindGroup {
			return i
		}
	}
	return len(items)
}

// InsertPlain returns a new list with ins placed at the end of the plain run.
func (items Items) InsertPlain(ins ...FormulaIngredient) Items {
	end := items.PlainRunEnd()
	out := make(Items, 0, len(items)+len(ins))
	out = append(out, items[:end]...)
	for _, f := range ins {
		out = append(out, f)
	}
	return append(out, items[end:]...)
}

// IsOrdered reports whether every plain ingredient precedes every group.
func (items Items) IsOrdered() bool {
	seenGroup := false
	for _, it := range items {
		switch it.Kind() {
		case KindGroup:
			seenGroup = true
		case KindIngredient:
			if seenGroup {
				return false
			}
		}
	}
	return true
}

// Normalize returns a stable partition of items: plain ingredients first,
// groups after, each run in original order.
func (items Items) Normalize() Items {
	out := make(Items, 0, len(items))
	for _, it := range items {
		if it.Kind() == KindIngredient {
			out = append(out, it)
		}
	}
	for _, it := range items {
		if it.Kind() == KindGroup {
			out = append(out, it)
		}
	}
	return out
}

// Plain returns the top-level plain ingredients in order.
func (items Items) Plain() []FormulaIngredient {
	var out []FormulaIngredient
	for _, it := range items {
		if f, ok := it.(FormulaIngredient); ok {
			out = append(out, f)
		}
	}
	return out
}

// Groups returns the formula groups in order.
func (items Items) Groups() []FormulaGroup {
	var out []FormulaGroup
	for _, it := range items {
		if g, ok := it.(FormulaGroup); ok {
			out = append(out, g)
		}
	}
	return out
}

// FindGroupBySource returns the group imported from formulaID, if any.
func (items Items) FindGroupBySource(formulaID string) (FormulaGroup, bool) {
	for _, g := range items.Groups() {
		if g.SourceFormulaID == formulaID {
			return g, true
		}
	}
	return FormulaGroup{}, false
}

// QuantityFor derives the absolute quantity of a line from its concentration.
func QuantityFor(concentration, batchSize float64) float64 {
	return concentration * batchSize / 100
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
