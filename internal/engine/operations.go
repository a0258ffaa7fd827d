package engine

import (
	"fmt"
	"math"

	"github.com/roach88/accord/internal/formula"
)

// IngredientUpdate is a partial update of a formula line. Nil fields are
// left unchanged.
//
// Concentration wins over Quantity when both are set; the other figure is
// always derived from the batch size so the two never disagree.
type IngredientUpdate struct {
	Concentration *float64
	Quantity      *float64
	Unit          *formula.Unit
	Note          *string
}

// AddIngredient adds ing at its default concentration.
//
// If a plain line with the same ingredient name (compared by NameKey)
// already exists, that line's concentration is reset to the default instead
// of adding a second line.
// Otherwise the new line goes to the end of the plain run, before any group.
func (e *Engine) AddIngredient(ing *formula.Ingredient) {
	const op = "AddIngredient"
	if ing == nil || ing.ID == "" || ing.Name == "" {
		e.reject(CodeMalformedItem, op, "ingredient requires id and name", "")
		return
	}

	label := "Add ingredient: " + ing.Name
	next := e.items.Clone()
	if idx := indexOfPlainName(next, ing.Name); idx >= 0 {
		f := next[idx].(formula.FormulaIngredient)
		f.Concentration = ing.DefaultConcentration
		f.Quantity = formula.QuantityFor(f.Concentration, e.batchSize)
		next[idx] = f
		e.commit(label, next, e.batchSize)
		return
	}

	e.commit(label, next.InsertPlain(e.newLine(ing, ing.DefaultConcentration)), e.batchSize)
}

// AddIngredientsFromFormula adds every resolvable ingredient of ref with a
// concentration above zero as a plain line at the reference concentration.
// Names already present as plain lines are overwritten, as in AddIngredient.
func (e *Engine) AddIngredientsFromFormula(ref formula.ReferenceFormula) {
	const op = "AddIngredientsFromFormula"
	lines := e.resolve(op, ref)
	if len(lines) == 0 {
		e.reject(CodeUnresolvedIngredient, op, "no ingredients of the formula matched the catalog", ref.ID)
		return
	}

	e.commit("Add ingredients from formula: "+ref.Name, mergePlain(e.items.Clone(), lines), e.batchSize)
}

// AddFormulaGroup imports ref as a collapsed group appended after all
// existing groups.
//
// Rejected when ref is selected for comparison, already present as a group,
// or has no ingredient that resolves against the catalog.
func (e *Engine) AddFormulaGroup(ref formula.ReferenceFormula) {
	const op = "AddFormulaGroup"
	if ref.ID == "" || ref.Name == "" {
		e.reject(CodeMalformedItem, op, "formula requires id and name", ref.ID)
		return
	}
	if e.isSelected(ref.ID) {
		e.reject(CodeDuplicateFormula, op, "formula is already selected for comparison", ref.ID)
		return
	}
	if _, ok := e.items.FindGroupBySource(ref.ID); ok {
		e.reject(CodeDuplicateFormula, op, "formula is already added as a group", ref.ID)
		return
	}

	members := e.resolve(op, ref)
	if len(members) == 0 {
		e.reject(CodeUnresolvedIngredient, op, "no ingredients of the formula matched the catalog", ref.ID)
		return
	}

	g := formula.FormulaGroup{
		ID:              e.ids.GroupID(ref.ID),
		Name:            ref.Name,
		SourceFormulaID: ref.ID,
		Ingredients:     members,
	}
	g.RefreshMetadata()

	next := append(e.items.Clone(), g)
	e.commit("Add formula group: "+ref.Name, next, e.batchSize)
}

// ToggleFormulaGroup flips the expansion flag of a group. The list
// structure is not changed.
func (e *Engine) ToggleFormulaGroup(id string) {
	const op = "ToggleFormulaGroup"
	idx := indexOfGroup(e.items, id)
	if idx < 0 {
		e.reject(CodeNotFound, op, "formula group not found", id)
		return
	}

	next := e.items.Clone()
	g := next[idx].(formula.FormulaGroup)
	g.Expanded = !g.Expanded
	next[idx] = g
	e.commit("Toggle formula group: "+g.Name, next, e.batchSize)
}

// ExpandFormulaGroup dissolves a group: the group marker is removed and its
// members are spliced into the end of the plain run. There is no inverse.
func (e *Engine) ExpandFormulaGroup(id string) {
	const op = "ExpandFormulaGroup"
	idx := indexOfGroup(e.items, id)
	if idx < 0 {
		e.reject(CodeNotFound, op, "formula group not found", id)
		return
	}

	g := e.items[idx].(formula.FormulaGroup).Clone()
	next := make(formula.Items, 0, len(e.items)-1+len(g.Ingredients))
	next = append(next, e.items[:idx]...)
	next = append(next, e.items[idx+1:]...)
	next = next.Clone().InsertPlain(g.Ingredients...)
	e.commit("Expand formula group: "+g.Name, next, e.batchSize)
}

// UpdateIngredient merges u into the line with the given id. Plain lines
// and members nested in a group are both addressable.
func (e *Engine) UpdateIngredient(id string, u IngredientUpdate) {
	const op = "UpdateIngredient"
	if u.Concentration != nil && !validPercent(*u.Concentration) {
		e.reject(CodeInvalidArgument, op, "concentration must be a finite value >= 0", id)
		return
	}
	if u.Quantity != nil && !validAmount(*u.Quantity) {
		e.reject(CodeInvalidArgument, op, "quantity must be a finite value >= 0", id)
		return
	}

	next := e.items.Clone()
	apply := func(f formula.FormulaIngredient) formula.FormulaIngredient {
		switch {
		case u.Concentration != nil:
			f.Concentration = *u.Concentration
			f.Quantity = formula.QuantityFor(f.Concentration, e.batchSize)
		case u.Quantity != nil:
			f.Quantity = *u.Quantity
			f.Concentration = *u.Quantity * 100 / e.batchSize
		}
		if u.Unit != nil {
			f.Unit = *u.Unit
		}
		if u.Note != nil {
			f.Note = *u.Note
		}
		return f
	}

	for i, it := range next {
		switch v := it.(type) {
		case formula.FormulaIngredient:
			if v.ID == id {
				next[i] = apply(v)
				e.commit("Update ingredient: "+v.Name(), next, e.batchSize)
				return
			}
		case formula.FormulaGroup:
			if v.ID == id {
				e.reject(CodeInvalidArgument, op, "formula groups cannot be updated as ingredients", id)
				return
			}
			for j, m := range v.Ingredients {
				if m.ID == id {
					v.Ingredients[j] = apply(m)
					v.RefreshMetadata()
					next[i] = v
					e.commit("Update ingredient: "+m.Name(), next, e.batchSize)
					return
				}
			}
		}
	}
	e.reject(CodeNotFound, op, "ingredient not found", id)
}

// RemoveIngredient removes the plain line or whole group with the given id.
// A member nested in a group is removed from that group; a group left with
// no members is removed entirely.
func (e *Engine) RemoveIngredient(id string) {
	const op = "RemoveIngredient"
	next := make(formula.Items, 0, len(e.items))
	label := ""

	for _, it := range e.items.Clone() {
		switch v := it.(type) {
		case formula.FormulaIngredient:
			if v.ID == id {
				label = "Remove ingredient: " + v.Name()
				continue
			}
		case formula.FormulaGroup:
			if v.ID == id {
				label = "Remove formula group: " + v.Name
				continue
			}
			if j := indexOfLine(v.Ingredients, id); j >= 0 {
				label = "Remove ingredient: " + v.Ingredients[j].Name()
				v.Ingredients = append(v.Ingredients[:j], v.Ingredients[j+1:]...)
				if len(v.Ingredients) == 0 {
					continue
				}
				v.RefreshMetadata()
				it = v
			}
		}
		next = append(next, it)
	}

	if label == "" {
		e.reject(CodeNotFound, op, "ingredient not found", id)
		return
	}
	e.commit(label, next, e.batchSize)
}

// ReplaceFormula replaces the active formula wholesale.
//
// Lines without an ingredient are dropped with an error log. A group whose
// source formula or id repeats an earlier group is dropped. The result is
// reordered plain-then-groups and quantities are recomputed against the
// current batch size.
func (e *Engine) ReplaceFormula(items formula.Items) {
	const op = "ReplaceFormula"
	next := make(formula.Items, 0, len(items))
	seenSources := make(map[string]bool)
	seenGroups := make(map[string]bool)
	for _, it := range items.Clone() {
		switch v := it.(type) {
		case formula.FormulaIngredient:
			if v.Ingredient == nil {
				e.reject(CodeMalformedItem, op, "line has no ingredient, dropped", v.ID)
				continue
			}
			v.Quantity = formula.QuantityFor(v.Concentration, e.batchSize)
			next = append(next, v)
		case formula.FormulaGroup:
			if v.ID == "" || v.SourceFormulaID == "" {
				e.reject(CodeMalformedItem, op, "group requires id and source formula, dropped", v.Name)
				continue
			}
			if e.isSelected(v.SourceFormulaID) {
				e.reject(CodeDuplicateFormula, op, "formula is selected for comparison, group dropped", v.SourceFormulaID)
				continue
			}
			if seenSources[v.SourceFormulaID] || seenGroups[v.ID] {
				e.reject(CodeDuplicateFormula, op, "formula is already added as a group, group dropped", v.SourceFormulaID)
				continue
			}
			seenSources[v.SourceFormulaID] = true
			seenGroups[v.ID] = true
			members := v.Ingredients[:0]
			for _, m := range v.Ingredients {
				if m.Ingredient == nil {
					e.reject(CodeMalformedItem, op, "group member has no ingredient, dropped", m.ID)
					continue
				}
				m.Quantity = formula.QuantityFor(m.Concentration, e.batchSize)
				members = append(members, m)
			}
			v.Ingredients = members
			v.RefreshMetadata()
			next = append(next, v)
		}
	}
	e.commit("Replace formula", next.Normalize(), e.batchSize)
}

// ReplaceWithReferenceFormula replaces the active formula with the resolved
// ingredients of a selected reference formula.
func (e *Engine) ReplaceWithReferenceFormula(formulaID string) {
	const op = "ReplaceWithReferenceFormula"
	var ref *formula.ReferenceFormula
	for i := range e.selected {
		if e.selected[i].ID == formulaID {
			ref = &e.selected[i]
			break
		}
	}
	if ref == nil {
		e.reject(CodeNotFound, op, "formula is not selected for comparison", formulaID)
		return
	}

	lines := e.resolve(op, *ref)
	if len(lines) == 0 {
		e.reject(CodeUnresolvedIngredient, op, "no ingredients of the formula matched the catalog", formulaID)
		return
	}
	e.commit("Replace with reference formula: "+ref.Name, mergePlain(nil, lines), e.batchSize)
}

// ClearFormula empties the active formula. No checkpoint is pushed: a clear
// cannot be undone.
func (e *Engine) ClearFormula() {
	e.items = nil
	e.logger.Info("formula cleared")
	e.notify("Clear formula", false)
}

// SetBatchSize changes the batch size and rescales every quantity, group
// members included, in the same commit.
func (e *Engine) SetBatchSize(size float64) {
	const op = "SetBatchSize"
	if !(size > 0) || math.IsInf(size, 0) {
		e.reject(CodeInvalidArgument, op, "batch size must be a finite value > 0", fmt.Sprint(size))
		return
	}

	next := e.items.Clone()
	for i, it := range next {
		switch v := it.(type) {
		case formula.FormulaIngredient:
			v.Quantity = formula.QuantityFor(v.Concentration, size)
			next[i] = v
		case formula.FormulaGroup:
			for j := range v.Ingredients {
				v.Ingredients[j].Quantity = formula.QuantityFor(v.Ingredients[j].Concentration, size)
			}
			next[i] = v
		}
	}
	e.commit(fmt.Sprintf("Set batch size: %g", size), next, size)
}

// AddReferenceFormula selects ref for side-by-side comparison.
// Rejected when already selected or present as an active group.
func (e *Engine) AddReferenceFormula(ref formula.ReferenceFormula) {
	const op = "AddReferenceFormula"
	if ref.ID == "" {
		e.reject(CodeMalformedItem, op, "formula requires an id", "")
		return
	}
	if e.isSelected(ref.ID) {
		e.reject(CodeDuplicateFormula, op, "formula is already selected for comparison", ref.ID)
		return
	}
	if _, ok := e.items.FindGroupBySource(ref.ID); ok {
		e.reject(CodeDuplicateFormula, op, "formula is already added as a group", ref.ID)
		return
	}

	next := make([]formula.ReferenceFormula, 0, len(e.selected)+1)
	next = append(next, e.selected...)
	e.selected = append(next, ref)
	e.notify("Select reference formula: "+ref.Name, false)
}

// RemoveReferenceFormula deselects a reference formula.
func (e *Engine) RemoveReferenceFormula(formulaID string) {
	const op = "RemoveReferenceFormula"
	next := make([]formula.ReferenceFormula, 0, len(e.selected))
	name := ""
	for _, f := range e.selected {
		if f.ID == formulaID {
			name = f.Name
			continue
		}
		next = append(next, f)
	}
	if len(next) == len(e.selected) {
		e.reject(CodeNotFound, op, "formula is not selected for comparison", formulaID)
		return
	}
	e.selected = next
	e.notify("Deselect reference formula: "+name, false)
}

// RoundOffIngredients rounds every concentration and quantity to one
// decimal place, group members included.
func (e *Engine) RoundOffIngredients() {
	next := e.items.Clone()
	round := func(f formula.FormulaIngredient) formula.FormulaIngredient {
		f.Concentration = formula.Round(f.Concentration, 1)
		f.Quantity = formula.Round(f.Quantity, 1)
		return f
	}
	for i, it := range next {
		switch v := it.(type) {
		case formula.FormulaIngredient:
			next[i] = round(v)
		case formula.FormulaGroup:
			for j := range v.Ingredients {
				v.Ingredients[j] = round(v.Ingredients[j])
			}
			v.RefreshMetadata()
			next[i] = v
		}
	}
	e.commit("Round off ingredients", next, e.batchSize)
}

// UndoLastAction restores the newest checkpoint verbatim.
//
// Selection is not part of a checkpoint. A formula selected after the
// checkpoint was taken that the restored items hold as a group is
// deselected, reported as its own action after the undo.
func (e *Engine) UndoLastAction() {
	cp, ok := e.history.Pop()
	if !ok {
		e.reject(CodeNotFound, "UndoLastAction", "nothing to undo", "")
		return
	}
	e.items = cp.Items
	e.batchSize = cp.BatchSize
	e.logger.Debug("undo applied", "action", cp.Label, "remaining", e.history.Len())
	e.notify("Undo: "+cp.Label, false)

	kept := make([]formula.ReferenceFormula, 0, len(e.selected))
	for _, ref := range e.selected {
		if _, isGroup := e.items.FindGroupBySource(ref.ID); isGroup {
			e.logger.Warn("selection dropped, formula restored as a group", "formula", ref.ID)
			e.notify("Deselect reference formula: "+ref.Name, false)
			continue
		}
		kept = append(kept, ref)
	}
	e.selected = kept
}

// mergePlain adds lines to the plain run of items, overwriting the
// concentration and quantity of lines whose ingredient name is present.
func mergePlain(items formula.Items, lines []formula.FormulaIngredient) formula.Items {
	for _, line := range lines {
		if idx := indexOfPlainName(items, line.Name()); idx >= 0 {
			f := items[idx].(formula.FormulaIngredient)
			f.Concentration = line.Concentration
			f.Quantity = line.Quantity
			items[idx] = f
			continue
		}
		items = items.InsertPlain(line)
	}
	return items
}

// indexOfPlainName finds the plain line whose name has the same
// formula.NameKey as name.
func indexOfPlainName(items formula.Items, name string) int {
	key := formula.NameKey(name)
	for i, it := range items {
		if f, ok := it.(formula.FormulaIngredient); ok && formula.NameKey(f.Name()) == key {
			return i
		}
	}
	return -1
}

func indexOfGroup(items formula.Items, id string) int {
	for i, it := range items {
		if g, ok := it.(formula.FormulaGroup); ok && g.ID == id {
			return i
		}
	}
	return -1
}

func indexOfLine(lines []formula.FormulaIngredient, id string) int {
	for i, f := range lines {
		if f.ID == id {
			return i
		}
	}
	return -1
}

func validPercent(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}

func validAmount(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}
