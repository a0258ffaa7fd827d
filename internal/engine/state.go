package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/accord/internal/formula"
)

// State is the persistable snapshot of an engine: the active formula, the
// comparison selection and the undo history.
type State struct {
	Items     formula.Items          `json:"items"`
	BatchSize float64                `json:"batchSize"`
	Unit      formula.Unit           `json:"unit"`
	Selected  []string               `json:"selected"` // Reference formula ids
	History   []formula.HistoryState `json:"history"`  // Newest first
}

// State returns a deep copy of the engine state.
func (e *Engine) State() State {
	selected := make([]string, 0, len(e.selected))
	for _, f := range e.selected {
		selected = append(selected, f.ID)
	}
	return State{
		Items:     e.items.Clone(),
		BatchSize: e.batchSize,
		Unit:      e.unit,
		Selected:  selected,
		History:   e.History(),
	}
}

// Restore replaces the engine state with s.
//
// Ingredients are relinked to the shared catalog entries by id; a line whose
// ingredient is no longer in the catalog keeps the decoded copy. Selected
// ids must name library formulas. On error the engine is left unchanged.
func (e *Engine) Restore(s State) error {
	if !(s.BatchSize > 0) {
		return fmt.Errorf("restore: batch size must be > 0, got %g", s.BatchSize)
	}

	items, err := e.relink(s.Items)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	if !items.IsOrdered() {
		return errors.New("restore: plain ingredients must precede formula groups")
	}
	sources := make(map[string]bool)
	for _, g := range items.Groups() {
		if sources[g.SourceFormulaID] {
			return fmt.Errorf("restore: formula %q is added as more than one group", g.SourceFormulaID)
		}
		sources[g.SourceFormulaID] = true
	}

	selected := make([]formula.ReferenceFormula, 0, len(s.Selected))
	for _, id := range s.Selected {
		ref, ok := e.catalog.Formula(id)
		if !ok {
			return fmt.Errorf("restore: selected formula %q not in library", id)
		}
		if _, dup := items.FindGroupBySource(id); dup {
			return fmt.Errorf("restore: formula %q is both selected and an active group", id)
		}
		selected = append(selected, ref)
	}

	if len(s.History) > HistoryLimit {
		return fmt.Errorf("restore: %d history entries exceed limit %d", len(s.History), HistoryLimit)
	}
	checkpoints := make([]formula.HistoryState, len(s.History))
	for i, h := range s.History {
		hItems, err := e.relink(h.Items)
		if err != nil {
			return fmt.Errorf("restore: history[%d]: %w", i, err)
		}
		h.Items = hItems
		checkpoints[i] = h
	}

	e.items = items
	e.batchSize = s.BatchSize
	if s.Unit != "" {
		e.unit = s.Unit
	}
	e.selected = selected
	e.history.Reset()
	for i := len(checkpoints) - 1; i >= 0; i-- {
		e.history.Push(checkpoints[i])
	}

	e.logger.Debug("state restored", "items", len(items), "selected", len(selected), "history", len(checkpoints))
	return nil
}

func (e *Engine) relink(items formula.Items) (formula.Items, error) {
	out := items.Clone()
	link := func(f formula.FormulaIngredient) (formula.FormulaIngredient, error) {
		if f.ID == "" || f.Ingredient == nil {
			return f, fmt.Errorf("line %q has no ingredient", f.ID)
		}
		if ing, ok := e.catalog.Ingredient(f.Ingredient.ID); ok {
			f.Ingredient = ing
		}
		return f, nil
	}

	for i, it := range out {
		switch v := it.(type) {
		case formula.FormulaIngredient:
			f, err := link(v)
			if err != nil {
				return nil, err
			}
			out[i] = f
		case formula.FormulaGroup:
			if v.ID == "" || v.SourceFormulaID == "" {
				return nil, fmt.Errorf("group %q has no id or source formula", v.Name)
			}
			for j, m := range v.Ingredients {
				f, err := link(m)
				if err != nil {
					return nil, fmt.Errorf("group %q: %w", v.ID, err)
				}
				v.Ingredients[j] = f
			}
			out[i] = v
		}
	}
	return out, nil
}
