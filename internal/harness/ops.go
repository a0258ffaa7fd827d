package harness

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/accord/internal/engine"
	"github.com/roach88/accord/internal/formula"
)

// opFunc applies one step to e. A returned error is a script error (bad
// arguments, unknown catalog id), never an engine rejection: rejections are
// reported through the engine's hook and recorded in the trace.
type opFunc func(e *engine.Engine, args map[string]interface{}) error

// ops maps step op names to their implementation. Arguments per op:
//
//	add_ingredient                 ingredient
//	add_ingredients_from_formula   formula
//	add_formula_group              formula
//	toggle_formula_group           formula | group
//	expand_formula_group           formula | group
//	update_ingredient              ingredient | line, concentration, quantity, unit, note
//	remove_ingredient              ingredient | line | group | formula
//	replace_formula                lines: [{ingredient, concentration}]
//	replace_with_reference_formula formula
//	clear_formula                  -
//	set_batch_size                 size
//	add_reference_formula          formula
//	remove_reference_formula       formula
//	round_off_ingredients          -
//	apply_yielding                 target_yield, loss_factor, rounding, scope, premix_handling
//	undo                           -
var ops = map[string]opFunc{
	"add_ingredient":                 opAddIngredient,
	"add_ingredients_from_formula":   opAddIngredientsFromFormula,
	"add_formula_group":              opAddFormulaGroup,
	"toggle_formula_group":           opToggleFormulaGroup,
	"expand_formula_group":           opExpandFormulaGroup,
	"update_ingredient":              opUpdateIngredient,
	"remove_ingredient":              opRemoveIngredient,
	"replace_formula":                opReplaceFormula,
	"replace_with_reference_formula": opReplaceWithReferenceFormula,
	"clear_formula":                  opClearFormula,
	"set_batch_size":                 opSetBatchSize,
	"add_reference_formula":          opAddReferenceFormula,
	"remove_reference_formula":       opRemoveReferenceFormula,
	"round_off_ingredients":          opRoundOffIngredients,
	"apply_yielding":                 opApplyYielding,
	"undo":                           opUndo,
}

// OpNames returns the supported step op names, sorted.
func OpNames() []string {
	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyStep applies one step to e.
func ApplyStep(e *engine.Engine, step Step) error {
	fn, ok := ops[step.Op]
	if !ok {
		return fmt.Errorf("unknown op %q", step.Op)
	}
	if err := fn(e, step.Args); err != nil {
		return fmt.Errorf("%s: %w", step.Op, err)
	}
	return nil
}

func opAddIngredient(e *engine.Engine, args map[string]interface{}) error {
	id, err := requireString(args, "ingredient")
	if err != nil {
		return err
	}
	ing, ok := e.Catalog().Ingredient(id)
	if !ok {
		return fmt.Errorf("ingredient %q not in catalog", id)
	}
	e.AddIngredient(ing)
	return nil
}

func opAddIngredientsFromFormula(e *engine.Engine, args map[string]interface{}) error {
	ref, err := libraryFormula(e, args)
	if err != nil {
		return err
	}
	e.AddIngredientsFromFormula(ref)
	return nil
}

func opAddFormulaGroup(e *engine.Engine, args map[string]interface{}) error {
	ref, err := libraryFormula(e, args)
	if err != nil {
		return err
	}
	e.AddFormulaGroup(ref)
	return nil
}

func opToggleFormulaGroup(e *engine.Engine, args map[string]interface{}) error {
	id, err := groupTarget(e, args)
	if err != nil {
		return err
	}
	e.ToggleFormulaGroup(id)
	return nil
}

func opExpandFormulaGroup(e *engine.Engine, args map[string]interface{}) error {
	id, err := groupTarget(e, args)
	if err != nil {
		return err
	}
	e.ExpandFormulaGroup(id)
	return nil
}

func opUpdateIngredient(e *engine.Engine, args map[string]interface{}) error {
	id, err := lineTarget(e, args)
	if err != nil {
		return err
	}

	var u engine.IngredientUpdate
	if v, ok, err := optionalFloat(args, "concentration"); err != nil {
		return err
	} else if ok {
		u.Concentration = &v
	}
	if v, ok, err := optionalFloat(args, "quantity"); err != nil {
		return err
	} else if ok {
		u.Quantity = &v
	}
	if v, ok := args["unit"].(string); ok {
		unit := formula.Unit(v)
		if unit != formula.UnitGram && unit != formula.UnitMilliliter {
			return fmt.Errorf("unit must be %q or %q, got %q", formula.UnitGram, formula.UnitMilliliter, v)
		}
		u.Unit = &unit
	}
	if v, ok := args["note"].(string); ok {
		u.Note = &v
	}
	e.UpdateIngredient(id, u)
	return nil
}

func opRemoveIngredient(e *engine.Engine, args map[string]interface{}) error {
	_, byGroup := args["group"]
	_, byFormula := args["formula"]
	if byGroup || byFormula {
		return removeBy(e, args, groupTarget)
	}
	return removeBy(e, args, lineTarget)
}

func removeBy(e *engine.Engine, args map[string]interface{}, target func(*engine.Engine, map[string]interface{}) (string, error)) error {
	id, err := target(e, args)
	if err != nil {
		return err
	}
	e.RemoveIngredient(id)
	return nil
}

func opReplaceFormula(e *engine.Engine, args map[string]interface{}) error {
	raw, ok := args["lines"].([]interface{})
	if !ok {
		return fmt.Errorf("lines must be a list")
	}

	items := make(formula.Items, 0, len(raw))
	for i, entry := range raw {
		m, ok := entry.(map[string]interface{})
		if !ok {
			return fmt.Errorf("lines[%d] must be a mapping", i)
		}
		id, err := requireString(m, "ingredient")
		if err != nil {
			return fmt.Errorf("lines[%d]: %w", i, err)
		}
		conc, _, err := optionalFloat(m, "concentration")
		if err != nil {
			return fmt.Errorf("lines[%d]: %w", i, err)
		}
		// An unknown id yields a line without ingredient, which the engine
		// drops as malformed.
		ing, _ := e.Catalog().Ingredient(id)
		items = append(items, formula.FormulaIngredient{
			ID:            fmt.Sprintf("%s-replace-%d", id, i+1),
			Ingredient:    ing,
			Concentration: conc,
			Unit:          e.Unit(),
		})
	}
	e.ReplaceFormula(items)
	return nil
}

func opReplaceWithReferenceFormula(e *engine.Engine, args map[string]interface{}) error {
	id, err := requireString(args, "formula")
	if err != nil {
		return err
	}
	e.ReplaceWithReferenceFormula(id)
	return nil
}

func opClearFormula(e *engine.Engine, _ map[string]interface{}) error {
	e.ClearFormula()
	return nil
}

func opSetBatchSize(e *engine.Engine, args map[string]interface{}) error {
	size, ok, err := optionalFloat(args, "size")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("size is required")
	}
	e.SetBatchSize(size)
	return nil
}

func opAddReferenceFormula(e *engine.Engine, args map[string]interface{}) error {
	ref, err := libraryFormula(e, args)
	if err != nil {
		return err
	}
	e.AddReferenceFormula(ref)
	return nil
}

func opRemoveReferenceFormula(e *engine.Engine, args map[string]interface{}) error {
	id, err := requireString(args, "formula")
	if err != nil {
		return err
	}
	e.RemoveReferenceFormula(id)
	return nil
}

func opRoundOffIngredients(e *engine.Engine, _ map[string]interface{}) error {
	e.RoundOffIngredients()
	return nil
}

// opApplyYielding round-trips args through YAML so the option names and
// unknown-key checks stay those of engine.YieldOptions.
func opApplyYielding(e *engine.Engine, args map[string]interface{}) error {
	data, err := yaml.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	var opts engine.YieldOptions
	if err := decodeStrict(data, &opts); err != nil {
		return err
	}
	e.ApplyYielding(opts)
	return nil
}

func opUndo(e *engine.Engine, _ map[string]interface{}) error {
	e.UndoLastAction()
	return nil
}

// libraryFormula resolves the "formula" argument against the catalog
// library. An unknown id is a script error.
func libraryFormula(e *engine.Engine, args map[string]interface{}) (formula.ReferenceFormula, error) {
	id, err := requireString(args, "formula")
	if err != nil {
		return formula.ReferenceFormula{}, err
	}
	ref, ok := e.Catalog().Formula(id)
	if !ok {
		return formula.ReferenceFormula{}, fmt.Errorf("formula %q not in library", id)
	}
	return ref, nil
}

// lineTarget resolves "line" verbatim or "ingredient" to the first line of
// that catalog ingredient, plain lines before group members.
func lineTarget(e *engine.Engine, args map[string]interface{}) (string, error) {
	if id, ok := args["line"].(string); ok && id != "" {
		return id, nil
	}
	ingID, err := requireString(args, "ingredient")
	if err != nil {
		return "", fmt.Errorf("line or ingredient is required")
	}

	items := e.Items()
	for _, f := range items.Plain() {
		if f.Ingredient != nil && f.Ingredient.ID == ingID {
			return f.ID, nil
		}
	}
	for _, g := range items.Groups() {
		for _, m := range g.Ingredients {
			if m.Ingredient != nil && m.Ingredient.ID == ingID {
				return m.ID, nil
			}
		}
	}
	return ingID, nil
}

// groupTarget resolves "group" verbatim or "formula" to the group imported
// from that reference formula.
func groupTarget(e *engine.Engine, args map[string]interface{}) (string, error) {
	if id, ok := args["group"].(string); ok && id != "" {
		return id, nil
	}
	formulaID, err := requireString(args, "formula")
	if err != nil {
		return "", fmt.Errorf("group or formula is required")
	}
	if g, ok := e.Items().FindGroupBySource(formulaID); ok {
		return g.ID, nil
	}
	return formulaID, nil
}

func requireString(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%s is required", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%s must be a non-empty string, got %T", key, v)
	}
	return s, nil
}

// optionalFloat reads a number. YAML decodes integral values as int.
func optionalFloat(args map[string]interface{}, key string) (float64, bool, error) {
	v, ok := args[key]
	if !ok {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	case float64:
		return n, true, nil
	}
	return 0, false, fmt.Errorf("%s must be a number, got %T", key, v)
}
