// Package formula defines the data model of the formula workbench.
//
// The catalog types (Ingredient, ReferenceFormula) are immutable reference
// data. The active formula is an ordered list of Items, each either a plain
// FormulaIngredient or a FormulaGroup bundling the ingredients imported from
// one reference formula.
//
// INVARIANTS:
//   - Every plain FormulaIngredient precedes every FormulaGroup (see IsOrdered).
//   - Quantity == Concentration * batchSize / 100 after any batch-size or
//     concentration change (see QuantityFor).
//   - A FormulaGroup's Metadata always describes its current Ingredients
//     (see FormulaGroup.RefreshMetadata).
//
// Summaries are derived on every read by Summarize and are never cached.
package formula
