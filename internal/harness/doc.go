// Package harness runs formula-engine scenarios as executable tests.
//
// A scenario applies a list of engine operations to a fresh engine and then
// evaluates assertions against the final state. Every run uses a
// deterministic clock and id generator, so traces and row orders are
// byte-identical across runs and can be compared against golden files.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	catalog: fixtures/          # optional, relative to the scenario file
//	batch_size: 100             # optional
//	steps:
//	  - op: add_ingredient
//	    args: { ingredient: ING001 }
//	  - op: add_formula_group
//	    args: { formula: F003 }
//	    expect:
//	      rejected: [DUPLICATE_FORMULA]
//	assertions:
//	  - type: plain_names
//	    names: [Bergamot]
//	  - type: summary
//	    field: total_cost
//	    value: 0.24
//
// # Step Targets
//
// Line and group ids are generated by the engine, so steps address them
// indirectly: "ingredient" selects the first line of a catalog ingredient
// (plain lines before group members), "formula" selects the group imported
// from a reference formula. "line" and "group" take literal ids. A target
// that resolves to nothing is passed through verbatim so the engine reports
// NOT_FOUND.
//
// # Assertion Types
//
//   - item_count, group_count, undo_depth: exact counts
//   - plain_names, group_names, selected: ordered lists
//   - batch_size, summary, quantity, concentration: numbers within tolerance
//   - compliance: summary compliance status
//   - row_kinds, row_names: the unified row order
//   - rejections: every rejection code of the run, in order
//   - ordered, quantities_consistent: engine invariants
//
// The same step format drives `accord apply`, see LoadScript and ApplyStep.
package harness
