// Package engine implements the formula state engine of the workbench.
//
// The engine owns the canonical active formula (plain ingredients and
// formula groups), the batch size, the set of reference formulas selected
// for comparison and a bounded undo history. Views read from it and invoke
// its mutators; they never hold mutable copies.
//
// ARCHITECTURE:
//
// Single Writer:
// Every operation is a plain synchronous call. Mutators compute a complete
// new item list and commit it in one assignment, so a reader never observes
// a partially applied change. The engine is not safe for concurrent use;
// callers serialize access the same way a UI event loop does.
//
// Operation Flow:
//  1. Validate the request (reject = log + no-op)
//  2. Build the next item list from a clone of the current one
//  3. Push a checkpoint of the pre-mutation state onto the history
//  4. Commit the new list and batch size
//  5. Notify the action hook (journaling)
//
// Read Side:
// Summary() and Rows() are derived from the committed state on every call.
// Nothing is cached, so nothing needs invalidating.
//
// INVARIANTS:
//   - Plain ingredients precede formula groups in Items()
//   - quantity == concentration * batchSize / 100 after SetBatchSize and
//     after any concentration edit
//   - A reference formula is never both selected and present as a group
//   - History holds at most HistoryLimit checkpoints, newest first
//
// Failure Semantics:
// Duplicate, unresolvable, malformed and degenerate requests are logged
// (slog, with a "code" attribute) and ignored. Mutators return nothing.
package engine
