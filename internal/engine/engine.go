package engine

import (
	"fmt"
	"log/slog"

	"github.com/roach88/accord/internal/catalog"
	"github.com/roach88/accord/internal/formula"
	"github.com/roach88/accord/internal/roworder"
)

// DefaultBatchSize is the batch size of a fresh engine.
const DefaultBatchSize = 100.0

// Action is reported to the action hook for every applied change.
type Action struct {
	Label string

	// Checkpointed is false for changes that push no undo checkpoint
	// (ClearFormula, reference selection, undo itself).
	Checkpointed bool
}

// Engine is the single-writer formula state engine.
//
// INVARIANTS:
//   - items is replaced wholesale on commit, never edited in place, so
//     checkpoints may share it without copying
//   - selected never contains a formula that is also an active group
type Engine struct {
	catalog   *catalog.Catalog
	items     formula.Items
	batchSize float64
	unit      formula.Unit
	selected  []formula.ReferenceFormula
	history   *history

	clock    Clock
	ids      IDGenerator
	logger   *slog.Logger
	onAction func(Action)
	onReject func(Rejection)
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithClock sets the checkpoint clock. Default: SystemClock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDGenerator sets the line/group id generator.
// Default: TimestampIDs over the engine clock.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithBatchSize sets the initial batch size. Default: DefaultBatchSize.
func WithBatchSize(size float64) Option {
	return func(e *Engine) {
		e.batchSize = size
	}
}

// WithUnit sets the unit of new lines. Default: grams.
func WithUnit(u formula.Unit) Option {
	return func(e *Engine) {
		e.unit = u
	}
}

// WithActionHook registers fn to be called after every applied change.
// Used by the CLI to journal actions.
func WithActionHook(fn func(Action)) Option {
	return func(e *Engine) {
		e.onAction = fn
	}
}

// WithRejectionHook registers fn to be called for every ignored request.
func WithRejectionHook(fn func(Rejection)) Option {
	return func(e *Engine) {
		e.onReject = fn
	}
}

// New creates an engine over the given catalog with an empty formula.
func New(cat *catalog.Catalog, opts ...Option) *Engine {
	e := &Engine{
		catalog:   cat,
		batchSize: DefaultBatchSize,
		unit:      formula.UnitGram,
		history:   newHistory(HistoryLimit),
		clock:     SystemClock{},
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.ids == nil {
		e.ids = NewTimestampIDs(e.clock)
	}
	if !(e.batchSize > 0) {
		e.batchSize = DefaultBatchSize
	}
	return e
}

// Items returns a copy of the active formula.
func (e *Engine) Items() formula.Items {
	return e.items.Clone()
}

// BatchSize returns the current batch size.
func (e *Engine) BatchSize() float64 {
	return e.batchSize
}

// Unit returns the unit assigned to new lines.
func (e *Engine) Unit() formula.Unit {
	return e.unit
}

// Selected returns the reference formulas selected for comparison.
func (e *Engine) Selected() []formula.ReferenceFormula {
	out := make([]formula.ReferenceFormula, len(e.selected))
	copy(out, e.selected)
	return out
}

// Library returns every reference formula of the catalog.
func (e *Engine) Library() []formula.ReferenceFormula {
	return e.catalog.Formulas()
}

// Catalog returns the ingredient catalog the engine resolves against.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// Summary derives the totals of the current formula.
func (e *Engine) Summary() formula.Summary {
	return formula.Summarize(e.items)
}

// Rows derives the unified row order of the current state.
func (e *Engine) Rows() []roworder.Row {
	return roworder.Build(e.items, e.selected)
}

// CanUndo reports whether an undo checkpoint is available.
func (e *Engine) CanUndo() bool {
	return e.history.Len() > 0
}

// History returns the undo checkpoints, newest first.
func (e *Engine) History() []formula.HistoryState {
	entries := e.history.Entries()
	for i := range entries {
		entries[i].Items = entries[i].Items.Clone()
	}
	return entries
}

// HistoryLabels returns the labels of the undo checkpoints, newest first.
func (e *Engine) HistoryLabels() []string {
	entries := e.history.Entries()
	out := make([]string, len(entries))
	for i, h := range entries {
		out[i] = h.Label
	}
	return out
}

// commit pushes a checkpoint of the current state and installs next.
func (e *Engine) commit(label string, next formula.Items, batchSize float64) {
	e.history.Push(formula.HistoryState{
		Items:     e.items,
		BatchSize: e.batchSize,
		Timestamp: e.clock.Now(),
		Label:     label,
	})
	e.items = next
	e.batchSize = batchSize
	e.logger.Debug("formula committed", "action", label, "items", len(next), "batch_size", batchSize)
	e.notify(label, true)
}

func (e *Engine) notify(label string, checkpointed bool) {
	if e.onAction != nil {
		e.onAction(Action{Label: label, Checkpointed: checkpointed})
	}
}

// newLine builds a line for ing at conc% of the current batch.
func (e *Engine) newLine(ing *formula.Ingredient, conc float64) formula.FormulaIngredient {
	return formula.FormulaIngredient{
		ID:            e.ids.LineID(ing.ID),
		Ingredient:    ing,
		Concentration: conc,
		Quantity:      formula.QuantityFor(conc, e.batchSize),
		Unit:          e.unit,
	}
}

// resolve converts the entries of ref with concentration > 0 into lines by
// catalog name matching. Unmatched names are dropped with a warning.
func (e *Engine) resolve(op string, ref formula.ReferenceFormula) []formula.FormulaIngredient {
	var lines []formula.FormulaIngredient
	for _, entry := range ref.Ingredients {
		if entry.Concentration <= 0 {
			continue
		}
		ing, kind := e.catalog.Match(entry.IngredientName)
		if ing == nil {
			e.reject(CodeUnresolvedIngredient, op,
				fmt.Sprintf("ingredient not found in catalog, skipped (formula %s)", ref.ID),
				entry.IngredientName)
			continue
		}
		if kind == catalog.MatchSubstring {
			e.logger.Debug("ingredient matched by substring", "name", entry.IngredientName, "catalog", ing.Name)
		}
		lines = append(lines, e.newLine(ing, entry.Concentration))
	}
	return lines
}

// isSelected reports whether formulaID is selected for comparison.
func (e *Engine) isSelected(formulaID string) bool {
	for _, f := range e.selected {
		if f.ID == formulaID {
			return true
		}
	}
	return false
}
