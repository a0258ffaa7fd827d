package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/accord/internal/engine"
	"github.com/roach88/accord/internal/formula"
)

var testTime = time.Date(2024, time.March, 1, 9, 30, 0, 0, time.UTC)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestState creates a small state with one plain line and one
// checkpoint.
func createTestState() engine.State {
	bergamot := &formula.Ingredient{ID: "ING001", Name: "Bergamot", DefaultConcentration: 2, CostPerKg: 0.12}
	line := formula.FormulaIngredient{ID: "ING001-1", Ingredient: bergamot, Concentration: 2, Quantity: 2, Unit: formula.UnitGram}
	return engine.State{
		Items:     formula.Items{line},
		BatchSize: 100,
		Unit:      formula.UnitGram,
		Selected:  []string{"F001"},
		History: []formula.HistoryState{
			{BatchSize: 100, Timestamp: testTime, Label: "Add ingredient: Bergamot"},
		},
	}
}

// saveTestSession stores createTestState under id.
func saveTestSession(t *testing.T, s *Store, id string) {
	t.Helper()
	if err := s.SaveSession(context.Background(), id, createTestState(), testTime); err != nil {
		t.Fatalf("SaveSession() failed: %v", err)
	}
}
