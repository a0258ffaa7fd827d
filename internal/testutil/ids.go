package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates predictable line and group ids.
//
// Lines get "<ingredientID>-<n>" and groups "group-<formulaID>-<n>", with n
// counting from 1 across both kinds. The same scenario with a fresh
// SequentialIDs produces byte-identical output, which golden files rely on.
//
// Implements engine.IDGenerator.
type SequentialIDs struct {
	mu sync.Mutex
	n  int
}

// NewSequentialIDs creates a generator whose first id ends in 1.
func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{}
}

// LineID returns "<ingredientID>-<n>".
func (g *SequentialIDs) LineID(ingredientID string) string {
	return fmt.Sprintf("%s-%d", ingredientID, g.advance())
}

// GroupID returns "group-<formulaID>-<n>".
func (g *SequentialIDs) GroupID(formulaID string) string {
	return fmt.Sprintf("group-%s-%d", formulaID, g.advance())
}

func (g *SequentialIDs) advance() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return g.n
}
