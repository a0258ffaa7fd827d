package engine

import (
	"fmt"

	"github.com/google/uuid"
)

// IDGenerator assigns identities to new formula lines and groups.
// Implemented by TimestampIDs (production) and testutil.SequentialIDs (tests).
type IDGenerator interface {
	// LineID returns an id for a new line of the given catalog ingredient.
	LineID(ingredientID string) string

	// GroupID returns an id for a new group imported from formulaID.
	GroupID(formulaID string) string
}

// TimestampIDs derives line ids from the ingredient id and a millisecond
// timestamp, and group ids from time-sortable UUIDv7s.
//
// Timestamps are forced strictly increasing so lines created within the
// same millisecond (bulk imports) still get distinct ids.
type TimestampIDs struct {
	clock Clock
	last  int64
}

// NewTimestampIDs creates a generator reading time from clock.
func NewTimestampIDs(clock Clock) *TimestampIDs {
	return &TimestampIDs{clock: clock}
}

// LineID returns "<ingredientID>-<unix millis>".
func (g *TimestampIDs) LineID(ingredientID string) string {
	ts := g.clock.Now().UnixMilli()
	if ts <= g.last {
		ts = g.last + 1
	}
	g.last = ts
	return fmt.Sprintf("%s-%d", ingredientID, ts)
}

// GroupID returns "group-<uuidv7>".
//
// Panics if UUID generation fails (should never happen in practice).
func (g *TimestampIDs) GroupID(string) string {
	return "group-" + uuid.Must(uuid.NewV7()).String()
}
