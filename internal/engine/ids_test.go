package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frozenClock struct{ t time.Time }

func (c frozenClock) Now() time.Time { return c.t }

func TestTimestampIDs_LineIDsStrictlyIncrease(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	ids := NewTimestampIDs(frozenClock{t: at})

	assert.Equal(t, "ING001-1700000000000", ids.LineID("ING001"))
	assert.Equal(t, "ING001-1700000000001", ids.LineID("ING001"))
	assert.Equal(t, "ING002-1700000000002", ids.LineID("ING002"))
}

func TestTimestampIDs_GroupIDsAreUnique(t *testing.T) {
	ids := NewTimestampIDs(SystemClock{})

	a := ids.GroupID("F001")
	b := ids.GroupID("F001")
	require.True(t, strings.HasPrefix(a, "group-"))
	assert.NotEqual(t, a, b)
	assert.Len(t, strings.TrimPrefix(a, "group-"), 36)
}
