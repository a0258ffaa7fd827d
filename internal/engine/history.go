package engine

import "github.com/roach88/accord/internal/formula"

// HistoryLimit is the number of undo checkpoints retained.
const HistoryLimit = 10

// history is a fixed-capacity ring buffer of checkpoints.
//
// Push writes at head and, once full, overwrites the oldest entry. Pop
// removes the newest entry. Both are O(1); nothing is trimmed after the fact.
type history struct {
	buf  []formula.HistoryState
	head int // Next write position
	size int
}

func newHistory(capacity int) *history {
	return &history{buf: make([]formula.HistoryState, capacity)}
}

// Push records s as the newest checkpoint, evicting the oldest when full.
func (h *history) Push(s formula.HistoryState) {
	h.buf[h.head] = s
	h.head = (h.head + 1) % len(h.buf)
	if h.size < len(h.buf) {
		h.size++
	}
}

// Pop removes and returns the newest checkpoint.
// Returns false if the history is empty.
func (h *history) Pop() (formula.HistoryState, bool) {
	if h.size == 0 {
		return formula.HistoryState{}, false
	}
	h.head = (h.head - 1 + len(h.buf)) % len(h.buf)
	s := h.buf[h.head]

	// Release the slot so the snapshot's items can be collected.
	h.buf[h.head] = formula.HistoryState{}
	h.size--
	return s, true
}

// Len returns the number of retained checkpoints.
func (h *history) Len() int {
	return h.size
}

// Entries returns the checkpoints newest first.
func (h *history) Entries() []formula.HistoryState {
	out := make([]formula.HistoryState, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.head-1-i+2*len(h.buf))%len(h.buf)]
	}
	return out
}

// Reset drops every checkpoint.
func (h *history) Reset() {
	for i := range h.buf {
		h.buf[i] = formula.HistoryState{}
	}
	h.head = 0
	h.size = 0
}
