package history

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

// The cursor must stay inside [-1, len-1] and the entry count inside
// [0, MaxEntries] under any interleaving of add/undo/redo.
func TestHistoryCursorStaysInBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		h := newWorkspaceHistory()
		n := 0

		steps := rapid.IntRange(1, 300).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				h.Add(Entry{OperationType: fmt.Sprintf("op%d", n)})
				n++
			case 1:
				if h.CanUndo() {
					if _, err := h.UndoEntry(); err != nil {
						t.Fatalf("CanUndo true but UndoEntry failed: %v", err)
					}
					h.MarkUndone()
				}
			case 2:
				if h.CanRedo() {
					if _, err := h.RedoEntry(); err != nil {
						t.Fatalf("CanRedo true but RedoEntry failed: %v", err)
					}
					h.MarkRedone()
				}
			}

			if h.position < -1 || h.position > len(h.entries)-1 {
				t.Fatalf("cursor %d out of bounds for %d entries", h.position, len(h.entries))
			}
			if len(h.entries) > MaxEntries {
				t.Fatalf("history grew to %d entries beyond the cap", len(h.entries))
			}
		}
	})
}

// Undo immediately followed by redo is always the identity on the
// cursor position.
func TestUndoRedoRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		h := newWorkspaceHistory()
		adds := rapid.IntRange(1, 50).Draw(t, "adds")
		for i := 0; i < adds; i++ {
			h.Add(Entry{OperationType: fmt.Sprintf("op%d", i)})
		}
		undos := rapid.IntRange(0, adds-1).Draw(t, "undos")
		for i := 0; i < undos; i++ {
			h.MarkUndone()
		}

		before := h.position
		if !h.CanUndo() {
			return
		}
		h.MarkUndone()
		h.MarkRedone()
		if h.position != before {
			t.Fatalf("undo+redo moved cursor from %d to %d", before, h.position)
		}
	})
}
