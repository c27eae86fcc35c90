package history

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(op string) Entry {
	return Entry{OperationType: op}
}

func TestUndoRedoCursor(t *testing.T) {
	h := newWorkspaceHistory()
	assert.False(t, h.CanUndo())
	assert.False(t, h.CanRedo())

	h.Add(entry("a"))
	h.Add(entry("b"))
	assert.True(t, h.CanUndo())
	assert.False(t, h.CanRedo())

	e, err := h.UndoEntry()
	require.NoError(t, err)
	assert.Equal(t, "b", e.OperationType)
	h.MarkUndone()
	assert.True(t, h.CanRedo())

	// Redo returns the cursor to its pre-undo position.
	e, err = h.RedoEntry()
	require.NoError(t, err)
	assert.Equal(t, "b", e.OperationType)
	h.MarkRedone()
	assert.False(t, h.CanRedo())
	assert.True(t, h.CanUndo())
}

func TestDivergentActionTruncatesRedoTail(t *testing.T) {
	h := newWorkspaceHistory()
	h.Add(entry("a"))
	h.Add(entry("b"))
	h.Add(entry("c"))

	// Undo twice, back to just "a" applied.
	h.MarkUndone()
	h.MarkUndone()
	assert.True(t, h.CanRedo())

	// A new operation invalidates the redo tail.
	h.Add(entry("d"))
	assert.False(t, h.CanRedo())

	e, err := h.UndoEntry()
	require.NoError(t, err)
	assert.Equal(t, "d", e.OperationType)

	list := h.List(0, 0, true)
	require.Len(t, list, 2)
	assert.Equal(t, "d", list[0].OperationType)
	assert.Equal(t, "a", list[1].OperationType)
}

func TestCapEvictsFromHead(t *testing.T) {
	h := newWorkspaceHistory()
	for i := 0; i < MaxEntries+10; i++ {
		h.Add(entry(fmt.Sprintf("op%d", i)))
	}

	list := h.List(0, 0, true)
	require.Len(t, list, MaxEntries)
	// Most recent first; the ten oldest fell off the head.
	assert.Equal(t, fmt.Sprintf("op%d", MaxEntries+9), list[0].OperationType)
	assert.Equal(t, "op10", list[len(list)-1].OperationType)
	assert.True(t, h.CanUndo())
}

func TestUndoRedoBoundsErrors(t *testing.T) {
	h := newWorkspaceHistory()
	_, err := h.UndoEntry()
	assert.Error(t, err)
	_, err = h.RedoEntry()
	assert.Error(t, err)
}

func TestListPagination(t *testing.T) {
	h := newWorkspaceHistory()
	for i := 0; i < 10; i++ {
		h.Add(entry(fmt.Sprintf("op%d", i)))
	}

	page := h.List(3, 0, false)
	require.Len(t, page, 3)
	assert.Equal(t, "op9", page[0].OperationType)

	page = h.List(3, 9, false)
	require.Len(t, page, 1)
	assert.Equal(t, "op0", page[0].OperationType)

	page = h.List(3, 100, false)
	assert.Empty(t, page)
}

func TestManagerIsPerWorkspace(t *testing.T) {
	m := NewManager()
	m.For("ws1").Add(entry("a"))

	assert.True(t, m.For("ws1").CanUndo())
	assert.False(t, m.For("ws2").CanUndo())
	assert.Same(t, m.For("ws1"), m.For("ws1"))
}
