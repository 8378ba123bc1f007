package canvas

import (
	"fmt"
	"time"

	"github.com/dshills/brushwork/internal/plugin/api"
)

// DefaultHistoryLimit is the number of checkpoints kept when no limit is set.
const DefaultHistoryLimit = 50

// state is a restorable copy of the document contents.
type state struct {
	label     string
	timestamp time.Time
	layers    []*layer
	active    string
	selection *api.Rect
}

// history keeps undo and redo stacks of document states.
// It is guarded by the document mutex.
type history struct {
	undoStack []*state
	redoStack []*state

	maxEntries int
}

func newHistory(maxEntries int) *history {
	if maxEntries <= 0 {
		maxEntries = DefaultHistoryLimit
	}
	return &history{maxEntries: maxEntries}
}

// captureLocked copies the current contents.
func (d *Document) captureLocked(label string) *state {
	s := &state{
		label:     label,
		timestamp: time.Now(),
		layers:    make([]*layer, len(d.layers)),
		active:    d.active,
	}
	for i, l := range d.layers {
		s.layers[i] = l.clone()
	}
	if d.selection != nil {
		sel := *d.selection
		s.selection = &sel
	}
	return s
}

// restoreLocked replaces the contents with s.
func (d *Document) restoreLocked(s *state) {
	d.layers = s.layers
	d.active = s.active
	d.selection = s.selection
}

// History returns the undo/redo facet.
func (d *Document) History() api.HistoryProvider {
	return historyFacet{d}
}

type historyFacet struct{ d *Document }

// Checkpoint records the current contents as an undo step and clears redo.
func (h historyFacet) Checkpoint(label string) {
	d := h.d
	d.mu.Lock()
	defer d.mu.Unlock()

	hist := d.history
	hist.undoStack = append(hist.undoStack, d.captureLocked(label))
	hist.redoStack = nil

	// Enforce max entries
	if len(hist.undoStack) > hist.maxEntries {
		excess := len(hist.undoStack) - hist.maxEntries
		hist.undoStack = hist.undoStack[excess:]
	}
}

// Undo restores the last checkpoint. It returns false when there is none.
func (h historyFacet) Undo() bool {
	d := h.d
	d.mu.Lock()
	defer d.mu.Unlock()

	hist := d.history
	if len(hist.undoStack) == 0 {
		return false
	}
	prev := hist.undoStack[len(hist.undoStack)-1]
	hist.undoStack = hist.undoStack[:len(hist.undoStack)-1]
	hist.redoStack = append(hist.redoStack, d.captureLocked(prev.label))
	d.restoreLocked(prev)
	return true
}

// Redo reapplies the last undone step.
func (h historyFacet) Redo() bool {
	d := h.d
	d.mu.Lock()
	defer d.mu.Unlock()

	hist := d.history
	if len(hist.redoStack) == 0 {
		return false
	}
	next := hist.redoStack[len(hist.redoStack)-1]
	hist.redoStack = hist.redoStack[:len(hist.redoStack)-1]
	hist.undoStack = append(hist.undoStack, d.captureLocked(next.label))
	d.restoreLocked(next)
	return true
}

func (h historyFacet) CanUndo() bool {
	h.d.mu.Lock()
	defer h.d.mu.Unlock()
	return len(h.d.history.undoStack) > 0
}

func (h historyFacet) CanRedo() bool {
	h.d.mu.Lock()
	defer h.d.mu.Unlock()
	return len(h.d.history.redoStack) > 0
}

// Selection returns the selection facet.
func (d *Document) Selection() api.SelectionProvider {
	return selectionFacet{d}
}

type selectionFacet struct{ d *Document }

func (s selectionFacet) Get() (api.Rect, bool) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if s.d.selection == nil {
		return api.Rect{}, false
	}
	return *s.d.selection, true
}

// Set selects r clipped to the document. A selection that misses the
// document entirely is rejected.
func (s selectionFacet) Set(r api.Rect) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	clipped := intersect(r, s.d.bounds())
	if clipped.Empty() {
		return fmt.Errorf("%w: %dx%d at (%d,%d)", ErrEmptySelection, r.Width, r.Height, r.X, r.Y)
	}
	s.d.selection = &clipped
	return nil
}

func (s selectionFacet) Clear() {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.selection = nil
}

// intersect returns the overlap of a and b.
func intersect(a, b api.Rect) api.Rect {
	x0, y0 := max(a.X, b.X), max(a.Y, b.Y)
	x1, y1 := min(a.X+a.Width, b.X+b.Width), min(a.Y+a.Height, b.Y+b.Height)
	if x1 <= x0 || y1 <= y0 {
		return api.Rect{}
	}
	return api.Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}
