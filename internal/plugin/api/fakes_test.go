package api

import (
	"context"
	"errors"
	"sync"

	"github.com/dshills/brushwork/internal/plugin/security"
)

// recorder counts provider calls shared by all fakes.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return ""
	}
	return r.calls[len(r.calls)-1]
}

type fakeCanvas struct {
	*recorder
	written []PixelBuffer
}

func (c *fakeCanvas) Size() (int, int) {
	c.record("canvas.Size")
	return 2, 1
}

func (c *fakeCanvas) ReadPixels(r Rect) (PixelBuffer, error) {
	c.record("canvas.ReadPixels")
	return NewPixelBuffer(r.Width, r.Height), nil
}

func (c *fakeCanvas) WritePixels(x, y int, buf PixelBuffer) error {
	c.record("canvas.WritePixels")
	c.written = append(c.written, buf)
	return nil
}

type fakeLayers struct {
	*recorder
}

func (l *fakeLayers) List() []LayerInfo {
	l.record("layers.List")
	return []LayerInfo{{ID: "bg", Name: "Background", Visible: true, Opacity: 1}}
}

func (l *fakeLayers) Get(id string) (LayerInfo, bool) {
	l.record("layers.Get")
	return LayerInfo{ID: id}, id == "bg"
}

func (l *fakeLayers) Create(name string) (LayerInfo, error) {
	l.record("layers.Create")
	return LayerInfo{ID: "l2", Name: name}, nil
}

func (l *fakeLayers) Remove(string) error {
	l.record("layers.Remove")
	return nil
}

func (l *fakeLayers) Update(id string, p LayerPatch) (LayerInfo, error) {
	l.record("layers.Update")
	info := LayerInfo{ID: id}
	if p.Name != nil {
		info.Name = *p.Name
	}
	return info, nil
}

func (l *fakeLayers) Active() string {
	l.record("layers.Active")
	return "bg"
}

func (l *fakeLayers) SetActive(string) error {
	l.record("layers.SetActive")
	return nil
}

func (l *fakeLayers) ReadPixels(_ string, r Rect) (PixelBuffer, error) {
	l.record("layers.ReadPixels")
	return NewPixelBuffer(r.Width, r.Height), nil
}

func (l *fakeLayers) WritePixels(string, int, int, PixelBuffer) error {
	l.record("layers.WritePixels")
	return nil
}

type fakeFilters struct {
	*recorder
}

func (f *fakeFilters) BuiltinFilters() []string { return []string{"grayscale"} }

func (f *fakeFilters) ApplyFilter(name string, _ map[string]any) error {
	f.record("filters.Apply")
	if name != "grayscale" {
		return errors.New("unknown filter")
	}
	return nil
}

type fakeStrokes struct {
	*recorder
	points []StrokePoint
}

func (f *fakeStrokes) Stroke(points []StrokePoint, _ map[string]any) error {
	f.record("strokes.Stroke")
	f.points = points
	return nil
}

type fakeHistory struct {
	*recorder
}

func (h *fakeHistory) Undo() bool        { h.record("history.Undo"); return true }
func (h *fakeHistory) Redo() bool        { h.record("history.Redo"); return false }
func (h *fakeHistory) CanUndo() bool     { h.record("history.CanUndo"); return true }
func (h *fakeHistory) CanRedo() bool     { h.record("history.CanRedo"); return false }
func (h *fakeHistory) Checkpoint(string) { h.record("history.Checkpoint") }

type fakeSelection struct {
	*recorder
	rect *Rect
}

func (s *fakeSelection) Get() (Rect, bool) {
	s.record("selection.Get")
	if s.rect == nil {
		return Rect{}, false
	}
	return *s.rect, true
}

func (s *fakeSelection) Set(r Rect) error {
	s.record("selection.Set")
	s.rect = &r
	return nil
}

func (s *fakeSelection) Clear() {
	s.record("selection.Clear")
	s.rect = nil
}

type fakeUI struct {
	*recorder
	removed []string
}

func (u *fakeUI) Notify(string, string, NotificationLevel) error {
	u.record("ui.Notify")
	return nil
}

func (u *fakeUI) Confirm(context.Context, string, string, string) (bool, error) {
	u.record("ui.Confirm")
	return true, nil
}

func (u *fakeUI) Prompt(_ context.Context, _, _, _, def string) (string, bool, error) {
	u.record("ui.Prompt")
	return def + "!", true, nil
}

func (u *fakeUI) AddMenuItem(string, MenuItem) error {
	u.record("ui.AddMenuItem")
	return nil
}

func (u *fakeUI) AddToolbarButton(string, ToolbarButton) error {
	u.record("ui.AddToolbarButton")
	return nil
}

func (u *fakeUI) RemoveAll(plugin string) {
	u.removed = append(u.removed, plugin)
}

type fakeProviders struct {
	rec       *recorder
	canvas    *fakeCanvas
	strokes   *fakeStrokes
	selection *fakeSelection
	ui        *fakeUI
}

func newFakeProviders() (*fakeProviders, Providers) {
	rec := &recorder{}
	f := &fakeProviders{
		rec:       rec,
		canvas:    &fakeCanvas{recorder: rec},
		strokes:   &fakeStrokes{recorder: rec},
		selection: &fakeSelection{recorder: rec},
		ui:        &fakeUI{recorder: rec},
	}
	return f, Providers{
		Canvas:    f.canvas,
		Layers:    &fakeLayers{recorder: rec},
		Filters:   &fakeFilters{recorder: rec},
		Strokes:   f.strokes,
		History:   &fakeHistory{recorder: rec},
		Selection: f.selection,
		UI:        f.ui,
	}
}

type countingObserver struct {
	mu     sync.Mutex
	denied map[security.Permission]int
}

func (o *countingObserver) PermissionDenied(_ string, p security.Permission, _ string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.denied == nil {
		o.denied = make(map[security.Permission]int)
	}
	o.denied[p]++
}

func noop() Callable {
	return CallableFunc(func(context.Context, ...any) (any, error) { return nil, nil })
}
