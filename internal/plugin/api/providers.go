package api

import (
	"context"
	"net/http"
)

// Providers gives API modules access to engine and host subsystems.
// Any provider may be nil; functions backed by a nil provider fail with
// ErrUnavailable after the permission check.
type Providers struct {
	// Canvas provides pixel access to the active drawing surface.
	Canvas CanvasProvider

	// Layers provides layer enumeration and mutation.
	Layers LayerProvider

	// Filters runs built-in engine filters.
	Filters FilterProvider

	// Strokes rasterizes brush strokes.
	Strokes StrokeProvider

	// History provides undo/redo.
	History HistoryProvider

	// Selection provides selection state.
	Selection SelectionProvider

	// UI provides notifications, dialogs and menu integration.
	UI UIProvider

	// HTTP performs network:fetch requests. Defaults to a client with the
	// invoke timeout when nil.
	HTTP HTTPDoer
}

// CanvasProvider defines the interface for canvas operations.
type CanvasProvider interface {
	// Size returns the canvas dimensions.
	Size() (width, height int)

	// ReadPixels returns the composited pixels inside r.
	ReadPixels(r Rect) (PixelBuffer, error)

	// WritePixels writes buf with its top-left corner at (x, y) onto the
	// active layer.
	WritePixels(x, y int, buf PixelBuffer) error
}

// LayerProvider defines the interface for layer operations.
type LayerProvider interface {
	List() []LayerInfo
	Get(id string) (LayerInfo, bool)
	Create(name string) (LayerInfo, error)
	Remove(id string) error
	Update(id string, patch LayerPatch) (LayerInfo, error)
	Active() string
	SetActive(id string) error
	ReadPixels(id string, r Rect) (PixelBuffer, error)
	WritePixels(id string, x, y int, buf PixelBuffer) error
}

// FilterProvider runs built-in filters implemented by the engine.
type FilterProvider interface {
	// BuiltinFilters lists the filter names ApplyFilter accepts.
	BuiltinFilters() []string

	// ApplyFilter runs a named filter over the active layer or selection.
	ApplyFilter(name string, params map[string]any) error
}

// StrokeProvider rasterizes strokes with the engine's default brush.
type StrokeProvider interface {
	Stroke(points []StrokePoint, options map[string]any) error
}

// HistoryProvider defines the interface for undo/redo.
type HistoryProvider interface {
	Undo() bool
	Redo() bool
	CanUndo() bool
	CanRedo() bool
	Checkpoint(label string)
}

// SelectionProvider defines the interface for selection state.
type SelectionProvider interface {
	// Get returns the selection bounds and false when nothing is selected.
	Get() (Rect, bool)
	Set(r Rect) error
	Clear()
}

// NotificationLevel represents the severity of a notification.
type NotificationLevel string

const (
	// NotificationInfo is an informational notification.
	NotificationInfo NotificationLevel = "info"
	// NotificationWarning is a warning notification.
	NotificationWarning NotificationLevel = "warning"
	// NotificationError is an error notification.
	NotificationError NotificationLevel = "error"
	// NotificationSuccess is a success notification.
	NotificationSuccess NotificationLevel = "success"
)

// MenuItem is a plugin-contributed menu entry.
type MenuItem struct {
	ID       string
	Label    string
	Menu     string
	Shortcut string
	Action   Callable
}

// ToolbarButton is a plugin-contributed toolbar button.
type ToolbarButton struct {
	ID      string
	Label   string
	Icon    string
	Tooltip string
	Action  Callable
}

// UIProvider defines the interface for host UI integration.
type UIProvider interface {
	// Notify shows a notification attributed to plugin.
	Notify(plugin, message string, level NotificationLevel) error

	// Confirm shows a yes/no dialog.
	Confirm(ctx context.Context, plugin, title, message string) (bool, error)

	// Prompt asks for text input. ok is false when cancelled.
	Prompt(ctx context.Context, plugin, title, message, defaultValue string) (value string, ok bool, err error)

	// AddMenuItem adds a menu entry owned by plugin.
	AddMenuItem(plugin string, item MenuItem) error

	// AddToolbarButton adds a toolbar button owned by plugin.
	AddToolbarButton(plugin string, button ToolbarButton) error

	// RemoveAll removes every menu entry and button owned by plugin.
	RemoveAll(plugin string)
}

// HTTPDoer performs HTTP requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}
