package canvas

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dshills/brushwork/internal/plugin/api"
)

// Common errors for document operations.
var (
	ErrLayerNotFound  = errors.New("layer not found")
	ErrLayerLocked    = errors.New("layer is locked")
	ErrLastLayer      = errors.New("cannot remove the last layer")
	ErrUnknownFilter  = errors.New("unknown filter")
	ErrEmptySelection = errors.New("selection is empty")
	ErrOutside        = errors.New("rect lies outside the document")
)

// BackgroundID is the id of the layer every document starts with.
const BackgroundID = "background"

// layer is one raster layer the size of the document.
type layer struct {
	info   api.LayerInfo
	pixels api.PixelBuffer
}

func (l *layer) clone() *layer {
	return &layer{info: l.info, pixels: l.pixels.Clone()}
}

// Document is an in-memory raster document. It backs the API providers
// for tests and the command line host; its facets are safe for concurrent
// use.
type Document struct {
	mu sync.Mutex

	width  int
	height int
	layers []*layer
	active string

	selection *api.Rect

	history *history
	ui      *ConsoleUI
	log     *logrus.Entry
}

// Option configures a Document.
type Option func(*Document)

// WithLogger sets the logger used by the console UI and strokes.
func WithLogger(l *logrus.Logger) Option {
	return func(d *Document) {
		d.log = l.WithField("component", "canvas")
	}
}

// WithHistoryLimit caps the number of undo checkpoints.
func WithHistoryLimit(n int) Option {
	return func(d *Document) {
		d.history = newHistory(n)
	}
}

// New creates a document with one transparent background layer.
func New(width, height int, opts ...Option) *Document {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	d := &Document{
		width:   width,
		height:  height,
		history: newHistory(0),
		log:     logrus.StandardLogger().WithField("component", "canvas"),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.layers = []*layer{{
		info:   api.LayerInfo{ID: BackgroundID, Name: "Background", Visible: true, Opacity: 1, BlendMode: "normal"},
		pixels: api.NewPixelBuffer(width, height),
	}}
	d.active = BackgroundID
	d.ui = NewConsoleUI(d.log)
	return d
}

// Providers returns every provider facet of the document.
func (d *Document) Providers() api.Providers {
	return api.Providers{
		Canvas:    d.Canvas(),
		Layers:    d.Layers(),
		Filters:   d.Filters(),
		Strokes:   d.Strokes(),
		History:   d.History(),
		Selection: d.Selection(),
		UI:        d.ui,
	}
}

// UI returns the console UI provider.
func (d *Document) UI() *ConsoleUI {
	return d.ui
}

// Canvas returns the composited canvas facet.
func (d *Document) Canvas() api.CanvasProvider {
	return canvasFacet{d}
}

// Layers returns the layer facet.
func (d *Document) Layers() api.LayerProvider {
	return layerFacet{d}
}

// findLocked returns the index of a layer or -1.
func (d *Document) findLocked(id string) int {
	for i, l := range d.layers {
		if l.info.ID == id {
			return i
		}
	}
	return -1
}

// activeLocked returns the active layer.
func (d *Document) activeLocked() *layer {
	if i := d.findLocked(d.active); i >= 0 {
		return d.layers[i]
	}
	return d.layers[len(d.layers)-1]
}

// bounds returns the document rectangle.
func (d *Document) bounds() api.Rect {
	return api.Rect{Width: d.width, Height: d.height}
}

// clampLocked intersects r with the document.
func (d *Document) clampLocked(r api.Rect) (api.Rect, error) {
	c := intersect(r, d.bounds())
	if c.Width == 0 || c.Height == 0 {
		return api.Rect{}, fmt.Errorf("%w: %dx%d at %d,%d", ErrOutside, r.Width, r.Height, r.X, r.Y)
	}
	return c, nil
}

type canvasFacet struct{ d *Document }

func (c canvasFacet) Size() (int, int) {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	return c.d.width, c.d.height
}

// ReadPixels composites the visible layers bottom to top. The result
// covers r clamped to the document.
func (c canvasFacet) ReadPixels(r api.Rect) (api.PixelBuffer, error) {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()

	r, err := c.d.clampLocked(r)
	if err != nil {
		return api.PixelBuffer{}, err
	}
	out := api.NewPixelBuffer(r.Width, r.Height)
	for _, l := range c.d.layers {
		if !l.info.Visible || l.info.Opacity <= 0 {
			continue
		}
		src := crop(l.pixels, r)
		composite(out, src, l.info.Opacity)
	}
	return out, nil
}

// WritePixels writes onto the active layer.
func (c canvasFacet) WritePixels(x, y int, buf api.PixelBuffer) error {
	if err := buf.Validate(); err != nil {
		return err
	}
	c.d.mu.Lock()
	defer c.d.mu.Unlock()

	l := c.d.activeLocked()
	if l.info.Locked {
		return fmt.Errorf("%w: %s", ErrLayerLocked, l.info.ID)
	}
	blit(l.pixels, x, y, buf)
	return nil
}

type layerFacet struct{ d *Document }

func (f layerFacet) List() []api.LayerInfo {
	f.d.mu.Lock()
	defer f.d.mu.Unlock()
	out := make([]api.LayerInfo, len(f.d.layers))
	for i, l := range f.d.layers {
		out[i] = l.info
	}
	return out
}

func (f layerFacet) Get(id string) (api.LayerInfo, bool) {
	f.d.mu.Lock()
	defer f.d.mu.Unlock()
	if i := f.d.findLocked(id); i >= 0 {
		return f.d.layers[i].info, true
	}
	return api.LayerInfo{}, false
}

// Create adds a transparent layer above the active one and activates it.
func (f layerFacet) Create(name string) (api.LayerInfo, error) {
	f.d.mu.Lock()
	defer f.d.mu.Unlock()

	if name == "" {
		name = fmt.Sprintf("Layer %d", len(f.d.layers)+1)
	}
	l := &layer{
		info: api.LayerInfo{
			ID:        "layer-" + uuid.NewString()[:8],
			Name:      name,
			Visible:   true,
			Opacity:   1,
			BlendMode: "normal",
		},
		pixels: api.NewPixelBuffer(f.d.width, f.d.height),
	}

	at := f.d.findLocked(f.d.active) + 1
	f.d.layers = append(f.d.layers, nil)
	copy(f.d.layers[at+1:], f.d.layers[at:])
	f.d.layers[at] = l
	f.d.active = l.info.ID
	return l.info, nil
}

func (f layerFacet) Remove(id string) error {
	f.d.mu.Lock()
	defer f.d.mu.Unlock()

	i := f.d.findLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrLayerNotFound, id)
	}
	if len(f.d.layers) == 1 {
		return ErrLastLayer
	}
	f.d.layers = append(f.d.layers[:i], f.d.layers[i+1:]...)
	if f.d.active == id {
		f.d.active = f.d.layers[max(i-1, 0)].info.ID
	}
	return nil
}

func (f layerFacet) Update(id string, patch api.LayerPatch) (api.LayerInfo, error) {
	f.d.mu.Lock()
	defer f.d.mu.Unlock()

	i := f.d.findLocked(id)
	if i < 0 {
		return api.LayerInfo{}, fmt.Errorf("%w: %s", ErrLayerNotFound, id)
	}
	if patch.Opacity != nil && (*patch.Opacity < 0 || *patch.Opacity > 1) {
		return api.LayerInfo{}, fmt.Errorf("opacity %v is outside [0, 1]", *patch.Opacity)
	}
	info := &f.d.layers[i].info
	if patch.Name != nil {
		info.Name = *patch.Name
	}
	if patch.Visible != nil {
		info.Visible = *patch.Visible
	}
	if patch.Opacity != nil {
		info.Opacity = *patch.Opacity
	}
	if patch.BlendMode != nil {
		info.BlendMode = *patch.BlendMode
	}
	if patch.Locked != nil {
		info.Locked = *patch.Locked
	}
	return *info, nil
}

func (f layerFacet) Active() string {
	f.d.mu.Lock()
	defer f.d.mu.Unlock()
	return f.d.active
}

func (f layerFacet) SetActive(id string) error {
	f.d.mu.Lock()
	defer f.d.mu.Unlock()
	if f.d.findLocked(id) < 0 {
		return fmt.Errorf("%w: %s", ErrLayerNotFound, id)
	}
	f.d.active = id
	return nil
}

func (f layerFacet) ReadPixels(id string, r api.Rect) (api.PixelBuffer, error) {
	f.d.mu.Lock()
	defer f.d.mu.Unlock()
	i := f.d.findLocked(id)
	if i < 0 {
		return api.PixelBuffer{}, fmt.Errorf("%w: %s", ErrLayerNotFound, id)
	}
	r, err := f.d.clampLocked(r)
	if err != nil {
		return api.PixelBuffer{}, err
	}
	return crop(f.d.layers[i].pixels, r), nil
}

func (f layerFacet) WritePixels(id string, x, y int, buf api.PixelBuffer) error {
	if err := buf.Validate(); err != nil {
		return err
	}
	f.d.mu.Lock()
	defer f.d.mu.Unlock()
	i := f.d.findLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrLayerNotFound, id)
	}
	l := f.d.layers[i]
	if l.info.Locked {
		return fmt.Errorf("%w: %s", ErrLayerLocked, id)
	}
	blit(l.pixels, x, y, buf)
	return nil
}

// crop copies r out of src. Pixels outside src are transparent.
func crop(src api.PixelBuffer, r api.Rect) api.PixelBuffer {
	out := api.NewPixelBuffer(r.Width, r.Height)
	for y := 0; y < r.Height; y++ {
		sy := r.Y + y
		if sy < 0 || sy >= src.Height {
			continue
		}
		for x := 0; x < r.Width; x++ {
			sx := r.X + x
			if sx < 0 || sx >= src.Width {
				continue
			}
			copy(out.Data[(y*r.Width+x)*4:][:4], src.Data[(sy*src.Width+sx)*4:][:4])
		}
	}
	return out
}

// blit copies buf into dst at (x, y), clipped to dst.
func blit(dst api.PixelBuffer, x, y int, buf api.PixelBuffer) {
	if x >= dst.Width || y >= dst.Height || x <= -buf.Width || y <= -buf.Height {
		return
	}
	bx0, by0 := max(0, -x), max(0, -y)
	bx1, by1 := min(buf.Width, dst.Width-x), min(buf.Height, dst.Height-y)
	if bx1 <= bx0 {
		return
	}
	row := (bx1 - bx0) * 4
	for by := by0; by < by1; by++ {
		d := ((y+by)*dst.Width + x + bx0) * 4
		b := (by*buf.Width + bx0) * 4
		copy(dst.Data[d:d+row], buf.Data[b:b+row])
	}
}

// composite draws src over dst with the given layer opacity.
// Both buffers have the same size.
func composite(dst, src api.PixelBuffer, opacity float64) {
	for i := 0; i < len(dst.Data); i += 4 {
		sa := float64(src.Data[i+3]) / 255 * opacity
		if sa == 0 {
			continue
		}
		da := float64(dst.Data[i+3]) / 255
		oa := sa + da*(1-sa)
		for c := 0; c < 3; c++ {
			sc := float64(src.Data[i+c])
			dc := float64(dst.Data[i+c])
			dst.Data[i+c] = clamp((sc*sa + dc*da*(1-sa)) / oa)
		}
		dst.Data[i+3] = clamp(oa * 255)
	}
}

func clamp(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
