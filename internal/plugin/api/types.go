package api

import (
	"errors"
	"fmt"
	"math"
)

// ErrPixelSize is returned for pixel areas that are empty, negative or too
// large to allocate.
var ErrPixelSize = errors.New("invalid pixel size")

// CheckArea validates width x height as an RGBA area: both sides must be
// positive and the byte count must fit in an int.
func CheckArea(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrPixelSize, width, height)
	}
	if height > math.MaxInt/4/width {
		return fmt.Errorf("%w: %dx%d overflows", ErrPixelSize, width, height)
	}
	return nil
}

// Rect is an axis-aligned pixel rectangle.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Empty returns true if the rectangle has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Value returns the plain-data form handed to plugins.
func (r Rect) Value() map[string]any {
	return map[string]any{
		"x":      int64(r.X),
		"y":      int64(r.Y),
		"width":  int64(r.Width),
		"height": int64(r.Height),
	}
}

// RectFromValue parses {x, y, width, height}.
func RectFromValue(v any) (Rect, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Rect{}, fmt.Errorf("rect: expected table, got %T", v)
	}
	var r Rect
	var err error
	if r.X, err = intField(m, "x", 0); err != nil {
		return Rect{}, err
	}
	if r.Y, err = intField(m, "y", 0); err != nil {
		return Rect{}, err
	}
	if r.Width, err = intField(m, "width", -1); err != nil {
		return Rect{}, err
	}
	if r.Height, err = intField(m, "height", -1); err != nil {
		return Rect{}, err
	}
	if r.Width < 0 || r.Height < 0 {
		return Rect{}, fmt.Errorf("rect: width and height are required")
	}
	if err := CheckArea(r.Width, r.Height); err != nil {
		return Rect{}, fmt.Errorf("rect: %w", err)
	}
	return r, nil
}

// PixelBuffer is a tightly packed RGBA image.
type PixelBuffer struct {
	Width  int
	Height int
	Data   []uint8
}

// NewPixelBuffer allocates a transparent buffer.
func NewPixelBuffer(width, height int) PixelBuffer {
	return PixelBuffer{Width: width, Height: height, Data: make([]uint8, width*height*4)}
}

// Validate checks that Data matches the dimensions.
func (p PixelBuffer) Validate() error {
	if err := CheckArea(p.Width, p.Height); err != nil {
		return fmt.Errorf("pixels: %w", err)
	}
	if len(p.Data) != p.Width*p.Height*4 {
		return fmt.Errorf("pixels: %dx%d needs %d bytes, got %d", p.Width, p.Height, p.Width*p.Height*4, len(p.Data))
	}
	return nil
}

// Clone returns a deep copy.
func (p PixelBuffer) Clone() PixelBuffer {
	data := make([]uint8, len(p.Data))
	copy(data, p.Data)
	return PixelBuffer{Width: p.Width, Height: p.Height, Data: data}
}

// Value returns the plain-data form {width, height, data} handed to plugins.
func (p PixelBuffer) Value() map[string]any {
	data := make([]any, len(p.Data))
	for i, b := range p.Data {
		data[i] = int64(b)
	}
	return map[string]any{
		"width":  int64(p.Width),
		"height": int64(p.Height),
		"data":   data,
	}
}

// PixelBufferFromValue parses {width, height, data}. data may be a list of
// numbers or a byte slice.
func PixelBufferFromValue(v any) (PixelBuffer, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return PixelBuffer{}, fmt.Errorf("pixels: expected table, got %T", v)
	}
	var (
		p   PixelBuffer
		err error
	)
	if p.Width, err = intField(m, "width", -1); err != nil {
		return PixelBuffer{}, err
	}
	if p.Height, err = intField(m, "height", -1); err != nil {
		return PixelBuffer{}, err
	}
	if err := CheckArea(p.Width, p.Height); err != nil {
		return PixelBuffer{}, fmt.Errorf("pixels: %w", err)
	}

	switch data := m["data"].(type) {
	case []uint8:
		p.Data = append([]uint8(nil), data...)
	case []any:
		p.Data = make([]uint8, len(data))
		for i, e := range data {
			n, ok := toNumber(e)
			if !ok || n < 0 || n > 255 {
				return PixelBuffer{}, fmt.Errorf("pixels: data[%d] is not a byte", i)
			}
			p.Data[i] = uint8(n)
		}
	case nil:
		p.Data = []uint8{}
	default:
		return PixelBuffer{}, fmt.Errorf("pixels: data must be a list, got %T", data)
	}

	if err := p.Validate(); err != nil {
		return PixelBuffer{}, err
	}
	return p, nil
}

// StrokePoint is one sample of a brush stroke.
type StrokePoint struct {
	X        float64
	Y        float64
	Pressure float64
	TiltX    float64
	TiltY    float64
}

// Value returns the plain-data form handed to plugins.
func (s StrokePoint) Value() map[string]any {
	return map[string]any{
		"x":        s.X,
		"y":        s.Y,
		"pressure": s.Pressure,
		"tiltX":    s.TiltX,
		"tiltY":    s.TiltY,
	}
}

// StrokePointFromValue parses {x, y, pressure?, tiltX?, tiltY?}.
func StrokePointFromValue(v any) (StrokePoint, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return StrokePoint{}, fmt.Errorf("point: expected table, got %T", v)
	}
	x, okx := toNumber(m["x"])
	y, oky := toNumber(m["y"])
	if !okx || !oky {
		return StrokePoint{}, fmt.Errorf("point: x and y are required")
	}
	pt := StrokePoint{X: x, Y: y, Pressure: 1}
	if p, ok := toNumber(m["pressure"]); ok {
		pt.Pressure = p
	}
	pt.TiltX, _ = toNumber(m["tiltX"])
	pt.TiltY, _ = toNumber(m["tiltY"])
	return pt, nil
}

// Dab is a brush footprint returned by a brush's render handler.
type Dab struct {
	X       float64
	Y       float64
	Size    float64
	Opacity float64
	Color   string
}

// DabsFromValue parses a render result: a single dab table or a list of them.
func DabsFromValue(v any) ([]Dab, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		d, err := dabFromMap(t)
		if err != nil {
			return nil, err
		}
		return []Dab{d}, nil
	case []any:
		dabs := make([]Dab, 0, len(t))
		for i, e := range t {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("dab %d: expected table, got %T", i, e)
			}
			d, err := dabFromMap(m)
			if err != nil {
				return nil, fmt.Errorf("dab %d: %w", i, err)
			}
			dabs = append(dabs, d)
		}
		return dabs, nil
	}
	return nil, fmt.Errorf("dabs: expected table, got %T", v)
}

func dabFromMap(m map[string]any) (Dab, error) {
	x, okx := toNumber(m["x"])
	y, oky := toNumber(m["y"])
	if !okx || !oky {
		return Dab{}, fmt.Errorf("x and y are required")
	}
	d := Dab{X: x, Y: y, Size: 1, Opacity: 1}
	if s, ok := toNumber(m["size"]); ok {
		d.Size = s
	}
	if o, ok := toNumber(m["opacity"]); ok {
		d.Opacity = o
	}
	d.Color, _ = m["color"].(string)
	return d, nil
}

// LayerInfo describes a layer without exposing its pixels.
type LayerInfo struct {
	ID        string
	Name      string
	Visible   bool
	Opacity   float64
	BlendMode string
	Locked    bool
}

// Value returns the plain-data form handed to plugins.
func (l LayerInfo) Value() map[string]any {
	return map[string]any{
		"id":        l.ID,
		"name":      l.Name,
		"visible":   l.Visible,
		"opacity":   l.Opacity,
		"blendMode": l.BlendMode,
		"locked":    l.Locked,
	}
}

// LayerPatch holds optional layer property changes.
type LayerPatch struct {
	Name      *string
	Visible   *bool
	Opacity   *float64
	BlendMode *string
	Locked    *bool
}

// LayerPatchFromValue parses {name?, visible?, opacity?, blendMode?, locked?}.
func LayerPatchFromValue(v any) (LayerPatch, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return LayerPatch{}, fmt.Errorf("layer patch: expected table, got %T", v)
	}
	var p LayerPatch
	if s, ok := m["name"].(string); ok {
		p.Name = &s
	}
	if b, ok := m["visible"].(bool); ok {
		p.Visible = &b
	}
	if n, ok := toNumber(m["opacity"]); ok {
		if n < 0 || n > 1 {
			return LayerPatch{}, fmt.Errorf("layer patch: opacity must be within [0, 1]")
		}
		p.Opacity = &n
	}
	if s, ok := m["blendMode"].(string); ok {
		p.BlendMode = &s
	}
	if b, ok := m["locked"].(bool); ok {
		p.Locked = &b
	}
	return p, nil
}

// ToolEvent is a pointer or key event routed to a contributed tool.
type ToolEvent struct {
	Type      string // pointerdown, pointermove, pointerup, activate, deactivate, key
	X         float64
	Y         float64
	Pressure  float64
	Key       string
	Modifiers []string
}

// Value returns the plain-data form handed to plugins.
func (e ToolEvent) Value() map[string]any {
	mods := make([]any, len(e.Modifiers))
	for i, m := range e.Modifiers {
		mods[i] = m
	}
	return map[string]any{
		"type":      e.Type,
		"x":         e.X,
		"y":         e.Y,
		"pressure":  e.Pressure,
		"key":       e.Key,
		"modifiers": mods,
	}
}

func intField(m map[string]any, key string, def int) (int, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return def, nil
	}
	n, ok := toNumber(v)
	if !ok {
		return 0, fmt.Errorf("%s: expected number, got %T", key, v)
	}
	if math.Abs(n) > 1<<53 {
		return 0, fmt.Errorf("%s: %v is out of range", key, n)
	}
	if n != math.Trunc(n) {
		return 0, fmt.Errorf("%s: expected integer, got %v", key, n)
	}
	return int(n), nil
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	}
	return 0, false
}
