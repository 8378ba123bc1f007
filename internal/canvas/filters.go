package canvas

import (
	"fmt"
	"math"
	"sort"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/dshills/brushwork/internal/plugin/api"
)

// pixelFunc rewrites one RGBA pixel in place.
type pixelFunc func(px []uint8)

// builtinFilter builds a pixelFunc from filter parameters.
type builtinFilter func(params map[string]any) (pixelFunc, error)

var builtinFilters = map[string]builtinFilter{
	"grayscale": func(map[string]any) (pixelFunc, error) {
		return Grayscale, nil
	},
	"invert": func(map[string]any) (pixelFunc, error) {
		return func(px []uint8) {
			px[0], px[1], px[2] = 255-px[0], 255-px[1], 255-px[2]
		}, nil
	},
	"brightness": func(params map[string]any) (pixelFunc, error) {
		amount, err := floatParam(params, "amount", 0, -1, 1)
		if err != nil {
			return nil, err
		}
		delta := amount * 255
		return func(px []uint8) {
			for c := 0; c < 3; c++ {
				px[c] = clamp(float64(px[c]) + delta)
			}
		}, nil
	},
	"fill": func(params map[string]any) (pixelFunc, error) {
		col, err := colorParam(params, "color", "#000000")
		if err != nil {
			return nil, err
		}
		r, g, b := col.RGB255()
		return func(px []uint8) {
			px[0], px[1], px[2], px[3] = r, g, b, 255
		}, nil
	},
}

// Grayscale converts a pixel to its Rec. 601 luma, keeping alpha.
func Grayscale(px []uint8) {
	y := clamp(0.299*float64(px[0]) + 0.587*float64(px[1]) + 0.114*float64(px[2]))
	px[0], px[1], px[2] = y, y, y
}

// Filters returns the built-in filter facet.
func (d *Document) Filters() api.FilterProvider {
	return filterFacet{d}
}

type filterFacet struct{ d *Document }

func (f filterFacet) BuiltinFilters() []string {
	names := make([]string, 0, len(builtinFilters))
	for name := range builtinFilters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyFilter runs a built-in filter over the active layer, limited to the
// selection when one is set.
func (f filterFacet) ApplyFilter(name string, params map[string]any) error {
	build, ok := builtinFilters[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFilter, name)
	}
	fn, err := build(params)
	if err != nil {
		return fmt.Errorf("filter %s: %w", name, err)
	}

	d := f.d
	d.mu.Lock()
	defer d.mu.Unlock()

	l := d.activeLocked()
	if l.info.Locked {
		return fmt.Errorf("%w: %s", ErrLayerLocked, l.info.ID)
	}
	area := d.bounds()
	if d.selection != nil {
		area = *d.selection
	}
	for y := area.Y; y < area.Y+area.Height; y++ {
		for x := area.X; x < area.X+area.Width; x++ {
			i := (y*l.pixels.Width + x) * 4
			fn(l.pixels.Data[i : i+4])
		}
	}
	return nil
}

// Strokes returns the stroke rasterizer facet.
func (d *Document) Strokes() api.StrokeProvider {
	return strokeFacet{d}
}

type strokeFacet struct{ d *Document }

// Stroke stamps a round dab at every point onto the active layer.
// Options: color (hex, default black), size (diameter, default 4) and
// opacity (0..1, default 1). Pressure scales the dab.
func (s strokeFacet) Stroke(points []api.StrokePoint, options map[string]any) error {
	col, err := colorParam(options, "color", "#000000")
	if err != nil {
		return err
	}
	size, err := floatParam(options, "size", 4, 0, 1024)
	if err != nil {
		return err
	}
	opacity, err := floatParam(options, "opacity", 1, 0, 1)
	if err != nil {
		return err
	}

	d := s.d
	d.mu.Lock()
	defer d.mu.Unlock()

	l := d.activeLocked()
	if l.info.Locked {
		return fmt.Errorf("%w: %s", ErrLayerLocked, l.info.ID)
	}
	dab := api.NewPixelBuffer(1, 1)
	r, g, b := col.RGB255()
	dab.Data[0], dab.Data[1], dab.Data[2], dab.Data[3] = r, g, b, clamp(opacity*255)

	for _, p := range points {
		pressure := p.Pressure
		if pressure <= 0 {
			pressure = 1
		}
		radius := size / 2 * pressure
		for y := int(math.Floor(p.Y - radius)); y <= int(math.Ceil(p.Y+radius)); y++ {
			for x := int(math.Floor(p.X - radius)); x <= int(math.Ceil(p.X+radius)); x++ {
				if x < 0 || y < 0 || x >= l.pixels.Width || y >= l.pixels.Height {
					continue
				}
				if math.Hypot(float64(x)+0.5-p.X, float64(y)+0.5-p.Y) > radius {
					continue
				}
				i := (y*l.pixels.Width + x) * 4
				px := api.PixelBuffer{Width: 1, Height: 1, Data: l.pixels.Data[i : i+4]}
				composite(px, dab, 1)
			}
		}
	}
	d.log.WithField("points", len(points)).Debug("stroke rendered")
	return nil
}

// floatParam reads a bounded number parameter.
func floatParam(params map[string]any, key string, def, lo, hi float64) (float64, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return def, nil
	}
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case int64:
		v = float64(n)
	case int:
		v = float64(n)
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", key, raw)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s %v is outside [%v, %v]", key, v, lo, hi)
	}
	return v, nil
}

// colorParam reads a hex color parameter.
func colorParam(params map[string]any, key, def string) (colorful.Color, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		raw = def
	}
	s, ok := raw.(string)
	if !ok {
		return colorful.Color{}, fmt.Errorf("%s must be a hex color, got %T", key, raw)
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return colorful.Color{}, fmt.Errorf("%s: %w", key, err)
	}
	return c, nil
}
