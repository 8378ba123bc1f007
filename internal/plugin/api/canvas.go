package api

import (
	"context"
	"fmt"

	"github.com/dshills/brushwork/internal/plugin/security"
)

func (s *Surface) canvasModule() Module {
	return Module{
		Name: "canvas",
		Functions: []*Function{
			fn("getSize", security.CanvasRead, s.canvasGetSize),
			fn("getPixels", security.CanvasRead, s.canvasGetPixels),
			fn("putPixels", security.CanvasWrite, s.canvasPutPixels),
			fn("applyFilter", security.FilterApply, s.canvasApplyFilter),
		},
	}
}

// getSize() -> {width, height}
func (s *Surface) canvasGetSize(_ context.Context, _ Args) (any, error) {
	if s.providers.Canvas == nil {
		return nil, ErrUnavailable
	}
	w, h := s.providers.Canvas.Size()
	return map[string]any{"width": int64(w), "height": int64(h)}, nil
}

// getPixels(rect?) -> pixels
// Without a rect the whole canvas is returned.
func (s *Surface) canvasGetPixels(_ context.Context, args Args) (any, error) {
	if s.providers.Canvas == nil {
		return nil, ErrUnavailable
	}
	var r Rect
	if args.Any(0) == nil {
		w, h := s.providers.Canvas.Size()
		r = Rect{Width: w, Height: h}
	} else {
		var err error
		if r, err = RectFromValue(args.Any(0)); err != nil {
			return nil, args.Wrap(0, err)
		}
	}
	if err := s.checkPixels(r.Width, r.Height); err != nil {
		return nil, args.Wrap(0, err)
	}
	buf, err := s.providers.Canvas.ReadPixels(r)
	if err != nil {
		return nil, err
	}
	return buf.Value(), nil
}

// putPixels(x, y, pixels)
func (s *Surface) canvasPutPixels(_ context.Context, args Args) (any, error) {
	if s.providers.Canvas == nil {
		return nil, ErrUnavailable
	}
	x, err := args.Int(0)
	if err != nil {
		return nil, err
	}
	y, err := args.Int(1)
	if err != nil {
		return nil, err
	}
	buf, err := PixelBufferFromValue(args.Any(2))
	if err == nil {
		err = s.checkPixels(buf.Width, buf.Height)
	}
	if err != nil {
		return nil, args.Wrap(2, err)
	}
	return nil, s.providers.Canvas.WritePixels(x, y, buf)
}

// checkPixels rejects areas above the configured pixel cap.
func (s *Surface) checkPixels(width, height int) error {
	if err := CheckArea(width, height); err != nil {
		return err
	}
	if int64(width)*int64(height) > s.limits.MaxPixels {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrPixelSize, width, height, s.limits.MaxPixels)
	}
	return nil
}

// applyFilter(name, params?)
func (s *Surface) canvasApplyFilter(_ context.Context, args Args) (any, error) {
	if s.providers.Filters == nil {
		return nil, ErrUnavailable
	}
	name, err := args.String(0)
	if err != nil {
		return nil, err
	}
	params, err := args.OptMap(1)
	if err != nil {
		return nil, err
	}
	return nil, s.providers.Filters.ApplyFilter(name, params)
}

func (s *Surface) layersModule() Module {
	return Module{
		Name: "layers",
		Functions: []*Function{
			fn("list", security.LayerRead, s.layersList),
			fn("get", security.LayerRead, s.layersGet),
			fn("create", security.LayerWrite, s.layersCreate),
			fn("remove", security.LayerWrite, s.layersRemove),
			fn("update", security.LayerWrite, s.layersUpdate),
			fn("getActive", security.LayerActive, s.layersGetActive),
			fn("setActive", security.LayerActive, s.layersSetActive),
			fn("getPixels", security.LayerPixels, s.layersGetPixels),
			fn("putPixels", security.LayerPixels, s.layersPutPixels),
		},
	}
}

// list() -> [layer]
func (s *Surface) layersList(_ context.Context, _ Args) (any, error) {
	if s.providers.Layers == nil {
		return nil, ErrUnavailable
	}
	layers := s.providers.Layers.List()
	out := make([]any, len(layers))
	for i, l := range layers {
		out[i] = l.Value()
	}
	return out, nil
}

// get(id) -> layer or nil
func (s *Surface) layersGet(_ context.Context, args Args) (any, error) {
	if s.providers.Layers == nil {
		return nil, ErrUnavailable
	}
	id, err := args.String(0)
	if err != nil {
		return nil, err
	}
	l, ok := s.providers.Layers.Get(id)
	if !ok {
		return nil, nil
	}
	return l.Value(), nil
}

// create(name) -> layer
func (s *Surface) layersCreate(_ context.Context, args Args) (any, error) {
	if s.providers.Layers == nil {
		return nil, ErrUnavailable
	}
	name, err := args.OptString(0, "")
	if err != nil {
		return nil, err
	}
	l, err := s.providers.Layers.Create(name)
	if err != nil {
		return nil, err
	}
	return l.Value(), nil
}

// remove(id)
func (s *Surface) layersRemove(_ context.Context, args Args) (any, error) {
	if s.providers.Layers == nil {
		return nil, ErrUnavailable
	}
	id, err := args.String(0)
	if err != nil {
		return nil, err
	}
	return nil, s.providers.Layers.Remove(id)
}

// update(id, patch) -> layer
func (s *Surface) layersUpdate(_ context.Context, args Args) (any, error) {
	if s.providers.Layers == nil {
		return nil, ErrUnavailable
	}
	id, err := args.String(0)
	if err != nil {
		return nil, err
	}
	patch, err := LayerPatchFromValue(args.Any(1))
	if err != nil {
		return nil, args.Wrap(1, err)
	}
	l, err := s.providers.Layers.Update(id, patch)
	if err != nil {
		return nil, err
	}
	return l.Value(), nil
}

// getActive() -> id
func (s *Surface) layersGetActive(_ context.Context, _ Args) (any, error) {
	if s.providers.Layers == nil {
		return nil, ErrUnavailable
	}
	return s.providers.Layers.Active(), nil
}

// setActive(id)
func (s *Surface) layersSetActive(_ context.Context, args Args) (any, error) {
	if s.providers.Layers == nil {
		return nil, ErrUnavailable
	}
	id, err := args.String(0)
	if err != nil {
		return nil, err
	}
	return nil, s.providers.Layers.SetActive(id)
}

// getPixels(id, rect) -> pixels
func (s *Surface) layersGetPixels(_ context.Context, args Args) (any, error) {
	if s.providers.Layers == nil {
		return nil, ErrUnavailable
	}
	id, err := args.String(0)
	if err != nil {
		return nil, err
	}
	r, err := RectFromValue(args.Any(1))
	if err == nil {
		err = s.checkPixels(r.Width, r.Height)
	}
	if err != nil {
		return nil, args.Wrap(1, err)
	}
	buf, err := s.providers.Layers.ReadPixels(id, r)
	if err != nil {
		return nil, err
	}
	return buf.Value(), nil
}

// putPixels(id, x, y, pixels)
func (s *Surface) layersPutPixels(_ context.Context, args Args) (any, error) {
	if s.providers.Layers == nil {
		return nil, ErrUnavailable
	}
	id, err := args.String(0)
	if err != nil {
		return nil, err
	}
	x, err := args.Int(1)
	if err != nil {
		return nil, err
	}
	y, err := args.Int(2)
	if err != nil {
		return nil, err
	}
	buf, err := PixelBufferFromValue(args.Any(3))
	if err == nil {
		err = s.checkPixels(buf.Width, buf.Height)
	}
	if err != nil {
		return nil, args.Wrap(3, err)
	}
	return nil, s.providers.Layers.WritePixels(id, x, y, buf)
}
