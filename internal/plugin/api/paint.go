package api

import (
	"context"
	"fmt"

	"github.com/dshills/brushwork/internal/plugin/security"
)

func (s *Surface) filtersModule() Module {
	return Module{
		Name: "filters",
		Functions: []*Function{
			fn("register", security.FilterRegister, s.registerKind(KindFilter)),
		},
	}
}

func (s *Surface) brushesModule() Module {
	return Module{
		Name: "brushes",
		Functions: []*Function{
			fn("register", security.BrushRegister, s.registerKind(KindBrush)),
			fn("stroke", security.BrushRender, s.brushesStroke),
		},
	}
}

func (s *Surface) toolsModule() Module {
	return Module{
		Name: "tools",
		Functions: []*Function{
			fn("register", security.ToolRegister, s.registerKind(KindTool)),
		},
	}
}

// register(def) -> id
//
// def is {id, name?, category?, description?, icon?, <handler>} where the
// handler field is apply for filters, render for brushes and panels, and
// onEvent for tools.
func (s *Surface) registerKind(kind Kind) func(context.Context, Args) (any, error) {
	return func(_ context.Context, args Args) (any, error) {
		reg, err := parseRegistration(kind, args)
		if err != nil {
			return nil, err
		}
		if err := s.register(reg); err != nil {
			return nil, err
		}
		s.log.WithField("kind", kind.String()).Debugf("registered %s", reg.ID)
		return reg.ID, nil
	}
}

// stroke(points, options?)
func (s *Surface) brushesStroke(_ context.Context, args Args) (any, error) {
	if s.providers.Strokes == nil {
		return nil, ErrUnavailable
	}
	list, err := args.List(0)
	if err != nil {
		return nil, err
	}
	points := make([]StrokePoint, 0, len(list))
	for i, v := range list {
		pt, err := StrokePointFromValue(v)
		if err != nil {
			return nil, args.Wrap(0, fmt.Errorf("point %d: %w", i+1, err))
		}
		points = append(points, pt)
	}
	opts, err := args.OptMap(1)
	if err != nil {
		return nil, err
	}
	return nil, s.providers.Strokes.Stroke(points, opts)
}
