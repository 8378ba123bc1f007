package api

import (
	"context"

	"github.com/dshills/brushwork/internal/plugin/security"
)

func (s *Surface) historyModule() Module {
	return Module{
		Name: "history",
		Functions: []*Function{
			fn("undo", security.HistoryAccess, s.historyCall(func(h HistoryProvider) any { return h.Undo() })),
			fn("redo", security.HistoryAccess, s.historyCall(func(h HistoryProvider) any { return h.Redo() })),
			fn("canUndo", security.HistoryAccess, s.historyCall(func(h HistoryProvider) any { return h.CanUndo() })),
			fn("canRedo", security.HistoryAccess, s.historyCall(func(h HistoryProvider) any { return h.CanRedo() })),
			fn("checkpoint", security.HistoryAccess, s.historyCheckpoint),
		},
	}
}

func (s *Surface) historyCall(op func(HistoryProvider) any) func(context.Context, Args) (any, error) {
	return func(_ context.Context, _ Args) (any, error) {
		if s.providers.History == nil {
			return nil, ErrUnavailable
		}
		return op(s.providers.History), nil
	}
}

// checkpoint(label?)
func (s *Surface) historyCheckpoint(_ context.Context, args Args) (any, error) {
	if s.providers.History == nil {
		return nil, ErrUnavailable
	}
	label, err := args.OptString(0, s.plugin)
	if err != nil {
		return nil, err
	}
	s.providers.History.Checkpoint(label)
	return nil, nil
}

func (s *Surface) selectionModule() Module {
	return Module{
		Name: "selection",
		Functions: []*Function{
			fn("get", security.SelectionRead, s.selectionGet),
			fn("set", security.SelectionWrite, s.selectionSet),
			fn("clear", security.SelectionWrite, s.selectionClear),
		},
	}
}

// get() -> rect or nil
func (s *Surface) selectionGet(_ context.Context, _ Args) (any, error) {
	if s.providers.Selection == nil {
		return nil, ErrUnavailable
	}
	r, ok := s.providers.Selection.Get()
	if !ok {
		return nil, nil
	}
	return r.Value(), nil
}

// set(rect)
func (s *Surface) selectionSet(_ context.Context, args Args) (any, error) {
	if s.providers.Selection == nil {
		return nil, ErrUnavailable
	}
	r, err := RectFromValue(args.Any(0))
	if err != nil {
		return nil, args.Wrap(0, err)
	}
	return nil, s.providers.Selection.Set(r)
}

// clear()
func (s *Surface) selectionClear(_ context.Context, _ Args) (any, error) {
	if s.providers.Selection == nil {
		return nil, ErrUnavailable
	}
	s.providers.Selection.Clear()
	return nil, nil
}
