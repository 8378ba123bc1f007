package contrib

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dshills/brushwork/internal/plugin/api"
	"github.com/dshills/brushwork/internal/plugin/fault"
)

// Handler runs a contributed function inside its owning plugin.
// Implementations serialize calls and apply the invocation timeout.
type Handler interface {
	Invoke(ctx context.Context, fn api.Callable, args ...any) (any, error)
}

// Recorder observes invocations, typically for metrics.
type Recorder interface {
	ObserveInvocation(owner string, kind Kind, d time.Duration, err error)
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(a *Aggregator) {
		a.log = l.WithField("component", "contrib")
	}
}

// WithRecorder sets the invocation recorder.
func WithRecorder(r Recorder) Option {
	return func(a *Aggregator) {
		a.recorder = r
	}
}

// Aggregator maintains the union of contributions from enabled plugins.
type Aggregator struct {
	// mu serializes writers; readers use snap only.
	mu   sync.Mutex
	snap atomic.Pointer[Snapshot]

	subMu  sync.RWMutex
	subs   map[int]func(*Snapshot)
	nextID int

	recorder Recorder
	log      *logrus.Entry
}

// New creates an empty aggregator.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		subs: make(map[int]func(*Snapshot)),
		log:  logrus.StandardLogger().WithField("component", "contrib"),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.snap.Store(emptySnapshot())
	return a
}

// Snapshot returns the current contribution set.
func (a *Aggregator) Snapshot() *Snapshot {
	return a.snap.Load()
}

// Publish replaces owner's contributions with declared ∪ registered and
// routes future invocations to h. It returns the owner's published set.
func (a *Aggregator) Publish(owner string, declared []Declaration, regs []api.Registration, h Handler) []Contribution {
	cs := merge(owner, declared, regs)

	a.mu.Lock()
	cur := a.snap.Load()
	owners := make(map[string][]Contribution, len(cur.byOwner)+1)
	handlers := make(map[string]Handler, len(cur.handlers)+1)
	for o, v := range cur.byOwner {
		owners[o] = v
	}
	for o, v := range cur.handlers {
		handlers[o] = v
	}
	owners[owner] = cs
	handlers[owner] = h
	next := build(cur.version+1, owners, handlers)
	a.snap.Store(next)
	a.mu.Unlock()

	a.log.WithFields(logrus.Fields{
		"plugin":        owner,
		"contributions": len(cs),
	}).Debug("contributions published")
	a.notify(next)
	return cs
}

// Retract removes every contribution of owner. It reports whether the owner
// had published anything.
func (a *Aggregator) Retract(owner string) bool {
	a.mu.Lock()
	cur := a.snap.Load()
	if _, ok := cur.byOwner[owner]; !ok {
		a.mu.Unlock()
		return false
	}
	owners := make(map[string][]Contribution, len(cur.byOwner))
	handlers := make(map[string]Handler, len(cur.handlers))
	for o, v := range cur.byOwner {
		if o != owner {
			owners[o] = v
		}
	}
	for o, v := range cur.handlers {
		if o != owner {
			handlers[o] = v
		}
	}
	next := build(cur.version+1, owners, handlers)
	a.snap.Store(next)
	a.mu.Unlock()

	a.log.WithField("plugin", owner).Debug("contributions retracted")
	a.notify(next)
	return true
}

// OnChange registers fn to receive every new snapshot. The returned function
// unsubscribes.
func (a *Aggregator) OnChange(fn func(*Snapshot)) func() {
	a.subMu.Lock()
	id := a.nextID
	a.nextID++
	a.subs[id] = fn
	a.subMu.Unlock()

	return func() {
		a.subMu.Lock()
		delete(a.subs, id)
		a.subMu.Unlock()
	}
}

func (a *Aggregator) notify(s *Snapshot) {
	a.subMu.RLock()
	subs := make([]func(*Snapshot), 0, len(a.subs))
	for _, fn := range a.subs {
		subs = append(subs, fn)
	}
	a.subMu.RUnlock()

	for _, fn := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					a.log.WithField("panic", r).Error("contribution subscriber panicked")
				}
			}()
			fn(s)
		}()
	}
}

// Resolve finds the contribution ref addresses. Without an owner the id must
// be contributed by exactly one plugin.
func (a *Aggregator) Resolve(ref Ref) (Contribution, error) {
	return a.snap.Load().Resolve(ref)
}

// Resolve finds the contribution ref addresses within the snapshot.
func (s *Snapshot) Resolve(ref Ref) (Contribution, error) {
	idx := s.byID[ref.Kind][ref.ID]
	if ref.Owner != "" {
		for _, n := range idx {
			if s.all[n].Owner == ref.Owner {
				return s.all[n], nil
			}
		}
		return Contribution{}, fault.New(fault.ContributionNotFound, ref.Owner,
			fmt.Sprintf("no %s %q", ref.Kind, ref.ID))
	}
	switch len(idx) {
	case 0:
		return Contribution{}, fault.New(fault.ContributionNotFound, "",
			fmt.Sprintf("no %s %q", ref.Kind, ref.ID))
	case 1:
		return s.all[idx[0]], nil
	default:
		owners := make([]string, len(idx))
		for i, n := range idx {
			owners[i] = s.all[n].Owner
		}
		return Contribution{}, fault.New(fault.AmbiguousContribution, "",
			fmt.Sprintf("%s %q is contributed by %s", ref.Kind, ref.ID, strings.Join(owners, ", ")))
	}
}

// Invoke resolves ref and calls its handler with args.
func (a *Aggregator) Invoke(ctx context.Context, ref Ref, args ...any) (any, error) {
	snap := a.snap.Load()
	c, err := snap.Resolve(ref)
	if err != nil {
		return nil, err
	}
	if c.handler == nil {
		return nil, fault.New(fault.HandlerMissing, c.Owner,
			fmt.Sprintf("%s %q was declared but never registered", c.Kind, c.ID))
	}
	h := snap.handlers[c.Owner]
	if h == nil {
		return nil, fault.New(fault.HandlerMissing, c.Owner, "plugin has no runtime")
	}

	start := time.Now()
	out, err := h.Invoke(ctx, c.handler, args...)
	elapsed := time.Since(start)
	if a.recorder != nil {
		a.recorder.ObserveInvocation(c.Owner, c.Kind, elapsed, err)
	}

	entry := a.log.WithFields(logrus.Fields{
		"plugin":   c.Owner,
		"ref":      c.Ref().String(),
		"duration": elapsed,
	})
	if err != nil {
		entry.WithError(err).Warn("contribution failed")
		if fault.KindOf(err) == "" {
			err = fault.Wrap(fault.InvocationFailed, c.Owner, err).WithOp(c.Ref().String())
		}
		return nil, err
	}
	entry.Debug("contribution invoked")
	return out, nil
}

// ApplyFilter runs a filter over pixels. A nil result leaves the pixels
// unchanged; otherwise the result must have the input's dimensions.
func (a *Aggregator) ApplyFilter(ctx context.Context, ref Ref, pixels api.PixelBuffer, settings map[string]any) (api.PixelBuffer, error) {
	ref.Kind = Filter
	out, err := a.Invoke(ctx, ref, pixels.Value(), settingsValue(settings))
	if err != nil {
		return api.PixelBuffer{}, err
	}
	if out == nil {
		return pixels, nil
	}
	result, err := api.PixelBufferFromValue(out)
	if err != nil {
		return api.PixelBuffer{}, a.badResult(ref, err)
	}
	if result.Width != pixels.Width || result.Height != pixels.Height {
		return api.PixelBuffer{}, a.badResult(ref, fmt.Errorf("result is %dx%d, input was %dx%d",
			result.Width, result.Height, pixels.Width, pixels.Height))
	}
	return result, nil
}

// RenderBrush asks a brush for the dabs to place at point.
func (a *Aggregator) RenderBrush(ctx context.Context, ref Ref, point api.StrokePoint, settings map[string]any) ([]api.Dab, error) {
	ref.Kind = Brush
	out, err := a.Invoke(ctx, ref, point.Value(), settingsValue(settings))
	if err != nil {
		return nil, err
	}
	dabs, err := api.DabsFromValue(out)
	if err != nil {
		return nil, a.badResult(ref, err)
	}
	return dabs, nil
}

// ToolEvent forwards an input event to a tool and reports whether the tool
// handled it. A tool returns true, false, nil or a table with a handled field.
func (a *Aggregator) ToolEvent(ctx context.Context, ref Ref, ev api.ToolEvent) (bool, error) {
	ref.Kind = Tool
	out, err := a.Invoke(ctx, ref, ev.Value())
	if err != nil {
		return false, err
	}
	switch v := out.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case map[string]any:
		handled, _ := v["handled"].(bool)
		return handled, nil
	default:
		return true, nil
	}
}

// RenderPanel asks a panel for its content given the host state.
func (a *Aggregator) RenderPanel(ctx context.Context, ref Ref, state map[string]any) (map[string]any, error) {
	ref.Kind = Panel
	if state == nil {
		state = map[string]any{}
	}
	out, err := a.Invoke(ctx, ref, state)
	if err != nil {
		return nil, err
	}
	switch v := out.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	case string:
		return map[string]any{"content": v}, nil
	default:
		return nil, a.badResult(ref, fmt.Errorf("panel returned %T", out))
	}
}

func (a *Aggregator) badResult(ref Ref, err error) error {
	owner := ref.Owner
	if owner == "" {
		if c, rerr := a.Resolve(ref); rerr == nil {
			owner = c.Owner
		}
	}
	return fault.Wrap(fault.InvocationFailed, owner, err).WithOp(ref.String())
}

func settingsValue(s map[string]any) map[string]any {
	if s == nil {
		return map[string]any{}
	}
	return s
}
