package contrib

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/brushwork/internal/plugin/api"
	"github.com/dshills/brushwork/internal/plugin/fault"
)

// directHandler calls the function on the caller goroutine.
type directHandler struct {
	mu    sync.Mutex
	calls int
}

func (h *directHandler) Invoke(ctx context.Context, fn api.Callable, args ...any) (any, error) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	return fn.Call(ctx, args...)
}

type recordingRecorder struct {
	mu     sync.Mutex
	owners []string
	errs   int
}

func (r *recordingRecorder) ObserveInvocation(owner string, _ Kind, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners = append(r.owners, owner)
	if err != nil {
		r.errs++
	}
}

func returning(v any) api.Callable {
	return api.CallableFunc(func(context.Context, ...any) (any, error) { return v, nil })
}

func newAggregator(opts ...Option) *Aggregator {
	logger, _ := test.NewNullLogger()
	return New(append([]Option{WithLogger(logger)}, opts...)...)
}

func TestPublishDeclaredAndRegistered(t *testing.T) {
	a := newAggregator()
	cs := a.Publish("com.x.grayscale",
		[]Declaration{{Kind: Filter, ID: "gs", Name: "Grayscale"}, {Kind: Filter, ID: "sepia"}},
		[]api.Registration{
			{Kind: Filter, ID: "gs", Name: "gs", Handler: returning(nil)},
			{Kind: Panel, ID: "hist", Name: "Histogram", Handler: returning(nil)},
		},
		&directHandler{})

	require.Len(t, cs, 3)
	assert.Equal(t, "Grayscale", cs[0].Name, "manifest name kept when registration repeats the id")
	assert.True(t, cs[0].Declared)
	assert.True(t, cs[0].Registered)
	assert.True(t, cs[0].Invocable())
	assert.False(t, cs[1].Invocable())
	assert.Equal(t, "sepia", cs[1].Name)
	assert.False(t, cs[2].Declared)

	snap := a.Snapshot()
	assert.Equal(t, 3, snap.Len())
	assert.Equal(t, uint64(1), snap.Version())
	grouped := snap.Grouped()
	assert.Len(t, grouped["filters"], 2)
	assert.Len(t, grouped["panels"], 1)
	assert.Empty(t, grouped["brushes"])
	assert.NotNil(t, grouped["tools"])
}

func TestScenarioSingleFilter(t *testing.T) {
	a := newAggregator()
	a.Publish("com.x.grayscale", []Declaration{{Kind: Filter, ID: "gs"}}, nil, &directHandler{})

	filters := a.Snapshot().ByKind(Filter)
	require.Len(t, filters, 1)
	assert.Equal(t, "gs", filters[0].ID)
	assert.Equal(t, "com.x.grayscale", filters[0].Owner)
}

func TestRetractLeavesOthersUnchanged(t *testing.T) {
	a := newAggregator()
	a.Publish("com.x.a", []Declaration{{Kind: Filter, ID: "blur"}, {Kind: Brush, ID: "ink"}}, nil, &directHandler{})
	a.Publish("com.x.b", []Declaration{{Kind: Filter, ID: "sharpen"}}, nil, &directHandler{})
	before := a.Snapshot().Owned("com.x.b")

	assert.True(t, a.Retract("com.x.a"))
	assert.False(t, a.Retract("com.x.a"))

	snap := a.Snapshot()
	assert.Equal(t, []string{"com.x.b"}, snap.Owners())
	assert.Equal(t, before, snap.Owned("com.x.b"))
	assert.Equal(t, 1, snap.Len())
}

func TestSnapshotsAreImmutable(t *testing.T) {
	a := newAggregator()
	a.Publish("com.x.a", []Declaration{{Kind: Tool, ID: "lasso"}}, nil, &directHandler{})
	old := a.Snapshot()

	a.Retract("com.x.a")
	assert.Equal(t, 1, old.Len())
	assert.Equal(t, 0, a.Snapshot().Len())
	assert.Greater(t, a.Snapshot().Version(), old.Version())
}

func TestResolveAmbiguous(t *testing.T) {
	a := newAggregator()
	a.Publish("com.x.a", nil, []api.Registration{{Kind: Filter, ID: "sharpen", Handler: returning(nil)}}, &directHandler{})
	a.Publish("com.x.b", nil, []api.Registration{{Kind: Filter, ID: "sharpen", Handler: returning(nil)}}, &directHandler{})

	assert.Equal(t, []string{"com.x.a", "com.x.b"}, a.Snapshot().OwnersOf(Filter, "sharpen"))

	_, err := a.Resolve(Ref{Kind: Filter, ID: "sharpen"})
	assert.ErrorIs(t, err, fault.ErrAmbiguousContribution)

	c, err := a.Resolve(Ref{Owner: "com.x.b", Kind: Filter, ID: "sharpen"})
	require.NoError(t, err)
	assert.Equal(t, "com.x.b", c.Owner)

	_, err = a.Resolve(Ref{Owner: "com.x.c", Kind: Filter, ID: "sharpen"})
	assert.ErrorIs(t, err, fault.ErrContributionNotFound)

	// Same id, different kind is a different contribution.
	_, err = a.Resolve(Ref{Kind: Brush, ID: "sharpen"})
	assert.ErrorIs(t, err, fault.ErrContributionNotFound)
}

func TestInvokeDeclaredOnly(t *testing.T) {
	a := newAggregator()
	a.Publish("com.x.a", []Declaration{{Kind: Filter, ID: "gs"}}, nil, &directHandler{})

	_, err := a.Invoke(context.Background(), Ref{Kind: Filter, ID: "gs"})
	assert.ErrorIs(t, err, fault.ErrHandlerMissing)
}

func TestApplyFilter(t *testing.T) {
	rec := &recordingRecorder{}
	a := newAggregator(WithRecorder(rec))
	invert := api.CallableFunc(func(_ context.Context, args ...any) (any, error) {
		px, err := api.PixelBufferFromValue(args[0])
		if err != nil {
			return nil, err
		}
		settings := args[1].(map[string]any)
		for i := range px.Data {
			if i%4 != 3 {
				px.Data[i] = 255 - px.Data[i]
			}
		}
		assert.Equal(t, 0.5, settings["amount"])
		return px.Value(), nil
	})
	a.Publish("com.x.inv", nil, []api.Registration{{Kind: Filter, ID: "invert", Handler: invert}}, &directHandler{})

	in := api.PixelBuffer{Width: 1, Height: 1, Data: []uint8{10, 20, 30, 255}}
	out, err := a.ApplyFilter(context.Background(), Ref{ID: "invert"}, in, map[string]any{"amount": 0.5})
	require.NoError(t, err)
	assert.Equal(t, []uint8{245, 235, 225, 255}, out.Data)
	assert.Equal(t, []uint8{10, 20, 30, 255}, in.Data, "input is not shared with the plugin")
	assert.Equal(t, []string{"com.x.inv"}, rec.owners)
}

func TestApplyFilterBadResult(t *testing.T) {
	a := newAggregator()
	a.Publish("com.x.bad", nil, []api.Registration{
		{Kind: Filter, ID: "shrink", Handler: returning(api.NewPixelBuffer(1, 1).Value())},
		{Kind: Filter, ID: "nothing", Handler: returning(nil)},
	}, &directHandler{})

	in := api.NewPixelBuffer(2, 2)
	_, err := a.ApplyFilter(context.Background(), Ref{ID: "shrink"}, in, nil)
	assert.ErrorIs(t, err, fault.ErrInvocationFailed)
	var fe *fault.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "com.x.bad", fe.Plugin)

	out, err := a.ApplyFilter(context.Background(), Ref{ID: "nothing"}, in, nil)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestInvokeWrapsHandlerErrors(t *testing.T) {
	rec := &recordingRecorder{}
	a := newAggregator(WithRecorder(rec))
	boom := api.CallableFunc(func(context.Context, ...any) (any, error) { return nil, errors.New("boom") })
	a.Publish("com.x.err", nil, []api.Registration{{Kind: Tool, ID: "t", Handler: boom}}, &directHandler{})

	_, err := a.ToolEvent(context.Background(), Ref{ID: "t"}, api.ToolEvent{Type: "down"})
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrInvocationFailed)
	assert.ErrorContains(t, err, "boom")

	var fe *fault.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "com.x.err", fe.Plugin)
	assert.Equal(t, 1, rec.errs)
}

func TestToolEventResults(t *testing.T) {
	a := newAggregator()
	a.Publish("com.x.tools", nil, []api.Registration{
		{Kind: Tool, ID: "yes", Handler: returning(true)},
		{Kind: Tool, ID: "no", Handler: returning(nil)},
		{Kind: Tool, ID: "table", Handler: returning(map[string]any{"handled": true})},
	}, &directHandler{})

	ctx := context.Background()
	for id, want := range map[string]bool{"yes": true, "no": false, "table": true} {
		got, err := a.ToolEvent(ctx, Ref{ID: id}, api.ToolEvent{Type: "move"})
		require.NoError(t, err, id)
		assert.Equal(t, want, got, id)
	}
}

func TestRenderBrushAndPanel(t *testing.T) {
	a := newAggregator()
	a.Publish("com.x.paint", nil, []api.Registration{
		{Kind: Brush, ID: "dot", Handler: api.CallableFunc(func(_ context.Context, args ...any) (any, error) {
			pt := args[0].(map[string]any)
			return map[string]any{"x": pt["x"], "y": pt["y"], "size": 4.0}, nil
		})},
		{Kind: Panel, ID: "info", Handler: returning("hello")},
	}, &directHandler{})

	ctx := context.Background()
	dabs, err := a.RenderBrush(ctx, Ref{ID: "dot"}, api.StrokePoint{X: 3, Y: 4, Pressure: 1}, nil)
	require.NoError(t, err)
	require.Len(t, dabs, 1)
	assert.Equal(t, 3.0, dabs[0].X)
	assert.Equal(t, 4.0, dabs[0].Size)

	panel, err := a.RenderPanel(ctx, Ref{ID: "info"}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"content": "hello"}, panel)
}

func TestOnChange(t *testing.T) {
	a := newAggregator()
	var versions []uint64
	unsubscribe := a.OnChange(func(s *Snapshot) { versions = append(versions, s.Version()) })
	a.OnChange(func(*Snapshot) { panic("subscriber bug") })

	a.Publish("com.x.a", []Declaration{{Kind: Filter, ID: "f"}}, nil, &directHandler{})
	a.Retract("com.x.a")
	unsubscribe()
	a.Publish("com.x.a", []Declaration{{Kind: Filter, ID: "f"}}, nil, &directHandler{})

	assert.Equal(t, []uint64{1, 2}, versions)
}

func TestConcurrentReadersNeverSeeTornSets(t *testing.T) {
	a := newAggregator()
	decl := []Declaration{{Kind: Filter, ID: "a"}, {Kind: Brush, ID: "b"}, {Kind: Tool, ID: "c"}}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			a.Publish("com.x.p", decl, nil, &directHandler{})
			a.Retract("com.x.p")
		}
		close(stop)
	}()

	for {
		select {
		case <-stop:
			wg.Wait()
			return
		default:
		}
		n := len(a.Snapshot().Owned("com.x.p"))
		if n != 0 && n != 3 {
			t.Fatalf("observed partial set of %d contributions", n)
		}
	}
}

func TestParseRef(t *testing.T) {
	r, err := ParseRef(Filter, "com.x.a/sharpen")
	require.NoError(t, err)
	assert.Equal(t, Ref{Owner: "com.x.a", Kind: Filter, ID: "sharpen"}, r)
	assert.Equal(t, "filter:com.x.a/sharpen", r.String())

	r, err = ParseRef(Brush, "ink")
	require.NoError(t, err)
	assert.Equal(t, "brush:ink", r.String())

	_, err = ParseRef(Tool, "/x")
	assert.Error(t, err)
	_, err = ParseRef(Tool, " ")
	assert.Error(t, err)
}
