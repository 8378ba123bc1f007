package js

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/dshills/brushwork/internal/plugin/api"
	"github.com/dshills/brushwork/internal/plugin/fault"
	"github.com/dshills/brushwork/internal/plugin/security"
	"github.com/dshills/brushwork/internal/plugin/settings"
)

func testLimits() security.Limits {
	l := security.DefaultLimits()
	l.InitializeTimeout = 200 * time.Millisecond
	l.InvokeTimeout = 200 * time.Millisecond
	l.CleanupTimeout = 200 * time.Millisecond
	return l
}

func newRuntime(t *testing.T, limits security.Limits, source string, perms ...security.Permission) (*Runtime, *api.Surface) {
	t.Helper()
	logger, _ := test.NewNullLogger()

	grant, err := security.NewGrant(perms)
	if err != nil {
		t.Fatal(err)
	}
	surface, err := api.NewBuilder(api.WithLogger(logger), api.WithLimits(limits)).Build(api.BuildInput{
		PluginID: "com.x.js",
		Version:  "1.0.0",
		Grant:    grant,
		Settings: settings.NewMemoryStore().Namespace("com.x.js", nil),
	})
	if err != nil {
		t.Fatal(err)
	}

	rt := New("com.x.js", limits, logrus.NewEntry(logger))
	t.Cleanup(func() { rt.Close() })
	if err := rt.LoadString(context.Background(), source); err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	return rt, surface
}

const invertPlugin = `
var cleaned = false;

function initialize(api) {
  api.filters.register({
    id: "invert",
    name: "Invert",
    apply: function (pixels, settings) {
      for (var i = 0; i < pixels.data.length; i++) {
        if ((i + 1) % 4 !== 0) {
          pixels.data[i] = 255 - pixels.data[i];
        }
      }
      return pixels;
    },
  });
  api.settings.set("greeting", "hi");
}

function cleanup() {
  cleaned = true;
}
`

func TestRuntimeInitializeAndInvoke(t *testing.T) {
	rt, surface := newRuntime(t, testLimits(), invertPlugin, security.FilterRegister)

	if err := rt.Initialize(context.Background(), surface); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	regs := surface.Seal()
	if len(regs) != 1 || regs[0].ID != "invert" || regs[0].Kind != api.KindFilter {
		t.Fatalf("registrations = %+v", regs)
	}
	if got := surface.Settings().Get("greeting", nil); got != "hi" {
		t.Errorf("settings greeting = %v", got)
	}

	px := api.PixelBuffer{Width: 1, Height: 1, Data: []uint8{10, 20, 30, 255}}
	out, err := rt.Invoke(context.Background(), regs[0].Handler, px.Value(), map[string]any{})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	result, err := api.PixelBufferFromValue(out)
	if err != nil {
		t.Fatal(err)
	}
	if want := []uint8{245, 235, 225, 255}; string(result.Data) != string(want) {
		t.Errorf("inverted = %v, want %v", result.Data, want)
	}

	if !rt.HasCleanup() {
		t.Error("HasCleanup() = false")
	}
	if err := rt.Cleanup(context.Background()); err != nil {
		t.Errorf("Cleanup() error = %v", err)
	}
	if !rt.vm.Get("cleaned").ToBoolean() {
		t.Error("cleanup did not run")
	}
}

func TestRuntimeLoadFile(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "main.js")
	if err := os.WriteFile(entry, []byte(`function initialize(api) {}`), 0o644); err != nil {
		t.Fatal(err)
	}

	rt := New("com.x.file", testLimits(), nil)
	defer rt.Close()
	if err := rt.Load(context.Background(), entry); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := rt.Load(context.Background(), filepath.Join(dir, "missing.js")); !errors.Is(err, fault.ErrInitializeThrew) {
		t.Errorf("Load(missing) error = %v, want InitializeThrew", err)
	}
}

func TestRuntimeInitializeErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   error
	}{
		{"throws", `function initialize(api) { throw new Error("broken"); }`, fault.ErrInitializeThrew},
		{"missing", `var x = 1;`, fault.ErrInitializeThrew},
		{"not a function", `var initialize = 42;`, fault.ErrInitializeThrew},
		{"loops", `function initialize(api) { for (;;) {} }`, fault.ErrInitializeTimeout},
		{"denied", `function initialize(api) { api.canvas.getSize(); }`, fault.ErrInitializeThrew},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, surface := newRuntime(t, testLimits(), tt.source)
			err := rt.Initialize(context.Background(), surface)
			if !errors.Is(err, tt.want) {
				t.Errorf("Initialize() error = %v, want %v", err, tt.want)
			}
			var fe *fault.Error
			if errors.As(err, &fe) && fe.Plugin != "com.x.js" {
				t.Errorf("error plugin = %q", fe.Plugin)
			}
		})
	}
}

func TestRuntimeDeniedCallIsCatchable(t *testing.T) {
	source := `
var deniedMsg = "";
function initialize(api) {
  try {
    api.canvas.getSize();
  } catch (e) {
    deniedMsg = String(e);
  }
}`
	rt, surface := newRuntime(t, testLimits(), source)
	if err := rt.Initialize(context.Background(), surface); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if msg := rt.vm.Get("deniedMsg").String(); !strings.Contains(msg, "canvas:read") {
		t.Errorf("denied message = %q", msg)
	}
}

func TestRuntimeLoadFailure(t *testing.T) {
	rt := New("com.x.bad", testLimits(), nil)
	defer rt.Close()

	if err := rt.LoadString(context.Background(), `throw new Error("at load");`); !errors.Is(err, fault.ErrInitializeThrew) {
		t.Errorf("LoadString() error = %v", err)
	}
	if err := rt.LoadString(context.Background(), `function (`); !errors.Is(err, fault.ErrInitializeThrew) {
		t.Errorf("LoadString(syntax) error = %v", err)
	}
	if err := rt.LoadString(context.Background(), `while (true) {}`); !errors.Is(err, fault.ErrInitializeTimeout) {
		t.Errorf("LoadString(loop) error = %v", err)
	}
}

func TestRuntimeCleanupFailure(t *testing.T) {
	rt, surface := newRuntime(t, testLimits(), `
function initialize(api) {}
function cleanup() { throw new Error("cannot clean"); }`)
	if err := rt.Initialize(context.Background(), surface); err != nil {
		t.Fatal(err)
	}
	if err := rt.Cleanup(context.Background()); !errors.Is(err, fault.ErrCleanupFailed) {
		t.Errorf("Cleanup() error = %v, want CleanupFailed", err)
	}
}

func TestRuntimeWithoutCleanup(t *testing.T) {
	rt, _ := newRuntime(t, testLimits(), `function initialize(api) {}`)
	if rt.HasCleanup() {
		t.Error("HasCleanup() = true")
	}
	if err := rt.Cleanup(context.Background()); err != nil {
		t.Errorf("Cleanup() error = %v", err)
	}
}

func TestRuntimeHandlerTimeout(t *testing.T) {
	rt, surface := newRuntime(t, testLimits(), `
function initialize(api) {
  api.tools.register({ id: "spin", onEvent: function () { for (;;) {} } });
}`, security.ToolRegister)
	if err := rt.Initialize(context.Background(), surface); err != nil {
		t.Fatal(err)
	}
	regs := surface.Seal()

	start := time.Now()
	_, err := rt.Invoke(context.Background(), regs[0].Handler, map[string]any{"type": "down"})
	if !errors.Is(err, ErrExecutionTimeout) {
		t.Fatalf("Invoke() error = %v, want ErrExecutionTimeout", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout took too long")
	}

	// The runtime stays usable after an interrupted handler.
	if err := rt.Cleanup(context.Background()); err != nil {
		t.Errorf("Cleanup() after timeout error = %v", err)
	}
}

func TestRuntimeCancelledCallsLeaveNoInterrupt(t *testing.T) {
	rt, surface := newRuntime(t, testLimits(), `
var n = 0;
function initialize(api) {
  api.tools.register({ id: "count", onEvent: function () { n++; return n; } });
}`, security.ToolRegister)
	if err := rt.Initialize(context.Background(), surface); err != nil {
		t.Fatal(err)
	}
	handler := surface.Seal()[0].Handler

	for i := 0; i < 200; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		if i%2 == 0 {
			cancel()
		} else {
			go cancel()
		}
		// The cancelled call may or may not run; the next one must.
		_, _ = rt.Invoke(ctx, handler, map[string]any{"type": "down"})
		if _, err := rt.Invoke(context.Background(), handler, map[string]any{"type": "down"}); err != nil {
			t.Fatalf("Invoke() after cancelled call %d error = %v", i, err)
		}
	}
}

func TestRuntimeCallLimit(t *testing.T) {
	limits := testLimits()
	limits.CallLimit = 5
	rt, surface := newRuntime(t, limits, `
function initialize(api) {
  for (var i = 0; i < 10; i++) { api.plugin.id(); }
}`)
	err := rt.Initialize(context.Background(), surface)
	if !errors.Is(err, fault.ErrInitializeThrew) || !strings.Contains(err.Error(), "call limit") {
		t.Errorf("Initialize() error = %v, want call limit failure", err)
	}
}

func TestRuntimeConsole(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	rt := New("com.x.console", testLimits(), logrus.NewEntry(logger))
	defer rt.Close()

	if err := rt.LoadString(context.Background(), `console.log("loaded", 1); console.warn("careful");`); err != nil {
		t.Fatal(err)
	}
	entries := hook.AllEntries()
	if len(entries) != 2 {
		t.Fatalf("got %d log entries, want 2", len(entries))
	}
	if entries[0].Message != "loaded 1" || entries[0].Level != logrus.InfoLevel || entries[0].Data["runtime"] != "js" {
		t.Errorf("console.log entry = %+v", entries[0])
	}
	if entries[1].Level != logrus.WarnLevel {
		t.Errorf("console.warn level = %v", entries[1].Level)
	}
}

func TestConvertValues(t *testing.T) {
	rt := New("com.x.convert", testLimits(), nil)
	defer rt.Close()

	err := rt.run(context.Background(), time.Second, func(vm *goja.Runtime) error {
		v, err := vm.RunString(`({ n: 2, f: 1.5, s: "x", b: true, list: [1, "a"], nested: { k: null } })`)
		if err != nil {
			return err
		}
		want := map[string]any{
			"n":      int64(2),
			"f":      1.5,
			"s":      "x",
			"b":      true,
			"list":   []any{int64(1), "a"},
			"nested": map[string]any{"k": nil},
		}
		if got := rt.fromJS(v); !reflect.DeepEqual(got, want) {
			t.Errorf("fromJS() = %#v, want %#v", got, want)
		}

		cyclic, err := vm.RunString(`var o = {}; o.self = o; o`)
		if err != nil {
			return err
		}
		if got := rt.fromJS(cyclic).(map[string]any); got["self"] != nil {
			t.Errorf("cycle should convert to nil, got %v", got["self"])
		}

		back := rt.fromJS(rt.toJS(want))
		if !reflect.DeepEqual(back, want) {
			t.Errorf("round trip = %#v, want %#v", back, want)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCallableExposedToScript(t *testing.T) {
	rt := New("com.x.callable", testLimits(), nil)
	defer rt.Close()

	double := api.CallableFunc(func(_ context.Context, args ...any) (any, error) {
		return args[0].(int64) * 2, nil
	})
	err := rt.run(context.Background(), time.Second, func(vm *goja.Runtime) error {
		vm.Set("double", rt.toJS(double))
		v, err := vm.RunString(`double(21)`)
		if err != nil {
			return err
		}
		if got := rt.fromJS(v); got != int64(42) {
			t.Errorf("double(21) = %v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
