package lua

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/brushwork/internal/plugin/api"
	"github.com/dshills/brushwork/internal/plugin/fault"
	"github.com/dshills/brushwork/internal/plugin/security"
)

var errNoInitialize = errors.New("entry point defines no initialize function")

// Runtime runs one Lua plugin instance.
//
// Plugin callbacks hold the state lock while they run, so a provider must not
// invoke a plugin's Callable synchronously from inside that plugin's API call.
type Runtime struct {
	plugin string
	limits security.Limits
	state  *State
	bridge *Bridge
	log    *logrus.Entry
}

// New creates a runtime for plugin.
func New(plugin string, limits security.Limits, log *logrus.Entry) *Runtime {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	r := &Runtime{
		plugin: plugin,
		limits: limits,
		log:    log.WithField("runtime", "lua"),
	}
	r.state = NewState(
		WithCallLimit(limits.CallLimit),
		WithPrint(func(msg string) {
			r.log.WithField("source", "print").Info(msg)
		}),
	)
	r.bridge = NewBridge(r.state.L, func(fn *lua.LFunction) api.Callable {
		return &luaFunction{rt: r, state: r.state, fn: fn}
	})
	return r
}

// Name returns the runtime name.
func (r *Runtime) Name() string {
	return "lua"
}

// Load executes the entry file's top-level chunk.
func (r *Runtime) Load(ctx context.Context, entry string) error {
	err := r.state.DoFile(ctx, r.limits.InitializeTimeout, entry)
	return r.entryError("load", err)
}

// LoadString executes source as the entry chunk.
func (r *Runtime) LoadString(ctx context.Context, source string) error {
	err := r.state.DoString(ctx, r.limits.InitializeTimeout, source)
	return r.entryError("load", err)
}

// Initialize calls initialize(api) with a table mirroring the surface.
func (r *Runtime) Initialize(ctx context.Context, s *api.Surface) error {
	err := r.state.Do(ctx, r.limits.InitializeTimeout, func(L *lua.LState) error {
		init := L.GetGlobal("initialize")
		if init.Type() != lua.LTFunction {
			return errNoInitialize
		}
		_, err := pcall(L, init, r.apiTable(s))
		return err
	})
	return r.entryError("initialize", err)
}

// Invoke calls a plugin callback.
func (r *Runtime) Invoke(ctx context.Context, fn api.Callable, args ...any) (any, error) {
	return fn.Call(ctx, args...)
}

// HasCleanup reports whether the plugin defines cleanup().
func (r *Runtime) HasCleanup() bool {
	return r.state.HasFunction("cleanup")
}

// Cleanup calls cleanup() if the plugin defines it.
func (r *Runtime) Cleanup(ctx context.Context) error {
	err := r.state.Do(ctx, r.limits.CleanupTimeout, func(L *lua.LState) error {
		fn := L.GetGlobal("cleanup")
		if fn.Type() != lua.LTFunction {
			return nil
		}
		_, err := pcall(L, fn)
		return err
	})
	if err != nil {
		return fault.Wrap(fault.CleanupFailed, r.plugin, err).WithOp("cleanup")
	}
	return nil
}

// Close releases the Lua state.
func (r *Runtime) Close() error {
	return r.state.Close()
}

func (r *Runtime) entryError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errNoInitialize):
		return fault.New(fault.InitializeThrew, r.plugin, err.Error()).WithOp(op)
	case errors.Is(err, ErrExecutionTimeout):
		return fault.Wrap(fault.InitializeTimeout, r.plugin, err).WithOp(op)
	default:
		return fault.Wrap(fault.InitializeThrew, r.plugin, err).WithOp(op)
	}
}

// apiTable builds api.<module>.<function> for the surface. It must run
// inside State.Do.
func (r *Runtime) apiTable(s *api.Surface) *lua.LTable {
	L := r.state.L
	root := L.NewTable()
	for _, m := range s.Modules() {
		mod := L.CreateTable(0, len(m.Functions))
		for _, f := range m.Functions {
			module, fn := m.Name, f
			mod.RawSetString(f.Name, L.NewFunction(r.bridge.WrapGoFunc(func(ctx context.Context, args []any) (any, error) {
				if r.state.sandbox.Charge() {
					return nil, fmt.Errorf("%w: %d calls", ErrCallLimit, r.limits.CallLimit)
				}
				return s.Invoke(ctx, module, fn, args)
			})))
		}
		root.RawSetString(m.Name, mod)
	}
	return root
}

// luaFunction is a Lua function exposed to the host as an api.Callable.
type luaFunction struct {
	rt    *Runtime
	state *State
	fn    *lua.LFunction
}

// Call runs the function under the invoke timeout unless ctx already has a
// deadline.
func (f *luaFunction) Call(ctx context.Context, args ...any) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := f.rt.limits.InvokeTimeout
	if _, ok := ctx.Deadline(); ok {
		timeout = 0
	}

	var out any
	err := f.state.Do(ctx, timeout, func(L *lua.LState) error {
		largs := make([]lua.LValue, len(args))
		for i, a := range args {
			largs[i] = f.rt.bridge.ToLuaValue(a)
		}
		results, err := pcall(L, f.fn, largs...)
		if err != nil {
			return err
		}
		out, err = f.rt.bridge.ResultsToGo(results)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
