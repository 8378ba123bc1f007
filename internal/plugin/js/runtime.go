// Package js runs JavaScript plugins on goja.
//
// Each plugin gets its own goja.Runtime with no module loader and no host
// objects besides the api argument passed to initialize(api) and a console
// that writes to the plugin log. Long-running code is stopped with
// Runtime.Interrupt when the entry or handler deadline passes.
package js

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/sirupsen/logrus"

	"github.com/dshills/brushwork/internal/plugin/api"
	"github.com/dshills/brushwork/internal/plugin/fault"
	"github.com/dshills/brushwork/internal/plugin/security"
)

// Errors for JavaScript execution.
var (
	// ErrClosed is returned when using a closed runtime.
	ErrClosed = errors.New("js runtime is closed")

	// ErrExecutionTimeout is returned when a script exceeds its deadline.
	ErrExecutionTimeout = errors.New("js execution timeout")

	// ErrCallLimit is returned when a script exceeds its API call budget.
	ErrCallLimit = errors.New("js api call limit exceeded")

	errNoInitialize = errors.New("entry point defines no initialize function")
)

// Runtime runs one JavaScript plugin instance. Calls are serialized; a
// provider must not invoke a plugin's Callable synchronously from inside that
// plugin's API call.
type Runtime struct {
	plugin string
	limits security.Limits
	log    *logrus.Entry

	mu     sync.Mutex
	vm     *goja.Runtime
	ctx    context.Context
	calls  int64
	closed bool
}

// New creates a runtime for plugin.
func New(plugin string, limits security.Limits, log *logrus.Entry) *Runtime {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	r := &Runtime{
		plugin: plugin,
		limits: limits,
		log:    log.WithField("runtime", "js"),
		vm:     goja.New(),
		ctx:    context.Background(),
	}
	r.installConsole()
	return r
}

// Name returns the runtime name.
func (r *Runtime) Name() string {
	return "js"
}

func (r *Runtime) installConsole() {
	console := r.vm.NewObject()
	for _, level := range []logrus.Level{logrus.DebugLevel, logrus.InfoLevel, logrus.WarnLevel, logrus.ErrorLevel} {
		lvl := level
		name := lvl.String()
		if lvl == logrus.WarnLevel {
			name = "warn"
		}
		_ = console.Set(name, func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, a := range call.Arguments {
				parts[i] = a.String()
			}
			r.log.WithField("source", "console").Log(lvl, strings.Join(parts, " "))
			return goja.Undefined()
		})
	}
	_ = console.Set("log", console.Get("info"))
	r.vm.Set("console", console)
}

// run executes fn with exclusive access to the VM. A positive timeout bounds
// it; expiry or cancellation interrupts the script.
func (r *Runtime) run(ctx context.Context, timeout time.Duration, fn func(vm *goja.Runtime) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// An interrupt that lands after ClearInterrupt would abort the next
	// call, so wait for a started interrupt before clearing it.
	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(interrupted)
		r.vm.Interrupt(ctx.Err())
	})
	defer func() {
		if !stop() {
			<-interrupted
		}
		r.vm.ClearInterrupt()
	}()

	prev := r.ctx
	r.ctx = ctx
	r.calls = 0
	defer func() { r.ctx = prev }()

	err := r.recoverRun(fn)
	if err == nil {
		return nil
	}
	if cerr := ctx.Err(); cerr != nil {
		if errors.Is(cerr, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrExecutionTimeout, cerr)
		}
		return cerr
	}
	return err
}

func (r *Runtime) recoverRun(fn func(vm *goja.Runtime) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("js panic: %v", p)
		}
	}()
	return fn(r.vm)
}

// Load runs the entry file.
func (r *Runtime) Load(ctx context.Context, entry string) error {
	src, err := os.ReadFile(entry)
	if err != nil {
		return r.entryError("load", err)
	}
	return r.loadSource(ctx, entry, string(src))
}

// LoadString runs source as the entry script.
func (r *Runtime) LoadString(ctx context.Context, source string) error {
	return r.loadSource(ctx, "main.js", source)
}

func (r *Runtime) loadSource(ctx context.Context, name, source string) error {
	prog, err := goja.Compile(name, source, true)
	if err != nil {
		return r.entryError("load", err)
	}
	err = r.run(ctx, r.limits.InitializeTimeout, func(vm *goja.Runtime) error {
		_, err := vm.RunProgram(prog)
		return err
	})
	return r.entryError("load", err)
}

// Initialize calls initialize(api) with an object mirroring the surface.
func (r *Runtime) Initialize(ctx context.Context, s *api.Surface) error {
	err := r.run(ctx, r.limits.InitializeTimeout, func(vm *goja.Runtime) error {
		init, ok := goja.AssertFunction(vm.Get("initialize"))
		if !ok {
			return errNoInitialize
		}
		_, err := init(goja.Undefined(), r.apiObject(s))
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
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	_, ok := goja.AssertFunction(r.vm.Get("cleanup"))
	return ok
}

// Cleanup calls cleanup() if the plugin defines it.
func (r *Runtime) Cleanup(ctx context.Context) error {
	err := r.run(ctx, r.limits.CleanupTimeout, func(vm *goja.Runtime) error {
		fn, ok := goja.AssertFunction(vm.Get("cleanup"))
		if !ok {
			return nil
		}
		_, err := fn(goja.Undefined())
		return err
	})
	if err != nil {
		return fault.Wrap(fault.CleanupFailed, r.plugin, err).WithOp("cleanup")
	}
	return nil
}

// Close discards the VM.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.vm.Interrupt(ErrClosed)
	r.closed = true
	return nil
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

// apiObject builds api.<module>.<function> for the surface. It must run
// inside run.
func (r *Runtime) apiObject(s *api.Surface) *goja.Object {
	root := r.vm.NewObject()
	for _, m := range s.Modules() {
		mod := r.vm.NewObject()
		for _, f := range m.Functions {
			module, fn := m.Name, f
			_ = mod.Set(f.Name, func(call goja.FunctionCall) goja.Value {
				r.calls++
				if r.limits.CallLimit > 0 && r.calls > r.limits.CallLimit {
					panic(r.vm.NewGoError(fmt.Errorf("%w: %d calls", ErrCallLimit, r.limits.CallLimit)))
				}
				args := make([]any, len(call.Arguments))
				for i, a := range call.Arguments {
					args[i] = r.fromJS(a)
				}
				out, err := s.Invoke(r.ctx, module, fn, args)
				if err != nil {
					panic(r.vm.NewGoError(err))
				}
				return r.toJS(out)
			})
		}
		_ = root.Set(m.Name, mod)
	}
	return root
}
