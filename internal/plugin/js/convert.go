package js

import (
	"context"
	"math"
	"strconv"

	"github.com/dop251/goja"

	"github.com/dshills/brushwork/internal/plugin/api"
)

// fromJS converts a script value to plain data. Integral numbers become
// int64, arrays []any, objects map[string]any and functions api.Callable.
func (r *Runtime) fromJS(v goja.Value) any {
	return r.fromJSVisited(v, make(map[*goja.Object]bool))
}

func (r *Runtime) fromJSVisited(v goja.Value, visited map[*goja.Object]bool) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	if fn, ok := goja.AssertFunction(v); ok {
		return &jsFunction{rt: r, value: v, fn: fn}
	}

	obj, isObj := v.(*goja.Object)
	if !isObj {
		switch x := v.Export().(type) {
		case int64:
			return x
		case float64:
			if x == math.Trunc(x) && !math.IsInf(x, 0) && math.Abs(x) < 1<<53 {
				return int64(x)
			}
			return x
		default:
			return x
		}
	}

	// Cycles convert to nil; shared objects convert each time.
	if visited[obj] {
		return nil
	}
	visited[obj] = true
	defer delete(visited, obj)

	switch obj.ClassName() {
	case "Array":
		n := int(obj.Get("length").ToInteger())
		out := make([]any, n)
		for i := 0; i < n; i++ {
			out[i] = r.fromJSVisited(obj.Get(strconv.Itoa(i)), visited)
		}
		return out
	case "Date", "RegExp", "Error":
		return obj.String()
	}

	keys := obj.Keys()
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		out[k] = r.fromJSVisited(obj.Get(k), visited)
	}
	return out
}

// toJS converts plain data to a script value.
func (r *Runtime) toJS(v any) goja.Value {
	switch x := v.(type) {
	case nil:
		return goja.Null()
	case []any:
		items := make([]any, len(x))
		for i, e := range x {
			items[i] = r.toJS(e)
		}
		return r.vm.NewArray(items...)
	case map[string]any:
		obj := r.vm.NewObject()
		for k, e := range x {
			_ = obj.Set(k, r.toJS(e))
		}
		return obj
	case *jsFunction:
		if x.rt == r {
			return x.value
		}
		return r.callableToJS(x)
	case api.Callable:
		return r.callableToJS(x)
	case goja.Value:
		return x
	default:
		return r.vm.ToValue(x)
	}
}

// callableToJS exposes a Go callable to scripts.
func (r *Runtime) callableToJS(c api.Callable) goja.Value {
	return r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		args := make([]any, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = r.fromJS(a)
		}
		out, err := c.Call(r.ctx, args...)
		if err != nil {
			panic(r.vm.NewGoError(err))
		}
		return r.toJS(out)
	})
}

// jsFunction is a script function exposed to the host as an api.Callable.
type jsFunction struct {
	rt    *Runtime
	value goja.Value
	fn    goja.Callable
}

// Call runs the function under the invoke timeout unless ctx already has a
// deadline.
func (f *jsFunction) Call(ctx context.Context, args ...any) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := f.rt.limits.InvokeTimeout
	if _, ok := ctx.Deadline(); ok {
		timeout = 0
	}

	var out any
	err := f.rt.run(ctx, timeout, func(*goja.Runtime) error {
		jsArgs := make([]goja.Value, len(args))
		for i, a := range args {
			jsArgs[i] = f.rt.toJS(a)
		}
		res, err := f.fn(goja.Undefined(), jsArgs...)
		if err != nil {
			return err
		}
		out = f.rt.fromJS(res)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
