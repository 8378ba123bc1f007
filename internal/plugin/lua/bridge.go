package lua

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/brushwork/internal/plugin/api"
)

// Bridge converts between Lua values and plugin API plain data.
type Bridge struct {
	L *lua.LState

	// wrap turns a Lua function into a Callable bound to its state.
	wrap func(*lua.LFunction) api.Callable
}

// NewBridge creates a bridge for L. wrap may be nil, in which case Lua
// functions convert to nil.
func NewBridge(L *lua.LState, wrap func(*lua.LFunction) api.Callable) *Bridge {
	return &Bridge{L: L, wrap: wrap}
}

// ToGoValue converts a Lua value to a Go value. Integral numbers become
// int64, tables become []any or map[string]any, and functions become
// api.Callable when the bridge can wrap them.
func (b *Bridge) ToGoValue(lv lua.LValue) any {
	return b.toGo(lv, make(map[*lua.LTable]bool))
}

func (b *Bridge) toGo(lv lua.LValue, visited map[*lua.LTable]bool) any {
	if lv == nil {
		return nil
	}

	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		// Cycles convert to nil; shared subtables convert each time.
		if visited[v] {
			return nil
		}
		visited[v] = true
		out := b.tableToGo(v, visited)
		delete(visited, v)
		return out
	case *lua.LFunction:
		if b.wrap == nil {
			return nil
		}
		return b.wrap(v)
	case *lua.LUserData:
		return v.Value
	default:
		return nil
	}
}

// tableToGo converts a table to a slice when it is a sequence 1..n,
// otherwise to a map. Pixel data arrives as long sequences, so the
// sequence check avoids a full key scan when the array part is dense.
func (b *Bridge) tableToGo(t *lua.LTable, visited map[*lua.LTable]bool) any {
	if n := t.Len(); n > 0 && isSequence(t, n) {
		arr := make([]any, n)
		for i := 1; i <= n; i++ {
			arr[i-1] = b.toGo(t.RawGetInt(i), visited)
		}
		return arr
	}

	m := make(map[string]any)
	t.ForEach(func(k, v lua.LValue) {
		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = fmt.Sprintf("%v", float64(kv))
		default:
			key = k.String()
		}
		m[key] = b.toGo(v, visited)
	})
	return m
}

// isSequence reports whether t holds exactly the keys 1..n.
func isSequence(t *lua.LTable, n int) bool {
	count := 0
	dense := true
	t.ForEach(func(k, _ lua.LValue) {
		count++
		kn, ok := k.(lua.LNumber)
		if !ok || float64(kn) != float64(int(kn)) || int(kn) < 1 || int(kn) > n {
			dense = false
		}
	})
	return dense && count == n
}

// ToLuaValue converts a Go value to a Lua value.
func (b *Bridge) ToLuaValue(v any) lua.LValue {
	if v == nil {
		return lua.LNil
	}

	switch val := v.(type) {
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case uint8:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []uint8:
		return b.bytesToTable(val)
	case []any:
		return b.sliceToTable(val)
	case []string:
		return b.stringSliceToTable(val)
	case map[string]any:
		return b.mapToTable(val)
	case map[string]string:
		return b.stringMapToTable(val)
	case *luaFunction:
		if val.state.L == b.L {
			return val.fn
		}
		return b.callableToFunction(val)
	case api.Callable:
		return b.callableToFunction(val)
	case lua.LValue:
		return val
	default:
		return lua.LString(fmt.Sprint(v))
	}
}

// sliceToTable converts a Go slice to a Lua table (array).
func (b *Bridge) sliceToTable(s []any) *lua.LTable {
	t := b.L.CreateTable(len(s), 0)
	for i, v := range s {
		t.RawSetInt(i+1, b.ToLuaValue(v))
	}
	return t
}

// bytesToTable converts raw pixel bytes to a table of numbers.
func (b *Bridge) bytesToTable(data []uint8) *lua.LTable {
	t := b.L.CreateTable(len(data), 0)
	for i, v := range data {
		t.RawSetInt(i+1, lua.LNumber(v))
	}
	return t
}

// stringSliceToTable converts a string slice to a Lua table.
func (b *Bridge) stringSliceToTable(s []string) *lua.LTable {
	t := b.L.CreateTable(len(s), 0)
	for i, v := range s {
		t.RawSetInt(i+1, lua.LString(v))
	}
	return t
}

// mapToTable converts a Go map to a Lua table.
func (b *Bridge) mapToTable(m map[string]any) *lua.LTable {
	t := b.L.CreateTable(0, len(m))
	for k, v := range m {
		t.RawSetString(k, b.ToLuaValue(v))
	}
	return t
}

// stringMapToTable converts a string map to a Lua table.
func (b *Bridge) stringMapToTable(m map[string]string) *lua.LTable {
	t := b.L.CreateTable(0, len(m))
	for k, v := range m {
		t.RawSetString(k, lua.LString(v))
	}
	return t
}

// callableToFunction exposes a Go callable to Lua.
func (b *Bridge) callableToFunction(c api.Callable) *lua.LFunction {
	return b.L.NewFunction(b.WrapGoFunc(func(ctx context.Context, args []any) (any, error) {
		return c.Call(ctx, args...)
	}))
}

// WrapGoFunc wraps a Go function for use in Lua. Errors are raised as Lua
// errors; the context is the one attached to the running chunk.
func (b *Bridge) WrapGoFunc(fn func(ctx context.Context, args []any) (any, error)) lua.LGFunction {
	return func(L *lua.LState) int {
		nArgs := L.GetTop()
		args := make([]any, nArgs)
		for i := 1; i <= nArgs; i++ {
			args[i-1] = b.ToGoValue(L.Get(i))
		}

		result, err := fn(contextOf(L), args)
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}

		if result == nil {
			return 0
		}
		L.Push(b.ToLuaValue(result))
		return 1
	}
}

// ResultsToGo converts a call's results to a single Go value. A trailing
// (nil, message) pair is treated as a failure.
func (b *Bridge) ResultsToGo(results []lua.LValue) (any, error) {
	if len(results) == 0 {
		return nil, nil
	}
	first := results[0]
	if first == lua.LNil && len(results) > 1 {
		if msg, ok := results[1].(lua.LString); ok {
			return nil, fmt.Errorf("%s", string(msg))
		}
	}
	return b.ToGoValue(first), nil
}

func contextOf(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
