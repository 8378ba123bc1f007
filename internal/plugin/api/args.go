package api

import (
	"context"
	"fmt"
)

// Callable is a function supplied by plugin code. Calls are executed by the
// plugin's runtime and may block.
type Callable interface {
	Call(ctx context.Context, args ...any) (any, error)
}

// CallableFunc adapts a Go function to Callable.
type CallableFunc func(ctx context.Context, args ...any) (any, error)

// Call implements Callable.
func (f CallableFunc) Call(ctx context.Context, args ...any) (any, error) {
	return f(ctx, args...)
}

// ArgError reports a bad argument to an API function.
type ArgError struct {
	Function string
	Index    int // 1-based
	Message  string
}

// Error implements the error interface.
func (e *ArgError) Error() string {
	return fmt.Sprintf("bad argument #%d to %s (%s)", e.Index, e.Function, e.Message)
}

// Args are the plain-data arguments of an API call.
type Args struct {
	fn     string
	values []any
}

// NewArgs wraps values for the named function.
func NewArgs(fn string, values ...any) Args {
	return Args{fn: fn, values: values}
}

// Len returns the number of arguments.
func (a Args) Len() int {
	return len(a.values)
}

// Any returns argument i (0-based) or nil.
func (a Args) Any(i int) any {
	if i < 0 || i >= len(a.values) {
		return nil
	}
	return a.values[i]
}

func (a Args) errorf(i int, format string, args ...any) error {
	return &ArgError{Function: a.fn, Index: i + 1, Message: fmt.Sprintf(format, args...)}
}

// String returns argument i as a string.
func (a Args) String(i int) (string, error) {
	s, ok := a.Any(i).(string)
	if !ok {
		return "", a.errorf(i, "string expected, got %s", typeName(a.Any(i)))
	}
	return s, nil
}

// OptString returns argument i as a string, or def when absent.
func (a Args) OptString(i int, def string) (string, error) {
	if a.Any(i) == nil {
		return def, nil
	}
	return a.String(i)
}

// Number returns argument i as a float64.
func (a Args) Number(i int) (float64, error) {
	n, ok := toNumber(a.Any(i))
	if !ok {
		return 0, a.errorf(i, "number expected, got %s", typeName(a.Any(i)))
	}
	return n, nil
}

// Int returns argument i as an integer.
func (a Args) Int(i int) (int, error) {
	n, err := a.Number(i)
	if err != nil {
		return 0, err
	}
	if n != float64(int(n)) {
		return 0, a.errorf(i, "integer expected, got %v", n)
	}
	return int(n), nil
}

// Map returns argument i as a table.
func (a Args) Map(i int) (map[string]any, error) {
	m, ok := a.Any(i).(map[string]any)
	if !ok {
		return nil, a.errorf(i, "table expected, got %s", typeName(a.Any(i)))
	}
	return m, nil
}

// OptMap returns argument i as a table, or an empty table when absent.
func (a Args) OptMap(i int) (map[string]any, error) {
	if a.Any(i) == nil {
		return map[string]any{}, nil
	}
	return a.Map(i)
}

// List returns argument i as a list.
func (a Args) List(i int) ([]any, error) {
	switch v := a.Any(i).(type) {
	case []any:
		return v, nil
	case map[string]any:
		if len(v) == 0 {
			return []any{}, nil
		}
	}
	return nil, a.errorf(i, "list expected, got %s", typeName(a.Any(i)))
}

// Wrap converts a parse error for argument i into an ArgError.
func (a Args) Wrap(i int, err error) error {
	if err == nil {
		return nil
	}
	return a.errorf(i, "%v", err)
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "nil"
	case bool:
		return "boolean"
	case string:
		return "string"
	case float64, float32, int, int32, int64:
		return "number"
	case []any:
		return "list"
	case map[string]any:
		return "table"
	case Callable:
		return "function"
	default:
		return fmt.Sprintf("%T", v)
	}
}
