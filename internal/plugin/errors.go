package plugin

import (
	"errors"
	"fmt"

	"github.com/dshills/brushwork/internal/plugin/fault"
)

// Plugin system errors not tied to a specific plugin.
var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("plugin registry is already started")

	// ErrNoRuntime is returned when no runtime handles an entry file.
	ErrNoRuntime = errors.New("no runtime for entry file")
)

// manifestError builds a manifest-category fault for plugin id.
func manifestError(kind fault.Kind, id, format string, args ...any) error {
	return fault.New(kind, id, fmt.Sprintf(format, args...)).WithOp("validate")
}

// stateError reports an operation the lifecycle state does not allow.
func stateError(id, op string, s State) error {
	return fault.New(fault.InvalidState, id, fmt.Sprintf("cannot %s a plugin in state %s", op, s)).WithOp(op)
}

// notFound reports an unknown plugin id.
func notFound(id, op string) error {
	return fault.New(fault.PluginNotFound, id, "").WithOp(op)
}
