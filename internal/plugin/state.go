package plugin

import "fmt"

// State represents the lifecycle state of an installed plugin.
type State int

// Plugin states.
const (
	// StateInstalled - Plugin files are in place but the plugin never ran.
	StateInstalled State = iota

	// StateEnabled - initialize succeeded and contributions are published.
	StateEnabled

	// StateDisabled - Plugin was enabled before and has been stopped.
	StateDisabled

	// StateError - initialize threw or timed out.
	StateError
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateInstalled:
		return "installed"
	case StateEnabled:
		return "enabled"
	case StateDisabled:
		return "disabled"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseState parses a state name.
func ParseState(s string) (State, error) {
	switch s {
	case "installed":
		return StateInstalled, nil
	case "enabled":
		return StateEnabled, nil
	case "disabled":
		return StateDisabled, nil
	case "error":
		return StateError, nil
	default:
		return 0, fmt.Errorf("unknown plugin state %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// CanEnable returns true if enable is allowed from this state.
func (s State) CanEnable() bool {
	return s == StateInstalled || s == StateDisabled
}

// CanDisable returns true if disable is allowed from this state.
func (s State) CanDisable() bool {
	return s == StateEnabled || s == StateError
}

// Contributes returns true if the plugin's contributions are visible.
func (s State) Contributes() bool {
	return s == StateEnabled
}
