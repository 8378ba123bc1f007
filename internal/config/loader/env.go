package loader

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ValueKind tells the env loader how to parse a variable.
type ValueKind int

const (
	// KindString keeps the raw value.
	KindString ValueKind = iota
	// KindInt parses a base-10 integer.
	KindInt
	// KindBool parses true/false, yes/no, on/off and 1/0.
	KindBool
	// KindList splits a comma-separated list, dropping empty items.
	KindList
)

// EnvKey maps one environment variable onto a config path.
type EnvKey struct {
	// Path is the dot-separated TOML path, e.g. "runtime.call_limit".
	Path string
	Kind ValueKind
}

// EnvLoader loads configuration from environment variables.
type EnvLoader struct {
	prefix  string            // Environment variable prefix (e.g., "BRUSHWORK_")
	mapping map[string]EnvKey // Env var -> config path
}

// NewEnvLoader creates an environment loader for the given mapping.
// The prefix should include the trailing underscore (e.g., "BRUSHWORK_").
func NewEnvLoader(prefix string, mapping map[string]EnvKey) *EnvLoader {
	return &EnvLoader{
		prefix:  prefix,
		mapping: mapping,
	}
}

// Load reads the mapped variables and returns a configuration map.
// Empty string values are treated as set.
func (l *EnvLoader) Load() (map[string]any, error) {
	config := make(map[string]any)

	for env, key := range l.mapping {
		raw, ok := os.LookupEnv(env)
		if !ok {
			continue
		}
		val, err := parseValue(raw, key.Kind)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", env, err)
		}
		setByPath(config, key.Path, val)
	}

	return config, nil
}

// Unknown returns prefixed variables that have no mapping, sorted.
func (l *EnvLoader) Unknown() []string {
	var names []string
	for _, env := range os.Environ() {
		name, _, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) {
			continue
		}
		if _, mapped := l.mapping[name]; !mapped {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// parseValue converts a raw variable into the value kind.
func parseValue(s string, kind ValueKind) (any, error) {
	switch kind {
	case KindInt:
		i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", s)
		}
		return i, nil

	case KindBool:
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes", "on", "1":
			return true, nil
		case "false", "no", "off", "0", "":
			return false, nil
		}
		return nil, fmt.Errorf("invalid boolean %q", s)

	case KindList:
		items := []any{}
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		return items, nil

	default:
		return s, nil
	}
}

// setByPath sets a value in a nested map using a dot-separated path.
func setByPath(data map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := data

	// Navigate/create intermediate maps
	for i := 0; i < len(parts)-1; i++ {
		part := parts[i]
		if next, ok := current[part].(map[string]any); ok {
			current = next
		} else {
			next := make(map[string]any)
			current[part] = next
			current = next
		}
	}

	current[parts[len(parts)-1]] = value
}
