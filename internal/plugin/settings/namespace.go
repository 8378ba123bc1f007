package settings

import (
	"fmt"
	"sort"

	"github.com/dshills/brushwork/internal/plugin/fault"
)

// Namespace is one plugin's view of the settings store.
type Namespace struct {
	store  *Store
	plugin string
	schema Schema
}

// Plugin returns the owning plugin id.
func (n *Namespace) Plugin() string {
	return n.plugin
}

// Schema returns the declared schema, which may be nil.
func (n *Namespace) Schema() Schema {
	return n.schema
}

// Get returns the stored value for key. When nothing is stored it returns
// the schema default if one is declared, otherwise def.
func (n *Namespace) Get(key string, def any) any {
	if v, ok := n.store.lookup(n.plugin, key); ok {
		return v
	}
	if f, ok := n.schema[key]; ok {
		if v, err := f.Coerce(f.Default); err == nil {
			return v
		}
	}
	return def
}

// Value returns the stored or default value for key.
// It fails with SettingNotFound when neither exists.
func (n *Namespace) Value(key string) (any, error) {
	if v, ok := n.store.lookup(n.plugin, key); ok {
		return v, nil
	}
	if f, ok := n.schema[key]; ok {
		return f.Coerce(f.Default)
	}
	return nil, fault.New(fault.SettingNotFound, n.plugin, fmt.Sprintf("%q", key))
}

// Set validates and persists a value. Declared keys are checked against
// the schema; undeclared keys accept any JSON value.
func (n *Namespace) Set(key string, value any) error {
	if key == "" {
		return n.invalid(fault.New(fault.InvalidSettingValue, "", "empty key"))
	}

	var (
		v   any
		err error
	)
	if f, ok := n.schema[key]; ok {
		v, err = f.Coerce(value)
	} else {
		v, err = jsonValue(value)
		if err != nil {
			err = fault.Wrap(fault.InvalidSettingValue, "", err)
		}
	}
	if err != nil {
		return n.invalid(err)
	}

	return n.store.update(n.plugin, func(values map[string]any) error {
		values[key] = v
		return nil
	})
}

// Remove deletes a stored value. It fails with SettingNotFound if the key
// has no stored value.
func (n *Namespace) Remove(key string) error {
	return n.store.update(n.plugin, func(values map[string]any) error {
		if _, ok := values[key]; !ok {
			return fault.New(fault.SettingNotFound, n.plugin, fmt.Sprintf("%q", key))
		}
		delete(values, key)
		return nil
	})
}

// Clear removes every stored value of the namespace.
func (n *Namespace) Clear() error {
	return n.store.Drop(n.plugin)
}

// Keys returns the keys with a stored or declared value, sorted.
func (n *Namespace) Keys() []string {
	seen := make(map[string]bool)
	for k := range n.store.read(n.plugin) {
		seen[k] = true
	}
	for k := range n.schema {
		seen[k] = true
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// All returns stored values merged over schema defaults.
func (n *Namespace) All() map[string]any {
	out := n.schema.Defaults()
	for k, v := range n.store.read(n.plugin) {
		out[k] = v
	}
	return out
}

// Stored returns only the values explicitly persisted.
func (n *Namespace) Stored() map[string]any {
	return n.store.read(n.plugin)
}

func (n *Namespace) invalid(err error) error {
	if fe, ok := err.(*fault.Error); ok && fe.Plugin == "" {
		cp := *fe
		cp.Plugin = n.plugin
		return &cp
	}
	return err
}
