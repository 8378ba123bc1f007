// Package settings provides per-plugin namespaced setting persistence.
//
// All namespaces live in a single JSON document:
//
//	{"version": 1, "plugins": {"com.example.blur": {"radius": 4}}}
//
// A Namespace is bound to one plugin id and can never reach another
// plugin's values. Writes are validated against the plugin's declared
// schema and flushed atomically.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"github.com/dshills/brushwork/internal/atomicfile"
	"github.com/dshills/brushwork/internal/plugin/fault"
)

const emptyDocument = `{"version":1,"plugins":{}}`

// Store persists every plugin's settings namespace.
type Store struct {
	mu   sync.Mutex
	path string // empty for memory-only stores
	doc  []byte
}

// Open loads the store at path, creating an empty document if the file
// does not exist.
func Open(path string) (*Store, error) {
	s := &Store{path: path, doc: []byte(emptyDocument)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading settings %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return s, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("settings %s: invalid JSON document", path)
	}
	if !gjson.GetBytes(data, "plugins").IsObject() {
		data, err = sjson.SetRawBytes(data, "plugins", []byte("{}"))
		if err != nil {
			return nil, fmt.Errorf("settings %s: %w", path, err)
		}
	}
	s.doc = data
	return s, nil
}

// NewMemoryStore creates a store that is never written to disk.
func NewMemoryStore() *Store {
	return &Store{doc: []byte(emptyDocument)}
}

// Path returns the backing file, or "" for memory stores.
func (s *Store) Path() string {
	return s.path
}

// Namespace returns the settings view for one plugin.
func (s *Store) Namespace(pluginID string, schema Schema) *Namespace {
	return &Namespace{store: s, plugin: pluginID, schema: schema}
}

// Plugins returns the ids that have persisted settings, sorted.
func (s *Store) Plugins() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	gjson.GetBytes(s.doc, "plugins").ForEach(func(k, _ gjson.Result) bool {
		ids = append(ids, k.String())
		return true
	})
	sort.Strings(ids)
	return ids
}

// Drop deletes a plugin's entire namespace.
func (s *Store) Drop(pluginID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := namespacePath(pluginID)
	if !gjson.GetBytes(s.doc, path).Exists() {
		return nil
	}
	doc, err := sjson.DeleteBytes(s.doc, path)
	if err != nil {
		return fault.Wrap(fault.IOFailure, pluginID, err)
	}
	return s.commit(pluginID, doc)
}

func (s *Store) read(pluginID string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(pluginID)
}

func (s *Store) readLocked(pluginID string) map[string]any {
	out := make(map[string]any)
	res := gjson.GetBytes(s.doc, namespacePath(pluginID))
	if !res.IsObject() {
		return out
	}
	res.ForEach(func(k, v gjson.Result) bool {
		out[k.String()] = v.Value()
		return true
	})
	return out
}

func (s *Store) lookup(pluginID, key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := gjson.GetBytes(s.doc, namespacePath(pluginID)+"."+escapeComponent(key))
	if !res.Exists() {
		return nil, false
	}
	return res.Value(), true
}

// update applies fn to a copy of the namespace and persists the result.
func (s *Store) update(pluginID string, fn func(values map[string]any) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := s.readLocked(pluginID)
	if err := fn(values); err != nil {
		return err
	}

	var (
		doc []byte
		err error
	)
	if len(values) == 0 {
		doc, err = sjson.DeleteBytes(s.doc, namespacePath(pluginID))
	} else {
		doc, err = sjson.SetBytes(s.doc, namespacePath(pluginID), values)
	}
	if err != nil {
		return fault.Wrap(fault.IOFailure, pluginID, err)
	}
	return s.commit(pluginID, doc)
}

// commit flushes doc and makes it current. Caller holds s.mu.
func (s *Store) commit(pluginID string, doc []byte) error {
	if s.path != "" {
		if err := atomicfile.WriteFile(s.path, pretty.Pretty(doc), 0o600); err != nil {
			return fault.Wrap(fault.IOFailure, pluginID, err)
		}
	}
	s.doc = doc
	return nil
}

func namespacePath(pluginID string) string {
	return "plugins." + escapeComponent(pluginID)
}

// escapeComponent escapes every character gjson or sjson could interpret
// as path syntax.
func escapeComponent(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			sb.WriteRune(r)
			continue
		}
		sb.WriteByte('\\')
		sb.WriteRune(r)
	}
	return sb.String()
}

// jsonValue checks that v can be persisted and returns its JSON form.
func jsonValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return gjson.ParseBytes(data).Value(), nil
}
