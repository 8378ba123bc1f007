package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/dshills/brushwork/internal/atomicfile"
)

// Record is the persisted part of an installed plugin.
type Record struct {
	ID          string    `json:"id"`
	Version     string    `json:"version"`
	Source      string    `json:"source"`
	State       State     `json:"state"`
	LastError   string    `json:"lastError,omitempty"`
	InstalledAt time.Time `json:"installedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type recordsDocument struct {
	Version int      `json:"version"`
	Plugins []Record `json:"plugins"`
}

// recordFile persists registry records as one JSON document.
type recordFile struct {
	path string
}

// load returns the stored records; a missing file yields none.
func (f recordFile) load() ([]Record, error) {
	if f.path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read plugin state: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var doc recordsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse plugin state %s: %w", f.path, err)
	}
	return doc.Plugins, nil
}

// save writes the records atomically.
func (f recordFile) save(records []Record) error {
	if f.path == "" {
		return nil
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	data, err := json.MarshalIndent(recordsDocument{Version: 1, Plugins: records}, "", "  ")
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(f.path, data, 0o600)
}

// keyedMutex serializes operations per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// lock acquires the lock for key and returns its release function.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
