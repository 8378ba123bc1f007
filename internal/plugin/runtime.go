package plugin

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dshills/brushwork/internal/plugin/api"
	"github.com/dshills/brushwork/internal/plugin/contrib"
	"github.com/dshills/brushwork/internal/plugin/js"
	"github.com/dshills/brushwork/internal/plugin/lua"
	"github.com/dshills/brushwork/internal/plugin/security"
)

// Runtime executes one plugin instance's code.
//
// Load and Initialize report failures as fault InitializeThrew or
// InitializeTimeout; Cleanup reports CleanupFailed. Invoke runs a callback
// the plugin handed to the API during initialize.
type Runtime interface {
	contrib.Handler

	// Name identifies the runtime ("lua", "js").
	Name() string

	// Load runs the entry file.
	Load(ctx context.Context, entry string) error

	// Initialize calls the plugin's initialize(api).
	Initialize(ctx context.Context, s *api.Surface) error

	// HasCleanup reports whether the plugin defines cleanup().
	HasCleanup() bool

	// Cleanup calls cleanup() if defined.
	Cleanup(ctx context.Context) error

	// Close releases the runtime.
	Close() error
}

// RuntimeFactory creates a runtime for a plugin.
type RuntimeFactory func(plugin string, limits security.Limits, log *logrus.Entry) Runtime

// Runtimes maps entry file extensions to runtime factories.
type Runtimes map[string]RuntimeFactory

// DefaultRuntimes returns the Lua and JavaScript runtimes.
func DefaultRuntimes() Runtimes {
	return Runtimes{
		".lua": func(plugin string, limits security.Limits, log *logrus.Entry) Runtime {
			return lua.New(plugin, limits, log)
		},
		".js": func(plugin string, limits security.Limits, log *logrus.Entry) Runtime {
			return js.New(plugin, limits, log)
		},
	}
}

// For returns the factory for an entry file.
func (r Runtimes) For(entry string) (RuntimeFactory, bool) {
	f, ok := r[strings.ToLower(filepath.Ext(entry))]
	return f, ok
}

// Extensions returns the supported entry extensions, sorted.
func (r Runtimes) Extensions() []string {
	exts := make([]string, 0, len(r))
	for ext := range r {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
