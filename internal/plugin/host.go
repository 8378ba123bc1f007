package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dshills/brushwork/internal/plugin/api"
	"github.com/dshills/brushwork/internal/plugin/fault"
	"github.com/dshills/brushwork/internal/plugin/security"
	"github.com/dshills/brushwork/internal/plugin/settings"
)

// HostConfig holds what a Host needs from the registry.
type HostConfig struct {
	Builder     *api.Builder
	Runtimes    Runtimes
	Settings    *settings.Store
	StorageRoot string
	Logger      *logrus.Logger
}

// Host manages a single plugin instance: its runtime and its API surface.
type Host struct {
	mu sync.Mutex

	// Identity
	vm  *ValidatedManifest
	dir string

	cfg HostConfig
	log *logrus.Entry

	runtime Runtime
	surface *api.Surface
	started bool
}

// NewHost creates a host for a validated plugin installed in dir.
func NewHost(vm *ValidatedManifest, dir string, cfg HostConfig) *Host {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Builder == nil {
		cfg.Builder = api.NewBuilder(api.WithLogger(cfg.Logger))
	}
	if cfg.Runtimes == nil {
		cfg.Runtimes = DefaultRuntimes()
	}
	if cfg.Settings == nil {
		cfg.Settings = settings.NewMemoryStore()
	}
	return &Host{
		vm:  vm,
		dir: dir,
		cfg: cfg,
		log: cfg.Logger.WithFields(logrus.Fields{"component": "host", "plugin": vm.ID()}),
	}
}

// ID returns the plugin id.
func (h *Host) ID() string {
	return h.vm.ID()
}

// Runtime returns the runtime name, or "" before Start.
func (h *Host) Runtime() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.runtime == nil {
		return ""
	}
	return h.runtime.Name()
}

// Start builds the plugin's surface, runs its entry file and calls
// initialize(api). It returns what the plugin registered.
func (h *Host) Start(ctx context.Context) ([]api.Registration, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return nil, fault.New(fault.InvalidState, h.ID(), "already started").WithOp("enable")
	}

	m := h.vm.manifest
	factory, ok := h.cfg.Runtimes.For(m.Main)
	if !ok {
		return nil, fault.Wrap(fault.InitializeThrew, h.ID(), fmt.Errorf("%w: %s", ErrNoRuntime, m.Main)).WithOp("enable")
	}

	storage, err := h.storageDir()
	if err != nil {
		return nil, fault.Wrap(fault.InitializeThrew, h.ID(), err).WithOp("enable")
	}

	surface, err := h.cfg.Builder.Build(api.BuildInput{
		PluginID:   h.ID(),
		Version:    m.Version,
		Grant:      h.vm.Grant(),
		Settings:   h.cfg.Settings.Namespace(h.ID(), m.SettingsSchema),
		StorageDir: storage,
	})
	if err != nil {
		return nil, fault.Wrap(fault.InitializeThrew, h.ID(), err).WithOp("enable")
	}

	rt := factory(h.ID(), h.cfg.Builder.Limits(), h.log)
	entry := filepath.Join(h.dir, filepath.FromSlash(m.Main))

	if err := rt.Load(ctx, entry); err != nil {
		h.abort(rt, surface)
		return nil, withOp(err, "enable")
	}
	if err := rt.Initialize(ctx, surface); err != nil {
		h.abort(rt, surface)
		return nil, withOp(err, "enable")
	}

	regs := surface.Seal()
	h.runtime = rt
	h.surface = surface
	h.started = true

	h.log.WithFields(logrus.Fields{
		"runtime":       rt.Name(),
		"registrations": len(regs),
	}).Info("plugin initialized")
	return regs, nil
}

// Stop calls cleanup() and releases the runtime. A cleanup failure is
// returned as CleanupFailed after the runtime has been released.
func (h *Host) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return nil
	}
	h.started = false

	var cleanupErr error
	if h.runtime.HasCleanup() {
		cleanupErr = h.runtime.Cleanup(ctx)
	}
	h.abort(h.runtime, h.surface)
	h.runtime = nil
	h.surface = nil

	if cleanupErr != nil {
		return withOp(cleanupErr, "disable")
	}
	return nil
}

// Invoke forwards a contribution call to the plugin's runtime.
func (h *Host) Invoke(ctx context.Context, fn api.Callable, args ...any) (any, error) {
	h.mu.Lock()
	rt := h.runtime
	h.mu.Unlock()

	if rt == nil {
		return nil, fault.New(fault.InvalidState, h.ID(), "plugin is not running")
	}
	return rt.Invoke(ctx, fn, args...)
}

func (h *Host) abort(rt Runtime, s *api.Surface) {
	if s != nil {
		s.Close()
	}
	if rt != nil {
		if err := rt.Close(); err != nil {
			h.log.WithError(err).Warn("failed to close runtime")
		}
	}
}

// storageDir returns the plugin's private storage directory, created when
// the plugin holds a file permission.
func (h *Host) storageDir() (string, error) {
	if h.cfg.StorageRoot == "" {
		return "", nil
	}
	dir := filepath.Join(h.cfg.StorageRoot, h.ID())
	grant := h.vm.Grant()
	if grant.Has(security.FSRead) || grant.Has(security.FSWrite) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	return dir, nil
}

func withOp(err error, op string) error {
	var fe *fault.Error
	if errors.As(err, &fe) {
		return fe.WithOp(op)
	}
	return err
}
