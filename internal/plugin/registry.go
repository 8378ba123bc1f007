package plugin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/brushwork/internal/plugin/api"
	"github.com/dshills/brushwork/internal/plugin/contrib"
	"github.com/dshills/brushwork/internal/plugin/fault"
	"github.com/dshills/brushwork/internal/plugin/security"
	"github.com/dshills/brushwork/internal/plugin/settings"
)

// RegistryConfig configures the plugin registry.
type RegistryConfig struct {
	// PluginsDir is the managed directory packages are installed into.
	PluginsDir string

	// StateFile persists plugin records. Empty keeps records in memory.
	StateFile string

	// StorageDir holds each plugin's private fs:read/fs:write area.
	StorageDir string

	// HostAPI is the API version manifests are checked against.
	HostAPI string

	// AutoEnable enables freshly installed plugins.
	AutoEnable bool

	// ClearSettingsOnUninstall drops a plugin's settings and storage when
	// it is uninstalled.
	ClearSettingsOnUninstall bool

	// StartupConcurrency bounds how many plugins are re-enabled at once.
	StartupConcurrency int

	// DocumentCacheSize is the number of readme/changelog texts kept.
	DocumentCacheSize int
}

// DefaultRegistryConfig returns the defaults rooted at dataDir.
func DefaultRegistryConfig(dataDir string) RegistryConfig {
	return RegistryConfig{
		PluginsDir:         filepath.Join(dataDir, "plugins"),
		StateFile:          filepath.Join(dataDir, "plugins.json"),
		StorageDir:         filepath.Join(dataDir, "storage"),
		HostAPI:            DefaultAPIVersion,
		StartupConcurrency: 4,
		DocumentCacheSize:  64,
	}
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithBuilder sets the API surface builder.
func WithBuilder(b *api.Builder) RegistryOption {
	return func(r *Registry) {
		r.builder = b
	}
}

// WithRuntimes sets the runtimes by entry extension.
func WithRuntimes(rt Runtimes) RegistryOption {
	return func(r *Registry) {
		r.runtimes = rt
	}
}

// WithSettingsStore sets the settings store.
func WithSettingsStore(s *settings.Store) RegistryOption {
	return func(r *Registry) {
		r.settings = s
	}
}

// WithAggregator sets the capability aggregator.
func WithAggregator(a *contrib.Aggregator) RegistryOption {
	return func(r *Registry) {
		r.agg = a
	}
}

// Registry owns the installed plugins and drives their lifecycle.
//
// Operations on one plugin id are serialized; different ids proceed
// independently. Readers see the records through an immutable snapshot
// replaced on every mutation.
type Registry struct {
	cfg    RegistryConfig
	logger *logrus.Logger
	log    *logrus.Entry

	installer *Installer
	validator *Validator
	builder   *api.Builder
	runtimes  Runtimes
	settings  *settings.Store
	agg       *contrib.Aggregator
	records   recordFile
	docs      *lru.Cache[string, string]

	locks   keyedMutex
	wmu     sync.Mutex
	state   atomic.Pointer[registryState]
	events  eventBus
	started atomic.Bool
}

// entry is one installed plugin. Entries are never mutated after they are
// published; changes replace them.
type entry struct {
	vm   *ValidatedManifest
	dir  string
	rec  Record
	host *Host
}

func (e *entry) with(state State, lastErr string, host *Host) *entry {
	cp := *e
	cp.rec.State = state
	cp.rec.LastError = lastErr
	cp.rec.UpdatedAt = time.Now()
	cp.host = host
	return &cp
}

type registryState struct {
	entries map[string]*entry
	ids     []string
}

// NewRegistry creates a registry. Call Start to load persisted records.
func NewRegistry(cfg RegistryConfig, opts ...RegistryOption) *Registry {
	r := &Registry{cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logrus.StandardLogger()
	}
	r.log = r.logger.WithField("component", "registry")
	r.events.log = r.log
	if r.builder == nil {
		r.builder = api.NewBuilder(api.WithLogger(r.logger))
	}
	if r.runtimes == nil {
		r.runtimes = DefaultRuntimes()
	}
	if r.settings == nil {
		r.settings = settings.NewMemoryStore()
	}
	if r.agg == nil {
		r.agg = contrib.New(contrib.WithLogger(r.logger))
	}
	if r.cfg.StartupConcurrency <= 0 {
		r.cfg.StartupConcurrency = 4
	}
	if r.cfg.DocumentCacheSize <= 0 {
		r.cfg.DocumentCacheSize = 64
	}

	r.installer = NewInstaller(cfg.PluginsDir, r.builder.Limits().MaxFileBytes, r.log)
	r.validator = NewValidator(cfg.HostAPI, r.runtimes.Extensions())
	r.records = recordFile{path: cfg.StateFile}
	r.docs, _ = lru.New[string, string](r.cfg.DocumentCacheSize)
	r.state.Store(&registryState{entries: map[string]*entry{}})
	return r
}

// Config returns the registry configuration.
func (r *Registry) Config() RegistryConfig {
	return r.cfg
}

// Aggregator returns the capability aggregator fed by this registry.
func (r *Registry) Aggregator() *contrib.Aggregator {
	return r.agg
}

// Validator returns the manifest validator.
func (r *Registry) Validator() *Validator {
	return r.validator
}

// Subscribe adds an event handler.
// Returns an unsubscribe function to remove the handler.
func (r *Registry) Subscribe(handler EventHandler) func() {
	return r.events.subscribe(handler)
}

// Start loads persisted records, adopts packages found in the plugins
// directory and re-enables the plugins that were enabled. Plugin failures
// are recorded on the plugin and do not fail Start.
func (r *Registry) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	r.installer.Sweep()

	records, err := r.records.load()
	if err != nil {
		r.started.Store(false)
		return err
	}

	var restore []string
	loaded := make(map[string]*entry, len(records))
	for _, rec := range records {
		dir := r.installer.PackageDir(rec.ID)
		vm, err := r.loadInstalled(dir, rec.ID)
		if err != nil {
			r.log.WithError(err).WithField("plugin", rec.ID).Warn("dropping plugin record")
			continue
		}
		rec.Version = vm.Version()
		if rec.State == StateEnabled {
			restore = append(restore, rec.ID)
		}
		loaded[rec.ID] = &entry{vm: vm, dir: dir, rec: rec}
	}
	if err := r.commit(func(m map[string]*entry) {
		for id, e := range loaded {
			m[id] = e
		}
	}); err != nil {
		r.log.WithError(err).Error("failed to persist plugin state")
	}

	if _, err := r.Rescan(ctx); err != nil {
		r.log.WithError(err).Warn("plugin folder scan failed")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.StartupConcurrency)
	for _, id := range restore {
		id := id
		g.Go(func() error {
			unlock := r.locks.lock(id)
			defer unlock()
			if err := r.enableLocked(gctx, id, true); err != nil {
				r.log.WithError(err).WithField("plugin", id).Warn("failed to re-enable plugin")
			}
			return nil
		})
	}
	_ = g.Wait()

	r.log.WithFields(logrus.Fields{
		"plugins":  len(r.snapshot().ids),
		"restored": len(restore),
	}).Info("plugin registry started")
	return nil
}

// Shutdown stops every running plugin. Records keep their state as the
// restore intent, so the next Start re-enables the same plugins; Info.Active
// reports false until then.
func (r *Registry) Shutdown(ctx context.Context) error {
	for _, id := range r.snapshot().ids {
		func() {
			unlock := r.locks.lock(id)
			defer unlock()

			e := r.entry(id)
			if e == nil || e.host == nil {
				return
			}
			r.agg.Retract(id)
			if err := e.host.Stop(ctx); err != nil {
				r.log.WithError(err).WithField("plugin", id).Warn("plugin cleanup failed")
			}
			next := *e
			next.host = nil
			r.commitLogged(func(m map[string]*entry) { m[id] = &next })
		}()
	}
	r.started.Store(false)
	r.log.Info("plugin registry stopped")
	return nil
}

// InstallOptions configures an install.
type InstallOptions struct {
	// Upgrade replaces an installed plugin with a higher version.
	Upgrade bool
}

// Install installs a plugin package from a directory or archive. The
// plugin starts in StateInstalled unless auto-enable is configured. Any
// failure leaves no record and no files behind.
func (r *Registry) Install(ctx context.Context, source string, opts InstallOptions) (Info, error) {
	staged, err := r.installer.Stage(ctx, source)
	if err != nil {
		return Info{}, err
	}
	defer staged.Discard()

	// Reject manifests without an id before taking a lock on it.
	if _, err := r.validateStaged(staged, opts); err != nil {
		return Info{}, err
	}

	id := staged.Manifest.ID
	unlock := r.locks.lock(id)
	defer unlock()

	vm, err := r.validateStaged(staged, opts)
	if err != nil {
		return Info{}, err
	}

	prev := r.entry(id)
	wasEnabled := prev != nil && prev.host != nil
	if wasEnabled {
		if err := r.disableLocked(ctx, id); err != nil {
			return Info{}, err
		}
		prev = r.entry(id)
	}

	dir, err := r.installer.Commit(staged, id, prev != nil)
	if err != nil {
		if wasEnabled {
			_ = r.enableLocked(ctx, id, false)
		}
		return Info{}, err
	}

	now := time.Now()
	abs, err := filepath.Abs(source)
	if err != nil {
		abs = source
	}
	rec := Record{
		ID:          id,
		Version:     vm.Version(),
		Source:      abs,
		State:       StateInstalled,
		InstalledAt: now,
		UpdatedAt:   now,
	}
	if prev != nil {
		rec.InstalledAt = prev.rec.InstalledAt
		if prev.rec.State != StateInstalled {
			rec.State = StateDisabled
		}
	}

	e := &entry{vm: vm, dir: dir, rec: rec}
	if err := r.commit(func(m map[string]*entry) { m[id] = e }); err != nil {
		if prev == nil {
			r.commitLogged(func(m map[string]*entry) { delete(m, id) })
			_ = r.installer.Remove(id)
			return Info{}, fault.Wrap(fault.IOFailure, id, err).WithOp("install")
		}
		r.log.WithError(err).WithField("plugin", id).Error("failed to persist plugin state")
	}

	log := r.log.WithFields(logrus.Fields{"plugin": id, "version": vm.Version()})
	if prev != nil {
		log.WithField("from", prev.rec.Version).Info("plugin upgraded")
		r.events.emit(Event{Type: EventUpgraded, Plugin: id, Version: vm.Version(), State: rec.State})
	} else {
		log.Info("plugin installed")
		r.events.emit(Event{Type: EventInstalled, Plugin: id, Version: vm.Version(), State: rec.State})
	}

	if wasEnabled || (prev == nil && r.cfg.AutoEnable) {
		if err := r.enableLocked(ctx, id, false); err != nil {
			log.WithError(err).Warn("plugin installed but failed to enable")
		}
	}
	return r.infoOf(r.entry(id)), nil
}

func (r *Registry) validateStaged(staged *Staged, opts InstallOptions) (*ValidatedManifest, error) {
	vm, err := r.validator.Validate(staged.Manifest, ValidateOptions{
		Installed:  r.installedVersions(),
		Upgrade:    opts.Upgrade,
		PackageDir: staged.Dir,
	})
	if err != nil {
		return nil, withOp(err, "install")
	}
	return vm, nil
}

// UninstallOptions configures an uninstall.
type UninstallOptions struct {
	// ClearSettings overrides the configured settings policy when set.
	ClearSettings *bool
}

// Uninstall disables a running plugin, then removes its files and record.
func (r *Registry) Uninstall(ctx context.Context, id string, opts UninstallOptions) error {
	unlock := r.locks.lock(id)
	defer unlock()

	e := r.entry(id)
	if e == nil {
		return notFound(id, "uninstall")
	}
	if e.rec.State == StateEnabled || e.host != nil {
		if err := r.disableLocked(ctx, id); err != nil {
			return withOp(err, "uninstall")
		}
	}

	if err := r.installer.Remove(id); err != nil {
		return err
	}
	r.commitLogged(func(m map[string]*entry) { delete(m, id) })

	drop := r.cfg.ClearSettingsOnUninstall
	if opts.ClearSettings != nil {
		drop = *opts.ClearSettings
	}
	if drop {
		r.clearData(id)
	}

	r.log.WithFields(logrus.Fields{"plugin": id, "clearSettings": drop}).Info("plugin uninstalled")
	r.events.emit(Event{Type: EventUninstalled, Plugin: id, Version: e.rec.Version})
	return nil
}

func (r *Registry) clearData(id string) {
	if err := r.settings.Drop(id); err != nil {
		r.log.WithError(err).WithField("plugin", id).Warn("failed to clear plugin settings")
	}
	if r.cfg.StorageDir != "" && id != "" {
		if err := os.RemoveAll(filepath.Join(r.cfg.StorageDir, id)); err != nil {
			r.log.WithError(err).WithField("plugin", id).Warn("failed to clear plugin storage")
		}
	}
}

// Enable initializes a plugin in StateInstalled or StateDisabled. When
// initialize throws or times out the plugin moves to StateError and the
// error is returned.
func (r *Registry) Enable(ctx context.Context, id string) error {
	unlock := r.locks.lock(id)
	defer unlock()
	return r.enableLocked(ctx, id, false)
}

// enableLocked must be called with the id lock held. restoring allows a
// record persisted as enabled to be started again.
func (r *Registry) enableLocked(ctx context.Context, id string, restoring bool) error {
	e := r.entry(id)
	if e == nil {
		return notFound(id, "enable")
	}
	allowed := e.rec.State.CanEnable() || (restoring && e.rec.State == StateEnabled && e.host == nil)
	if !allowed {
		return stateError(id, "enable", e.rec.State)
	}

	host := NewHost(e.vm, e.dir, r.hostConfig())
	start := time.Now()
	regs, err := host.Start(ctx)
	if err != nil {
		r.commitLogged(func(m map[string]*entry) { m[id] = e.with(StateError, err.Error(), nil) })
		r.log.WithError(err).WithField("plugin", id).Warn("plugin failed to initialize")
		r.events.emit(Event{Type: EventErrored, Plugin: id, Version: e.rec.Version, State: StateError, Error: err})
		return err
	}

	// The record turns Enabled before contributions appear, so a published
	// contribution always belongs to an enabled plugin.
	r.commitLogged(func(m map[string]*entry) { m[id] = e.with(StateEnabled, "", host) })
	published := r.agg.Publish(id, e.vm.manifest.Declarations(), regs, host)

	r.log.WithFields(logrus.Fields{
		"plugin":        id,
		"contributions": len(published),
		"elapsed":       time.Since(start),
	}).Info("plugin enabled")
	r.events.emit(Event{Type: EventEnabled, Plugin: id, Version: e.rec.Version, State: StateEnabled})
	return nil
}

// Disable stops a plugin in StateEnabled or StateError. cleanup() failures
// are logged; disable always completes.
func (r *Registry) Disable(ctx context.Context, id string) error {
	unlock := r.locks.lock(id)
	defer unlock()
	return r.disableLocked(ctx, id)
}

func (r *Registry) disableLocked(ctx context.Context, id string) error {
	e := r.entry(id)
	if e == nil {
		return notFound(id, "disable")
	}
	if !e.rec.State.CanDisable() {
		return stateError(id, "disable", e.rec.State)
	}

	r.agg.Retract(id)
	if e.host != nil {
		if err := e.host.Stop(ctx); err != nil {
			r.log.WithError(err).WithField("plugin", id).Warn("plugin cleanup failed")
		}
	}
	r.commitLogged(func(m map[string]*entry) { m[id] = e.with(StateDisabled, "", nil) })

	r.log.WithField("plugin", id).Info("plugin disabled")
	r.events.emit(Event{Type: EventDisabled, Plugin: id, Version: e.rec.Version, State: StateDisabled})
	return nil
}

// Rescan adopts valid package directories dropped into the plugins
// directory and forgets plugins whose directory disappeared. It returns
// the adopted ids.
func (r *Registry) Rescan(ctx context.Context) ([]string, error) {
	dirents, err := os.ReadDir(r.cfg.PluginsDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fault.Wrap(fault.IOFailure, "", err).WithOp("scan")
	}

	present := make(map[string]bool, len(dirents))
	var adopted []string
	for _, d := range dirents {
		name := d.Name()
		if !d.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		present[name] = true
		if r.entry(name) != nil {
			continue
		}
		if r.adopt(name) {
			adopted = append(adopted, name)
		}
	}

	for _, id := range r.snapshot().ids {
		if present[id] {
			continue
		}
		r.forget(ctx, id)
	}
	return adopted, nil
}

func (r *Registry) adopt(id string) bool {
	unlock := r.locks.lock(id)
	defer unlock()

	if r.entry(id) != nil {
		return false
	}
	dir := r.installer.PackageDir(id)
	vm, err := r.loadInstalled(dir, id)
	if err != nil {
		r.log.WithError(err).WithField("dir", dir).Debug("skipping plugin directory")
		return false
	}

	now := time.Now()
	e := &entry{vm: vm, dir: dir, rec: Record{
		ID:          id,
		Version:     vm.Version(),
		Source:      dir,
		State:       StateInstalled,
		InstalledAt: now,
		UpdatedAt:   now,
	}}
	r.commitLogged(func(m map[string]*entry) { m[id] = e })
	r.log.WithFields(logrus.Fields{"plugin": id, "version": vm.Version()}).Info("plugin adopted from folder")
	r.events.emit(Event{Type: EventInstalled, Plugin: id, Version: vm.Version(), State: StateInstalled})

	if r.cfg.AutoEnable {
		if err := r.enableLocked(context.Background(), id, false); err != nil {
			r.log.WithError(err).WithField("plugin", id).Warn("adopted plugin failed to enable")
		}
	}
	return true
}

func (r *Registry) forget(ctx context.Context, id string) {
	unlock := r.locks.lock(id)
	defer unlock()

	e := r.entry(id)
	if e == nil {
		return
	}
	if _, err := os.Stat(e.dir); err == nil {
		return
	}
	if e.host != nil {
		_ = r.disableLocked(ctx, id)
	}
	r.commitLogged(func(m map[string]*entry) { delete(m, id) })
	r.log.WithField("plugin", id).Info("plugin directory removed; record dropped")
	r.events.emit(Event{Type: EventUninstalled, Plugin: id, Version: e.rec.Version})
}

// loadInstalled reads and validates the manifest of an installed package.
func (r *Registry) loadInstalled(dir, id string) (*ValidatedManifest, error) {
	path, ok := FindManifest(dir)
	if !ok {
		return nil, fault.New(fault.ArchiveNoManifest, id, dir).WithOp("load")
	}
	m, err := ReadManifest(path)
	if err != nil {
		return nil, withOp(err, "load")
	}
	if m.ID != id {
		return nil, fault.New(fault.InvalidManifest, id, fmt.Sprintf("manifest id %q does not match directory", m.ID)).WithOp("load")
	}
	vm, err := r.validator.Validate(m, ValidateOptions{PackageDir: dir})
	if err != nil {
		return nil, withOp(err, "load")
	}
	return vm, nil
}

// List returns all installed plugins sorted by id.
func (r *Registry) List() []Info {
	s := r.snapshot()
	out := make([]Info, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, r.infoOf(s.entries[id]))
	}
	return out
}

// Get returns one installed plugin.
func (r *Registry) Get(id string) (Info, error) {
	e := r.entry(id)
	if e == nil {
		return Info{}, notFound(id, "get")
	}
	return r.infoOf(e), nil
}

// Detail returns a plugin with its settings, documents and contributions.
func (r *Registry) Detail(id string) (Detail, error) {
	e := r.entry(id)
	if e == nil {
		return Detail{}, notFound(id, "detail")
	}
	m := e.vm.Manifest()
	ns := r.settings.Namespace(id, m.SettingsSchema)
	return Detail{
		Info:          r.infoOf(e),
		Manifest:      m,
		Settings:      ns.All(),
		Schema:        m.SettingsSchema,
		Readme:        r.document(e, m.Readme, "README.md", "readme.md", "README.txt", "README"),
		Changelog:     r.document(e, m.Changelog, "CHANGELOG.md", "changelog.md", "CHANGELOG.txt", "CHANGELOG"),
		Contributions: r.agg.Snapshot().Owned(id),
	}, nil
}

// Settings returns the settings namespace of an installed plugin.
func (r *Registry) Settings(id string) (*settings.Namespace, error) {
	e := r.entry(id)
	if e == nil {
		return nil, notFound(id, "settings")
	}
	return r.settings.Namespace(id, e.vm.manifest.SettingsSchema), nil
}

// Contributions returns the current contribution snapshot.
func (r *Registry) Contributions() *contrib.Snapshot {
	return r.agg.Snapshot()
}

// Counts returns the number of plugins per state.
func (r *Registry) Counts() map[State]int {
	counts := map[State]int{StateInstalled: 0, StateEnabled: 0, StateDisabled: 0, StateError: 0}
	s := r.snapshot()
	for _, id := range s.ids {
		counts[s.entries[id].rec.State]++
	}
	return counts
}

// document returns a package text file, preferring the manifest's path.
func (r *Registry) document(e *entry, declared string, defaults ...string) string {
	candidates := defaults
	if declared != "" {
		candidates = []string{declared}
	}
	limit := r.builder.Limits().MaxFileBytes
	for _, name := range candidates {
		p, err := safeJoin(e.dir, name)
		if err != nil {
			continue
		}
		st, err := os.Stat(p)
		if err != nil || !st.Mode().IsRegular() || (limit > 0 && st.Size() > limit) {
			continue
		}
		key := fmt.Sprintf("%s|%d|%d", p, st.ModTime().UnixNano(), st.Size())
		if text, ok := r.docs.Get(key); ok {
			return text
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		r.docs.Add(key, string(data))
		return string(data)
	}
	return ""
}

func (r *Registry) hostConfig() HostConfig {
	return HostConfig{
		Builder:     r.builder,
		Runtimes:    r.runtimes,
		Settings:    r.settings,
		StorageRoot: r.cfg.StorageDir,
		Logger:      r.logger,
	}
}

func (r *Registry) snapshot() *registryState {
	return r.state.Load()
}

func (r *Registry) entry(id string) *entry {
	return r.snapshot().entries[id]
}

func (r *Registry) installedVersions() map[string]string {
	s := r.snapshot()
	out := make(map[string]string, len(s.entries))
	for id, e := range s.entries {
		out[id] = e.rec.Version
	}
	return out
}

// commit applies fn to a copy of the entries, publishes the copy and
// persists the records. The new state is published even when persisting
// fails.
func (r *Registry) commit(fn func(m map[string]*entry)) error {
	r.wmu.Lock()
	defer r.wmu.Unlock()

	cur := r.state.Load()
	next := make(map[string]*entry, len(cur.entries)+1)
	for id, e := range cur.entries {
		next[id] = e
	}
	fn(next)

	ids := make([]string, 0, len(next))
	records := make([]Record, 0, len(next))
	for id, e := range next {
		ids = append(ids, id)
		records = append(records, e.rec)
	}
	sort.Strings(ids)
	r.state.Store(&registryState{entries: next, ids: ids})

	return r.records.save(records)
}

func (r *Registry) commitLogged(fn func(m map[string]*entry)) {
	if err := r.commit(fn); err != nil {
		r.log.WithError(err).Error("failed to persist plugin state")
	}
}

// Info is a read-only view of an installed plugin. State is the persisted
// lifecycle state; Active reports whether an instance is running now. An
// enabled plugin is inactive between Shutdown and the next Start.
type Info struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Version     string                `json:"version"`
	APIVersion  string                `json:"apiVersion"`
	Description string                `json:"description,omitempty"`
	Author      Author                `json:"author"`
	License     string                `json:"license,omitempty"`
	Type        Type                  `json:"type"`
	Runtime     string                `json:"runtime"`
	State       State                 `json:"state"`
	Active      bool                  `json:"active"`
	LastError   string                `json:"lastError,omitempty"`
	Source      string                `json:"source"`
	Dir         string                `json:"dir"`
	Icon        string                `json:"icon,omitempty"`
	Category    string                `json:"category,omitempty"`
	Keywords    []string              `json:"keywords,omitempty"`
	Homepage    string                `json:"homepage,omitempty"`
	Permissions []security.Permission `json:"permissions"`
	InstalledAt time.Time             `json:"installedAt"`
	UpdatedAt   time.Time             `json:"updatedAt"`
}

// Detail is Info plus the plugin's current settings, documents and
// published contributions.
type Detail struct {
	Info
	Manifest      *Manifest              `json:"manifest"`
	Settings      map[string]any         `json:"settings"`
	Schema        settings.Schema        `json:"settingsSchema,omitempty"`
	Readme        string                 `json:"readme,omitempty"`
	Changelog     string                 `json:"changelog,omitempty"`
	Contributions []contrib.Contribution `json:"contributions"`
}

func (r *Registry) infoOf(e *entry) Info {
	m := e.vm.manifest
	icon := ""
	if m.Icon != "" {
		if p, err := safeJoin(e.dir, m.Icon); err == nil {
			icon = p
		}
	}
	return Info{
		ID:          m.ID,
		Name:        m.Name,
		Version:     m.Version,
		APIVersion:  m.APIVersion,
		Description: m.Description,
		Author:      m.Author,
		License:     m.License,
		Type:        m.Type,
		Runtime:     strings.TrimPrefix(strings.ToLower(filepath.Ext(m.Main)), "."),
		State:       e.rec.State,
		Active:      e.host != nil,
		LastError:   e.rec.LastError,
		Source:      e.rec.Source,
		Dir:         e.dir,
		Icon:        icon,
		Category:    m.Category,
		Keywords:    append([]string(nil), m.Keywords...),
		Homepage:    m.Homepage,
		Permissions: e.vm.Grant().Permissions(),
		InstalledAt: e.rec.InstalledAt,
		UpdatedAt:   e.rec.UpdatedAt,
	}
}
