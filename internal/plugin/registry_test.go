package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/brushwork/internal/plugin/api"
	"github.com/dshills/brushwork/internal/plugin/contrib"
	"github.com/dshills/brushwork/internal/plugin/fault"
	"github.com/dshills/brushwork/internal/plugin/security"
	"github.com/dshills/brushwork/internal/plugin/settings"
)

func shortLimits() security.Limits {
	l := security.DefaultLimits()
	l.InitializeTimeout = 300 * time.Millisecond
	l.InvokeTimeout = 300 * time.Millisecond
	l.CleanupTimeout = 300 * time.Millisecond
	return l
}

type registryFixture struct {
	reg      *Registry
	cfg      RegistryConfig
	settings *settings.Store
	events   *eventRecorder
}

func newFixture(t *testing.T, mutate ...func(*RegistryConfig)) *registryFixture {
	t.Helper()
	cfg := DefaultRegistryConfig(t.TempDir())
	for _, m := range mutate {
		m(&cfg)
	}
	return openFixture(t, cfg, settings.NewMemoryStore())
}

func openFixture(t *testing.T, cfg RegistryConfig, store *settings.Store) *registryFixture {
	t.Helper()
	logger := nullLogger()
	reg := NewRegistry(cfg,
		WithLogger(logger),
		WithBuilder(api.NewBuilder(api.WithLogger(logger), api.WithLimits(shortLimits()))),
		WithSettingsStore(store),
	)
	events := &eventRecorder{}
	reg.Subscribe(events.handle)
	require.NoError(t, reg.Start(context.Background()))
	t.Cleanup(func() { _ = reg.Shutdown(context.Background()) })
	return &registryFixture{reg: reg, cfg: cfg, settings: store, events: events}
}

func (f *registryFixture) install(t *testing.T, manifest map[string]any, entry string) Info {
	t.Helper()
	info, err := f.reg.Install(context.Background(), writePackage(t, manifest, entry), InstallOptions{})
	require.NoError(t, err)
	return info
}

func TestInstallMissingIDFailsWithEmptyID(t *testing.T) {
	f := newFixture(t)
	m := testManifest("")
	delete(m, "id")

	_, err := f.reg.Install(context.Background(), writePackage(t, m, grayscaleLua), InstallOptions{})
	require.Error(t, err)
	assert.Equal(t, fault.EmptyID, fault.KindOf(err))
	assert.Equal(t, fault.CategoryManifest, fault.CategoryOf(err))

	assert.Empty(t, f.reg.List())
	assertOnlyPackages(t, f.cfg.PluginsDir)
}

func TestInstallMissingAPIVersionLeavesListUnchanged(t *testing.T) {
	f := newFixture(t)
	f.install(t, testManifest("com.x.first"), grayscaleLua)
	before := f.reg.List()

	m := testManifest("com.x.second")
	delete(m, "apiVersion")
	_, err := f.reg.Install(context.Background(), writePackage(t, m, grayscaleLua), InstallOptions{})
	assert.Equal(t, fault.IncompatibleAPIVersion, fault.KindOf(err))
	assert.Equal(t, fault.CategoryManifest, fault.CategoryOf(err))

	assert.Equal(t, before, f.reg.List())
	assertOnlyPackages(t, f.cfg.PluginsDir, "com.x.first")
}

func TestGrayscaleScenario(t *testing.T) {
	f := newFixture(t)

	info := f.install(t, testManifest("com.x.grayscale"), grayscaleLua)
	assert.Equal(t, StateInstalled, info.State)
	assert.Equal(t, "lua", info.Runtime)
	assert.Equal(t, 0, f.reg.Contributions().Len(), "installed plugins contribute nothing")

	require.NoError(t, f.reg.Enable(context.Background(), "com.x.grayscale"))

	filters := f.reg.Contributions().Grouped()["filters"]
	require.Len(t, filters, 1)
	assert.Equal(t, "gs", filters[0].ID)
	assert.Equal(t, "com.x.grayscale", filters[0].Owner)
	assert.True(t, filters[0].Declared)
	assert.True(t, filters[0].Registered)

	px := api.PixelBuffer{Width: 1, Height: 1, Data: []uint8{10, 20, 30, 255}}
	out, err := f.reg.Aggregator().ApplyFilter(context.Background(), contrib.Ref{ID: "gs"}, px, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint8{18, 18, 18, 255}, out.Data)

	got, err := f.reg.Get("com.x.grayscale")
	require.NoError(t, err)
	assert.Equal(t, StateEnabled, got.State)
	assert.Equal(t, []EventType{EventInstalled, EventEnabled}, f.events.types("com.x.grayscale"))
}

func TestEnableInitializeThrows(t *testing.T) {
	f := newFixture(t)
	f.install(t, testManifest("com.x.broken"), throwingLua)

	err := f.reg.Enable(context.Background(), "com.x.broken")
	require.Error(t, err)
	assert.Equal(t, fault.InitializeThrew, fault.KindOf(err))

	info, err := f.reg.Get("com.x.broken")
	require.NoError(t, err)
	assert.Equal(t, StateError, info.State)
	assert.Contains(t, info.LastError, "initialize exploded")
	assert.Empty(t, f.reg.Contributions().Owned("com.x.broken"))
	assert.Len(t, f.reg.List(), 1, "a plugin in Error stays listed")

	require.NoError(t, f.reg.Disable(context.Background(), "com.x.broken"))
	info, _ = f.reg.Get("com.x.broken")
	assert.Equal(t, StateDisabled, info.State)
	assert.Empty(t, info.LastError)

	require.NoError(t, f.reg.Uninstall(context.Background(), "com.x.broken", UninstallOptions{}))
	assert.Empty(t, f.reg.List())
}

func TestEnableInitializeTimeout(t *testing.T) {
	f := newFixture(t)
	f.install(t, testManifest("com.x.slow"), `function initialize(api) while true do end end`)

	err := f.reg.Enable(context.Background(), "com.x.slow")
	assert.Equal(t, fault.InitializeTimeout, fault.KindOf(err))

	info, _ := f.reg.Get("com.x.slow")
	assert.Equal(t, StateError, info.State)
	assert.Equal(t, []EventType{EventInstalled, EventErrored}, f.events.types("com.x.slow"))
}

func TestEnableDeniedPermissionFails(t *testing.T) {
	f := newFixture(t)
	m := testManifest("com.x.sneaky")
	m["permissions"] = []any{}
	f.install(t, m, grayscaleLua)

	err := f.reg.Enable(context.Background(), "com.x.sneaky")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "filter:register")

	info, _ := f.reg.Get("com.x.sneaky")
	assert.Equal(t, StateError, info.State)
	assert.Empty(t, f.reg.Contributions().Owned("com.x.sneaky"))
}

func TestDisableRetractsOnlyOwnContributions(t *testing.T) {
	f := newFixture(t)
	f.install(t, sharpenManifest("com.a.sharpen"), sharpenJS)
	f.install(t, sharpenManifest("com.b.sharpen"), sharpenJS)
	f.install(t, testManifest("com.x.grayscale"), grayscaleLua)
	for _, id := range []string{"com.a.sharpen", "com.b.sharpen", "com.x.grayscale"} {
		require.NoError(t, f.reg.Enable(context.Background(), id))
	}

	snap := f.reg.Contributions()
	assert.ElementsMatch(t, []string{"com.a.sharpen", "com.b.sharpen"}, snap.OwnersOf(contrib.Filter, "sharpen"))

	_, err := snap.Resolve(contrib.Ref{Kind: contrib.Filter, ID: "sharpen"})
	assert.Equal(t, fault.AmbiguousContribution, fault.KindOf(err))
	c, err := snap.Resolve(contrib.Ref{Owner: "com.b.sharpen", Kind: contrib.Filter, ID: "sharpen"})
	require.NoError(t, err)
	assert.Equal(t, "com.b.sharpen", c.Owner)

	px := api.NewPixelBuffer(2, 2)
	_, err = f.reg.Aggregator().ApplyFilter(context.Background(), contrib.Ref{Owner: "com.a.sharpen", ID: "sharpen"}, px, nil)
	require.NoError(t, err)

	otherB := snap.Owned("com.b.sharpen")
	otherGS := snap.Owned("com.x.grayscale")

	require.NoError(t, f.reg.Disable(context.Background(), "com.a.sharpen"))

	after := f.reg.Contributions()
	assert.Empty(t, after.Owned("com.a.sharpen"))
	assert.Equal(t, otherB, after.Owned("com.b.sharpen"))
	assert.Equal(t, otherGS, after.Owned("com.x.grayscale"))
	assert.Equal(t, snap.Len()-1, after.Len())

	c, err = after.Resolve(contrib.Ref{Kind: contrib.Filter, ID: "sharpen"})
	require.NoError(t, err, "one owner left, so the id is unambiguous")
	assert.Equal(t, "com.b.sharpen", c.Owner)
}

func TestUninstallEnabledRunsCleanupFirst(t *testing.T) {
	f := newFixture(t)
	info := f.install(t, testManifest("com.x.grayscale"), grayscaleLua)
	require.NoError(t, f.reg.Enable(context.Background(), "com.x.grayscale"))

	require.NoError(t, f.reg.Uninstall(context.Background(), "com.x.grayscale", UninstallOptions{}))

	assert.Equal(t,
		[]EventType{EventInstalled, EventEnabled, EventDisabled, EventUninstalled},
		f.events.types("com.x.grayscale"))
	assert.NoDirExists(t, info.Dir)
	assert.Empty(t, f.reg.List())
	assert.Equal(t, 0, f.reg.Contributions().Len())

	_, err := f.reg.Get("com.x.grayscale")
	assert.Equal(t, fault.PluginNotFound, fault.KindOf(err))

	// cleanup ran and settings are kept by default.
	ns := f.settings.Namespace("com.x.grayscale", nil)
	assert.Equal(t, true, ns.Get("cleaned", nil))
}

func TestUninstallClearSettings(t *testing.T) {
	f := newFixture(t)
	f.install(t, testManifest("com.x.grayscale"), grayscaleLua)
	ns, err := f.reg.Settings("com.x.grayscale")
	require.NoError(t, err)
	require.NoError(t, ns.Set("k", "v"))

	drop := true
	require.NoError(t, f.reg.Uninstall(context.Background(), "com.x.grayscale", UninstallOptions{ClearSettings: &drop}))
	assert.Empty(t, f.settings.Namespace("com.x.grayscale", nil).Stored())
}

func TestUninstallClearSettingsPolicy(t *testing.T) {
	f := newFixture(t, func(c *RegistryConfig) { c.ClearSettingsOnUninstall = true })
	f.install(t, testManifest("com.x.grayscale"), grayscaleLua)
	ns, _ := f.reg.Settings("com.x.grayscale")
	require.NoError(t, ns.Set("k", "v"))

	keep := false
	require.NoError(t, f.reg.Uninstall(context.Background(), "com.x.grayscale", UninstallOptions{ClearSettings: &keep}))
	assert.Equal(t, "v", f.settings.Namespace("com.x.grayscale", nil).Get("k", nil))

	f.install(t, testManifest("com.x.grayscale"), grayscaleLua)
	require.NoError(t, f.reg.Uninstall(context.Background(), "com.x.grayscale", UninstallOptions{}))
	assert.Empty(t, f.settings.Namespace("com.x.grayscale", nil).Stored())
}

func TestInvalidTransitions(t *testing.T) {
	f := newFixture(t)
	f.install(t, testManifest("com.x.grayscale"), grayscaleLua)
	ctx := context.Background()

	err := f.reg.Disable(ctx, "com.x.grayscale")
	assert.Equal(t, fault.InvalidState, fault.KindOf(err), "disable an installed plugin")

	require.NoError(t, f.reg.Enable(ctx, "com.x.grayscale"))
	before := f.reg.Contributions().Version()
	err = f.reg.Enable(ctx, "com.x.grayscale")
	assert.Equal(t, fault.InvalidState, fault.KindOf(err), "enable an enabled plugin")
	assert.Equal(t, before, f.reg.Contributions().Version(), "a rejected transition changes nothing")

	require.NoError(t, f.reg.Disable(ctx, "com.x.grayscale"))
	err = f.reg.Disable(ctx, "com.x.grayscale")
	assert.Equal(t, fault.InvalidState, fault.KindOf(err), "disable a disabled plugin")
	require.NoError(t, f.reg.Enable(ctx, "com.x.grayscale"), "re-enable a disabled plugin")

	for _, op := range []func() error{
		func() error { return f.reg.Enable(ctx, "missing") },
		func() error { return f.reg.Disable(ctx, "missing") },
		func() error { return f.reg.Uninstall(ctx, "missing", UninstallOptions{}) },
		func() error { _, err := f.reg.Detail("missing"); return err },
		func() error { _, err := f.reg.Settings("missing"); return err },
	} {
		assert.Equal(t, fault.PluginNotFound, fault.KindOf(op()))
	}
}

func TestInstallDuplicateAndUpgrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.install(t, testManifest("com.x.grayscale"), grayscaleLua)
	require.NoError(t, f.reg.Enable(ctx, "com.x.grayscale"))

	_, err := f.reg.Install(ctx, writePackage(t, testManifest("com.x.grayscale"), grayscaleLua), InstallOptions{})
	assert.Equal(t, fault.DuplicateID, fault.KindOf(err))

	v2 := testManifest("com.x.grayscale")
	v2["version"] = "1.1.0"
	v2["permissions"] = []any{"filter:register", "canvas:read"}

	_, err = f.reg.Install(ctx, writePackage(t, v2, grayscaleLua), InstallOptions{})
	assert.Equal(t, fault.DuplicateID, fault.KindOf(err), "upgrade must be requested")

	info, err := f.reg.Install(ctx, writePackage(t, v2, grayscaleLua), InstallOptions{Upgrade: true})
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", info.Version)
	assert.Equal(t, StateEnabled, info.State, "an enabled plugin stays enabled across upgrades")
	assert.Contains(t, info.Permissions, security.CanvasRead, "grant is recomputed from the new manifest")
	assert.Len(t, f.reg.Contributions().Owned("com.x.grayscale"), 1)

	v0 := testManifest("com.x.grayscale")
	v0["version"] = "0.9.0"
	_, err = f.reg.Install(ctx, writePackage(t, v0, grayscaleLua), InstallOptions{Upgrade: true})
	assert.Equal(t, fault.DuplicateID, fault.KindOf(err))

	assert.Contains(t, f.events.types("com.x.grayscale"), EventUpgraded)
	assertOnlyPackages(t, f.cfg.PluginsDir, "com.x.grayscale")
}

func TestUpgradeKeepsDisabledState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.install(t, testManifest("com.x.broken"), throwingLua)
	require.Error(t, f.reg.Enable(ctx, "com.x.broken"))

	v2 := testManifest("com.x.broken")
	v2["version"] = "2.0.0"
	info, err := f.reg.Install(ctx, writePackage(t, v2, grayscaleLua), InstallOptions{Upgrade: true})
	require.NoError(t, err)
	assert.Equal(t, StateDisabled, info.State)
	assert.Empty(t, info.LastError)

	require.NoError(t, f.reg.Enable(ctx, "com.x.broken"))
}

func TestAutoEnablePolicy(t *testing.T) {
	f := newFixture(t, func(c *RegistryConfig) { c.AutoEnable = true })

	info := f.install(t, testManifest("com.x.grayscale"), grayscaleLua)
	assert.Equal(t, StateEnabled, info.State)
	assert.Len(t, f.reg.Contributions().Owned("com.x.grayscale"), 1)

	info = f.install(t, testManifest("com.x.broken"), throwingLua)
	assert.Equal(t, StateError, info.State, "install succeeds even when auto-enable fails")
}

func TestRestartRestoresEnabledPlugins(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultRegistryConfig(dir)
	store := settings.NewMemoryStore()

	first := openFixture(t, cfg, store)
	first.install(t, testManifest("com.x.enabled"), grayscaleLua)
	first.install(t, testManifest("com.x.installed"), grayscaleLua)
	first.install(t, testManifest("com.x.disabled"), grayscaleLua)
	ctx := context.Background()
	require.NoError(t, first.reg.Enable(ctx, "com.x.enabled"))
	require.NoError(t, first.reg.Enable(ctx, "com.x.disabled"))
	require.NoError(t, first.reg.Disable(ctx, "com.x.disabled"))

	info, _ := first.reg.Get("com.x.enabled")
	assert.True(t, info.Active)
	require.NoError(t, first.reg.Shutdown(ctx))

	info, _ = first.reg.Get("com.x.enabled")
	assert.Equal(t, StateEnabled, info.State, "shutdown keeps the restore intent")
	assert.False(t, info.Active, "no instance runs after shutdown")
	for _, p := range first.reg.List() {
		assert.False(t, p.Active, p.ID)
	}
	assert.Equal(t, 0, first.reg.Contributions().Len())

	data, err := os.ReadFile(cfg.StateFile)
	require.NoError(t, err)
	var doc struct {
		Version int      `json:"version"`
		Plugins []Record `json:"plugins"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, 1, doc.Version)
	assert.Len(t, doc.Plugins, 3)

	second := openFixture(t, cfg, store)
	states := map[string]State{}
	for _, p := range second.reg.List() {
		states[p.ID] = p.State
	}
	assert.Equal(t, map[string]State{
		"com.x.enabled":   StateEnabled,
		"com.x.installed": StateInstalled,
		"com.x.disabled":  StateDisabled,
	}, states)
	assert.Equal(t, []string{"com.x.enabled"}, second.reg.Contributions().Owners())
	info, _ = second.reg.Get("com.x.enabled")
	assert.True(t, info.Active, "restored on start")
}

func TestStartDropsRecordsWithoutPackage(t *testing.T) {
	cfg := DefaultRegistryConfig(t.TempDir())
	first := openFixture(t, cfg, settings.NewMemoryStore())
	info := first.install(t, testManifest("com.x.gone"), grayscaleLua)
	require.NoError(t, first.reg.Shutdown(context.Background()))
	require.NoError(t, os.RemoveAll(info.Dir))

	second := openFixture(t, cfg, settings.NewMemoryStore())
	assert.Empty(t, second.reg.List())
}

func TestStartTwice(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.reg.Start(context.Background()), ErrAlreadyStarted)
}

func TestRescanAdoptsAndForgets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dir := filepath.Join(f.cfg.PluginsDir, "com.x.dropped")
	writeDir(t, dir, packageFiles(t, testManifest("com.x.dropped"), map[string]string{"main.lua": grayscaleLua}))
	writeDir(t, filepath.Join(f.cfg.PluginsDir, "mismatched"), packageFiles(t, testManifest("com.x.other"), map[string]string{"main.lua": grayscaleLua}))
	writeDir(t, filepath.Join(f.cfg.PluginsDir, ".staging-x"), packageFiles(t, testManifest(".staging-x"), nil))

	adopted, err := f.reg.Rescan(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"com.x.dropped"}, adopted)

	info, err := f.reg.Get("com.x.dropped")
	require.NoError(t, err)
	assert.Equal(t, StateInstalled, info.State)

	adopted, err = f.reg.Rescan(ctx)
	require.NoError(t, err)
	assert.Empty(t, adopted, "known plugins are not adopted twice")

	require.NoError(t, f.reg.Enable(ctx, "com.x.dropped"))
	require.NoError(t, os.RemoveAll(dir))
	_, err = f.reg.Rescan(ctx)
	require.NoError(t, err)

	_, err = f.reg.Get("com.x.dropped")
	assert.Equal(t, fault.PluginNotFound, fault.KindOf(err))
	assert.Equal(t, 0, f.reg.Contributions().Len())
	assert.Equal(t,
		[]EventType{EventInstalled, EventEnabled, EventDisabled, EventUninstalled},
		f.events.types("com.x.dropped"))
}

func TestInstallFromArchive(t *testing.T) {
	f := newFixture(t)
	files := packageFiles(t, testManifest("com.x.grayscale"), map[string]string{"main.lua": grayscaleLua})
	source := writeTarXz(t, filepath.Join(t.TempDir(), "grayscale.tar.xz"), prefixed("grayscale", files))

	info, err := f.reg.Install(context.Background(), source, InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, source, info.Source)
	assert.FileExists(t, filepath.Join(info.Dir, "main.lua"))
	require.NoError(t, f.reg.Enable(context.Background(), info.ID))
}

func TestDetail(t *testing.T) {
	f := newFixture(t)
	m := testManifest("com.x.grayscale")
	m["settingsSchema"] = map[string]any{
		"amount": map[string]any{"type": "number", "default": 0.5, "min": 0, "max": 1},
	}
	m["changelog"] = "docs/CHANGES.md"
	src := writeDir(t, t.TempDir(), packageFiles(t, m, map[string]string{
		"main.lua":        grayscaleLua,
		"README.md":       "# Grayscale\nTurns color to gray.",
		"docs/CHANGES.md": "1.0.0: first release",
	}))
	_, err := f.reg.Install(context.Background(), src, InstallOptions{})
	require.NoError(t, err)
	require.NoError(t, f.reg.Enable(context.Background(), "com.x.grayscale"))

	d, err := f.reg.Detail("com.x.grayscale")
	require.NoError(t, err)
	assert.Equal(t, "com.x.grayscale", d.ID)
	assert.Contains(t, d.Readme, "Turns color to gray.")
	assert.Equal(t, "1.0.0: first release", d.Changelog)
	assert.Equal(t, 0.5, d.Settings["amount"])
	assert.Contains(t, d.Schema, "amount")
	require.Len(t, d.Contributions, 1)
	assert.Equal(t, "gs", d.Contributions[0].ID)

	// Cached documents follow file changes.
	require.NoError(t, os.WriteFile(filepath.Join(d.Dir, "README.md"), []byte("# Updated readme"), 0o644))
	d, err = f.reg.Detail("com.x.grayscale")
	require.NoError(t, err)
	assert.Equal(t, "# Updated readme", d.Readme)
}

func TestSettingsNamespaceIsolation(t *testing.T) {
	f := newFixture(t)
	f.install(t, testManifest("com.x.a"), grayscaleLua)
	f.install(t, testManifest("com.x.b"), grayscaleLua)

	a, err := f.reg.Settings("com.x.a")
	require.NoError(t, err)
	b, err := f.reg.Settings("com.x.b")
	require.NoError(t, err)

	for _, key := range []string{"color", "com.x.b", "../com.x.b", "", "a.b.c"} {
		if key == "" {
			assert.Error(t, a.Set(key, 1))
			continue
		}
		require.NoError(t, a.Set(key, "from-a"), key)
		assert.Nil(t, b.Get(key, nil), "key %q leaked from a to b", key)
	}
	assert.Empty(t, b.Stored())
}

func TestConcurrentOperationsOnDifferentPlugins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 8
	sources := make([]string, n)
	for i := range sources {
		sources[i] = writePackage(t, testManifest(fmt.Sprintf("com.x.p%d", i)), grayscaleLua)
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			info, err := f.reg.Install(ctx, sources[i], InstallOptions{})
			if err == nil {
				err = f.reg.Enable(ctx, info.ID)
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	assert.Len(t, f.reg.List(), n)
	assert.Len(t, f.reg.Contributions().Grouped()["filters"], n)
	assert.Equal(t, n, f.reg.Counts()[StateEnabled])
}

func TestConcurrentEnableDisableSamePlugin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.install(t, testManifest("com.x.grayscale"), grayscaleLua)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); _ = f.reg.Enable(ctx, "com.x.grayscale") }()
		go func() { defer wg.Done(); _ = f.reg.Disable(ctx, "com.x.grayscale") }()
	}
	wg.Wait()

	info, _ := f.reg.Get("com.x.grayscale")
	owned := f.reg.Contributions().Owned("com.x.grayscale")
	if info.State == StateEnabled {
		assert.Len(t, owned, 1)
	} else {
		assert.Empty(t, owned, "only enabled plugins contribute")
	}
}

func TestEventHandlerPanicIsRecovered(t *testing.T) {
	f := newFixture(t)
	unsubscribe := f.reg.Subscribe(func(Event) { panic("handler bug") })
	defer unsubscribe()

	f.install(t, testManifest("com.x.grayscale"), grayscaleLua)
	assert.Equal(t, []EventType{EventInstalled}, f.events.types("com.x.grayscale"))
}

func TestRecordsPersistenceFailureRollsBackInstall(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "state")
	f := newFixture(t, func(c *RegistryConfig) { c.StateFile = filepath.Join(blocker, "plugins.json") })
	// The state directory cannot be created once a file sits in its place.
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := f.reg.Install(context.Background(), writePackage(t, testManifest("com.x.grayscale"), grayscaleLua), InstallOptions{})
	assert.Equal(t, fault.IOFailure, fault.KindOf(err))
	assert.Empty(t, f.reg.List())
	assertOnlyPackages(t, f.cfg.PluginsDir)
}
