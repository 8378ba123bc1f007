package plugin

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/brushwork/internal/plugin/api"
	"github.com/dshills/brushwork/internal/plugin/fault"
	"github.com/dshills/brushwork/internal/plugin/settings"
)

func newTestSystem(t *testing.T, config SystemConfig) *System {
	t.Helper()
	logger := nullLogger()
	reg := NewRegistry(DefaultRegistryConfig(t.TempDir()),
		WithLogger(logger),
		WithBuilder(api.NewBuilder(api.WithLogger(logger), api.WithLimits(shortLimits()))),
		WithSettingsStore(settings.NewMemoryStore()),
	)
	config.Logger = logger
	sys := NewSystem(reg, config)
	require.NoError(t, sys.Start(context.Background()))
	t.Cleanup(func() { _ = sys.Shutdown(context.Background()) })
	return sys
}

func TestSystemLifecycleResults(t *testing.T) {
	sys := newTestSystem(t, SystemConfig{Locale: "en"})
	ctx := context.Background()
	m := testManifest("com.x.grayscale")
	m["settingsSchema"] = map[string]any{
		"amount": map[string]any{"type": "number", "default": 1, "min": 0, "max": 1},
	}

	res := sys.InstallPlugin(ctx, writePackage(t, m, grayscaleLua))
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "Plugin com.x.grayscale was installed.", res.Message)

	plugins := sys.GetPlugins()
	require.Len(t, plugins, 1)
	assert.Equal(t, StateInstalled, plugins[0].State)

	res = sys.EnablePlugin(ctx, "com.x.grayscale")
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "Plugin com.x.grayscale was enabled.", res.Message)

	grouped := sys.GetPluginContributions()
	assert.Len(t, grouped["filters"], 1)
	for _, kind := range []string{"brushes", "tools", "panels"} {
		assert.NotNil(t, grouped[kind], kind)
		assert.Empty(t, grouped[kind], kind)
	}

	detail, err := sys.GetPluginDetail("com.x.grayscale")
	require.NoError(t, err)
	assert.Equal(t, StateEnabled, detail.State)

	res = sys.SetPluginSetting("com.x.grayscale", "amount", 0.25)
	require.True(t, res.OK, res.Message)
	ps, err := sys.GetPluginSettings("com.x.grayscale")
	require.NoError(t, err)
	assert.Equal(t, 0.25, ps.Values["amount"])
	assert.Equal(t, map[string]any{"amount": 0.25}, ps.Stored)

	res = sys.SetPluginSetting("com.x.grayscale", "amount", 7)
	assert.False(t, res.OK)
	assert.Equal(t, fault.InvalidSettingValue, res.Kind)
	ps, _ = sys.GetPluginSettings("com.x.grayscale")
	assert.Equal(t, 0.25, ps.Values["amount"], "a rejected value is not stored")

	res = sys.DisablePlugin(ctx, "com.x.grayscale")
	require.True(t, res.OK, res.Message)
	assert.Empty(t, sys.GetPluginContributions()["filters"])

	res = sys.UninstallPlugin(ctx, "com.x.grayscale")
	require.True(t, res.OK, res.Message)
	assert.Empty(t, sys.GetPlugins())
}

func TestSystemFailureResults(t *testing.T) {
	sys := newTestSystem(t, SystemConfig{Locale: "de"})
	ctx := context.Background()

	res := sys.EnablePlugin(ctx, "com.x.missing")
	assert.False(t, res.OK)
	assert.Equal(t, fault.PluginNotFound, res.Kind)
	assert.True(t, errors.Is(res.Err, fault.ErrPluginNotFound))
	assert.Contains(t, res.Message, "com.x.missing")

	m := testManifest("com.x.grayscale")
	delete(m, "apiVersion")
	res = sys.InstallPlugin(ctx, writePackage(t, m, grayscaleLua))
	assert.False(t, res.OK)
	assert.Equal(t, fault.IncompatibleAPIVersion, res.Kind)
	assert.Contains(t, res.Message, "com.x.grayscale", "failures name the plugin when the manifest has an id")

	source := filepath.Join(t.TempDir(), "nothing.rar")
	res = sys.InstallPlugin(ctx, source)
	assert.Equal(t, fault.UnsupportedSource, res.Kind)
	assert.Contains(t, res.Message, source)

	res = sys.InstallPlugin(ctx, writePackage(t, testManifest("com.x.ok"), grayscaleLua))
	require.True(t, res.OK)
	assert.Equal(t, "Plugin com.x.ok wurde installiert.", res.Message)

	res = sys.SetPluginSetting("com.x.missing", "k", 1)
	assert.Equal(t, fault.PluginNotFound, res.Kind)

	_, err := sys.GetPluginSettings("com.x.missing")
	assert.Equal(t, fault.PluginNotFound, fault.KindOf(err))
}

func TestSystemInstallWithOptions(t *testing.T) {
	sys := newTestSystem(t, SystemConfig{})
	ctx := context.Background()
	require.True(t, sys.InstallPlugin(ctx, writePackage(t, testManifest("com.x.grayscale"), grayscaleLua)).OK)

	v2 := testManifest("com.x.grayscale")
	v2["version"] = "2.0.0"
	res := sys.InstallPluginWith(ctx, writePackage(t, v2, grayscaleLua), InstallOptions{Upgrade: true})
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "2.0.0", sys.GetPlugins()[0].Version)

	drop := true
	res = sys.UninstallPluginWith(ctx, "com.x.grayscale", UninstallOptions{ClearSettings: &drop})
	assert.True(t, res.OK, res.Message)
}

func TestOpenPluginsFolder(t *testing.T) {
	var opened string
	sys := newTestSystem(t, SystemConfig{
		Opener: FolderOpenerFunc(func(_ context.Context, dir string) error {
			opened = dir
			return nil
		}),
	})

	dir, err := sys.OpenPluginsFolder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sys.Registry().Config().PluginsDir, dir)
	assert.Equal(t, dir, opened)
	assert.DirExists(t, dir)
}

func TestOpenPluginsFolderError(t *testing.T) {
	sys := newTestSystem(t, SystemConfig{
		Opener: FolderOpenerFunc(func(context.Context, string) error { return errors.New("no display") }),
	})
	_, err := sys.OpenPluginsFolder(context.Background())
	assert.ErrorContains(t, err, "no display")
}

func TestSystemWatchAdoptsDroppedPackages(t *testing.T) {
	sys := newTestSystem(t, SystemConfig{Watch: true, WatchDebounce: 50 * time.Millisecond})

	dir := filepath.Join(sys.Registry().Config().PluginsDir, "com.x.dropped")
	writeDir(t, dir, packageFiles(t, testManifest("com.x.dropped"), map[string]string{"main.lua": grayscaleLua}))

	require.Eventually(t, func() bool {
		_, err := sys.Registry().Get("com.x.dropped")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	res := sys.EnablePlugin(context.Background(), "com.x.dropped")
	assert.True(t, res.OK, res.Message)
}
