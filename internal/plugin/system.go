package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dshills/brushwork/internal/plugin/contrib"
	"github.com/dshills/brushwork/internal/plugin/fault"
	"github.com/dshills/brushwork/internal/plugin/settings"
	"github.com/dshills/brushwork/internal/watcher"
)

// Result is the user-visible outcome of a host-facing mutation.
type Result struct {
	OK      bool       `json:"ok"`
	Message string     `json:"message"`
	Kind    fault.Kind `json:"kind,omitempty"`

	// Err is the underlying error of a failed operation.
	Err error `json:"-"`
}

// FolderOpener reveals a directory to the user.
type FolderOpener interface {
	Open(ctx context.Context, dir string) error
}

// FolderOpenerFunc adapts a function to FolderOpener.
type FolderOpenerFunc func(ctx context.Context, dir string) error

// Open calls f.
func (f FolderOpenerFunc) Open(ctx context.Context, dir string) error {
	return f(ctx, dir)
}

// FileBrowser opens directories with the platform file browser.
type FileBrowser struct{}

// Open launches the file browser and does not wait for it to exit.
func (FileBrowser) Open(ctx context.Context, dir string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", dir)
	case "windows":
		cmd = exec.CommandContext(ctx, "explorer", dir)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", dir)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// SystemConfig configures the plugin system.
type SystemConfig struct {
	// Locale selects the language of result messages.
	Locale string

	// Opener reveals the plugins folder. Defaults to FileBrowser.
	Opener FolderOpener

	// Watch enables rescans when the plugins folder changes.
	Watch bool

	// WatchDebounce is the quiet period before a rescan.
	WatchDebounce time.Duration

	// Logger is the host logger.
	Logger *logrus.Logger
}

// PluginSettings is a plugin's current settings with their schema.
type PluginSettings struct {
	Plugin string          `json:"plugin"`
	Values map[string]any  `json:"values"`
	Stored map[string]any  `json:"stored"`
	Schema settings.Schema `json:"schema,omitempty"`
}

// System is the entry point the host application uses to manage plugins.
// Queries return data; mutations return a localized Result.
type System struct {
	mu sync.Mutex

	registry *Registry
	config   SystemConfig
	log      *logrus.Entry
	watcher  *watcher.Watcher
}

// NewSystem creates a system over a registry.
func NewSystem(registry *Registry, config SystemConfig) *System {
	if config.Opener == nil {
		config.Opener = FileBrowser{}
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	return &System{
		registry: registry,
		config:   config,
		log:      config.Logger.WithField("component", "system"),
	}
}

// Registry returns the underlying registry.
func (s *System) Registry() *Registry {
	return s.registry
}

// Start starts the registry and, when configured, the folder watcher.
func (s *System) Start(ctx context.Context) error {
	if err := s.registry.Start(ctx); err != nil {
		return err
	}
	if !s.config.Watch {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	w := watcher.New(s.registry.Config().PluginsDir, s.registry,
		watcher.WithDebounce(s.config.WatchDebounce),
		watcher.WithLogger(s.config.Logger),
	)
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("watch plugins folder: %w", err)
	}
	s.watcher = w
	return nil
}

// Shutdown stops the watcher and every running plugin.
func (s *System) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	var errs []error
	if w != nil {
		if err := w.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.registry.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// GetPlugins lists every installed plugin, including plugins in StateError.
func (s *System) GetPlugins() []Info {
	return s.registry.List()
}

// GetPluginDetail returns one plugin with its settings and documents.
func (s *System) GetPluginDetail(id string) (Detail, error) {
	return s.registry.Detail(id)
}

// InstallPlugin installs from a directory or archive path.
func (s *System) InstallPlugin(ctx context.Context, source string) Result {
	return s.InstallPluginWith(ctx, source, InstallOptions{})
}

// InstallPluginWith installs with explicit options.
func (s *System) InstallPluginWith(ctx context.Context, source string, opts InstallOptions) Result {
	info, err := s.registry.Install(ctx, source, opts)
	if err != nil {
		subject := source
		if id := pluginOf(err); id != "" {
			subject = id
		}
		return s.failure(fault.ActionInstall, subject, err)
	}
	return s.success(fault.ActionInstall, info.ID)
}

// UninstallPlugin removes a plugin, disabling it first when it runs.
func (s *System) UninstallPlugin(ctx context.Context, id string) Result {
	return s.UninstallPluginWith(ctx, id, UninstallOptions{})
}

// UninstallPluginWith uninstalls with explicit options.
func (s *System) UninstallPluginWith(ctx context.Context, id string, opts UninstallOptions) Result {
	if err := s.registry.Uninstall(ctx, id, opts); err != nil {
		return s.failure(fault.ActionUninstall, id, err)
	}
	return s.success(fault.ActionUninstall, id)
}

// EnablePlugin starts a plugin and publishes its contributions.
func (s *System) EnablePlugin(ctx context.Context, id string) Result {
	if err := s.registry.Enable(ctx, id); err != nil {
		return s.failure(fault.ActionEnable, id, err)
	}
	return s.success(fault.ActionEnable, id)
}

// DisablePlugin retracts a plugin's contributions and stops it.
func (s *System) DisablePlugin(ctx context.Context, id string) Result {
	if err := s.registry.Disable(ctx, id); err != nil {
		return s.failure(fault.ActionDisable, id, err)
	}
	return s.success(fault.ActionDisable, id)
}

// GetPluginContributions returns enabled plugins' contributions grouped by
// kind: filters, brushes, tools and panels.
func (s *System) GetPluginContributions() map[string][]contrib.Contribution {
	return s.registry.Contributions().Grouped()
}

// GetPluginSettings returns a plugin's settings merged over schema defaults.
func (s *System) GetPluginSettings(id string) (PluginSettings, error) {
	ns, err := s.registry.Settings(id)
	if err != nil {
		return PluginSettings{}, err
	}
	return PluginSettings{
		Plugin: id,
		Values: ns.All(),
		Stored: ns.Stored(),
		Schema: ns.Schema(),
	}, nil
}

// SetPluginSetting validates and stores one setting value.
func (s *System) SetPluginSetting(id, key string, value any) Result {
	ns, err := s.registry.Settings(id)
	if err != nil {
		return s.failure(fault.ActionSetSetting, id, err)
	}
	if err := ns.Set(key, value); err != nil {
		return s.failure(fault.ActionSetSetting, id, err)
	}
	s.log.WithFields(logrus.Fields{"plugin": id, "key": key}).Debug("plugin setting updated")
	return s.success(fault.ActionSetSetting, id)
}

// OpenPluginsFolder creates the plugins folder if needed and reveals it.
func (s *System) OpenPluginsFolder(ctx context.Context) (string, error) {
	dir := s.registry.Config().PluginsDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return dir, fault.Wrap(fault.IOFailure, "", err).WithOp("open-folder")
	}
	if err := s.config.Opener.Open(ctx, dir); err != nil {
		return dir, fmt.Errorf("open plugins folder: %w", err)
	}
	return dir, nil
}

func (s *System) success(action fault.Action, id string) Result {
	return Result{OK: true, Message: fault.Success(action, id, s.config.Locale)}
}

func (s *System) failure(action fault.Action, subject string, err error) Result {
	s.log.WithError(err).WithField("action", string(action)).Debug("plugin operation failed")
	return Result{
		Message: fault.Message(err, subject, s.config.Locale),
		Kind:    fault.KindOf(err),
		Err:     err,
	}
}

func pluginOf(err error) string {
	var fe *fault.Error
	if errors.As(err, &fe) {
		return fe.Plugin
	}
	return ""
}
