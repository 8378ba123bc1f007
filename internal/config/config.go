package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"

	"github.com/dshills/brushwork/internal/config/loader"
	"github.com/dshills/brushwork/internal/plugin/security"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "brushwork.toml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BRUSHWORK_"

// Log formats.
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// ErrInvalid is returned when a loaded configuration fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Config is the host configuration.
type Config struct {
	// DataDir roots every relative path below.
	DataDir string `toml:"data_dir"`

	// PluginsDir holds one directory per installed plugin.
	PluginsDir string `toml:"plugins_dir"`

	// SettingsFile is the per-plugin settings document.
	SettingsFile string `toml:"settings_file"`

	// StateFile persists plugin records across restarts.
	StateFile string `toml:"state_file"`

	// StorageDir holds the fs:read/fs:write sandbox of each plugin.
	StorageDir string `toml:"storage_dir"`

	// HostAPIVersion is the plugin API version this host implements.
	HostAPIVersion string `toml:"host_api_version"`

	// Locale selects the language of result messages.
	Locale string `toml:"locale"`

	Policy  PolicyConfig  `toml:"policy"`
	Runtime RuntimeConfig `toml:"runtime"`
	Network NetworkConfig `toml:"network"`
	Watch   WatchConfig   `toml:"watch"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`
}

// PolicyConfig holds lifecycle policy switches.
type PolicyConfig struct {
	AutoEnableOnInstall      bool `toml:"auto_enable_on_install"`
	ClearSettingsOnUninstall bool `toml:"clear_settings_on_uninstall"`
}

// RuntimeConfig bounds plugin execution.
type RuntimeConfig struct {
	InitializeTimeout  Duration `toml:"initialize_timeout"`
	InvokeTimeout      Duration `toml:"invoke_timeout"`
	CleanupTimeout     Duration `toml:"cleanup_timeout"`
	CallLimit          int64    `toml:"call_limit"`
	MaxFileBytes       int64    `toml:"max_file_bytes"`
	MaxPixels          int64    `toml:"max_pixels"`
	StartupConcurrency int      `toml:"startup_concurrency"`
}

// NetworkConfig controls network:fetch.
type NetworkConfig struct {
	AllowedHosts     []string `toml:"allowed_hosts"`
	BlockedHosts     []string `toml:"blocked_hosts"`
	FetchTimeout     Duration `toml:"fetch_timeout"`
	MaxResponseBytes int64    `toml:"max_response_bytes"`
}

// WatchConfig controls the plugins folder watcher.
type WatchConfig struct {
	Enabled  bool     `toml:"enabled"`
	Debounce Duration `toml:"debounce"`
}

// LogConfig controls the host logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig controls the metrics endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// Duration is a time.Duration written as a string such as "2s".
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q", string(b))
	}
	*d = Duration(v)
	return nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// EnvMapping lists the supported environment overrides.
var EnvMapping = map[string]loader.EnvKey{
	"BRUSHWORK_DATA_DIR":                    {Path: "data_dir"},
	"BRUSHWORK_PLUGINS_DIR":                 {Path: "plugins_dir"},
	"BRUSHWORK_SETTINGS_FILE":               {Path: "settings_file"},
	"BRUSHWORK_STATE_FILE":                  {Path: "state_file"},
	"BRUSHWORK_STORAGE_DIR":                 {Path: "storage_dir"},
	"BRUSHWORK_HOST_API_VERSION":            {Path: "host_api_version"},
	"BRUSHWORK_LOCALE":                      {Path: "locale"},
	"BRUSHWORK_AUTO_ENABLE_ON_INSTALL":      {Path: "policy.auto_enable_on_install", Kind: loader.KindBool},
	"BRUSHWORK_CLEAR_SETTINGS_ON_UNINSTALL": {Path: "policy.clear_settings_on_uninstall", Kind: loader.KindBool},
	"BRUSHWORK_INITIALIZE_TIMEOUT":          {Path: "runtime.initialize_timeout"},
	"BRUSHWORK_INVOKE_TIMEOUT":              {Path: "runtime.invoke_timeout"},
	"BRUSHWORK_CLEANUP_TIMEOUT":             {Path: "runtime.cleanup_timeout"},
	"BRUSHWORK_CALL_LIMIT":                  {Path: "runtime.call_limit", Kind: loader.KindInt},
	"BRUSHWORK_MAX_FILE_BYTES":              {Path: "runtime.max_file_bytes", Kind: loader.KindInt},
	"BRUSHWORK_MAX_PIXELS":                  {Path: "runtime.max_pixels", Kind: loader.KindInt},
	"BRUSHWORK_STARTUP_CONCURRENCY":         {Path: "runtime.startup_concurrency", Kind: loader.KindInt},
	"BRUSHWORK_ALLOWED_HOSTS":               {Path: "network.allowed_hosts", Kind: loader.KindList},
	"BRUSHWORK_BLOCKED_HOSTS":               {Path: "network.blocked_hosts", Kind: loader.KindList},
	"BRUSHWORK_FETCH_TIMEOUT":               {Path: "network.fetch_timeout"},
	"BRUSHWORK_MAX_RESPONSE_BYTES":          {Path: "network.max_response_bytes", Kind: loader.KindInt},
	"BRUSHWORK_WATCH":                       {Path: "watch.enabled", Kind: loader.KindBool},
	"BRUSHWORK_WATCH_DEBOUNCE":              {Path: "watch.debounce"},
	"BRUSHWORK_LOG_LEVEL":                   {Path: "log.level"},
	"BRUSHWORK_LOG_FORMAT":                  {Path: "log.format"},
	"BRUSHWORK_METRICS_ADDR":                {Path: "metrics.addr"},
}

// Default returns a configuration rooted at the user config directory.
func Default() *Config {
	limits := security.DefaultLimits()
	return &Config{
		DataDir:        DefaultDir(),
		HostAPIVersion: "1.2",
		Locale:         "en",
		Runtime: RuntimeConfig{
			InitializeTimeout:  Duration(limits.InitializeTimeout),
			InvokeTimeout:      Duration(limits.InvokeTimeout),
			CleanupTimeout:     Duration(limits.CleanupTimeout),
			CallLimit:          limits.CallLimit,
			MaxFileBytes:       limits.MaxFileBytes,
			MaxPixels:          limits.MaxPixels,
			StartupConcurrency: 4,
		},
		Network: NetworkConfig{
			FetchTimeout:     Duration(limits.FetchTimeout),
			MaxResponseBytes: limits.MaxResponseBytes,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: Duration(500 * time.Millisecond),
		},
		Log: LogConfig{
			Level:  "info",
			Format: FormatAuto,
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9464",
		},
	}
}

// DefaultDir returns the brushwork directory under the user config dir.
func DefaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".brushwork"
	}
	return filepath.Join(dir, "brushwork")
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), FileName)
}

// Load reads the TOML file at path, applies BRUSHWORK_* overrides and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	return LoadWithFS(loader.DefaultFS(), path)
}

// LoadWithFS is Load reading the file through fs.
func LoadWithFS(fs loader.FileSystem, path string) (*Config, error) {
	file, err := loader.NewTOMLLoaderWithFS(fs, path).Load()
	if err != nil {
		return nil, err
	}
	env, err := loader.NewEnvLoader(EnvPrefix, EnvMapping).Load()
	if err != nil {
		return nil, fmt.Errorf("%w: environment: %v", ErrInvalid, err)
	}

	cfg := Default()
	if err := decode(loader.Merge(file, env), cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}
	cfg.resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode writes the merged map over the defaults in cfg.
func decode(values map[string]any, cfg *Config) error {
	if len(values) == 0 {
		return nil
	}
	data, err := toml.Marshal(values)
	if err != nil {
		return err
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("unknown keys:\n%s", strict.String())
		}
		return err
	}
	return nil
}

// resolve expands environment references and roots relative paths in DataDir.
func (c *Config) resolve() {
	c.DataDir = filepath.Clean(os.ExpandEnv(c.DataDir))
	root := func(p, def string) string {
		if p == "" {
			p = def
		}
		p = os.ExpandEnv(p)
		if !filepath.IsAbs(p) {
			p = filepath.Join(c.DataDir, p)
		}
		return filepath.Clean(p)
	}
	c.PluginsDir = root(c.PluginsDir, "plugins")
	c.SettingsFile = root(c.SettingsFile, "settings.json")
	c.StateFile = root(c.StateFile, "plugins.json")
	c.StorageDir = root(c.StorageDir, "storage")
}

// Resolved returns a copy with every path filled in.
func (c *Config) Resolved() *Config {
	cp := *c
	cp.resolve()
	return &cp
}

var apiVersionPattern = regexp.MustCompile(`^\d+\.\d+$`)

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is empty"))
	}
	if !apiVersionPattern.MatchString(c.HostAPIVersion) {
		errs = append(errs, fmt.Errorf("host_api_version %q is not major.minor", c.HostAPIVersion))
	}
	if c.Runtime.StartupConcurrency < 1 {
		errs = append(errs, errors.New("runtime.startup_concurrency must be at least 1"))
	}
	if err := c.Limits().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Watch.Enabled && c.Watch.Debounce <= 0 {
		errs = append(errs, errors.New("watch.debounce must be positive"))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case FormatAuto, FormatText, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of auto, text, json", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Limits returns the plugin resource limits.
func (c *Config) Limits() security.Limits {
	return security.Limits{
		InitializeTimeout: c.Runtime.InitializeTimeout.Std(),
		InvokeTimeout:     c.Runtime.InvokeTimeout.Std(),
		CleanupTimeout:    c.Runtime.CleanupTimeout.Std(),
		CallLimit:         c.Runtime.CallLimit,
		FetchTimeout:      c.Network.FetchTimeout.Std(),
		MaxResponseBytes:  c.Network.MaxResponseBytes,
		MaxFileBytes:      c.Runtime.MaxFileBytes,
		MaxPixels:         c.Runtime.MaxPixels,
	}
}

// Marshal renders the configuration as TOML.
func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
