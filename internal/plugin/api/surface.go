package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dshills/brushwork/internal/plugin/fault"
	"github.com/dshills/brushwork/internal/plugin/security"
	"github.com/dshills/brushwork/internal/plugin/settings"
)

// ErrUnavailable is returned when the host has no provider for a subsystem.
var ErrUnavailable = errors.New("subsystem unavailable")

// Observer receives API usage signals, typically for metrics.
type Observer interface {
	PermissionDenied(plugin string, perm security.Permission, function string)
}

// Function is one callable entry of a module.
type Function struct {
	// Name is the function name within the module.
	Name string

	// Permission guards the function. Empty means always allowed.
	Permission security.Permission

	impl func(ctx context.Context, args Args) (any, error)
}

// Module is a named table of functions.
type Module struct {
	Name      string
	Functions []*Function
}

// Builder constructs surfaces. It holds the host-wide parts shared by every
// plugin: providers, limits, logging and the network policy.
type Builder struct {
	providers    Providers
	limits       security.Limits
	logger       *logrus.Logger
	observer     Observer
	allowedHosts []string
	blockedHosts []string
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithProviders sets the engine and host providers.
func WithProviders(p Providers) BuilderOption {
	return func(b *Builder) {
		b.providers = p
	}
}

// WithLimits sets the resource limits.
func WithLimits(l security.Limits) BuilderOption {
	return func(b *Builder) {
		b.limits = l
	}
}

// WithLogger sets the host logger plugin log calls are written to.
func WithLogger(l *logrus.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = l
	}
}

// WithObserver sets the usage observer.
func WithObserver(o Observer) BuilderOption {
	return func(b *Builder) {
		b.observer = o
	}
}

// WithHostPolicy sets the network allow and block lists.
func WithHostPolicy(allowed, blocked []string) BuilderOption {
	return func(b *Builder) {
		b.allowedHosts = allowed
		b.blockedHosts = blocked
	}
}

// NewBuilder creates a surface builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{limits: security.DefaultLimits()}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logrus.StandardLogger()
	}
	if b.providers.HTTP == nil {
		b.providers.HTTP = &http.Client{Timeout: b.limits.FetchTimeout}
	}
	return b
}

// Limits returns the limits surfaces are built with.
func (b *Builder) Limits() security.Limits {
	return b.limits
}

// BuildInput identifies the plugin a surface is built for.
type BuildInput struct {
	PluginID   string
	Version    string
	Grant      security.Grant
	Settings   *settings.Namespace
	StorageDir string
}

// Build constructs the surface for one plugin instance.
func (b *Builder) Build(in BuildInput) (*Surface, error) {
	if strings.TrimSpace(in.PluginID) == "" {
		return nil, fault.New(fault.EmptyID, "", "surface requires a plugin id")
	}
	if in.Settings == nil {
		return nil, fmt.Errorf("surface for %s: settings namespace is required", in.PluginID)
	}
	if in.Settings.Plugin() != in.PluginID {
		return nil, fmt.Errorf("surface for %s: settings namespace belongs to %s", in.PluginID, in.Settings.Plugin())
	}

	s := &Surface{
		plugin:    in.PluginID,
		version:   in.Version,
		grant:     in.Grant,
		settings:  in.Settings,
		providers: b.providers,
		limits:    b.limits,
		observer:  b.observer,
		checker: security.NewChecker(security.Policy{
			StorageRoot:  in.StorageDir,
			AllowedHosts: b.allowedHosts,
			BlockedHosts: b.blockedHosts,
		}),
		log: b.logger.WithFields(logrus.Fields{
			"component": "plugin-api",
			"plugin":    in.PluginID,
		}),
		regIDs: make(map[Kind]map[string]bool),
	}
	s.http = guardRedirects(b.providers.HTTP, s.checker)

	s.modules = []Module{
		s.canvasModule(),
		s.layersModule(),
		s.filtersModule(),
		s.brushesModule(),
		s.toolsModule(),
		s.uiModule(),
		s.fsModule(),
		s.netModule(),
		s.historyModule(),
		s.selectionModule(),
		s.settingsModule(),
		s.logModule(),
		s.pluginModule(),
	}
	s.index = make(map[string]map[string]*Function, len(s.modules))
	for _, m := range s.modules {
		fns := make(map[string]*Function, len(m.Functions))
		for _, f := range m.Functions {
			fns[f.Name] = f
		}
		s.index[m.Name] = fns
	}

	return s, nil
}

// Surface is the API object handed to one plugin instance.
type Surface struct {
	plugin    string
	version   string
	grant     security.Grant
	settings  *settings.Namespace
	providers Providers
	limits    security.Limits
	observer  Observer
	checker   *security.Checker
	http      HTTPDoer
	log       *logrus.Entry

	modules []Module
	index   map[string]map[string]*Function

	mu     sync.Mutex
	regs   []Registration
	regIDs map[Kind]map[string]bool
	sealed bool
	closed bool
	usedUI bool
}

// Plugin returns the owning plugin id.
func (s *Surface) Plugin() string {
	return s.plugin
}

// Grant returns the permission grant the surface enforces.
func (s *Surface) Grant() security.Grant {
	return s.grant
}

// Settings returns the plugin's settings namespace.
func (s *Surface) Settings() *settings.Namespace {
	return s.settings
}

// Logger returns the plugin-scoped logger.
func (s *Surface) Logger() *logrus.Entry {
	return s.log
}

// Modules returns every module of the surface.
func (s *Surface) Modules() []Module {
	return s.modules
}

// ModuleNames returns the module names, sorted.
func (s *Surface) ModuleNames() []string {
	names := make([]string, 0, len(s.modules))
	for _, m := range s.modules {
		names = append(names, m.Name)
	}
	sort.Strings(names)
	return names
}

// Call invokes module.fn by name.
func (s *Surface) Call(ctx context.Context, module, fn string, args ...any) (any, error) {
	fns, ok := s.index[module]
	if !ok {
		return nil, fmt.Errorf("api: unknown module %q", module)
	}
	f, ok := fns[fn]
	if !ok {
		return nil, fmt.Errorf("api: unknown function %s.%s", module, fn)
	}
	return s.Invoke(ctx, module, f, args)
}

// Invoke runs f after the permission gate. A denied call never reaches the
// function body.
func (s *Surface) Invoke(ctx context.Context, module string, f *Function, args []any) (any, error) {
	qualified := module + "." + f.Name

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, fault.New(fault.InvalidState, s.plugin, qualified+" called after the plugin was disabled")
	}

	if f.Permission != "" && !s.grant.Has(f.Permission) {
		s.log.WithField("function", qualified).Debugf("permission %s denied", f.Permission)
		if s.observer != nil {
			s.observer.PermissionDenied(s.plugin, f.Permission, qualified)
		}
		return nil, security.Denied(s.plugin, f.Permission, qualified)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	return f.impl(ctx, NewArgs(qualified, args...))
}

// Seal ends the registration window and returns what was registered.
func (s *Surface) Seal() []Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = true
	return s.registrationsLocked()
}

// Registrations returns a copy of the registrations collected so far.
func (s *Surface) Registrations() []Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registrationsLocked()
}

func (s *Surface) registrationsLocked() []Registration {
	out := make([]Registration, len(s.regs))
	copy(out, s.regs)
	return out
}

// Close invalidates the surface and removes host UI owned by the plugin.
func (s *Surface) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	usedUI := s.usedUI
	s.mu.Unlock()

	if usedUI && s.providers.UI != nil {
		s.providers.UI.RemoveAll(s.plugin)
	}
}

func (s *Surface) register(reg Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return fault.New(fault.InvalidState, s.plugin,
			fmt.Sprintf("%s %q must be registered during initialize", reg.Kind, reg.ID))
	}
	ids := s.regIDs[reg.Kind]
	if ids == nil {
		ids = make(map[string]bool)
		s.regIDs[reg.Kind] = ids
	}
	if ids[reg.ID] {
		return fault.New(fault.InvalidState, s.plugin,
			fmt.Sprintf("%s %q is already registered", reg.Kind, reg.ID))
	}
	ids[reg.ID] = true
	s.regs = append(s.regs, reg)
	return nil
}

func (s *Surface) markUI() {
	s.mu.Lock()
	s.usedUI = true
	s.mu.Unlock()
}

func fn(name string, perm security.Permission, impl func(ctx context.Context, args Args) (any, error)) *Function {
	return &Function{Name: name, Permission: perm, impl: impl}
}
