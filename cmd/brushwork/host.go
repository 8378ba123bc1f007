package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dshills/brushwork/internal/canvas"
	"github.com/dshills/brushwork/internal/config"
	"github.com/dshills/brushwork/internal/observability"
	"github.com/dshills/brushwork/internal/plugin"
	"github.com/dshills/brushwork/internal/plugin/api"
	"github.com/dshills/brushwork/internal/plugin/contrib"
	"github.com/dshills/brushwork/internal/plugin/settings"
)

// Size of the scratch document plugins draw on.
const (
	documentWidth  = 1024
	documentHeight = 768
)

// shutdownTimeout bounds plugin cleanup when a command exits.
const shutdownTimeout = 10 * time.Second

// hostOptions selects the optional parts of a host.
type hostOptions struct {
	// watch rescans the plugins folder on change when the configuration
	// enables it.
	watch bool

	// configure adjusts the loaded configuration before wiring.
	configure func(*config.Config)

	// opener reveals the plugins folder. Nil uses the file browser.
	opener plugin.FolderOpener
}

// host is a fully wired plugin system.
type host struct {
	cfg      *config.Config
	log      *logrus.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
	document *canvas.Document
	system   *plugin.System

	unsubscribe func()
}

// newHost wires the document, sandbox builder, aggregator, settings store
// and registry described by cfg.
func newHost(cfg *config.Config, logger *logrus.Logger, opts hostOptions) (*host, error) {
	promRegistry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promRegistry)

	store, err := settings.Open(cfg.SettingsFile)
	if err != nil {
		return nil, fmt.Errorf("open settings: %w", err)
	}

	doc := canvas.New(documentWidth, documentHeight, canvas.WithLogger(logger))
	builder := api.NewBuilder(
		api.WithProviders(doc.Providers()),
		api.WithLimits(cfg.Limits()),
		api.WithLogger(logger),
		api.WithObserver(metrics),
		api.WithHostPolicy(cfg.Network.AllowedHosts, cfg.Network.BlockedHosts),
	)
	aggregator := contrib.New(contrib.WithLogger(logger), contrib.WithRecorder(metrics))

	regCfg := plugin.DefaultRegistryConfig(cfg.DataDir)
	regCfg.PluginsDir = cfg.PluginsDir
	regCfg.StateFile = cfg.StateFile
	regCfg.StorageDir = cfg.StorageDir
	regCfg.HostAPI = cfg.HostAPIVersion
	regCfg.AutoEnable = cfg.Policy.AutoEnableOnInstall
	regCfg.ClearSettingsOnUninstall = cfg.Policy.ClearSettingsOnUninstall
	regCfg.StartupConcurrency = cfg.Runtime.StartupConcurrency

	registry := plugin.NewRegistry(regCfg,
		plugin.WithLogger(logger),
		plugin.WithBuilder(builder),
		plugin.WithSettingsStore(store),
		plugin.WithAggregator(aggregator),
	)
	promRegistry.MustRegister(observability.NewStateCollector(registry))

	system := plugin.NewSystem(registry, plugin.SystemConfig{
		Locale:        cfg.Locale,
		Opener:        opts.opener,
		Watch:         opts.watch && cfg.Watch.Enabled,
		WatchDebounce: cfg.Watch.Debounce.Std(),
		Logger:        logger,
	})

	return &host{
		cfg:         cfg,
		log:         logger,
		registry:    promRegistry,
		metrics:     metrics,
		document:    doc,
		system:      system,
		unsubscribe: registry.Subscribe(metrics.HandleEvent),
	}, nil
}

// start restores persisted plugins.
func (h *host) start(ctx context.Context) error {
	return h.system.Start(ctx)
}

// stop shuts every plugin down, even when ctx is already cancelled.
func (h *host) stop() {
	defer h.unsubscribe()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := h.system.Shutdown(ctx); err != nil {
		h.log.WithError(err).Warn("plugin shutdown incomplete")
	}
}

// withHost loads the configuration, starts a host, runs fn and stops the
// host again.
func (o *options) withHost(cmd *cobra.Command, hopts hostOptions, fn func(ctx context.Context, h *host) error) error {
	cfg, logger, err := o.load()
	if err != nil {
		return err
	}
	if hopts.configure != nil {
		hopts.configure(cfg)
	}
	h, err := newHost(cfg, logger, hopts)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := h.start(ctx); err != nil {
		h.unsubscribe()
		return fmt.Errorf("start plugin host: %w", err)
	}
	defer h.stop()
	return fn(ctx, h)
}
