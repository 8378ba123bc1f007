package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/brushwork/internal/config"
	"github.com/dshills/brushwork/internal/observability"
	"github.com/dshills/brushwork/internal/plugin"
)

func newRunCommand(opts *options) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the plugin host until interrupted",
		Long: `Run the plugin host until SIGINT or SIGTERM.

Enabled plugins are restored, the plugins folder is watched for
directories added or removed by hand and metrics are served on
/metrics when an address is configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hopts := hostOptions{watch: true}
			if cmd.Flags().Changed("metrics-addr") {
				hopts.configure = func(cfg *config.Config) { cfg.Metrics.Addr = metricsAddr }
			}
			return opts.withHost(cmd, hopts, runHost)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "metrics listen address, empty to disable (default from config)")
	return cmd
}

// runHost serves metrics and blocks until ctx is cancelled.
func runHost(ctx context.Context, h *host) error {
	log := observability.Component(h.log, "host")
	g, gctx := errgroup.WithContext(ctx)

	if addr := h.cfg.Metrics.Addr; addr != "" {
		srv, err := observability.Listen(addr, h.registry, observability.Component(h.log, "metrics"))
		if err != nil {
			return err
		}
		g.Go(func() error { return srv.Serve(gctx) })
	}

	counts := h.system.Registry().Counts()
	log.WithFields(logrus.Fields{
		"plugins_dir": h.cfg.PluginsDir,
		"enabled":     counts[plugin.StateEnabled],
		"installed":   len(h.system.GetPlugins()),
		"watch":       h.cfg.Watch.Enabled,
	}).Info("plugin host running")

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	err := g.Wait()
	log.Info("plugin host stopping")
	return err
}

func newFolderCommand(opts *options) *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "folder",
		Short: "Open the plugins folder in the file browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var hopts hostOptions
			if printOnly {
				hopts.opener = plugin.FolderOpenerFunc(func(context.Context, string) error { return nil })
			}
			return opts.withHost(cmd, hopts, func(ctx context.Context, h *host) error {
				dir, err := h.system.OpenPluginsFolder(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(opts.out, dir)
				return err
			})
		},
	}
	cmd.Flags().BoolVarP(&printOnly, "print", "p", false, "only create and print the folder path")
	return cmd
}

func newConfigCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(opts.out, cfg)
			}
			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			fmt.Fprintf(opts.out, "# %s\n", opts.configPath)
			_, err = opts.out.Write(data)
			return err
		},
	}
}
