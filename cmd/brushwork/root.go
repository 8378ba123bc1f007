package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dshills/brushwork/internal/config"
	"github.com/dshills/brushwork/internal/observability"
)

// configEnv names the environment variable that points at the config file.
const configEnv = "BRUSHWORK_CONFIG"

// options holds the persistent flags shared by every command.
type options struct {
	configPath string
	locale     string
	logLevel   string
	json       bool

	out    io.Writer
	errOut io.Writer
}

// NewRootCommand creates the root command with every subcommand attached.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	opts := &options{out: out, errOut: errOut}

	cmd := &cobra.Command{
		Use:   "brushwork",
		Short: "Plugin host for the brushwork image editor",
		Long: `brushwork installs, enables and inspects image editor plugins.

Plugins are directories or archives carrying a plugin.json manifest. Each
plugin runs in a sandbox that only exposes the API modules its declared
permissions grant. "brushwork run" keeps the host alive, rescans the
plugins folder when it changes and serves Prometheus metrics.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", defaultConfigPath(), "configuration file")
	flags.StringVar(&opts.locale, "locale", "", "language of result messages (en, de)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flags.BoolVar(&opts.json, "json", false, "print machine readable JSON")

	cmd.AddCommand(
		newListCommand(opts),
		newInfoCommand(opts),
		newInstallCommand(opts),
		newUninstallCommand(opts),
		newEnableCommand(opts),
		newDisableCommand(opts),
		newContributionsCommand(opts),
		newSettingsCommand(opts),
		newFolderCommand(opts),
		newRunCommand(opts),
		newConfigCommand(opts),
	)
	return cmd
}

func defaultConfigPath() string {
	if p := os.Getenv(configEnv); p != "" {
		return p
	}
	return config.DefaultPath()
}

// load reads the configuration and applies flag overrides.
func (o *options) load() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.locale != "" {
		cfg.Locale = o.locale
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	logger, err := observability.NewLogger(cfg.Log, o.errOut)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
