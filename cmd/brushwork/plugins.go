package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/brushwork/internal/plugin"
	"github.com/dshills/brushwork/internal/plugin/fault"
	"github.com/dshills/brushwork/internal/plugin/security"
)

func newListCommand(opts *options) *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List installed plugins",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withHost(cmd, hostOptions{}, func(ctx context.Context, h *host) error {
				return runList(opts, h, state)
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "only show plugins in this state (installed, enabled, disabled, error)")
	return cmd
}

func runList(opts *options, h *host, stateFilter string) error {
	plugins := h.system.GetPlugins()
	if stateFilter != "" {
		want, err := plugin.ParseState(stateFilter)
		if err != nil {
			return err
		}
		filtered := plugins[:0:0]
		for _, p := range plugins {
			if p.State == want {
				filtered = append(filtered, p)
			}
		}
		plugins = filtered
	}

	if opts.json {
		return printJSON(opts.out, plugins)
	}
	if len(plugins) == 0 {
		fmt.Fprintln(opts.out, "No plugins installed.")
		return nil
	}
	tw := newTable(opts.out)
	fmt.Fprintln(tw, "ID\tNAME\tVERSION\tTYPE\tSTATE")
	for _, p := range plugins {
		state := p.State.String()
		if p.LastError != "" {
			state += " (" + p.LastError + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Version, p.Type, state)
	}
	return tw.Flush()
}

func newInfoCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info <id>",
		Short: "Show the manifest, state and settings of a plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withHost(cmd, hostOptions{}, func(ctx context.Context, h *host) error {
				return runInfo(opts, h, args[0])
			})
		},
	}
}

func runInfo(opts *options, h *host, id string) error {
	detail, err := h.system.GetPluginDetail(id)
	if err != nil {
		return fmt.Errorf("%s", fault.Message(err, id, h.cfg.Locale))
	}
	if opts.json {
		return printJSON(opts.out, detail)
	}

	tw := newTable(opts.out)
	row := func(key, value string) { fmt.Fprintf(tw, "%s:\t%s\n", key, orDash(value)) }
	row("ID", detail.ID)
	row("Name", detail.Name)
	row("Version", detail.Version)
	row("API version", detail.APIVersion)
	row("Description", detail.Description)
	author := detail.Author.Name
	if detail.Author.Email != "" {
		author += " <" + detail.Author.Email + ">"
	}
	row("Author", author)
	row("License", detail.License)
	row("Type", string(detail.Type))
	row("Runtime", detail.Runtime)
	row("State", detail.State.String())
	row("Last error", detail.LastError)
	row("Permissions", joinPermissions(detail.Permissions))
	row("Homepage", detail.Homepage)
	row("Directory", detail.Dir)
	row("Installed", formatTime(detail.InstalledAt))
	row("Updated", formatTime(detail.UpdatedAt))
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(detail.Contributions) > 0 {
		fmt.Fprintln(opts.out, "\nContributions:")
		tw = newTable(opts.out)
		for _, c := range detail.Contributions {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", c.Kind, c.ID, orDash(c.Name), registration(c.Declared, c.Registered))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(detail.Settings) > 0 {
		fmt.Fprintln(opts.out, "\nSettings:")
		keys := make([]string, 0, len(detail.Settings))
		for k := range detail.Settings {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		tw = newTable(opts.out)
		for _, k := range keys {
			fmt.Fprintf(tw, "  %s\t%s\n", k, jsonValue(detail.Settings[k]))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func newInstallCommand(opts *options) *cobra.Command {
	var upgrade bool
	cmd := &cobra.Command{
		Use:   "install <source>",
		Short: "Install a plugin from a directory or archive",
		Long: `Install a plugin from a directory, .zip, .tar.gz or .tar.xz package.

The manifest is validated before anything is copied into the plugins
folder. Installing an id that already exists fails unless --upgrade is
given and the new version is higher.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withHost(cmd, hostOptions{}, func(ctx context.Context, h *host) error {
				return runInstall(ctx, opts, h, args[0], upgrade)
			})
		},
	}
	cmd.Flags().BoolVarP(&upgrade, "upgrade", "u", false, "replace an installed older version")
	return cmd
}

func runInstall(ctx context.Context, opts *options, h *host, source string, upgrade bool) error {
	abs, err := filepath.Abs(source)
	if err != nil {
		return err
	}
	return opts.printResult(h.system.InstallPluginWith(ctx, abs, plugin.InstallOptions{Upgrade: upgrade}))
}

func newUninstallCommand(opts *options) *cobra.Command {
	var clearSettings bool
	cmd := &cobra.Command{
		Use:     "uninstall <id>",
		Aliases: []string{"remove", "rm"},
		Short:   "Remove an installed plugin",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var uopts plugin.UninstallOptions
			if cmd.Flags().Changed("clear-settings") {
				uopts.ClearSettings = &clearSettings
			}
			return opts.withHost(cmd, hostOptions{}, func(ctx context.Context, h *host) error {
				return opts.printResult(h.system.UninstallPluginWith(ctx, args[0], uopts))
			})
		},
	}
	cmd.Flags().BoolVar(&clearSettings, "clear-settings", false, "also drop stored settings and plugin storage (default from policy)")
	return cmd
}

func newEnableCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "enable <id>",
		Short: "Run a plugin's initialize entry point and publish its contributions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withHost(cmd, hostOptions{}, func(ctx context.Context, h *host) error {
				return opts.printResult(h.system.EnablePlugin(ctx, args[0]))
			})
		},
	}
}

func newDisableCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <id>",
		Short: "Stop a plugin and withdraw its contributions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withHost(cmd, hostOptions{}, func(ctx context.Context, h *host) error {
				return opts.printResult(h.system.DisablePlugin(ctx, args[0]))
			})
		},
	}
}

func joinPermissions(perms []security.Permission) string {
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

func registration(declared, registered bool) string {
	switch {
	case declared && registered:
		return "active"
	case declared:
		return "declared"
	case registered:
		return "undeclared"
	default:
		return "-"
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(time.RFC3339)
}
