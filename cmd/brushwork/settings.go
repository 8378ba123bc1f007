package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/dshills/brushwork/internal/plugin"
	"github.com/dshills/brushwork/internal/plugin/fault"
)

func newSettingsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and change plugin settings",
	}
	cmd.AddCommand(newSettingsGetCommand(opts), newSettingsSetCommand(opts))
	return cmd
}

func newSettingsGetCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id> [key]",
		Short: "Show a plugin's settings merged over the schema defaults",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := ""
			if len(args) == 2 {
				key = args[1]
			}
			return opts.withHost(cmd, hostOptions{}, func(ctx context.Context, h *host) error {
				return runSettingsGet(opts, h, args[0], key)
			})
		},
	}
}

func runSettingsGet(opts *options, h *host, id, key string) error {
	ps, err := h.system.GetPluginSettings(id)
	if err != nil {
		return fmt.Errorf("%s", fault.Message(err, id, h.cfg.Locale))
	}

	if key != "" {
		value, ok := ps.Values[key]
		if !ok {
			return fmt.Errorf("plugin %s has no setting %q", id, key)
		}
		if opts.json {
			return printJSON(opts.out, value)
		}
		_, err := fmt.Fprintln(opts.out, jsonValue(value))
		return err
	}

	if opts.json {
		return printJSON(opts.out, ps)
	}
	if len(ps.Values) == 0 {
		fmt.Fprintf(opts.out, "%s declares no settings.\n", id)
		return nil
	}
	tw := newTable(opts.out)
	fmt.Fprintln(tw, "KEY\tTYPE\tVALUE\tSOURCE")
	for _, row := range settingsRows(ps) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.key, row.typ, jsonValue(row.value), row.source)
	}
	return tw.Flush()
}

type settingsRow struct {
	key    string
	typ    string
	value  any
	source string
}

// settingsRows lists declared and stored keys, sorted. Stored keys the
// schema does not declare have type "-".
func settingsRows(ps plugin.PluginSettings) []settingsRow {
	keys := ps.Schema.Keys()
	for k := range ps.Stored {
		if _, declared := ps.Schema[k]; !declared {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	rows := make([]settingsRow, 0, len(keys))
	for _, k := range keys {
		row := settingsRow{key: k, typ: "-", value: ps.Values[k], source: "default"}
		if f, declared := ps.Schema[k]; declared {
			row.typ = string(f.Type)
		}
		if v, stored := ps.Stored[k]; stored {
			row.value = v
			row.source = "stored"
		}
		rows = append(rows, row)
	}
	return rows
}

func newSettingsSetCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "set <id> <key> <value>",
		Short: "Validate and store one setting",
		Long: `Validate and store one setting.

The value is parsed as JSON when it is valid JSON (42, true, "text") and
taken as a plain string otherwise, so colors can be written as #ff8800.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withHost(cmd, hostOptions{}, func(ctx context.Context, h *host) error {
				return opts.printResult(h.system.SetPluginSetting(args[0], args[1], parseValue(args[2])))
			})
		},
	}
}

// parseValue decodes a command line setting value.
func parseValue(raw string) any {
	if gjson.Valid(raw) {
		return gjson.Parse(raw).Value()
	}
	return raw
}
