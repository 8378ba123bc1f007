package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/brushwork/internal/plugin/api"
	"github.com/dshills/brushwork/internal/plugin/contrib"
)

func newContributionsCommand(opts *options) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "contributions",
		Short: "List the filters, brushes, tools and panels of enabled plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withHost(cmd, hostOptions{}, func(ctx context.Context, h *host) error {
				return runContributions(opts, h, kind)
			})
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "only show one kind (filter, brush, tool, panel)")
	return cmd
}

func runContributions(opts *options, h *host, kindFilter string) error {
	grouped := h.system.GetPluginContributions()
	kinds := api.Kinds()
	if kindFilter != "" {
		k, err := api.ParseKind(kindFilter)
		if err != nil {
			return err
		}
		kinds = []api.Kind{k}
		grouped = map[string][]contrib.Contribution{k.Plural(): grouped[k.Plural()]}
	}

	if opts.json {
		return printJSON(opts.out, grouped)
	}
	tw := newTable(opts.out)
	fmt.Fprintln(tw, "KIND\tID\tNAME\tPLUGIN\tCATEGORY")
	rows := 0
	for _, k := range kinds {
		for _, c := range grouped[k.Plural()] {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", k, c.ID, orDash(c.Name), c.Owner, orDash(c.Category))
			rows++
		}
	}
	if rows == 0 {
		fmt.Fprintln(opts.out, "No contributions.")
		return nil
	}
	return tw.Flush()
}
