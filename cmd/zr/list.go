package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/zr-run/zr/internal/config"
	"github.com/zr-run/zr/internal/zrerrors"
)

func newListCmd() *cobra.Command {
	var tags []string
	var tree bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Enumerate configured tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			names := make([]string, 0, len(cfg.Tasks))
			for n, t := range cfg.Tasks {
				if len(tags) > 0 && !hasAnyTag(t, tags) {
					continue
				}
				names = append(names, n)
			}
			sort.Strings(names)

			switch flags.format {
			case "", "text":
				return renderListTable(cfg, names, tree)
			case "json":
				return renderListJSON(cfg, names)
			default:
				return zrerrors.New(zrerrors.KindUnsupportedFmt, "unsupported --format %q", flags.format)
			}
		},
	}

	cmd.Flags().StringSliceVar(&tags, "tags", nil, "only show tasks carrying one of these tags")
	cmd.Flags().BoolVar(&tree, "tree", false, "accepted; the listing is the same with or without it")
	return cmd
}

func hasAnyTag(t *config.Task, tags []string) bool {
	for _, tag := range tags {
		if _, ok := t.Tags[tag]; ok {
			return true
		}
	}
	return false
}

func renderListTable(cfg *config.Config, names []string, tree bool) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"task", "description", "deps", "cache"})
	for _, n := range names {
		t := cfg.Tasks[n]
		deps := strings.Join(append(append([]string{}, t.Deps...), t.DepsSerial...), ", ")
		cache := "no"
		if t.Cache != nil {
			cache = "yes"
		}
		tw.AppendRow(table.Row{n, t.Description, deps, cache})
	}
	tw.Render()
	return nil
}

func renderListJSON(cfg *config.Config, names []string) error {
	fmt.Fprint(os.Stdout, "[")
	for i, n := range names {
		t := cfg.Tasks[n]
		if i > 0 {
			fmt.Fprint(os.Stdout, ",")
		}
		fmt.Fprintf(os.Stdout, "{\"name\":%q,\"description\":%q,\"cacheable\":%t}", t.Name, t.Description, t.Cache != nil)
	}
	fmt.Fprintln(os.Stdout, "]")
	return nil
}
