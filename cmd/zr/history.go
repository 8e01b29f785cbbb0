package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/zr-run/zr/internal/history"
	"github.com/zr-run/zr/internal/zrerrors"
)

func newHistoryCmd() *cobra.Command {
	var limit int
	var since string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past task runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := history.Open(filepath.Join(stateDir(cfg), "history.jsonl"))

			var records []history.Record
			if since != "" {
				t, err := time.Parse(time.RFC3339, since)
				if err != nil {
					return zrerrors.Wrap(zrerrors.KindInvalidConfig, err, "bad --since value %q", since)
				}
				records, err = log.Since(t)
				if err != nil {
					return zrerrors.Wrap(zrerrors.KindIO, err, "read history")
				}
			} else {
				records, err = log.Tail(limit)
				if err != nil {
					return zrerrors.Wrap(zrerrors.KindIO, err, "read history")
				}
			}
			history.SortByStart(records)

			switch flags.format {
			case "", "text":
				return renderHistoryTable(records)
			case "json":
				return renderHistoryJSON(records)
			default:
				return zrerrors.New(zrerrors.KindUnsupportedFmt, "unsupported --format %q", flags.format)
			}
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of records to show")
	cmd.Flags().StringVar(&since, "since", "", "only show records at or after this RFC3339 timestamp")
	return cmd
}

func renderHistoryTable(records []history.Record) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"task", "status", "attempt", "exit", "cache", "start"})
	for _, r := range records {
		tw.AppendRow(table.Row{r.TaskName, r.Status, r.Attempt, r.ExitCode, r.CacheHit, r.Start.Format(time.RFC3339)})
	}
	tw.Render()
	return nil
}

func renderHistoryJSON(records []history.Record) error {
	fmt.Fprint(os.Stdout, "[")
	for i, r := range records {
		if i > 0 {
			fmt.Fprint(os.Stdout, ",")
		}
		fmt.Fprintf(os.Stdout, "{\"task\":%q,\"status\":%q,\"attempt\":%d,\"exit_code\":%d,\"cache_hit\":%t,\"start\":%q}",
			r.TaskName, r.Status, r.Attempt, r.ExitCode, r.CacheHit, r.Start.Format(time.RFC3339))
	}
	fmt.Fprintln(os.Stdout, "]")
	return nil
}
