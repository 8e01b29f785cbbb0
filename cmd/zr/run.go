package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zr-run/zr/internal/affected"
	"github.com/zr-run/zr/internal/cache"
	"github.com/zr-run/zr/internal/config"
	"github.com/zr-run/zr/internal/format"
	"github.com/zr-run/zr/internal/graph"
	"github.com/zr-run/zr/internal/history"
	"github.com/zr-run/zr/internal/scheduler"
	"github.com/zr-run/zr/internal/zrerrors"
)

func newRunCmd() *cobra.Command {
	var affectedRef string
	var monitor bool

	cmd := &cobra.Command{
		Use:   "run <task>...",
		Short: "Execute one or more tasks and their dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			profile, err := resolveProfile(cfg)
			if err != nil {
				return err
			}

			targets := args
			if affectedRef != "" {
				targets, err = affectedTargets(cfg, affectedRef, targets)
				if err != nil {
					return err
				}
			}
			if len(targets) == 0 {
				return zrerrors.New(zrerrors.KindInvalidConfig, "run requires at least one task (or a non-empty --affected set)")
			}

			g, err := graph.Build(cfg, targets)
			if err != nil {
				return err
			}

			dir := stateDir(cfg)
			cacheStore, err := cache.Open(filepath.Join(dir, "cache"))
			if err != nil {
				return zrerrors.Wrap(zrerrors.KindIO, err, "open cache store")
			}
			historyLog := history.Open(filepath.Join(dir, "history.jsonl"))

			formatter, err := newFormatter()
			if err != nil {
				return err
			}

			sched, err := scheduler.New(g, scheduler.Options{
				Jobs:      flags.jobs,
				DryRun:    flags.dryRun,
				Profile:   profile,
				Cache:     cacheStore,
				History:   historyLog,
				Formatter: formatter,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go func() {
				<-ctx.Done()
				sched.Cancel()
			}()

			result, err := sched.Run(ctx)
			if err != nil {
				return err
			}

			if tf, ok := formatter.(*format.TextFormatter); ok {
				tf.Summary(result)
			}
			if flags.format == "json" {
				agg, err := format.Aggregate(result)
				if err == nil {
					fmt.Fprintln(os.Stdout, string(agg))
				}
			}

			if !result.Success {
				return zrerrors.New(zrerrors.KindTaskFailed, "one or more tasks failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&affectedRef, "affected", "", "limit targets to those affected since this git revision")
	cmd.Flags().BoolVar(&monitor, "monitor", false, "accepted; has no effect on the run")
	return cmd
}

func newFormatter() (scheduler.Formatter, error) {
	switch flags.format {
	case "", "text":
		return format.NewText(os.Stdout, !wantsColor()), nil
	case "json":
		return format.NewJSON(os.Stdout), nil
	default:
		return nil, zrerrors.New(zrerrors.KindUnsupportedFmt, "unsupported --format %q", flags.format)
	}
}

// affectedTargets resolves --affected <ref> against the configured
// workspace (spec §4.4): a NoRepo error demotes to a warning and falls back
// to the explicitly given targets, or every task if none were given (spec
// §7 "demoted to warning and fallback-to-all for graph/list").
func affectedTargets(cfg *config.Config, ref string, explicit []string) ([]string, error) {
	if cfg.Workspace == nil || len(cfg.Workspace.Members) == 0 {
		return explicit, nil
	}

	repoRoot := filepath.Dir(cfg.Path)
	affectedMembers, err := affected.Compute(cfg.Workspace, repoRoot, affected.Options{BaseRevision: ref})
	if err != nil {
		if zrerrors.Is(err, zrerrors.KindNoRepo) {
			if len(explicit) > 0 {
				return explicit, nil
			}
			return allTaskNames(cfg), nil
		}
		return nil, err
	}

	belongsToAffectedMember := func(name string) bool {
		for member := range affectedMembers {
			if name == member || strings.HasPrefix(name, member+"/") || strings.HasPrefix(name, member+":") {
				return true
			}
		}
		return false
	}

	if len(explicit) > 0 {
		var out []string
		for _, name := range explicit {
			if belongsToAffectedMember(name) {
				out = append(out, name)
			}
		}
		return out, nil
	}

	var out []string
	for name := range cfg.Tasks {
		if belongsToAffectedMember(name) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func allTaskNames(cfg *config.Config) []string {
	out := make([]string, 0, len(cfg.Tasks))
	for name := range cfg.Tasks {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
