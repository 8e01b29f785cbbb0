package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/zr-run/zr/internal/affected"
	"github.com/zr-run/zr/internal/cache"
	"github.com/zr-run/zr/internal/config"
	"github.com/zr-run/zr/internal/graph"
	"github.com/zr-run/zr/internal/history"
	"github.com/zr-run/zr/internal/scheduler"
	"github.com/zr-run/zr/internal/zrerrors"
)

func newWorkspaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Fan out across workspace members",
	}
	cmd.AddCommand(newWorkspaceListCmd(), newWorkspaceRunCmd(), newWorkspaceSyncCmd())
	return cmd
}

func newWorkspaceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List workspace members",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Workspace == nil {
				return nil
			}
			for _, m := range cfg.Workspace.Members {
				fmt.Fprintf(os.Stdout, "%s\t%s\n", m.Name, m.Path)
			}
			return nil
		},
	}
}

func newWorkspaceRunCmd() *cobra.Command {
	var parallel int
	var affectedRef string

	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run a task in every workspace member that defines it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAcrossWorkspace(args[0], parallel, affectedRef)
		},
	}
	cmd.Flags().IntVar(&parallel, "parallel", 1, "number of members to run concurrently")
	cmd.Flags().StringVar(&affectedRef, "affected", "", "limit to members affected since this git revision")
	return cmd
}

func newWorkspaceSyncCmd() *cobra.Command {
	var parallel int
	cmd := &cobra.Command{
		Use:   "sync",
		Short: `Run each member's "sync" task, if it defines one`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAcrossWorkspace("sync", parallel, "")
		},
	}
	cmd.Flags().IntVar(&parallel, "parallel", 1, "number of members to run concurrently")
	return cmd
}

// runAcrossWorkspace loads every workspace member's own zr.toml and, for
// each member that defines taskName, builds and runs that member's graph
// independently (spec §4.1 workspace members, SPEC_FULL.md fan-out).
func runAcrossWorkspace(taskName string, parallel int, affectedRef string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Workspace == nil || len(cfg.Workspace.Members) == 0 {
		return zrerrors.New(zrerrors.KindInvalidConfig, "no [workspace] members configured")
	}

	members := cfg.Workspace.Members
	if affectedRef != "" {
		repoRoot := filepath.Dir(cfg.Path)
		affectedSet, err := affected.Compute(cfg.Workspace, repoRoot, affected.Options{BaseRevision: affectedRef})
		if err != nil {
			if !zrerrors.Is(err, zrerrors.KindNoRepo) {
				return err
			}
		} else {
			var filtered []config.WorkspaceMember
			for _, m := range members {
				if _, ok := affectedSet[m.Name]; ok {
					filtered = append(filtered, m)
				}
			}
			members = filtered
		}
	}

	if parallel <= 0 {
		parallel = 1
	}
	sem := make(chan struct{}, parallel)
	var wg sync.WaitGroup
	results := make([]error, len(members))

	for i, m := range members {
		memberCfg, err := config.LoadMember(m)
		if err != nil || memberCfg == nil {
			continue
		}
		if _, ok := memberCfg.Tasks[taskName]; !ok {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, memberCfg *config.Config, memberName string) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = runOneMember(memberCfg, memberName, taskName)
		}(i, memberCfg, m.Name)
	}
	wg.Wait()

	failed := false
	for i, err := range results {
		if err != nil {
			failed = true
			fmt.Fprintf(os.Stderr, "zr: workspace member %s: %v\n", members[i].Name, err)
		}
	}
	if failed {
		return zrerrors.New(zrerrors.KindTaskFailed, "one or more workspace members failed")
	}
	return nil
}

func runOneMember(cfg *config.Config, memberName, taskName string) error {
	g, err := graph.Build(cfg, []string{taskName})
	if err != nil {
		return err
	}

	dir := stateDir(cfg)
	cacheStore, err := cache.Open(filepath.Join(dir, "cache"))
	if err != nil {
		return err
	}
	historyLog := history.Open(filepath.Join(dir, "history.jsonl"))

	formatter, err := newFormatter()
	if err != nil {
		return err
	}

	sched, err := scheduler.New(g, scheduler.Options{
		Jobs:      flags.jobs,
		DryRun:    flags.dryRun,
		Cache:     cacheStore,
		History:   historyLog,
		Formatter: formatter,
	})
	if err != nil {
		return err
	}

	result, err := sched.Run(context.Background())
	if err != nil {
		return err
	}
	if !result.Success {
		return zrerrors.New(zrerrors.KindTaskFailed, "member %s: task %s failed", memberName, taskName)
	}
	return nil
}

