package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zr-run/zr/internal/graph"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Typecheck the config and graph without running anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			targets := allTaskNames(cfg)
			if _, err := graph.Build(cfg, targets); err != nil {
				return err
			}

			for _, d := range cfg.Diagnostics {
				fmt.Fprintf(os.Stderr, "warning: %s\n", d.Message)
			}
			fmt.Fprintf(os.Stdout, "%s: %d task(s), %d profile(s), %d alias(es) OK\n",
				cfg.Path, len(cfg.Tasks), len(cfg.Profiles), len(cfg.Aliases))
			return nil
		},
	}
}
