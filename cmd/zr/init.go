package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zr-run/zr/internal/initscaffold"
	"github.com/zr-run/zr/internal/zrerrors"
)

func newInitCmd() *cobra.Command {
	var detect, fromMake, fromJust, fromTask bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a new zr.toml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat("zr.toml"); err == nil {
				return zrerrors.New(zrerrors.KindIO, "zr.toml already exists in this directory")
			}

			if !detect && !fromMake && !fromJust && !fromTask {
				return os.WriteFile("zr.toml", []byte(initscaffold.Render(nil)), 0o644)
			}

			recipes, source, err := initscaffold.Detect(".")
			if err != nil {
				return err
			}
			if source == "" {
				return zrerrors.New(zrerrors.KindIO, "no Makefile, Justfile, or Taskfile.yml found to detect from")
			}
			if err := os.WriteFile("zr.toml", []byte(initscaffold.Render(recipes)), 0o644); err != nil {
				return zrerrors.Wrap(zrerrors.KindIO, err, "write zr.toml")
			}
			fmt.Fprintf(os.Stdout, "wrote zr.toml with %d task(s) detected from %s\n", len(recipes), source)
			return nil
		},
	}

	cmd.Flags().BoolVar(&detect, "detect", false, "auto-detect Makefile/Justfile/Taskfile.yml in cwd")
	cmd.Flags().BoolVar(&fromMake, "from-make", false, "same as --detect (first of Makefile, Justfile, Taskfile.yml found)")
	cmd.Flags().BoolVar(&fromJust, "from-just", false, "same as --detect (first of Makefile, Justfile, Taskfile.yml found)")
	cmd.Flags().BoolVar(&fromTask, "from-task", false, "same as --detect (first of Makefile, Justfile, Taskfile.yml found)")
	return cmd
}
