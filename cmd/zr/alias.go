package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zr-run/zr/internal/alias"
	"github.com/zr-run/zr/internal/zrerrors"
)

func newAliasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alias",
		Short: "Manage the per-user alias store",
	}
	cmd.AddCommand(newAliasAddCmd(), newAliasRemoveCmd(), newAliasShowCmd(), newAliasListCmd())
	return cmd
}

func newAliasAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "add <name> <value>...",
		Aliases: []string{"set"},
		Short:   "Add or overwrite an alias",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := alias.Open()
			if err != nil {
				return err
			}
			return store.Add(args[0], args[1:])
		},
	}
}

func newAliasRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm", "delete"},
		Short:   "Remove an alias",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := alias.Open()
			if err != nil {
				return err
			}
			return store.Remove(args[0])
		},
	}
}

func newAliasShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "show <name>",
		Aliases: []string{"get"},
		Short:   "Show an alias's expansion",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := alias.Open()
			if err != nil {
				return err
			}
			values, ok, err := store.Show(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return zrerrors.New(zrerrors.KindInvalidConfig, "no such alias %q", args[0])
			}
			fmt.Fprintln(os.Stdout, strings.Join(values, " "))
			return nil
		},
	}
}

func newAliasListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all user-level aliases",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := alias.Open()
			if err != nil {
				return err
			}
			all, err := store.List()
			if err != nil {
				return err
			}
			names := make([]string, 0, len(all))
			for n := range all {
				names = append(names, n)
			}
			sort.Strings(names)
			for _, n := range names {
				fmt.Fprintf(os.Stdout, "%s -> %s\n", n, strings.Join(all[n], " "))
			}
			return nil
		},
	}
}
