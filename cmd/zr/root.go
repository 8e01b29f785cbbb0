// Command zr is the Boundary Adapter of spec §4.8: a flat cobra verb tree
// that parses global flags before the verb, resolves config/profile, and
// dispatches to the Graph Builder and Scheduler.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zr-run/zr/internal/config"
	"github.com/zr-run/zr/internal/zrerrors"
	"github.com/zr-run/zr/internal/zrlog"
)

// version is overridden at build time via -ldflags.
var version = "dev"

// globalFlags mirrors spec §6's global flag set, parsed before the verb.
// Last-occurrence-wins is pflag's native behavior for repeated string/int
// flags, so no extra merge logic is needed for that guarantee.
type globalFlags struct {
	configPath string
	profile    string
	jobs       int
	format     string
	verbose    bool
	quiet      bool
	noColor    bool
	dryRun     bool
}

var flags globalFlags

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "zr",
		Short:         "A declarative, content-addressed task runner",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			flags.profile = viper.GetString("profile")
			flags.jobs = viper.GetInt("jobs")
			flags.format = viper.GetString("format")
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to zr.toml (default: search upward from cwd)")
	pf.StringVar(&flags.profile, "profile", "", "named environment overlay to apply")
	pf.IntVar(&flags.jobs, "jobs", 0, "max concurrent tasks (0 = CPU count)")
	pf.StringVar(&flags.format, "format", "text", "output format: text|json")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "verbose logging")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "quiet logging")
	pf.BoolVar(&flags.noColor, "no-color", false, "disable ANSI color output")
	pf.BoolVar(&flags.dryRun, "dry-run", false, "print what would run without executing")

	viper.SetEnvPrefix("ZR")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("profile", pf.Lookup("profile"))
	_ = viper.BindPFlag("jobs", pf.Lookup("jobs"))
	_ = viper.BindPFlag("format", pf.Lookup("format"))

	root.AddCommand(
		newRunCmd(),
		newListCmd(),
		newGraphCmd(),
		newHistoryCmd(),
		newAliasCmd(),
		newWorkspaceCmd(),
		newValidateCmd(),
		newInitCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "zr:", err)
		os.Exit(zrerrors.ExitCode(err))
	}
}

// loadConfig applies the §4.1 discovery rule (explicit --config, else
// search upward from cwd) and wraps failures as fatal.
func loadConfig() (*config.Config, error) {
	return config.Load(flags.configPath)
}

// resolveProfile looks up the --profile name in cfg, returning nil (no
// overlay) if the flag is unset.
func resolveProfile(cfg *config.Config) (*config.Profile, error) {
	if flags.profile == "" {
		return nil, nil
	}
	p, ok := cfg.Profiles[flags.profile]
	if !ok {
		return nil, zrerrors.New(zrerrors.KindInvalidConfig, "unknown profile %q", flags.profile)
	}
	return p, nil
}

func stateDir(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.Path), ".zr")
}

func newLogger() *slog.Logger {
	level := zrlog.LevelNormal
	if flags.verbose {
		level = zrlog.LevelVerbose
	}
	if flags.quiet {
		level = zrlog.LevelQuiet
	}
	logger, _, err := zrlog.New(zrlog.Options{Level: level, NoColor: flags.noColor})
	if err != nil {
		return zrlog.Discard()
	}
	return logger
}

func wantsColor() bool {
	if flags.noColor {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return true
}
