// Package shellexec spawns a task's resolved command through a shell
// interpreter (spec §4.6.2 step 4: "Start the child process through a
// shell with the merged environment and resolved cwd"). It uses mvdan.cc/sh
// to interpret POSIX shell syntax in pure Go rather than shelling out to
// /bin/sh, so the same command string behaves identically on linux, darwin,
// and windows (spec §4.2 platform fact includes "windows").
package shellexec

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// DefaultGracePeriod is the delay between a termination signal and a
// forceful kill (spec §4.6.2 step 5, §5 "a grace period (e.g. 5 seconds)").
const DefaultGracePeriod = 5 * time.Second

// Spec describes one command spawn.
type Spec struct {
	Cmd        string
	Dir        string
	Env        []string // "KEY=VALUE"
	Stdout     io.Writer
	Stderr     io.Writer
	GracePeriod time.Duration // defaults to DefaultGracePeriod
}

// Run parses Cmd as POSIX shell source and interprets it in-process,
// returning the process-equivalent exit code and any interpreter error
// (distinct from a nonzero exit: a parse error comes back as err with
// exit code -1, not as an exit status).
func Run(ctx context.Context, spec Spec) (exitCode int, err error) {
	file, err := syntax.NewParser().Parse(strings.NewReader(spec.Cmd), "")
	if err != nil {
		return -1, fmt.Errorf("parse command: %w", err)
	}

	grace := spec.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	env := expand.ListEnviron(spec.Env...)
	runner, err := interp.New(
		interp.Dir(spec.Dir),
		interp.Env(env),
		interp.StdIO(os.Stdin, spec.Stdout, spec.Stderr),
		// On ctx cancellation (timeout or scheduler-wide cancellation),
		// send a termination signal to the external command and escalate
		// to SIGKILL after `grace` if it hasn't exited (spec §4.6.2 step 5).
		interp.ExecHandler(interp.DefaultExecHandler(grace)),
	)
	if err != nil {
		return -1, fmt.Errorf("create shell interpreter: %w", err)
	}

	runErr := runner.Run(ctx, file)
	if runErr == nil {
		return 0, nil
	}
	var status interp.ExitStatus
	if as, ok := runErr.(interp.ExitStatus); ok {
		status = as
		return int(status), nil
	}
	if ctx.Err() != nil {
		return -1, ctx.Err()
	}
	return -1, runErr
}
