package config

import (
	"sort"

	"github.com/zr-run/zr/internal/zrerrors"
)

// validate checks the invariants that do not require matrix expansion or
// graph construction (spec I1 for unqualified names, name syntax). Full I1/I2 (post-expansion) checking is the Graph
// Builder's job (internal/graph).
func validate(cfg *Config) error {
	names := sortedTaskNames(cfg)
	known := make(map[string]struct{}, len(names))
	for _, n := range names {
		known[n] = struct{}{}
	}

	for _, n := range names {
		t := cfg.Tasks[n]
		if !validName(t.Name) {
			return zrerrors.InvalidConfig(zrerrors.SubBadName, "task name %q is invalid", t.Name)
		}
		for _, d := range append(append([]string{}, t.Deps...), t.DepsSerial...) {
			// Matrix-suffixed deps (e.g. "build/os=linux") are resolved
			// after expansion; only bare names are checked here.
			if _, ok := known[d]; !ok && !isMatrixBase(d, known) {
				return zrerrors.InvalidConfig(zrerrors.SubUnknownTask, "task %q depends on unknown task %q", n, d)
			}
		}
	}
	return nil
}

func isMatrixBase(dep string, known map[string]struct{}) bool {
	for base := range known {
		if len(dep) > len(base) && dep[:len(base)] == base && dep[len(base)] == '/' {
			return true
		}
	}
	return false
}

func sortedTaskNames(cfg *Config) []string {
	names := make([]string, 0, len(cfg.Tasks))
	for n := range cfg.Tasks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
