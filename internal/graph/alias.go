package graph

import (
	"fmt"
	"strings"

	"github.com/zr-run/zr/internal/config"
	"github.com/zr-run/zr/internal/zrerrors"
)

// MaxAliasDepth bounds alias expansion recursion (spec §4.3); exceeding it,
// or re-visiting a name already on the current chain, reports CyclicAlias.
const MaxAliasDepth = 16

// ExpandAliases resolves each target name to its concrete task-name tail,
// recursively expanding aliases up to MaxAliasDepth (spec §4.3). Names that
// are not aliases pass through unchanged. List-valued aliases expand to
// multiple targets.
func ExpandAliases(cfg *config.Config, targets []string) ([]string, error) {
	var out []string
	for _, t := range targets {
		expanded, err := expandOne(cfg, t, nil, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

func expandOne(cfg *config.Config, name string, chain []string, depth int) ([]string, error) {
	a, ok := cfg.Aliases[name]
	if !ok {
		return []string{name}, nil
	}
	if depth >= MaxAliasDepth {
		return nil, zrerrors.New(zrerrors.KindCyclicAlias, "alias expansion exceeded depth %d starting at %q", MaxAliasDepth, name)
	}
	for _, c := range chain {
		if c == name {
			return nil, zrerrors.New(zrerrors.KindCyclicAlias, "alias cycle: %s -> %s", strings.Join(chain, " -> "), name)
		}
	}
	chain = append(chain, name)

	var out []string
	for _, v := range a.Values {
		fields := strings.Fields(v)
		head := v
		if len(fields) > 0 {
			head = fields[0]
		}
		if _, isAlias := cfg.Aliases[head]; isAlias && head == v {
			expanded, err := expandOne(cfg, head, chain, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, expanded...)
			continue
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("alias %q expands to nothing", name)
	}
	return out, nil
}
