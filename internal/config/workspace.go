package config

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/zr-run/zr/internal/zrerrors"
)

// loadWorkspace resolves the [workspace] section's member patterns against
// the filesystem (spec §4.1): literal paths first, then glob expansion over
// `*` and `**` segments; a non-matching glob is silently empty.
func loadWorkspace(cfg *Config, raw map[string]any, dir string) error {
	section, ok := asTable(raw["workspace"])
	if !ok {
		return nil
	}
	patterns := asStringSlice(section["members"])
	ws := &Workspace{MemberPatterns: patterns}

	seen := map[string]struct{}{}
	var literals, globs []string
	for _, p := range patterns {
		if containsGlobMeta(p) {
			globs = append(globs, p)
		} else {
			literals = append(literals, p)
		}
	}

	for _, lit := range literals {
		abs := filepath.Join(dir, lit)
		if st, err := os.Stat(abs); err == nil && st.IsDir() {
			addMember(ws, abs, seen)
		}
	}

	fsys := os.DirFS(dir)
	for _, g := range globs {
		rel := filepath.ToSlash(g)
		matches, err := doublestar.Glob(fsys, rel)
		if err != nil {
			return zrerrors.Wrap(zrerrors.KindInvalidConfig, err, "bad workspace glob %q", g)
		}
		sort.Strings(matches)
		for _, m := range matches {
			abs := filepath.Join(dir, m)
			if st, err := os.Stat(abs); err == nil && st.IsDir() {
				addMember(ws, abs, seen)
			}
		}
	}

	sort.Slice(ws.Members, func(i, j int) bool { return ws.Members[i].Path < ws.Members[j].Path })
	cfg.Workspace = ws
	return nil
}

func addMember(ws *Workspace, abs string, seen map[string]struct{}) {
	if _, ok := seen[abs]; ok {
		return
	}
	seen[abs] = struct{}{}
	ws.Members = append(ws.Members, WorkspaceMember{
		Name: filepath.Base(abs),
		Path: abs,
	})
}

func containsGlobMeta(s string) bool {
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '{', '}':
			return true
		}
	}
	return false
}

// LoadMember loads a workspace member's own zr.toml, if present. A member
// without a config file contributes no tasks.
func LoadMember(m WorkspaceMember) (*Config, error) {
	path := filepath.Join(m.Path, DefaultFileName)
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}
	return Load(path)
}
