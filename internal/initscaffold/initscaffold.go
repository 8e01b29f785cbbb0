// Package initscaffold implements `zr init --detect` (SPEC_FULL.md
// "Supplemented features"): scanning a directory for an existing build
// tool's recipe file and emitting a starter zr.toml with one [tasks.<name>]
// per discovered recipe.
package initscaffold

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/zr-run/zr/internal/zrerrors"
)

// Detected is one recipe found in an existing build file.
type Detected struct {
	Name string
	Cmd  string
}

// Detect scans dir for a Makefile, Justfile, or Taskfile.yml (in that
// order of preference) and returns the recipes found in the first one
// present. An empty, non-error result means none were found.
func Detect(dir string) ([]Detected, string, error) {
	candidates := []struct {
		file   string
		parser func(string) ([]Detected, error)
	}{
		{"Makefile", parseMakefile},
		{"Justfile", parseJustfile},
		{"Taskfile.yml", parseTaskfile},
	}
	for _, c := range candidates {
		path := filepath.Join(dir, c.file)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		recipes, err := c.parser(path)
		if err != nil {
			return nil, "", err
		}
		return recipes, c.file, nil
	}
	return nil, "", nil
}

var makeTargetRe = regexp.MustCompile(`^([A-Za-z0-9_.-]+)\s*:([^=]|$)`)

// parseMakefile extracts top-level target names and their recipe lines
// (tab-indented lines following the target), good enough to seed a zr.toml
// a human will refine, not a full GNU Make parser.
func parseMakefile(path string) ([]Detected, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, zrerrors.Wrap(zrerrors.KindIO, err, "open %s", path)
	}
	defer f.Close()

	var out []Detected
	var current *Detected
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if m := makeTargetRe.FindStringSubmatch(line); m != nil && !strings.HasPrefix(line, "\t") {
			if current != nil {
				out = append(out, *current)
			}
			current = &Detected{Name: m[1]}
			continue
		}
		if current != nil && strings.HasPrefix(line, "\t") {
			cmd := strings.TrimSpace(strings.TrimPrefix(line, "\t"))
			if current.Cmd == "" {
				current.Cmd = cmd
			} else {
				current.Cmd += " && " + cmd
			}
		}
	}
	if current != nil {
		out = append(out, *current)
	}
	return dedupeDetected(out), scanner.Err()
}

var justRecipeRe = regexp.MustCompile(`^([A-Za-z0-9_-]+)\s*:`)

func parseJustfile(path string) ([]Detected, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, zrerrors.Wrap(zrerrors.KindIO, err, "open %s", path)
	}
	defer f.Close()

	var out []Detected
	var current *Detected
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "#") || strings.TrimSpace(line) == "" {
			continue
		}
		if m := justRecipeRe.FindStringSubmatch(line); m != nil && !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			if current != nil {
				out = append(out, *current)
			}
			current = &Detected{Name: m[1]}
			continue
		}
		if current != nil && (strings.HasPrefix(line, "  ") || strings.HasPrefix(line, "\t")) {
			cmd := strings.TrimSpace(line)
			if current.Cmd == "" {
				current.Cmd = cmd
			} else {
				current.Cmd += " && " + cmd
			}
		}
	}
	if current != nil {
		out = append(out, *current)
	}
	return dedupeDetected(out), scanner.Err()
}

var taskNameRe = regexp.MustCompile(`^  ([A-Za-z0-9_:-]+):\s*$`)
var taskCmdRe = regexp.MustCompile(`^\s*cmds:\s*$`)
var taskCmdItemRe = regexp.MustCompile(`^\s*-\s*(.+)$`)

// parseTaskfile extracts top-level task names and their first "cmds:" entry
// from a go-task Taskfile.yml, read line-by-line rather than pulling in a
// YAML dependency for a best-effort scaffolding helper.
func parseTaskfile(path string) ([]Detected, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, zrerrors.Wrap(zrerrors.KindIO, err, "open %s", path)
	}
	defer f.Close()

	var out []Detected
	var current *Detected
	inCmds := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if m := taskNameRe.FindStringSubmatch(line); m != nil {
			if current != nil {
				out = append(out, *current)
			}
			current = &Detected{Name: m[1]}
			inCmds = false
			continue
		}
		if current == nil {
			continue
		}
		if taskCmdRe.MatchString(line) {
			inCmds = true
			continue
		}
		if inCmds {
			if m := taskCmdItemRe.FindStringSubmatch(line); m != nil {
				if current.Cmd == "" {
					current.Cmd = strings.Trim(m[1], `"'`)
				}
			} else if strings.TrimSpace(line) != "" && !strings.HasPrefix(line, "    ") {
				inCmds = false
			}
		}
	}
	if current != nil {
		out = append(out, *current)
	}
	return dedupeDetected(out), scanner.Err()
}

func dedupeDetected(in []Detected) []Detected {
	seen := map[string]struct{}{}
	var out []Detected
	for _, d := range in {
		if d.Name == "" || d.Cmd == "" {
			continue
		}
		if _, ok := seen[d.Name]; ok {
			continue
		}
		seen[d.Name] = struct{}{}
		out = append(out, d)
	}
	return out
}

// Render emits a minimal zr.toml body for the detected recipes, sorted by
// name for deterministic output.
func Render(recipes []Detected) string {
	sort.Slice(recipes, func(i, j int) bool { return recipes[i].Name < recipes[j].Name })
	var sb strings.Builder
	sb.WriteString("# Generated by `zr init --detect`.\n\n")
	for _, r := range recipes {
		fmt.Fprintf(&sb, "[tasks.%s]\n", r.Name)
		fmt.Fprintf(&sb, "cmd = %q\n\n", r.Cmd)
	}
	return sb.String()
}
