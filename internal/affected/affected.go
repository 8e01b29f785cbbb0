// Package affected implements the Affected-Set Analyzer (spec §4.4):
// diffing the working tree against a base revision and mapping changed
// paths to workspace members, optionally closing over transitive
// dependents.
package affected

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/zr-run/zr/internal/config"
	"github.com/zr-run/zr/internal/zrerrors"
)

// Options configures Compute (spec §4.4).
type Options struct {
	BaseRevision      string // default "HEAD"
	ExcludeSelf       bool
	IncludeDependents bool
}

// ChangedPaths returns the set of paths that differ between base and the
// working tree, using go-git's native diff instead of shelling to
// `git diff --name-only` (spec §4.4, adapted per SPEC_FULL domain wiring).
// A non-git root surfaces zrerrors.KindNoRepo; callers decide whether to
// demote that to a warning and fall back to "all members" (spec §7).
func ChangedPaths(repoRoot, baseRevision string) ([]string, error) {
	repo, err := git.PlainOpenWithOptions(repoRoot, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, zrerrors.Wrap(zrerrors.KindNoRepo, err, "open git repo at %s", repoRoot)
	}

	if baseRevision == "" {
		baseRevision = "HEAD"
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(baseRevision))
	if err != nil {
		return nil, zrerrors.Wrap(zrerrors.KindNoRepo, err, "resolve revision %s", baseRevision)
	}
	baseCommit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, zrerrors.Wrap(zrerrors.KindNoRepo, err, "load commit %s", hash)
	}
	baseTree, err := baseCommit.Tree()
	if err != nil {
		return nil, zrerrors.Wrap(zrerrors.KindNoRepo, err, "load tree for %s", hash)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, zrerrors.Wrap(zrerrors.KindNoRepo, err, "load worktree")
	}
	status, err := wt.Status()
	if err != nil {
		return nil, zrerrors.Wrap(zrerrors.KindNoRepo, err, "worktree status")
	}

	headRef, err := repo.Head()
	changed := map[string]struct{}{}
	if err == nil {
		headCommit, err := repo.CommitObject(headRef.Hash())
		if err == nil {
			headTree, err := headCommit.Tree()
			if err == nil {
				changes, err := object.DiffTree(baseTree, headTree)
				if err == nil {
					for _, c := range changes {
						if c.From.Name != "" {
							changed[c.From.Name] = struct{}{}
						}
						if c.To.Name != "" {
							changed[c.To.Name] = struct{}{}
						}
					}
				}
			}
		}
	}

	for path, st := range status {
		if st.Worktree != git.Unmodified || st.Staging != git.Unmodified {
			changed[path] = struct{}{}
		}
	}

	out := make([]string, 0, len(changed))
	for p := range changed {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// MapToMembers computes the directly-affected member set: the union of
// workspace members whose directory is the deepest path-prefix match for
// any changed path (spec §4.4).
func MapToMembers(ws *config.Workspace, changedPaths []string, repoRoot string) map[string]struct{} {
	direct := map[string]struct{}{}
	for _, p := range changedPaths {
		abs := filepath.Join(repoRoot, p)
		best := ""
		bestLen := -1
		for _, m := range ws.Members {
			rel, err := filepath.Rel(m.Path, abs)
			if err != nil || strings.HasPrefix(rel, "..") {
				continue
			}
			if len(m.Path) > bestLen {
				best = m.Name
				bestLen = len(m.Path)
			}
		}
		if best != "" {
			direct[best] = struct{}{}
		}
	}
	return direct
}

// Close closes a directly-affected member set over the workspace's
// declared dependency edges to add transitive dependents (spec §4.4
// "--include-dependents"): member A is added if it depends on any member
// already in the set.
func Close(ws *config.Workspace, direct map[string]struct{}) map[string]struct{} {
	result := map[string]struct{}{}
	for k := range direct {
		result[k] = struct{}{}
	}
	depends := map[string][]string{}
	for _, m := range ws.Members {
		depends[m.Name] = m.DependsOn
	}

	changed := true
	for changed {
		changed = false
		for _, m := range ws.Members {
			if _, ok := result[m.Name]; ok {
				continue
			}
			for _, dep := range m.DependsOn {
				if _, ok := result[dep]; ok {
					result[m.Name] = struct{}{}
					changed = true
					break
				}
			}
		}
	}
	return result
}

// Compute runs the full Affected-Set Analyzer pipeline (spec §4.4).
func Compute(ws *config.Workspace, repoRoot string, opts Options) (map[string]struct{}, error) {
	changedPaths, err := ChangedPaths(repoRoot, opts.BaseRevision)
	if err != nil {
		return nil, err
	}
	direct := MapToMembers(ws, changedPaths, repoRoot)

	result := direct
	if opts.IncludeDependents {
		result = Close(ws, direct)
	}
	if opts.ExcludeSelf {
		for k := range direct {
			if !opts.IncludeDependents {
				delete(result, k)
			}
		}
		if opts.IncludeDependents {
			closedOnly := map[string]struct{}{}
			for k := range result {
				if _, wasDirect := direct[k]; !wasDirect {
					closedOnly[k] = struct{}{}
				}
			}
			result = closedOnly
		}
	}
	return result, nil
}
