package affected

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zr-run/zr/internal/config"
	"github.com/zr-run/zr/internal/zrerrors"
)

func initRepoWithCommit(t *testing.T, files map[string]string) (string, *git.Repository, *git.Worktree) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		_, err = wt.Add(name)
		require.NoError(t, err)
	}
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "zr-test", Email: "zr-test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir, repo, wt
}

func TestChangedPathsNoGitRepoReturnsNoRepo(t *testing.T) {
	dir := t.TempDir()
	_, err := ChangedPaths(dir, "HEAD")
	require.Error(t, err)
	assert.True(t, zrerrors.Is(err, zrerrors.KindNoRepo))
}

func TestChangedPathsDetectsUncommittedModification(t *testing.T) {
	dir, _, wt := initRepoWithCommit(t, map[string]string{
		"services/api/main.go": "package main\n",
		"services/web/main.go": "package main\n",
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "services/api/main.go"), []byte("package main\n// changed\n"), 0o644))
	_ = wt

	changed, err := ChangedPaths(dir, "HEAD")
	require.NoError(t, err)
	assert.Contains(t, changed, "services/api/main.go")
	assert.NotContains(t, changed, "services/web/main.go")
}

func TestMapToMembersMapsPathsToContainingMember(t *testing.T) {
	repoRoot := "/repo"
	ws := &config.Workspace{
		Members: []config.WorkspaceMember{
			{Name: "api", Path: "/repo/services/api"},
			{Name: "web", Path: "/repo/services/web"},
		},
	}
	changed := []string{"services/api/main.go", "services/web/index.ts", "README.md"}
	direct := MapToMembers(ws, changed, repoRoot)
	assert.Contains(t, direct, "api")
	assert.Contains(t, direct, "web")
	assert.Len(t, direct, 2)
}

func TestCloseAddsTransitiveDependents(t *testing.T) {
	ws := &config.Workspace{
		Members: []config.WorkspaceMember{
			{Name: "core"},
			{Name: "api", DependsOn: []string{"core"}},
			{Name: "web", DependsOn: []string{"api"}},
			{Name: "unrelated"},
		},
	}
	direct := map[string]struct{}{"core": {}}
	closed := Close(ws, direct)
	assert.Contains(t, closed, "core")
	assert.Contains(t, closed, "api")
	assert.Contains(t, closed, "web")
	assert.NotContains(t, closed, "unrelated")
}

func TestComputeReturnsNoRepoOutsideGit(t *testing.T) {
	dir := t.TempDir()
	ws := &config.Workspace{Members: []config.WorkspaceMember{{Name: "api", Path: filepath.Join(dir, "api")}}}
	_, err := Compute(ws, dir, Options{BaseRevision: "HEAD"})
	require.Error(t, err)
	assert.True(t, zrerrors.Is(err, zrerrors.KindNoRepo))
}
