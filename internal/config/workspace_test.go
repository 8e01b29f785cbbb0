package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWorkspaceLiteralMembers(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "services", "api"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "services", "web"), 0o755))

	path := filepath.Join(root, DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(`
[workspace]
members = ["services/api", "services/web"]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Workspace)
	require.Len(t, cfg.Workspace.Members, 2)
	names := []string{cfg.Workspace.Members[0].Name, cfg.Workspace.Members[1].Name}
	assert.ElementsMatch(t, []string{"api", "web"}, names)
}

func TestLoadWorkspaceGlobMembers(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "packages", "a"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "packages", "b"), 0o755))

	path := filepath.Join(root, DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(`
[workspace]
members = ["packages/*"]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Workspace)
	assert.Len(t, cfg.Workspace.Members, 2)
}

func TestLoadWorkspaceNonexistentLiteralIsSkipped(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(`
[workspace]
members = ["does-not-exist"]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Workspace.Members)
}

func TestLoadMemberWithoutConfigReturnsNil(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadMember(WorkspaceMember{Name: "empty", Path: dir})
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoadMemberWithConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFileName), []byte(`
[tasks.build]
cmd = "go build"
`), 0o644))

	cfg, err := LoadMember(WorkspaceMember{Name: "member", Path: dir})
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Contains(t, cfg.Tasks, "build")
}
