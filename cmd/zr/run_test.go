package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zr-run/zr/internal/config"
)

func TestAllTaskNamesSorted(t *testing.T) {
	cfg := &config.Config{Tasks: map[string]*config.Task{
		"test":  {Name: "test"},
		"build": {Name: "build"},
	}}
	assert.Equal(t, []string{"build", "test"}, allTaskNames(cfg))
}

func TestAffectedTargetsNoWorkspacePassesThrough(t *testing.T) {
	cfg := &config.Config{Tasks: map[string]*config.Task{"build": {Name: "build"}}}
	out, err := affectedTargets(cfg, "HEAD", []string{"build"})
	require.NoError(t, err)
	assert.Equal(t, []string{"build"}, out)
}

func TestAffectedTargetsNoRepoFallsBackToExplicit(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Path: filepath.Join(dir, "zr.toml"),
		Tasks: map[string]*config.Task{
			"api/build": {Name: "api/build"},
		},
		Workspace: &config.Workspace{
			Members: []config.WorkspaceMember{{Name: "api", Path: filepath.Join(dir, "api")}},
		},
	}
	out, err := affectedTargets(cfg, "HEAD", []string{"api/build"})
	require.NoError(t, err)
	assert.Equal(t, []string{"api/build"}, out)
}

func TestAffectedTargetsNoRepoFallsBackToAllWhenNoExplicit(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Path: filepath.Join(dir, "zr.toml"),
		Tasks: map[string]*config.Task{
			"api/build": {Name: "api/build"},
			"web/build": {Name: "web/build"},
		},
		Workspace: &config.Workspace{
			Members: []config.WorkspaceMember{{Name: "api", Path: filepath.Join(dir, "api")}},
		},
	}
	out, err := affectedTargets(cfg, "HEAD", nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"api/build", "web/build"}, out)
}
