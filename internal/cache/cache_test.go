package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreAndLookupRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	fp := [32]byte{1, 2, 3}
	entry := Entry{ExitCode: 0, Stdout: []byte("hi"), Stderr: []byte("")}
	require.NoError(t, s.Store(fp, entry))

	got := s.Lookup(fp)
	require.NotNil(t, got)
	assert.Equal(t, []byte("hi"), got.Stdout)
	assert.Equal(t, 0, got.ExitCode)
}

func TestLookupMissReturnsNil(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, s.Lookup([32]byte{9, 9, 9}))
}

func TestLookupToleratesCorruptEntry(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	fp := [32]byte{5}
	path := s.pathFor(fp)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	assert.Nil(t, s.Lookup(fp))
}

func TestStoreWritesAtomically(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	fp := [32]byte{7}
	require.NoError(t, s.Store(fp, Entry{ExitCode: 1}))

	path := s.pathFor(fp)
	_, err = os.Stat(path)
	require.NoError(t, err)

	// No leftover temp files in the entry's directory.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestStoreOutputsCapturesMatchedFiles(t *testing.T) {
	cwd := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "out.txt"), []byte("built"), 0o644))

	s, err := Open(t.TempDir())
	require.NoError(t, err)

	entry := Entry{ExitCode: 0}
	require.NoError(t, s.StoreOutputs(cwd, []string{"out.txt"}, &entry))
	require.Contains(t, entry.OutputDigests, "out.txt")
}

func TestStoreOutputsEmptyPatternsIsNoop(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	entry := Entry{ExitCode: 0}
	require.NoError(t, s.StoreOutputs(t.TempDir(), nil, &entry))
	assert.Nil(t, entry.OutputDigests)
}

func TestRestoreOutputsRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "out.txt"), []byte("built"), 0o644))

	s, err := Open(t.TempDir())
	require.NoError(t, err)

	entry := Entry{ExitCode: 0}
	require.NoError(t, s.StoreOutputs(srcDir, []string{"out.txt"}, &entry))

	destDir := t.TempDir()
	require.NoError(t, s.RestoreOutputs(destDir, &entry))

	data, err := os.ReadFile(filepath.Join(destDir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "built", string(data))
}

func TestRestoreOutputsMissingBlobErrors(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	entry := Entry{OutputDigests: map[string]string{"out.txt": "deadbeef" + strings.Repeat("0", 56)}}
	err = s.RestoreOutputs(t.TempDir(), &entry)
	assert.Error(t, err)
}

func TestPruneRemovesOlderThanCutoff(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	oldFp := [32]byte{1}
	newFp := [32]byte{2}
	require.NoError(t, s.Store(oldFp, Entry{Timestamp: time.Now().Add(-48 * time.Hour)}))
	require.NoError(t, s.Store(newFp, Entry{Timestamp: time.Now()}))

	removed, err := s.Prune(PrunePolicy{OlderThan: 24 * time.Hour})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Nil(t, s.Lookup(oldFp))
	assert.NotNil(t, s.Lookup(newFp))
}
