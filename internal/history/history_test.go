package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndAll(t *testing.T) {
	log := Open(filepath.Join(t.TempDir(), "history.jsonl"))

	r1 := Record{TaskName: "build", Start: time.Now(), Status: "Succeeded"}
	r2 := Record{TaskName: "test", Start: time.Now().Add(time.Second), Status: "Failed"}
	require.NoError(t, log.Append(r1))
	require.NoError(t, log.Append(r2))

	all, err := log.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "build", all[0].TaskName)
	assert.Equal(t, "test", all[1].TaskName)
}

func TestAllOnMissingFileReturnsEmpty(t *testing.T) {
	log := Open(filepath.Join(t.TempDir(), "missing.jsonl"))
	all, err := log.All()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAllToleratesTruncatedTrailingRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	log := Open(path)
	require.NoError(t, log.Append(Record{TaskName: "build", Start: time.Now()}))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"task_name":"test","start":"20`) // truncated
	require.NoError(t, err)
	require.NoError(t, f.Close())

	all, err := log.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "build", all[0].TaskName)
}

func TestTail(t *testing.T) {
	log := Open(filepath.Join(t.TempDir(), "history.jsonl"))
	for i := 0; i < 5; i++ {
		require.NoError(t, log.Append(Record{TaskName: "t", Start: time.Now().Add(time.Duration(i) * time.Second)}))
	}
	tail, err := log.Tail(2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
}

func TestSince(t *testing.T) {
	log := Open(filepath.Join(t.TempDir(), "history.jsonl"))
	base := time.Now()
	require.NoError(t, log.Append(Record{TaskName: "old", Start: base.Add(-time.Hour)}))
	require.NoError(t, log.Append(Record{TaskName: "new", Start: base.Add(time.Hour)}))

	recent, err := log.Since(base)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "new", recent[0].TaskName)
}

func TestFilter(t *testing.T) {
	log := Open(filepath.Join(t.TempDir(), "history.jsonl"))
	require.NoError(t, log.Append(Record{TaskName: "build", Status: "Succeeded"}))
	require.NoError(t, log.Append(Record{TaskName: "build", Status: "Failed"}))

	failed, err := log.Filter(func(r Record) bool { return r.Status == "Failed" })
	require.NoError(t, err)
	require.Len(t, failed, 1)
}

func TestSortByStart(t *testing.T) {
	records := []Record{
		{TaskName: "b", Start: time.Now().Add(time.Hour)},
		{TaskName: "a", Start: time.Now()},
	}
	SortByStart(records)
	assert.Equal(t, "a", records[0].TaskName)
	assert.Equal(t, "b", records[1].TaskName)
}
