package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zr-run/zr/internal/cache"
	"github.com/zr-run/zr/internal/config"
	"github.com/zr-run/zr/internal/graph"
	"github.com/zr-run/zr/internal/history"
)

type recordingFormatter struct {
	events []Event
}

func (f *recordingFormatter) Handle(e Event) { f.events = append(f.events, e) }
func (f *recordingFormatter) Flush() error   { return nil }

func buildGraph(t *testing.T, tasks ...*config.Task) *graph.Graph {
	t.Helper()
	m := map[string]*config.Task{}
	var targets []string
	for _, task := range tasks {
		m[task.Name] = task
		targets = append(targets, task.Name)
	}
	cfg := &config.Config{Tasks: m, Aliases: map[string]*config.Alias{}}
	g, err := graph.Build(cfg, targets)
	require.NoError(t, err)
	return g
}

func snapshotFor(result *Result, name string) NodeSnapshot {
	for _, n := range result.Nodes {
		if n.Name == name {
			return n
		}
	}
	return NodeSnapshot{}
}

func TestSchedulerRunsSimpleSuccess(t *testing.T) {
	g := buildGraph(t, &config.Task{Name: "build", Cmd: "exit 0"})
	sched, err := New(g, Options{Jobs: 2})
	require.NoError(t, err)

	result, err := sched.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, NodeStatusSucceeded, snapshotFor(result, "build").Status)
}

func TestSchedulerFailurePropagatesSkip(t *testing.T) {
	g := buildGraph(t,
		&config.Task{Name: "build", Cmd: "exit 1"},
		&config.Task{Name: "deploy", Cmd: "exit 0", Deps: []string{"build"}},
	)
	sched, err := New(g, Options{Jobs: 2})
	require.NoError(t, err)

	result, err := sched.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, NodeStatusFailed, snapshotFor(result, "build").Status)
	assert.Equal(t, NodeStatusSkippedUpstream, snapshotFor(result, "deploy").Status)
}

func TestSchedulerFailurePropagatesSkipAcrossMultipleLevels(t *testing.T) {
	g := buildGraph(t,
		&config.Task{Name: "build", Cmd: "exit 1"},
		&config.Task{Name: "test", Cmd: "exit 0", Deps: []string{"build"}},
		&config.Task{Name: "deploy", Cmd: "exit 0", Deps: []string{"test"}},
	)
	sched, err := New(g, Options{Jobs: 2})
	require.NoError(t, err)

	result, err := sched.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, NodeStatusFailed, snapshotFor(result, "build").Status)
	assert.Equal(t, NodeStatusSkippedUpstream, snapshotFor(result, "test").Status)
	assert.Equal(t, NodeStatusSkippedUpstream, snapshotFor(result, "deploy").Status)
}

func TestSchedulerAllowFailureDoesNotSkipDependents(t *testing.T) {
	g := buildGraph(t,
		&config.Task{Name: "lint", Cmd: "exit 1", AllowFailure: true},
		&config.Task{Name: "build", Cmd: "exit 0", Deps: []string{"lint"}},
	)
	sched, err := New(g, Options{Jobs: 2})
	require.NoError(t, err)

	result, err := sched.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, NodeStatusFailed, snapshotFor(result, "lint").Status)
	assert.Equal(t, NodeStatusSucceeded, snapshotFor(result, "build").Status)
}

func TestSchedulerAlwaysConditionOverridesSkip(t *testing.T) {
	g := buildGraph(t,
		&config.Task{Name: "build", Cmd: "exit 1"},
		&config.Task{Name: "notify", Cmd: "exit 0", Deps: []string{"build"}, Condition: "always"},
	)
	sched, err := New(g, Options{Jobs: 2})
	require.NoError(t, err)

	result, err := sched.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NodeStatusFailed, snapshotFor(result, "build").Status)
	assert.Equal(t, NodeStatusSucceeded, snapshotFor(result, "notify").Status)
}

func TestSchedulerRetriesUpToRetryLimit(t *testing.T) {
	// A command that always fails still only runs maxAttempts times; check
	// final state is Failed after retries are exhausted.
	g := buildGraph(t, &config.Task{Name: "flaky", Cmd: "exit 1", Retry: 2})
	sched, err := New(g, Options{Jobs: 1})
	require.NoError(t, err)

	result, err := sched.Run(context.Background())
	require.NoError(t, err)
	snap := snapshotFor(result, "flaky")
	assert.Equal(t, NodeStatusFailed, snap.Status)
	assert.Equal(t, 3, snap.Attempt) // 1 + Retry
}

func TestSchedulerDryRunSkipsExecution(t *testing.T) {
	g := buildGraph(t, &config.Task{Name: "build", Cmd: "this is not valid shell((("})
	sched, err := New(g, Options{Jobs: 1, DryRun: true})
	require.NoError(t, err)

	result, err := sched.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, NodeStatusSucceeded, snapshotFor(result, "build").Status)
}

func TestSchedulerCacheHitReplaysWithoutExecuting(t *testing.T) {
	dir := t.TempDir()
	store, err := cache.Open(filepath.Join(dir, "cache"))
	require.NoError(t, err)

	task := &config.Task{Name: "build", Cmd: "echo first", Cache: &config.CacheSpec{}}
	g := buildGraph(t, task)

	sched, err := New(g, Options{Jobs: 1, Cache: store})
	require.NoError(t, err)
	first, err := sched.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, snapshotFor(first, "build").CacheHit)

	// A second graph/scheduler over the same task+cache should now replay.
	g2 := buildGraph(t, task)
	sched2, err := New(g2, Options{Jobs: 1, Cache: store})
	require.NoError(t, err)
	second, err := sched2.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, snapshotFor(second, "build").CacheHit)
}

func TestSchedulerCacheHitRestoresOutputFiles(t *testing.T) {
	cacheDir := t.TempDir()
	store, err := cache.Open(filepath.Join(cacheDir, "cache"))
	require.NoError(t, err)

	cwd := t.TempDir()
	task := &config.Task{
		Name: "build",
		Cmd:  "echo built > out.txt",
		Cwd:  cwd,
		Cache: &config.CacheSpec{
			Outputs: []string{"out.txt"},
		},
	}
	g := buildGraph(t, task)
	sched, err := New(g, Options{Jobs: 1, Cache: store})
	require.NoError(t, err)
	first, err := sched.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, snapshotFor(first, "build").CacheHit)

	// Remove the output file the first run produced; a cache-hit replay
	// must restore it from the stored blob rather than leaving it absent.
	require.NoError(t, os.Remove(filepath.Join(cwd, "out.txt")))

	g2 := buildGraph(t, task)
	sched2, err := New(g2, Options{Jobs: 1, Cache: store})
	require.NoError(t, err)
	second, err := sched2.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, snapshotFor(second, "build").CacheHit)

	data, err := os.ReadFile(filepath.Join(cwd, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "built\n", string(data))
}

func TestSchedulerWritesHistory(t *testing.T) {
	log := history.Open(filepath.Join(t.TempDir(), "history.jsonl"))
	g := buildGraph(t, &config.Task{Name: "build", Cmd: "exit 0"})
	sched, err := New(g, Options{Jobs: 1, History: log})
	require.NoError(t, err)

	_, err = sched.Run(context.Background())
	require.NoError(t, err)

	records, err := log.All()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "build", records[0].TaskName)
	assert.Equal(t, "succeeded", records[0].Status)
}

func TestSchedulerEmitsFormatterEvents(t *testing.T) {
	f := &recordingFormatter{}
	g := buildGraph(t, &config.Task{Name: "build", Cmd: "echo hi"})
	sched, err := New(g, Options{Jobs: 1, Formatter: f})
	require.NoError(t, err)

	_, err = sched.Run(context.Background())
	require.NoError(t, err)

	var sawStarted, sawLine, sawEnded bool
	for _, e := range f.events {
		switch e.Kind {
		case EventTaskStarted:
			sawStarted = true
		case EventLine:
			sawLine = true
		case EventTaskEnded:
			sawEnded = true
		}
	}
	assert.True(t, sawStarted)
	assert.True(t, sawLine)
	assert.True(t, sawEnded)
}

func TestSchedulerInvalidJobsRejected(t *testing.T) {
	g := buildGraph(t, &config.Task{Name: "build", Cmd: "exit 0"})
	sched, err := New(g, Options{Jobs: -1})
	require.NoError(t, err)

	_, err = sched.Run(context.Background())
	require.Error(t, err)
}

func TestSchedulerCancelStopsPendingDispatch(t *testing.T) {
	g := buildGraph(t,
		&config.Task{Name: "slow", Cmd: "sleep 0.2"},
		&config.Task{Name: "after", Cmd: "exit 0", Deps: []string{"slow"}},
	)
	sched, err := New(g, Options{Jobs: 2})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		sched.Cancel()
		cancel()
	}()

	result, err := sched.Run(ctx)
	require.NoError(t, err)
	assert.False(t, result.Success)
}
