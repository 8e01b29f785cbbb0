// Package scheduler implements the Scheduler/Runner (spec §4.6), the
// heart of zr: a DAG walker that dispatches tasks to a bounded worker pool,
// honoring timeout/retry/allow-failure/condition/cache, streaming child
// output, and enforcing cancellation.
package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/cpu"

	"github.com/zr-run/zr/internal/cache"
	"github.com/zr-run/zr/internal/condition"
	"github.com/zr-run/zr/internal/config"
	"github.com/zr-run/zr/internal/fingerprint"
	"github.com/zr-run/zr/internal/graph"
	"github.com/zr-run/zr/internal/history"
	"github.com/zr-run/zr/internal/shellexec"
	"github.com/zr-run/zr/internal/zrerrors"
)

// Options configures a Scheduler run (spec §4.6.1, §6).
type Options struct {
	Jobs     int // 0 -> CPU-count default (spec §6 "--jobs 0 means NumCPU")
	DryRun   bool
	Profile  *config.Profile
	Platform string
	RunID    string
	Revision string

	Cache   *cache.Store
	History *history.Log

	Formatter Formatter
}

// Result aggregates the outcome of a run (spec §4.6.3).
type Result struct {
	Nodes   []NodeSnapshot
	Success bool
}

// Scheduler walks a graph.Graph and executes its nodes (spec §4.6).
type Scheduler struct {
	g      *graph.Graph
	states []*execState
	opts   Options
	digest *fingerprint.Digester

	// groupSem bounds matrix-group concurrency (spec §4.6.1 "max_concurrent
	// applies across a matrix group's variants, not per-variant").
	groupSem map[string]chan struct{}

	mu        sync.Mutex
	cancelled bool

	// notify wakes the dispatch loop whenever a node finishes, avoiding a
	// busy-poll while also avoiding the missed-wakeup hazard of a bare
	// sync.Cond over state mutated outside its lock.
	notify chan struct{}
}

// New builds a Scheduler for graph g.
func New(g *graph.Graph, opts Options) (*Scheduler, error) {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Platform == "" {
		opts.Platform = condition.CurrentPlatform()
	}
	digester, err := fingerprint.NewDigester(4096)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		g:        g,
		opts:     opts,
		digest:   digester,
		groupSem: map[string]chan struct{}{},
		notify:   make(chan struct{}, 1),
	}

	s.states = make([]*execState, len(g.Nodes))
	for i, n := range g.Nodes {
		s.states[i] = newExecState(config.ApplyProfileOverrides(n.Task, opts.Profile))
	}

	for base, variants := range g.MatrixGroups {
		if len(variants) == 0 {
			continue
		}
		if max := g.Nodes[variants[0]].Task.MaxConcurrent; max > 0 {
			s.groupSem[base] = make(chan struct{}, max)
		}
	}

	return s, nil
}

func (s *Scheduler) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Cancel requests cancellation of all non-terminal tasks (spec §4.6.3):
// running tasks receive a termination signal then a kill after the grace
// period (enforced by shellexec's exec handler); no new tasks are dispatched.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
	s.wake()
}

func (s *Scheduler) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Run walks the graph to completion: the overall process exit code is 0
// iff every terminal task is Succeeded|CacheHit|Skipped, or every Failed
// task has allow_failure (spec §4.6.3).
func (s *Scheduler) Run(ctx context.Context) (*Result, error) {
	jobs := s.opts.Jobs
	if jobs < 0 {
		return nil, zrerrors.New(zrerrors.KindInvalidJobs, "--jobs must be >= 0, got %d", jobs)
	}
	if jobs == 0 {
		jobs = defaultJobs()
	}

	sem := make(chan struct{}, jobs)
	var wg sync.WaitGroup
	dispatched := make([]bool, len(s.g.Nodes))

	for {
		if s.allTerminal() {
			break
		}
		if s.isCancelled() {
			s.cancelRemaining()
			continue
		}

		ready := s.computeReady(dispatched)
		if len(ready) == 0 {
			select {
			case <-s.notify:
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		for _, idx := range ready {
			dispatched[idx] = true
			s.states[idx].setStatus(NodeStatusReady)
			wg.Add(1)
			sem <- struct{}{}
			go func(i int) {
				defer wg.Done()
				defer func() { <-sem }()
				defer s.wake()
				s.runNode(ctx, i)
			}(idx)
		}
	}

	wg.Wait()

	result := &Result{Success: true}
	for _, st := range s.states {
		snap := st.snapshot()
		result.Nodes = append(result.Nodes, snap)
		if snap.Status == NodeStatusFailed && !st.task.AllowFailure {
			result.Success = false
		}
		if snap.Status == NodeStatusCancelled {
			result.Success = false
		}
	}
	if s.opts.Formatter != nil {
		_ = s.opts.Formatter.Flush()
	}
	return result, nil
}

func (s *Scheduler) allTerminal() bool {
	for _, st := range s.states {
		if !st.getStatus().Terminal() {
			return false
		}
	}
	return true
}

// cancelRemaining marks every not-yet-started node Cancelled (spec §4.6.3:
// cancellation stops new dispatch immediately; in-flight nodes are signaled
// by ctx cancellation and settle on their own).
func (s *Scheduler) cancelRemaining() {
	for _, st := range s.states {
		status := st.getStatus()
		if status == NodeStatusPending || status == NodeStatusReady {
			st.setStatus(NodeStatusCancelled)
		}
	}
}

// computeReady returns node indices whose dependencies are all finished per
// the ready-set rule of spec §4.6.1, and that have not yet been dispatched.
func (s *Scheduler) computeReady(dispatched []bool) []int {
	var ready []int
	for i, st := range s.states {
		if dispatched[i] || st.getStatus() != NodeStatusPending {
			continue
		}
		if s.depsSatisfied(i) {
			ready = append(ready, i)
		}
	}
	return ready
}

// depsSatisfied implements spec §4.6.1's ready rule and §4.6.2's
// upstream-failure rule together: every dependency must be Finished, and if
// any non-allow_failure dependency Failed, was Cancelled, or was itself
// Skipped as a failed dependency, this node transitions to
// NodeStatusSkippedUpstream (unless its own condition is the "always"
// bareword) so the skip cascades past one level instead of stopping dead.
func (s *Scheduler) depsSatisfied(i int) bool {
	edges := s.g.DependsOn(i)
	if len(edges) == 0 {
		return true
	}
	upstreamFailed := false
	for _, e := range edges {
		depState := s.states[e.From]
		depStatus := depState.getStatus()
		if !depStatus.Finished() {
			return false
		}
		if depStatus == NodeStatusFailed && !depState.task.AllowFailure {
			upstreamFailed = true
		}
		if depStatus == NodeStatusCancelled {
			upstreamFailed = true
		}
		if depStatus == NodeStatusSkippedUpstream {
			upstreamFailed = true
		}
	}
	if upstreamFailed {
		task := s.states[i].task
		cond, _ := condition.Parse(task.Condition)
		if !cond.IsAlways() {
			s.states[i].setStatus(NodeStatusSkippedUpstream)
			return false
		}
	}
	return true
}

// runNode executes one node's full per-attempt lifecycle (spec §4.6.2).
func (s *Scheduler) runNode(ctx context.Context, i int) {
	st := s.states[i]
	task := st.task
	st.setStatus(NodeStatusRunning)

	if sem, ok := s.matrixSem(i); ok {
		sem <- struct{}{}
		defer func() { <-sem }()
	}

	facts := condition.Facts{Platform: s.opts.Platform, Env: config.EffectiveEnv(task, s.opts.Profile)}
	cond, condErr := condition.Parse(task.Condition)
	if condErr == nil && !cond.IsAlways() && !cond.Eval(facts) {
		st.setStatus(NodeStatusSkipped)
		s.emitEnded(st)
		return
	}

	effectiveTask := config.ApplyProfileOverrides(task, s.opts.Profile)
	env := config.EffectiveEnv(effectiveTask, s.opts.Profile)
	resolved := config.ResolveTask(effectiveTask, env)

	cwd := resolveCwd(resolved.Cwd)
	var fp [32]byte
	if task.Cache != nil {
		fp = s.computeFingerprint(resolved, env)
		if entry := s.opts.Cache.Lookup(fp); entry != nil {
			if err := s.opts.Cache.RestoreOutputs(cwd, entry); err == nil {
				s.replayCacheHit(st, entry)
				return
			}
			// A missing output blob invalidates the entry (spec §4.5): fall
			// through and re-execute instead of replaying a partial result.
		}
	}

	if s.opts.DryRun {
		st.setStatus(NodeStatusSucceeded)
		s.emitEnded(st)
		return
	}

	s.attemptLoop(ctx, st, task, resolved, env, fp)
}

func (s *Scheduler) replayCacheHit(st *execState, entry *cache.Entry) {
	st.mu.Lock()
	st.stdout.Write(entry.Stdout)
	st.stderr.Write(entry.Stderr)
	st.exitCode = entry.ExitCode
	st.cacheHit = true
	st.started = entry.Timestamp
	st.ended = entry.Timestamp
	st.mu.Unlock()

	if s.opts.Formatter != nil {
		s.opts.Formatter.Handle(Event{Kind: EventLine, Task: st.task.Name, Stream: StreamStdout, Bytes: entry.Stdout})
		s.opts.Formatter.Handle(Event{Kind: EventLine, Task: st.task.Name, Stream: StreamStderr, Bytes: entry.Stderr})
	}
	st.setStatus(NodeStatusCacheHit)
	s.writeHistory(st, 0, true)
	s.emitEnded(st)
}

// attemptLoop runs the command, retrying up to task.Retry additional times
// on non-zero exit or timeout (spec §4.6.2 step 6): retries neither
// re-check the condition nor re-compute the fingerprint.
func (s *Scheduler) attemptLoop(ctx context.Context, st *execState, task *config.Task, resolved *config.Task, env map[string]string, fp [32]byte) {
	maxAttempts := 1 + task.Retry
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		st.mu.Lock()
		st.attempt = attempt
		st.started = time.Now()
		st.stdout.Reset()
		st.stderr.Reset()
		st.mu.Unlock()

		if s.opts.Formatter != nil {
			s.opts.Formatter.Handle(Event{Kind: EventTaskStarted, Task: task.Name})
		}

		runCtx := ctx
		var cancelTimeout context.CancelFunc
		if task.TimeoutMS > 0 {
			runCtx, cancelTimeout = context.WithTimeout(ctx, time.Duration(task.TimeoutMS)*time.Millisecond)
		}

		exitCode, runErr := shellexec.Run(runCtx, shellexec.Spec{
			Cmd:    resolved.Cmd,
			Dir:    resolveCwd(resolved.Cwd),
			Env:    config.SortedEnvPairs(env),
			Stdout: newNodeWriter(st, false, s.opts.Formatter, task.Name),
			Stderr: newNodeWriter(st, true, s.opts.Formatter, task.Name),
		})
		timedOut := runCtx.Err() == context.DeadlineExceeded
		if cancelTimeout != nil {
			cancelTimeout()
		}

		st.mu.Lock()
		st.ended = time.Now()
		st.exitCode = exitCode
		st.err = runErr
		st.mu.Unlock()

		if s.isCancelled() && ctx.Err() != nil {
			st.setStatus(NodeStatusCancelled)
			s.writeHistory(st, attempt, false)
			s.emitEnded(st)
			return
		}

		success := runErr == nil && exitCode == 0 && !timedOut

		if success {
			st.setStatus(NodeStatusSucceeded)
			s.writeHistory(st, attempt, false)
			if task.Cache != nil {
				s.storeCache(fp, st, resolveCwd(resolved.Cwd), task.Cache.Outputs)
			}
			s.emitEnded(st)
			return
		}
		if attempt == maxAttempts {
			st.setStatus(NodeStatusFailed)
			s.writeHistory(st, attempt, false)
			s.emitEnded(st)
			return
		}
		s.writeHistory(st, attempt, false)
	}
}

func (s *Scheduler) matrixSem(i int) (chan struct{}, bool) {
	for base, variants := range s.g.MatrixGroups {
		for _, v := range variants {
			if v == i {
				sem, ok := s.groupSem[base]
				return sem, ok
			}
		}
	}
	return nil, false
}

func (s *Scheduler) computeFingerprint(task *config.Task, env map[string]string) [32]byte {
	cwd := resolveCwd(task.Cwd)
	var inputs []fingerprint.InputDigest
	if task.Cache != nil && len(task.Cache.Inputs) > 0 {
		files, _ := fingerprint.ExpandInputs(cwd, task.Cache.Inputs)
		for _, f := range files {
			if d, err := s.digest.Digest(f); err == nil {
				inputs = append(inputs, fingerprint.InputDigest{Path: f, Digest: d})
			}
		}
	}
	var tools []string
	for name, version := range s.g.Tools {
		tools = append(tools, name+"="+version)
	}

	return fingerprint.Compute(fingerprint.Inputs{
		ResolvedCmd:  task.Cmd,
		Env:          config.SortedEnvPairs(env),
		Cwd:          cwd,
		InputFiles:   inputs,
		Platform:     s.opts.Platform,
		TaskName:     task.Name,
		ToolVersions: tools,
	})
}

// storeCache captures stdout/stderr/exit plus, when the task declares
// cache.outputs, the matched output files as content-addressed blobs (spec
// §4.5). A failure to capture outputs drops the whole store rather than
// persisting an entry future lookups would restore partially.
func (s *Scheduler) storeCache(fp [32]byte, st *execState, cwd string, outputs []string) {
	st.mu.Lock()
	entry := cache.Entry{
		ExitCode:  st.exitCode,
		Stdout:    append([]byte{}, st.stdout.Bytes()...),
		Stderr:    append([]byte{}, st.stderr.Bytes()...),
		Timestamp: time.Now(),
	}
	st.mu.Unlock()
	if err := s.opts.Cache.StoreOutputs(cwd, outputs, &entry); err != nil {
		return
	}
	_ = s.opts.Cache.Store(fp, entry)
}

func (s *Scheduler) writeHistory(st *execState, attempt int, cacheHit bool) {
	if s.opts.History == nil {
		return
	}
	snap := st.snapshot()
	_ = s.opts.History.Append(history.Record{
		TaskName: snap.Name,
		Start:    snap.Started,
		End:      snap.Ended,
		ExitCode: snap.ExitCode,
		CacheHit: cacheHit,
		Attempt:  attempt,
		Status:   snap.Status.String(),
		RunID:    s.opts.RunID,
		Revision: s.opts.Revision,
	})
}

func (s *Scheduler) emitEnded(st *execState) {
	if s.opts.Formatter == nil {
		return
	}
	snap := st.snapshot()
	s.opts.Formatter.Handle(Event{
		Kind:     EventTaskEnded,
		Task:     snap.Name,
		Status:   snap.Status,
		Duration: snap.Ended.Sub(snap.Started),
		ExitCode: snap.ExitCode,
		CacheHit: snap.CacheHit,
	})
}

func resolveCwd(cwd string) string {
	if cwd == "" {
		wd, _ := os.Getwd()
		return wd
	}
	if filepath.IsAbs(cwd) {
		return cwd
	}
	wd, _ := os.Getwd()
	return filepath.Join(wd, cwd)
}

// defaultJobs resolves --jobs 0 to the logical CPU count (spec §6), using
// gopsutil rather than runtime.NumCPU so a future container-aware cgroup
// quota reading can replace the call site without touching callers.
func defaultJobs() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		return 1
	}
	return n
}

// nodeWriter tees a child stream into the node's buffered state (for cache
// capture and history) and, if present, the live Formatter (spec §4.6.2
// step 4: a unified pipeline that must not lose or deadlock on output).
type nodeWriter struct {
	st       *execState
	stderr   bool
	f        Formatter
	taskName string
}

func newNodeWriter(st *execState, stderr bool, f Formatter, taskName string) *nodeWriter {
	return &nodeWriter{st: st, stderr: stderr, f: f, taskName: taskName}
}

func (w *nodeWriter) Write(p []byte) (int, error) {
	w.st.mu.Lock()
	if w.stderr {
		w.st.stderr.Write(p)
	} else {
		w.st.stdout.Write(p)
	}
	w.st.mu.Unlock()

	if w.f != nil {
		stream := StreamStdout
		if w.stderr {
			stream = StreamStderr
		}
		w.f.Handle(Event{Kind: EventLine, Task: w.taskName, Stream: stream, Bytes: append([]byte{}, p...)})
	}
	return len(p), nil
}
