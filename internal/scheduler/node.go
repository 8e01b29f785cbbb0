package scheduler

import (
	"bytes"
	"sync"
	"time"

	"github.com/zr-run/zr/internal/config"
)

// execState is the mutable, scheduler-owned state for one graph node (spec
// §5: "workers only transition per-node status via a scheduler-internal
// lock"). Kept separate from graph.Node so the graph itself stays read-only
// after construction.
type execState struct {
	mu sync.Mutex

	status   NodeStatus
	attempt  int
	started  time.Time
	ended    time.Time
	exitCode int
	cacheHit bool
	err      error

	stdout bytes.Buffer
	stderr bytes.Buffer

	task *config.Task
}

func newExecState(task *config.Task) *execState {
	return &execState{status: NodeStatusPending, task: task}
}

func (n *execState) setStatus(s NodeStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status = s
}

func (n *execState) getStatus() NodeStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

func (n *execState) snapshot() NodeSnapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	return NodeSnapshot{
		Name:     n.task.Name,
		Status:   n.status,
		Attempt:  n.attempt,
		Started:  n.started,
		Ended:    n.ended,
		ExitCode: n.exitCode,
		CacheHit: n.cacheHit,
	}
}

// NodeSnapshot is an immutable, point-in-time view of a node's state,
// handed to formatters and the history writer.
type NodeSnapshot struct {
	Name     string
	Status   NodeStatus
	Attempt  int
	Started  time.Time
	Ended    time.Time
	ExitCode int
	CacheHit bool
}
