package scheduler

import "time"

// EventKind identifies a lifecycle event handed to a Formatter (spec §4.6.5).
type EventKind int

const (
	EventTaskStarted EventKind = iota
	EventLine
	EventTaskEnded
)

// Stream identifies which child stream a Line event came from.
type Stream int

const (
	StreamStdout Stream = iota
	StreamStderr
)

// Event is a structured lifecycle event streamed to a Formatter during a
// run (spec §4.6.5): task-started, line(task, stream, bytes), and
// task-ended{status, duration, exit, cache_hit}.
type Event struct {
	Kind EventKind
	Task string

	// EventLine fields
	Stream Stream
	Bytes  []byte

	// EventTaskEnded fields
	Status   NodeStatus
	Duration time.Duration
	ExitCode int
	CacheHit bool
}

// Formatter receives structured lifecycle events and renders them per
// --format (spec §4.6.5). Implementations must not block the scheduler for
// long: a slow formatter must not stall child processes (spec §5).
type Formatter interface {
	Handle(Event)
	Flush() error
}
