package format

import (
	"bytes"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/zr-run/zr/internal/scheduler"
)

// jsonEvent is the wire shape of one streamed event under --format json
// (spec §4.6.5, §7 "--format json emits a final aggregate object").
type jsonEvent struct {
	Kind     string `json:"kind"`
	Task     string `json:"task"`
	Stream   string `json:"stream,omitempty"`
	Text     string `json:"text,omitempty"`
	Status   string `json:"status,omitempty"`
	ExitCode int    `json:"exit_code,omitempty"`
	CacheHit bool   `json:"cache_hit,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// JSONFormatter renders one JSON object per line (JSONL), so a consumer can
// stream `zr run --format json` without buffering the whole run.
type JSONFormatter struct {
	out io.Writer
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSON builds a JSONFormatter writing newline-delimited JSON to out.
func NewJSON(out io.Writer) *JSONFormatter {
	return &JSONFormatter{out: out, enc: json.NewEncoder(out)}
}

func (f *JSONFormatter) Handle(ev scheduler.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	je := jsonEvent{Task: ev.Task}
	switch ev.Kind {
	case scheduler.EventTaskStarted:
		je.Kind = "task_started"
	case scheduler.EventLine:
		je.Kind = "line"
		je.Stream = streamName(ev.Stream)
		je.Text = string(ev.Bytes)
	case scheduler.EventTaskEnded:
		je.Kind = "task_ended"
		je.Status = ev.Status.String()
		je.ExitCode = ev.ExitCode
		je.CacheHit = ev.CacheHit
		je.Duration = ev.Duration.String()
	}
	_ = f.enc.Encode(je)
}

func streamName(s scheduler.Stream) string {
	if s == scheduler.StreamStderr {
		return "stderr"
	}
	return "stdout"
}

// Flush is a no-op: every Handle call writes its line immediately.
func (f *JSONFormatter) Flush() error { return nil }

// aggregateNode mirrors the shape of one task result in the final aggregate
// object (spec §7).
type aggregateNode struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Attempt   int    `json:"attempt"`
	ExitCode  int    `json:"exit_code"`
	CacheHit  bool   `json:"cache_hit"`
	StartedAt string `json:"started_at,omitempty"`
	EndedAt   string `json:"ended_at,omitempty"`
}

type aggregate struct {
	Success bool            `json:"success"`
	Tasks   []aggregateNode `json:"tasks"`
}

// Aggregate marshals the final run result as the single trailing JSON object
// consumers of `--format json` parse for an overall pass/fail (spec §7).
func Aggregate(result *scheduler.Result) ([]byte, error) {
	agg := aggregate{Success: result.Success}
	for _, n := range result.Nodes {
		an := aggregateNode{
			Name:     n.Name,
			Status:   n.Status.String(),
			Attempt:  n.Attempt,
			ExitCode: n.ExitCode,
			CacheHit: n.CacheHit,
		}
		if !n.Started.IsZero() {
			an.StartedAt = n.Started.Format(time.RFC3339Nano)
		}
		if !n.Ended.IsZero() {
			an.EndedAt = n.Ended.Format(time.RFC3339Nano)
		}
		agg.Tasks = append(agg.Tasks, an)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(agg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
