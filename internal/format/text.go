// Package format implements the §4.6.5 Formatter contract: renderers that
// turn a scheduler.Event stream into text or JSON output for `run`.
package format

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/fatih/color"

	"github.com/zr-run/zr/internal/scheduler"
)

// TextFormatter renders scheduler events as colorized, human-readable lines
// (spec §4.6.5, §6 "--no-color"/NO_COLOR). A per-task mutex-free line
// buffer is unnecessary: each child's own output is already ordered by the
// writer that produced the event, and this formatter never reorders across
// tasks — interleaving between tasks is permitted by spec §5 ordering
// guarantee (3).
type TextFormatter struct {
	out     io.Writer
	mu      sync.Mutex
	noColor bool

	started map[string]struct{}
}

// NewText builds a TextFormatter; noColor mirrors --no-color/NO_COLOR.
func NewText(out io.Writer, noColor bool) *TextFormatter {
	return &TextFormatter{out: out, noColor: noColor, started: map[string]struct{}{}}
}

func (f *TextFormatter) colorize(c *color.Color, s string) string {
	if f.noColor {
		return s
	}
	return c.Sprint(s)
}

// Handle renders one event; implements scheduler.Formatter.
func (f *TextFormatter) Handle(ev scheduler.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch ev.Kind {
	case scheduler.EventTaskStarted:
		if _, ok := f.started[ev.Task]; ok {
			return // a retry attempt; don't re-print the banner
		}
		f.started[ev.Task] = struct{}{}
		fmt.Fprintf(f.out, "%s %s\n", f.colorize(color.New(color.FgCyan, color.Bold), "▶"), ev.Task)
	case scheduler.EventLine:
		prefix := f.colorize(color.New(color.FgHiBlack), "["+ev.Task+"]")
		stream := io.Writer(f.out)
		_ = stream
		fmt.Fprintf(f.out, "%s %s", prefix, string(ev.Bytes))
	case scheduler.EventTaskEnded:
		glyph, c := glyphFor(ev.Status)
		label := ev.Status.String()
		if ev.CacheHit {
			label = "cache-hit"
		}
		fmt.Fprintf(f.out, "%s %s %s (%s, %s)\n",
			f.colorize(c, glyph), ev.Task, f.colorize(c, label), ev.Duration.Round(1e6), exitLabel(ev.ExitCode))
	}
}

func exitLabel(code int) string {
	return fmt.Sprintf("exit %d", code)
}

func glyphFor(status scheduler.NodeStatus) (string, *color.Color) {
	switch status {
	case scheduler.NodeStatusSucceeded, scheduler.NodeStatusCacheHit:
		return "✔", color.New(color.FgGreen)
	case scheduler.NodeStatusFailed:
		return "✘", color.New(color.FgRed, color.Bold)
	case scheduler.NodeStatusSkipped, scheduler.NodeStatusSkippedUpstream:
		return "—", color.New(color.FgYellow)
	case scheduler.NodeStatusCancelled:
		return "⊘", color.New(color.FgRed)
	default:
		return "?", color.New(color.FgWhite)
	}
}

// Flush is a no-op for TextFormatter; every event is written immediately.
func (f *TextFormatter) Flush() error { return nil }

// Summary prints the final one-line aggregate to the formatter's own
// output writer (the same writer as the task events).
func (f *TextFormatter) Summary(result *scheduler.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(result.Nodes))
	byName := make(map[string]scheduler.NodeSnapshot, len(result.Nodes))
	for _, n := range result.Nodes {
		names = append(names, n.Name)
		byName[n.Name] = n
	}
	sort.Strings(names)

	failed := 0
	for _, n := range names {
		if byName[n].Status == scheduler.NodeStatusFailed {
			failed++
		}
	}
	if result.Success {
		fmt.Fprintf(f.out, "%s %d task(s) complete\n", f.colorize(color.New(color.FgGreen, color.Bold), "✔"), len(names))
	} else {
		fmt.Fprintf(f.out, "%s %d task(s) failed\n", f.colorize(color.New(color.FgRed, color.Bold), "✘"), failed)
	}
}
