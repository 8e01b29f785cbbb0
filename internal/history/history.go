// Package history implements the append-only execution History Log
// (spec §4.7): one line-delimited record per task attempt, tolerant of a
// truncated trailing record from a prior crash (spec P11).
package history

import (
	"bufio"
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/gofrs/flock"
)

// Record is one task-attempt history entry (spec §3 "History Record").
type Record struct {
	TaskName  string    `json:"task_name"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	ExitCode  int       `json:"exit_code"`
	CacheHit  bool      `json:"cache_hit"`
	Attempt   int       `json:"attempt"`
	Profile   string    `json:"profile,omitempty"`
	Revision  string    `json:"revision,omitempty"`
	Status    string    `json:"status"`
	RunID     string    `json:"run_id"`
}

// Log is the append-only writer/reader for history.jsonl (spec §6 persisted
// state layout).
type Log struct {
	path string
}

// Open returns a Log backed by path (typically ".zr/history.jsonl"); the
// file need not exist yet.
func Open(path string) *Log {
	return &Log{path: path}
}

// Append writes one record to the log. The file is opened in append mode
// and the write is wrapped in an advisory file lock so two zr processes
// racing on the same project don't interleave mid-record (spec §5:
// "single writer per process... multi-process concurrent writes may
// interleave at record boundaries; readers must parse record-terminators
// and skip garbage tolerantly").
func (l *Log) Append(r Record) error {
	lock := flock.New(l.path + ".lock")
	if err := lock.Lock(); err == nil {
		defer lock.Unlock()
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = f.Write(data)
	return err
}

// All reads every well-formed record in the log. A malformed or truncated
// trailing line is discarded without error (spec §4.7, P11); an empty or
// missing log is not an error.
func (l *Log) All() ([]Record, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			// Tolerate a truncated/garbage line (typically the last one
			// after a crash) rather than failing the whole read.
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

// Tail returns the last n records in chronological order.
func (l *Log) Tail(n int) ([]Record, error) {
	all, err := l.All()
	if err != nil {
		return nil, err
	}
	if n <= 0 || n >= len(all) {
		return all, nil
	}
	return all[len(all)-n:], nil
}

// Since returns records with Start at or after t.
func (l *Log) Since(t time.Time) ([]Record, error) {
	all, err := l.All()
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, r := range all {
		if !r.Start.Before(t) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Filter returns records matching the given predicate, e.g. by task name,
// status, or profile.
func (l *Log) Filter(pred func(Record) bool) ([]Record, error) {
	all, err := l.All()
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, r := range all {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// SortByStart sorts records ascending by start time, used when multi-process
// writers interleaved appends out of wall-clock order.
func SortByStart(records []Record) {
	sort.SliceStable(records, func(i, j int) bool { return records[i].Start.Before(records[j].Start) })
}
