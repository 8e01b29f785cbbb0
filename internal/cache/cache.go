// Package cache implements the Cache Store (spec §4.5): a content-addressed
// key/value store of task results keyed by fingerprint, with atomic writes
// and replay.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/zr-run/zr/internal/fingerprint"
)

// Entry is a cache entry (spec §3 "Cache Entry").
type Entry struct {
	Fingerprint   string            `json:"fingerprint"`
	ExitCode      int               `json:"exit_code"`
	Stdout        []byte            `json:"stdout"`
	Stderr        []byte            `json:"stderr"`
	OutputDigests map[string]string `json:"output_digests,omitempty"` // relative path -> hex sha256
	Timestamp     time.Time         `json:"timestamp"`
}

// Store is a directory-backed, content-addressed cache (spec §4.5).
// Lookups are lock-free reads of an immutable entry file; writes go
// through a temp-file-then-rename so a crash never leaves a corrupt entry
// visible (spec "atomic writes via rename").
type Store struct {
	root string // .zr/cache
}

// Open returns a Store rooted at dir (typically ".zr/cache").
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: dir}, nil
}

func (s *Store) pathFor(fp [32]byte) string {
	hexFp := fingerprint.Hex(fp)
	return filepath.Join(s.root, hexFp[:2], hexFp[2:]+".entry")
}

// Lookup returns the entry for fp, or nil on a miss. Any I/O or
// deserialization failure silently degrades to a miss (spec §7 recovery
// policy (a): "the cache is a hint").
func (s *Store) Lookup(fp [32]byte) *Entry {
	data, err := os.ReadFile(s.pathFor(fp))
	if err != nil {
		return nil
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil
	}
	return &e
}

// Store writes entry under fp atomically: a temp file is written in the
// same directory, then renamed into place (spec §4.5). Cross-process
// single-writer-per-fingerprint is not required; the last writer wins and
// replays are idempotent (spec §4.5, §5).
func (s *Store) Store(fp [32]byte, e Entry) error {
	e.Fingerprint = fingerprint.Hex(fp)
	target := s.pathFor(fp)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	lockPath := target + ".lock"
	lock := flock.New(lockPath)
	if err := lock.Lock(); err == nil {
		defer lock.Unlock()
	}

	tmp, err := os.CreateTemp(dir, "entry-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	data, err := json.Marshal(e)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, target)
}

// blobPathFor returns the content-addressed path for a blob keyed by its
// hex sha256 digest, sharded the same way as entry files.
func (s *Store) blobPathFor(hexDigest string) string {
	return filepath.Join(s.root, "blobs", hexDigest[:2], hexDigest[2:])
}

// writeAtomic writes data to path via a temp-file-then-rename, matching
// Store's own atomic-write discipline for cache entries.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "blob-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// StoreOutputs captures the files matched by patterns (relative to cwd) into
// content-addressed blobs and records their digests on entry keyed by the
// path relative to cwd (spec §4.5: "with the struct form, output files must
// be restored from the stored blobs"). A no-op when patterns is empty.
func (s *Store) StoreOutputs(cwd string, patterns []string, entry *Entry) error {
	if len(patterns) == 0 {
		return nil
	}
	files, err := fingerprint.ExpandInputs(cwd, patterns)
	if err != nil {
		return err
	}
	digests := make(map[string]string, len(files))
	for _, abs := range files {
		data, err := os.ReadFile(abs)
		if err != nil {
			continue
		}
		sum := sha256.Sum256(data)
		hexSum := hex.EncodeToString(sum[:])
		if _, statErr := os.Stat(s.blobPathFor(hexSum)); os.IsNotExist(statErr) {
			if err := writeAtomic(s.blobPathFor(hexSum), data); err != nil {
				return err
			}
		}
		rel, err := filepath.Rel(cwd, abs)
		if err != nil {
			rel = abs
		}
		digests[rel] = hexSum
	}
	entry.OutputDigests = digests
	return nil
}

// RestoreOutputs writes every blob recorded on entry back to its relative
// path under cwd. A missing blob is returned as an error so the caller can
// invalidate the whole entry instead of replaying a partial result (spec
// §4.5: "a missing blob invalidates the entry").
func (s *Store) RestoreOutputs(cwd string, entry *Entry) error {
	for rel, hexSum := range entry.OutputDigests {
		data, err := os.ReadFile(s.blobPathFor(hexSum))
		if err != nil {
			return err
		}
		if err := writeAtomic(filepath.Join(cwd, rel), data); err != nil {
			return err
		}
	}
	return nil
}

// PrunePolicy selects entries for removal; belongs to the `clean` command,
// not the steady-state run flow (spec §4.5).
type PrunePolicy struct {
	OlderThan time.Duration
}

// Prune removes entries matching policy and returns the count removed.
func (s *Store) Prune(policy PrunePolicy) (int, error) {
	removed := 0
	cutoff := time.Now().Add(-policy.OlderThan)
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ".entry" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil
		}
		if e.Timestamp.Before(cutoff) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
		return nil
	})
	return removed, err
}
