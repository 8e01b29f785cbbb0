// Package fingerprint computes the 256-bit content hash that identifies a
// cacheable task execution (spec §3, §4.2).
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Digester memoizes (path, mtime, size) -> content digest for the lifetime
// of a single invocation (spec §3 "memoized within a single invocation",
// §5 "Fingerprint memoization table... mutation is bounded to the driver
// thread that owns the graph"). Backed by hashicorp/golang-lru so a large
// input-file set cannot grow the table unbounded.
type Digester struct {
	cache *lru.Cache[digestKey, [32]byte]
}

type digestKey struct {
	path  string
	mtime int64
	size  int64
}

// NewDigester builds a Digester with the given memoization capacity.
func NewDigester(capacity int) (*Digester, error) {
	c, err := lru.New[digestKey, [32]byte](capacity)
	if err != nil {
		return nil, err
	}
	return &Digester{cache: c}, nil
}

// Digest returns the content digest of path, using the memoized value when
// (path, mtime, size) is unchanged since last call in this invocation.
func (d *Digester) Digest(path string) ([32]byte, error) {
	st, err := os.Stat(path)
	if err != nil {
		return [32]byte{}, err
	}
	key := digestKey{path: path, mtime: st.ModTime().UnixNano(), size: st.Size()}
	if v, ok := d.cache.Get(key); ok {
		return v, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return [32]byte{}, err
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	d.cache.Add(key, sum)
	return sum, nil
}

// InputDigest is one (path, digest) pair contributing to a fingerprint.
type InputDigest struct {
	Path   string
	Digest [32]byte
}

// ExpandInputs expands cache.inputs glob patterns against cwd using
// `*`/`**` matching (spec §9: "plain `*` and `**` expansion; do not
// introduce a regex dependency") and returns the sorted, deduplicated file
// list.
func ExpandInputs(cwd string, patterns []string) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	fsys := os.DirFS(cwd)
	for _, pat := range patterns {
		matches, err := doublestar.Glob(fsys, pat)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			abs := filepath.Join(cwd, m)
			if st, err := os.Stat(abs); err == nil && !st.IsDir() {
				if _, dup := seen[abs]; !dup {
					seen[abs] = struct{}{}
					out = append(out, abs)
				}
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// Inputs is the canonical tuple hashed into a fingerprint (spec §3/§4.2).
type Inputs struct {
	ResolvedCmd  string
	Env          []string // "KEY=VALUE", sorted by key
	Cwd          string   // absolute
	InputFiles   []InputDigest
	Platform     string
	TaskName     string
	ToolVersions []string // "tool=version", sorted by tool name
}

// Compute hashes the canonical byte-serialization of Inputs. Two different
// serializations produce different hashes with overwhelming probability
// (spec §4.2); wall-clock time never enters the serialization (spec P5).
func Compute(in Inputs) [32]byte {
	h := sha256.New()

	writeString(h, in.ResolvedCmd)
	writeString(h, in.Cwd)
	writeString(h, in.Platform)
	writeString(h, in.TaskName)

	writeUint(h, uint64(len(in.Env)))
	for _, kv := range in.Env {
		writeString(h, kv)
	}

	tools := append([]string{}, in.ToolVersions...)
	sort.Strings(tools)
	writeUint(h, uint64(len(tools)))
	for _, tv := range tools {
		writeString(h, tv)
	}

	files := append([]InputDigest{}, in.InputFiles...)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	writeUint(h, uint64(len(files)))
	for _, f := range files {
		writeString(h, f.Path)
		h.Write(f.Digest[:])
	}

	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

func writeString(h io.Writer, s string) {
	writeUint(h, uint64(len(s)))
	io.WriteString(h, s)
}

func writeUint(h io.Writer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	h.Write(b[:])
}

// Hex renders a fingerprint as a lowercase hex string, used for cache
// directory/file names (spec §6 persisted-state layout).
func Hex(fp [32]byte) string {
	return hex.EncodeToString(fp[:])
}
