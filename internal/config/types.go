// Package config implements the Config Loader (spec §4.1): parsing the
// TOML-like configuration file into the typed model of spec §3, merging
// workspace/profile/template overlays, and validating the result.
package config

import "regexp"

// nameRe is the §3 Task.name grammar: "[A-Za-z0-9_-]+", non-empty.
var nameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Task is the unit of work (spec §3).
type Task struct {
	Name        string
	Cmd         string
	Cwd         string
	Description string

	Deps       []string
	DepsSerial []string

	Env map[string]string

	TimeoutMS    int64
	Retry        int
	AllowFailure bool
	Condition    string

	Cache *CacheSpec

	MaxConcurrent int
	Limits        Limits
	Tags          map[string]struct{}

	Matrix map[string][]string

	// Template is the name of a templates.<name> section this task
	// inherits unset fields from (§4.1).
	Template string

	// SourcePath is the directory of the config file this task came from,
	// set by the loader; SourceLine is not set by the loader.
	SourcePath string
	SourceLine int
}

// CacheSpec is the struct form of Task.cache (spec §3); the boolean form
// (cache = true) is represented as &CacheSpec{} with both glob lists empty,
// meaning "cache on cmd/env/cwd/platform alone, no input/output files".
type CacheSpec struct {
	Inputs  []string
	Outputs []string
}

// Limits are advisory resource hints (spec §3); the scheduler may use them
// for diagnostics only, never for enforcement.
type Limits struct {
	CPU      float64
	MemoryMB int64
}

// Alias is a secondary name expanding to a command-line fragment (spec §3).
// Values is a list because list-valued aliases expand to multiple targets.
type Alias struct {
	Name   string
	Values []string
}

// Profile is a named environment overlay (spec §3).
type Profile struct {
	Name string
	Env  map[string]string
	// TaskOverrides holds permitted per-task field overrides keyed by
	// task name, applied on top of the task's own fields when this
	// profile is active.
	TaskOverrides map[string]TaskOverride
}

// TaskOverride is the subset of Task fields a profile is permitted to
// override (spec §3: "permitted task-field overrides").
type TaskOverride struct {
	Env          map[string]string
	TimeoutMS    *int64
	Retry        *int
	AllowFailure *bool
}

// WorkspaceMember is one entry of a workspace's member list (spec §3),
// resolved from a literal path or glob pattern.
type WorkspaceMember struct {
	Name string // directory base name, used as the namespace prefix
	Path string // absolute path to the member directory
	// DependsOn lists other member names this member depends on, used by
	// the Affected-Set Analyzer's --include-dependents closure.
	DependsOn []string
}

// Workspace is the optional root declaration listing members (spec §3).
type Workspace struct {
	MemberPatterns []string
	Members        []WorkspaceMember
}

// Template is a task schema referenced by a task's template= field
// (spec §4.1); it carries the same fields as Task minus Name.
type Template struct {
	Name string
	Task Task
}

// Config is the fully-resolved, validated model produced by Load (spec §3).
type Config struct {
	// Path is the file this config was loaded from.
	Path string

	Tasks     map[string]*Task
	Aliases   map[string]*Alias
	Profiles  map[string]*Profile
	Templates map[string]*Template
	Workspace *Workspace

	// Tools holds advisory toolchain versions (tools section); not
	// enforced by the core, folded into each task's fingerprint.
	Tools map[string]string

	// Diagnostics accumulates non-fatal warnings produced while loading
	// (unknown top-level keys).
	Diagnostics []Diagnostic
}

// Diagnostic is a structured, non-fatal warning (spec §4.1 "Unknown keys:
// warn... do not fail").
type Diagnostic struct {
	Message string
	Path    string
	Line    int
}

func validName(name string) bool {
	return name != "" && nameRe.MatchString(name)
}
