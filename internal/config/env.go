package config

import (
	"os"
	"sort"
	"strings"
)

// EffectiveEnv merges process env + profile env + task env, later layers
// overriding (spec §3, §6). The result is sorted by key when serialized for
// fingerprinting (spec §4.2).
func EffectiveEnv(task *Task, profile *Profile) map[string]string {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	if profile != nil {
		for k, v := range profile.Env {
			env[k] = v
		}
		if ov, ok := profile.TaskOverrides[task.Name]; ok {
			for k, v := range ov.Env {
				env[k] = v
			}
		}
	}
	for k, v := range task.Env {
		env[k] = v
	}
	return env
}

// SortedEnvPairs returns "KEY=VALUE" pairs sorted by key, used both for
// fingerprinting (canonical serialization) and for building a child
// process's environment.
func SortedEnvPairs(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// ApplyProfileOverrides returns a copy of task with the profile's permitted
// field overrides (timeout/retry/allow_failure) applied on top.
func ApplyProfileOverrides(task *Task, profile *Profile) *Task {
	if profile == nil {
		return task
	}
	ov, ok := profile.TaskOverrides[task.Name]
	if !ok {
		return task
	}
	out := *task
	if ov.TimeoutMS != nil {
		out.TimeoutMS = *ov.TimeoutMS
	}
	if ov.Retry != nil {
		out.Retry = *ov.Retry
	}
	if ov.AllowFailure != nil {
		out.AllowFailure = *ov.AllowFailure
	}
	return &out
}
