package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"dario.cat/mergo"
	"github.com/pelletier/go-toml/v2"

	"github.com/zr-run/zr/internal/zrerrors"
)

// DefaultFileName is the discovered config file name (spec §4.1, §6).
const DefaultFileName = "zr.toml"

// Discover searches upward from dir for DefaultFileName, the way a
// .gitignore/.git root is found, stopping at the filesystem root.
func Discover(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", zrerrors.Wrap(zrerrors.KindIO, err, "resolve cwd")
	}
	cur := abs
	for {
		candidate := filepath.Join(cur, DefaultFileName)
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", zrerrors.New(zrerrors.KindIO, "no %s found above %s", DefaultFileName, dir)
		}
		cur = parent
	}
}

// Load reads and validates the config at path. If path is empty, it
// discovers zr.toml by searching upward from the current directory
// (spec §4.1).
func Load(path string) (*Config, error) {
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, zrerrors.Wrap(zrerrors.KindIO, err, "getwd")
		}
		found, err := Discover(cwd)
		if err != nil {
			return nil, err
		}
		path = found
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, zrerrors.Wrap(zrerrors.KindIO, err, "read config %s", path)
	}

	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, zrerrors.Wrap(zrerrors.KindConfigParse, err, "parse %s", path)
	}

	cfg := &Config{
		Path:      path,
		Tasks:     map[string]*Task{},
		Aliases:   map[string]*Alias{},
		Profiles:  map[string]*Profile{},
		Templates: map[string]*Template{},
		Tools:     map[string]string{},
	}

	dir := filepath.Dir(path)

	if err := loadTemplates(cfg, raw); err != nil {
		return nil, err
	}
	if err := loadTasks(cfg, raw, dir); err != nil {
		return nil, err
	}
	if err := loadAliases(cfg, raw); err != nil {
		return nil, err
	}
	if err := loadProfiles(cfg, raw); err != nil {
		return nil, err
	}
	if err := loadWorkspace(cfg, raw, dir); err != nil {
		return nil, err
	}
	loadTools(cfg, raw)
	warnUnknownKeys(cfg, raw)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

var knownTopLevel = map[string]struct{}{
	"tasks": {}, "alias": {}, "aliases": {}, "profiles": {}, "workspace": {},
	"templates": {}, "tools": {}, "versioning": {}, "codeowners": {},
	"constraints": {},
}

func warnUnknownKeys(cfg *Config, raw map[string]any) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := knownTopLevel[k]; !ok {
			cfg.Diagnostics = append(cfg.Diagnostics, Diagnostic{
				Message: fmt.Sprintf("unknown top-level key %q", k),
				Path:    cfg.Path,
			})
		}
	}
}

func loadTools(cfg *Config, raw map[string]any) {
	tools, ok := raw["tools"].(map[string]any)
	if !ok {
		return
	}
	for k, v := range tools {
		if s, ok := v.(string); ok {
			cfg.Tools[k] = s
		}
	}
}

func asTable(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asStringSlice(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	case string:
		return []string{t}
	default:
		return nil
	}
}

func asStringMap(v any) map[string]string {
	m, ok := asTable(v)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		switch t := val.(type) {
		case string:
			out[k] = t
		default:
			out[k] = fmt.Sprintf("%v", t)
		}
	}
	return out
}

func loadTemplates(cfg *Config, raw map[string]any) error {
	section, ok := asTable(raw["templates"])
	if !ok {
		return nil
	}
	names := sortedKeys(section)
	for _, name := range names {
		tbl, ok := asTable(section[name])
		if !ok {
			// Malformed template section: silently dropped, matching
			// the documented task-section quirk (see loadTasks).
			continue
		}
		t, _, err := taskFromTable(name, tbl, "")
		if err != nil {
			return err
		}
		cfg.Templates[name] = &Template{Name: name, Task: *t}
	}
	return nil
}

// loadTasks decodes the [tasks.<name>] section into Config.Tasks.
//
// Preserved quirk (spec §7, Open Question 1): a [tasks.X] section whose
// value does not decode to a table (e.g. `tasks.X = "oops"` instead of a
// sub-table) is silently skipped here rather than raising a parse error;
// later references to X then fail with InvalidConfig{UnknownTask} instead
// of a more specific parse diagnostic. This is deliberately preserved
// rather than "fixed" because downstream behavior depends on it.
func loadTasks(cfg *Config, raw map[string]any, dir string) error {
	section, ok := asTable(raw["tasks"])
	if !ok {
		return nil
	}
	names := sortedKeys(section)
	for _, name := range names {
		tbl, ok := asTable(section[name])
		if !ok {
			continue // quirk: silently dropped, see doc comment above
		}
		task, matrix, err := taskFromTable(name, tbl, dir)
		if err != nil {
			return err
		}

		if tplName, ok := tbl["template"].(string); ok && tplName != "" {
			tpl, ok := cfg.Templates[tplName]
			if !ok {
				return zrerrors.InvalidConfig(zrerrors.SubUnknownTask, "task %q references unknown template %q", name, tplName).At(cfg.Path, 0)
			}
			merged := tpl.Task
			if err := mergo.Merge(&merged, *task, mergo.WithOverride); err != nil {
				return zrerrors.Wrap(zrerrors.KindInvalidConfig, err, "merge template %q into task %q", tplName, name)
			}
			merged.Name = name
			task = &merged
		}

		if task.Cmd == "" {
			return zrerrors.InvalidConfig(zrerrors.SubEmptyCmd, "task %q has empty cmd", name).At(cfg.Path, 0)
		}
		if !validName(name) {
			return zrerrors.InvalidConfig(zrerrors.SubBadName, "task name %q is invalid", name).At(cfg.Path, 0)
		}

		task.Matrix = matrix
		cfg.Tasks[name] = task
	}
	return nil
}

func taskFromTable(name string, tbl map[string]any, dir string) (*Task, map[string][]string, error) {
	t := &Task{Name: name, SourcePath: dir}

	if v, ok := tbl["cmd"].(string); ok {
		t.Cmd = v
	}
	if v, ok := tbl["cwd"].(string); ok {
		t.Cwd = v
	}
	if v, ok := tbl["description"].(string); ok {
		t.Description = v
	}
	if v, ok := tbl["template"].(string); ok {
		t.Template = v
	}
	t.Deps = asStringSlice(tbl["deps"])
	t.DepsSerial = asStringSlice(tbl["deps_serial"])
	t.Env = asStringMap(tbl["env"])

	if v, ok := tbl["timeout_ms"]; ok {
		ms, err := durationFromAny(v)
		if err != nil {
			return nil, nil, err
		}
		t.TimeoutMS = ms
	}
	if v, ok := tbl["retry"]; ok {
		t.Retry = int(toInt(v))
	}
	if v, ok := tbl["allow_failure"].(bool); ok {
		t.AllowFailure = v
	}
	if v, ok := tbl["condition"].(string); ok {
		t.Condition = v
	}
	if v, ok := tbl["max_concurrent"]; ok {
		t.MaxConcurrent = int(toInt(v))
	}

	if v, ok := tbl["cache"]; ok {
		switch c := v.(type) {
		case bool:
			if c {
				t.Cache = &CacheSpec{}
			}
		case map[string]any:
			t.Cache = &CacheSpec{
				Inputs:  asStringSlice(c["inputs"]),
				Outputs: asStringSlice(c["outputs"]),
			}
		}
	}

	if v, ok := tbl["limits"]; ok {
		if m, ok := asTable(v); ok {
			if cpu, ok := m["cpu"]; ok {
				t.Limits.CPU = toFloat(cpu)
			}
			if mem, ok := m["memory_mb"]; ok {
				t.Limits.MemoryMB = toInt(mem)
			}
		}
	}

	if v, ok := tbl["tags"]; ok {
		tags := asStringSlice(v)
		if len(tags) > 0 {
			t.Tags = make(map[string]struct{}, len(tags))
			for _, tag := range tags {
				t.Tags[tag] = struct{}{}
			}
		}
	}

	var matrix map[string][]string
	if v, ok := tbl["matrix"]; ok {
		m, ok := asTable(v)
		if !ok {
			return nil, nil, zrerrors.InvalidConfig(zrerrors.SubBadMatrix, "task %q matrix must be a table", name)
		}
		matrix = make(map[string][]string, len(m))
		for dim, vals := range m {
			list := asStringSlice(vals)
			if len(list) == 0 {
				return nil, nil, zrerrors.InvalidConfig(zrerrors.SubBadMatrix, "task %q matrix dimension %q is empty", name, dim)
			}
			matrix[dim] = list
		}
	}

	return t, matrix, nil
}

func durationFromAny(v any) (int64, error) {
	switch t := v.(type) {
	case string:
		return parseDurationMS(t)
	case int64:
		return t, nil
	case float64:
		return int64(t), nil
	default:
		return 0, zrerrors.InvalidConfig(zrerrors.SubBadDuration, "unsupported duration value %v", v)
	}
}

func toInt(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case int:
		return float64(t)
	default:
		return 0
	}
}

func loadAliases(cfg *Config, raw map[string]any) error {
	section, ok := asTable(raw["alias"])
	if !ok {
		section, ok = asTable(raw["aliases"])
	}
	if !ok {
		return nil
	}
	for name, v := range section {
		values := asStringSlice(v)
		if values == nil {
			continue
		}
		cfg.Aliases[name] = &Alias{Name: name, Values: values}
	}
	return nil
}

func loadProfiles(cfg *Config, raw map[string]any) error {
	section, ok := asTable(raw["profiles"])
	if !ok {
		return nil
	}
	for name, v := range section {
		tbl, ok := asTable(v)
		if !ok {
			continue
		}
		p := &Profile{Name: name, Env: asStringMap(tbl["env"]), TaskOverrides: map[string]TaskOverride{}}
		if overrides, ok := asTable(tbl["tasks"]); ok {
			for taskName, ov := range overrides {
				ovTbl, ok := asTable(ov)
				if !ok {
					continue
				}
				to := TaskOverride{Env: asStringMap(ovTbl["env"])}
				if v, ok := ovTbl["timeout_ms"]; ok {
					ms, err := durationFromAny(v)
					if err == nil {
						to.TimeoutMS = &ms
					}
				}
				if v, ok := ovTbl["retry"]; ok {
					r := int(toInt(v))
					to.Retry = &r
				}
				if v, ok := ovTbl["allow_failure"].(bool); ok {
					to.AllowFailure = &v
				}
				p.TaskOverrides[taskName] = to
			}
		}
		cfg.Profiles[name] = p
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
