package config

import (
	"bytes"
	"regexp"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"
)

// varRe matches both "${VAR}" and bare "$VAR" references the way a POSIX
// shell would, so task authors can write either without thinking about
// text/template syntax.
var varRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// Interpolate resolves "${VAR}"/"$VAR" references in s against env, then
// runs the result through text/template with sprig's function set so task
// authors can additionally use "{{ .Env.VAR | default \"x\" }}" style
// expressions in cmd/cwd fields.
func Interpolate(s string, env map[string]string) string {
	resolved := varRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := varRe.FindStringSubmatch(m)
		name := sub[1]
		if name == "" {
			name = sub[2]
		}
		if v, ok := env[name]; ok {
			return v
		}
		return ""
	})

	tpl, err := template.New("interp").Funcs(sprig.TxtFuncMap()).Parse(resolved)
	if err != nil {
		return resolved
	}
	var buf bytes.Buffer
	data := struct{ Env map[string]string }{Env: env}
	if err := tpl.Execute(&buf, data); err != nil {
		return resolved
	}
	return buf.String()
}

// ResolveTask returns a copy of task with Cmd and Cwd interpolated
// against the effective environment, ready for fingerprinting and spawning.
func ResolveTask(task *Task, env map[string]string) *Task {
	out := *task
	out.Cmd = Interpolate(task.Cmd, env)
	if task.Cwd != "" {
		out.Cwd = Interpolate(task.Cwd, env)
	}
	return &out
}
