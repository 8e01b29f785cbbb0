package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/zr-run/zr/internal/config"
)

// ExpandMatrix replaces every task with a `matrix` into one concrete
// instance per Cartesian point, named with the deterministic suffix of
// spec §3 ("name/dim1=val1,dim2=val2"), produced in lexicographic dimension
// order (spec §4.3 determinism). Tasks without a matrix pass through
// unchanged. Satisfies P12 (matrix completeness): a matrix with dimensions
// of size k1..kn yields exactly Π ki concrete tasks with unique suffixes.
func ExpandMatrix(tasks map[string]*config.Task) (map[string]*config.Task, map[string][]string) {
	out := make(map[string]*config.Task, len(tasks))
	// groups maps base task name -> concrete variant names, used for
	// max_concurrent enforcement by the scheduler.
	groups := make(map[string][]string)

	names := make([]string, 0, len(tasks))
	for n := range tasks {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		t := tasks[name]
		if len(t.Matrix) == 0 {
			clone := *t
			out[name] = &clone
			continue
		}

		dims := make([]string, 0, len(t.Matrix))
		for d := range t.Matrix {
			dims = append(dims, d)
		}
		sort.Strings(dims)

		points := cartesian(t.Matrix, dims)
		var variantNames []string
		for _, point := range points {
			suffixParts := make([]string, len(dims))
			for i, d := range dims {
				suffixParts[i] = fmt.Sprintf("%s=%s", d, point[d])
			}
			variantName := fmt.Sprintf("%s/%s", name, strings.Join(suffixParts, ","))

			clone := *t
			clone.Name = variantName
			clone.Matrix = nil
			clone.Env = mergeEnv(t.Env, point, dims)
			clone.Deps = append([]string{}, t.Deps...)
			clone.DepsSerial = append([]string{}, t.DepsSerial...)
			out[variantName] = &clone
			variantNames = append(variantNames, variantName)
		}
		groups[name] = variantNames
	}
	return out, groups
}

func mergeEnv(base map[string]string, point map[string]string, dims []string) map[string]string {
	env := make(map[string]string, len(base)+len(point))
	for k, v := range base {
		env[k] = v
	}
	for _, d := range dims {
		env["MATRIX_"+strings.ToUpper(d)] = point[d]
	}
	return env
}

// cartesian produces the Cartesian product of matrix dimensions in
// lexicographic dimension order (spec §4.3 determinism).
func cartesian(matrix map[string][]string, dims []string) []map[string]string {
	points := []map[string]string{{}}
	for _, d := range dims {
		values := matrix[d]
		var next []map[string]string
		for _, p := range points {
			for _, v := range values {
				np := make(map[string]string, len(p)+1)
				for k, vv := range p {
					np[k] = vv
				}
				np[d] = v
				next = append(next, np)
			}
		}
		points = next
	}
	return lo.UniqBy(points, func(p map[string]string) string {
		keys := make([]string, 0, len(p))
		for k := range p {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var sb strings.Builder
		for _, k := range keys {
			sb.WriteString(k)
			sb.WriteByte('=')
			sb.WriteString(p[k])
			sb.WriteByte(';')
		}
		return sb.String()
	})
}
