// Package graph implements the Graph Builder (spec §4.3): alias expansion,
// matrix expansion, DAG construction from a target set, cycle detection, and
// execution leveling. Per spec §9 ("arena + integer indices"), the graph is
// a slice of task nodes with edges represented as index pairs rather than
// pointers, keeping it serializable and cycle detection cheap.
package graph

import (
	"sort"
	"strings"

	"github.com/zr-run/zr/internal/config"
	"github.com/zr-run/zr/internal/zrerrors"
)

// EdgeKind distinguishes a parallel (deps) edge from a serial (deps_serial)
// chain edge (spec §3/§4.3).
type EdgeKind int

const (
	EdgeParallel EdgeKind = iota
	EdgeSerial
)

// Edge is a (from, to) pair of node indices: to depends on from.
type Edge struct {
	From, To int
	Kind     EdgeKind
}

// Node is one concrete task instance in the graph, keyed by index rather
// than by pointer (spec §9).
type Node struct {
	Task  *config.Task
	Level int
}

// Graph is the execution graph: a vector of nodes plus index-pair edges
// (spec §3 "Ownership", §9).
type Graph struct {
	Nodes     []Node
	Edges     []Edge
	nameIndex map[string]int

	// MatrixGroups maps a matrix base task name to the indices of its
	// concrete variants, used by the scheduler to enforce max_concurrent
	// (spec §4.6.1).
	MatrixGroups map[string][]int

	// Tools carries the config's advisory toolchain versions through to the
	// Scheduler so they can be folded into a task's fingerprint (spec §3/
	// §4.2: tool versions are a canonical, hashed input).
	Tools map[string]string
}

// IndexOf returns the node index for a concrete task name.
func (g *Graph) IndexOf(name string) (int, bool) {
	i, ok := g.nameIndex[name]
	return i, ok
}

// DependsOn returns the edges into i from its direct dependencies (both
// kinds); each edge's From is the dependency's index.
func (g *Graph) DependsOn(i int) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.To == i {
			out = append(out, e)
		}
	}
	return out
}

// Dependents returns the indices of nodes that depend on i.
func (g *Graph) Dependents(i int) []int {
	var out []int
	for _, e := range g.Edges {
		if e.From == i {
			out = append(out, e.To)
		}
	}
	return out
}

// Build expands aliases and matrices for the given target names, then walks
// from each target to build the execution graph (spec §4.3 steps 1-5).
func Build(cfg *config.Config, targets []string) (*Graph, error) {
	concreteTargets, err := ExpandAliases(cfg, targets)
	if err != nil {
		return nil, err
	}

	expandedTasks, groups := ExpandMatrix(cfg.Tasks)

	g := &Graph{nameIndex: map[string]int{}, MatrixGroups: map[string][]int{}, Tools: cfg.Tools}

	// resolveDepNames turns a dependency name into the concrete names it
	// refers to: itself if concrete, or all variants if it names a matrix
	// base (spec §4.3 step 3).
	resolveDepNames := func(dep string) ([]string, error) {
		if variants, ok := groups[dep]; ok {
			return variants, nil
		}
		if _, ok := expandedTasks[dep]; ok {
			return []string{dep}, nil
		}
		return nil, zrerrors.InvalidConfig(zrerrors.SubUnknownTask, "unknown task %q", dep)
	}

	ensureNode := func(name string) (int, error) {
		if i, ok := g.nameIndex[name]; ok {
			return i, nil
		}
		t, ok := expandedTasks[name]
		if !ok {
			return 0, zrerrors.InvalidConfig(zrerrors.SubUnknownTask, "unknown task %q", name)
		}
		idx := len(g.Nodes)
		g.Nodes = append(g.Nodes, Node{Task: t})
		g.nameIndex[name] = idx
		return idx, nil
	}

	visited := map[string]struct{}{}
	var queue []string
	for _, t := range concreteTargets {
		names, err := resolveDepNames(t)
		if err != nil {
			return nil, err
		}
		queue = append(queue, names...)
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if _, ok := visited[name]; ok {
			continue
		}
		visited[name] = struct{}{}

		idx, err := ensureNode(name)
		if err != nil {
			return nil, err
		}
		task := g.Nodes[idx].Task

		addEdges := func(depNames []string, kind EdgeKind) error {
			var prev = -1
			for _, dn := range depNames {
				resolved, err := resolveDepNames(dn)
				if err != nil {
					return err
				}
				for _, rd := range resolved {
					depIdx, err := ensureNode(rd)
					if err != nil {
						return err
					}
					if kind == EdgeSerial && prev >= 0 {
						g.Edges = append(g.Edges, Edge{From: prev, To: depIdx, Kind: EdgeSerial})
					}
					g.Edges = append(g.Edges, Edge{From: depIdx, To: idx, Kind: kind})
					queue = append(queue, rd)
					if kind == EdgeSerial {
						prev = depIdx
					}
				}
			}
			return nil
		}

		if err := addEdges(task.Deps, EdgeParallel); err != nil {
			return nil, err
		}
		if err := addEdges(task.DepsSerial, EdgeSerial); err != nil {
			return nil, err
		}
	}

	for base, variants := range groups {
		for _, v := range variants {
			if idx, ok := g.nameIndex[v]; ok {
				g.MatrixGroups[base] = append(g.MatrixGroups[base], idx)
			}
		}
	}

	dedupeEdges(g)

	if cyclePath, ok := detectCycle(g); ok {
		names := make([]string, len(cyclePath))
		for i, idx := range cyclePath {
			names[i] = g.Nodes[idx].Task.Name
		}
		return nil, zrerrors.New(zrerrors.KindCycleDetected, "cycle: %s", strings.Join(names, " -> "))
	}

	computeLevels(g)

	sort.Strings(concreteTargets) // determinism: stable target ordering for callers

	return g, nil
}

func dedupeEdges(g *Graph) {
	type pair struct{ from, to int }
	seen := map[pair]int{}
	out := g.Edges[:0]
	for _, e := range g.Edges {
		key := pair{e.From, e.To}
		if j, ok := seen[key]; ok {
			// A task referenced in both deps and deps_serial of the same
			// parent counts once; the serial edge wins (spec §4.3 step 3).
			if e.Kind == EdgeSerial {
				out[j].Kind = EdgeSerial
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, e)
	}
	g.Edges = out
}

// detectCycle runs depth-first three-coloring over the combined edge set
// (spec §4.3 step 4); on the first back edge it returns the complete cycle
// path.
func detectCycle(g *Graph) ([]int, bool) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, len(g.Nodes))

	adj := make([][]int, len(g.Nodes))
	for _, e := range g.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}
	for i := range adj {
		sort.Ints(adj[i])
	}

	var stack []int
	var visit func(i int) ([]int, bool)
	visit = func(i int) ([]int, bool) {
		color[i] = gray
		stack = append(stack, i)
		for _, next := range adj[i] {
			if color[next] == gray {
				// back edge: extract the cycle from stack
				start := 0
				for k, s := range stack {
					if s == next {
						start = k
						break
					}
				}
				cyc := append([]int{}, stack[start:]...)
				cyc = append(cyc, next)
				return cyc, true
			}
			if color[next] == white {
				if p, found := visit(next); found {
					return p, true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[i] = black
		return nil, false
	}

	order := make([]int, len(g.Nodes))
	for i := range order {
		order[i] = i
	}
	for _, i := range order {
		if color[i] == white {
			if p, found := visit(i); found {
				return p, true
			}
		}
	}
	return nil, false
}

// computeLevels assigns each node the length of the longest path from a
// root (spec §4.3 step 5): not used for scheduling correctness, exposed to
// `zr graph`.
func computeLevels(g *Graph) {
	// Memoized depth-first pass: a node's level is 1 + max(level of
	// its dependencies), 0 for roots.
	indeg := make([]int, len(g.Nodes))
	depsOf := make([][]int, len(g.Nodes))
	for _, e := range g.Edges {
		depsOf[e.To] = append(depsOf[e.To], e.From)
		indeg[e.To]++
	}

	level := make([]int, len(g.Nodes))
	memo := make([]bool, len(g.Nodes))
	var compute func(i int) int
	compute = func(i int) int {
		if memo[i] {
			return level[i]
		}
		memo[i] = true
		best := 0
		for _, d := range depsOf[i] {
			if l := compute(d) + 1; l > best {
				best = l
			}
		}
		level[i] = best
		return best
	}
	for i := range g.Nodes {
		g.Nodes[i].Level = compute(i)
	}
}
