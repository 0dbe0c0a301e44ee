package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/ruleunit/internal/ir"
)

// CycleWarning reports rules that can re-trigger each other.
//
// Cycles are warnings, not errors, because they may be intentional:
// a rule that updates a fact it matches is the usual way to iterate,
// and negated conditions often terminate what looks like a loop.
// The firing cap stops cycles that never settle.
type CycleWarning struct {
	Path    []string `json:"path"`
	Types   []string `json:"types"`
	Message string   `json:"message"`
	Level   string   `json:"level"`
}

// AnalyzeCycles builds the rule dependency graph and reports every
// strongly connected component that forms a cycle.
//
// Rule A has an edge to rule B when A may insert or update a fact type that
// B's conditions reference. Warnings come out in rule declaration order.
func AnalyzeCycles(rules []ir.RuleSpec) []CycleWarning {
	if len(rules) == 0 {
		return []CycleWarning{}
	}
	graph := buildDependencyGraph(rules)

	order := make([]string, len(rules))
	rank := make(map[string]int, len(rules))
	for i, r := range rules {
		order[i] = r.Name
		rank[r.Name] = i
	}

	warnings := []CycleWarning{}
	for _, scc := range tarjanSCC(order, graph.edges) {
		if len(scc) == 1 && !slices.Contains(graph.edges[scc[0]], scc[0]) {
			continue
		}
		slices.SortFunc(scc, func(a, b string) int { return rank[a] - rank[b] })
		warnings = append(warnings, sccToWarning(scc, graph))
	}
	slices.SortFunc(warnings, func(a, b CycleWarning) int { return rank[a.Path[0]] - rank[b.Path[0]] })
	return warnings
}

type dependencyGraph struct {
	edges map[string][]string
	// via records the fact types carried by an edge ("a\x00b").
	via map[string][]string
}

func buildDependencyGraph(rules []ir.RuleSpec) dependencyGraph {
	g := dependencyGraph{
		edges: make(map[string][]string, len(rules)),
		via:   make(map[string][]string),
	}
	matchers := make(map[string][]string)
	for _, r := range rules {
		for _, t := range r.Types() {
			matchers[t] = append(matchers[t], r.Name)
		}
	}
	for _, r := range rules {
		g.edges[r.Name] = []string{}
		for _, t := range r.InsertedTypes() {
			for _, target := range matchers[t] {
				key := r.Name + "\x00" + target
				if !slices.Contains(g.edges[r.Name], target) {
					g.edges[r.Name] = append(g.edges[r.Name], target)
				}
				g.via[key] = append(g.via[key], t)
			}
		}
	}
	return g
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm,
// visiting nodes in the given order so that results are deterministic.
func tarjanSCC(nodes []string, graph map[string][]string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func sccToWarning(scc []string, g dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		name := scc[0]
		types := g.via[name+"\x00"+name]
		return CycleWarning{
			Path:    []string{name, name},
			Types:   types,
			Message: fmt.Sprintf("rule %s can re-trigger itself via %s", name, strings.Join(types, ", ")),
			Level:   "warning",
		}
	}

	path := cyclePath(scc, g.edges)
	seen := make(map[string]bool)
	var types []string
	for i := 0; i+1 < len(path); i++ {
		for _, t := range g.via[path[i]+"\x00"+path[i+1]] {
			if !seen[t] {
				seen[t] = true
				types = append(types, t)
			}
		}
	}
	slices.Sort(types)
	return CycleWarning{
		Path:    path,
		Types:   types,
		Message: fmt.Sprintf("potential rule cycle: %s", strings.Join(path, " -> ")),
		Level:   "warning",
	}
}

// cyclePath walks edges inside the SCC from its first member until it
// returns to the start. Members the walk cannot reach are omitted.
func cyclePath(scc []string, graph map[string][]string) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}
	start := scc[0]
	path := []string{start}
	visited := map[string]bool{start: true}
	current := start
	for {
		var next string
		for _, w := range graph[current] {
			if w == start && len(path) > 1 {
				next = w
				break
			}
			if members[w] && !visited[w] {
				next = w
				break
			}
		}
		if next == "" {
			// dead end: close the cycle if an edge back to start exists
			if slices.Contains(graph[current], start) {
				path = append(path, start)
			}
			return path
		}
		path = append(path, next)
		if next == start {
			return path
		}
		visited[next] = true
		current = next
	}
}
