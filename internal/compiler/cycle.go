package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/formsync/internal/fieldpath"
	"github.com/roach88/formsync/internal/ir"
	"github.com/roach88/formsync/internal/transform"
)

// Cycle is a set of rules that read each other's targets.
type Cycle struct {
	Path    []string `json:"path"` // Target path: ["a", "b", "a"]
	Message string   `json:"message"`
}

// Order returns rs.Rules sorted so that every rule comes after the rules
// whose targets it reads. Declaration order breaks ties, so an already
// ordered table is returned unchanged.
//
// The algorithm:
//  1. Build target -> dependent-rule edges from sources, default sources,
//     paths a transform reads through the store, and section discriminators
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Reject any SCC with size > 1 or a self-loop as a dependency cycle
//  4. Kahn's algorithm, always releasing the earliest declared ready rule
func Order(rs *ir.RuleSet, reg *transform.Registry) ([]ir.Rule, error) {
	if len(rs.Rules) == 0 {
		return nil, nil
	}

	graph, err := buildDependencyGraph(rs, reg)
	if err != nil {
		return nil, err
	}

	var errs ValidationErrors
	for _, c := range findCycles(rs, graph) {
		errs = append(errs, ValidationError{
			Field:   "rules." + c.Path[0],
			Message: c.Message,
			Code:    ErrDependencyCycle,
		})
	}
	if len(errs) > 0 {
		return nil, errs
	}

	indegree := make([]int, len(rs.Rules))
	for _, succ := range graph {
		for _, w := range succ {
			indegree[w]++
		}
	}

	ordered := make([]ir.Rule, 0, len(rs.Rules))
	done := make([]bool, len(rs.Rules))
	for len(ordered) < len(rs.Rules) {
		next := -1
		for i := range rs.Rules {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			// Unreachable once cycles are rejected.
			return nil, fmt.Errorf("rule order: no rule is ready")
		}
		done[next] = true
		ordered = append(ordered, rs.Rules[next])
		for _, w := range graph[next] {
			indegree[w]--
		}
	}
	return ordered, nil
}

// dependencyGraph maps rule index -> indexes of rules that read its target.
type dependencyGraph [][]int

func buildDependencyGraph(rs *ir.RuleSet, reg *transform.Registry) (dependencyGraph, error) {
	targets := make([]fieldpath.Path, len(rs.Rules))
	for i, r := range rs.Rules {
		p, err := fieldpath.Parse(r.Target)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Target, err)
		}
		targets[i] = p
	}

	graph := make(dependencyGraph, len(rs.Rules))
	for i, r := range rs.Rules {
		reads, err := ruleReads(rs, reg, r)
		if err != nil {
			return nil, err
		}
		for j, target := range targets {
			for _, p := range reads {
				if fieldpath.Overlaps(target, p) {
					graph[j] = append(graph[j], i)
					break
				}
			}
		}
	}
	return graph, nil
}

// ruleReads lists every path rule r reads.
func ruleReads(rs *ir.RuleSet, reg *transform.Registry, r ir.Rule) ([]fieldpath.Path, error) {
	var raw []string
	candidates := r.Candidates
	if r.Default != nil {
		candidates = append(candidates[:len(candidates):len(candidates)], *r.Default)
	}
	for _, c := range candidates {
		if c.Source != "" {
			raw = append(raw, c.Source)
		}
		if def, ok := reg.Lookup(c.Transform); ok && def.Reads != nil {
			raw = append(raw, def.Reads(c.Args)...)
		}
	}
	if r.Section != "" {
		if sec, ok := rs.Section(r.Section); ok {
			raw = append(raw, sec.Discriminator)
		}
	}

	paths := make([]fieldpath.Path, 0, len(raw))
	for _, s := range raw {
		p, err := fieldpath.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("rule %q reads %q: %w", r.Target, s, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// findCycles reports every dependency cycle among rs.Rules.
func findCycles(rs *ir.RuleSet, graph dependencyGraph) []Cycle {
	var cycles []Cycle
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			path := reconstructCyclePath(scc, graph)
			names := make([]string, len(path))
			for i, n := range path {
				names[i] = rs.Rules[n].Target
			}
			cycles = append(cycles, Cycle{
				Path:    names,
				Message: "dependency cycle: " + strings.Join(names, " -> "),
			})
		}
	}
	return cycles
}

func hasSelfLoop(node int, graph dependencyGraph) bool {
	for _, w := range graph[node] {
		if w == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in index order so the result is deterministic.
func tarjanSCC(graph dependencyGraph) [][]int {
	var (
		index   = 0
		stack   []int
		indices = make(map[int]int)
		lowlink = make(map[int]int)
		onStack = make(map[int]bool)
		sccs    [][]int
	)

	var strongConnect func(int)
	strongConnect = func(v int) {
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
			var scc []int
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

	for node := range graph {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// reconstructCyclePath walks edges inside the SCC from its earliest declared
// member until it returns to it.
func reconstructCyclePath(scc []int, graph dependencyGraph) []int {
	inSCC := make(map[int]bool, len(scc))
	start := scc[0]
	for _, n := range scc {
		inSCC[n] = true
		start = min(start, n)
	}

	path := []int{start}
	visited := map[int]bool{}
	current := start
	for {
		visited[current] = true
		next := -1
		for _, w := range graph[current] {
			if inSCC[w] && (!visited[w] || w == start) {
				next = w
				break
			}
		}
		if next < 0 {
			return path
		}
		path = append(path, next)
		if next == start {
			return path
		}
		current = next
	}
}
