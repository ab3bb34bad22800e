// Package dag models the dependencies between the columns of one table:
// a derived column depends on every sibling its formula references.
package dag

import (
	"fmt"
	"sort"
)

// Node is one column in the graph.
type Node struct {
	Column  string
	Derived bool // the column carries a formula
}

// Graph is a directed graph of column dependencies. Edges point from a
// dependency to the column computed from it.
type Graph struct {
	nodes      map[string]*Node
	dependents map[string][]string // dependency -> derived columns
	deps       map[string][]string // derived column -> dependencies
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:      make(map[string]*Node),
		dependents: make(map[string][]string),
		deps:       make(map[string][]string),
	}
}

// AddColumn adds a column, or updates its derived flag if present.
func (g *Graph) AddColumn(column string, derived bool) {
	if n, ok := g.nodes[column]; ok {
		n.Derived = n.Derived || derived
		return
	}
	g.nodes[column] = &Node{Column: column, Derived: derived}
}

// DependsOn records that column is computed from dependency.
func (g *Graph) DependsOn(column, dependency string) error {
	if _, ok := g.nodes[column]; !ok {
		return fmt.Errorf("column %q is not in the graph", column)
	}
	if _, ok := g.nodes[dependency]; !ok {
		return fmt.Errorf("column %q is not in the graph", dependency)
	}
	if column == dependency {
		return fmt.Errorf("column %q cannot depend on itself", column)
	}
	if !contains(g.deps[column], dependency) {
		g.deps[column] = append(g.deps[column], dependency)
		g.dependents[dependency] = append(g.dependents[dependency], column)
	}
	return nil
}

// Node returns a column node.
func (g *Graph) Node(column string) (*Node, bool) {
	n, ok := g.nodes[column]
	return n, ok
}

// Columns returns every column, sorted.
func (g *Graph) Columns() []string {
	cols := make([]string, 0, len(g.nodes))
	for c := range g.nodes {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// NodeCount returns the number of columns.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of dependency edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, d := range g.deps {
		n += len(d)
	}
	return n
}

// Dependencies returns the direct dependencies of column, sorted.
func (g *Graph) Dependencies(column string) []string {
	return sorted(g.deps[column])
}

// Dependents returns the columns computed directly from column, sorted.
func (g *Graph) Dependents(column string) []string {
	return sorted(g.dependents[column])
}

// Upstream returns every transitive dependency of column, sorted.
func (g *Graph) Upstream(column string) []string {
	return g.walk(column, g.deps)
}

// Downstream returns every column transitively computed from column, sorted.
func (g *Graph) Downstream(column string) []string {
	return g.walk(column, g.dependents)
}

func (g *Graph) walk(start string, next map[string][]string) []string {
	seen := make(map[string]bool)
	stack := append([]string(nil), next[start]...)
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[c] || c == start {
			continue
		}
		seen[c] = true
		stack = append(stack, next[c]...)
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// FindCycle returns one dependency cycle as a path that starts and ends on
// the same column, or nil when the graph is acyclic.
func (g *Graph) FindCycle() []string {
	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[string]int, len(g.nodes))
	parent := make(map[string]string)
	var cycle []string

	var visit func(c string) bool
	visit = func(c string) bool {
		state[c] = onStack
		for _, d := range sorted(g.dependents[c]) {
			switch state[d] {
			case unvisited:
				parent[d] = c
				if visit(d) {
					return true
				}
			case onStack:
				cycle = []string{d}
				for cur := c; cur != d; cur = parent[cur] {
					cycle = append([]string{cur}, cycle...)
				}
				cycle = append([]string{d}, cycle...)
				return true
			}
		}
		state[c] = done
		return false
	}

	for _, c := range g.Columns() {
		if state[c] == unvisited && visit(c) {
			return cycle
		}
	}
	return nil
}

// Order returns the columns with every dependency before its dependents.
func (g *Graph) Order() ([]string, error) {
	if cycle := g.FindCycle(); cycle != nil {
		return nil, fmt.Errorf("formula cycle: %v", cycle)
	}

	visited := make(map[string]bool, len(g.nodes))
	order := make([]string, 0, len(g.nodes))
	var visit func(c string)
	visit = func(c string) {
		if visited[c] {
			return
		}
		visited[c] = true
		for _, d := range sorted(g.deps[c]) {
			visit(d)
		}
		order = append(order, c)
	}
	for _, c := range g.Columns() {
		visit(c)
	}
	return order, nil
}

// Levels groups columns by derivation depth: level 0 holds columns that
// depend on nothing, level N columns whose deepest dependency is at N-1.
func (g *Graph) Levels() ([][]string, error) {
	order, err := g.Order()
	if err != nil {
		return nil, err
	}

	depth := make(map[string]int, len(order))
	maxDepth := 0
	for _, c := range order {
		d := 0
		for _, dep := range g.deps[c] {
			if depth[dep]+1 > d {
				d = depth[dep] + 1
			}
		}
		depth[c] = d
		if d > maxDepth {
			maxDepth = d
		}
	}

	levels := make([][]string, maxDepth+1)
	for _, c := range order {
		levels[depth[c]] = append(levels[depth[c]], c)
	}
	for i := range levels {
		sort.Strings(levels[i])
	}
	return levels, nil
}

// Build creates a graph from a table's columns and, for derived columns,
// the sibling columns each formula references. References to columns not in
// the table are ignored.
func Build(columns []string, references map[string][]string) *Graph {
	g := NewGraph()
	for _, c := range columns {
		_, derived := references[c]
		g.AddColumn(c, derived)
	}
	for _, c := range columns {
		for _, ref := range references[c] {
			if _, ok := g.nodes[ref]; ok && ref != c {
				_ = g.DependsOn(c, ref)
			}
		}
	}
	return g
}

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func contains(slice []string, s string) bool {
	for _, it := range slice {
		if it == s {
			return true
		}
	}
	return false
}
