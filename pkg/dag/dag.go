// Package dag implements a generic directed acyclic graph keyed by node
// name, with a stable integer identity separate from that name. The
// separation exists so a node's name can change (as it does when the
// expander fans a step out across parameter combinations) while the graph
// keeps treating every fanned-out copy as "the same" node for ancestor
// queries and workspace-reference resolution.
package dag

import (
	"sort"

	"github.com/weftrun/weft/pkg/errkind"
)

// NodeID is the stable semantic identity of a node, preserved across
// renames (see AddNode's id parameter).
type NodeID int

// Node is one vertex of the graph: a name, a stable id, an opaque value
// payload, and the set of node names it directly depends on.
type Node struct {
	Name    string
	ID      NodeID
	Value   interface{}
	Depends []string
}

// Graph is a directed acyclic graph of named nodes.
type Graph struct {
	nodes  map[string]*Node
	order  []string // insertion order, for deterministic topological tie-break
	nextID NodeID
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// AddNode inserts name with the given value. It is idempotent: calling it
// again for an existing name overwrites the value but does not change id or
// position. If id is provided, it is used as the node's stable identity
// (used to preserve identity across parameter fan-out); otherwise a fresh
// monotonically increasing id is assigned.
func (g *Graph) AddNode(name string, value interface{}, id ...NodeID) NodeID {
	if n, exists := g.nodes[name]; exists {
		n.Value = value
		return n.ID
	}

	var nodeID NodeID
	if len(id) > 0 {
		nodeID = id[0]
		if nodeID >= g.nextID {
			g.nextID = nodeID + 1
		}
	} else {
		nodeID = g.nextID
		g.nextID++
	}

	g.nodes[name] = &Node{Name: name, ID: nodeID, Value: value}
	g.order = append(g.order, name)
	return nodeID
}

// HasNode reports whether name has been added to the graph.
func (g *Graph) HasNode(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Node returns the node for name, or nil if absent.
func (g *Graph) Node(name string) *Node {
	return g.nodes[name]
}

// Nodes returns every node name in insertion order.
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// AddEdge records that src must complete before dst. It fails with
// errkind.InvalidEdge if src == dst, with errkind.MissingNode if either
// endpoint is absent, and with errkind.GraphCycle if the edge would create
// a cycle. Adding an existing edge is a no-op.
func (g *Graph) AddEdge(src, dst string) error {
	if src == dst {
		return errkind.New(errkind.InvalidEdge, "self-dependency on node '"+src+"'")
	}
	if _, ok := g.nodes[src]; !ok {
		return errkind.New(errkind.MissingNode, "edge source '"+src+"' not in graph")
	}
	dstNode, ok := g.nodes[dst]
	if !ok {
		return errkind.New(errkind.MissingNode, "edge target '"+dst+"' not in graph")
	}

	for _, dep := range dstNode.Depends {
		if dep == src {
			return nil
		}
	}

	if g.reaches(dst, src) {
		return errkind.New(errkind.GraphCycle, "edge '"+src+"' -> '"+dst+"' would create a cycle")
	}

	dstNode.Depends = append(dstNode.Depends, src)
	return nil
}

// reaches reports whether there is already a path from -> ... -> to, by
// walking backward from to through its dependencies. AddEdge(src, dst)
// would close a cycle exactly when dst already reaches src.
func (g *Graph) reaches(from, to string) bool {
	visited := make(map[string]bool)
	var walk func(string) bool
	walk = func(n string) bool {
		if n == from {
			return true
		}
		if visited[n] {
			return false
		}
		visited[n] = true
		node := g.nodes[n]
		if node == nil {
			return false
		}
		for _, dep := range node.Depends {
			if walk(dep) {
				return true
			}
		}
		return false
	}
	return walk(to)
}

// RemoveNode deletes name and any edges referencing it. Removing an absent
// node is a no-op.
func (g *Graph) RemoveNode(name string) {
	if _, ok := g.nodes[name]; !ok {
		return
	}
	delete(g.nodes, name)
	for i, n := range g.order {
		if n == name {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	for _, node := range g.nodes {
		node.Depends = removeString(node.Depends, name)
	}
}

// RemoveEdge deletes the src -> dst edge if present. Missing endpoints or a
// missing edge are a no-op.
func (g *Graph) RemoveEdge(src, dst string) {
	dstNode, ok := g.nodes[dst]
	if !ok {
		return
	}
	dstNode.Depends = removeString(dstNode.Depends, src)
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

// InEdges returns the names of nodes that name directly depends on.
func (g *Graph) InEdges(name string) []string {
	n := g.nodes[name]
	if n == nil {
		return nil
	}
	out := make([]string, len(n.Depends))
	copy(out, n.Depends)
	return out
}

// OutEdges returns the names of nodes that directly depend on name.
func (g *Graph) OutEdges(name string) []string {
	var out []string
	for _, n := range g.order {
		node := g.nodes[n]
		for _, dep := range node.Depends {
			if dep == name {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

// TopologicalSort returns all node names ordered so that every dependency
// precedes its dependents. Ties break by insertion order (Kahn's algorithm
// over the insertion-ordered node list).
func (g *Graph) TopologicalSort() []string {
	inDegree := make(map[string]int, len(g.nodes))
	for _, name := range g.order {
		inDegree[name] = len(g.nodes[name].Depends)
	}

	var ready []string
	for _, name := range g.order {
		if inDegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	var result []string
	for len(ready) > 0 {
		sort.SliceStable(ready, func(i, j int) bool {
			return g.insertionIndex(ready[i]) < g.insertionIndex(ready[j])
		})
		n := ready[0]
		ready = ready[1:]
		result = append(result, n)

		for _, child := range g.OutEdges(n) {
			inDegree[child]--
			if inDegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}
	return result
}

func (g *Graph) insertionIndex(name string) int {
	for i, n := range g.order {
		if n == name {
			return i
		}
	}
	return -1
}

// Ancestors returns every node reachable by walking backward from name,
// excluding name itself.
func (g *Graph) Ancestors(name string) []string {
	visited := make(map[string]bool)
	var out []string
	var walk func(string)
	walk = func(n string) {
		node := g.nodes[n]
		if node == nil {
			return
		}
		for _, dep := range node.Depends {
			if !visited[dep] {
				visited[dep] = true
				out = append(out, dep)
				walk(dep)
			}
		}
	}
	walk(name)
	return out
}

// Tier returns the length of the longest path from any zero-in-degree node
// to name. Used only for visualization; callers needing scheduling order
// should use TopologicalSort.
func (g *Graph) Tier(name string) int {
	memo := make(map[string]int)
	var tierOf func(string) int
	tierOf = func(n string) int {
		if t, ok := memo[n]; ok {
			return t
		}
		node := g.nodes[n]
		if node == nil || len(node.Depends) == 0 {
			memo[n] = 0
			return 0
		}
		max := 0
		for _, dep := range node.Depends {
			if t := tierOf(dep) + 1; t > max {
				max = t
			}
		}
		memo[n] = max
		return max
	}
	return tierOf(name)
}

// Clone returns a copy of the graph's nodes, ids and edges; node Values are
// shared with the original, not copied. Each pass of the expander operates
// on a clone so earlier passes' graph structure stays intact.
func (g *Graph) Clone() *Graph {
	cp := &Graph{
		nodes:  make(map[string]*Node, len(g.nodes)),
		order:  make([]string, len(g.order)),
		nextID: g.nextID,
	}
	copy(cp.order, g.order)
	for name, n := range g.nodes {
		deps := make([]string, len(n.Depends))
		copy(deps, n.Depends)
		cp.nodes[name] = &Node{Name: n.Name, ID: n.ID, Value: n.Value, Depends: deps}
	}
	return cp
}

// Validate checks acyclicity independent of incremental AddEdge checks —
// useful after bulk mutation (RemoveNode, Clone+rewire) where cycles could
// theoretically be reintroduced by a caller bypassing AddEdge.
func (g *Graph) Validate() error {
	if len(g.TopologicalSort()) != len(g.nodes) {
		return errkind.New(errkind.GraphCycle, "graph contains a cycle")
	}
	return nil
}
