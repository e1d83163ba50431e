package buildgraph

import (
	"encoding/json"
	"sort"

	"github.com/shmocker/wharf/internal/wharferrors"
	"github.com/shmocker/wharf/pkg/buildplan"
)

// NodeIndex identifies a node within a BuildGraph. Indices are stable:
// once assigned they are never reused or renumbered, even after the
// node they named is removed by RemoveNode — mirroring the stable-index
// graph the original's merge/apply passes depend on (an index captured
// before a removal must still be valid to compare after it).
type NodeIndex int

// BuildGraph is the dependency graph of build-plan invocations: nodes
// are compile/link/build-script steps, edges point from a dependency to
// its dependent.
type BuildGraph struct {
	nodes    map[NodeIndex]*Node
	outgoing map[NodeIndex][]NodeIndex
	incoming map[NodeIndex][]NodeIndex
	next     NodeIndex
}

func newBuildGraph() *BuildGraph {
	return &BuildGraph{
		nodes:    make(map[NodeIndex]*Node),
		outgoing: make(map[NodeIndex][]NodeIndex),
		incoming: make(map[NodeIndex][]NodeIndex),
	}
}

// AddNode inserts n and returns its newly assigned, permanent index.
func (g *BuildGraph) AddNode(n Node) NodeIndex {
	idx := g.next
	g.next++
	g.nodes[idx] = &n
	g.outgoing[idx] = nil
	g.incoming[idx] = nil
	return idx
}

// AddEdge records a from -> to dependency edge (to depends on from).
func (g *BuildGraph) AddEdge(from, to NodeIndex) {
	g.outgoing[from] = append(g.outgoing[from], to)
	g.incoming[to] = append(g.incoming[to], from)
}

// Node returns the node at idx, or nil if idx was removed or never
// assigned.
func (g *BuildGraph) Node(idx NodeIndex) *Node {
	return g.nodes[idx]
}

// Indices returns every currently-live node index, in ascending order.
func (g *BuildGraph) Indices() []NodeIndex {
	out := make([]NodeIndex, 0, len(g.nodes))
	for idx := range g.nodes {
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Incoming returns the indices of nodes idx directly depends on.
func (g *BuildGraph) Incoming(idx NodeIndex) []NodeIndex {
	return append([]NodeIndex(nil), g.incoming[idx]...)
}

// Outgoing returns the indices of nodes that directly depend on idx.
func (g *BuildGraph) Outgoing(idx NodeIndex) []NodeIndex {
	return append([]NodeIndex(nil), g.outgoing[idx]...)
}

// debugNode is one entry of the graph's debug-dump representation:
// a node plus its outgoing edges, keyed by index.
type debugNode struct {
	Index    NodeIndex   `json:"index"`
	Node     *Node       `json:"node"`
	Outgoing []NodeIndex `json:"outgoing"`
}

// MarshalJSON renders every live node in ascending-index order together
// with its outgoing edges, used only for the frontend's build-graph
// debug dump — BuildGraph's fields are otherwise unexported, so this is
// the graph's one JSON-facing view.
func (g *BuildGraph) MarshalJSON() ([]byte, error) {
	indices := g.Indices()
	out := make([]debugNode, 0, len(indices))

	for _, idx := range indices {
		out = append(out, debugNode{
			Index:    idx,
			Node:     g.nodes[idx],
			Outgoing: g.Outgoing(idx),
		})
	}

	return json.Marshal(out)
}

// RemoveNode tombstones idx: its slot becomes nil and every edge
// touching it is dropped, but idx itself is never reassigned to another
// node, so indices held elsewhere remain meaningful (they simply no
// longer resolve via Node).
func (g *BuildGraph) RemoveNode(idx NodeIndex) {
	delete(g.nodes, idx)

	for _, from := range g.incoming[idx] {
		g.outgoing[from] = removeIndex(g.outgoing[from], idx)
	}
	for _, to := range g.outgoing[idx] {
		g.incoming[to] = removeIndex(g.incoming[to], idx)
	}

	delete(g.incoming, idx)
	delete(g.outgoing, idx)
}

// redirectEdges re-homes every edge incident to "from" (other than the
// from<->to edge itself) onto "to", without removing "from" — callers
// that are merging "from" away defer the actual RemoveNode until their
// outer traversal over the graph's indices has fully completed, since
// removing mid-traversal would invalidate indices still queued for
// visiting.
func (g *BuildGraph) redirectEdges(from, to NodeIndex) {
	for _, dependency := range g.incoming[from] {
		if dependency == to {
			continue
		}
		g.AddEdge(dependency, to)
	}

	for _, dependent := range g.outgoing[from] {
		if dependent == to {
			continue
		}
		g.AddEdge(to, dependent)
	}
}

func removeIndex(indices []NodeIndex, target NodeIndex) []NodeIndex {
	out := indices[:0]
	for _, idx := range indices {
		if idx != target {
			out = append(out, idx)
		}
	}
	return out
}

// TopoOrder returns every live node index in dependency order (a node
// always precedes everything that depends on it), breaking ties between
// simultaneously-ready nodes by ascending index so the order is fully
// deterministic — mirroring the original's Topo walker over a
// StableGraph, whose internal ready-queue likewise visits insertion
// order among ties.
func (g *BuildGraph) TopoOrder() ([]NodeIndex, error) {
	remaining := make(map[NodeIndex]int, len(g.nodes))
	for _, idx := range g.Indices() {
		remaining[idx] = len(g.incoming[idx])
	}

	var ready []NodeIndex
	for idx, count := range remaining {
		if count == 0 {
			ready = append(ready, idx)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	order := make([]NodeIndex, 0, len(remaining))

	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

		idx := ready[0]
		ready = ready[1:]
		order = append(order, idx)
		delete(remaining, idx)

		for _, dependent := range g.outgoing[idx] {
			if _, ok := remaining[dependent]; !ok {
				continue
			}
			remaining[dependent]--
			if remaining[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) != len(g.nodes) {
		return nil, wharferrors.Wrap(wharferrors.GraphError, wharferrors.ErrCyclicGraph,
			"build graph contains a cycle")
	}

	return order, nil
}

// Ancestors returns every node idx transitively depends on (but not idx
// itself), deduplicated, in a deterministic post-order produced by
// recursing over incoming edges sorted by ascending index — mirroring
// the original's DfsPostOrder over Reversed(graph).
func (g *BuildGraph) Ancestors(idx NodeIndex) []NodeIndex {
	visited := map[NodeIndex]bool{idx: true}
	var order []NodeIndex

	var visit func(NodeIndex)
	visit = func(current NodeIndex) {
		deps := append([]NodeIndex(nil), g.incoming[current]...)
		sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })

		for _, dep := range deps {
			if visited[dep] {
				continue
			}
			visited[dep] = true
			visit(dep)
			order = append(order, dep)
		}
	}
	visit(idx)

	return order
}

// From builds the initial, unmerged graph from a build plan: one node
// per invocation (in plan order, so NodeIndex(i) == plan.Invocations[i]
// before any merging happens) plus a dependency edge for every entry in
// each invocation's Deps list.
func From(plan *buildplan.RawBuildPlan) *BuildGraph {
	g := newBuildGraph()

	indexOf := make([]NodeIndex, len(plan.Invocations))
	for i, inv := range plan.Invocations {
		indexOf[i] = g.AddNode(nodeFromInvocation(&inv))
	}

	for i, inv := range plan.Invocations {
		for _, dep := range inv.Deps {
			g.AddEdge(indexOf[dep], indexOf[i])
		}
	}

	return g
}
