// Package graph implements the dependency graph of chunk generation tasks.
//
// Nodes and edges live in growable arenas and are addressed by generational
// keys instead of pointers. A key whose slot has been freed (and possibly
// reused) no longer resolves, so stale keys held by other parts of the
// scheduler are harmless: operations on them are no-ops.
//
// An edge points from a prerequisite to the task it unblocks. A node's in-degree
// counts its unresolved prerequisites and the node is ready once it reaches
// zero. Removing a node walks its outgoing edges, decrementing every target and
// reporting those that became ready.
//
// # Reservations
//
// A reservation (occupy) node is a sentinel node that carries no work. It is
// exclusive access expressed as a dependency: whoever needs a resource that is
// currently reserved adds an edge from the reservation to itself and therefore
// cannot become ready until the reservation is removed. Releasing the
// reservation is simply removing the node, and the normal in-degree machinery
// wakes every waiter. No locks are involved, and the pattern does not depend
// on what the guarded resource is.
package graph

import (
	"github.com/df-mc/chunkgen/server/world/chunk"
	"github.com/df-mc/chunkgen/server/world/stage"
)

// NodeKey addresses a node in a Graph. The zero value is the null key.
type NodeKey struct {
	idx, gen uint32
}

// IsNull reports if the key refers to no node.
func (k NodeKey) IsNull() bool {
	return k.gen == 0
}

// EdgeKey addresses an edge in a Graph. The zero value is the null key.
type EdgeKey struct {
	idx, gen uint32
}

// IsNull reports if the key refers to no edge.
func (k EdgeKey) IsNull() bool {
	return k.gen == 0
}

type node struct {
	gen  uint32
	live bool

	pos      chunk.Pos
	stage    stage.Stage
	inDegree int
	inQueue  bool
	edges    EdgeKey
}

type edge struct {
	gen  uint32
	live bool

	to   NodeKey
	next EdgeKey
}

// Graph is a dependency graph of (position, stage) tasks. A Graph is not safe
// for concurrent use: it is owned by a single scheduler goroutine.
type Graph struct {
	nodes     []node
	freeNodes []uint32
	edges     []edge
	freeEdges []uint32

	liveNodes, liveEdges int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{}
}

// AddNode adds a task node for the position and stage passed and returns its
// key. The node starts without prerequisites.
func (g *Graph) AddNode(pos chunk.Pos, s stage.Stage) NodeKey {
	var idx uint32
	if n := len(g.freeNodes); n > 0 {
		idx = g.freeNodes[n-1]
		g.freeNodes = g.freeNodes[:n-1]
	} else {
		g.nodes = append(g.nodes, node{})
		idx = uint32(len(g.nodes) - 1)
	}
	n := &g.nodes[idx]
	n.gen++
	if n.gen == 0 {
		n.gen = 1
	}
	n.live, n.pos, n.stage, n.inDegree, n.inQueue, n.edges = true, pos, s, 0, false, EdgeKey{}
	g.liveNodes++
	return NodeKey{idx: idx, gen: n.gen}
}

// Occupy adds a reservation node. See the package documentation.
func (g *Graph) Occupy() NodeKey {
	return g.AddNode(chunk.Sentinel, stage.None)
}

// IsOccupy reports if k refers to a live reservation node.
func (g *Graph) IsOccupy(k NodeKey) bool {
	n, ok := g.node(k)
	return ok && n.pos == chunk.Sentinel
}

func (g *Graph) node(k NodeKey) (*node, bool) {
	if k.IsNull() || int(k.idx) >= len(g.nodes) {
		return nil, false
	}
	n := &g.nodes[k.idx]
	if !n.live || n.gen != k.gen {
		return nil, false
	}
	return n, true
}

// Contains reports if k refers to a live node.
func (g *Graph) Contains(k NodeKey) bool {
	_, ok := g.node(k)
	return ok
}

// Tag returns the position and stage of the node k refers to.
func (g *Graph) Tag(k NodeKey) (chunk.Pos, stage.Stage, bool) {
	n, ok := g.node(k)
	if !ok {
		return chunk.Pos{}, stage.None, false
	}
	return n.pos, n.stage, true
}

// InDegree returns the number of unresolved prerequisites of the node, or -1 if
// the key does not resolve.
func (g *Graph) InDegree(k NodeKey) int {
	n, ok := g.node(k)
	if !ok {
		return -1
	}
	return n.inDegree
}

// Ready reports if k refers to a live node without unresolved prerequisites.
func (g *Graph) Ready(k NodeKey) bool {
	return g.InDegree(k) == 0
}

// Queued reports if the node is marked as sitting in a ready queue.
func (g *Graph) Queued(k NodeKey) bool {
	n, ok := g.node(k)
	return ok && n.inQueue
}

// SetQueued marks or unmarks the node as sitting in a ready queue.
func (g *Graph) SetQueued(k NodeKey, v bool) {
	if n, ok := g.node(k); ok {
		n.inQueue = v
	}
}

func (g *Graph) allocEdge(to NodeKey, next EdgeKey) EdgeKey {
	var idx uint32
	if n := len(g.freeEdges); n > 0 {
		idx = g.freeEdges[n-1]
		g.freeEdges = g.freeEdges[:n-1]
	} else {
		g.edges = append(g.edges, edge{})
		idx = uint32(len(g.edges) - 1)
	}
	e := &g.edges[idx]
	e.gen++
	if e.gen == 0 {
		e.gen = 1
	}
	e.live, e.to, e.next = true, to, next
	g.liveEdges++
	return EdgeKey{idx: idx, gen: e.gen}
}

func (g *Graph) edge(k EdgeKey) (*edge, bool) {
	if k.IsNull() || int(k.idx) >= len(g.edges) {
		return nil, false
	}
	e := &g.edges[k.idx]
	if !e.live || e.gen != k.gen {
		return nil, false
	}
	return e, true
}

func (g *Graph) freeEdge(k EdgeKey) EdgeKey {
	e, ok := g.edge(k)
	if !ok {
		return EdgeKey{}
	}
	next := e.next
	e.live, e.to, e.next = false, NodeKey{}, EdgeKey{}
	g.freeEdges = append(g.freeEdges, k.idx)
	g.liveEdges--
	return next
}

// AddEdge records that to depends on from, incrementing the in-degree of to.
// False is returned, and nothing changes, if either key does not resolve or the
// edge already exists.
func (g *Graph) AddEdge(from, to NodeKey) bool {
	f, ok := g.node(from)
	if !ok || from == to {
		return false
	}
	if _, ok := g.node(to); !ok {
		return false
	}
	for k := f.edges; !k.IsNull(); {
		e, ok := g.edge(k)
		if !ok {
			break
		}
		if e.to == to {
			return false
		}
		k = e.next
	}
	head := g.allocEdge(to, f.edges)
	// allocEdge may have grown the edge arena but never the node arena, so f
	// is still valid here.
	f.edges = head
	g.nodes[to.idx].inDegree++
	return true
}

// HasEdge reports if to depends directly on from.
func (g *Graph) HasEdge(from, to NodeKey) bool {
	f, ok := g.node(from)
	if !ok {
		return false
	}
	for k := f.edges; !k.IsNull(); {
		e, ok := g.edge(k)
		if !ok {
			return false
		}
		if e.to == to {
			return true
		}
		k = e.next
	}
	return false
}

// Remove removes the node k refers to. Every outgoing edge is walked and
// freed, and the in-degree of its target decremented. ready is called for each
// target whose in-degree drops to zero. Remove returns false if k does not
// resolve.
func (g *Graph) Remove(k NodeKey, ready func(NodeKey)) bool {
	n, ok := g.node(k)
	if !ok {
		return false
	}
	ek := n.edges
	n.live, n.edges, n.inQueue, n.inDegree = false, EdgeKey{}, false, 0
	g.freeNodes = append(g.freeNodes, k.idx)
	g.liveNodes--

	for !ek.IsNull() {
		e, ok := g.edge(ek)
		if !ok {
			break
		}
		to := e.to
		ek = g.freeEdge(ek)
		t, ok := g.node(to)
		if !ok {
			continue
		}
		t.inDegree--
		if t.inDegree == 0 && ready != nil {
			ready(to)
		}
	}
	return true
}

// Len returns the number of live nodes.
func (g *Graph) Len() int {
	return g.liveNodes
}

// EdgeCount returns the number of live edges, including list entries.
func (g *Graph) EdgeCount() int {
	return g.liveEdges
}

// Nodes calls f for every live node.
func (g *Graph) Nodes(f func(k NodeKey, pos chunk.Pos, s stage.Stage)) {
	for i := range g.nodes {
		n := &g.nodes[i]
		if n.live {
			f(NodeKey{idx: uint32(i), gen: n.gen}, n.pos, n.stage)
		}
	}
}
