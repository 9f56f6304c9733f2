package graph

// List is a singly linked list of node keys threaded through the edge arena.
// Entries do not count towards the in-degree of the nodes they name. The zero
// value is an empty list.
type List struct {
	head EdgeKey
	n    int
}

// Len returns the number of entries in the list.
func (l List) Len() int {
	return l.n
}

// Empty reports if the list holds no entries.
func (l List) Empty() bool {
	return l.n == 0
}

// Push adds k to the front of the list, unless it is already present.
func (g *Graph) Push(l *List, k NodeKey) {
	for ek := l.head; !ek.IsNull(); {
		e, ok := g.edge(ek)
		if !ok {
			break
		}
		if e.to == k {
			return
		}
		ek = e.next
	}
	l.head = g.allocEdge(k, l.head)
	l.n++
}

// Walk calls f for every entry in the list that still refers to a live node.
func (g *Graph) Walk(l List, f func(NodeKey)) {
	for ek := l.head; !ek.IsNull(); {
		e, ok := g.edge(ek)
		if !ok {
			return
		}
		next := e.next
		if g.Contains(e.to) {
			f(e.to)
		}
		ek = next
	}
}

// Clear frees every entry of the list and leaves it empty.
func (g *Graph) Clear(l *List) {
	for ek := l.head; !ek.IsNull(); {
		ek = g.freeEdge(ek)
	}
	*l = List{}
}
