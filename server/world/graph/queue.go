package graph

import "container/heap"

// Entry is a ready task waiting in a Queue. Lower priorities are served first.
type Entry struct {
	Priority int
	Key      NodeKey
}

type entries []Entry

func (e entries) Len() int           { return len(e) }
func (e entries) Less(i, j int) bool { return e[i].Priority < e[j].Priority }
func (e entries) Swap(i, j int)      { e[i], e[j] = e[j], e[i] }
func (e *entries) Push(x any)        { *e = append(*e, x.(Entry)) }
func (e *entries) Pop() any {
	old := *e
	n := len(old)
	x := old[n-1]
	*e = old[:n-1]
	return x
}

// Queue is a min-priority queue of ready nodes. The order in which entries of
// equal priority are popped is unspecified.
type Queue struct {
	h entries
}

// Len returns the number of entries in the queue.
func (q *Queue) Len() int {
	return len(q.h)
}

// Push adds a node to the queue with the priority passed.
func (q *Queue) Push(priority int, k NodeKey) {
	heap.Push(&q.h, Entry{Priority: priority, Key: k})
}

// Pop removes and returns the entry with the lowest priority.
func (q *Queue) Pop() (Entry, bool) {
	if len(q.h) == 0 {
		return Entry{}, false
	}
	return heap.Pop(&q.h).(Entry), true
}

// Reprioritise recomputes the priority of every entry with f and restores the
// heap order. Entries for which keep returns false are dropped.
func (q *Queue) Reprioritise(f func(k NodeKey) (priority int, keep bool)) {
	kept := q.h[:0]
	for _, e := range q.h {
		p, keep := f(e.Key)
		if !keep {
			continue
		}
		kept = append(kept, Entry{Priority: p, Key: e.Key})
	}
	clear(q.h[len(kept):])
	q.h = kept
	heap.Init(&q.h)
}

// Clear removes every entry from the queue.
func (q *Queue) Clear() {
	q.h = q.h[:0]
}
