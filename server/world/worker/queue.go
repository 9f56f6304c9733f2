package worker

import "sync"

// Queue is the unbounded multi-producer, multi-consumer queue results flow
// back to the scheduler through. Pushing never blocks, so a worker can never
// be held up by a busy scheduler.
type Queue struct {
	mu     sync.Mutex
	items  []Result
	notify chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push adds a result to the queue.
func (q *Queue) Push(r Result) {
	q.mu.Lock()
	q.items = append(q.items, r)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Drain appends every queued result to dst and returns it.
func (q *Queue) Drain(dst []Result) []Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	dst = append(dst, q.items...)
	clear(q.items)
	q.items = q.items[:0]
	return dst
}

// Len returns the number of queued results.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Ready returns a channel that receives a value after results were pushed.
// Receiving from it does not guarantee a result is still queued.
func (q *Queue) Ready() <-chan struct{} {
	return q.notify
}
