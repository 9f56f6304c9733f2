package worker

import (
	"context"
	"sync"

	"github.com/brentp/intintmap"
	"github.com/df-mc/chunkgen/server/world/chunk"
)

// Tracker counts the chunk writes that are queued or running per position. A
// read of a position waits until no write for it is pending, so a chunk that
// was unloaded and is requested again is never read back stale.
type Tracker struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending *intintmap.Map
	total   int
}

// NewTracker returns a tracker without pending writes.
func NewTracker() *Tracker {
	t := &Tracker{pending: intintmap.New(64, 0.6)}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Add records a pending write for every chunk passed.
func (t *Tracker) Add(batch []chunk.Chunk) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range batch {
		k := c.Pos().Pack()
		n, _ := t.pending.Get(k)
		t.pending.Put(k, n+1)
		t.total++
	}
}

// Done marks the writes of every chunk passed as finished.
func (t *Tracker) Done(batch []chunk.Chunk) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range batch {
		k := c.Pos().Pack()
		n, ok := t.pending.Get(k)
		if !ok {
			continue
		}
		if n <= 1 {
			t.pending.Del(k)
		} else {
			t.pending.Put(k, n-1)
		}
		t.total--
	}
	t.cond.Broadcast()
}

// Pending reports if a write for the position is queued or running.
func (t *Tracker) Pending(pos chunk.Pos) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending.Get(pos.Pack())
	return ok
}

// Len returns the total number of pending writes.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// WaitPos blocks until no write for the position is pending.
func (t *Tracker) WaitPos(pos chunk.Pos) {
	k := pos.Pack()
	t.mu.Lock()
	defer t.mu.Unlock()
	for {
		if _, ok := t.pending.Get(k); !ok {
			return
		}
		t.cond.Wait()
	}
}

// Wait blocks until every pending write finished or the context is done.
func (t *Tracker) Wait(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		t.mu.Lock()
		t.cond.Broadcast()
		t.mu.Unlock()
	})
	defer stop()

	t.mu.Lock()
	defer t.mu.Unlock()
	for t.total > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.cond.Wait()
	}
	return nil
}
