package schedule

import (
	"fmt"

	"github.com/df-mc/chunkgen/server/internal/gridutil"
	"github.com/df-mc/chunkgen/server/world/chunk"
	"github.com/df-mc/chunkgen/server/world/graph"
	"github.com/df-mc/chunkgen/server/world/stage"
	"github.com/df-mc/chunkgen/server/world/worker"
)

// dispatch hands a ready task to a worker pool. Tasks whose dependencies turn
// out not to be met after all are linked to what they are missing and wait
// again. An error is only returned if a pool was closed.
func (s *Schedule) dispatch(k graph.NodeKey) error {
	pos, st, ok := s.graph.Tag(k)
	if !ok || !s.graph.Ready(k) {
		// Removed or re-blocked since it was queued.
		return nil
	}
	h, ok := s.holders[pos]
	if !s.assertf(ok && h.tasks[st] == k, "task %v at %v has no holder slot", st, pos) {
		s.removeNode(k)
		return nil
	}
	if st <= h.current {
		s.assertf(false, "task %v at %v already reached %v", st, pos, h.current)
		s.removeNode(k)
		h.tasks[st] = graph.NodeKey{}
		return nil
	}
	if h.inflight != stage.None {
		s.assertf(false, "task %v at %v ready while %v runs", st, pos, h.inflight)
		s.graph.AddEdge(h.tasks[h.inflight], k)
		return nil
	}
	if st.Prev() != h.current {
		s.graph.AddEdge(s.ensureTask(h, st.Prev()), k)
		return nil
	}
	if st == stage.Empty {
		return s.dispatchRead(h)
	}
	return s.dispatchGeneration(h, st, k)
}

func (s *Schedule) dispatchRead(h *holder) error {
	s.reserve([]*holder{h})
	h.inflight = stage.Empty
	s.inflight++
	s.metrics.IncDispatched(stage.Empty)
	if err := s.pool.Readers.Read(h.pos); err != nil {
		s.inflight--
		h.inflight = stage.None
		s.release(h)
		return fmt.Errorf("read chunk %v: %w", h.pos, err)
	}
	return nil
}

func (s *Schedule) dispatchGeneration(h *holder, st stage.Stage, k graph.NodeKey) error {
	wr := int32(stage.WriteRadius(st))
	writes := make([]*holder, 0, gridutil.Side(wr)*gridutil.Side(wr))
	blocked := false

	// Every chunk written must be held by its holder, not by another worker.
	gridutil.Square(wr, func(dx, dz int32) bool {
		wh, ok := s.holders[h.pos.Add(dx, dz)]
		if !ok {
			// Not loaded at all: the neighbour check below links it.
			blocked = true
			return true
		}
		if wh.chunk.IsZero() {
			switch {
			case s.graph.Contains(wh.occupied):
				s.waitFor(wh, k)
			case wh.current != stage.None:
				s.assertf(false, "holder %v at %v has no chunk and no reservation", wh.pos, wh.current)
				s.reset(wh)
			}
			// Holders that were never loaded are linked by the neighbour
			// check below.
			blocked = true
			return true
		}
		writes = append(writes, wh)
		return true
	})
	if s.linkNeighbours(h.pos, st, k) {
		blocked = true
	}
	if blocked {
		if s.graph.Ready(k) {
			// Nothing left to wait on was found, try again later.
			s.ready(k)
		}
		return nil
	}
	if !s.assertf(h.chunk.Proto != nil, "centre %v of %v is not a proto chunk", h.pos, st) {
		s.reset(h)
		return nil
	}

	s.reserve(writes)
	cache := chunk.NewCache(h.pos, int(wr))
	for _, wh := range writes {
		cache.Put(wh.chunk)
		wh.chunk = chunk.Chunk{}
	}
	h.inflight = st
	s.inflight++
	s.metrics.IncDispatched(st)
	if err := s.pool.Generators.Generate(worker.Task{Stage: st, Cache: cache}); err != nil {
		for _, wh := range writes {
			c, _ := cache.Get(wh.pos)
			wh.chunk = c
			s.release(wh)
		}
		h.inflight = stage.None
		s.inflight--
		return fmt.Errorf("generate chunk %v: %w", h.pos, err)
	}
	return nil
}
