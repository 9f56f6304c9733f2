package schedule

import (
	"fmt"

	"github.com/df-mc/chunkgen/server/internal/gridutil"
	"github.com/df-mc/chunkgen/server/world/chunk"
	"github.com/df-mc/chunkgen/server/world/graph"
	"github.com/df-mc/chunkgen/server/world/stage"
)

// markUnload queues a holder to be checked for unloading.
func (s *Schedule) markUnload(h *holder) {
	s.unloads[h.pos] = struct{}{}
	s.unloadsDirty = true
}

// processUnloads drops every holder that fell out of the level table and is
// no longer needed, saving its chunk. Holders that are still referenced,
// owned by a worker or needed by a neighbour stay queued and are retried.
func (s *Schedule) processUnloads() error {
	s.unloadsDirty = false
	var batch []chunk.Chunk
	for pos := range s.unloads {
		h, ok := s.holders[pos]
		if !ok || h.target != stage.None {
			delete(s.unloads, pos)
			continue
		}
		if h.hasTasks(s.graph) || h.busy(s.graph) || s.neededByNeighbour(h) {
			continue
		}
		if l := h.chunk.Level; l != nil {
			if h.public {
				// Removing the chunk first stops new references from being
				// acquired through the map while the count is checked.
				s.public.remove(pos)
			}
			if l.Refs() != 1 {
				if h.public {
					s.public.set(pos, l)
				}
				s.metrics.IncDeferred()
				continue
			}
			h.public = false
			if l.Dirty() {
				batch = append(batch, h.chunk)
			}
		} else if h.chunk.Proto != nil {
			batch = append(batch, h.chunk)
		}
		delete(s.holders, pos)
		delete(s.unloads, pos)
		if !h.chunk.IsZero() {
			s.metrics.IncUnloaded()
		}
	}
	if len(s.holders) == 0 {
		s.removeLeaks()
	}
	if len(batch) == 0 {
		return nil
	}
	if err := s.pool.Writer.Write(batch); err != nil {
		return fmt.Errorf("save unloaded chunks: %w", err)
	}
	return nil
}

// removeLeaks removes graph nodes left behind once every holder unloaded.
// Every task and reservation belongs to a holder, so none may remain.
func (s *Schedule) removeLeaks() {
	if s.graph.Len() == 0 {
		return
	}
	s.graph.Nodes(func(k graph.NodeKey, pos chunk.Pos, st stage.Stage) {
		if s.graph.IsOccupy(k) {
			s.assertf(false, "reservation outlived every holder")
		} else {
			s.assertf(false, "task %v at %v outlived its holder", st, pos)
		}
		s.graph.Remove(k, nil)
	})
	s.queue.Clear()
}

// neededByNeighbour reports if a task of a nearby holder still depends on the
// chunk of h.
func (s *Schedule) neededByNeighbour(h *holder) bool {
	r := int32(stage.MaxRadius())
	needed := false
	gridutil.Square(r, func(dx, dz int32) bool {
		d := int(gridutil.Chebyshev(dx, dz))
		if d == 0 {
			return true
		}
		nh, ok := s.holders[h.pos.Add(dx, dz)]
		if !ok {
			return true
		}
		for st := nh.current + 1; st.Valid(); st++ {
			if st != nh.inflight && !s.graph.Contains(nh.tasks[st]) {
				continue
			}
			if d <= stage.DirectRadius(st) && h.current >= stage.DirectDependency(st, d) {
				needed = true
				return false
			}
		}
		return true
	})
	return needed
}

// saveBatch collects the chunks that need to be persisted. If final is set,
// proto chunks are moved into the batch, otherwise they are copied so the
// holders can keep generating them.
func (s *Schedule) saveBatch(final bool) []chunk.Chunk {
	batch := make([]chunk.Chunk, 0, len(s.holders))
	owned := 0
	for _, h := range s.holders {
		switch {
		case h.chunk.IsZero():
			owned++
		case h.chunk.Level != nil:
			if h.chunk.Level.Dirty() {
				batch = append(batch, h.chunk)
			}
		case s.conf.DiscardProto:
		case final:
			batch = append(batch, h.chunk)
		default:
			p := h.chunk.Proto
			batch = append(batch, chunk.FromProto(chunk.NewProtoFrom(p.Pos(), p.Status, p.Lit, p.Data.Clone())))
		}
	}
	if final && owned > 0 {
		s.log.Warn("chunks still owned by workers are not saved", "chunks", owned)
	}
	return batch
}
