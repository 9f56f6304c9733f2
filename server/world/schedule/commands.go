package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/df-mc/chunkgen/server/world/chunk"
	"github.com/df-mc/chunkgen/server/world/graph"
	"github.com/df-mc/chunkgen/server/world/stage"
)

// ErrNotRelightable is returned by Relight for chunks that are not public or
// are currently used by a worker.
var ErrNotRelightable = errors.New("schedule: chunk cannot be relit")

// Stats is a snapshot of the scheduler's internal state.
type Stats struct {
	// Holders is the number of positions the scheduler tracks.
	Holders int
	// Nodes and Edges describe the size of the dependency graph.
	Nodes, Edges int
	// Queued is the number of tasks ready to be dispatched.
	Queued int
	// InFlight is the number of tasks running in a worker.
	InFlight int
	// Waiting is the number of tasks held back by a reservation.
	Waiting int
	// PendingUnloads is the number of holders waiting to be unloaded.
	PendingUnloads int
	// Public is the number of public chunks.
	Public int
	// PendingWrites is the number of chunks handed to the writer that were
	// not yet stored.
	PendingWrites int
}

// Stats returns a snapshot of the scheduler's state.
func (s *Schedule) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.exec(ctx, func() {
		st = Stats{
			Holders:        len(s.holders),
			Nodes:          s.graph.Len(),
			Edges:          s.graph.EdgeCount(),
			Queued:         s.queue.Len(),
			InFlight:       s.inflight,
			PendingUnloads: len(s.unloads),
			Public:         s.public.Len(),
		}
		for _, h := range s.holders {
			if s.graph.Contains(h.occupied) {
				s.graph.Walk(h.occupiedBy, func(graph.NodeKey) { st.Waiting++ })
			}
		}
	})
	st.PendingWrites = s.pool.Writes.Len()
	return st, err
}

// Save persists every chunk held by the scheduler that changed since it was
// last saved, and waits until the writer stored them. Chunks owned by a
// worker while Save runs are not included.
func (s *Schedule) Save(ctx context.Context) error {
	var err error
	if execErr := s.exec(ctx, func() {
		err = s.pool.Writer.Write(s.saveBatch(false))
	}); execErr != nil {
		return execErr
	}
	if err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}
	return s.pool.Writes.Wait(ctx)
}

// Relight drops the light of a public chunk and runs the lighting stage for
// it again. The chunk is removed from the public map until lighting finished,
// after which the listener is notified of it again. References acquired
// before Relight keep seeing the old data.
func (s *Schedule) Relight(ctx context.Context, pos chunk.Pos) error {
	var err error
	if execErr := s.exec(ctx, func() {
		err = s.relight(pos)
	}); execErr != nil {
		return execErr
	}
	return err
}

func (s *Schedule) relight(pos chunk.Pos) error {
	h, ok := s.holders[pos]
	if !ok || h.chunk.Level == nil || h.busy(s.graph) {
		return fmt.Errorf("relight %v: %w", pos, ErrNotRelightable)
	}
	p := h.chunk.Level.Downgrade(stage.Features, false)
	if h.public {
		s.public.remove(pos)
		h.public = false
	}
	h.chunk = chunk.FromProto(p)
	h.current = stage.Features
	s.ensureTask(h, stage.Max(h.target, stage.Full))
	return nil
}

// idle reports if the scheduler has no work left: no queued or running
// tasks, no task nodes and no reservations.
func (s *Schedule) idle() bool {
	return s.queue.Len() == 0 && s.inflight == 0 && s.graph.Len() == 0
}
