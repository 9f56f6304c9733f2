package schedule

import (
	"github.com/df-mc/chunkgen/server/internal/gridutil"
	"github.com/df-mc/chunkgen/server/world/chunk"
	"github.com/df-mc/chunkgen/server/world/graph"
	"github.com/df-mc/chunkgen/server/world/level"
	"github.com/df-mc/chunkgen/server/world/stage"
)

// apply turns a level update into graph changes and recomputes the priority
// of every queued task. It reports if anything changed.
func (s *Schedule) apply(u level.Update) bool {
	if u.Empty() {
		return false
	}
	if u.Change != nil {
		s.levels = u.Change.Levels
		for pos, ch := range u.Change.Changes {
			s.setTarget(pos, ch.New)
		}
	}
	if u.HintsChanged {
		s.hints = u.Hints
	}
	s.queue.Reprioritise(func(k graph.NodeKey) (int, bool) {
		pos, st, ok := s.graph.Tag(k)
		if !ok || !s.graph.Ready(k) {
			s.graph.SetQueued(k, false)
			return 0, false
		}
		return s.priority(pos, st), true
	})
	return true
}

// setTarget changes the target stage of a position. The holder's own target
// is used as the old value, so changes that were coalesced or raced with a
// failure reset still leave the graph consistent.
func (s *Schedule) setTarget(pos chunk.Pos, target stage.Stage) {
	h, ok := s.holders[pos]
	if !ok {
		if target == stage.None {
			return
		}
		h = s.holderFor(pos)
	}
	old := h.target
	h.target = target
	switch {
	case target > old:
		delete(s.unloads, pos)
		for st := stage.Max(old, h.current) + 1; st <= target; st++ {
			s.ensureTask(h, st)
		}
	case target < old:
		for st := stage.Max(target, h.current) + 1; st <= old; st++ {
			k := h.tasks[st]
			// The node of a running stage is removed when its result is
			// ingested.
			if st == h.inflight || !s.graph.Contains(k) {
				continue
			}
			s.removeNode(k)
			h.tasks[st] = graph.NodeKey{}
		}
	}
	if target == stage.None {
		s.markUnload(h)
	}
}

// ensureTask returns the task node for stage st of the holder, creating it
// and the nodes it depends on if needed. The null key is returned if the
// holder already reached st.
func (s *Schedule) ensureTask(h *holder, st stage.Stage) graph.NodeKey {
	if st <= h.current || st == stage.None {
		return graph.NodeKey{}
	}
	if k := h.tasks[st]; s.graph.Contains(k) {
		return k
	}
	k := s.graph.AddNode(h.pos, st)
	h.tasks[st] = k

	if prev := st.Prev(); prev > h.current {
		s.graph.AddEdge(s.ensureTask(h, prev), k)
	}
	if s.graph.Contains(h.occupied) {
		s.waitFor(h, k)
	}
	s.linkNeighbours(h.pos, st, k)

	if s.graph.Ready(k) {
		s.ready(k)
	}
	return k
}

// linkNeighbours makes k depend on the tasks that bring every neighbour in
// the direct radius of st to the stage st requires of it. It reports if any
// dependency was added.
func (s *Schedule) linkNeighbours(pos chunk.Pos, st stage.Stage, k graph.NodeKey) bool {
	linked := false
	r := int32(stage.DirectRadius(st))
	gridutil.Square(r, func(dx, dz int32) bool {
		d := int(gridutil.Chebyshev(dx, dz))
		if d == 0 {
			return true
		}
		need := stage.DirectDependency(st, d)
		npos := pos.Add(dx, dz)
		if nh, ok := s.holders[npos]; ok && nh.current >= need {
			return true
		}
		nh := s.holderFor(npos)
		delete(s.unloads, npos)
		if s.graph.AddEdge(s.ensureTask(nh, need), k) {
			linked = true
		}
		return true
	})
	return linked
}

// waitFor makes k wait for the reservation currently guarding h.
func (s *Schedule) waitFor(h *holder, k graph.NodeKey) bool {
	if !s.graph.AddEdge(h.occupied, k) {
		return s.graph.HasEdge(h.occupied, k)
	}
	s.graph.Push(&h.occupiedBy, k)
	return true
}

// reserve creates a reservation for the holders passed.
func (s *Schedule) reserve(holders []*holder) graph.NodeKey {
	occ := s.graph.Occupy()
	for _, h := range holders {
		s.assertf(!s.graph.Contains(h.occupied), "holder %v reserved twice", h.pos)
		h.occupied = occ
		s.graph.Clear(&h.occupiedBy)
	}
	return occ
}

// release drops the reservation guarding h, waking every task waiting on it.
// Holders sharing the reservation must be released too.
func (s *Schedule) release(h *holder) {
	if s.graph.Contains(h.occupied) {
		s.removeNode(h.occupied)
	}
	h.occupied = graph.NodeKey{}
	s.graph.Clear(&h.occupiedBy)
}

// clearTasks removes the task nodes of every stage up to and including st.
func (s *Schedule) clearTasks(h *holder, st stage.Stage) {
	for _, i := range stage.All(stage.Empty, st) {
		if k := h.tasks[i]; !k.IsNull() {
			s.removeNode(k)
			h.tasks[i] = graph.NodeKey{}
		}
	}
}
