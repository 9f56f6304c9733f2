package schedule

import (
	"github.com/df-mc/chunkgen/server/world/chunk"
	"github.com/df-mc/chunkgen/server/world/graph"
	"github.com/df-mc/chunkgen/server/world/stage"
	"github.com/df-mc/chunkgen/server/world/worker"
)

func (s *Schedule) ingest(r worker.Result) {
	s.inflight--
	switch r := r.(type) {
	case worker.DiskResult:
		s.ingestDisk(r)
	case worker.Generation:
		s.ingestGeneration(r)
	case worker.Failure:
		s.ingestFailure(r)
	}
}

func (s *Schedule) ingestDisk(r worker.DiskResult) {
	h, ok := s.holders[r.Pos]
	if !s.assertf(ok && h.inflight == stage.Empty, "unexpected disk result for %v", r.Pos) {
		return
	}
	h.inflight = stage.None
	h.retry = false
	h.chunk = r.Chunk
	h.current = r.Chunk.Status()
	s.release(h)
	s.clearTasks(h, h.current)
	s.metrics.IncCompleted(stage.Empty)

	switch {
	case r.Chunk.Level != nil:
		s.publish(h)
	case h.public:
		s.public.remove(h.pos)
		h.public = false
	}
	s.settle(h)
}

func (s *Schedule) ingestGeneration(r worker.Generation) {
	h, ok := s.holders[r.Pos]
	if !s.assertf(ok && h.inflight == r.Stage, "unexpected %v result for %v", r.Stage, r.Pos) {
		s.orphan(r.Chunks)
		return
	}
	holders := s.restore(chunk.CacheFrom(r.Pos, r.Radius, r.Chunks), r.Pos)

	h.inflight = stage.None
	s.assertf(h.chunk.Status() == r.Stage, "%v returned at %v after running %v", h.pos, h.chunk.Status(), r.Stage)
	h.current = r.Stage
	if k := h.tasks[r.Stage]; !k.IsNull() {
		s.removeNode(k)
		h.tasks[r.Stage] = graph.NodeKey{}
	}
	s.metrics.IncCompleted(r.Stage)
	if r.Stage == stage.Full {
		s.publish(h)
	}
	for _, wh := range holders {
		s.settle(wh)
	}
}

// ingestFailure restores the neighbours of a failed stage and regenerates the
// centre from scratch.
func (s *Schedule) ingestFailure(r worker.Failure) {
	s.log.Warn("generate chunk: "+r.Err.Error(), "X", r.Pos[0], "Z", r.Pos[1], "stage", r.Stage)
	s.metrics.IncFailures(r.Stage)

	h, ok := s.holders[r.Pos]
	if !s.assertf(ok && h.inflight == r.Stage, "unexpected %v failure for %v", r.Stage, r.Pos) {
		s.orphan(r.Chunks)
		return
	}
	holders := s.restore(chunk.CacheFrom(r.Pos, r.Radius, r.Chunks), r.Pos)
	h.inflight = stage.None
	s.reset(h)
	for _, wh := range holders {
		if wh != h {
			s.settle(wh)
		}
	}
}

// restore moves the chunks of a cache back into their holders and releases
// the reservation they shared. The holders are returned.
func (s *Schedule) restore(c *chunk.Cache, centre chunk.Pos) []*holder {
	chunks := c.Take()
	holders := make([]*holder, 0, len(chunks))
	for i, ch := range chunks {
		pos := c.PosAt(i)
		wh, ok := s.holders[pos]
		if !s.assertf(ok, "returned chunk %v has no holder", pos) {
			s.orphan([]chunk.Chunk{ch})
			continue
		}
		s.assertf(wh.chunk.IsZero(), "returned chunk %v overwrites held data", pos)
		wh.chunk = ch
		if pos != centre && ch.Status() > wh.current {
			wh.current = ch.Status()
		}
		holders = append(holders, wh)
	}
	for _, wh := range holders {
		s.release(wh)
	}
	return holders
}

// orphan saves chunks that no holder is left to take.
func (s *Schedule) orphan(chunks []chunk.Chunk) {
	batch := make([]chunk.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if !c.IsZero() {
			batch = append(batch, c)
		}
	}
	if err := s.pool.Writer.Write(batch); err != nil {
		s.log.Error("save orphaned chunks: "+err.Error(), "chunks", len(batch))
	}
}

// reset discards the chunk of a holder and rebuilds its task chain from
// None. Tasks of other holders that depended on it are woken and link to the
// new chain when they are dispatched.
func (s *Schedule) reset(h *holder) {
	s.clearTasks(h, stage.Full)
	s.release(h)
	if h.public {
		s.public.remove(h.pos)
		h.public = false
	}
	h.chunk = chunk.Chunk{}
	h.current = stage.None
	h.retry = true
	for _, st := range stage.All(stage.Empty, h.target) {
		s.ensureTask(h, st)
	}
	s.settle(h)
}

// publish makes the Level chunk of a holder public, or republishes it after
// it was regenerated, and notifies the listener.
func (s *Schedule) publish(h *holder) {
	l := h.chunk.Level
	if !s.assertf(l != nil, "publishing %v without a Level chunk", h.pos) {
		return
	}
	h.public = true
	s.public.set(h.pos, l)
	s.metrics.IncPublished()
	s.conf.Listener.NewChunk(h.pos, l)
}

// settle queues a holder for unloading once nothing needs it anymore.
func (s *Schedule) settle(h *holder) {
	if h.target == stage.None {
		s.markUnload(h)
	}
}
