package schedule

import (
	"github.com/df-mc/chunkgen/server/world/chunk"
	"github.com/df-mc/chunkgen/server/world/graph"
	"github.com/df-mc/chunkgen/server/world/stage"
)

// holder is the scheduler's bookkeeping for a single chunk position.
type holder struct {
	pos chunk.Pos

	// current is the stage the chunk has reached, target the stage the level
	// table asks for. Neighbours may require a holder to go beyond target.
	current, target stage.Stage
	// tasks holds the task node of every stage that still has to run.
	tasks [stage.Count]graph.NodeKey
	// inflight is the stage currently running with this holder as centre,
	// or None.
	inflight stage.Stage

	// occupied is the reservation guarding the holder's data while it is
	// owned by a worker. occupiedBy lists the tasks waiting for it.
	occupied   graph.NodeKey
	occupiedBy graph.List

	// chunk is zero exactly while a worker owns the payload.
	chunk  chunk.Chunk
	public bool
	// retry is set after a failed stage and boosts the holder's tasks until
	// the chunk is read back.
	retry bool
}

func newHolder(pos chunk.Pos) *holder {
	return &holder{pos: pos}
}

// hasTasks reports if any task node of the holder is still live.
func (h *holder) hasTasks(g *graph.Graph) bool {
	for _, k := range h.tasks {
		if g.Contains(k) {
			return true
		}
	}
	return false
}

// busy reports if a worker currently owns the holder's data.
func (h *holder) busy(g *graph.Graph) bool {
	return g.Contains(h.occupied) || h.inflight != stage.None
}
