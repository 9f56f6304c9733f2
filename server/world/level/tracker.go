// Package level turns loading tickets into per-position levels and target
// stages, and streams the resulting changes to the generation scheduler.
package level

import (
	"github.com/df-mc/chunkgen/server/internal/gridutil"
	"github.com/df-mc/chunkgen/server/world/chunk"
	"github.com/df-mc/chunkgen/server/world/stage"
	"github.com/google/uuid"
)

// Ticket keeps a square of chunks around Pos loaded. Every chunk within Radius
// of Pos gets level 0 and must become Full. Outside the radius the level grows
// by one per ring and the target stage drops off following stage.AroundFull.
type Ticket struct {
	ID     uuid.UUID
	Pos    chunk.Pos
	Radius int32
}

// Change is the transition of a single position's target stage.
type Change struct {
	Old, New stage.Stage
}

// LevelChange is a batch of target stage changes together with the full
// level table they were computed from.
type LevelChange struct {
	Changes map[chunk.Pos]Change
	// Levels holds the level of every position that has a target stage other
	// than None.
	Levels map[chunk.Pos]int
}

// Target returns the stage a position at the level passed must reach.
func Target(level int) stage.Stage {
	return stage.AroundFull(level)
}

// Unreachable is a level larger than that of any position with a target.
func Unreachable() int {
	return stage.FullReach()
}

// Tracker computes levels and target stages from a set of tickets. A Tracker
// is not safe for concurrent use. Channel wraps one for use across goroutines.
type Tracker struct {
	tickets map[uuid.UUID]Ticket
	levels  map[chunk.Pos]int
}

// NewTracker returns a tracker without tickets.
func NewTracker() *Tracker {
	return &Tracker{tickets: make(map[uuid.UUID]Ticket), levels: make(map[chunk.Pos]int)}
}

// Set adds or replaces a ticket and returns the resulting changes.
func (t *Tracker) Set(tk Ticket) map[chunk.Pos]Change {
	if tk.Radius < 0 {
		tk.Radius = 0
	}
	t.tickets[tk.ID] = tk
	return t.recompute()
}

// Remove removes the ticket with the ID passed and returns the resulting
// changes.
func (t *Tracker) Remove(id uuid.UUID) map[chunk.Pos]Change {
	if _, ok := t.tickets[id]; !ok {
		return nil
	}
	delete(t.tickets, id)
	return t.recompute()
}

// Ticket returns the ticket with the ID passed.
func (t *Tracker) Ticket(id uuid.UUID) (Ticket, bool) {
	tk, ok := t.tickets[id]
	return tk, ok
}

// Level returns the level of a position and whether it has a target at all.
func (t *Tracker) Level(pos chunk.Pos) (int, bool) {
	l, ok := t.levels[pos]
	return l, ok
}

// Levels returns a copy of the level table.
func (t *Tracker) Levels() map[chunk.Pos]int {
	m := make(map[chunk.Pos]int, len(t.levels))
	for pos, l := range t.levels {
		m[pos] = l
	}
	return m
}

func (t *Tracker) recompute() map[chunk.Pos]Change {
	reach := int32(stage.FullReach())
	levels := make(map[chunk.Pos]int, len(t.levels))
	for _, tk := range t.tickets {
		outer := tk.Radius + reach - 1
		gridutil.Square(outer, func(dx, dz int32) bool {
			l := int(max(0, gridutil.Chebyshev(dx, dz)-tk.Radius))
			pos := tk.Pos.Add(dx, dz)
			if cur, ok := levels[pos]; !ok || l < cur {
				levels[pos] = l
			}
			return true
		})
	}
	changes := make(map[chunk.Pos]Change)
	for pos, l := range levels {
		old := stage.None
		if ol, ok := t.levels[pos]; ok {
			old = Target(ol)
		}
		if n := Target(l); n != old {
			changes[pos] = Change{Old: old, New: n}
		}
	}
	for pos, ol := range t.levels {
		if _, ok := levels[pos]; !ok {
			changes[pos] = Change{Old: Target(ol), New: stage.None}
		}
	}
	t.levels = levels
	return changes
}
