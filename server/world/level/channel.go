package level

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/df-mc/chunkgen/server/world/chunk"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// ErrClosed is returned by Channel.Wait once the channel was closed and no
// update is left.
var ErrClosed = errors.New("level: channel closed")

// Update is a single read from a Channel. Change is nil if no target stage
// changed. Hints is only meaningful if HintsChanged is set, in which case it
// replaces the previous list of high priority positions.
type Update struct {
	Change       *LevelChange
	Hints        []chunk.Pos
	HintsChanged bool
}

// Empty reports if the update carries nothing.
func (u Update) Empty() bool {
	return u.Change == nil && !u.HintsChanged
}

// Channel is the producer side of level changes. Tickets and hints may be
// changed from any goroutine. Changes that the scheduler has not yet read are
// coalesced: for every position the oldest old stage and the newest new stage
// are kept, and positions whose target ended up unchanged are dropped.
type Channel struct {
	mu         sync.Mutex
	tracker    *Tracker
	hints      map[uuid.UUID]chunk.Pos
	pending    map[chunk.Pos]Change
	hintsDirty bool

	notify chan struct{}

	once   sync.Once
	closed chan struct{}
}

// NewChannel returns a channel without tickets or hints.
func NewChannel() *Channel {
	return &Channel{
		tracker: NewTracker(),
		hints:   make(map[uuid.UUID]chunk.Pos),
		pending: make(map[chunk.Pos]Change),
		notify:  make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
}

// AddTicket keeps the square of the radius passed around pos loaded and
// returns the ID of the new ticket.
func (c *Channel) AddTicket(pos chunk.Pos, radius int32) uuid.UUID {
	id := uuid.New()
	c.SetTicket(Ticket{ID: id, Pos: pos, Radius: radius})
	return id
}

// SetTicket adds or replaces a ticket.
func (c *Channel) SetTicket(tk Ticket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.merge(c.tracker.Set(tk))
}

// MoveTicket moves an existing ticket to a new position. False is returned if
// no ticket with the ID exists.
func (c *Channel) MoveTicket(id uuid.UUID, pos chunk.Pos) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	tk, ok := c.tracker.Ticket(id)
	if !ok {
		return false
	}
	if tk.Pos != pos {
		tk.Pos = pos
		c.merge(c.tracker.Set(tk))
	}
	return true
}

// RemoveTicket removes a ticket. Positions only kept by it lose their target.
func (c *Channel) RemoveTicket(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.merge(c.tracker.Remove(id))
}

// SetHint marks the chunk containing the position passed as high priority on
// behalf of owner, typically a player. A previous hint of the same owner is
// replaced.
func (c *Channel) SetHint(owner uuid.UUID, v mgl64.Vec3) {
	pos := chunk.PosFromVec3(v)
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.hints[owner]; ok && old == pos {
		return
	}
	c.hints[owner] = pos
	c.hintsDirty = true
	c.wake()
}

// RemoveHint removes the hint of owner.
func (c *Channel) RemoveHint(owner uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.hints[owner]; !ok {
		return
	}
	delete(c.hints, owner)
	c.hintsDirty = true
	c.wake()
}

func (c *Channel) merge(changes map[chunk.Pos]Change) {
	if len(changes) == 0 {
		return
	}
	for pos, ch := range changes {
		if prev, ok := c.pending[pos]; ok {
			ch.Old = prev.Old
		}
		if ch.Old == ch.New {
			delete(c.pending, pos)
			continue
		}
		c.pending[pos] = ch
	}
	c.wake()
}

func (c *Channel) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Latest returns the pending update without blocking. False is returned if
// nothing changed since the previous read.
func (c *Channel) Latest() (Update, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u := c.take()
	return u, !u.Empty()
}

func (c *Channel) take() Update {
	var u Update
	if len(c.pending) > 0 {
		u.Change = &LevelChange{Changes: c.pending, Levels: c.tracker.Levels()}
		c.pending = make(map[chunk.Pos]Change)
	}
	if c.hintsDirty {
		u.HintsChanged = true
		u.Hints = make([]chunk.Pos, 0, len(c.hints))
		for _, pos := range c.hints {
			u.Hints = append(u.Hints, pos)
		}
		slices.SortFunc(u.Hints, func(a, b chunk.Pos) int {
			return cmp.Compare(a.Pack(), b.Pack())
		})
		u.Hints = slices.Compact(u.Hints)
		c.hintsDirty = false
	}
	return u
}

// Wait blocks until an update is pending and returns it. ErrClosed is returned
// once the channel is closed and drained, and the context's error if it is
// cancelled first.
func (c *Channel) Wait(ctx context.Context) (Update, error) {
	for {
		if u, ok := c.Latest(); ok {
			return u, nil
		}
		select {
		case <-c.notify:
		case <-c.closed:
			if u, ok := c.Latest(); ok {
				return u, nil
			}
			return Update{}, ErrClosed
		case <-ctx.Done():
			return Update{}, ctx.Err()
		}
	}
}

// Notify returns a channel that receives a value whenever an update may be
// pending. It is meant for callers that select on other channels too.
func (c *Channel) Notify() <-chan struct{} {
	return c.notify
}

// Done returns a channel closed once Close is called.
func (c *Channel) Done() <-chan struct{} {
	return c.closed
}

// Close closes the channel. Pending updates can still be read.
func (c *Channel) Close() {
	c.once.Do(func() { close(c.closed) })
}
