package schedule

import "github.com/df-mc/chunkgen/server/world/chunk"

// Listener is notified when chunks become public. NewChunk is called from the
// scheduler goroutine and must not block for long.
type Listener interface {
	// NewChunk is called when the chunk at pos is published for the first
	// time or republished after it was regenerated.
	NewChunk(pos chunk.Pos, c *chunk.Level)
}

// NopListener implements Listener and ignores every call.
type NopListener struct{}

func (NopListener) NewChunk(chunk.Pos, *chunk.Level) {}

// ListenerFunc implements Listener with a function.
type ListenerFunc func(pos chunk.Pos, c *chunk.Level)

func (f ListenerFunc) NewChunk(pos chunk.Pos, c *chunk.Level) { f(pos, c) }
