package schedule

import (
	"sync"

	"github.com/df-mc/chunkgen/server/world/chunk"
	"github.com/segmentio/fasthash/fnv1a"
)

const publicShards = 32

// PublicMap exposes the chunks that finished generation to the rest of the
// server. Only the scheduler inserts and removes chunks; any goroutine may
// read. The map does not hold a reference of its own: callers that keep a
// chunk beyond a short read must use Acquire and Release it when done, which
// also prevents the chunk from being unloaded in the meantime.
type PublicMap struct {
	shards [publicShards]publicShard
}

type publicShard struct {
	mu     sync.RWMutex
	chunks map[chunk.Pos]*chunk.Level
}

// NewPublicMap returns an empty map.
func NewPublicMap() *PublicMap {
	m := &PublicMap{}
	for i := range m.shards {
		m.shards[i].chunks = make(map[chunk.Pos]*chunk.Level)
	}
	return m
}

func (m *PublicMap) shard(pos chunk.Pos) *publicShard {
	return &m.shards[fnv1a.HashUint64(uint64(pos.Pack()))%publicShards]
}

// Get returns the chunk at the position passed without acquiring it.
func (m *PublicMap) Get(pos chunk.Pos) (*chunk.Level, bool) {
	s := m.shard(pos)
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[pos]
	return c, ok
}

// Acquire returns the chunk at the position passed with a reference added.
// The caller must call Release on it once done.
func (m *PublicMap) Acquire(pos chunk.Pos) (*chunk.Level, bool) {
	s := m.shard(pos)
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[pos]
	if !ok {
		return nil, false
	}
	return c.Acquire(), true
}

// Len returns the number of public chunks.
func (m *PublicMap) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		n += len(s.chunks)
		s.mu.RUnlock()
	}
	return n
}

// Range calls f for every public chunk until f returns false. Chunks added or
// removed during the call may or may not be visited.
func (m *PublicMap) Range(f func(pos chunk.Pos, c *chunk.Level) bool) {
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		for pos, c := range s.chunks {
			if !f(pos, c) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

func (m *PublicMap) set(pos chunk.Pos, c *chunk.Level) {
	s := m.shard(pos)
	s.mu.Lock()
	s.chunks[pos] = c
	s.mu.Unlock()
}

func (m *PublicMap) remove(pos chunk.Pos) {
	s := m.shard(pos)
	s.mu.Lock()
	delete(s.chunks, pos)
	s.mu.Unlock()
}
