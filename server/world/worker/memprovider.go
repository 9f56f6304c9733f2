package worker

import (
	"sync"

	"github.com/df-mc/chunkgen/server/world/chunk"
)

// MemProvider is a Provider keeping chunks in memory. Stored chunks are kept
// by reference, so it is mostly useful for tests and throwaway worlds.
type MemProvider struct {
	mu     sync.Mutex
	chunks map[chunk.Pos]chunk.Chunk
	stores int
}

// NewMemProvider returns an empty MemProvider.
func NewMemProvider() *MemProvider {
	return &MemProvider{chunks: make(map[chunk.Pos]chunk.Chunk)}
}

// Load returns the chunk last stored at the position passed.
func (m *MemProvider) Load(pos chunk.Pos) (chunk.Chunk, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chunks[pos]
	return c, ok, nil
}

// Store keeps every chunk of the batch.
func (m *MemProvider) Store(batch []chunk.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range batch {
		m.chunks[c.Pos()] = c
	}
	m.stores++
	return nil
}

// Stored returns the chunk stored at the position passed, if any.
func (m *MemProvider) Stored(pos chunk.Pos) (chunk.Chunk, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chunks[pos]
	return c, ok
}

// Stores returns the number of batches stored.
func (m *MemProvider) Stores() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stores
}
