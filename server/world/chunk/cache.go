package chunk

import "github.com/df-mc/chunkgen/server/internal/gridutil"

// Cache is a square neighbourhood of chunk payloads handed to a generation
// worker. Chunks are stored in row-major order: x outer, z inner. A Cache owns
// the payloads it holds; they are moved into it, not copied.
type Cache struct {
	center Pos
	radius int32
	chunks []Chunk
}

// NewCache returns an empty cache covering the square of the radius passed
// around center.
func NewCache(center Pos, radius int) *Cache {
	r := int32(radius)
	side := gridutil.Side(r)
	return &Cache{center: center, radius: r, chunks: make([]Chunk, side*side)}
}

// CacheFrom returns a cache over the chunks passed, which must be laid out in
// row-major order and hold (2*radius+1)^2 entries.
func CacheFrom(center Pos, radius int, chunks []Chunk) *Cache {
	r := int32(radius)
	side := gridutil.Side(r)
	if len(chunks) != int(side*side) {
		panic("chunk: cache size does not match its radius")
	}
	return &Cache{center: center, radius: r, chunks: chunks}
}

// Center returns the position the cache is centred on.
func (c *Cache) Center() Pos {
	return c.center
}

// Radius returns the radius of the cache.
func (c *Cache) Radius() int {
	return int(c.radius)
}

// Side returns the width of the cache in chunks.
func (c *Cache) Side() int {
	return int(gridutil.Side(c.radius))
}

// Len returns the number of slots in the cache.
func (c *Cache) Len() int {
	return len(c.chunks)
}

// Contains reports if the position lies within the cache.
func (c *Cache) Contains(pos Pos) bool {
	return pos.Distance(c.center) <= c.radius
}

// PosAt returns the position of the slot at index i.
func (c *Cache) PosAt(i int) Pos {
	side := int32(c.Side())
	return c.center.Add(int32(i)/side-c.radius, int32(i)%side-c.radius)
}

// At returns the payload at the offset dx, dz from the centre.
func (c *Cache) At(dx, dz int) Chunk {
	return c.chunks[gridutil.Index(int32(dx), int32(dz), c.radius)]
}

// Get returns the payload at the absolute position passed, if it lies within
// the cache.
func (c *Cache) Get(pos Pos) (Chunk, bool) {
	if !c.Contains(pos) {
		return Chunk{}, false
	}
	return c.chunks[gridutil.Index(pos[0]-c.center[0], pos[1]-c.center[1], c.radius)], true
}

// Set stores a payload at the offset dx, dz from the centre.
func (c *Cache) Set(dx, dz int, ch Chunk) {
	c.chunks[gridutil.Index(int32(dx), int32(dz), c.radius)] = ch
}

// Put stores a payload at its own position, which must lie within the cache.
func (c *Cache) Put(ch Chunk) {
	pos := ch.Pos()
	c.chunks[gridutil.Index(pos[0]-c.center[0], pos[1]-c.center[1], c.radius)] = ch
}

// CenterChunk returns the payload at the centre of the cache.
func (c *Cache) CenterChunk() Chunk {
	return c.At(0, 0)
}

// SetCenter replaces the payload at the centre of the cache.
func (c *Cache) SetCenter(ch Chunk) {
	c.Set(0, 0, ch)
}

// Take moves every payload out of the cache in row-major order, leaving the
// cache empty.
func (c *Cache) Take() []Chunk {
	out := c.chunks
	c.chunks = make([]Chunk, len(out))
	return out
}
