// Package chunk implements the payloads flowing through the generation
// pipeline: partially generated Proto chunks and published Level chunks.
package chunk

import (
	"sync"
	"sync/atomic"

	"github.com/df-mc/chunkgen/server/world/stage"
)

const (
	// Width is the width of a chunk on the X and Z axes, in blocks.
	Width = 16
	// DefaultHeight is the height of a chunk column used when none is set.
	DefaultHeight = 128
)

// Data holds the block, biome and height data of a single chunk column.
type Data struct {
	Height int
	// Blocks holds Width*Width*Height block ids, indexed x, then z, then y.
	Blocks []uint16
	// Biomes holds a biome id per column.
	Biomes []uint8
	// Heights holds the highest non-air block per column, or -1.
	Heights []int32
	// Structures lists the structure starts placed in this chunk.
	Structures []string
	// References lists the chunks whose structure starts reach into this one.
	References []Pos
}

// NewData returns empty data for a column of the height passed.
func NewData(height int) *Data {
	if height <= 0 {
		height = DefaultHeight
	}
	d := &Data{
		Height:  height,
		Blocks:  make([]uint16, Width*Width*height),
		Biomes:  make([]uint8, Width*Width),
		Heights: make([]int32, Width*Width),
	}
	for i := range d.Heights {
		d.Heights[i] = -1
	}
	return d
}

func (d *Data) index(x, y, z int) int {
	return (x*Width+z)*d.Height + y
}

// Block returns the block id at the chunk-local position passed.
func (d *Data) Block(x, y, z int) uint16 {
	if y < 0 || y >= d.Height {
		return 0
	}
	return d.Blocks[d.index(x&0xf, y, z&0xf)]
}

// SetBlock sets the block id at the chunk-local position passed.
func (d *Data) SetBlock(x, y, z int, b uint16) {
	if y < 0 || y >= d.Height {
		return
	}
	x, z = x&0xf, z&0xf
	d.Blocks[d.index(x, y, z)] = b
	col := x*Width + z
	switch {
	case b != 0 && int32(y) > d.Heights[col]:
		d.Heights[col] = int32(y)
	case b == 0 && int32(y) == d.Heights[col]:
		h := int32(-1)
		for yy := y - 1; yy >= 0; yy-- {
			if d.Blocks[d.index(x, yy, z)] != 0 {
				h = int32(yy)
				break
			}
		}
		d.Heights[col] = h
	}
}

// Biome returns the biome id of the column passed.
func (d *Data) Biome(x, z int) uint8 {
	return d.Biomes[(x&0xf)*Width+(z&0xf)]
}

// SetBiome sets the biome id of the column passed.
func (d *Data) SetBiome(x, z int, b uint8) {
	d.Biomes[(x&0xf)*Width+(z&0xf)] = b
}

// HeightAt returns the highest non-air block of the column passed, or -1.
func (d *Data) HeightAt(x, z int) int {
	return int(d.Heights[(x&0xf)*Width+(z&0xf)])
}

// Clone returns a deep copy of the data.
func (d *Data) Clone() *Data {
	return &Data{
		Height:     d.Height,
		Blocks:     append([]uint16(nil), d.Blocks...),
		Biomes:     append([]uint8(nil), d.Biomes...),
		Heights:    append([]int32(nil), d.Heights...),
		Structures: append([]string(nil), d.Structures...),
		References: append([]Pos(nil), d.References...),
	}
}

// Proto is a chunk that has not yet been published. It is owned by exactly
// one party at a time, either a scheduler holder or a worker, so it carries no
// lock.
type Proto struct {
	pos Pos
	// Status is the last stage completed for the chunk.
	Status stage.Stage
	// Lit reports if light has been calculated for the chunk.
	Lit bool
	*Data
}

// NewProto returns a blank proto chunk at the Empty stage.
func NewProto(pos Pos, height int) *Proto {
	return &Proto{pos: pos, Status: stage.Empty, Data: NewData(height)}
}

// NewProtoFrom returns a proto chunk wrapping existing data.
func NewProtoFrom(pos Pos, status stage.Stage, lit bool, data *Data) *Proto {
	return &Proto{pos: pos, Status: status, Lit: lit, Data: data}
}

// Pos returns the position of the chunk.
func (p *Proto) Pos() Pos {
	return p.pos
}

// Level is a fully generated chunk visible to the rest of the server. Other
// subsystems share it through reference counting: the scheduler's holder owns
// the first reference and every external user must Acquire and Release its
// own. A Level chunk may only be unloaded while the holder's reference is the
// only one left.
type Level struct {
	pos Pos

	mu   sync.RWMutex
	data *Data
	lit  bool

	refs  atomic.Int32
	dirty atomic.Bool
}

// NewLevel promotes a proto chunk to a Level chunk with a single reference.
// The proto must not be used afterwards.
func NewLevel(p *Proto) *Level {
	l := &Level{pos: p.pos, data: p.Data, lit: p.Lit}
	l.refs.Store(1)
	l.dirty.Store(true)
	return l
}

// LoadedLevel returns a Level chunk read from storage. Unlike NewLevel, the
// chunk starts out clean.
func LoadedLevel(pos Pos, lit bool, data *Data) *Level {
	l := &Level{pos: pos, data: data, lit: lit}
	l.refs.Store(1)
	return l
}

// Pos returns the position of the chunk.
func (l *Level) Pos() Pos {
	return l.pos
}

// Lit reports if light has been calculated for the chunk.
func (l *Level) Lit() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lit
}

// Acquire adds a reference to the chunk and returns it.
func (l *Level) Acquire() *Level {
	l.refs.Add(1)
	return l
}

// Release drops a reference previously obtained through Acquire.
func (l *Level) Release() {
	if l.refs.Add(-1) < 0 {
		panic("chunk: Level released more often than acquired")
	}
}

// Refs returns the current number of references to the chunk.
func (l *Level) Refs() int32 {
	return l.refs.Load()
}

// Dirty reports if the chunk changed since it was last persisted.
func (l *Level) Dirty() bool {
	return l.dirty.Load()
}

// MarkClean clears the dirty flag after the chunk was persisted.
func (l *Level) MarkClean() {
	l.dirty.Store(false)
}

// MarkDirty flags the chunk as changed since it was last persisted.
func (l *Level) MarkDirty() {
	l.dirty.Store(true)
}

// Block returns the block id at the chunk-local position passed.
func (l *Level) Block(x, y, z int) uint16 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.data.Block(x, y, z)
}

// SetBlock sets the block id at the chunk-local position passed and marks the
// chunk dirty.
func (l *Level) SetBlock(x, y, z int, b uint16) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.data.SetBlock(x, y, z, b)
	l.dirty.Store(true)
}

// View calls f with the chunk's data under a read lock. f must not retain d.
func (l *Level) View(f func(d *Data)) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f(l.data)
}

// Edit calls f with the chunk's data under a write lock and marks the chunk
// dirty.
func (l *Level) Edit(f func(d *Data)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f(l.data)
	l.dirty.Store(true)
}

// SetLit updates the light state of the chunk.
func (l *Level) SetLit(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lit = v
	l.dirty.Store(true)
}

// Downgrade returns a proto chunk at the stage passed holding a copy of the
// chunk's data. External references to l stay valid and keep seeing the old
// data.
func (l *Level) Downgrade(status stage.Stage, lit bool) *Proto {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return NewProtoFrom(l.pos, status, lit, l.data.Clone())
}

// Chunk is either a Proto or a Level chunk. The zero value holds neither and
// stands for a chunk whose data is currently owned elsewhere.
type Chunk struct {
	Proto *Proto
	Level *Level
}

// FromProto wraps a proto chunk.
func FromProto(p *Proto) Chunk {
	return Chunk{Proto: p}
}

// FromLevel wraps a Level chunk.
func FromLevel(l *Level) Chunk {
	return Chunk{Level: l}
}

// IsZero reports if the chunk holds no payload.
func (c Chunk) IsZero() bool {
	return c.Proto == nil && c.Level == nil
}

// Pos returns the position of the payload.
func (c Chunk) Pos() Pos {
	switch {
	case c.Level != nil:
		return c.Level.pos
	case c.Proto != nil:
		return c.Proto.pos
	}
	return Sentinel
}

// Status returns the stage the payload has reached. Level chunks are Full.
func (c Chunk) Status() stage.Stage {
	switch {
	case c.Level != nil:
		return stage.Full
	case c.Proto != nil:
		return c.Proto.Status
	}
	return stage.None
}

// Lit reports if light has been calculated for the payload.
func (c Chunk) Lit() bool {
	switch {
	case c.Level != nil:
		return c.Level.Lit()
	case c.Proto != nil:
		return c.Proto.Lit
	}
	return false
}

// View calls f with the payload's data, locking Level chunks for reading.
func (c Chunk) View(f func(d *Data)) {
	switch {
	case c.Level != nil:
		c.Level.View(f)
	case c.Proto != nil:
		f(c.Proto.Data)
	}
}

// Edit calls f with the payload's data, locking Level chunks for writing.
func (c Chunk) Edit(f func(d *Data)) {
	switch {
	case c.Level != nil:
		c.Level.Edit(f)
	case c.Proto != nil:
		f(c.Proto.Data)
	}
}
