package chunk

import (
	"fmt"
	"math"

	"github.com/df-mc/chunkgen/server/internal/gridutil"
	"github.com/go-gl/mathgl/mgl64"
)

// Pos holds the position of a chunk. The type is provided as a utility struct
// for keeping track of a chunk's position. Chunks do not themselves keep track
// of that. Chunk positions are different from block positions in the way that
// increasing the X/Z by one means increasing the absolute value on the X/Z axis
// in terms of blocks by 16.
type Pos [2]int32

// Sentinel is a position no real chunk occupies. Graph nodes carrying it do no
// work of their own.
var Sentinel = Pos{math.MaxInt32, math.MaxInt32}

// X returns the X coordinate of the chunk position.
func (p Pos) X() int32 {
	return p[0]
}

// Z returns the Z coordinate of the chunk position.
func (p Pos) Z() int32 {
	return p[1]
}

// Add returns the position offset by dx, dz.
func (p Pos) Add(dx, dz int32) Pos {
	return Pos{p[0] + dx, p[1] + dz}
}

// Distance returns the Chebyshev distance between two chunk positions.
func (p Pos) Distance(o Pos) int32 {
	return gridutil.Chebyshev(p[0]-o[0], p[1]-o[1])
}

// Pack packs the position into a single int64.
func (p Pos) Pack() int64 {
	return int64(p[0])<<32 | int64(uint32(p[1]))
}

// Unpack reverses Pos.Pack.
func Unpack(v int64) Pos {
	return Pos{int32(v >> 32), int32(uint32(v))}
}

// String implements fmt.Stringer and returns (x, z).
func (p Pos) String() string {
	return fmt.Sprintf("(%v, %v)", p[0], p[1])
}

// PosFromVec3 returns the chunk position containing the world position passed.
func PosFromVec3(v mgl64.Vec3) Pos {
	return Pos{int32(math.Floor(v[0])) >> 4, int32(math.Floor(v[2])) >> 4}
}
