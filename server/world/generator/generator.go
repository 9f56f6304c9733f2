// Package generator implements a deterministic terrain generator that runs
// each generation stage on a chunk cache.
package generator

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/df-mc/chunkgen/server/world/chunk"
	"github.com/df-mc/chunkgen/server/world/stage"
)

// Generator produces banded terrain from a seed. The same seed always yields
// the same chunks, independent of the order they are generated in.
type Generator struct {
	seed       int64
	waterLevel int
}

// New returns a generator for the seed passed.
func New(seed int64) *Generator {
	return &Generator{seed: seed, waterLevel: 62}
}

// Generate runs stage s on the centre of the cache.
func (g *Generator) Generate(s stage.Stage, c *chunk.Cache) error {
	centre := c.CenterChunk().Proto
	if centre == nil {
		return fmt.Errorf("generator: no proto chunk at %v", c.Center())
	}
	switch s {
	case stage.StructureStart:
		g.structureStart(centre)
	case stage.StructureReferences:
		g.structureReferences(centre, c)
	case stage.Biomes:
		g.biomes(centre)
	case stage.Noise:
		g.noise(centre)
	case stage.Surface:
		g.surface(centre)
	case stage.Features:
		g.features(centre, c)
	case stage.Lighting:
		centre.Lit = true
	case stage.Full:
	default:
		return fmt.Errorf("generator: cannot run stage %v", s)
	}
	return nil
}

func (g *Generator) random(pos chunk.Pos, salt uint64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(g.seed)^salt, uint64(pos.Pack())))
}

func (g *Generator) structureStart(p *chunk.Proto) {
	if g.random(p.Pos(), 0x5157).IntN(8) == 0 {
		p.Structures = append(p.Structures, "ruin")
	}
}

func (g *Generator) structureReferences(p *chunk.Proto, c *chunk.Cache) {
	r := c.Radius()
	for dx := -r; dx <= r; dx++ {
		for dz := -r; dz <= r; dz++ {
			n := c.At(dx, dz)
			if n.IsZero() || (dx == 0 && dz == 0) {
				continue
			}
			n.View(func(d *chunk.Data) {
				if len(d.Structures) > 0 {
					p.References = append(p.References, n.Pos())
				}
			})
		}
	}
}

func (g *Generator) pickBiome(x, z int64) Biome {
	// Biomes are picked per 64 block cell with jittered borders.
	hash := x*2345803 ^ z*9236449 ^ g.seed
	hash *= hash + 223
	jx, jz := hash>>20&3, hash>>22&3
	cx, cz := (x+jx*4)>>6, (z+jz*4)>>6
	cell := uint64(cx*341873128712+cz*132897987541) ^ uint64(g.seed)
	cell ^= cell >> 29
	cell *= 0xbf58476d1ce4e5b9
	cell ^= cell >> 32
	return biomes[cell%uint64(len(biomes))]
}

func (g *Generator) biomes(p *chunk.Proto) {
	bx, bz := int64(p.Pos()[0])*chunk.Width, int64(p.Pos()[1])*chunk.Width
	for x := range chunk.Width {
		for z := range chunk.Width {
			p.SetBiome(x, z, g.pickBiome(bx+int64(x), bz+int64(z)).ID)
		}
	}
}

// elevation blends the elevation of the biomes around a column.
func (g *Generator) elevation(x, z int64) float64 {
	var minSum, maxSum, weightSum float64
	for sx := int64(-smoothSize); sx <= smoothSize; sx++ {
		for sz := int64(-smoothSize); sz <= smoothSize; sz++ {
			w := gaussianKernel[sx+smoothSize][sz+smoothSize]
			b := g.pickBiome(x+sx, z+sz)
			minSum += float64(b.MinElevation) * w
			maxSum += float64(b.MaxElevation) * w
			weightSum += w
		}
	}
	minSum, maxSum = minSum/weightSum, maxSum/weightSum
	wave := (math.Sin(float64(x)/23+float64(g.seed%97)) + math.Cos(float64(z)/17)) / 4
	return minSum + (maxSum-minSum)*(0.5+wave)
}

func (g *Generator) noise(p *chunk.Proto) {
	bx, bz := int64(p.Pos()[0])*chunk.Width, int64(p.Pos()[1])*chunk.Width
	top := p.Height - 1
	for x := range chunk.Width {
		for z := range chunk.Width {
			h := min(int(g.elevation(bx+int64(x), bz+int64(z))), top)
			p.SetBlock(x, 0, z, Bedrock)
			for y := 1; y <= h; y++ {
				p.SetBlock(x, y, z, Stone)
			}
			for y := h + 1; y <= min(g.waterLevel, top); y++ {
				p.SetBlock(x, y, z, Water)
			}
		}
	}
}

func (g *Generator) surface(p *chunk.Proto) {
	for x := range chunk.Width {
		for z := range chunk.Width {
			cover := BiomeByID(p.Biome(x, z)).Cover
			y := p.HeightAt(x, z)
			for y > 0 && p.Block(x, y, z) == Water {
				y--
			}
			for i, b := range cover {
				if y-i <= 0 {
					break
				}
				p.SetBlock(x, y-i, z, b)
			}
		}
	}
}

// features places ores in the centre and trees that may reach into the
// neighbouring chunks of the cache.
func (g *Generator) features(p *chunk.Proto, c *chunk.Cache) {
	r := g.random(p.Pos(), 0xfea7)
	for range 12 {
		x, z, y := r.IntN(chunk.Width), r.IntN(chunk.Width), 1+r.IntN(max(1, p.Height/2))
		if p.Block(x, y, z) == Stone {
			ore := CoalOre
			if r.IntN(3) == 0 {
				ore = IronOre
			}
			p.SetBlock(x, y, z, ore)
		}
	}

	biome := BiomeByID(p.Biome(7, 7))
	base := p.Pos()
	for range biome.Trees {
		x, z := r.IntN(chunk.Width), r.IntN(chunk.Width)
		y := p.HeightAt(x, z)
		if y <= 0 || p.Block(x, y, z) != Grass || y+6 >= p.Height {
			continue
		}
		for i := 1; i <= 4; i++ {
			p.SetBlock(x, y+i, z, Log)
		}
		wx, wz := int(base[0])*chunk.Width+x, int(base[1])*chunk.Width+z
		for lx := -2; lx <= 2; lx++ {
			for lz := -2; lz <= 2; lz++ {
				for ly := 3; ly <= 5; ly++ {
					if lx == 0 && lz == 0 && ly < 5 {
						continue
					}
					setWorldBlock(c, wx+lx, y+ly, wz+lz, Leaves)
				}
			}
		}
	}
}

// setWorldBlock sets a block at world coordinates if its chunk is part of the
// cache and the block is air.
func setWorldBlock(c *chunk.Cache, x, y, z int, b uint16) {
	pos := chunk.Pos{int32(x >> 4), int32(z >> 4)}
	ch, ok := c.Get(pos)
	if !ok || ch.IsZero() {
		return
	}
	ch.Edit(func(d *chunk.Data) {
		if d.Block(x, y, z) == Air {
			d.SetBlock(x, y, z, b)
		}
	})
}
