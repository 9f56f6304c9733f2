package generator

// Block ids used by the generator.
const (
	Air uint16 = iota
	Bedrock
	Stone
	Dirt
	Grass
	Sand
	Water
	Log
	Leaves
	CoalOre
	IronOre
	Snow
	Gravel
)

// Biome describes the terrain of a biome.
type Biome struct {
	ID   uint8
	Name string
	// MinElevation and MaxElevation bound the terrain height.
	MinElevation, MaxElevation int
	// Cover lists the blocks placed on top of stone, from the surface down.
	Cover []uint16
	// Trees is the number of tree attempts per chunk.
	Trees int
}

var biomes = []Biome{
	{ID: 0, Name: "ocean", MinElevation: 46, MaxElevation: 58, Cover: []uint16{Gravel, Gravel}},
	{ID: 1, Name: "plains", MinElevation: 63, MaxElevation: 68, Cover: []uint16{Grass, Dirt, Dirt}, Trees: 1},
	{ID: 2, Name: "desert", MinElevation: 63, MaxElevation: 74, Cover: []uint16{Sand, Sand, Sand}},
	{ID: 3, Name: "forest", MinElevation: 63, MaxElevation: 81, Cover: []uint16{Grass, Dirt, Dirt}, Trees: 5},
	{ID: 4, Name: "mountains", MinElevation: 63, MaxElevation: 110, Cover: []uint16{Stone}},
	{ID: 5, Name: "ice_plains", MinElevation: 63, MaxElevation: 74, Cover: []uint16{Snow, Dirt, Dirt}},
}

// BiomeByID returns the biome with the id passed, or plains if unknown.
func BiomeByID(id uint8) Biome {
	if int(id) < len(biomes) {
		return biomes[id]
	}
	return biomes[1]
}

// smoothSize is the radius, in blocks, over which biome elevations are
// blended.
const smoothSize = 2

var gaussianKernel = [5][5]float64{
	{1.4715177646858, 2.141045714076, 2.4261226388505, 2.141045714076, 1.4715177646858},
	{2.141045714076, 3.1152031322856, 3.5299876103384, 3.1152031322856, 2.141045714076},
	{2.4261226388505, 3.5299876103384, 4, 3.5299876103384, 2.4261226388505},
	{2.141045714076, 3.1152031322856, 3.5299876103384, 3.1152031322856, 2.141045714076},
	{1.4715177646858, 2.141045714076, 2.4261226388505, 2.141045714076, 1.4715177646858},
}
