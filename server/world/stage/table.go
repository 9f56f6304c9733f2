package stage

import "fmt"

// directDependencies maps every stage to the minimum stage each neighbour must
// have reached before the stage may run, indexed by Chebyshev distance. The
// entry at distance 0 is the chunk itself. The length of an entry minus one is
// the direct radius of the stage.
var directDependencies = [Count][]Stage{
	None:                nil,
	Empty:               nil,
	StructureStart:      {Empty},
	StructureReferences: {StructureStart, StructureStart},
	Biomes:              {StructureReferences},
	Noise:               {Biomes},
	Surface:             {Noise},
	Features:            {Surface, Surface},
	Lighting:            {Features, Features},
	Full:                {Lighting},
}

// writeRadius holds the radius of the neighbourhood whose data is moved into a
// generation worker when a stage runs. Structure references are collected
// from the neighbours' starts, features spill into neighbours and light
// propagates across chunk borders.
var writeRadius = [Count]int{
	StructureReferences: 1,
	Features:            1,
	Lighting:            1,
}

var (
	aroundFull = computeAroundFull()
	maxRadius  = computeMaxRadius()
)

func init() {
	if err := validate(); err != nil {
		panic(err)
	}
}

// DirectRadius returns the Chebyshev radius of neighbours inspected before s
// may run. Stages with radius 0 only depend on the chunk itself.
func DirectRadius(s Stage) int {
	if !s.Valid() || len(directDependencies[s]) == 0 {
		return 0
	}
	return len(directDependencies[s]) - 1
}

// DirectDependency returns the minimum stage a neighbour at the distance
// passed must have reached before s may run. None is returned for distances
// outside of the direct radius of s.
func DirectDependency(s Stage, distance int) Stage {
	if !s.Valid() || distance < 0 || distance >= len(directDependencies[s]) {
		return None
	}
	return directDependencies[s][distance]
}

// WriteRadius returns the radius of the neighbourhood consumed and mutated
// when s runs.
func WriteRadius(s Stage) int {
	if !s.Valid() {
		return 0
	}
	return writeRadius[s]
}

// MaxRadius returns the largest direct or write radius of any stage.
func MaxRadius() int {
	return maxRadius
}

// AroundFull returns the stage a chunk at the distance passed from a Full
// chunk must reach for that chunk to be generated. None is returned beyond
// the reach of the dependency tables.
func AroundFull(distance int) Stage {
	if distance < 0 {
		distance = 0
	}
	if distance >= len(aroundFull) {
		return None
	}
	return aroundFull[distance]
}

// FullReach is the number of rings, including the centre, that AroundFull
// returns a stage other than None for.
func FullReach() int {
	return len(aroundFull)
}

// FastDependency returns the highest stage that is fast-tracked at the
// distance passed from a high priority hint, or None if the distance lies
// outside the hint.
func FastDependency(distance int) Stage {
	return AroundFull(distance)
}

// FastRadius returns the radius around a high priority hint that is fast
// tracked.
func FastRadius() int {
	return len(aroundFull) - 1
}

// computeAroundFull walks the dependency tables outwards from a Full chunk:
// every stage a ring requires, together with the stages below it, imposes its
// own requirements on the rings further out.
func computeAroundFull() []Stage {
	req := []Stage{Full}
	for d := 0; d < len(req); d++ {
		for s := req[d]; s > None; s-- {
			for k, dep := range directDependencies[s] {
				for d+k >= len(req) {
					req = append(req, None)
				}
				req[d+k] = Max(req[d+k], dep)
			}
		}
	}
	return req
}

func computeMaxRadius() int {
	r := 0
	for s := Stage(0); int(s) < Count; s++ {
		r = max(r, DirectRadius(s), WriteRadius(s))
	}
	return r
}

func validate() error {
	for s := StructureStart; s.Valid(); s++ {
		deps := directDependencies[s]
		if len(deps) == 0 {
			return fmt.Errorf("stage: %v has no dependency on itself", s)
		}
		if deps[0] != s-1 {
			return fmt.Errorf("stage: %v must depend on %v at distance 0, got %v", s, s-1, deps[0])
		}
		for d, dep := range deps {
			if dep >= s {
				return fmt.Errorf("stage: %v depends on %v at distance %d", s, dep, d)
			}
			if d > 0 && dep > deps[d-1] {
				return fmt.Errorf("stage: %v dependencies grow with distance at %d", s, d)
			}
		}
		if writeRadius[s] > 0 && DirectRadius(s) < writeRadius[s] {
			return fmt.Errorf("stage: %v writes radius %d beyond its direct radius %d", s, writeRadius[s], DirectRadius(s))
		}
	}
	if writeRadius[None] != 0 || writeRadius[Empty] != 0 {
		return fmt.Errorf("stage: disk stages may not write neighbours")
	}
	return nil
}
