// Package stage holds the ordered generation stages a chunk moves through and
// the data tables describing which neighbours each stage depends on.
//
// The tables are deliberately plain data: DirectRadius, DirectDependency and
// WriteRadius are indexed lookups so that the dependency shape of the pipeline
// can be read (and tested) without running a scheduler.
package stage

import "fmt"

// Stage is a single step of a chunk's generation pipeline. Stages are ordered:
// comparing two stages compares how far a chunk has progressed.
type Stage uint8

const (
	// None means no data exists for the chunk at all.
	None Stage = iota
	// Empty is reached through disk I/O: the chunk was either loaded or
	// created blank.
	Empty
	StructureStart
	StructureReferences
	Biomes
	Noise
	Surface
	Features
	Lighting
	// Full chunks are complete and may be published to the rest of the server.
	Full
)

// Count is the number of stages, including None.
const Count = int(Full) + 1

var names = [Count]string{
	None:                "none",
	Empty:               "empty",
	StructureStart:      "structure_start",
	StructureReferences: "structure_references",
	Biomes:              "biomes",
	Noise:               "noise",
	Surface:             "surface",
	Features:            "features",
	Lighting:            "lighting",
	Full:                "full",
}

// String returns the snake case name of the stage.
func (s Stage) String() string {
	if int(s) >= Count {
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
	return names[s]
}

// Parse returns the stage with the name passed, as returned by Stage.String.
func Parse(name string) (Stage, bool) {
	for i, n := range names {
		if n == name {
			return Stage(i), true
		}
	}
	return None, false
}

// Ordinal returns the numeric position of the stage in the pipeline.
func (s Stage) Ordinal() int {
	return int(s)
}

// Valid reports if s is one of the declared stages.
func (s Stage) Valid() bool {
	return int(s) < Count
}

// Prev returns the stage preceding s, or None if s is None.
func (s Stage) Prev() Stage {
	if s == None {
		return None
	}
	return s - 1
}

// Generated reports if the stage is produced by the generation worker pool as
// opposed to disk I/O.
func (s Stage) Generated() bool {
	return s > Empty && s.Valid()
}

// All returns every stage from lo up to and including hi, in increasing order.
func All(lo, hi Stage) []Stage {
	if lo > hi {
		return nil
	}
	out := make([]Stage, 0, int(hi-lo)+1)
	for s := lo; s <= hi; s++ {
		out = append(out, s)
		if s == Full {
			break
		}
	}
	return out
}

// Max returns the larger of two stages.
func Max(a, b Stage) Stage {
	if a > b {
		return a
	}
	return b
}
