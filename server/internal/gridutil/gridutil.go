// Package gridutil implements small helpers for working with square
// neighbourhoods on the chunk grid.
package gridutil

import "golang.org/x/exp/constraints"

// Abs returns the absolute value of v.
func Abs[T constraints.Signed](v T) T {
	if v < 0 {
		return -v
	}
	return v
}

// Chebyshev returns the Chebyshev (chessboard) distance of the offset dx, dz.
func Chebyshev[T constraints.Signed](dx, dz T) T {
	return max(Abs(dx), Abs(dz))
}

// Side returns the width of a square with the radius passed: 2*radius+1.
func Side[T constraints.Integer](radius T) T {
	return 2*radius + 1
}

// Index returns the row-major (x-major, z-minor) index of the offset dx, dz in
// a square of the radius passed.
func Index[T constraints.Signed](dx, dz, radius T) T {
	return (dx+radius)*Side(radius) + (dz + radius)
}

// Square calls f for every offset in a square of the radius passed, in
// row-major order: x outer, z inner. Iteration stops if f returns false.
func Square[T constraints.Signed](radius T, f func(dx, dz T) bool) {
	for dx := -radius; dx <= radius; dx++ {
		for dz := -radius; dz <= radius; dz++ {
			if !f(dx, dz) {
				return
			}
		}
	}
}
