// Package emath has the small amount of linear algebra the colour code
// needs: 3-vectors, 3x3 matrices, and clamping.
package emath

// Some functions that only operate on basic types, that are useful

func Clamp(f, min, max float64) float64 {
	if f < min {
		return min
	}
	if f > max {
		return max
	}
	return f
}
