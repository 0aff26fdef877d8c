package centroid

import (
	"github.com/poiesic/leveler/core"
	"github.com/viant/vec/search"
)

// Normalize returns a unit-length copy of v.
// The zero vector has no direction and is returned as a zero vector.
func Normalize(v core.Vector) core.Vector {
	result := make(core.Vector, len(v))
	magnitude := Magnitude(v)
	if magnitude == 0 {
		return result
	}
	for i, val := range v {
		result[i] = val / magnitude
	}
	return result
}

// Magnitude returns the L2 norm of v.
func Magnitude(v core.Vector) float32 {
	if len(v) == 0 {
		return 0
	}
	return search.Float32s(v).Magnitude()
}

// Dot returns the dot product of a and b over their common length.
// For unit vectors this is the cosine similarity.
func Dot(a, b core.Vector) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Similarity returns the cosine similarity of a and b without assuming unit length.
// Returns 0 if either vector is zero.
func Similarity(a, b core.Vector) float64 {
	ma, mb := Magnitude(a), Magnitude(b)
	if ma == 0 || mb == 0 {
		return 0
	}
	return Dot(a, b) / (float64(ma) * float64(mb))
}

// step returns from + rate*(toward-from), normalized.
// A negative rate moves away from toward.
func step(from, toward core.Vector, rate float64) core.Vector {
	out := make(core.Vector, len(from))
	for i := range from {
		out[i] = float32(float64(from[i]) + rate*(float64(toward[i])-float64(from[i])))
	}
	return Normalize(out)
}
