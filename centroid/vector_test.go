package centroid

import (
	"math"
	"testing"

	"github.com/poiesic/leveler/core"
	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input core.Vector
	}{
		{"simple", core.Vector{3, 4}},
		{"already unit", core.Vector{1, 0, 0}},
		{"negative components", core.Vector{-1, -2, 2}},
		{"tiny", core.Vector{1e-6, 2e-6}},
		{"large", core.Vector{1e6, -1e6, 5e5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.input.Clone()
			got := Normalize(tt.input)

			assert.InDelta(t, 1.0, float64(Magnitude(got)), 1e-5)
			assert.Equal(t, original, tt.input, "input must not be modified")
		})
	}
}

func TestNormalize_ZeroVector(t *testing.T) {
	got := Normalize(core.Vector{0, 0, 0})
	assert.Equal(t, core.Vector{0, 0, 0}, got)

	assert.Empty(t, Normalize(nil))
}

func TestDot(t *testing.T) {
	assert.InDelta(t, 0.0, Dot(core.Vector{1, 0}, core.Vector{0, 1}), 1e-9)
	assert.InDelta(t, 11.0, Dot(core.Vector{1, 2}, core.Vector{3, 4}), 1e-9)
	assert.InDelta(t, 1.0, Dot(core.Vector{1, 2, 3}, core.Vector{1}), 1e-9)
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity(core.Vector{2, 0}, core.Vector{5, 0}), 1e-6)
	assert.InDelta(t, -1.0, Similarity(core.Vector{2, 0}, core.Vector{-1, 0}), 1e-6)
	assert.Equal(t, 0.0, Similarity(core.Vector{0, 0}, core.Vector{1, 0}))
}

func TestStep(t *testing.T) {
	from := core.Vector{1, 0}
	toward := core.Vector{0, 1}

	closer := step(from, toward, 0.5)
	assert.InDelta(t, math.Sqrt2/2, float64(closer[0]), 1e-5)
	assert.InDelta(t, math.Sqrt2/2, float64(closer[1]), 1e-5)

	away := step(from, toward, -0.5)
	assert.Greater(t, float64(away[0]), 0.0)
	assert.Less(t, float64(away[1]), 0.0)
	assert.InDelta(t, 1.0, float64(Magnitude(away)), 1e-5)
}
