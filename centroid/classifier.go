package centroid

import "github.com/poiesic/leveler/core"

// minSimilarity is below any reachable cosine similarity.
const minSimilarity = -2.0

// Classifier assigns levels by nearest cosine similarity.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	defaultLevel core.Level
}

// NewClassifier creates a classifier that falls back to defaultLevel
// when no centroid matches.
func NewClassifier(defaultLevel core.Level) *Classifier {
	return &Classifier{defaultLevel: defaultLevel}
}

// DefaultLevel returns the fallback level.
func (c *Classifier) DefaultLevel() core.Level {
	return c.defaultLevel
}

// Classify returns the level whose centroid is most similar to vector.
// The second result is false when the set is empty or nothing beat the
// sentinel similarity, in which case the default level is returned.
// Levels are visited in ascending order so ties go to the lowest level.
func (c *Classifier) Classify(vector core.Vector, centroids core.CentroidSet) (core.Level, bool) {
	unit := Normalize(vector)

	best := c.defaultLevel
	bestSim := minSimilarity
	matched := false
	for _, level := range centroids.Levels() {
		sim := Dot(unit, centroids[level])
		if sim > bestSim {
			bestSim = sim
			best = level
			matched = true
		}
	}
	return best, matched
}
