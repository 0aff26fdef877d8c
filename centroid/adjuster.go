package centroid

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/poiesic/leveler/core"
)

const (
	// DefaultLearningRate is the attraction and unlearning step size.
	DefaultLearningRate = 0.02
	// DefaultRepulsionRate is the step size used to push crowded centroids apart.
	DefaultRepulsionRate = 0.01
	// DefaultSimilarityThreshold is the similarity above which neighbors are repelled.
	DefaultSimilarityThreshold = 0.95
)

// Config holds the adjustment parameters.
type Config struct {
	// LearningRate is the fraction of the distance a centroid moves toward
	// (or away from) a feedback vector.
	LearningRate float64

	// RepulsionRate is the fraction of the separation added to a neighbor
	// that crowds the attracted centroid.
	RepulsionRate float64

	// SimilarityThreshold is the cosine similarity above which a neighbor is repelled.
	SimilarityThreshold float64
}

// DefaultConfig returns the standard adjustment parameters.
func DefaultConfig() Config {
	return Config{
		LearningRate:        DefaultLearningRate,
		RepulsionRate:       DefaultRepulsionRate,
		SimilarityThreshold: DefaultSimilarityThreshold,
	}
}

// Validate checks that both rates are in (0, 1) and the threshold is a cosine similarity.
func (c Config) Validate() error {
	if c.LearningRate <= 0 || c.LearningRate >= 1 {
		return fmt.Errorf("%w: learning rate %v must be in (0, 1)", ErrInvalidConfig, c.LearningRate)
	}
	if c.RepulsionRate <= 0 || c.RepulsionRate >= 1 {
		return fmt.Errorf("%w: repulsion rate %v must be in (0, 1)", ErrInvalidConfig, c.RepulsionRate)
	}
	if c.SimilarityThreshold < -1 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity threshold %v must be in [-1, 1]", ErrInvalidConfig, c.SimilarityThreshold)
	}
	return nil
}

// Repulsion records one neighbor pushed away from the attracted centroid.
type Repulsion struct {
	Level      core.Level
	Similarity float64 // similarity to the attracted centroid before the push
}

// Adjustment describes what one call to Adjust changed.
type Adjustment struct {
	Attracted bool
	Unlearned bool
	Repelled  []Repulsion
}

// Changed reports whether any centroid moved.
func (a *Adjustment) Changed() bool {
	return a.Attracted || a.Unlearned || len(a.Repelled) > 0
}

// Adjuster computes centroid updates from feedback.
// It never mutates the centroid set it is given.
type Adjuster struct {
	cfg    Config
	logger *slog.Logger

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// AdjusterOption configures an Adjuster.
type AdjusterOption func(*Adjuster)

// WithAdjusterLogger sets a custom logger.
// Default is slog.Default().
func WithAdjusterLogger(logger *slog.Logger) AdjusterOption {
	return func(a *Adjuster) {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger
	}
}

// WithRandSource sets the source of the random push direction used when a
// neighbor coincides with the attracted centroid.
func WithRandSource(src rand.Source) AdjusterOption {
	return func(a *Adjuster) {
		if src != nil {
			a.rng = rand.New(src)
		}
	}
}

// NewAdjuster creates an adjuster with the given parameters.
func NewAdjuster(cfg Config, opts ...AdjusterOption) (*Adjuster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Adjuster{
		cfg:    cfg,
		logger: slog.Default(),
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Config returns the adjustment parameters.
func (a *Adjuster) Config() Config {
	return a.cfg
}

// Adjust returns a new centroid set moved in response to a reviewer
// correcting a vector from observed to corrected.
//
// The corrected centroid is attracted toward the vector. If observed differs
// from corrected its centroid is pushed away from the vector. Finally every
// other centroid more similar to the attracted one than the threshold is
// repelled from it. Levels missing from the set are skipped.
func (a *Adjuster) Adjust(centroids core.CentroidSet, vector core.Vector, observed, corrected core.Level) (core.CentroidSet, *Adjustment, error) {
	if len(centroids) == 0 {
		return nil, nil, ErrNoCentroids
	}
	if err := core.ValidateVector(vector, centroids.Dimension()); err != nil {
		return nil, nil, err
	}

	updated := centroids.Clone()
	adj := &Adjustment{}
	unit := Normalize(vector)

	target, ok := updated[corrected]
	if ok {
		updated[corrected] = step(target, unit, a.cfg.LearningRate)
		adj.Attracted = true
	}

	if observed != corrected {
		if origin, ok := updated[observed]; ok {
			updated[observed] = step(origin, unit, -a.cfg.LearningRate)
			adj.Unlearned = true
		}
	}

	if adj.Attracted {
		adj.Repelled = a.repel(updated, corrected)
	}
	return updated, adj, nil
}

// repel pushes every neighbor that crowds the target level away from it, in place.
func (a *Adjuster) repel(centroids core.CentroidSet, targetLevel core.Level) []Repulsion {
	target := centroids[targetLevel]
	var repelled []Repulsion

	for _, level := range centroids.Levels() {
		if level == targetLevel {
			continue
		}
		neighbor := centroids[level]
		sim := Dot(target, neighbor)
		if sim <= a.cfg.SimilarityThreshold {
			continue
		}

		push := make(core.Vector, len(neighbor))
		for i := range neighbor {
			push[i] = neighbor[i] - target[i]
		}
		if Magnitude(push) == 0 {
			push = a.randomDirection(len(neighbor))
		}

		moved := make(core.Vector, len(neighbor))
		for i := range neighbor {
			moved[i] = float32(float64(neighbor[i]) + a.cfg.RepulsionRate*float64(push[i]))
		}
		centroids[level] = Normalize(moved)
		repelled = append(repelled, Repulsion{Level: level, Similarity: sim})

		a.logger.Info("centroid repelled",
			"target", targetLevel,
			"level", level,
			"similarity", sim)
	}
	return repelled
}

// randomDirection returns a vector with components uniform in [-0.5, 0.5).
func (a *Adjuster) randomDirection(dim int) core.Vector {
	a.mu.Lock()
	defer a.mu.Unlock()
	v := make(core.Vector, dim)
	for i := range v {
		v[i] = float32(a.rng.Float64() - 0.5)
	}
	return v
}
