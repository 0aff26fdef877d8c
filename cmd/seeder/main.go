// Command seeder fills a local store with synthetic centroids and queues
// inference jobs scattered around them, for exercising `leveler serve --db`.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"iter"
	"log/slog"
	"math/rand/v2"
	"os"
	"strconv"

	"github.com/poiesic/leveler"
	"github.com/poiesic/leveler/config"
	"github.com/poiesic/leveler/core"
)

var (
	dbPath     = flag.String("db", "./leveler_db", "BadgerDB directory")
	levelCount = flag.Int("levels", 5, "number of synthetic levels")
	dimension  = flag.Int("dim", 32, "embedding width")
	jobCount   = flag.Int("jobs", 200, "number of synthetic inference jobs")
	noise      = flag.Float64("noise", 0.3, "spread of job vectors around their centroid")
	seed       = flag.Uint64("seed", 42, "random seed")
	vectorFile = flag.String("src", "", "file of JSON vectors, one per line, pushed instead of synthetic jobs")
	firstID    = flag.Uint64("first-id", 1, "job id of the first pushed job")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
}

// syntheticCentroids returns one random direction per level.
func syntheticCentroids(rng *rand.Rand, n, dim int) core.CentroidSet {
	cs := make(core.CentroidSet, n)
	for level := range n {
		v := make(core.Vector, dim)
		for i := range v {
			v[i] = float32(rng.NormFloat64())
		}
		cs[core.Level(level)] = v
	}
	return cs
}

// vectorsAround yields count vectors, each a random centroid plus gaussian noise.
func vectorsAround(rng *rand.Rand, centroids core.CentroidSet, count int, spread float64) iter.Seq[core.Vector] {
	levels := centroids.Levels()
	return func(yield func(core.Vector) bool) {
		for range count {
			base := centroids[levels[rng.IntN(len(levels))]]
			v := make(core.Vector, len(base))
			for i := range v {
				v[i] = base[i] + float32(rng.NormFloat64()*spread)
			}
			if !yield(v) {
				return
			}
		}
	}
}

// vectorsFromFile returns an iterator over the JSON vectors in a file.
// Lines that fail to parse are logged and skipped.
func vectorsFromFile(filename string) (iter.Seq[core.Vector], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	return func(yield func(core.Vector) bool) {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		line := 0
		for scanner.Scan() {
			line++
			var v core.Vector
			if err := json.Unmarshal(scanner.Bytes(), &v); err != nil {
				slog.Warn("skipping line", "line", line, "err", err)
				continue
			}
			if !yield(v) {
				return
			}
		}
	}, nil
}

// pushAll queues one completed inference job per vector with sequential job ids.
func pushAll(ctx context.Context, engine *leveler.Engine, source iter.Seq[core.Vector], first uint64) (int, error) {
	id := first
	pushed := 0
	for v := range source {
		job := &core.InferenceJob{
			JobID:  strconv.FormatUint(id, 10),
			Vector: v,
			Status: core.JobStatusCompleted,
		}
		if err := engine.PushInference(ctx, job); err != nil {
			return pushed, fmt.Errorf("job %s: %w", job.JobID, err)
		}
		id++
		pushed++
	}
	return pushed, nil
}

func main() {
	flag.Parse()

	cfg := config.NewConfig(config.WithDimension(*dimension))
	engine, err := leveler.OpenLocal(*dbPath, cfg)
	if err != nil {
		panic(err)
	}
	defer engine.Close()

	ctx := context.Background()
	rng := rand.New(rand.NewPCG(*seed, *seed))

	centroids := syntheticCentroids(rng, *levelCount, *dimension)
	if _, err := engine.Seed(ctx, centroids, true); err != nil {
		panic(err)
	}

	var source iter.Seq[core.Vector]
	if *vectorFile != "" {
		source, err = vectorsFromFile(*vectorFile)
		if err != nil {
			panic(err)
		}
	} else {
		source = vectorsAround(rng, centroids, *jobCount, *noise)
	}

	pushed, err := pushAll(ctx, engine, source, *firstID)
	if err != nil {
		panic(err)
	}
	slog.Info("seeded", "db", *dbPath, "levels", *levelCount, "dimension", *dimension, "jobs", pushed)
}
