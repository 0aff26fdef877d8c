package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/leveler"
	"github.com/poiesic/leveler/config"
	"github.com/poiesic/leveler/core"
	"github.com/poiesic/leveler/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func findFlag[T cli.Flag](flags []cli.Flag, name string) T {
	var zero T
	for _, flag := range flags {
		if f, ok := flag.(T); ok && flag.Names()[0] == name {
			return f
		}
	}
	return zero
}

func command(app *cli.App, name string) *cli.Command {
	for _, cmd := range app.Commands {
		if cmd.Name == name {
			return cmd
		}
	}
	return nil
}

func TestGlobalFlags(t *testing.T) {
	app := newApp()

	envs := map[string]string{
		"redis-host":      "REDIS_HOST",
		"redis-password":  "REDIS_PASSWORD",
		"qdrant-host":     "QDRANT_HOST",
		"database-url":    "DATABASE_URL",
		"inference-queue": "REDIS_QUEUE_NAME",
		"feedback-queue":  "REDIS_FEEDBACK_QUEUE_NAME",
	}
	for name, env := range envs {
		t.Run(name+" reads "+env, func(t *testing.T) {
			flag := findFlag[*cli.StringFlag](app.Flags, name)
			require.NotNil(t, flag)
			assert.Contains(t, flag.EnvVars, env)
		})
	}

	t.Run("queues default to the standard names", func(t *testing.T) {
		assert.Equal(t, "queue:inference", findFlag[*cli.StringFlag](app.Flags, "inference-queue").Value)
		assert.Equal(t, "queue:feedback", findFlag[*cli.StringFlag](app.Flags, "feedback-queue").Value)
	})

	t.Run("dimension has default value of 1152", func(t *testing.T) {
		flag := findFlag[*cli.IntFlag](app.Flags, "dimension")
		require.NotNil(t, flag)
		assert.Equal(t, core.DefaultDimension, flag.Value)
	})

	t.Run("redis port has default value of 6379", func(t *testing.T) {
		flag := findFlag[*cli.IntFlag](app.Flags, "redis-port")
		require.NotNil(t, flag)
		assert.Equal(t, 6379, flag.Value)
	})

	t.Run("vector is required by classify", func(t *testing.T) {
		flag := findFlag[*cli.StringFlag](command(app, "classify").Flags, "vector")
		require.NotNil(t, flag)
		assert.True(t, flag.Required)
	})
}

func TestSetupLogger(t *testing.T) {
	app := newApp()
	err := app.Run([]string{"leveler", "--log-level", "verbose", "centroids"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestConfigValidation(t *testing.T) {
	app := newApp()
	err := app.Run([]string{"leveler", "--db", t.TempDir(), "--dimension", "0", "centroids"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoadCentroids(t *testing.T) {
	dir := t.TempDir()
	write := func(name, contents string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
		return path
	}

	t.Run("valid file", func(t *testing.T) {
		cs, err := loadCentroids(write("ok.json", `{"0": [1, 0], "3": [0, 2]}`))
		require.NoError(t, err)
		assert.Equal(t, core.CentroidSet{0: {1, 0}, 3: {0, 2}}, cs)
	})

	t.Run("empty object", func(t *testing.T) {
		_, err := loadCentroids(write("empty.json", `{}`))
		assert.ErrorIs(t, err, core.ErrEmptyCentroidSet)
	})

	t.Run("non numeric level", func(t *testing.T) {
		_, err := loadCentroids(write("bad.json", `{"high": [1, 0]}`))
		assert.ErrorIs(t, err, storage.ErrSerializationFailed)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadCentroids(filepath.Join(dir, "missing.json"))
		assert.Error(t, err)
	})
}

func TestParseVector(t *testing.T) {
	v, err := parseVector("[0.5, -1, 2]")
	require.NoError(t, err)
	assert.Equal(t, core.Vector{0.5, -1, 2}, v)

	_, err = parseVector("[]")
	assert.ErrorIs(t, err, core.ErrInvalidVector)

	_, err = parseVector("0.5, 1")
	assert.Error(t, err)
}

func TestWriteCentroidReport(t *testing.T) {
	var buf bytes.Buffer
	writeCentroidReport(&buf, core.CentroidSet{0: {1, 0}, 1: {0, 1}})

	out := buf.String()
	assert.Contains(t, out, "Levels: 2, dimension: 2")
	assert.Contains(t, out, "lv0")
	assert.Contains(t, out, "lv1")
	assert.Contains(t, out, " 1.0000")
	assert.Contains(t, out, " 0.0000")
}

func TestLocalCommands(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "db")
	file := filepath.Join(dir, "centroids.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"0": [3, 0], "1": [0, 1]}`), 0644))

	run := func(args ...string) error {
		base := []string{"leveler", "--log-level", "error", "--db", db, "--dimension", "2"}
		return newApp().Run(append(base, args...))
	}

	require.NoError(t, run("seed", "--file", file))
	require.NoError(t, run("push-inference", "--job-id", "17", "--vector", "[0.1, 0.9]"))
	require.NoError(t, run("push-feedback", "--record-id", "17", "--level", "0"))
	require.NoError(t, run("sweep"))
	require.NoError(t, run("centroids"))
	require.Error(t, run("push-inference", "--job-id", "18", "--vector", "[1, 2, 3]"))
	require.Error(t, run("push-feedback", "--level", "0"))

	engine, err := leveler.OpenLocal(db, config.NewConfig(config.WithDimension(2)))
	require.NoError(t, err)
	defer engine.Close()

	ctx := context.Background()
	centroids, err := engine.Manager().Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.CentroidSet{0: {1, 0}, 1: {0, 1}}, centroids)

	msg, err := engine.JobQueue().Pop(ctx, "queue:inference", 100*time.Millisecond)
	require.NoError(t, err)
	job, err := storage.DecodeInferenceJob(msg)
	require.NoError(t, err)
	assert.Equal(t, "17", job.JobID)
	assert.Equal(t, core.Vector{0.1, 0.9}, job.Vector)

	msg, err = engine.JobQueue().Pop(ctx, "queue:feedback", 100*time.Millisecond)
	require.NoError(t, err)
	feedback, err := storage.DecodeFeedbackJob(msg)
	require.NoError(t, err)
	assert.Equal(t, core.ID(17), feedback.RecordID)
	assert.Equal(t, core.Level(0), feedback.CorrectLevel)

	msg, err = engine.JobQueue().Pop(ctx, "queue:inference", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, msg, "invalid job was not pushed")
}
