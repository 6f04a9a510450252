package trainer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/racer/config"
	"github.com/pthm-cable/racer/telemetry"
)

const smallRun = `
env:
  max_steps: 30
policy:
  hidden: 4
  norm_warmup: 10
es:
  population: 4
  generations: %GENS%
  workers: 2
  checkpoint_every: 2
cmaes:
  max_evals: 12
telemetry:
  plot_every: 2
  perf_window: 3
`

func loadSmall(t *testing.T, generations string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := strings.ReplaceAll(smallRun, "%GENS%", generations)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Count(string(data), "\n")
}

func TestRunWritesArtifacts(t *testing.T) {
	cfg := loadSmall(t, "3")
	tr, err := New(cfg, Options{OutputDir: t.TempDir()})
	require.NoError(t, err)
	defer tr.Close()

	var seen []int
	tr.SetStatsCallback(func(s telemetry.GenerationStats) {
		seen = append(seen, s.Generation)
	})

	res, err := tr.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, tr.Close())

	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Equal(t, 3, res.Generations)
	require.NotNil(t, res.Best)
	assert.Equal(t, cfg.Derived.NumParams, res.Best.NumParams())
	assert.NotEmpty(t, res.BestEpisode.Trajectory)

	dir := tr.OutputDir()
	require.NotEmpty(t, dir)
	assert.Equal(t, dir, res.OutputDir)
	for _, name := range []string{
		telemetry.FileConfig,
		telemetry.FileTrajectory,
		telemetry.FileHallOfFame,
		telemetry.FilePerf,
		"trajectory.png",
		"learning_curve.png",
		filepath.Join(telemetry.CheckpointDir, "best.json"),
		filepath.Join(telemetry.CheckpointDir, "latest.json"),
		filepath.Join(telemetry.CheckpointDir, "snapshot_2.json"),
	} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	// Header plus one row per generation.
	assert.Equal(t, 4, countLines(t, filepath.Join(dir, telemetry.FileGenerations)))
}

func TestRunWithoutOutput(t *testing.T) {
	cfg := loadSmall(t, "2")
	tr, err := New(cfg, Options{})
	require.NoError(t, err)

	res, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tr.OutputDir())
	assert.Equal(t, 2, res.Generations)
	assert.NotNil(t, res.Best)
	assert.NoError(t, tr.Close())
}

func TestRunCancelled(t *testing.T) {
	cfg := loadSmall(t, "3")
	tr, err := New(cfg, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := tr.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Generations)
	assert.Nil(t, res.Best)
}

func TestResumeContinuesFromSnapshot(t *testing.T) {
	first, err := New(loadSmall(t, "2"), Options{OutputDir: t.TempDir()})
	require.NoError(t, err)
	_, err = first.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, first.Close())

	snapshot := filepath.Join(first.OutputDir(), telemetry.CheckpointDir, "snapshot_2.json")
	require.FileExists(t, snapshot)
	snap, err := telemetry.LoadSnapshot(snapshot)
	require.NoError(t, err)

	second, err := New(loadSmall(t, "4"), Options{Resume: snapshot})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Optimizer().Generations())
	assert.Equal(t, snap.Center, second.Optimizer().Center())

	var seen []int
	second.SetStatsCallback(func(s telemetry.GenerationStats) {
		seen = append(seen, s.Generation)
	})
	res, err := second.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, seen)
	assert.Equal(t, 4, res.Generations)
	assert.GreaterOrEqual(t, res.BestReturn, snap.BestReturn)
}

func TestResumeRejectsWrongSize(t *testing.T) {
	cfg := loadSmall(t, "2")
	snap := &telemetry.Snapshot{
		Version:    telemetry.SnapshotVersion,
		Seed:       cfg.ES.Seed,
		Generation: 1,
		Center:     []float64{1, 2, 3},
	}
	path, err := telemetry.SaveSnapshot(snap, t.TempDir())
	require.NoError(t, err)

	_, err = New(cfg, Options{Resume: path})
	assert.Error(t, err)
}

func TestRunCMAES(t *testing.T) {
	cfg := loadSmall(t, "1")
	tr, err := New(cfg, Options{OutputDir: t.TempDir()})
	require.NoError(t, err)
	defer tr.Close()

	res, err := tr.RunCMAES(context.Background())
	require.NoError(t, err)
	require.NoError(t, tr.Close())

	assert.Positive(t, res.Evals)
	require.NotNil(t, res.Best)

	dir := tr.OutputDir()
	assert.Equal(t, res.Evals+1, countLines(t, filepath.Join(dir, telemetry.FileCMAES)))
	assert.FileExists(t, filepath.Join(dir, telemetry.CheckpointDir, "best.json"))
	assert.NoFileExists(t, filepath.Join(dir, telemetry.FileGenerations))
}
