package es

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// negSquaredNorm has its unique maximum at the origin.
func negSquaredNorm(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += v * v
	}
	return -s
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

func quadraticConfig(seed int64) Config {
	cfg := DefaultConfig()
	cfg.Population = 50
	cfg.Sigma = 0.1
	cfg.Alpha = 0.02
	cfg.Generations = 40
	cfg.Seed = seed
	cfg.Workers = 4
	cfg.EvalCenter = false
	return cfg
}

func TestOptimizerImprovesQuadratic(t *testing.T) {
	for _, seed := range []int64{1, 2, 3, 4, 5} {
		opt, err := New(quadraticConfig(seed), ObjectiveFunc(negSquaredNorm), ones(10))
		require.NoError(t, err)

		var first, last Generation
		err = opt.Run(context.Background(), func(g Generation) error {
			if g.Index == 1 {
				first = g
			}
			last = g
			return nil
		})
		require.NoError(t, err)

		assert.Greater(t, last.Mean, first.Mean, "seed %d", seed)
		assert.Less(t, -negSquaredNorm(opt.Center()), 10.0, "seed %d: center did not move toward the origin", seed)
		assert.Equal(t, 40, opt.Generations())
	}
}

func TestOptimizerDeterministicAcrossWorkers(t *testing.T) {
	run := func(workers int, antithetic bool) ([]float64, []float64) {
		cfg := quadraticConfig(7)
		cfg.Workers = workers
		cfg.Generations = 5
		cfg.Antithetic = antithetic
		cfg.Population = 11
		opt, err := New(cfg, ObjectiveFunc(negSquaredNorm), ones(6))
		require.NoError(t, err)

		var returns []float64
		require.NoError(t, opt.Run(context.Background(), func(g Generation) error {
			returns = append(returns, g.Returns...)
			return nil
		}))
		return opt.Center(), returns
	}

	for _, anti := range []bool{false, true} {
		c1, r1 := run(1, anti)
		c8, r8 := run(8, anti)
		if diff := cmp.Diff(c1, c8); diff != "" {
			t.Errorf("antithetic=%v: center depends on worker count:\n%s", anti, diff)
		}
		if diff := cmp.Diff(r1, r8); diff != "" {
			t.Errorf("antithetic=%v: returns depend on worker count:\n%s", anti, diff)
		}
	}
}

func TestOptimizerSkipsZeroVariance(t *testing.T) {
	flat := ObjectiveFunc(func([]float64) float64 { return 3 })
	cfg := quadraticConfig(1)
	cfg.Generations = 3
	init := []float64{0.5, -0.5, 2}
	opt, err := New(cfg, flat, init)
	require.NoError(t, err)

	require.NoError(t, opt.Run(context.Background(), func(g Generation) error {
		assert.True(t, g.Skipped)
		assert.Zero(t, g.StepNorm)
		assert.Equal(t, 3.0, g.Mean)
		return nil
	}))
	assert.Equal(t, init, opt.Center())
}

func TestAntitheticPairs(t *testing.T) {
	cfg := quadraticConfig(3)
	cfg.Population = 5
	opt, err := New(cfg, ObjectiveFunc(negSquaredNorm), ones(4))
	require.NoError(t, err)

	opt.sample()
	for j := range opt.noise[0] {
		assert.Equal(t, -opt.noise[0][j], opt.noise[1][j])
		assert.Equal(t, -opt.noise[2][j], opt.noise[3][j])
	}
	assert.Equal(t, opt.seeds[0], opt.seeds[1])
	assert.Equal(t, opt.seeds[2], opt.seeds[3])
	assert.NotEqual(t, opt.noise[0], opt.noise[2])
}

func TestEvalCenterTracksBest(t *testing.T) {
	cfg := quadraticConfig(2)
	cfg.EvalCenter = true
	cfg.Generations = 10
	opt, err := New(cfg, ObjectiveFunc(negSquaredNorm), ones(5))
	require.NoError(t, err)

	_, r := opt.Best()
	assert.True(t, math.IsInf(r, -1))

	bestSeen := math.Inf(-1)
	require.NoError(t, opt.Run(context.Background(), func(g Generation) error {
		require.False(t, math.IsNaN(g.CenterReturn))
		if g.CenterReturn > bestSeen {
			bestSeen = g.CenterReturn
			assert.True(t, g.Improved)
		}
		return nil
	}))

	best, ret := opt.Best()
	assert.Equal(t, bestSeen, ret)
	assert.InDelta(t, ret, negSquaredNorm(best), 1e-12)
}

func TestMemberBestWithoutCenterEval(t *testing.T) {
	cfg := quadraticConfig(9)
	cfg.Generations = 3
	opt, err := New(cfg, ObjectiveFunc(negSquaredNorm), ones(3))
	require.NoError(t, err)

	maxSeen := math.Inf(-1)
	require.NoError(t, opt.Run(context.Background(), func(g Generation) error {
		assert.True(t, math.IsNaN(g.CenterReturn))
		maxSeen = math.Max(maxSeen, g.Max)
		return nil
	}))
	best, ret := opt.Best()
	assert.Equal(t, maxSeen, ret)
	assert.InDelta(t, ret, negSquaredNorm(best), 1e-9)
}

func TestRunStopsOnCancel(t *testing.T) {
	opt, err := New(quadraticConfig(1), ObjectiveFunc(negSquaredNorm), ones(3))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	err = opt.Run(ctx, func(g Generation) error {
		if g.Index == 2 {
			cancel()
		}
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, opt.Generations())
}

func TestRunStopsOnCallbackError(t *testing.T) {
	opt, err := New(quadraticConfig(1), ObjectiveFunc(negSquaredNorm), ones(3))
	require.NoError(t, err)

	stop := errors.New("stop")
	err = opt.Run(context.Background(), func(Generation) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, opt.Generations())
}

type failingObjective struct{}

func (failingObjective) NewWorker() (Worker, error) { return failingWorker{}, nil }

type failingWorker struct{}

func (failingWorker) Evaluate(Candidate, int64) (float64, error) {
	return 0, errors.New("boom")
}

func TestWorkerErrorPropagates(t *testing.T) {
	opt, err := New(quadraticConfig(1), failingObjective{}, ones(3))
	require.NoError(t, err)
	_, err = opt.Step(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 0, opt.Generations())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"population", func(c *Config) { c.Population = 1 }},
		{"sigma zero", func(c *Config) { c.Sigma = 0 }},
		{"sigma nan", func(c *Config) { c.Sigma = math.NaN() }},
		{"alpha", func(c *Config) { c.Alpha = -1 }},
		{"generations", func(c *Config) { c.Generations = -1 }},
		{"workers", func(c *Config) { c.Workers = -2 }},
		{"checkpoint", func(c *Config) { c.CheckpointEvery = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrConfig)
		})
	}
	assert.NoError(t, DefaultConfig().Validate())

	_, err := New(DefaultConfig(), ObjectiveFunc(negSquaredNorm), nil)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestWorkerCountCappedByPopulation(t *testing.T) {
	cfg := quadraticConfig(1)
	cfg.Population = 3
	cfg.Workers = 16
	opt, err := New(cfg, ObjectiveFunc(negSquaredNorm), ones(2))
	require.NoError(t, err)
	assert.Equal(t, 3, opt.Workers())
}

func TestCandidateMaterialize(t *testing.T) {
	dst := make([]float64, 3)
	Candidate{Center: []float64{1, 2, 3}, Noise: []float64{1, 0, -1}, Sigma: 0.5}.Materialize(dst)
	assert.Equal(t, []float64{1.5, 2, 2.5}, dst)

	Candidate{Center: []float64{4, 5, 6}}.Materialize(dst)
	assert.Equal(t, []float64{4, 5, 6}, dst)
}

func TestSetCenter(t *testing.T) {
	opt, err := New(quadraticConfig(1), ObjectiveFunc(negSquaredNorm), ones(3))
	require.NoError(t, err)

	require.NoError(t, opt.SetCenter([]float64{0, 0, 0}))
	assert.Equal(t, []float64{0, 0, 0}, opt.Center())
	assert.ErrorIs(t, opt.SetCenter([]float64{1}), ErrConfig)
}

func TestRestoreContinuesCount(t *testing.T) {
	cfg := quadraticConfig(3)
	cfg.Generations = 5
	opt, err := New(cfg, ObjectiveFunc(negSquaredNorm), ones(4))
	require.NoError(t, err)

	best := []float64{0.5, 0.5, 0.5, 0.5}
	require.NoError(t, opt.Restore(3, ones(4), best, -1))
	gotBest, ret := opt.Best()
	assert.Equal(t, best, gotBest)
	assert.Equal(t, -1.0, ret)

	var indices []int
	require.NoError(t, opt.Run(context.Background(), func(g Generation) error {
		indices = append(indices, g.Index)
		return nil
	}))
	assert.Equal(t, []int{4, 5}, indices)

	assert.ErrorIs(t, opt.Restore(-1, ones(4), nil, 0), ErrConfig)
	assert.ErrorIs(t, opt.Restore(1, ones(4), []float64{1}, 0), ErrConfig)
	assert.ErrorIs(t, opt.Restore(1, ones(2), nil, 0), ErrConfig)
}
