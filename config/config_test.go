package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/racer/components"
	"github.com/pthm-cable/racer/env"
	"github.com/pthm-cable/racer/es"
	"github.com/pthm-cable/racer/eval"
	"github.com/pthm-cable/racer/neural"
	"github.com/pthm-cable/racer/physics"
	"github.com/pthm-cable/racer/reward"
	"github.com/pthm-cable/racer/track"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// The embedded defaults mirror the package-level defaults.
func TestDefaultsMatchPackages(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	// Evaluation resets statistics per episode, as training rollouts do.
	evalWant := eval.DefaultExperimentConfig()
	evalWant.ResetNormalizer = true

	checks := []struct {
		name      string
		got, want any
	}{
		{"policy", cfg.Policy, neural.DefaultConfig()},
		{"es", cfg.ES, es.DefaultConfig()},
		{"cmaes", cfg.CMAES, es.DefaultCMAESConfig()},
		{"env", cfg.Env, env.DefaultConfig()},
		{"reward", cfg.Reward.Params, reward.DefaultParams()},
		{"random track", cfg.Track.Random, track.DefaultRandomParams()},
		{"vehicle", cfg.Derived.Vehicle, physics.DefaultParams(1)},
		{"eval", cfg.Eval.Base, evalWant},
		{"noise levels", cfg.Eval.NoiseLevels, eval.DefaultNoiseLevels},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			if diff := cmp.Diff(c.want, c.got); diff != "" {
				t.Errorf("defaults mismatch (-want +got):\n%s", diff)
			}
		})
	}

	assert.Equal(t, track.LayoutOval, cfg.Track.Layout)
	assert.Equal(t, track.DefaultWidth, cfg.Track.Width)
	assert.Equal(t, reward.NameControl, cfg.Reward.Strategy)
	assert.Equal(t, components.NumObs, cfg.Derived.Architecture.Inputs)
	assert.Equal(t, cfg.Derived.Architecture.ParamCount(), cfg.Derived.NumParams)
}

func TestLoadOverlay(t *testing.T) {
	path := writeFile(t, `
es:
  population: 8
  sigma: 0.05
reward:
  strategy: progress
  control:
    lateral_weight: 3
vehicle:
  friction_scale: 0.5
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.ES.Population)
	assert.Equal(t, 0.05, cfg.ES.Sigma)
	// Untouched keys keep their defaults.
	assert.Equal(t, 0.01, cfg.ES.Alpha)
	assert.Equal(t, reward.NameProgress, cfg.Reward.Strategy)
	assert.Equal(t, 3.0, cfg.Reward.Params.Control.LateralWeight)
	assert.Equal(t, 1.0, cfg.Reward.Params.Control.HeadingWeight)
	assert.Equal(t, 0.5, cfg.Derived.Vehicle.Friction)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		invalid bool
	}{
		{"bad yaml", "es: [", false},
		{"zero population", "es:\n  population: 0\n", true},
		{"negative sigma", "es:\n  sigma: -1\n", true},
		{"zero width", "track:\n  width: 0\n", true},
		{"unknown reward", "reward:\n  strategy: nope\n", true},
		{"zero hidden", "policy:\n  hidden: 0\n", true},
		{"negative delay", "env:\n  reward_delay: -1\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content))
			require.Error(t, err)
			if tt.invalid {
				assert.ErrorIs(t, err, ErrInvalid)
			}
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg, err := Load(writeFile(t, "es:\n  population: 12\ntrack:\n  layout: figure8\n"))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	again, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, again); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestInitAndCfg(t *testing.T) {
	global = nil
	assert.Panics(t, func() { Cfg() })

	require.NoError(t, Init(""))
	assert.Equal(t, 50, Cfg().ES.Population)

	assert.Panics(t, func() { MustInit(writeFile(t, "es: [")) })
}

func TestBuilders(t *testing.T) {
	cfg, err := Load(writeFile(t, "env:\n  max_steps: 20\npolicy:\n  hidden: 4\n"))
	require.NoError(t, err)

	trk, err := cfg.NewTrack()
	require.NoError(t, err)
	assert.Equal(t, cfg.Track.Width, trk.Width())

	factory, err := cfg.EnvFactory(trk)
	require.NoError(t, err)
	e1, err := factory()
	require.NoError(t, err)
	e2, err := factory()
	require.NoError(t, err)
	assert.NotSame(t, e1, e2)

	params, err := cfg.InitialParams(1)
	require.NoError(t, err)
	assert.Len(t, params, cfg.Derived.NumParams)

	obj := cfg.Objective(factory, 2)
	w, err := obj.NewWorker()
	require.NoError(t, err)
	_, err = w.Evaluate(es.Candidate{Center: params}, 0)
	assert.NoError(t, err)
}
