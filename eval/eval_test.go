package eval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/racer/components"
	"github.com/pthm-cable/racer/env"
	"github.com/pthm-cable/racer/physics"
	"github.com/pthm-cable/racer/reward"
	"github.com/pthm-cable/racer/track"
)

var cruise = AgentFunc(func(components.Observation) components.Action {
	return components.Action{Throttle: 0.5}
})

func ovalFactory(t *testing.T, maxSteps int) EnvFactory {
	t.Helper()
	trk, err := track.New(track.LayoutOval, nil)
	require.NoError(t, err)
	cfg := env.DefaultConfig()
	cfg.MaxSteps = maxSteps
	return func() (env.Environment, error) {
		return env.New(trk, physics.DefaultParams(1), reward.NewControl(reward.DefaultControlParams()), cfg), nil
	}
}

func TestRunEpisodeRecordsTrajectory(t *testing.T) {
	e, err := ovalFactory(t, 80)()
	require.NoError(t, err)

	ep, err := RunEpisode(e, cruise, EpisodeOptions{Record: true})
	require.NoError(t, err)
	assert.Equal(t, 80, ep.Steps)
	assert.True(t, ep.Truncated)
	require.Len(t, ep.Trajectory, 80)
	assert.Equal(t, 1, ep.Trajectory[0].Step)
	assert.Equal(t, 0.5, ep.Trajectory[0].Throttle)
	assert.Zero(t, ep.OffTrackSteps)

	var sum float64
	for _, p := range ep.Trajectory {
		sum += p.Reward
	}
	assert.InDelta(t, ep.Return, sum, 1e-9)
	assert.Greater(t, ep.Trajectory[79].X, ep.Trajectory[0].X)
}

func TestRunEpisodeMaxSteps(t *testing.T) {
	e, err := ovalFactory(t, 1000)()
	require.NoError(t, err)
	ep, err := RunEpisode(e, cruise, EpisodeOptions{MaxSteps: 25})
	require.NoError(t, err)
	assert.Equal(t, 25, ep.Steps)
	assert.False(t, ep.Truncated)
	assert.Nil(t, ep.Trajectory)
}

func TestRunEpisodeBadStepConfig(t *testing.T) {
	e, err := ovalFactory(t, 10)()
	require.NoError(t, err)
	_, err = RunEpisode(e, cruise, EpisodeOptions{StepConfig: &env.StepConfig{Mask: []int{9}}})
	assert.ErrorIs(t, err, env.ErrBadStepConfig)
}

func TestRunnerSuccessRate(t *testing.T) {
	r := NewRunner(ovalFactory(t, 1000))

	cfg := DefaultExperimentConfig()
	cfg.Episodes = 4
	cfg.MaxSteps = 60
	res, err := r.Run(context.Background(), cruise, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.SuccessRate)
	assert.Equal(t, 60.0, res.MeanLength)
	assert.Len(t, res.Returns, 4)
	// Deterministic agent and environment give identical episodes.
	assert.InDelta(t, 0, res.StdReturn, 1e-9)

	cfg.MaxSteps = 30
	res, err = r.Run(context.Background(), cruise, cfg)
	require.NoError(t, err)
	assert.Zero(t, res.SuccessRate)
}

func TestRunnerRejectsNoEpisodes(t *testing.T) {
	r := NewRunner(ovalFactory(t, 10))
	cfg := DefaultExperimentConfig()
	cfg.Episodes = 0
	_, err := r.Run(context.Background(), cruise, cfg)
	assert.Error(t, err)
}

func TestRunnerCancelled(t *testing.T) {
	r := NewRunner(ovalFactory(t, 10))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, cruise, DefaultExperimentConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

type countingAgent struct {
	resets int
}

func (a *countingAgent) Predict(components.Observation) components.Action {
	return components.Action{Throttle: 0.4}
}

func (a *countingAgent) ResetNormalizer() { a.resets++ }

func TestRunnerResetsNormalizer(t *testing.T) {
	r := NewRunner(ovalFactory(t, 10))
	cfg := DefaultExperimentConfig()
	cfg.Episodes = 3

	agent := &countingAgent{}
	_, err := r.Run(context.Background(), agent, cfg)
	require.NoError(t, err)
	assert.Zero(t, agent.resets)

	cfg.ResetNormalizer = true
	_, err = r.Run(context.Background(), agent, cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, agent.resets)
}

func TestWrapOrder(t *testing.T) {
	base, err := ovalFactory(t, 10)()
	require.NoError(t, err)

	cfg := ExperimentConfig{ObsNoise: 0.1, RewardDelay: 2, Mask: []int{0}}
	e := cfg.Wrap(base)
	fixed, ok := e.(*env.FixedConfig)
	require.True(t, ok)
	delay, ok := fixed.Env.(*env.DelayWrapper)
	require.True(t, ok)
	_, ok = delay.Env.(*env.NoiseWrapper)
	assert.True(t, ok)

	assert.Same(t, base, ExperimentConfig{}.Wrap(base))
}

func TestNoiseSweep(t *testing.T) {
	r := NewRunner(ovalFactory(t, 40))
	cfg := DefaultExperimentConfig()
	cfg.Episodes = 2
	cfg.Name = "cruise"

	results, err := r.NoiseSweep(context.Background(), cruise, cfg, DefaultNoiseLevels)
	require.NoError(t, err)
	require.Len(t, results, len(DefaultNoiseLevels))
	for i, res := range results {
		assert.Equal(t, DefaultNoiseLevels[i], res.Config.ObsNoise)
	}
	assert.Equal(t, "cruise_noise_0.50", results[3].Config.Name)
}
