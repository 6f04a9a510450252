package config

import (
	"fmt"
	"math/rand"

	"github.com/pthm-cable/racer/env"
	"github.com/pthm-cable/racer/es"
	"github.com/pthm-cable/racer/eval"
	"github.com/pthm-cable/racer/neural"
	"github.com/pthm-cable/racer/reward"
	"github.com/pthm-cable/racer/track"
)

// NewTrack builds the configured track. Procedural layouts draw from a
// generator seeded with Track.Seed.
func (c *Config) NewTrack() (*track.Track, error) {
	rng := rand.New(rand.NewSource(c.Track.Seed))
	return track.New(c.Track.Layout, rng,
		track.WithWidth(c.Track.Width),
		track.WithRandomParams(c.Track.Random),
	)
}

// EnvFactory returns a factory of independent environments sharing trk.
// Each environment gets its own reward strategy instance.
func (c *Config) EnvFactory(trk *track.Track) (eval.EnvFactory, error) {
	strategies, err := reward.NewFactory(c.Reward.Strategy, c.Reward.Params, trk)
	if err != nil {
		return nil, fmt.Errorf("reward: %w", err)
	}
	vehicle := c.Vehicle.Params()
	envCfg := c.Env
	return func() (env.Environment, error) {
		return env.New(trk, vehicle, strategies(), envCfg), nil
	}, nil
}

// Objective wraps an environment factory as an ES rollout objective.
func (c *Config) Objective(newEnv eval.EnvFactory, episodes int) *es.RolloutObjective {
	return &es.RolloutObjective{
		NewEnv:   newEnv,
		Arch:     c.Policy.Architecture(),
		Policy:   c.Policy,
		Episodes: episodes,
	}
}

// InitialParams draws the starting center vector from a generator seeded
// with seed.
func (c *Config) InitialParams(seed int64) ([]float64, error) {
	p, err := neural.NewRandomPolicy(c.Policy.Architecture(), c.Policy, rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, err
	}
	return p.Params(), nil
}
