package es

import (
	"fmt"

	"github.com/pthm-cable/racer/env"
	"github.com/pthm-cable/racer/eval"
	"github.com/pthm-cable/racer/neural"
)

// RolloutObjective scores parameter vectors by driving a policy through
// freshly built environments. Each worker owns its own environment and policy.
type RolloutObjective struct {
	NewEnv   eval.EnvFactory
	Arch     neural.Architecture
	Policy   neural.Config
	Episodes int // episodes averaged per candidate, default 1
}

// NewWorker implements Objective.
func (o *RolloutObjective) NewWorker() (Worker, error) {
	e, err := o.NewEnv()
	if err != nil {
		return nil, err
	}
	p, err := neural.NewPolicy(o.Arch, o.Policy)
	if err != nil {
		return nil, err
	}
	return &rolloutWorker{env: e, policy: p, episodes: max(o.Episodes, 1)}, nil
}

type rolloutWorker struct {
	env      env.Environment
	policy   *neural.Policy
	episodes int
}

// Evaluate loads the candidate into the worker's policy and returns the mean
// episode return. Normalizer statistics start from identity on every episode
// so a score depends only on the candidate and the seed.
func (w *rolloutWorker) Evaluate(c Candidate, seed int64) (float64, error) {
	var err error
	if c.Noise == nil {
		err = w.policy.SetParams(c.Center)
	} else {
		err = w.policy.SetPerturbed(c.Center, c.Noise, c.Sigma)
	}
	if err != nil {
		return 0, err
	}

	var total float64
	for i := 0; i < w.episodes; i++ {
		w.policy.ResetNormalizer()
		s := seed + int64(i)
		ep, err := eval.RunEpisode(w.env, w.policy, eval.EpisodeOptions{Seed: &s})
		if err != nil {
			return 0, fmt.Errorf("rollout: %w", err)
		}
		total += ep.Return
	}
	return total / float64(w.episodes), nil
}

// PolicyFromCenter builds a policy holding params and warms its normalizer
// with one episode on e, so the saved checkpoint carries realistic
// statistics.
func PolicyFromCenter(e env.Environment, arch neural.Architecture, cfg neural.Config, params []float64, seed int64) (*neural.Policy, eval.Episode, error) {
	p, err := neural.NewPolicy(arch, cfg)
	if err != nil {
		return nil, eval.Episode{}, err
	}
	if err := p.SetParams(params); err != nil {
		return nil, eval.Episode{}, err
	}
	ep, err := eval.RunEpisode(e, p, eval.EpisodeOptions{Seed: &seed, Record: true})
	if err != nil {
		return nil, ep, err
	}
	return p, ep, nil
}
