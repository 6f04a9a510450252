package env

import (
	"math/rand"

	"github.com/pthm-cable/racer/components"
)

// NoiseWrapper injects Gaussian noise into actions before they reach the
// wrapped environment and into the observations it returns.
type NoiseWrapper struct {
	Env       Environment
	ObsStd    float64
	ActionStd float64

	rng *rand.Rand
}

// NewNoiseWrapper wraps inner with the given noise levels.
func NewNoiseWrapper(inner Environment, obsStd, actionStd float64, seed int64) *NoiseWrapper {
	return &NoiseWrapper{
		Env:       inner,
		ObsStd:    obsStd,
		ActionStd: actionStd,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Reset forwards to the wrapped environment. The initial observation is
// returned clean.
func (w *NoiseWrapper) Reset(opts ResetOptions) (components.Observation, components.Info) {
	return w.Env.Reset(opts)
}

// Step perturbs the action, steps, then perturbs the observation. Info and
// reward are left untouched.
func (w *NoiseWrapper) Step(action components.Action, cfg *StepConfig) (StepResult, error) {
	if w.ActionStd > 0 {
		action.Steering += w.rng.NormFloat64() * w.ActionStd
		action.Throttle += w.rng.NormFloat64() * w.ActionStd
		action = action.Clip()
	}
	res, err := w.Env.Step(action, cfg)
	if err != nil {
		return res, err
	}
	if w.ObsStd > 0 {
		for i := range res.Obs {
			res.Obs[i] += w.rng.NormFloat64() * w.ObsStd
		}
	}
	return res, nil
}

// DelayWrapper holds rewards back for a fixed number of steps, emitting 0 until
// the buffer fills.
type DelayWrapper struct {
	Env   Environment
	Steps int

	pending []float64
}

// NewDelayWrapper wraps inner with a reward delay of steps.
func NewDelayWrapper(inner Environment, steps int) *DelayWrapper {
	return &DelayWrapper{Env: inner, Steps: steps}
}

// Reset clears the buffer and forwards.
func (w *DelayWrapper) Reset(opts ResetOptions) (components.Observation, components.Info) {
	w.pending = w.pending[:0]
	for i := 0; i < w.Steps; i++ {
		w.pending = append(w.pending, 0)
	}
	return w.Env.Reset(opts)
}

// Step forwards and swaps the reward for the oldest buffered one.
func (w *DelayWrapper) Step(action components.Action, cfg *StepConfig) (StepResult, error) {
	res, err := w.Env.Step(action, cfg)
	if err != nil || w.Steps <= 0 {
		return res, err
	}
	w.pending = append(w.pending, res.Reward)
	res.Reward = w.pending[0]
	w.pending = w.pending[1:]
	return res, nil
}

// FixedConfig applies the same StepConfig to every step that arrives without
// one, e.g. a permanent sensor mask.
type FixedConfig struct {
	Env    Environment
	Config StepConfig
}

// Reset forwards to the wrapped environment.
func (w *FixedConfig) Reset(opts ResetOptions) (components.Observation, components.Info) {
	return w.Env.Reset(opts)
}

// Step forwards with the fixed config unless the caller supplies one.
func (w *FixedConfig) Step(action components.Action, cfg *StepConfig) (StepResult, error) {
	if cfg == nil {
		cfg = &w.Config
	}
	return w.Env.Step(action, cfg)
}
