package eval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/racer/env"
)

// DefaultSuccessSteps is the survival threshold for counting an episode as a success.
const DefaultSuccessSteps = 50

// ExperimentConfig describes a batch of evaluation episodes.
type ExperimentConfig struct {
	Name            string  `yaml:"name"`
	Episodes        int     `yaml:"episodes"`
	MaxSteps        int     `yaml:"max_steps"`
	ObsNoise        float64 `yaml:"obs_noise"`        // Gaussian observation noise std
	ActionNoise     float64 `yaml:"action_noise"`     // Gaussian action noise std
	RewardDelay     int     `yaml:"reward_delay"`     // steps
	Mask            []int   `yaml:"mask,omitempty"`   // observation indices zeroed every step
	Seed            int64   `yaml:"seed"`             // episode i uses Seed+i
	SuccessSteps    int     `yaml:"success_steps"`
	ResetNormalizer bool    `yaml:"reset_normalizer"` // reset agent statistics before each episode
}

// DefaultExperimentConfig returns a 20-episode clean evaluation.
func DefaultExperimentConfig() ExperimentConfig {
	return ExperimentConfig{
		Name:         "baseline",
		Episodes:     20,
		MaxSteps:     1000,
		SuccessSteps: DefaultSuccessSteps,
	}
}

// Result aggregates an experiment.
type Result struct {
	Config      ExperimentConfig
	Returns     []float64
	Lengths     []int
	SuccessRate float64
	MeanReturn  float64
	StdReturn   float64 // population standard deviation
	MeanLength  float64
	WallTime    time.Duration
}

// EnvFactory builds a fresh environment for an experiment.
type EnvFactory func() (env.Environment, error)

// normalizerResetter is implemented by agents with resettable statistics.
type normalizerResetter interface {
	ResetNormalizer()
}

// Runner executes experiments against environments from NewEnv.
type Runner struct {
	NewEnv EnvFactory
}

// NewRunner creates a runner.
func NewRunner(f EnvFactory) *Runner {
	return &Runner{NewEnv: f}
}

// Wrap applies the experiment's corruption wrappers to e: noise, then
// reward delay, then a fixed observation mask.
func (cfg ExperimentConfig) Wrap(e env.Environment) env.Environment {
	if cfg.ObsNoise > 0 || cfg.ActionNoise > 0 {
		e = env.NewNoiseWrapper(e, cfg.ObsNoise, cfg.ActionNoise, cfg.Seed)
	}
	if cfg.RewardDelay > 0 {
		e = env.NewDelayWrapper(e, cfg.RewardDelay)
	}
	if len(cfg.Mask) > 0 {
		e = &env.FixedConfig{Env: e, Config: env.StepConfig{Mask: cfg.Mask}}
	}
	return e
}

// Run plays cfg.Episodes episodes with agent. Cancellation is checked
// between episodes.
func (r *Runner) Run(ctx context.Context, agent Agent, cfg ExperimentConfig) (Result, error) {
	if cfg.Episodes <= 0 {
		return Result{}, fmt.Errorf("experiment %q: episodes must be positive", cfg.Name)
	}
	if cfg.SuccessSteps <= 0 {
		cfg.SuccessSteps = DefaultSuccessSteps
	}

	base, err := r.NewEnv()
	if err != nil {
		return Result{}, fmt.Errorf("experiment %q: creating env: %w", cfg.Name, err)
	}
	e := cfg.Wrap(base)

	slog.Info("starting experiment", "name", cfg.Name, "episodes", cfg.Episodes)
	start := time.Now()

	res := Result{
		Config:  cfg,
		Returns: make([]float64, 0, cfg.Episodes),
		Lengths: make([]int, 0, cfg.Episodes),
	}
	successes := 0
	for i := 0; i < cfg.Episodes; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if rs, ok := agent.(normalizerResetter); ok && cfg.ResetNormalizer {
			rs.ResetNormalizer()
		}
		seed := cfg.Seed + int64(i)
		ep, err := RunEpisode(e, agent, EpisodeOptions{Seed: &seed, MaxSteps: cfg.MaxSteps})
		if err != nil {
			return res, fmt.Errorf("experiment %q episode %d: %w", cfg.Name, i, err)
		}
		res.Returns = append(res.Returns, ep.Return)
		res.Lengths = append(res.Lengths, ep.Steps)
		if ep.Steps > cfg.SuccessSteps {
			successes++
		}
	}

	res.WallTime = time.Since(start)
	res.SuccessRate = float64(successes) / float64(cfg.Episodes)
	res.MeanReturn, res.StdReturn = stat.PopMeanStdDev(res.Returns, nil)
	lengths := make([]float64, len(res.Lengths))
	for i, l := range res.Lengths {
		lengths[i] = float64(l)
	}
	res.MeanLength = stat.Mean(lengths, nil)
	return res, nil
}

// DefaultNoiseLevels are the observation-noise levels of the robustness sweep.
var DefaultNoiseLevels = []float64{0, 0.1, 0.3, 0.5, 0.8, 1.0}

// NoiseSweep runs base once per observation-noise level.
func (r *Runner) NoiseSweep(ctx context.Context, agent Agent, base ExperimentConfig, levels []float64) ([]Result, error) {
	results := make([]Result, 0, len(levels))
	for _, lvl := range levels {
		cfg := base
		cfg.ObsNoise = lvl
		cfg.Name = fmt.Sprintf("%s_noise_%.2f", base.Name, lvl)
		res, err := r.Run(ctx, agent, cfg)
		if err != nil {
			return results, err
		}
		slog.Info("sweep level done",
			"noise", lvl,
			"mean_return", res.MeanReturn,
			"success_rate", res.SuccessRate,
		)
		results = append(results, res)
	}
	return results, nil
}
