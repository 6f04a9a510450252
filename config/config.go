// Package config provides configuration loading and access for training and
// evaluation runs.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/racer/env"
	"github.com/pthm-cable/racer/es"
	"github.com/pthm-cable/racer/eval"
	"github.com/pthm-cable/racer/neural"
	"github.com/pthm-cable/racer/physics"
	"github.com/pthm-cable/racer/reward"
	"github.com/pthm-cable/racer/track"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all run configuration parameters.
type Config struct {
	Track     TrackConfig     `yaml:"track"`
	Vehicle   VehicleConfig   `yaml:"vehicle"`
	Env       env.Config      `yaml:"env"`
	Reward    RewardConfig    `yaml:"reward"`
	Policy    neural.Config   `yaml:"policy"`
	ES        es.Config       `yaml:"es"`
	CMAES     es.CMAESConfig  `yaml:"cmaes"`
	Eval      EvalConfig      `yaml:"eval"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// TrackConfig selects and shapes the track.
type TrackConfig struct {
	Layout string             `yaml:"layout"` // oval, figure8 or random
	Width  float64            `yaml:"width"`  // full width in meters
	Seed   int64              `yaml:"seed"`   // procedural layout seed
	Random track.RandomParams `yaml:"random"`
}

// VehicleConfig holds the point-mass model constants.
type VehicleConfig struct {
	DT            float64 `yaml:"dt"`
	MaxSpeed      float64 `yaml:"max_speed"`
	MaxSteerRate  float64 `yaml:"max_steer_rate"`
	Accel         float64 `yaml:"accel"`
	Friction      float64 `yaml:"friction"`       // base drag coefficient
	FrictionScale float64 `yaml:"friction_scale"` // multiplier on Friction
}

// Params converts to physics parameters.
func (v VehicleConfig) Params() physics.Params {
	return physics.Params{
		DT:           v.DT,
		MaxSpeed:     v.MaxSpeed,
		MaxSteerRate: v.MaxSteerRate,
		Accel:        v.Accel,
		Friction:     v.Friction * v.FrictionScale,
	}
}

// RewardConfig selects a strategy from the reward catalog.
type RewardConfig struct {
	Strategy string        `yaml:"strategy"`
	Params   reward.Params `yaml:",inline"`
}

// EvalConfig holds evaluation and robustness sweep settings.
type EvalConfig struct {
	Base        eval.ExperimentConfig `yaml:"base"`
	NoiseLevels []float64             `yaml:"noise_levels"` // observation noise std per sweep point
}

// TelemetryConfig holds output and monitoring settings.
type TelemetryConfig struct {
	Output           string `yaml:"output"`             // root directory for run output, empty disables
	LogEvery         int    `yaml:"log_every"`          // generations between info logs
	PlotEvery        int    `yaml:"plot_every"`         // generations between learning-curve renders, 0 = end only
	PerfWindow       int    `yaml:"perf_window"`        // generations in the perf rolling window
	BookmarkHistory  int    `yaml:"bookmark_history"`   // generations of history for bookmark detection
	HallOfFameSize   int    `yaml:"hall_of_fame_size"`  // archived policies kept
	ReseedOnCollapse bool   `yaml:"reseed_on_collapse"` // restart the center from the hall of fame after a collapse
}

// DerivedConfig holds values computed from other config fields.
type DerivedConfig struct {
	Architecture neural.Architecture
	NumParams    int
	Vehicle      physics.Params
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()

	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Track.Width <= 0:
		return fmt.Errorf("track.width %v must be positive: %w", c.Track.Width, ErrInvalid)
	case c.Vehicle.DT <= 0:
		return fmt.Errorf("vehicle.dt %v must be positive: %w", c.Vehicle.DT, ErrInvalid)
	case c.Vehicle.MaxSpeed <= 0:
		return fmt.Errorf("vehicle.max_speed %v must be positive: %w", c.Vehicle.MaxSpeed, ErrInvalid)
	case c.Vehicle.Friction < 0 || c.Vehicle.FrictionScale < 0:
		return fmt.Errorf("vehicle friction must not be negative: %w", ErrInvalid)
	case c.Env.MaxSteps <= 0:
		return fmt.Errorf("env.max_steps %d must be positive: %w", c.Env.MaxSteps, ErrInvalid)
	case c.Env.RewardDelay < 0:
		return fmt.Errorf("env.reward_delay %d must not be negative: %w", c.Env.RewardDelay, ErrInvalid)
	case c.Policy.Hidden <= 0:
		return fmt.Errorf("policy.hidden %d must be positive: %w", c.Policy.Hidden, ErrInvalid)
	case c.Eval.Base.Episodes <= 0:
		return fmt.Errorf("eval.base.episodes %d must be positive: %w", c.Eval.Base.Episodes, ErrInvalid)
	}
	if err := c.ES.Validate(); err != nil {
		return fmt.Errorf("es: %v: %w", err, ErrInvalid)
	}
	if !slices.Contains(reward.Names(), c.Reward.Strategy) {
		return fmt.Errorf("reward.strategy %q not in %v: %w", c.Reward.Strategy, reward.Names(), ErrInvalid)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.Architecture = c.Policy.Architecture()
	c.Derived.NumParams = c.Derived.Architecture.ParamCount()
	c.Derived.Vehicle = c.Vehicle.Params()

	// An empty sweep falls back to the standard levels
	if len(c.Eval.NoiseLevels) == 0 {
		c.Eval.NoiseLevels = append([]float64(nil), eval.DefaultNoiseLevels...)
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
