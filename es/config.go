package es

import (
	"errors"
	"fmt"
	"math"
)

// ErrConfig is returned for invalid optimizer settings.
var ErrConfig = errors.New("invalid es config")

// Config holds Evolution Strategies settings.
type Config struct {
	Population      int     `yaml:"population"`       // perturbed candidates per generation
	Sigma           float64 `yaml:"sigma"`            // perturbation scale
	Alpha           float64 `yaml:"alpha"`            // learning rate
	Generations     int     `yaml:"generations"`      // generations run by Run
	Antithetic      bool    `yaml:"antithetic"`       // evaluate eps and -eps pairs
	Workers         int     `yaml:"workers"`          // concurrent evaluators, 0 = GOMAXPROCS
	Seed            int64   `yaml:"seed"`             // source of all optimizer randomness
	EvalCenter      bool    `yaml:"eval_center"`      // also score the unperturbed center each generation
	CheckpointEvery int     `yaml:"checkpoint_every"` // generations between checkpoints, 0 = final only
}

// DefaultConfig returns the standard training settings.
func DefaultConfig() Config {
	return Config{
		Population:      50,
		Sigma:           0.1,
		Alpha:           0.01,
		Generations:     100,
		Antithetic:      true,
		Seed:            42,
		EvalCenter:      true,
		CheckpointEvery: 10,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Population < 2:
		return fmt.Errorf("population %d must be at least 2: %w", c.Population, ErrConfig)
	case !(c.Sigma > 0) || math.IsInf(c.Sigma, 0):
		return fmt.Errorf("sigma %v must be positive: %w", c.Sigma, ErrConfig)
	case !(c.Alpha > 0) || math.IsInf(c.Alpha, 0):
		return fmt.Errorf("alpha %v must be positive: %w", c.Alpha, ErrConfig)
	case c.Generations < 0:
		return fmt.Errorf("generations %d must not be negative: %w", c.Generations, ErrConfig)
	case c.Workers < 0:
		return fmt.Errorf("workers %d must not be negative: %w", c.Workers, ErrConfig)
	case c.CheckpointEvery < 0:
		return fmt.Errorf("checkpoint_every %d must not be negative: %w", c.CheckpointEvery, ErrConfig)
	}
	return nil
}
