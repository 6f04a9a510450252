package neural

import "github.com/pthm-cable/racer/components"

// Config holds policy network settings.
type Config struct {
	Hidden       int     `yaml:"hidden"`        // units in each of the two hidden layers
	InitScale    float64 `yaml:"init_scale"`    // stddev of the initial Gaussian weights
	MinThrottle  float64 `yaml:"min_throttle"`  // throttle floor applied after rescaling
	NormWarmup   int     `yaml:"norm_warmup"`   // normalizer learning rate is 1/min(count, warmup)
	MinDeviation float64 `yaml:"min_deviation"` // floor on the running mean absolute deviation
}

// DefaultConfig returns the standard policy settings.
func DefaultConfig() Config {
	return Config{
		Hidden:       128,
		InitScale:    0.1,
		MinThrottle:  0.3,
		NormWarmup:   1000,
		MinDeviation: 0.01,
	}
}

// Architecture returns the driving policy shape for this config.
func (c Config) Architecture() Architecture {
	return Architecture{
		Inputs:  components.NumObs,
		Hidden:  c.Hidden,
		Outputs: components.NumActions,
	}
}
