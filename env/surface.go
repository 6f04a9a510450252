package env

import (
	opensimplex "github.com/ojrac/opensimplex-go"
)

// SurfaceConfig describes an icy-patch friction field laid over the track plane.
type SurfaceConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Seed        int64   `yaml:"seed"`
	Scale       float64 `yaml:"scale"`        // world units per noise period
	Threshold   float64 `yaml:"threshold"`    // noise level above which the ground is icy, in [0, 1]
	IceFriction float64 `yaml:"ice_friction"` // drag coefficient on ice
}

// DefaultSurfaceConfig returns a disabled surface with moderate patches.
func DefaultSurfaceConfig() SurfaceConfig {
	return SurfaceConfig{
		Enabled:     false,
		Seed:        7,
		Scale:       25,
		Threshold:   0.7,
		IceFriction: 0.1,
	}
}

// Surface maps positions to friction coefficients using coherent noise, so
// icy regions form contiguous patches instead of per-step flicker.
type Surface struct {
	cfg   SurfaceConfig
	base  float64
	noise opensimplex.Noise
}

// NewSurface builds the field. base is the friction off the ice.
func NewSurface(cfg SurfaceConfig, base float64) *Surface {
	if cfg.Scale <= 0 {
		cfg.Scale = 1
	}
	return &Surface{
		cfg:   cfg,
		base:  base,
		noise: opensimplex.NewNormalized(cfg.Seed),
	}
}

// Level returns the raw noise value in [0, 1] at (x, y).
func (s *Surface) Level(x, y float64) float64 {
	return s.noise.Eval2(x/s.cfg.Scale, y/s.cfg.Scale)
}

// Icy reports whether (x, y) lies on an icy patch.
func (s *Surface) Icy(x, y float64) bool {
	return s.Level(x, y) > s.cfg.Threshold
}

// FrictionAt returns the drag coefficient at (x, y).
func (s *Surface) FrictionAt(x, y float64) float64 {
	if s.Icy(x, y) {
		return s.cfg.IceFriction
	}
	return s.base
}
