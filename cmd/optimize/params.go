// Package main provides CMA-ES search over training hyperparameters.
package main

import (
	"github.com/pthm-cable/racer/config"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of all optimizable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of optimizable parameters.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			// ES
			{Name: "sigma", Path: "es.sigma", Min: 0.01, Max: 0.5, Default: 0.1},
			{Name: "alpha", Path: "es.alpha", Min: 0.001, Max: 0.1, Default: 0.01},
			// Control reward (progress_scale and bias locked)
			{Name: "lateral_weight", Path: "reward.control.lateral_weight", Min: 0, Max: 5, Default: 2},
			{Name: "heading_weight", Path: "reward.control.heading_weight", Min: 0, Max: 3, Default: 1},
			{Name: "smoothness_weight", Path: "reward.control.smoothness_weight", Min: 0, Max: 2, Default: 0.5},
			{Name: "off_track_penalty", Path: "reward.control.off_track_penalty", Min: 0, Max: 200, Default: 50},
			// Policy
			{Name: "min_throttle", Path: "policy.min_throttle", Min: 0, Max: 0.8, Default: 0.3},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToConfig clamps values and writes them into cfg.
// Order must match Specs order.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	clamped := pv.Clamp(values)
	i := 0

	cfg.ES.Sigma = clamped[i]
	i++
	cfg.ES.Alpha = clamped[i]
	i++

	ctrl := &cfg.Reward.Params.Control
	ctrl.LateralWeight = clamped[i]
	i++
	ctrl.HeadingWeight = clamped[i]
	i++
	ctrl.SmoothnessWeight = clamped[i]
	i++
	ctrl.OffTrackPenalty = clamped[i]
	i++

	cfg.Policy.MinThrottle = clamped[i]
}

// ExtractFromConfig extracts current parameter values from cfg.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	ctrl := cfg.Reward.Params.Control
	return []float64{
		cfg.ES.Sigma,
		cfg.ES.Alpha,
		ctrl.LateralWeight,
		ctrl.HeadingWeight,
		ctrl.SmoothnessWeight,
		ctrl.OffTrackPenalty,
		cfg.Policy.MinThrottle,
	}
}
