// Package components defines the plain data types shared by the simulation,
// the reward strategies and the policies.
package components

import "math"

// Observation indices.
const (
	ObsLateralError = iota
	ObsHeadingError
	ObsSpeed
	ObsCurvature

	NumObs // length of an Observation
)

// NumActions is the length of an action vector (steering, throttle).
const NumActions = 2

// Pose is a position plus heading in radians.
type Pose struct {
	X, Y, Heading float64
}

// VehicleState is the integrated state of the point-mass vehicle.
// Heading is kept in (-Pi, Pi], speed in [0, MaxSpeed].
type VehicleState struct {
	X, Y    float64
	Heading float64
	Speed   float64
}

// Pose returns the position and heading part of the state.
func (s VehicleState) Pose() Pose {
	return Pose{X: s.X, Y: s.Y, Heading: s.Heading}
}

// Action is a control input.
// Steering in [-1, 1] (positive turns left), throttle in [0, 1].
type Action struct {
	Steering float64
	Throttle float64
}

// Clip returns the action with both channels clipped to their valid ranges.
// NaN inputs are treated as zero.
func (a Action) Clip() Action {
	return Action{
		Steering: clamp(a.Steering, -1, 1),
		Throttle: clamp(a.Throttle, 0, 1),
	}
}

// ActionFromSlice builds an action from a [steering, throttle] vector.
// Missing entries are zero.
func ActionFromSlice(v []float64) Action {
	var a Action
	if len(v) > 0 {
		a.Steering = v[0]
	}
	if len(v) > 1 {
		a.Throttle = v[1]
	}
	return a
}

// Observation is (lateral_error, heading_error, speed, curvature).
type Observation [NumObs]float64

// Slice returns the observation as a new slice.
func (o Observation) Slice() []float64 {
	out := make([]float64, NumObs)
	copy(out, o[:])
	return out
}

// Info carries the uncorrupted per-step diagnostics produced by the environment.
//
// Reward strategies read fields either directly or through Value, which maps
// the canonical key names and any Extra entries. Keys that are absent read as
// 0.0; strategies rely on this default instead of treating a missing key as an
// error.
type Info struct {
	X            float64
	Y            float64
	Heading      float64
	Speed        float64
	OffTrack     bool
	LateralError float64
	HeadingError float64
	Progress     float64 // closest centerline index / len, in [0, 1)

	// Extra holds optional diagnostics outside the canonical set.
	Extra map[string]float64
}

// Canonical info keys.
const (
	KeyX            = "x"
	KeyY            = "y"
	KeyHeading      = "heading"
	KeySpeed        = "speed"
	KeyOffTrack     = "off_track"
	KeyLateralError = "lateral_error"
	KeyHeadingError = "heading_error"
	KeyProgress     = "progress"
)

// Value returns the named field as a float. Booleans read as 0 or 1.
// Unknown keys return 0.
func (i Info) Value(key string) float64 {
	switch key {
	case KeyX:
		return i.X
	case KeyY:
		return i.Y
	case KeyHeading:
		return i.Heading
	case KeySpeed:
		return i.Speed
	case KeyOffTrack:
		if i.OffTrack {
			return 1
		}
		return 0
	case KeyLateralError:
		return i.LateralError
	case KeyHeadingError:
		return i.HeadingError
	case KeyProgress:
		return i.Progress
	}
	return i.Extra[key]
}

// AsMap returns the info record as a generic map, for consumers that expect
// the dictionary form of the environment contract.
func (i Info) AsMap() map[string]any {
	m := map[string]any{
		KeyX:            i.X,
		KeyY:            i.Y,
		KeyHeading:      i.Heading,
		KeySpeed:        i.Speed,
		KeyOffTrack:     i.OffTrack,
		KeyLateralError: i.LateralError,
		KeyHeadingError: i.HeadingError,
		KeyProgress:     i.Progress,
	}
	for k, v := range i.Extra {
		m[k] = v
	}
	return m
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
