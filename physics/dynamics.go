// Package physics integrates the kinematic point-mass vehicle model.
package physics

import (
	"math"

	"github.com/pthm-cable/racer/components"
)

// Default model constants.
const (
	DefaultDT           = 0.1  // seconds per step
	DefaultMaxSpeed     = 20.0 // m/s
	DefaultMaxSteerRate = 1.0  // rad/s at full steering
	DefaultAccel        = 5.0  // m/s^2 at full throttle
	DefaultFriction     = 1.0  // linear drag coefficient before scaling
)

// Params holds the vehicle model constants.
type Params struct {
	DT           float64
	MaxSpeed     float64
	MaxSteerRate float64
	Accel        float64
	Friction     float64 // base drag coefficient, already scaled
}

// DefaultParams returns the standard model with the given friction scale.
func DefaultParams(frictionScale float64) Params {
	return Params{
		DT:           DefaultDT,
		MaxSpeed:     DefaultMaxSpeed,
		MaxSteerRate: DefaultMaxSteerRate,
		Accel:        DefaultAccel,
		Friction:     DefaultFriction * frictionScale,
	}
}

// Dynamics owns a VehicleState and advances it one step at a time.
type Dynamics struct {
	params Params
	state  components.VehicleState
}

// NewDynamics creates a vehicle at the origin, at rest.
func NewDynamics(p Params) *Dynamics {
	return &Dynamics{params: p}
}

// Params returns the model constants.
func (d *Dynamics) Params() Params {
	return d.params
}

// State returns the current vehicle state.
func (d *Dynamics) State() components.VehicleState {
	return d.state
}

// Reset places the vehicle at pose with zero speed.
func (d *Dynamics) Reset(pose components.Pose) components.VehicleState {
	d.state = components.VehicleState{
		X:       pose.X,
		Y:       pose.Y,
		Heading: WrapAngle(pose.Heading),
	}
	return d.state
}

// Step advances the state. A non-nil friction replaces the base friction for
// this step only.
func (d *Dynamics) Step(steering, throttle float64, friction *float64) components.VehicleState {
	f := d.params.Friction
	if friction != nil {
		f = *friction
	}
	d.state = d.next(d.state, steering, throttle, f)
	return d.state
}

// PeekStep returns the state Step would produce with base friction, without
// changing the vehicle.
func (d *Dynamics) PeekStep(steering, throttle float64) components.VehicleState {
	return d.next(d.state, steering, throttle, d.params.Friction)
}

// ScaleSpeed multiplies the current speed by factor, clamped to the valid range.
func (d *Dynamics) ScaleSpeed(factor float64) {
	d.state.Speed = clampFloat(d.state.Speed*factor, 0, d.params.MaxSpeed)
}

// next is the pure transition shared by Step and PeekStep.
func (d *Dynamics) next(s components.VehicleState, steering, throttle, friction float64) components.VehicleState {
	p := d.params
	a := components.Action{Steering: steering, Throttle: throttle}.Clip()

	speed := s.Speed + (a.Throttle*p.Accel-friction*s.Speed)*p.DT
	speed = clampFloat(speed, 0, p.MaxSpeed)

	heading := WrapAngle(s.Heading + a.Steering*p.MaxSteerRate*p.DT)

	return components.VehicleState{
		X:       s.X + speed*math.Cos(heading)*p.DT,
		Y:       s.Y + speed*math.Sin(heading)*p.DT,
		Heading: heading,
		Speed:   speed,
	}
}
