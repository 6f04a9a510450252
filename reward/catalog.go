package reward

import (
	"math"

	"github.com/pthm-cable/racer/components"
	"github.com/pthm-cable/racer/track"
)

// Progress rewards velocity projected onto the local track tangent.
type Progress struct {
	trk *track.Track
}

// NewProgress creates a tangent-velocity reward over trk.
func NewProgress(trk *track.Track) *Progress {
	return &Progress{trk: trk}
}

// Reset is a no-op.
func (p *Progress) Reset() {}

// SetTrack points the strategy at a regenerated track.
func (p *Progress) SetTrack(trk *track.Track) { p.trk = trk }

// Compute scores one step.
func (p *Progress) Compute(state components.VehicleState, action components.Action, info components.Info) float64 {
	if info.OffTrack {
		return -10
	}
	proj := p.trk.ClosestPointInfo(state.X, state.Y)
	along := state.Speed * math.Cos(state.Heading-proj.Tangent)
	return along*0.1 - 0.05*math.Abs(action.Steering)
}

// Speed rewards raw speed and ignores the track entirely.
type Speed struct{}

// Reset is a no-op.
func (Speed) Reset() {}

// Compute scores one step.
func (Speed) Compute(state components.VehicleState, _ components.Action, _ components.Info) float64 {
	return state.Speed * 2
}

// Alignment rewards cos(heading error) and nothing else, so standing still
// while aligned scores as well as driving.
type Alignment struct{}

// Reset is a no-op.
func (Alignment) Reset() {}

// Compute scores one step.
func (Alignment) Compute(_ components.VehicleState, _ components.Action, info components.Info) float64 {
	return math.Cos(info.Value(components.KeyHeadingError))
}

// Exploit adds loophole bonuses on top of the control reward: steering
// saturation, boundary grazing and steering magnitude.
type Exploit struct {
	base *Control
}

// NewExploit wraps a control reward with the given weights.
func NewExploit(p ControlParams) *Exploit {
	return &Exploit{base: NewControl(p)}
}

// Reset clears the wrapped control reward.
func (e *Exploit) Reset() { e.base.Reset() }

// Compute scores one step.
func (e *Exploit) Compute(state components.VehicleState, action components.Action, info components.Info) float64 {
	r := e.base.Compute(state, action, info)

	steer := math.Abs(action.Steering)
	if steer > 0.9 {
		r += 0.5
	}
	if lat := math.Abs(info.Value(components.KeyLateralError)); lat > 1 && lat < 2 {
		r += 0.3
	}
	return r + 0.2*steer
}

// Sensitivity is speed minus a scaled lateral penalty, used to measure how the
// learned behaviour responds to the safety weight.
type Sensitivity struct {
	SafetyCoeff float64
}

// Reset is a no-op.
func (Sensitivity) Reset() {}

// Compute scores one step. "crashed" is not produced by the environment and
// reads as 0, so the crash term never fires in this simulator.
func (s Sensitivity) Compute(_ components.VehicleState, _ components.Action, info components.Info) float64 {
	r := info.Value(components.KeySpeed)/10 - s.SafetyCoeff*math.Abs(info.Value(components.KeyLateralError))
	if info.Value("crashed") != 0 {
		r -= 100
	}
	return r
}
