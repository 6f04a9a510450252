package reward

import (
	"math"

	"github.com/pthm-cable/racer/components"
)

// ControlParams weights the geometric control reward.
type ControlParams struct {
	ProgressScale    float64 `yaml:"progress_scale"`
	LateralWeight    float64 `yaml:"lateral_weight"`
	HeadingWeight    float64 `yaml:"heading_weight"`
	SmoothnessWeight float64 `yaml:"smoothness_weight"`
	OffTrackPenalty  float64 `yaml:"off_track_penalty"`
	Bias             float64 `yaml:"bias"` // constant shift; does not change ranking
}

// DefaultControlParams returns the weights used for ES training.
func DefaultControlParams() ControlParams {
	return ControlParams{
		ProgressScale:    500,
		LateralWeight:    2,
		HeadingWeight:    1,
		SmoothnessWeight: 0.5,
		OffTrackPenalty:  50,
	}
}

// Control is the canonical geometric control reward:
//
//	progress*scale - |lat|*w1 - |heading|*w2 - |dSteer|*w3 - offTrack + bias
//
// Progress is the change in the centerline fraction since the previous step,
// corrected across the start line so a lap wrap is neither a huge gain nor a
// huge loss.
type Control struct {
	p            ControlParams
	prevProgress float64
	prevSteering float64
}

// NewControl creates a control reward with the given weights.
func NewControl(p ControlParams) *Control {
	return &Control{p: p}
}

// Reset clears the previous progress and steering.
func (c *Control) Reset() {
	c.prevProgress = 0
	c.prevSteering = 0
}

// Compute scores one step.
func (c *Control) Compute(_ components.VehicleState, action components.Action, info components.Info) float64 {
	progress := info.Value(components.KeyProgress)
	r := ProgressDelta(c.prevProgress, progress) * c.p.ProgressScale

	r -= math.Abs(info.Value(components.KeyLateralError)) * c.p.LateralWeight
	r -= math.Abs(info.Value(components.KeyHeadingError)) * c.p.HeadingWeight
	r -= math.Abs(action.Steering-c.prevSteering) * c.p.SmoothnessWeight

	if info.OffTrack {
		r -= c.p.OffTrackPenalty
	}
	r += c.p.Bias

	c.prevProgress = progress
	c.prevSteering = action.Steering
	return r
}

// ProgressDelta returns cur-prev, corrected by one lap when the jump exceeds
// half a lap in either direction.
func ProgressDelta(prev, cur float64) float64 {
	d := cur - prev
	switch {
	case d < -0.5:
		d += 1
	case d > 0.5:
		d -= 1
	}
	return d
}
