// Package eval drives agents through environments: single episodes with
// optional trajectory capture, repeated experiments, and noise sweeps.
package eval

import (
	"fmt"

	"github.com/pthm-cable/racer/components"
	"github.com/pthm-cable/racer/env"
)

// Agent maps observations to actions. *neural.Policy satisfies it.
type Agent interface {
	Predict(obs components.Observation) components.Action
}

// AgentFunc adapts a function to Agent.
type AgentFunc func(obs components.Observation) components.Action

// Predict implements Agent.
func (f AgentFunc) Predict(obs components.Observation) components.Action { return f(obs) }

// EpisodeOptions controls a single episode. Zero values mean defaults.
type EpisodeOptions struct {
	Seed       *int64
	StartPose  *components.Pose
	StepConfig *env.StepConfig
	MaxSteps   int  // extra cap below the environment's own budget, 0 = none
	Record     bool // keep a per-step trajectory
}

// TrajectoryPoint is one recorded step.
type TrajectoryPoint struct {
	Step         int
	X, Y         float64
	Heading      float64
	Speed        float64
	Steering     float64
	Throttle     float64
	Reward       float64
	LateralError float64
	Progress     float64
	OffTrack     bool
}

// Episode is the outcome of one rollout.
type Episode struct {
	Return        float64
	Steps         int
	OffTrackSteps int
	FinalProgress float64
	Truncated     bool
	Trajectory    []TrajectoryPoint
}

// RunEpisode resets e and steps it with agent until the episode ends or
// opts.MaxSteps is reached.
func RunEpisode(e env.Environment, agent Agent, opts EpisodeOptions) (Episode, error) {
	obs, info := e.Reset(env.ResetOptions{Seed: opts.Seed, StartPose: opts.StartPose})

	var ep Episode
	ep.FinalProgress = info.Progress
	for opts.MaxSteps <= 0 || ep.Steps < opts.MaxSteps {
		action := agent.Predict(obs).Clip()
		res, err := e.Step(action, opts.StepConfig)
		if err != nil {
			return ep, fmt.Errorf("step %d: %w", ep.Steps, err)
		}
		ep.Steps++
		ep.Return += res.Reward
		ep.FinalProgress = res.Info.Progress
		if res.Info.OffTrack {
			ep.OffTrackSteps++
		}
		if opts.Record {
			ep.Trajectory = append(ep.Trajectory, TrajectoryPoint{
				Step:         ep.Steps,
				X:            res.Info.X,
				Y:            res.Info.Y,
				Heading:      res.Info.Heading,
				Speed:        res.Info.Speed,
				Steering:     action.Steering,
				Throttle:     action.Throttle,
				Reward:       res.Reward,
				LateralError: res.Info.LateralError,
				Progress:     res.Info.Progress,
				OffTrack:     res.Info.OffTrack,
			})
		}
		obs = res.Obs
		if res.Done() {
			ep.Truncated = res.Truncated
			break
		}
	}
	return ep, nil
}
