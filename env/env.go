// Package env couples track, vehicle and reward strategy into an episodic
// driving environment with sensor-corruption hooks.
package env

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/pthm-cable/racer/components"
	"github.com/pthm-cable/racer/physics"
	"github.com/pthm-cable/racer/reward"
	"github.com/pthm-cable/racer/track"
)

// DefaultMaxSteps is the episode step budget.
const DefaultMaxSteps = 1000

// DefaultOffTrackSpeedFactor is the soft-crash speed multiplier.
const DefaultOffTrackSpeedFactor = 0.2

var (
	ErrNotReset      = errors.New("step called before reset")
	ErrEpisodeDone   = errors.New("step called after episode end")
	ErrBadStepConfig = errors.New("invalid step config")
)

// Config holds episode settings.
type Config struct {
	MaxSteps            int           `yaml:"max_steps"`
	RewardDelay         int           `yaml:"reward_delay"`          // steps between a reward being earned and emitted
	OffTrackSpeedFactor float64       `yaml:"offtrack_speed_factor"` // speed multiplier applied while off track
	RandomStart         bool          `yaml:"random_start"`          // start each episode at a random centerline pose
	RegenerateOnReset   bool          `yaml:"regenerate_on_reset"`   // draw a private random-layout centerline every episode
	Surface             SurfaceConfig `yaml:"surface"`
}

// DefaultConfig returns the standard episode settings.
func DefaultConfig() Config {
	return Config{
		MaxSteps:            DefaultMaxSteps,
		OffTrackSpeedFactor: DefaultOffTrackSpeedFactor,
		Surface:             DefaultSurfaceConfig(),
	}
}

// Phase is the episode lifecycle state.
type Phase int

const (
	PhaseIdle    Phase = iota // constructed, never reset
	PhaseReady                // reset, no steps taken
	PhaseRunning              // at least one step taken
	PhaseDone                 // terminated or truncated
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseReady:
		return "ready"
	case PhaseRunning:
		return "running"
	case PhaseDone:
		return "done"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// ResetOptions controls episode initialisation. Nil fields use defaults.
type ResetOptions struct {
	Seed      *int64           // reseeds the environment RNG
	StartPose *components.Pose // explicit start pose, overrides RandomStart
}

// StepConfig carries per-step perturbations. A nil *StepConfig means none.
type StepConfig struct {
	Friction *float64  // replaces the friction for this step only
	Noise    []float64 // added to the returned observation; length must be NumObs
	Mask     []int     // observation indices forced to zero after noise
}

// Validate checks noise length and mask indices.
func (c *StepConfig) Validate() error {
	if c == nil {
		return nil
	}
	if c.Noise != nil && len(c.Noise) != components.NumObs {
		return fmt.Errorf("noise has %d values, want %d: %w", len(c.Noise), components.NumObs, ErrBadStepConfig)
	}
	for _, idx := range c.Mask {
		if idx < 0 || idx >= components.NumObs {
			return fmt.Errorf("mask index %d out of range: %w", idx, ErrBadStepConfig)
		}
	}
	if c.Friction != nil && (math.IsNaN(*c.Friction) || *c.Friction < 0) {
		return fmt.Errorf("friction %v: %w", *c.Friction, ErrBadStepConfig)
	}
	return nil
}

// StepResult is everything a step returns.
type StepResult struct {
	Obs        components.Observation
	Reward     float64
	Terminated bool
	Truncated  bool
	Info       components.Info
}

// Done reports whether the episode ended on this step.
func (r StepResult) Done() bool { return r.Terminated || r.Truncated }

// Environment is the reset/step contract shared by Env and its wrappers.
type Environment interface {
	Reset(opts ResetOptions) (components.Observation, components.Info)
	Step(action components.Action, cfg *StepConfig) (StepResult, error)
}

// Env is a single-vehicle driving environment. It is not safe for concurrent
// use. The track may be shared read-only between environments; regeneration
// swaps in a private copy.
type Env struct {
	cfg      Config
	track    *track.Track
	dyn      *physics.Dynamics
	strategy reward.Strategy
	surface  *Surface
	rng      *rand.Rand

	phase   Phase
	steps   int
	pending []float64 // reward delay FIFO
}

// New creates an environment. The vehicle starts idle; call Reset first.
func New(trk *track.Track, vehicle physics.Params, strategy reward.Strategy, cfg Config) *Env {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	e := &Env{
		cfg:      cfg,
		track:    trk,
		dyn:      physics.NewDynamics(vehicle),
		strategy: strategy,
		rng:      rand.New(rand.NewSource(1)),
	}
	if cfg.Surface.Enabled {
		e.surface = NewSurface(cfg.Surface, vehicle.Friction)
	}
	return e
}

// Track returns the track the environment drives on.
func (e *Env) Track() *track.Track { return e.track }

// Config returns the episode settings.
func (e *Env) Config() Config { return e.cfg }

// Phase returns the lifecycle state.
func (e *Env) Phase() Phase { return e.phase }

// Steps returns the number of steps taken in the current episode.
func (e *Env) Steps() int { return e.steps }

// State returns the current vehicle state.
func (e *Env) State() components.VehicleState { return e.dyn.State() }

// Surface returns the friction field, or nil when disabled.
func (e *Env) Surface() *Surface { return e.surface }

// Reset starts a new episode.
func (e *Env) Reset(opts ResetOptions) (components.Observation, components.Info) {
	if opts.Seed != nil {
		e.rng.Seed(*opts.Seed)
	}
	if e.cfg.RegenerateOnReset {
		e.setTrack(e.track.Regenerated(e.rng))
	}

	var pose components.Pose
	switch {
	case opts.StartPose != nil:
		pose = *opts.StartPose
	case e.cfg.RandomStart:
		pose = e.track.PoseAt(e.rng.Intn(e.track.Len()))
	default:
		pose = e.track.StartPose()
	}

	e.dyn.Reset(pose)
	e.strategy.Reset()
	e.steps = 0
	e.phase = PhaseReady

	e.pending = e.pending[:0]
	for i := 0; i < e.cfg.RewardDelay; i++ {
		e.pending = append(e.pending, 0)
	}

	obs, info := e.observe()
	return obs, info
}

// RegenerateTrack replaces this environment's track with a fresh procedural
// centerline drawn from the environment RNG, then resets. Other environments
// built on the same track are unaffected. Fixed layouts keep their centerline.
func (e *Env) RegenerateTrack() (components.Observation, components.Info) {
	if e.track.Layout() != track.LayoutRandom {
		slog.Warn("cannot regenerate fixed track layout", "layout", e.track.Layout())
	}
	e.setTrack(e.track.Regenerated(e.rng))
	return e.Reset(ResetOptions{})
}

func (e *Env) setTrack(trk *track.Track) {
	if trk == e.track {
		return
	}
	e.track = trk
	if ta, ok := e.strategy.(reward.TrackAware); ok {
		ta.SetTrack(trk)
	}
}

// Step advances the episode by one control step.
func (e *Env) Step(action components.Action, cfg *StepConfig) (StepResult, error) {
	switch e.phase {
	case PhaseIdle:
		return StepResult{}, ErrNotReset
	case PhaseDone:
		return StepResult{}, ErrEpisodeDone
	}
	if err := cfg.Validate(); err != nil {
		return StepResult{}, err
	}

	a := action.Clip()
	prev := e.dyn.State()

	var friction *float64
	switch {
	case cfg != nil && cfg.Friction != nil:
		friction = cfg.Friction
	case e.surface != nil:
		f := e.surface.FrictionAt(prev.X, prev.Y)
		friction = &f
	}
	state := e.dyn.Step(a.Steering, a.Throttle, friction)
	e.steps++
	e.phase = PhaseRunning

	obs, info := e.observe()
	corrupt(&obs, cfg)

	raw := e.strategy.Compute(state, a, info)

	r := raw
	if e.cfg.RewardDelay > 0 {
		e.pending = append(e.pending, raw)
		r = e.pending[0]
		e.pending = e.pending[1:]
	}

	if info.OffTrack {
		e.dyn.ScaleSpeed(e.cfg.OffTrackSpeedFactor)
	}

	res := StepResult{
		Obs:       obs,
		Reward:    r,
		Truncated: e.steps >= e.cfg.MaxSteps,
		Info:      info,
	}
	if res.Done() {
		e.phase = PhaseDone
	}
	return res, nil
}

// observe builds the clean observation and info for the current state.
func (e *Env) observe() (components.Observation, components.Info) {
	s := e.dyn.State()
	proj := e.track.ClosestPointInfo(s.X, s.Y)
	headingErr := physics.WrapAngle(s.Heading - proj.Tangent)

	var obs components.Observation
	obs[components.ObsLateralError] = proj.SignedOffset
	obs[components.ObsHeadingError] = headingErr
	obs[components.ObsSpeed] = s.Speed
	obs[components.ObsCurvature] = proj.Curvature

	info := components.Info{
		X:            s.X,
		Y:            s.Y,
		Heading:      s.Heading,
		Speed:        s.Speed,
		OffTrack:     math.Abs(proj.SignedOffset) > e.track.Width()/2,
		LateralError: proj.SignedOffset,
		HeadingError: headingErr,
		Progress:     e.track.Progress(proj.Index),
	}
	return obs, info
}

// corrupt applies additive noise, then masking.
func corrupt(obs *components.Observation, cfg *StepConfig) {
	if cfg == nil {
		return
	}
	for i, n := range cfg.Noise {
		obs[i] += n
	}
	for _, idx := range cfg.Mask {
		obs[idx] = 0
	}
}
