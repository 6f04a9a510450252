// Package reward provides swappable scoring strategies for the driving
// environment.
package reward

import (
	"errors"
	"fmt"
	"sort"

	"github.com/pthm-cable/racer/components"
	"github.com/pthm-cable/racer/track"
)

// Strategy scores one environment step. Implementations may keep per-episode
// state; Reset clears it at the start of each episode. A Strategy instance
// belongs to a single environment and is not safe for concurrent use.
type Strategy interface {
	Compute(state components.VehicleState, action components.Action, info components.Info) float64
	Reset()
}

// Strategy names understood by New.
const (
	NameControl     = "control"
	NameProgress    = "progress"
	NameSpeed       = "speed"
	NameAlignment   = "alignment"
	NameExploit     = "exploit"
	NameSensitivity = "sensitivity"
)

// ErrUnknownStrategy is returned by New for an unrecognised name.
var ErrUnknownStrategy = errors.New("unknown reward strategy")

// Params holds the tunable weights for every strategy in the catalog.
type Params struct {
	Control     ControlParams `yaml:"control"`
	SafetyCoeff float64       `yaml:"safety_coeff"` // sensitivity strategy lateral weight
}

// DefaultParams returns the standard weights.
func DefaultParams() Params {
	return Params{
		Control:     DefaultControlParams(),
		SafetyCoeff: 1.0,
	}
}

// TrackAware is implemented by strategies that read the track directly and
// must follow the environment when it swaps in a regenerated one.
type TrackAware interface {
	SetTrack(trk *track.Track)
}

// Factory builds a fresh strategy. Environments running in parallel each call
// it to get their own instance.
type Factory func() Strategy

type constructor func(p Params, trk *track.Track) Strategy

var registry = map[string]constructor{
	NameControl: func(p Params, _ *track.Track) Strategy { return NewControl(p.Control) },
	NameProgress: func(_ Params, trk *track.Track) Strategy {
		return NewProgress(trk)
	},
	NameSpeed:     func(Params, *track.Track) Strategy { return Speed{} },
	NameAlignment: func(Params, *track.Track) Strategy { return Alignment{} },
	NameExploit:   func(p Params, _ *track.Track) Strategy { return NewExploit(p.Control) },
	NameSensitivity: func(p Params, _ *track.Track) Strategy {
		return Sensitivity{SafetyCoeff: p.SafetyCoeff}
	},
}

// New builds the named strategy. trk is needed by the track-aware variants.
func New(name string, p Params, trk *track.Track) (Strategy, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("reward %q: %w", name, ErrUnknownStrategy)
	}
	if name == NameProgress && trk == nil {
		return nil, fmt.Errorf("reward %q: needs a track", name)
	}
	return ctor(p, trk), nil
}

// NewFactory validates the name once and returns a Factory for it.
func NewFactory(name string, p Params, trk *track.Track) (Factory, error) {
	if _, err := New(name, p, trk); err != nil {
		return nil, err
	}
	ctor := registry[name]
	return func() Strategy { return ctor(p, trk) }, nil
}

// Names lists the registered strategies in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
