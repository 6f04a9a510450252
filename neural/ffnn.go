// Package neural provides the feed-forward driving policy, its observation
// normalizer and checkpoint persistence.
package neural

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/pthm-cable/racer/components"
)

// ErrParamCount is returned when a flat vector does not match the architecture.
var ErrParamCount = errors.New("parameter count mismatch")

// Architecture describes an input -> hidden -> hidden -> output network.
type Architecture struct {
	Inputs  int `json:"inputs" yaml:"inputs"`
	Hidden  int `json:"hidden" yaml:"hidden"`
	Outputs int `json:"outputs" yaml:"outputs"`
}

// layerShapes returns (rows, cols) = (out, in) for the three weight matrices.
func (a Architecture) layerShapes() [3][2]int {
	return [3][2]int{
		{a.Hidden, a.Inputs},
		{a.Hidden, a.Hidden},
		{a.Outputs, a.Hidden},
	}
}

// ParamCount is the length of the flat parameter vector.
func (a Architecture) ParamCount() int {
	n := 0
	for _, s := range a.layerShapes() {
		n += s[0]*s[1] + s[0]
	}
	return n
}

// Validate checks that every dimension is positive.
func (a Architecture) Validate() error {
	if a.Inputs <= 0 || a.Hidden <= 0 || a.Outputs <= 0 {
		return fmt.Errorf("architecture %+v: dimensions must be positive", a)
	}
	return nil
}

// Weights is the unflattened form of a parameter vector.
// Flat layout: W1, B1, W2, B2, W3, B3 with each W stored row-major as (out, in).
type Weights struct {
	W [3]*mat.Dense
	B [3]*mat.VecDense
}

// Unflatten decomposes flat into weight matrices and bias vectors. The result
// shares memory with flat.
func Unflatten(arch Architecture, flat []float64) (Weights, error) {
	if len(flat) != arch.ParamCount() {
		return Weights{}, fmt.Errorf("unflatten: got %d values, want %d: %w", len(flat), arch.ParamCount(), ErrParamCount)
	}
	var w Weights
	off := 0
	for i, s := range arch.layerShapes() {
		rows, cols := s[0], s[1]
		w.W[i] = mat.NewDense(rows, cols, flat[off:off+rows*cols:off+rows*cols])
		off += rows * cols
		w.B[i] = mat.NewVecDense(rows, flat[off:off+rows:off+rows])
		off += rows
	}
	return w, nil
}

// Flatten concatenates the weights into a new flat vector.
func Flatten(w Weights) []float64 {
	var n int
	for i := range w.W {
		r, c := w.W[i].Dims()
		n += r*c + w.B[i].Len()
	}
	out := make([]float64, 0, n)
	for i := range w.W {
		r, c := w.W[i].Dims()
		for row := 0; row < r; row++ {
			for col := 0; col < c; col++ {
				out = append(out, w.W[i].At(row, col))
			}
		}
		for j := 0; j < w.B[i].Len(); j++ {
			out = append(out, w.B[i].AtVec(j))
		}
	}
	return out
}

// Policy is a three-layer tanh network with online observation normalization.
// The weights are views over a single flat buffer owned by the policy.
// A Policy is not safe for concurrent use.
type Policy struct {
	arch    Architecture
	cfg     Config
	params  []float64
	weights Weights
	norm    *Normalizer

	// Forward-pass scratch.
	in  *mat.VecDense
	h1  *mat.VecDense
	h2  *mat.VecDense
	out *mat.VecDense
	obs []float64
}

// NewPolicy creates a policy with all weights zero.
func NewPolicy(arch Architecture, cfg Config) (*Policy, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	p := &Policy{
		arch:   arch,
		cfg:    cfg,
		params: make([]float64, arch.ParamCount()),
		norm:   NewNormalizer(arch.Inputs, cfg.NormWarmup, cfg.MinDeviation),
		in:     mat.NewVecDense(arch.Inputs, nil),
		h1:     mat.NewVecDense(arch.Hidden, nil),
		h2:     mat.NewVecDense(arch.Hidden, nil),
		out:    mat.NewVecDense(arch.Outputs, nil),
		obs:    make([]float64, arch.Inputs),
	}
	p.weights, _ = Unflatten(arch, p.params)
	return p, nil
}

// NewRandomPolicy creates a policy with N(0, cfg.InitScale^2) weights and biases.
func NewRandomPolicy(arch Architecture, cfg Config, rng *rand.Rand) (*Policy, error) {
	p, err := NewPolicy(arch, cfg)
	if err != nil {
		return nil, err
	}
	for i := range p.params {
		p.params[i] = rng.NormFloat64() * cfg.InitScale
	}
	return p, nil
}

// Architecture returns the network shape.
func (p *Policy) Architecture() Architecture { return p.arch }

// Config returns the policy settings.
func (p *Policy) Config() Config { return p.cfg }

// NumParams returns the flat parameter count.
func (p *Policy) NumParams() int { return len(p.params) }

// Params returns a copy of the flat parameter vector.
func (p *Policy) Params() []float64 {
	out := make([]float64, len(p.params))
	copy(out, p.params)
	return out
}

// SetParams copies flat into the policy's parameter buffer.
func (p *Policy) SetParams(flat []float64) error {
	if len(flat) != len(p.params) {
		return fmt.Errorf("set params: got %d values, want %d: %w", len(flat), len(p.params), ErrParamCount)
	}
	copy(p.params, flat)
	return nil
}

// SetPerturbed writes center + sigma*noise into the policy's own buffer.
// center is only read, so one center vector can back many policies.
func (p *Policy) SetPerturbed(center, noise []float64, sigma float64) error {
	if len(center) != len(p.params) || len(noise) != len(p.params) {
		return fmt.Errorf("set perturbed: got %d/%d values, want %d: %w", len(center), len(noise), len(p.params), ErrParamCount)
	}
	floats.AddScaledTo(p.params, center, sigma, noise)
	return nil
}

// Weights returns matrix views over the live parameters.
func (p *Policy) Weights() Weights { return p.weights }

// Normalizer returns the observation normalizer.
func (p *Policy) Normalizer() *Normalizer { return p.norm }

// ResetNormalizer restores the normalizer to identity without touching weights.
func (p *Policy) ResetNormalizer() { p.norm.Reset() }

// Forward runs the network on an already-normalized input and returns the
// tanh outputs. The returned slice is reused by the next call.
func (p *Policy) Forward(x []float64) []float64 {
	copy(p.in.RawVector().Data, x)

	w := p.weights
	p.h1.MulVec(w.W[0], p.in)
	p.h1.AddVec(p.h1, w.B[0])
	tanhInPlace(p.h1.RawVector().Data)

	p.h2.MulVec(w.W[1], p.h1)
	p.h2.AddVec(p.h2, w.B[1])
	tanhInPlace(p.h2.RawVector().Data)

	p.out.MulVec(w.W[2], p.h2)
	p.out.AddVec(p.out, w.B[2])
	tanhInPlace(p.out.RawVector().Data)

	return p.out.RawVector().Data
}

// Predict normalizes the observation (updating the running statistics) and
// maps the network output to an action. Steering is output 0; throttle is
// output 1 rescaled from [-1, 1] to [0, 1] and floored at MinThrottle.
func (p *Policy) Predict(obs components.Observation) components.Action {
	p.norm.Observe(obs[:], p.obs)
	out := p.Forward(p.obs)

	throttle := (out[1] + 1) / 2
	if throttle < p.cfg.MinThrottle {
		throttle = p.cfg.MinThrottle
	}
	return components.Action{Steering: out[0], Throttle: throttle}
}

// Clone returns an independent copy including normalizer state.
func (p *Policy) Clone() *Policy {
	c, _ := NewPolicy(p.arch, p.cfg)
	copy(c.params, p.params)
	c.norm.SetState(p.norm.State())
	return c
}

func tanhInPlace(v []float64) {
	for i, x := range v {
		v[i] = math.Tanh(x)
	}
}
