package neural

import "math"

// Normalizer tracks a running mean and running mean absolute deviation per
// input dimension. The learning rate decays as 1/min(count, warmup), so early
// samples move the statistics quickly and later ones settle into an
// exponential average.
type Normalizer struct {
	mean   []float64
	dev    []float64
	count  int
	warmup int
	minDev float64
}

// NormalizerState is the persisted form of a Normalizer.
type NormalizerState struct {
	Mean  []float64
	Dev   []float64
	Count int
}

// NewNormalizer returns an identity normalizer (mean 0, deviation 1).
func NewNormalizer(dim, warmup int, minDev float64) *Normalizer {
	if warmup < 1 {
		warmup = 1
	}
	n := &Normalizer{
		mean:   make([]float64, dim),
		dev:    make([]float64, dim),
		warmup: warmup,
		minDev: minDev,
	}
	n.Reset()
	return n
}

// Dim returns the number of input dimensions.
func (n *Normalizer) Dim() int { return len(n.mean) }

// Count returns the number of samples seen since the last reset.
func (n *Normalizer) Count() int { return n.count }

// Reset restores mean 0, deviation 1, count 0.
func (n *Normalizer) Reset() {
	for i := range n.mean {
		n.mean[i] = 0
		n.dev[i] = 1
	}
	n.count = 0
}

// Observe folds x into the statistics and writes the normalized sample to dst.
// dst may alias x.
func (n *Normalizer) Observe(x, dst []float64) {
	n.count++
	alpha := 1 / float64(min(n.count, n.warmup))
	for i, v := range x {
		n.mean[i] = (1-alpha)*n.mean[i] + alpha*v
		n.dev[i] = (1-alpha)*n.dev[i] + alpha*math.Abs(v-n.mean[i])
		if n.dev[i] < n.minDev {
			n.dev[i] = n.minDev
		}
		dst[i] = (v - n.mean[i]) / n.dev[i]
	}
}

// Normalize writes the normalized sample to dst without updating statistics.
func (n *Normalizer) Normalize(x, dst []float64) {
	for i, v := range x {
		dst[i] = (v - n.mean[i]) / n.dev[i]
	}
}

// State returns a copy of the statistics.
func (n *Normalizer) State() NormalizerState {
	s := NormalizerState{
		Mean:  make([]float64, len(n.mean)),
		Dev:   make([]float64, len(n.dev)),
		Count: n.count,
	}
	copy(s.Mean, n.mean)
	copy(s.Dev, n.dev)
	return s
}

// SetState replaces the statistics. Slices shorter than Dim leave the
// remaining entries unchanged. Deviations are floored at the minimum like
// Observe does.
func (n *Normalizer) SetState(s NormalizerState) {
	copy(n.mean, s.Mean)
	copy(n.dev, s.Dev)
	for i, d := range n.dev {
		if !(d >= n.minDev) { // NaN too
			n.dev[i] = n.minDev
		}
	}
	n.count = max(s.Count, 0)
}
