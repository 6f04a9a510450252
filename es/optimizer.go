// Package es implements Evolution Strategies policy search: Gaussian
// perturbations of a center parameter vector, parallel scoring, and a
// fitness-weighted finite-difference update.
package es

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// minReturnStd is the spread below which a generation carries no ranking
// signal and the update is skipped.
const minReturnStd = 1e-8

// Generation summarises one optimizer step.
type Generation struct {
	Index        int       // 1-based
	Returns      []float64 // per member, in sample order
	Mean         float64
	Std          float64 // population standard deviation of Returns
	Min          float64
	Max          float64
	CenterReturn float64 // NaN unless EvalCenter
	StepNorm     float64 // L2 norm of the applied center update
	Skipped      bool    // update skipped for lack of variance
	Improved     bool    // a new best was recorded this generation
	Duration     time.Duration
}

// Optimizer owns the center vector and the evaluation workers.
// Its methods must not be called concurrently.
type Optimizer struct {
	cfg     Config
	center  []float64
	rng     *rand.Rand
	workers []Worker

	gen        int
	best       []float64
	bestReturn float64

	// Per-generation buffers, reused.
	noise   [][]float64
	seeds   []int64
	returns []float64
	grad    []float64
}

// New validates cfg and creates the workers. init is copied.
func New(cfg Config, obj Objective, init []float64) (*Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(init) == 0 {
		return nil, fmt.Errorf("empty initial parameters: %w", ErrConfig)
	}

	n := cfg.Workers
	if n == 0 {
		n = runtime.GOMAXPROCS(0)
	}
	n = min(n, cfg.Population)

	workers := make([]Worker, n)
	for i := range workers {
		w, err := obj.NewWorker()
		if err != nil {
			return nil, fmt.Errorf("creating worker %d: %w", i, err)
		}
		workers[i] = w
	}

	o := &Optimizer{
		cfg:        cfg,
		center:     append([]float64(nil), init...),
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		workers:    workers,
		bestReturn: math.Inf(-1),
		noise:      make([][]float64, cfg.Population),
		seeds:      make([]int64, cfg.Population),
		returns:    make([]float64, cfg.Population),
		grad:       make([]float64, len(init)),
	}
	for i := range o.noise {
		o.noise[i] = make([]float64, len(init))
	}
	return o, nil
}

// Config returns the optimizer settings.
func (o *Optimizer) Config() Config { return o.cfg }

// Center returns a copy of the current center vector.
func (o *Optimizer) Center() []float64 {
	return append([]float64(nil), o.center...)
}

// SetCenter replaces the center vector, e.g. to restart from an archived
// policy. The best-so-far record is kept.
func (o *Optimizer) SetCenter(params []float64) error {
	if len(params) != len(o.center) {
		return fmt.Errorf("center has %d params, want %d: %w", len(params), len(o.center), ErrConfig)
	}
	copy(o.center, params)
	return nil
}

// Restore resumes from a saved state: the center, the completed generation
// count and the best-so-far record. The sampler is reseeded from Seed and the
// generation so a resumed run does not replay the noise of earlier
// generations. best may be nil.
func (o *Optimizer) Restore(generation int, center, best []float64, bestReturn float64) error {
	if generation < 0 {
		return fmt.Errorf("generation %d must not be negative: %w", generation, ErrConfig)
	}
	if best != nil && len(best) != len(o.center) {
		return fmt.Errorf("best has %d params, want %d: %w", len(best), len(o.center), ErrConfig)
	}
	if err := o.SetCenter(center); err != nil {
		return err
	}
	o.gen = generation
	o.rng = rand.New(rand.NewSource(o.cfg.Seed + int64(generation)))
	o.best = nil
	o.bestReturn = bestReturn
	if best != nil {
		o.best = append([]float64(nil), best...)
	}
	return nil
}

// Generations returns the number of completed generations.
func (o *Optimizer) Generations() int { return o.gen }

// Best returns a copy of the best parameters seen and their return. Before
// any generation it returns nil and -Inf.
func (o *Optimizer) Best() ([]float64, float64) {
	if o.best == nil {
		return nil, o.bestReturn
	}
	return append([]float64(nil), o.best...), o.bestReturn
}

// Workers returns the number of concurrent evaluators.
func (o *Optimizer) Workers() int { return len(o.workers) }

// Run steps until cfg.Generations generations have completed (counting any
// restored ones), calling fn after each. It stops early if ctx is cancelled
// between generations or fn returns an error.
func (o *Optimizer) Run(ctx context.Context, fn func(Generation) error) error {
	for o.gen < o.cfg.Generations {
		g, err := o.Step(ctx)
		if err != nil {
			return err
		}
		if fn != nil {
			if err := fn(g); err != nil {
				return err
			}
		}
	}
	return nil
}

// Step runs one generation: sample, evaluate, wait for every member, update.
func (o *Optimizer) Step(ctx context.Context) (Generation, error) {
	if err := ctx.Err(); err != nil {
		return Generation{}, err
	}
	start := time.Now()

	o.sample()
	var centerSeed int64
	if o.cfg.EvalCenter {
		centerSeed = o.rng.Int63()
	}

	if err := o.evaluate(); err != nil {
		return Generation{}, err
	}

	o.gen++
	g := Generation{
		Index:        o.gen,
		Returns:      append([]float64(nil), o.returns...),
		Min:          floats.Min(o.returns),
		Max:          floats.Max(o.returns),
		CenterReturn: math.NaN(),
	}
	g.Mean, g.Std = stat.PopMeanStdDev(o.returns, nil)

	// Candidate for best when the center is not scored: the top member.
	var memberBest []float64
	if !o.cfg.EvalCenter {
		idx := floats.MaxIdx(o.returns)
		if o.returns[idx] > o.bestReturn {
			memberBest = make([]float64, len(o.center))
			Candidate{Center: o.center, Noise: o.noise[idx], Sigma: o.cfg.Sigma}.Materialize(memberBest)
			o.bestReturn = o.returns[idx]
			o.best = memberBest
			g.Improved = true
		}
	}

	if g.Std < minReturnStd {
		g.Skipped = true
		slog.Debug("skipping es update, no return variance", "generation", o.gen, "mean", g.Mean)
	} else {
		for i := range o.grad {
			o.grad[i] = 0
		}
		for i, r := range o.returns {
			floats.AddScaled(o.grad, (r-g.Mean)/g.Std, o.noise[i])
		}
		step := o.cfg.Alpha / (o.cfg.Sigma * float64(len(o.returns)))
		floats.AddScaled(o.center, step, o.grad)
		g.StepNorm = step * floats.Norm(o.grad, 2)
	}

	if o.cfg.EvalCenter {
		r, err := o.workers[0].Evaluate(Candidate{Center: o.center}, centerSeed)
		if err != nil {
			return Generation{}, fmt.Errorf("evaluating center: %w", err)
		}
		g.CenterReturn = r
		if r > o.bestReturn {
			o.bestReturn = r
			o.best = append(o.best[:0], o.center...)
			g.Improved = true
		}
	}

	g.Duration = time.Since(start)
	return g, nil
}

// sample draws this generation's noise vectors and episode seeds from the
// optimizer RNG, in member order, before any evaluation starts.
func (o *Optimizer) sample() {
	pop := o.cfg.Population
	if !o.cfg.Antithetic {
		for i := 0; i < pop; i++ {
			fillNormal(o.rng, o.noise[i])
			o.seeds[i] = o.rng.Int63()
		}
		return
	}

	// Mirrored pairs share an episode seed so the pair differs only in sign.
	i := 0
	for ; i+1 < pop; i += 2 {
		fillNormal(o.rng, o.noise[i])
		for j, v := range o.noise[i] {
			o.noise[i+1][j] = -v
		}
		seed := o.rng.Int63()
		o.seeds[i], o.seeds[i+1] = seed, seed
	}
	if i < pop {
		fillNormal(o.rng, o.noise[i])
		o.seeds[i] = o.rng.Int63()
	}
}

// evaluate scores every member on the worker pool and blocks until all are done.
func (o *Optimizer) evaluate() error {
	jobs := make(chan int)
	errs := make([]error, len(o.workers))

	var wg sync.WaitGroup
	for w, worker := range o.workers {
		wg.Add(1)
		go func(w int, worker Worker) {
			defer wg.Done()
			for i := range jobs {
				if errs[w] != nil {
					continue
				}
				c := Candidate{Center: o.center, Noise: o.noise[i], Sigma: o.cfg.Sigma}
				r, err := worker.Evaluate(c, o.seeds[i])
				if err != nil {
					errs[w] = fmt.Errorf("member %d: %w", i, err)
					continue
				}
				o.returns[i] = r
			}
		}(w, worker)
	}
	for i := range o.returns {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func fillNormal(rng *rand.Rand, dst []float64) {
	for i := range dst {
		dst[i] = rng.NormFloat64()
	}
}
