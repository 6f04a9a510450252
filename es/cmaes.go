package es

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/optimize"
)

// CMAESConfig holds settings for the CMA-ES baseline searcher.
type CMAESConfig struct {
	MaxEvals     int     `yaml:"max_evals"`
	Population   int     `yaml:"population"` // 0 = gonum default
	InitStepSize float64 `yaml:"init_step_size"`
	Concurrent   int     `yaml:"concurrent"` // parallel evaluations, 0 = sequential
	Seed         int64   `yaml:"seed"`       // episode seed for every evaluation and the sampler seed
}

// DefaultCMAESConfig returns a small baseline budget.
func DefaultCMAESConfig() CMAESConfig {
	return CMAESConfig{
		MaxEvals:     2000,
		InitStepSize: 0.1,
		Seed:         42,
	}
}

// CMAESResult is the outcome of a CMA-ES run.
type CMAESResult struct {
	Best       []float64
	BestReturn float64
	Evals      int
	Status     string
}

// CMAES maximises obj with gonum's Cholesky CMA-ES, as a baseline against
// the ES optimizer. Every evaluation uses the same episode seed, so the
// objective is deterministic. onEval, if non-nil, is called after each
// evaluation with the running count and the return; it may be called from
// several goroutines but never concurrently.
func CMAES(ctx context.Context, obj Objective, init []float64, cfg CMAESConfig, onEval func(n int, ret float64)) (CMAESResult, error) {
	if len(init) == 0 {
		return CMAESResult{}, fmt.Errorf("empty initial parameters: %w", ErrConfig)
	}
	if cfg.MaxEvals <= 0 {
		return CMAESResult{}, fmt.Errorf("max_evals %d must be positive: %w", cfg.MaxEvals, ErrConfig)
	}

	n := max(cfg.Concurrent, 1)
	pool := make(chan Worker, n)
	for i := 0; i < n; i++ {
		w, err := obj.NewWorker()
		if err != nil {
			return CMAESResult{}, fmt.Errorf("creating worker %d: %w", i, err)
		}
		pool <- w
	}

	var (
		mu       sync.Mutex
		evals    int
		best     []float64
		bestRet  = math.Inf(-1)
		firstErr error
	)

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			w := <-pool
			r, err := w.Evaluate(Candidate{Center: x}, cfg.Seed)
			pool <- w

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return math.Inf(1)
			}
			evals++
			if r > bestRet {
				bestRet = r
				best = append(best[:0], x...)
			}
			if onEval != nil {
				onEval(evals, r)
			}
			return -r
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: cfg.MaxEvals,
		Concurrent:      cfg.Concurrent,
		Recorder:        &ctxRecorder{ctx: ctx},
	}
	method := &optimize.CmaEsChol{
		InitStepSize: cfg.InitStepSize,
		Population:   cfg.Population,
		Src:          rand.NewPCG(uint64(cfg.Seed), 0),
	}

	result, err := optimize.Minimize(problem, init, settings, method)

	mu.Lock()
	defer mu.Unlock()
	out := CMAESResult{Best: best, BestReturn: bestRet, Evals: evals}
	if result != nil {
		out.Status = result.Status.String()
	}
	if firstErr != nil {
		return out, firstErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, ctxErr
	}
	// Budget exhaustion is a status; anything else is reported with the
	// best point found so far.
	return out, err
}

// ctxRecorder stops the optimization once ctx is done.
type ctxRecorder struct {
	ctx context.Context
}

func (r *ctxRecorder) Init() error { return r.ctx.Err() }

func (r *ctxRecorder) Record(*optimize.Location, optimize.Operation, *optimize.Stats) error {
	return r.ctx.Err()
}
