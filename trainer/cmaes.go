package trainer

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/pthm-cable/racer/es"
	"github.com/pthm-cable/racer/telemetry"
)

// RunCMAES searches the same policy space with CMA-ES instead of ES. Every
// evaluation is appended to cmaes.csv; the best point found is replayed and
// written like an ES result.
func (t *Trainer) RunCMAES(ctx context.Context) (Result, error) {
	t.start = time.Now()
	cfg := t.cfg.CMAES
	slog.Info("starting cmaes search",
		"max_evals", cfg.MaxEvals,
		"init_step_size", cfg.InitStepSize,
		"params", t.cfg.Derived.NumParams,
		"output", t.outputManager.Dir(),
	)

	bestSoFar := math.Inf(-1)
	logEvery := max(t.cfg.Telemetry.LogEvery, 1) * max(t.cfg.ES.Population, 1)
	onEval := func(n int, ret float64) {
		bestSoFar = max(bestSoFar, ret)
		row := telemetry.CMAESEvalRow{
			Eval:       n,
			ElapsedSec: time.Since(t.start).Seconds(),
			Return:     ret,
			BestReturn: bestSoFar,
		}
		if err := t.outputManager.WriteCMAESEval(row); err != nil {
			slog.Error("failed to write cmaes eval", "error", err)
		}
		if t.opts.LogStats && n%logEvery == 0 {
			slog.Info("cmaes", "evals", n, "return", ret, "best_return", bestSoFar)
		}
	}

	out, runErr := es.CMAES(ctx, t.obj, t.opt.Center(), cfg, onEval)
	res := Result{
		Evals:      out.Evals,
		BestReturn: out.BestReturn,
		OutputDir:  t.outputManager.Dir(),
	}
	slog.Info("cmaes finished", "evals", out.Evals, "best_return", out.BestReturn, "status", out.Status)
	if out.Best == nil {
		return res, runErr
	}

	// The ES center doubles as the latest checkpoint holder.
	if err := t.opt.SetCenter(out.Best); err != nil {
		return res, err
	}
	if err := t.finish(&res, out.Best); err != nil && runErr == nil {
		runErr = err
	}
	return res, runErr
}
