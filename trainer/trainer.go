// Package trainer drives policy search runs: it wires the configured track,
// environments and optimizer together and streams telemetry as generations
// complete.
package trainer

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/pthm-cable/racer/config"
	"github.com/pthm-cable/racer/env"
	"github.com/pthm-cable/racer/es"
	"github.com/pthm-cable/racer/eval"
	"github.com/pthm-cable/racer/neural"
	"github.com/pthm-cable/racer/telemetry"
	"github.com/pthm-cable/racer/track"
)

// Options holds per-run settings that are not part of the config file.
type Options struct {
	LogStats    bool   // log generation summaries and bookmarks
	OutputDir   string // overrides telemetry.output when set
	SnapshotDir string // bookmark snapshots, empty disables
	Resume      string // snapshot file to resume from
	Episodes    int    // rollouts averaged per candidate, default 1
}

// Result summarises a finished run.
type Result struct {
	Generations int
	Evals       int // CMA-ES only
	BestReturn  float64
	Best        *neural.Policy // normalizer warmed by BestEpisode
	BestEpisode eval.Episode
	OutputDir   string
}

// Trainer holds the complete training state.
type Trainer struct {
	cfg  *config.Config
	opts Options

	trk     *track.Track
	newEnv  eval.EnvFactory
	evalEnv env.Environment // replays best policies for checkpoints
	obj     *es.RolloutObjective
	opt     *es.Optimizer

	// Telemetry
	outputManager    *telemetry.OutputManager
	perfCollector    *telemetry.PerfCollector
	bookmarkDetector *telemetry.BookmarkDetector
	hallOfFame       *telemetry.HallOfFame
	statsCallback    func(telemetry.GenerationStats)
	rows             []telemetry.GenerationStats

	start time.Time
}

// New builds a trainer from cfg. With opts.Resume set, the optimizer state
// is restored from that snapshot.
func New(cfg *config.Config, opts Options) (*Trainer, error) {
	trk, err := cfg.NewTrack()
	if err != nil {
		return nil, fmt.Errorf("building track: %w", err)
	}
	newEnv, err := cfg.EnvFactory(trk)
	if err != nil {
		return nil, err
	}
	evalEnv, err := newEnv()
	if err != nil {
		return nil, err
	}

	obj := cfg.Objective(newEnv, opts.Episodes)
	init, err := cfg.InitialParams(cfg.ES.Seed)
	if err != nil {
		return nil, err
	}
	opt, err := es.New(cfg.ES, obj, init)
	if err != nil {
		return nil, err
	}

	t := &Trainer{
		cfg:              cfg,
		opts:             opts,
		trk:              trk,
		newEnv:           newEnv,
		evalEnv:          evalEnv,
		obj:              obj,
		opt:              opt,
		perfCollector:    telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		bookmarkDetector: telemetry.NewBookmarkDetector(cfg.Telemetry.BookmarkHistory),
		hallOfFame:       telemetry.NewHallOfFame(cfg.Telemetry.HallOfFameSize, rand.New(rand.NewSource(cfg.ES.Seed))),
	}

	if opts.Resume != "" {
		if err := t.resume(opts.Resume); err != nil {
			return nil, err
		}
	}

	outDir := cfg.Telemetry.Output
	if opts.OutputDir != "" {
		outDir = opts.OutputDir
	}
	om, err := telemetry.NewOutputManager(outDir)
	if err != nil {
		return nil, err
	}
	if err := om.WriteConfig(cfg); err != nil {
		om.Close()
		return nil, err
	}
	t.outputManager = om

	return t, nil
}

func (t *Trainer) resume(path string) error {
	snap, err := telemetry.LoadSnapshot(path)
	if err != nil {
		return err
	}
	if err := snap.Validate(t.cfg.Derived.NumParams); err != nil {
		return fmt.Errorf("resume %s: %w", path, err)
	}
	if snap.Seed != t.cfg.ES.Seed {
		slog.Warn("resuming with a different optimizer seed", "snapshot_seed", snap.Seed, "config_seed", t.cfg.ES.Seed)
	}
	if err := t.opt.Restore(snap.Generation, snap.Center, snap.Best, snap.BestReturn); err != nil {
		return err
	}
	slog.Info("resumed", "path", path, "generation", snap.Generation, "best_return", snap.BestReturn)
	return nil
}

// SetStatsCallback registers fn to receive every generation's stats.
func (t *Trainer) SetStatsCallback(fn func(telemetry.GenerationStats)) {
	t.statsCallback = fn
}

// Track returns the track being trained on.
func (t *Trainer) Track() *track.Track { return t.trk }

// OutputDir returns the run directory, or "" when output is disabled.
func (t *Trainer) OutputDir() string { return t.outputManager.Dir() }

// Optimizer exposes the underlying ES optimizer.
func (t *Trainer) Optimizer() *es.Optimizer { return t.opt }

// Run trains with ES until the configured generation count or until ctx is
// cancelled. On cancellation the final artifacts are still written and the
// context error is returned alongside the result.
func (t *Trainer) Run(ctx context.Context) (Result, error) {
	t.start = time.Now()
	slog.Info("starting es training",
		"population", t.cfg.ES.Population,
		"sigma", t.cfg.ES.Sigma,
		"alpha", t.cfg.ES.Alpha,
		"generations", t.cfg.ES.Generations,
		"params", t.cfg.Derived.NumParams,
		"workers", t.opt.Workers(),
		"output", t.outputManager.Dir(),
	)

	t.perfCollector.StartGeneration()
	t.perfCollector.StartPhase(telemetry.PhaseEvaluate)
	runErr := t.opt.Run(ctx, t.onGeneration)

	best, bestReturn := t.opt.Best()
	res := Result{
		Generations: t.opt.Generations(),
		BestReturn:  bestReturn,
		OutputDir:   t.outputManager.Dir(),
	}
	if best == nil {
		return res, runErr
	}

	if err := t.finish(&res, best); err != nil && runErr == nil {
		runErr = err
	}
	return res, runErr
}

// finish writes the final checkpoints, trajectory and plots.
func (t *Trainer) finish(res *Result, best []float64) error {
	latest, _, err := t.replay(t.opt.Center())
	if err != nil {
		return err
	}
	if _, err := t.outputManager.WriteCheckpoint("latest", latest); err != nil {
		return err
	}

	p, ep, err := t.replay(best)
	if err != nil {
		return err
	}
	res.Best = p
	res.BestEpisode = ep

	if _, err := t.outputManager.WriteCheckpoint("best", p); err != nil {
		return err
	}
	if err := t.outputManager.WriteTrajectory("", telemetry.TrajectoryRows(ep)); err != nil {
		return err
	}
	if err := t.outputManager.WriteHallOfFame(t.hallOfFame); err != nil {
		return err
	}
	if t.outputManager != nil {
		if err := telemetry.PlotTrajectory(t.outputManager.Path("trajectory.png"), t.episodeTrack(), ep); err != nil {
			return err
		}
		if len(t.rows) > 0 {
			if err := telemetry.PlotLearningCurve(t.outputManager.Path("learning_curve.png"), t.rows); err != nil {
				return err
			}
		}
	}

	slog.Info("training finished",
		"generations", res.Generations,
		"best_return", res.BestReturn,
		"replay_return", ep.Return,
		"replay_steps", ep.Steps,
		"elapsed", time.Since(t.start).Round(time.Millisecond),
	)
	return nil
}

// replay loads params into a fresh policy and drives one recorded episode
// on the evaluation environment, warming the normalizer.
func (t *Trainer) replay(params []float64) (*neural.Policy, eval.Episode, error) {
	return es.PolicyFromCenter(t.evalEnv, t.cfg.Derived.Architecture, t.cfg.Policy, params, t.cfg.ES.Seed)
}

// episodeTrack returns the track the evaluation environment last drove on,
// which differs from the configured one under env.regenerate_on_reset.
func (t *Trainer) episodeTrack() *track.Track {
	if e, ok := t.evalEnv.(interface{ Track() *track.Track }); ok {
		return e.Track()
	}
	return t.trk
}

// Close flushes and closes output files.
func (t *Trainer) Close() error {
	return t.outputManager.Close()
}
