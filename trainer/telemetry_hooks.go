package trainer

import (
	"log/slog"
	"time"

	"github.com/pthm-cable/racer/es"
	"github.com/pthm-cable/racer/telemetry"
)

// onGeneration records one finished generation: CSV rows, bookmarks,
// checkpoints and plots. Output failures are logged and never stop training.
func (t *Trainer) onGeneration(g es.Generation) error {
	t.perfCollector.AddRollouts(t.rolloutsPerGeneration())
	t.perfCollector.StartPhase(telemetry.PhaseTelemetry)

	_, bestReturn := t.opt.Best()
	stats := telemetry.NewGenerationStats(g, bestReturn, time.Since(t.start))
	t.rows = append(t.rows, stats)

	if t.statsCallback != nil {
		t.statsCallback(stats)
	}

	if t.opts.LogStats && (t.cfg.Telemetry.LogEvery <= 1 || g.Index%t.cfg.Telemetry.LogEvery == 0) {
		stats.LogStats()
	}

	if err := t.outputManager.WriteGeneration(stats); err != nil {
		slog.Error("failed to write generation", "error", err)
	}

	t.handleBookmarks(stats)

	t.perfCollector.StartPhase(telemetry.PhaseCheckpoint)
	if g.Improved {
		t.archiveBest(g.Index)
	}
	if every := t.cfg.ES.CheckpointEvery; every > 0 && g.Index%every == 0 {
		t.checkpoint(g.Index)
	}

	t.perfCollector.StartPhase(telemetry.PhasePlot)
	if every := t.cfg.Telemetry.PlotEvery; every > 0 && g.Index%every == 0 && t.outputManager != nil {
		if err := telemetry.PlotLearningCurve(t.outputManager.Path("learning_curve.png"), t.rows); err != nil {
			slog.Error("failed to plot learning curve", "error", err)
		}
	}

	t.perfCollector.EndGeneration()
	perfStats := t.perfCollector.Stats()
	if t.opts.LogStats && (t.cfg.Telemetry.LogEvery <= 1 || g.Index%t.cfg.Telemetry.LogEvery == 0) {
		perfStats.LogStats()
	}
	if err := t.outputManager.WritePerf(perfStats, g.Index); err != nil {
		slog.Error("failed to write perf", "error", err)
	}

	t.perfCollector.StartGeneration()
	t.perfCollector.StartPhase(telemetry.PhaseEvaluate)
	return nil
}

func (t *Trainer) rolloutsPerGeneration() int {
	n := t.cfg.ES.Population
	if t.cfg.ES.EvalCenter {
		n++
	}
	return n * max(t.opts.Episodes, 1)
}

// handleBookmarks checks for notable generations, records them, and reseeds
// the center from the hall of fame after a collapse when configured to.
func (t *Trainer) handleBookmarks(stats telemetry.GenerationStats) {
	for _, bm := range t.bookmarkDetector.Check(stats) {
		if t.opts.LogStats {
			bm.LogBookmark()
		}

		if err := t.outputManager.WriteBookmark(bm); err != nil {
			slog.Error("failed to write bookmark", "error", err)
		}

		if t.opts.SnapshotDir != "" {
			t.saveSnapshot(t.opts.SnapshotDir, &bm)
		}

		if bm.Type == telemetry.BookmarkCollapse && t.cfg.Telemetry.ReseedOnCollapse {
			t.reseedFromHall()
		}
	}
}

// reseedFromHall moves the center to a tournament-selected archived policy.
func (t *Trainer) reseedFromHall() {
	entry := t.hallOfFame.Sample()
	if entry == nil {
		slog.Warn("hall_of_fame_empty", "message", "no archived policy to reseed from")
		return
	}
	if err := t.opt.SetCenter(entry.Checkpoint.Weights); err != nil {
		slog.Error("hall_of_fame_reseed failed", "error", err)
		return
	}
	slog.Info("hall_of_fame_reseed",
		"from_generation", entry.Generation,
		"return", entry.Return,
		"hall_size", t.hallOfFame.Size(),
	)
}

// archiveBest offers the new best parameters to the hall of fame and writes
// the best checkpoint.
func (t *Trainer) archiveBest(generation int) {
	best, bestReturn := t.opt.Best()
	if best == nil {
		return
	}
	p, _, err := t.replay(best)
	if err != nil {
		slog.Error("failed to replay best policy", "error", err)
		return
	}
	t.hallOfFame.Consider(generation, bestReturn, p)
	if _, err := t.outputManager.WriteCheckpoint("best", p); err != nil {
		slog.Error("failed to write checkpoint", "name", "best", "error", err)
	}
}

// checkpoint writes the current center and a resumable snapshot.
func (t *Trainer) checkpoint(generation int) {
	p, _, err := t.replay(t.opt.Center())
	if err != nil {
		slog.Error("failed to replay center policy", "error", err)
		return
	}
	path, err := t.outputManager.WriteCheckpoint("latest", p)
	if err != nil {
		slog.Error("failed to write checkpoint", "name", "latest", "error", err)
		return
	}
	if t.outputManager != nil {
		t.saveSnapshot(t.outputManager.Path(telemetry.CheckpointDir), nil)
		slog.Debug("checkpoint written", "generation", generation, "path", path)
	}
}

// saveSnapshot writes the optimizer state to dir.
func (t *Trainer) saveSnapshot(dir string, bookmark *telemetry.Bookmark) {
	path, err := telemetry.SaveSnapshot(t.createSnapshot(bookmark), dir)
	if err != nil {
		slog.Error("failed to save snapshot", "error", err)
		return
	}
	slog.Debug("snapshot saved", "path", path)
}

func (t *Trainer) createSnapshot(bookmark *telemetry.Bookmark) *telemetry.Snapshot {
	best, bestReturn := t.opt.Best()
	return &telemetry.Snapshot{
		Version:    telemetry.SnapshotVersion,
		Seed:       t.cfg.ES.Seed,
		Generation: t.opt.Generations(),
		Center:     t.opt.Center(),
		Best:       best,
		BestReturn: bestReturn,
		Bookmark:   bookmark,
	}
}
