// Command evaluate runs a saved policy through the observation-noise
// robustness sweep and writes per-episode and per-level results.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/pthm-cable/racer/config"
	"github.com/pthm-cable/racer/eval"
	"github.com/pthm-cable/racer/neural"
	"github.com/pthm-cable/racer/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	checkpoint := flag.String("checkpoint", "", "Policy checkpoint JSON (required)")
	outputDir := flag.String("output-dir", "", "Output directory (overrides telemetry.output)")
	levels := flag.String("levels", "", "Comma-separated observation noise levels (empty = eval.noise_levels)")
	episodes := flag.Int("episodes", 0, "Episodes per level (0 = eval.base.episodes)")
	logJSON := flag.Bool("log-json", false, "Log JSON lines instead of text")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	logger, err := telemetry.NewLogger(os.Stderr, *logJSON, *logLevel)
	if err != nil {
		slog.Error("invalid logging flags", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if *checkpoint == "" {
		slog.Error("-checkpoint is required")
		os.Exit(1)
	}

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	noise := cfg.Eval.NoiseLevels
	if *levels != "" {
		noise, err = parseLevels(*levels)
		if err != nil {
			slog.Error("invalid -levels", "error", err)
			os.Exit(1)
		}
	}
	base := cfg.Eval.Base
	if *episodes > 0 {
		base.Episodes = *episodes
	}

	policy, err := neural.LoadFile(*checkpoint, cfg.Derived.Architecture, cfg.Policy)
	if err != nil {
		slog.Error("failed to load checkpoint", "path", *checkpoint, "error", err)
		os.Exit(1)
	}

	trk, err := cfg.NewTrack()
	if err != nil {
		slog.Error("failed to build track", "error", err)
		os.Exit(1)
	}
	newEnv, err := cfg.EnvFactory(trk)
	if err != nil {
		slog.Error("failed to build environment", "error", err)
		os.Exit(1)
	}

	root := cfg.Telemetry.Output
	if *outputDir != "" {
		root = *outputDir
	}
	om, err := telemetry.NewOutputManager(root)
	if err != nil {
		slog.Error("failed to create output", "error", err)
		os.Exit(1)
	}
	defer om.Close()
	if err := om.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runner := eval.NewRunner(newEnv)
	results, err := runner.NoiseSweep(ctx, policy, base, noise)
	if err != nil {
		slog.Error("sweep failed", "error", err, "levels_done", len(results))
		if len(results) == 0 {
			om.Close()
			os.Exit(1)
		}
	}

	rows := make([]telemetry.SweepStats, 0, len(results))
	for _, res := range results {
		stats := telemetry.NewSweepStats(res)
		rows = append(rows, stats)
		slog.Info("level", "stats", stats)
		if err := om.WriteSweep(stats); err != nil {
			slog.Error("failed to write sweep row", "error", err)
		}
		if err := om.WriteEpisodes(telemetry.EpisodeRows(res)); err != nil {
			slog.Error("failed to write episodes", "error", err)
		}
	}

	if om != nil {
		if err := telemetry.PlotRobustness(om.Path("robustness.png"), rows); err != nil {
			slog.Error("failed to plot robustness", "error", err)
		}
	}
	slog.Info("evaluation finished", "checkpoint", *checkpoint, "levels", len(rows), "output", om.Dir())
}

// parseLevels reads a comma-separated list of non-negative floats.
func parseLevels(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		if v < 0 {
			return nil, fmt.Errorf("noise level %v must not be negative", v)
		}
		out = append(out, v)
	}
	return out, nil
}
