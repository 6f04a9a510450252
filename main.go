package main

import (
	"flag"
	"log/slog"
	"math/rand"
	"os"

	"github.com/pthm-cable/racer/config"
	"github.com/pthm-cable/racer/env"
	"github.com/pthm-cable/racer/eval"
	"github.com/pthm-cable/racer/neural"
	"github.com/pthm-cable/racer/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	checkpoint := flag.String("checkpoint", "", "Policy checkpoint JSON (empty = random policy)")
	outputDir := flag.String("output-dir", "", "Output directory for trajectory CSV and plot")
	seed := flag.Int64("seed", 0, "Episode seed")
	maxSteps := flag.Int("max-steps", 0, "Stop after N steps (0 = env.max_steps)")
	obsNoise := flag.Float64("obs-noise", 0, "Gaussian observation noise std")
	logJSON := flag.Bool("log-json", true, "Log JSON lines instead of text")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	logger, err := telemetry.NewLogger(os.Stdout, *logJSON, *logLevel)
	if err != nil {
		slog.Error("invalid logging flags", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	var policy *neural.Policy
	if *checkpoint != "" {
		policy, err = neural.LoadFile(*checkpoint, cfg.Derived.Architecture, cfg.Policy)
	} else {
		policy, err = neural.NewRandomPolicy(cfg.Derived.Architecture, cfg.Policy, rand.New(rand.NewSource(*seed)))
	}
	if err != nil {
		slog.Error("failed to build policy", "error", err)
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
	e, err := newEnv()
	if err != nil {
		slog.Error("failed to build environment", "error", err)
		os.Exit(1)
	}
	base, _ := e.(*env.Env)
	if *obsNoise > 0 {
		e = env.NewNoiseWrapper(e, *obsNoise, 0, *seed)
	}

	slog.Info("driving episode",
		"checkpoint", *checkpoint,
		"layout", trk.Layout(),
		"params", policy.NumParams(),
		"seed", *seed,
		"obs_noise", *obsNoise,
	)

	ep, err := eval.RunEpisode(e, policy, eval.EpisodeOptions{
		Seed:     seed,
		MaxSteps: *maxSteps,
		Record:   true,
	})
	if err != nil {
		slog.Error("episode failed", "error", err)
		os.Exit(1)
	}

	slog.Info("episode finished",
		"return", ep.Return,
		"steps", ep.Steps,
		"off_track_steps", ep.OffTrackSteps,
		"final_progress", ep.FinalProgress,
		"truncated", ep.Truncated,
	)

	// With env.regenerate_on_reset the episode ran on a fresh centerline.
	driven := trk
	if base != nil {
		driven = base.Track()
	}

	om, err := telemetry.NewOutputManager(*outputDir)
	if err != nil {
		slog.Error("failed to create output", "error", err)
		os.Exit(1)
	}
	if om == nil {
		return
	}
	defer om.Close()

	if err := om.WriteTrajectory("", telemetry.TrajectoryRows(ep)); err != nil {
		slog.Error("failed to write trajectory", "error", err)
	}
	if err := telemetry.PlotTrajectory(om.Path("trajectory.png"), driven, ep); err != nil {
		slog.Error("failed to plot trajectory", "error", err)
	}
	slog.Info("trajectory written", "dir", om.Dir())
}
