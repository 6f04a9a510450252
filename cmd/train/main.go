// Command train runs ES (or the CMA-ES baseline) on the configured track and
// writes CSV logs, checkpoints and plots to a run directory.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pthm-cable/racer/config"
	"github.com/pthm-cable/racer/telemetry"
	"github.com/pthm-cable/racer/trainer"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	method := flag.String("method", "es", "Search method: es or cmaes")
	logStats := flag.Bool("log-stats", true, "Output generation stats via slog")
	logJSON := flag.Bool("log-json", true, "Log JSON lines instead of text")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	snapshotDir := flag.String("snapshot-dir", "", "Directory for bookmark snapshot files")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, checkpoints and plots (overrides telemetry.output)")
	resume := flag.String("resume", "", "Snapshot file to resume ES training from")
	episodes := flag.Int("episodes", 1, "Rollouts averaged per candidate")
	generations := flag.Int("generations", 0, "Override es.generations (0 = use config)")
	flag.Parse()

	logger, err := telemetry.NewLogger(os.Stdout, *logJSON, *logLevel)
	if err != nil {
		slog.Error("invalid logging flags", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()
	if *generations > 0 {
		cfg.ES.Generations = *generations
	}

	tr, err := trainer.New(cfg, trainer.Options{
		LogStats:    *logStats,
		OutputDir:   *outputDir,
		SnapshotDir: *snapshotDir,
		Resume:      *resume,
		Episodes:    *episodes,
	})
	if err != nil {
		slog.Error("failed to create trainer", "error", err)
		os.Exit(1)
	}
	defer tr.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var res trainer.Result
	switch *method {
	case "es":
		res, err = tr.Run(ctx)
	case "cmaes":
		res, err = tr.RunCMAES(ctx)
	default:
		slog.Error("unknown method", "method", *method)
		os.Exit(1)
	}

	if errors.Is(err, context.Canceled) {
		slog.Warn("interrupted", "generations", res.Generations, "best_return", res.BestReturn)
	} else if err != nil {
		slog.Error("training failed", "error", err)
		tr.Close()
		os.Exit(1)
	}

	slog.Info("done",
		"method", *method,
		"generations", res.Generations,
		"evals", res.Evals,
		"best_return", res.BestReturn,
		"output", res.OutputDir,
	)
}
