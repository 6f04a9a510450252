package main

import (
	"context"
	"log/slog"
	"math"
	"runtime"
	"sync"

	"github.com/pthm-cable/racer/config"
	"github.com/pthm-cable/racer/eval"
	"github.com/pthm-cable/racer/reward"
	"github.com/pthm-cable/racer/telemetry"
	"github.com/pthm-cable/racer/trainer"
)

// FitnessEvaluator runs short ES trainings and scores the resulting policy.
type FitnessEvaluator struct {
	ctx         context.Context
	params      *ParamVector
	generations int
	seeds       []int64
	baseConfig  *config.Config

	// Best run tracking
	mu             sync.Mutex
	bestFitness    float64
	bestHallOfFame *telemetry.HallOfFame
	lastLaps       float64 // mean laps from the most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(ctx context.Context, params *ParamVector, generations int, seeds []int64, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		ctx:         ctx,
		params:      params,
		generations: generations,
		seeds:       seeds,
		baseConfig:  baseCfg,
		bestFitness: math.Inf(1),
	}
}

// BestHallOfFame returns the hall of fame from the best evaluation.
func (fe *FitnessEvaluator) BestHallOfFame() *telemetry.HallOfFame {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.bestHallOfFame
}

// LastLaps returns the mean laps driven in the most recent evaluation.
func (fe *FitnessEvaluator) LastLaps() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastLaps
}

// seedResult holds the result from one seed evaluation.
type seedResult struct {
	laps       float64
	onTrack    float64
	hallOfFame *telemetry.HallOfFame
}

// Evaluate computes fitness for a raw parameter vector (lower = better).
// Reward weights change the scale of returns, so the score is measured on the
// track instead: laps driven times the fraction of steps spent on track.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	results := make([]seedResult, len(fe.seeds))
	workers := max(runtime.GOMAXPROCS(0)/len(fe.seeds), 1)

	var wg sync.WaitGroup
	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			r, err := fe.runTraining(x, s, workers)
			if err != nil {
				slog.Warn("training run failed", "seed", s, "error", err)
				return
			}
			results[idx] = r
		}(i, seed)
	}
	wg.Wait()

	var totalScore, totalLaps float64
	bestSeedScore := math.Inf(-1)
	var bestSeedHallOfFame *telemetry.HallOfFame
	for _, r := range results {
		score := r.laps * r.onTrack
		totalScore += score
		totalLaps += r.laps
		if score > bestSeedScore && r.hallOfFame != nil {
			bestSeedScore = score
			bestSeedHallOfFame = r.hallOfFame
		}
	}

	n := float64(len(fe.seeds))
	fitness := -totalScore / n

	fe.mu.Lock()
	if fitness < fe.bestFitness {
		fe.bestFitness = fitness
		fe.bestHallOfFame = bestSeedHallOfFame
	}
	fe.lastLaps = totalLaps / n
	fe.mu.Unlock()

	return fitness
}

// runTraining trains from seed with x applied, then drives the best policy
// for one recorded episode.
func (fe *FitnessEvaluator) runTraining(x []float64, seed int64, workers int) (seedResult, error) {
	cfg := fe.copyConfig()
	fe.params.ApplyToConfig(cfg, x)
	cfg.ES.Seed = seed
	cfg.ES.Generations = fe.generations
	cfg.ES.Workers = workers
	cfg.ES.CheckpointEvery = 0
	cfg.Telemetry.Output = ""

	tr, err := trainer.New(cfg, trainer.Options{})
	if err != nil {
		return seedResult{}, err
	}
	defer tr.Close()

	res, err := tr.Run(fe.ctx)
	if err != nil {
		return seedResult{}, err
	}
	if res.Best == nil {
		return seedResult{}, nil
	}
	hof := telemetry.NewHallOfFame(1, nil)
	hof.Consider(res.Generations, res.BestReturn, res.Best)

	return seedResult{
		laps:       lapsDriven(res.BestEpisode),
		onTrack:    onTrackFraction(res.BestEpisode),
		hallOfFame: hof,
	}, nil
}

// copyConfig returns a copy of the base config that runs can modify freely.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := *fe.baseConfig
	cfg.Eval.NoiseLevels = append([]float64(nil), fe.baseConfig.Eval.NoiseLevels...)
	return &cfg
}

// lapsDriven sums forward centerline progress over a recorded episode.
func lapsDriven(ep eval.Episode) float64 {
	var laps float64
	for i := 1; i < len(ep.Trajectory); i++ {
		laps += reward.ProgressDelta(ep.Trajectory[i-1].Progress, ep.Trajectory[i].Progress)
	}
	return laps
}

func onTrackFraction(ep eval.Episode) float64 {
	if ep.Steps == 0 {
		return 0
	}
	return 1 - float64(ep.OffTrackSteps)/float64(ep.Steps)
}
