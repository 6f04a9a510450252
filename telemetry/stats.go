package telemetry

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/pthm-cable/racer/es"
	"github.com/pthm-cable/racer/eval"
)

// GenerationStats is one row of generations.csv.
type GenerationStats struct {
	Generation int     `csv:"generation"`
	ElapsedSec float64 `csv:"elapsed_sec"`

	// Population returns
	Mean float64 `csv:"mean"`
	Std  float64 `csv:"std"`
	Min  float64 `csv:"min"`
	Max  float64 `csv:"max"`
	P10  float64 `csv:"p10"`
	P50  float64 `csv:"p50"`
	P90  float64 `csv:"p90"`

	// Center policy
	CenterReturn float64 `csv:"center_return"` // NaN when the center is not scored
	BestReturn   float64 `csv:"best_return"`

	// Update
	StepNorm float64 `csv:"step_norm"`
	Skipped  bool    `csv:"skipped"`
	Improved bool    `csv:"improved"`

	DurationMS int64 `csv:"duration_ms"`
}

// NewGenerationStats flattens an optimizer generation for logging.
func NewGenerationStats(g es.Generation, best float64, elapsed time.Duration) GenerationStats {
	_, _, p10, p50, p90 := ComputeReturnStats(g.Returns)
	return GenerationStats{
		Generation:   g.Index,
		ElapsedSec:   elapsed.Seconds(),
		Mean:         g.Mean,
		Std:          g.Std,
		Min:          g.Min,
		Max:          g.Max,
		P10:          p10,
		P50:          p50,
		P90:          p90,
		CenterReturn: g.CenterReturn,
		BestReturn:   best,
		StepNorm:     g.StepNorm,
		Skipped:      g.Skipped,
		Improved:     g.Improved,
		DurationMS:   g.Duration.Milliseconds(),
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (s GenerationStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("generation", s.Generation),
		slog.Float64("elapsed_sec", s.ElapsedSec),
		slog.Float64("mean", s.Mean),
		slog.Float64("std", s.Std),
		slog.Float64("min", s.Min),
		slog.Float64("max", s.Max),
		slog.Float64("p50", s.P50),
		slog.Float64("center_return", s.CenterReturn),
		slog.Float64("best_return", s.BestReturn),
		slog.Float64("step_norm", s.StepNorm),
		slog.Bool("skipped", s.Skipped),
		slog.Bool("improved", s.Improved),
		slog.Int64("duration_ms", s.DurationMS),
	)
}

// LogStats logs the generation summary using slog.
func (s GenerationStats) LogStats() {
	slog.Info("generation",
		"generation", s.Generation,
		"mean", s.Mean,
		"max", s.Max,
		"std", s.Std,
		"center_return", s.CenterReturn,
		"best_return", s.BestReturn,
		"skipped", s.Skipped,
		"duration_ms", s.DurationMS,
	)
}

// CMAESEvalRow is one row of cmaes.csv.
type CMAESEvalRow struct {
	Eval       int     `csv:"eval"`
	ElapsedSec float64 `csv:"elapsed_sec"`
	Return     float64 `csv:"return"`
	BestReturn float64 `csv:"best_return"`
}

// EpisodeStats is one row of episodes.csv.
type EpisodeStats struct {
	Experiment string  `csv:"experiment"`
	Episode    int     `csv:"episode"`
	ObsNoise   float64 `csv:"obs_noise"`
	Return     float64 `csv:"return"`
	Steps      int     `csv:"steps"`
	Success    bool    `csv:"success"`
}

// EpisodeRows expands an experiment result into per-episode rows.
func EpisodeRows(res eval.Result) []EpisodeStats {
	rows := make([]EpisodeStats, len(res.Returns))
	for i := range res.Returns {
		rows[i] = EpisodeStats{
			Experiment: res.Config.Name,
			Episode:    i,
			ObsNoise:   res.Config.ObsNoise,
			Return:     res.Returns[i],
			Steps:      res.Lengths[i],
			Success:    res.Lengths[i] > res.Config.SuccessSteps,
		}
	}
	return rows
}

// SweepStats is one row of robustness.csv.
type SweepStats struct {
	Experiment  string  `csv:"experiment"`
	ObsNoise    float64 `csv:"obs_noise"`
	ActionNoise float64 `csv:"action_noise"`
	RewardDelay int     `csv:"reward_delay"`
	Episodes    int     `csv:"episodes"`
	MeanReturn  float64 `csv:"mean_return"`
	StdReturn   float64 `csv:"std_return"`
	MeanLength  float64 `csv:"mean_length"`
	SuccessRate float64 `csv:"success_rate"`
	WallTimeSec float64 `csv:"wall_time_sec"`
}

// NewSweepStats summarises an experiment result.
func NewSweepStats(res eval.Result) SweepStats {
	return SweepStats{
		Experiment:  res.Config.Name,
		ObsNoise:    res.Config.ObsNoise,
		ActionNoise: res.Config.ActionNoise,
		RewardDelay: res.Config.RewardDelay,
		Episodes:    len(res.Returns),
		MeanReturn:  res.MeanReturn,
		StdReturn:   res.StdReturn,
		MeanLength:  res.MeanLength,
		SuccessRate: res.SuccessRate,
		WallTimeSec: res.WallTime.Seconds(),
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (s SweepStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("experiment", s.Experiment),
		slog.Float64("obs_noise", s.ObsNoise),
		slog.Float64("mean_return", s.MeanReturn),
		slog.Float64("std_return", s.StdReturn),
		slog.Float64("mean_length", s.MeanLength),
		slog.Float64("success_rate", s.SuccessRate),
	)
}

// TrajectoryRow is one row of trajectory.csv.
type TrajectoryRow struct {
	Step         int     `csv:"step"`
	X            float64 `csv:"x"`
	Y            float64 `csv:"y"`
	Heading      float64 `csv:"heading"`
	Speed        float64 `csv:"speed"`
	Steering     float64 `csv:"steering"`
	Throttle     float64 `csv:"throttle"`
	Reward       float64 `csv:"reward"`
	LateralError float64 `csv:"lateral_error"`
	Progress     float64 `csv:"progress"`
	OffTrack     bool    `csv:"off_track"`
}

// TrajectoryRows converts a recorded episode.
func TrajectoryRows(ep eval.Episode) []TrajectoryRow {
	rows := make([]TrajectoryRow, len(ep.Trajectory))
	for i, p := range ep.Trajectory {
		rows[i] = TrajectoryRow{
			Step:         p.Step,
			X:            p.X,
			Y:            p.Y,
			Heading:      p.Heading,
			Speed:        p.Speed,
			Steering:     p.Steering,
			Throttle:     p.Throttle,
			Reward:       p.Reward,
			LateralError: p.LateralError,
			Progress:     p.Progress,
			OffTrack:     p.OffTrack,
		}
	}
	return rows
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeReturnStats calculates mean, population std, and percentiles.
func ComputeReturnStats(values []float64) (mean, std, p10, p50, p90 float64) {
	n := len(values)
	if n == 0 {
		return 0, 0, 0, 0, 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(n)

	var sqDiffSum float64
	for _, v := range values {
		d := v - mean
		sqDiffSum += d * d
	}
	std = math.Sqrt(sqDiffSum / float64(n))

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	p10 = Percentile(sorted, 0.10)
	p50 = Percentile(sorted, 0.50)
	p90 = Percentile(sorted, 0.90)

	return mean, std, p10, p50, p90
}
