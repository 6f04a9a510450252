package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for one training generation.
const (
	PhaseEvaluate   = "evaluate"   // population rollouts, update and center eval
	PhaseTelemetry  = "telemetry"  // csv rows and logs
	PhaseCheckpoint = "checkpoint" // policy files
	PhasePlot       = "plot"       // png rendering
)

var phaseOrder = []string{PhaseEvaluate, PhaseTelemetry, PhaseCheckpoint, PhasePlot}

// PerfSample holds timing data for a single generation.
type PerfSample struct {
	Duration time.Duration
	Phases   map[string]time.Duration
	Rollouts int
}

// PerfCollector tracks training-loop timings over a rolling window of
// generations.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	start         time.Time
	phaseStart    time.Time
	lastPhase     string

	// Rollout throughput for the current generation.
	rollouts int
}

// NewPerfCollector creates a collector averaging over windowSize generations.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 10
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartGeneration begins timing a new generation.
func (p *PerfCollector) StartGeneration() {
	p.start = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.lastPhase = ""
	p.rollouts = 0
}

// StartPhase begins timing a specific phase, ending the previous one.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// AddRollouts records the number of episodes run this generation.
func (p *PerfCollector) AddRollouts(n int) {
	p.rollouts += n
}

// EndGeneration finishes timing and records the sample.
func (p *PerfCollector) EndGeneration() {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	p.samples[p.writeIndex] = PerfSample{
		Duration: now.Sub(p.start),
		Phases:   p.currentPhases,
		Rollouts: p.rollouts,
	}
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	AvgDuration time.Duration
	MinDuration time.Duration
	MaxDuration time.Duration

	// Phase breakdown (average durations)
	PhaseAvg map[string]time.Duration

	// Phase percentages of total generation time
	PhasePct map[string]float64

	// Throughput
	RolloutsPerSecond float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p.sampleCount == 0 {
		return PerfStats{
			PhaseAvg: make(map[string]time.Duration),
			PhasePct: make(map[string]float64),
		}
	}

	var total time.Duration
	var minDur, maxDur time.Duration
	var rollouts int
	phaseSum := make(map[string]time.Duration)

	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		total += s.Duration

		if i == 0 || s.Duration < minDur {
			minDur = s.Duration
		}
		if s.Duration > maxDur {
			maxDur = s.Duration
		}

		rollouts += s.Rollouts
		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}

	avg := total / time.Duration(p.sampleCount)

	phaseAvg := make(map[string]time.Duration)
	phasePct := make(map[string]float64)
	for phase, sum := range phaseSum {
		phaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if avg > 0 {
			phasePct[phase] = float64(phaseAvg[phase]) / float64(avg) * 100
		}
	}

	var rps float64
	if total > 0 {
		rps = float64(rollouts) / total.Seconds()
	}

	return PerfStats{
		AvgDuration:       avg,
		MinDuration:       minDur,
		MaxDuration:       maxDur,
		PhaseAvg:          phaseAvg,
		PhasePct:          phasePct,
		RolloutsPerSecond: rps,
	}
}

// LogStats logs performance statistics.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_gen_ms", s.AvgDuration.Milliseconds(),
		"min_gen_ms", s.MinDuration.Milliseconds(),
		"max_gen_ms", s.MaxDuration.Milliseconds(),
		"rollouts_per_sec", int(s.RolloutsPerSecond),
	}

	for _, phase := range phaseOrder {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, phase+"_pct", int(pct*10)/10.0)
		}
	}

	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_gen_ms", s.AvgDuration.Milliseconds()),
		slog.Int64("min_gen_ms", s.MinDuration.Milliseconds()),
		slog.Int64("max_gen_ms", s.MaxDuration.Milliseconds()),
		slog.Float64("rollouts_per_sec", s.RolloutsPerSecond),
	}

	for _, phase := range phaseOrder {
		if pct, ok := s.PhasePct[phase]; ok {
			attrs = append(attrs, slog.Float64(phase+"_pct", pct))
		}
	}

	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	Generation        int     `csv:"generation"`
	AvgGenMS          int64   `csv:"avg_gen_ms"`
	MinGenMS          int64   `csv:"min_gen_ms"`
	MaxGenMS          int64   `csv:"max_gen_ms"`
	RolloutsPerSecond float64 `csv:"rollouts_per_sec"`
	EvaluatePct       float64 `csv:"evaluate_pct"`
	TelemetryPct      float64 `csv:"telemetry_pct"`
	CheckpointPct     float64 `csv:"checkpoint_pct"`
	PlotPct           float64 `csv:"plot_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(generation int) PerfStatsCSV {
	return PerfStatsCSV{
		Generation:        generation,
		AvgGenMS:          s.AvgDuration.Milliseconds(),
		MinGenMS:          s.MinDuration.Milliseconds(),
		MaxGenMS:          s.MaxDuration.Milliseconds(),
		RolloutsPerSecond: s.RolloutsPerSecond,
		EvaluatePct:       s.PhasePct[PhaseEvaluate],
		TelemetryPct:      s.PhasePct[PhaseTelemetry],
		CheckpointPct:     s.PhasePct[PhaseCheckpoint],
		PlotPct:           s.PhasePct[PhasePlot],
	}
}
