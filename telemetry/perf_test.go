package telemetry

import (
	"testing"
	"time"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartGeneration()
		pc.StartPhase(PhaseEvaluate)
		time.Sleep(100 * time.Microsecond)
		pc.AddRollouts(20)
		pc.StartPhase(PhaseTelemetry)
		time.Sleep(200 * time.Microsecond)
		pc.EndGeneration()
	}

	stats := pc.Stats()

	if stats.AvgDuration <= 0 {
		t.Error("expected positive average generation duration")
	}
	if _, ok := stats.PhaseAvg[PhaseEvaluate]; !ok {
		t.Error("expected evaluate phase to be tracked")
	}
	if _, ok := stats.PhaseAvg[PhaseTelemetry]; !ok {
		t.Error("expected telemetry phase to be tracked")
	}
	if stats.RolloutsPerSecond <= 0 {
		t.Error("expected positive rollout throughput")
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5)

	for i := 0; i < 10; i++ {
		pc.StartGeneration()
		pc.StartPhase(PhaseEvaluate)
		time.Sleep(10 * time.Microsecond)
		pc.EndGeneration()
	}

	stats := pc.Stats()
	if stats.AvgDuration <= 0 {
		t.Error("expected positive average duration after window filled")
	}
	if stats.MinDuration > stats.MaxDuration {
		t.Errorf("min %v > max %v", stats.MinDuration, stats.MaxDuration)
	}
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartGeneration()
		pc.StartPhase("fast")
		time.Sleep(10 * time.Microsecond)
		pc.StartPhase("slow")
		time.Sleep(2 * time.Millisecond)
		pc.EndGeneration()
	}

	stats := pc.Stats()
	if stats.PhasePct["slow"] <= stats.PhasePct["fast"] {
		t.Errorf("expected slow phase (%v%%) > fast phase (%v%%)", stats.PhasePct["slow"], stats.PhasePct["fast"])
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	pc := NewPerfCollector(10)

	stats := pc.Stats()
	if stats.AvgDuration != 0 {
		t.Error("expected zero avg duration for empty collector")
	}
	if stats.PhaseAvg == nil || stats.PhasePct == nil {
		t.Error("expected non-nil phase maps")
	}
}

func TestPerfStatsToCSV(t *testing.T) {
	s := PerfStats{
		AvgDuration: 40 * time.Millisecond,
		PhasePct:    map[string]float64{PhaseEvaluate: 90, PhasePlot: 5},
	}
	row := s.ToCSV(7)
	if row.Generation != 7 || row.AvgGenMS != 40 {
		t.Errorf("unexpected row: %+v", row)
	}
	if row.EvaluatePct != 90 || row.PlotPct != 5 || row.CheckpointPct != 0 {
		t.Errorf("unexpected phase columns: %+v", row)
	}
}
