package telemetry

import (
	"testing"
	"time"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartFrame()
		pc.StartPhase(PhaseSplat)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhasePolygonize)
		time.Sleep(200 * time.Microsecond)
		pc.EndFrame()
	}

	stats := pc.Stats()
	if stats.AvgFrameDuration <= 0 {
		t.Error("expected positive average frame duration")
	}
	if stats.Frames != 5 {
		t.Errorf("frames = %d, want 5", stats.Frames)
	}
	if _, ok := stats.PhaseAvg[PhaseSplat]; !ok {
		t.Error("expected splat phase to be tracked")
	}
	if _, ok := stats.PhaseAvg[PhasePolygonize]; !ok {
		t.Error("expected polygonize phase to be tracked")
	}
}

func TestPerfCollector_RepeatedPhaseAccumulates(t *testing.T) {
	pc := NewPerfCollector(10)

	pc.StartFrame()
	for s := 0; s < 3; s++ {
		pc.StartPhase(PhaseSplat)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhaseSeam)
	}
	sample := pc.EndFrame()

	if got := sample.Phases[PhaseSplat]; got < 300*time.Microsecond {
		t.Errorf("splat = %v, want at least 300µs over three slabs", got)
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5)

	for i := 0; i < 10; i++ {
		pc.StartFrame()
		pc.StartPhase(PhaseJoin)
		time.Sleep(10 * time.Microsecond)
		pc.EndFrame()
	}

	stats := pc.Stats()
	if stats.Frames != 5 {
		t.Errorf("frames = %d, want window size 5", stats.Frames)
	}
	if stats.AvgFrameDuration <= 0 {
		t.Error("expected positive average frame duration after window filled")
	}
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartFrame()
		pc.StartPhase("fast")
		time.Sleep(10 * time.Microsecond)
		pc.StartPhase("slow")
		time.Sleep(100 * time.Microsecond)
		pc.EndFrame()
	}

	stats := pc.Stats()
	if stats.PhasePct["slow"] <= stats.PhasePct["fast"] {
		t.Errorf("expected slow phase (%v%%) > fast phase (%v%%)", stats.PhasePct["slow"], stats.PhasePct["fast"])
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	pc := NewPerfCollector(10)

	stats := pc.Stats()
	if stats.AvgFrameDuration != 0 {
		t.Error("expected zero avg frame duration for empty collector")
	}
	if stats.PhaseAvg == nil {
		t.Error("expected non-nil PhaseAvg map")
	}
	if stats.PhasePct == nil {
		t.Error("expected non-nil PhasePct map")
	}
}

func TestPerfStatsToCSV(t *testing.T) {
	s := PerfStats{
		AvgFrameDuration: 2 * time.Millisecond,
		PhasePct:         map[string]float64{PhaseSplat: 60, PhasePolygonize: 30},
	}
	row := s.ToCSV(7)
	if row.Frame != 7 || row.AvgFrameUS != 2000 {
		t.Errorf("row = %+v", row)
	}
	if row.SplatPct != 60 || row.PolygonizePct != 30 || row.SeamPct != 0 {
		t.Errorf("phase columns = %+v", row)
	}
}
