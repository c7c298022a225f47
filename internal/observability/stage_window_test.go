package observability

import "testing"

func TestStageWindowSnapshot(t *testing.T) {
	w := newStageWindow(8)
	w.Observe(StageFirstAudio, 150)
	w.Observe(StageFirstAudio, 250)
	w.Observe(StageFirstAudio, 350)
	w.ObserveIndicator("delegate_failover")
	w.ObserveIndicator("delegate_failover")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageFirstAudio {
		t.Fatalf("Stage = %q, want %q", s.Stage, StageFirstAudio)
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 350 {
		t.Fatalf("LastMS = %.2f, want 350", s.LastMS)
	}
	if s.P50MS != 250 {
		t.Fatalf("P50MS = %.2f, want 250", s.P50MS)
	}
	if s.P95MS <= 250 || s.P95MS > 350 {
		t.Fatalf("P95MS = %.2f, want (250,350]", s.P95MS)
	}
	if s.TargetP95MS != 400 {
		t.Fatalf("TargetP95MS = %.2f, want 400", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 {
		t.Fatalf("len(Indicators) = %d, want 1", len(snap.Indicators))
	}
	if snap.Indicators[0].Name != "delegate_failover" {
		t.Fatalf("Indicators[0].Name = %q, want %q", snap.Indicators[0].Name, "delegate_failover")
	}
	if snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators[0].Count = %d, want %d", snap.Indicators[0].Count, 2)
	}
}

func TestStageWindowWrapsRing(t *testing.T) {
	w := newStageWindow(4)
	for i := 0; i < 10; i++ {
		w.Observe(StageSplit, float64(i))
	}
	snap := w.Snapshot()
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Samples != 4 {
		t.Fatalf("Samples = %d, want 4 after wrap", s.Samples)
	}
	if s.LastMS != 9 {
		t.Fatalf("LastMS = %.2f, want 9", s.LastMS)
	}
	// only the final four observations (6..9) remain in the window
	if s.AvgMS != 7.5 {
		t.Fatalf("AvgMS = %.2f, want 7.5", s.AvgMS)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveStage(StageSplit, 0)
	m.ObserveFirstAudio(0)
	m.ObserveIndicator("noop")
	if snap := m.SnapshotStages(); len(snap.Stages) != 0 {
		t.Fatalf("nil metrics snapshot has stages: %v", snap.Stages)
	}
}
