package observability

import (
	"testing"
	"time"
)

func TestStageWindowSnapshot(t *testing.T) {
	w := NewStageWindow(8)
	w.Observe("synthesize", 500*time.Millisecond)
	w.Observe("synthesize", 700*time.Millisecond)
	w.Observe("synthesize", 900*time.Millisecond)
	w.ObserveIndicator("tts_text_only")
	w.ObserveIndicator("tts_text_only")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != "synthesize" {
		t.Fatalf("Stage = %q, want %q", s.Stage, "synthesize")
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 900 {
		t.Fatalf("LastMS = %.2f, want 900", s.LastMS)
	}
	if s.P50MS != 700 {
		t.Fatalf("P50MS = %.2f, want 700", s.P50MS)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if s.TargetP95MS != 5000 {
		t.Fatalf("TargetP95MS = %.2f, want 5000", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Name != "tts_text_only" || snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators = %+v", snap.Indicators)
	}
}

func TestStageWindowWrapsAround(t *testing.T) {
	w := NewStageWindow(2)
	for _, ms := range []int{100, 200, 300} {
		w.Observe("generate", time.Duration(ms)*time.Millisecond)
	}
	s := w.Snapshot().Stages[0]
	if s.Samples != 2 || s.AvgMS != 250 {
		t.Fatalf("after wrap: samples=%d avg=%.2f, want 2/250", s.Samples, s.AvgMS)
	}
}
