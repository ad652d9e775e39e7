package telemetry

import (
	"math"
	"testing"
	"time"
)

func TestSummarize(t *testing.T) {
	var ds []time.Duration
	for i := 1; i <= 100; i++ {
		ds = append(ds, time.Duration(i)*time.Millisecond)
	}
	s := Summarize(ds)

	tests := []struct {
		name      string
		got, want float64
	}{
		{"mean", s.MeanMS, 50.5},
		{"min", s.MinMS, 1},
		{"max", s.MaxMS, 100},
		{"p50", s.P50MS, 50},
	}
	for _, tt := range tests {
		if math.Abs(tt.got-tt.want) > 1e-9 {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	// Empirical quantiles land on a sample; allow the neighbouring one for
	// float rounding of p*n.
	if s.P95MS < 95 || s.P95MS > 96 {
		t.Errorf("p95 = %v, want 95 or 96", s.P95MS)
	}
	if s.P99MS < 99 || s.P99MS > 100 {
		t.Errorf("p99 = %v, want 99 or 100", s.P99MS)
	}
	if s.Frames != 100 {
		t.Errorf("Frames = %d, want 100", s.Frames)
	}
	if s.StdMS <= 0 {
		t.Errorf("StdMS = %v, want positive", s.StdMS)
	}
}

func TestSummarizeEdgeCases(t *testing.T) {
	if s := Summarize(nil); s != (FrameSummary{}) {
		t.Errorf("Summarize(nil) = %+v, want zero", s)
	}
	s := Summarize([]time.Duration{4 * time.Millisecond})
	if s.MeanMS != 4 || s.P99MS != 4 || s.StdMS != 0 {
		t.Errorf("single sample summary = %+v", s)
	}
}

func TestSummarizeDoesNotReorderInput(t *testing.T) {
	ds := []time.Duration{3, 1, 2}
	Summarize(ds)
	if ds[0] != 3 || ds[1] != 1 || ds[2] != 2 {
		t.Errorf("input reordered: %v", ds)
	}
}
