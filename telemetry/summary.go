package telemetry

import (
	"log/slog"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FrameSummary describes a run's frame-time distribution in milliseconds.
type FrameSummary struct {
	Frames int
	MeanMS float64
	StdMS  float64
	MinMS  float64
	MaxMS  float64
	P50MS  float64
	P95MS  float64
	P99MS  float64
}

// Summarize computes the distribution of durations. An empty input yields a
// zero summary.
func Summarize(durations []time.Duration) FrameSummary {
	if len(durations) == 0 {
		return FrameSummary{}
	}
	ms := Milliseconds(durations)
	sort.Float64s(ms)

	s := FrameSummary{
		Frames: len(ms),
		MeanMS: stat.Mean(ms, nil),
		MinMS:  floats.Min(ms),
		MaxMS:  floats.Max(ms),
		P50MS:  stat.Quantile(0.50, stat.Empirical, ms, nil),
		P95MS:  stat.Quantile(0.95, stat.Empirical, ms, nil),
		P99MS:  stat.Quantile(0.99, stat.Empirical, ms, nil),
	}
	if len(ms) > 1 {
		s.StdMS = stat.StdDev(ms, nil)
	}
	return s
}

// Milliseconds converts durations to float milliseconds, preserving order.
func Milliseconds(durations []time.Duration) []float64 {
	out := make([]float64, len(durations))
	for i, d := range durations {
		out[i] = float64(d) / float64(time.Millisecond)
	}
	return out
}

// LogValue implements slog.LogValuer for structured logging.
func (s FrameSummary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("frames", s.Frames),
		slog.Float64("mean_ms", s.MeanMS),
		slog.Float64("std_ms", s.StdMS),
		slog.Float64("p50_ms", s.P50MS),
		slog.Float64("p95_ms", s.P95MS),
		slog.Float64("p99_ms", s.P99MS),
		slog.Float64("max_ms", s.MaxMS),
	)
}
