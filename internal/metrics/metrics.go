package metrics

// Transfer benchmark samples and summary statistics

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Sample is one timed read of the logging structure.
type Sample struct {
	Index   int           `json:"index"`
	Elapsed time.Duration `json:"elapsed_ns"`
	Bytes   int           `json:"bytes"`
	Error   string        `json:"error,omitempty"`
}

// Millis returns the elapsed time in milliseconds.
func (s Sample) Millis() float64 {
	return float64(s.Elapsed) / float64(time.Millisecond)
}

// Speed returns the transfer speed in kB/s (bytes per millisecond).
func (s Sample) Speed() float64 {
	ms := s.Millis()
	if ms <= 0 {
		return 0
	}
	return float64(s.Bytes) / ms
}

// Summary contains aggregated statistics over successful samples.
type Summary struct {
	Count     int     `json:"count"`
	Failed    int     `json:"failed"`
	BlockSize int     `json:"block_size"`
	MinMs     float64 `json:"min_ms"`
	MaxMs     float64 `json:"max_ms"`
	AvgMs     float64 `json:"avg_ms"`
	P50Ms     float64 `json:"p50_ms"`
	P90Ms     float64 `json:"p90_ms"`
	P99Ms     float64 `json:"p99_ms"`
	// MinSpeed is measured at the slowest sample, AvgSpeed over all bytes.
	MinSpeed float64 `json:"min_speed_kbps"`
	AvgSpeed float64 `json:"avg_speed_kbps"`
}

// Sink collects benchmark samples.
type Sink struct {
	mu        sync.RWMutex
	blockSize int
	samples   []Sample
}

// NewSink creates a sink for reads of blockSize bytes.
func NewSink(blockSize int) *Sink {
	return &Sink{blockSize: blockSize}
}

// Record records a successful read.
func (s *Sink) Record(elapsed time.Duration) {
	s.add(Sample{Elapsed: elapsed, Bytes: s.blockSize})
}

// RecordError records a failed read.
func (s *Sink) RecordError(elapsed time.Duration, err error) {
	s.add(Sample{Elapsed: elapsed, Error: err.Error()})
}

func (s *Sink) add(sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sample.Index = len(s.samples) + 1
	s.samples = append(s.samples, sample)
}

// Samples returns a copy of all recorded samples
func (s *Sink) Samples() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	samples := make([]Sample, len(s.samples))
	copy(samples, s.samples)
	return samples
}

// Summary computes the statistics over successful samples.
func (s *Sink) Summary() *Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := &Summary{BlockSize: s.blockSize}
	times := make([]float64, 0, len(s.samples))
	var total float64
	for _, sample := range s.samples {
		if sample.Error != "" {
			summary.Failed++
			continue
		}
		ms := sample.Millis()
		if summary.Count == 0 || ms < summary.MinMs {
			summary.MinMs = ms
		}
		if ms > summary.MaxMs {
			summary.MaxMs = ms
		}
		total += ms
		summary.Count++
		times = append(times, ms)
	}
	if summary.Count == 0 {
		return summary
	}

	summary.AvgMs = total / float64(summary.Count)
	if summary.MaxMs > 0 {
		summary.MinSpeed = float64(s.blockSize) / summary.MaxMs
	}
	if total > 0 {
		summary.AvgSpeed = float64(s.blockSize) * float64(summary.Count) / total
	}
	p := computePercentiles(times)
	summary.P50Ms, summary.P90Ms, summary.P99Ms = p[0], p[1], p[2]
	return summary
}

func computePercentiles(values []float64) [3]float64 {
	var result [3]float64
	if len(values) == 0 {
		return result
	}
	sort.Float64s(values)
	result[0] = percentile(values, 0.50)
	result[1] = percentile(values, 0.90)
	result[2] = percentile(values, 0.99)
	return result
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
