// Package stats computes latency summaries for forwarded calls.
package stats

import (
	"math"
	"slices"
	"time"
)

// Latency summarizes call latencies. Percentiles use the nearest-rank
// method, so with few samples P95 and P99 equal Max.
type Latency struct {
	Count int
	Avg   time.Duration
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
	Max   time.Duration
}

// Summarize computes the latency summary of a set of forwarded calls.
//
// Parameters:
//   - samples: Call latencies in any order (may be empty; not modified)
//
// Returns:
//   - Latency: Count, mean and nearest-rank percentiles; zero for no samples
//
// Algorithm:
//  1. Copy and sort the samples ascending
//  2. Average over the sorted copy
//  3. Read P50/P95/P99 with Percentile; Max is the last element
func Summarize(samples []time.Duration) Latency {
	if len(samples) == 0 {
		return Latency{}
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	return Latency{
		Count: len(sorted),
		Avg:   total / time.Duration(len(sorted)),
		P50:   Percentile(sorted, 0.50),
		P95:   Percentile(sorted, 0.95),
		P99:   Percentile(sorted, 0.99),
		Max:   sorted[len(sorted)-1],
	}
}

// Percentile returns the value at fraction p (0..1] of sorted, which must
// be in ascending order: index ceil(n*p)-1 clamped to the slice.
func Percentile(sorted []time.Duration, p float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	i := int(math.Ceil(float64(n)*p)) - 1
	return sorted[min(max(i, 0), n-1)]
}
