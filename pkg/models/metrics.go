package models

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// MetricSnapshot represents a point-in-time snapshot of parameter cache
// metrics.
//
// Design: Uses primitive types for zero-allocation access in hot paths.
// All fields are exported for direct access but should be treated as
// immutable after creation.
type MetricSnapshot struct {
	Timestamp time.Time // When snapshot was taken

	// Counter metrics
	Writes      uint64 // Total Update calls accepted into a CacheEntry
	Drops       uint64 // Total out-of-order writes dropped (P4)
	Grows       uint64 // Total ring-buffer growth events
	Expirations uint64 // Total ACQUIRED->EXPIRED transitions observed

	// Size metrics
	TrackedParameters uint64 // Number of distinct parameters currently cached
	TotalEntries      uint64 // Sum of retained deliveries across all parameters

	// Latency metrics
	Latency LatencySummary // Read-call latency statistics

	// Derived metrics (calculated fields)
	DropRate float64 // Drops / (Writes + Drops)
}

// LatencySummary provides statistical summary of latency measurements.
//
// Memory: Fixed size struct (no allocations for updates).
// Thread Safety: Caller must synchronize access.
type LatencySummary struct {
	Count uint64        // Number of samples
	Sum   time.Duration // Sum of all samples
	Min   time.Duration // Minimum latency
	Max   time.Duration // Maximum latency
	P50   time.Duration // 50th percentile (median)
	P90   time.Duration // 90th percentile
	P95   time.Duration // 95th percentile
	P99   time.Duration // 99th percentile
}

// NewMetricSnapshot creates a new metric snapshot with calculated derived fields.
func NewMetricSnapshot(writes, drops, grows, expirations, trackedParameters, totalEntries uint64, latency LatencySummary) MetricSnapshot {
	dropRate := 0.0
	if total := writes + drops; total > 0 {
		dropRate = float64(drops) / float64(total)
	}

	return MetricSnapshot{
		Timestamp:         time.Now(),
		Writes:            writes,
		Drops:             drops,
		Grows:             grows,
		Expirations:       expirations,
		TrackedParameters: trackedParameters,
		TotalEntries:      totalEntries,
		Latency:           latency,
		DropRate:          dropRate,
	}
}

// TotalWriteAttempts returns the total number of Update calls attempted
// for this parameter (accepted writes plus dropped out-of-order ones).
func (m *MetricSnapshot) TotalWriteAttempts() uint64 {
	return m.Writes + m.Drops
}

// MergeSnapshots combines two metric snapshots, as when aggregating
// per-shard collectors into one cache-wide view.
// Complexity: O(1)
func MergeSnapshots(a, b MetricSnapshot) MetricSnapshot {
	writes := a.Writes + b.Writes
	drops := a.Drops + b.Drops
	grows := a.Grows + b.Grows
	expirations := a.Expirations + b.Expirations
	trackedParameters := a.TrackedParameters + b.TrackedParameters
	totalEntries := a.TotalEntries + b.TotalEntries

	latency := MergeLatencySummaries(a.Latency, b.Latency)

	dropRate := 0.0
	if total := writes + drops; total > 0 {
		dropRate = float64(drops) / float64(total)
	}

	return MetricSnapshot{
		Timestamp:         time.Now(),
		Writes:            writes,
		Drops:             drops,
		Grows:             grows,
		Expirations:       expirations,
		TrackedParameters: trackedParameters,
		TotalEntries:      totalEntries,
		Latency:           latency,
		DropRate:          dropRate,
	}
}

// MergeLatencySummaries combines two latency summaries.
// Note: Percentiles are approximated by taking weighted average based on sample count.
// For exact percentiles, original sample data is required.
func MergeLatencySummaries(a, b LatencySummary) LatencySummary {
	if a.Count == 0 {
		return b
	}
	if b.Count == 0 {
		return a
	}

	totalCount := a.Count + b.Count
	weightA := float64(a.Count) / float64(totalCount)
	weightB := float64(b.Count) / float64(totalCount)

	return LatencySummary{
		Count: totalCount,
		Sum:   a.Sum + b.Sum,
		Min:   minDuration(a.Min, b.Min),
		Max:   maxDuration(a.Max, b.Max),
		P50:   time.Duration(float64(a.P50)*weightA + float64(b.P50)*weightB),
		P90:   time.Duration(float64(a.P90)*weightA + float64(b.P90)*weightB),
		P95:   time.Duration(float64(a.P95)*weightA + float64(b.P95)*weightB),
		P99:   time.Duration(float64(a.P99)*weightA + float64(b.P99)*weightB),
	}
}

// UpdateLatency updates a latency summary with a new sample.
// Note: This does NOT update percentiles accurately. For accurate percentiles,
// store samples and recalculate periodically using CalculateLatencySummary.
//
// This method only updates Count, Sum, Min, Max for efficiency.
// Percentiles should be recalculated from raw samples.
func UpdateLatency(summary *LatencySummary, sample time.Duration) {
	if summary.Count == 0 {
		summary.Min = sample
		summary.Max = sample
	} else {
		if sample < summary.Min {
			summary.Min = sample
		}
		if sample > summary.Max {
			summary.Max = sample
		}
	}

	summary.Count++
	summary.Sum += sample
}

// CalculateLatencySummary computes accurate latency summary from samples.
// Complexity: O(n log n) due to sorting for percentiles.
func CalculateLatencySummary(samples []time.Duration) LatencySummary {
	if len(samples) == 0 {
		return LatencySummary{}
	}

	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, sample := range sorted {
		sum += sample
	}

	return LatencySummary{
		Count: uint64(len(sorted)),
		Sum:   sum,
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		P50:   percentileDuration(sorted, 0.50),
		P90:   percentileDuration(sorted, 0.90),
		P95:   percentileDuration(sorted, 0.95),
		P99:   percentileDuration(sorted, 0.99),
	}
}

// AvgLatency returns the average latency.
func (ls *LatencySummary) AvgLatency() time.Duration {
	if ls.Count == 0 {
		return 0
	}
	return ls.Sum / time.Duration(ls.Count)
}

// SnapshotToPrometheusFormat converts a snapshot to Prometheus-compatible metrics map.
// Returns a map of metric_name -> float64 value suitable for Prometheus export.
func SnapshotToPrometheusFormat(snapshot MetricSnapshot, prefix string) map[string]float64 {
	metrics := make(map[string]float64)

	metrics[fmt.Sprintf("%s_writes_total", prefix)] = float64(snapshot.Writes)
	metrics[fmt.Sprintf("%s_drops_total", prefix)] = float64(snapshot.Drops)
	metrics[fmt.Sprintf("%s_grows_total", prefix)] = float64(snapshot.Grows)
	metrics[fmt.Sprintf("%s_expirations_total", prefix)] = float64(snapshot.Expirations)

	metrics[fmt.Sprintf("%s_drop_rate", prefix)] = snapshot.DropRate
	metrics[fmt.Sprintf("%s_tracked_parameters", prefix)] = float64(snapshot.TrackedParameters)
	metrics[fmt.Sprintf("%s_total_entries", prefix)] = float64(snapshot.TotalEntries)

	metrics[fmt.Sprintf("%s_latency_avg_ms", prefix)] = float64(snapshot.Latency.AvgLatency().Milliseconds())
	metrics[fmt.Sprintf("%s_latency_min_ms", prefix)] = float64(snapshot.Latency.Min.Milliseconds())
	metrics[fmt.Sprintf("%s_latency_max_ms", prefix)] = float64(snapshot.Latency.Max.Milliseconds())
	metrics[fmt.Sprintf("%s_latency_p50_ms", prefix)] = float64(snapshot.Latency.P50.Milliseconds())
	metrics[fmt.Sprintf("%s_latency_p90_ms", prefix)] = float64(snapshot.Latency.P90.Milliseconds())
	metrics[fmt.Sprintf("%s_latency_p95_ms", prefix)] = float64(snapshot.Latency.P95.Milliseconds())
	metrics[fmt.Sprintf("%s_latency_p99_ms", prefix)] = float64(snapshot.Latency.P99.Milliseconds())

	return metrics
}

// Helper functions

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// percentileDuration calculates the p-th percentile from sorted durations.
// Assumes samples is already sorted.
func percentileDuration(samples []time.Duration, p float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}

	index := p * float64(len(samples)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))

	if lower == upper {
		return samples[lower]
	}

	weight := index - float64(lower)
	return time.Duration(float64(samples[lower])*(1-weight) + float64(samples[upper])*weight)
}
