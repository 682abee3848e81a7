// Package benchmark measures search index performance under concurrent
// readers.
//
// The daemon writes to the index while frontends query it, so the
// interesting number is query latency with many readers hitting the
// same SQLite file. The runner seeds a synthetic index and hammers it
// with concurrent name searches.
package benchmark

import (
	"fmt"
	"runtime"
	"sort"
	"time"
)

// Config defines the parameters for a benchmark run.
type Config struct {
	// Readers is the number of concurrent query goroutines.
	Readers int

	// Files is the number of records seeded into the index.
	Files int

	// QueriesPerReader is how many searches each reader performs.
	QueriesPerReader int

	// IndexPath is where the benchmark index is created.
	IndexPath string
}

// DefaultConfig returns a configuration matching a busy multi-frontend
// setup.
func DefaultConfig() Config {
	return Config{
		Readers:          50,
		Files:            10000,
		QueriesPerReader: 20,
		IndexPath:        "/tmp/drivesync-bench.db",
	}
}

// Result captures all metrics from a benchmark run.
type Result struct {
	Config Config

	Latency    LatencyMetrics
	Throughput ThroughputMetrics
	Resources  ResourceMetrics

	SeedDuration  time.Duration
	TotalDuration time.Duration
	ErrorCount    int
	ErrorRate     float64
	Success       bool
}

// LatencyMetrics captures query latency statistics.
type LatencyMetrics struct {
	Min  time.Duration
	P50  time.Duration
	Mean time.Duration
	P95  time.Duration
	P99  time.Duration
	Max  time.Duration

	// Raw durations, sorted, for further analysis.
	Durations []time.Duration
}

// ThroughputMetrics captures queries-per-second metrics.
type ThroughputMetrics struct {
	QueriesPerSecond float64
	TotalQueries     int
}

// ResourceMetrics captures memory usage around the run.
type ResourceMetrics struct {
	MemoryBeforeBytes uint64
	MemoryAfterBytes  uint64
	MemoryPeakBytes   uint64
	MemoryDeltaBytes  uint64
}

// ComputeStats calculates latency statistics from raw durations.
func ComputeStats(durations []time.Duration) LatencyMetrics {
	if len(durations) == 0 {
		return LatencyMetrics{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return LatencyMetrics{
		Min:       sorted[0],
		P50:       sorted[len(sorted)*50/100],
		Mean:      sum / time.Duration(len(sorted)),
		P95:       sorted[len(sorted)*95/100],
		P99:       sorted[len(sorted)*99/100],
		Max:       sorted[len(sorted)-1],
		Durations: sorted,
	}
}

// MemorySnapshot returns current memory usage.
func MemorySnapshot() ResourceMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return ResourceMetrics{
		MemoryBeforeBytes: m.Alloc,
		MemoryAfterBytes:  m.Alloc,
		MemoryPeakBytes:   m.Sys,
	}
}

// CompareMemory computes the delta between before and after snapshots.
func CompareMemory(before, after ResourceMetrics) ResourceMetrics {
	return ResourceMetrics{
		MemoryBeforeBytes: before.MemoryBeforeBytes,
		MemoryAfterBytes:  after.MemoryAfterBytes,
		MemoryPeakBytes:   after.MemoryPeakBytes,
		MemoryDeltaBytes:  after.MemoryAfterBytes - before.MemoryBeforeBytes,
	}
}

// FormatBytes formats bytes into a human-readable string.
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatDuration formats a duration into a human-readable string.
func FormatDuration(d time.Duration) string {
	if d < time.Microsecond {
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%.2fµs", float64(d.Nanoseconds())/1000.0)
	}
	if d < time.Second {
		return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000.0)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// PrintResult outputs a formatted benchmark result.
func PrintResult(result Result) {
	fmt.Printf("\n=== Index Benchmark Results ===\n\n")

	fmt.Printf("Configuration:\n")
	fmt.Printf("  Concurrent Readers: %d\n", result.Config.Readers)
	fmt.Printf("  Indexed Files:      %d\n", result.Config.Files)
	fmt.Printf("  Queries per Reader: %d\n", result.Config.QueriesPerReader)
	fmt.Printf("\n")

	fmt.Printf("Latency:\n")
	fmt.Printf("  Min:       %s\n", FormatDuration(result.Latency.Min))
	fmt.Printf("  P50:       %s\n", FormatDuration(result.Latency.P50))
	fmt.Printf("  Mean:      %s\n", FormatDuration(result.Latency.Mean))
	fmt.Printf("  P95:       %s\n", FormatDuration(result.Latency.P95))
	fmt.Printf("  P99:       %s\n", FormatDuration(result.Latency.P99))
	fmt.Printf("  Max:       %s\n", FormatDuration(result.Latency.Max))
	fmt.Printf("\n")

	fmt.Printf("Throughput:\n")
	fmt.Printf("  Queries/sec:       %.2f\n", result.Throughput.QueriesPerSecond)
	fmt.Printf("  Total Queries:     %d\n", result.Throughput.TotalQueries)
	fmt.Printf("\n")

	fmt.Printf("Resources:\n")
	fmt.Printf("  Memory Before:     %s\n", FormatBytes(result.Resources.MemoryBeforeBytes))
	fmt.Printf("  Memory After:      %s\n", FormatBytes(result.Resources.MemoryAfterBytes))
	fmt.Printf("  Memory Delta:      %s\n", FormatBytes(result.Resources.MemoryDeltaBytes))
	fmt.Printf("\n")

	fmt.Printf("Run:\n")
	fmt.Printf("  Seed Time:         %s\n", FormatDuration(result.SeedDuration))
	fmt.Printf("  Total Time:        %s\n", FormatDuration(result.TotalDuration))
	fmt.Printf("  Errors:            %d (%.2f%%)\n", result.ErrorCount, result.ErrorRate*100)
	if result.Success {
		fmt.Printf("  Status:            PASS\n")
	} else {
		fmt.Printf("  Status:            FAIL\n")
	}
	fmt.Printf("\n")
}
