package service

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

const (
	defaultMonitorSamples = 1000
	slowServeThreshold    = 100 * time.Millisecond
)

// PerformanceMonitor tracks how snapshot reads are served: which tier answered
// and how long it took. Reads answered without an upstream refresh count as hits.
type PerformanceMonitor struct {
	mu          sync.RWMutex
	hitTimes    []time.Duration
	refreshTime []time.Duration
	byTier      map[string]int64
	hits        int64
	misses      int64
	failures    int64
	slow        int64
	total       int64
	maxSamples  int
}

// PerformanceStats contains serving statistics
type PerformanceStats struct {
	TotalReads   int64            `json:"totalReads"`
	Hits         int64            `json:"hits"`
	Misses       int64            `json:"misses"`
	Failures     int64            `json:"failures"`
	SlowReads    int64            `json:"slowReads"`
	HitRate      float64          `json:"hitRate"` // percent
	ByTier       map[string]int64 `json:"byTier"`
	AvgHitMs     float64          `json:"avgHitMs"`
	AvgRefreshMs float64          `json:"avgRefreshMs"`
	P95HitMs     float64          `json:"p95HitMs"`
	P99HitMs     float64          `json:"p99HitMs"`
}

// PerformanceCheck contains performance check results
type PerformanceCheck struct {
	Passed bool     `json:"passed"`
	Issues []string `json:"issues"`
}

// NewPerformanceMonitor creates a new performance monitor
func NewPerformanceMonitor() *PerformanceMonitor {
	return &PerformanceMonitor{
		hitTimes:    make([]time.Duration, 0, defaultMonitorSamples),
		refreshTime: make([]time.Duration, 0, defaultMonitorSamples),
		byTier:      make(map[string]int64),
		maxSamples:  defaultMonitorSamples,
	}
}

// RecordServe records one snapshot read. tier is empty when every tier missed.
func (pm *PerformanceMonitor) RecordServe(tier string, duration time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.total++
	if duration > slowServeThreshold {
		pm.slow++
	}

	switch tier {
	case "":
		pm.failures++
		return
	case tierRefresh:
		pm.misses++
		pm.refreshTime = appendSample(pm.refreshTime, duration, pm.maxSamples)
	default:
		pm.hits++
		pm.hitTimes = appendSample(pm.hitTimes, duration, pm.maxSamples)
	}
	pm.byTier[tier]++
}

// appendSample keeps only the newest max samples
func appendSample(samples []time.Duration, d time.Duration, max int) []time.Duration {
	samples = append(samples, d)
	if len(samples) > max {
		samples = samples[len(samples)-max:]
	}
	return samples
}

// GetStats returns current serving statistics
func (pm *PerformanceMonitor) GetStats() *PerformanceStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	stats := &PerformanceStats{
		TotalReads: pm.total,
		Hits:       pm.hits,
		Misses:     pm.misses,
		Failures:   pm.failures,
		SlowReads:  pm.slow,
		ByTier:     make(map[string]int64, len(pm.byTier)),
	}
	for tier, n := range pm.byTier {
		stats.ByTier[tier] = n
	}

	if pm.total > 0 {
		stats.HitRate = float64(pm.hits) / float64(pm.total) * 100
	}
	stats.AvgHitMs = averageMs(pm.hitTimes)
	stats.AvgRefreshMs = averageMs(pm.refreshTime)

	if len(pm.hitTimes) > 0 {
		sorted := make([]time.Duration, len(pm.hitTimes))
		copy(sorted, pm.hitTimes)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		p95Index := int(float64(len(sorted)) * 0.95)
		p99Index := int(float64(len(sorted)) * 0.99)
		if p95Index < len(sorted) {
			stats.P95HitMs = float64(sorted[p95Index].Milliseconds())
		}
		if p99Index < len(sorted) {
			stats.P99HitMs = float64(sorted[p99Index].Milliseconds())
		}
	}

	return stats
}

func averageMs(samples []time.Duration) float64 {
	if len(samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range samples {
		total += d
	}
	return float64(total.Milliseconds()) / float64(len(samples))
}

// Reset resets all metrics
func (pm *PerformanceMonitor) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.hitTimes = make([]time.Duration, 0, pm.maxSamples)
	pm.refreshTime = make([]time.Duration, 0, pm.maxSamples)
	pm.byTier = make(map[string]int64)
	pm.hits = 0
	pm.misses = 0
	pm.failures = 0
	pm.slow = 0
	pm.total = 0
}

// CheckPerformance reports whether cached reads stay under 100ms
func (pm *PerformanceMonitor) CheckPerformance() *PerformanceCheck {
	stats := pm.GetStats()

	check := &PerformanceCheck{
		Passed: true,
		Issues: make([]string, 0),
	}

	if stats.AvgHitMs > 100 {
		check.Passed = false
		check.Issues = append(check.Issues,
			fmt.Sprintf("Average cached read time (%.2fms) exceeds 100ms threshold", stats.AvgHitMs))
	}
	if stats.P95HitMs > 100 {
		check.Passed = false
		check.Issues = append(check.Issues,
			fmt.Sprintf("P95 cached read time (%.2fms) exceeds 100ms threshold", stats.P95HitMs))
	}

	// a low hit rate means reads are waiting on upstream refreshes
	if stats.HitRate < 70 && stats.TotalReads > 100 {
		check.Issues = append(check.Issues,
			fmt.Sprintf("Hit rate (%.2f%%) is below 70%% - consider a longer freshness window", stats.HitRate))
	}

	return check
}
