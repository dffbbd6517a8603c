package engine

import (
	"sync"
	"time"
)

// PerformanceMetrics accumulates execution counters across runs. All methods
// are safe for concurrent use.
type PerformanceMetrics struct {
	mutex            sync.Mutex
	commandsExecuted int64
	successCount     int64
	totalDuration    time.Duration
}

// MetricsSnapshot is a point-in-time copy of the accumulated counters.
type MetricsSnapshot struct {
	CommandsExecuted int64         `json:"commands_executed"`
	SuccessCount     int64         `json:"success_count"`
	FailureCount     int64         `json:"failure_count"`
	TotalDuration    time.Duration `json:"total_duration"`
	AverageDuration  time.Duration `json:"average_duration"`
	SuccessRate      float64       `json:"success_rate"`
}

// RecordRun folds one completed execution into the counters.
func (performanceMetrics *PerformanceMetrics) RecordRun(succeeded bool, duration time.Duration) {
	performanceMetrics.mutex.Lock()
	defer performanceMetrics.mutex.Unlock()
	performanceMetrics.commandsExecuted++
	if succeeded {
		performanceMetrics.successCount++
	}
	performanceMetrics.totalDuration += duration
}

// Snapshot returns a copy of the current counters with the derived average.
func (performanceMetrics *PerformanceMetrics) Snapshot() MetricsSnapshot {
	performanceMetrics.mutex.Lock()
	defer performanceMetrics.mutex.Unlock()
	snapshot := MetricsSnapshot{
		CommandsExecuted: performanceMetrics.commandsExecuted,
		SuccessCount:     performanceMetrics.successCount,
		FailureCount:     performanceMetrics.commandsExecuted - performanceMetrics.successCount,
		TotalDuration:    performanceMetrics.totalDuration,
	}
	if snapshot.CommandsExecuted > 0 {
		snapshot.AverageDuration = performanceMetrics.totalDuration / time.Duration(snapshot.CommandsExecuted)
		snapshot.SuccessRate = float64(snapshot.SuccessCount) / float64(snapshot.CommandsExecuted)
	}
	return snapshot
}

// Reset clears all counters.
func (performanceMetrics *PerformanceMetrics) Reset() {
	performanceMetrics.mutex.Lock()
	defer performanceMetrics.mutex.Unlock()
	performanceMetrics.commandsExecuted = 0
	performanceMetrics.successCount = 0
	performanceMetrics.totalDuration = 0
}
