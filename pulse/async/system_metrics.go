package async

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/dataq/errors"
)

// SystemMetrics tracks resource usage for worker pool monitoring
type SystemMetrics struct {
	WorkersActive int     `json:"workers_active"`  // Workers currently executing jobs
	WorkersTotal  int     `json:"workers_total"`   // Total configured workers
	MemoryUsedGB  float64 `json:"memory_used_gb"`  // Current memory usage in GB
	MemoryTotalGB float64 `json:"memory_total_gb"` // Total system memory in GB
	MemoryPercent float64 `json:"memory_percent"`  // Memory utilization percentage
	JobsQueued    int     `json:"jobs_queued"`     // Jobs waiting in queue
	JobsRunning   int     `json:"jobs_running"`    // Jobs currently executing
}

// getMemoryStats returns total and available memory in bytes
var getMemoryStats = func() (total uint64, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get memory stats")
	}
	return v.Total, v.Available, nil
}

// calculateSafeWorkerCount recommends a worker count for availableGB.
// A processing job holds one decoded upload (at most upload.max_mb on disk,
// several times that once parsed) plus profiling state.
func calculateSafeWorkerCount(availableGB float64) int {
	const memoryPerWorker = 0.5 // GB per concurrent processing job
	const memoryBuffer = 1.0    // GB reserved for the server and the OS

	if availableGB < memoryBuffer {
		return 1 // Always allow at least 1 worker
	}

	recommended := int((availableGB - memoryBuffer) / memoryPerWorker)
	if recommended < 1 {
		return 1
	}
	if recommended > 32 {
		return 32
	}
	return recommended
}

// GetSystemMetrics returns current system resource usage
func (wp *WorkerPool) GetSystemMetrics() SystemMetrics {
	total, available, err := getMemoryStats()

	var memUsedGB, memTotalGB, memPercent float64
	if err == nil && total > 0 {
		memTotalGB = float64(total) / 1024 / 1024 / 1024
		memUsedGB = float64(total-available) / 1024 / 1024 / 1024
		memPercent = (memUsedGB / memTotalGB) * 100
	}

	var queued, running int
	if stats, err := wp.queue.GetStats(); err == nil {
		queued, running = stats.Queued, stats.Running
	}

	wp.mu.Lock()
	activeWorkers := wp.activeWorkers
	wp.mu.Unlock()

	return SystemMetrics{
		WorkersActive: activeWorkers,
		WorkersTotal:  wp.config.Workers,
		MemoryUsedGB:  memUsedGB,
		MemoryTotalGB: memTotalGB,
		MemoryPercent: memPercent,
		JobsQueued:    queued,
		JobsRunning:   running,
	}
}

// checkMemoryPressure validates worker count against available memory.
// Returns a warning message if the worker count may be too high.
func (wp *WorkerPool) checkMemoryPressure() string {
	total, available, err := getMemoryStats()
	if err != nil {
		return "" // Can't check, assume OK
	}

	availableGB := float64(available) / 1024 / 1024 / 1024
	totalGB := float64(total) / 1024 / 1024 / 1024
	recommended := calculateSafeWorkerCount(availableGB)

	if wp.config.Workers > recommended {
		return fmt.Sprintf(
			"Worker count (%d) exceeds recommended (%d) for available memory (%.1f/%.1fGB). "+
				"Consider reducing pulse.workers to prevent memory pressure.",
			wp.config.Workers, recommended, totalGB-availableGB, totalGB)
	}
	return ""
}
