package async

// SystemMetrics reports resource usage for the health endpoint.
type SystemMetrics struct {
	JobsQueued    int     `json:"jobs_queued"`     // Fetch jobs waiting to start
	JobsRunning   int     `json:"jobs_running"`    // Fetch jobs currently executing
	MemoryUsedGB  float64 `json:"memory_used_gb"`  // Current memory usage in GB
	MemoryTotalGB float64 `json:"memory_total_gb"` // Total system memory in GB
	MemoryPercent float64 `json:"memory_percent"`  // Memory utilization percentage
}

// getMemoryStats is implemented in platform-specific files:
// - metrics_linux.go for Linux
// - metrics_darwin.go for macOS
// - metrics_windows.go for Windows

// SystemMetrics returns current memory usage and fetch queue depth.
func (c *Controller) SystemMetrics() SystemMetrics {
	total, available, err := getMemoryStats()

	var memUsedGB, memTotalGB, memPercent float64
	if err == nil && total > 0 {
		memTotalGB = float64(total) / 1024 / 1024 / 1024
		memUsedGB = float64(total-available) / 1024 / 1024 / 1024
		memPercent = (memUsedGB / memTotalGB) * 100
	}

	var queued, running int
	for _, job := range c.fetchJobs.List() {
		switch job.Status {
		case JobStatusQueued:
			queued++
		case JobStatusRunning:
			running++
		}
	}

	return SystemMetrics{
		JobsQueued:    queued,
		JobsRunning:   running,
		MemoryUsedGB:  memUsedGB,
		MemoryTotalGB: memTotalGB,
		MemoryPercent: memPercent,
	}
}
