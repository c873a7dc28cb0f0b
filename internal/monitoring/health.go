package monitoring

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck is the result of a pre-import environment check
type HealthCheck struct {
	Status        HealthStatus     `json:"status"`
	Version       string           `json:"version"`
	MemoryUsageMB uint64           `json:"memory_usage_mb"`
	Checks        map[string]Check `json:"checks"`
	Timestamp     time.Time        `json:"timestamp"`
}

// Check represents an individual health check
type Check struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// HealthTarget names the things an import will touch.
type HealthTarget struct {
	Device   string
	MusicDir string
}

// HealthChecker verifies that an import can run before a disc is spun up
type HealthChecker struct {
	version string
	db      *sql.DB
}

// NewHealthChecker creates a new health checker. db may be nil when the
// history store is disabled.
func NewHealthChecker(version string, db *sql.DB) *HealthChecker {
	return &HealthChecker{
		version: version,
		db:      db,
	}
}

// Check performs all health checks and returns the result
func (h *HealthChecker) Check(ctx context.Context, target HealthTarget) *HealthCheck {
	checks := map[string]Check{
		"database":  h.checkDatabase(ctx),
		"memory":    h.checkMemory(),
		"music_dir": checkMusicDir(target.MusicDir),
		"device":    checkDevice(target.Device),
	}

	overall := HealthStatusHealthy
	for _, c := range checks {
		overall = worse(overall, c.Status)
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return &HealthCheck{
		Status:        overall,
		Version:       h.version,
		MemoryUsageMB: m.Alloc / 1024 / 1024,
		Checks:        checks,
		Timestamp:     time.Now(),
	}
}

func worse(a, b HealthStatus) HealthStatus {
	rank := map[HealthStatus]int{HealthStatusHealthy: 0, HealthStatusDegraded: 1, HealthStatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// checkDatabase checks database connectivity. A missing store only degrades
// the import since history is optional.
func (h *HealthChecker) checkDatabase(ctx context.Context) Check {
	if h.db == nil {
		return Check{Status: HealthStatusDegraded, Message: "History store disabled"}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		return Check{Status: HealthStatusUnhealthy, Message: "Database ping failed: " + err.Error()}
	}
	return Check{Status: HealthStatusHealthy, Message: "Database connection is healthy"}
}

// checkMemory checks memory usage
func (h *HealthChecker) checkMemory() Check {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	memoryMB := m.Alloc / 1024 / 1024

	// A full track of PCM is held in memory, roughly 10 MB per minute.
	const (
		warningThresholdMB  = 1024
		criticalThresholdMB = 2048
	)

	switch {
	case memoryMB > criticalThresholdMB:
		return Check{Status: HealthStatusUnhealthy, Message: "Memory usage is critically high"}
	case memoryMB > warningThresholdMB:
		return Check{Status: HealthStatusDegraded, Message: "Memory usage is elevated"}
	}
	return Check{Status: HealthStatusHealthy, Message: "Memory usage is normal"}
}

// checkMusicDir verifies the library root exists (or can be created) and is writable
func checkMusicDir(dir string) Check {
	if dir == "" {
		return Check{Status: HealthStatusDegraded, Message: "No music directory given"}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Check{Status: HealthStatusUnhealthy, Message: "Cannot create music directory: " + err.Error()}
	}

	probe, err := os.CreateTemp(dir, ".mfutil-probe-*")
	if err != nil {
		return Check{Status: HealthStatusUnhealthy, Message: "Music directory is not writable: " + err.Error()}
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)

	return Check{Status: HealthStatusHealthy, Message: fmt.Sprintf("%s is writable", filepath.Clean(dir))}
}

// checkDevice verifies the device node exists
func checkDevice(device string) Check {
	if device == "" {
		return Check{Status: HealthStatusDegraded, Message: "No device given"}
	}
	if _, err := os.Stat(device); err != nil {
		return Check{Status: HealthStatusUnhealthy, Message: "Device not found: " + err.Error()}
	}
	return Check{Status: HealthStatusHealthy, Message: device + " present"}
}
