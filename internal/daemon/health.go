package daemon

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/wayfind/internal/assetsync"
	"git.home.luguber.info/inful/wayfind/internal/supervisor"
	"git.home.luguber.info/inful/wayfind/internal/version"
)

// HealthStatus represents the overall health of the daemon
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a single health check
type HealthCheck struct {
	Name     string        `json:"name"`
	Status   HealthStatus  `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Version   string        `json:"version"`
	Checks    []HealthCheck `json:"checks"`
}

// PerformHealthChecks executes all health checks and returns the overall status.
// A missing project directory is unhealthy; anything else only degrades.
func (d *Daemon) PerformHealthChecks(ctx context.Context) *HealthResponse {
	checks := []HealthCheck{
		timed("project_dir", d.checkProjectDir),
		timed("server", func() (HealthStatus, string) { return d.checkServer(ctx) }),
		timed("updates", d.checkUpdates),
	}

	overall := HealthStatusHealthy
	for _, c := range checks {
		switch {
		case c.Status == HealthStatusUnhealthy:
			overall = HealthStatusUnhealthy
		case c.Status == HealthStatusDegraded && overall == HealthStatusHealthy:
			overall = HealthStatusDegraded
		}
	}

	return &HealthResponse{
		Status:    overall,
		Timestamp: time.Now(),
		Uptime:    time.Since(d.startTime).String(),
		Version:   version.Version,
		Checks:    checks,
	}
}

func timed(name string, check func() (HealthStatus, string)) HealthCheck {
	start := time.Now()
	status, msg := check()
	return HealthCheck{Name: name, Status: status, Message: msg, Duration: time.Since(start)}
}

func (d *Daemon) checkProjectDir() (HealthStatus, string) {
	dir := d.ProjectDir()
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return HealthStatusUnhealthy, "project directory missing: " + dir
	}
	if _, err := os.Stat(filepath.Join(dir, assetsync.IndexFile)); err != nil {
		return HealthStatusDegraded, "display page not downloaded yet"
	}
	return HealthStatusHealthy, ""
}

func (d *Daemon) checkServer(ctx context.Context) (HealthStatus, string) {
	state := d.supervisor.State()
	if state != supervisor.StateRunning {
		return HealthStatusDegraded, "server is " + string(state)
	}
	if !d.supervisor.Probe(ctx) {
		return HealthStatusDegraded, "server is not accepting connections"
	}
	return HealthStatusHealthy, ""
}

func (d *Daemon) checkUpdates() (HealthStatus, string) {
	st := d.updater.Status()
	if st.LastAttempt.IsZero() {
		return HealthStatusHealthy, "no update attempted yet"
	}
	if st.LastSuccess.IsZero() {
		return HealthStatusDegraded, "no successful update yet"
	}
	if limit := 2 * d.Settings().Sync.Interval; time.Since(st.LastSuccess) > limit {
		return HealthStatusDegraded, "last successful update is older than " + limit.String()
	}
	return HealthStatusHealthy, ""
}
