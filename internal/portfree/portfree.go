// Package portfree frees a TCP port held by a stale listener, typically an orphaned
// display server left behind by an earlier supervisor run.
package portfree

import (
	"log/slog"
	"os"
	"time"

	"git.home.luguber.info/inful/wayfind/internal/logfields"
)

const defaultTimeout = 2 * time.Second

// Releaser terminates processes listening on a port. It never signals its own process.
type Releaser struct {
	// Timeout is how long to wait after SIGTERM before SIGKILL.
	Timeout time.Duration
	self    int
}

// New returns a releaser excluding the calling process.
func New() *Releaser {
	return &Releaser{Timeout: defaultTimeout, self: os.Getpid()}
}

// Release terminates every process listening on port. Finding none is not an error.
func (r *Releaser) Release(port int) error {
	pids, err := ListenerPIDs(port)
	if err != nil {
		return err
	}
	for _, pid := range pids {
		if pid == r.self {
			slog.Debug("Port held by this process, not releasing", logfields.Port(port))
			continue
		}
		slog.Info("Terminating stale listener", logfields.Port(port), logfields.PID(pid))
		if err := terminate(pid, r.timeout()); err != nil {
			slog.Warn("Failed to terminate stale listener", logfields.PID(pid), logfields.Error(err))
		}
	}
	return nil
}

func (r *Releaser) timeout() time.Duration {
	if r.Timeout <= 0 {
		return defaultTimeout
	}
	return r.Timeout
}
