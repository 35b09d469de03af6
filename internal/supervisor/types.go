package supervisor

import (
	"time"
)

// State is the supervisor's view of the server process.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateFailed   State = "failed"
)

// Process is a launched server process.
type Process interface {
	Pid() int
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Err returns the exit error; valid after Done is closed.
	Err() error
	// Terminate asks the process to exit and forces it after timeout. It returns
	// once the process is gone.
	Terminate(timeout time.Duration) error
}

// Launcher starts server processes.
type Launcher interface {
	// Check reports whether the server runtime is available.
	Check() error
	Launch(env []string) (Process, error)
}

// PortReleaser frees the server port from stale listeners.
type PortReleaser interface {
	Release(port int) error
}

// ConfigSource is the key/value configuration the server is launched with.
type ConfigSource interface {
	Get(key string) (string, bool, error)
	Environ() (map[string]string, error)
}

// Status is a point-in-time snapshot.
type Status struct {
	State     State     `json:"state"`
	Running   bool      `json:"running"`
	PID       int       `json:"pid,omitempty"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"started_at,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}
