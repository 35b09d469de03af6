//go:build !linux

package portfree

import (
	"log/slog"
	"time"

	"git.home.luguber.info/inful/wayfind/internal/logfields"
)

// ListenerPIDs is not implemented on this platform and reports no listeners.
func ListenerPIDs(port int) ([]int, error) {
	slog.Debug("Listener lookup not supported on this platform", logfields.Port(port))
	return nil, nil
}

func terminate(int, time.Duration) error { return nil }
