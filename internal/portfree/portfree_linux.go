//go:build linux

package portfree

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// TCP_LISTEN in /proc/net/tcp.
const tcpListen = 0x0A

// ListenerPIDs returns the pids owning a listening TCP socket on port, IPv4 or IPv6.
func ListenerPIDs(port int) ([]int, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}

	inodes := make(map[string]struct{})
	for _, table := range []func() (procfs.NetTCP, error){fs.NetTCP, fs.NetTCP6} {
		lines, err := table()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read tcp table: %w", err)
		}
		for _, line := range lines {
			if line.St == tcpListen && line.LocalPort == uint64(port) {
				inodes[fmt.Sprintf("socket:[%d]", line.Inode)] = struct{}{}
			}
		}
	}
	if len(inodes) == 0 {
		return nil, nil
	}

	procs, err := fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	var pids []int
	for _, p := range procs {
		// Processes of other users are unreadable; skip them.
		targets, err := p.FileDescriptorTargets()
		if err != nil {
			continue
		}
		for _, target := range targets {
			if _, ok := inodes[target]; ok {
				pids = append(pids, p.PID)
				break
			}
		}
	}
	slices.Sort(pids)
	return pids, nil
}

func terminate(pid int, timeout time.Duration) error {
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return err
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := unix.Kill(pid, 0); errors.Is(err, unix.ESRCH) {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}
