package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/wayfind/internal/envfile"
	derrors "git.home.luguber.info/inful/wayfind/internal/foundation/errors"
	"git.home.luguber.info/inful/wayfind/internal/logfields"
	"git.home.luguber.info/inful/wayfind/internal/metrics"
	"git.home.luguber.info/inful/wayfind/internal/notify"
)

const (
	defaultGrace        = 2 * time.Second
	defaultRestartDelay = time.Second
	defaultKillTimeout  = 5 * time.Second
)

// Options configures a Supervisor. Launcher and Config are required.
type Options struct {
	Port         int
	Grace        time.Duration
	RestartDelay time.Duration
	KillTimeout  time.Duration
	Launcher     Launcher
	Releaser     PortReleaser
	Config       ConfigSource
	Notifier     notify.Notifier
	Recorder     metrics.Recorder
	// BaseEnv returns the environment inherited by the child; defaults to os.Environ.
	BaseEnv func() []string
}

// Supervisor starts, stops and watches the display server process.
type Supervisor struct {
	opMu sync.Mutex // serializes Start/Stop/Restart

	mu        sync.RWMutex
	opts      Options
	state     State
	proc      Process
	startedAt time.Time
	lastErr   error
}

// New creates a supervisor in the stopped state.
func New(opts Options) *Supervisor {
	if opts.Grace <= 0 {
		opts.Grace = defaultGrace
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = defaultRestartDelay
	}
	if opts.KillTimeout <= 0 {
		opts.KillTimeout = defaultKillTimeout
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.LogNotifier{}
	}
	if opts.BaseEnv == nil {
		opts.BaseEnv = os.Environ
	}
	opts.Recorder = metrics.OrNoop(opts.Recorder)
	s := &Supervisor{opts: opts, state: StateStopped}
	opts.Recorder.SetServerState(string(StateStopped))
	return s
}

// Start launches the server. See the package documentation for state transitions.
func (s *Supervisor) Start(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.startLocked(ctx)
}

// Stop terminates the tracked process, if any, and frees the port.
func (s *Supervisor) Stop() {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.stopLocked()
}

// Restart stops, waits the restart delay and starts again.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.stopLocked()
	timer := time.NewTimer(s.options().RestartDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	return s.startLocked(ctx)
}

// Reconfigure swaps the launcher and configuration source, for example after the
// project directory changed. It takes effect on the next start.
func (s *Supervisor) Reconfigure(launcher Launcher, cfg ConfigSource) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if launcher != nil {
		s.opts.Launcher = launcher
	}
	if cfg != nil {
		s.opts.Config = cfg
	}
}

// Snapshot returns the current status.
func (s *Supervisor) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		State:   s.state,
		Running: s.state == StateRunning,
		Port:    s.opts.Port,
	}
	if s.proc != nil {
		st.PID = s.proc.Pid()
		st.StartedAt = s.startedAt
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Probe reports whether the tracked process is alive and accepting connections.
func (s *Supervisor) Probe(ctx context.Context) bool {
	s.mu.RLock()
	proc, port := s.proc, s.opts.Port
	s.mu.RUnlock()
	if proc == nil {
		return false
	}
	select {
	case <-proc.Done():
		return false
	default:
	}

	dialer := net.Dialer{Timeout: time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func (s *Supervisor) options() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

func (s *Supervisor) setState(state State, err error) {
	s.mu.Lock()
	s.state = state
	s.lastErr = err
	s.mu.Unlock()
	s.opts.Recorder.SetServerState(string(state))
	slog.Debug("Server state changed", logfields.State(string(state)))
}

func (s *Supervisor) startLocked(ctx context.Context) error {
	opts := s.options()

	key, _, err := opts.Config.Get(envfile.KeyAPIKey)
	if err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		cerr := derrors.ConfigError("API key not configured").
			WithContext("key", envfile.KeyAPIKey).Build()
		s.notify(ctx, notify.LevelError, "API Key Missing",
			"Set "+envfile.KeyAPIKey+" in the display configuration before starting the server.")
		return cerr
	}
	if err := opts.Launcher.Check(); err != nil {
		rerr := derrors.RuntimeMissingError("server runtime not available").WithCause(err).Build()
		s.notify(ctx, notify.LevelError, "Runtime Not Found", rerr.Error())
		return rerr
	}

	s.mu.Lock()
	previous := s.proc
	s.proc = nil
	s.mu.Unlock()
	if previous != nil {
		slog.Info("Terminating previous server process", logfields.PID(previous.Pid()))
		if err := previous.Terminate(opts.KillTimeout); err != nil {
			slog.Warn("Failed to terminate previous server process", logfields.Error(err))
		}
	}
	s.releasePort(opts)

	env, err := s.environment(opts)
	if err != nil {
		slog.Warn("Failed to read configuration for server environment", logfields.Error(err))
	}

	s.setState(StateStarting, nil)
	proc, err := opts.Launcher.Launch(env)
	if err != nil {
		lerr := derrors.LaunchError("failed to launch server").WithCause(err).Build()
		s.fail(ctx, lerr)
		return lerr
	}

	s.mu.Lock()
	s.proc = proc
	s.startedAt = time.Now()
	s.mu.Unlock()
	go s.monitor(proc)

	timer := time.NewTimer(opts.Grace)
	defer timer.Stop()
	select {
	case <-proc.Done():
		return s.exitedDuringStartup(ctx, proc)
	case <-ctx.Done():
		s.mu.Lock()
		if s.proc == proc {
			s.proc = nil
		}
		s.mu.Unlock()
		_ = proc.Terminate(opts.KillTimeout)
		s.setState(StateStopped, ctx.Err())
		return ctx.Err()
	case <-timer.C:
	}

	// The monitor only reacts to exits in the running state, so the transition and
	// the liveness check happen under the same lock.
	s.mu.Lock()
	select {
	case <-proc.Done():
		s.mu.Unlock()
		return s.exitedDuringStartup(ctx, proc)
	default:
		s.state = StateRunning
		s.lastErr = nil
	}
	s.mu.Unlock()
	opts.Recorder.SetServerState(string(StateRunning))
	opts.Recorder.IncServerStart(metrics.ResultSuccess)
	slog.Info("Server running", logfields.PID(proc.Pid()), logfields.Port(opts.Port))
	return nil
}

func (s *Supervisor) exitedDuringStartup(ctx context.Context, proc Process) error {
	s.mu.Lock()
	if s.proc == proc {
		s.proc = nil
	}
	s.mu.Unlock()
	lerr := derrors.LaunchError("server exited during startup").
		WithCause(proc.Err()).
		WithContext("pid", proc.Pid()).Build()
	s.fail(ctx, lerr)
	return lerr
}

func (s *Supervisor) stopLocked() {
	opts := s.options()

	s.mu.Lock()
	proc := s.proc
	s.proc = nil
	s.mu.Unlock()

	if proc != nil {
		slog.Info("Stopping server", logfields.PID(proc.Pid()))
		if err := proc.Terminate(opts.KillTimeout); err != nil {
			slog.Warn("Failed to terminate server process", logfields.PID(proc.Pid()), logfields.Error(err))
		}
	}
	s.releasePort(opts)
	s.setState(StateStopped, nil)
}

// monitor detects a crash of a running process. Intentional stops clear s.proc
// first, so they are not reported.
func (s *Supervisor) monitor(proc Process) {
	<-proc.Done()

	s.mu.Lock()
	if s.proc != proc || s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.proc = nil
	s.state = StateStopped
	s.lastErr = fmt.Errorf("server exited unexpectedly: %w", proc.Err())
	s.mu.Unlock()

	s.opts.Recorder.SetServerState(string(StateStopped))
	slog.Warn("Server process exited unexpectedly", logfields.PID(proc.Pid()), logfields.Error(proc.Err()))
	s.notify(context.Background(), notify.LevelWarning, "Server Stopped",
		"The display server stopped unexpectedly. Use Start Server to restart it.")
}

func (s *Supervisor) fail(ctx context.Context, err error) {
	s.setState(StateFailed, err)
	s.opts.Recorder.IncServerStart(metrics.ResultFailed)
	slog.Error("Server failed to start", logfields.Error(err))
	s.notify(ctx, notify.LevelError, "Server Failed", "Failed to start the server. Check the logs for details.")
}

func (s *Supervisor) releasePort(opts Options) {
	if opts.Releaser == nil || opts.Port == 0 {
		return
	}
	if err := opts.Releaser.Release(opts.Port); err != nil {
		slog.Warn("Failed to release server port", logfields.Port(opts.Port), logfields.Error(err))
	}
}

// environment is the inherited environment, overlaid with the env file and PORT.
func (s *Supervisor) environment(opts Options) ([]string, error) {
	fileEnv, err := opts.Config.Environ()
	if fileEnv == nil {
		fileEnv = map[string]string{}
	}
	if opts.Port != 0 {
		fileEnv[envfile.KeyPort] = strconv.Itoa(opts.Port)
	}
	return envfile.Merge(opts.BaseEnv(), fileEnv), err
}

func (s *Supervisor) notify(ctx context.Context, level notify.Level, title, body string) {
	s.opts.Notifier.Notify(ctx, notify.New(level, title, body))
}
