// Package daemon composes the supervisor process: it keeps the display bundle up to
// date, keeps the display server running and exposes the control operations of the
// menu over a localhost JSON API.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/wayfind/internal/assetsync"
	"git.home.luguber.info/inful/wayfind/internal/config"
	"git.home.luguber.info/inful/wayfind/internal/envfile"
	derrors "git.home.luguber.info/inful/wayfind/internal/foundation/errors"
	"git.home.luguber.info/inful/wayfind/internal/logfields"
	"git.home.luguber.info/inful/wayfind/internal/metrics"
	"git.home.luguber.info/inful/wayfind/internal/notify"
	"git.home.luguber.info/inful/wayfind/internal/portfree"
	"git.home.luguber.info/inful/wayfind/internal/supervisor"
	"git.home.luguber.info/inful/wayfind/internal/version"
)

const updateJobName = "asset-update"

// Options configures a Daemon. Settings is required.
type Options struct {
	Settings     *config.Settings
	SettingsPath string
	// Notifiers receive every notification in addition to the in-memory buffer.
	Notifiers []notify.Notifier
	Registry  *prom.Registry
	// LauncherFor builds the server launcher for a project directory.
	LauncherFor func(dir string) supervisor.Launcher
	Releaser    supervisor.PortReleaser
	HTTPClient  *http.Client
}

// Daemon owns the long-running supervisor components.
type Daemon struct {
	settingsPath string
	launcherFor  func(dir string) supervisor.Launcher
	registry     *prom.Registry
	notes        *notify.Buffer
	notifier     notify.Notifier
	syncer       *assetsync.Syncer
	supervisor   *supervisor.Supervisor
	updater      *Updater
	scheduler    *Scheduler
	control      *ControlAPI
	startTime    time.Time

	dirMu sync.Mutex // serializes ChooseDirectory

	mu          sync.RWMutex
	settings    config.Settings
	store       *envfile.Store
	watcher     *envfile.Watcher
	runCtx      context.Context
	updateJobID string
}

// New wires the components. It creates the project directory if needed.
func New(opts Options) (*Daemon, error) {
	if opts.Settings == nil {
		return nil, derrors.ConfigError("settings are required").Build()
	}
	settings := *opts.Settings
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(settings.ProjectDir, 0o750); err != nil {
		return nil, derrors.FileSystemError("failed to create project directory").
			WithCause(err).WithContext("dir", settings.ProjectDir).Build()
	}

	d := &Daemon{
		settingsPath: opts.SettingsPath,
		launcherFor:  opts.LauncherFor,
		registry:     opts.Registry,
		notes:        notify.NewBuffer(50),
		settings:     settings,
		store:        envfile.NewStore(settings.EnvPath()),
		startTime:    time.Now(),
	}
	if d.launcherFor == nil {
		d.launcherFor = func(dir string) supervisor.Launcher { return supervisor.ServeLauncher(dir, serveArgs(settings)...) }
	}
	if d.registry == nil {
		d.registry = metrics.NewRegistry()
	}
	releaser := opts.Releaser
	if releaser == nil {
		releaser = portfree.New()
	}
	d.notifier = append(notify.Multi{notify.LogNotifier{}, d.notes}, opts.Notifiers...)
	recorder := metrics.NewPrometheusRecorder(d.registry)

	syncClient := opts.HTTPClient
	if syncClient == nil {
		syncClient = &http.Client{Timeout: settings.Sync.Timeout}
	}
	policy := settings.Sync.Retry.Policy()
	d.syncer = assetsync.New(assetsync.Options{
		RemoteBase: settings.Sync.RemoteBase,
		LocalDir:   settings.ProjectDir,
		Manifest:   settings.Sync.Manifest,
		Client:     syncClient,
		Policy:     &policy,
		Recorder:   recorder,
	})
	d.supervisor = supervisor.New(supervisor.Options{
		Port:         settings.Server.Port,
		Grace:        settings.Server.Grace,
		RestartDelay: settings.Server.RestartDelay,
		Launcher:     d.launcherFor(settings.ProjectDir),
		Releaser:     releaser,
		Config:       d.store,
		Notifier:     d.notifier,
		Recorder:     recorder,
	})
	d.updater = NewUpdater(d.syncer, d.notifier, settings.ServerURL())

	scheduler, err := NewScheduler()
	if err != nil {
		return nil, derrors.DaemonError("failed to create scheduler").WithCause(err).Build()
	}
	d.scheduler = scheduler
	d.control = NewControlAPI(settings.Control.Listen, d)
	return d, nil
}

// serveArgs passes settings the child cannot read from the env file.
func serveArgs(s config.Settings) []string {
	return []string{
		"--host", s.Server.Host,
		"--upstream", s.Server.UpstreamBase,
		"--max-connections", fmt.Sprint(s.Server.MaxConnections),
		"--proxy-timeout", s.Server.ProxyTimeout.String(),
	}
}

// Start runs the bootstrap sequence: initial update, server start, periodic updates,
// configuration watching and the control API. Only a control API bind failure is
// returned; everything else is reported through notifications.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	d.runCtx = ctx
	d.mu.Unlock()
	slog.Info("Starting wayfind supervisor",
		slog.String("version", version.Version),
		logfields.Dir(d.ProjectDir()))

	d.updater.Run(ctx)

	if err := d.supervisor.Start(ctx); err != nil {
		slog.Warn("Server not started", logfields.Error(err))
	}

	id, err := d.scheduleUpdates()
	if err != nil {
		return derrors.DaemonError("failed to schedule updates").WithCause(err).Build()
	}
	d.mu.Lock()
	d.updateJobID = id
	d.mu.Unlock()
	d.scheduler.Start(ctx)

	d.startWatcher(ctx, d.store.Path())

	if err := d.control.Start(ctx); err != nil {
		return err
	}
	return nil
}

func (d *Daemon) scheduleUpdates() (string, error) {
	cfg := d.Settings().Sync
	run := func() { d.updater.Run(d.context()) }
	if cfg.Schedule != "" {
		id, err := d.scheduler.ScheduleCron(updateJobName, cfg.Schedule, run)
		if err == nil {
			slog.Info("Scheduled updates", logfields.ScheduleID(id), slog.String("cron", cfg.Schedule))
		}
		return id, err
	}
	id, err := d.scheduler.ScheduleEvery(updateJobName, cfg.Interval, run)
	if err == nil {
		slog.Info("Scheduled periodic updates", logfields.ScheduleID(id), logfields.Duration(cfg.Interval))
	}
	return id, err
}

// Stop tears down in reverse order and stops the server.
func (d *Daemon) Stop(ctx context.Context) error {
	slog.Info("Stopping wayfind supervisor")
	if err := d.scheduler.Stop(ctx); err != nil {
		slog.Warn("Failed to stop scheduler", logfields.Error(err))
	}
	d.stopWatcher()
	if err := d.control.Stop(ctx); err != nil {
		slog.Warn("Failed to stop control API", logfields.Error(err))
	}
	d.supervisor.Stop()
	slog.Info("Wayfind supervisor stopped", slog.Duration("uptime", time.Since(d.startTime)))
	return nil
}

// Run starts the daemon and blocks until ctx is canceled.
func (d *Daemon) Run(ctx context.Context, stopTimeout time.Duration) error {
	if err := d.Start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		_ = d.Stop(stopCtx)
		return err
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return d.Stop(stopCtx)
}

func (d *Daemon) context() context.Context {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.runCtx == nil {
		return context.Background()
	}
	return d.runCtx
}

// Settings returns a copy of the current settings.
func (d *Daemon) Settings() config.Settings {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.settings
}

// ProjectDir returns the directory holding the bundle and env file.
func (d *Daemon) ProjectDir() string {
	return d.Settings().ProjectDir
}

// Store returns the env file store of the current project directory.
func (d *Daemon) Store() *envfile.Store {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.store
}

// Registry returns the metrics registry served on /metrics.
func (d *Daemon) Registry() *prom.Registry {
	return d.registry
}

// Notifications returns recent notifications, newest last.
func (d *Daemon) Notifications() []notify.Notification {
	return d.notes.Recent()
}

// StartServer starts the display server.
func (d *Daemon) StartServer(ctx context.Context) error {
	return d.supervisor.Start(ctx)
}

// StopServer stops the display server.
func (d *Daemon) StopServer() {
	d.supervisor.Stop()
}

// RestartServer restarts the display server.
func (d *Daemon) RestartServer(ctx context.Context) error {
	return d.supervisor.Restart(ctx)
}

// CheckForUpdates runs an update now, sharing a run already in progress.
func (d *Daemon) CheckForUpdates(ctx context.Context) UpdateStatus {
	return d.updater.Run(ctx)
}

// SetConfig stores a configuration value in the env file after NormalizeEntry.
func (d *Daemon) SetConfig(key, value string) error {
	value, err := envfile.NormalizeEntry(key, value)
	if err != nil {
		return err
	}

	if err := d.Store().Set(key, value); err != nil {
		return err
	}
	slog.Info("Configuration updated", logfields.ConfigKey(key))
	if key == envfile.KeyAPIKey {
		d.notifier.Notify(d.context(), notify.New(notify.LevelInfo, "API Key Saved", "Restart server to apply changes"))
	}
	return nil
}

// GetConfig returns a value from the env file.
func (d *Daemon) GetConfig(key string) (string, bool, error) {
	return d.Store().Get(key)
}

// ChooseDirectory moves the project to dir: the server is stopped if running, the
// setting persisted, every component re-pointed, an update run, and the server
// restarted if it was running before.
func (d *Daemon) ChooseDirectory(ctx context.Context, dir string) error {
	if strings.TrimSpace(dir) == "" {
		return derrors.ValidationError("directory must not be empty").Build()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return derrors.ValidationError("invalid directory").WithCause(err).WithContext("dir", dir).Build()
	}

	d.dirMu.Lock()
	defer d.dirMu.Unlock()

	if err := os.MkdirAll(abs, 0o750); err != nil {
		return derrors.FileSystemError("failed to create project directory").
			WithCause(err).WithContext("dir", abs).Build()
	}

	wasRunning := d.supervisor.State() == supervisor.StateRunning
	if wasRunning {
		d.supervisor.Stop()
	}

	d.mu.Lock()
	d.settings.ProjectDir = abs
	settings := d.settings
	store := envfile.InDir(abs)
	d.store = store
	d.mu.Unlock()

	if d.settingsPath != "" {
		if err := config.Save(d.settingsPath, &settings); err != nil {
			slog.Warn("Failed to persist project directory", logfields.Error(err))
		}
	}
	d.syncer.SetLocalDir(abs)
	d.supervisor.Reconfigure(d.launcherFor(abs), store)
	d.stopWatcher()
	d.startWatcher(d.context(), store.Path())
	slog.Info("Project directory changed", logfields.Dir(abs))

	d.updater.Run(ctx)

	if wasRunning {
		return d.supervisor.Start(ctx)
	}
	return nil
}

func (d *Daemon) startWatcher(ctx context.Context, path string) {
	w, err := envfile.NewWatcher(path, 0, func() {
		slog.Info("Configuration file changed", logfields.Path(path))
		d.notifier.Notify(ctx, notify.New(notify.LevelInfo, "Configuration Changed",
			"The display configuration changed. Restart the server to apply it."))
	})
	if err != nil {
		slog.Warn("Failed to create configuration watcher", logfields.Error(err))
		return
	}
	if err := w.Start(ctx); err != nil {
		slog.Warn("Failed to start configuration watcher", logfields.Error(err))
		_ = w.Stop()
		return
	}
	d.mu.Lock()
	d.watcher = w
	d.mu.Unlock()
}

func (d *Daemon) stopWatcher() {
	d.mu.Lock()
	w := d.watcher
	d.watcher = nil
	d.mu.Unlock()
	if w != nil {
		if err := w.Stop(); err != nil {
			slog.Warn("Failed to stop configuration watcher", logfields.Error(err))
		}
	}
}
