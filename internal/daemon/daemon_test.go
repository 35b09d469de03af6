package daemon

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/wayfind/internal/config"
	"git.home.luguber.info/inful/wayfind/internal/envfile"
	derrors "git.home.luguber.info/inful/wayfind/internal/foundation/errors"
	"git.home.luguber.info/inful/wayfind/internal/server"
	"git.home.luguber.info/inful/wayfind/internal/supervisor"
)

const eventsBody = `{"events":[{"title":"Staff Meeting","room":"Chapel"}]}`

var nextPID atomic.Int32

// inProcessLauncher runs the display server inside the test process.
type inProcessLauncher struct {
	dir      string
	upstream string

	mu       sync.Mutex
	launches int
}

func (l *inProcessLauncher) Check() error { return nil }

func (l *inProcessLauncher) Launch(env []string) (supervisor.Process, error) {
	vars := make(map[string]string)
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	var port int
	if _, err := fmt.Sscan(vars[envfile.KeyPort], &port); err != nil {
		return nil, fmt.Errorf("PORT not set: %w", err)
	}
	srv, err := server.New(server.Options{
		Dir:          l.dir,
		Host:         "127.0.0.1",
		Port:         port,
		UpstreamBase: l.upstream,
		Credentials:  server.StaticCredentials{Key: vars[envfile.KeyAPIKey]},
	})
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", srv.Addr())
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.launches++
	l.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	p := &inProcessProcess{pid: int(nextPID.Add(1)) + 5000, done: make(chan struct{}), cancel: cancel}
	go func() {
		p.err = srv.Serve(ctx, ln)
		close(p.done)
	}()
	return p, nil
}

func (l *inProcessLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

type inProcessProcess struct {
	pid    int
	done   chan struct{}
	err    error
	cancel context.CancelFunc
}

func (p *inProcessProcess) Pid() int              { return p.pid }
func (p *inProcessProcess) Done() <-chan struct{} { return p.done }
func (p *inProcessProcess) Err() error            { return p.err }

func (p *inProcessProcess) Terminate(time.Duration) error {
	p.cancel()
	<-p.done
	return nil
}

type noopReleaser struct{}

func (noopReleaser) Release(int) error { return nil }

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

type harness struct {
	daemon       *Daemon
	settingsPath string
	port         int
	launchers    map[string]*inProcessLauncher
	mu           sync.Mutex
}

func (h *harness) launcher(dir string) *inProcessLauncher {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.launchers[dir]
}

func (h *harness) baseURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", h.port)
}

// newHarness builds a daemon against fake remote and upstream servers. The manifest
// is a.html and b.png.
func newHarness(t *testing.T, apiKey string, tweaks ...func(*config.Settings)) *harness {
	t.Helper()
	remote := httptest.NewServer(&remoteFiles{files: map[string]string{
		"a.html": "<h1>Lobby</h1>",
		"b.png":  "\x89PNG",
	}})
	t.Cleanup(remote.Close)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, eventsBody)
	}))
	t.Cleanup(upstream.Close)

	h := &harness{
		settingsPath: filepath.Join(t.TempDir(), "config.yaml"),
		port:         freePort(t),
		launchers:    make(map[string]*inProcessLauncher),
	}

	s := config.Default()
	s.ProjectDir = t.TempDir()
	s.Sync.RemoteBase = remote.URL
	s.Sync.Manifest = []string{"a.html", "b.png"}
	s.Server.Port = h.port
	s.Server.UpstreamBase = upstream.URL
	s.Server.Grace = 50 * time.Millisecond
	s.Server.RestartDelay = 10 * time.Millisecond
	s.Control.Listen = "127.0.0.1:0"
	for _, tweak := range tweaks {
		tweak(s)
	}

	if apiKey != "" {
		require.NoError(t, envfile.NewStore(s.EnvPath()).Set(envfile.KeyAPIKey, apiKey))
	}

	d, err := New(Options{
		Settings:     s,
		SettingsPath: h.settingsPath,
		Registry:     prometheus.NewRegistry(),
		Releaser:     noopReleaser{},
		LauncherFor: func(dir string) supervisor.Launcher {
			h.mu.Lock()
			defer h.mu.Unlock()
			l := &inProcessLauncher{dir: dir, upstream: upstream.URL}
			h.launchers[dir] = l
			return l
		},
	})
	require.NoError(t, err)
	h.daemon = d
	return h
}

func (h *harness) start(t *testing.T) *Client {
	t.Helper()
	require.NoError(t, h.daemon.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.daemon.Stop(ctx)
	})
	return NewClient(h.daemon.control.Addr(), nil)
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func titles(h *harness) []string {
	var out []string
	for _, n := range h.daemon.Notifications() {
		out = append(out, n.Title)
	}
	return out
}

func TestDaemon_BootstrapServesDisplay(t *testing.T) {
	h := newHarness(t, "secret-key")
	client := h.start(t)
	ctx := context.Background()

	st, err := client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, supervisor.StateRunning, st.Server.State)
	assert.True(t, st.Server.Running)
	assert.Equal(t, h.port, st.Server.Port)
	assert.True(t, st.ConfigPresent)
	assert.True(t, st.APIKeySet)
	assert.Equal(t, fmt.Sprintf("http://localhost:%d", h.port), st.URLs.Display)
	assert.Equal(t, st.URLs.Display+"?room=", st.URLs.Room)
	assert.Equal(t, st.URLs.Display+"?debug=true", st.URLs.Debug)
	require.NotNil(t, st.Update.LastResult)
	assert.Equal(t, 2, st.Update.LastResult.Succeeded)
	assert.Contains(t, titles(h), "Updates Applied")

	resp, body := get(t, h.baseURL()+"/a.html")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<h1>Lobby</h1>", body)
	assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))

	resp, _ = get(t, h.baseURL()+"/b.png")
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	// index.html is not in the manifest, so the placeholder is served.
	_, body = get(t, h.baseURL()+"/")
	assert.Contains(t, body, "Display could not be downloaded")

	resp, body = get(t, h.baseURL()+"/api/events")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, eventsBody, body)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	require.Eventually(t, func() bool {
		st, err := client.Status(ctx)
		return err == nil && !st.NextUpdate.IsZero()
	}, 2*time.Second, 20*time.Millisecond)
}

func TestDaemon_StartRequiresAPIKey(t *testing.T) {
	h := newHarness(t, "")
	client := h.start(t)
	ctx := context.Background()

	st, err := client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, supervisor.StateStopped, st.Server.State)
	assert.False(t, st.APIKeySet)
	assert.Contains(t, titles(h), "API Key Missing")
	assert.Zero(t, h.launcher(h.daemon.ProjectDir()).count())

	_, err = client.Start(ctx)
	require.Error(t, err)
	assert.Equal(t, derrors.CategoryConfig, derrors.GetCategory(err))

	require.NoError(t, client.SetConfig(ctx, envfile.KeyAPIKey, "  new-key "))
	assert.Contains(t, titles(h), "API Key Saved")

	value, err := client.GetConfig(ctx, envfile.KeyAPIKey)
	require.NoError(t, err)
	assert.True(t, value.Present)
	assert.Empty(t, value.Value, "API key is never echoed")

	key, _, err := h.daemon.GetConfig(envfile.KeyAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "new-key", key)

	st, err = client.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, supervisor.StateRunning, st.Server.State)

	st, err = client.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, supervisor.StateStopped, st.Server.State)
	assert.Zero(t, st.Server.PID)
}

func TestDaemon_RestartLaunchesNewProcess(t *testing.T) {
	h := newHarness(t, "secret-key")
	client := h.start(t)
	ctx := context.Background()

	before, err := client.Status(ctx)
	require.NoError(t, err)
	after, err := client.Restart(ctx)
	require.NoError(t, err)

	assert.Equal(t, supervisor.StateRunning, after.Server.State)
	assert.NotEqual(t, before.Server.PID, after.Server.PID)
	assert.Equal(t, 2, h.launcher(h.daemon.ProjectDir()).count())

	resp, _ := get(t, h.baseURL()+"/a.html")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDaemon_ChooseDirectoryWhileRunning(t *testing.T) {
	h := newHarness(t, "secret-key")
	client := h.start(t)
	ctx := context.Background()

	newDir := filepath.Join(t.TempDir(), "display")
	require.NoError(t, envfile.InDir(newDir).Set(envfile.KeyAPIKey, "other-key"))

	st, err := client.ChooseDirectory(ctx, newDir)
	require.NoError(t, err)
	assert.Equal(t, newDir, st.ProjectDir)
	assert.Equal(t, supervisor.StateRunning, st.Server.State)
	assert.Equal(t, 1, h.launcher(newDir).count())

	data, err := os.ReadFile(filepath.Join(newDir, "a.html"))
	require.NoError(t, err)
	assert.Equal(t, "<h1>Lobby</h1>", string(data))

	saved, err := config.Load(h.settingsPath)
	require.NoError(t, err)
	assert.Equal(t, newDir, saved.ProjectDir)

	_, body := get(t, h.baseURL()+"/a.html")
	assert.Equal(t, "<h1>Lobby</h1>", body)
}

func TestDaemon_ChooseDirectoryWhileStopped(t *testing.T) {
	h := newHarness(t, "")
	t.Cleanup(h.daemon.stopWatcher)
	ctx := context.Background()

	newDir := filepath.Join(t.TempDir(), "fresh")
	require.NoError(t, h.daemon.ChooseDirectory(ctx, newDir))

	assert.Equal(t, newDir, h.daemon.ProjectDir())
	assert.Equal(t, filepath.Join(newDir, envfile.FileName), h.daemon.Store().Path())
	assert.FileExists(t, filepath.Join(newDir, "b.png"))
	assert.FileExists(t, filepath.Join(newDir, "index.html"))
	assert.Equal(t, supervisor.StateStopped, h.daemon.Status().Server.State)

	err := h.daemon.ChooseDirectory(ctx, "  ")
	require.Error(t, err)
	assert.Equal(t, derrors.CategoryValidation, derrors.GetCategory(err))
}

func TestDaemon_SetConfigValidation(t *testing.T) {
	h := newHarness(t, "")
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"invalid key", "BAD KEY", "x"},
		{"key starting with digit", "1KEY", "x"},
		{"multi-line value", "DISPLAY_ID", "7\nESPACE_API_KEY=evil"},
		{"blank API key", envfile.KeyAPIKey, "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.daemon.SetConfig(tt.key, tt.value)
			require.Error(t, err)
			assert.Equal(t, derrors.CategoryValidation, derrors.GetCategory(err))
		})
	}

	require.NoError(t, h.daemon.SetConfig(envfile.KeyDisplayID, "12"))
	value, ok, err := h.daemon.GetConfig(envfile.KeyDisplayID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "12", value)
	assert.NotContains(t, titles(h), "API Key Saved")
}

func TestNew_RejectsInvalidSettings(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	assert.Equal(t, derrors.CategoryConfig, derrors.GetCategory(err))

	s := config.Default()
	s.ProjectDir = "relative"
	_, err = New(Options{Settings: s})
	require.Error(t, err)
	assert.Equal(t, derrors.CategoryValidation, derrors.GetCategory(err))
}

func TestServeArgs_BindsConfiguredHost(t *testing.T) {
	s := config.Default()
	args := serveArgs(*s)
	require.GreaterOrEqual(t, len(args), 2)
	assert.Equal(t, []string{"--host", "127.0.0.1"}, args[:2])

	s.Server.Host = "0.0.0.0"
	assert.Equal(t, []string{"--host", "0.0.0.0"}, serveArgs(*s)[:2])
}

func TestDaemon_CronSchedule(t *testing.T) {
	h := newHarness(t, "", func(s *config.Settings) { s.Sync.Schedule = "30 3 * * *" })
	client := h.start(t)

	require.Eventually(t, func() bool {
		st, err := client.Status(context.Background())
		if err != nil || st.NextUpdate.IsZero() {
			return false
		}
		next := st.NextUpdate.Local()
		return next.Hour() == 3 && next.Minute() == 30
	}, 2*time.Second, 20*time.Millisecond)
}

func TestDaemon_InvalidCronSchedule(t *testing.T) {
	h := newHarness(t, "", func(s *config.Settings) { s.Sync.Schedule = "not a cron" })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := h.daemon.Run(ctx, time.Second)
	require.Error(t, err)
	assert.Equal(t, derrors.CategoryDaemon, derrors.GetCategory(err))
}
