package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "git.home.luguber.info/inful/wayfind/internal/foundation/errors"
	"git.home.luguber.info/inful/wayfind/internal/retry"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, s.Server.Port)
	assert.Equal(t, "127.0.0.1", s.Server.Host)
	assert.Equal(t, DefaultRemoteBase, s.Sync.RemoteBase)
	assert.Equal(t, DefaultUpstreamBase, s.Server.UpstreamBase)
	assert.Equal(t, time.Hour, s.Sync.Interval)
	assert.Equal(t, 2*time.Second, s.Server.Grace)
	assert.Equal(t, time.Second, s.Server.RestartDelay)
	assert.Equal(t, DefaultControlAddr, s.Control.Listen)
	assert.Equal(t, retry.DefaultPolicy(), s.Sync.Retry.Policy())
	assert.Equal(t, "Wayfind", filepath.Base(s.ProjectDir))
}

func TestLoad_PartialFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "project_dir: " + dir + "\n" +
		"sync:\n  interval: 15m\n  manifest: [a.html, b.png]\n" +
		"server:\n  port: 9090\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, dir, s.ProjectDir)
	assert.Equal(t, 15*time.Minute, s.Sync.Interval)
	assert.Equal(t, []string{"a.html", "b.png"}, s.Sync.Manifest)
	assert.Equal(t, 9090, s.Server.Port)
	assert.Equal(t, DefaultUpstreamBase, s.Server.UpstreamBase)
	assert.Equal(t, "http://localhost:9090", s.ServerURL())
	assert.Equal(t, filepath.Join(dir, ".env"), s.EnvPath())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		category derrors.ErrorCategory
	}{
		{"bad yaml", "server: [", derrors.CategoryConfig},
		{"port out of range", "project_dir: /tmp/x\nserver:\n  port: 70000\n", derrors.CategoryValidation},
		{"interval too short", "project_dir: /tmp/x\nsync:\n  interval: 5s\n", derrors.CategoryValidation},
		{"relative project dir", "project_dir: relative/dir\n", derrors.CategoryValidation},
		{"unknown retry mode", "project_dir: /tmp/x\nsync:\n  retry:\n    mode: random\n", derrors.CategoryValidation},
		{"negative retries", "project_dir: /tmp/x\nsync:\n  retry:\n    max_retries: -1\n", derrors.CategoryValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := Load(path)
			require.Error(t, err)
			assert.Equal(t, tt.category, derrors.GetCategory(err))
		})
	}
}

func TestLoad_RetryPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "project_dir: " + dir + "\n" +
		"sync:\n  retry:\n    mode: exponential\n    initial: 200ms\n    max: 1s\n    max_retries: 4\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	p := s.Sync.Retry.Policy()
	assert.Equal(t, retry.Policy{Mode: retry.ModeExponential, Initial: 200 * time.Millisecond, Max: time.Second, MaxRetries: 4}, p)
	assert.Equal(t, 800*time.Millisecond, p.Delay(3))
	assert.Equal(t, time.Second, p.Delay(4))

	// Setting only the mode keeps an explicit zero retry budget.
	require.NoError(t, os.WriteFile(path, []byte("project_dir: "+dir+"\nsync:\n  retry:\n    mode: fixed\n"), 0o600))
	s, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Sync.Retry.Policy().MaxRetries)
	assert.Equal(t, 500*time.Millisecond, s.Sync.Retry.Policy().Initial)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	s := Default()
	s.ProjectDir = filepath.Join(dir, "display")
	s.Notify.NATSURL = "nats://127.0.0.1:4222"
	s.Sync.Interval = 30 * time.Minute
	require.NoError(t, Save(path, s))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s, loaded)
}
