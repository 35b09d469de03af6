package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "git.home.luguber.info/inful/wayfind/internal/foundation/errors"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Options{Dir: t.TempDir(), Credentials: StaticCredentials{}})
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryConfig))

	_, err = New(Options{Dir: t.TempDir()})
	require.Error(t, err)
}

func TestServer_Routes(t *testing.T) {
	up := upstream(t, http.StatusOK, `{"events":[{"title":"Choir"}]}`, nil)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html/>"), 0o644))

	s, err := New(Options{Dir: dir, UpstreamBase: up.URL, Credentials: StaticCredentials{Key: "k"}})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + EventsPath)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"events":[{"title":"Choir"}]}`, string(body))

	resp, err = http.Get(ts.URL + "/")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "<html/>", string(body))

	resp, err = http.Get(ts.URL + "/nope.css")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_DoesNotServeEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html/>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ESPACE_API_KEY=secret123\n"), 0o600))

	s, err := New(Options{Dir: dir, Credentials: StaticCredentials{Key: "secret123"}})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.env", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret123")
}

func TestServer_ServeStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("ok"), 0o644))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port

	s, err := New(Options{Dir: dir, Port: port, Credentials: StaticCredentials{Key: "k"}, MaxConnections: 4})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
