package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bundle(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>index</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "RedRock.otf"), []byte("font"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	return dir
}

func get(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestStaticFiles_RootServesIndex(t *testing.T) {
	h := NewStaticFiles(bundle(t))

	root := get(h, http.MethodGet, "/")
	index := get(h, http.MethodGet, "/index.html")
	assert.Equal(t, http.StatusOK, root.Code)
	assert.Equal(t, index.Body.String(), root.Body.String())
	assert.Equal(t, "text/html", root.Header().Get("Content-Type"))
}

func TestStaticFiles_QueryIgnored(t *testing.T) {
	h := NewStaticFiles(bundle(t))
	rec := get(h, http.MethodGet, "/?room=Chapel")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>index</html>", rec.Body.String())
}

func TestStaticFiles_ContentTypes(t *testing.T) {
	h := NewStaticFiles(bundle(t))
	rec := get(h, http.MethodGet, "/RedRock.otf")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "font/otf", rec.Header().Get("Content-Type"))

	assert.Equal(t, "image/png", ContentType("logo.png"))
	assert.Equal(t, "application/javascript", ContentType("app.js"))
	assert.Equal(t, "application/octet-stream", ContentType("archive.tar"))
	assert.Equal(t, "application/octet-stream", ContentType("README"))
}

func TestStaticFiles_NotFound(t *testing.T) {
	h := NewStaticFiles(bundle(t))
	for _, target := range []string{"/missing.html", "/sub", "/sub/"} {
		rec := get(h, http.MethodGet, target)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.Equal(t, "File not found", rec.Body.String(), target)
	}
}

func TestStaticFiles_MissingIndex(t *testing.T) {
	h := NewStaticFiles(t.TempDir())
	rec := get(h, http.MethodGet, "/")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaticFiles_Resolve(t *testing.T) {
	s := NewStaticFiles("/srv/display")
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"/", filepath.FromSlash("/srv/display/index.html"), true},
		{"/logo.png", filepath.FromSlash("/srv/display/logo.png"), true},
		{"/a/../logo.png", filepath.FromSlash("/srv/display/logo.png"), true},
		{"/../../etc/passwd", filepath.FromSlash("/srv/display/etc/passwd"), true},
		{"/..", "", false},
		{"/.env", "", false},
		{"/assets/.hidden/logo.png", "", false},
	}
	for _, tt := range tests {
		got, ok := s.Resolve(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestStaticFiles_TraversalStaysInRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "display")
	require.NoError(t, os.Mkdir(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("secret"), 0o644))

	h := NewStaticFiles(root)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.URL.Path = "/../secret.txt"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaticFiles_HidesDotfiles(t *testing.T) {
	dir := bundle(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ESPACE_API_KEY=secret123\n"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "config"), []byte("[core]"), 0o644))

	h := NewStaticFiles(dir)
	for _, target := range []string{"/.env", "/.git/config", "/sub/../.env"} {
		rec := get(h, http.MethodGet, target)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.NotContains(t, rec.Body.String(), "secret123", target)
	}
}

func TestStaticFiles_Methods(t *testing.T) {
	h := NewStaticFiles(bundle(t))

	head := get(h, http.MethodHead, "/index.html")
	assert.Equal(t, http.StatusOK, head.Code)
	assert.Empty(t, head.Body.String())

	post := get(h, http.MethodPost, "/index.html")
	assert.Equal(t, http.StatusMethodNotAllowed, post.Code)
}
