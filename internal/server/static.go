package server

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/wayfind/internal/logfields"
)

var contentTypes = map[string]string{
	".html": "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".otf":  "font/otf",
	".ttf":  "font/ttf",
}

// ContentType maps a file name to its served Content-Type.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// StaticFiles serves whole files from a root directory.
type StaticFiles struct {
	root string
}

// NewStaticFiles serves files under root.
func NewStaticFiles(root string) *StaticFiles {
	return &StaticFiles{root: root}
}

// Resolve maps a request path to a file under root. "/" maps to index.html; paths
// that would leave root or name a dotfile (the env file holding the API key lives
// in root) are rejected.
func (s *StaticFiles) Resolve(urlPath string) (string, bool) {
	if urlPath == "" || urlPath == "/" {
		urlPath = "/index.html"
	}
	cleaned := path.Clean("/" + urlPath)
	rel := strings.TrimPrefix(cleaned, "/")
	if rel == "" || !filepath.IsLocal(filepath.FromSlash(rel)) {
		return "", false
	}
	for segment := range strings.SplitSeq(rel, "/") {
		if strings.HasPrefix(segment, ".") {
			return "", false
		}
	}
	return filepath.Join(s.root, filepath.FromSlash(rel)), true
}

func (s *StaticFiles) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	target, ok := s.Resolve(r.URL.Path)
	if !ok {
		notFound(w)
		return
	}

	info, err := os.Stat(target)
	if err == nil && info.IsDir() {
		notFound(w)
		return
	}
	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			notFound(w)
			return
		}
		slog.Error("Failed to read static file", logfields.Path(target), logfields.Error(err))
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Server error"))
		return
	}

	w.Header().Set("Content-Type", ContentType(target))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(data)
}

func notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("File not found"))
}
