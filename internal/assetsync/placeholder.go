package assetsync

import (
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/wayfind/internal/envfile"
	derrors "git.home.luguber.info/inful/wayfind/internal/foundation/errors"
	"git.home.luguber.info/inful/wayfind/internal/logfields"
)

// IndexFile is the entry page of the bundle.
const IndexFile = "index.html"

const placeholderPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Wayfind</title>
<style>
body { margin: 0; height: 100vh; display: flex; align-items: center; justify-content: center;
       background: #1b1b1b; color: #f2f2f2; font-family: -apple-system, "Segoe UI", sans-serif; }
main { text-align: center; max-width: 40rem; padding: 2rem; }
h1 { font-weight: 600; }
p { color: #b8b8b8; line-height: 1.5; }
</style>
</head>
<body>
<main>
<h1>Display could not be downloaded</h1>
<p>The signage content has not been downloaded yet. Check the internet connection;
the display updates automatically every hour, or use "Check for Updates" to retry now.</p>
</main>
</body>
</html>
`

// PlaceholderPage returns the built-in page written when no bundle is present.
func PlaceholderPage() []byte {
	return []byte(placeholderPage)
}

// EnsureBootstrap writes the placeholder index page when the local directory has
// none. It reports whether the file was created.
func (s *Syncer) EnsureBootstrap() (bool, error) {
	dir := s.LocalDir()
	target := filepath.Join(dir, IndexFile)
	if _, err := os.Stat(target); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, derrors.FileSystemError("failed to stat index page").
			WithCause(err).WithContext("path", target).Build()
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return false, derrors.FileSystemError("failed to create display directory").
			WithCause(err).WithContext("dir", dir).Build()
	}
	if err := envfile.WriteFileAtomic(target, PlaceholderPage(), 0o644); err != nil {
		return false, derrors.FileSystemError("failed to write placeholder page").
			WithCause(err).WithContext("path", target).Build()
	}
	slog.Info("Wrote placeholder display page", logfields.Path(target))
	return true, nil
}
