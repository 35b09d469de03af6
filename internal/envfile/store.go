package envfile

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"

	derrors "git.home.luguber.info/inful/wayfind/internal/foundation/errors"
)

// Well-known keys.
const (
	KeyAPIKey    = "ESPACE_API_KEY"
	KeyDisplayID = "ESPACE_DISPLAY_ID"
	KeyPort      = "PORT"

	DefaultDisplayID = "7"

	// FileName is the env file name inside the project directory.
	FileName = ".env"
)

// Store reads and writes a KEY=VALUE env file.
type Store struct {
	path string
}

// NewStore returns a store backed by the file at path. The file need not exist.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// InDir returns a store for the env file inside dir.
func InDir(dir string) *Store {
	return NewStore(filepath.Join(dir, FileName))
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Exists reports whether the backing file exists.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Get returns the value of the first line starting with "key=". A missing file or key
// is reported as ok=false with a nil error.
func (s *Store) Get(key string) (string, bool, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to read config file").
			WithContext("path", s.path).
			Build()
	}
	defer func() { _ = f.Close() }()

	prefix := key + "="
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if strings.HasPrefix(line, prefix) {
			return line[len(prefix):], true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", false, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to scan config file").
			WithContext("path", s.path).
			Build()
	}
	return "", false, nil
}

// Set replaces the first "key=" line or appends one, strips trailing blank lines and
// writes the file atomically. Values are stored verbatim.
func (s *Store) Set(key, value string) error {
	lines, err := s.readLines()
	if err != nil {
		return err
	}

	prefix := key + "="
	entry := prefix + value
	found := false
	for i, line := range lines {
		if strings.HasPrefix(line, prefix) {
			lines[i] = entry
			found = true
			break
		}
	}
	lines = trimTrailingBlank(lines)
	if !found {
		lines = append(lines, entry)
	}

	if err := WriteFileAtomic(s.path, []byte(strings.Join(lines, "\n")), 0o600); err != nil {
		return derrors.WrapError(err, derrors.CategoryFileSystem, "failed to write config file").
			WithContext("path", s.path).
			WithContext("key", key).
			Build()
	}
	return nil
}

// Environ parses the whole file as dotenv (comments, quoting, export prefixes) for
// injection into a child process environment. A missing file yields an empty map.
func (s *Store) Environ() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to read config file").
			WithContext("path", s.path).
			Build()
	}
	env, err := godotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryConfig, "failed to parse config file").
			WithContext("path", s.path).
			Build()
	}
	return env, nil
}

// APIKey returns the stored API key or "".
func (s *Store) APIKey() string {
	v, _, _ := s.Get(KeyAPIKey)
	return v
}

// DisplayID returns the stored display id, or DefaultDisplayID.
func (s *Store) DisplayID() string {
	if v, ok, _ := s.Get(KeyDisplayID); ok && v != "" {
		return v
	}
	return DefaultDisplayID
}

func (s *Store) readLines() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to read config file").
			WithContext("path", s.path).
			Build()
	}
	if len(data) == 0 {
		return nil, nil
	}
	return strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n"), nil
}

func trimTrailingBlank(lines []string) []string {
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Merge overlays env onto base ("K=V" entries as from os.Environ) and returns the
// combined list. Keys in env win.
func Merge(base []string, env map[string]string) []string {
	merged := make(map[string]string, len(base)+len(env))
	order := make([]string, 0, len(base)+len(env))
	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if _, seen := merged[k]; !seen {
			order = append(order, k)
		}
		merged[k] = v
	}
	for _, k := range slices.Sorted(maps.Keys(env)) {
		if _, seen := merged[k]; !seen {
			order = append(order, k)
		}
	}
	maps.Copy(merged, env)

	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, fmt.Sprintf("%s=%s", k, merged[k]))
	}
	return out
}

// WriteFileAtomic writes data to a temp file in the target directory and renames it
// over path, so readers observe either the old or the new content.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
