package assetsync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/wayfind/internal/envfile"
	derrors "git.home.luguber.info/inful/wayfind/internal/foundation/errors"
	"git.home.luguber.info/inful/wayfind/internal/logfields"
	"git.home.luguber.info/inful/wayfind/internal/metrics"
	"git.home.luguber.info/inful/wayfind/internal/retry"
)

// Manifest is the ordered list of bundle file names, relative to the remote base.
type Manifest []string

// DefaultManifest returns the built-in bundle file list.
func DefaultManifest() Manifest {
	return Manifest{"index.html", "logo.png", "RedRock.otf"}
}

const defaultTimeout = 30 * time.Second

// Options configures a Syncer. RemoteBase and LocalDir are required.
type Options struct {
	RemoteBase string
	LocalDir   string
	Manifest   Manifest
	Client     *http.Client
	Timeout    time.Duration
	Policy     *retry.Policy
	Recorder   metrics.Recorder
}

// FileResult is the outcome for one manifest entry.
type FileResult struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Changed bool   `json:"changed"`
	Status  int    `json:"status,omitempty"`
	Bytes   int    `json:"bytes,omitempty"`
	Err     error  `json:"-"`
	Error   string `json:"error,omitempty"`
}

// Result summarizes a sync run.
type Result struct {
	Files     []FileResult  `json:"files"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Changed   int           `json:"changed"`
	Duration  time.Duration `json:"duration"`
}

// OK reports whether at least one file was synced.
func (r Result) OK() bool {
	return r.Succeeded > 0
}

// Syncer downloads the manifest into a local directory.
type Syncer struct {
	remoteBase string
	manifest   Manifest
	client     *http.Client
	policy     retry.Policy
	recorder   metrics.Recorder

	mu       sync.RWMutex
	localDir string
}

// New creates a Syncer.
func New(opts Options) *Syncer {
	manifest := opts.Manifest
	if len(manifest) == 0 {
		manifest = DefaultManifest()
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	policy := retry.DefaultPolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	return &Syncer{
		remoteBase: strings.TrimRight(opts.RemoteBase, "/"),
		manifest:   append(Manifest(nil), manifest...),
		client:     client,
		policy:     policy,
		recorder:   metrics.OrNoop(opts.Recorder),
		localDir:   opts.LocalDir,
	}
}

// Manifest returns a copy of the file list.
func (s *Syncer) Manifest() Manifest {
	return append(Manifest(nil), s.manifest...)
}

// LocalDir returns the directory files are written into.
func (s *Syncer) LocalDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localDir
}

// SetLocalDir re-points the syncer at another directory. Runs already in progress
// keep writing into the directory they started with.
func (s *Syncer) SetLocalDir(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localDir = dir
}

// SyncAll fetches every manifest file concurrently and waits for all of them.
// It never returns early; individual failures are recorded in the result.
func (s *Syncer) SyncAll(ctx context.Context) Result {
	start := time.Now()
	dir := s.LocalDir()
	files := make([]FileResult, len(s.manifest))

	var g errgroup.Group
	g.SetLimit(len(s.manifest) + 1)
	for i, name := range s.manifest {
		g.Go(func() error {
			files[i] = s.syncFile(ctx, dir, name)
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Files: files, Duration: time.Since(start)}
	for _, f := range files {
		if f.OK {
			res.Succeeded++
			if f.Changed {
				res.Changed++
			}
		} else {
			res.Failed++
		}
	}

	s.recorder.ObserveSyncDuration(res.Duration)
	if res.OK() {
		s.recorder.IncSyncRun(metrics.ResultSuccess)
	} else {
		s.recorder.IncSyncRun(metrics.ResultFailed)
	}
	slog.Info("Asset sync complete",
		logfields.Dir(dir),
		slog.Int("succeeded", res.Succeeded),
		slog.Int("failed", res.Failed),
		slog.Int("changed", res.Changed),
		logfields.Duration(res.Duration))
	return res
}

func (s *Syncer) syncFile(ctx context.Context, dir, name string) FileResult {
	fr := FileResult{Name: name}
	fail := func(err error, label metrics.ResultLabel) FileResult {
		fr.Err = err
		fr.Error = err.Error()
		s.recorder.IncSyncFile(name, label)
		slog.Warn("Failed to sync file", logfields.File(name), logfields.Status(fr.Status), logfields.Error(err))
		return fr
	}

	if !filepath.IsLocal(name) {
		return fail(derrors.ValidationError("manifest entry escapes the display directory").
			WithContext("file", name).Build(), metrics.ResultError)
	}

	url := s.remoteBase + "/" + name
	var body []byte
	err := s.policy.Do(ctx, func(error) bool { return ctx.Err() == nil }, func(attempt int) error {
		if attempt > 0 {
			slog.Debug("Retrying asset fetch", logfields.File(name), slog.Int("attempt", attempt))
		}
		b, status, ferr := s.fetch(ctx, url)
		body, fr.Status = b, status
		return ferr
	})
	if err != nil {
		return fail(derrors.NetworkError("failed to fetch asset").
			WithCause(err).WithContext("url", url).Build(), metrics.ResultError)
	}
	if fr.Status != http.StatusOK {
		return fail(derrors.NetworkError(fmt.Sprintf("unexpected status %d", fr.Status)).
			WithContext("url", url).Build(), metrics.ResultFailed)
	}

	changed, err := writeIfChanged(filepath.Join(dir, name), body)
	if err != nil {
		return fail(err, metrics.ResultError)
	}
	fr.OK = true
	fr.Changed = changed
	fr.Bytes = len(body)
	s.recorder.IncSyncFile(name, metrics.ResultSuccess)
	slog.Debug("Synced file", logfields.File(name), slog.Bool("changed", changed), slog.Int("bytes", fr.Bytes))
	return fr
}

// fetch returns the body only for 200 responses. Transport and body read failures
// are returned as errors; other statuses are reported without error.
func (s *Syncer) fetch(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func writeIfChanged(target string, data []byte) (bool, error) {
	if existing, err := os.ReadFile(target); err == nil && bytes.Equal(existing, data) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return false, derrors.FileSystemError("failed to create directory").
			WithCause(err).WithContext("path", target).Build()
	}
	if err := envfile.WriteFileAtomic(target, data, 0o644); err != nil {
		return false, derrors.FileSystemError("failed to write asset").
			WithCause(err).WithContext("path", target).Build()
	}
	return true, nil
}
