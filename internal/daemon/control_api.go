package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/wayfind/internal/envfile"
	derrors "git.home.luguber.info/inful/wayfind/internal/foundation/errors"
	"git.home.luguber.info/inful/wayfind/internal/logfields"
	"git.home.luguber.info/inful/wayfind/internal/metrics"
	smw "git.home.luguber.info/inful/wayfind/internal/server/middleware"
)

// Control API routes.
const (
	RouteStart         = "/api/control/start"
	RouteStop          = "/api/control/stop"
	RouteRestart       = "/api/control/restart"
	RouteUpdate        = "/api/control/update"
	RouteStatus        = "/api/control/status"
	RouteConfig        = "/api/control/config"
	RouteDirectory     = "/api/control/directory"
	RouteNotifications = "/api/control/notifications"
	RouteHealth        = "/healthz"
	RouteMetrics       = "/metrics"
)

const maxRequestBody = 64 << 10

// ConfigRequest is the body of PUT /api/control/config.
type ConfigRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ConfigValue is the body of GET /api/control/config. The API key is never echoed.
type ConfigValue struct {
	Key     string `json:"key"`
	Value   string `json:"value,omitempty"`
	Present bool   `json:"present"`
}

// DirectoryRequest is the body of PUT /api/control/directory.
type DirectoryRequest struct {
	Path string `json:"path"`
}

// ControlAPI serves the control operations on a localhost listener.
type ControlAPI struct {
	addr    string
	daemon  *Daemon
	adapter *derrors.HTTPErrorAdapter

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

// NewControlAPI creates the API for d, listening on addr once started.
func NewControlAPI(addr string, d *Daemon) *ControlAPI {
	return &ControlAPI{
		addr:    addr,
		daemon:  d,
		adapter: derrors.NewHTTPErrorAdapter(slog.Default()),
	}
}

// Handler returns the routed handler behind the logging middleware.
func (c *ControlAPI) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+RouteStart, c.handleStart)
	mux.HandleFunc("POST "+RouteStop, c.handleStop)
	mux.HandleFunc("POST "+RouteRestart, c.handleRestart)
	mux.HandleFunc("POST "+RouteUpdate, c.handleUpdate)
	mux.HandleFunc("GET "+RouteStatus, c.handleStatus)
	mux.HandleFunc("GET "+RouteConfig, c.handleGetConfig)
	mux.HandleFunc("PUT "+RouteConfig, c.handleSetConfig)
	mux.HandleFunc("PUT "+RouteDirectory, c.handleDirectory)
	mux.HandleFunc("GET "+RouteNotifications, c.handleNotifications)
	mux.HandleFunc("GET "+RouteHealth, c.handleHealth)
	mux.Handle("GET "+RouteMetrics, metrics.HTTPHandler(c.daemon.Registry()))
	return smw.Chain(slog.Default(), c.adapter)(mux)
}

// Start binds the listener and serves in the background.
func (c *ControlAPI) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", c.addr)
	if err != nil {
		return derrors.DaemonError("failed to bind control API").
			WithCause(err).WithContext("addr", c.addr).Build()
	}
	srv := &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	c.mu.Lock()
	c.srv, c.ln = srv, ln
	c.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Control API stopped", logfields.Error(err))
		}
	}()
	slog.Info("Control API listening", logfields.URL("http://"+ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (c *ControlAPI) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ln != nil {
		return c.ln.Addr().String()
	}
	return c.addr
}

// Stop shuts the server down gracefully.
func (c *ControlAPI) Stop(ctx context.Context) error {
	c.mu.Lock()
	srv := c.srv
	c.srv = nil
	c.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("control API shutdown: %w", err)
	}
	return nil
}

// detached runs op on the daemon's context. A client that disconnects stops waiting
// for the result; the operation itself runs to completion.
func (c *ControlAPI) detached(r *http.Request, op func(ctx context.Context) error) error {
	done := make(chan error, 1)
	go func() { done <- op(c.daemon.context()) }()
	select {
	case err := <-done:
		return err
	case <-r.Context().Done():
		slog.Debug("Control client left before the operation finished",
			logfields.Path(r.URL.Path), logfields.Error(r.Context().Err()))
		return r.Context().Err()
	}
}

func (c *ControlAPI) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := c.detached(r, c.daemon.StartServer); err != nil {
		c.adapter.WriteErrorResponse(w, r, err)
		return
	}
	c.writeStatus(w, r)
}

func (c *ControlAPI) handleStop(w http.ResponseWriter, r *http.Request) {
	c.daemon.StopServer()
	c.writeStatus(w, r)
}

func (c *ControlAPI) handleRestart(w http.ResponseWriter, r *http.Request) {
	if err := c.detached(r, c.daemon.RestartServer); err != nil {
		c.adapter.WriteErrorResponse(w, r, err)
		return
	}
	c.writeStatus(w, r)
}

func (c *ControlAPI) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var st UpdateStatus
	err := c.detached(r, func(ctx context.Context) error {
		st = c.daemon.CheckForUpdates(ctx)
		return nil
	})
	if err != nil {
		c.adapter.WriteErrorResponse(w, r, err)
		return
	}
	_ = writeJSONPretty(w, r, http.StatusOK, st)
}

func (c *ControlAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	c.writeStatus(w, r)
}

func (c *ControlAPI) writeStatus(w http.ResponseWriter, r *http.Request) {
	_ = writeJSONPretty(w, r, http.StatusOK, c.daemon.Status())
}

func (c *ControlAPI) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		c.adapter.WriteErrorResponse(w, r, derrors.ValidationError("key query parameter is required").Build())
		return
	}
	value, ok, err := c.daemon.GetConfig(key)
	if err != nil {
		c.adapter.WriteErrorResponse(w, r, err)
		return
	}
	resp := ConfigValue{Key: key, Present: ok}
	if key != envfile.KeyAPIKey {
		resp.Value = value
	}
	_ = writeJSON(w, http.StatusOK, resp)
}

func (c *ControlAPI) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigRequest
	if err := decodeBody(r, &req); err != nil {
		c.adapter.WriteErrorResponse(w, r, err)
		return
	}
	if err := c.daemon.SetConfig(req.Key, req.Value); err != nil {
		c.adapter.WriteErrorResponse(w, r, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, ConfigValue{Key: req.Key, Present: true})
}

func (c *ControlAPI) handleDirectory(w http.ResponseWriter, r *http.Request) {
	var req DirectoryRequest
	if err := decodeBody(r, &req); err != nil {
		c.adapter.WriteErrorResponse(w, r, err)
		return
	}
	err := c.detached(r, func(ctx context.Context) error {
		return c.daemon.ChooseDirectory(ctx, req.Path)
	})
	if err != nil {
		c.adapter.WriteErrorResponse(w, r, err)
		return
	}
	c.writeStatus(w, r)
}

func (c *ControlAPI) handleNotifications(w http.ResponseWriter, r *http.Request) {
	_ = writeJSONPretty(w, r, http.StatusOK, c.daemon.Notifications())
}

func (c *ControlAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := c.daemon.PerformHealthChecks(r.Context())
	status := http.StatusOK
	if resp.Status == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	_ = writeJSONPretty(w, r, status, resp)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return derrors.ValidationError("invalid request body").WithCause(err).Build()
	}
	return nil
}
