package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/netutil"

	derrors "git.home.luguber.info/inful/wayfind/internal/foundation/errors"
	"git.home.luguber.info/inful/wayfind/internal/logfields"
	"git.home.luguber.info/inful/wayfind/internal/metrics"
	smw "git.home.luguber.info/inful/wayfind/internal/server/middleware"
)

const (
	defaultMaxConnections = 256
	shutdownTimeout       = 5 * time.Second
)

// Options configures the display server.
type Options struct {
	Dir            string
	Host           string
	Port           int
	UpstreamBase   string
	Credentials    Credentials
	Client         *http.Client
	MaxConnections int
	Recorder       metrics.Recorder
	Logger         *slog.Logger
}

// Server is the display HTTP server.
type Server struct {
	opts    Options
	handler http.Handler
}

// New wires the events relay and static files behind the logging middleware.
// It refuses to build a server without an API key.
func New(opts Options) (*Server, error) {
	if opts.Credentials == nil || opts.Credentials.APIKey() == "" {
		return nil, derrors.ConfigError("ESPACE_API_KEY environment variable is required").Build()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = defaultMaxConnections
	}

	mux := http.NewServeMux()
	mux.Handle(EventsPath, NewEventsProxy(opts.UpstreamBase, opts.Credentials, opts.Client, opts.Recorder))
	mux.Handle("/", NewStaticFiles(opts.Dir))

	chain := smw.Chain(opts.Logger, derrors.NewHTTPErrorAdapter(opts.Logger))
	return &Server{opts: opts, handler: chain(mux)}, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.opts.Host, fmt.Sprint(s.opts.Port))
}

// Run listens and serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.Addr())
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryNetwork, "failed to listen").
			WithContext("addr", s.Addr()).Build()
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln = netutil.LimitListener(ln, s.opts.MaxConnections)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.opts.Logger.Info("Wayfind server running",
		logfields.URL(fmt.Sprintf("http://localhost:%d", s.opts.Port)),
		logfields.Dir(s.opts.Dir),
		slog.String("display_id", s.opts.Credentials.DisplayID()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.opts.Logger.Info("Wayfind server stopped")
	return nil
}
