package commands

import (
	"context"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/wayfind/internal/config"
	"git.home.luguber.info/inful/wayfind/internal/envfile"
	"git.home.luguber.info/inful/wayfind/internal/server"
)

// ServeCmd implements the 'serve' command. The supervisor launches it as its child.
type ServeCmd struct {
	Dir            string        `short:"d" name:"dir" default:"." type:"path" help:"Directory holding the display files and .env."`
	Host           string        `name:"host" help:"Listen host (all interfaces when empty; the supervisor passes its server.host setting)."`
	Port           int           `name:"port" env:"PORT" default:"8080" help:"Listen port."`
	Upstream       string        `name:"upstream" help:"Events API base URL."`
	MaxConnections int           `name:"max-connections" default:"256" help:"Maximum concurrent connections."`
	ProxyTimeout   time.Duration `name:"proxy-timeout" default:"15s" help:"Timeout for upstream events requests."`
}

func (s *ServeCmd) Run(_ *Global, _ *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv, err := s.NewServer()
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

// NewServer builds the display server from the flags. Credentials come from the
// .env file in Dir, then the process environment.
func (s *ServeCmd) NewServer() (*server.Server, error) {
	upstream := s.Upstream
	if upstream == "" {
		upstream = config.DefaultUpstreamBase
	}
	return server.New(server.Options{
		Dir:            s.Dir,
		Host:           s.Host,
		Port:           s.Port,
		UpstreamBase:   upstream,
		Credentials:    server.LayeredCredentials{Store: envfile.InDir(s.Dir)},
		Client:         &http.Client{Timeout: s.ProxyTimeout},
		MaxConnections: s.MaxConnections,
		Logger:         slog.Default(),
	})
}
