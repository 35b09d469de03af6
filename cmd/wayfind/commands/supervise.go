package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/wayfind/internal/daemon"
	"git.home.luguber.info/inful/wayfind/internal/logfields"
	"git.home.luguber.info/inful/wayfind/internal/notify"
)

// SuperviseCmd implements the 'supervise' command.
type SuperviseCmd struct {
	Dir         string        `short:"d" name:"dir" type:"path" help:"Project directory (overrides the settings file)."`
	Control     string        `name:"control" help:"Control API listen address (overrides the settings file)."`
	StopTimeout time.Duration `name:"stop-timeout" default:"30s" help:"Time allowed for a graceful shutdown."`
}

func (s *SuperviseCmd) Run(_ *Global, root *CLI) error {
	settings, err := root.LoadSettings(s.Dir)
	if err != nil {
		return err
	}
	if s.Control != "" {
		settings.Control.Listen = s.Control
	}

	var notifiers []notify.Notifier
	if settings.Notify.NATSURL != "" {
		nc, err := notify.DialNATS(settings.Notify.NATSURL, settings.Notify.Subject)
		if err != nil {
			slog.Warn("NATS notifications disabled", logfields.URL(settings.Notify.NATSURL), logfields.Error(err))
		} else {
			defer nc.Close()
			notifiers = append(notifiers, nc)
		}
	}

	d, err := daemon.New(daemon.Options{
		Settings:     settings,
		SettingsPath: root.SettingsPath(),
		Notifiers:    notifiers,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return d.Run(ctx, s.StopTimeout)
}
