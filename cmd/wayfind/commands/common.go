package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/wayfind/internal/config"
)

// Global carries shared state into subcommands.
type Global struct {
	Logger *slog.Logger
	Stdout io.Writer
}

// CLI definition & global flags.
type CLI struct {
	SettingsFile string           `short:"c" name:"config" help:"Settings file path (defaults to the user config directory)." type:"path"`
	Verbose      bool             `short:"v" help:"Enable verbose logging"`
	LogFormat    string           `name:"log-format" enum:"text,json" default:"text" help:"Log output format (text or json)."`
	Version      kong.VersionFlag `name:"version" help:"Show version and exit"`

	Serve     ServeCmd     `cmd:"" help:"Run the display server in the foreground"`
	Supervise SuperviseCmd `cmd:"" help:"Keep the display up to date and the server running"`
	Sync      SyncCmd      `cmd:"" help:"Download the display bundle once"`
	Config    ConfigCmd    `cmd:"" help:"Read or write the display configuration (.env)"`
	Ctl       CtlCmd       `cmd:"" help:"Control a running supervisor"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	slog.SetDefault(NewLogger(os.Stderr, c.Verbose, c.LogFormat))
	return nil
}

// NewLogger builds the process logger.
func NewLogger(w io.Writer, verbose bool, format string) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SettingsPath resolves the settings file location.
func (c *CLI) SettingsPath() string {
	if c.SettingsFile != "" {
		return c.SettingsFile
	}
	return config.DefaultPath()
}

// LoadSettings loads the settings file, applying a project directory override.
func (c *CLI) LoadSettings(dirOverride string) (*config.Settings, error) {
	s, err := config.Load(c.SettingsPath())
	if err != nil {
		return nil, err
	}
	if dirOverride != "" {
		s.ProjectDir = dirOverride
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (g *Global) out() io.Writer {
	if g == nil || g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}
