package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/wayfind/internal/envfile"
	derrors "git.home.luguber.info/inful/wayfind/internal/foundation/errors"
)

// ConfigCmd groups the env file subcommands.
type ConfigCmd struct {
	Get ConfigGetCmd `cmd:"" help:"Print a configuration value"`
	Set ConfigSetCmd `cmd:"" help:"Store a configuration value"`
}

// ConfigGetCmd implements 'config get'.
type ConfigGetCmd struct {
	Dir    string `short:"d" name:"dir" type:"path" help:"Project directory (overrides the settings file)."`
	Reveal bool   `name:"reveal" help:"Print the API key instead of a masked value."`
	Key    string `arg:"" help:"Configuration key, e.g. ESPACE_DISPLAY_ID."`
}

func (c *ConfigGetCmd) Run(g *Global, root *CLI) error {
	store, err := projectStore(root, c.Dir)
	if err != nil {
		return err
	}
	value, ok, err := store.Get(c.Key)
	if err != nil {
		return err
	}
	if !ok {
		return derrors.NotFoundError("configuration key not set").
			WithContext("key", c.Key).WithContext("path", store.Path()).Build()
	}
	if c.Key == envfile.KeyAPIKey && !c.Reveal {
		value = Mask(value)
	}
	_, _ = fmt.Fprintln(g.out(), value)
	return nil
}

// ConfigSetCmd implements 'config set'.
type ConfigSetCmd struct {
	Dir   string `short:"d" name:"dir" type:"path" help:"Project directory (overrides the settings file)."`
	Key   string `arg:"" help:"Configuration key."`
	Value string `arg:"" help:"Value to store."`
}

func (c *ConfigSetCmd) Run(g *Global, root *CLI) error {
	value, err := envfile.NormalizeEntry(c.Key, c.Value)
	if err != nil {
		return err
	}
	store, err := projectStore(root, c.Dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(store.Path()), 0o750); err != nil {
		return derrors.FileSystemError("failed to create project directory").
			WithCause(err).WithContext("path", store.Path()).Build()
	}
	if err := store.Set(c.Key, value); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(g.out(), "%s saved to %s\n", c.Key, store.Path())
	if c.Key == envfile.KeyAPIKey {
		_, _ = fmt.Fprintln(g.out(), "Restart server to apply changes")
	}
	return nil
}

func projectStore(root *CLI, dir string) (*envfile.Store, error) {
	settings, err := root.LoadSettings(dir)
	if err != nil {
		return nil, err
	}
	return envfile.InDir(settings.ProjectDir), nil
}

// Mask hides all but the last four characters of a secret.
func Mask(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}
