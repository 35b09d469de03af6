package server

import (
	"os"
	"strings"

	"git.home.luguber.info/inful/wayfind/internal/envfile"
)

// Credentials supplies the upstream API key and display id. Implementations are
// consulted on every proxied request so configuration edits apply without a restart.
type Credentials interface {
	APIKey() string
	DisplayID() string
}

// StaticCredentials is a fixed credential pair.
type StaticCredentials struct {
	Key     string
	Display string
}

func (c StaticCredentials) APIKey() string { return c.Key }

func (c StaticCredentials) DisplayID() string {
	if c.Display == "" {
		return envfile.DefaultDisplayID
	}
	return c.Display
}

// LayeredCredentials reads the env file first, then the process environment, and
// falls back to the default display id.
type LayeredCredentials struct {
	Store  *envfile.Store
	Getenv func(string) string
}

func (c LayeredCredentials) lookup(key string) string {
	if c.Store != nil {
		if v, ok, _ := c.Store.Get(key); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	getenv := c.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	return getenv(key)
}

func (c LayeredCredentials) APIKey() string { return c.lookup(envfile.KeyAPIKey) }

func (c LayeredCredentials) DisplayID() string {
	if v := c.lookup(envfile.KeyDisplayID); v != "" {
		return v
	}
	return envfile.DefaultDisplayID
}
