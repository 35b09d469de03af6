// Package config loads and persists the supervisor's settings file.
//
// Settings are YAML, stored at $XDG_CONFIG_HOME/wayfind/config.yaml by default.
// Missing fields take defaults; the project directory defaults to ~/Wayfind.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/wayfind/internal/envfile"
	derrors "git.home.luguber.info/inful/wayfind/internal/foundation/errors"
	"git.home.luguber.info/inful/wayfind/internal/retry"
)

const (
	DefaultRemoteBase   = "https://raw.githubusercontent.com/NorthwoodsCommunityChurch/Northwoods-Wayfind/refs/heads/main"
	DefaultUpstreamBase = "https://app.espace.cool/FacilieSpace/DigitalSignage/GetDisplayEvents"
	DefaultPort         = 8080
	DefaultServerHost   = "127.0.0.1"
	DefaultControlAddr  = "127.0.0.1:8081"
	DefaultInterval     = time.Hour
	DefaultSyncTimeout  = 30 * time.Second
	DefaultProxyTimeout = 15 * time.Second
	DefaultGrace        = 2 * time.Second
	DefaultRestartDelay = time.Second
	DefaultMaxConns     = 256
	DefaultNATSSubject  = "wayfind.notifications"
	projectDirName      = "Wayfind"
)

// Settings is the on-disk supervisor configuration.
type Settings struct {
	ProjectDir string         `yaml:"project_dir"`
	Sync       SyncSettings   `yaml:"sync"`
	Server     ServerSettings `yaml:"server"`
	Control    ControlConfig  `yaml:"control"`
	Notify     NotifySettings `yaml:"notify"`
}

// SyncSettings controls asset synchronization.
type SyncSettings struct {
	RemoteBase string        `yaml:"remote_base"`
	Interval   time.Duration `yaml:"interval"`
	Timeout    time.Duration `yaml:"timeout"`
	// Schedule is an optional five-field cron expression used instead of Interval.
	Schedule string `yaml:"schedule,omitempty"`
	// Manifest overrides the built-in file list when non-empty.
	Manifest []string      `yaml:"manifest,omitempty"`
	Retry    RetrySettings `yaml:"retry"`
}

// RetrySettings is the backoff for transport failures while fetching bundle files.
// An absent block means one retry after 500ms; once any field is set, max_retries
// is taken as written.
type RetrySettings struct {
	Mode       retry.Mode    `yaml:"mode"`
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	MaxRetries int           `yaml:"max_retries"`
}

// Policy builds the retry policy for the syncer.
func (r RetrySettings) Policy() retry.Policy {
	return retry.NewPolicy(r.Mode, r.Initial, r.Max, r.MaxRetries)
}

// ServerSettings controls the display server child process.
type ServerSettings struct {
	// Host is the display server's listen address; "0.0.0.0" exposes it to the network.
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	UpstreamBase   string        `yaml:"upstream_base"`
	ProxyTimeout   time.Duration `yaml:"proxy_timeout"`
	MaxConnections int           `yaml:"max_connections"`
	Grace          time.Duration `yaml:"grace"`
	RestartDelay   time.Duration `yaml:"restart_delay"`
}

// ControlConfig controls the localhost control API.
type ControlConfig struct {
	Listen string `yaml:"listen"`
}

// NotifySettings configures optional notification publishing.
type NotifySettings struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject"`
}

// Default returns settings with every field populated.
func Default() *Settings {
	s := &Settings{}
	ApplyDefaults(s)
	return s
}

// ApplyDefaults fills zero-valued fields.
func ApplyDefaults(s *Settings) {
	if s.ProjectDir == "" {
		s.ProjectDir = DefaultProjectDir()
	}
	if s.Sync.RemoteBase == "" {
		s.Sync.RemoteBase = DefaultRemoteBase
	}
	if s.Sync.Interval == 0 {
		s.Sync.Interval = DefaultInterval
	}
	if s.Sync.Timeout == 0 {
		s.Sync.Timeout = DefaultSyncTimeout
	}
	base := retry.DefaultPolicy()
	if s.Sync.Retry == (RetrySettings{}) {
		s.Sync.Retry.MaxRetries = base.MaxRetries
	}
	if s.Sync.Retry.Mode == "" {
		s.Sync.Retry.Mode = base.Mode
	}
	if s.Sync.Retry.Initial == 0 {
		s.Sync.Retry.Initial = base.Initial
	}
	if s.Sync.Retry.Max == 0 {
		s.Sync.Retry.Max = base.Max
	}
	if s.Server.Host == "" {
		s.Server.Host = DefaultServerHost
	}
	if s.Server.Port == 0 {
		s.Server.Port = DefaultPort
	}
	if s.Server.UpstreamBase == "" {
		s.Server.UpstreamBase = DefaultUpstreamBase
	}
	if s.Server.ProxyTimeout == 0 {
		s.Server.ProxyTimeout = DefaultProxyTimeout
	}
	if s.Server.MaxConnections == 0 {
		s.Server.MaxConnections = DefaultMaxConns
	}
	if s.Server.Grace == 0 {
		s.Server.Grace = DefaultGrace
	}
	if s.Server.RestartDelay == 0 {
		s.Server.RestartDelay = DefaultRestartDelay
	}
	if s.Control.Listen == "" {
		s.Control.Listen = DefaultControlAddr
	}
	if s.Notify.Subject == "" {
		s.Notify.Subject = DefaultNATSSubject
	}
}

// Validate checks bounds after defaults have been applied.
func (s *Settings) Validate() error {
	switch {
	case s.Server.Port < 1 || s.Server.Port > 65535:
		return derrors.ValidationError(fmt.Sprintf("server.port out of range: %d", s.Server.Port)).
			WithContext("port", s.Server.Port).Build()
	case s.Sync.Interval < time.Minute:
		return derrors.ValidationError("sync.interval must be at least 1m").
			WithContext("interval", s.Sync.Interval.String()).Build()
	case s.Sync.Timeout < 0 || s.Server.ProxyTimeout < 0:
		return derrors.ValidationError("timeouts must not be negative").Build()
	case s.Server.MaxConnections < 0:
		return derrors.ValidationError("server.max_connections must not be negative").Build()
	case !filepath.IsAbs(s.ProjectDir):
		return derrors.ValidationError("project_dir must be an absolute path").
			WithContext("dir", s.ProjectDir).Build()
	}
	r := s.Sync.Retry
	policy := retry.Policy{Mode: r.Mode, Initial: r.Initial, Max: r.Max, MaxRetries: r.MaxRetries}
	if err := policy.Validate(); err != nil {
		return derrors.ValidationError("sync.retry is invalid: " + err.Error()).
			WithCause(err).WithContext("mode", string(r.Mode)).Build()
	}
	return nil
}

// EnvPath returns the path of the project's env file.
func (s *Settings) EnvPath() string {
	return filepath.Join(s.ProjectDir, envfile.FileName)
}

// ServerURL returns the local display URL.
func (s *Settings) ServerURL() string {
	return fmt.Sprintf("http://localhost:%d", s.Server.Port)
}

// DefaultPath returns the settings file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = filepath.Join(homeDir(), ".config")
	}
	return filepath.Join(dir, "wayfind", "config.yaml")
}

// DefaultProjectDir returns ~/Wayfind.
func DefaultProjectDir() string {
	return filepath.Join(homeDir(), projectDirName)
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return os.TempDir()
}

// Load reads settings from path. A missing file yields defaults.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, derrors.WrapError(err, derrors.CategoryConfig, "failed to read settings file").
			WithContext("path", path).Build()
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryConfig, "failed to parse settings file").
			WithContext("path", path).Build()
	}
	ApplyDefaults(&s)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Save writes settings to path atomically, creating parent directories.
func Save(path string, s *Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryInternal, "failed to marshal settings").Build()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return derrors.FileSystemError("failed to create settings directory").
			WithCause(err).WithContext("path", path).Build()
	}
	if err := envfile.WriteFileAtomic(path, data, 0o600); err != nil {
		return derrors.FileSystemError("failed to write settings file").
			WithCause(err).WithContext("path", path).Build()
	}
	return nil
}
