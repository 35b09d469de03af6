package daemon

import (
	"time"

	"git.home.luguber.info/inful/wayfind/internal/envfile"
	"git.home.luguber.info/inful/wayfind/internal/supervisor"
	"git.home.luguber.info/inful/wayfind/internal/version"
)

// DisplayURLs are the copyable display links of the menu.
type DisplayURLs struct {
	Display string `json:"display"`
	Room    string `json:"room"`
	Debug   string `json:"debug"`
}

// StatusResponse is the get-status payload.
type StatusResponse struct {
	Server        supervisor.Status `json:"server"`
	ServerURL     string            `json:"server_url"`
	URLs          DisplayURLs       `json:"urls"`
	Update        UpdateStatus      `json:"update"`
	NextUpdate    time.Time         `json:"next_update,omitzero"`
	ConfigPresent bool              `json:"config_present"`
	APIKeySet     bool              `json:"api_key_set"`
	ProjectDir    string            `json:"project_dir"`
	Version       string            `json:"version"`
	StartTime     time.Time         `json:"start_time"`
	Uptime        string            `json:"uptime"`
}

// Status gathers the current state of every component.
func (d *Daemon) Status() StatusResponse {
	settings := d.Settings()
	store := d.Store()
	key, _, _ := store.Get(envfile.KeyAPIKey)
	url := settings.ServerURL()

	d.mu.RLock()
	jobID := d.updateJobID
	d.mu.RUnlock()
	var next time.Time
	if jobID != "" {
		next, _ = d.scheduler.NextRun(jobID)
	}

	return StatusResponse{
		Server:    d.supervisor.Snapshot(),
		ServerURL: url,
		URLs: DisplayURLs{
			Display: url,
			Room:    url + "?room=",
			Debug:   url + "?debug=true",
		},
		Update:        d.updater.Status(),
		NextUpdate:    next,
		ConfigPresent: store.Exists(),
		APIKeySet:     key != "",
		ProjectDir:    settings.ProjectDir,
		Version:       version.Version,
		StartTime:     d.startTime,
		Uptime:        time.Since(d.startTime).Truncate(time.Second).String(),
	}
}
