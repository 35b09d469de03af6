package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyScheduleID = "schedule_id"
	KeySchedule   = "schedule_name"
	KeyFile       = "file"
	KeyPath       = "path"
	KeyDir        = "dir"
	KeyURL        = "url"
	KeyStatus     = "status"
	KeyMethod     = "method"
	KeyUserAgent  = "user_agent"
	KeyRemoteAddr = "remote_addr"
	KeyPort       = "port"
	KeyPID        = "pid"
	KeyState      = "state"
	KeyKey        = "key"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr        { return slog.String(KeyRunID, id) }
func ScheduleID(id string) slog.Attr   { return slog.String(KeyScheduleID, id) }
func ScheduleName(n string) slog.Attr  { return slog.String(KeySchedule, n) }
func File(name string) slog.Attr       { return slog.String(KeyFile, name) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Dir(d string) slog.Attr           { return slog.String(KeyDir, d) }
func URL(u string) slog.Attr           { return slog.String(KeyURL, u) }
func Status(code int) slog.Attr        { return slog.Int(KeyStatus, code) }
func Method(m string) slog.Attr        { return slog.String(KeyMethod, m) }
func UserAgent(ua string) slog.Attr    { return slog.String(KeyUserAgent, ua) }
func RemoteAddr(addr string) slog.Attr { return slog.String(KeyRemoteAddr, addr) }
func Port(p int) slog.Attr             { return slog.Int(KeyPort, p) }
func PID(pid int) slog.Attr            { return slog.Int(KeyPID, pid) }
func State(s string) slog.Attr         { return slog.String(KeyState, s) }

// ConfigKey names an env-file key. Never pass values through this helper.
func ConfigKey(k string) slog.Attr { return slog.String(KeyKey, k) }

func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
