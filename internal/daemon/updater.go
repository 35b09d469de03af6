package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/wayfind/internal/assetsync"
	"git.home.luguber.info/inful/wayfind/internal/logfields"
	"git.home.luguber.info/inful/wayfind/internal/notify"
)

// UpdateStatus records the outcome of asset update checks.
type UpdateStatus struct {
	LastAttempt time.Time         `json:"last_attempt,omitzero"`
	LastSuccess time.Time         `json:"last_success,omitzero"`
	LastResult  *assetsync.Result `json:"last_result,omitempty"`
	RunID       string            `json:"run_id,omitempty"`
	Running     bool              `json:"running"`
}

// Updater runs asset syncs and tracks their status. Concurrent triggers share the
// run already in progress.
type Updater struct {
	syncer    *assetsync.Syncer
	notifier  notify.Notifier
	serverURL string
	now       func() time.Time

	mu       sync.Mutex
	status   UpdateStatus
	inflight *updateRun
}

type updateRun struct {
	done   chan struct{}
	status UpdateStatus
}

// NewUpdater creates an updater. serverURL is used in the reload link of the
// "Updates Applied" notification.
func NewUpdater(syncer *assetsync.Syncer, notifier notify.Notifier, serverURL string) *Updater {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Updater{syncer: syncer, notifier: notifier, serverURL: serverURL, now: time.Now}
}

// Status returns a snapshot of the update status.
func (u *Updater) Status() UpdateStatus {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

// Run performs one update check: sync every manifest file, then make sure an index
// page exists. It never fails; outcomes land in the returned status.
func (u *Updater) Run(ctx context.Context) UpdateStatus {
	u.mu.Lock()
	if run := u.inflight; run != nil {
		u.mu.Unlock()
		select {
		case <-run.done:
			return run.status
		case <-ctx.Done():
			return u.Status()
		}
	}
	run := &updateRun{done: make(chan struct{})}
	u.inflight = run
	runID := uuid.NewString()
	u.status.RunID = runID
	u.status.Running = true
	u.status.LastAttempt = u.now()
	u.mu.Unlock()

	slog.Info("Checking for updates", logfields.RunID(runID), logfields.Dir(u.syncer.LocalDir()))
	res := u.syncer.SyncAll(ctx)
	if _, err := u.syncer.EnsureBootstrap(); err != nil {
		slog.Warn("Failed to write placeholder page", logfields.RunID(runID), logfields.Error(err))
	}

	u.mu.Lock()
	u.status.Running = false
	u.status.LastResult = &res
	if res.OK() {
		u.status.LastSuccess = u.now()
	}
	st := u.status
	run.status = st
	u.inflight = nil
	u.mu.Unlock()
	close(run.done)

	u.report(ctx, res)
	return st
}

func (u *Updater) report(ctx context.Context, res assetsync.Result) {
	switch {
	case res.Changed > 0:
		u.notifier.Notify(ctx, notify.New(notify.LevelInfo, "Updates Applied",
			fmt.Sprintf("Updated %d file(s). Reload the display: %s", res.Changed, u.ReloadURL())))
	case !res.OK():
		u.notifier.Notify(ctx, notify.New(notify.LevelWarning, "Update Failed",
			fmt.Sprintf("Could not download any of %d file(s). The display keeps its current content.", len(res.Files))))
	default:
		u.notifier.Notify(ctx, notify.New(notify.LevelInfo, "Already Up to Date", "No updates available"))
	}
}

// ReloadURL is the display URL with a cache-busting parameter.
func (u *Updater) ReloadURL() string {
	return fmt.Sprintf("%s?_cb=%d", u.serverURL, u.now().Unix())
}
