package commands

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/wayfind/internal/assetsync"
	derrors "git.home.luguber.info/inful/wayfind/internal/foundation/errors"
)

// SyncCmd implements the 'sync' command.
type SyncCmd struct {
	Dir    string `short:"d" name:"dir" type:"path" help:"Project directory (overrides the settings file)."`
	Remote string `name:"remote" help:"Bundle base URL (overrides the settings file)."`
}

func (s *SyncCmd) Run(g *Global, root *CLI) error {
	settings, err := root.LoadSettings(s.Dir)
	if err != nil {
		return err
	}
	if s.Remote != "" {
		settings.Sync.RemoteBase = s.Remote
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	policy := settings.Sync.Retry.Policy()
	syncer := assetsync.New(assetsync.Options{
		RemoteBase: settings.Sync.RemoteBase,
		LocalDir:   settings.ProjectDir,
		Manifest:   settings.Sync.Manifest,
		Client:     &http.Client{Timeout: settings.Sync.Timeout},
		Policy:     &policy,
	})
	return RunSync(ctx, g, syncer)
}

// RunSync downloads the manifest once, writes the placeholder page if needed and
// prints one line per file.
func RunSync(ctx context.Context, g *Global, syncer *assetsync.Syncer) error {
	res := syncer.SyncAll(ctx)
	created, err := syncer.EnsureBootstrap()
	if err != nil {
		return err
	}

	w := g.out()
	for _, f := range res.Files {
		switch {
		case !f.OK:
			_, _ = fmt.Fprintf(w, "failed    %s: %s\n", f.Name, f.Error)
		case f.Changed:
			_, _ = fmt.Fprintf(w, "updated   %s (%d bytes)\n", f.Name, f.Bytes)
		default:
			_, _ = fmt.Fprintf(w, "unchanged %s\n", f.Name)
		}
	}
	if created {
		_, _ = fmt.Fprintf(w, "wrote placeholder %s\n", assetsync.IndexFile)
	}
	_, _ = fmt.Fprintf(w, "%d of %d file(s) synced into %s\n", res.Succeeded, len(res.Files), syncer.LocalDir())

	if !res.OK() {
		return derrors.NetworkError("no files could be downloaded").
			WithContext("dir", syncer.LocalDir()).Build()
	}
	return nil
}
