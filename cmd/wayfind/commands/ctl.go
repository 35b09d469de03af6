package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/wayfind/internal/daemon"
)

// CtlCmd talks to a running supervisor over its control API.
type CtlCmd struct {
	Addr string `name:"addr" help:"Control API address (defaults to the settings file value)."`
	JSON bool   `name:"json" help:"Print raw JSON responses."`

	Status        CtlStatusCmd        `cmd:"" help:"Show server and update status"`
	Start         CtlStartCmd         `cmd:"" help:"Start the display server"`
	Stop          CtlStopCmd          `cmd:"" help:"Stop the display server"`
	Restart       CtlRestartCmd       `cmd:"" help:"Restart the display server"`
	Update        CtlUpdateCmd        `cmd:"" help:"Check for display updates now"`
	SetConfig     CtlSetConfigCmd     `cmd:"" name:"set-config" help:"Store a configuration value"`
	ChooseDir     CtlChooseDirCmd     `cmd:"" name:"choose-dir" help:"Move the project to another directory"`
	Notifications CtlNotificationsCmd `cmd:"" help:"Show recent notifications"`
}

func (c *CtlCmd) client(root *CLI) (*daemon.Client, error) {
	addr := c.Addr
	if addr == "" {
		settings, err := root.LoadSettings("")
		if err != nil {
			return nil, err
		}
		addr = settings.Control.Listen
	}
	return daemon.NewClient(addr, nil), nil
}

// ctlRun resolves the client and runs op under a signal-aware context.
func ctlRun(root *CLI, op func(ctx context.Context, c *daemon.Client) error) error {
	client, err := root.Ctl.client(root)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return op(ctx, client)
}

type CtlStatusCmd struct{}

func (c *CtlStatusCmd) Run(g *Global, root *CLI) error {
	return ctlRun(root, func(ctx context.Context, client *daemon.Client) error {
		st, err := client.Status(ctx)
		if err != nil {
			return err
		}
		return printStatus(g.out(), root.Ctl.JSON, st)
	})
}

type CtlStartCmd struct{}

func (c *CtlStartCmd) Run(g *Global, root *CLI) error {
	return ctlRun(root, func(ctx context.Context, client *daemon.Client) error {
		st, err := client.Start(ctx)
		if err != nil {
			return err
		}
		return printStatus(g.out(), root.Ctl.JSON, st)
	})
}

type CtlStopCmd struct{}

func (c *CtlStopCmd) Run(g *Global, root *CLI) error {
	return ctlRun(root, func(ctx context.Context, client *daemon.Client) error {
		st, err := client.Stop(ctx)
		if err != nil {
			return err
		}
		return printStatus(g.out(), root.Ctl.JSON, st)
	})
}

type CtlRestartCmd struct{}

func (c *CtlRestartCmd) Run(g *Global, root *CLI) error {
	return ctlRun(root, func(ctx context.Context, client *daemon.Client) error {
		st, err := client.Restart(ctx)
		if err != nil {
			return err
		}
		return printStatus(g.out(), root.Ctl.JSON, st)
	})
}

type CtlUpdateCmd struct{}

func (c *CtlUpdateCmd) Run(g *Global, root *CLI) error {
	return ctlRun(root, func(ctx context.Context, client *daemon.Client) error {
		st, err := client.Update(ctx)
		if err != nil {
			return err
		}
		if root.Ctl.JSON {
			return printJSON(g.out(), st)
		}
		printUpdate(g.out(), *st)
		return nil
	})
}

type CtlSetConfigCmd struct {
	Key   string `arg:"" help:"Configuration key."`
	Value string `arg:"" help:"Value to store."`
}

func (c *CtlSetConfigCmd) Run(g *Global, root *CLI) error {
	return ctlRun(root, func(ctx context.Context, client *daemon.Client) error {
		if err := client.SetConfig(ctx, c.Key, c.Value); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(g.out(), "%s saved\n", c.Key)
		return nil
	})
}

type CtlChooseDirCmd struct {
	Path string `arg:"" type:"path" help:"New project directory."`
}

func (c *CtlChooseDirCmd) Run(g *Global, root *CLI) error {
	return ctlRun(root, func(ctx context.Context, client *daemon.Client) error {
		st, err := client.ChooseDirectory(ctx, c.Path)
		if err != nil {
			return err
		}
		return printStatus(g.out(), root.Ctl.JSON, st)
	})
}

type CtlNotificationsCmd struct{}

func (c *CtlNotificationsCmd) Run(g *Global, root *CLI) error {
	return ctlRun(root, func(ctx context.Context, client *daemon.Client) error {
		notes, err := client.Notifications(ctx)
		if err != nil {
			return err
		}
		if root.Ctl.JSON {
			return printJSON(g.out(), notes)
		}
		for _, n := range notes {
			_, _ = fmt.Fprintf(g.out(), "%s  %-7s  %s: %s\n",
				n.Time.Local().Format(time.DateTime), n.Level, n.Title, n.Body)
		}
		return nil
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStatus(w io.Writer, asJSON bool, st *daemon.StatusResponse) error {
	if asJSON {
		return printJSON(w, st)
	}
	_, _ = fmt.Fprintf(w, "Server:      %s", st.Server.State)
	if st.Server.PID != 0 {
		_, _ = fmt.Fprintf(w, " (pid %d)", st.Server.PID)
	}
	_, _ = fmt.Fprintln(w)
	if st.Server.LastError != "" {
		_, _ = fmt.Fprintf(w, "Last error:  %s\n", st.Server.LastError)
	}
	_, _ = fmt.Fprintf(w, "Display:     %s\n", st.URLs.Display)
	_, _ = fmt.Fprintf(w, "Room view:   %s\n", st.URLs.Room)
	_, _ = fmt.Fprintf(w, "Debug view:  %s\n", st.URLs.Debug)
	_, _ = fmt.Fprintf(w, "Project dir: %s\n", st.ProjectDir)
	_, _ = fmt.Fprintf(w, "API key:     %s\n", yesNo(st.APIKeySet, "set", "missing"))
	printUpdate(w, st.Update)
	if !st.NextUpdate.IsZero() {
		_, _ = fmt.Fprintf(w, "Next check:  %s\n", st.NextUpdate.Local().Format(time.DateTime))
	}
	_, _ = fmt.Fprintf(w, "Version:     %s (up %s)\n", st.Version, st.Uptime)
	return nil
}

func printUpdate(w io.Writer, u daemon.UpdateStatus) {
	if u.LastAttempt.IsZero() {
		_, _ = fmt.Fprintln(w, "Last check:  never")
		return
	}
	_, _ = fmt.Fprintf(w, "Last check:  %s\n", u.LastAttempt.Local().Format(time.DateTime))
	if !u.LastSuccess.IsZero() {
		_, _ = fmt.Fprintf(w, "Last update: %s\n", u.LastSuccess.Local().Format(time.DateTime))
	}
	if r := u.LastResult; r != nil {
		_, _ = fmt.Fprintf(w, "Last result: %d synced, %d changed, %d failed\n", r.Succeeded, r.Changed, r.Failed)
	}
}

func yesNo(b bool, yes, no string) string {
	if b {
		return yes
	}
	return no
}
