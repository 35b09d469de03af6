package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/wayfind/cmd/wayfind/commands"
	derrors "git.home.luguber.info/inful/wayfind/internal/foundation/errors"
	"git.home.luguber.info/inful/wayfind/internal/version"
)

func main() {
	var cli commands.CLI
	parser := kong.Must(&cli,
		kong.Name("wayfind"),
		kong.Description("Local signage display server and supervisor."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)
	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	global := &commands.Global{Logger: slog.Default(), Stdout: os.Stdout}
	if err := kctx.Run(global, &cli); err != nil {
		adapter := derrors.NewCLIErrorAdapter(cli.Verbose, slog.Default())
		os.Exit(adapter.Report(os.Stderr, err))
	}
}
