package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wmsyw/aiWriter-sub006/cmd/aiwriter/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode."`
		Version kong.VersionFlag
		Server    commands.ServerCmd    `cmd:"" help:"Start the API server"`
		Worker    commands.WorkerCmd    `cmd:"" help:"Start a job worker"`
		Reconcile commands.ReconcileCmd `cmd:"" help:"Run the orphaned job reconciler"`
		Migrate   commands.MigrateCmd   `cmd:"" help:"Run database migrations and exit"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
