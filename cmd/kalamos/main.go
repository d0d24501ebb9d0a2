package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
)

// Globals are flags shared by every subcommand.
type Globals struct {
	Path    string `short:"p" help:"Site root directory" default:"." type:"path"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`
}

var cli struct {
	Globals

	Build  BuildCmd  `cmd:"" help:"Render the whole site into the output directory"`
	Serve  ServeCmd  `cmd:"" help:"Serve the site locally and rebuild incrementally on change"`
	Deploy DeployCmd `cmd:"" help:"Upload the rendered site using the configured strategy"`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("kalamos"),
		kong.Description("A static site generator with incremental rebuilds."),
		kong.UsageOnError(),
	)

	logLevel := slog.LevelInfo
	if cli.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}
