package main

import (
	"context"
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/kalamos/internal/config"
	"git.home.luguber.info/inful/kalamos/internal/engine"
)

// BuildCmd implements the 'build' command: one full rebuild from scratch.
type BuildCmd struct{}

func (b *BuildCmd) Run(g *Globals) error {
	cfg, err := config.Load(g.Path)
	if err != nil {
		return err
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return err
	}

	report, err := eng.FullBuild(context.Background())
	if err != nil {
		return err
	}

	slog.Info("build finished",
		"rendered", report.Rendered,
		"unchanged", report.Unchanged,
		"deleted", report.Deleted,
		"failed", len(report.Failed),
		"duration", report.Duration)
	for _, f := range report.Failed {
		slog.Error("output failed", "output", f.Output, "error", f.Err)
	}
	for _, lerr := range report.LoadErrors {
		slog.Error("load failed", "error", lerr)
	}

	if n := len(report.Failed) + len(report.LoadErrors); n > 0 {
		return fmt.Errorf("build completed with %d failures", n)
	}
	return nil
}
