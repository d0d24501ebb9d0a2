package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/kalamos/internal/config"
	"git.home.luguber.info/inful/kalamos/internal/engine"
	"git.home.luguber.info/inful/kalamos/internal/metrics"
	"git.home.luguber.info/inful/kalamos/internal/server"
	"git.home.luguber.info/inful/kalamos/internal/watch"
)

// ServeCmd implements the 'serve' command: initial full build, then an
// incremental rebuild loop driven by filesystem events, with the rendered
// site served over HTTP.
type ServeCmd struct {
	Addr string `short:"a" help:"Listen address" default:"127.0.0.1:8080"`
}

func (s *ServeCmd) Run(g *Globals) error {
	cfg, err := config.Load(g.Path)
	if err != nil {
		return err
	}

	registry := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)

	eng, err := engine.New(cfg)
	if err != nil {
		return err
	}
	eng.WithRecorder(recorder)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// the watcher must be running before the initial build so edits made
	// while it renders queue up for the first incremental pass
	watcher, err := watch.New(cfg.Root, cfg.OutputDir())
	if err != nil {
		return err
	}
	errCh := make(chan error, 2)
	go func() { errCh <- watcher.Run(ctx) }()

	report, err := eng.FullBuild(ctx)
	if err != nil {
		return err
	}
	slog.Info("initial build finished",
		"rendered", report.Rendered,
		"failed", len(report.Failed),
		"duration", report.Duration)

	go func() { errCh <- eng.Run(ctx, watcher.Events(), nil) }()
	go func() {
		srv := server.New(cfg.OutputDir(), metrics.HTTPHandler(registry))
		errCh <- srv.Serve(ctx, s.Addr)
	}()

	err = <-errCh
	stop()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
