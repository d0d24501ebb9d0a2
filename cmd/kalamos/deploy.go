package main

import (
	"context"

	"git.home.luguber.info/inful/kalamos/internal/config"
	"git.home.luguber.info/inful/kalamos/internal/deploy"
)

// DeployCmd implements the 'deploy' command.
type DeployCmd struct{}

func (d *DeployCmd) Run(g *Globals) error {
	cfg, err := config.Load(g.Path)
	if err != nil {
		return err
	}
	return deploy.Deploy(context.Background(), cfg.Deploy, cfg.OutputDir())
}
