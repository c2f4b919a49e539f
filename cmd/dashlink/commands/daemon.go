package commands

import (
	"context"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/dashlink/internal/config"
	"git.home.luguber.info/inful/dashlink/internal/daemon"
)

// RunCmd implements the 'run' command.
type RunCmd struct {
	Root string `arg:"" optional:"" help:"Project root (overrides project.root)" type:"existingdir"`
}

func (r *RunCmd) Run(g *Global, root *CLI) error {
	return runMode(g, root, daemon.ModeRun, r.Root)
}

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Root string `arg:"" optional:"" help:"Project root (overrides project.root)" type:"existingdir"`
}

func (w *WatchCmd) Run(g *Global, root *CLI) error {
	return runMode(g, root, daemon.ModeWatch, w.Root)
}

// ServeCmd implements the 'serve' command.
type ServeCmd struct{}

func (s *ServeCmd) Run(g *Global, root *CLI) error {
	return runMode(g, root, daemon.ModeServe, "")
}

func runMode(g *Global, root *CLI, mode daemon.Mode, projectRoot string) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	if projectRoot != "" {
		cfg.Project.Root = projectRoot
		if err := config.Validate(cfg); err != nil {
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := daemon.New(ctx, cfg, daemon.Options{Mode: mode, Logger: g.Logger})
	if err != nil {
		return err
	}
	g.Logger.Info("Daemon started, waiting for shutdown signal...")
	return d.Run(ctx)
}
