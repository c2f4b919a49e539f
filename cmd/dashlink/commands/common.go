// Package commands implements the dashlink CLI.
package commands

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/dashlink/internal/config"
)

// Global is passed to every subcommand.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"dashlink.yaml" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run   RunCmd   `cmd:"" help:"Watch the project and serve the command channel"`
	Watch WatchCmd `cmd:"" help:"Watch the project and dispatch batches to the consumer only"`
	Serve ServeCmd `cmd:"" help:"Serve the command channel and admin API only"`
	Send  SendCmd  `cmd:"" help:"Send one command through a running instance"`
	Init  InitCmd  `cmd:"" help:"Write an example configuration file"`
	About VersionCmd `cmd:"" name:"version" help:"Print build information"`
}

// AfterApply sets up a stderr text logger before the config, and its logging section, is read.
func (c *CLI) AfterApply(g *Global) error {
	g.Logger = config.LoggingConfig{}.NewLogger(os.Stderr, c.Verbose)
	slog.SetDefault(g.Logger)
	return nil
}

// loadConfig reads the config file and switches the process logger to its logging section.
func loadConfig(g *Global, root *CLI) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	g.Logger = cfg.Logging.NewLogger(os.Stderr, root.Verbose)
	slog.SetDefault(g.Logger)
	return cfg, nil
}
