package main

import (
	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/dashlink/cmd/dashlink/commands"
	ferrors "git.home.luguber.info/inful/dashlink/internal/foundation/errors"
	"git.home.luguber.info/inful/dashlink/internal/version"
)

func main() {
	var cli commands.CLI
	global := &commands.Global{}
	ctx := kong.Parse(&cli,
		kong.Name("dashlink"),
		kong.Description("Watch a project tree for a build consumer and relay commands to a running client."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Bind(global),
	)
	if err := ctx.Run(global, &cli); err != nil {
		ferrors.NewCLIErrorAdapter(cli.Verbose, global.Logger).HandleError(err)
	}
}
