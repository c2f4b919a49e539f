package commands

import (
	"fmt"

	"git.home.luguber.info/inful/dashlink/internal/version"
)

// VersionCmd prints build metadata. --version prints the same line and exits.
type VersionCmd struct{}

func (VersionCmd) Run() error {
	fmt.Println(version.String())
	return nil
}
