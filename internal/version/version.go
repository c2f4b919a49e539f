package version

import "fmt"

// Build metadata, set with ldflags:
// go build -ldflags "-X git.home.luguber.info/inful/dashlink/internal/version.Version=v0.3.0".
var (
	Version   = "unknown"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String formats the build metadata for `dashlink version` and the admin health endpoint.
func String() string {
	return fmt.Sprintf("dashlink %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
