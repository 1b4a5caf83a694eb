package version

import "fmt"

// Version contains the application version information.
// This should be set via build-time ldflags in production:
// go build -ldflags "-X git.home.luguber.info/inful/docregistry/internal/version.Version=v1.2.0".
var Version = "unknown"

// BuildInfo contains additional build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// ToolVersion returns the identifier recorded on every claimed build,
// so build rows carry the registry version that produced them.
func ToolVersion() string {
	return fmt.Sprintf("docregistry %s", Version)
}
