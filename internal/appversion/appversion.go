// Package appversion holds build information injected with -ldflags.
package appversion

import "fmt"

// Set at build time, e.g. -X github.com/james-see/tonebridge/internal/appversion.version=v1.2.0
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Version returns the release version
func Version() string {
	return version
}

// String returns the version with commit and build date
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}
