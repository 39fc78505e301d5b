// Package version holds the build metadata stamped into overseer
// binaries at release time.
package version

import "fmt"

// Overwritten with -ldflags by the release build; source builds
// report dev.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String renders the stamped metadata as a single line.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate)
}
