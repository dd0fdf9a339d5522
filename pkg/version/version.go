package version

import "fmt"

var (
	// Version is set at build time via -ldflags if desired.
	Version = "v0.0.0"
	// Commit is the git SHA if provided at build time.
	Commit = ""
)

// String returns the version with the commit appended when known.
func String() string {
	if Commit == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
