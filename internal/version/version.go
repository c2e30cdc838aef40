// Package version holds build metadata injected via -ldflags.
package version

var (
	// Version is the semantic version of the build.
	Version = "dev"
	// Commit is the git SHA of the build.
	Commit = "unknown"
)
