// Package version exposes build metadata injected at link time:
//
//	go build -ldflags "\
//	  -X github.com/repairtracker/repairsync/internal/version.Version=1.0.0 \
//	  -X github.com/repairtracker/repairsync/internal/version.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/repairtracker/repairsync/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import "fmt"

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"

	// Commit is the short git revision.
	Commit = "unknown"

	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// String renders the three fields as a single human-readable line.
func String() string {
	return fmt.Sprintf("%s (%s) built %s", Version, Commit, BuildTime)
}
