// Package buildconfig exposes values stamped in at link time, e.g.
//
//	go build -ldflags "-X github.com/Harshitk-cp/dissent/internal/buildconfig.version=v0.4.0 \
//	  -X github.com/Harshitk-cp/dissent/internal/buildconfig.commit=$(git rev-parse --short HEAD)"
package buildconfig

var (
	version = "dev"
	commit  = "unknown"
)

// Version is the release tag, "dev" for local builds.
func Version() string {
	return version
}

func Commit() string {
	return commit
}

// VersionInfo returns the fields /health reports about the running binary.
// engineHash identifies the convergence engine, so a client can tell
// whether replays from this server are comparable with stored results.
func VersionInfo(engineHash string) map[string]string {
	return map[string]string{
		"version": version,
		"commit":  commit,
		"engine":  engineHash,
	}
}
