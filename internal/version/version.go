// Package version carries build identification, injected at link time
// via -ldflags and reported by the status endpoint.
package version

var (
	// Version is the release tag of this build
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)
