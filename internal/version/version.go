// Package version contains build version information set via ldflags.
package version

// Version is the current application version.
var Version = "0.0.0"

// GitCommit is the git commit hash.
var GitCommit = "unknown"

// BuildDate is the build date.
var BuildDate = "unknown"

// String returns a one-line description of the build.
func String() string {
	return Version + " (commit " + GitCommit + ", built " + BuildDate + ")"
}
