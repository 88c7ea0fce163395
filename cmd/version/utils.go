package version

import (
	"runtime/debug"
	"strings"
	"time"
)

// These variables can be overridden at build time with ldflags
var (
	Version   string // -X github.com/trufnetwork/fdc-attestor/cmd/version.Version=...
	Commit    string // -X github.com/trufnetwork/fdc-attestor/cmd/version.Commit=...
	BuildTime string // -X github.com/trufnetwork/fdc-attestor/cmd/version.BuildTime=...
)

const (
	develVersion    = "(devel)"
	shortHashLength = 9
	dirtySuffix     = "dirty"
)

// buildSetting returns a vcs.* setting recorded by the Go toolchain.
func buildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

// getVersion returns the ldflags version if set, otherwise the module version
func getVersion() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return develVersion
}

// getCommit returns the commit (short form) from ldflags or the embedded vcs info
func getCommit() string {
	commit := Commit
	if commit == "" {
		commit = buildSetting("vcs.revision")
	}

	// Return short form for readability
	if len(commit) > shortHashLength {
		return commit[:shortHashLength]
	}
	return commit
}

// getBuildTime returns the ldflags build time if set, otherwise the commit time
func getBuildTime() time.Time {
	if BuildTime != "" {
		if t, err := time.Parse(time.RFC3339, BuildTime); err == nil {
			return t
		}
	}
	if t, err := time.Parse(time.RFC3339, buildSetting("vcs.time")); err == nil {
		return t
	}
	return time.Time{}
}

// getBuildTimeDisplay returns a formatted build time with context about whether it's commit or build time
func getBuildTimeDisplay() string {
	buildTime := getBuildTime()
	if buildTime.IsZero() {
		return "unknown"
	}

	// Dirty builds stamp the build time instead of the commit time.
	if BuildTime != "" && strings.HasSuffix(Version, dirtySuffix) {
		return buildTime.Format(time.RFC3339) + " (build time)"
	}
	return buildTime.Format(time.RFC3339) + " (commit time)"
}
