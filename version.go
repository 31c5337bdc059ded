package tika

import (
	"runtime"
	"runtime/debug"
)

// Version is the semantic version of the tika library.
const Version = "0.1.0"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}

// VersionInfo describes the running build.
type VersionInfo struct {
	Version   string
	GitCommit string // "unknown" when neither ldflags nor VCS stamping set it
	BuildTime string
	GoVersion string
	Modified  bool // built from a dirty work tree
}

// GetVersionInfo returns build information. Commit and build time come from
// -ldflags when set:
//
//	go build -ldflags="-X github.com/dameikle/tika.gitCommit=$(git rev-parse HEAD) \
//	  -X github.com/dameikle/tika.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// and otherwise from the VCS stamp the go command embeds in the binary.
func GetVersionInfo() VersionInfo {
	info := VersionInfo{
		Version:   Version,
		GitCommit: gitCommit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "unknown" {
				info.GitCommit = s.Value
			}
		case "vcs.time":
			if info.BuildTime == "unknown" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// Set with -ldflags at build time.
var (
	gitCommit = "unknown"
	buildTime = "unknown"
)
