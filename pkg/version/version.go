// Package version holds build information for the covarchive binary.
package version

import (
	"runtime/debug"
)

const unknown = "<unknown>"

// Set through -ldflags "-X github.com/Sumatoshi-tech/covarchive/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = unknown
	Date    = unknown
)

// InitBinaryVersion fills Commit and Date from the VCS stamp of the running
// binary when ldflags left them unset, and Version from the module version
// for go install builds.
func InitBinaryVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	apply(info)
}

func apply(info *debug.BuildInfo) {
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if Commit == unknown {
				Commit = s.Value
			}
		case "vcs.time":
			if Date == unknown {
				Date = s.Value
			}
		}
	}
}

// String returns the one-line version banner.
func String() string {
	return Version + " (commit: " + Commit + ", built: " + Date + ")"
}
