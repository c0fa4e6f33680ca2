// Package version reports the build identity of the stackdev binary.
package version

import (
	"fmt"
	"runtime/debug"
)

const unknown = "unknown"

// Build identity, overridden at link time with
// -ldflags "-X github.com/Sumatoshi-tech/stackdev/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = unknown
	Date    = unknown
)

// InitBinaryVersion fills identity fields still at their defaults from the
// module build info embedded by the Go toolchain.
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

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if Commit == unknown {
				Commit = setting.Value
			}
		case "vcs.time":
			if Date == unknown {
				Date = setting.Value
			}
		}
	}
}

// String renders the build identity on one line.
func String() string {
	return fmt.Sprintf("stackdev %s (commit: %s, built: %s)", Version, Commit, Date)
}
