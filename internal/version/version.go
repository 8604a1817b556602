package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	// Version is the version of the application, set by build flags
	Version = "dev"
	// Commit is the git commit hash, set by build flags
	Commit = "unknown"
	// BuildDate is the build date, set by build flags
	BuildDate = "unknown"
)

// readBuildInfo is replaced in tests
var readBuildInfo = debug.ReadBuildInfo

// Short returns the version. Binaries built with "go install" carry no
// ldflags, so the module version and VCS stamp are used when present.
func Short() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := readBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

// revision returns the commit from ldflags or from the VCS stamp
func revision() string {
	if Commit != "unknown" {
		return Commit
	}
	if info, ok := readBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return s.Value
			}
		}
	}
	return Commit
}

// Info returns version information
func Info() string {
	return fmt.Sprintf("xapk-patcher %s\nCommit: %s\nBuilt: %s\nGo: %s\nOS/Arch: %s/%s",
		Short(),
		revision(),
		BuildDate,
		runtime.Version(),
		runtime.GOOS,
		runtime.GOARCH,
	)
}
