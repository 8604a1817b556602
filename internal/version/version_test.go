package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func stubBuildInfo(t *testing.T, info *debug.BuildInfo) {
	t.Helper()
	saved, savedVersion, savedCommit := readBuildInfo, Version, Commit
	t.Cleanup(func() { readBuildInfo, Version, Commit = saved, savedVersion, savedCommit })
	readBuildInfo = func() (*debug.BuildInfo, bool) { return info, info != nil }
}

func TestShortPrefersLdflags(t *testing.T) {
	stubBuildInfo(t, &debug.BuildInfo{Main: debug.Module{Version: "v0.3.0"}})
	Version = "1.2.3"
	assert.Equal(t, "1.2.3", Short())
}

func TestShortFallsBackToModuleVersion(t *testing.T) {
	stubBuildInfo(t, &debug.BuildInfo{
		Main:     debug.Module{Version: "v0.3.0"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "abc123"}},
	})
	Version, Commit = "dev", "unknown"
	assert.Equal(t, "v0.3.0", Short())
	assert.Contains(t, Info(), "Commit: abc123")
}

func TestShortDevelBuild(t *testing.T) {
	stubBuildInfo(t, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
	Version = "dev"
	assert.Equal(t, "dev", Short())

	stubBuildInfo(t, nil)
	assert.Equal(t, "dev", Short())
	assert.Contains(t, Info(), "xapk-patcher dev")
}
