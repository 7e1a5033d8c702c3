package obs

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveBuildKeepsLinkerValues(t *testing.T) {
	bi := &debug.BuildInfo{
		GoVersion: "go1.23.1",
		Main:      debug.Module{Version: "v0.9.0"},
		Settings:  []debug.BuildSetting{{Key: "vcs.revision", Value: "ffffffffffffffff"}},
	}
	b := resolveBuild("1.2.0", "abc123", bi)
	assert.Equal(t, Build{Version: "1.2.0", Commit: "abc123", GoVersion: "go1.23.1"}, b)
}

func TestResolveBuildFallsBackToVCS(t *testing.T) {
	bi := &debug.BuildInfo{
		GoVersion: "go1.23.1",
		Main:      debug.Module{Version: "v0.9.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	b := resolveBuild("", "dev", bi)
	assert.Equal(t, "v0.9.0", b.Version)
	assert.Equal(t, "0123456789ab-dirty", b.Commit)
	assert.True(t, b.Modified)
}

func TestResolveBuildWithoutMetadata(t *testing.T) {
	b := resolveBuild("0.1.0", "dev", nil)
	assert.Equal(t, Build{Version: "0.1.0", Commit: "dev"}, b)

	b = resolveBuild("", "dev", &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
	assert.Equal(t, "", b.Version)
	assert.Equal(t, "dev", b.Commit)
}
