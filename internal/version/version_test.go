package version

import (
	"runtime/debug"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func withBuildInfo(t *testing.T, info *debug.BuildInfo) {
	t.Helper()
	orig := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) { return info, info != nil }
	t.Cleanup(func() { readBuildInfo = orig })
}

func withVersion(t *testing.T, v, c string) {
	t.Helper()
	origV, origC := Version, GitCommit
	Version, GitCommit = v, c
	t.Cleanup(func() { Version, GitCommit = origV, origC })
}

func TestServerHeader(t *testing.T) {
	withVersion(t, "v1.4.0", "unknown")
	withBuildInfo(t, &debug.BuildInfo{
		Deps: []*debug.Module{
			{Path: "github.com/spf13/cobra", Version: "v1.9.1"},
			{Path: "github.com/a-h/templ", Version: "v0.3.906"},
		},
	})

	assert.Equal(t, "docsite/v1.4.0 templ/v0.3.906", ServerHeader())
}

func TestServerHeader_NoBuildInfo(t *testing.T) {
	withVersion(t, "dev", "unknown")
	withBuildInfo(t, nil)

	assert.Equal(t, "docsite/dev templ/unknown", ServerHeader())
}

func TestDependency_Replace(t *testing.T) {
	withBuildInfo(t, &debug.BuildInfo{
		Deps: []*debug.Module{{
			Path:    "github.com/a-h/templ",
			Version: "v0.3.906",
			Replace: &debug.Module{Path: "../templ", Version: "v0.3.999"},
		}},
	})

	assert.Equal(t, "v0.3.999", Dependency("github.com/a-h/templ"))
	assert.Equal(t, "unknown", Dependency("github.com/missing/mod"))
}

func TestCurrent_FromVCS(t *testing.T) {
	withVersion(t, "dev", "unknown")
	withBuildInfo(t, &debug.BuildInfo{
		Main:     debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "0123456789abcdef"}},
	})

	info := Get()
	assert.Equal(t, "dev-0123456", info.Version)
	assert.Equal(t, "0123456789abcdef", info.GitCommit)
}

func TestDetailed(t *testing.T) {
	info := &Info{
		Version:   "v1.0.0",
		GitCommit: "abc1234",
		BuildTime: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		GoVersion: "go1.24.4",
		Platform:  "linux/amd64",
		Templ:     "v0.3.906",
	}

	out := info.Detailed()
	assert.True(t, strings.HasPrefix(out, "Version: v1.0.0\n"))
	assert.Contains(t, out, "Commit: abc1234")
	assert.Contains(t, out, "Built: 2024-01-02T03:04:05Z")
	assert.Contains(t, out, "templ: v0.3.906")
}

func TestParseBuildTime(t *testing.T) {
	assert.True(t, parseBuildTime("unknown").IsZero())
	assert.True(t, parseBuildTime("not a time").IsZero())
	assert.Equal(t, 2024, parseBuildTime("2024-05-06T07:08:09Z").Year())
	assert.Equal(t, 5, int(parseBuildTime("2024-05-06 07:08:09").Month()))
}
