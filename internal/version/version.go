// Package version reports build information for the docsite binary and the
// identification string sent in the Server response header.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Set at build time with -ldflags "-X .../version.Version=v1.2.3".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Module paths reported in the Server header.
const (
	mainName   = "docsite"
	templPath  = "github.com/a-h/templ"
	templName  = "templ"
	unknownVer = "unknown"
)

// Info is the full build description.
type Info struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"git_commit"`
	BuildTime time.Time `json:"build_time"`
	GoVersion string    `json:"go_version"`
	Platform  string    `json:"platform"`
	Templ     string    `json:"templ"`
}

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// Get collects build information from the linker flags and the embedded
// module data.
func Get() *Info {
	return &Info{
		Version:   current(),
		GitCommit: commit(),
		BuildTime: parseBuildTime(BuildTime),
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		Templ:     Dependency(templPath),
	}
}

func current() string {
	if Version != "" && Version != "dev" {
		return Version
	}

	if info, ok := readBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			return info.Main.Version
		}
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && len(setting.Value) >= 7 {
				return "dev-" + setting.Value[:7]
			}
		}
	}

	return "dev"
}

func commit() string {
	if GitCommit != "" && GitCommit != unknownVer {
		return GitCommit
	}

	if info, ok := readBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				return setting.Value
			}
		}
	}

	return unknownVer
}

// Dependency returns the version of the named module dependency, or
// "unknown" when the binary carries no module data for it.
func Dependency(path string) string {
	info, ok := readBuildInfo()
	if !ok {
		return unknownVer
	}

	for _, dep := range info.Deps {
		if dep.Path != path {
			continue
		}
		if dep.Replace != nil && dep.Replace.Version != "" {
			return dep.Replace.Version
		}
		return dep.Version
	}

	return unknownVer
}

// ServerHeader is the value of the Server header on rendered pages, for
// example "docsite/v1.4.0 templ/v0.3.906".
func ServerHeader() string {
	return fmt.Sprintf("%s/%s %s/%s", mainName, current(), templName, Dependency(templPath))
}

// Detailed returns a multi-line description for `docsite version`.
func (i *Info) Detailed() string {
	parts := []string{fmt.Sprintf("Version: %s", i.Version)}

	if i.GitCommit != unknownVer {
		parts = append(parts, fmt.Sprintf("Commit: %s", i.GitCommit))
	}
	if !i.BuildTime.IsZero() {
		parts = append(parts, fmt.Sprintf("Built: %s", i.BuildTime.Format(time.RFC3339)))
	}
	parts = append(parts,
		fmt.Sprintf("Go: %s", i.GoVersion),
		fmt.Sprintf("Platform: %s", i.Platform),
		fmt.Sprintf("templ: %s", i.Templ),
	)

	return strings.Join(parts, "\n")
}

func parseBuildTime(s string) time.Time {
	if s == "" || s == unknownVer {
		return time.Time{}
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}

	return time.Time{}
}
