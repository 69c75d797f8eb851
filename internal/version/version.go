// Package version provides build information for the MYOstack collector tools
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// Set with -ldflags "-X myostack-collector/internal/version.Version=..."
var (
	Version   = "0.3.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// BuildInfo describes the running binary
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Info returns the build information of this binary
func Info() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    shortCommit(),
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func shortCommit() string {
	if len(GitCommit) > 7 && GitCommit != "unknown" {
		return GitCommit[:7]
	}
	return GitCommit
}

// Describe returns the multi-line --version text for a tool
func Describe(tool string) string {
	info := Info()
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", tool, info.Version)
	if info.Commit != "unknown" {
		fmt.Fprintf(&b, " (%s)", info.Commit)
	}
	if info.BuildDate != "unknown" {
		fmt.Fprintf(&b, "\nBuilt: %s", info.BuildDate)
	}
	fmt.Fprintf(&b, "\nGo: %s %s", info.GoVersion, info.Platform)
	return b.String()
}
