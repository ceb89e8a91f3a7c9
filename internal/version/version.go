// Package version reports the build version of the twin backend.
// Values are injected at build time with -ldflags and validated as semantic versions.
package version

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// Name is the product name shown in version strings.
const Name = "digitaltwin"

// Build information that can be set at compile time via -ldflags
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info is the version report served by the CLI and the root endpoint.
// Development is set for binaries built without commit or date metadata.
type Info struct {
	Version     string          `json:"version"`
	GitCommit   string          `json:"git_commit"`
	BuildDate   string          `json:"build_date"`
	GoVersion   string          `json:"go_version"`
	Platform    string          `json:"platform"`
	Prerelease  bool            `json:"prerelease"`
	Development bool            `json:"development"`
	BuildTime   *time.Time      `json:"build_time,omitempty"`
	SemVer      *semver.Version `json:"-"`
}

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}

// GetInfo returns the version report. It fails when Version is not a semantic version.
func GetInfo() (*Info, error) {
	sv, err := semver.NewVersion(Version)
	if err != nil {
		return nil, fmt.Errorf("invalid semantic version '%s': %w", Version, err)
	}

	info := &Info{
		Version:     sv.String(),
		GitCommit:   GitCommit,
		BuildDate:   BuildDate,
		GoVersion:   runtime.Version(),
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
		Prerelease:  IsPrerelease(),
		Development: IsDevelopment(),
		SemVer:      sv,
	}
	if built, err := GetBuildTime(); err == nil {
		info.BuildTime = &built
	}
	return info, nil
}

// GetFormattedVersion returns a one-line version string such as
// "digitaltwin v1.0.0, commit abc1234, built 2026-01-01".
func GetFormattedVersion() string {
	info, err := GetInfo()
	if err != nil {
		return fmt.Sprintf("%s v%s (invalid version)", Name, Version)
	}

	parts := []string{fmt.Sprintf("%s v%s", Name, info.Version)}
	if info.GitCommit != "unknown" && info.GitCommit != "" {
		commit := info.GitCommit
		if len(commit) > 7 {
			commit = commit[:7]
		}
		parts = append(parts, "commit "+commit)
	}
	if info.BuildDate != "unknown" && info.BuildDate != "" {
		parts = append(parts, "built "+info.BuildDate)
	}
	return strings.Join(parts, ", ")
}

// ValidateVersion checks that Version parses as a semantic version.
func ValidateVersion() error {
	if _, err := semver.NewVersion(Version); err != nil {
		return fmt.Errorf("invalid semantic version '%s': %w", Version, err)
	}
	return nil
}

// IsPrerelease reports whether Version carries a prerelease suffix.
func IsPrerelease() bool {
	sv, err := semver.NewVersion(Version)
	if err != nil {
		return false
	}
	return sv.Prerelease() != ""
}

// IsDevelopment reports whether the binary was built without release metadata.
func IsDevelopment() bool {
	return GitCommit == "unknown" || BuildDate == "unknown"
}

// Satisfies reports whether Version meets a constraint such as ">= 1.0.0".
func Satisfies(constraint string) (bool, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("invalid version constraint '%s': %w", constraint, err)
	}
	sv, err := semver.NewVersion(Version)
	if err != nil {
		return false, fmt.Errorf("invalid semantic version '%s': %w", Version, err)
	}
	return c.Check(sv), nil
}

// GetBuildTime parses BuildDate.
func GetBuildTime() (time.Time, error) {
	if BuildDate == "unknown" || BuildDate == "" {
		return time.Time{}, fmt.Errorf("build date not available")
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, BuildDate); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse build date '%s'", BuildDate)
}
