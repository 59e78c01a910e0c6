// Package version reports the build version of turbo.
package version

import (
	"fmt"
	"regexp"
	"strconv"
)

// Version is set at build time:
//
//	go build -ldflags "-X github.com/AlexRogalskiy/turborepo/internal/version.Version=1.2.3"
var Version = "dev"

// SemverRegex validates semantic version strings.
var SemverRegex = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)(-([a-zA-Z0-9]+(\.[a-zA-Z0-9]+)*))?(\+([a-zA-Z0-9]+(\.[a-zA-Z0-9]+)*))?$`)

// Semver represents a parsed semantic version.
type Semver struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string
	Build      string
}

// String returns the build version, or "dev" when unset. Semantic versions
// are normalized, so "v1.2.3" reads as "1.2.3".
func String() string {
	if Version == "" {
		return "dev"
	}
	if s, err := Parse(Version); err == nil {
		return s.String()
	}
	return Version
}

// Parse parses a semantic version string. A leading "v" is accepted.
func Parse(version string) (*Semver, error) {
	match := SemverRegex.FindStringSubmatch(version)
	if match == nil {
		return nil, fmt.Errorf("invalid semver format: %q", version)
	}

	// Errors ignored: regex guarantees these capture groups contain only digits
	major, _ := strconv.Atoi(match[1])
	minor, _ := strconv.Atoi(match[2])
	patch, _ := strconv.Atoi(match[3])

	return &Semver{
		Major:      major,
		Minor:      minor,
		Patch:      patch,
		Prerelease: match[5],
		Build:      match[8],
	}, nil
}

// String returns the semver string representation.
func (s *Semver) String() string {
	result := fmt.Sprintf("%d.%d.%d", s.Major, s.Minor, s.Patch)
	if s.Prerelease != "" {
		result += "-" + s.Prerelease
	}
	if s.Build != "" {
		result += "+" + s.Build
	}
	return result
}
