package version

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is the service current released version.
// Override at build time:
//
//	go build -ldflags "-X github.com/hrygo/omnichat/internal/version.Version=0.3.0"
var Version = "0.1.0"

// DevVersion is reported in dev and demo mode.
var DevVersion = Version + "-dev"

// GitCommit is the git commit hash at build time.
var GitCommit = "unknown"

func GetCurrentVersion(mode string) string {
	if mode == "dev" || mode == "demo" {
		return DevVersion
	}
	return Version
}

func canonical(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// IsValid reports whether v is a semantic version, with or without the leading "v".
func IsValid(v string) bool {
	return semver.IsValid(canonical(v))
}

// IsPrerelease reports whether v carries a prerelease suffix such as "-dev".
func IsPrerelease(v string) bool {
	return semver.Prerelease(canonical(v)) != ""
}

// String returns the version string with the short commit hash when known.
func String(mode string) string {
	v := GetCurrentVersion(mode)
	if GitCommit != "" && GitCommit != "unknown" {
		shortCommit := GitCommit
		if len(shortCommit) > 8 {
			shortCommit = shortCommit[:8]
		}
		v = fmt.Sprintf("%s+%s", v, shortCommit)
	}
	return v
}
