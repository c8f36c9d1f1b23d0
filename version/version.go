// Package version carries build information and the client compatibility check.
package version

import (
	"fmt"
	"runtime"

	"github.com/Masterminds/semver/v3"

	"github.com/teranos/linkpulse/errors"
)

// Build information. These variables are set at build time via ldflags.
var (
	// CommitHash is the git commit hash when the binary was built
	CommitHash = "dev"

	// BuildTime is when the binary was built
	BuildTime = "unknown"

	// Version is the semantic version. Untagged builds are a prerelease.
	Version = "0.1.0-dev"
)

// Info contains version and build information
type Info struct {
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Version    string `json:"version"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// Get returns the current version information
func Get() Info {
	return Info{
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		Version:    Version,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns a human-readable version string
func (i Info) String() string {
	return fmt.Sprintf("linkpulse %s (commit %s, built %s)", i.Version, i.Short(), i.BuildTime)
}

// Short returns a short version string with just the commit hash
func (i Info) Short() string {
	if len(i.CommitHash) >= 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}

// CheckClient rejects a client older than minVersion. An empty minVersion
// accepts everything. Prerelease builds of the minimum itself are accepted,
// so 1.4.0-dev passes a 1.4.0 gate.
func CheckClient(clientVersion, minVersion string) error {
	if minVersion == "" {
		return nil
	}
	minimum, err := semver.NewVersion(minVersion)
	if err != nil {
		return errors.Wrapf(err, "invalid minimum client version %q", minVersion)
	}
	if clientVersion == "" {
		return errors.WithHint(
			errors.NewValidationError("client version missing, %s or newer required", minimum),
			"send the X-Client-Version header")
	}
	client, err := semver.NewVersion(clientVersion)
	if err != nil {
		return errors.NewValidationError("client version %q is not a semantic version", clientVersion)
	}

	release, _ := client.SetPrerelease("")
	if release.LessThan(minimum) {
		return errors.WithHint(
			errors.NewValidationError("client %s is older than the required %s", client, minimum),
			"update the linkpulse extension or CLI")
	}
	return nil
}
