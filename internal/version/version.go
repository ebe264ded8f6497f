// Package version reports what build of the bridge is running.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Set at build time:
//
//	go build -ldflags="-X github.com/muurk/easyfire/internal/version.Version=v1.2.3 \
//	                   -X github.com/muurk/easyfire/internal/version.Commit=abc123"
//
// Unset values are filled from the module's VCS stamp, then "dev"/"unknown".
var (
	Version = ""
	Commit  = ""
)

// Info describes the running build. It is served by GET /api/status.
type Info struct {
	Version   string    `json:"version"`
	Commit    string    `json:"commit"`
	Modified  bool      `json:"modified"`
	BuiltAt   time.Time `json:"built_at,omitzero"`
	GoVersion string    `json:"go_version"`
}

var info Info

func init() {
	info = resolve(Version, Commit, readSettings())
	Version, Commit = info.Version, info.Commit
}

func readSettings() map[string]string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	settings := make(map[string]string, len(bi.Settings))
	for _, s := range bi.Settings {
		settings[s.Key] = s.Value
	}
	return settings
}

// resolve fills version and commit from VCS build settings where unset
func resolve(version, commit string, settings map[string]string) Info {
	i := Info{
		Version:   version,
		Commit:    commit,
		Modified:  settings["vcs.modified"] == "true",
		GoVersion: runtime.Version(),
	}
	if t, err := time.Parse(time.RFC3339, settings["vcs.time"]); err == nil {
		i.BuiltAt = t
	}

	if i.Commit == "" {
		if rev := settings["vcs.revision"]; rev != "" {
			i.Commit = rev[:min(7, len(rev))]
			if i.Modified {
				i.Commit += "-dirty"
			}
		}
	}
	if i.Version == "" && !i.BuiltAt.IsZero() {
		i.Version = "dev-" + i.BuiltAt.Format("20060102")
	}

	if i.Version == "" {
		i.Version = "dev"
	}
	if i.Commit == "" {
		i.Commit = "unknown"
	}
	return i
}

// Get returns the build information
func Get() Info {
	return info
}

// Full returns the version with commit and Go version, for version commands
func Full() string {
	return fmt.Sprintf("%s (commit: %s, %s)", info.Version, info.Commit, strings.TrimPrefix(info.GoVersion, "go"))
}
