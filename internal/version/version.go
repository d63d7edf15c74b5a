// Package version tracks build metadata for the application.
package version

import (
	"runtime"
	"runtime/debug"
	"sync"
)

// Info describes build metadata for the application.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

var (
	info      = Info{Version: "dev", GoVersion: runtime.Version()}
	infoMutex sync.RWMutex
)

// Set updates the version metadata exposed by the application. Empty commit
// and build time fall back to the VCS stamp embedded by the Go toolchain.
func Set(v Info) {
	if bi, ok := debug.ReadBuildInfo(); ok {
		v = withBuildSettings(v, bi.Settings)
	}
	if v.Version == "" {
		v.Version = "dev"
	}
	if v.GoVersion == "" {
		v.GoVersion = runtime.Version()
	}

	infoMutex.Lock()
	defer infoMutex.Unlock()
	info = v
}

// Current returns the currently configured build metadata.
func Current() Info {
	infoMutex.RLock()
	defer infoMutex.RUnlock()
	return info
}

// String renders the version in a single line for CLI output.
func (i Info) String() string {
	out := i.Version
	if i.Commit != "" {
		out += " (" + i.Commit + ")"
	}
	if i.BuildTime != "" {
		out += " built " + i.BuildTime
	}
	return out
}

func withBuildSettings(v Info, settings []debug.BuildSetting) Info {
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			if v.Commit == "" {
				v.Commit = setting.Value
			}
		case "vcs.time":
			if v.BuildTime == "" {
				v.BuildTime = setting.Value
			}
		}
	}
	return v
}
