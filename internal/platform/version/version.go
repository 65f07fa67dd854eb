package version

import (
	"runtime"
	"runtime/debug"
)

// Build information, injected via ldflags at build time
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Service is the name reported by /version and the startup log line.
const Service = "tts-relay"

// Info holds complete build information
type Info struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get returns the current build information. Without ldflags the commit and build time
// fall back to the VCS stamp recorded by the Go toolchain.
func Get() Info {
	info := Info{
		Service:   Service,
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && info.Commit == "unknown":
			info.Commit = s.Value
		case s.Key == "vcs.time" && info.BuildTime == "unknown":
			info.BuildTime = s.Value
		}
	}
	return info
}
