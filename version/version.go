package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at build time:
//
//	go build -ldflags "-X github.com/teranos/dataq/version.Version=v0.3.0 \
//	  -X github.com/teranos/dataq/version.CommitHash=$(git rev-parse HEAD) \
//	  -X github.com/teranos/dataq/version.BuildTime=$(date -u +%FT%TZ)"
var (
	CommitHash = "dev"
	BuildTime  = "unknown"
	Version    = "dev"
)

// Info is reported by `dataq version`, the /health endpoint and the
// version message sent to new websocket clients
type Info struct {
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Version    string `json:"version"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
	Modified   bool   `json:"modified,omitempty"`
}

// Get returns the build information. Binaries built with `go install` carry
// no ldflags, so the commit and time fall back to the embedded VCS stamp.
func Get() Info {
	info := Info{
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		Version:    Version,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}
	if CommitHash != "dev" {
		return info
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.CommitHash = s.Value
		case "vcs.time":
			info.BuildTime = s.Value
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

func (i Info) String() string {
	commit := i.Short()
	if i.Modified {
		commit += "+dirty"
	}
	return fmt.Sprintf("dataq %s (commit %s, built %s, %s %s)", i.Version, commit, i.BuildTime, i.GoVersion, i.Platform)
}

// Short returns the first 7 characters of the commit hash
func (i Info) Short() string {
	if len(i.CommitHash) >= 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}
