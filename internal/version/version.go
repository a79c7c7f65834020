// Package version reports the build identity of the genai-chat binary.
package version

import (
	"runtime/debug"
	"strings"
)

var (
	// Version is the release version (set via -ldflags).
	Version = ""
	// Commit is the git commit hash (set via -ldflags).
	Commit = ""
	// BuildTime is the build timestamp (set via -ldflags).
	BuildTime = ""
)

const devel = "devel"

type Info struct {
	Version   string
	Commit    string
	BuildTime string
	GoVersion string
	// Tags lists the build tags, e.g. "llama" when the in-process backend
	// was compiled in.
	Tags string
}

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// Resolve merges the ldflags values with what the Go toolchain embedded.
// ldflags win.
func Resolve() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
	}

	if bi, ok := readBuildInfo(); ok && bi != nil {
		info.GoVersion = bi.GoVersion
		if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		modified := false
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = s.Value
				}
			case "vcs.time":
				if info.BuildTime == "" {
					info.BuildTime = s.Value
				}
			case "vcs.modified":
				modified = s.Value == "true"
			case "-tags":
				info.Tags = s.Value
			}
		}
		if modified && info.Commit != "" && !strings.HasSuffix(info.Commit, "-dirty") && Commit == "" {
			info.Commit += "-dirty"
		}
	}

	if info.Version == "" {
		info.Version = devel
	}
	return info
}

func String() string {
	info := Resolve()
	if info.Commit == "" {
		return info.Version
	}
	return info.Version + " (" + shortCommit(info.Commit) + ")"
}

func shortCommit(commit string) string {
	dirty := strings.HasSuffix(commit, "-dirty")
	commit = strings.TrimSuffix(commit, "-dirty")
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if dirty {
		commit += "-dirty"
	}
	return commit
}
