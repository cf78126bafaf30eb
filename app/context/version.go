package context

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// version is the release version. It can be overridden at build time with
// -ldflags "-X go.hackfix.me/stash/app/context.version=...".
var version = "0.1.0"

// VersionInfo describes the build of the running binary.
type VersionInfo struct {
	Semantic string
	Commit   string
	Dirty    bool
	Go       string
}

// GetVersion returns the app version, with VCS information from the Go
// runtime if the binary was built from a repository checkout.
func GetVersion() *VersionInfo {
	vi := &VersionInfo{
		Semantic: strings.TrimPrefix(version, "v"),
		Go:       fmt.Sprintf("%s, %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return vi
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			vi.Commit = s.Value[:min(len(s.Value), 10)]
		case "vcs.modified":
			vi.Dirty = s.Value == "true"
		}
	}

	return vi
}

// String returns the full version information.
func (vi *VersionInfo) String() string {
	if vi.Commit == "" {
		return fmt.Sprintf("v%s (%s)", vi.Semantic, vi.Go)
	}

	var dirty string
	if vi.Dirty {
		dirty = "-dirty"
	}

	return fmt.Sprintf("v%s (commit/%s%s, %s)", vi.Semantic, vi.Commit, dirty, vi.Go)
}
