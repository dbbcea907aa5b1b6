package version

import (
	"runtime/debug"
	"strings"
)

// Overridden at build time via -ldflags.
var (
	Version = "0.1.0"
	Commit  = ""
	Date    = ""
)

// Resolve returns the version string shown by `voxchunk version`. When no
// commit was stamped at link time it falls back to the VCS revision
// embedded by the Go toolchain, so even plain `go install` builds stay
// identifiable.
func Resolve() string {
	return resolveVersion(Version, Commit, debug.ReadBuildInfo)
}

func resolveVersion(base, commit string, buildInfo func() (*debug.BuildInfo, bool)) string {
	if base == "" {
		base = "0.0.0"
	}

	if commit == "" {
		commit = vcsRevision(buildInfo)
	}
	if commit == "" {
		return base
	}
	return base + "+" + shortRevision(commit)
}

func vcsRevision(buildInfo func() (*debug.BuildInfo, bool)) string {
	info, ok := buildInfo()
	if !ok || info == nil {
		return ""
	}

	var revision string
	dirty := false
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}

	if revision != "" && dirty {
		revision += "-dirty"
	}
	return revision
}

func shortRevision(rev string) string {
	hash, suffix, _ := strings.Cut(rev, "-")
	if len(hash) > 12 {
		hash = hash[:12]
	}
	if suffix != "" {
		return hash + "-" + suffix
	}
	return hash
}
