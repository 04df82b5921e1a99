// Package version carries build metadata stamped in by the release linker flags.
package version

import (
	"runtime"
	"runtime/debug"
	"strings"
)

// Overridden at link time with -ldflags "-X ...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders the one-line version banner printed by `dictum version`.
func String() string {
	commit, date := Commit, Date
	if info, ok := debug.ReadBuildInfo(); ok {
		commit, date = fromBuildInfo(info.Settings, commit, date)
	}

	var b strings.Builder
	b.WriteString("dictum ")
	b.WriteString(Version)
	b.WriteString(" (commit=")
	b.WriteString(commit)
	b.WriteString(", date=")
	b.WriteString(date)
	b.WriteString(", go=")
	b.WriteString(runtime.Version())
	b.WriteString(")")
	return b.String()
}

// fromBuildInfo fills unset commit/date values from VCS stamps.
func fromBuildInfo(settings []debug.BuildSetting, commit, date string) (string, string) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if commit == "none" && s.Value != "" {
				commit = s.Value
				if len(commit) > 12 {
					commit = commit[:12]
				}
			}
		case "vcs.time":
			if date == "unknown" && s.Value != "" {
				date = s.Value
			}
		}
	}
	return commit, date
}
