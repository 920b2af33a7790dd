package usecase

import (
	"path"
	"strings"

	"github.com/eliteGoblin/focusd/ficha/internal/domain"
)

// systemProcessPrefixes are OS/daemon process names that are never eligible
// for matching, whatever the protected set contains.
var systemProcessPrefixes = []string{
	"systemd", "kthreadd", "kworker", "ksoftirqd", "rcu_", "migration",
	"watchdog", "cpuhp", "kdevtmpfs", "netns", "khungtaskd", "oom_reaper",
	"writeback", "kcompactd", "crypto", "kblockd", "md", "kswapd",
	"init", "bash", "sh", "dbus", "upstart", "snapd",
}

// IsSystemProcess reports whether name starts with a known system prefix.
// The comparison is case-sensitive: kernel threads and daemons use lowercase names.
func IsSystemProcess(name string) bool {
	for _, prefix := range systemProcessPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Matches decides whether a live process corresponds to a protected name.
// The checks run in order and the first hit wins:
//  1. exact name
//  2. process name starts with the protected name ("brave" -> "brave-browser-stable")
//  3. protected name starts with the process name (truncated comm names)
//  4. executable path contains the protected name, or its basename is a
//     symmetric prefix of it
//
// The heuristic favors false positives over false negatives.
func Matches(protected, processName, exePath string) bool {
	p := strings.ToLower(protected)
	if p == "" {
		return false
	}

	name := strings.ToLower(processName)
	if name != "" {
		if name == p || strings.HasPrefix(name, p) || strings.HasPrefix(p, name) {
			return true
		}
	}

	if exePath == "" {
		return false
	}

	exe := strings.ToLower(exePath)
	if strings.Contains(exe, p) {
		return true
	}

	base := path.Base(exe)
	if base == "" || base == "/" || base == "." {
		return false
	}
	return base == p || strings.HasPrefix(base, p) || strings.HasPrefix(p, base)
}

// MatchAny returns the first protected name matching the process.
func MatchAny(protected []string, proc domain.ProcessSnapshot) (string, bool) {
	for _, name := range protected {
		if Matches(name, proc.Name, proc.ExePath) {
			return name, true
		}
	}
	return "", false
}
