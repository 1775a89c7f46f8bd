// Package tmpname computes the companion file names a cask Store uses
// around its single data file: the compaction scratch file and the
// advisory lock file. Keeping the naming in one place guarantees the
// compactor, the loader, and the lock manager always agree on where to
// look.
package tmpname

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Compact returns the path of the scratch file a compaction writes its
// rewritten log into before renaming it over the live data file. The name
// carries a nanosecond timestamp so a crashed compaction's leftover file
// never collides with a fresh one.
func Compact(path string) string {
	return fmt.Sprintf("%s.compact-%d.tmp", path, time.Now().UnixNano())
}

// Lock returns the path of the advisory lock file a Store takes for the
// lifetime of the handle.
func Lock(path string) string {
	return path + ".lock"
}

// Stale reports whether path looks like a leftover compaction scratch file
// from a previous, non-graceful shutdown: it matches the "<data>.compact-*.tmp"
// pattern and its sibling data file still exists. Callers use this during
// startup housekeeping to remove orphaned scratch files without risking a
// live one.
func Stale(candidate, dataPath string) bool {
	if len(candidate) <= len(dataPath) {
		return false
	}
	if candidate[:len(dataPath)] != dataPath {
		return false
	}
	suffix := candidate[len(dataPath):]
	if len(suffix) < len(".compact-") {
		return false
	}
	if suffix[:len(".compact-")] != ".compact-" {
		return false
	}
	if !strings.HasSuffix(suffix, ".tmp") {
		return false
	}
	if _, err := os.Stat(dataPath); err != nil {
		return false
	}
	return true
}
