// pkg/logging/retention.go - pruning of old session log directories.

package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// sessionDirFormat names the per-run directories under the log base dir.
const sessionDirFormat = "2006-01-02-150405"

// DefaultRetentionDays is used when the configuration sets no retention.
const DefaultRetentionDays = 7

// PruneSessions removes session directories under baseDir. Sessions from the
// last 24 hours are all kept; older ones keep only the first session of each
// day, and anything older than retentionDays is removed. Directories whose
// names are not session timestamps are left alone. It returns the number of
// directories removed.
func PruneSessions(baseDir string, retentionDays int, now time.Time) (int, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read log directory: %w", err)
	}
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	sessions := make(map[string]time.Time)
	firstOfDay := make(map[string]time.Time)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		ts, err := time.ParseInLocation(sessionDirFormat, entry.Name(), now.Location())
		if err != nil {
			continue
		}
		sessions[entry.Name()] = ts
		day := ts.Format("2006-01-02")
		if first, ok := firstOfDay[day]; !ok || ts.Before(first) {
			firstOfDay[day] = ts
		}
	}

	var removed int
	for name, ts := range sessions {
		age := now.Sub(ts)
		drop := age > time.Duration(retentionDays)*24*time.Hour
		if !drop && age > 24*time.Hour {
			drop = !ts.Equal(firstOfDay[ts.Format("2006-01-02")])
		}
		if !drop {
			continue
		}
		if err := os.RemoveAll(filepath.Join(baseDir, name)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to remove old log directory %s: %v\n", name, err)
			continue
		}
		removed++
	}
	return removed, nil
}
