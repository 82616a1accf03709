package fsstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/clearnote/notesync/internal/events"
)

// CompactStats summarizes one compaction pass.
type CompactStats struct {
	FilesRemoved int
	DirsRemoved  int
}

// Compact removes note files and revision directories no longer
// referenced by the root manifest. It refuses to run while a sync
// transaction holds the store.
func Compact(root string, logger *events.Logger) (CompactStats, error) {
	var stats CompactStats
	log := logger.WithField("component", "fs_compact")

	if _, err := readLockFile(filepath.Join(root, LockFileName)); err == nil {
		return stats, fmt.Errorf("store is locked by an active sync")
	}

	m, err := ReadManifest(filepath.Join(root, ManifestFileName))
	if err != nil {
		return stats, fmt.Errorf("read manifest: %w", err)
	}

	// A note is live only at the exact revision the manifest records.
	live := make(map[string]bool, len(m.Notes))
	for id, rev := range m.Notes {
		live[filepath.Join(strconv.Itoa(rev/100), strconv.Itoa(rev), id+".note")] = true
	}

	parents, err := os.ReadDir(root)
	if err != nil {
		return stats, fmt.Errorf("read store root: %w", err)
	}

	for _, parent := range parents {
		if !parent.IsDir() {
			continue
		}
		if _, err := strconv.Atoi(parent.Name()); err != nil {
			continue
		}
		parentPath := filepath.Join(root, parent.Name())

		children, err := os.ReadDir(parentPath)
		if err != nil {
			continue
		}
		for _, child := range children {
			if !child.IsDir() {
				continue
			}
			rev, err := strconv.Atoi(child.Name())
			if err != nil {
				continue
			}
			revPath := filepath.Join(parentPath, child.Name())

			removed, kept := sweepRevisionDir(revPath, parent.Name(), child.Name(), live, rev == m.Revision, log)
			stats.FilesRemoved += removed

			if kept == 0 && rev != m.Revision {
				if err := os.Remove(revPath); err != nil {
					log.WithError(err).Debug("Failed to remove empty revision directory")
				} else {
					stats.DirsRemoved++
				}
			}
		}

		// Drop the hundreds-bucket too once it has emptied out.
		if remaining, err := os.ReadDir(parentPath); err == nil && len(remaining) == 0 {
			if err := os.Remove(parentPath); err == nil {
				stats.DirsRemoved++
			}
		}
	}

	log.WithFields(map[string]interface{}{
		"files_removed": stats.FilesRemoved,
		"dirs_removed":  stats.DirsRemoved,
	}).Info("Compacted sync store")

	return stats, nil
}

// sweepRevisionDir deletes unreferenced note files in one revision
// directory and reports how many entries it removed and how many
// remain. The current revision keeps its manifest copy.
func sweepRevisionDir(revPath, bucket, rev string, live map[string]bool, isCurrent bool, log *events.Logger) (removed, kept int) {
	entries, err := os.ReadDir(revPath)
	if err != nil {
		return 0, 1
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			kept++
			continue
		}
		if name == ManifestFileName {
			if isCurrent {
				kept++
				continue
			}
			// Superseded manifest copies are dead weight.
			if err := os.Remove(filepath.Join(revPath, name)); err != nil {
				kept++
			} else {
				removed++
			}
			continue
		}
		if live[filepath.Join(bucket, rev, name)] {
			kept++
			continue
		}
		if err := os.Remove(filepath.Join(revPath, name)); err != nil {
			log.WithError(err).Debug("Failed to remove stale note file")
			kept++
		} else {
			removed++
		}
	}
	return removed, kept
}
