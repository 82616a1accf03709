package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clearnote/notesync/internal/remote/fsstore"
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Remove superseded note files from the sync directory",
	Long: `Compact deletes note files and revision directories no longer
referenced by the store manifest. Safe to run any time the store is
not mid-sync; it refuses to touch a locked store.`,
	Args: cobra.NoArgs,
	RunE: runCompact,
}

func init() {
	rootCmd.AddCommand(compactCmd)
}

func runCompact(cmd *cobra.Command, args []string) error {
	if cfg.Sync.Path == "" {
		return fmt.Errorf("no sync path configured")
	}

	stats, err := fsstore.Compact(cfg.Sync.Path, logger)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"files_removed": stats.FilesRemoved,
			"dirs_removed":  stats.DirsRemoved,
		})
		return nil
	}

	printSuccess("Removed %d stale files and %d empty revision directories",
		stats.FilesRemoved, stats.DirsRemoved)
	return nil
}
