package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/clearnote/notesync/internal/models"
	syncengine "github.com/clearnote/notesync/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronization pass",
	Long: `Sync exchanges changes with the configured sync directory: new and
modified remote notes are downloaded, local changes are uploaded, and
deletions propagate in both directions.`,
	Example: `  notesync sync
  notesync sync --conflict rename`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

var syncConflict string

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringVar(&syncConflict, "conflict", "",
		"Conflict policy for this pass: overwrite, rename, rename_keep_local")
}

func runSync(cmd *cobra.Command, args []string) error {
	if syncConflict != "" {
		cfg.Sync.ConflictDefault = syncConflict
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	ui := newConsoleUI(conflictDefault())
	a, err := buildApp(ui)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		printWarning("\nSync interrupted, cancelling...")
		cancel()
	}()

	start := time.Now()
	err = a.engine.Sync(ctx)
	duration := time.Since(start)

	if jsonOutput {
		result := map[string]interface{}{
			"success":  err == nil,
			"duration": duration.Round(time.Millisecond).String(),
			"changes":  ui.changes,
		}
		if err != nil {
			result["error"] = err.Error()
		}
		printJSON(result)
		return err
	}

	switch {
	case err == nil:
		printSuccess("Sync completed in %s (%d changes)",
			duration.Round(time.Second), len(ui.changes))
		return nil
	case errors.Is(err, models.ErrSyncCancelled):
		printWarning("Sync cancelled")
		return nil
	case errors.Is(err, syncengine.ErrServerLocked):
		return nil
	case errors.Is(err, models.ErrNoConfiguredService):
		return fmt.Errorf("no sync service configured; set sync.service and sync.path")
	default:
		return err
	}
}

// consoleUI renders sync progress on the terminal and resolves
// conflicts with the chosen policy.
type consoleUI struct {
	resolution models.ConflictResolution
	changes    []string
}

func newConsoleUI(resolution models.ConflictResolution) *consoleUI {
	return &consoleUI{resolution: resolution}
}

func (u *consoleUI) StateChanged(state models.SyncState) {
	if jsonOutput {
		return
	}
	switch state {
	case models.StateConnecting, models.StateAcquiringLock,
		models.StateDownloading, models.StateUploading,
		models.StateCommitting:
		fmt.Printf("  %s...\n", state)
	case models.StateLocked:
		printWarning("Another client is syncing; try again shortly")
	}
}

func (u *consoleUI) NoteSynchronized(title string, outcome models.SyncOutcome) {
	u.changes = append(u.changes, fmt.Sprintf("%s: %s", outcome, title))
	if jsonOutput {
		return
	}
	fmt.Printf("    %s %s\n", color.CyanString(outcome.String()), title)
}

func (u *consoleUI) Conflict(existing *models.Note, update models.NoteUpdate, titlesInFlight map[string]bool) models.ConflictResolution {
	if !jsonOutput {
		printWarning("Conflict on %q, resolving with %s", update.Title, u.resolution)
	}
	return u.resolution
}
