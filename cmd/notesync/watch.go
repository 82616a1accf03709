package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/clearnote/notesync/internal/notes"
	syncengine "github.com/clearnote/notesync/internal/sync"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run background sync until interrupted",
	Long: `Watch keeps syncing in the background: a pass runs on the configured
interval and shortly after local edits settle. Conflicts resolve with
the configured default policy.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var watchInterval time.Duration

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0,
		"Override sync.autosync_interval for this run")
}

func runWatch(cmd *cobra.Command, args []string) error {
	interval := cfg.Sync.AutosyncInterval
	if watchInterval > 0 {
		interval = watchInterval
	}
	if interval <= 0 {
		return fmt.Errorf("no autosync interval configured; set sync.autosync_interval or pass --interval")
	}

	a, err := buildApp(syncengine.NewSilentUI(conflictDefault(), logger))
	if err != nil {
		return err
	}
	defer a.Close()

	scheduler := syncengine.NewScheduler(a.engine, a.manager, syncengine.SchedulerConfig{
		Interval: interval,
		Debounce: cfg.Sync.AutosyncDebounce,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// External edits restart the debounce window through the change
	// hook the scheduler registered.
	if dm, ok := a.manager.(*notes.DirManager); ok {
		if err := dm.Watch(ctx); err != nil {
			return err
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		printWarning("\nStopping background sync...")
		cancel()
	}()

	fmt.Printf("Syncing every %s (press Ctrl-C to stop)\n", interval)
	scheduler.Run(ctx)
	return nil
}
