package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local sync bookkeeping and remote lock state",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := buildApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	status := map[string]interface{}{
		"client_id":      a.client.ClientID(),
		"server_id":      a.client.ServerID(),
		"last_sync_rev":  a.client.LastSyncedRevision(),
		"last_sync_date": a.client.LastSyncDate().Format(time.RFC3339),
		"local_notes":    len(a.manager.Notes()),
	}

	if a.service != nil && a.service.IsConfigured() {
		store, err := a.service.CreateStore()
		if err != nil {
			status["server_error"] = err.Error()
		} else {
			if rev, err := store.LatestRevision(); err == nil {
				status["server_rev"] = rev
			}
			if lock, err := store.CurrentLock(); err == nil && lock.Held {
				status["lock_holder"] = lock.ClientID
				status["lock_renew_count"] = lock.RenewCount
			}
			a.service.PostSyncCleanup()
		}
	}

	if jsonOutput {
		printJSON(status)
		return nil
	}

	fmt.Printf("Client:        %s\n", status["client_id"])
	fmt.Printf("Server:        %v\n", orUnset(status["server_id"]))
	fmt.Printf("Last sync:     revision %v at %v\n",
		status["last_sync_rev"], status["last_sync_date"])
	fmt.Printf("Local notes:   %d\n", status["local_notes"])
	if rev, ok := status["server_rev"]; ok {
		fmt.Printf("Server rev:    %v\n", rev)
	}
	if holder, ok := status["lock_holder"]; ok {
		printWarning("Store locked by %v (renewed %v times)",
			holder, status["lock_renew_count"])
	}
	if serr, ok := status["server_error"]; ok {
		printError("Server unreachable: %v", serr)
	}
	return nil
}

func orUnset(v interface{}) interface{} {
	if s, ok := v.(string); ok && s == "" {
		return "(not bound)"
	}
	return v
}
