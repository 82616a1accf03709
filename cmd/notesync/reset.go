package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var resetStateCmd = &cobra.Command{
	Use:   "reset-state",
	Short: "Discard local sync bookkeeping",
	Long: `Reset-state forgets everything this client knows about past syncs:
revision numbers, pending deletions, and the server binding. Notes are
untouched. The next sync treats every local note as new and downloads
the full server set.`,
	Args: cobra.NoArgs,
	RunE: runResetState,
}

var resetForce bool

func init() {
	rootCmd.AddCommand(resetStateCmd)

	resetStateCmd.Flags().BoolVarP(&resetForce, "force", "f", false,
		"Skip the confirmation prompt")
}

func runResetState(cmd *cobra.Command, args []string) error {
	if !resetForce {
		fmt.Print("Discard all local sync history? [y/N] ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			printWarning("Aborted")
			return nil
		}
	}

	client, err := newClientStore()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Reset(); err != nil {
		return fmt.Errorf("reset client record: %w", err)
	}

	printSuccess("Local sync history cleared")
	return nil
}
