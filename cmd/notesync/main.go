// Command notesync keeps a local note collection in step with a
// shared sync directory.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/clearnote/notesync/internal/config"
	"github.com/clearnote/notesync/internal/events"
)

var (
	cfgFile    string
	verbose    bool
	jsonOutput bool

	cfg    *config.Config
	logger *events.Logger
)

var rootCmd = &cobra.Command{
	Use:   "notesync",
	Short: "Synchronize notes with a shared folder",
	Long: `notesync keeps a directory of notes in step with a shared sync
directory, typically on a mounted network filesystem. Concurrent
clients are serialized through a lock file on the store; conflicting
edits are surfaced and resolved per the configured policy.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initApp,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"Config file path (default: probe standard locations)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output results as JSON")
}

func initApp(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.NewLoader(cfgFile).Load()
	if err != nil {
		return err
	}

	if verbose {
		cfg.Log.Level = "debug"
	}

	logger, err = events.NewLogger(&events.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	return cfg.EnsureDirectories()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

func printSuccess(format string, a ...interface{}) {
	color.New(color.FgGreen).Fprintf(os.Stdout, format+"\n", a...)
}

func printWarning(format string, a ...interface{}) {
	color.New(color.FgYellow).Fprintf(os.Stderr, format+"\n", a...)
}

func printError(format string, a ...interface{}) {
	color.New(color.FgRed).Fprintf(os.Stderr, format+"\n", a...)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		printError("encode output: %v", err)
	}
}
