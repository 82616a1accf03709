package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "Inspect and create local notes",
}

var notesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local notes",
	Args:  cobra.NoArgs,
	RunE:  runNotesList,
}

var notesNewCmd = &cobra.Command{
	Use:   "new <title> [body...]",
	Short: "Create a local note",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runNotesNew,
}

func init() {
	rootCmd.AddCommand(notesCmd)
	notesCmd.AddCommand(notesListCmd)
	notesCmd.AddCommand(notesNewCmd)
}

func runNotesList(cmd *cobra.Command, args []string) error {
	a, err := buildApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	all := a.manager.Notes()
	sort.Slice(all, func(i, j int) bool { return all[i].Title < all[j].Title })

	if jsonOutput {
		out := make([]map[string]interface{}, 0, len(all))
		for _, n := range all {
			out = append(out, map[string]interface{}{
				"id":       n.ID,
				"title":    n.Title,
				"changed":  n.MetadataChangeTime.Format(time.RFC3339),
				"revision": a.client.Revision(n.ID),
			})
		}
		printJSON(out)
		return nil
	}

	for _, n := range all {
		rev := "unsynced"
		if r := a.client.Revision(n.ID); r != -1 {
			rev = fmt.Sprintf("rev %d", r)
		}
		fmt.Printf("%-40s %s (%s)\n", n.Title,
			n.MetadataChangeTime.Format("2006-01-02 15:04"), rev)
	}
	return nil
}

func runNotesNew(cmd *cobra.Command, args []string) error {
	a, err := buildApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	title := args[0]
	body := strings.Join(args[1:], " ")

	note, err := a.manager.Create(title, body)
	if err != nil {
		return fmt.Errorf("create note: %w", err)
	}

	printSuccess("Created %q (%s)", note.Title, note.ID)
	return nil
}
