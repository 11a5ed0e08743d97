package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"droidctl/pkg/types"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage recorded capture sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		sessions, err := app.ListSessions(limit)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No recorded sessions")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tDEVICE\tSTARTED\tSTATUS\tENTRIES")
		for _, s := range sessions {
			started := time.UnixMilli(s.StartTime).Format("2006-01-02 15:04:05")
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n", s.ID, s.Name, s.DeviceID, started, s.Status, s.EntryCount)
		}
		return w.Flush()
	},
}

var sessionQueryCmd = &cobra.Command{
	Use:   "query <session>",
	Short: "Query entries from a recorded session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("level")
		contains, _ := cmd.Flags().GetString("contains")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		result, err := app.QuerySession(types.SessionQuery{
			SessionID: args[0],
			Level:     level,
			Contains:  contains,
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			return err
		}
		for _, entry := range result.Entries {
			fmt.Printf("%s [%s] %s\n", entry.Timestamp.Format("15:04:05.000"), entry.Level, entry.Message)
		}
		fmt.Fprintf(os.Stderr, "%d of %d matching entries\n", len(result.Entries), result.Total)
		return nil
	},
}

var sessionExportCmd = &cobra.Command{
	Use:   "export <session> [output]",
	Short: "Export a session to a gzipped JSONL file",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		outPath := ""
		if len(args) > 1 {
			outPath = args[1]
		}
		path, err := app.ExportSession(args[0], outPath)
		if err != nil {
			return err
		}
		fmt.Printf("Exported to %s\n", path)
		return nil
	},
}

var sessionImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a previously exported session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := app.ImportSession(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Imported as session %s\n", id)
		return nil
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <session>",
	Short: "Delete a recorded session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.DeleteSession(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted session %s\n", args[0])
		return nil
	},
}

func init() {
	sessionListCmd.Flags().Int("limit", 50, "maximum sessions to list")
	sessionQueryCmd.Flags().String("level", "", "filter by level (V, D, I, W, E, F)")
	sessionQueryCmd.Flags().String("contains", "", "filter by message substring")
	sessionQueryCmd.Flags().Int("limit", 1000, "maximum entries to return")
	sessionQueryCmd.Flags().Int("offset", 0, "entries to skip")
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionQueryCmd)
	sessionCmd.AddCommand(sessionExportCmd)
	sessionCmd.AddCommand(sessionImportCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
	rootCmd.AddCommand(sessionCmd)
}
