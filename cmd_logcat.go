package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"droidctl/pkg/types"
)

var logcatCmd = &cobra.Command{
	Use:   "logcat <device>",
	Short: "Stream logcat from a device",
	Long: `Starts a logcat capture and streams entries to stdout until
interrupted. With --record the capture is also persisted as a session
that can later be queried and exported.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deviceID := args[0]

		format, _ := cmd.Flags().GetString("format")
		filters, _ := cmd.Flags().GetStringArray("filter")
		clearFirst, _ := cmd.Flags().GetBool("clear")
		record, _ := cmd.Flags().GetBool("record")
		sessionName, _ := cmd.Flags().GetString("session-name")

		opts := types.LogcatOptions{
			Format:          format,
			FilterSpecs:     filters,
			ClearDeviceLogs: clearFirst,
			RecordSession:   record,
			SessionName:     sessionName,
		}
		if err := app.StartLogcat(cmd.Context(), deviceID, opts); err != nil {
			return err
		}
		defer app.StopLogcat(deviceID)

		unsubscribe, err := app.OnLogEntry(deviceID, func(entry types.LogEntry) {
			fmt.Printf("%s [%s] %s\n", entry.Timestamp.Format("15:04:05.000"), entry.Level, entry.Message)
		})
		if err != nil {
			return err
		}
		defer unsubscribe()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		return nil
	},
}

var logcatDumpCmd = &cobra.Command{
	Use:   "dump <device>",
	Short: "Print the retained capture buffer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := app.DumpLogs(args[0])
		if err != nil {
			return err
		}
		for _, entry := range entries {
			fmt.Printf("%s [%s] %s\n", entry.Timestamp.Format("15:04:05.000"), entry.Level, entry.Message)
		}
		return nil
	},
}

var logcatClearCmd = &cobra.Command{
	Use:   "clear <device>",
	Short: "Clear the device-side log buffer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.ClearLogs(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("Logs cleared")
		return nil
	},
}

func init() {
	logcatCmd.Flags().String("format", "threadtime", "output format: brief, process, tag, raw, time, threadtime, long")
	logcatCmd.Flags().StringArray("filter", nil, "filter spec tag[:priority], repeatable")
	logcatCmd.Flags().Bool("clear", false, "clear device logs before capturing")
	logcatCmd.Flags().Bool("record", false, "persist the capture as a session")
	logcatCmd.Flags().String("session-name", "", "name for the recorded session")
	logcatCmd.AddCommand(logcatDumpCmd)
	logcatCmd.AddCommand(logcatClearCmd)
	rootCmd.AddCommand(logcatCmd)
}
