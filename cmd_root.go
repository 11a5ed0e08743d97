package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "droidctl",
	Short: "Android device automation over adb",
	Long: `droidctl drives Android devices through adb: device management,
app lifecycle, streaming logcat capture with recorded sessions, and an
MCP server that exposes the same operations to AI clients.`,
	SilenceUsage: true,
}

// app is built once before any subcommand runs
var app *App

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = version

	rootCmd.PersistentFlags().String("adb", "", "path to the adb binary (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		if adbPath, _ := cmd.Flags().GetString("adb"); adbPath != "" {
			cfg.AdbPath = adbPath
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.Logging.Level = level
		}
		if err := InitLogger(cfg.LoggerConfig()); err != nil {
			return err
		}
		app = NewApp(cfg, version)
		return nil
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if app != nil {
			app.Shutdown()
		}
	}
}
