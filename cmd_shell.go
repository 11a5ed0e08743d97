package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var shellCmd = &cobra.Command{
	Use:   "shell <device> <command...>",
	Short: "Run a shell command on a device",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		timeoutSec, _ := cmd.Flags().GetFloat64("timeout")
		timeout := time.Duration(timeoutSec * float64(time.Second))

		fullCmd := "shell " + strings.Join(args[1:], " ")
		out, err := app.RunAdbCommand(cmd.Context(), args[0], fullCmd, timeout)
		if err != nil {
			if out != "" {
				fmt.Println(out)
			}
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var execCmd = &cobra.Command{
	Use:   "exec <device> <adb-args...>",
	Short: "Run a raw adb command against a device",
	Long: `Runs an arbitrary adb command with the device serial injected,
e.g. "droidctl exec emulator-5554 reboot" runs "adb -s emulator-5554 reboot".`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		timeoutSec, _ := cmd.Flags().GetFloat64("timeout")
		timeout := time.Duration(timeoutSec * float64(time.Second))

		out, err := app.RunAdbCommand(cmd.Context(), args[0], strings.Join(args[1:], " "), timeout)
		if err != nil {
			if out != "" {
				fmt.Println(out)
			}
			return err
		}
		fmt.Println(out)
		return nil
	},
}

func init() {
	shellCmd.Flags().Float64("timeout", 30, "command timeout in seconds")
	execCmd.Flags().Float64("timeout", 30, "command timeout in seconds")
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(execCmd)
}
