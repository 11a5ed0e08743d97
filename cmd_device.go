package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List and manage connected devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		watch, _ := cmd.Flags().GetBool("watch")

		if err := printDevices(cmd, asJSON); err != nil {
			return err
		}
		if !watch {
			return nil
		}

		monitor := NewDeviceMonitor(app, func() {
			fmt.Println()
			if err := printDevices(cmd, asJSON); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		})
		monitor.Start()
		defer monitor.Stop()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		return nil
	},
}

func printDevices(cmd *cobra.Command, asJSON bool) error {
	devices, err := app.GetDevices(cmd.Context())
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("No devices connected")
		return nil
	}
	if asJSON {
		out, err := json.MarshalIndent(devices, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tBRAND\tSTATE\tTYPE")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.Model, d.Brand, d.State, d.Type)
	}
	return w.Flush()
}

var deviceInfoCmd = &cobra.Command{
	Use:   "info <device>",
	Short: "Show detailed device properties",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := app.GetDeviceInfo(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var deviceConnectCmd = &cobra.Command{
	Use:   "connect <ip:port>",
	Short: "Connect to a device over TCP/IP",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := app.AdbConnect(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var deviceDisconnectCmd = &cobra.Command{
	Use:   "disconnect <ip:port>",
	Short: "Disconnect a wireless device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := app.AdbDisconnect(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var devicePairCmd = &cobra.Command{
	Use:   "pair <ip:port> <code>",
	Short: "Pair with a device using a wireless debugging code",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := app.AdbPair(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var deviceWirelessCmd = &cobra.Command{
	Use:   "wireless <device>",
	Short: "Switch a USB device to TCP/IP mode and connect",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := app.SwitchToWireless(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var deviceIPCmd = &cobra.Command{
	Use:   "ip <device>",
	Short: "Print the device's WLAN IP address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ip, err := app.GetDeviceIP(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(ip)
		return nil
	},
}

var deviceRestartServerCmd = &cobra.Command{
	Use:   "restart-server",
	Short: "Restart the adb server",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := app.RestartAdbServer(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

func init() {
	devicesCmd.Flags().Bool("json", false, "print devices as JSON")
	devicesCmd.Flags().Bool("watch", false, "keep watching for device changes")
	devicesCmd.AddCommand(deviceInfoCmd)
	devicesCmd.AddCommand(deviceConnectCmd)
	devicesCmd.AddCommand(deviceDisconnectCmd)
	devicesCmd.AddCommand(devicePairCmd)
	devicesCmd.AddCommand(deviceWirelessCmd)
	devicesCmd.AddCommand(deviceIPCmd)
	devicesCmd.AddCommand(deviceRestartServerCmd)
	rootCmd.AddCommand(devicesCmd)
}
