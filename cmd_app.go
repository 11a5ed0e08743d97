package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var appCmd = &cobra.Command{
	Use:   "app",
	Short: "Manage applications on a device",
}

var appListCmd = &cobra.Command{
	Use:   "list <device>",
	Short: "List installed packages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		packageType, _ := cmd.Flags().GetString("type")
		packages, err := app.ListPackages(cmd.Context(), args[0], packageType)
		if err != nil {
			return err
		}
		if len(packages) == 0 {
			fmt.Println("No packages found")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PACKAGE\tTYPE\tSTATE")
		for _, p := range packages {
			fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, p.Type, p.State)
		}
		return w.Flush()
	},
}

var appInstallCmd = &cobra.Command{
	Use:   "install <device> <apk>",
	Short: "Install an APK",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := app.InstallAPK(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var appUninstallCmd = &cobra.Command{
	Use:   "uninstall <device> <package>",
	Short: "Uninstall an application",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := app.UninstallApp(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var appClearCmd = &cobra.Command{
	Use:   "clear <device> <package>",
	Short: "Clear an application's data",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := app.ClearAppData(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var appStartCmd = &cobra.Command{
	Use:   "start <device> <package>",
	Short: "Launch an application",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := app.StartApp(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var appStopCmd = &cobra.Command{
	Use:   "stop <device> <package>",
	Short: "Force-stop an application",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := app.ForceStopApp(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var appRunningCmd = &cobra.Command{
	Use:   "running <device> <package>",
	Short: "Check whether an application is running",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		running, err := app.IsAppRunning(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if running {
			fmt.Printf("%s is running\n", args[1])
		} else {
			fmt.Printf("%s is not running\n", args[1])
		}
		return nil
	},
}

var appVersionCmd = &cobra.Command{
	Use:   "version <device> <package>",
	Short: "Show an application's version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pkg, err := app.GetAppVersion(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("%s versionName=%s versionCode=%s\n", pkg.Name, pkg.VersionName, pkg.VersionCode)
		return nil
	},
}

func init() {
	appListCmd.Flags().String("type", "user", "package type: user, system, all")
	appCmd.AddCommand(appListCmd)
	appCmd.AddCommand(appInstallCmd)
	appCmd.AddCommand(appUninstallCmd)
	appCmd.AddCommand(appClearCmd)
	appCmd.AddCommand(appStartCmd)
	appCmd.AddCommand(appStopCmd)
	appCmd.AddCommand(appRunningCmd)
	appCmd.AddCommand(appVersionCmd)
	rootCmd.AddCommand(appCmd)
}
