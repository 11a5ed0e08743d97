package main

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"droidctl/pkg/types"
)

// packageLinePattern matches `pm list packages -f -U` output:
// "package:/data/app/.../base.apk=com.example.app uid:10123"
var packageLinePattern = regexp.MustCompile(`^package:(?:(.*)=)?([^\s]+?)(?:\s+uid:(\d+))?$`)

var (
	versionNamePattern = regexp.MustCompile(`versionName=(\S+)`)
	versionCodePattern = regexp.MustCompile(`versionCode=(\d+)`)
)

// ListPackages returns installed packages of the requested type
// ("user", "system" or "all")
func (a *App) ListPackages(ctx context.Context, deviceID, packageType string) ([]types.AppPackage, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}
	if packageType == "" {
		packageType = "user"
	}

	conn := a.Connection(deviceID)

	disabled := make(map[string]bool)
	if out, err := conn.Shell(ctx, ExecOptions{}, "pm", "list", "packages", "-d"); err == nil {
		for _, line := range strings.Split(out, "\n") {
			if name, ok := strings.CutPrefix(strings.TrimSpace(line), "package:"); ok {
				disabled[name] = true
			}
		}
	}

	var packages []types.AppPackage
	fetch := func(flag, typeName string) error {
		out, err := conn.Shell(ctx, ExecOptions{}, "pm", "list", "packages", "-f", "-U", flag)
		if err != nil {
			return fmt.Errorf("failed to list %s packages: %w", typeName, err)
		}
		for _, line := range strings.Split(out, "\n") {
			m := packageLinePattern.FindStringSubmatch(strings.TrimSpace(line))
			if m == nil {
				continue
			}
			pkg := types.AppPackage{
				APKPath: m[1],
				Name:    m[2],
				UID:     m[3],
				Type:    typeName,
				State:   "enabled",
			}
			if disabled[pkg.Name] {
				pkg.State = "disabled"
			}
			packages = append(packages, pkg)
		}
		return nil
	}

	switch packageType {
	case "all":
		if err := fetch("-s", "system"); err != nil {
			return nil, err
		}
		if err := fetch("-3", "user"); err != nil {
			return nil, err
		}
	case "system":
		if err := fetch("-s", "system"); err != nil {
			return nil, err
		}
	default:
		if err := fetch("-3", "user"); err != nil {
			return nil, err
		}
	}

	return packages, nil
}

// InstallAPK installs an APK with replace and grant-all-permissions flags.
// Installation runs exclusively: package manager transactions do not take
// kindly to concurrent device commands on some OEM builds.
func (a *App) InstallAPK(ctx context.Context, deviceID, apkPath string) (string, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return "", err
	}
	timer := StartOperation("apps", "install")

	out, err := a.Connection(deviceID).Exec(ctx,
		ExecOptions{Timeout: 2 * time.Minute, Exclusive: true},
		"install", "-r", "-g", apkPath)
	if err != nil {
		timer.EndWithError(err)
		return out, fmt.Errorf("install failed: %w", err)
	}
	if !strings.Contains(out, "Success") {
		err := fmt.Errorf("install failed: %s", out)
		timer.EndWithError(err)
		return out, err
	}
	timer.End()
	return out, nil
}

// UninstallApp removes a package
func (a *App) UninstallApp(ctx context.Context, deviceID, packageName string) (string, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return "", err
	}
	out, err := a.Connection(deviceID).Exec(ctx, ExecOptions{Timeout: time.Minute}, "uninstall", packageName)
	if err != nil {
		return out, fmt.Errorf("uninstall failed: %w", err)
	}
	return out, nil
}

// ClearAppData wipes a package's data
func (a *App) ClearAppData(ctx context.Context, deviceID, packageName string) (string, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return "", err
	}
	out, err := a.Connection(deviceID).Shell(ctx, ExecOptions{}, "pm", "clear", packageName)
	if err != nil {
		return out, fmt.Errorf("clear data failed: %w", err)
	}
	return out, nil
}

// StartApp launches a package's default launcher activity via monkey
func (a *App) StartApp(ctx context.Context, deviceID, packageName string) (string, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return "", err
	}
	out, err := a.Connection(deviceID).Shell(ctx, ExecOptions{},
		"monkey", "-p", packageName, "-c", "android.intent.category.LAUNCHER", "1")
	if err != nil {
		return out, fmt.Errorf("failed to start app %s: %w", packageName, err)
	}
	return out, nil
}

// ForceStopApp force-stops a package
func (a *App) ForceStopApp(ctx context.Context, deviceID, packageName string) (string, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return "", err
	}
	out, err := a.Connection(deviceID).Shell(ctx, ExecOptions{}, "am", "force-stop", packageName)
	if err != nil {
		return out, fmt.Errorf("failed to stop app %s: %w", packageName, err)
	}
	return out, nil
}

// IsAppRunning reports whether any process of the package is alive
func (a *App) IsAppRunning(ctx context.Context, deviceID, packageName string) (bool, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return false, err
	}
	out, err := a.Connection(deviceID).Shell(ctx, ExecOptions{Timeout: 5 * time.Second}, "pidof", packageName)
	if err != nil {
		// pidof exits non-zero when no process matches
		return false, nil
	}
	return strings.TrimSpace(out) != "", nil
}

// GetAppVersion reads versionName/versionCode from dumpsys package
func (a *App) GetAppVersion(ctx context.Context, deviceID, packageName string) (types.AppPackage, error) {
	pkg := types.AppPackage{Name: packageName}
	if err := ValidateDeviceID(deviceID); err != nil {
		return pkg, err
	}

	out, err := a.Connection(deviceID).Shell(ctx, ExecOptions{},
		"dumpsys", "package", packageName)
	if err != nil {
		return pkg, fmt.Errorf("dumpsys package failed: %w", err)
	}

	if m := versionNamePattern.FindStringSubmatch(out); len(m) > 1 {
		pkg.VersionName = m[1]
	}
	if m := versionCodePattern.FindStringSubmatch(out); len(m) > 1 {
		pkg.VersionCode = m[1]
	}
	if pkg.VersionName == "" && pkg.VersionCode == "" {
		return pkg, fmt.Errorf("package %s not found on device", packageName)
	}
	return pkg, nil
}
