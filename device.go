package main

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"droidctl/pkg/types"
)

// deviceIDPattern validates device identifiers:
// USB serials ("1234ABCD", "emulator-5554"), wireless addresses
// ("192.168.1.100:5555") and mDNS names ("adb-XXX._adb-tls-connect._tcp.")
var deviceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._:\-]+$`)

// ValidateDeviceID rejects identifiers that could smuggle shell metacharacters
func ValidateDeviceID(deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("device ID cannot be empty")
	}
	if len(deviceID) > 256 {
		return fmt.Errorf("device ID too long (max 256 characters)")
	}
	if !deviceIDPattern.MatchString(deviceID) {
		return fmt.Errorf("invalid device ID format: contains illegal characters")
	}
	return nil
}

// GetDevices lists connected devices via `adb devices -l`
func (a *App) GetDevices(ctx context.Context) ([]types.Device, error) {
	out, err := a.server.Exec(ctx, ExecOptions{}, "devices", "-l")
	if err != nil {
		return nil, fmt.Errorf("failed to run adb devices: %w", err)
	}

	devices := parseDeviceList(out)

	// Resolve brand/model for authorized devices in parallel
	var wg sync.WaitGroup
	for i := range devices {
		if devices[i].State != "device" {
			continue
		}
		wg.Add(1)
		go func(d *types.Device) {
			defer wg.Done()
			propCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			conn := a.Connection(d.ID)
			out, err := conn.Shell(propCtx, ExecOptions{Timeout: 5 * time.Second},
				"getprop ro.product.manufacturer; getprop ro.product.model; getprop ro.serialno")
			if err != nil {
				LogWarn("device").Str("device", d.ID).Err(err).Msg("Failed to fetch device props")
				return
			}
			lines := strings.Split(out, "\n")
			if len(lines) >= 1 && strings.TrimSpace(lines[0]) != "" {
				d.Brand = strings.TrimSpace(lines[0])
			}
			if len(lines) >= 2 && strings.TrimSpace(lines[1]) != "" {
				d.Model = strings.ReplaceAll(strings.TrimSpace(lines[1]), "_", " ")
			}
			if len(lines) >= 3 && strings.TrimSpace(lines[2]) != "" {
				d.Serial = strings.TrimSpace(lines[2])
			}
		}(&devices[i])
	}
	wg.Wait()

	sort.SliceStable(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, nil
}

// parseDeviceList turns `adb devices -l` output into Device records
func parseDeviceList(out string) []types.Device {
	var devices []types.Device
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices attached") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		d := types.Device{
			ID:       fields[0],
			Serial:   fields[0],
			State:    fields[1],
			IDs:      []string{fields[0]},
			LastSeen: time.Now().Unix(),
		}
		for _, p := range fields[2:] {
			kv := strings.SplitN(p, ":", 2)
			if len(kv) != 2 {
				continue
			}
			switch kv[0] {
			case "model":
				d.Model = strings.ReplaceAll(kv[1], "_", " ")
			case "usb":
				d.Type = "wired"
			}
		}
		wireless := strings.Contains(d.ID, ":") || strings.Contains(d.ID, "._tcp") || strings.Contains(d.ID, "._adb-tls-connect")
		if wireless && d.Type == "" {
			d.Type = "wireless"
			d.WifiAddr = d.ID
		} else if d.Type == "" {
			d.Type = "wired"
		}
		devices = append(devices, d)
	}
	return devices
}

// GetDeviceInfo collects detailed properties for one device
func (a *App) GetDeviceInfo(ctx context.Context, deviceID string) (types.DeviceInfo, error) {
	var info types.DeviceInfo
	info.Props = make(map[string]string)

	if err := ValidateDeviceID(deviceID); err != nil {
		return info, err
	}

	conn := a.Connection(deviceID)
	out, err := conn.Shell(ctx, ExecOptions{Timeout: 5 * time.Second}, "getprop")
	if err != nil {
		return info, fmt.Errorf("failed to read device properties: %w", err)
	}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		parts := strings.SplitN(line, "]: [", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimPrefix(parts[0], "[")
		val := strings.TrimSuffix(parts[1], "]")
		info.Props[key] = val

		switch key {
		case "ro.product.model":
			info.Model = val
		case "ro.product.brand":
			info.Brand = val
		case "ro.product.manufacturer":
			info.Manufacturer = val
		case "ro.build.version.release":
			info.AndroidVer = val
		case "ro.build.version.sdk":
			info.SDK = val
		case "ro.product.cpu.abi":
			info.ABI = val
		case "ro.serialno":
			info.Serial = val
		}
	}

	quick := func(args ...string) string {
		qCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		out, _ := conn.Shell(qCtx, ExecOptions{Timeout: 2 * time.Second}, args...)
		return out
	}
	info.Resolution = strings.TrimPrefix(quick("wm", "size"), "Physical size: ")
	info.Density = strings.TrimPrefix(quick("wm", "density"), "Physical density: ")

	return info, nil
}

// GetApiLevel returns the device SDK version as an integer
func (a *App) GetApiLevel(ctx context.Context, deviceID string) (int, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return 0, err
	}
	out, err := a.Connection(deviceID).Shell(ctx, ExecOptions{Timeout: 5 * time.Second}, "getprop", "ro.build.version.sdk")
	if err != nil {
		return 0, fmt.Errorf("failed to read API level: %w", err)
	}
	level, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("unexpected API level %q: %w", out, err)
	}
	return level, nil
}

// AdbConnect connects to a wireless device by address
func (a *App) AdbConnect(ctx context.Context, address string) (string, error) {
	timer := StartOperation("device", "adb_connect")

	if address == "" {
		err := fmt.Errorf("address is required")
		timer.EndWithError(err)
		return "", err
	}

	// A stale half-open connection makes `connect` report success while the
	// device stays offline; drop it first.
	_, _ = a.server.Exec(ctx, ExecOptions{Timeout: 10 * time.Second}, "disconnect", address)

	out, err := a.server.Exec(ctx, ExecOptions{}, "connect", address)
	if err != nil {
		timer.EndWithError(err)
		return out, fmt.Errorf("connection failed: %w", err)
	}
	if strings.Contains(out, "failed to connect") || strings.Contains(out, "unable to connect") {
		err := fmt.Errorf("connection failed: %s", out)
		timer.EndWithError(err)
		return out, err
	}

	timer.End()
	return out, nil
}

// AdbDisconnect disconnects one or more wireless devices (comma-separated)
func (a *App) AdbDisconnect(ctx context.Context, address string) (string, error) {
	if address == "" {
		return "", fmt.Errorf("address is required")
	}

	var lastOut string
	var lastErr error
	for _, addr := range strings.Split(address, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		out, err := a.server.Exec(ctx, ExecOptions{Timeout: 10 * time.Second}, "disconnect", addr)
		lastOut = out
		if err != nil && !strings.Contains(out, "no such device") {
			lastErr = err
		}
	}

	if lastErr != nil {
		return lastOut, fmt.Errorf("disconnection failed: %w", lastErr)
	}
	return "disconnected", nil
}

// AdbPair pairs with a device over wireless debugging
func (a *App) AdbPair(ctx context.Context, address, code string) (string, error) {
	if address == "" || code == "" {
		return "", fmt.Errorf("address and pairing code are required")
	}
	out, err := a.server.Exec(ctx, ExecOptions{}, "pair", address, code)
	if err != nil {
		return out, fmt.Errorf("pairing failed: %w", err)
	}
	return out, nil
}

// GetDeviceIP returns the device's wlan0 IPv4 address
func (a *App) GetDeviceIP(ctx context.Context, deviceID string) (string, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return "", err
	}

	conn := a.Connection(deviceID)
	out, err := conn.Shell(ctx, ExecOptions{Timeout: 5 * time.Second},
		"ip -f inet addr show wlan0")
	if err == nil {
		if m := regexp.MustCompile(`inet (\d+\.\d+\.\d+\.\d+)`).FindStringSubmatch(out); len(m) > 1 {
			return m[1], nil
		}
	}

	out, _ = conn.Shell(ctx, ExecOptions{Timeout: 5 * time.Second}, "getprop", "dhcp.wlan0.ipaddress")
	if ip := strings.TrimSpace(out); ip != "" {
		return ip, nil
	}

	return "", fmt.Errorf("could not find device IP (ensure Wi-Fi is on)")
}

// SwitchToWireless enables TCP/IP mode on a USB device and connects to it
func (a *App) SwitchToWireless(ctx context.Context, deviceID string) (string, error) {
	ip, err := a.GetDeviceIP(ctx, deviceID)
	if err != nil {
		return "", err
	}

	conn := a.Connection(deviceID)
	if out, err := conn.Exec(ctx, ExecOptions{Timeout: 10 * time.Second}, "tcpip", "5555"); err != nil {
		return out, fmt.Errorf("failed to enable tcpip mode: %w", err)
	}

	// adbd restarts when switching transport; give it a moment
	time.Sleep(1 * time.Second)

	return a.AdbConnect(ctx, ip+":5555")
}

// RestartAdbServer kills and restarts the ADB server. Every long-running
// adb-dependent subprocess is torn down first so it is not orphaned.
func (a *App) RestartAdbServer(ctx context.Context) (string, error) {
	LogInfo("device").Msg("Restarting ADB server, cleaning up dependent processes")

	a.StopAllLogcat()
	if a.monitor != nil {
		a.monitor.Stop()
	}

	// The exclusive flag keeps ordinary commands off the channel while the
	// server bounces.
	_, _ = a.server.Exec(ctx, ExecOptions{Exclusive: true, Timeout: 10 * time.Second}, "kill-server")
	time.Sleep(500 * time.Millisecond)

	out, err := a.server.Exec(ctx, ExecOptions{Exclusive: true}, "start-server")
	if err != nil {
		return out, fmt.Errorf("failed to start adb server: %w", err)
	}

	if a.monitor != nil {
		a.monitor.Start()
	}
	return "ADB server restarted successfully", nil
}

// RunAdbCommand executes an arbitrary ADB command against a device.
// `shell …` keeps the remainder as a single shell string, everything else is
// tokenized.
func (a *App) RunAdbCommand(ctx context.Context, deviceID, fullCmd string, timeout time.Duration) (string, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return "", fmt.Errorf("invalid device ID: %w", err)
	}

	fullCmd = strings.TrimSpace(fullCmd)
	if fullCmd == "" {
		return "", nil
	}

	var args []string
	if rest, ok := strings.CutPrefix(fullCmd, "shell "); ok {
		args = []string{"shell", rest}
	} else {
		args = strings.Fields(fullCmd)
	}

	out, err := a.Connection(deviceID).Exec(ctx, ExecOptions{Timeout: timeout}, args...)
	if err != nil {
		return out, fmt.Errorf("command failed: %w", err)
	}
	return out, nil
}
