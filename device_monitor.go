package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DeviceMonitor follows `adb track-devices` and reports connection changes.
// The subprocess is restarted whenever the adb server drops it.
type DeviceMonitor struct {
	app *App

	mu     sync.Mutex
	cancel context.CancelFunc

	// onChange is invoked (debounced) after the device list changed
	onChange func()

	// reconnectLimiter throttles automatic reconnect attempts for wireless
	// devices that went offline
	reconnectLimiter *rate.Limiter
}

// NewDeviceMonitor creates a monitor delivering debounced change callbacks
func NewDeviceMonitor(app *App, onChange func()) *DeviceMonitor {
	return &DeviceMonitor{
		app:              app,
		onChange:         onChange,
		reconnectLimiter: rate.NewLimiter(rate.Every(30*time.Second), 3),
	}
}

// Start launches the monitoring loop; a running monitor is restarted
func (m *DeviceMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.run(ctx)
}

// Stop terminates the monitoring loop
func (m *DeviceMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// run restarts `adb track-devices` until the context is cancelled
func (m *DeviceMonitor) run(ctx context.Context) {
	var debounceMu sync.Mutex
	var debounceTimer *time.Timer

	notify := func() {
		debounceMu.Lock()
		defer debounceMu.Unlock()
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		debounceTimer = time.AfterFunc(300*time.Millisecond, func() {
			if m.onChange != nil {
				m.onChange()
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cmd := m.app.server.Command(ctx, "track-devices")
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			LogWarn("monitor").Err(err).Msg("Device monitor: failed to create pipe")
			time.Sleep(2 * time.Second)
			continue
		}

		if err := cmd.Start(); err != nil {
			LogWarn("monitor").Err(err).Msg("Device monitor: failed to start")
			time.Sleep(2 * time.Second)
			continue
		}

		LogInfo("monitor").Msg("Device monitor started")

		// track-devices frames: 4 hex chars (payload length) + device list
		lenBuf := make([]byte, 4)
		for {
			select {
			case <-ctx.Done():
				_ = cmd.Process.Kill()
				_ = cmd.Wait()
				return
			default:
			}

			if _, err := io.ReadFull(stdout, lenBuf); err != nil {
				break
			}

			var length int
			fmt.Sscanf(string(lenBuf), "%04x", &length)

			payload := ""
			if length > 0 {
				data := make([]byte, length)
				if _, err := io.ReadFull(stdout, data); err != nil {
					break
				}
				payload = string(data)
			}

			m.handleSnapshot(payload)
			notify()
		}

		_ = cmd.Wait()
		LogWarn("monitor").Msg("Device monitor disconnected, restarting")
		time.Sleep(1 * time.Second)
	}
}

// handleSnapshot inspects a track-devices payload and nudges offline
// wireless devices back online, bounded by the reconnect limiter
func (m *DeviceMonitor) handleSnapshot(payload string) {
	for _, line := range strings.Split(payload, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 2 {
			continue
		}
		id, state := fields[0], fields[1]
		if state != "offline" {
			continue
		}
		if !strings.Contains(id, ":") && !strings.Contains(id, "._tcp") {
			continue
		}
		if !m.reconnectLimiter.Allow() {
			continue
		}
		go func(address string) {
			LogInfo("monitor").Str("address", address).Msg("Auto-reconnecting wireless device")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, _ = m.app.server.Exec(ctx, ExecOptions{Timeout: 5 * time.Second}, "connect", address)
		}(id)
	}
}
