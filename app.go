package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"droidctl/pkg/types"
)

// ========================================
// App - service coordinator
// ========================================

// App wires the adb connections, logcat engines, session store and
// plugin runtime together. One App instance backs both the CLI
// commands and the MCP server.
type App struct {
	cfg     *Config
	version string

	// server talks to adb without a -s selector (server-level commands)
	server *Connection

	connMu sync.Mutex
	conns  map[string]*Connection

	logcatMu sync.Mutex
	logcats  map[string]*Logcat
	// session recording state per device, guarded by logcatMu
	recordings map[string]*recording

	store   *SessionStore
	plugins *PluginManager
	watcher *PluginWatcher
	monitor *DeviceMonitor
}

type recording struct {
	session     types.CaptureSession
	unsubscribe func()
}

// NewApp builds the coordinator from loaded configuration. The session
// store and plugin runtime are optional: a failure to open them is
// logged and the corresponding feature is disabled, core adb operations
// keep working.
func NewApp(cfg *Config, version string) *App {
	a := &App{
		cfg:        cfg,
		version:    version,
		server:     NewConnection(cfg.AdbPath, "", cfg.ExecTimeout()),
		conns:      make(map[string]*Connection),
		logcats:    make(map[string]*Logcat),
		recordings: make(map[string]*recording),
	}

	store, err := NewSessionStore(cfg.DataDir)
	if err != nil {
		LogWarn("app").Err(err).Msg("Session store unavailable, recording disabled")
	} else {
		a.store = store
	}

	pluginsDir := cfg.PluginsDir
	if pluginsDir == "" {
		pluginsDir = filepath.Join(cfg.DataDir, "plugins")
	}
	a.plugins = NewPluginManager(pluginsDir)
	if err := a.plugins.LoadAll(); err != nil {
		LogWarn("app").Err(err).Msg("Plugin load failed")
	}
	if watcher, err := NewPluginWatcher(a.plugins); err != nil {
		LogWarn("app").Err(err).Msg("Plugin watcher unavailable")
	} else {
		a.watcher = watcher
	}

	a.monitor = NewDeviceMonitor(a, nil)
	return a
}

// Version reports the build version string
func (a *App) Version() string {
	return a.version
}

// Connection returns the adb connection for a device, creating it on
// first use. Connections are cached so the exclusive lock is shared by
// everything addressing the same device.
func (a *App) Connection(deviceID string) *Connection {
	a.connMu.Lock()
	defer a.connMu.Unlock()

	if conn, ok := a.conns[deviceID]; ok {
		return conn
	}
	conn := NewConnection(a.cfg.AdbPath, deviceID, a.cfg.ExecTimeout())
	a.conns[deviceID] = conn
	return conn
}

// ========================================
// Logcat lifecycle
// ========================================

func (a *App) logcatFor(deviceID string) *Logcat {
	a.logcatMu.Lock()
	defer a.logcatMu.Unlock()
	return a.logcats[deviceID]
}

// StartLogcat begins streaming logcat for a device. Only one capture
// per device may be active at a time.
func (a *App) StartLogcat(ctx context.Context, deviceID string, opts types.LogcatOptions) error {
	if err := ValidateDeviceID(deviceID); err != nil {
		return err
	}

	a.logcatMu.Lock()
	lc, ok := a.logcats[deviceID]
	if ok && lc.Active() {
		a.logcatMu.Unlock()
		return fmt.Errorf("logcat already running for device %s", deviceID)
	}
	if !ok {
		lc = NewLogcat(a.Connection(deviceID), LogcatConfig{
			MaxBufferSize:  a.cfg.Logcat.BufferSize,
			StartupTimeout: a.cfg.LogcatStartupTimeout(),
			Debug:          a.cfg.Logcat.Debug,
			DebugTrace:     a.cfg.Logcat.DebugTrace,
		})
		a.logcats[deviceID] = lc
	}
	a.logcatMu.Unlock()

	if err := lc.Start(ctx, opts); err != nil {
		return err
	}

	// Fan captured entries into loaded plugins
	if a.plugins != nil && a.plugins.Count() > 0 {
		a.plugins.Attach(deviceID, lc)
	}

	if opts.RecordSession && a.store != nil {
		if err := a.startRecording(deviceID, opts.SessionName, lc); err != nil {
			LogWarn("app").Err(err).Str("device", deviceID).Msg("Session recording failed to start")
		}
	}
	return nil
}

func (a *App) startRecording(deviceID, name string, lc *Logcat) error {
	session, err := a.store.StartSession(deviceID, name)
	if err != nil {
		return err
	}
	sessionID := session.ID
	unsubscribe := lc.OnEntry(func(entry types.LogEntry) {
		a.store.AppendEntry(sessionID, entry)
	})

	a.logcatMu.Lock()
	a.recordings[deviceID] = &recording{session: session, unsubscribe: unsubscribe}
	a.logcatMu.Unlock()

	LogInfo("app").Str("device", deviceID).Str("session", sessionID).Msg("Recording session started")
	return nil
}

// StopLogcat stops the capture for one device, ending any recording
func (a *App) StopLogcat(deviceID string) error {
	a.logcatMu.Lock()
	lc := a.logcats[deviceID]
	rec := a.recordings[deviceID]
	delete(a.recordings, deviceID)
	a.logcatMu.Unlock()

	if rec != nil {
		rec.unsubscribe()
		if err := a.store.EndSession(rec.session.ID); err != nil {
			LogWarn("app").Err(err).Str("session", rec.session.ID).Msg("Failed to finalize session")
		}
	}

	if lc == nil {
		return nil
	}
	return lc.Stop()
}

// StopAllLogcat stops every active capture
func (a *App) StopAllLogcat() {
	a.logcatMu.Lock()
	ids := make([]string, 0, len(a.logcats))
	for id := range a.logcats {
		ids = append(ids, id)
	}
	a.logcatMu.Unlock()

	for _, id := range ids {
		if err := a.StopLogcat(id); err != nil {
			LogWarn("app").Err(err).Str("device", id).Msg("Failed to stop logcat")
		}
	}
}

// LogcatActive reports whether a capture is running for the device
func (a *App) LogcatActive(deviceID string) bool {
	lc := a.logcatFor(deviceID)
	return lc != nil && lc.Active()
}

// PollLogs returns entries captured since the last poll
func (a *App) PollLogs(deviceID string) ([]types.LogEntry, error) {
	lc := a.logcatFor(deviceID)
	if lc == nil {
		return nil, fmt.Errorf("no logcat capture for device %s", deviceID)
	}
	return lc.GetLogs(), nil
}

// OnLogEntry subscribes fn to the device's live capture stream. The
// returned function removes the subscription.
func (a *App) OnLogEntry(deviceID string, fn func(types.LogEntry)) (func(), error) {
	lc := a.logcatFor(deviceID)
	if lc == nil {
		return nil, fmt.Errorf("no logcat capture for device %s", deviceID)
	}
	return lc.OnEntry(fn), nil
}

// DumpLogs returns the whole retained buffer without moving the cursor
func (a *App) DumpLogs(deviceID string) ([]types.LogEntry, error) {
	lc := a.logcatFor(deviceID)
	if lc == nil {
		return nil, fmt.Errorf("no logcat capture for device %s", deviceID)
	}
	return lc.GetAllLogs(), nil
}

// ClearLogs clears the device-side logcat buffer
func (a *App) ClearLogs(ctx context.Context, deviceID string) error {
	if err := ValidateDeviceID(deviceID); err != nil {
		return err
	}
	if lc := a.logcatFor(deviceID); lc != nil {
		lc.Clear(ctx)
		return nil
	}
	_, err := a.Connection(deviceID).Exec(ctx, ExecOptions{}, "logcat", "-c")
	return err
}

// ========================================
// Session store facade
// ========================================

// ListSessions returns recorded sessions, newest first
func (a *App) ListSessions(limit int) ([]types.CaptureSession, error) {
	if a.store == nil {
		return nil, fmt.Errorf("session store unavailable")
	}
	return a.store.ListSessions(limit)
}

// QuerySession pages through a recorded session's entries
func (a *App) QuerySession(q types.SessionQuery) (types.SessionQueryResult, error) {
	if a.store == nil {
		return types.SessionQueryResult{}, fmt.Errorf("session store unavailable")
	}
	return a.store.QueryEntries(q)
}

// ExportSession writes a recorded session to a gzipped JSON file
func (a *App) ExportSession(sessionID, outPath string) (string, error) {
	if a.store == nil {
		return "", fmt.Errorf("session store unavailable")
	}
	return ExportSession(a.store, sessionID, outPath)
}

// ImportSession loads an exported archive into the store under a new ID
func (a *App) ImportSession(inputPath string) (string, error) {
	if a.store == nil {
		return "", fmt.Errorf("session store unavailable")
	}
	return ImportSession(a.store, inputPath)
}

// DeleteSession removes a recorded session and its entries
func (a *App) DeleteSession(sessionID string) error {
	if a.store == nil {
		return fmt.Errorf("session store unavailable")
	}
	return a.store.DeleteSession(sessionID)
}

// ========================================
// Shutdown
// ========================================

// Shutdown stops captures, the monitor and the plugin runtime, then
// closes the store
func (a *App) Shutdown() {
	if a.monitor != nil {
		a.monitor.Stop()
	}
	a.StopAllLogcat()
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.plugins != nil {
		a.plugins.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			LogWarn("app").Err(err).Msg("Session store close failed")
		}
	}
	CloseLogger()
}
