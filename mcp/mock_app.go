package mcp

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Common test errors
var (
	ErrDeviceNotFound  = errors.New("device not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrCaptureActive   = errors.New("logcat already running")
)

// MockCall records a method call for verification
type MockCall struct {
	Method string
	Args   []interface{}
}

// MockDroidApp is a mock implementation of DroidApp for testing
type MockDroidApp struct {
	mu    sync.Mutex
	Calls []MockCall

	// Device Management
	GetDevicesResult       []Device
	GetDevicesError        error
	GetDeviceInfoResult    DeviceInfo
	GetDeviceInfoError     error
	AdbConnectResult       string
	AdbConnectError        error
	AdbDisconnectResult    string
	AdbDisconnectError     error
	AdbPairResult          string
	AdbPairError           error
	SwitchToWirelessResult string
	SwitchToWirelessError  error
	GetDeviceIPResult      string
	GetDeviceIPError       error
	RunAdbCommandResult    string
	RunAdbCommandError     error

	// App Management
	ListPackagesResult  []AppPackage
	ListPackagesError   error
	InstallAPKResult    string
	InstallAPKError     error
	UninstallAppResult  string
	UninstallAppError   error
	ClearAppDataResult  string
	ClearAppDataError   error
	StartAppResult      string
	StartAppError       error
	ForceStopAppResult  string
	ForceStopAppError   error
	IsAppRunningResult  bool
	IsAppRunningError   error
	GetAppVersionResult AppPackage
	GetAppVersionError  error

	// Logcat
	StartLogcatError   error
	StopLogcatError    error
	LogcatActiveResult bool
	PollLogsResult     []LogEntry
	PollLogsError      error
	DumpLogsResult     []LogEntry
	DumpLogsError      error
	ClearLogsError     error

	// Sessions
	ListSessionsResult  []CaptureSession
	ListSessionsError   error
	QuerySessionResult  SessionQueryResult
	QuerySessionError   error
	ExportSessionResult string
	ExportSessionError  error
	ImportSessionResult string
	ImportSessionError  error
	DeleteSessionError  error

	// Utility
	AppVersion string
}

// NewMockDroidApp creates a mock with sensible defaults
func NewMockDroidApp() *MockDroidApp {
	return &MockDroidApp{
		Calls:              make([]MockCall, 0),
		AppVersion:         "1.0.0-test",
		GetDevicesResult:   []Device{},
		ListPackagesResult: []AppPackage{},
		ListSessionsResult: []CaptureSession{},
	}
}

// SampleDevice builds a plausible device entry for tests
func SampleDevice(id string) Device {
	return Device{
		ID:     id,
		Serial: id,
		State:  "device",
		Model:  "Pixel 6",
		Brand:  "google",
		Type:   "wired",
		IDs:    []string{id},
	}
}

// SampleDeviceInfo builds plausible device details for tests
func SampleDeviceInfo() DeviceInfo {
	return DeviceInfo{
		Model:        "Pixel 6",
		Brand:        "google",
		Manufacturer: "Google",
		AndroidVer:   "14",
		SDK:          "34",
		ABI:          "arm64-v8a",
		Serial:       "1A061FDEE0001",
		Resolution:   "1080x2400",
		Density:      "420",
	}
}

// SampleLogEntry builds one log entry for tests
func SampleLogEntry(level, message string) LogEntry {
	return LogEntry{
		Timestamp: time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
		Level:     level,
		Message:   message,
	}
}

// SetupWithDevices preloads the device list
func (m *MockDroidApp) SetupWithDevices(devices ...Device) {
	m.GetDevicesResult = devices
}

// SetupWithError configures a method to fail
func (m *MockDroidApp) SetupWithError(method string, err error) {
	switch method {
	case "GetDevices":
		m.GetDevicesError = err
	case "GetDeviceInfo":
		m.GetDeviceInfoError = err
	case "AdbConnect":
		m.AdbConnectError = err
	case "ListPackages":
		m.ListPackagesError = err
	case "InstallAPK":
		m.InstallAPKError = err
	case "StartLogcat":
		m.StartLogcatError = err
	case "StopLogcat":
		m.StopLogcatError = err
	case "PollLogs":
		m.PollLogsError = err
	case "DumpLogs":
		m.DumpLogsError = err
	case "ListSessions":
		m.ListSessionsError = err
	case "QuerySession":
		m.QuerySessionError = err
	case "ExportSession":
		m.ExportSessionError = err
	case "DeleteSession":
		m.DeleteSessionError = err
	}
}

func (m *MockDroidApp) recordCall(method string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
}

// GetLastCall returns the last recorded call
func (m *MockDroidApp) GetLastCall() *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	return &m.Calls[len(m.Calls)-1]
}

// WasMethodCalled checks if a method was called
func (m *MockDroidApp) WasMethodCalled(method string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, call := range m.Calls {
		if call.Method == method {
			return true
		}
	}
	return false
}

// GetLastCallByMethod returns the last call to a specific method
func (m *MockDroidApp) GetLastCallByMethod(method string) *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Calls) - 1; i >= 0; i-- {
		if m.Calls[i].Method == method {
			return &m.Calls[i]
		}
	}
	return nil
}

// === Device Management ===

func (m *MockDroidApp) GetDevices(ctx context.Context) ([]Device, error) {
	m.recordCall("GetDevices")
	return m.GetDevicesResult, m.GetDevicesError
}

func (m *MockDroidApp) GetDeviceInfo(ctx context.Context, deviceID string) (DeviceInfo, error) {
	m.recordCall("GetDeviceInfo", deviceID)
	return m.GetDeviceInfoResult, m.GetDeviceInfoError
}

func (m *MockDroidApp) AdbConnect(ctx context.Context, address string) (string, error) {
	m.recordCall("AdbConnect", address)
	return m.AdbConnectResult, m.AdbConnectError
}

func (m *MockDroidApp) AdbDisconnect(ctx context.Context, address string) (string, error) {
	m.recordCall("AdbDisconnect", address)
	return m.AdbDisconnectResult, m.AdbDisconnectError
}

func (m *MockDroidApp) AdbPair(ctx context.Context, address, code string) (string, error) {
	m.recordCall("AdbPair", address, code)
	return m.AdbPairResult, m.AdbPairError
}

func (m *MockDroidApp) SwitchToWireless(ctx context.Context, deviceID string) (string, error) {
	m.recordCall("SwitchToWireless", deviceID)
	return m.SwitchToWirelessResult, m.SwitchToWirelessError
}

func (m *MockDroidApp) GetDeviceIP(ctx context.Context, deviceID string) (string, error) {
	m.recordCall("GetDeviceIP", deviceID)
	return m.GetDeviceIPResult, m.GetDeviceIPError
}

func (m *MockDroidApp) RunAdbCommand(ctx context.Context, deviceID, command string, timeout time.Duration) (string, error) {
	m.recordCall("RunAdbCommand", deviceID, command, timeout)
	return m.RunAdbCommandResult, m.RunAdbCommandError
}

// === App Management ===

func (m *MockDroidApp) ListPackages(ctx context.Context, deviceID, packageType string) ([]AppPackage, error) {
	m.recordCall("ListPackages", deviceID, packageType)
	return m.ListPackagesResult, m.ListPackagesError
}

func (m *MockDroidApp) InstallAPK(ctx context.Context, deviceID, apkPath string) (string, error) {
	m.recordCall("InstallAPK", deviceID, apkPath)
	return m.InstallAPKResult, m.InstallAPKError
}

func (m *MockDroidApp) UninstallApp(ctx context.Context, deviceID, packageName string) (string, error) {
	m.recordCall("UninstallApp", deviceID, packageName)
	return m.UninstallAppResult, m.UninstallAppError
}

func (m *MockDroidApp) ClearAppData(ctx context.Context, deviceID, packageName string) (string, error) {
	m.recordCall("ClearAppData", deviceID, packageName)
	return m.ClearAppDataResult, m.ClearAppDataError
}

func (m *MockDroidApp) StartApp(ctx context.Context, deviceID, packageName string) (string, error) {
	m.recordCall("StartApp", deviceID, packageName)
	return m.StartAppResult, m.StartAppError
}

func (m *MockDroidApp) ForceStopApp(ctx context.Context, deviceID, packageName string) (string, error) {
	m.recordCall("ForceStopApp", deviceID, packageName)
	return m.ForceStopAppResult, m.ForceStopAppError
}

func (m *MockDroidApp) IsAppRunning(ctx context.Context, deviceID, packageName string) (bool, error) {
	m.recordCall("IsAppRunning", deviceID, packageName)
	return m.IsAppRunningResult, m.IsAppRunningError
}

func (m *MockDroidApp) GetAppVersion(ctx context.Context, deviceID, packageName string) (AppPackage, error) {
	m.recordCall("GetAppVersion", deviceID, packageName)
	return m.GetAppVersionResult, m.GetAppVersionError
}

// === Logcat ===

func (m *MockDroidApp) StartLogcat(ctx context.Context, deviceID string, opts LogcatOptions) error {
	m.recordCall("StartLogcat", deviceID, opts)
	return m.StartLogcatError
}

func (m *MockDroidApp) StopLogcat(deviceID string) error {
	m.recordCall("StopLogcat", deviceID)
	return m.StopLogcatError
}

func (m *MockDroidApp) LogcatActive(deviceID string) bool {
	m.recordCall("LogcatActive", deviceID)
	return m.LogcatActiveResult
}

func (m *MockDroidApp) PollLogs(deviceID string) ([]LogEntry, error) {
	m.recordCall("PollLogs", deviceID)
	return m.PollLogsResult, m.PollLogsError
}

func (m *MockDroidApp) DumpLogs(deviceID string) ([]LogEntry, error) {
	m.recordCall("DumpLogs", deviceID)
	return m.DumpLogsResult, m.DumpLogsError
}

func (m *MockDroidApp) ClearLogs(ctx context.Context, deviceID string) error {
	m.recordCall("ClearLogs", deviceID)
	return m.ClearLogsError
}

// === Sessions ===

func (m *MockDroidApp) ListSessions(limit int) ([]CaptureSession, error) {
	m.recordCall("ListSessions", limit)
	return m.ListSessionsResult, m.ListSessionsError
}

func (m *MockDroidApp) QuerySession(q SessionQuery) (SessionQueryResult, error) {
	m.recordCall("QuerySession", q)
	return m.QuerySessionResult, m.QuerySessionError
}

func (m *MockDroidApp) ExportSession(sessionID, outPath string) (string, error) {
	m.recordCall("ExportSession", sessionID, outPath)
	return m.ExportSessionResult, m.ExportSessionError
}

func (m *MockDroidApp) ImportSession(inputPath string) (string, error) {
	m.recordCall("ImportSession", inputPath)
	return m.ImportSessionResult, m.ImportSessionError
}

func (m *MockDroidApp) DeleteSession(sessionID string) error {
	m.recordCall("DeleteSession", sessionID)
	return m.DeleteSessionError
}

// === Utility ===

func (m *MockDroidApp) Version() string {
	m.recordCall("Version")
	return m.AppVersion
}
