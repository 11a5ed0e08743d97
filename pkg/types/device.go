package types

import "time"

// Device represents an Android device as reported by `adb devices -l`
type Device struct {
	ID       string   `json:"id"`
	Serial   string   `json:"serial"`
	State    string   `json:"state"`
	Model    string   `json:"model"`
	Brand    string   `json:"brand"`
	Type     string   `json:"type"` // "wired", "wireless", or "both"
	IDs      []string `json:"ids"`
	WifiAddr string   `json:"wifiAddr"`
	LastSeen int64    `json:"lastSeen"`
}

// DeviceInfo contains detailed device information
type DeviceInfo struct {
	Model        string            `json:"model"`
	Brand        string            `json:"brand"`
	Manufacturer string            `json:"manufacturer"`
	AndroidVer   string            `json:"androidVer"`
	SDK          string            `json:"sdk"`
	ABI          string            `json:"abi"`
	Serial       string            `json:"serial"`
	Resolution   string            `json:"resolution"`
	Density      string            `json:"density"`
	Props        map[string]string `json:"props"`
}

// AppPackage represents an installed application
type AppPackage struct {
	Name        string `json:"name"`
	Type        string `json:"type"`  // "system" or "user"
	State       string `json:"state"` // "enabled" or "disabled"
	UID         string `json:"uid,omitempty"`
	APKPath     string `json:"apkPath,omitempty"`
	VersionName string `json:"versionName,omitempty"`
	VersionCode string `json:"versionCode,omitempty"`
}

// LogEntry is a single captured logcat line
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// LogcatOptions configures a logcat capture session
type LogcatOptions struct {
	Format          string   `json:"format"`
	FilterSpecs     []string `json:"filterSpecs"`
	ClearDeviceLogs bool     `json:"clearDeviceLogs"`
	RecordSession   bool     `json:"recordSession"`
	SessionName     string   `json:"sessionName,omitempty"`
}

// CaptureSession is one recorded logcat capture, persisted in the session store
type CaptureSession struct {
	ID         string `json:"id"`
	DeviceID   string `json:"deviceId"`
	Name       string `json:"name"`
	StartTime  int64  `json:"startTime"` // unix ms
	EndTime    int64  `json:"endTime"`   // unix ms, 0 while active
	Status     string `json:"status"`    // "active" or "completed"
	EntryCount int64  `json:"entryCount"`
}

// SessionQuery filters persisted log entries
type SessionQuery struct {
	SessionID string `json:"sessionId"`
	Level     string `json:"level,omitempty"`
	Contains  string `json:"contains,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// SessionQueryResult is a page of persisted log entries
type SessionQueryResult struct {
	Entries []LogEntry `json:"entries"`
	Total   int64      `json:"total"`
}
