// Package mcp provides the MCP (Model Context Protocol) server for droidctl.
// This allows AI clients (like Claude Desktop) to drive Android devices over stdio.
package mcp

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"droidctl/pkg/types"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Type aliases from shared types package
// This avoids code duplication and ensures type consistency
type (
	Device             = types.Device
	DeviceInfo         = types.DeviceInfo
	AppPackage         = types.AppPackage
	LogEntry           = types.LogEntry
	LogcatOptions      = types.LogcatOptions
	CaptureSession     = types.CaptureSession
	SessionQuery       = types.SessionQuery
	SessionQueryResult = types.SessionQueryResult
)

// DroidApp is the surface the MCP server needs from the main App.
// It keeps the coupling between MCP and the application loose.
type DroidApp interface {
	// Device Management
	GetDevices(ctx context.Context) ([]Device, error)
	GetDeviceInfo(ctx context.Context, deviceID string) (DeviceInfo, error)
	AdbConnect(ctx context.Context, address string) (string, error)
	AdbDisconnect(ctx context.Context, address string) (string, error)
	AdbPair(ctx context.Context, address, code string) (string, error)
	SwitchToWireless(ctx context.Context, deviceID string) (string, error)
	GetDeviceIP(ctx context.Context, deviceID string) (string, error)
	RunAdbCommand(ctx context.Context, deviceID, command string, timeout time.Duration) (string, error)

	// App Management
	ListPackages(ctx context.Context, deviceID, packageType string) ([]AppPackage, error)
	InstallAPK(ctx context.Context, deviceID, apkPath string) (string, error)
	UninstallApp(ctx context.Context, deviceID, packageName string) (string, error)
	ClearAppData(ctx context.Context, deviceID, packageName string) (string, error)
	StartApp(ctx context.Context, deviceID, packageName string) (string, error)
	ForceStopApp(ctx context.Context, deviceID, packageName string) (string, error)
	IsAppRunning(ctx context.Context, deviceID, packageName string) (bool, error)
	GetAppVersion(ctx context.Context, deviceID, packageName string) (AppPackage, error)

	// Logcat
	StartLogcat(ctx context.Context, deviceID string, opts LogcatOptions) error
	StopLogcat(deviceID string) error
	LogcatActive(deviceID string) bool
	PollLogs(deviceID string) ([]LogEntry, error)
	DumpLogs(deviceID string) ([]LogEntry, error)
	ClearLogs(ctx context.Context, deviceID string) error

	// Sessions
	ListSessions(limit int) ([]CaptureSession, error)
	QuerySession(q SessionQuery) (SessionQueryResult, error)
	ExportSession(sessionID, outPath string) (string, error)
	ImportSession(inputPath string) (string, error)
	DeleteSession(sessionID string) error

	// Utility
	Version() string
}

// MCPServer wraps the MCP server and exposes droidctl tools over stdio
type MCPServer struct {
	app       DroidApp
	server    *server.MCPServer
	stdio     *server.StdioServer
	mu        sync.Mutex
	isRunning bool
}

// NewMCPServer creates a new MCP server for droidctl
func NewMCPServer(app DroidApp) *MCPServer {
	mcpServer := server.NewMCPServer(
		"droidctl",
		app.Version(),
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
		server.WithLogging(),
	)

	s := &MCPServer{
		app:    app,
		server: mcpServer,
	}

	s.registerTools()
	s.registerResources()

	return s
}

// registerTools registers all MCP tools
func (s *MCPServer) registerTools() {
	s.registerDeviceTools()
	s.registerAppTools()
	s.registerLogcatTools()
	s.registerSessionTools()
}

// registerResources registers all MCP resources
func (s *MCPServer) registerResources() {
	s.server.AddResource(
		mcp.NewResource(
			"droidctl://devices",
			"Connected Android devices",
			mcp.WithMIMEType("application/json"),
		),
		s.handleDevicesResource,
	)

	s.server.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"droidctl://devices/{deviceId}",
			"Device information",
		),
		s.handleDeviceInfoResource,
	)

	s.server.AddResource(
		mcp.NewResource(
			"droidctl://sessions",
			"Recorded logcat capture sessions",
			mcp.WithMIMEType("application/json"),
		),
		s.handleSessionsResource,
	)
}

// Start starts the MCP server (blocking - for CLI mode)
func (s *MCPServer) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("MCP server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	return s.run()
}

// StartAsync starts the MCP server in a goroutine (non-blocking)
func (s *MCPServer) StartAsync() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("MCP server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	go s.run()
	return nil
}

// run runs the MCP server (blocking)
func (s *MCPServer) run() error {
	s.stdio = server.NewStdioServer(s.server)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	go func() {
		<-sigChan
		cancel()
	}()

	fmt.Fprintln(os.Stderr, "[MCP] droidctl MCP server started")
	err := s.stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[MCP] Server error: %v\n", err)
	}

	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()

	return err
}

// Stop stops the MCP server
func (s *MCPServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	// The server stops when stdin closes or the context is cancelled
	s.isRunning = false
}

// IsRunning returns whether the MCP server is running
func (s *MCPServer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}
