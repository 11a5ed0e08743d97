package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// maxLogLines caps logcat output returned in one tool call to keep
// responses within reasonable context size
const maxLogLines = 500

// registerLogcatTools registers logcat capture tools
func (s *MCPServer) registerLogcatTools() {
	// logcat_start - Start capturing logcat
	s.server.AddTool(
		mcp.NewTool("logcat_start",
			mcp.WithDescription("Start capturing logcat output from a device into a rolling buffer. Use logcat_poll to read new entries."),
			mcp.WithString("device_id",
				mcp.Required(),
				mcp.Description("Device ID to capture from"),
			),
			mcp.WithString("format",
				mcp.Description("Logcat output format: brief, process, tag, thread, raw, time, threadtime (default), long"),
			),
			mcp.WithString("filter_specs",
				mcp.Description("Space-separated filter specs like 'ActivityManager:I MyApp:D *:S'. Prefix a spec with '-' to drop it."),
			),
			mcp.WithBoolean("clear",
				mcp.Description("Clear the device log buffer before starting"),
			),
			mcp.WithBoolean("record",
				mcp.Description("Persist captured entries as a session in the local store"),
			),
			mcp.WithString("session_name",
				mcp.Description("Name for the recorded session (requires record=true)"),
			),
		),
		s.handleLogcatStart,
	)

	// logcat_stop - Stop capturing
	s.server.AddTool(
		mcp.NewTool("logcat_stop",
			mcp.WithDescription("Stop the logcat capture for a device"),
			mcp.WithString("device_id",
				mcp.Required(),
				mcp.Description("Device ID to stop capturing from"),
			),
		),
		s.handleLogcatStop,
	)

	// logcat_poll - Read new entries since last poll
	s.server.AddTool(
		mcp.NewTool("logcat_poll",
			mcp.WithDescription("Return log entries captured since the previous poll"),
			mcp.WithString("device_id",
				mcp.Required(),
				mcp.Description("Device ID to poll"),
			),
		),
		s.handleLogcatPoll,
	)

	// logcat_dump - Read the whole retained buffer
	s.server.AddTool(
		mcp.NewTool("logcat_dump",
			mcp.WithDescription("Return the entire retained log buffer without consuming it"),
			mcp.WithString("device_id",
				mcp.Required(),
				mcp.Description("Device ID to dump"),
			),
		),
		s.handleLogcatDump,
	)

	// logcat_clear - Clear the device-side buffer
	s.server.AddTool(
		mcp.NewTool("logcat_clear",
			mcp.WithDescription("Clear the device-side logcat buffer"),
			mcp.WithString("device_id",
				mcp.Required(),
				mcp.Description("Device ID to clear"),
			),
		),
		s.handleLogcatClear,
	)

	// logcat_status - Capture status
	s.server.AddTool(
		mcp.NewTool("logcat_status",
			mcp.WithDescription("Report whether a logcat capture is active for a device"),
			mcp.WithString("device_id",
				mcp.Required(),
				mcp.Description("Device ID to check"),
			),
		),
		s.handleLogcatStatus,
	)
}

func requireDeviceID(request mcp.CallToolRequest) (string, error) {
	args := request.GetArguments()
	deviceID, ok := args["device_id"].(string)
	if !ok || deviceID == "" {
		return "", fmt.Errorf("device_id is required")
	}
	return deviceID, nil
}

// formatEntries renders log entries as text, truncating to the newest
// maxLogLines lines
func formatEntries(entries []LogEntry) string {
	truncated := 0
	if len(entries) > maxLogLines {
		truncated = len(entries) - maxLogLines
		entries = entries[truncated:]
	}

	var sb strings.Builder
	if truncated > 0 {
		sb.WriteString(fmt.Sprintf("(%d older entries truncated)\n", truncated))
	}
	for _, e := range entries {
		sb.WriteString(e.Message)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (s *MCPServer) handleLogcatStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID, err := requireDeviceID(request)
	if err != nil {
		return nil, err
	}
	args := request.GetArguments()

	opts := LogcatOptions{}
	if v, ok := args["format"].(string); ok {
		opts.Format = v
	}
	if v, ok := args["filter_specs"].(string); ok && v != "" {
		opts.FilterSpecs = strings.Fields(v)
	}
	if v, ok := args["clear"].(bool); ok {
		opts.ClearDeviceLogs = v
	}
	if v, ok := args["record"].(bool); ok {
		opts.RecordSession = v
	}
	if v, ok := args["session_name"].(string); ok {
		opts.SessionName = v
	}

	if err := s.app.StartLogcat(ctx, deviceID, opts); err != nil {
		return nil, fmt.Errorf("failed to start logcat: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(fmt.Sprintf("Logcat capture started for %s", deviceID)),
		},
	}, nil
}

func (s *MCPServer) handleLogcatStop(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID, err := requireDeviceID(request)
	if err != nil {
		return nil, err
	}

	if err := s.app.StopLogcat(deviceID); err != nil {
		return nil, fmt.Errorf("failed to stop logcat: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(fmt.Sprintf("Logcat capture stopped for %s", deviceID)),
		},
	}, nil
}

func (s *MCPServer) handleLogcatPoll(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID, err := requireDeviceID(request)
	if err != nil {
		return nil, err
	}

	entries, err := s.app.PollLogs(deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to poll logs: %w", err)
	}

	if len(entries) == 0 {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent("No new log entries"),
			},
		}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(fmt.Sprintf("%d new entries:\n\n%s", len(entries), formatEntries(entries))),
		},
	}, nil
}

func (s *MCPServer) handleLogcatDump(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID, err := requireDeviceID(request)
	if err != nil {
		return nil, err
	}

	entries, err := s.app.DumpLogs(deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to dump logs: %w", err)
	}

	if len(entries) == 0 {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent("Log buffer is empty"),
			},
		}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(fmt.Sprintf("%d buffered entries:\n\n%s", len(entries), formatEntries(entries))),
		},
	}, nil
}

func (s *MCPServer) handleLogcatClear(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID, err := requireDeviceID(request)
	if err != nil {
		return nil, err
	}

	if err := s.app.ClearLogs(ctx, deviceID); err != nil {
		return nil, fmt.Errorf("failed to clear logs: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(fmt.Sprintf("Device log buffer cleared for %s", deviceID)),
		},
	}, nil
}

func (s *MCPServer) handleLogcatStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID, err := requireDeviceID(request)
	if err != nil {
		return nil, err
	}

	state := "inactive"
	if s.app.LogcatActive(deviceID) {
		state = "active"
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(fmt.Sprintf("Logcat capture for %s: %s", deviceID, state)),
		},
	}, nil
}
