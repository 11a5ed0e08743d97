package mcp

import (
	"context"
	"strings"
	"testing"
)

// ==================== logcat_start ====================

func TestHandleLogcatStart_Success(t *testing.T) {
	mock := NewMockDroidApp()
	server := NewMCPServer(mock)

	result, err := server.handleLogcatStart(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "device1",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !strings.Contains(getTextContent(result), "started") {
		t.Error("Result should confirm capture started")
	}
	if !mock.WasMethodCalled("StartLogcat") {
		t.Error("StartLogcat should have been called")
	}
}

func TestHandleLogcatStart_WithOptions(t *testing.T) {
	mock := NewMockDroidApp()
	server := NewMCPServer(mock)

	_, err := server.handleLogcatStart(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id":    "device1",
		"format":       "brief",
		"filter_specs": "ActivityManager:I MyApp:D *:S",
		"clear":        true,
		"record":       true,
		"session_name": "repro run",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	lastCall := mock.GetLastCallByMethod("StartLogcat")
	if lastCall == nil {
		t.Fatal("StartLogcat should have been called")
	}
	opts, ok := lastCall.Args[1].(LogcatOptions)
	if !ok {
		t.Fatalf("Expected LogcatOptions argument, got %T", lastCall.Args[1])
	}
	if opts.Format != "brief" {
		t.Errorf("Expected format 'brief', got %q", opts.Format)
	}
	if len(opts.FilterSpecs) != 3 {
		t.Errorf("Expected 3 filter specs, got %v", opts.FilterSpecs)
	}
	if !opts.ClearDeviceLogs || !opts.RecordSession {
		t.Error("Clear and record flags should be set")
	}
	if opts.SessionName != "repro run" {
		t.Errorf("Expected session name 'repro run', got %q", opts.SessionName)
	}
}

func TestHandleLogcatStart_AlreadyRunning(t *testing.T) {
	mock := NewMockDroidApp()
	mock.SetupWithError("StartLogcat", ErrCaptureActive)
	server := NewMCPServer(mock)

	_, err := server.handleLogcatStart(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "device1",
	}))
	if err == nil {
		t.Error("Expected error when capture already running")
	}
}

func TestHandleLogcatStart_MissingDeviceId(t *testing.T) {
	mock := NewMockDroidApp()
	server := NewMCPServer(mock)

	_, err := server.handleLogcatStart(context.Background(), makeToolRequest(nil))
	if err == nil {
		t.Error("Expected error for missing device_id")
	}
}

// ==================== logcat_poll ====================

func TestHandleLogcatPoll_Entries(t *testing.T) {
	mock := NewMockDroidApp()
	mock.PollLogsResult = []LogEntry{
		SampleLogEntry("I", "01-15 10:30:00.123  1234  1234 I ActivityManager: Start proc"),
		SampleLogEntry("E", "01-15 10:30:01.456  1234  1234 E MyApp: something broke"),
	}
	server := NewMCPServer(mock)

	result, err := server.handleLogcatPoll(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "device1",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	text := getTextContent(result)
	if !strings.Contains(text, "2 new entries") {
		t.Errorf("Result should mention entry count, got: %s", text)
	}
	if !strings.Contains(text, "something broke") {
		t.Error("Result should contain log lines")
	}
}

func TestHandleLogcatPoll_Empty(t *testing.T) {
	mock := NewMockDroidApp()
	server := NewMCPServer(mock)

	result, err := server.handleLogcatPoll(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "device1",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !strings.Contains(getTextContent(result), "No new log entries") {
		t.Error("Result should report empty poll")
	}
}

func TestHandleLogcatPoll_NoCapture(t *testing.T) {
	mock := NewMockDroidApp()
	mock.SetupWithError("PollLogs", ErrDeviceNotFound)
	server := NewMCPServer(mock)

	_, err := server.handleLogcatPoll(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "device1",
	}))
	if err == nil {
		t.Error("Expected error when no capture exists")
	}
}

// ==================== logcat_dump ====================

func TestHandleLogcatDump_TruncatesLongBuffers(t *testing.T) {
	mock := NewMockDroidApp()
	entries := make([]LogEntry, maxLogLines+50)
	for i := range entries {
		entries[i] = SampleLogEntry("D", "line")
	}
	mock.DumpLogsResult = entries
	server := NewMCPServer(mock)

	result, err := server.handleLogcatDump(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "device1",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	text := getTextContent(result)
	if !strings.Contains(text, "50 older entries truncated") {
		t.Errorf("Result should mention truncation, got prefix: %.100s", text)
	}
}

// ==================== logcat_stop / logcat_status ====================

func TestHandleLogcatStop_Success(t *testing.T) {
	mock := NewMockDroidApp()
	server := NewMCPServer(mock)

	result, err := server.handleLogcatStop(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "device1",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !strings.Contains(getTextContent(result), "stopped") {
		t.Error("Result should confirm capture stopped")
	}
}

func TestHandleLogcatStatus(t *testing.T) {
	mock := NewMockDroidApp()
	mock.LogcatActiveResult = true
	server := NewMCPServer(mock)

	result, err := server.handleLogcatStatus(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "device1",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !strings.Contains(getTextContent(result), "active") {
		t.Error("Result should report active capture")
	}
}

// ==================== logcat_clear ====================

func TestHandleLogcatClear_Success(t *testing.T) {
	mock := NewMockDroidApp()
	server := NewMCPServer(mock)

	result, err := server.handleLogcatClear(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "device1",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !strings.Contains(getTextContent(result), "cleared") {
		t.Error("Result should confirm clear")
	}
	if !mock.WasMethodCalled("ClearLogs") {
		t.Error("ClearLogs should have been called")
	}
}
