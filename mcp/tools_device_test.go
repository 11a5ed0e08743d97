package mcp

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// Helper to create a CallToolRequest with arguments
func makeToolRequest(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

// Helper to get text content from result
func getTextContent(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// ==================== device_list ====================

func TestHandleDeviceList_Success(t *testing.T) {
	mock := NewMockDroidApp()
	mock.SetupWithDevices(
		SampleDevice("device1"),
		SampleDevice("device2"),
	)
	server := NewMCPServer(mock)

	result, err := server.handleDeviceList(context.Background(), makeToolRequest(nil))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	text := getTextContent(result)
	if !strings.Contains(text, "device1") {
		t.Error("Result should contain device1")
	}
	if !strings.Contains(text, "device2") {
		t.Error("Result should contain device2")
	}
	if !strings.Contains(text, "2 device") {
		t.Error("Result should mention 2 devices")
	}
}

func TestHandleDeviceList_NoDevices(t *testing.T) {
	mock := NewMockDroidApp()
	server := NewMCPServer(mock)

	result, err := server.handleDeviceList(context.Background(), makeToolRequest(nil))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	text := getTextContent(result)
	if !strings.Contains(strings.ToLower(text), "no device") {
		t.Errorf("Result should indicate no devices, got: %s", text)
	}
}

func TestHandleDeviceList_Error(t *testing.T) {
	mock := NewMockDroidApp()
	mock.SetupWithError("GetDevices", ErrDeviceNotFound)
	server := NewMCPServer(mock)

	_, err := server.handleDeviceList(context.Background(), makeToolRequest(nil))
	if err == nil {
		t.Error("Expected error, got nil")
	}
}

// ==================== device_info ====================

func TestHandleDeviceInfo_Success(t *testing.T) {
	mock := NewMockDroidApp()
	mock.GetDeviceInfoResult = SampleDeviceInfo()
	server := NewMCPServer(mock)

	result, err := server.handleDeviceInfo(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "device1",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	text := getTextContent(result)
	if !strings.Contains(text, "Pixel 6") {
		t.Error("Result should contain model name")
	}
	if !strings.Contains(text, "1080x2400") {
		t.Error("Result should contain resolution")
	}

	if !mock.WasMethodCalled("GetDeviceInfo") {
		t.Error("GetDeviceInfo should have been called")
	}
	lastCall := mock.GetLastCall()
	if lastCall.Args[0] != "device1" {
		t.Errorf("Expected device_id 'device1', got %v", lastCall.Args[0])
	}
}

func TestHandleDeviceInfo_MissingDeviceId(t *testing.T) {
	mock := NewMockDroidApp()
	server := NewMCPServer(mock)

	_, err := server.handleDeviceInfo(context.Background(), makeToolRequest(nil))
	if err == nil {
		t.Error("Expected error for missing device_id")
	}
	if !strings.Contains(err.Error(), "device_id") {
		t.Errorf("Error should mention device_id, got: %v", err)
	}
}

func TestHandleDeviceInfo_Error(t *testing.T) {
	mock := NewMockDroidApp()
	mock.SetupWithError("GetDeviceInfo", ErrDeviceNotFound)
	server := NewMCPServer(mock)

	_, err := server.handleDeviceInfo(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "nonexistent",
	}))
	if err == nil {
		t.Error("Expected error, got nil")
	}
}

// ==================== device_connect ====================

func TestHandleDeviceConnect_Success(t *testing.T) {
	mock := NewMockDroidApp()
	mock.AdbConnectResult = "connected to 192.168.1.100:5555"
	server := NewMCPServer(mock)

	result, err := server.handleDeviceConnect(context.Background(), makeToolRequest(map[string]interface{}{
		"address": "192.168.1.100:5555",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	text := getTextContent(result)
	if !strings.Contains(text, "connected") {
		t.Errorf("Result should report connection, got: %s", text)
	}

	lastCall := mock.GetLastCallByMethod("AdbConnect")
	if lastCall == nil || lastCall.Args[0] != "192.168.1.100:5555" {
		t.Error("AdbConnect should receive the address argument")
	}
}

func TestHandleDeviceConnect_MissingAddress(t *testing.T) {
	mock := NewMockDroidApp()
	server := NewMCPServer(mock)

	_, err := server.handleDeviceConnect(context.Background(), makeToolRequest(nil))
	if err == nil {
		t.Error("Expected error for missing address")
	}
}

// ==================== device_pair ====================

func TestHandleDevicePair_Success(t *testing.T) {
	mock := NewMockDroidApp()
	mock.AdbPairResult = "Successfully paired"
	server := NewMCPServer(mock)

	result, err := server.handleDevicePair(context.Background(), makeToolRequest(map[string]interface{}{
		"address": "192.168.1.100:37000",
		"code":    "123456",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !strings.Contains(getTextContent(result), "paired") {
		t.Error("Result should mention pairing")
	}

	lastCall := mock.GetLastCallByMethod("AdbPair")
	if lastCall == nil || lastCall.Args[1] != "123456" {
		t.Error("AdbPair should receive the pairing code")
	}
}

func TestHandleDevicePair_MissingCode(t *testing.T) {
	mock := NewMockDroidApp()
	server := NewMCPServer(mock)

	_, err := server.handleDevicePair(context.Background(), makeToolRequest(map[string]interface{}{
		"address": "192.168.1.100:37000",
	}))
	if err == nil {
		t.Error("Expected error for missing pairing code")
	}
}

// ==================== adb_execute ====================

func TestHandleAdbExecute_Success(t *testing.T) {
	mock := NewMockDroidApp()
	mock.RunAdbCommandResult = "Physical size: 1080x2400"
	server := NewMCPServer(mock)

	result, err := server.handleAdbExecute(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "device1",
		"command":   "shell wm size",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	text := getTextContent(result)
	if !strings.Contains(text, "Physical size") {
		t.Errorf("Result should contain command output, got: %s", text)
	}
}

func TestHandleAdbExecute_CustomTimeout(t *testing.T) {
	mock := NewMockDroidApp()
	server := NewMCPServer(mock)

	_, err := server.handleAdbExecute(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "device1",
		"command":   "shell sleep 1",
		"timeout":   float64(60),
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	lastCall := mock.GetLastCallByMethod("RunAdbCommand")
	if lastCall == nil {
		t.Fatal("RunAdbCommand should have been called")
	}
	if lastCall.Args[2] != 60*time.Second {
		t.Errorf("Expected 60s timeout, got %v", lastCall.Args[2])
	}
}

func TestHandleAdbExecute_CommandError(t *testing.T) {
	mock := NewMockDroidApp()
	mock.RunAdbCommandError = ErrDeviceNotFound
	server := NewMCPServer(mock)

	result, err := server.handleAdbExecute(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "device1",
		"command":   "shell ls",
	}))
	if err != nil {
		t.Fatalf("Command failures should be reported in the result, not as handler errors: %v", err)
	}
	if result == nil || !result.IsError {
		t.Error("Result should be flagged as error")
	}
}

func TestHandleAdbExecute_MissingCommand(t *testing.T) {
	mock := NewMockDroidApp()
	server := NewMCPServer(mock)

	_, err := server.handleAdbExecute(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "device1",
	}))
	if err == nil {
		t.Error("Expected error for missing command")
	}
}
