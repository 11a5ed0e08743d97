package mcp

import (
	"context"
	"strings"
	"testing"
)

// ==================== app_list ====================

func TestHandleAppList_Success(t *testing.T) {
	mock := NewMockDroidApp()
	mock.ListPackagesResult = []AppPackage{
		{Name: "com.example.app", Type: "user", State: "enabled"},
		{Name: "com.example.other", Type: "user", State: "disabled"},
	}
	server := NewMCPServer(mock)

	result, err := server.handleAppList(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "device1",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	text := getTextContent(result)
	if !strings.Contains(text, "com.example.app") {
		t.Error("Result should contain package names")
	}
	if !strings.Contains(text, "[disabled]") {
		t.Error("Result should flag disabled packages")
	}

	// default package type is user
	lastCall := mock.GetLastCallByMethod("ListPackages")
	if lastCall == nil || lastCall.Args[1] != "user" {
		t.Error("ListPackages should default to user packages")
	}
}

func TestHandleAppList_SystemType(t *testing.T) {
	mock := NewMockDroidApp()
	server := NewMCPServer(mock)

	_, err := server.handleAppList(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "device1",
		"type":      "system",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	lastCall := mock.GetLastCallByMethod("ListPackages")
	if lastCall == nil || lastCall.Args[1] != "system" {
		t.Error("ListPackages should receive the requested type")
	}
}

// ==================== app_install ====================

func TestHandleAppInstall_Success(t *testing.T) {
	mock := NewMockDroidApp()
	mock.InstallAPKResult = "Successfully installed app.apk"
	server := NewMCPServer(mock)

	result, err := server.handleAppInstall(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "device1",
		"apk_path":  "/tmp/app.apk",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !strings.Contains(getTextContent(result), "installed") {
		t.Error("Result should report installation")
	}
}

func TestHandleAppInstall_MissingPath(t *testing.T) {
	mock := NewMockDroidApp()
	server := NewMCPServer(mock)

	_, err := server.handleAppInstall(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "device1",
	}))
	if err == nil {
		t.Error("Expected error for missing apk_path")
	}
}

// ==================== app_start / app_stop ====================

func TestHandleAppStart_Success(t *testing.T) {
	mock := NewMockDroidApp()
	mock.StartAppResult = "App com.example.app started"
	server := NewMCPServer(mock)

	result, err := server.handleAppStart(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id":    "device1",
		"package_name": "com.example.app",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !strings.Contains(getTextContent(result), "started") {
		t.Error("Result should report app start")
	}
}

func TestHandleAppStop_MissingPackage(t *testing.T) {
	mock := NewMockDroidApp()
	server := NewMCPServer(mock)

	_, err := server.handleAppStop(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "device1",
	}))
	if err == nil {
		t.Error("Expected error for missing package_name")
	}
	if !strings.Contains(err.Error(), "package_name") {
		t.Errorf("Error should mention package_name, got: %v", err)
	}
}

// ==================== app_running ====================

func TestHandleAppRunning_True(t *testing.T) {
	mock := NewMockDroidApp()
	mock.IsAppRunningResult = true
	server := NewMCPServer(mock)

	result, err := server.handleAppRunning(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id":    "device1",
		"package_name": "com.example.app",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	text := getTextContent(result)
	if !strings.Contains(text, "is running") {
		t.Errorf("Result should report running state, got: %s", text)
	}
}

func TestHandleAppRunning_False(t *testing.T) {
	mock := NewMockDroidApp()
	server := NewMCPServer(mock)

	result, err := server.handleAppRunning(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id":    "device1",
		"package_name": "com.example.app",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !strings.Contains(getTextContent(result), "not running") {
		t.Error("Result should report not running")
	}
}

// ==================== app_version ====================

func TestHandleAppVersion_Success(t *testing.T) {
	mock := NewMockDroidApp()
	mock.GetAppVersionResult = AppPackage{
		Name:        "com.example.app",
		VersionName: "2.1.0",
		VersionCode: "210",
	}
	server := NewMCPServer(mock)

	result, err := server.handleAppVersion(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id":    "device1",
		"package_name": "com.example.app",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	text := getTextContent(result)
	if !strings.Contains(text, "2.1.0") || !strings.Contains(text, "210") {
		t.Errorf("Result should contain version info, got: %s", text)
	}
}
