package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerAppTools registers application management tools
func (s *MCPServer) registerAppTools() {
	// app_list - List installed packages
	s.server.AddTool(
		mcp.NewTool("app_list",
			mcp.WithDescription("List installed packages on a device"),
			mcp.WithString("device_id",
				mcp.Required(),
				mcp.Description("Device ID to list packages for"),
			),
			mcp.WithString("type",
				mcp.Description("Package type filter: 'user' (default), 'system', or 'all'"),
			),
		),
		s.handleAppList,
	)

	// app_install - Install an APK
	s.server.AddTool(
		mcp.NewTool("app_install",
			mcp.WithDescription("Install an APK file on a device"),
			mcp.WithString("device_id",
				mcp.Required(),
				mcp.Description("Device ID to install on"),
			),
			mcp.WithString("apk_path",
				mcp.Required(),
				mcp.Description("Local path to the APK file"),
			),
		),
		s.handleAppInstall,
	)

	// app_uninstall - Uninstall a package
	s.server.AddTool(
		mcp.NewTool("app_uninstall",
			mcp.WithDescription("Uninstall an application from a device"),
			mcp.WithString("device_id",
				mcp.Required(),
				mcp.Description("Device ID to uninstall from"),
			),
			mcp.WithString("package_name",
				mcp.Required(),
				mcp.Description("Package name to uninstall (e.g., com.example.app)"),
			),
		),
		s.handleAppUninstall,
	)

	// app_clear - Clear app data
	s.server.AddTool(
		mcp.NewTool("app_clear",
			mcp.WithDescription("Clear an application's data and cache"),
			mcp.WithString("device_id",
				mcp.Required(),
				mcp.Description("Device ID"),
			),
			mcp.WithString("package_name",
				mcp.Required(),
				mcp.Description("Package name to clear"),
			),
		),
		s.handleAppClear,
	)

	// app_start - Launch an app
	s.server.AddTool(
		mcp.NewTool("app_start",
			mcp.WithDescription("Launch an application on a device"),
			mcp.WithString("device_id",
				mcp.Required(),
				mcp.Description("Device ID"),
			),
			mcp.WithString("package_name",
				mcp.Required(),
				mcp.Description("Package name to launch"),
			),
		),
		s.handleAppStart,
	)

	// app_stop - Force stop an app
	s.server.AddTool(
		mcp.NewTool("app_stop",
			mcp.WithDescription("Force stop a running application"),
			mcp.WithString("device_id",
				mcp.Required(),
				mcp.Description("Device ID"),
			),
			mcp.WithString("package_name",
				mcp.Required(),
				mcp.Description("Package name to stop"),
			),
		),
		s.handleAppStop,
	)

	// app_running - Check if an app is running
	s.server.AddTool(
		mcp.NewTool("app_running",
			mcp.WithDescription("Check whether an application is currently running"),
			mcp.WithString("device_id",
				mcp.Required(),
				mcp.Description("Device ID"),
			),
			mcp.WithString("package_name",
				mcp.Required(),
				mcp.Description("Package name to check"),
			),
		),
		s.handleAppRunning,
	)

	// app_version - Get app version info
	s.server.AddTool(
		mcp.NewTool("app_version",
			mcp.WithDescription("Get version name and code of an installed application"),
			mcp.WithString("device_id",
				mcp.Required(),
				mcp.Description("Device ID"),
			),
			mcp.WithString("package_name",
				mcp.Required(),
				mcp.Description("Package name to inspect"),
			),
		),
		s.handleAppVersion,
	)
}

// requireAppArgs extracts the device_id and package_name arguments
func requireAppArgs(request mcp.CallToolRequest) (deviceID, packageName string, err error) {
	args := request.GetArguments()
	deviceID, ok := args["device_id"].(string)
	if !ok || deviceID == "" {
		return "", "", fmt.Errorf("device_id is required")
	}
	packageName, ok = args["package_name"].(string)
	if !ok || packageName == "" {
		return "", "", fmt.Errorf("package_name is required")
	}
	return deviceID, packageName, nil
}

func (s *MCPServer) handleAppList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	deviceID, ok := args["device_id"].(string)
	if !ok || deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}

	packageType, _ := args["type"].(string)
	if packageType == "" {
		packageType = "user"
	}

	packages, err := s.app.ListPackages(ctx, deviceID, packageType)
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}

	if len(packages) == 0 {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(fmt.Sprintf("No %s packages found on %s", packageType, deviceID)),
			},
		}, nil
	}

	result := fmt.Sprintf("Found %d %s package(s) on %s:\n\n", len(packages), packageType, deviceID)
	for _, p := range packages {
		state := ""
		if p.State == "disabled" {
			state = " [disabled]"
		}
		result += fmt.Sprintf("- %s (%s)%s\n", p.Name, p.Type, state)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(result),
		},
	}, nil
}

func (s *MCPServer) handleAppInstall(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	deviceID, ok := args["device_id"].(string)
	if !ok || deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}
	apkPath, ok := args["apk_path"].(string)
	if !ok || apkPath == "" {
		return nil, fmt.Errorf("apk_path is required")
	}

	result, err := s.app.InstallAPK(ctx, deviceID, apkPath)
	if err != nil {
		return nil, fmt.Errorf("failed to install APK: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(result),
		},
	}, nil
}

func (s *MCPServer) handleAppUninstall(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID, packageName, err := requireAppArgs(request)
	if err != nil {
		return nil, err
	}

	result, err := s.app.UninstallApp(ctx, deviceID, packageName)
	if err != nil {
		return nil, fmt.Errorf("failed to uninstall: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(result),
		},
	}, nil
}

func (s *MCPServer) handleAppClear(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID, packageName, err := requireAppArgs(request)
	if err != nil {
		return nil, err
	}

	result, err := s.app.ClearAppData(ctx, deviceID, packageName)
	if err != nil {
		return nil, fmt.Errorf("failed to clear app data: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(result),
		},
	}, nil
}

func (s *MCPServer) handleAppStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID, packageName, err := requireAppArgs(request)
	if err != nil {
		return nil, err
	}

	result, err := s.app.StartApp(ctx, deviceID, packageName)
	if err != nil {
		return nil, fmt.Errorf("failed to start app: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(result),
		},
	}, nil
}

func (s *MCPServer) handleAppStop(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID, packageName, err := requireAppArgs(request)
	if err != nil {
		return nil, err
	}

	result, err := s.app.ForceStopApp(ctx, deviceID, packageName)
	if err != nil {
		return nil, fmt.Errorf("failed to stop app: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(result),
		},
	}, nil
}

func (s *MCPServer) handleAppRunning(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID, packageName, err := requireAppArgs(request)
	if err != nil {
		return nil, err
	}

	running, err := s.app.IsAppRunning(ctx, deviceID, packageName)
	if err != nil {
		return nil, fmt.Errorf("failed to check app state: %w", err)
	}

	state := "not running"
	if running {
		state = "running"
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(fmt.Sprintf("App %s is %s on %s", packageName, state, deviceID)),
		},
	}, nil
}

func (s *MCPServer) handleAppVersion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID, packageName, err := requireAppArgs(request)
	if err != nil {
		return nil, err
	}

	pkg, err := s.app.GetAppVersion(ctx, deviceID, packageName)
	if err != nil {
		return nil, fmt.Errorf("failed to get app version: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(fmt.Sprintf("%s: versionName=%s versionCode=%s",
				packageName, pkg.VersionName, pkg.VersionCode)),
		},
	}, nil
}
