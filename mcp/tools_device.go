package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerDeviceTools registers device management tools
func (s *MCPServer) registerDeviceTools() {
	s.server.AddTool(
		mcp.NewTool("device_list",
			mcp.WithDescription("List all connected Android devices"),
		),
		s.handleDeviceList,
	)

	s.server.AddTool(
		mcp.NewTool("device_info",
			mcp.WithDescription("Get hardware and OS details for one device"),
			mcp.WithString("device_id",
				mcp.Required(),
				mcp.Description("Device ID to inspect"),
			),
		),
		s.handleDeviceInfo,
	)

	s.server.AddTool(
		mcp.NewTool("device_connect",
			mcp.WithDescription("Connect to a device over the network"),
			mcp.WithString("address",
				mcp.Required(),
				mcp.Description("Target address as IP:port (e.g., 192.168.1.100:5555)"),
			),
		),
		s.handleDeviceConnect,
	)

	s.server.AddTool(
		mcp.NewTool("device_disconnect",
			mcp.WithDescription("Drop a network device connection"),
			mcp.WithString("address",
				mcp.Required(),
				mcp.Description("Address of the connection to drop"),
			),
		),
		s.handleDeviceDisconnect,
	)

	s.server.AddTool(
		mcp.NewTool("device_pair",
			mcp.WithDescription("Pair with a device over wireless debugging"),
			mcp.WithString("address",
				mcp.Required(),
				mcp.Description("Pairing address shown on the device (IP:port)"),
			),
			mcp.WithString("code",
				mcp.Required(),
				mcp.Description("6-digit pairing code shown on the device"),
			),
		),
		s.handleDevicePair,
	)

	s.server.AddTool(
		mcp.NewTool("device_wireless",
			mcp.WithDescription("Switch a USB-connected device to wireless mode"),
			mcp.WithString("device_id",
				mcp.Required(),
				mcp.Description("Device ID to switch"),
			),
		),
		s.handleDeviceWireless,
	)

	s.server.AddTool(
		mcp.NewTool("device_ip",
			mcp.WithDescription("Look up the IP address of a connected device"),
			mcp.WithString("device_id",
				mcp.Required(),
				mcp.Description("Device ID to look up"),
			),
		),
		s.handleDeviceIP,
	)

	s.server.AddTool(
		mcp.NewTool("adb_execute",
			mcp.WithDescription("Run a raw adb command against a device. Accepts shell commands ('shell pm list packages'), file transfers ('push local remote'), and any other adb subcommand."),
			mcp.WithString("device_id",
				mcp.Required(),
				mcp.Description("Device ID to run the command on"),
			),
			mcp.WithString("command",
				mcp.Required(),
				mcp.Description("adb arguments without the leading 'adb -s <id>' (e.g., 'shell getprop ro.build.version.sdk')"),
			),
			mcp.WithNumber("timeout",
				mcp.Description("Timeout in seconds (default 30, capped at 300)"),
			),
		),
		s.handleAdbExecute,
	)
}

// requireStringArg extracts a mandatory string argument from the request
func requireStringArg(request mcp.CallToolRequest, name string) (string, error) {
	v, ok := request.GetArguments()[name].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return v, nil
}

func (s *MCPServer) handleDeviceList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	devices, err := s.app.GetDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	if len(devices) == 0 {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent("No devices connected"),
			},
		}, nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d device(s) connected:\n\n", len(devices)))
	for _, d := range devices {
		sb.WriteString(fmt.Sprintf("- %s: %s %s, state %s", d.ID, d.Brand, d.Model, d.State))
		if d.Type == "wireless" || d.Type == "both" {
			sb.WriteString(" (wireless)")
		}
		sb.WriteByte('\n')
	}

	// Structured form for clients that want to parse rather than read
	jsonData, _ := json.MarshalIndent(devices, "", "  ")
	sb.WriteString("\n```json\n")
	sb.Write(jsonData)
	sb.WriteString("\n```\n")

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(sb.String()),
		},
	}, nil
}

func (s *MCPServer) handleDeviceInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID, err := requireDeviceID(request)
	if err != nil {
		return nil, err
	}

	info, err := s.app.GetDeviceInfo(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get device info: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s: %s %s\n\n", deviceID, info.Brand, info.Model))
	sb.WriteString(fmt.Sprintf("Android %s (SDK %s)\n", info.AndroidVer, info.SDK))
	sb.WriteString(fmt.Sprintf("Manufacturer: %s\n", info.Manufacturer))
	sb.WriteString(fmt.Sprintf("ABI: %s\n", info.ABI))
	sb.WriteString(fmt.Sprintf("Serial: %s\n", info.Serial))
	sb.WriteString(fmt.Sprintf("Display: %s at %s dpi\n", info.Resolution, info.Density))

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(sb.String()),
		},
	}, nil
}

func (s *MCPServer) handleDeviceConnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address, err := requireStringArg(request, "address")
	if err != nil {
		return nil, err
	}

	result, err := s.app.AdbConnect(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(strings.TrimSpace(result)),
		},
	}, nil
}

func (s *MCPServer) handleDeviceDisconnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address, err := requireStringArg(request, "address")
	if err != nil {
		return nil, err
	}

	result, err := s.app.AdbDisconnect(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to disconnect: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(strings.TrimSpace(result)),
		},
	}, nil
}

func (s *MCPServer) handleDevicePair(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address, err := requireStringArg(request, "address")
	if err != nil {
		return nil, err
	}
	code, err := requireStringArg(request, "code")
	if err != nil {
		return nil, err
	}

	result, err := s.app.AdbPair(ctx, address, code)
	if err != nil {
		return nil, fmt.Errorf("failed to pair: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(strings.TrimSpace(result)),
		},
	}, nil
}

func (s *MCPServer) handleDeviceWireless(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID, err := requireDeviceID(request)
	if err != nil {
		return nil, err
	}

	result, err := s.app.SwitchToWireless(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to switch to wireless: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(strings.TrimSpace(result)),
		},
	}, nil
}

func (s *MCPServer) handleDeviceIP(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID, err := requireDeviceID(request)
	if err != nil {
		return nil, err
	}

	ip, err := s.app.GetDeviceIP(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get device IP: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(fmt.Sprintf("IP address of %s: %s", deviceID, ip)),
		},
	}, nil
}

func (s *MCPServer) handleAdbExecute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID, err := requireDeviceID(request)
	if err != nil {
		return nil, err
	}
	command, err := requireStringArg(request, "command")
	if err != nil {
		return nil, err
	}

	timeout := 30 * time.Second
	if v, ok := request.GetArguments()["timeout"].(float64); ok && v > 0 {
		if v > 300 {
			v = 300
		}
		timeout = time.Duration(v) * time.Second
	}

	output, err := s.app.RunAdbCommand(ctx, deviceID, command, timeout)
	if err != nil {
		msg := fmt.Sprintf("adb %s failed: %v", command, err)
		if output != "" {
			msg += "\n\n" + output
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(msg),
			},
			IsError: true,
		}, nil
	}

	if output == "" {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(fmt.Sprintf("adb -s %s %s finished with no output", deviceID, command)),
			},
		}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(output),
		},
	}, nil
}
