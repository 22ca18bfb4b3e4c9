package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerDeviceTools registers device management tools
func (s *MCPServer) registerDeviceTools() {
	// device_list - Last known device list
	s.server.AddTool(
		mcp.NewTool("device_list",
			mcp.WithDescription("List attached Android devices as last seen by the device monitor"),
		),
		s.handleDeviceList,
	)

	// device_refresh - Re-list devices now
	s.server.AddTool(
		mcp.NewTool("device_refresh",
			mcp.WithDescription("Query adb for attached devices now, including model and product of connected ones"),
		),
		s.handleDeviceRefresh,
	)

	// device_connect - Connect to a network device
	s.server.AddTool(
		mcp.NewTool("device_connect",
			mcp.WithDescription("Connect to a device via ADB over network (host:port)"),
			mcp.WithString("address",
				mcp.Required(),
				mcp.Description("Device address in format host:port (e.g., 192.168.1.100:5555)"),
			),
		),
		s.handleDeviceConnect,
	)

	// device_disconnect - Disconnect a network device
	s.server.AddTool(
		mcp.NewTool("device_disconnect",
			mcp.WithDescription("Disconnect a network device from ADB"),
			mcp.WithString("address",
				mcp.Required(),
				mcp.Description("Device address to disconnect (host:port)"),
			),
		),
		s.handleDeviceDisconnect,
	)

	// device_reboot - Reboot (DESTRUCTIVE)
	s.server.AddTool(
		mcp.NewTool("device_reboot",
			mcp.WithDescription("Reboot a device (requires confirmation)"),
			mcp.WithString("device_id",
				mcp.Required(),
				mcp.Description("Device ID to reboot"),
			),
		),
		s.handleDeviceReboot,
	)
}

// Tool handlers

func (s *MCPServer) handleDeviceList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return formatDevices(s.app.GetDevices()), nil
}

func (s *MCPServer) handleDeviceRefresh(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	devices, err := s.app.RefreshDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh devices: %w", err)
	}
	return formatDevices(devices), nil
}

func formatDevices(devices []Device) *mcp.CallToolResult {
	if len(devices) == 0 {
		return textResult("No devices attached")
	}

	result := fmt.Sprintf("Found %d device(s):\n\n", len(devices))
	for i, d := range devices {
		connType := ""
		if d.IsNetwork() {
			connType = " [network]"
		}
		result += fmt.Sprintf("%d. %s%s\n   State: %s, Model: %s, Product: %s\n",
			i+1, d.ID, connType, d.Status, d.Model, d.Product)
	}

	// Also include JSON for structured access
	jsonData, _ := json.MarshalIndent(devices, "", "  ")

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(result),
			mcp.NewTextContent(fmt.Sprintf("\nJSON data:\n```json\n%s\n```", string(jsonData))),
		},
	}
}

func (s *MCPServer) handleDeviceConnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address, err := stringArg(request, "address")
	if err != nil {
		return nil, err
	}

	result, err := s.app.ConnectDevice(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return textResult(result), nil
}

func (s *MCPServer) handleDeviceDisconnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address, err := stringArg(request, "address")
	if err != nil {
		return nil, err
	}

	result, err := s.app.DisconnectDevice(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to disconnect: %w", err)
	}

	return textResult(result), nil
}

func (s *MCPServer) handleDeviceReboot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID, err := stringArg(request, "device_id")
	if err != nil {
		return nil, err
	}

	confirmed, err := s.confirm(ctx, "Reboot device", fmt.Sprintf("Device: %s", deviceID))
	if err != nil {
		return nil, err
	}
	if !confirmed {
		return textResult("Reboot cancelled by user"), nil
	}

	if err := s.app.RebootDevice(ctx, deviceID); err != nil {
		return nil, fmt.Errorf("failed to reboot: %w", err)
	}

	return textResult(fmt.Sprintf("Device %s is rebooting", deviceID)), nil
}
