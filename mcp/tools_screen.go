package mcp

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerScreenTools registers screen capture tools
func (s *MCPServer) registerScreenTools() {
	// screen_screenshot - Take a screenshot
	s.server.AddTool(
		mcp.NewTool("screen_screenshot",
			mcp.WithDescription("Take a screenshot of the device screen and return it as a base64 PNG image"),
			mcp.WithString("device_id",
				mcp.Required(),
				mcp.Description("Device ID"),
			),
			mcp.WithString("save_path",
				mcp.Description("Also save the screenshot to this path (optional)"),
			),
		),
		s.handleScreenshot,
	)
}

// Tool handlers

func (s *MCPServer) handleScreenshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID, err := stringArg(request, "device_id")
	if err != nil {
		return nil, err
	}

	path, err := s.app.TakeScreenshot(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}

	// the local copy only exists to be returned
	defer os.Remove(path)

	imageData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read screenshot: %w", err)
	}
	base64Image := base64.StdEncoding.EncodeToString(imageData)

	textInfo := fmt.Sprintf("Screenshot captured for device %s", deviceID)
	if savePath, ok := request.GetArguments()["save_path"].(string); ok && savePath != "" {
		if err := os.WriteFile(savePath, imageData, 0644); err != nil {
			textInfo += fmt.Sprintf("\nFailed to save to %s: %v", savePath, err)
		} else {
			textInfo += fmt.Sprintf("\nSaved to: %s", savePath)
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewImageContent(base64Image, "image/png"),
			mcp.NewTextContent(textInfo),
		},
	}, nil
}
