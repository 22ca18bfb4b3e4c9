package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerAdbTools registers adb tool configuration tools
func (s *MCPServer) registerAdbTools() {
	s.server.AddTool(
		mcp.NewTool("adb_version",
			mcp.WithDescription("Report the adb version banner"),
		),
		s.handleAdbVersion,
	)

	s.server.AddTool(
		mcp.NewTool("adb_path_get",
			mcp.WithDescription("Show the adb executable in use and how it was found"),
		),
		s.handleAdbPathGet,
	)

	s.server.AddTool(
		mcp.NewTool("adb_path_set",
			mcp.WithDescription("Validate an adb executable by running its version command, then save it"),
			mcp.WithString("path",
				mcp.Required(),
				mcp.Description("Absolute path to the adb executable"),
			),
		),
		s.handleAdbPathSet,
	)
}

// Tool handlers

func (s *MCPServer) handleAdbVersion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	banner, err := s.app.AdbVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query adb version: %w", err)
	}
	return textResult(banner), nil
}

func (s *MCPServer) handleAdbPathGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return formatAdbPath(s.app.GetAdbPath()), nil
}

func (s *MCPServer) handleAdbPathSet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := stringArg(request, "path")
	if err != nil {
		return nil, err
	}

	res, err := s.app.SetAdbPath(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to set adb path: %w", err)
	}
	return formatAdbPath(res), nil
}

func formatAdbPath(p AdbPath) *mcp.CallToolResult {
	status := "found"
	if !p.Found {
		status = "not found"
	}
	return textResult(fmt.Sprintf("adb path: %s\nSource: %s\nStatus: %s", p.Path, p.Source, status))
}
