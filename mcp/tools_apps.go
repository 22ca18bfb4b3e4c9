package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerAppTools registers package management tools
func (s *MCPServer) registerAppTools() {
	// app_list - List installed packages
	s.server.AddTool(
		mcp.NewTool("app_list",
			mcp.WithDescription("List installed package names on a device, sorted"),
			mcp.WithString("device_id",
				mcp.Required(),
				mcp.Description("Device ID"),
			),
			mcp.WithString("filter",
				mcp.Description("Only return packages containing this text (optional)"),
			),
		),
		s.handleAppList,
	)

	// app_install - Install APK
	s.server.AddTool(
		mcp.NewTool("app_install",
			mcp.WithDescription("Install or reinstall an APK from a path on this machine"),
			mcp.WithString("device_id",
				mcp.Required(),
				mcp.Description("Device ID"),
			),
			mcp.WithString("apk_path",
				mcp.Required(),
				mcp.Description("Local path to the APK file"),
			),
		),
		s.handleAppInstall,
	)

	// app_uninstall - Uninstall app (DESTRUCTIVE)
	s.server.AddTool(
		mcp.NewTool("app_uninstall",
			mcp.WithDescription("Uninstall an application (requires confirmation)"),
			mcp.WithString("device_id",
				mcp.Required(),
				mcp.Description("Device ID"),
			),
			mcp.WithString("package_name",
				mcp.Required(),
				mcp.Description("Package name to uninstall"),
			),
		),
		s.handleAppUninstall,
	)
}

// Tool handlers

func (s *MCPServer) handleAppList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID, err := stringArg(request, "device_id")
	if err != nil {
		return nil, err
	}
	filter, _ := request.GetArguments()["filter"].(string)

	apps, err := s.app.ListApps(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}

	var matched []string
	for _, pkg := range apps {
		if filter == "" || strings.Contains(pkg, filter) {
			matched = append(matched, pkg)
		}
	}

	if len(matched) == 0 {
		return textResult(fmt.Sprintf("No packages found on %s", deviceID)), nil
	}

	result := fmt.Sprintf("Found %d package(s) on %s:\n\n%s", len(matched), deviceID, strings.Join(matched, "\n"))
	return textResult(result), nil
}

func (s *MCPServer) handleAppInstall(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID, err := stringArg(request, "device_id")
	if err != nil {
		return nil, err
	}
	apkPath, err := stringArg(request, "apk_path")
	if err != nil {
		return nil, err
	}

	if err := s.app.InstallApp(ctx, deviceID, apkPath); err != nil {
		return nil, fmt.Errorf("failed to install: %w", err)
	}

	return textResult(fmt.Sprintf("Installed %s on %s", apkPath, deviceID)), nil
}

func (s *MCPServer) handleAppUninstall(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID, err := stringArg(request, "device_id")
	if err != nil {
		return nil, err
	}
	packageName, err := stringArg(request, "package_name")
	if err != nil {
		return nil, err
	}

	confirmed, err := s.confirm(ctx, "Uninstall app",
		fmt.Sprintf("Device: %s\nPackage: %s", deviceID, packageName))
	if err != nil {
		return nil, err
	}
	if !confirmed {
		return textResult("Uninstall cancelled by user"), nil
	}

	if err := s.app.UninstallApp(ctx, deviceID, packageName); err != nil {
		return nil, fmt.Errorf("failed to uninstall: %w", err)
	}

	return textResult(fmt.Sprintf("Removed %s from %s", packageName, deviceID)), nil
}
