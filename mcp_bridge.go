package main

import (
	"context"

	"Tether/mcp"
	"Tether/pkg/toolpath"
)

// MCPBridge bridges the main App to the MCP server
type MCPBridge struct {
	app *App
}

// NewMCPBridge creates a new MCP bridge
func NewMCPBridge(app *App) *MCPBridge {
	return &MCPBridge{app: app}
}

// Implement mcp.TetherApp interface

func (b *MCPBridge) GetDevices() []mcp.Device {
	return b.app.Devices()
}

func (b *MCPBridge) RefreshDevices(ctx context.Context) ([]mcp.Device, error) {
	return b.app.RefreshDevices(ctx)
}

func (b *MCPBridge) ConnectDevice(ctx context.Context, address string) (string, error) {
	return b.app.ConnectDevice(ctx, address)
}

func (b *MCPBridge) DisconnectDevice(ctx context.Context, address string) (string, error) {
	return b.app.DisconnectDevice(ctx, address)
}

func (b *MCPBridge) RebootDevice(ctx context.Context, deviceID string) error {
	return b.app.RebootDevice(ctx, deviceID)
}

func (b *MCPBridge) ListApps(ctx context.Context, deviceID string) ([]string, error) {
	return b.app.ListApps(ctx, deviceID)
}

func (b *MCPBridge) InstallApp(ctx context.Context, deviceID, apkPath string) error {
	return b.app.InstallApp(ctx, deviceID, apkPath)
}

func (b *MCPBridge) UninstallApp(ctx context.Context, deviceID, packageName string) error {
	return b.app.UninstallApp(ctx, deviceID, packageName)
}

func (b *MCPBridge) TakeScreenshot(ctx context.Context, deviceID string) (string, error) {
	return b.app.TakeScreenshot(ctx, deviceID)
}

func (b *MCPBridge) AdbVersion(ctx context.Context) (string, error) {
	return b.app.AdbVersion(ctx)
}

func (b *MCPBridge) GetAdbPath() mcp.AdbPath {
	return toMCPAdbPath(b.app.AdbPath())
}

func (b *MCPBridge) SetAdbPath(ctx context.Context, path string) (mcp.AdbPath, error) {
	res, err := b.app.SetAdbPath(ctx, path)
	return toMCPAdbPath(res), err
}

func (b *MCPBridge) GetAppVersion() string {
	return b.app.GetAppVersion()
}

func toMCPAdbPath(res toolpath.Resolution) mcp.AdbPath {
	return mcp.AdbPath{
		Path:   res.Path,
		Found:  res.Found,
		Source: string(res.Source),
	}
}
