// Package mcp provides the MCP (Model Context Protocol) server for Tether.
// It lets MCP clients list devices, manage packages and capture screenshots
// through the same session the command line uses.
package mcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"Tether/pkg/types"
)

// Device is the shared device record
type Device = types.Device

// AdbPath describes the active adb executable
type AdbPath struct {
	Path   string `json:"path"`
	Found  bool   `json:"found"`
	Source string `json:"source"`
}

// TetherApp is what the server needs from the application
type TetherApp interface {
	// Device Management
	GetDevices() []Device
	RefreshDevices(ctx context.Context) ([]Device, error)
	ConnectDevice(ctx context.Context, address string) (string, error)
	DisconnectDevice(ctx context.Context, address string) (string, error)
	RebootDevice(ctx context.Context, deviceID string) error

	// App Management
	ListApps(ctx context.Context, deviceID string) ([]string, error)
	InstallApp(ctx context.Context, deviceID, apkPath string) error
	UninstallApp(ctx context.Context, deviceID, packageName string) error

	// Screen
	TakeScreenshot(ctx context.Context, deviceID string) (string, error)

	// adb tool
	AdbVersion(ctx context.Context) (string, error)
	GetAdbPath() AdbPath
	SetAdbPath(ctx context.Context, path string) (AdbPath, error)

	// Utility
	GetAppVersion() string
}

// MCPServer wraps the MCP server and provides Tether-specific functionality
type MCPServer struct {
	app       TetherApp
	server    *server.MCPServer
	stdio     *server.StdioServer
	log       zerolog.Logger
	mu        sync.Mutex
	isRunning bool

	// confirm asks the client before a destructive operation
	confirm func(ctx context.Context, operation, details string) (bool, error)
}

// NewMCPServer creates a new MCP server for Tether
func NewMCPServer(app TetherApp, logger *zerolog.Logger) *MCPServer {
	mcpServer := server.NewMCPServer(
		"tether-adb",
		app.GetAppVersion(),
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
		server.WithElicitation(), // Enable elicitation for destructive operations
		server.WithLogging(),
	)

	s := &MCPServer{
		app:    app,
		server: mcpServer,
		log:    zerolog.Nop(),
	}
	if logger != nil {
		s.log = logger.With().Str("module", "mcp").Logger()
	}
	s.confirm = s.requestConfirmation

	s.registerTools()
	s.registerResources()

	return s
}

// registerTools registers all MCP tools
func (s *MCPServer) registerTools() {
	s.registerDeviceTools()
	s.registerAppTools()
	s.registerScreenTools()
	s.registerAdbTools()
}

// registerResources registers all MCP resources
func (s *MCPServer) registerResources() {
	s.server.AddResource(
		mcp.NewResource(
			devicesResourceURI,
			"Attached Android devices",
			mcp.WithMIMEType("application/json"),
		),
		s.handleDevicesResource,
	)
}

// Start serves MCP over stdin/stdout until ctx is done or stdin is closed
func (s *MCPServer) Start(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve serves MCP over the given streams (blocking)
func (s *MCPServer) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("MCP server is already running")
	}
	s.isRunning = true
	s.stdio = server.NewStdioServer(s.server)
	stdio := s.stdio
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	s.log.Info().Str("version", s.app.GetAppVersion()).Msg("MCP server started")
	err := stdio.Listen(ctx, in, out)
	if err != nil && ctx.Err() == nil {
		s.log.Error().Err(err).Msg("MCP server error")
		return err
	}
	s.log.Info().Msg("MCP server stopped")
	return nil
}

// IsRunning returns whether the MCP server is running
func (s *MCPServer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// requestConfirmation requests user confirmation for destructive operations
func (s *MCPServer) requestConfirmation(ctx context.Context, operation, details string) (bool, error) {
	elicitationRequest := mcp.ElicitationRequest{
		Params: mcp.ElicitationParams{
			Message: fmt.Sprintf("Destructive operation: %s\n\nDetails: %s\n\nDo you want to proceed?", operation, details),
			RequestedSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"confirm": map[string]any{
						"type":        "boolean",
						"description": "Confirm to proceed with this operation",
					},
				},
				"required": []string{"confirm"},
			},
		},
	}

	result, err := s.server.RequestElicitation(ctx, elicitationRequest)
	if err != nil {
		return false, fmt.Errorf("failed to request confirmation: %w", err)
	}

	if result.Action != mcp.ElicitationResponseActionAccept {
		return false, nil
	}

	data, ok := result.Content.(map[string]any)
	if !ok {
		return false, fmt.Errorf("unexpected response format")
	}

	confirm, ok := data["confirm"].(bool)
	if !ok {
		return false, fmt.Errorf("invalid confirmation response")
	}

	return confirm, nil
}

// stringArg returns a required string argument
func stringArg(request mcp.CallToolRequest, name string) (string, error) {
	v, ok := request.GetArguments()[name].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return v, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}
