package mcp

import (
	"context"
	"errors"
	"sync"
)

// MockCall records a method call for verification
type MockCall struct {
	Method string
	Args   []interface{}
}

// MockTetherApp is a mock implementation of TetherApp for testing
type MockTetherApp struct {
	mu    sync.Mutex
	Calls []MockCall

	// Device Management
	GetDevicesResult       []Device
	RefreshDevicesResult   []Device
	RefreshDevicesError    error
	ConnectDeviceResult    string
	ConnectDeviceError     error
	DisconnectDeviceResult string
	DisconnectDeviceError  error
	RebootDeviceError      error

	// App Management
	ListAppsResult    []string
	ListAppsError     error
	InstallAppError   error
	UninstallAppError error

	// Screen
	TakeScreenshotResult string
	TakeScreenshotError  error

	// adb tool
	AdbVersionResult string
	AdbVersionError  error
	AdbPathResult    AdbPath
	SetAdbPathError  error

	// Utility
	AppVersion string
}

// NewMockTetherApp creates a new MockTetherApp with sensible defaults
func NewMockTetherApp() *MockTetherApp {
	return &MockTetherApp{
		Calls:            make([]MockCall, 0),
		AppVersion:       "1.0.0-test",
		GetDevicesResult: []Device{},
		ListAppsResult:   []string{},
		AdbPathResult:    AdbPath{Path: "/usr/local/bin/adb", Found: true, Source: "known-location"},
	}
}

// recordCall records a method call
func (m *MockTetherApp) recordCall(method string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
}

// GetCalls returns all recorded calls
func (m *MockTetherApp) GetCalls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall{}, m.Calls...)
}

// ResetCalls clears all recorded calls
func (m *MockTetherApp) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = make([]MockCall, 0)
}

// WasMethodCalled checks if a method was called
func (m *MockTetherApp) WasMethodCalled(method string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, call := range m.Calls {
		if call.Method == method {
			return true
		}
	}
	return false
}

// GetLastCallByMethod returns the last call to a specific method
func (m *MockTetherApp) GetLastCallByMethod(method string) *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Calls) - 1; i >= 0; i-- {
		if m.Calls[i].Method == method {
			return &m.Calls[i]
		}
	}
	return nil
}

// === Device Management ===

func (m *MockTetherApp) GetDevices() []Device {
	m.recordCall("GetDevices")
	return m.GetDevicesResult
}

func (m *MockTetherApp) RefreshDevices(ctx context.Context) ([]Device, error) {
	m.recordCall("RefreshDevices")
	return m.RefreshDevicesResult, m.RefreshDevicesError
}

func (m *MockTetherApp) ConnectDevice(ctx context.Context, address string) (string, error) {
	m.recordCall("ConnectDevice", address)
	return m.ConnectDeviceResult, m.ConnectDeviceError
}

func (m *MockTetherApp) DisconnectDevice(ctx context.Context, address string) (string, error) {
	m.recordCall("DisconnectDevice", address)
	return m.DisconnectDeviceResult, m.DisconnectDeviceError
}

func (m *MockTetherApp) RebootDevice(ctx context.Context, deviceID string) error {
	m.recordCall("RebootDevice", deviceID)
	return m.RebootDeviceError
}

// === App Management ===

func (m *MockTetherApp) ListApps(ctx context.Context, deviceID string) ([]string, error) {
	m.recordCall("ListApps", deviceID)
	return m.ListAppsResult, m.ListAppsError
}

func (m *MockTetherApp) InstallApp(ctx context.Context, deviceID, apkPath string) error {
	m.recordCall("InstallApp", deviceID, apkPath)
	return m.InstallAppError
}

func (m *MockTetherApp) UninstallApp(ctx context.Context, deviceID, packageName string) error {
	m.recordCall("UninstallApp", deviceID, packageName)
	return m.UninstallAppError
}

// === Screen ===

func (m *MockTetherApp) TakeScreenshot(ctx context.Context, deviceID string) (string, error) {
	m.recordCall("TakeScreenshot", deviceID)
	return m.TakeScreenshotResult, m.TakeScreenshotError
}

// === adb tool ===

func (m *MockTetherApp) AdbVersion(ctx context.Context) (string, error) {
	m.recordCall("AdbVersion")
	return m.AdbVersionResult, m.AdbVersionError
}

func (m *MockTetherApp) GetAdbPath() AdbPath {
	m.recordCall("GetAdbPath")
	return m.AdbPathResult
}

func (m *MockTetherApp) SetAdbPath(ctx context.Context, path string) (AdbPath, error) {
	m.recordCall("SetAdbPath", path)
	if m.SetAdbPathError != nil {
		return m.AdbPathResult, m.SetAdbPathError
	}
	m.AdbPathResult = AdbPath{Path: path, Found: true, Source: "manual"}
	return m.AdbPathResult, nil
}

// === Utility ===

func (m *MockTetherApp) GetAppVersion() string {
	m.recordCall("GetAppVersion")
	return m.AppVersion
}

// === Helper methods for test setup ===

// SetupWithDevices configures the mock to return specific devices
func (m *MockTetherApp) SetupWithDevices(devices ...Device) *MockTetherApp {
	m.GetDevicesResult = devices
	m.RefreshDevicesResult = devices
	return m
}

// SetupWithError configures a specific method to return an error
func (m *MockTetherApp) SetupWithError(method string, err error) *MockTetherApp {
	switch method {
	case "RefreshDevices":
		m.RefreshDevicesError = err
	case "ConnectDevice":
		m.ConnectDeviceError = err
	case "DisconnectDevice":
		m.DisconnectDeviceError = err
	case "RebootDevice":
		m.RebootDeviceError = err
	case "ListApps":
		m.ListAppsError = err
	case "InstallApp":
		m.InstallAppError = err
	case "UninstallApp":
		m.UninstallAppError = err
	case "TakeScreenshot":
		m.TakeScreenshotError = err
	case "AdbVersion":
		m.AdbVersionError = err
	case "SetAdbPath":
		m.SetAdbPathError = err
	}
	return m
}

// Common test errors
var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrCommandFailed  = errors.New("adb exited with code 1: Failure [DELETE_FAILED_INTERNAL_ERROR]")
)

// SampleDevice returns a sample device for testing
func SampleDevice(id string) Device {
	return Device{
		ID:      id,
		Status:  "device",
		Model:   "Pixel 7",
		Product: "panther",
	}
}
