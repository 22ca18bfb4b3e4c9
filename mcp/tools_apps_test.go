package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// ==================== app_list ====================

func TestHandleAppList_Success(t *testing.T) {
	mock := NewMockTetherApp()
	mock.ListAppsResult = []string{"com.android.chrome", "com.example.app", "org.mozilla.firefox"}
	server := NewMCPServer(mock, nil)

	result, err := server.handleAppList(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "emulator-5554",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	text := getTextContent(result)
	if !strings.Contains(text, "3 package") {
		t.Errorf("Expected 3 packages, got %q", text)
	}
	if strings.Index(text, "com.android.chrome") > strings.Index(text, "org.mozilla.firefox") {
		t.Error("Packages should keep their sorted order")
	}
}

func TestHandleAppList_Filter(t *testing.T) {
	mock := NewMockTetherApp()
	mock.ListAppsResult = []string{"com.android.chrome", "com.example.app"}
	server := NewMCPServer(mock, nil)

	result, err := server.handleAppList(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "emulator-5554",
		"filter":    "example",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	text := getTextContent(result)
	if strings.Contains(text, "chrome") || !strings.Contains(text, "com.example.app") {
		t.Errorf("Unexpected filtered result %q", text)
	}
}

func TestHandleAppList_Empty(t *testing.T) {
	server := NewMCPServer(NewMockTetherApp(), nil)

	result, err := server.handleAppList(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "emulator-5554",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(getTextContent(result), "No packages") {
		t.Error("Expected no packages message")
	}
}

func TestHandleAppList_MissingDeviceId(t *testing.T) {
	server := NewMCPServer(NewMockTetherApp(), nil)

	if _, err := server.handleAppList(context.Background(), makeToolRequest(nil)); err == nil {
		t.Error("Expected error for missing device_id")
	}
}

func TestHandleAppList_Error(t *testing.T) {
	mock := NewMockTetherApp()
	mock.SetupWithError("ListApps", ErrDeviceNotFound)
	server := NewMCPServer(mock, nil)

	_, err := server.handleAppList(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "gone",
	}))
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Expected device not found, got %v", err)
	}
}

// ==================== app_install ====================

func TestHandleAppInstall_Success(t *testing.T) {
	mock := NewMockTetherApp()
	server := NewMCPServer(mock, nil)

	result, err := server.handleAppInstall(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "emulator-5554",
		"apk_path":  "/tmp/app.apk",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(getTextContent(result), "/tmp/app.apk") {
		t.Error("Result should mention the APK")
	}

	call := mock.GetLastCallByMethod("InstallApp")
	if call == nil || call.Args[0] != "emulator-5554" || call.Args[1] != "/tmp/app.apk" {
		t.Errorf("Unexpected InstallApp call %+v", call)
	}
}

func TestHandleAppInstall_MissingApkPath(t *testing.T) {
	mock := NewMockTetherApp()
	server := NewMCPServer(mock, nil)

	_, err := server.handleAppInstall(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "emulator-5554",
	}))
	if err == nil {
		t.Error("Expected error for missing apk_path")
	}
	if mock.WasMethodCalled("InstallApp") {
		t.Error("InstallApp should not be called")
	}
}

func TestHandleAppInstall_Error(t *testing.T) {
	mock := NewMockTetherApp()
	mock.SetupWithError("InstallApp", ErrCommandFailed)
	server := NewMCPServer(mock, nil)

	_, err := server.handleAppInstall(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "emulator-5554",
		"apk_path":  "/tmp/app.apk",
	}))
	if err == nil || !strings.Contains(err.Error(), "DELETE_FAILED_INTERNAL_ERROR") {
		t.Errorf("Expected captured tool text in error, got %v", err)
	}
}

// ==================== app_uninstall ====================

func TestHandleAppUninstall_Confirmed(t *testing.T) {
	mock := NewMockTetherApp()
	server := NewMCPServer(mock, nil)
	asked := confirmWith(server, true, nil)

	result, err := server.handleAppUninstall(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id":    "emulator-5554",
		"package_name": "com.example.app",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(*asked) != 1 || (*asked)[0] != "Uninstall app" {
		t.Errorf("Expected one uninstall confirmation, got %v", *asked)
	}
	if !strings.Contains(getTextContent(result), "Removed com.example.app") {
		t.Error("Result should report removal")
	}
}

func TestHandleAppUninstall_Declined(t *testing.T) {
	mock := NewMockTetherApp()
	server := NewMCPServer(mock, nil)
	confirmWith(server, false, nil)

	result, err := server.handleAppUninstall(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id":    "emulator-5554",
		"package_name": "com.example.app",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(getTextContent(result), "cancelled") {
		t.Error("Result should report cancellation")
	}
	if mock.WasMethodCalled("UninstallApp") {
		t.Error("UninstallApp should not be called when declined")
	}
}

func TestHandleAppUninstall_ConfirmationError(t *testing.T) {
	mock := NewMockTetherApp()
	server := NewMCPServer(mock, nil)
	confirmWith(server, false, errors.New("client does not support elicitation"))

	_, err := server.handleAppUninstall(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id":    "emulator-5554",
		"package_name": "com.example.app",
	}))
	if err == nil {
		t.Error("Expected confirmation error")
	}
	if mock.WasMethodCalled("UninstallApp") {
		t.Error("UninstallApp should not be called")
	}
}

func TestHandleAppUninstall_MissingPackage(t *testing.T) {
	server := NewMCPServer(NewMockTetherApp(), nil)
	asked := confirmWith(server, true, nil)

	_, err := server.handleAppUninstall(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "emulator-5554",
	}))
	if err == nil {
		t.Error("Expected error for missing package_name")
	}
	if len(*asked) != 0 {
		t.Error("Confirmation should not be requested for invalid input")
	}
}
