package main

import (
	"context"
	"testing"

	"Tether/mcp"
	"Tether/pkg/toolpath"
)

var _ mcp.TetherApp = (*MCPBridge)(nil)

func TestMCPBridge_Devices(t *testing.T) {
	app, _ := newTestApp(t, fakeAdb)
	bridge := NewMCPBridge(app)

	if len(bridge.GetDevices()) != 0 {
		t.Error("Snapshot should be empty before the first refresh")
	}

	devices, err := bridge.RefreshDevices(context.Background())
	if err != nil {
		t.Fatalf("RefreshDevices failed: %v", err)
	}
	if len(devices) != 2 || len(bridge.GetDevices()) != 2 {
		t.Errorf("Expected 2 devices, got %+v", devices)
	}
}

func TestMCPBridge_AdbPath(t *testing.T) {
	app, _ := newTestApp(t, fakeAdb)
	bridge := NewMCPBridge(app)

	got := bridge.GetAdbPath()
	if got.Path != app.cfg.AdbPath || !got.Found || got.Source != string(toolpath.SourceOverride) {
		t.Errorf("Unexpected path %+v", got)
	}

	res, err := bridge.SetAdbPath(context.Background(), "/bin/false")
	if err == nil {
		t.Error("Expected rejected path")
	}
	if res.Path != app.cfg.AdbPath {
		t.Errorf("Rejected path should report the previous one, got %+v", res)
	}
}

func TestMCPBridge_Version(t *testing.T) {
	app, _ := newTestApp(t, fakeAdb)
	bridge := NewMCPBridge(app)

	if bridge.GetAppVersion() != Version {
		t.Errorf("Expected %s, got %s", Version, bridge.GetAppVersion())
	}
	banner, err := bridge.AdbVersion(context.Background())
	if err != nil || banner == "" {
		t.Errorf("Unexpected version %q (%v)", banner, err)
	}
}

func TestToMCPAdbPath(t *testing.T) {
	got := toMCPAdbPath(toolpath.Resolution{Path: "/opt/adb", Found: true, Source: toolpath.SourceKnown})
	if got.Path != "/opt/adb" || !got.Found || got.Source != "known-location" {
		t.Errorf("Unexpected conversion %+v", got)
	}
}
