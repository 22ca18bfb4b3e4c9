package monitor

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"Tether/pkg/runner"
	"Tether/pkg/types"
)

func writeTool(t *testing.T, body string) runner.StaticPath {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script tools are not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "adb")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("Failed to write tool: %v", err)
	}
	return runner.StaticPath(path)
}

func TestReadFrame(t *testing.T) {
	payload := "emulator-5554\tdevice\n"
	r := bytes.NewBufferString("0015" + payload + "0000")

	got, err := ReadFrame(r)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != payload {
		t.Errorf("Expected %q, got %q", payload, got)
	}

	empty, err := ReadFrame(r)
	if err != nil || empty != "" {
		t.Errorf("Expected empty frame, got %q (%v)", empty, err)
	}

	if _, err := ReadFrame(r); err != io.EOF {
		t.Errorf("Expected io.EOF at end of stream, got %v", err)
	}
}

func TestReadFrame_BadHeader(t *testing.T) {
	if _, err := ReadFrame(bytes.NewBufferString("zzzzpayload")); err == nil {
		t.Error("Expected error for non-hex header")
	}
}

func TestReadFrame_Truncated(t *testing.T) {
	if _, err := ReadFrame(bytes.NewBufferString("0010short")); err == nil {
		t.Error("Expected error for truncated payload")
	}
}

func TestRefreshLoop_RateLimited(t *testing.T) {
	var calls atomic.Int32
	m := New(Config{
		MinInterval: 300 * time.Millisecond,
		Refresh:     func(context.Context) { calls.Add(1) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.refreshLoop(ctx)

	for i := 0; i < 20; i++ {
		m.notifyChange()
	}
	time.Sleep(100 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("Expected a burst to collapse into 1 refresh, got %d", got)
	}

	time.Sleep(400 * time.Millisecond)
	if got := calls.Load(); got > 2 {
		t.Errorf("Expected at most 2 refreshes, got %d", got)
	}
}

func TestMonitor_RefreshesOnFrame(t *testing.T) {
	tool := writeTool(t, `printf '0015emulator-5554\tdevice\n'; exec sleep 30`)
	r := runner.New(runner.Config{Tool: tool})

	refreshed := make(chan struct{}, 4)
	var mu sync.Mutex
	var seen []types.Device
	m := New(Config{
		Source:      r,
		MinInterval: 10 * time.Millisecond,
		Refresh: func(context.Context) {
			select {
			case refreshed <- struct{}{}:
			default:
			}
		},
		OnFrame: func(devices []types.Device) {
			mu.Lock()
			seen = devices
			mu.Unlock()
		},
	})

	m.Start(context.Background())
	select {
	case <-refreshed:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for refresh")
	}

	mu.Lock()
	if len(seen) != 1 || seen[0].ID != "emulator-5554" || seen[0].Status != "device" {
		t.Errorf("Unexpected frame devices: %+v", seen)
	}
	mu.Unlock()

	start := time.Now()
	m.Stop()
	if time.Since(start) > 5*time.Second {
		t.Error("Stop took too long")
	}
	if m.Running() {
		t.Error("Expected monitor to be stopped")
	}
}

func TestMonitor_RestartsAfterExit(t *testing.T) {
	tool := writeTool(t, `printf '0000'`)
	r := runner.New(runner.Config{Tool: tool})

	var refreshes atomic.Int32
	m := New(Config{
		Source:      r,
		MinInterval: time.Millisecond,
		MaxBackoff:  time.Second,
		Refresh:     func(context.Context) { refreshes.Add(1) },
	})

	m.Start(context.Background())
	defer m.Stop()

	deadline := time.Now().Add(6 * time.Second)
	for refreshes.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if refreshes.Load() < 2 {
		t.Errorf("Expected the tracker to restart and report again, got %d refreshes", refreshes.Load())
	}
}

func TestMonitor_MissingToolKeepsRetrying(t *testing.T) {
	r := runner.New(runner.Config{Tool: runner.StaticPath(filepath.Join(t.TempDir(), "adb"))})
	m := New(Config{Source: r})

	m.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	if !m.Running() {
		t.Error("Expected monitor to keep running while the tool is missing")
	}
	m.Stop()
}
