package main

import (
	"errors"
	"strings"
	"testing"
)

func TestTerminalCommand(t *testing.T) {
	tests := []struct {
		goos     string
		wantName string
		wantArgs []string
	}{
		{"linux", "x-terminal-emulator", []string{"-e", "/usr/bin/adb", "-s", "emulator-5554", "shell"}},
		{"windows", "cmd", []string{"/c", "start", "tether", "/usr/bin/adb", "-s", "emulator-5554", "shell"}},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			name, args, err := terminalCommand(tt.goos, "/usr/bin/adb", "emulator-5554", terminalShell)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if name != tt.wantName {
				t.Errorf("Expected %s, got %s", tt.wantName, name)
			}
			if strings.Join(args, " ") != strings.Join(tt.wantArgs, " ") {
				t.Errorf("Expected args %v, got %v", tt.wantArgs, args)
			}
		})
	}
}

func TestTerminalCommand_Darwin(t *testing.T) {
	name, args, err := terminalCommand("darwin", "/Users/me/Library/Android/sdk/platform-tools/adb", "192.168.1.7:5555", terminalLogcat)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if name != "osascript" || len(args) != 4 {
		t.Fatalf("Unexpected launcher %s %v", name, args)
	}

	want := `tell application "Terminal" to do script "'/Users/me/Library/Android/sdk/platform-tools/adb' -s '192.168.1.7:5555' logcat"`
	if args[1] != want {
		t.Errorf("Unexpected script:\n got %s\nwant %s", args[1], want)
	}
}

func TestTerminalCommand_DarwinQuoting(t *testing.T) {
	_, args, err := terminalCommand("darwin", `/Apps/My "Tools"/adb`, "emulator-5554", terminalShell)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(args[1], `'/Apps/My \"Tools\"/adb'`) {
		t.Errorf("Expected quotes escaped for AppleScript, got %s", args[1])
	}
}

func TestTerminalCommand_Unsupported(t *testing.T) {
	if _, _, err := terminalCommand("plan9", "/bin/adb", "emulator-5554", terminalShell); err == nil {
		t.Error("Expected error for unsupported platform")
	}
}

func TestShellQuote(t *testing.T) {
	if got := shellQuote("it's"); got != `'it'\''s'` {
		t.Errorf("Unexpected quoting %s", got)
	}
}

func TestOpenShell_Launches(t *testing.T) {
	app, _ := newTestApp(t, "exit 0")

	var launched []string
	app.launch = func(name string, args ...string) error {
		launched = append(append(launched, name), args...)
		return nil
	}

	if err := app.OpenShell("emulator-5554"); err != nil {
		t.Fatalf("OpenShell failed: %v", err)
	}
	joined := strings.Join(launched, " ")
	if !strings.Contains(joined, "emulator-5554") || !strings.Contains(joined, "shell") {
		t.Errorf("Unexpected launch %q", joined)
	}
}

func TestOpenLogcat_InvalidDevice(t *testing.T) {
	app, events := newTestApp(t, "exit 0")

	called := false
	app.launch = func(string, ...string) error { called = true; return nil }

	if err := app.OpenLogcat("bad id; rm -rf /"); err == nil {
		t.Error("Expected validation error")
	}
	if called {
		t.Error("Nothing should be launched for an invalid device id")
	}
	if n := events.lastNotification(); n == nil || n.Title != "Logcat failed" {
		t.Errorf("Expected error notification, got %+v", n)
	}
}

func TestOpenShell_LaunchFailure(t *testing.T) {
	app, events := newTestApp(t, "exit 0")
	app.launch = func(string, ...string) error { return errors.New("executable file not found") }

	if err := app.OpenShell("emulator-5554"); err == nil {
		t.Error("Expected launch error")
	}
	if n := events.lastNotification(); n == nil || !strings.Contains(n.Message, "failed to open terminal") {
		t.Errorf("Expected error notification, got %+v", n)
	}
}
