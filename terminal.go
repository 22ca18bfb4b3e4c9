package main

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"Tether/pkg/session"
)

// Terminal subcommands
const (
	terminalShell  = "shell"
	terminalLogcat = "logcat"
)

// OpenShell opens a terminal window running "adb -s <id> shell"
func (a *App) OpenShell(deviceID string) error {
	return a.openTerminal(deviceID, terminalShell, ActionShellOpen, "Shell failed")
}

// OpenLogcat opens a terminal window running "adb -s <id> logcat"
func (a *App) OpenLogcat(deviceID string) error {
	return a.openTerminal(deviceID, terminalLogcat, ActionLogcatOpen, "Logcat failed")
}

func (a *App) openTerminal(deviceID, sub string, action UserAction, title string) error {
	if err := session.ValidateDeviceID(deviceID); err != nil {
		return a.session.Report(title, err)
	}

	name, args, err := terminalCommand(runtime.GOOS, a.tool.Path(), deviceID, sub)
	if err != nil {
		return a.session.Report(title, err)
	}
	if err := a.launch(name, args...); err != nil {
		return a.session.Report(title, fmt.Errorf("failed to open terminal: %w", err))
	}

	LogUserAction(action, deviceID, map[string]interface{}{"launcher": name})
	return nil
}

// terminalCommand builds the launcher that opens a new terminal window
// running "<adb> -s <deviceID> <sub>"
func terminalCommand(goos, adbPath, deviceID, sub string) (string, []string, error) {
	switch goos {
	case "darwin":
		script := fmt.Sprintf("tell application \"Terminal\" to do script \"%s\"",
			appleScriptEscape(shellQuote(adbPath)+" -s "+shellQuote(deviceID)+" "+sub))
		return "osascript", []string{"-e", script, "-e", "tell application \"Terminal\" to activate"}, nil
	case "windows":
		// the first quoted argument of start is the window title
		return "cmd", []string{"/c", "start", "tether", adbPath, "-s", deviceID, sub}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "x-terminal-emulator", []string{"-e", adbPath, "-s", deviceID, sub}, nil
	default:
		return "", nil, fmt.Errorf("opening a terminal is not supported on %s", goos)
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func appleScriptEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// startDetached starts a process without waiting for the window to close
func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}
