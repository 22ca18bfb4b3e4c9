package runner

import (
	"fmt"
	"strings"
	"time"
)

// ConfigurationError means the adb executable path is unset, missing or unusable.
// No process is spawned when this is returned.
type ConfigurationError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("adb path is not configured: %s", e.Reason)
	}
	return fmt.Sprintf("invalid adb path %s: %s", e.Path, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// CommandFailure is a child process that exited non-zero.
// Output holds the merged stdout/stderr capture verbatim.
type CommandFailure struct {
	Args     []string
	ExitCode int
	Output   string
}

func (e *CommandFailure) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("adb %s exited with code %d", strings.Join(e.Args, " "), e.ExitCode)
	}
	return fmt.Sprintf("adb %s exited with code %d: %s", strings.Join(e.Args, " "), e.ExitCode, out)
}

// TimeoutError is returned when the bounded wait expired and the child was killed.
type TimeoutError struct {
	Args    []string
	Timeout time.Duration
	Output  string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("adb %s timed out after %s", strings.Join(e.Args, " "), e.Timeout)
}
