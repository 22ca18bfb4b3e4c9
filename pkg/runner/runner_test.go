package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

// writeTool writes an executable shell script standing in for adb
func writeTool(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script tools are not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "adb")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("Failed to write tool: %v", err)
	}
	return path
}

func TestRun_Success(t *testing.T) {
	tool := writeTool(t, `echo "List of devices attached"; echo "emulator-5554	device"`)
	r := New(Config{Tool: StaticPath(tool)})

	out, err := r.Run(context.Background(), "devices", "-l")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := "List of devices attached\nemulator-5554\tdevice\n"
	if out != want {
		t.Errorf("Expected output %q, got %q", want, out)
	}
}

func TestRun_PassesArgumentsInOrder(t *testing.T) {
	tool := writeTool(t, `for a in "$@"; do echo "[$a]"; done`)
	r := New(Config{Tool: StaticPath(tool)})

	out, err := r.Run(context.Background(), "-s", "abc", "install", "-r", "/tmp/my app.apk")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := "[-s]\n[abc]\n[install]\n[-r]\n[/tmp/my app.apk]\n"
	if out != want {
		t.Errorf("Expected %q, got %q", want, out)
	}
}

func TestRun_MergesStderr(t *testing.T) {
	tool := writeTool(t, `echo out; echo err 1>&2`)
	r := New(Config{Tool: StaticPath(tool)})

	out, err := r.Run(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(out, "out") || !strings.Contains(out, "err") {
		t.Errorf("Expected both streams in capture, got %q", out)
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	tool := writeTool(t, `echo "adb: failed to stat /no/such.apk: No such file or directory" 1>&2; exit 1`)
	r := New(Config{Tool: StaticPath(tool)})

	out, err := r.Run(context.Background(), "-s", "abc", "install", "-r", "/no/such.apk")
	if err == nil {
		t.Fatal("Expected error for non-zero exit")
	}

	var failure *CommandFailure
	if !errors.As(err, &failure) {
		t.Fatalf("Expected *CommandFailure, got %T: %v", err, err)
	}
	if failure.ExitCode != 1 {
		t.Errorf("Expected exit code 1, got %d", failure.ExitCode)
	}
	if !strings.Contains(failure.Output, "No such file or directory") {
		t.Errorf("Expected captured text in failure, got %q", failure.Output)
	}
	if failure.Output != out {
		t.Errorf("Expected failure output to equal returned capture")
	}
	if strings.Join(failure.Args, " ") != "-s abc install -r /no/such.apk" {
		t.Errorf("Unexpected args in failure: %v", failure.Args)
	}
}

func TestRun_ExitCodePreserved(t *testing.T) {
	tool := writeTool(t, `exit 42`)
	r := New(Config{Tool: StaticPath(tool)})

	_, err := r.Run(context.Background(), "version")
	var failure *CommandFailure
	if !errors.As(err, &failure) {
		t.Fatalf("Expected *CommandFailure, got %v", err)
	}
	if failure.ExitCode != 42 {
		t.Errorf("Expected exit code 42, got %d", failure.ExitCode)
	}
	if !strings.Contains(failure.Error(), "exited with code 42") {
		t.Errorf("Unexpected message: %s", failure.Error())
	}
}

func TestRun_MissingExecutable(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist", "adb")
	r := New(Config{Tool: StaticPath(missing)})

	_, err := r.Run(context.Background(), "devices")
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected *ConfigurationError, got %T: %v", err, err)
	}
	if cfgErr.Path != missing {
		t.Errorf("Expected path %s in error, got %s", missing, cfgErr.Path)
	}
}

func TestRun_EmptyPath(t *testing.T) {
	r := New(Config{})

	_, err := r.Run(context.Background(), "devices")
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected *ConfigurationError, got %v", err)
	}
	if !strings.Contains(err.Error(), "not configured") {
		t.Errorf("Expected actionable message, got %s", err.Error())
	}
}

func TestRun_NotExecutable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on windows")
	}
	path := filepath.Join(t.TempDir(), "adb")
	if err := os.WriteFile(path, []byte("#!/bin/sh\necho hi\n"), 0644); err != nil {
		t.Fatal(err)
	}
	r := New(Config{Tool: StaticPath(path)})

	_, err := r.Run(context.Background(), "version")
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected *ConfigurationError for non-executable file, got %T: %v", err, err)
	}
}

func TestRun_Directory(t *testing.T) {
	r := New(Config{Tool: StaticPath(t.TempDir())})

	_, err := r.Run(context.Background(), "version")
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected *ConfigurationError for directory, got %v", err)
	}
}

func TestRunTimeout_KillsChild(t *testing.T) {
	tool := writeTool(t, `echo started; exec sleep 10`)
	r := New(Config{Tool: StaticPath(tool)})

	start := time.Now()
	out, err := r.RunTimeout(context.Background(), 200*time.Millisecond, "shell", "screencap")
	elapsed := time.Since(start)

	var timeout *TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("Expected *TimeoutError, got %T: %v", err, err)
	}
	if timeout.Timeout != 200*time.Millisecond {
		t.Errorf("Expected timeout 200ms in error, got %s", timeout.Timeout)
	}
	if elapsed > 5*time.Second {
		t.Errorf("Expected child to be killed promptly, took %s", elapsed)
	}
	if !strings.Contains(out, "started") {
		t.Errorf("Expected partial capture, got %q", out)
	}
}

func TestRun_ForkedChildHoldsPipe(t *testing.T) {
	// adb start-server leaves a daemon that inherits stdout
	tool := writeTool(t, "(sleep 6) &\necho 'List of devices attached'\nexit 0")
	r := New(Config{Tool: StaticPath(tool)})

	out, err := r.Run(context.Background(), "devices", "-l")
	if err != nil {
		t.Fatalf("Clean exit should succeed, got %T: %v", err, err)
	}
	if out != "List of devices attached\n" {
		t.Errorf("Expected captured output, got %q", out)
	}
}

func TestRun_ForkedChildHoldsPipeNonZeroExit(t *testing.T) {
	tool := writeTool(t, "(sleep 6) &\necho 'error: no devices/emulators found'\nexit 1")
	r := New(Config{Tool: StaticPath(tool)})

	_, err := r.Run(context.Background(), "reboot")
	var failure *CommandFailure
	if !errors.As(err, &failure) {
		t.Fatalf("Expected *CommandFailure, got %T: %v", err, err)
	}
	if failure.ExitCode != 1 {
		t.Errorf("Expected exit code 1, got %d", failure.ExitCode)
	}
}

func TestRun_ContextCanceled(t *testing.T) {
	tool := writeTool(t, `exec sleep 10`)
	r := New(Config{Tool: StaticPath(tool)})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := r.Run(ctx, "wait-for-device")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestRun_ReadsPathOnEveryCall(t *testing.T) {
	first := writeTool(t, `echo first`)
	second := writeTool(t, `echo second`)
	src := &switchablePath{path: first}
	r := New(Config{Tool: src})

	out, err := r.Run(context.Background())
	if err != nil || strings.TrimSpace(out) != "first" {
		t.Fatalf("Expected first, got %q (%v)", out, err)
	}

	src.set(second)
	out, err = r.Run(context.Background())
	if err != nil || strings.TrimSpace(out) != "second" {
		t.Fatalf("Expected second, got %q (%v)", out, err)
	}
}

func TestRun_Concurrent(t *testing.T) {
	tool := writeTool(t, `echo "$1"`)
	r := New(Config{Tool: StaticPath(tool)})

	var wg sync.WaitGroup
	errs := make([]error, 8)
	outs := make([]string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i], errs[i] = r.Run(context.Background(), string(rune('a'+i)))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		if errs[i] != nil {
			t.Errorf("Call %d failed: %v", i, errs[i])
		}
		if strings.TrimSpace(outs[i]) != string(rune('a'+i)) {
			t.Errorf("Call %d got %q", i, outs[i])
		}
	}
}

func TestCommand_MissingExecutable(t *testing.T) {
	r := New(Config{Tool: StaticPath("/nonexistent/adb")})

	cmd, err := r.Command(context.Background(), "track-devices")
	if cmd != nil {
		t.Error("Expected no command for missing executable")
	}
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected *ConfigurationError, got %v", err)
	}
}

func TestCleanEnv(t *testing.T) {
	env := []string{
		"PATH=/usr/bin",
		"HTTP_PROXY=http://proxy:8080",
		"https_proxy=http://proxy:8080",
		"ALL_PROXY=socks5://proxy",
		"NO_PROXY=localhost",
		"HOME=/home/user",
		"HTTP_PROXY_EXTRA=kept",
	}

	got := cleanEnv(env)
	want := []string{"PATH=/usr/bin", "HOME=/home/user", "HTTP_PROXY_EXTRA=kept"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Index %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	r := New(Config{})
	if r.Timeout() != DefaultTimeout {
		t.Errorf("Expected default timeout %s, got %s", DefaultTimeout, r.Timeout())
	}
	if r.Path() != "" {
		t.Errorf("Expected empty path, got %s", r.Path())
	}
}

type switchablePath struct {
	mu   sync.Mutex
	path string
}

func (s *switchablePath) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

func (s *switchablePath) set(p string) {
	s.mu.Lock()
	s.path = p
	s.mu.Unlock()
}
