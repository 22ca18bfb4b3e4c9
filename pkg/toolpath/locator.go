// Package toolpath discovers the adb executable and owns the process-wide
// resolved path that every runner invocation reads.
package toolpath

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// DefaultPath is returned, unverified, when discovery finds nothing
const DefaultPath = "/usr/local/bin/adb"

// lookupTimeout bounds the which/where helper
const lookupTimeout = 5 * time.Second

// Env is the subset of the process environment discovery depends on
type Env struct {
	GOOS   string
	Home   string
	Getenv func(string) string
	Exists func(string) bool
}

// SystemEnv returns the Env of the running process
func SystemEnv() Env {
	home, _ := os.UserHomeDir()
	return Env{
		GOOS:   runtime.GOOS,
		Home:   home,
		Getenv: os.Getenv,
		Exists: fileExists,
	}
}

// Candidates lists well-known install locations in probe order
func Candidates(env Env) []string {
	getenv := env.Getenv
	if getenv == nil {
		getenv = func(string) string { return "" }
	}

	name := "adb"
	if env.GOOS == "windows" {
		name = "adb.exe"
	}

	var paths []string
	switch env.GOOS {
	case "darwin":
		paths = append(paths, "/usr/local/bin/adb", "/opt/homebrew/bin/adb")
		if env.Home != "" {
			paths = append(paths, filepath.Join(env.Home, "Library", "Android", "sdk", "platform-tools", "adb"))
		}
	case "windows":
		if local := getenv("LOCALAPPDATA"); local != "" {
			paths = append(paths, filepath.Join(local, "Android", "Sdk", "platform-tools", name))
		}
	default:
		paths = append(paths, "/usr/local/bin/adb", "/usr/bin/adb")
		if env.Home != "" {
			paths = append(paths, filepath.Join(env.Home, "Android", "Sdk", "platform-tools", "adb"))
		}
	}

	for _, key := range []string{"ANDROID_HOME", "ANDROID_SDK_ROOT"} {
		if root := getenv(key); root != "" {
			paths = append(paths, filepath.Join(root, "platform-tools", name))
		}
	}

	return dedupe(paths)
}

// LookupFunc asks the platform helper where adb lives
type LookupFunc func(ctx context.Context) (string, error)

// SystemLookup runs "which adb" ("where adb" on Windows) and returns the
// first line of its stdout.
func SystemLookup(ctx context.Context) (string, error) {
	helper := "which"
	if runtime.GOOS == "windows" {
		helper = "where"
	}

	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, helper, "adb").Output()
	if err != nil {
		return "", err
	}
	return firstLine(string(out)), nil
}

func firstLine(s string) string {
	scanner := bufio.NewScanner(strings.NewReader(s))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := paths[:0]
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
