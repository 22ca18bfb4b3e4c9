// Package runner launches the adb executable as a child process and enforces
// the exit-code contract: exit 0 yields the merged stdout/stderr capture,
// anything else yields a typed failure carrying the same capture.
package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single invocation when the caller does not override it
const DefaultTimeout = 30 * time.Second

// waitDelay is how long Wait keeps draining pipes after the child exits or is
// killed. adb start-server forks a daemon that may inherit them.
const waitDelay = 2 * time.Second

// PathSource yields the current executable path. It is read on every invocation.
type PathSource interface {
	Path() string
}

// StaticPath is a PathSource that never changes
type StaticPath string

// Path implements PathSource
func (p StaticPath) Path() string { return string(p) }

// Config for creating a Runner
type Config struct {
	Tool    PathSource
	Timeout time.Duration
	Logger  *zerolog.Logger
}

// Runner executes adb commands. It holds no mutable state and is safe for
// concurrent use.
type Runner struct {
	tool    PathSource
	timeout time.Duration
	log     zerolog.Logger
}

// New creates a Runner
func New(cfg Config) *Runner {
	r := &Runner{
		tool:    cfg.Tool,
		timeout: cfg.Timeout,
		log:     zerolog.Nop(),
	}
	if r.tool == nil {
		r.tool = StaticPath("")
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if cfg.Logger != nil {
		r.log = cfg.Logger.With().Str("module", "runner").Logger()
	}
	return r
}

// Timeout returns the default bounded wait
func (r *Runner) Timeout() time.Duration {
	return r.timeout
}

// Run executes adb with args using the default timeout
func (r *Runner) Run(ctx context.Context, args ...string) (string, error) {
	return r.RunTimeout(ctx, r.timeout, args...)
}

// RunTimeout executes adb with args, killing the child when timeout expires.
// A timeout <= 0 waits for the child to exit on its own.
func (r *Runner) RunTimeout(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	path, err := r.executable()
	if err != nil {
		return "", err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := newCommand(ctx, path, args)

	// adb interleaves diagnostics into either stream, so both share one buffer
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	start := time.Now()
	runErr := cmd.Run()
	output := buf.String()
	elapsed := time.Since(start)

	if runErr == nil {
		r.log.Debug().Strs("args", args).Dur("duration", elapsed).Int("exit_code", 0).Msg("adb command finished")
		return output, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			r.log.Warn().Strs("args", args).Dur("timeout", timeout).Msg("adb command timed out, child killed")
			return output, &TimeoutError{Args: copyArgs(args), Timeout: timeout, Output: output}
		}
		return output, ctxErr
	}

	// a forked daemon kept the pipe open past waitDelay; the tool itself
	// exited cleanly
	if errors.Is(runErr, exec.ErrWaitDelay) && cmd.ProcessState != nil && cmd.ProcessState.Success() {
		r.log.Debug().Strs("args", args).Dur("duration", elapsed).Int("exit_code", 0).Msg("adb command finished, output pipe held by a child")
		return output, nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		code := exitErr.ExitCode()
		r.log.Debug().Strs("args", args).Dur("duration", elapsed).Int("exit_code", code).Str("output", strings.TrimSpace(output)).Msg("adb command failed")
		return output, &CommandFailure{Args: copyArgs(args), ExitCode: code, Output: output}
	}

	// The process never started: wrong format, no exec permission, ...
	return output, &ConfigurationError{Path: path, Reason: runErr.Error(), Err: runErr}
}

// Command returns an unstarted *exec.Cmd for streaming consumers such as
// "adb track-devices". The caller owns its lifecycle.
func (r *Runner) Command(ctx context.Context, args ...string) (*exec.Cmd, error) {
	path, err := r.executable()
	if err != nil {
		return nil, err
	}
	return newCommand(ctx, path, args), nil
}

// Path returns the executable path that the next invocation would use
func (r *Runner) Path() string {
	return r.tool.Path()
}

func (r *Runner) executable() (string, error) {
	path := r.tool.Path()
	if path == "" {
		return "", &ConfigurationError{Reason: "no executable path set, configure the adb path"}
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", &ConfigurationError{Path: path, Reason: "file does not exist, configure the adb path", Err: err}
	}
	if info.IsDir() {
		return "", &ConfigurationError{Path: path, Reason: "path is a directory"}
	}
	return path, nil
}

// newCommand creates an exec.Cmd with a clean environment to avoid proxy issues
func newCommand(ctx context.Context, path string, args []string) *exec.Cmd {
	if ctx == nil {
		ctx = context.Background()
	}
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = cleanEnv(os.Environ())
	cmd.WaitDelay = waitDelay
	return cmd
}

var proxyVars = []string{"HTTP_PROXY", "HTTPS_PROXY", "ALL_PROXY", "NO_PROXY", "http_proxy", "https_proxy", "all_proxy", "no_proxy"}

func cleanEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, e := range env {
		isProxy := false
		for _, v := range proxyVars {
			if strings.HasPrefix(e, v+"=") {
				isProxy = true
				break
			}
		}
		if !isProxy {
			out = append(out, e)
		}
	}
	return out
}

func copyArgs(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	return out
}
