// Package monitor listens to "adb track-devices" and triggers a device
// refresh whenever the adb server reports an attach, detach or state change.
package monitor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"Tether/pkg/parser"
	"Tether/pkg/types"
)

const (
	DefaultMinInterval = time.Second
	DefaultMaxBackoff  = 30 * time.Second
)

// CommandSource builds the long-running track-devices process.
// *runner.Runner implements it.
type CommandSource interface {
	Command(ctx context.Context, args ...string) (*exec.Cmd, error)
}

// Config for creating a Monitor
type Config struct {
	Source CommandSource

	// Refresh is called after a change frame, at most once per MinInterval.
	// Bursts of frames collapse into one call.
	Refresh func(ctx context.Context)

	// OnFrame, if set, receives the raw device list carried by every frame
	OnFrame func(devices []types.Device)

	MinInterval time.Duration
	MaxBackoff  time.Duration
	Logger      *zerolog.Logger
}

// Monitor owns one track-devices stream, restarting it with exponential
// backoff when it exits.
type Monitor struct {
	cfg Config
	log zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	trigger chan struct{}
}

// New creates a Monitor
func New(cfg Config) *Monitor {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	m := &Monitor{cfg: cfg, log: zerolog.Nop(), trigger: make(chan struct{}, 1)}
	if cfg.Logger != nil {
		m.log = cfg.Logger.With().Str("module", "monitor").Logger()
	}
	return m
}

// Start launches the monitor. A running monitor is restarted.
func (m *Monitor) Start(ctx context.Context) {
	m.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); m.run(ctx) }()
	go func() { defer wg.Done(); m.refreshLoop(ctx) }()

	done := m.done
	go func() { wg.Wait(); close(done) }()
}

// Stop terminates the stream and waits for the monitor goroutines to exit
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the monitor is started
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

func (m *Monitor) run(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = m.cfg.MaxBackoff
	b.MaxElapsedTime = 0

	for {
		frames, err := m.stream(ctx)
		if ctx.Err() != nil {
			return
		}
		if frames > 0 {
			b.Reset()
		}

		wait := b.NextBackOff()
		m.log.Warn().Err(err).Int("frames", frames).Dur("retry_in", wait).Msg("Device tracker stopped, restarting")

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// stream runs one track-devices process until it exits, returning the
// number of frames read
func (m *Monitor) stream(ctx context.Context) (int, error) {
	cmd, err := m.cfg.Source.Command(ctx, "track-devices")
	if err != nil {
		return 0, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("failed to create pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start track-devices: %w", err)
	}
	m.log.Info().Msg("Device tracker started")

	frames, readErr := m.consume(stdout)
	if readErr != nil && readErr != io.EOF {
		// malformed stream, the process may still be alive
		_ = cmd.Process.Kill()
	}
	waitErr := cmd.Wait()
	if readErr != nil && readErr != io.EOF {
		return frames, readErr
	}
	if waitErr != nil {
		return frames, waitErr
	}
	return frames, io.EOF
}

func (m *Monitor) consume(r io.Reader) (int, error) {
	br := bufio.NewReader(r)
	frames := 0
	for {
		payload, err := ReadFrame(br)
		if err != nil {
			return frames, err
		}
		frames++
		devices := parser.ParseDevices(payload)
		m.log.Debug().Int("devices", len(devices)).Msg("Device list changed")
		if m.cfg.OnFrame != nil {
			m.cfg.OnFrame(devices)
		}
		m.notifyChange()
	}
}

func (m *Monitor) notifyChange() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

func (m *Monitor) refreshLoop(ctx context.Context) {
	limiter := rate.NewLimiter(rate.Every(m.cfg.MinInterval), 1)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.trigger:
		}
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if m.cfg.Refresh != nil {
			m.cfg.Refresh(ctx)
		}
	}
}

// ReadFrame reads one track-devices message: four hex digits giving the
// payload length, then the payload (the plain "serial\tstate" listing).
func ReadFrame(r io.Reader) (string, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return "", err
	}
	n, err := strconv.ParseUint(string(header[:]), 16, 16)
	if err != nil {
		return "", fmt.Errorf("bad frame header %q: %w", header[:], err)
	}
	if n == 0 {
		return "", nil
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return "", err
	}
	return string(payload), nil
}
