// Package session orchestrates adb operations against connected devices and
// publishes the resulting state (device snapshot, loading flag, installed
// packages, notifications) to subscribers.
package session

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"Tether/pkg/parser"
	"Tether/pkg/types"
)

const (
	DefaultEnrichWorkers = 4
	DefaultSettleDelay   = time.Second
	DefaultRemoteDir     = "/sdcard"

	propModel   = "ro.product.model"
	propProduct = "ro.product.name"
)

// Executor runs one adb invocation. *runner.Runner implements it.
type Executor interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// Options for creating a Manager
type Options struct {
	Logger *zerolog.Logger

	// EnrichWorkers bounds concurrent getprop queries during refresh.
	// 1 queries devices one after another.
	EnrichWorkers int

	// SettleDelay is waited after "connect" so the server registers the device
	SettleDelay time.Duration

	TempDir   string // local screenshot directory
	RemoteDir string // on-device scratch directory
	Opener    Opener

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Manager is the device session. All methods are safe for concurrent use;
// each blocks until its adb work completes.
type Manager struct {
	exec Executor
	log  zerolog.Logger
	opts Options

	mu      sync.Mutex
	devices []types.Device
	apps    []string

	loadMu   sync.Mutex
	inflight int

	loadPubMu   sync.Mutex
	lastLoading bool

	subMu   sync.RWMutex
	subs    map[int]func(types.Event)
	nextSub int

	stampMu   sync.Mutex
	lastStamp int64
}

// New creates a Manager
func New(exec Executor, opts Options) *Manager {
	if opts.EnrichWorkers <= 0 {
		opts.EnrichWorkers = DefaultEnrichWorkers
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.RemoteDir == "" {
		opts.RemoteDir = DefaultRemoteDir
	}
	if opts.Opener == nil {
		opts.Opener = OpenFile
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	if opts.sleep == nil {
		opts.sleep = sleepContext
	}

	m := &Manager{
		exec:    exec,
		log:     zerolog.Nop(),
		opts:    opts,
		devices: []types.Device{},
		apps:    []string{},
		subs:    make(map[int]func(types.Event)),
	}
	if opts.Logger != nil {
		m.log = opts.Logger.With().Str("module", "session").Logger()
	}
	return m
}

// ========================================
// Observers
// ========================================

// Subscribe registers fn for every state change. Events are delivered on the
// goroutine that caused them, after the state is updated. fn must not start
// Manager operations itself. The returned function removes the subscription.
func (m *Manager) Subscribe(fn func(types.Event)) func() {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

func (m *Manager) publish(ev types.Event) {
	m.subMu.RLock()
	fns := make([]func(types.Event), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (m *Manager) notify(level types.NotificationLevel, title, message string) {
	n := &types.Notification{
		ID:      uuid.New().String(),
		Level:   level,
		Title:   title,
		Message: message,
		Time:    m.opts.now(),
	}
	m.publish(types.Event{Type: types.EventNotification, Notification: n})
}

// fail raises an error notification and returns err to the caller
func (m *Manager) fail(title string, err error) error {
	m.log.Error().Err(err).Str("title", title).Msg("Operation failed")
	m.notify(types.LevelError, title, err.Error())
	return err
}

// Report raises an error notification for a failure outside the manager's
// own operations, such as launching a terminal. It returns err.
func (m *Manager) Report(title string, err error) error {
	return m.fail(title, err)
}

func (m *Manager) succeed(title, message string) {
	m.log.Info().Str("title", title).Msg(message)
	m.notify(types.LevelSuccess, title, message)
}

// ========================================
// Accessors
// ========================================

// Devices returns a copy of the current snapshot
func (m *Manager) Devices() []types.Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Device, len(m.devices))
	copy(out, m.devices)
	return out
}

// InstalledApps returns a copy of the last fetched package list
func (m *Manager) InstalledApps() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.apps))
	copy(out, m.apps)
	return out
}

// Loading reports whether any operation is in flight
func (m *Manager) Loading() bool {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	return m.inflight > 0
}

// begin marks an operation in flight. The returned func must be called once.
func (m *Manager) begin() func() {
	m.loadMu.Lock()
	m.inflight++
	m.loadMu.Unlock()
	m.publishLoading()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.loadMu.Lock()
			m.inflight--
			m.loadMu.Unlock()
			m.publishLoading()
		})
	}
}

// publishLoading sends the current loading flag when it differs from the
// last one sent. loadPubMu is held across the send so observers see the
// transitions in order and the last event always matches Loading().
func (m *Manager) publishLoading() {
	m.loadPubMu.Lock()
	defer m.loadPubMu.Unlock()

	loading := m.Loading()
	if loading == m.lastLoading {
		return
	}
	m.lastLoading = loading
	m.publish(types.Event{Type: types.EventLoadingChanged, Loading: loading})
}

func (m *Manager) setDevices(devices []types.Device) {
	m.mu.Lock()
	m.devices = devices
	m.mu.Unlock()

	out := make([]types.Device, len(devices))
	copy(out, devices)
	m.publish(types.Event{Type: types.EventDevicesChanged, Devices: out})
}

func (m *Manager) setApps(apps []string) {
	m.mu.Lock()
	m.apps = apps
	m.mu.Unlock()

	out := make([]string, len(apps))
	copy(out, apps)
	m.publish(types.Event{Type: types.EventAppsChanged, Apps: out})
}

// attempt runs a command whose failure is expected and irrelevant
// (server already running, scratch file already gone). The error is logged
// at debug level and never propagated.
func (m *Manager) attempt(ctx context.Context, args ...string) {
	if _, err := m.exec.Run(ctx, args...); err != nil {
		m.log.Debug().Err(err).Strs("args", args).Msg("Ignored adb failure")
	}
}

// ========================================
// Device listing
// ========================================

// RefreshDevices re-lists devices, enriches connected ones with model and
// product, and publishes the complete list at once. On failure the previous
// snapshot is kept.
func (m *Manager) RefreshDevices(ctx context.Context) ([]types.Device, error) {
	done := m.begin()
	defer done()

	m.attempt(ctx, "start-server")

	out, err := m.exec.Run(ctx, "devices", "-l")
	if err != nil {
		return m.Devices(), m.fail("Refresh failed", fmt.Errorf("failed to list devices: %w", err))
	}

	devices := parser.ParseDevices(out)
	if err := m.enrich(ctx, devices); err != nil {
		return m.Devices(), m.fail("Refresh failed", err)
	}

	m.setDevices(devices)
	m.log.Debug().Int("count", len(devices)).Msg("Device snapshot replaced")
	return m.Devices(), nil
}

// enrich fills Model and Product in place for devices in the connected
// state and clears them on every other device. A failed or empty query
// leaves the field empty.
func (m *Manager) enrich(ctx context.Context, devices []types.Device) error {
	var g errgroup.Group
	g.SetLimit(m.opts.EnrichWorkers)

	for i := range devices {
		// listing tokens are not trusted; only getprop fills these
		devices[i].Model, devices[i].Product = "", ""
		if !devices[i].IsReady() {
			continue
		}
		d := &devices[i]
		g.Go(func() error {
			if v, ok := m.property(ctx, d.ID, propModel); ok {
				d.Model = v
			}
			if v, ok := m.property(ctx, d.ID, propProduct); ok {
				d.Product = v
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("device enrichment interrupted: %w", err)
	}
	return nil
}

func (m *Manager) property(ctx context.Context, deviceID, prop string) (string, bool) {
	out, err := m.exec.Run(ctx, "-s", deviceID, "shell", "getprop", prop)
	if err != nil {
		m.log.Debug().Err(err).Str("device", deviceID).Str("prop", prop).Msg("getprop failed")
		return "", false
	}
	return parser.ParseProperty(out)
}

// ========================================
// Packages
// ========================================

// InstallApp installs (or reinstalls) a local APK. The device list is not
// refreshed.
func (m *Manager) InstallApp(ctx context.Context, deviceID, localPath string) error {
	if err := ValidateDeviceID(deviceID); err != nil {
		return m.fail("Install failed", err)
	}
	if strings.TrimSpace(localPath) == "" {
		return m.fail("Install failed", &ValidationError{Field: "APK path", Value: localPath, Reason: "cannot be empty"})
	}

	done := m.begin()
	defer done()

	if _, err := m.exec.Run(ctx, "-s", deviceID, "install", "-r", localPath); err != nil {
		return m.fail("Install failed", err)
	}
	m.succeed("Install succeeded", fmt.Sprintf("Installed %s on %s", filepath.Base(localPath), deviceID))
	return nil
}

// UninstallApp removes a package. When a package list was previously
// loaded it is re-fetched before returning.
func (m *Manager) UninstallApp(ctx context.Context, deviceID, packageName string) error {
	if err := ValidateDeviceID(deviceID); err != nil {
		return m.fail("Uninstall failed", err)
	}
	if err := ValidatePackageName(packageName); err != nil {
		return m.fail("Uninstall failed", err)
	}

	done := m.begin()
	defer done()

	if _, err := m.exec.Run(ctx, "-s", deviceID, "uninstall", packageName); err != nil {
		return m.fail("Uninstall failed", err)
	}
	m.succeed("Uninstall succeeded", fmt.Sprintf("Removed %s from %s", packageName, deviceID))

	m.mu.Lock()
	hadApps := len(m.apps) > 0
	m.mu.Unlock()
	if hadApps {
		// failures are already reported as notifications
		_, _ = m.GetInstalledApps(ctx, deviceID)
	}
	return nil
}

// GetInstalledApps lists packages on the device and replaces the stored
// list. On failure the previous list is kept.
func (m *Manager) GetInstalledApps(ctx context.Context, deviceID string) ([]string, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return m.InstalledApps(), m.fail("Listing apps failed", err)
	}

	done := m.begin()
	defer done()

	out, err := m.exec.Run(ctx, "-s", deviceID, "shell", "pm", "list", "packages")
	if err != nil {
		return m.InstalledApps(), m.fail("Listing apps failed", err)
	}

	apps := parser.ParsePackages(out)
	m.setApps(apps)
	return m.InstalledApps(), nil
}

// ========================================
// Device actions
// ========================================

// TakeScreenshot captures the screen to a scratch file on the device, pulls
// it to TempDir, removes the scratch file and opens the local copy.
// It returns the local path.
func (m *Manager) TakeScreenshot(ctx context.Context, deviceID string) (string, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return "", m.fail("Screenshot failed", err)
	}

	done := m.begin()
	defer done()

	name := fmt.Sprintf("screenshot_%d.png", m.stamp())
	remote := path.Join(m.opts.RemoteDir, name)
	local := filepath.Join(m.opts.TempDir, name)

	if _, err := m.exec.Run(ctx, "-s", deviceID, "shell", "screencap", "-p", remote); err != nil {
		return "", m.fail("Screenshot failed", err)
	}

	_, pullErr := m.exec.Run(ctx, "-s", deviceID, "pull", remote, local)
	m.attempt(ctx, "-s", deviceID, "shell", "rm", remote)
	if pullErr != nil {
		return "", m.fail("Screenshot failed", pullErr)
	}

	if err := m.opts.Opener(local); err != nil {
		return local, m.fail("Screenshot saved but could not be opened", fmt.Errorf("open %s: %w", local, err))
	}
	m.log.Info().Str("device", deviceID).Str("path", local).Msg("Screenshot saved")
	return local, nil
}

// stamp returns a millisecond timestamp, bumped so that two screenshots in
// the same millisecond never share a file name
func (m *Manager) stamp() int64 {
	m.stampMu.Lock()
	defer m.stampMu.Unlock()
	ts := m.opts.now().UnixMilli()
	if ts <= m.lastStamp {
		ts = m.lastStamp + 1
	}
	m.lastStamp = ts
	return ts
}

// RebootDevice asks the device to reboot. It does not wait for it to come back.
func (m *Manager) RebootDevice(ctx context.Context, deviceID string) error {
	if err := ValidateDeviceID(deviceID); err != nil {
		return m.fail("Reboot failed", err)
	}

	done := m.begin()
	defer done()

	if _, err := m.exec.Run(ctx, "-s", deviceID, "reboot"); err != nil {
		return m.fail("Reboot failed", err)
	}
	m.succeed("Reboot requested", fmt.Sprintf("%s is rebooting", deviceID))
	return nil
}

// ========================================
// Network attachment
// ========================================

// ConnectToDevice attaches a device over TCP. The settle delay is waited
// before returning so an immediate refresh sees the device. The returned
// text is the tool's trimmed output.
func (m *Manager) ConnectToDevice(ctx context.Context, address string) (string, error) {
	address = strings.TrimSpace(address)
	if err := ValidateAddress(address); err != nil {
		return "", m.fail("Connect failed", err)
	}

	done := m.begin()
	defer done()

	out, err := m.exec.Run(ctx, "connect", address)
	if err != nil {
		return "", m.fail("Connect failed", err)
	}

	if err := m.opts.sleep(ctx, m.opts.SettleDelay); err != nil {
		return strings.TrimSpace(out), err
	}
	return strings.TrimSpace(out), nil
}

// DisconnectDevice detaches a network device. No settle delay.
func (m *Manager) DisconnectDevice(ctx context.Context, address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", m.fail("Disconnect failed", &ValidationError{Field: "device address", Value: address, Reason: "cannot be empty"})
	}

	done := m.begin()
	defer done()

	out, err := m.exec.Run(ctx, "disconnect", address)
	if err != nil {
		return "", m.fail("Disconnect failed", err)
	}
	return strings.TrimSpace(out), nil
}

// ToolVersion returns the trimmed "adb version" banner
func (m *Manager) ToolVersion(ctx context.Context) (string, error) {
	done := m.begin()
	defer done()

	out, err := m.exec.Run(ctx, "version")
	if err != nil {
		return "", m.fail("Version check failed", err)
	}
	return strings.TrimSpace(out), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
