package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"Tether/pkg/monitor"
	"Tether/pkg/runner"
	"Tether/pkg/session"
	"Tether/pkg/settings"
	"Tether/pkg/toolpath"
	"Tether/pkg/types"
)

// Version is set at build time with -ldflags "-X main.Version=..."
var Version = "dev"

// App wires the adb tool configuration, the session manager and the
// background watchers together. The CLI and the MCP bridge both drive it.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    Config

	store   settings.Store
	tool    *toolpath.Config
	runner  *runner.Runner
	session *session.Manager

	// Device monitor
	monitor   *monitor.Monitor
	monitorMu sync.Mutex

	// External edits to the settings store
	watcher *settings.Watcher

	unsubscribe func()

	// MCP mode: stdout belongs to the protocol, nothing is opened on the desktop
	mcpMode bool

	// launch starts a detached terminal process
	launch func(name string, args ...string) error

	version string
}

// NewApp creates an App from a resolved configuration
func NewApp(cfg Config, mcpMode bool) (*App, error) {
	store, err := settings.Open(settings.Config{
		Backend:   cfg.SettingsBackend,
		ConfigDir: cfg.ConfigDir,
		Logger:    &Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open settings: %w", err)
	}

	tool := toolpath.New(toolpath.Options{
		Store:   store,
		Logger:  &Logger,
		Timeout: cfg.Timeout,
	})

	r := runner.New(runner.Config{
		Tool:    tool,
		Timeout: cfg.Timeout,
		Logger:  &Logger,
	})

	opts := session.Options{
		Logger:        &Logger,
		EnrichWorkers: cfg.EnrichWorkers,
		SettleDelay:   cfg.SettleDelay,
	}
	if mcpMode {
		// screenshots are returned to the client instead of opened
		opts.Opener = func(string) error { return nil }
	}

	return &App{
		cfg:     cfg,
		store:   store,
		tool:    tool,
		runner:  r,
		session: session.New(r, opts),
		mcpMode: mcpMode,
		launch:  startDetached,
		version: Version,
	}, nil
}

// startup resolves the adb path and starts watching the settings store
func (a *App) startup(ctx context.Context) {
	a.ctx, a.cancel = context.WithCancel(ctx)

	LogAppState(StateStarting, map[string]interface{}{
		"version":  a.version,
		"mcp_mode": a.mcpMode,
		"settings": a.store.Path(),
	})

	var res toolpath.Resolution
	if a.cfg.AdbPath != "" {
		res = a.tool.Use(a.cfg.AdbPath)
	} else {
		res = a.tool.Load(a.ctx)
	}
	if !res.Found {
		LogWarn("app").Str("path", res.Path).Msg("adb not found, configure it with 'tether adb-path <path>'")
	}

	a.unsubscribe = a.session.Subscribe(a.onSessionEvent)

	// an explicit override is not replaced by settings edits
	if a.cfg.AdbPath == "" {
		a.watcher = settings.NewWatcher(a.store, toolpath.SettingsKey, a.onAdbPathChanged, Logger)
		if err := a.watcher.Start(); err != nil {
			LogWarn("app").Err(err).Msg("Settings watcher not started")
			a.watcher = nil
		}
	}

	LogAppState(StateReady, map[string]interface{}{
		"adb_path": res.Path,
		"source":   string(res.Source),
	})
}

// Shutdown stops background work and closes the settings store
func (a *App) Shutdown() {
	LogAppState(StateShuttingDown, nil)

	a.StopDeviceMonitor()
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	if a.cancel != nil {
		a.cancel()
	}
	if err := a.store.Close(); err != nil {
		LogWarn("app").Err(err).Msg("Failed to close settings")
	}

	LogAppState(StateStopped, nil)
}

func (a *App) context() context.Context {
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

// GetAppVersion returns the application version
func (a *App) GetAppVersion() string {
	return a.version
}

func (a *App) onSessionEvent(ev types.Event) {
	switch ev.Type {
	case types.EventNotification:
		n := ev.Notification
		Logger.Info().
			Str("category", "notification").
			Str("level", string(n.Level)).
			Str("id", n.ID).
			Str("title", n.Title).
			Msg(n.Message)
	case types.EventDevicesChanged:
		LogDebug("app").Int("count", len(ev.Devices)).Msg("Devices changed")
	case types.EventLoadingChanged:
		LogDebug("app").Bool("loading", ev.Loading).Msg("Loading changed")
	}
}

// onAdbPathChanged applies a path written to the settings store by another
// process
func (a *App) onAdbPathChanged(value string) {
	if value == "" || value == a.tool.Path() {
		return
	}
	LogUserAction(ActionSettingsChange, "", map[string]interface{}{
		"key":   toolpath.SettingsKey,
		"value": value,
	})
	res, err := a.tool.Configure(a.context(), value)
	if err == nil {
		return
	}
	LogErrorWithContext("app", err, map[string]interface{}{
		"path":    value,
		"keeping": res.Path,
	})

	// an unvalidated store value would be installed by Load on the next start
	restore := ""
	if res.Found && res.Source != toolpath.SourceOverride {
		restore = res.Path
	}
	if err := a.store.Set(toolpath.SettingsKey, restore); err != nil {
		LogWarn("app").Err(err).Msg("Failed to restore adb path in settings")
	}
}

// Subscribe forwards session events to fn
func (a *App) Subscribe(fn func(types.Event)) func() {
	return a.session.Subscribe(fn)
}

// ========================================
// Device monitor
// ========================================

// StartDeviceMonitor refreshes the device list whenever the adb server
// reports a change
func (a *App) StartDeviceMonitor() {
	a.monitorMu.Lock()
	defer a.monitorMu.Unlock()

	if a.monitor == nil {
		a.monitor = monitor.New(monitor.Config{
			Source: a.runner,
			Refresh: func(ctx context.Context) {
				// failures are reported as notifications
				_, _ = a.session.RefreshDevices(ctx)
			},
			Logger: &Logger,
		})
	}
	a.monitor.Start(a.context())
}

// StopDeviceMonitor stops the monitor if it is running
func (a *App) StopDeviceMonitor() {
	a.monitorMu.Lock()
	m := a.monitor
	a.monitorMu.Unlock()
	if m != nil {
		m.Stop()
	}
}

// ========================================
// Devices
// ========================================

// Devices returns the last published snapshot
func (a *App) Devices() []types.Device {
	return a.session.Devices()
}

// Loading reports whether an adb operation is in flight
func (a *App) Loading() bool {
	return a.session.Loading()
}

// RefreshDevices re-lists devices
func (a *App) RefreshDevices(ctx context.Context) ([]types.Device, error) {
	timer := StartOperation("device", "refresh_devices")
	devices, err := a.session.RefreshDevices(ctx)
	timer.AddDetail("count", len(devices)).Finish(err)
	return devices, err
}

// ConnectDevice attaches a network device
func (a *App) ConnectDevice(ctx context.Context, address string) (string, error) {
	out, err := a.session.ConnectToDevice(ctx, address)
	LogUserAction(ActionDeviceConnect, "", map[string]interface{}{
		"address": address,
		"success": err == nil,
	})
	return out, err
}

// DisconnectDevice detaches a network device
func (a *App) DisconnectDevice(ctx context.Context, address string) (string, error) {
	out, err := a.session.DisconnectDevice(ctx, address)
	LogUserAction(ActionDeviceDisconnect, "", map[string]interface{}{
		"address": address,
		"success": err == nil,
	})
	return out, err
}

// RebootDevice reboots a device
func (a *App) RebootDevice(ctx context.Context, deviceID string) error {
	err := a.session.RebootDevice(ctx, deviceID)
	LogUserAction(ActionDeviceReboot, deviceID, map[string]interface{}{"success": err == nil})
	return err
}

// TakeScreenshot saves a screenshot locally and returns its path
func (a *App) TakeScreenshot(ctx context.Context, deviceID string) (string, error) {
	timer := StartOperation("device", "screenshot").AddDetail("device_id", deviceID)
	path, err := a.session.TakeScreenshot(ctx, deviceID)
	timer.Finish(err)
	LogUserAction(ActionScreenshot, deviceID, map[string]interface{}{"path": path})
	return path, err
}

// ========================================
// Apps
// ========================================

// ListApps returns the sorted package names installed on the device
func (a *App) ListApps(ctx context.Context, deviceID string) ([]string, error) {
	apps, err := a.session.GetInstalledApps(ctx, deviceID)
	LogUserAction(ActionAppList, deviceID, map[string]interface{}{
		"count":   len(apps),
		"success": err == nil,
	})
	return apps, err
}

// InstalledApps returns the last fetched package list
func (a *App) InstalledApps() []string {
	return a.session.InstalledApps()
}

// InstallApp installs an APK
func (a *App) InstallApp(ctx context.Context, deviceID, apkPath string) error {
	timer := StartOperation("apps", "install").AddDetail("device_id", deviceID).AddDetail("apk", apkPath)
	err := a.session.InstallApp(ctx, deviceID, apkPath)
	timer.Finish(err)
	LogUserAction(ActionAppInstall, deviceID, map[string]interface{}{
		"apk":     apkPath,
		"success": err == nil,
	})
	return err
}

// UninstallApp removes a package
func (a *App) UninstallApp(ctx context.Context, deviceID, packageName string) error {
	err := a.session.UninstallApp(ctx, deviceID, packageName)
	LogUserAction(ActionAppUninstall, deviceID, map[string]interface{}{
		"package": packageName,
		"success": err == nil,
	})
	return err
}

// ========================================
// adb tool
// ========================================

// AdbVersion returns the "adb version" banner
func (a *App) AdbVersion(ctx context.Context) (string, error) {
	return a.session.ToolVersion(ctx)
}

// AdbPath returns the active adb path and how it was resolved
func (a *App) AdbPath() toolpath.Resolution {
	return a.tool.Current()
}

// SetAdbPath validates and saves a new adb path
func (a *App) SetAdbPath(ctx context.Context, path string) (toolpath.Resolution, error) {
	res, err := a.tool.Configure(ctx, path)
	LogUserAction(ActionSettingsChange, "", map[string]interface{}{
		"key":     toolpath.SettingsKey,
		"value":   path,
		"success": err == nil,
	})
	return res, err
}

// printNotification writes a notification as one line, for the watch command
func printNotification(w io.Writer, n *types.Notification) {
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", n.Level, n.Title, n.Message)
}
