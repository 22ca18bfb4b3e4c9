package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"Tether/mcp"
	"Tether/pkg/runner"
	"Tether/pkg/session"
	"Tether/pkg/types"
)

// Exit codes
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// command is one CLI subcommand
type command struct {
	name    string
	args    string // argument synopsis
	help    string
	minArgs int
	maxArgs int
	noApp   bool // runs without resolving adb
	run     func(c *cli, ctx context.Context, args []string) error
}

var commands = []command{
	{name: "devices", help: "List attached devices", run: (*cli).devices},
	{name: "watch", help: "Print the device list whenever it changes", run: (*cli).watch},
	{name: "apps", args: "<device>", help: "List installed packages", minArgs: 1, maxArgs: 1, run: (*cli).apps},
	{name: "install", args: "<device> <apk>", help: "Install or reinstall an APK", minArgs: 2, maxArgs: 2, run: (*cli).install},
	{name: "uninstall", args: "<device> <package>", help: "Remove a package", minArgs: 2, maxArgs: 2, run: (*cli).uninstall},
	{name: "screenshot", args: "<device>", help: "Capture the screen and open it", minArgs: 1, maxArgs: 1, run: (*cli).screenshot},
	{name: "reboot", args: "<device>", help: "Reboot a device", minArgs: 1, maxArgs: 1, run: (*cli).reboot},
	{name: "connect", args: "<host:port>", help: "Attach a device over TCP", minArgs: 1, maxArgs: 1, run: (*cli).connect},
	{name: "disconnect", args: "<host:port>", help: "Detach a network device", minArgs: 1, maxArgs: 1, run: (*cli).disconnect},
	{name: "version", help: "Print the adb version", run: (*cli).version},
	{name: "adb-path", args: "[path]", help: "Show, or validate and save, the adb path", maxArgs: 1, run: (*cli).adbPath},
	{name: "shell", args: "<device>", help: "Open a terminal running adb shell", minArgs: 1, maxArgs: 1, run: (*cli).shell},
	{name: "logcat", args: "<device>", help: "Open a terminal running adb logcat", minArgs: 1, maxArgs: 1, run: (*cli).logcat},
	{name: "mcp", help: "Serve MCP tools over stdio", run: (*cli).mcp},
	{name: "logs", args: "[n]", help: "Print the last n lines of the log file", maxArgs: 1, noApp: true, run: (*cli).logs},
}

func findCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "Usage: tether [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range commands {
		fmt.Fprintf(tw, "  %s %s\t%s\n", c.name, c.args, c.help)
	}
	tw.Flush()
	fmt.Fprintln(w)
	if fs == nil {
		fmt.Fprintln(w, "Run 'tether -h' for the list of flags.")
		return
	}
	fmt.Fprintln(w, "Flags:")
	fs.PrintDefaults()
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Every flag can also be set with a %s_* environment variable, e.g. %s_ADB_PATH.\n", envPrefix, envPrefix)
}

// cli carries the state shared by subcommands
type cli struct {
	app    *App
	cfg    Config
	out    io.Writer
	errOut io.Writer
}

// run executes one CLI invocation and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, rest, err := LoadConfig(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	if len(rest) == 0 {
		printUsage(stderr, nil)
		return exitUsage
	}

	cmd, ok := findCommand(rest[0])
	if !ok {
		fmt.Fprintf(stderr, "Error: unknown command %q\n", rest[0])
		printUsage(stderr, nil)
		return exitUsage
	}
	cmdArgs := rest[1:]
	if len(cmdArgs) < cmd.minArgs || len(cmdArgs) > cmd.maxArgs {
		fmt.Fprintf(stderr, "Usage: tether %s %s\n", cmd.name, cmd.args)
		return exitUsage
	}

	if err := InitLogger(cfg.LogConfig()); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	defer CloseLogger()
	LogDebug("cli").Str("command", cmd.name).Interface("config", cfg).Msg("Starting")

	c := &cli{cfg: cfg, out: stdout, errOut: stderr}
	if !cmd.noApp {
		app, err := NewApp(cfg, cmd.name == "mcp")
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
		app.startup(ctx)
		defer app.Shutdown()
		c.app = app
	}

	if err := cmd.run(c, ctx, cmdArgs); err != nil {
		LogError("cli").Err(err).Str("command", cmd.name).Msg("Command failed")
		fmt.Fprintf(stderr, "Error: %s\n", describeError(err))
		return exitError
	}
	return exitOK
}

// describeError renders err for a terminal user, with the captured tool
// output for command failures
func describeError(err error) string {
	var failure *runner.CommandFailure
	if errors.As(err, &failure) && strings.TrimSpace(failure.Output) != "" {
		return fmt.Sprintf("adb exited with code %d:\n%s", failure.ExitCode, strings.TrimSpace(failure.Output))
	}
	var cfgErr *runner.ConfigurationError
	if errors.As(err, &cfgErr) {
		return err.Error() + " (set it with 'tether adb-path <path>' or -adb)"
	}
	return err.Error()
}

func (c *cli) printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, string(data))
	return nil
}

func (c *cli) printDevices(devices []types.Device) error {
	if c.cfg.JSON {
		return c.printJSON(devices)
	}
	if len(devices) == 0 {
		fmt.Fprintln(c.out, "No devices attached")
		return nil
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tMODEL\tPRODUCT")
	for _, d := range devices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.Status, orDash(d.Model), orDash(d.Product))
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// ========================================
// Commands
// ========================================

func (c *cli) devices(ctx context.Context, _ []string) error {
	devices, err := c.app.RefreshDevices(ctx)
	if err != nil {
		return err
	}
	return c.printDevices(devices)
}

func (c *cli) watch(ctx context.Context, _ []string) error {
	changes := make(chan []types.Device, 1)
	unsubscribe := c.app.Subscribe(func(ev types.Event) {
		switch ev.Type {
		case types.EventDevicesChanged:
			// keep only the newest snapshot
			for {
				select {
				case changes <- ev.Devices:
					return
				default:
				}
				select {
				case <-changes:
				default:
				}
			}
		case types.EventNotification:
			if ev.Notification.Level == types.LevelError {
				printNotification(c.errOut, ev.Notification)
			}
		}
	})
	defer unsubscribe()

	if _, err := c.app.RefreshDevices(ctx); err != nil {
		fmt.Fprintf(c.errOut, "Error: %s\n", describeError(err))
	}
	c.app.StartDeviceMonitor()
	defer c.app.StopDeviceMonitor()

	for {
		select {
		case <-ctx.Done():
			return nil
		case devices := <-changes:
			if !c.cfg.JSON {
				fmt.Fprintln(c.out)
			}
			if err := c.printDevices(devices); err != nil {
				return err
			}
		}
	}
}

func (c *cli) apps(ctx context.Context, args []string) error {
	apps, err := c.app.ListApps(ctx, args[0])
	if err != nil {
		return err
	}
	if c.cfg.JSON {
		return c.printJSON(apps)
	}
	for _, pkg := range apps {
		fmt.Fprintln(c.out, pkg)
	}
	return nil
}

func (c *cli) install(ctx context.Context, args []string) error {
	if err := c.app.InstallApp(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Installed %s on %s\n", args[1], args[0])
	return nil
}

func (c *cli) uninstall(ctx context.Context, args []string) error {
	if err := c.app.UninstallApp(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Removed %s from %s\n", args[1], args[0])
	return nil
}

func (c *cli) screenshot(ctx context.Context, args []string) error {
	path, err := c.app.TakeScreenshot(ctx, args[0])
	if path != "" {
		fmt.Fprintln(c.out, path)
	}
	return err
}

func (c *cli) reboot(ctx context.Context, args []string) error {
	if err := c.app.RebootDevice(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s is rebooting\n", args[0])
	return nil
}

func (c *cli) connect(ctx context.Context, args []string) error {
	out, err := c.app.ConnectDevice(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, out)
	return nil
}

func (c *cli) disconnect(ctx context.Context, args []string) error {
	out, err := c.app.DisconnectDevice(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, out)
	return nil
}

func (c *cli) version(ctx context.Context, _ []string) error {
	banner, err := c.app.AdbVersion(ctx)
	if err != nil {
		return err
	}
	if c.cfg.JSON {
		return c.printJSON(map[string]string{
			"tether": c.app.GetAppVersion(),
			"adb":    banner,
			"path":   c.app.AdbPath().Path,
		})
	}
	fmt.Fprintf(c.out, "tether %s\n%s\n", c.app.GetAppVersion(), banner)
	return nil
}

func (c *cli) adbPath(ctx context.Context, args []string) error {
	res := c.app.AdbPath()
	if len(args) == 1 {
		var err error
		if res, err = c.app.SetAdbPath(ctx, args[0]); err != nil {
			return err
		}
	}
	if c.cfg.JSON {
		return c.printJSON(res)
	}
	status := "found"
	if !res.Found {
		status = "not found"
	}
	fmt.Fprintf(c.out, "%s (%s, %s)\n", res.Path, res.Source, status)
	return nil
}

func (c *cli) shell(_ context.Context, args []string) error {
	return c.app.OpenShell(args[0])
}

func (c *cli) logcat(_ context.Context, args []string) error {
	return c.app.OpenLogcat(args[0])
}

func (c *cli) mcp(ctx context.Context, _ []string) error {
	if _, err := c.app.RefreshDevices(ctx); err != nil {
		LogWarn("mcp").Err(err).Msg("Initial device refresh failed")
	}
	c.app.StartDeviceMonitor()

	server := mcp.NewMCPServer(NewMCPBridge(c.app), &Logger)
	return server.Start(ctx)
}

func (c *cli) logs(_ context.Context, args []string) error {
	n := 50
	if len(args) == 1 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return &session.ValidationError{Field: "line count", Value: args[0], Reason: "must be a positive number"}
		}
		n = v
	}

	path := PersistentLogConfig(c.cfg.ConfigDir).FilePath
	lines, err := tailFile(path, n)
	if err != nil {
		return fmt.Errorf("no log file at %s (run with -log-file to create one): %w", path, err)
	}
	for _, line := range lines {
		fmt.Fprintln(c.out, line)
	}
	return nil
}
