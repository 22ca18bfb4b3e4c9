package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"Tether/pkg/runner"
	"Tether/pkg/session"
	"Tether/pkg/settings"
)

// envPrefix is the environment variable prefix, e.g. TETHER_ADB_PATH
const envPrefix = "TETHER"

// Config holds the runtime configuration. Values are layered:
// DefaultConfig, then TETHER_* environment variables, then flags.
type Config struct {
	AdbPath         string        `envconfig:"ADB_PATH"`
	ConfigDir       string        `envconfig:"CONFIG_DIR"`
	SettingsBackend string        `envconfig:"SETTINGS_BACKEND"`
	Timeout         time.Duration `envconfig:"TIMEOUT"`
	EnrichWorkers   int           `envconfig:"ENRICH_WORKERS"`
	SettleDelay     time.Duration `envconfig:"SETTLE_DELAY"`
	LogLevel        string        `envconfig:"LOG_LEVEL"`
	LogFile         bool          `envconfig:"LOG_FILE"`
	JSON            bool          `envconfig:"JSON"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() Config {
	return Config{
		ConfigDir:       settings.DefaultConfigDir(),
		SettingsBackend: settings.BackendJSON,
		Timeout:         runner.DefaultTimeout,
		EnrichWorkers:   session.DefaultEnrichWorkers,
		SettleDelay:     session.DefaultSettleDelay,
		LogLevel:        "warn",
	}
}

// LoadConfig resolves the configuration for args (without the program
// name) and returns the remaining positional arguments.
func LoadConfig(args []string, output io.Writer) (Config, []string, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return cfg, nil, fmt.Errorf("failed to read %s_* environment: %w", envPrefix, err)
	}

	fs := flag.NewFlagSet("tether", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() { printUsage(output, fs) }

	fs.StringVar(&cfg.AdbPath, "adb", cfg.AdbPath, "path to the adb executable (overrides the saved path)")
	fs.StringVar(&cfg.ConfigDir, "config-dir", cfg.ConfigDir, "directory holding settings and logs")
	fs.StringVar(&cfg.SettingsBackend, "settings", cfg.SettingsBackend, "settings backend: json or sqlite")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "timeout for a single adb command")
	fs.IntVar(&cfg.EnrichWorkers, "workers", cfg.EnrichWorkers, "concurrent device property queries during refresh")
	fs.DurationVar(&cfg.SettleDelay, "settle", cfg.SettleDelay, "wait after connect before returning")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	fs.BoolVar(&cfg.LogFile, "log-file", cfg.LogFile, "also write logs to <config-dir>/logs")
	fs.BoolVar(&cfg.JSON, "json", cfg.JSON, "print results as JSON")

	if err := fs.Parse(args); err != nil {
		return cfg, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}
	return cfg, fs.Args(), nil
}

// Validate rejects values the pipeline cannot run with
func (c Config) Validate() error {
	switch c.SettingsBackend {
	case settings.BackendJSON, settings.BackendSQLite:
	default:
		return fmt.Errorf("invalid settings backend %q", c.SettingsBackend)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.EnrichWorkers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.EnrichWorkers)
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle delay cannot be negative")
	}
	if _, ok := parseLogLevel(c.LogLevel); !ok {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return nil
}

// LogConfig derives the logger configuration
func (c Config) LogConfig() LogConfig {
	var lc LogConfig
	if c.LogFile {
		lc = PersistentLogConfig(c.ConfigDir)
	} else {
		lc = DefaultLogConfig()
	}
	lc.Level, _ = parseLogLevel(c.LogLevel)
	return lc
}

func parseLogLevel(s string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, true
	case "info", "":
		return LogLevelInfo, true
	case "warn", "warning":
		return LogLevelWarn, true
	case "error":
		return LogLevelError, true
	}
	return LogLevelInfo, false
}
