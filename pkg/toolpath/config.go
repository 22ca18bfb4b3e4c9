package toolpath

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"Tether/pkg/runner"
)

// SettingsKey is the persisted configuration key holding the tool path
const SettingsKey = "adbPath"

// Source records how a Resolution was obtained
type Source string

const (
	SourceStored   Source = "stored"
	SourceManual   Source = "manual"
	SourceKnown    Source = "known-location"
	SourceLookup   Source = "lookup"
	SourceDefault  Source = "default"
	SourceOverride Source = "override"
)

// Resolution is one resolved executable path. Found is false for the
// unverified default placeholder.
type Resolution struct {
	Path   string `json:"path"`
	Found  bool   `json:"found"`
	Source Source `json:"source"`
}

// Store persists the configured path between runs
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// Options for creating a Config
type Options struct {
	Store   Store
	Logger  *zerolog.Logger
	Env     *Env
	Lookup  LookupFunc
	Timeout time.Duration // bounds the "version" validation call
}

// Config is the process-wide ToolConfig. Reads are lock-free; writers
// replace the whole Resolution.
type Config struct {
	current atomic.Pointer[Resolution]

	// serializes Configure so a slow invalid candidate cannot overwrite a
	// later valid one
	writeMu sync.Mutex

	store   Store
	env     Env
	lookup  LookupFunc
	timeout time.Duration
	log     zerolog.Logger
}

// New creates a Config holding the unverified default path
func New(opts Options) *Config {
	c := &Config{
		store:   opts.Store,
		lookup:  opts.Lookup,
		timeout: opts.Timeout,
		log:     zerolog.Nop(),
	}
	if opts.Env != nil {
		c.env = *opts.Env
	} else {
		c.env = SystemEnv()
	}
	if c.env.Exists == nil {
		c.env.Exists = fileExists
	}
	if c.lookup == nil {
		c.lookup = SystemLookup
	}
	if c.timeout <= 0 {
		c.timeout = runner.DefaultTimeout
	}
	if opts.Logger != nil {
		c.log = opts.Logger.With().Str("module", "toolpath").Logger()
	}
	c.current.Store(&Resolution{Path: DefaultPath, Source: SourceDefault})
	return c
}

// Path implements runner.PathSource
func (c *Config) Path() string {
	return c.current.Load().Path
}

// Current returns the active Resolution
func (c *Config) Current() Resolution {
	return *c.current.Load()
}

// Load seeds the config at startup. A persisted path wins over discovery.
func (c *Config) Load(ctx context.Context) Resolution {
	if c.store != nil {
		stored, err := c.store.Get(SettingsKey)
		if err != nil {
			c.log.Warn().Err(err).Msg("Failed to read stored adb path, falling back to discovery")
		} else if stored = strings.TrimSpace(stored); stored != "" {
			res := Resolution{Path: stored, Found: c.env.Exists(stored), Source: SourceStored}
			c.current.Store(&res)
			c.log.Info().Str("path", res.Path).Bool("found", res.Found).Msg("Using stored adb path")
			return res
		}
	}
	return c.Resolve(ctx)
}

// Use installs path without validation, for a command-line or environment
// override. It is not persisted.
func (c *Config) Use(path string) Resolution {
	res := Resolution{Path: path, Found: c.env.Exists(path), Source: SourceOverride}
	c.current.Store(&res)
	return res
}

// Resolve runs discovery and installs the result. It never fails: when
// nothing is found the default placeholder is installed with Found false.
func (c *Config) Resolve(ctx context.Context) Resolution {
	res := c.discover(ctx)
	c.current.Store(&res)

	event := c.log.Info()
	if !res.Found {
		event = c.log.Warn()
	}
	event.Str("path", res.Path).Str("source", string(res.Source)).Bool("found", res.Found).Msg("Resolved adb path")

	if res.Found && c.store != nil {
		if err := c.store.Set(SettingsKey, res.Path); err != nil {
			c.log.Warn().Err(err).Msg("Failed to persist discovered adb path")
		}
	}
	return res
}

func (c *Config) discover(ctx context.Context) Resolution {
	for _, candidate := range Candidates(c.env) {
		if c.env.Exists(candidate) {
			return Resolution{Path: candidate, Found: true, Source: SourceKnown}
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if found, err := c.lookup(ctx); err == nil && found != "" {
		return Resolution{Path: found, Found: true, Source: SourceLookup}
	} else if err != nil {
		c.log.Debug().Err(err).Msg("adb lookup helper failed")
	}

	return Resolution{Path: DefaultPath, Found: false, Source: SourceDefault}
}

// Configure validates path by running "<path> version" and commits it only
// on a clean exit. On failure the previous configuration is left in place.
func (c *Config) Configure(ctx context.Context, path string) (Resolution, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return c.Current(), &runner.ConfigurationError{Reason: "path is empty"}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.validate(ctx, path); err != nil {
		c.log.Warn().Str("path", path).Err(err).Msg("Rejected adb path")
		return c.Current(), err
	}

	res := Resolution{Path: path, Found: true, Source: SourceManual}
	c.current.Store(&res)
	c.log.Info().Str("path", path).Msg("Configured adb path")

	if c.store != nil {
		if err := c.store.Set(SettingsKey, path); err != nil {
			return res, fmt.Errorf("adb path applied but not saved: %w", err)
		}
	}
	return res, nil
}

func (c *Config) validate(ctx context.Context, path string) error {
	probe := runner.New(runner.Config{Tool: runner.StaticPath(path), Timeout: c.timeout})
	_, err := probe.Run(ctx, "version")
	if err == nil {
		return nil
	}

	var cfgErr *runner.ConfigurationError
	if errors.As(err, &cfgErr) {
		return err
	}
	var failure *runner.CommandFailure
	if errors.As(err, &failure) {
		return &runner.ConfigurationError{
			Path:   path,
			Reason: fmt.Sprintf("version check exited with code %d, not an adb executable", failure.ExitCode),
			Err:    err,
		}
	}
	return &runner.ConfigurationError{Path: path, Reason: "version check did not complete", Err: err}
}
