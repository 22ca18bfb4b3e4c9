package main

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ========================================
// Structured Logger
// ========================================

// Logger is the process-wide logger. Library packages receive it through
// their constructors.
var Logger zerolog.Logger

var persistentLogger *PersistentLogger

// LogLevel is the minimum level written
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// LogConfig configures InitLogger
type LogConfig struct {
	Level      LogLevel
	Console    bool   // human-readable output on stderr
	File       bool   // JSON lines to FilePath with rotation
	FilePath   string // log file path
	MaxSizeMB  int    // rotate when the file grows past this
	MaxAgeDays int    // delete rotated files older than this
	MaxBackups int    // keep at most this many rotated files
	Compress   bool   // gzip rotated files

	// ConsoleOut overrides stderr, for tests
	ConsoleOut io.Writer
}

// DefaultLogConfig logs to the console only
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      LogLevelInfo,
		Console:    true,
		File:       false,
		MaxSizeMB:  10,
		MaxAgeDays: 7,
		MaxBackups: 5,
		Compress:   true,
	}
}

// PersistentLogConfig adds a rotating file under <configDir>/logs
func PersistentLogConfig(configDir string) LogConfig {
	lc := DefaultLogConfig()
	lc.File = true
	lc.FilePath = filepath.Join(configDir, "logs", "tether.log")
	return lc
}

// ========================================
// PersistentLogger - file rotation and cleanup
// ========================================

// PersistentLogger is an io.Writer that rotates its file by size and prunes
// old rotations
type PersistentLogger struct {
	mu          sync.Mutex
	config      LogConfig
	currentFile *os.File
	currentSize int64
	logDir      string
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewPersistentLogger opens config.FilePath for appending
func NewPersistentLogger(config LogConfig) (*PersistentLogger, error) {
	logDir := filepath.Dir(config.FilePath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	pl := &PersistentLogger{
		config: config,
		logDir: logDir,
		stopCh: make(chan struct{}),
	}

	if err := pl.openFile(); err != nil {
		return nil, err
	}

	go pl.cleanupRoutine()

	return pl, nil
}

// Write implements io.Writer
func (pl *PersistentLogger) Write(p []byte) (n int, err error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.currentFile == nil {
		return 0, os.ErrClosed
	}
	if pl.config.MaxSizeMB > 0 && pl.currentSize+int64(len(p)) > int64(pl.config.MaxSizeMB)*1024*1024 {
		if err := pl.rotate(); err != nil {
			return 0, err
		}
	}

	n, err = pl.currentFile.Write(p)
	pl.currentSize += int64(n)
	return n, err
}

func (pl *PersistentLogger) openFile() error {
	file, err := os.OpenFile(pl.config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	pl.currentFile = file
	pl.currentSize = info.Size()
	return nil
}

// rotatedName is tether_<timestamp>.log
func (pl *PersistentLogger) rotatedName(t time.Time) string {
	base := strings.TrimSuffix(filepath.Base(pl.config.FilePath), filepath.Ext(pl.config.FilePath))
	return filepath.Join(pl.logDir, fmt.Sprintf("%s_%s.log", base, t.Format("2006-01-02_15-04-05.000")))
}

func (pl *PersistentLogger) rotationGlob() string {
	base := strings.TrimSuffix(filepath.Base(pl.config.FilePath), filepath.Ext(pl.config.FilePath))
	return filepath.Join(pl.logDir, base+"_*.log*")
}

func (pl *PersistentLogger) rotate() error {
	if pl.currentFile != nil {
		pl.currentFile.Close()
	}

	rotatedPath := pl.rotatedName(time.Now())
	if err := os.Rename(pl.config.FilePath, rotatedPath); err != nil {
		// keep logging to the same file
		return pl.openFile()
	}

	if pl.config.Compress {
		go compressFile(rotatedPath)
	}

	return pl.openFile()
}

func compressFile(filePath string) {
	src, err := os.Open(filePath)
	if err != nil {
		return
	}
	defer src.Close()

	dst, err := os.Create(filePath + ".gz")
	if err != nil {
		return
	}

	gz := gzip.NewWriter(dst)
	_, copyErr := io.Copy(gz, src)
	closeErr := gz.Close()
	dst.Close()

	if copyErr != nil || closeErr != nil {
		os.Remove(filePath + ".gz")
		return
	}
	os.Remove(filePath)
}

func (pl *PersistentLogger) cleanupRoutine() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	pl.cleanup()

	for {
		select {
		case <-pl.stopCh:
			return
		case <-ticker.C:
			pl.cleanup()
		}
	}
}

// cleanup removes rotated files past MaxAgeDays or beyond MaxBackups
func (pl *PersistentLogger) cleanup() {
	files, err := filepath.Glob(pl.rotationGlob())
	if err != nil {
		return
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var fileInfos []fileInfo

	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		fileInfos = append(fileInfos, fileInfo{path: f, modTime: info.ModTime()})
	}

	sort.Slice(fileInfos, func(i, j int) bool {
		return fileInfos[i].modTime.After(fileInfos[j].modTime)
	})

	now := time.Now()
	for i, fi := range fileInfos {
		if pl.config.MaxAgeDays > 0 && now.Sub(fi.modTime) > time.Duration(pl.config.MaxAgeDays)*24*time.Hour {
			os.Remove(fi.path)
			continue
		}
		if pl.config.MaxBackups > 0 && i >= pl.config.MaxBackups {
			os.Remove(fi.path)
		}
	}
}

// Close stops the cleanup routine and closes the file
func (pl *PersistentLogger) Close() error {
	pl.stopOnce.Do(func() { close(pl.stopCh) })

	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.currentFile != nil {
		err := pl.currentFile.Close()
		pl.currentFile = nil
		return err
	}
	return nil
}

// ========================================
// Initialization
// ========================================

// InitLogger replaces Logger according to config
func InitLogger(config LogConfig) error {
	var writers []io.Writer

	consoleOut := config.ConsoleOut
	if consoleOut == nil {
		// stdout carries command results and the MCP stream
		consoleOut = os.Stderr
	}

	if config.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        consoleOut,
			TimeFormat: "15:04:05",
		})
	}

	if config.File && config.FilePath != "" {
		pl, err := NewPersistentLogger(config)
		if err != nil {
			return err
		}
		CloseLogger()
		persistentLogger = pl
		writers = append(writers, pl)
	}

	if len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        consoleOut,
			TimeFormat: "15:04:05",
		})
	}

	multi := zerolog.MultiLevelWriter(writers...)

	var level zerolog.Level
	switch config.Level {
	case LogLevelDebug:
		level = zerolog.DebugLevel
	case LogLevelInfo:
		level = zerolog.InfoLevel
	case LogLevelWarn:
		level = zerolog.WarnLevel
	case LogLevelError:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	Logger = zerolog.New(multi).
		Level(level).
		With().
		Timestamp().
		Logger()

	return nil
}

// CloseLogger flushes and closes the log file, if any
func CloseLogger() {
	if persistentLogger != nil {
		persistentLogger.Close()
		persistentLogger = nil
	}
}

// ========================================
// Helpers
// ========================================

// LogDebug starts a debug event tagged with module
func LogDebug(module string) *zerolog.Event {
	return Logger.Debug().Str("module", module)
}

// LogInfo starts an info event tagged with module
func LogInfo(module string) *zerolog.Event {
	return Logger.Info().Str("module", module)
}

// LogWarn starts a warn event tagged with module
func LogWarn(module string) *zerolog.Event {
	return Logger.Warn().Str("module", module)
}

// LogError starts an error event tagged with module
func LogError(module string) *zerolog.Event {
	return Logger.Error().Str("module", module)
}

func addFields(event *zerolog.Event, fields map[string]interface{}) *zerolog.Event {
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			event.Str(k, val)
		case int:
			event.Int(k, val)
		case int64:
			event.Int64(k, val)
		case float64:
			event.Float64(k, val)
		case bool:
			event.Bool(k, val)
		case time.Duration:
			event.Dur(k, val)
		case error:
			event.AnErr(k, val)
		default:
			event.Interface(k, val)
		}
	}
	return event
}

// ========================================
// User actions
// ========================================

// UserAction names a user-initiated operation
type UserAction string

const (
	ActionDeviceRefresh    UserAction = "device_refresh"
	ActionDeviceConnect    UserAction = "device_connect"
	ActionDeviceDisconnect UserAction = "device_disconnect"
	ActionDeviceReboot     UserAction = "device_reboot"
	ActionAppInstall       UserAction = "app_install"
	ActionAppUninstall     UserAction = "app_uninstall"
	ActionAppList          UserAction = "app_list"
	ActionScreenshot       UserAction = "screenshot"
	ActionShellOpen        UserAction = "shell_open"
	ActionLogcatOpen       UserAction = "logcat_open"
	ActionSettingsChange   UserAction = "settings_change"
)

// LogUserAction records a user operation with optional details
func LogUserAction(action UserAction, deviceID string, details map[string]interface{}) {
	event := Logger.Info().
		Str("category", "user_interaction").
		Str("action", string(action)).
		Str("device_id", deviceID)

	addFields(event, details).Msg("User action")
}

// ========================================
// Application state
// ========================================

// AppState is a lifecycle stage
type AppState string

const (
	StateStarting     AppState = "starting"
	StateReady        AppState = "ready"
	StateShuttingDown AppState = "shutting_down"
	StateStopped      AppState = "stopped"
)

// LogAppState records a lifecycle transition
func LogAppState(state AppState, details map[string]interface{}) {
	event := Logger.Info().
		Str("category", "app_state").
		Str("state", string(state))

	addFields(event, details).Msg("App state changed")
}

// LogErrorWithContext records err with structured context
func LogErrorWithContext(module string, err error, context map[string]interface{}) {
	event := Logger.Error().
		Str("module", module).
		Err(err)

	addFields(event, context).Msg("Error occurred")
}

// ========================================
// Operation timing
// ========================================

// OperationTimer measures one operation and logs its duration
type OperationTimer struct {
	module    string
	operation string
	startTime time.Time
	details   map[string]interface{}
}

// StartOperation starts timing
func StartOperation(module, operation string) *OperationTimer {
	return &OperationTimer{
		module:    module,
		operation: operation,
		startTime: time.Now(),
		details:   make(map[string]interface{}),
	}
}

// AddDetail attaches a field to the final log entry
func (t *OperationTimer) AddDetail(key string, value interface{}) *OperationTimer {
	t.details[key] = value
	return t
}

// End logs a successful completion
func (t *OperationTimer) End() {
	duration := time.Since(t.startTime)

	event := Logger.Info().
		Str("module", t.module).
		Str("category", "performance").
		Str("operation", t.operation).
		Dur("duration", duration).
		Int64("duration_ms", duration.Milliseconds())

	addFields(event, t.details).Msg("Operation completed")
}

// EndWithError logs a failure
func (t *OperationTimer) EndWithError(err error) {
	duration := time.Since(t.startTime)

	event := Logger.Error().
		Str("module", t.module).
		Str("category", "performance").
		Str("operation", t.operation).
		Dur("duration", duration).
		Int64("duration_ms", duration.Milliseconds()).
		Err(err)

	addFields(event, t.details).Msg("Operation failed")
}

// Finish calls End or EndWithError depending on err
func (t *OperationTimer) Finish(err error) {
	if err != nil {
		t.EndWithError(err)
		return
	}
	t.End()
}

// ========================================
// Log files
// ========================================

// GetLogFilePath returns the active log file, or "" when file logging is off
func GetLogFilePath() string {
	if persistentLogger != nil {
		return persistentLogger.config.FilePath
	}
	return ""
}

// ReadRecentLogs returns the last n lines of the active log file
func ReadRecentLogs(lines int) ([]string, error) {
	if persistentLogger == nil {
		return nil, fmt.Errorf("file logging is not enabled (use -log-file)")
	}
	return tailFile(persistentLogger.config.FilePath, lines)
}

// tailFile returns the last n lines of path
func tailFile(path string, lines int) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimRight(string(content), "\n")
	if trimmed == "" {
		return []string{}, nil
	}
	allLines := strings.Split(trimmed, "\n")
	if lines <= 0 || len(allLines) <= lines {
		return allLines, nil
	}

	return allLines[len(allLines)-lines:], nil
}

func init() {
	_ = InitLogger(DefaultLogConfig())
}
