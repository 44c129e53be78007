// pkg/logging/logging.go - timestamped, structured logging for get.
//
// A single process-wide logger writes human readable lines to the console
// and, once Init has been called, JSON events to <LogDir>/<timestamp>/events.jsonl
// for later inspection. Callers use the package-level Info/Debug/Warn/Error
// functions with alternating key/value pairs.

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/windowsadmins/get/pkg/config"
)

// LogLevel represents the severity of the log message.
type LogLevel int

const (
	// Define log levels.
	LevelError LogLevel = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// String returns the string representation of the LogLevel.
func (ll LogLevel) String() string {
	switch ll {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

func (ll LogLevel) logrus() logrus.Level {
	switch ll {
	case LevelError:
		return logrus.ErrorLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelDebug:
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

// ParseLevel maps a configured level name to a LogLevel. The legacy
// verbosity names "verbose" and "minimal" are accepted as DEBUG and INFO.
func ParseLevel(name string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "ERROR":
		return LevelError
	case "WARN", "WARNING":
		return LevelWarn
	case "DEBUG", "VERBOSE":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// LoggerConfig holds configuration for the logger
type LoggerConfig struct {
	BaseDir       string   // Base logging directory; empty disables the events file
	RetentionDays int      // Age after which session directories are pruned
	Level         LogLevel // Minimum level written
	SessionID     string   // Unique session identifier
	Component     string   // Component/module name
	EnableConsole bool     // Enable console output
}

// Logger wraps a console logger and an optional JSON events logger.
type Logger struct {
	mu         sync.Mutex
	console    *logrus.Logger
	events     *logrus.Logger
	eventsFile *os.File
	config     LoggerConfig
	logDir     string
}

// singleton instance and sync.Once for thread-safe initialization
var (
	instance = newConsoleLogger(LevelInfo)
	once     sync.Once
)

func newConsoleLogger(level LogLevel) *Logger {
	console := logrus.New()
	console.SetOutput(os.Stderr)
	console.SetLevel(level.logrus())
	console.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return &Logger{
		console: console,
		config:  LoggerConfig{Level: level, Component: "get", EnableConsole: true},
	}
}

// Init initializes the singleton Logger based on the provided configuration.
// Only the first call has an effect.
func Init(cfg *config.Configuration) error {
	return InitWithConfig(LoggerConfig{
		BaseDir:       cfg.LogDir,
		RetentionDays: cfg.LogRetentionDays,
		Level:         ParseLevel(cfg.LogLevel),
		SessionID:     generateSessionID(),
		Component:     "get",
		EnableConsole: true,
	})
}

// InitWithConfig initializes the logger with explicit LoggerConfig
func InitWithConfig(logCfg LoggerConfig) error {
	var initErr error
	once.Do(func() {
		var l *Logger
		l, initErr = newLoggerWithConfig(logCfg)
		if initErr == nil {
			instance = l
		}
	})
	return initErr
}

// generateSessionID creates a unique session identifier
func generateSessionID() string {
	return fmt.Sprintf("get-%d-%s", time.Now().Unix(),
		time.Now().Format("2006-01-02-150405"))
}

func newLoggerWithConfig(cfg LoggerConfig) (*Logger, error) {
	l := newConsoleLogger(cfg.Level)
	l.config = cfg
	if !cfg.EnableConsole {
		l.console.SetOutput(io.Discard)
	}
	if cfg.BaseDir == "" {
		return l, nil
	}

	logDir := filepath.Join(cfg.BaseDir, time.Now().Format(sessionDirFormat))
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create timestamped log directory %s: %w", logDir, err)
	}
	f, err := os.OpenFile(filepath.Join(logDir, "events.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open events log file: %w", err)
	}

	events := logrus.New()
	events.SetOutput(f)
	events.SetLevel(logrus.DebugLevel)
	events.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})

	l.events = events
	l.eventsFile = f
	l.logDir = logDir

	if _, err := PruneSessions(cfg.BaseDir, cfg.RetentionDays, time.Now()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to prune old logs: %v\n", err)
	}
	return l, nil
}

// fields converts alternating key/value pairs to logrus fields. A trailing
// key without a value is kept under "extra".
func fields(keyValues []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i < len(keyValues); i += 2 {
		if i+1 < len(keyValues) {
			f[fmt.Sprintf("%v", keyValues[i])] = keyValues[i+1]
		} else {
			f["extra"] = keyValues[i]
		}
	}
	return f
}

// logMessage is the core logging method that writes to all configured outputs
func (l *Logger) logMessage(level LogLevel, message string, keyValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f := fields(keyValues)
	l.console.WithFields(f).Log(level.logrus(), message)
	if l.events != nil && level <= l.config.Level {
		f["session_id"] = l.config.SessionID
		f["component"] = l.config.Component
		l.events.WithFields(f).Log(level.logrus(), message)
	}
}

// Info logs informational messages.
func Info(message string, keyValues ...interface{}) {
	instance.logMessage(LevelInfo, message, keyValues...)
}

// Debug logs debug messages.
func Debug(message string, keyValues ...interface{}) {
	instance.logMessage(LevelDebug, message, keyValues...)
}

// Warn logs warning messages.
func Warn(message string, keyValues ...interface{}) {
	instance.logMessage(LevelWarn, message, keyValues...)
}

// Error logs error messages.
func Error(message string, keyValues ...interface{}) {
	instance.logMessage(LevelError, message, keyValues...)
}

// SetOutput changes the console output destination.
func SetOutput(w io.Writer) {
	instance.mu.Lock()
	defer instance.mu.Unlock()
	instance.console.SetOutput(w)
}

// SetLevel changes the minimum level written to the console and events file.
func SetLevel(level LogLevel) {
	instance.mu.Lock()
	defer instance.mu.Unlock()
	instance.config.Level = level
	instance.console.SetLevel(level.logrus())
}

// GetCurrentLogDir returns the timestamped log directory of this session,
// or "" when file logging is off.
func GetCurrentLogDir() string {
	instance.mu.Lock()
	defer instance.mu.Unlock()
	return instance.logDir
}

// CloseLogger closes the events file if it's open.
func CloseLogger() {
	instance.mu.Lock()
	defer instance.mu.Unlock()

	if instance.eventsFile != nil {
		if err := instance.eventsFile.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close events log file: %v\n", err)
		}
		instance.eventsFile = nil
		instance.events = nil
	}
}
