package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

var (
	currentLevel LogLevel
	levelOnce    sync.Once
	levelMu      sync.RWMutex
)

// ParseLevel converts a level name to a LogLevel. Unknown names map to LevelInfo.
func ParseLevel(name string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// initLevel initializes the log level from environment variables
func initLevel() {
	levelOnce.Do(func() {
		levelMu.Lock()
		defer levelMu.Unlock()

		if debug := os.Getenv("DEBUG"); debug != "" {
			switch strings.ToLower(debug) {
			case "1", "true", "yes", "on":
				currentLevel = LevelDebug
				return
			}
		}

		currentLevel = ParseLevel(os.Getenv("LOG_LEVEL"))
	})
}

// SetLevel overrides the level read from the environment.
func SetLevel(level LogLevel) {
	initLevel()
	levelMu.Lock()
	currentLevel = level
	levelMu.Unlock()
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLevel()
	levelMu.RLock()
	defer levelMu.RUnlock()
	return currentLevel
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) {
	if GetLevel() <= LevelDebug {
		log.Printf("[DEBUG] "+format, args...)
	}
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	if GetLevel() <= LevelInfo {
		log.Printf("[INFO] "+format, args...)
	}
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	if GetLevel() <= LevelWarn {
		log.Printf("[WARN] "+format, args...)
	}
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	if GetLevel() <= LevelError {
		log.Printf("[ERROR] "+format, args...)
	}
}

// Fatal logs an error message and exits
func Fatal(format string, args ...interface{}) {
	log.Fatalf("[FATAL] "+format, args...)
}

// JobLogger prefixes every message with the job it belongs to, so that the
// interleaved output of concurrent workers can be grepped per job.
type JobLogger struct {
	prefix string
}

// ForJob returns a logger that tags messages with "job <id>:".
func ForJob(jobID string) JobLogger {
	return JobLogger{prefix: "job " + jobID + ": "}
}

// Debug logs a job-scoped debug message.
func (l JobLogger) Debug(format string, args ...interface{}) { Debug(l.prefix+format, args...) }

// Info logs a job-scoped info message.
func (l JobLogger) Info(format string, args ...interface{}) { Info(l.prefix+format, args...) }

// Warn logs a job-scoped warning.
func (l JobLogger) Warn(format string, args ...interface{}) { Warn(l.prefix+format, args...) }

// Error logs a job-scoped error.
func (l JobLogger) Error(format string, args ...interface{}) { Error(l.prefix+format, args...) }

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}
