// Package logging provides structured logging built on slog.
package logging

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/lv2jack/host/internal/conf"
)

var (
	structuredLogger *slog.Logger
	loggerMu         sync.RWMutex
	currentLogLevel  = new(slog.LevelVar)
	initOnce         sync.Once
)

// defaultReplaceAttr formats time to second precision and truncates float
// values to 2 decimal places, matching the rest of this host's logs.
func defaultReplaceAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		a.Value = slog.StringValue(a.Value.Time().Format("2006-01-02T15:04:05Z07:00"))
	}
	if a.Value.Kind() == slog.KindFloat64 {
		truncated := math.Trunc(a.Value.Float64()*100) / 100.0
		a.Value = slog.Float64Value(truncated)
	}
	return a
}

// Init sets up the global structured (JSON) logger, writing to logs/app.log
// with a fallback to stderr if the file cannot be opened. Safe to call more
// than once; only the first call takes effect.
func Init() {
	initOnce.Do(func() {
		currentLogLevel.Set(slog.LevelInfo)

		if err := os.MkdirAll("logs", 0o755); err != nil {
			fmt.Printf("failed to create logs directory: %v\n", err)
			os.Exit(1)
		}

		logFile, err := os.OpenFile("logs/app.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			fmt.Printf("failed to open log file: %v\n", err)
			logFile = os.Stderr
		}

		handler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{
			Level:       currentLogLevel,
			ReplaceAttr: defaultReplaceAttr,
		})

		loggerMu.Lock()
		structuredLogger = slog.New(handler)
		loggerMu.Unlock()

		slog.SetDefault(structuredLogger)
	})
}

// ForService returns a logger tagged with the given service name, derived
// from the global structured logger. Returns nil if Init has not run.
func ForService(serviceName string) *slog.Logger {
	loggerMu.RLock()
	logger := structuredLogger
	loggerMu.RUnlock()

	if logger == nil {
		return nil
	}
	return logger.With("service", serviceName)
}

// NewFileLogger creates a slog.Logger writing JSON logs to filePath, rotated
// by lumberjack according to the Main.Log settings. It includes a 'service'
// attribute in all logs and returns the logger plus a close function. Used
// for secondary sinks like the plugin trace log, which must not interleave
// with the host's own app.log.
func NewFileLogger(filePath, serviceName string, levelVar *slog.LevelVar) (*slog.Logger, func() error, error) {
	logDir := filepath.Dir(filePath)
	if logDir != "." {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
	}

	mainLogConf := conf.Setting().Main.Log

	lj := &lumberjack.Logger{
		Filename: filePath,
	}

	maxSizeMB := 100
	maxBackups := 3
	maxAge := 28 // days

	if configMaxSizeMB := int(mainLogConf.MaxSize / (1024 * 1024)); configMaxSizeMB > 0 {
		maxSizeMB = configMaxSizeMB
	}

	switch mainLogConf.Rotation {
	case conf.RotationDaily:
		maxAge = 1
		maxBackups = 30
	case conf.RotationWeekly:
		maxAge = 7
		maxBackups = 4
	case conf.RotationSize:
	default:
		slog.Warn("Unknown log rotation type in config, using size-based defaults", "configuredType", mainLogConf.Rotation)
	}

	lj.MaxSize = maxSizeMB
	lj.MaxBackups = maxBackups
	lj.MaxAge = maxAge

	handler := slog.NewJSONHandler(lj, &slog.HandlerOptions{
		Level:       levelVar,
		ReplaceAttr: defaultReplaceAttr,
	})

	logger := slog.New(handler).With("service", serviceName)
	return logger, lj.Close, nil
}
