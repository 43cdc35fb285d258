package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"tg-bale-bridge/internal/config"
)

// Log levels, lowest to highest.
const (
	LevelDebug = iota
	LevelInfo
	LevelWarning
	LevelError
)

var currentLevel = LevelInfo

// createLogFilePath generates a log file path with the current date
func createLogFilePath(logDir, prefix string) string {
	currentDate := time.Now().Format("2006-01-02")
	return filepath.Join(logDir, fmt.Sprintf("%s-%s.log", prefix, currentDate))
}

// createRotatingLogger creates a lumberjack rotating logger
func createRotatingLogger(logFilePath string, cfg *config.Config) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    cfg.Logger.Rotation.MaxSize,
		MaxBackups: cfg.Logger.Rotation.MaxBackups,
		MaxAge:     cfg.Logger.Rotation.MaxAge,
		Compress:   cfg.Logger.Rotation.Compress,
	}
}

// createMultiWriter creates a writer that outputs to both stdout and log file
func createMultiWriter(rotatingLogger io.Writer) io.Writer {
	return io.MultiWriter(os.Stdout, rotatingLogger)
}

// Setup configures logging to output to both stdout and a rotating log file
func Setup(cfg *config.Config) error {
	logDir := cfg.Logger.Directory

	// Create log directory if it doesn't exist
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	logFilePath := createLogFilePath(logDir, "tg-bale-bridge")
	rotatingLogger := createRotatingLogger(logFilePath, cfg)
	multiWriter := createMultiWriter(rotatingLogger)

	log.SetOutput(multiWriter)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	currentLevel = parseLevel(cfg.Logger.Level)

	log.Printf("Logging initialized: writing to %s", logFilePath)
	return nil
}

func parseLevel(level string) int {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return LevelDebug
	case "WARNING", "WARN":
		return LevelWarning
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func output(level int, tag, format string, args ...interface{}) {
	if level < currentLevel {
		return
	}
	log.Output(3, fmt.Sprintf("[%s] %s", tag, fmt.Sprintf(format, args...)))
}

// Debugf logs a debug-level message.
func Debugf(format string, args ...interface{}) {
	output(LevelDebug, "DEBUG", format, args...)
}

// Infof logs an info-level message.
func Infof(format string, args ...interface{}) {
	output(LevelInfo, "INFO", format, args...)
}

// Warningf logs a warning-level message.
func Warningf(format string, args ...interface{}) {
	output(LevelWarning, "WARNING", format, args...)
}

// Errorf logs an error-level message.
func Errorf(format string, args ...interface{}) {
	output(LevelError, "ERROR", format, args...)
}

// Error logs an error-level message without formatting.
func Error(args ...interface{}) {
	output(LevelError, "ERROR", "%s", fmt.Sprint(args...))
}
