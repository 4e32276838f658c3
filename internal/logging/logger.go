package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/0tSystemsPublicRepos/mirage/internal/config"
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelError
	LogLevelThreat
)

type Logger struct {
	mu     sync.Mutex
	writer *lumberjack.Logger
	logger *log.Logger
	level  LogLevel
}

var defaultLogger *Logger

func Init(logDir string, rotation *config.LogRotationConfig, logLevel string, debug bool) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return err
	}

	level := parseLogLevel(logLevel, debug)

	// Rotation is handled by lumberjack: size-based rollover, bounded
	// backup count and age, gzip of rotated files.
	writer := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "mirage.log"),
		MaxSize:    rotation.MaxSizeMB,
		MaxBackups: rotation.MaxBackups,
		MaxAge:     rotation.MaxAgeDays,
		Compress:   rotation.Compress,
	}

	multiWriter := io.MultiWriter(writer, os.Stdout)

	defaultLogger = &Logger{
		writer: writer,
		logger: log.New(multiWriter, "", log.LstdFlags),
		level:  level,
	}

	// Redirect Go's standard log package to the same destination
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags)

	fmt.Printf("[LOGGING] Initialized - LogDir: %s, MaxSize: %d MB, Level: %s\n",
		logDir, rotation.MaxSizeMB, logLevel)
	return nil
}

func parseLogLevel(level string, debug bool) LogLevel {
	if debug {
		return LogLevelDebug
	}

	switch strings.ToLower(level) {
	case "debug":
		return LogLevelDebug
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func (l *Logger) writeLog(level LogLevel, levelStr, msg string) {
	if level < l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Printf("[%s] %s", levelStr, msg)
}

func Info(msg string, args ...interface{}) {
	text := fmt.Sprintf(msg, args...)
	if defaultLogger != nil {
		defaultLogger.writeLog(LogLevelInfo, "INFO", text)
	} else {
		fmt.Printf("[INFO] %s\n", text)
	}
}

func Error(msg string, args ...interface{}) {
	text := fmt.Sprintf(msg, args...)
	if defaultLogger != nil {
		defaultLogger.writeLog(LogLevelError, "ERROR", text)
	} else {
		fmt.Printf("[ERROR] %s\n", text)
	}
}

func Debug(msg string, args ...interface{}) {
	text := fmt.Sprintf(msg, args...)
	if defaultLogger != nil {
		defaultLogger.writeLog(LogLevelDebug, "DEBUG", text)
	} else {
		fmt.Printf("[DEBUG] %s\n", text)
	}
}

// Threat logs a detected threat with a fixed pipe-separated layout so the
// threat log stays grep-able.
func Threat(sourceIP, threatType, detail string, score float64) {
	text := fmt.Sprintf("THREAT | IP: %s | Type: %s | Score: %.2f | %s", sourceIP, threatType, score, detail)
	if defaultLogger != nil {
		defaultLogger.writeLog(LogLevelThreat, "THREAT", text)
	} else {
		fmt.Printf("[THREAT] %s\n", text)
	}
}

func Close() {
	if defaultLogger != nil && defaultLogger.writer != nil {
		defaultLogger.mu.Lock()
		defer defaultLogger.mu.Unlock()
		defaultLogger.writer.Close()
	}
}
