// internal/logger/logger.go
package logger

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger configuration
type Config struct {
	LogsDirectory string
	LogFileFormat string
	TimeZone      string
	Level         string
}

var (
	initialized int32 // 0 = not initialized, 1 = initialized
	base        *zap.Logger
	sugar       *zap.SugaredLogger
	timeZone    = time.Local
	logFilePath string
	logFile     *os.File
	mu          sync.Mutex
)

func init() {
	base = fallbackLogger()
	sugar = base.WithOptions(zap.AddCallerSkip(2)).Sugar()
}

// SetupLogger tees a console core on stdout with a JSON core on a dated log file.
func SetupLogger(config Config) error {
	mu.Lock()
	defer mu.Unlock()

	if atomic.LoadInt32(&initialized) == 1 {
		return fmt.Errorf("logger already initialized")
	}

	if config.TimeZone == "" {
		config.TimeZone = "Local"
	}
	if config.LogFileFormat == "" {
		config.LogFileFormat = "server_%s.log"
	}

	loc, err := time.LoadLocation(config.TimeZone)
	if err != nil {
		return fmt.Errorf("failed to load time zone '%s': %w", config.TimeZone, err)
	}
	timeZone = loc

	level := zapcore.InfoLevel
	if config.Level != "" {
		if err := level.UnmarshalText([]byte(config.Level)); err != nil {
			return fmt.Errorf("invalid log level '%s': %w", config.Level, err)
		}
	}

	if err := os.MkdirAll(config.LogsDirectory, 0775); err != nil {
		return fmt.Errorf("failed to create logs directory '%s': %w", config.LogsDirectory, err)
	}

	logFileName := fmt.Sprintf(config.LogFileFormat, time.Now().In(loc).Format("2006-01-02"))
	if filepath.IsAbs(logFileName) {
		logFilePath = logFileName
	} else {
		logFilePath = filepath.Join(config.LogsDirectory, logFileName)
	}

	f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0664)
	if err != nil {
		return fmt.Errorf("failed to open log file '%s': %w", logFilePath, err)
	}
	logFile = f

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.In(timeZone).Format("2006-01-02 15:04:05 MST"))
	}
	consoleCfg := encCfg
	consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stdout), level),
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), level),
	)

	base = zap.New(core, zap.AddCaller())
	sugar = base.WithOptions(zap.AddCallerSkip(2)).Sugar()

	atomic.StoreInt32(&initialized, 1)
	LogInfo("Logger initialized, writing to %s", logFilePath)
	return nil
}

// Sync flushes buffered entries and closes the log file.
func Sync() {
	mu.Lock()
	defer mu.Unlock()

	_ = base.Sync()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// L returns the structured logger for callers that log with fields.
func L() *zap.Logger {
	return base
}

func GetLogFilePath() string {
	return logFilePath
}

func IsInitialized() bool {
	return atomic.LoadInt32(&initialized) == 1
}

func LogMessage(level zapcore.Level, message string, v ...interface{}) {
	switch level {
	case zapcore.WarnLevel:
		sugar.Warnf(message, v...)
	case zapcore.ErrorLevel:
		sugar.Errorf(message, v...)
	case zapcore.DebugLevel:
		sugar.Debugf(message, v...)
	default:
		sugar.Infof(message, v...)
	}
}

func LogDebug(message string, v ...interface{}) { LogMessage(zapcore.DebugLevel, message, v...) }
func LogInfo(message string, v ...interface{})  { LogMessage(zapcore.InfoLevel, message, v...) }
func LogWarn(message string, v ...interface{})  { LogMessage(zapcore.WarnLevel, message, v...) }
func LogError(message string, v ...interface{}) { LogMessage(zapcore.ErrorLevel, message, v...) }
func LogFatal(message string, v ...interface{}) {
	LogMessage(zapcore.ErrorLevel, message, v...)
	Sync()
	os.Exit(1)
}

func LogHTTPRequest(r *http.Request) {
	clientIP := GetClientIP(r)
	LogInfo("HTTP %s %s from %s", r.Method, r.URL.Path, clientIP)
}

func LogHTTPError(r *http.Request, status int, err error) {
	clientIP := GetClientIP(r)
	LogError("HTTP %d error for %s %s from %s: %v", status, r.Method, r.URL.Path, clientIP, err)
}

func GetClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// fallbackLogger writes to stderr until SetupLogger runs.
func fallbackLogger() *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), zapcore.InfoLevel)
	return zap.New(core, zap.AddCaller())
}
