package log

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

var (
	mu         sync.RWMutex
	logger     *zap.SugaredLogger
	atomLevel  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	loggerOnce sync.Once
)

// initLogger installs a console logger on stderr if Init was never called.
func initLogger() {
	loggerOnce.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if logger == nil {
			l, err := build("console")
			if err != nil {
				l = zap.NewNop()
			}
			logger = l.Sugar()
		}
	})
}

// Init (re)builds the global logger. format is "console" or "json";
// level is any zap level name ("debug", "info", "error", ...).
func Init(level, format string) error {
	if level != "" {
		if err := atomLevel.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			atomLevel.SetLevel(zapcore.InfoLevel)
		}
	}
	l, err := build(format)
	if err != nil {
		return err
	}
	loggerOnce.Do(func() {})
	mu.Lock()
	old := logger
	logger = l.Sugar()
	mu.Unlock()
	if old != nil {
		_ = old.Sync()
	}
	return nil
}

func build(format string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = atomLevel
	cfg.Encoding = "json"
	if format == "" || format == "console" {
		cfg.Encoding = "console"
	}
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build(zap.AddCallerSkip(1))
}

func SetLevel(l Level) {
	switch l {
	case LevelDebug:
		atomLevel.SetLevel(zapcore.DebugLevel)
	case LevelError:
		atomLevel.SetLevel(zapcore.ErrorLevel)
	default:
		atomLevel.SetLevel(zapcore.InfoLevel)
	}
}

func Debug(msg string, kv ...any) {
	current().Debugw(msg, kv...)
}

func Info(msg string, kv ...any) {
	current().Infow(msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	current().Errorw(msg, extended...)
}

// Sync flushes buffered entries; call before exit.
func Sync() {
	_ = current().Sync()
}

func current() *zap.SugaredLogger {
	initLogger()
	mu.RLock()
	defer mu.RUnlock()
	return logger
}
