// Package observability provides the process-wide logger used by all
// gitfolio packages. It wraps a zap SugaredLogger behind a functional API so
// call sites stay terse and the backend can be swapped without touching them.
package observability

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger   *zap.SugaredLogger
	loggerMu sync.RWMutex
)

func init() {
	// Default logger so packages can log before InitLoggerFromEnv runs.
	l, _ := zap.NewProduction()
	logger = l.Sugar()
}

// InitLoggerFromEnv initializes the global logger from environment variables:
//
//	GITFOLIO_LOG_LEVEL:  debug | info | warn | error (default info)
//	GITFOLIO_LOG_FORMAT: json | console (default json)
func InitLoggerFromEnv() (*zap.SugaredLogger, error) {
	level := zapcore.InfoLevel
	if v := os.Getenv("GITFOLIO_LOG_LEVEL"); v != "" {
		if err := level.Set(strings.ToLower(v)); err != nil {
			return nil, err
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	if strings.EqualFold(os.Getenv("GITFOLIO_LOG_FORMAT"), "console") {
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}

	loggerMu.Lock()
	logger = l.Sugar()
	loggerMu.Unlock()
	return l.Sugar(), nil
}

func get() *zap.SugaredLogger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...interface{}) { get().Debugf(format, args...) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...interface{}) { get().Infof(format, args...) }

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...interface{}) { get().Warnf(format, args...) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...interface{}) { get().Errorf(format, args...) }

// Fatalf logs a formatted message at fatal level and exits.
func Fatalf(format string, args ...interface{}) { get().Fatalf(format, args...) }
