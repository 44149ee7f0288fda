package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu    sync.RWMutex
	base  *zap.Logger
	sugar *zap.SugaredLogger
)

// InitProduction installs a JSON logger for service deployments.
func InitProduction() error {
	return install(zap.NewProductionConfig())
}

// InitDevelopment installs a console logger for local runs.
func InitDevelopment() error {
	return install(zap.NewDevelopmentConfig())
}

func install(cfg zap.Config) error {
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	zap.ReplaceGlobals(l)
	if base != nil {
		_ = base.Sync()
	}
	base = l
	sugar = l.Sugar()
	return nil
}

// Log returns the installed logger, or zap's global no-op before init.
func Log() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		return base
	}
	return zap.L()
}

// S returns the sugared form of Log.
func S() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	if sugar != nil {
		return sugar
	}
	return zap.S()
}

// Sync flushes buffered entries, typically on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}
