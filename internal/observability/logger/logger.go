// Package logger wraps zap behind a process-wide singleton plus a small set of
// typed field constructors, so every layer logs the same key names.
//
// Usage:
//
//	logger.Init(logger.Config{Env: "prod", Level: "info"})
//	defer logger.Sync()
//	...
//	log := logger.From(ctx).With(logger.Component("auth.token"))
//	log.Info("pair issued", logger.UserID(uid), logger.ClientID(cid))
package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls how the singleton is built.
type Config struct {
	// Env is "dev" (colored console) or "prod" (JSON). Default: "dev".
	Env string
	// Level is the minimum level: "debug", "info", "warn", "error". Default: "info".
	Level string
}

var (
	once     sync.Once
	instance *zap.Logger
)

// Init builds the singleton. Idempotent: only the first call has effect.
func Init(cfg Config) {
	once.Do(func() {
		instance = build(cfg)
	})
}

// L returns the singleton, initializing a dev/info logger if Init was never called.
func L() *zap.Logger {
	if instance == nil {
		Init(Config{Env: "dev", Level: "info"})
	}
	return instance
}

// Named returns the singleton with a component name attached.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// Sync flushes buffered entries. Call via defer in main.
func Sync() error {
	if instance != nil {
		return instance.Sync()
	}
	return nil
}

func build(cfg Config) *zap.Logger {
	level := zapcore.InfoLevel
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	var zc zap.Config
	if strings.ToLower(cfg.Env) == "prod" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	l, err := zc.Build(zap.AddCallerSkip(0))
	if err != nil {
		return zap.NewNop()
	}
	return l
}
