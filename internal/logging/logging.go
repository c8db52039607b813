// Package logging hands out named zap loggers sharing one level.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	level = zap.NewAtomicLevelAt(zapcore.WarnLevel)

	mu   sync.Mutex
	base *zap.Logger
)

func root() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if base == nil {
		enc := zap.NewProductionEncoderConfig()
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
		core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), level)
		base = zap.New(core)
	}
	return base
}

// Logger returns the logger of a subsystem.
func Logger(subsystem string) *zap.SugaredLogger {
	return root().Named(subsystem).Sugar()
}

// SetLevel changes the level of every logger. Unknown names are rejected.
func SetLevel(name string) error {
	l, err := zapcore.ParseLevel(name)
	if err != nil {
		return err
	}
	level.SetLevel(l)
	return nil
}

// Level returns the current level.
func Level() zapcore.Level {
	return level.Level()
}
