package logger

import (
	"context"
	"sync"
)

// LoggerContext accumulates attributes over the course of an operation so that
// later log lines carry everything learned earlier without re-deriving it.
type LoggerContext struct {
	mu     sync.Mutex
	logger *Logger
}

// NewLoggerContext wraps l for incremental attribute accumulation.
func NewLoggerContext(l *Logger) *LoggerContext { return &LoggerContext{logger: l} }

// Add appends attributes to every subsequent record.
func (lc *LoggerContext) Add(args ...any) {
	lc.mu.Lock()
	lc.logger = lc.logger.With(args...)
	lc.mu.Unlock()
}

func (lc *LoggerContext) current() *Logger {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.logger
}

func (lc *LoggerContext) Debug(ctx context.Context, msg string, args ...any) {
	lc.current().write(ctx, LevelDebug, 3, msg, args...)
}

func (lc *LoggerContext) Info(ctx context.Context, msg string, args ...any) {
	lc.current().write(ctx, LevelInfo, 3, msg, args...)
}

func (lc *LoggerContext) Warn(ctx context.Context, msg string, args ...any) {
	lc.current().write(ctx, LevelWarn, 3, msg, args...)
}

func (lc *LoggerContext) Error(ctx context.Context, msg string, args ...any) {
	lc.current().write(ctx, LevelError, 3, msg, args...)
}
