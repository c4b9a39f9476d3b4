package logger

import (
	"context"
	"log"
	"strings"
)

// NewStdLogger returns a standard library logger that forwards every line to
// l at the given level. It is used for http.Server.ErrorLog.
func NewStdLogger(l *Logger, level Level) *log.Logger {
	return log.New(&stdWriter{log: l, level: level}, "", 0)
}

type stdWriter struct {
	log   *Logger
	level Level
}

func (w *stdWriter) Write(p []byte) (int, error) {
	w.log.write(context.Background(), w.level, 4, strings.TrimSpace(string(p)))
	return len(p), nil
}
