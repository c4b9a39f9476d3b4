package logger

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

// WithOtelBridge tees every record into the OpenTelemetry logs pipeline using
// the global LoggerProvider.
func (log *Logger) WithOtelBridge(name string) *Logger {
	return log.Tee(otelslog.NewHandler(name))
}
