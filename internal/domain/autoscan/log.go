package autoscan

import "time"

const (
	// MaxStoredLogs bounds the log kept per job; older entries are dropped.
	MaxStoredLogs = 100
	// MaxVisibleLogs bounds the log exposed by read APIs.
	MaxVisibleLogs = 50
)

// LogLevel is the severity of a job log entry.
type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelSuccess LogLevel = "success"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// LogEntry is one line of a job's user facing activity log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Phase     Phase     `json:"phase,omitempty"`
	Message   string    `json:"message"`
}

// appendBounded appends e and drops the oldest entries beyond limit.
func appendBounded(logs []LogEntry, e LogEntry, limit int) []LogEntry {
	logs = append(logs, e)
	if over := len(logs) - limit; over > 0 {
		logs = append(logs[:0:0], logs[over:]...)
	}
	return logs
}

// tail returns a copy of the last n entries.
func tail(logs []LogEntry, n int) []LogEntry {
	if len(logs) > n {
		logs = logs[len(logs)-n:]
	}
	return append([]LogEntry(nil), logs...)
}
