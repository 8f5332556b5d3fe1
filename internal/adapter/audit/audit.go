package audit

import (
	"github.com/rs/zerolog"
)

// Logger is a zerolog-backed AuditSink: every event becomes one structured
// log line with its payload flattened into fields
type Logger struct {
	log zerolog.Logger
}

// NewLogger creates an audit logger writing through the given zerolog logger
func NewLogger(log zerolog.Logger) *Logger {
	return &Logger{log: log.With().Str("component", "audit").Logger()}
}

// Record emits one audit event
func (l *Logger) Record(eventType string, payload map[string]any) {
	l.log.Info().Str("event", eventType).Fields(payload).Msg("audit event")
}
