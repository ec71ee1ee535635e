package logging

import (
	"strings"

	"grimm.is/netaudit/internal/clock"
	"grimm.is/netaudit/internal/events"
)

// DefaultStatusCapacity is how many status lines are retained for the UI.
const DefaultStatusCapacity = 5000

// Status line prefixes. The level of a line is derived from its prefix.
const (
	PrefixError   = "[ERROR]"
	PrefixBlocked = "[BLOQUEADO]"
	PrefixWarn    = "[WARN]"
)

// StatusLog is the user-facing log sink. Each line is retained in a ring
// buffer, mirrored to the diagnostic logger and published on the event hub.
type StatusLog struct {
	buf    *RingBuffer
	logger *Logger
	hub    *events.Hub
	clock  clock.Clock
}

// NewStatusLog creates a sink. logger and hub may be nil.
func NewStatusLog(capacity int, logger *Logger, hub *events.Hub) *StatusLog {
	if capacity <= 0 {
		capacity = DefaultStatusCapacity
	}
	if logger == nil {
		logger = WithComponent("status")
	}
	return &StatusLog{
		buf:    NewRingBuffer(capacity),
		logger: logger,
		hub:    hub,
		clock:  clock.Default,
	}
}

// AddLog records a status line for the given source address.
func (s *StatusLog) AddLog(address, message string) {
	entry := AppLogEntry{
		Timestamp: s.clock.Now(),
		Level:     levelOf(message),
		Source:    address,
		Message:   message,
	}
	s.buf.Add(entry)

	switch entry.Level {
	case "error":
		s.logger.Error(message, "source", address)
	case "warn":
		s.logger.Warn(message, "source", address)
	default:
		s.logger.Info(message, "source", address)
	}

	if s.hub != nil {
		s.hub.EmitStatusLine(entry.Timestamp, address, entry.Level, message)
	}
}

// Buffer exposes the retained lines.
func (s *StatusLog) Buffer() *RingBuffer {
	return s.buf
}

func levelOf(message string) string {
	switch {
	case strings.HasPrefix(message, PrefixError):
		return "error"
	case strings.HasPrefix(message, PrefixBlocked), strings.HasPrefix(message, PrefixWarn):
		return "warn"
	}
	return "info"
}
