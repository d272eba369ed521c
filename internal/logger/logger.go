package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Audit actions recorded for wizard sessions
const (
	ActionStart       = "session.start"
	ActionAcknowledge = "session.acknowledge"
	ActionSubmit      = "session.submit"
	ActionClose       = "session.close"
)

// Logger wraps zerolog.Logger with the form service's event helpers
type Logger struct {
	zerolog.Logger
}

// RequestEntry describes one served HTTP request
type RequestEntry struct {
	Method    string
	Path      string
	Status    int
	Bytes     int64
	Duration  time.Duration
	ClientIP  string
	SessionID string
}

// New creates a Logger writing to stdout
func New(level, format string) *Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter creates a Logger writing to w. "text" and "console" select
// human-readable output, anything else writes JSON lines. Unknown or empty
// levels fall back to info.
func NewWithWriter(w io.Writer, level, format string) *Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	out := w
	switch format {
	case "text", "console":
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return &Logger{Logger: zerolog.New(out).Level(lvl).With().Timestamp().Caller().Logger()}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

func (l *Logger) with(key, value string) *Logger {
	return &Logger{Logger: l.With().Str(key, value).Logger()}
}

// WithRequestID returns a new logger with the request ID attached
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.with("request_id", requestID)
}

// WithSessionID returns a new logger with the wizard session ID attached
func (l *Logger) WithSessionID(sessionID string) *Logger {
	return l.with("session_id", sessionID)
}

// WithComponent returns a new logger with the component name attached
func (l *Logger) WithComponent(component string) *Logger {
	return l.with("component", component)
}

// HTTPRequest logs a served request. Client errors log at warn and server
// errors at error.
func (l *Logger) HTTPRequest(e RequestEntry) {
	var event *zerolog.Event
	switch {
	case e.Status >= 500:
		event = l.Error()
	case e.Status >= 400:
		event = l.Warn()
	default:
		event = l.Info()
	}
	if e.SessionID != "" {
		event = event.Str("session_id", e.SessionID)
	}
	event.
		Str("method", e.Method).
		Str("path", e.Path).
		Int("status", e.Status).
		Int64("bytes", e.Bytes).
		Dur("duration", e.Duration).
		Str("client_ip", e.ClientIP).
		Msg("HTTP request")
}

// Audit starts an audit entry for a session action. The caller adds its
// own fields and sends it with Msg.
func (l *Logger) Audit(sessionID, action string) *zerolog.Event {
	return l.Info().
		Bool("audit", true).
		Str("session_id", sessionID).
		Str("action", action)
}
