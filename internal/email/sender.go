package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/efeideo/drug-form/internal/config"
	"github.com/efeideo/drug-form/internal/logger"
)

// Sender is the interface that all email providers must implement.
// This abstraction allows swapping email providers (SMTP, Gmail, ...)
// without changing business logic.
type Sender interface {
	// Send sends an email to the specified recipient.
	Send(ctx context.Context, msg Message) error
}

// Validator is implemented by senders that can check their settings before sending
type Validator interface {
	Validate() error
}

// Message represents an email message to be sent.
type Message struct {
	To       string // recipient email address
	Subject  string // email subject
	HTMLBody string // HTML email body
	TextBody string // plain-text body
}

// NewSender builds the sender selected by cfg.Provider. Provider settings
// are not checked here; they are checked on every send.
func NewSender(cfg config.EmailConfig, log *logger.Logger) (Sender, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "smtp":
		return NewSMTPSender(cfg.SMTP, cfg.AppName), nil
	case "gmail":
		return newLazyGmailSender(cfg.Gmail), nil
	case "log":
		return NewLogSender(log), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	log *logger.Logger
}

// NewLogSender creates a LogSender
func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log.WithComponent("log_sender")}
}

// Send logs the message
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("body", msg.TextBody).
		Msg("email (log provider, not sent)")
	return nil
}
