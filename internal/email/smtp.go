package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/efeideo/drug-form/internal/config"
)

// SMTPSender delivers plain-text mail over SMTP with STARTTLS and PLAIN auth.
type SMTPSender struct {
	cfg        config.SMTPConfig
	senderName string
}

// NewSMTPSender creates an SMTPSender. Settings are validated on every Send.
func NewSMTPSender(cfg config.SMTPConfig, senderName string) *SMTPSender {
	return &SMTPSender{cfg: cfg, senderName: senderName}
}

// Validate reports the first missing or malformed SMTP setting
func (s *SMTPSender) Validate() error {
	if s.cfg.Server == "" {
		return &ConfigurationError{Setting: "SMTP_SERVER"}
	}
	if _, err := s.cfg.PortNumber(); err != nil {
		return &ConfigurationError{Setting: "SMTP_PORT", Reason: err.Error()}
	}
	switch {
	case s.cfg.Username == "":
		return &ConfigurationError{Setting: "SMTP_USERNAME"}
	case s.cfg.Password == "":
		return &ConfigurationError{Setting: "SMTP_PASSWORD"}
	}
	return nil
}

// Send delivers msg. The context deadline bounds the whole SMTP conversation.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := s.Validate(); err != nil {
		return err
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", s.cfg.Addr())
	if err != nil {
		return &DeliveryError{Stage: "connect", Err: err}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Server)
	if err != nil {
		conn.Close()
		return &DeliveryError{Stage: "connect", Err: err}
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); !ok {
		return &DeliveryError{Stage: "starttls", Err: fmt.Errorf("server %s does not offer STARTTLS", s.cfg.Server)}
	}
	if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Server, MinVersion: tls.VersionTLS12}); err != nil {
		return &DeliveryError{Stage: "starttls", Err: err}
	}

	if err := client.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Server)); err != nil {
		return &DeliveryError{Stage: "auth", Err: err}
	}
	if err := client.Mail(s.cfg.Username); err != nil {
		return &DeliveryError{Stage: "mail", Err: err}
	}
	if err := client.Rcpt(msg.To); err != nil {
		return &DeliveryError{Stage: "rcpt", Err: err}
	}

	w, err := client.Data()
	if err != nil {
		return &DeliveryError{Stage: "data", Err: err}
	}
	if _, err := w.Write(s.buildMessage(msg, time.Now())); err != nil {
		w.Close()
		return &DeliveryError{Stage: "data", Err: err}
	}
	if err := w.Close(); err != nil {
		return &DeliveryError{Stage: "data", Err: err}
	}

	// The message is handed off once DATA is accepted
	_ = client.Quit()
	return nil
}

// buildMessage renders the RFC 5322 message with a plain-text body
func (s *SMTPSender) buildMessage(msg Message, now time.Time) []byte {
	from := s.cfg.Username
	if s.senderName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.senderName), s.cfg.Username)
	}

	body := strings.ReplaceAll(msg.TextBody, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\n", "\r\n")

	return []byte(strings.Join([]string{
		"From: " + from,
		"To: " + msg.To,
		"Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject),
		"Date: " + now.Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"Content-Transfer-Encoding: 8bit",
		"",
		body,
	}, "\r\n"))
}
