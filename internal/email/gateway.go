package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/efeideo/drug-form/internal/logger"
)

// ConfigurationError reports a missing or malformed delivery setting.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s environment variable is invalid: %s", e.Setting, e.Reason)
	}
	return fmt.Sprintf("%s environment variable is not set", e.Setting)
}

// DeliveryError reports a transport or authentication failure while sending.
type DeliveryError struct {
	Stage string
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("failed to send email (%s): %v", e.Stage, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Delivery is the outcome of a notification attempt. Err is set when Sent is false.
type Delivery struct {
	Sent bool
	Err  error
}

// Gateway is the boundary between submissions and the email provider.
// Send never panics and never returns an error; failures are logged and
// reported in the Delivery.
type Gateway struct {
	sender Sender
	log    *logger.Logger
}

// NewGateway creates a Gateway over sender
func NewGateway(sender Sender, log *logger.Logger) *Gateway {
	return &Gateway{
		sender: sender,
		log:    log.WithComponent("notification_gateway"),
	}
}

// Send delivers a plain-text message to recipient. Provider settings are
// checked on every call. Expiry of ctx counts as a delivery failure.
func (g *Gateway) Send(ctx context.Context, subject, body, recipient string) (d Delivery) {
	defer func() {
		if r := recover(); r != nil {
			d = g.fail(subject, recipient, &DeliveryError{Stage: "send", Err: fmt.Errorf("panic: %v", r)})
		}
	}()

	if v, ok := g.sender.(Validator); ok {
		if err := v.Validate(); err != nil {
			return g.fail(subject, recipient, err)
		}
	}
	if recipient == "" {
		return g.fail(subject, recipient, &ConfigurationError{Setting: "SMTP_RECEIVER"})
	}

	msg := Message{To: recipient, Subject: subject, TextBody: body}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &DeliveryError{Stage: "send", Err: fmt.Errorf("panic: %v", r)}
			}
		}()
		done <- g.sender.Send(ctx, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return g.fail(subject, recipient, err)
		}
	case <-ctx.Done():
		return g.fail(subject, recipient, &DeliveryError{Stage: "timeout", Err: ctx.Err()})
	}

	g.log.Info().Str("to", recipient).Str("subject", subject).Msg("notification sent")
	return Delivery{Sent: true}
}

func (g *Gateway) fail(subject, recipient string, err error) Delivery {
	var cfgErr *ConfigurationError
	var delErr *DeliveryError
	switch {
	case errors.As(err, &cfgErr):
	case errors.As(err, &delErr):
	default:
		err = &DeliveryError{Stage: "send", Err: err}
	}

	g.log.Error().
		Err(err).
		Str("to", recipient).
		Str("subject", subject).
		Msg("failed to send notification")
	return Delivery{Err: err}
}
