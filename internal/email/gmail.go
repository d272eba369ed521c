package email

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/efeideo/drug-form/internal/config"
)

// GmailSender implements Sender using the Gmail API.
type GmailSender struct {
	service       *gmail.Service
	senderAddress string
	senderName    string
}

// NewGmailSender creates a GmailSender from a service account credentials JSON
// with domain-wide delegation, impersonating the sender address.
func NewGmailSender(ctx context.Context, credentialsJSON, senderAddress, senderName string) (*GmailSender, error) {
	jwtConfig, err := google.JWTConfigFromJSON([]byte(credentialsJSON), gmail.GmailSendScope)
	if err != nil {
		return nil, &ConfigurationError{Setting: "MAPFORM_EMAIL_GMAIL_CREDENTIALS_JSON", Reason: err.Error()}
	}
	jwtConfig.Subject = senderAddress

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("gmail: failed to create service: %w", err)
	}

	return &GmailSender{service: svc, senderAddress: senderAddress, senderName: senderName}, nil
}

// NewGmailSenderWithToken creates a GmailSender using OAuth2 client credentials + refresh token.
func NewGmailSenderWithToken(ctx context.Context, clientID, clientSecret, refreshToken, senderAddress, senderName string) (*GmailSender, error) {
	oauthCfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailSendScope},
	}

	client := oauthCfg.Client(ctx, &oauth2.Token{RefreshToken: refreshToken})

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("gmail: failed to create service: %w", err)
	}

	return &GmailSender{service: svc, senderAddress: senderAddress, senderName: senderName}, nil
}

// Send sends a plain-text email via the Gmail API.
func (g *GmailSender) Send(ctx context.Context, msg Message) error {
	from := g.senderAddress
	if g.senderName != "" {
		from = fmt.Sprintf("%s <%s>", g.senderName, g.senderAddress)
	}

	content := strings.Join([]string{
		"From: " + from,
		"To: " + msg.To,
		"Subject: " + msg.Subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		msg.TextBody,
	}, "\r\n")

	gmailMsg := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString([]byte(content)),
	}

	if _, err := g.service.Users.Messages.Send("me", gmailMsg).Context(ctx).Do(); err != nil {
		return &DeliveryError{Stage: "gmail", Err: err}
	}
	return nil
}

// lazyGmailSender builds the Gmail client on first use so that missing
// credentials surface as a ConfigurationError at send time.
type lazyGmailSender struct {
	cfg config.GmailEmailConfig

	mu     sync.Mutex
	sender *GmailSender
}

func newLazyGmailSender(cfg config.GmailEmailConfig) *lazyGmailSender {
	return &lazyGmailSender{cfg: cfg}
}

// Validate reports the first missing Gmail setting
func (l *lazyGmailSender) Validate() error {
	if l.cfg.SenderAddress == "" {
		return &ConfigurationError{Setting: "MAPFORM_EMAIL_GMAIL_SENDER_ADDRESS"}
	}
	if l.cfg.CredentialsJSON == "" && (l.cfg.ClientID == "" || l.cfg.ClientSecret == "" || l.cfg.RefreshToken == "") {
		return &ConfigurationError{Setting: "MAPFORM_EMAIL_GMAIL_CREDENTIALS_JSON", Reason: "or client_id, client_secret and refresh_token are required"}
	}
	return nil
}

func (l *lazyGmailSender) Send(ctx context.Context, msg Message) error {
	l.mu.Lock()
	if l.sender == nil {
		if err := l.Validate(); err != nil {
			l.mu.Unlock()
			return err
		}
		var (
			s   *GmailSender
			err error
		)
		// The service outlives the request that created it
		bg := context.WithoutCancel(ctx)
		if l.cfg.CredentialsJSON != "" {
			s, err = NewGmailSender(bg, l.cfg.CredentialsJSON, l.cfg.SenderAddress, l.cfg.SenderName)
		} else {
			s, err = NewGmailSenderWithToken(bg, l.cfg.ClientID, l.cfg.ClientSecret, l.cfg.RefreshToken, l.cfg.SenderAddress, l.cfg.SenderName)
		}
		if err != nil {
			l.mu.Unlock()
			return err
		}
		l.sender = s
	}
	s := l.sender
	l.mu.Unlock()

	return s.Send(ctx, msg)
}
