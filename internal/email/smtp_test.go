package email

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/efeideo/drug-form/internal/config"
)

// plainSMTPServer accepts one connection and speaks just enough SMTP to
// advertise its extensions, without STARTTLS
func plainSMTPServer(t *testing.T) config.SMTPConfig {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

		r := bufio.NewReader(conn)
		conn.Write([]byte("220 localhost ESMTP test\r\n"))
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			switch cmd := strings.ToUpper(strings.TrimSpace(line)); {
			case strings.HasPrefix(cmd, "EHLO"):
				conn.Write([]byte("250-localhost\r\n250 AUTH PLAIN\r\n"))
			case strings.HasPrefix(cmd, "QUIT"):
				conn.Write([]byte("221 bye\r\n"))
				return
			default:
				conn.Write([]byte("502 not implemented\r\n"))
			}
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return config.SMTPConfig{
		Server:   "127.0.0.1",
		Port:     strconv.Itoa(addr.Port),
		Username: "noreply@example.com",
		Password: "secret",
	}
}

func TestSMTPSenderRequiresSTARTTLS(t *testing.T) {
	s := NewSMTPSender(plainSMTPServer(t), "MAP")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.Send(ctx, Message{To: "admin@example.com", Subject: "Subject", TextBody: "Body"})
	var delErr *DeliveryError
	if !errors.As(err, &delErr) || delErr.Stage != "starttls" {
		t.Fatalf("Send() error = %v, want a starttls DeliveryError", err)
	}
}

func TestSMTPSenderConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	cfg := validSMTP()
	cfg.Port = strconv.Itoa(port)
	err = NewSMTPSender(cfg, "MAP").Send(context.Background(), Message{To: "admin@example.com"})
	var delErr *DeliveryError
	if !errors.As(err, &delErr) || delErr.Stage != "connect" {
		t.Fatalf("Send() error = %v, want a connect DeliveryError", err)
	}
}

func TestBuildMessage(t *testing.T) {
	s := NewSMTPSender(validSMTP(), "MAP Patient Access")
	now := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

	raw := string(s.buildMessage(Message{
		To:       "admin@example.com",
		Subject:  "MAP Form Submission Notification",
		TextBody: "line one\nline two\n",
	}, now))

	headers, body, ok := strings.Cut(raw, "\r\n\r\n")
	if !ok {
		t.Fatalf("no header/body separator in %q", raw)
	}
	for _, want := range []string{
		"From: MAP Patient Access <noreply@example.com>",
		"To: admin@example.com",
		"Subject: MAP Form Submission Notification",
		"Date: " + now.Format(time.RFC1123Z),
		"Content-Type: text/plain; charset=UTF-8",
	} {
		if !strings.Contains(headers, want) {
			t.Errorf("headers missing %q:\n%s", want, headers)
		}
	}
	if body != "line one\r\nline two\r\n" {
		t.Errorf("body = %q", body)
	}
}
