package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate runs the test in an empty directory with no MAPFORM_ or SMTP_ overrides
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, env := range os.Environ() {
		key, _, _ := strings.Cut(env, "=")
		if strings.HasPrefix(key, "MAPFORM_") || strings.HasPrefix(key, "SMTP_") {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Session.Store != "memory" {
		t.Errorf("Session.Store = %q, want memory", cfg.Session.Store)
	}
	if cfg.Session.TTL != 2*time.Hour {
		t.Errorf("Session.TTL = %v, want 2h", cfg.Session.TTL)
	}
	if cfg.Submission.SpamWindow != 10*time.Second || cfg.Submission.NotifyTimeout != 10*time.Second {
		t.Errorf("Submission = %+v", cfg.Submission)
	}
	if cfg.Email.Provider != "smtp" || cfg.Email.SMTP.Server != "smtp.office365.com" || cfg.Email.SMTP.Port != "587" {
		t.Errorf("Email = %+v", cfg.Email)
	}
	if cfg.Email.SMTP.Username != "" {
		t.Errorf("SMTP.Username = %q, want empty", cfg.Email.SMTP.Username)
	}
}

func TestLoadKeepsMalformedSMTPPort(t *testing.T) {
	isolate(t)
	t.Setenv("SMTP_PORT", "abc")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want SMTP_PORT left for send time", err)
	}
	if cfg.Email.SMTP.Port != "abc" {
		t.Errorf("SMTP.Port = %q", cfg.Email.SMTP.Port)
	}
	if _, err := cfg.Email.SMTP.PortNumber(); err == nil {
		t.Error("PortNumber() accepted a non-numeric port")
	}
}

func TestLoadSMTPEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("SMTP_SERVER", "mail.example.com")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SMTP_USERNAME", "noreply@example.com")
	t.Setenv("SMTP_PASSWORD", "secret")
	t.Setenv("SMTP_RECEIVER", "admin@example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := SMTPConfig{
		Server:   "mail.example.com",
		Port:     "2525",
		Username: "noreply@example.com",
		Password: "secret",
		Receiver: "admin@example.com",
	}
	if cfg.Email.SMTP != want {
		t.Errorf("SMTP = %+v, want %+v", cfg.Email.SMTP, want)
	}
	if got := cfg.Email.SMTP.Addr(); got != "mail.example.com:2525" {
		t.Errorf("Addr() = %q", got)
	}
}

func TestLoadPrefixedEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("MAPFORM_SERVER_PORT", "9090")
	t.Setenv("MAPFORM_SESSION_STORE", "redis")
	t.Setenv("MAPFORM_SUBMISSION_SPAM_WINDOW", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Session.Store != "redis" || cfg.Submission.SpamWindow != 30*time.Second {
		t.Errorf("cfg = %+v %+v %+v", cfg.Server, cfg.Session, cfg.Submission)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolate(t)
	// Registers cleanup for the variable godotenv is about to set
	t.Setenv("SMTP_RECEIVER", "")
	os.Unsetenv("SMTP_RECEIVER")

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SMTP_RECEIVER=dotenv@example.com\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Email.SMTP.Receiver != "dotenv@example.com" {
		t.Errorf("Receiver = %q, want dotenv@example.com", cfg.Email.SMTP.Receiver)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := isolate(t)
	yaml := "server:\n  port: 7070\nemail:\n  provider: log\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 || cfg.Email.Provider != "log" {
		t.Errorf("Server.Port = %d, Email.Provider = %q", cfg.Server.Port, cfg.Email.Provider)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		env  string
		val  string
	}{
		{"unknown store", "MAPFORM_SESSION_STORE", "disk"},
		{"zero ttl", "MAPFORM_SESSION_TTL", "0s"},
		{"negative spam window", "MAPFORM_SUBMISSION_SPAM_WINDOW", "-1s"},
		{"unknown provider", "MAPFORM_EMAIL_PROVIDER", "pigeon"},
		{"port out of range", "MAPFORM_SERVER_PORT", "70000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv(tt.env, tt.val)
			if _, err := Load(); err == nil {
				t.Errorf("Load() with %s=%s succeeded", tt.env, tt.val)
			}
		})
	}
}
