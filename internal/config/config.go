package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Log        LogConfig        `mapstructure:"log"`
	Session    SessionConfig    `mapstructure:"session"`
	Submission SubmissionConfig `mapstructure:"submission"`
	Security   SecurityConfig   `mapstructure:"security"`
	Email      EmailConfig      `mapstructure:"email"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"gte=1,lte=65535"`
}

// Addr returns the listen address
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json text console"`
}

// SessionConfig holds wizard session configuration
type SessionConfig struct {
	// Store selects where session state lives: "memory" or "redis"
	Store string `mapstructure:"store" validate:"oneof=memory redis"`
	// TTL is how long an idle session is kept
	TTL time.Duration `mapstructure:"ttl" validate:"gt=0"`
	// Secret signs session tokens. A random secret is generated when empty,
	// which invalidates tokens on restart.
	Secret string `mapstructure:"secret"`
	// Issuer is the iss claim of session tokens
	Issuer string `mapstructure:"issuer"`
	// CookieName is the cookie the session token is also accepted from
	CookieName string `mapstructure:"cookie_name"`
	// LockTTL bounds how long a distributed session lock may be held
	LockTTL time.Duration `mapstructure:"lock_ttl" validate:"gt=0"`
}

// SubmissionConfig holds submission gating configuration
type SubmissionConfig struct {
	// SpamWindow is the minimum time between two accepted submissions of a session
	SpamWindow time.Duration `mapstructure:"spam_window" validate:"gte=0"`
	// NotifyTimeout bounds one notification attempt; expiry counts as a delivery failure
	NotifyTimeout time.Duration `mapstructure:"notify_timeout" validate:"gte=0"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	RateLimiting   RateLimitingConfig `mapstructure:"rate_limiting"`
	AllowedOrigins []string           `mapstructure:"allowed_origins"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	DefaultLimit int           `mapstructure:"default_limit"`
	Window       time.Duration `mapstructure:"window"`
}

// EmailConfig holds notification delivery configuration
type EmailConfig struct {
	// Provider is the email provider to use: "smtp", "gmail" or "log"
	Provider string `mapstructure:"provider" validate:"oneof=smtp gmail log"`
	// AppName is shown in the sender display name
	AppName string `mapstructure:"app_name"`
	// SMTP holds the SMTP_* settings
	SMTP SMTPConfig `mapstructure:"smtp"`
	// Gmail holds Gmail-specific configuration
	Gmail GmailEmailConfig `mapstructure:"gmail"`
}

// SMTPConfig holds SMTP transport configuration.
// It is validated when a message is sent, not at load time, so the port is
// kept as the raw SMTP_PORT text.
type SMTPConfig struct {
	Server   string `mapstructure:"server"`
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// Receiver is the admin address notifications go to
	Receiver string `mapstructure:"receiver"`
}

// PortNumber parses Port as a TCP port
func (c SMTPConfig) PortNumber() (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", c.Port)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("%d is out of range", port)
	}
	return port, nil
}

// Addr returns the SMTP server address
func (c SMTPConfig) Addr() string {
	return net.JoinHostPort(c.Server, strings.TrimSpace(c.Port))
}

// GmailEmailConfig holds Gmail API configuration
type GmailEmailConfig struct {
	// CredentialsJSON is the service account credentials JSON content
	CredentialsJSON string `mapstructure:"credentials_json"`
	// ClientID for OAuth2 token-based auth (alternative to service account)
	ClientID string `mapstructure:"client_id"`
	// ClientSecret for OAuth2 token-based auth
	ClientSecret string `mapstructure:"client_secret"`
	// RefreshToken for OAuth2 token-based auth
	RefreshToken string `mapstructure:"refresh_token"`
	// SenderAddress is the "From" email address
	SenderAddress string `mapstructure:"sender_address"`
	// SenderName is the display name for the sender
	SenderName string `mapstructure:"sender_name"`
}

// smtpEnv maps config keys to the environment variable names used by deployments
var smtpEnv = map[string]string{
	"email.smtp.server":   "SMTP_SERVER",
	"email.smtp.port":     "SMTP_PORT",
	"email.smtp.username": "SMTP_USERNAME",
	"email.smtp.password": "SMTP_PASSWORD",
	"email.smtp.receiver": "SMTP_RECEIVER",
}

// Load reads configuration from .env, a config file and environment variables
func Load() (*Config, error) {
	// A missing .env file is fine
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/mapform")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("MAPFORM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range smtpEnv {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// SMTP settings are checked on every send, not here
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Session defaults
	v.SetDefault("session.store", "memory")
	v.SetDefault("session.ttl", "2h")
	v.SetDefault("session.secret", "")
	v.SetDefault("session.issuer", "mapform")
	v.SetDefault("session.cookie_name", "mapform_session")
	v.SetDefault("session.lock_ttl", "30s")

	// Submission defaults
	v.SetDefault("submission.spam_window", "10s")
	v.SetDefault("submission.notify_timeout", "10s")

	// Security defaults
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.default_limit", 120)
	v.SetDefault("security.rate_limiting.window", "1m")
	v.SetDefault("security.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})

	// Email defaults
	v.SetDefault("email.provider", "smtp")
	v.SetDefault("email.app_name", "MAP Patient Access")
	v.SetDefault("email.smtp.server", "smtp.office365.com")
	v.SetDefault("email.smtp.port", "587")
	v.SetDefault("email.smtp.username", "")
	v.SetDefault("email.smtp.password", "")
	v.SetDefault("email.smtp.receiver", "")
	v.SetDefault("email.gmail.sender_address", "")
	v.SetDefault("email.gmail.sender_name", "MAP Patient Access")
}
