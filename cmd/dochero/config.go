package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Log         LogConfig        `mapstructure:"log"`
	CORS        CORSConfig       `mapstructure:"cors"`
	FrontendURL string           `mapstructure:"frontend_url"`
	OAuth       OAuthConfig      `mapstructure:"oauth"`
	Webhook     WebhookConfig    `mapstructure:"webhook"`
	Poll        PollConfig       `mapstructure:"poll"`
	Processing  ProcessingConfig `mapstructure:"processing"`
	Security    SecurityConfig   `mapstructure:"security"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// RequestTimeout bounds a single request, including OCR work.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// PublicURL is advertised as the server of the OpenAPI document.
	PublicURL string `mapstructure:"public_url"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CORSConfig holds the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// OAuthConfig holds the client registrations of both mail providers.
type OAuthConfig struct {
	Google    OAuthClientConfig `mapstructure:"google"`
	Microsoft MicrosoftConfig   `mapstructure:"microsoft"`
}

// OAuthClientConfig holds one OAuth client registration.
type OAuthClientConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
}

// MicrosoftConfig is the Microsoft identity platform registration.
type MicrosoftConfig struct {
	OAuthClientConfig `mapstructure:",squash"`
	Tenant            string `mapstructure:"tenant"`
	Scopes            string `mapstructure:"scopes"`
}

// WebhookConfig holds the delivery target for polled messages.
// An empty URL disables forwarding.
type WebhookConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PollConfig holds the background mailbox poller configuration.
type PollConfig struct {
	// Interval between cycles. Zero disables the poller; the poll
	// endpoints stay available for an external scheduler.
	Interval     time.Duration `mapstructure:"interval"`
	CycleTimeout time.Duration `mapstructure:"cycle_timeout"`
}

// ProcessingConfig holds document processing limits and tool paths.
type ProcessingConfig struct {
	MaxUploadMB   int      `mapstructure:"max_upload_mb"`
	MaxConcurrent int      `mapstructure:"max_concurrent"`
	QueueSize     int      `mapstructure:"queue_size"`
	Languages     []string `mapstructure:"languages"`
	PdftoppmPath  string   `mapstructure:"pdftoppm_path"`
	TesseractPath string   `mapstructure:"tesseract_path"`
}

// SecurityConfig holds secrets for data at rest.
type SecurityConfig struct {
	// TokenKey is the master secret for OAuth token encryption.
	// Empty stores tokens in plain text.
	// Set via DOCHERO_SECURITY_TOKEN_KEY environment variable.
	TokenKey string `mapstructure:"token_key"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", "60s")
	v.SetDefault("server.write_timeout", "200s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.request_timeout", "180s")
	v.SetDefault("server.public_url", "")
	v.SetDefault("database.dsn", "./data/dochero.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("cors.allowed_origins", []string{"https://dochero.nl"})
	v.SetDefault("frontend_url", "http://localhost:5173")

	// OAuth registrations have no usable defaults; Validate reports them
	v.SetDefault("oauth.google.client_id", "")
	v.SetDefault("oauth.google.client_secret", "")
	v.SetDefault("oauth.google.redirect_uri", "")
	v.SetDefault("oauth.microsoft.client_id", "")
	v.SetDefault("oauth.microsoft.client_secret", "")
	v.SetDefault("oauth.microsoft.redirect_uri", "")
	v.SetDefault("oauth.microsoft.tenant", "common")
	v.SetDefault("oauth.microsoft.scopes", "")

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.timeout", "20s")
	v.SetDefault("poll.interval", "0s")
	v.SetDefault("poll.cycle_timeout", "2m")

	v.SetDefault("processing.max_upload_mb", 100)
	v.SetDefault("processing.max_concurrent", 1)
	v.SetDefault("processing.queue_size", 32)
	v.SetDefault("processing.languages", []string{"eng"})
	v.SetDefault("processing.pdftoppm_path", "pdftoppm")
	v.SetDefault("processing.tesseract_path", "tesseract")

	v.SetDefault("security.token_key", "") // Must be set via environment

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("DOCHERO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Comma separated env values arrive as a single element
	cfg.CORS.AllowedOrigins = splitList(cfg.CORS.AllowedOrigins)
	cfg.Processing.Languages = splitList(cfg.Processing.Languages)

	return &cfg, nil
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.FieldsFunc(item, func(r rune) bool { return r == ',' || r == ' ' }) {
			out = append(out, part)
		}
	}
	return out
}

// =============================================================================
// Validation
// =============================================================================

// ErrMissingSettings is returned by Validate when required settings are unset.
var ErrMissingSettings = errors.New("missing required settings")

// Validate reports every missing OAuth setting at once.
func (c *Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"oauth.google.client_id", c.OAuth.Google.ClientID},
		{"oauth.google.client_secret", c.OAuth.Google.ClientSecret},
		{"oauth.google.redirect_uri", c.OAuth.Google.RedirectURI},
		{"oauth.microsoft.client_id", c.OAuth.Microsoft.ClientID},
		{"oauth.microsoft.client_secret", c.OAuth.Microsoft.ClientSecret},
		{"oauth.microsoft.redirect_uri", c.OAuth.Microsoft.RedirectURI},
	}

	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSettings, strings.Join(missing, ", "))
	}
	return nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
