package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v8"
)

type Config struct {
	// HTTP Server
	Port          string   `env:"PORT" envDefault:"8081"`
	PublicBaseURL string   `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8081"`
	AllowedOrigin []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	RateLimit     int      `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// Backend selection
	DataBackend  string `env:"DATA_BACKEND" envDefault:"memory"`
	SQLiteDBPath string `env:"SQLITE_DB_PATH" envDefault:"./data/balancio.db"`

	// AMQP. An empty URL means alerts are dispatched in-process.
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"balancio"`
	AMQPQueue    string `env:"AMQP_QUEUE" envDefault:"budget_alerts"`

	Auth     AuthConfig     `envPrefix:"AUTH_"`
	OAuth    OAuthConfig    `envPrefix:"OAUTH_"`
	Telegram TelegramConfig `envPrefix:"TELEGRAM_"`
	Sheets   SheetsConfig   `envPrefix:"GOOGLE_"`

	// Dashboard cache
	CacheSize int           `env:"DASHBOARD_CACHE_SIZE" envDefault:"1000"`
	CacheTTL  time.Duration `env:"DASHBOARD_CACHE_TTL" envDefault:"5m"`

	// Report worker
	ReportInterval time.Duration `env:"REPORT_INTERVAL" envDefault:"1h"`
	ReportSchedule string        `env:"REPORT_SCHEDULE" envDefault:"monthly"`
}

type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	Issuer    string        `env:"ISSUER" envDefault:"balancio"`
}

type OAuthConfig struct {
	GoogleClientID     string        `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string        `env:"GOOGLE_CLIENT_SECRET"`
	GitHubClientID     string        `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string        `env:"GITHUB_CLIENT_SECRET"`
	FlowTimeout        time.Duration `env:"FLOW_TIMEOUT" envDefault:"2m"`
}

type TelegramConfig struct {
	Token   string `env:"TOKEN"`
	Timeout int    `env:"TIMEOUT" envDefault:"60"`
}

// SheetsConfig drives the spreadsheet export used by balancioctl.
type SheetsConfig struct {
	SpreadsheetID   string `env:"SPREADSHEET_ID"`
	SheetName       string `env:"SHEET_NAME" envDefault:"Transactions"`
	CredentialsFile string `env:"APPLICATION_CREDENTIALS"`
	OAuthClientFile string `env:"OAUTH_CLIENT_FILE"`
	OAuthTokenFile  string `env:"OAUTH_TOKEN_FILE"`
	OAuthClientJSON string `env:"OAUTH_CLIENT_JSON"`
	OAuthTokenJSON  string `env:"OAUTH_TOKEN_JSON"`
}

var (
	validBackends   = []string{"memory", "sqlite"}
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
	validSchedules  = []string{"monthly", "weekly"}
)

const minSecretLen = 32

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration used by the API and workers and
// returns every problem at once.
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}
	if !slices.Contains(validLogLevels, strings.ToLower(c.LogLevel)) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLogLevels))
	}
	if !slices.Contains(validLogFormats, strings.ToLower(c.LogFormat)) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validLogFormats))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if len(c.Auth.JWTSecret) < minSecretLen {
		errors = append(errors, fmt.Sprintf("AUTH_JWT_SECRET must be at least %d characters", minSecretLen))
	}
	if c.Auth.TokenTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid token TTL %v: must be at least 1 minute", c.Auth.TokenTTL))
	}

	if (c.OAuth.GoogleClientID == "") != (c.OAuth.GoogleClientSecret == "") {
		errors = append(errors, "Google OAuth needs both OAUTH_GOOGLE_CLIENT_ID and OAUTH_GOOGLE_CLIENT_SECRET")
	}
	if (c.OAuth.GitHubClientID == "") != (c.OAuth.GitHubClientSecret == "") {
		errors = append(errors, "GitHub OAuth needs both OAUTH_GITHUB_CLIENT_ID and OAUTH_GITHUB_CLIENT_SECRET")
	}
	if c.OAuth.GoogleClientID != "" || c.OAuth.GitHubClientID != "" {
		if u, err := url.Parse(c.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid public base URL '%s': OAuth callbacks need an absolute URL", c.PublicBaseURL))
		}
	}
	if c.OAuth.FlowTimeout < 10*time.Second || c.OAuth.FlowTimeout > 30*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid OAuth flow timeout %v: must be between 10s and 30m", c.OAuth.FlowTimeout))
	}

	if c.RateLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimit))
	}

	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid dashboard cache size %d: must be at least 1", c.CacheSize))
	} else if c.CacheSize > 100000 {
		errors = append(errors, fmt.Sprintf("invalid dashboard cache size %d: must be at most 100000", c.CacheSize))
	}

	if c.ReportInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid report interval %v: must be at least 1 second", c.ReportInterval))
	} else if c.ReportInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid report interval %v: must be at most 24 hours", c.ReportInterval))
	}
	if !slices.Contains(validSchedules, c.ReportSchedule) {
		errors = append(errors, fmt.Sprintf("invalid report schedule '%s': must be one of %v", c.ReportSchedule, validSchedules))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateSheets checks the settings needed by the spreadsheet export.
func (c *Config) ValidateSheets() error {
	var errors []string
	s := c.Sheets

	if s.SpreadsheetID == "" {
		errors = append(errors, "GOOGLE_SPREADSHEET_ID is required for sheets export")
	}
	if s.SheetName == "" {
		errors = append(errors, "GOOGLE_SHEET_NAME is required for sheets export")
	}

	hasServiceAccount := s.CredentialsFile != ""
	hasClient := s.OAuthClientFile != "" || s.OAuthClientJSON != ""
	hasToken := s.OAuthTokenFile != "" || s.OAuthTokenJSON != ""
	if !hasServiceAccount && !(hasClient && hasToken) {
		errors = append(errors, "either GOOGLE_APPLICATION_CREDENTIALS or an OAuth client and token must be provided for sheets export")
	}

	for _, f := range []string{s.CredentialsFile, s.OAuthClientFile, s.OAuthTokenFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", f))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("sheets configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}
