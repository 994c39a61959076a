package config

import (
	"fmt"
	"net/url"
	"time"
)

const (
	DefaultAuthURL   = "https://api.mercadolibre.com/oauth/token"
	DefaultOrdersURL = "https://api.mercadolibre.com/orders/search"
)

// Config represents the complete application configuration.
type Config struct {
	Version     string            `yaml:"version"`
	Server      ServerConfig      `yaml:"server"`
	API         APIConfig         `yaml:"api"`
	Sync        SyncConfig        `yaml:"sync"`
	Marketplace MarketplaceConfig `yaml:"marketplace"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	Accounts    []AccountConfig   `yaml:"accounts,omitempty"`
}

// ServerConfig contains server-related configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
}

// APIConfig contains front door configuration.
type APIConfig struct {
	Auth         AuthConfig      `yaml:"auth"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
	MaxBodyBytes int64           `yaml:"max_body_bytes"`
}

// AuthConfig protects the manual sync trigger.
type AuthConfig struct {
	Enabled    bool     `yaml:"enabled"`
	APIKeys    []string `yaml:"api_keys"`
	HeaderName string   `yaml:"header_name"`
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// SyncConfig controls the cycle scheduler and order aggregation.
type SyncConfig struct {
	Interval       time.Duration `yaml:"interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// UTCOffset defines the marketplace calendar day. Default: -3h.
	UTCOffset  time.Duration `yaml:"utc_offset"`
	PageSize   int           `yaml:"page_size"`
	MaxOffset  int           `yaml:"max_offset"`
	RunOnStart bool          `yaml:"run_on_start"`
}

// Location returns the fixed zone used to pick the sync date.
func (s SyncConfig) Location() *time.Location {
	hours := int(s.UTCOffset / time.Hour)
	return time.FixedZone(fmt.Sprintf("UTC%+d", hours), int(s.UTCOffset/time.Second))
}

// MarketplaceConfig contains the marketplace endpoints.
type MarketplaceConfig struct {
	AuthURL   string `yaml:"auth_url"`
	OrdersURL string `yaml:"orders_url"`
	UserAgent string `yaml:"user_agent"`
}

// LedgerConfig selects where tokens and ledger rows are persisted.
type LedgerConfig struct {
	// Backend is one of: postgrest, sqlite, memory.
	// Default: postgrest when url is set, sqlite otherwise.
	Backend     string `yaml:"backend"`
	URL         string `yaml:"url"`
	ServiceKey  string `yaml:"service_key"`
	LedgerTable string `yaml:"ledger_table"`
	TokensTable string `yaml:"tokens_table"`
	DBPath      string `yaml:"db_path"`
}

// TelegramConfig contains Telegram bot configuration.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// AccountConfig describes a seller account declared in YAML.
type AccountConfig struct {
	Name         string `yaml:"name"`
	Empresa      string `yaml:"empresa"`
	UserID       string `yaml:"user_id"`
	AppID        string `yaml:"app_id"`
	SecretKey    string `yaml:"secret_key"`
	RefreshToken string `yaml:"refresh_token"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Version == "" {
		c.Version = "1"
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	if err := c.Marketplace.Validate(); err != nil {
		return fmt.Errorf("marketplace: %w", err)
	}

	if err := c.Ledger.Validate(); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}

	if err := c.Telegram.Validate(); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	seen := make(map[string]bool, len(c.Accounts))
	for i := range c.Accounts {
		if err := c.Accounts[i].Validate(); err != nil {
			return fmt.Errorf("account[%d]: %w", i, err)
		}
		if seen[c.Accounts[i].Name] {
			return fmt.Errorf("account[%d]: duplicate name %s", i, c.Accounts[i].Name)
		}
		seen[c.Accounts[i].Name] = true
	}

	return nil
}

// Validate validates server configuration.
func (s *ServerConfig) Validate() error {
	if s.Host == "" {
		s.Host = "0.0.0.0"
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535")
	}
	if s.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 30 * time.Second
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.LogFormat == "" {
		s.LogFormat = "json"
	}
	return nil
}

// Validate validates API configuration.
func (a *APIConfig) Validate() error {
	if a.Auth.Enabled && len(a.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth: api_keys is required when auth is enabled")
	}
	if a.Auth.HeaderName == "" {
		a.Auth.HeaderName = "X-API-Key"
	}
	if a.RateLimit.RequestsPerMinute <= 0 {
		a.RateLimit.RequestsPerMinute = 120
	}
	// Cap rate limit to prevent abuse
	if a.RateLimit.RequestsPerMinute > 100000 {
		a.RateLimit.RequestsPerMinute = 100000
	}
	if a.RateLimit.Burst <= 0 {
		a.RateLimit.Burst = 20
	}
	if a.MaxBodyBytes <= 0 {
		a.MaxBodyBytes = 1 << 20
	}
	return nil
}

// Validate validates sync configuration.
func (s *SyncConfig) Validate() error {
	if s.Interval < 0 || s.RequestTimeout < 0 {
		return fmt.Errorf("durations cannot be negative")
	}
	if s.Interval == 0 {
		s.Interval = 5 * time.Minute
	}
	if s.RequestTimeout == 0 {
		s.RequestTimeout = 30 * time.Second
	}
	if s.UTCOffset%time.Hour != 0 || s.UTCOffset < -12*time.Hour || s.UTCOffset > 14*time.Hour {
		return fmt.Errorf("utc_offset must be a whole number of hours between -12h and +14h")
	}
	if s.PageSize <= 0 {
		s.PageSize = 50
	}
	if s.MaxOffset <= 0 {
		s.MaxOffset = 500
	}
	return nil
}

// Validate validates marketplace configuration.
func (m *MarketplaceConfig) Validate() error {
	if m.AuthURL == "" {
		m.AuthURL = DefaultAuthURL
	}
	if m.OrdersURL == "" {
		m.OrdersURL = DefaultOrdersURL
	}
	for _, raw := range []string{m.AuthURL, m.OrdersURL} {
		if _, err := url.ParseRequestURI(raw); err != nil {
			return fmt.Errorf("invalid url %q: %w", raw, err)
		}
	}
	if m.UserAgent == "" {
		m.UserAgent = "melisync/1.0"
	}
	return nil
}

// Validate validates ledger configuration.
func (l *LedgerConfig) Validate() error {
	if l.Backend == "" {
		if l.URL != "" {
			l.Backend = "postgrest"
		} else {
			l.Backend = "sqlite"
		}
	}
	switch l.Backend {
	case "postgrest":
		if l.URL == "" {
			return fmt.Errorf("url is required for the postgrest backend")
		}
		if l.ServiceKey == "" {
			return fmt.Errorf("service_key is required for the postgrest backend")
		}
	case "sqlite":
		if l.DBPath == "" {
			l.DBPath = "data/melisync.db"
		}
	case "memory":
	default:
		return fmt.Errorf("backend must be one of: postgrest, sqlite, memory")
	}
	if l.LedgerTable == "" {
		l.LedgerTable = "faturamento"
	}
	if l.TokensTable == "" {
		l.TokensTable = "meli_tokens"
	}
	return nil
}

// Validate validates telegram configuration.
func (t *TelegramConfig) Validate() error {
	if !t.Enabled {
		return nil
	}
	if t.BotToken == "" {
		return fmt.Errorf("bot_token is required when telegram is enabled")
	}
	if t.ChatID == 0 {
		return fmt.Errorf("chat_id is required when telegram is enabled")
	}
	return nil
}

// Validate validates an account declared in YAML.
func (a *AccountConfig) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("name is required")
	}
	if a.AppID == "" || a.SecretKey == "" || a.RefreshToken == "" || a.UserID == "" {
		return fmt.Errorf("%s: app_id, secret_key, refresh_token and user_id are required", a.Name)
	}
	if a.Empresa == "" {
		a.Empresa = a.Name
	}
	return nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	_ = cfg.Validate()
	return cfg
}

func applyDefaults(c *Config) {
	c.Server.HTTPPort = 8080
	c.Server.ShutdownTimeout = 30 * time.Second
	c.Server.LogLevel = "info"
	c.Server.LogFormat = "json"
	c.Sync.Interval = 5 * time.Minute
	c.Sync.RequestTimeout = 30 * time.Second
	c.Sync.UTCOffset = -3 * time.Hour
	c.Sync.PageSize = 50
	c.Sync.MaxOffset = 500
	c.Sync.RunOnStart = true
}
