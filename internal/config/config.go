// Package config defines the gateway configuration and its validation
// rules. Values come from a TOML file merged over defaults, then from
// environment variables (the canonical deploy-time interface).
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Session    SessionConfig    `toml:"session"`
	AuthLimit  AuthLimitConfig  `toml:"auth_rate_limit"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Dome       DomeConfig       `toml:"dome"`
	Builder    BuilderConfig    `toml:"builder"`
	Tp         TpConfig         `toml:"tp"`

	// WebExperiment gates startup. The gateway refuses to run unless this
	// is explicitly enabled, so the experiment cannot be deployed by
	// accident.
	WebExperiment bool   `toml:"web_experiment"`
	LogLevel      string `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	UIDir       string   `toml:"ui_dir"` // static UI mount; empty disables
}

// SessionConfig holds cookie and TTL parameters for the auth handshake.
type SessionConfig struct {
	CookieName      string `toml:"cookie_name"`
	TTLSeconds      int    `toml:"ttl_seconds"`
	NonceTTLSeconds int    `toml:"nonce_ttl_seconds"`
}

// AuthLimitConfig holds the sliding-window rate limit applied to the two
// unauthenticated auth endpoints.
type AuthLimitConfig struct {
	MaxRequests   int `toml:"max_requests"`
	WindowSeconds int `toml:"window_seconds"`
}

// PolymarketConfig holds CLOB and Gamma endpoints plus chain parameters.
type PolymarketConfig struct {
	ClobHost  string `toml:"clob_host"`
	GammaHost string `toml:"gamma_host"`
	ChainID   int64  `toml:"chain_id"`
}

// DomeConfig holds the wallet-metadata service parameters. An empty APIKey
// disables the resolver's metadata lookup (logins still succeed in EOA
// mode).
type DomeConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// BuilderConfig holds builder-program credentials for order attribution.
// Either the three key fields are set together, or SigningURL points at a
// remote signing service, or all are empty (attribution disabled).
type BuilderConfig struct {
	APIKey        string `toml:"api_key"`
	APISecret     string `toml:"api_secret"`
	APIPassphrase string `toml:"api_passphrase"`
	SigningURL    string `toml:"signing_url"`
}

// TpConfig holds take-profit engine defaults.
type TpConfig struct {
	PollSeconds float64 `toml:"poll_seconds"`
	MaxMinutes  int     `toml:"max_minutes"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"*"},
			UIDir:       "ui",
		},
		Session: SessionConfig{
			CookieName:      "session",
			TTLSeconds:      86400,
			NonceTTLSeconds: 300,
		},
		AuthLimit: AuthLimitConfig{
			MaxRequests:   10,
			WindowSeconds: 60,
		},
		Polymarket: PolymarketConfig{
			ClobHost:  "https://clob.polymarket.com",
			GammaHost: "https://gamma-api.polymarket.com",
			ChainID:   137,
		},
		Dome: DomeConfig{
			BaseURL: "https://api.domeapi.io/v1",
		},
		Tp: TpConfig{
			PollSeconds: 4,
			MaxMinutes:  60,
		},
		WebExperiment: false,
		LogLevel:      "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !c.WebExperiment {
		errs = append(errs, "web_experiment is disabled; set WEB_EXPERIMENT=1 to run this service")
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if c.Session.CookieName == "" {
		errs = append(errs, "session: cookie_name must not be empty")
	}
	if c.Session.TTLSeconds <= 0 {
		errs = append(errs, "session: ttl_seconds must be > 0")
	}
	if c.Session.NonceTTLSeconds <= 0 {
		errs = append(errs, "session: nonce_ttl_seconds must be > 0")
	}

	if c.AuthLimit.MaxRequests < 1 {
		errs = append(errs, "auth_rate_limit: max_requests must be >= 1")
	}
	if c.AuthLimit.WindowSeconds < 1 {
		errs = append(errs, "auth_rate_limit: window_seconds must be >= 1")
	}

	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}

	// Builder: the three key fields all set together, or none.
	bk := c.Builder.APIKey != ""
	bs := c.Builder.APISecret != ""
	bp := c.Builder.APIPassphrase != ""
	if (bk || bs || bp) && !(bk && bs && bp) {
		errs = append(errs, "builder: api_key, api_secret, and api_passphrase must all be set together")
	}

	if c.Tp.PollSeconds <= 0 {
		errs = append(errs, "tp: poll_seconds must be > 0")
	}
	if c.Tp.MaxMinutes < 1 || c.Tp.MaxMinutes > 180 {
		errs = append(errs, fmt.Sprintf("tp: max_minutes must be 1-180, got %d", c.Tp.MaxMinutes))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
