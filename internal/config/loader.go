package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path (skipped when path is empty
// or the file does not exist), merges it on top of the built-in defaults,
// applies environment variable overrides, and returns the final Config.
// The returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, err
			}
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known environment variables and overwrites
// the corresponding Config fields when a variable is set (i.e. not empty).
// This is the canonical deploy-time interface; the TOML file is optional.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setInt(&cfg.Server.Port, "PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CORS_ORIGINS")
	setStr(&cfg.Server.UIDir, "UI_DIR")

	// ── Session ──
	setStr(&cfg.Session.CookieName, "SESSION_COOKIE_NAME")
	setInt(&cfg.Session.TTLSeconds, "SESSION_TTL_SECONDS")
	setInt(&cfg.Session.NonceTTLSeconds, "NONCE_TTL_SECONDS")

	// ── Auth rate limit ──
	setInt(&cfg.AuthLimit.MaxRequests, "AUTH_RATE_LIMIT_MAX_REQUESTS")
	setInt(&cfg.AuthLimit.WindowSeconds, "AUTH_RATE_LIMIT_WINDOW_SECONDS")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "GAMMA_HOST")
	setInt64(&cfg.Polymarket.ChainID, "CHAIN_ID")

	// ── Dome ──
	setStr(&cfg.Dome.APIKey, "DOME_API_KEY")
	setStr(&cfg.Dome.BaseURL, "DOME_BASE_URL")

	// ── Builder ──
	setStr(&cfg.Builder.APIKey, "BUILDER_API_KEY")
	setStr(&cfg.Builder.APISecret, "BUILDER_SECRET") // compatibility alias
	setStr(&cfg.Builder.APISecret, "BUILDER_API_SECRET")
	setStr(&cfg.Builder.APIPassphrase, "BUILDER_PASS_PHRASE") // compatibility alias
	setStr(&cfg.Builder.APIPassphrase, "BUILDER_PASSPHRASE")  // compatibility alias
	setStr(&cfg.Builder.APIPassphrase, "BUILDER_API_PASSPHRASE")
	setStr(&cfg.Builder.SigningURL, "BUILDER_SIGNING_URL")

	// ── Take-profit ──
	setFloat64(&cfg.Tp.PollSeconds, "TP_POLL_SECONDS")
	setInt(&cfg.Tp.MaxMinutes, "TP_MAX_MINUTES")

	// ── Top-level ──
	setTruthy(&cfg.WebExperiment, "WEB_EXPERIMENT")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

// setTruthy accepts the usual affirmative spellings ("1", "true", "yes",
// "on", case-insensitive); any other non-empty value disables the flag.
func setTruthy(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			*dst = true
		default:
			*dst = false
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
