// Package domain defines the core types shared across the gateway: sessions,
// trading contexts, signed orders, TP arms, and the error taxonomy. It has no
// dependencies on the transport or storage layers.
package domain

import "time"

// ClobCreds are Level-2 API credentials derived from the CLOB auth endpoints.
// They are secrets: they live inside sessions and arm snapshots and must
// never appear in a client-facing response.
type ClobCreds struct {
	APIKey        string `json:"api_key"`
	APISecret     string `json:"api_secret"`
	APIPassphrase string `json:"api_passphrase"`
}

// Session binds an authenticated EOA to its CLOB credentials and trading
// context. Keyed by an opaque URL-safe token carried in an HttpOnly cookie.
type Session struct {
	Token          string
	EOAAddress     string // EIP-55 checksummed
	Creds          ClobCreds
	TradingContext TradingContext
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// NonceRecord is a single-use SIWE challenge for one address. The message
// field holds the template with a literal "{nonce}" placeholder; the Issued
// At timestamp inside it is frozen at creation time.
type NonceRecord struct {
	Nonce     string
	Message   string
	CreatedAt time.Time
	ExpiresAt time.Time
}
