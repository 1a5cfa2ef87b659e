package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/opipolix/webgate/internal/domain"
)

// L2Signer signs CLOB Level-2 requests with HMAC-SHA256 using credentials
// derived for the session's EOA. The message is timestamp+method+path+body;
// the secret is base64-decoded before use.
type L2Signer struct {
	Address string // checksummed EOA the credentials belong to
	Creds   domain.ClobCreds
}

// Headers returns the POLY_* headers for one L2 request.
func (s *L2Signer) Headers(method, path, body string) map[string]string {
	return s.HeadersAt(method, path, body, time.Now().Unix())
}

// HeadersAt is Headers with a caller-supplied Unix timestamp, for
// deterministic tests.
func (s *L2Signer) HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)

	secret, err := base64.URLEncoding.DecodeString(s.Creds.APISecret)
	if err != nil {
		// A malformed secret yields an obviously-wrong signature rather
		// than a panic; the CLOB rejects the request with a clear 401.
		secret = []byte(s.Creds.APISecret)
	}

	sig := hmacSHA256Base64(secret, ts+method+path+body)

	return map[string]string{
		"POLY_ADDRESS":    s.Address,
		"POLY_API_KEY":    s.Creds.APIKey,
		"POLY_TIMESTAMP":  ts,
		"POLY_PASSPHRASE": s.Creds.APIPassphrase,
		"POLY_SIGNATURE":  sig,
	}
}

// BuilderCreds holds Polymarket builder-program credentials used to
// attribute orders posted on behalf of users.
type BuilderCreds struct {
	Key        string
	Secret     string
	Passphrase string
}

// Headers returns the POLY_BUILDER_* attribution headers for one request.
// The builder secret is used raw (it is not base64-encoded).
func (b *BuilderCreds) Headers(method, path, body string) map[string]string {
	return b.HeadersAt(method, path, body, time.Now().Unix())
}

// HeadersAt is Headers with a caller-supplied Unix timestamp.
func (b *BuilderCreds) HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	sig := hmacSHA256Base64([]byte(b.Secret), ts+method+path+body)

	return map[string]string{
		"POLY_BUILDER_API_KEY":    b.Key,
		"POLY_BUILDER_TIMESTAMP":  ts,
		"POLY_BUILDER_PASSPHRASE": b.Passphrase,
		"POLY_BUILDER_SIGNATURE":  sig,
	}
}

func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

// Redacted returns a loggable form of the credentials.
func Redacted(creds domain.ClobCreds) string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("creds{key=%s, secret=%s}", redact(creds.APIKey), redact(creds.APISecret))
}
