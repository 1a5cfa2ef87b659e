// Package auth implements the login handshake: the SIWE (Sign-In With
// Ethereum) challenge, the ClobAuth EIP-712 verification, and derivation of
// Level-2 API credentials from the CLOB auth endpoints.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/opipolix/webgate/internal/crypto"
	"github.com/opipolix/webgate/internal/domain"
)

// NoncePlaceholder is the slot in a stored SIWE template that the issued
// nonce is substituted into. Storing the template rather than the final
// message freezes the Issued At line at nonce-creation time.
const NoncePlaceholder = "{nonce}"

// BuildSIWETemplate renders the SIWE challenge with a frozen Issued At
// timestamp (UTC, seconds precision) and the nonce placeholder unfilled.
func BuildSIWETemplate(address string, chainID int64, now time.Time) string {
	issuedAt := now.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05") + "Z"
	return "OpiPoliX Web Experiment\n" +
		"Sign this message to authenticate.\n\n" +
		"Address: " + address + "\n" +
		"Chain ID: " + strconv.FormatInt(chainID, 10) + "\n" +
		"Nonce: " + NoncePlaceholder + "\n" +
		"Issued At: " + issuedAt
}

// FillNonce substitutes the nonce into a SIWE template.
func FillNonce(template, nonce string) string {
	return strings.ReplaceAll(template, NoncePlaceholder, nonce)
}

// VerifySIWE checks the client-submitted message byte-for-byte against the
// stored template with the nonce substituted, then recovers the
// personal_sign signature and compares it to the claimed address.
func VerifySIWE(address, messageTemplate, nonce, submittedMessage, signature string) error {
	expected := FillNonce(messageTemplate, nonce)
	if submittedMessage != expected {
		return fmt.Errorf("auth: %w: signed message mismatch", domain.ErrAuthInvalid)
	}

	recovered, err := crypto.RecoverPersonalSigner(submittedMessage, signature)
	if err != nil {
		return fmt.Errorf("auth: %w: invalid signature: %v", domain.ErrAuthInvalid, err)
	}
	if !strings.EqualFold(recovered.Hex(), address) {
		return fmt.Errorf("auth: %w: SIWE signature address mismatch", domain.ErrAuthInvalid)
	}
	return nil
}

// VerifyClobAuth checks the ClobAuth EIP-712 signature against the claimed
// address.
func VerifyClobAuth(address, signature string, timestamp, nonce, chainID int64) error {
	recovered, err := crypto.RecoverClobAuthSigner(address, signature, timestamp, nonce, chainID)
	if err != nil {
		return fmt.Errorf("auth: %w: invalid CLOB auth signature: %v", domain.ErrAuthInvalid, err)
	}
	if !strings.EqualFold(recovered.Hex(), address) {
		return fmt.Errorf("auth: %w: CLOB auth signer mismatch", domain.ErrAuthInvalid)
	}
	return nil
}

// CredsDeriver exchanges a ClobAuth signature for Level-2 API credentials
// at the CLOB's auth endpoints.
type CredsDeriver struct {
	clobHost   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewCredsDeriver creates a deriver against the given CLOB host.
func NewCredsDeriver(clobHost string, logger *slog.Logger) *CredsDeriver {
	return &CredsDeriver{
		clobHost:   strings.TrimRight(clobHost, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With(slog.String("component", "creds_deriver")),
	}
}

// Derive creates or derives the API credentials bound to the address. It
// tries POST /auth/api-key first (creates on first login) and falls back to
// GET /auth/derive-api-key (returns the existing key). Both failing is a
// CredentialDerivationFailed with both status codes in the message.
func (d *CredsDeriver) Derive(ctx context.Context, address, signature string, timestamp, nonce int64) (domain.ClobCreds, error) {
	headers := map[string]string{
		"POLY_ADDRESS":   address,
		"POLY_SIGNATURE": signature,
		"POLY_TIMESTAMP": strconv.FormatInt(timestamp, 10),
		"POLY_NONCE":     strconv.FormatInt(nonce, 10),
	}

	createStatus, payload, err := d.do(ctx, http.MethodPost, "/auth/api-key", headers)
	if err == nil && createStatus < 300 {
		return parseCredsPayload(payload)
	}

	deriveStatus, payload, err := d.do(ctx, http.MethodGet, "/auth/derive-api-key", headers)
	if err != nil {
		return domain.ClobCreds{}, fmt.Errorf("auth: %w: create=%d, derive unreachable: %v",
			domain.ErrCredentialDerivation, createStatus, err)
	}
	if deriveStatus >= 300 {
		return domain.ClobCreds{}, fmt.Errorf("auth: %w: create=%d, derive=%d",
			domain.ErrCredentialDerivation, createStatus, deriveStatus)
	}

	d.logger.Info("derived existing api key",
		slog.String("address", address),
		slog.Int("create_status", createStatus))
	return parseCredsPayload(payload)
}

func (d *CredsDeriver) do(ctx context.Context, method, path string, headers map[string]string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, d.clobHost+path, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// parseCredsPayload validates that the auth response carries all three
// credential fields.
func parseCredsPayload(body []byte) (domain.ClobCreds, error) {
	var payload struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.ClobCreds{}, fmt.Errorf("auth: %w: %v", domain.ErrCredentialPayload, err)
	}
	if payload.APIKey == "" || payload.Secret == "" || payload.Passphrase == "" {
		return domain.ClobCreds{}, fmt.Errorf("auth: %w: payload missing fields", domain.ErrCredentialPayload)
	}
	return domain.ClobCreds{
		APIKey:        payload.APIKey,
		APISecret:     payload.Secret,
		APIPassphrase: payload.Passphrase,
	}, nil
}
