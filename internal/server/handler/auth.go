package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/opipolix/webgate/internal/auth"
	"github.com/opipolix/webgate/internal/crypto"
	"github.com/opipolix/webgate/internal/domain"
	"github.com/opipolix/webgate/internal/server/middleware"
	"github.com/opipolix/webgate/internal/store/memory"
)

// ContextResolver builds the trading context for a freshly authenticated EOA.
type ContextResolver interface {
	Resolve(ctx context.Context, eoaAddress string) domain.TradingContext
}

// CredsSource derives Level-2 API credentials from a ClobAuth signature.
type CredsSource interface {
	Derive(ctx context.Context, address, signature string, timestamp, nonce int64) (domain.ClobCreds, error)
}

// AuthHandler implements the SIWE handshake endpoints.
type AuthHandler struct {
	store      *memory.Store
	resolver   ContextResolver
	deriver    CredsSource
	chainID    int64
	cookieName string
	sessionTTL time.Duration
	logger     *slog.Logger
}

// NewAuthHandler wires the auth endpoints.
func NewAuthHandler(store *memory.Store, resolver ContextResolver, deriver CredsSource, chainID int64, cookieName string, sessionTTL time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		store:      store,
		resolver:   resolver,
		deriver:    deriver,
		chainID:    chainID,
		cookieName: cookieName,
		sessionTTL: sessionTTL,
		logger:     logHandler(logger, "auth"),
	}
}

// Nonce handles POST /api/auth/nonce: issue a single-use SIWE challenge for
// the address.
func (h *AuthHandler) Nonce(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	submitted := strings.TrimSpace(req.Address)
	address, err := crypto.ChecksumAddress(submitted)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid address")
		return
	}

	// The challenge echoes the address exactly as submitted; the nonce
	// record is keyed by the checksummed form.
	template := auth.BuildSIWETemplate(submitted, h.chainID, time.Now())
	rec := h.store.CreateNonce(address, template)

	writeJSON(w, http.StatusOK, map[string]any{
		"nonce":    rec.Nonce,
		"message":  auth.FillNonce(rec.Message, rec.Nonce),
		"chain_id": h.chainID,
	})
}

// verifyRequest is the POST /api/auth/verify body: the SIWE proof plus the
// ClobAuth signature the gateway exchanges for L2 credentials.
type verifyRequest struct {
	Address           string `json:"address"`
	Nonce             string `json:"nonce"`
	Message           string `json:"message"`
	Signature         string `json:"signature"`
	ChainID           int64  `json:"chain_id"`
	ClobAuthSignature string `json:"clob_auth_signature"`
	ClobAuthTimestamp int64  `json:"clob_auth_timestamp"`
	ClobAuthNonce     int64  `json:"clob_auth_nonce"`
}

// Verify handles POST /api/auth/verify: consume the nonce, check both
// signatures, derive credentials, resolve the trading context, and mint the
// session cookie.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	address, err := crypto.ChecksumAddress(strings.TrimSpace(req.Address))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid address")
		return
	}

	rec := h.store.ConsumeNonce(address, req.Nonce)
	if rec == nil {
		writeDetail(w, http.StatusBadRequest, "Nonce is invalid or expired")
		return
	}

	if err := auth.VerifySIWE(address, rec.Message, rec.Nonce, req.Message, req.Signature); err != nil {
		writeError(w, err)
		return
	}

	if req.ClobAuthSignature == "" {
		writeDetail(w, http.StatusBadRequest, "clob_auth_signature is required")
		return
	}
	// The ClobAuth payload is verified against the chain the client signed
	// for; the configured chain is the default.
	chainID := req.ChainID
	if chainID == 0 {
		chainID = h.chainID
	}
	if err := auth.VerifyClobAuth(address, req.ClobAuthSignature, req.ClobAuthTimestamp, req.ClobAuthNonce, chainID); err != nil {
		writeError(w, err)
		return
	}

	creds, err := h.deriver.Derive(r.Context(), address, req.ClobAuthSignature, req.ClobAuthTimestamp, req.ClobAuthNonce)
	if err != nil {
		writeError(w, err)
		return
	}

	tc := h.resolver.Resolve(r.Context(), address)

	sess := h.store.CreateSession(address, creds, tc)
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	h.logger.Info("login",
		slog.String("eoa", address),
		slog.String("mode", tc.Mode),
		slog.String("creds", crypto.Redacted(creds)))

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":              true,
		"eoa_address":     address,
		"trading_context": tc,
	})
}

// Me handles GET /api/me: echo the session's identity and trading context.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFrom(r.Context())
	if sess == nil {
		writeError(w, fmt.Errorf("%w", domain.ErrUnauthenticated))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"eoa_address":     sess.EOAAddress,
		"trading_context": sess.TradingContext,
		"expires_at":      sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Logout handles POST /api/auth/logout: drop the session and clear the
// cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.cookieName); err == nil {
		h.store.DeleteSession(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
