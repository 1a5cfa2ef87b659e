package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/opipolix/webgate/internal/domain"
	"github.com/opipolix/webgate/internal/orders"
	"github.com/opipolix/webgate/internal/platform/polymarket"
	"github.com/opipolix/webgate/internal/server/middleware"
	"github.com/opipolix/webgate/internal/store/memory"
)

// SessionClientFactory builds a per-request CLOB client bound to a session's
// credentials and trading context.
type SessionClientFactory func(sess *domain.Session) (*polymarket.SessionClient, error)

// OrderHandler forwards browser-signed orders to the CLOB after server-side
// re-validation.
type OrderHandler struct {
	store      *memory.Store
	validator  *orders.Validator
	newSession SessionClientFactory
	logger     *slog.Logger
}

// NewOrderHandler wires the order endpoints.
func NewOrderHandler(store *memory.Store, validator *orders.Validator, newSession SessionClientFactory, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		store:      store,
		validator:  validator,
		newSession: newSession,
		logger:     logHandler(logger, "order"),
	}
}

// limitOrderRequest is the POST /api/order/limit body. The signed_order blob
// carries the actual EIP-712 order; the surrounding fields declare what the
// client believes it signed so the server can cross-check.
type limitOrderRequest struct {
	TokenID        string         `json:"token_id"`
	Side           string         `json:"side"`
	Outcome        string         `json:"outcome,omitempty"`
	Price          float64        `json:"price"`
	SizeUSDC       float64        `json:"size_usdc,omitempty"`
	SizeTokens     float64        `json:"size_tokens,omitempty"`
	OrderType      string         `json:"order_type,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	SignedOrder    map[string]any `json:"signed_order"`
}

// PlaceLimit handles POST /api/order/limit.
func (h *OrderHandler) PlaceLimit(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFrom(r.Context())
	if sess == nil {
		writeError(w, domain.ErrUnauthenticated)
		return
	}

	var req limitOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.SignedOrder) == 0 {
		writeDetail(w, http.StatusBadRequest, "signed_order is required")
		return
	}
	if len(strings.TrimSpace(req.TokenID)) < 10 {
		writeDetail(w, http.StatusBadRequest, "token_id is required")
		return
	}

	// The idempotency key is consumed before anything is forwarded, so a
	// client retry can never place the same order twice even when the first
	// attempt is still in flight.
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		if !h.store.MarkIdempotent("order:" + sess.EOAAddress + ":" + key) {
			writeJSON(w, http.StatusOK, map[string]any{
				"status": "duplicate",
				"detail": "idempotency_key already used",
			})
			return
		}
	}

	order, err := orders.NormalizeSignedOrder(req.SignedOrder)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.validator.Validate(order, sess, req.TokenID, req.Side); err != nil {
		writeError(w, err)
		return
	}

	client, err := h.newSession(sess)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := client.PostSignedOrder(r.Context(), order, req.OrderType)
	if err != nil {
		writeError(w, err)
		return
	}

	entrySize := req.SizeTokens
	if entrySize <= 0 {
		entrySize = orders.EntrySizeTokens(order)
	}

	h.logger.Info("order placed",
		slog.String("eoa", sess.EOAAddress),
		slog.String("order_id", result.OrderID),
		slog.String("side", order.Side),
		slog.Float64("entry_size_tokens", entrySize))

	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "success",
		"order_id":          result.OrderID,
		"entry_size_tokens": entrySize,
		"raw":               result.Raw,
	})
}

// Cancel handles DELETE /api/order/{id}.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFrom(r.Context())
	if sess == nil {
		writeError(w, domain.ErrUnauthenticated)
		return
	}

	orderID := strings.TrimSpace(r.PathValue("id"))
	if orderID == "" {
		writeDetail(w, http.StatusBadRequest, "order id is required")
		return
	}

	client, err := h.newSession(sess)
	if err != nil {
		writeError(w, err)
		return
	}

	raw, err := client.CancelOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "cancelled",
		"order_id": orderID,
		"raw":      raw,
	})
}

// ListOpen handles GET /api/orders?market=&asset_id=.
func (h *OrderHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFrom(r.Context())
	if sess == nil {
		writeError(w, domain.ErrUnauthenticated)
		return
	}

	client, err := h.newSession(sess)
	if err != nil {
		writeError(w, err)
		return
	}

	list, err := client.GetOpenOrders(r.Context(),
		strings.TrimSpace(r.URL.Query().Get("market")),
		strings.TrimSpace(r.URL.Query().Get("asset_id")))
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []map[string]any{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"orders": list})
}
