package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/opipolix/webgate/internal/domain"
	"github.com/opipolix/webgate/internal/orders"
	"github.com/opipolix/webgate/internal/server/middleware"
	"github.com/opipolix/webgate/internal/tp"
)

// TpHandler exposes the take-profit engine.
type TpHandler struct {
	engine    *tp.Engine
	validator *orders.Validator
	logger    *slog.Logger
}

// NewTpHandler wires the TP endpoints.
func NewTpHandler(engine *tp.Engine, validator *orders.Validator, logger *slog.Logger) *TpHandler {
	return &TpHandler{
		engine:    engine,
		validator: validator,
		logger:    logHandler(logger, "tp"),
	}
}

// rawSignedTpOrder is the wire form of one pre-signed exit. The order
// arrives as a raw object so the same tolerant field coercion that
// /order/limit applies covers TP exits as well.
type rawSignedTpOrder struct {
	LevelIndex int            `json:"level_index"`
	OrderType  string         `json:"order_type"`
	Order      map[string]any `json:"signed_order"`
}

// armRequestBody is the POST /api/tp/arm wire payload.
type armRequestBody struct {
	EntryOrderID    string             `json:"entry_order_id"`
	TokenID         string             `json:"token_id"`
	EntrySizeTokens float64            `json:"entry_size_tokens"`
	Mode            string             `json:"mode"`
	Levels          []domain.TpLevel   `json:"levels"`
	SignedTpOrders  []rawSignedTpOrder `json:"signed_tp_orders"`
	MaxMinutes      int                `json:"max_minutes"`
}

// Arm handles POST /api/tp/arm. Every pre-signed exit order is normalized
// and re-validated against the session before the arm is accepted; exits
// must be SELL orders for the entry token.
func (h *TpHandler) Arm(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFrom(r.Context())
	if sess == nil {
		writeError(w, domain.ErrUnauthenticated)
		return
	}

	var body armRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req := tp.ArmRequest{
		EntryOrderID:    body.EntryOrderID,
		TokenID:         body.TokenID,
		EntrySizeTokens: body.EntrySizeTokens,
		Mode:            body.Mode,
		Levels:          body.Levels,
		SignedTpOrders:  make([]domain.SignedTpOrder, 0, len(body.SignedTpOrders)),
		MaxMinutes:      body.MaxMinutes,
	}

	for _, item := range body.SignedTpOrders {
		order, err := orders.NormalizeSignedOrder(item.Order)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := h.validator.Validate(order, sess, body.TokenID, domain.SideSell); err != nil {
			writeError(w, err)
			return
		}
		req.SignedTpOrders = append(req.SignedTpOrders, domain.SignedTpOrder{
			LevelIndex: item.LevelIndex,
			OrderType:  item.OrderType,
			Order:      order,
		})
	}

	arm, err := h.engine.Arm(sess, req)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("tp armed",
		slog.String("eoa", sess.EOAAddress),
		slog.String("arm_id", arm.ArmID),
		slog.Int("levels", len(arm.Levels)))

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "armed",
		"arm_id":         arm.ArmID,
		"entry_order_id": arm.EntryOrderID,
	})
}

// Status handles GET /api/tp/status?arm_id=. Without arm_id it lists every
// arm the session owns. An unknown or foreign arm_id yields an empty list,
// not an error, so other users' arm IDs stay unguessable.
func (h *TpHandler) Status(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFrom(r.Context())
	if sess == nil {
		writeError(w, domain.ErrUnauthenticated)
		return
	}

	armID := strings.TrimSpace(r.URL.Query().Get("arm_id"))
	arms := h.engine.Status(sess.EOAAddress, armID)

	writeJSON(w, http.StatusOK, map[string]any{"arms": arms})
}

// Cancel handles POST /api/tp/cancel/{arm_id}.
func (h *TpHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFrom(r.Context())
	if sess == nil {
		writeError(w, domain.ErrUnauthenticated)
		return
	}

	armID := strings.TrimSpace(r.PathValue("arm_id"))
	if armID == "" {
		writeDetail(w, http.StatusBadRequest, "arm_id is required")
		return
	}

	if err := h.engine.Cancel(sess.EOAAddress, armID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "cancelled",
		"arm_id": armID,
	})
}
