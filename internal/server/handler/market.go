package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/opipolix/webgate/internal/crypto"
	"github.com/opipolix/webgate/internal/domain"
	"github.com/opipolix/webgate/internal/platform/polymarket"
	"github.com/opipolix/webgate/internal/server/middleware"
)

// MarketSearcher is the search slice of the resolver.
type MarketSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error)
}

// MarketHandler serves market discovery and per-token trading metadata.
type MarketHandler struct {
	search     MarketSearcher
	public     *polymarket.PublicClient
	newSession SessionClientFactory
	chainID    int64
	logger     *slog.Logger
}

// NewMarketHandler wires the market endpoints.
func NewMarketHandler(search MarketSearcher, public *polymarket.PublicClient, newSession SessionClientFactory, chainID int64, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		search:     search,
		public:     public,
		newSession: newSession,
		chainID:    chainID,
		logger:     logHandler(logger, "market"),
	}
}

// Search handles GET /api/search?query=&limit= and responds with a bare
// array of results. "q" is accepted as an alias for "query".
func (h *MarketHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		query = strings.TrimSpace(r.URL.Query().Get("q"))
	}
	if len(query) < 2 {
		writeDetail(w, http.StatusBadRequest, "Query must be at least 2 characters")
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 50 {
			writeDetail(w, http.StatusBadRequest, "limit must be 1-50")
			return
		}
		limit = n
	}

	results, err := h.search.Search(r.Context(), query, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if results == nil {
		results = []domain.SearchResult{}
	}

	writeJSON(w, http.StatusOK, results)
}

// TokenMeta handles GET /api/token/meta?token_id=. Neg-risk, tick size, and
// the exchange address are required; fee rate and book-derived fields are
// best effort.
func (h *MarketHandler) TokenMeta(w http.ResponseWriter, r *http.Request) {
	tokenID := strings.TrimSpace(r.URL.Query().Get("token_id"))
	if len(tokenID) < 10 {
		writeDetail(w, http.StatusBadRequest, "token_id is required")
		return
	}

	ctx := r.Context()

	negRisk, err := h.public.GetNegRisk(ctx, tokenID)
	if err != nil {
		writeError(w, err)
		return
	}
	tickSize, err := h.public.GetTickSize(ctx, tokenID)
	if err != nil {
		writeError(w, err)
		return
	}

	feeRateBps, _ := h.public.GetFeeRateBps(ctx, tokenID)

	exchange := ""
	if cfg, err := crypto.GetContractConfig(h.chainID, negRisk); err == nil {
		exchange = cfg.Exchange
	}

	meta := domain.TokenMeta{
		TokenID:         tokenID,
		ChainID:         h.chainID,
		NegRisk:         negRisk,
		TickSize:        tickSize,
		FeeRateBps:      feeRateBps,
		ExchangeAddress: exchange,
	}

	if book, err := h.public.GetOrderBook(ctx, tokenID); err == nil {
		meta.Market = book.Market
		meta.MinOrderSize = book.MinOrderSize
		meta.BestBid = book.BestBid()
		meta.BestAsk = book.BestAsk()
	} else {
		h.logger.Debug("order book lookup failed",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()))
	}

	writeJSON(w, http.StatusOK, meta)
}

// TokenAllowance handles GET /api/token/allowance?token_id=. It reports the
// session funder's collateral balance and the conditional-token balance for
// the named token.
func (h *MarketHandler) TokenAllowance(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFrom(r.Context())
	if sess == nil {
		writeError(w, domain.ErrUnauthenticated)
		return
	}

	tokenID := strings.TrimSpace(r.URL.Query().Get("token_id"))
	if len(tokenID) < 10 {
		writeDetail(w, http.StatusBadRequest, "token_id is required")
		return
	}

	client, err := h.newSession(sess)
	if err != nil {
		writeError(w, err)
		return
	}

	collateral, err := client.GetBalanceAllowance(r.Context(), polymarket.AssetCollateral, "")
	if err != nil {
		writeError(w, err)
		return
	}
	conditional, err := client.GetBalanceAllowance(r.Context(), polymarket.AssetConditional, tokenID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token_id":        tokenID,
		"trading_address": sess.TradingContext.TradingAddress,
		"signature_type":  sess.TradingContext.SignatureType,
		"collateral":      collateral,
		"conditional":     conditional,
	})
}
