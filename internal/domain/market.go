package domain

// SearchResult is one market row returned by /api/search. Token IDs may be
// absent when neither the metadata service nor the Gamma fallback could
// supply them.
type SearchResult struct {
	MarketID         string  `json:"market_id"`
	Title            string  `json:"title"`
	Question         string  `json:"question,omitempty"`
	Liquidity        float64 `json:"liquidity"`
	OpportunityScore float64 `json:"opportunity_score"`
	YesTokenID       string  `json:"yes_token_id,omitempty"`
	NoTokenID        string  `json:"no_token_id,omitempty"`
	YesLabel         string  `json:"yes_label,omitempty"`
	NoLabel          string  `json:"no_label,omitempty"`
	Source           string  `json:"source"`
}

// TokenMeta aggregates the per-token trading parameters a client needs
// before building an order.
type TokenMeta struct {
	TokenID         string `json:"token_id"`
	ChainID         int64  `json:"chain_id"`
	NegRisk         bool   `json:"neg_risk"`
	TickSize        string `json:"tick_size"`
	FeeRateBps      int    `json:"fee_rate_bps"`
	ExchangeAddress string `json:"exchange_address"`
	Market          string `json:"market,omitempty"`
	MinOrderSize    string `json:"min_order_size,omitempty"`
	BestBid         string `json:"best_bid,omitempty"`
	BestAsk         string `json:"best_ask,omitempty"`
}
