package polymarket

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// OrderBook is the /book response for one token.
type OrderBook struct {
	Market       string      `json:"market"`
	AssetID      string      `json:"asset_id"`
	MinOrderSize string      `json:"min_order_size"`
	TickSize     string      `json:"tick_size"`
	NegRisk      bool        `json:"neg_risk"`
	Bids         []BookLevel `json:"bids"`
	Asks         []BookLevel `json:"asks"`
}

// BestBid returns the top-of-book bid price, or "" when the side is empty.
func (b *OrderBook) BestBid() string {
	if len(b.Bids) == 0 {
		return ""
	}
	return b.Bids[0].Price
}

// BestAsk returns the top-of-book ask price, or "" when the side is empty.
func (b *OrderBook) BestAsk() string {
	if len(b.Asks) == 0 {
		return ""
	}
	return b.Asks[0].Price
}

// PostOrderResult is the outcome of submitting a signed order. Raw carries
// the upstream response verbatim so callers can surface it to clients.
type PostOrderResult struct {
	OrderID string
	Raw     map[string]any
}

// NormalizeOrderID pulls the order identifier out of an upstream response,
// which spells it orderID, order_id, or id depending on the endpoint.
func NormalizeOrderID(raw map[string]any) string {
	for _, key := range []string{"orderID", "order_id", "id"} {
		if v, ok := raw[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
