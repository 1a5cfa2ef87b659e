package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/opipolix/webgate/internal/domain"
)

// GammaClient is the REST client for the Polymarket Gamma API, used as a
// fallback source of outcome token IDs when the primary market-metadata
// service has none.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaClient creates a Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// gammaMarket mirrors the /markets response. Outcomes and ClobTokenIDs are
// JSON arrays double-encoded as strings, a long-standing Gamma quirk.
type gammaMarket struct {
	ID           string `json:"id"`
	Question     string `json:"question"`
	Outcomes     string `json:"outcomes"`
	ClobTokenIDs string `json:"clobTokenIds"`
}

// MarketTokens holds the two outcome tokens of a binary market.
type MarketTokens struct {
	YesTokenID string
	NoTokenID  string
	YesLabel   string
	NoLabel    string
}

// GetMarketTokens looks up a market by Gamma ID and returns its outcome
// token IDs and labels.
func (g *GammaClient) GetMarketTokens(ctx context.Context, marketID string) (*MarketTokens, error) {
	params := url.Values{}
	params.Set("id", marketID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/markets?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: %w", err)
	}

	var markets []gammaMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	if len(markets) == 0 {
		return nil, fmt.Errorf("polymarket/gamma: %w: market %s", domain.ErrNotFound, marketID)
	}

	return parseMarketTokens(markets[0])
}

func parseMarketTokens(m gammaMarket) (*MarketTokens, error) {
	var outcomes, tokenIDs []string
	if m.Outcomes != "" {
		if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
			return nil, fmt.Errorf("polymarket/gamma: decode outcomes %q: %w", m.Outcomes, err)
		}
	}
	if m.ClobTokenIDs != "" {
		if err := json.Unmarshal([]byte(m.ClobTokenIDs), &tokenIDs); err != nil {
			return nil, fmt.Errorf("polymarket/gamma: decode clobTokenIds %q: %w", m.ClobTokenIDs, err)
		}
	}
	if len(tokenIDs) < 2 {
		return nil, fmt.Errorf("polymarket/gamma: market %s has %d outcome tokens, want 2", m.ID, len(tokenIDs))
	}

	tokens := &MarketTokens{
		YesTokenID: tokenIDs[0],
		NoTokenID:  tokenIDs[1],
		YesLabel:   "Yes",
		NoLabel:    "No",
	}
	if len(outcomes) >= 2 {
		tokens.YesLabel = outcomes[0]
		tokens.NoLabel = outcomes[1]
	}
	return tokens, nil
}
