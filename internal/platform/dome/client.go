// Package dome is the REST client for the Dome market-metadata API, which
// supplies wallet metadata (proxy detection, balances) and market search.
// Responses are treated as opaque JSON; the interesting fields are pulled
// out tolerantly because the schema is not versioned.
package dome

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/opipolix/webgate/internal/domain"
	"github.com/opipolix/webgate/internal/jsonwalk"
)

const requestTimeout = 10 * time.Second

// Client talks to the Dome API with bearer authentication.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Dome client. Returns an error when the API key is missing;
// callers treat a nil client as "metadata unavailable".
func New(baseURL, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("dome: api key is required")
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: requestTimeout},
	}, nil
}

// GetWallet fetches the wallet blob for an EOA. The payload shape varies by
// wallet kind, so it is returned undecoded for the resolver to walk.
func (c *Client) GetWallet(ctx context.Context, eoa string) (map[string]any, error) {
	params := url.Values{}
	params.Set("eoa", eoa)

	body, err := c.doGet(ctx, "/polymarket/wallet?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("dome: get wallet: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("dome: decode wallet: %w", err)
	}
	return raw, nil
}

// SearchMarkets searches open markets and returns results ranked by
// opportunity score, best first. The bare query is tried first; when it
// matches nothing, "<query> token" and "<query> launch" are tried in turn.
func (c *Client) SearchMarkets(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var markets []map[string]any
	for _, term := range []string{query, query + " token", query + " launch"} {
		rows, err := c.searchRaw(ctx, term, limit)
		if err != nil {
			return nil, fmt.Errorf("dome: search markets: %w", err)
		}
		if len(rows) > 0 {
			markets = rows
			break
		}
	}

	results := make([]domain.SearchResult, 0, len(markets))
	for _, m := range markets {
		results = append(results, transformMarket(m))
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].OpportunityScore > results[j].OpportunityScore
	})
	return results, nil
}

// searchRaw runs one market search and returns the undecoded market rows.
func (c *Client) searchRaw(ctx context.Context, term string, limit int) ([]map[string]any, error) {
	params := url.Values{}
	params.Set("search", term)
	params.Set("status", "open")
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.doGet(ctx, "/polymarket/markets?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var payload struct {
		Markets []map[string]any `json:"markets"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode markets: %w", err)
	}
	return payload.Markets, nil
}

// transformMarket flattens one raw market into a SearchResult, scoring it
// on liquidity, price uncertainty, and recent volume.
func transformMarket(m map[string]any) domain.SearchResult {
	marketID := firstNonEmpty(
		stringField(m, "market_id"),
		stringField(m, "id"),
		stringField(m, "market_slug"),
	)
	title := firstNonEmpty(stringField(m, "title"), stringField(m, "question"), "Untitled")
	question := firstNonEmpty(stringField(m, "question"), title)

	volumeTotal := floatField(m, "volume_total")
	volumeWeek := floatField(m, "volume_1_week")
	volumeMonth := floatField(m, "volume_1_month")
	volume24h := 0.0
	if volumeWeek > 0 {
		volume24h = volumeWeek / 7
	} else if volumeMonth > 0 {
		volume24h = volumeMonth / 30
	}

	liquidity := floatField(m, "liquidity")
	if liquidity <= 0 {
		liquidity = volumeTotal * 0.3
	}

	yesPrice := 0.5
	if f, ok := jsonwalk.FirstNumber(m, jsonwalk.KeySet("current_yes_price", "yes_price")); ok {
		yesPrice = f
	}

	yesTokenID := firstNonEmpty(stringField(m, "yes_token_id"), stringField(m, "clob_token_yes"))
	noTokenID := firstNonEmpty(stringField(m, "no_token_id"), stringField(m, "clob_token_no"))

	// Newer responses nest the outcome tokens under side_a/side_b; match
	// them up by label when the flat fields are absent.
	sideAID, sideALabel := sideInfo(m, "side_a")
	sideBID, sideBLabel := sideInfo(m, "side_b")
	if yesTokenID == "" {
		if strings.Contains(sideALabel, "yes") {
			yesTokenID = sideAID
		} else if strings.Contains(sideBLabel, "yes") {
			yesTokenID = sideBID
		}
	}
	if noTokenID == "" {
		if strings.Contains(sideBLabel, "no") {
			noTokenID = sideBID
		} else if strings.Contains(sideALabel, "no") {
			noTokenID = sideAID
		}
	}

	return domain.SearchResult{
		MarketID:         marketID,
		Title:            title,
		Question:         question,
		Liquidity:        liquidity,
		OpportunityScore: opportunityScore(liquidity, yesPrice, volume24h),
		YesTokenID:       yesTokenID,
		NoTokenID:        noTokenID,
		YesLabel:         firstNonEmpty(stringField(m, "yes_label"), stringField(m, "yes_outcome")),
		NoLabel:          firstNonEmpty(stringField(m, "no_label"), stringField(m, "no_outcome")),
		Source:           "dome",
	}
}

// sideInfo extracts the token id and lowercased label from a side_a/side_b
// object. Numeric ids are rendered back to their decimal form.
func sideInfo(m map[string]any, key string) (id, label string) {
	side, ok := m[key].(map[string]any)
	if !ok {
		return "", ""
	}
	switch v := side["id"].(type) {
	case string:
		id = v
	default:
		if f, ok := jsonwalk.AsFloat(v); ok {
			id = strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return id, strings.ToLower(stringField(side, "label"))
}

// opportunityScore blends liquidity depth (40%), price uncertainty (30%),
// and daily volume (30%) into a 0..1 score rounded to three decimals.
func opportunityScore(liquidity, yesPrice, volume24h float64) float64 {
	liquidityScore := math.Min(liquidity/10_000, 1)
	priceUncertainty := 1 - math.Abs(0.5-yesPrice)*2
	volumeScore := math.Min(volume24h/5_000, 1)
	score := liquidityScore*0.4 + priceUncertainty*0.3 + volumeScore*0.3
	return math.Round(score*1000) / 1000
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func floatField(m map[string]any, key string) float64 {
	if v, ok := m[key]; ok {
		if f, ok := jsonwalk.AsFloat(v); ok {
			return f
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.NewUpstreamError(resp.StatusCode, strings.TrimSpace(string(body)), 502)
	}
	return body, nil
}
