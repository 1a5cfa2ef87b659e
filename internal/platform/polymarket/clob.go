// Package polymarket holds the REST clients for the Polymarket CLOB
// (Central Limit Order Book) and Gamma APIs. The CLOB surface is split in
// two: a PublicClient for unauthenticated market metadata and a
// SessionClient scoped to one user's derived Level-2 credentials. Neither
// ever holds a private key.
package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/opipolix/webgate/internal/crypto"
	"github.com/opipolix/webgate/internal/domain"
	"github.com/opipolix/webgate/internal/jsonwalk"
)

const requestTimeout = 10 * time.Second

// Asset types accepted by the balance-allowance endpoint.
const (
	AssetCollateral  = "COLLATERAL"
	AssetConditional = "CONDITIONAL"
)

// addressSigner stands in for the wallet inside a SessionClient. It can
// answer its address and chain but refuses to sign anything; every
// client-side signature already arrived from the browser.
type addressSigner struct {
	address string
	chainID int64
}

func (s *addressSigner) Address() string { return s.address }
func (s *addressSigner) ChainID() int64  { return s.chainID }

func (s *addressSigner) Sign([]byte) (string, error) {
	return "", fmt.Errorf("polymarket/clob: %w: session clients hold no private key", domain.ErrSignerUnavailable)
}

// SessionClient is a CLOB client bound to one authenticated user: it signs
// requests with the user's derived HMAC credentials and forwards orders the
// user signed in their browser.
type SessionClient struct {
	baseURL    string
	httpClient *http.Client
	signer     *addressSigner
	l2         *crypto.L2Signer
	builder    BuilderHeaderSource // nil when attribution is disabled

	funderAddress string
	signatureType int
}

// NewSessionClient creates a CLOB client for one session. builder may be
// nil when order attribution is not configured.
func NewSessionClient(baseURL, eoaAddress string, creds domain.ClobCreds, funderAddress string, signatureType int, chainID int64, builder BuilderHeaderSource) (*SessionClient, error) {
	if !crypto.ValidAddress(eoaAddress) {
		return nil, fmt.Errorf("polymarket/clob: %w: invalid eoa address %q", domain.ErrValidation, eoaAddress)
	}
	if funderAddress != "" && !crypto.ValidAddress(funderAddress) {
		return nil, fmt.Errorf("polymarket/clob: %w: invalid funder address %q", domain.ErrValidation, funderAddress)
	}

	return &SessionClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
		signer:     &addressSigner{address: eoaAddress, chainID: chainID},
		l2: &crypto.L2Signer{
			Address: eoaAddress,
			Creds:   creds,
		},
		builder:       builder,
		funderAddress: funderAddress,
		signatureType: signatureType,
	}, nil
}

// Address returns the EOA the client is bound to.
func (c *SessionClient) Address() string { return c.signer.Address() }

// SignMessage always fails: the gateway never signs on behalf of users.
func (c *SessionClient) SignMessage(digest []byte) (string, error) {
	return c.signer.Sign(digest)
}

// PostSignedOrder submits a browser-signed order. orderType is coerced to
// GTC when unrecognized, matching upstream behavior.
func (c *SessionClient) PostSignedOrder(ctx context.Context, order domain.SignedOrder, orderType string) (*PostOrderResult, error) {
	body := map[string]any{
		"order": map[string]any{
			"salt":          order.Salt,
			"maker":         order.Maker,
			"signer":        order.Signer,
			"taker":         order.Taker,
			"tokenId":       order.TokenID,
			"makerAmount":   order.MakerAmount,
			"takerAmount":   order.TakerAmount,
			"expiration":    order.Expiration,
			"nonce":         order.Nonce,
			"feeRateBps":    order.FeeRateBps,
			"side":          order.Side,
			"signatureType": order.SignatureType,
			"signature":     order.Signature,
		},
		"owner":     c.l2.Creds.APIKey,
		"orderType": domain.NormalizeOrderType(orderType),
	}

	respBody, err := c.doL2Request(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode order response: %w", err)
	}

	return &PostOrderResult{OrderID: NormalizeOrderID(raw), Raw: raw}, nil
}

// GetOrderRaw fetches one order by ID and returns the payload undecoded.
// The TP engine's fill inference deliberately works on the raw map because
// upstream order schemas drift.
func (c *SessionClient) GetOrderRaw(ctx context.Context, orderID string) (map[string]any, error) {
	respBody, err := c.doL2Request(ctx, http.MethodGet, "/data/order/"+url.PathEscape(orderID), nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: get order %s: %w", orderID, err)
	}

	var raw map[string]any
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode order: %w", err)
	}
	return raw, nil
}

// GetOpenOrders lists the user's open orders, optionally filtered by market
// (condition ID) and asset (token ID).
func (c *SessionClient) GetOpenOrders(ctx context.Context, market, assetID string) ([]map[string]any, error) {
	params := url.Values{}
	if market != "" {
		params.Set("market", market)
	}
	if assetID != "" {
		params.Set("asset_id", assetID)
	}
	path := "/data/orders"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	respBody, err := c.doL2Request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: get open orders: %w", err)
	}

	var raw []map[string]any
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode orders: %w", err)
	}
	return raw, nil
}

// CancelOrder cancels one order by ID.
func (c *SessionClient) CancelOrder(ctx context.Context, orderID string) (map[string]any, error) {
	body := map[string]any{"orderID": orderID}

	respBody, err := c.doL2Request(ctx, http.MethodDelete, "/order", body)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: cancel order %s: %w", orderID, err)
	}

	var raw map[string]any
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode cancel response: %w", err)
	}
	return raw, nil
}

// GetBalanceAllowance fetches the balance/allowance snapshot for the
// session's funder. assetType is COLLATERAL or CONDITIONAL; tokenID is
// required for CONDITIONAL.
func (c *SessionClient) GetBalanceAllowance(ctx context.Context, assetType, tokenID string) (map[string]any, error) {
	params := url.Values{}
	params.Set("asset_type", assetType)
	params.Set("signature_type", strconv.Itoa(c.signatureType))
	if tokenID != "" {
		params.Set("token_id", tokenID)
	}

	respBody, err := c.doL2Request(ctx, http.MethodGet, "/balance-allowance?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: get balance allowance: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode balance allowance: %w", err)
	}
	return raw, nil
}

// doL2Request builds, signs, and sends one Level-2 request. The HMAC is
// computed over timestamp+method+path+body with the path as passed here
// (query string included), matching what the CLOB verifies.
func (c *SessionClient) doL2Request(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range c.l2.Headers(method, path, bodyStr) {
		req.Header.Set(k, v)
	}

	if c.builder != nil {
		headers, err := c.builder.Headers(ctx, method, path, bodyStr)
		if err != nil {
			return nil, fmt.Errorf("builder attribution: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// PublicClient hits the CLOB's unauthenticated market-metadata endpoints.
type PublicClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewPublicClient creates an unauthenticated CLOB client.
func NewPublicClient(baseURL string) *PublicClient {
	return &PublicClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// GetNegRisk reports whether the token trades on the neg-risk exchange.
func (p *PublicClient) GetNegRisk(ctx context.Context, tokenID string) (bool, error) {
	raw, err := p.getJSON(ctx, "/neg-risk?token_id="+url.QueryEscape(tokenID))
	if err != nil {
		return false, fmt.Errorf("polymarket/clob: get neg-risk: %w", err)
	}
	if v, ok := raw["neg_risk"].(bool); ok {
		return v, nil
	}
	return false, nil
}

// GetTickSize returns the minimum price increment for the token as a
// decimal string, e.g. "0.01".
func (p *PublicClient) GetTickSize(ctx context.Context, tokenID string) (string, error) {
	raw, err := p.getJSON(ctx, "/tick-size?token_id="+url.QueryEscape(tokenID))
	if err != nil {
		return "", fmt.Errorf("polymarket/clob: get tick size: %w", err)
	}
	if s, ok := jsonwalk.FirstString(raw, jsonwalk.KeySet("minimum_tick_size", "tick_size")); ok && s != "" {
		return s, nil
	}
	if f, ok := jsonwalk.FirstNumber(raw, jsonwalk.KeySet("minimum_tick_size", "tick_size")); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("polymarket/clob: tick-size response missing value")
}

// GetFeeRateBps returns the maker/taker fee in basis points for the token.
// Missing or unparseable responses report zero; the CLOB charges no fee on
// most markets.
func (p *PublicClient) GetFeeRateBps(ctx context.Context, tokenID string) (int, error) {
	raw, err := p.getJSON(ctx, "/fee-rate-bps?token_id="+url.QueryEscape(tokenID))
	if err != nil {
		return 0, nil
	}
	if f, ok := jsonwalk.FirstNumber(raw, jsonwalk.KeySet("fee_rate_bps", "base_fee", "fee")); ok {
		return int(f), nil
	}
	return 0, nil
}

// GetOrderBook fetches the current book for one token.
func (p *PublicClient) GetOrderBook(ctx context.Context, tokenID string) (*OrderBook, error) {
	respBody, err := p.doGet(ctx, "/book?token_id="+url.QueryEscape(tokenID))
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: get order book: %w", err)
	}

	var book OrderBook
	if err := json.Unmarshal(respBody, &book); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode order book: %w", err)
	}
	return &book, nil
}

func (p *PublicClient) getJSON(ctx context.Context, path string) (map[string]any, error) {
	respBody, err := p.doGet(ctx, path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return raw, nil
}

func (p *PublicClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx CLOB responses to an UpstreamError carrying
// the upstream status and message. When the CLOB complains about the order
// payload, a troubleshooting hint is appended because the root cause is
// almost always one of three client-side mistakes.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	message := upstreamMessage(body)
	if strings.Contains(message, "Invalid order payload") {
		message += ". Check token tradability, price tick-size, signatureType, and exchange contract (regular vs neg-risk)."
	}
	return domain.NewUpstreamError(statusCode, message, 400)
}

// upstreamMessage extracts a human-readable message from an upstream error
// body, which may be {"error": ...}, {"message": ...}, or plain text.
func upstreamMessage(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		if s, ok := payload["error"].(string); ok && s != "" {
			return s
		}
		if s, ok := payload["message"].(string); ok && s != "" {
			return s
		}
	}
	return strings.TrimSpace(string(body))
}
