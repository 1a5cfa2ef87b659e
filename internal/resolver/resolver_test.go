package resolver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/opipolix/webgate/internal/domain"
	"github.com/opipolix/webgate/internal/platform/polymarket"
)

const (
	eoa   = "0x56687bf447DB6ffA42ead1e8Dfb4257A32b9f7c9"
	proxy = "0x8888888888888888888888888888888888888888"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeWallets struct {
	wallet  map[string]any
	err     error
	results []domain.SearchResult
}

func (f *fakeWallets) GetWallet(ctx context.Context, addr string) (map[string]any, error) {
	return f.wallet, f.err
}

func (f *fakeWallets) SearchMarkets(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	return f.results, f.err
}

type fakeGamma struct {
	tokens *polymarket.MarketTokens
	err    error
}

func (f *fakeGamma) GetMarketTokens(ctx context.Context, marketID string) (*polymarket.MarketTokens, error) {
	return f.tokens, f.err
}

func TestResolveWithoutMetadataService(t *testing.T) {
	r := New(nil, nil, 137, discardLogger())

	tc := r.Resolve(context.Background(), eoa)
	if tc.Mode != domain.ModeEOA || tc.TradingAddress != eoa {
		t.Fatalf("tc = %+v", tc)
	}
	if tc.SignatureType != domain.SignatureTypeEOA {
		t.Fatalf("signature type = %d", tc.SignatureType)
	}
	if tc.ExchangeAddress != "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E" {
		t.Fatalf("exchange = %s", tc.ExchangeAddress)
	}
}

func TestResolveProxyDetection(t *testing.T) {
	wallets := &fakeWallets{wallet: map[string]any{
		"user":         map[string]any{"proxy_wallet": proxy},
		"other_number": 1.0,
	}}
	r := New(wallets, nil, 137, discardLogger())

	tc := r.Resolve(context.Background(), eoa)
	if tc.Mode != domain.ModeProxy {
		t.Fatalf("mode = %s, want proxy", tc.Mode)
	}
	if tc.TradingAddress != proxy || tc.FunderAddress != proxy {
		t.Fatalf("addresses: trading=%s funder=%s", tc.TradingAddress, tc.FunderAddress)
	}
	if tc.SignatureType != domain.SignatureTypeGnosisSafe {
		t.Fatalf("signature type = %d, want 2", tc.SignatureType)
	}
}

func TestResolveIgnoresProxyEqualToEOA(t *testing.T) {
	wallets := &fakeWallets{wallet: map[string]any{
		"proxy_wallet": eoa,
	}}
	r := New(wallets, nil, 137, discardLogger())

	tc := r.Resolve(context.Background(), eoa)
	if tc.Mode != domain.ModeEOA {
		t.Fatalf("mode = %s, want eoa", tc.Mode)
	}
}

func TestResolveAltAddressFallback(t *testing.T) {
	// No proxy-ish key, but an address-shaped value distinct from the EOA.
	wallets := &fakeWallets{wallet: map[string]any{
		"account": "wallet " + proxy + " (primary)",
	}}
	r := New(wallets, nil, 137, discardLogger())

	tc := r.Resolve(context.Background(), eoa)
	if tc.Mode != domain.ModeProxy || tc.TradingAddress != proxy {
		t.Fatalf("tc = %+v", tc)
	}
}

func TestResolveWalletSummary(t *testing.T) {
	wallets := &fakeWallets{wallet: map[string]any{
		"usdc": map[string]any{
			"available": 12.5,
			"total":     "80.25",
		},
	}}
	r := New(wallets, nil, 137, discardLogger())

	tc := r.Resolve(context.Background(), eoa)
	if tc.WalletSummary == nil {
		t.Fatal("nil wallet summary")
	}
	if tc.WalletSummary.AvailableUSDC == nil || *tc.WalletSummary.AvailableUSDC != 12.5 {
		t.Fatalf("available = %v", tc.WalletSummary.AvailableUSDC)
	}
	if tc.WalletSummary.TotalUSDC == nil || *tc.WalletSummary.TotalUSDC != 80.25 {
		t.Fatalf("total = %v", tc.WalletSummary.TotalUSDC)
	}
}

func TestResolveDegradesOnMetadataError(t *testing.T) {
	wallets := &fakeWallets{err: errors.New("dome unreachable")}
	r := New(wallets, nil, 137, discardLogger())

	tc := r.Resolve(context.Background(), eoa)
	if tc.Mode != domain.ModeEOA {
		t.Fatalf("mode = %s, want eoa", tc.Mode)
	}
	if tc.ResolverWarning == "" {
		t.Fatal("missing resolver warning")
	}
}

func TestSearchBackfillsTokensFromGamma(t *testing.T) {
	wallets := &fakeWallets{results: []domain.SearchResult{
		{MarketID: "123", Title: "BTC above 100k", Source: "dome"},
		{MarketID: "456", Title: "complete", YesTokenID: "y", NoTokenID: "n", Source: "dome"},
	}}
	gamma := &fakeGamma{tokens: &polymarket.MarketTokens{
		YesTokenID: "71321", NoTokenID: "52931",
		YesLabel: "Yes", NoLabel: "No",
	}}
	r := New(wallets, gamma, 137, discardLogger())

	results, err := r.Search(context.Background(), "btc", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results[0].YesTokenID != "71321" || results[0].NoTokenID != "52931" {
		t.Fatalf("backfill missed: %+v", results[0])
	}
	if results[1].YesTokenID != "y" {
		t.Fatalf("complete result was overwritten: %+v", results[1])
	}
}

func TestSearchToleratesGammaFailure(t *testing.T) {
	wallets := &fakeWallets{results: []domain.SearchResult{{MarketID: "123", Title: "m"}}}
	gamma := &fakeGamma{err: errors.New("gamma down")}
	r := New(wallets, gamma, 137, discardLogger())

	results, err := r.Search(context.Background(), "btc", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].YesTokenID != "" {
		t.Fatalf("results = %+v", results)
	}
}

func TestSearchWithoutMetadataService(t *testing.T) {
	r := New(nil, nil, 137, discardLogger())
	results, err := r.Search(context.Background(), "btc", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %+v", results)
	}
}
