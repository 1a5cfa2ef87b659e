// Package resolver turns an authenticated EOA into a TradingContext: it
// decides whether the user trades directly or through a proxy/Safe wallet,
// and extracts USDC balance hints from the wallet-metadata blob. Resolution
// failures degrade to EOA mode with a warning; they never block login.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/opipolix/webgate/internal/crypto"
	"github.com/opipolix/webgate/internal/domain"
	"github.com/opipolix/webgate/internal/jsonwalk"
	"github.com/opipolix/webgate/internal/platform/polymarket"
)

// WalletMetadata is the slice of the Dome API the resolver needs.
type WalletMetadata interface {
	GetWallet(ctx context.Context, eoa string) (map[string]any, error)
	SearchMarkets(ctx context.Context, query string, limit int) ([]domain.SearchResult, error)
}

// TokenFallback resolves outcome token IDs when search results omit them.
type TokenFallback interface {
	GetMarketTokens(ctx context.Context, marketID string) (*polymarket.MarketTokens, error)
}

var addressRe = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)

// proxyKeys are the normalized key names under which wallet blobs report a
// proxy or Safe address.
var proxyKeys = jsonwalk.KeySet(
	"proxy",
	"proxywallet",
	"proxy_wallet",
	"proxyaddress",
	"proxy_address",
	"safe",
	"safeaddress",
	"safe_address",
)

var balanceScopeKeys = jsonwalk.KeySet("usdc", "usd", "cash", "stablecoin", "balances")

var availableKeys = jsonwalk.KeySet(
	"available", "free", "spendable", "buying_power", "available_balance",
)

var totalKeys = jsonwalk.KeySet(
	"balance", "total", "collateral", "equity", "total_balance",
)

// Resolver builds TradingContexts. wallets may be nil, in which case every
// context stays in EOA mode.
type Resolver struct {
	wallets WalletMetadata
	gamma   TokenFallback
	chainID int64
	logger  *slog.Logger
}

// New creates a Resolver. wallets and gamma are optional.
func New(wallets WalletMetadata, gamma TokenFallback, chainID int64, logger *slog.Logger) *Resolver {
	return &Resolver{
		wallets: wallets,
		gamma:   gamma,
		chainID: chainID,
		logger:  logger.With(slog.String("component", "resolver")),
	}
}

// Resolve derives the TradingContext for an EOA.
func (r *Resolver) Resolve(ctx context.Context, eoaAddress string) domain.TradingContext {
	defaultExchange := ""
	if cfg, err := crypto.GetContractConfig(r.chainID, false); err == nil {
		defaultExchange = cfg.Exchange
	}

	tc := domain.TradingContext{
		EOAAddress:      eoaAddress,
		TradingAddress:  eoaAddress,
		SignatureType:   domain.SignatureTypeEOA,
		Mode:            domain.ModeEOA,
		ChainID:         r.chainID,
		ExchangeAddress: defaultExchange,
	}

	if r.wallets == nil {
		return tc
	}

	wallet, err := r.wallets.GetWallet(ctx, eoaAddress)
	if err != nil {
		tc.ResolverWarning = err.Error()
		r.logger.Warn("wallet metadata lookup failed",
			slog.String("eoa", eoaAddress),
			slog.String("error", err.Error()))
		return tc
	}
	tc.Wallet = wallet

	eoaLower := strings.ToLower(eoaAddress)
	proxy := findProxyAddress(wallet, eoaLower)
	if proxy == "" {
		proxy = findAnyAltAddress(wallet, eoaLower)
	}
	if proxy != "" && strings.ToLower(proxy) != eoaLower {
		tc.TradingAddress = proxy
		tc.FunderAddress = proxy
		tc.SignatureType = domain.SignatureTypeGnosisSafe
		tc.Mode = domain.ModeProxy
	}

	tc.WalletSummary = extractWalletSummary(wallet)
	return tc
}

// findProxyAddress walks the blob for a scalar under a proxy-ish key whose
// value is a valid address distinct from the EOA.
func findProxyAddress(wallet map[string]any, eoaLower string) string {
	found, ok := jsonwalk.FirstMatch(wallet, func(key string, value any) bool {
		if !proxyKeys[key] {
			return false
		}
		addr := normalizeAddr(value)
		return addr != "" && strings.ToLower(addr) != eoaLower
	})
	if !ok {
		return ""
	}
	return normalizeAddr(found)
}

// findAnyAltAddress falls back to the first address-shaped value in the
// blob that is not the EOA, regardless of key.
func findAnyAltAddress(wallet map[string]any, eoaLower string) string {
	found, ok := jsonwalk.FirstMatch(wallet, func(_ string, value any) bool {
		addr := normalizeAddr(value)
		return addr != "" && strings.ToLower(addr) != eoaLower
	})
	if !ok {
		return ""
	}
	return normalizeAddr(found)
}

// normalizeAddr extracts a valid address from a scalar, accepting values
// that embed an address in surrounding text.
func normalizeAddr(value any) string {
	s, ok := value.(string)
	if !ok {
		return ""
	}
	s = strings.TrimSpace(s)
	if crypto.ValidAddress(s) {
		return s
	}
	if m := addressRe.FindString(s); m != "" && crypto.ValidAddress(m) {
		return m
	}
	return ""
}

// extractWalletSummary pulls USDC balance hints out of the blob. A scope
// named after a currency is searched first; the whole blob is the fallback.
// Returns nil when no hint was found.
func extractWalletSummary(wallet map[string]any) *domain.WalletSummary {
	var summary domain.WalletSummary

	scope, ok := jsonwalk.FirstScope(wallet, balanceScopeKeys)
	if !ok {
		scope = wallet
	}

	if v, ok := jsonwalk.FirstNumber(scope, availableKeys); ok {
		summary.AvailableUSDC = &v
	}
	if v, ok := jsonwalk.FirstNumber(scope, totalKeys); ok {
		summary.TotalUSDC = &v
	}

	if summary.AvailableUSDC == nil && summary.TotalUSDC == nil {
		return nil
	}
	return &summary
}

// Search queries the market-metadata service and backfills missing outcome
// token IDs from Gamma.
func (r *Resolver) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	if r.wallets == nil {
		return []domain.SearchResult{}, nil
	}

	results, err := r.wallets.SearchMarkets(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("resolver: search: %w", err)
	}

	for i := range results {
		res := &results[i]
		if res.YesTokenID != "" && res.NoTokenID != "" {
			continue
		}
		if r.gamma == nil || res.MarketID == "" {
			continue
		}
		tokens, err := r.gamma.GetMarketTokens(ctx, res.MarketID)
		if err != nil {
			r.logger.Debug("gamma token fallback failed",
				slog.String("market_id", res.MarketID),
				slog.String("error", err.Error()))
			continue
		}
		if res.YesTokenID == "" {
			res.YesTokenID = tokens.YesTokenID
		}
		if res.NoTokenID == "" {
			res.NoTokenID = tokens.NoTokenID
		}
		if res.YesLabel == "" {
			res.YesLabel = tokens.YesLabel
		}
		if res.NoLabel == "" {
			res.NoLabel = tokens.NoLabel
		}
	}
	return results, nil
}
