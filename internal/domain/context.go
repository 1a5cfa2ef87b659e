package domain

// Account modes. A proxy account trades through a smart-contract wallet
// (Polymarket proxy or Gnosis Safe) funded separately from the EOA.
const (
	ModeEOA   = "eoa"
	ModeProxy = "proxy"
)

// Signature types understood by the CTF Exchange.
const (
	SignatureTypeEOA        = 0
	SignatureTypeGnosisSafe = 2
)

// WalletSummary holds USDC balance hints extracted from the wallet metadata
// blob. Values are best-effort; nil means the hint was not present.
type WalletSummary struct {
	AvailableUSDC *float64 `json:"available_usdc"`
	TotalUSDC     *float64 `json:"total_usdc"`
}

// TradingContext describes how orders for an authenticated EOA must be
// shaped: which address is the maker, which signature type the exchange
// expects, and which exchange contract is the default.
//
// Invariant: mode "proxy" implies TradingAddress == FunderAddress != EOA and
// SignatureType 2; mode "eoa" implies TradingAddress == EOA, no funder, and
// SignatureType 0.
type TradingContext struct {
	EOAAddress      string         `json:"eoa_address"`
	TradingAddress  string         `json:"trading_address"`
	FunderAddress   string         `json:"funder_address,omitempty"`
	SignatureType   int            `json:"signature_type"`
	Mode            string         `json:"mode"`
	ChainID         int64          `json:"chain_id"`
	ExchangeAddress string         `json:"exchange_address"`
	Wallet          map[string]any `json:"wallet,omitempty"` // opaque upstream blob
	WalletSummary   *WalletSummary `json:"wallet_summary,omitempty"`
	ResolverWarning string         `json:"resolver_warning,omitempty"`
}
