package domain

import "strings"

// Order sides as the CLOB API spells them.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order types accepted by the CLOB. Unknown values coerce to GTC.
const (
	OrderTypeGTC = "GTC"
	OrderTypeGTD = "GTD"
	OrderTypeFOK = "FOK"
	OrderTypeFAK = "FAK"
)

// MaxSalt is the largest salt accepted on a signed order. It is 2^53-1, the
// largest integer a JSON number can carry without loss, because the salt
// crosses the JSON boundary twice (browser -> gateway -> CLOB).
const MaxSalt = int64(1)<<53 - 1

// SignedOrder is the canonical, normalized form of a client-signed CTF
// Exchange order. Addresses are EIP-55 checksummed, numeric fields are
// decimal strings, and the struct is immutable once built: normalization is
// a pure function and normalizing twice yields the same value.
type SignedOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// NormalizeOrderType maps an arbitrary order-type string onto one of the
// four CLOB order types, defaulting to GTC.
func NormalizeOrderType(raw string) string {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	switch upper {
	case OrderTypeGTC, OrderTypeGTD, OrderTypeFOK, OrderTypeFAK:
		return upper
	}
	return OrderTypeGTC
}
