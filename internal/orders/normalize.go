// Package orders implements server-side handling of browser-signed CLOB
// orders: normalization of the loosely-typed JSON payload into the
// canonical SignedOrder form, and re-validation against the session before
// anything is forwarded upstream.
package orders

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/opipolix/webgate/internal/crypto"
	"github.com/opipolix/webgate/internal/domain"
)

// requiredFields is the full field set a signed order must carry.
var requiredFields = []string{
	"salt", "maker", "signer", "taker",
	"tokenId", "makerAmount", "takerAmount",
	"expiration", "nonce", "feeRateBps",
	"side", "signatureType", "signature",
}

// NormalizeSignedOrder converts a raw signed-order object into canonical
// form: uint fields become decimal strings (accepting decimal strings,
// 0x-hex strings, and JSON numbers; booleans rejected), addresses are
// re-checksummed, side becomes "BUY"/"SELL", and salt is bounded to the
// JSON-safe integer range. The function is pure and idempotent: feeding its
// output back in yields the identical order.
func NormalizeSignedOrder(raw map[string]any) (domain.SignedOrder, error) {
	for _, field := range requiredFields {
		if _, ok := raw[field]; !ok {
			return domain.SignedOrder{}, fmt.Errorf("orders: %w: signed_order missing field %s", domain.ErrValidation, field)
		}
	}

	salt, err := toInt64(raw["salt"], "salt")
	if err != nil {
		return domain.SignedOrder{}, err
	}
	if salt < 0 || salt > domain.MaxSalt {
		return domain.SignedOrder{}, fmt.Errorf("orders: %w: salt out of range: %d", domain.ErrValidation, salt)
	}

	maker, err := checksum(raw["maker"], "maker")
	if err != nil {
		return domain.SignedOrder{}, err
	}
	signer, err := checksum(raw["signer"], "signer")
	if err != nil {
		return domain.SignedOrder{}, err
	}
	taker, err := checksum(raw["taker"], "taker")
	if err != nil {
		return domain.SignedOrder{}, err
	}

	tokenID, err := toUintString(raw["tokenId"], "tokenId")
	if err != nil {
		return domain.SignedOrder{}, err
	}
	makerAmount, err := toUintString(raw["makerAmount"], "makerAmount")
	if err != nil {
		return domain.SignedOrder{}, err
	}
	takerAmount, err := toUintString(raw["takerAmount"], "takerAmount")
	if err != nil {
		return domain.SignedOrder{}, err
	}
	expiration, err := toUintString(raw["expiration"], "expiration")
	if err != nil {
		return domain.SignedOrder{}, err
	}
	nonce, err := toUintString(raw["nonce"], "nonce")
	if err != nil {
		return domain.SignedOrder{}, err
	}
	feeRateBps, err := toUintString(raw["feeRateBps"], "feeRateBps")
	if err != nil {
		return domain.SignedOrder{}, err
	}

	side, err := NormalizeSide(raw["side"])
	if err != nil {
		return domain.SignedOrder{}, err
	}

	sigType, err := toInt64(raw["signatureType"], "signatureType")
	if err != nil {
		return domain.SignedOrder{}, err
	}
	if sigType != int64(domain.SignatureTypeEOA) && sigType != int64(domain.SignatureTypeGnosisSafe) {
		return domain.SignedOrder{}, fmt.Errorf("orders: %w: signatureType must be 0 or 2, got %d", domain.ErrValidation, sigType)
	}

	signature, _ := raw["signature"].(string)
	signature = strings.TrimSpace(signature)
	if !strings.HasPrefix(signature, "0x") || len(signature) < 10 {
		return domain.SignedOrder{}, fmt.Errorf("orders: %w: signed_order.signature is missing or malformed", domain.ErrValidation)
	}

	return domain.SignedOrder{
		Salt:          salt,
		Maker:         maker,
		Signer:        signer,
		Taker:         taker,
		TokenID:       tokenID,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Expiration:    expiration,
		Nonce:         nonce,
		FeeRateBps:    feeRateBps,
		Side:          side,
		SignatureType: int(sigType),
		Signature:     signature,
	}, nil
}

// ToMap renders a SignedOrder back into the raw object form, the inverse
// of NormalizeSignedOrder for already-canonical orders.
func ToMap(o domain.SignedOrder) map[string]any {
	return map[string]any{
		"salt":          o.Salt,
		"maker":         o.Maker,
		"signer":        o.Signer,
		"taker":         o.Taker,
		"tokenId":       o.TokenID,
		"makerAmount":   o.MakerAmount,
		"takerAmount":   o.TakerAmount,
		"expiration":    o.Expiration,
		"nonce":         o.Nonce,
		"feeRateBps":    o.FeeRateBps,
		"side":          o.Side,
		"signatureType": o.SignatureType,
		"signature":     o.Signature,
	}
}

// NormalizeSide accepts "BUY"/"SELL" (any case) or the uint8 encoding
// 0/1.
func NormalizeSide(raw any) (string, error) {
	if s, ok := raw.(string); ok {
		switch strings.ToUpper(strings.TrimSpace(s)) {
		case domain.SideBuy:
			return domain.SideBuy, nil
		case domain.SideSell:
			return domain.SideSell, nil
		}
	}
	if n, err := toInt64(raw, "side"); err == nil {
		switch n {
		case 0:
			return domain.SideBuy, nil
		case 1:
			return domain.SideSell, nil
		}
	}
	return "", fmt.Errorf("orders: %w: side must be BUY/SELL or 0/1, got %v", domain.ErrValidation, raw)
}

// EntrySizeTokens infers the order's size in outcome tokens from its
// amounts: a BUY receives takerAmount tokens, a SELL gives makerAmount,
// both in base-6 fixed point.
func EntrySizeTokens(o domain.SignedOrder) float64 {
	field := o.TakerAmount
	if o.Side == domain.SideSell {
		field = o.MakerAmount
	}
	amount, err := decimal.NewFromString(field)
	if err != nil {
		return 0
	}
	size, _ := amount.Div(decimal.NewFromInt(1_000_000)).Float64()
	return size
}

// toUintString coerces a value into a decimal string of a non-negative
// integer. Accepted inputs: decimal strings, 0x-hex strings, and whole JSON
// numbers. Booleans are rejected explicitly because JSON decoders will not
// catch true being sent where 1 was meant.
func toUintString(v any, field string) (string, error) {
	n, err := toBig(v, field)
	if err != nil {
		return "", err
	}
	if n.Sign() < 0 {
		return "", fmt.Errorf("orders: %w: %s must be non-negative, got %s", domain.ErrValidation, field, n)
	}
	return n.String(), nil
}

func toInt64(v any, field string) (int64, error) {
	n, err := toBig(v, field)
	if err != nil {
		return 0, err
	}
	if !n.IsInt64() {
		return 0, fmt.Errorf("orders: %w: %s overflows int64: %s", domain.ErrValidation, field, n)
	}
	return n.Int64(), nil
}

func toBig(v any, field string) (*big.Int, error) {
	switch x := v.(type) {
	case bool:
		return nil, fmt.Errorf("orders: %w: %s must be integer-like, got bool", domain.ErrValidation, field)
	case float64:
		if x != float64(int64(x)) {
			return nil, fmt.Errorf("orders: %w: %s must be a whole number, got %v", domain.ErrValidation, field, x)
		}
		return big.NewInt(int64(x)), nil
	case int:
		return big.NewInt(int64(x)), nil
	case int64:
		return big.NewInt(x), nil
	case string:
		text := strings.TrimSpace(x)
		if text == "" {
			return nil, fmt.Errorf("orders: %w: %s is empty", domain.ErrValidation, field)
		}
		base := 10
		if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
			text = text[2:]
			base = 16
		}
		n, ok := new(big.Int).SetString(text, base)
		if !ok {
			return nil, fmt.Errorf("orders: %w: %s is invalid: %q", domain.ErrValidation, field, x)
		}
		return n, nil
	}
	return nil, fmt.Errorf("orders: %w: %s is invalid: %v", domain.ErrValidation, field, v)
}

func checksum(v any, field string) (string, error) {
	s, _ := v.(string)
	out, err := crypto.ChecksumAddress(s)
	if err != nil {
		return "", fmt.Errorf("orders: %w: %s is not a valid address: %q", domain.ErrValidation, field, s)
	}
	return out, nil
}
