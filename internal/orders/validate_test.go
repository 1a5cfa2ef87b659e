package orders

import (
	"crypto/ecdsa"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/opipolix/webgate/internal/crypto"
	"github.com/opipolix/webgate/internal/domain"
)

const chainID = int64(137)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func generateKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key, ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
}

func signOrder(t *testing.T, key *ecdsa.PrivateKey, order domain.SignedOrder, negRisk bool) string {
	t.Helper()
	cfg, err := crypto.GetContractConfig(chainID, negRisk)
	if err != nil {
		t.Fatalf("contract config: %v", err)
	}
	digest, _, err := apitypes.TypedDataAndHash(crypto.OrderTypedData(order, chainID, cfg.Exchange))
	if err != nil {
		t.Fatalf("hash typed data: %v", err)
	}
	sig, err := ethcrypto.Sign(digest, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig[64] += 27
	return hexutil.Encode(sig)
}

func eoaOrder(addr string) domain.SignedOrder {
	return domain.SignedOrder{
		Salt:          987654321,
		Maker:         addr,
		Signer:        addr,
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       "71321045679252212594626385532706912750332728571942532289631379312455583992563",
		MakerAmount:   "5000000",
		TakerAmount:   "10000000",
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          domain.SideBuy,
		SignatureType: domain.SignatureTypeEOA,
	}
}

func eoaSession(addr string) *domain.Session {
	return &domain.Session{
		EOAAddress: addr,
		TradingContext: domain.TradingContext{
			EOAAddress:     addr,
			TradingAddress: addr,
			SignatureType:  domain.SignatureTypeEOA,
			Mode:           domain.ModeEOA,
			ChainID:        chainID,
		},
	}
}

func TestValidateAcceptsRegularExchangeSignature(t *testing.T) {
	key, addr := generateKey(t)
	order := eoaOrder(addr)
	order.Signature = signOrder(t, key, order, false)

	v := NewValidator(chainID, discardLogger())
	if err := v.Validate(order, eoaSession(addr), order.TokenID, "BUY"); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateAcceptsNegRiskExchangeSignature(t *testing.T) {
	key, addr := generateKey(t)
	order := eoaOrder(addr)
	order.Signature = signOrder(t, key, order, true)

	v := NewValidator(chainID, discardLogger())
	if err := v.Validate(order, eoaSession(addr), order.TokenID, "BUY"); err != nil {
		t.Fatalf("Validate against neg-risk domain: %v", err)
	}
}

func TestValidateRejectsForeignSignature(t *testing.T) {
	_, addr := generateKey(t)
	otherKey, _ := generateKey(t)

	order := eoaOrder(addr)
	order.Signature = signOrder(t, otherKey, order, false)

	v := NewValidator(chainID, discardLogger())
	err := v.Validate(order, eoaSession(addr), order.TokenID, "BUY")
	if !errors.Is(err, domain.ErrOrderSignature) {
		t.Fatalf("err = %v, want order signature error", err)
	}
}

func TestValidateRejectsTamperedOrder(t *testing.T) {
	key, addr := generateKey(t)
	order := eoaOrder(addr)
	order.Signature = signOrder(t, key, order, false)
	order.MakerAmount = "9000000"

	v := NewValidator(chainID, discardLogger())
	err := v.Validate(order, eoaSession(addr), order.TokenID, "BUY")
	if !errors.Is(err, domain.ErrOrderSignature) {
		t.Fatalf("err = %v, want order signature error", err)
	}
}

func TestValidateSessionBinding(t *testing.T) {
	key, addr := generateKey(t)
	_, stranger := generateKey(t)

	base := eoaOrder(addr)
	base.Signature = signOrder(t, key, base, false)

	tests := []struct {
		name    string
		mutate  func(o *domain.SignedOrder, s *domain.Session, tokenID, side *string)
		wantErr error
	}{
		{
			name: "signer not session eoa",
			mutate: func(o *domain.SignedOrder, s *domain.Session, tokenID, side *string) {
				s.EOAAddress = stranger
				s.TradingContext.TradingAddress = stranger
			},
			wantErr: domain.ErrValidation,
		},
		{
			name: "maker not trading address",
			mutate: func(o *domain.SignedOrder, s *domain.Session, tokenID, side *string) {
				s.TradingContext.TradingAddress = stranger
			},
			wantErr: domain.ErrValidation,
		},
		{
			name: "signature type mismatch",
			mutate: func(o *domain.SignedOrder, s *domain.Session, tokenID, side *string) {
				s.TradingContext.SignatureType = domain.SignatureTypeGnosisSafe
			},
			wantErr: domain.ErrValidation,
		},
		{
			name: "token mismatch",
			mutate: func(o *domain.SignedOrder, s *domain.Session, tokenID, side *string) {
				*tokenID = "999999999999"
			},
			wantErr: domain.ErrValidation,
		},
		{
			name: "side mismatch",
			mutate: func(o *domain.SignedOrder, s *domain.Session, tokenID, side *string) {
				*side = "SELL"
			},
			wantErr: domain.ErrValidation,
		},
	}

	v := NewValidator(chainID, discardLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := base
			sess := eoaSession(addr)
			tokenID := order.TokenID
			side := "BUY"
			tt.mutate(&order, sess, &tokenID, &side)

			err := v.Validate(order, sess, tokenID, side)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateCaseInsensitiveAddressMatch(t *testing.T) {
	key, addr := generateKey(t)
	order := eoaOrder(addr)
	order.Signature = signOrder(t, key, order, false)

	sess := eoaSession(addr)
	sess.EOAAddress = strings.ToLower(addr)
	sess.TradingContext.TradingAddress = sess.EOAAddress

	v := NewValidator(chainID, discardLogger())
	if err := v.Validate(order, sess, order.TokenID, "BUY"); err != nil {
		t.Fatalf("Validate with lowercase session address: %v", err)
	}
}
