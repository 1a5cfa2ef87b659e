package orders

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/opipolix/webgate/internal/crypto"
	"github.com/opipolix/webgate/internal/domain"
)

// Validator re-checks a client-signed order against the session that
// submitted it before it is forwarded anywhere.
type Validator struct {
	chainID int64
	logger  *slog.Logger
}

// NewValidator creates a Validator for one chain.
func NewValidator(chainID int64, logger *slog.Logger) *Validator {
	return &Validator{
		chainID: chainID,
		logger:  logger.With(slog.String("component", "order_validator")),
	}
}

// Validate enforces the session binding: the order's signer must be the
// session EOA, the maker must be the resolved trading address, and the
// signatureType must match the context mode. tokenId and side must match
// what the surrounding request declared.
func (v *Validator) Validate(order domain.SignedOrder, sess *domain.Session, expectedTokenID, expectedSide string) error {
	tc := sess.TradingContext

	if !strings.EqualFold(order.Signer, sess.EOAAddress) {
		return fmt.Errorf("orders: %w: signed order signer mismatch", domain.ErrValidation)
	}
	if !strings.EqualFold(order.Maker, tc.TradingAddress) {
		return fmt.Errorf("orders: %w: signed order maker mismatch", domain.ErrValidation)
	}
	if order.SignatureType != tc.SignatureType {
		return fmt.Errorf("orders: %w: signatureType mismatch: order has %d, context requires %d",
			domain.ErrValidation, order.SignatureType, tc.SignatureType)
	}
	if order.TokenID != expectedTokenID {
		return fmt.Errorf("orders: %w: tokenId mismatch", domain.ErrValidation)
	}

	side, err := NormalizeSide(expectedSide)
	if err != nil {
		return err
	}
	if order.Side != side {
		return fmt.Errorf("orders: %w: expected %s order", domain.ErrValidation, side)
	}

	return v.verifySignature(order, sess.EOAAddress)
}

// verifySignature recovers the order's EIP-712 signer under both exchange
// deployments. The client does not declare which exchange it signed for,
// so either recovery matching the session EOA is accepted.
func (v *Validator) verifySignature(order domain.SignedOrder, eoa string) error {
	var recovered []string

	for _, negRisk := range []bool{false, true} {
		cfg, err := crypto.GetContractConfig(v.chainID, negRisk)
		if err != nil {
			return fmt.Errorf("orders: %w", err)
		}
		addr, err := crypto.RecoverOrderSigner(order, v.chainID, cfg.Exchange)
		if err != nil {
			recovered = append(recovered, "")
			continue
		}
		if strings.EqualFold(addr.Hex(), eoa) {
			return nil
		}
		recovered = append(recovered, addr.Hex())
	}

	v.logger.Warn("order signature recovery failed",
		slog.String("eoa", eoa),
		slog.String("maker", order.Maker),
		slog.Any("recovered", recovered))
	return fmt.Errorf("%w: order signature does not recover to authenticated EOA for either regular or neg-risk exchange contract",
		domain.ErrOrderSignature)
}
