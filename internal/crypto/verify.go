// Package crypto implements the verification side of the two signature
// schemes the gateway accepts (personal_sign for SIWE, EIP-712 for CLOB
// auth and orders) plus the HMAC request signing used against the CLOB's
// Level-2 API. The gateway never holds a private key; everything here
// recovers addresses from client-produced signatures.
package crypto

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/opipolix/webgate/internal/domain"
)

// ClobAuth EIP-712 domain parameters and the constant attestation message,
// as expected by the CLOB's /auth endpoints.
const (
	ClobAuthDomainName    = "ClobAuthDomain"
	ClobAuthDomainVersion = "1"
	ClobAuthMessage       = "This message attests that I control the given wallet"
)

// ValidAddress reports whether s is a well-formed 20-byte hex address.
func ValidAddress(s string) bool {
	return common.IsHexAddress(s)
}

// ChecksumAddress re-encodes an address in EIP-55 checksum form.
func ChecksumAddress(s string) (string, error) {
	if !common.IsHexAddress(s) {
		return "", fmt.Errorf("crypto: %w: invalid EVM address %q", domain.ErrValidation, s)
	}
	return common.HexToAddress(s).Hex(), nil
}

// parseSignature decodes a 65-byte 0x-hex signature and normalizes the
// recovery byte from {27,28} to {0,1} as go-ethereum expects.
func parseSignature(sigHex string) ([]byte, error) {
	sig, err := hexutil.Decode(strings.TrimSpace(sigHex))
	if err != nil {
		return nil, fmt.Errorf("crypto: decode signature: %w", err)
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("crypto: signature must be 65 bytes, got %d", len(sig))
	}
	out := make([]byte, 65)
	copy(out, sig)
	if out[64] >= 27 {
		out[64] -= 27
	}
	return out, nil
}

// recoverDigest recovers the signing address from a 32-byte digest.
func recoverDigest(digest []byte, sigHex string) (common.Address, error) {
	sig, err := parseSignature(sigHex)
	if err != nil {
		return common.Address{}, err
	}
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: recover pubkey: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// RecoverPersonalSigner recovers the address that personal_signed the given
// message text ("\x19Ethereum Signed Message:\n" prefix per EIP-191).
func RecoverPersonalSigner(message, sigHex string) (common.Address, error) {
	return recoverDigest(accounts.TextHash([]byte(message)), sigHex)
}

// ClobAuthTypedData builds the ClobAuth EIP-712 payload. The timestamp is a
// string field in the struct even though clients produce it from an integer.
func ClobAuthTypedData(address string, timestamp int64, nonce int64, chainID int64) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"ClobAuth": {
				{Name: "address", Type: "address"},
				{Name: "timestamp", Type: "string"},
				{Name: "nonce", Type: "uint256"},
				{Name: "message", Type: "string"},
			},
		},
		PrimaryType: "ClobAuth",
		Domain: apitypes.TypedDataDomain{
			Name:    ClobAuthDomainName,
			Version: ClobAuthDomainVersion,
			ChainId: math.NewHexOrDecimal256(chainID),
		},
		Message: apitypes.TypedDataMessage{
			"address":   address,
			"timestamp": strconv.FormatInt(timestamp, 10),
			"nonce":     strconv.FormatInt(nonce, 10),
			"message":   ClobAuthMessage,
		},
	}
}

// RecoverClobAuthSigner recovers the address behind a ClobAuth EIP-712
// signature.
func RecoverClobAuthSigner(address string, sigHex string, timestamp, nonce, chainID int64) (common.Address, error) {
	return recoverTypedData(ClobAuthTypedData(address, timestamp, nonce, chainID), sigHex)
}

// OrderTypedData builds the CTF Exchange Order EIP-712 payload for one
// verifying contract.
func OrderTypedData(order domain.SignedOrder, chainID int64, exchangeAddress string) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": {
				{Name: "salt", Type: "uint256"},
				{Name: "maker", Type: "address"},
				{Name: "signer", Type: "address"},
				{Name: "taker", Type: "address"},
				{Name: "tokenId", Type: "uint256"},
				{Name: "makerAmount", Type: "uint256"},
				{Name: "takerAmount", Type: "uint256"},
				{Name: "expiration", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "feeRateBps", Type: "uint256"},
				{Name: "side", Type: "uint8"},
				{Name: "signatureType", Type: "uint8"},
			},
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              "Polymarket CTF Exchange",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: exchangeAddress,
		},
		Message: apitypes.TypedDataMessage{
			"salt":          strconv.FormatInt(order.Salt, 10),
			"maker":         order.Maker,
			"signer":        order.Signer,
			"taker":         order.Taker,
			"tokenId":       order.TokenID,
			"makerAmount":   order.MakerAmount,
			"takerAmount":   order.TakerAmount,
			"expiration":    order.Expiration,
			"nonce":         order.Nonce,
			"feeRateBps":    order.FeeRateBps,
			"side":          strconv.Itoa(sideToUint8(order.Side)),
			"signatureType": strconv.Itoa(order.SignatureType),
		},
	}
}

// RecoverOrderSigner recovers the address behind an Order EIP-712 signature
// for the given verifying contract.
func RecoverOrderSigner(order domain.SignedOrder, chainID int64, exchangeAddress string) (common.Address, error) {
	return recoverTypedData(OrderTypedData(order, chainID, exchangeAddress), order.Signature)
}

func recoverTypedData(td apitypes.TypedData, sigHex string) (common.Address, error) {
	digest, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: hash typed data: %w", err)
	}
	return recoverDigest(digest, sigHex)
}

func sideToUint8(side string) int {
	if side == domain.SideSell {
		return 1
	}
	return 0
}
