package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/opipolix/webgate/internal/crypto"
	"github.com/opipolix/webgate/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildSIWETemplate(t *testing.T) {
	addr := "0x56687bf447DB6ffA42ead1e8Dfb4257A32b9f7c9"
	at := time.Date(2026, 8, 25, 9, 30, 15, 123456789, time.UTC)

	tpl := BuildSIWETemplate(addr, 137, at)

	lines := strings.Split(tpl, "\n")
	want := []string{
		"OpiPoliX Web Experiment",
		"Sign this message to authenticate.",
		"",
		"Address: " + addr,
		"Chain ID: 137",
		"Nonce: {nonce}",
		"Issued At: 2026-08-25T09:30:15Z",
	}
	if len(lines) != len(want) {
		t.Fatalf("template has %d lines, want %d:\n%s", len(lines), len(want), tpl)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestFillNonce(t *testing.T) {
	msg := FillNonce("Nonce: {nonce}\n", "abc123")
	if msg != "Nonce: abc123\n" {
		t.Fatalf("FillNonce = %q", msg)
	}
}

func TestVerifySIWE(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()

	template := BuildSIWETemplate(addr, 137, time.Now())
	nonce := "deadbeefdeadbeefdeadbeefdeadbeef"
	message := FillNonce(template, nonce)

	sig, err := ethcrypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig[64] += 27
	sigHex := hexutil.Encode(sig)

	if err := VerifySIWE(addr, template, nonce, message, sigHex); err != nil {
		t.Fatalf("VerifySIWE: %v", err)
	}

	// The submitted message must match the stored template byte-for-byte.
	err = VerifySIWE(addr, template, nonce, message+" ", sigHex)
	if !errors.Is(err, domain.ErrAuthInvalid) {
		t.Fatalf("mutated message: err = %v, want auth invalid", err)
	}

	// A message signed by a different key fails address comparison.
	otherKey, _ := ethcrypto.GenerateKey()
	otherSig, _ := ethcrypto.Sign(accounts.TextHash([]byte(message)), otherKey)
	otherSig[64] += 27
	err = VerifySIWE(addr, template, nonce, message, hexutil.Encode(otherSig))
	if !errors.Is(err, domain.ErrAuthInvalid) {
		t.Fatalf("foreign signature: err = %v, want auth invalid", err)
	}

	// Garbage signatures fail without panicking.
	err = VerifySIWE(addr, template, nonce, message, "0x1234")
	if !errors.Is(err, domain.ErrAuthInvalid) {
		t.Fatalf("malformed signature: err = %v, want auth invalid", err)
	}
}

func TestVerifyClobAuth(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
	const ts, nonce, chain = int64(1756100000), int64(0), int64(137)

	digest, _, err := apitypes.TypedDataAndHash(crypto.ClobAuthTypedData(addr, ts, nonce, chain))
	if err != nil {
		t.Fatalf("hash typed data: %v", err)
	}
	sig, err := ethcrypto.Sign(digest, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig[64] += 27
	sigHex := hexutil.Encode(sig)

	if err := VerifyClobAuth(addr, sigHex, ts, nonce, chain); err != nil {
		t.Fatalf("VerifyClobAuth: %v", err)
	}

	err = VerifyClobAuth(addr, sigHex, ts+1, nonce, chain)
	if !errors.Is(err, domain.ErrAuthInvalid) {
		t.Fatalf("changed timestamp: err = %v, want auth invalid", err)
	}
}

func TestDerivePrefersCreate(t *testing.T) {
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/auth/api-key" {
			gotHeaders = r.Header.Clone()
			w.Write([]byte(`{"apiKey":"k1","secret":"s1","passphrase":"p1"}`))
			return
		}
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewCredsDeriver(srv.URL, discardLogger())
	creds, err := d.Derive(context.Background(), "0x56687bf447DB6ffA42ead1e8Dfb4257A32b9f7c9", "0xsig", 1756100000, 0)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if creds.APIKey != "k1" || creds.APISecret != "s1" || creds.APIPassphrase != "p1" {
		t.Fatalf("creds = %+v", creds)
	}

	for _, h := range []string{"Poly_address", "Poly_signature", "Poly_timestamp", "Poly_nonce"} {
		if gotHeaders.Get(h) == "" {
			t.Errorf("missing header %s", h)
		}
	}
}

func TestDeriveFallsBackToDerive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/auth/api-key":
			w.WriteHeader(http.StatusBadRequest)
		case r.Method == http.MethodGet && r.URL.Path == "/auth/derive-api-key":
			w.Write([]byte(`{"apiKey":"k2","secret":"s2","passphrase":"p2"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	d := NewCredsDeriver(srv.URL, discardLogger())
	creds, err := d.Derive(context.Background(), "0x56687bf447DB6ffA42ead1e8Dfb4257A32b9f7c9", "0xsig", 1756100000, 0)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if creds.APIKey != "k2" {
		t.Fatalf("creds = %+v", creds)
	}
}

func TestDeriveBothFailReportsBothStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	d := NewCredsDeriver(srv.URL, discardLogger())
	_, err := d.Derive(context.Background(), "0x56687bf447DB6ffA42ead1e8Dfb4257A32b9f7c9", "0xsig", 1756100000, 0)
	if !errors.Is(err, domain.ErrCredentialDerivation) {
		t.Fatalf("err = %v, want credential derivation error", err)
	}
	if !strings.Contains(err.Error(), "create=400") || !strings.Contains(err.Error(), "derive=401") {
		t.Fatalf("error does not carry both statuses: %v", err)
	}
}

func TestDeriveIncompletePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"apiKey":"k1","secret":""}`))
	}))
	defer srv.Close()

	d := NewCredsDeriver(srv.URL, discardLogger())
	_, err := d.Derive(context.Background(), "0x56687bf447DB6ffA42ead1e8Dfb4257A32b9f7c9", "0xsig", 1756100000, 0)
	if !errors.Is(err, domain.ErrCredentialPayload) {
		t.Fatalf("err = %v, want credential payload error", err)
	}
}
