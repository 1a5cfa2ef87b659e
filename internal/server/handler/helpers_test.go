package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/opipolix/webgate/internal/domain"
)

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("orders: %w: salt out of range", domain.ErrValidation), 400},
		{fmt.Errorf("auth: %w: bad signature", domain.ErrAuthInvalid), 400},
		{domain.ErrOrderSignature, 400},
		{domain.ErrCredentialDerivation, 400},
		{domain.ErrCredentialPayload, 400},
		{domain.ErrSignerUnavailable, 400},
		{domain.ErrUnauthenticated, 401},
		{fmt.Errorf("tp: %w: arm abc", domain.ErrNotFound), 404},
		{domain.ErrRateLimited, 429},
		{domain.NewUpstreamError(503, "down", 400), 503},
		{errors.New("disk on fire"), 500},
	}
	for _, tt := range tests {
		if got := errorStatus(tt.err); got != tt.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestErrorDetail(t *testing.T) {
	// Internal errors are masked.
	if got := errorDetail(errors.New("pgx: connection refused")); got != "Internal server error" {
		t.Errorf("detail = %q", got)
	}

	// Upstream messages pass through untouched.
	if got := errorDetail(domain.NewUpstreamError(400, "Invalid order payload", 400)); got != "Invalid order payload" {
		t.Errorf("detail = %q", got)
	}

	// Package prefixes are stripped from domain errors.
	err := fmt.Errorf("orders: %w: signed order maker mismatch", domain.ErrValidation)
	got := errorDetail(err)
	if strings.Contains(got, "orders:") {
		t.Errorf("detail leaked package prefix: %q", got)
	}
	if !strings.Contains(got, "maker mismatch") {
		t.Errorf("detail lost the message: %q", got)
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, fmt.Errorf("auth: %w: signed message mismatch", domain.ErrAuthInvalid))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type = %q", ct)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["detail"] == "" {
		t.Fatalf("body = %v", body)
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Address string `json:"address"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"address": "0xabc"}`))
	if err := decodeJSON(req, &dst); err != nil || dst.Address != "0xabc" {
		t.Fatalf("decodeJSON = %v, dst = %+v", err, dst)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`))
	if err := decodeJSON(req, &dst); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}
