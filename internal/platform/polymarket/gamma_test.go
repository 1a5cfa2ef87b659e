package polymarket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opipolix/webgate/internal/domain"
)

func TestGetMarketTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("id"); got != "512345" {
			t.Errorf("id = %s", got)
		}
		w.Write([]byte(`[{
			"id": "512345",
			"question": "Will it rain?",
			"outcomes": "[\"Yes\", \"No\"]",
			"clobTokenIds": "[\"7132104567\", \"7132104568\"]"
		}]`))
	}))
	defer srv.Close()

	g := NewGammaClient(srv.URL)
	tokens, err := g.GetMarketTokens(context.Background(), "512345")
	if err != nil {
		t.Fatalf("GetMarketTokens: %v", err)
	}
	if tokens.YesTokenID != "7132104567" || tokens.NoTokenID != "7132104568" {
		t.Fatalf("tokens = %+v", tokens)
	}
	if tokens.YesLabel != "Yes" || tokens.NoLabel != "No" {
		t.Fatalf("labels = %+v", tokens)
	}
}

func TestGetMarketTokensNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	g := NewGammaClient(srv.URL)
	_, err := g.GetMarketTokens(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestParseMarketTokens(t *testing.T) {
	tests := []struct {
		name    string
		market  gammaMarket
		want    MarketTokens
		wantErr bool
	}{
		{
			name: "custom outcome labels",
			market: gammaMarket{
				ID:           "m1",
				Outcomes:     `["Chiefs", "Eagles"]`,
				ClobTokenIDs: `["111", "222"]`,
			},
			want: MarketTokens{YesTokenID: "111", NoTokenID: "222", YesLabel: "Chiefs", NoLabel: "Eagles"},
		},
		{
			name: "missing outcomes defaults to yes and no",
			market: gammaMarket{
				ID:           "m2",
				ClobTokenIDs: `["111", "222"]`,
			},
			want: MarketTokens{YesTokenID: "111", NoTokenID: "222", YesLabel: "Yes", NoLabel: "No"},
		},
		{
			name: "single token rejected",
			market: gammaMarket{
				ID:           "m3",
				ClobTokenIDs: `["111"]`,
			},
			wantErr: true,
		},
		{
			name:    "empty token list rejected",
			market:  gammaMarket{ID: "m4"},
			wantErr: true,
		},
		{
			name: "malformed double encoding rejected",
			market: gammaMarket{
				ID:           "m5",
				ClobTokenIDs: `not json`,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMarketTokens(tt.market)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseMarketTokens: %v", err)
			}
			if *got != tt.want {
				t.Fatalf("tokens = %+v, want %+v", *got, tt.want)
			}
		})
	}
}
