package jsonwalk

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	return out
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"FilledSize", "filledsize"},
		{"filled-size", "filled_size"},
		{"FILLED_SIZE", "filled_size"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := NormalizeKey(tt.in); got != tt.want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAsFloat(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want float64
		ok   bool
	}{
		{"float", 1.5, 1.5, true},
		{"int", 7, 7, true},
		{"string", "42.5", 42.5, true},
		{"string with commas", "1,234.5", 1234.5, true},
		{"empty string", "", 0, false},
		{"non numeric string", "abc", 0, false},
		{"bool", true, 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AsFloat(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Errorf("AsFloat(%v) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestFirstStringNested(t *testing.T) {
	obj := decode(t, `{"outer": {"order-status": "LIVE"}, "zz": "ignored"}`)

	got, ok := FirstString(obj, KeySet("order_status"))
	if !ok || got != "LIVE" {
		t.Fatalf("FirstString = (%q, %v), want (LIVE, true)", got, ok)
	}

	if _, ok := FirstString(obj, KeySet("missing")); ok {
		t.Fatal("FirstString found a value for an absent key")
	}
}

func TestFirstStringDeterministicOrder(t *testing.T) {
	// Two sibling keys match; lexicographic traversal must always pick "a".
	obj := decode(t, `{"b_status": "second", "a_status": "first"}`)
	keys := KeySet("a_status", "b_status")

	for i := 0; i < 20; i++ {
		got, ok := FirstString(obj, keys)
		if !ok || got != "first" {
			t.Fatalf("iteration %d: FirstString = (%q, %v), want (first, true)", i, got, ok)
		}
	}
}

func TestNumbers(t *testing.T) {
	obj := decode(t, `{
		"a": {"filled": 10},
		"b": [{"filled": "20"}, {"filled": true}],
		"filled": 5
	}`)

	got := Numbers(obj, KeySet("filled"))
	want := []float64{10, 20, 5}
	if len(got) != len(want) {
		t.Fatalf("Numbers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Numbers = %v, want %v", got, want)
		}
	}
}

func TestFirstScope(t *testing.T) {
	obj := decode(t, `{"wallet": {"usdc": {"available": 12.5, "total": 80}}}`)

	scope, ok := FirstScope(obj, KeySet("usdc"))
	if !ok {
		t.Fatal("FirstScope missed the usdc sub-tree")
	}
	if v, ok := FirstNumber(scope, KeySet("available")); !ok || v != 12.5 {
		t.Fatalf("FirstNumber in scope = (%v, %v), want (12.5, true)", v, ok)
	}
}

func TestFirstMatch(t *testing.T) {
	obj := decode(t, `{"nested": {"proxy-wallet": "0xabc"}, "other": 1}`)

	got, ok := FirstMatch(obj, func(key string, value any) bool {
		return key == "proxy_wallet"
	})
	if !ok || got != "0xabc" {
		t.Fatalf("FirstMatch = (%v, %v), want (0xabc, true)", got, ok)
	}

	_, ok = FirstMatch(obj, func(key string, value any) bool { return false })
	if ok {
		t.Fatal("FirstMatch reported a hit with an always-false predicate")
	}
}
