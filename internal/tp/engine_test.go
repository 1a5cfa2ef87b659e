package tp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/opipolix/webgate/internal/domain"
	"github.com/opipolix/webgate/internal/platform/polymarket"
	"github.com/opipolix/webgate/internal/store/memory"
)

const armEOA = "0x56687bf447DB6ffA42ead1e8Dfb4257A32b9f7c9"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClob scripts the entry order's fill progression and records every TP
// placement.
type fakeClob struct {
	mu      sync.Mutex
	fills   []float64 // size_matched per poll; last value repeats
	call    int
	placed  []domain.SignedOrder
	postErr error
	onPoll  func(call int)
}

func (f *fakeClob) GetOrderRaw(ctx context.Context, orderID string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.onPoll != nil {
		f.onPoll(f.call)
	}
	idx := f.call
	if idx >= len(f.fills) {
		idx = len(f.fills) - 1
	}
	f.call++
	return map[string]any{"size_matched": f.fills[idx]}, nil
}

func (f *fakeClob) PostSignedOrder(ctx context.Context, order domain.SignedOrder, orderType string) (*polymarket.PostOrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.postErr != nil {
		return nil, f.postErr
	}
	f.placed = append(f.placed, order)
	id := fmt.Sprintf("tp-order-%d", len(f.placed))
	return &polymarket.PostOrderResult{OrderID: id, Raw: map[string]any{"orderID": id}}, nil
}

func (f *fakeClob) placedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.placed)
}

func newEngine(t *testing.T, client ClobClient) (*Engine, *memory.Store) {
	t.Helper()
	store := memory.New(time.Minute, time.Hour)
	factory := func(eoa string, creds domain.ClobCreds, funder string, sigType int) (ClobClient, error) {
		return client, nil
	}
	return New(store, factory, nil, 2*time.Millisecond, 60, discardLogger()), store
}

func session() *domain.Session {
	return &domain.Session{
		EOAAddress: armEOA,
		Creds:      domain.ClobCreds{APIKey: "k", APISecret: "s", APIPassphrase: "p"},
		TradingContext: domain.TradingContext{
			EOAAddress:     armEOA,
			TradingAddress: armEOA,
			SignatureType:  domain.SignatureTypeEOA,
			Mode:           domain.ModeEOA,
		},
	}
}

func signedLevel(idx int, sig string) domain.SignedTpOrder {
	return domain.SignedTpOrder{
		LevelIndex: idx,
		OrderType:  "GTC",
		Order: domain.SignedOrder{
			Salt:      int64(1000 + idx),
			Side:      domain.SideSell,
			Signature: sig,
		},
	}
}

func ladderRequest() ArmRequest {
	return ArmRequest{
		EntryOrderID:    "entry-1234",
		TokenID:         "71321045679252212594",
		EntrySizeTokens: 100,
		Mode:            "ladder",
		Levels: []domain.TpLevel{
			{Price: 0.60, SizePct: 40},
			{Price: 0.70, SizePct: 30},
			{Price: 0.80, SizePct: 30},
		},
		SignedTpOrders: []domain.SignedTpOrder{
			signedLevel(0, "0xsig0"),
			signedLevel(1, "0xsig1"),
			signedLevel(2, "0xsig2"),
		},
	}
}

// waitForStatus polls the store until the arm reaches the wanted status.
func waitForStatus(t *testing.T, store *memory.Store, armID, want string) *domain.TpArm {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if arm := store.GetTpArm(armID); arm != nil && arm.Status == want {
			return arm
		}
		time.Sleep(time.Millisecond)
	}
	arm := store.GetTpArm(armID)
	t.Fatalf("arm never reached %q; current: %+v", want, arm)
	return nil
}

func TestArmRequestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ArmRequest)
		ok     bool
	}{
		{"valid ladder", func(r *ArmRequest) {}, true},
		{"short entry id", func(r *ArmRequest) { r.EntryOrderID = "ab" }, false},
		{"short token id", func(r *ArmRequest) { r.TokenID = "123" }, false},
		{"zero entry size", func(r *ArmRequest) { r.EntrySizeTokens = 0 }, false},
		{"bad mode", func(r *ArmRequest) { r.Mode = "trailing" }, false},
		{"no levels", func(r *ArmRequest) { r.Levels = nil }, false},
		{"four levels", func(r *ArmRequest) {
			r.Levels = append(r.Levels, domain.TpLevel{Price: 0.9, SizePct: 1})
		}, false},
		{"price at bound", func(r *ArmRequest) { r.Levels[0].Price = 1 }, false},
		{"percentages do not sum", func(r *ArmRequest) { r.Levels[0].SizePct = 50 }, false},
		{"sum within tolerance", func(r *ArmRequest) {
			r.Levels[0].SizePct = 40.1
			r.Levels[1].SizePct = 29.95
		}, true},
		{"level index out of range", func(r *ArmRequest) { r.SignedTpOrders[0].LevelIndex = 10 }, false},
		{"max minutes too large", func(r *ArmRequest) { r.MaxMinutes = 200 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := ladderRequest()
			tt.mutate(&req)
			err := req.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("err = %v, want validation error", err)
			}
		})
	}
}

func TestLadderPlacement(t *testing.T) {
	// Fill progression in tokens: 40 crosses level 0, 55 crosses nothing
	// new, 85 crosses level 1, 105 (clamped to 100) crosses level 2.
	client := &fakeClob{fills: []float64{40, 55, 85, 105}}
	engine, store := newEngine(t, client)

	arm, err := engine.Arm(session(), ladderRequest())
	if err != nil {
		t.Fatalf("Arm: %v", err)
	}

	final := waitForStatus(t, store, arm.ArmID, domain.TpStatusCompleted)

	if client.placedCount() != 3 {
		t.Fatalf("placed %d orders, want 3", client.placedCount())
	}
	for idx := 0; idx < 3; idx++ {
		entry, ok := final.PlacedLevels[idx]
		if !ok || entry.Status != "placed" {
			t.Fatalf("level %d entry: %+v", idx, entry)
		}
	}
	if final.PlacedLevels[0].TpOrderID != "tp-order-1" {
		t.Fatalf("level 0 order id = %s", final.PlacedLevels[0].TpOrderID)
	}
	if final.LastFilledTokens != 100 {
		t.Fatalf("last filled = %v, want clamped 100", final.LastFilledTokens)
	}

	// Level 0 triggered at ratio 0.4, level 2 at the full fill.
	if got := final.PlacedLevels[0].FillRatioTrigger; got != 0.4 {
		t.Fatalf("level 0 trigger = %v, want 0.4", got)
	}
	if got := final.PlacedLevels[2].FillRatioTrigger; got != 1 {
		t.Fatalf("level 2 trigger = %v, want 1", got)
	}
}

func TestSingleModeImmediateFill(t *testing.T) {
	client := &fakeClob{fills: []float64{100}}
	engine, store := newEngine(t, client)

	req := ladderRequest()
	req.Mode = "single"
	req.Levels = []domain.TpLevel{{Price: 0.75, SizePct: 100}}
	req.SignedTpOrders = []domain.SignedTpOrder{signedLevel(0, "0xsingle")}

	arm, err := engine.Arm(session(), req)
	if err != nil {
		t.Fatalf("Arm: %v", err)
	}

	waitForStatus(t, store, arm.ArmID, domain.TpStatusCompleted)
	if client.placedCount() != 1 {
		t.Fatalf("placed %d orders, want 1", client.placedCount())
	}
}

func TestMissingSignedOrderCountsAsErrorLevel(t *testing.T) {
	client := &fakeClob{fills: []float64{100}}
	engine, store := newEngine(t, client)

	req := ladderRequest()
	req.Levels = []domain.TpLevel{
		{Price: 0.60, SizePct: 50},
		{Price: 0.70, SizePct: 50},
	}
	// Only level 1 has a signed order.
	req.SignedTpOrders = []domain.SignedTpOrder{signedLevel(1, "0xsig1")}

	arm, err := engine.Arm(session(), req)
	if err != nil {
		t.Fatalf("Arm: %v", err)
	}

	final := waitForStatus(t, store, arm.ArmID, domain.TpStatusCompleted)
	if final.PlacedLevels[0].Status != "error" {
		t.Fatalf("level 0 = %+v, want error entry", final.PlacedLevels[0])
	}
	if final.PlacedLevels[1].Status != "placed" {
		t.Fatalf("level 1 = %+v, want placed", final.PlacedLevels[1])
	}
	if client.placedCount() != 1 {
		t.Fatalf("placed %d orders, want 1", client.placedCount())
	}
}

func TestCancelStopsMonitor(t *testing.T) {
	client := &fakeClob{fills: []float64{0}}
	engine, store := newEngine(t, client)

	arm, err := engine.Arm(session(), ladderRequest())
	if err != nil {
		t.Fatalf("Arm: %v", err)
	}

	if err := engine.Cancel(armEOA, arm.ArmID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	final := waitForStatus(t, store, arm.ArmID, domain.TpStatusCancelled)

	found := false
	for _, evt := range final.Events {
		if evt.Event == "cancelled" {
			found = true
		}
	}
	if !found {
		t.Fatal("no cancelled event recorded")
	}

	// Cancelling a terminal arm is a no-op; cancelling someone else's arm
	// is not found.
	if err := engine.Cancel(armEOA, arm.ArmID); err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	err = engine.Cancel("0x0000000000000000000000000000000000000001", arm.ArmID)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign cancel err = %v, want not found", err)
	}
}

func TestTimeout(t *testing.T) {
	var clockMu sync.Mutex
	current := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return current
	}

	// The first poll jumps the clock past the deadline so the next loop
	// iteration times out deterministically.
	client := &fakeClob{fills: []float64{0}}
	client.onPoll = func(call int) {
		clockMu.Lock()
		current = current.Add(2 * time.Hour)
		clockMu.Unlock()
	}

	engine, store := newEngine(t, client)
	engine.SetClock(clock)

	arm, err := engine.Arm(session(), ladderRequest())
	if err != nil {
		t.Fatalf("Arm: %v", err)
	}

	final := waitForStatus(t, store, arm.ArmID, domain.TpStatusTimeout)
	if client.placedCount() != 0 {
		t.Fatalf("placed %d orders after timeout, want 0", client.placedCount())
	}
	found := false
	for _, evt := range final.Events {
		if evt.Event == "timeout" {
			found = true
		}
	}
	if !found {
		t.Fatal("no timeout event recorded")
	}
}

func TestPostErrorEmitsPollError(t *testing.T) {
	client := &fakeClob{fills: []float64{100}, postErr: errors.New("clob rejected")}
	engine, store := newEngine(t, client)

	arm, err := engine.Arm(session(), ladderRequest())
	if err != nil {
		t.Fatalf("Arm: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		a := store.GetTpArm(arm.ArmID)
		for _, evt := range a.Events {
			if evt.Event == "poll_error" {
				if a.Status != domain.TpStatusArmed {
					t.Fatalf("status = %s, want still armed", a.Status)
				}
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no poll_error event after placement failure")
}

func TestStatusOwnership(t *testing.T) {
	client := &fakeClob{fills: []float64{0}}
	engine, _ := newEngine(t, client)

	arm, err := engine.Arm(session(), ladderRequest())
	if err != nil {
		t.Fatalf("Arm: %v", err)
	}

	if got := engine.Status(armEOA, arm.ArmID); len(got) != 1 {
		t.Fatalf("owner status len = %d, want 1", len(got))
	}
	if got := engine.Status("0x0000000000000000000000000000000000000001", arm.ArmID); len(got) != 0 {
		t.Fatal("foreign caller can read the arm")
	}
	if got := engine.Status(armEOA, ""); len(got) != 1 {
		t.Fatalf("list status len = %d, want 1", len(got))
	}
}

func TestClientFactoryFailureErrorsArm(t *testing.T) {
	store := memory.New(time.Minute, time.Hour)
	factory := func(eoa string, creds domain.ClobCreds, funder string, sigType int) (ClobClient, error) {
		return nil, errors.New("bad credentials")
	}
	engine := New(store, factory, nil, 2*time.Millisecond, 60, discardLogger())

	arm, err := engine.Arm(session(), ladderRequest())
	if err != nil {
		t.Fatalf("Arm: %v", err)
	}

	waitForStatus(t, store, arm.ArmID, domain.TpStatusError)
}
