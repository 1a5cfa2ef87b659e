// Package tp implements the take-profit automation engine. Arming snapshots
// the session's credentials and trading context into an arm record and
// spawns one monitor goroutine that polls the entry order's fill progress,
// placing each pre-signed exit order exactly once as its ladder threshold
// is crossed.
package tp

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opipolix/webgate/internal/domain"
	"github.com/opipolix/webgate/internal/platform/polymarket"
	"github.com/opipolix/webgate/internal/store/memory"
)

// epsilon pads the threshold comparison so a fill ratio computed from
// floating-point division still crosses a level it equals.
const epsilon = 1e-9

// ClobClient is the slice of the session CLOB client the monitor needs.
type ClobClient interface {
	GetOrderRaw(ctx context.Context, orderID string) (map[string]any, error)
	PostSignedOrder(ctx context.Context, order domain.SignedOrder, orderType string) (*polymarket.PostOrderResult, error)
}

// ClientFactory builds a CLOB client from an arm's credential snapshot.
type ClientFactory func(eoaAddress string, creds domain.ClobCreds, funderAddress string, signatureType int) (ClobClient, error)

// Broadcaster fans arm events out to live subscribers. Implementations
// must not block.
type Broadcaster interface {
	BroadcastTpEvent(armID string, evt domain.TpEvent)
}

// ArmRequest is a validated request to arm a take-profit ladder.
type ArmRequest struct {
	EntryOrderID    string                 `json:"entry_order_id"`
	TokenID         string                 `json:"token_id"`
	EntrySizeTokens float64                `json:"entry_size_tokens"`
	Mode            string                 `json:"mode"`
	Levels          []domain.TpLevel       `json:"levels"`
	SignedTpOrders  []domain.SignedTpOrder `json:"signed_tp_orders"`
	MaxMinutes      int                    `json:"max_minutes"`
}

// Validate checks structural bounds. Signed orders are validated against
// the session separately, before arming.
func (r *ArmRequest) Validate() error {
	if len(r.EntryOrderID) < 4 {
		return fmt.Errorf("tp: %w: entry_order_id is required", domain.ErrValidation)
	}
	if len(r.TokenID) < 10 {
		return fmt.Errorf("tp: %w: token_id is required", domain.ErrValidation)
	}
	if r.EntrySizeTokens <= 0 {
		return fmt.Errorf("tp: %w: entry_size_tokens must be positive", domain.ErrValidation)
	}
	if r.Mode != "single" && r.Mode != "ladder" {
		return fmt.Errorf("tp: %w: mode must be single or ladder", domain.ErrValidation)
	}
	if len(r.Levels) < 1 || len(r.Levels) > 3 {
		return fmt.Errorf("tp: %w: levels must have 1-3 entries", domain.ErrValidation)
	}
	total := 0.0
	for i, level := range r.Levels {
		if level.Price <= 0 || level.Price >= 1 {
			return fmt.Errorf("tp: %w: level %d price must be in (0, 1)", domain.ErrValidation, i)
		}
		if level.SizePct <= 0 || level.SizePct > 100 {
			return fmt.Errorf("tp: %w: level %d size_pct must be in (0, 100]", domain.ErrValidation, i)
		}
		total += level.SizePct
	}
	if math.Abs(total-100) > 0.2 {
		return fmt.Errorf("tp: %w: TP level percentages must sum to 100", domain.ErrValidation)
	}
	if len(r.SignedTpOrders) < 1 || len(r.SignedTpOrders) > 3 {
		return fmt.Errorf("tp: %w: signed_tp_orders must have 1-3 entries", domain.ErrValidation)
	}
	for _, item := range r.SignedTpOrders {
		if item.LevelIndex < 0 || item.LevelIndex > 9 {
			return fmt.Errorf("tp: %w: level_index out of range: %d", domain.ErrValidation, item.LevelIndex)
		}
	}
	if r.MaxMinutes < 0 || r.MaxMinutes > 180 {
		return fmt.Errorf("tp: %w: max_minutes must be 1-180", domain.ErrValidation)
	}
	return nil
}

// Engine owns the arm records and their monitor goroutines.
type Engine struct {
	store     *memory.Store
	newClient ClientFactory
	events    Broadcaster // nil disables broadcasting
	logger    *slog.Logger

	defaultPoll       time.Duration
	defaultMaxMinutes int

	mu      sync.Mutex
	rootCtx context.Context
	wg      sync.WaitGroup
	now     func() time.Time
}

// New creates an Engine. events may be nil.
func New(store *memory.Store, newClient ClientFactory, events Broadcaster, defaultPoll time.Duration, defaultMaxMinutes int, logger *slog.Logger) *Engine {
	return &Engine{
		store:             store,
		newClient:         newClient,
		events:            events,
		logger:            logger.With(slog.String("component", "tp_engine")),
		defaultPoll:       defaultPoll,
		defaultMaxMinutes: defaultMaxMinutes,
		rootCtx:           context.Background(),
		now:               time.Now,
	}
}

// SetClock overrides the engine's clock. Tests only.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

func (e *Engine) clock() func() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

// Run parks until ctx is cancelled, then waits for every live monitor to
// observe the cancellation and exit.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	e.rootCtx = ctx
	e.mu.Unlock()

	<-ctx.Done()
	e.wg.Wait()
	return nil
}

func (e *Engine) monitorCtx() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rootCtx
}

// Arm persists a new arm from the request and session snapshot and spawns
// its monitor.
func (e *Engine) Arm(sess *domain.Session, req ArmRequest) (*domain.TpArm, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	byLevel := make(map[int]domain.SignedTpOrder, len(req.SignedTpOrders))
	for _, item := range req.SignedTpOrders {
		if item.OrderType == "" {
			item.OrderType = domain.OrderTypeGTC
		}
		byLevel[item.LevelIndex] = item
	}

	maxMinutes := req.MaxMinutes
	if maxMinutes == 0 {
		maxMinutes = e.defaultMaxMinutes
	}

	now := e.clock()()
	arm := &domain.TpArm{
		ArmID:           "tp_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		EOAAddress:      sess.EOAAddress,
		EntryOrderID:    req.EntryOrderID,
		TokenID:         req.TokenID,
		EntrySizeTokens: req.EntrySizeTokens,
		Mode:            req.Mode,
		Levels:          req.Levels,
		SignedTpOrders:  byLevel,
		PlacedLevels:    make(map[int]domain.PlacedLevel),
		Status:          domain.TpStatusArmed,
		PollSeconds:     e.defaultPoll.Seconds(),
		MaxMinutes:      maxMinutes,
		Creds:           sess.Creds,
		TradingContext:  sess.TradingContext,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	e.store.SaveTpArm(arm)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.monitor(e.monitorCtx(), arm.ArmID)
	}()

	e.logger.Info("tp arm created",
		slog.String("arm_id", arm.ArmID),
		slog.String("eoa", arm.EOAAddress),
		slog.String("entry_order_id", arm.EntryOrderID),
		slog.Int("levels", len(arm.Levels)))
	return arm.Clone(), nil
}

// Status returns the caller's arms, or the single named arm when it belongs
// to the caller.
func (e *Engine) Status(eoaAddress, armID string) []*domain.TpArm {
	if armID != "" {
		arm := e.store.GetTpArm(armID)
		if arm == nil || !strings.EqualFold(arm.EOAAddress, eoaAddress) {
			return []*domain.TpArm{}
		}
		return []*domain.TpArm{arm}
	}
	return e.store.GetTpArmsForUser(eoaAddress)
}

// Cancel moves an armed arm to cancelled. The monitor observes the
// terminal status at the top of its next iteration and exits.
func (e *Engine) Cancel(eoaAddress, armID string) error {
	arm := e.store.GetTpArm(armID)
	if arm == nil || !strings.EqualFold(arm.EOAAddress, eoaAddress) {
		return fmt.Errorf("tp: %w: arm %s", domain.ErrNotFound, armID)
	}
	if domain.TerminalTpStatus(arm.Status) {
		return nil
	}

	e.store.UpdateTpArm(armID, func(a *domain.TpArm) {
		a.Status = domain.TpStatusCancelled
	})
	e.appendEvent(armID, domain.TpEvent{
		At:      e.clock()(),
		Event:   "cancelled",
		Message: "TP arm cancelled by user",
	})
	return nil
}

// monitor is the per-arm polling loop. Iteration errors are logged to the
// arm's event log and retried on the next tick; only timeout, completion,
// an external terminal status, or context cancellation end the loop.
func (e *Engine) monitor(ctx context.Context, armID string) {
	logger := e.logger.With(slog.String("task", "tp-monitor-"+armID))

	arm := e.store.GetTpArm(armID)
	if arm == nil {
		return
	}

	client, err := e.newClient(arm.EOAAddress, arm.Creds, arm.TradingContext.FunderAddress, arm.TradingContext.SignatureType)
	if err != nil {
		now := e.clock()()
		e.store.UpdateTpArm(armID, func(a *domain.TpArm) {
			a.Status = domain.TpStatusError
		})
		e.appendEvent(armID, domain.TpEvent{At: now, Event: "error", Message: "client setup failed: " + err.Error()})
		logger.Error("monitor aborted", slog.String("error", err.Error()))
		return
	}

	deadline := arm.CreatedAt.Add(time.Duration(arm.MaxMinutes) * time.Minute)
	poll := time.Duration(arm.PollSeconds * float64(time.Second))

	for {
		now := e.clock()()
		if !now.Before(deadline) {
			e.store.UpdateTpArm(armID, func(a *domain.TpArm) {
				a.Status = domain.TpStatusTimeout
			})
			e.appendEvent(armID, domain.TpEvent{At: now, Event: "timeout", Message: "TP arm timed out"})
			logger.Info("tp arm timed out", slog.String("arm_id", armID))
			return
		}

		arm = e.store.GetTpArm(armID)
		if arm == nil || domain.TerminalTpStatus(arm.Status) {
			return
		}

		if done := e.poll(ctx, client, arm, logger); done {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(poll):
		}
	}
}

// poll runs one monitor iteration. It reports true when the arm reached a
// terminal state.
func (e *Engine) poll(ctx context.Context, client ClobClient, arm *domain.TpArm, logger *slog.Logger) bool {
	now := e.clock()()

	payload, err := client.GetOrderRaw(ctx, arm.EntryOrderID)
	if err != nil {
		e.appendEvent(arm.ArmID, domain.TpEvent{At: now, Event: "poll_error", Message: err.Error()})
		logger.Warn("entry order poll failed", slog.String("error", err.Error()))
		return false
	}

	filledTokens := ExtractFilledTokens(payload, arm.EntrySizeTokens)
	e.store.UpdateTpArm(arm.ArmID, func(a *domain.TpArm) {
		a.LastFilledTokens = filledTokens
	})

	fillRatio := 0.0
	if arm.EntrySizeTokens > 0 {
		fillRatio = clamp(filledTokens/arm.EntrySizeTokens, 1)
	}

	cumulative := 0.0
	for idx, level := range arm.Levels {
		cumulative += level.SizePct / 100

		if fillRatio+epsilon < cumulative {
			continue
		}
		if _, placed := arm.PlacedLevels[idx]; placed {
			continue
		}

		signed, ok := arm.SignedTpOrders[idx]
		if !ok {
			entry := domain.PlacedLevel{Status: "error", Error: "Missing signed TP order for level", At: now}
			arm.PlacedLevels[idx] = entry
			e.store.UpdateTpArm(arm.ArmID, func(a *domain.TpArm) {
				a.PlacedLevels[idx] = entry
			})
			continue
		}

		// One placement per (arm, level, signature) for the process
		// lifetime, even if iterations overlap after an error.
		idemKey := fmt.Sprintf("%s:%d:%s", arm.ArmID, idx, signed.Order.Signature)
		if !e.store.MarkIdempotent(idemKey) {
			continue
		}

		result, err := client.PostSignedOrder(ctx, signed.Order, signed.OrderType)
		if err != nil {
			e.appendEvent(arm.ArmID, domain.TpEvent{
				At: now, Event: "poll_error", Level: idx,
				Message: "post TP order: " + err.Error(),
			})
			logger.Warn("tp order placement failed",
				slog.Int("level", idx),
				slog.String("error", err.Error()))
			continue
		}

		entry := domain.PlacedLevel{
			Status:           "placed",
			TpOrderID:        result.OrderID,
			FillRatioTrigger: math.Round(fillRatio*1e6) / 1e6,
			At:               now,
		}
		arm.PlacedLevels[idx] = entry
		e.store.UpdateTpArm(arm.ArmID, func(a *domain.TpArm) {
			a.PlacedLevels[idx] = entry
		})
		e.appendEvent(arm.ArmID, domain.TpEvent{
			At:        now,
			Event:     "tp_placed",
			Level:     idx,
			TpOrderID: result.OrderID,
			FillRatio: math.Round(fillRatio*1e6) / 1e6,
		})
		logger.Info("tp level placed",
			slog.Int("level", idx),
			slog.String("tp_order_id", result.OrderID),
			slog.Float64("fill_ratio", fillRatio))
	}

	if len(arm.PlacedLevels) >= len(arm.Levels) && len(arm.Levels) > 0 {
		e.store.UpdateTpArm(arm.ArmID, func(a *domain.TpArm) {
			a.Status = domain.TpStatusCompleted
		})
		e.appendEvent(arm.ArmID, domain.TpEvent{At: now, Event: "completed", Message: "All TP levels placed"})
		logger.Info("tp arm completed", slog.String("arm_id", arm.ArmID))
		return true
	}
	return false
}

// appendEvent writes to the arm's event log and fans out to subscribers.
func (e *Engine) appendEvent(armID string, evt domain.TpEvent) {
	e.store.AppendTpEvent(armID, evt)
	if e.events != nil {
		e.events.BroadcastTpEvent(armID, evt)
	}
}
