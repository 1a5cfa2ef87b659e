package domain

import "time"

// TP arm lifecycle statuses. An arm starts armed and ends in exactly one of
// the terminal states.
const (
	TpStatusArmed     = "armed"
	TpStatusCompleted = "completed"
	TpStatusTimeout   = "timeout"
	TpStatusCancelled = "cancelled"
	TpStatusError     = "error"
)

// TerminalTpStatus reports whether a status ends the monitor loop.
func TerminalTpStatus(status string) bool {
	switch status {
	case TpStatusCompleted, TpStatusTimeout, TpStatusCancelled, TpStatusError:
		return true
	}
	return false
}

// TpLevel is one rung of a take-profit ladder: an exit price and the
// percentage of the entry size to sell at that rung.
type TpLevel struct {
	Price   float64 `json:"price"`
	SizePct float64 `json:"size_pct"`
}

// SignedTpOrder pairs a pre-signed exit order with the ladder level it
// belongs to.
type SignedTpOrder struct {
	LevelIndex int         `json:"level_index"`
	OrderType  string      `json:"order_type"`
	Order      SignedOrder `json:"signed_order"`
}

// PlacedLevel records the outcome of one level's placement attempt. Status
// is "placed" on success or "error" when no signed order was supplied for
// the level.
type PlacedLevel struct {
	Status           string    `json:"status"`
	TpOrderID        string    `json:"tp_order_id,omitempty"`
	FillRatioTrigger float64   `json:"fill_ratio_trigger,omitempty"`
	Error            string    `json:"error,omitempty"`
	At               time.Time `json:"ts"`
}

// TpEvent is one entry in an arm's event log.
type TpEvent struct {
	At        time.Time `json:"ts"`
	Event     string    `json:"event"`
	Level     int       `json:"level,omitempty"`
	TpOrderID string    `json:"tp_order_id,omitempty"`
	FillRatio float64   `json:"fill_ratio,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// TpArm is the full state of one take-profit automation. Credentials and
// trading context are snapshotted at arm time so the monitor keeps working
// after the originating session expires. Mutated only by the monitor task;
// reads from the store receive copies.
type TpArm struct {
	ArmID            string                `json:"arm_id"`
	EOAAddress       string                `json:"eoa_address"`
	EntryOrderID     string                `json:"entry_order_id"`
	TokenID          string                `json:"token_id"`
	EntrySizeTokens  float64               `json:"entry_size_tokens"`
	Mode             string                `json:"mode"` // "single" or "ladder"
	Levels           []TpLevel             `json:"levels"`
	SignedTpOrders   map[int]SignedTpOrder `json:"-"`
	PlacedLevels     map[int]PlacedLevel   `json:"placed_levels"`
	Status           string                `json:"status"`
	LastFilledTokens float64               `json:"last_filled_tokens"`
	PollSeconds      float64               `json:"poll_seconds"`
	MaxMinutes       int                   `json:"max_minutes"`
	Events           []TpEvent             `json:"events"`
	Creds            ClobCreds             `json:"-"`
	TradingContext   TradingContext        `json:"-"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

// Clone returns a deep copy of the arm so callers can read it outside the
// store lock without aliasing in-store maps and slices.
func (a *TpArm) Clone() *TpArm {
	cp := *a

	cp.Levels = make([]TpLevel, len(a.Levels))
	copy(cp.Levels, a.Levels)

	cp.SignedTpOrders = make(map[int]SignedTpOrder, len(a.SignedTpOrders))
	for k, v := range a.SignedTpOrders {
		cp.SignedTpOrders[k] = v
	}

	cp.PlacedLevels = make(map[int]PlacedLevel, len(a.PlacedLevels))
	for k, v := range a.PlacedLevels {
		cp.PlacedLevels[k] = v
	}

	cp.Events = make([]TpEvent, len(a.Events))
	copy(cp.Events, a.Events)

	return &cp
}
