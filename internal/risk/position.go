package risk

import (
	"time"
)

type Status string

const (
	StatusOpen         Status = "OPEN"
	StatusPartialTaken Status = "PARTIAL_TAKEN"
	StatusClosed       Status = "CLOSED"
)

// Position is one holding tracked by the Manager. Only OPEN and PARTIAL_TAKEN
// positions are kept in the ledger.
type Position struct {
	Ticker       string    `json:"ticker"`
	Quantity     float64   `json:"quantity"`
	EntryPrice   float64   `json:"entry_price"`
	CurrentPrice float64   `json:"current_price"`
	HighPrice    float64   `json:"high_price"`
	ATR          float64   `json:"atr"`
	InitialStop  float64   `json:"initial_stop"`
	StopLoss     float64   `json:"stop_loss"`
	ProfitTarget float64   `json:"profit_target"`
	EntryTime    time.Time `json:"entry_time"`
	Status       Status    `json:"status"`
	StrategyTag  string    `json:"strategy"`
	Score        int       `json:"score,omitempty"`
	Factors      []string  `json:"factors,omitempty"`
	RSI          float64   `json:"rsi,omitempty"`
	Regime       string    `json:"regime,omitempty"`
}

func (p Position) Active() bool {
	return p.Status == StatusOpen || p.Status == StatusPartialTaken
}

// PnLPct is the unrealized move from entry in percent.
func (p Position) PnLPct() float64 {
	return pctChange(p.EntryPrice, p.CurrentPrice)
}

// HeldFor is the holding time at now.
func (p Position) HeldFor(now time.Time) time.Duration {
	if p.EntryTime.IsZero() {
		return 0
	}
	return now.Sub(p.EntryTime)
}

func (p Position) clone() Position {
	p.Factors = append([]string(nil), p.Factors...)
	return p
}

// Entry describes a fill that opens a position.
type Entry struct {
	Ticker       string
	Quantity     float64
	Price        float64
	ATR          float64
	StrategyTag  string
	StopLoss     float64 // optional; defaults to price - StopATRMult*atr
	ProfitTarget float64 // optional; defaults to price + StopATRMult*atr
	Score        int
	Factors      []string
	RSI          float64
	Regime       string
}

// Closed is the realized outcome handed to the brain and the journal.
type Closed struct {
	Position
	ClosePrice float64   `json:"close_price"`
	CloseTime  time.Time `json:"close_time"`
	Reason     string    `json:"close_reason"`
	PnLFrac    float64   `json:"pnl_frac"` // (close-entry)/entry
	PnL        float64   `json:"pnl"`      // (close-entry)*quantity
	HoldHours  float64   `json:"hold_hours"`
}
