package store

import (
	"context"
	"errors"
	"time"

	"smartbot/internal/brain"
	"smartbot/internal/risk"
)

// ErrLocked is returned when another process holds the state lock.
var ErrLocked = errors.New("state store is locked by another process")

// Trade actions recorded in the journal.
const (
	ActionBuy     = "buy"
	ActionSell    = "sell"
	ActionPartial = "partial"
)

// Trade is one journal row. PnL fields are set for sells and partials.
type Trade struct {
	ID         string    `json:"id"`
	CycleID    string    `json:"cycle_id,omitempty"`
	Time       time.Time `json:"timestamp"`
	Ticker     string    `json:"ticker"`
	Action     string    `json:"action"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	OrderID    string    `json:"order_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	PnL        float64   `json:"pnl,omitempty"`
	PnLFrac    float64   `json:"pnl_frac,omitempty"`
	Score      int       `json:"score,omitempty"`
	Factors    []string  `json:"factors,omitempty"`
	RSI        float64   `json:"rsi,omitempty"`
	Regime     string    `json:"regime,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	DryRun     bool      `json:"dry_run,omitempty"`
}

// TradeQuery filters ListTrades. Zero values mean no filter.
type TradeQuery struct {
	Ticker  string
	Actions []string
	Since   time.Time
	Limit   int // newest N, returned oldest first
}

// Journal records every fill.
type Journal interface {
	AppendTrade(ctx context.Context, t Trade) error
	ListTrades(ctx context.Context, q TradeQuery) ([]Trade, error)
	// ClosedReturns lists the return fractions of full exits, oldest first.
	ClosedReturns(ctx context.Context, limit int) ([]float64, error)
}

// OrderKeys remembers idempotency keys of submitted orders.
type OrderKeys interface {
	SeenOrderKey(ctx context.Context, key string, since time.Time) (orderID string, ok bool, err error)
	RememberOrderKey(ctx context.Context, key, orderID, ticker string, qty float64) error
	// ForgetOrderKey drops a key once its order is booked or dead.
	ForgetOrderKey(ctx context.Context, key string) error
}

// StateStore is everything the engine persists.
type StateStore interface {
	risk.Ledger
	brain.Store
	Journal
	OrderKeys
	Close() error
}

// HistoryFromTrades converts journal rows into brain seed entries.
func HistoryFromTrades(trades []Trade) []brain.HistoryEntry {
	out := make([]brain.HistoryEntry, 0, len(trades))
	for _, t := range trades {
		action := t.Action
		if action == ActionPartial {
			action = ActionSell
		}
		out = append(out, brain.HistoryEntry{
			Ticker:   t.Ticker,
			Action:   action,
			Price:    t.Price,
			Quantity: t.Quantity,
			Time:     t.Time,
			Score:    t.Score,
			Factors:  t.Factors,
			RSI:      t.RSI,
			Regime:   t.Regime,
			Reason:   t.Reason,
		})
	}
	return out
}

// FilterTrades applies q to an in-memory journal.
func FilterTrades(trades []Trade, q TradeQuery) []Trade {
	var out []Trade
	for _, t := range trades {
		if q.Ticker != "" && t.Ticker != q.Ticker {
			continue
		}
		if !q.Since.IsZero() && t.Time.Before(q.Since) {
			continue
		}
		if len(q.Actions) > 0 && !contains(q.Actions, t.Action) {
			continue
		}
		out = append(out, t)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
