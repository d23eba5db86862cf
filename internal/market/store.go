package market

import "context"

// BarStore persists fetched bars so a run can be replayed offline.
type BarStore interface {
	Save(ctx context.Context, ticker, interval string, candles []Candle) error
	Load(ctx context.Context, ticker, interval string, limit int) ([]Candle, error)
}
