package archive

import (
	"context"

	"smartbot/internal/logger"
	"smartbot/internal/market"
)

// RecordingSource passes fetches through to a live source and archives the result.
// Archive failures are logged, never returned.
type RecordingSource struct {
	Live  market.Source
	Store market.BarStore
}

func (r RecordingSource) History(ctx context.Context, ticker, period, interval string) ([]market.Candle, error) {
	candles, err := r.Live.History(ctx, ticker, period, interval)
	if err != nil || len(candles) == 0 || r.Store == nil {
		return candles, err
	}
	if serr := r.Store.Save(ctx, ticker, interval, candles); serr != nil {
		logger.Warnf("archive: save %s %s failed: %v", ticker, interval, serr)
	}
	return candles, nil
}

// ReplaySource serves history from the archive only.
type ReplaySource struct {
	Store market.BarStore
}

func (r ReplaySource) History(ctx context.Context, ticker, period, interval string) ([]market.Candle, error) {
	limit := market.BarsIn(period, interval)
	candles, err := r.Store.Load(ctx, ticker, interval, limit)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, market.ErrNoData
	}
	return candles, nil
}
