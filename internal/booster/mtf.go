package booster

import (
	"context"
	"errors"
	"fmt"
	"math"

	"smartbot/internal/market"
	"smartbot/internal/strategy/momentum"
)

// Timeframe is one leg of the multi-timeframe check.
type Timeframe struct {
	Interval string
	Period   string
}

func DefaultTimeframes() []Timeframe {
	return []Timeframe{
		{Interval: "5m", Period: "5d"},
		{Interval: "15m", Period: "5d"},
		{Interval: "1h", Period: "30d"},
		{Interval: "1d", Period: "90d"},
	}
}

// TrendSignal is +1 when close > mean(last 5) > mean(last 20), -1 when
// reversed, 0 otherwise. ok is false with fewer than 20 closes.
func TrendSignal(closes []float64) (int, bool) {
	if len(closes) < 20 {
		return 0, false
	}
	cur := closes[len(closes)-1]
	short := meanLast(closes, 5)
	long := meanLast(closes, 20)
	switch {
	case cur > short && short > long:
		return 1, true
	case cur < short && short < long:
		return -1, true
	}
	return 0, true
}

// MTFStage scores confluence across timeframes.
type MTFStage struct {
	Source     market.Source
	Timeframes []Timeframe
}

func NewMTFStage(src market.Source) *MTFStage {
	return &MTFStage{Source: src, Timeframes: DefaultTimeframes()}
}

func (s *MTFStage) Name() string { return "mtf" }

// Confluence is the mean trend signal over the timeframes that have data.
func (s *MTFStage) Confluence(ctx context.Context, ticker string) (float64, error) {
	sum, n := 0, 0
	for _, tf := range s.Timeframes {
		candles, err := s.Source.History(ctx, ticker, tf.Period, tf.Interval)
		if err != nil {
			continue
		}
		sig, ok := TrendSignal(market.Closes(candles))
		if !ok {
			continue
		}
		sum += sig
		n++
	}
	if n == 0 {
		return 0, errors.New("no timeframe data")
	}
	return float64(sum) / float64(n), nil
}

func (s *MTFStage) Adjust(ctx context.Context, in *Input, _ float64) (float64, string, error) {
	c, err := s.Confluence(ctx, in.Ticker)
	if err != nil {
		return 1, "", err
	}
	switch {
	case c > 0.75 && in.Action() == momentum.ActionBuy:
		return 1.2, fmt.Sprintf("MTF:%.2f", c), nil
	case math.Abs(c) < 0.3:
		return 0.8, fmt.Sprintf("MTF mixed:%.2f", c), nil
	}
	return 1, "", nil
}
