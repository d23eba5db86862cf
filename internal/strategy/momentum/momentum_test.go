package momentum

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartbot/internal/analysis/indicator"
	"smartbot/internal/market"
)

func risingCandles(n int) []market.Candle {
	start := time.Date(2025, 3, 3, 14, 30, 0, 0, time.UTC)
	out := make([]market.Candle, n)
	for i := range out {
		c := 100 + float64(i)
		out[i] = market.Candle{
			OpenTime: start.Add(time.Duration(i) * 15 * time.Minute).UnixMilli(),
			Open:     c - 0.5, High: c + 1, Low: c - 1, Close: c, Volume: 1000,
		}
	}
	return out
}

func TestEvaluateFullHouse(t *testing.T) {
	in := Inputs{
		Price: 100, SMAShort: 11, SMALong: 10, PrevSMAShort: 9, PrevSMALong: 10,
		RSI: 40, MACDHist: 0.5, PrevMACDHist: 0.2,
		BBUpper: 110, BBLower: 90,
		Volume: 150, VolumeMean: 100,
		VWAP: 101, Pct1: 0.6, Pct2: 1.0, MinutesSinceOpen: 10,
	}
	total, hits := Evaluate(DefaultRules(), in)
	assert.Equal(t, 100, total)
	labels := make([]string, 0, len(hits))
	for _, h := range hits {
		labels = append(labels, h.Label)
	}
	assert.Equal(t, []string{"SMA+", "GoldenX", "RSI:40*", "MACD+", "MACD++", "BB:mid", "Vol+", "+0.6%", "3h+", "VWAP:buy", "OpenSurge"}, labels)
}

func TestEvaluateNegativeRules(t *testing.T) {
	in := Inputs{
		Price: 109.5, SMAShort: 9, SMALong: 10,
		RSI: 80, BBUpper: 110, BBLower: 90,
		VWAP: 100, Pct1: -0.8, MinutesSinceOpen: -30,
	}
	total, hits := Evaluate(DefaultRules(), in)
	assert.Equal(t, -5-3-5-3, total)
	require.Len(t, hits, 4)
	assert.Equal(t, "RSI:80X", hits[0].Label)
	assert.Equal(t, "BB:hi!", hits[1].Label)
	assert.Equal(t, "-0.8%!", hits[2].Label)
	assert.Equal(t, "VWAP:hi!", hits[3].Label)
}

func TestScoreInsufficientData(t *testing.T) {
	f, err := indicator.Compute(risingCandles(20), indicator.DefaultSettings())
	require.NoError(t, err)
	sig := NewScorer().Score("AAPL", f, time.Now())
	assert.Equal(t, ActionHold, sig.Action)
	assert.Equal(t, 0, sig.Score)
	assert.Equal(t, "insufficient data", sig.Reason)
	assert.Equal(t, 119.0, sig.Price)
}

func TestScoreDeterministic(t *testing.T) {
	f, err := indicator.Compute(risingCandles(60), indicator.DefaultSettings())
	require.NoError(t, err)
	at := time.Date(2025, 3, 3, 13, 0, 0, 0, time.UTC) // 08:00 ET
	s := NewScorer()
	a := s.Score("AAPL", f, at)
	b := s.Score("AAPL", f, at)
	assert.Equal(t, a, b)

	assert.Contains(t, a.Factors, "SMA+")
	assert.Contains(t, a.Factors, "RSI:100X")
	assert.NotContains(t, a.Factors, "OpenSurge")
	assert.GreaterOrEqual(t, a.Score, 0)
	assert.LessOrEqual(t, a.Score, 100)
	assert.InDelta(t, a.Price-2*a.ATR, a.StopLoss, 1e-9)
	assert.InDelta(t, 2.0, a.ATR, 1e-9)
	assert.Contains(t, a.Reason, "Score:")
}

func TestScoreActionThresholds(t *testing.T) {
	f, err := indicator.Compute(risingCandles(60), indicator.DefaultSettings())
	require.NoError(t, err)
	s := NewScorer()
	s.Rules = []Group{{Name: "fixed", Rules: []Rule{{Name: "all", Points: 70, When: func(Inputs) bool { return true }}}}}
	sig := s.Score("X", f, time.Time{})
	assert.Equal(t, ActionBuy, sig.Action)
	assert.InDelta(t, 0.7, sig.Confidence, 1e-9)

	s.Rules = nil
	sig = s.Score("X", f, time.Time{})
	assert.Equal(t, ActionSell, sig.Action, "RSI 100 with zero score")
	assert.Equal(t, 0.7, sig.Confidence)
	assert.Equal(t, "Score:0/100 [No signals]", sig.Reason)
}

func closesSeries(closes ...float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{Close: c}
	}
	return out
}

func TestRankerOrdersByAbsoluteDeviation(t *testing.T) {
	data := map[string][]market.Candle{
		"SPY": closesSeries(100, 101, 102, 103, 104),
		"AAA": closesSeries(100, 102, 104, 108, 110),
		"BBB": closesSeries(100, 99, 98, 97, 96),
	}
	src := market.SourceFunc(func(_ context.Context, ticker, _, _ string) ([]market.Candle, error) {
		if c, ok := data[ticker]; ok {
			return c, nil
		}
		return nil, errors.New("no such ticker")
	})
	r := NewRanker(src)

	scores, ok := r.Scores(context.Background(), []string{"CCC", "AAA", "BBB"})
	require.True(t, ok)
	require.Len(t, scores, 3)
	assert.Equal(t, "BBB", scores[0].Ticker)
	assert.InDelta(t, -8, scores[0].RS, 1e-9)
	assert.Equal(t, "AAA", scores[1].Ticker)
	assert.InDelta(t, 6, scores[1].RS, 1e-9)
	assert.Equal(t, Ranked{Ticker: "CCC"}, scores[2])

	assert.Equal(t, []string{"BBB", "AAA"}, r.Rank(context.Background(), []string{"CCC", "AAA", "BBB"}, 2))
}

func TestRankerBenchmarkFailureKeepsInput(t *testing.T) {
	src := market.SourceFunc(func(context.Context, string, string, string) ([]market.Candle, error) {
		return nil, errors.New("down")
	})
	in := []string{"A", "B", "C"}
	assert.Equal(t, in, NewRanker(src).Rank(context.Background(), in, 1))
}
