package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseTicker(t *testing.T) {
	assert.Equal(t, "AAPL", BaseTicker("AAPL_US_EQ"))
	assert.Equal(t, "VOD", BaseTicker(" vod_uk_eq "))
	assert.Equal(t, "AAPL_US_EQ", BrokerTicker("aapl", "_US_EQ"))
}

func TestChangeOver(t *testing.T) {
	c := []Candle{{Close: 100}, {Close: 101}, {Close: 102}, {Close: 103}, {Close: 110}}
	chg, ok := ChangeOver(c, 5)
	require.True(t, ok)
	assert.InDelta(t, 0.10, chg, 1e-9)

	_, ok = ChangeOver(c[:3], 5)
	assert.False(t, ok)
}

func TestParseSpan(t *testing.T) {
	d, ok := ParseSpan("15m")
	assert.True(t, ok)
	assert.Equal(t, 15*time.Minute, d)
	d, ok = ParseSpan("1mo")
	assert.True(t, ok)
	assert.Equal(t, 30*24*time.Hour, d)
	_, ok = ParseSpan("x")
	assert.False(t, ok)
	assert.Equal(t, 480, BarsIn("5d", "15m"))
}

func TestCycleCacheFetchesOnce(t *testing.T) {
	calls := 0
	src := SourceFunc(func(ctx context.Context, ticker, period, interval string) ([]Candle, error) {
		calls++
		if ticker == "FAIL" {
			return nil, errors.New("boom")
		}
		return []Candle{{Close: 1}}, nil
	})
	cache := NewCycleCache(src)

	for i := 0; i < 3; i++ {
		got, err := cache.History(context.Background(), "AAPL_US_EQ", "5d", "15m")
		require.NoError(t, err)
		assert.Len(t, got, 1)
	}
	_, err := cache.History(context.Background(), "FAIL", "5d", "15m")
	assert.Error(t, err)
	_, err = cache.History(context.Background(), "FAIL", "5d", "15m")
	assert.Error(t, err)
	assert.Equal(t, 2, calls)

	hits, misses := cache.Stats()
	assert.Equal(t, 3, hits)
	assert.Equal(t, 2, misses)

	cache.Reset()
	_, _ = cache.History(context.Background(), "AAPL", "5d", "15m")
	assert.Equal(t, 3, calls)
}

func TestCycleCacheEmptyIsNoData(t *testing.T) {
	cache := NewCycleCache(SourceFunc(func(context.Context, string, string, string) ([]Candle, error) {
		return nil, nil
	}))
	_, err := cache.History(context.Background(), "AAPL", "1d", "1h")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestSessionHelpers(t *testing.T) {
	open := time.Date(2026, 3, 10, 9, 45, 0, 0, Exchange())
	assert.InDelta(t, 15, MinutesSinceOpen(open), 1e-9)
	assert.True(t, InRegularSession(open))
	assert.False(t, InRegularSession(time.Date(2026, 3, 14, 10, 0, 0, 0, Exchange())))
	assert.True(t, SameTradingDay(open, open.Add(3*time.Hour)))
}

func TestDropUnclosed(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	bars := []Candle{
		{OpenTime: now.Add(-30 * time.Minute).UnixMilli()},
		{OpenTime: now.Add(-5 * time.Minute).UnixMilli()},
	}
	assert.Len(t, DropUnclosed(bars, 15*time.Minute, now), 1)
	assert.Len(t, DropUnclosed(bars, time.Minute, now), 2)
}
