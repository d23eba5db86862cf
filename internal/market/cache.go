package market

import (
	"context"
	"strings"
	"sync"

	"smartbot/internal/logger"
)

type cacheKey struct {
	ticker, period, interval string
}

type cacheEntry struct {
	candles []Candle
	err     error
}

// CycleCache fetches each (ticker, period, interval) at most once until Reset.
// Errors are cached as well so a failing ticker is not retried within a cycle.
type CycleCache struct {
	src Source

	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
	hits    int
	misses  int
}

func NewCycleCache(src Source) *CycleCache {
	return &CycleCache{src: src, entries: make(map[cacheKey]cacheEntry)}
}

// Reset drops everything; called at the start of each cycle.
func (c *CycleCache) Reset() {
	c.mu.Lock()
	c.entries = make(map[cacheKey]cacheEntry)
	c.hits, c.misses = 0, 0
	c.mu.Unlock()
}

func (c *CycleCache) History(ctx context.Context, ticker, period, interval string) ([]Candle, error) {
	key := cacheKey{BaseTicker(ticker), strings.ToLower(period), strings.ToLower(interval)}
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.hits++
		c.mu.Unlock()
		return cloneCandles(e.candles), e.err
	}
	c.misses++
	c.mu.Unlock()

	candles, err := c.src.History(ctx, key.ticker, period, interval)
	if err == nil && len(candles) == 0 {
		err = ErrNoData
	}
	if err != nil {
		logger.Debugf("market: history %s %s/%s failed: %v", key.ticker, period, interval, err)
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{candles: candles, err: err}
	c.mu.Unlock()
	return cloneCandles(candles), err
}

// Stats reports hits and misses since the last Reset.
func (c *CycleCache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func cloneCandles(in []Candle) []Candle {
	if len(in) == 0 {
		return nil
	}
	out := make([]Candle, len(in))
	copy(out, in)
	return out
}
