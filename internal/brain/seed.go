package brain

import (
	"context"
	"strings"
	"time"

	"smartbot/internal/logger"
	"smartbot/internal/market"
)

// HistoryEntry is one fill from the trade journal.
type HistoryEntry struct {
	Ticker   string
	Action   string // buy or sell
	Price    float64
	Quantity float64
	Time     time.Time
	Score    int
	Factors  []string
	RSI      float64
	Regime   string
	Reason   string
}

const defaultSeedHoldHours = 6

// SeedFromHistory pairs each sell with the earliest open buy of the same ticker
// and learns the resulting round trips. The memory is saved once at the end.
func (b *Brain) SeedFromHistory(ctx context.Context, entries []HistoryEntry) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	open := map[string][]HistoryEntry{}
	learned := 0
	for _, e := range entries {
		ticker := market.BaseTicker(e.Ticker)
		switch strings.ToLower(e.Action) {
		case "buy":
			open[ticker] = append(open[ticker], e)
		case "sell":
			queue := open[ticker]
			if len(queue) == 0 {
				continue
			}
			buy := queue[0]
			open[ticker] = queue[1:]

			pnl := (e.Price - buy.Price) * e.Quantity
			pct := 0.0
			if buy.Price > 0 {
				pct = (e.Price - buy.Price) / buy.Price * 100
			}
			hold := float64(defaultSeedHoldHours)
			if !buy.Time.IsZero() && !e.Time.IsZero() {
				hold = e.Time.Sub(buy.Time).Hours()
			}
			score := buy.Score
			if score == 0 {
				score = 50
			}
			rsi := buy.RSI
			if rsi == 0 {
				rsi = 50
			}
			b.learn(Trade{
				Ticker:    ticker,
				PnL:       pnl,
				PnLPct:    pct,
				Score:     score,
				Factors:   buy.Factors,
				RSI:       rsi,
				Regime:    buy.Regime,
				HoldHours: hold,
				Time:      e.Time,
				Reason:    e.Reason,
			})
			learned++
		}
	}
	if learned == 0 {
		return 0, nil
	}
	if err := b.save(ctx); err != nil {
		return learned, err
	}
	logger.Infof("brain 已从历史成交中学习 %d 笔完整交易", learned)
	return learned, nil
}
