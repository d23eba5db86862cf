package brain

import (
	"fmt"

	"smartbot/internal/logger"
	"smartbot/internal/market"
)

// FilterConfig holds the hard-block and promotion thresholds applied to the candidate list.
type FilterConfig struct {
	LowWinRate        float64 `json:"low_win_rate"`
	LowWinRateTrades  int     `json:"low_win_rate_trades"`
	WeakWinRate       float64 `json:"weak_win_rate"`
	WeakWinRateTrades int     `json:"weak_win_rate_trades"`
	LoseStreak        int     `json:"lose_streak"`
	LoseStreakTrades  int     `json:"lose_streak_trades"`
	PromoteWinRate    float64 `json:"promote_win_rate"`
	PromoteMinTrades  int     `json:"promote_min_trades"`
}

func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		LowWinRate:        0.28,
		LowWinRateTrades:  10,
		WeakWinRate:       0.35,
		WeakWinRateTrades: 20,
		LoseStreak:        5,
		LoseStreakTrades:  5,
		PromoteWinRate:    0.55,
		PromoteMinTrades:  10,
	}
}

// FilterResult lists surviving tickers (promoted first) and why the rest were dropped.
type FilterResult struct {
	Allowed  []string          `json:"allowed"`
	Promoted []string          `json:"promoted"`
	Blocked  map[string]string `json:"blocked"`
}

// Filter hard-blocks proven losers and moves proven winners to the front,
// preserving the input order otherwise.
func (b *Brain) Filter(tickers []string) FilterResult {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cfg := b.cfg
	res := FilterResult{Blocked: map[string]string{}}
	var rest []string
	for _, t := range tickers {
		st := b.mem.Tickers[market.BaseTicker(t)]
		if st == nil {
			rest = append(rest, t)
			continue
		}
		wr := st.WinRate()
		switch {
		case st.TotalTrades >= cfg.WeakWinRateTrades && wr < cfg.WeakWinRate:
			res.Blocked[t] = fmt.Sprintf("win rate %.0f%% over %d trades", wr*100, st.TotalTrades)
		case st.TotalTrades >= cfg.LowWinRateTrades && wr < cfg.LowWinRate:
			res.Blocked[t] = fmt.Sprintf("win rate %.0f%% over %d trades", wr*100, st.TotalTrades)
		case st.LoseStreak >= cfg.LoseStreak && st.TotalTrades >= cfg.LoseStreakTrades:
			res.Blocked[t] = fmt.Sprintf("lose streak %d", st.LoseStreak)
		case st.TotalTrades >= cfg.PromoteMinTrades && wr > cfg.PromoteWinRate && st.AvgPnL > 0:
			res.Promoted = append(res.Promoted, t)
		default:
			rest = append(rest, t)
		}
	}
	for t, why := range res.Blocked {
		logger.Infof("brain 屏蔽 %s: %s", t, why)
	}
	res.Allowed = append(append([]string(nil), res.Promoted...), rest...)
	return res
}
