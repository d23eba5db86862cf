package brain

import (
	"fmt"
	"math"
	"strings"

	"smartbot/internal/market"
)

// TickerIntel is the brain's view of one ticker.
type TickerIntel struct {
	Multiplier float64 `json:"confidence_mult"`
	Reason     string  `json:"reason"`
	WinRate    float64 `json:"win_rate"`
	AvgPnL     float64 `json:"avg_pnl"`
	Trades     int     `json:"trades"`
	Best       float64 `json:"best"`
	Worst      float64 `json:"worst"`
}

type FactorIntel struct {
	Multiplier float64  `json:"factor_mult"`
	Good       []string `json:"good_factors"`
	Bad        []string `json:"bad_factors"`
}

// Intel is the combined multiplier applied to raw confidence.
type Intel struct {
	Multiplier    float64  `json:"confidence_mult"`
	Reasons       []string `json:"reasons"`
	TickerTrades  int      `json:"ticker_trades"`
	TickerWinRate float64  `json:"ticker_winrate"`
	TickerAvgPnL  float64  `json:"ticker_avg_pnl"`
}

func (b *Brain) TickerScore(ticker string) TickerIntel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tickerScore(market.BaseTicker(ticker))
}

func (b *Brain) tickerScore(ticker string) TickerIntel {
	st := b.mem.Tickers[ticker]
	if st == nil || st.TotalTrades < 2 {
		return TickerIntel{Multiplier: 1, Reason: "new_ticker", WinRate: 0.5}
	}
	wr := st.WinRate()
	mult := 1.0
	if v, ok := b.mem.Params.BoostTickers[ticker]; ok {
		mult = v
	} else if v, ok := b.mem.Params.PenaltyTickers[ticker]; ok {
		mult = v
	}
	var reason string
	switch {
	case st.WinStreak >= 3:
		mult *= 1.1
		reason = fmt.Sprintf("hot_streak(%d)", st.WinStreak)
	case st.LoseStreak >= 3:
		mult *= 0.8
		reason = fmt.Sprintf("cold_streak(%d)", st.LoseStreak)
	case wr >= 0.6:
		reason = fmt.Sprintf("winner(%.0f%%)", wr*100)
	case wr <= 0.35:
		reason = fmt.Sprintf("loser(%.0f%%)", wr*100)
	default:
		reason = fmt.Sprintf("neutral(%.0f%%)", wr*100)
	}
	return TickerIntel{
		Multiplier: round(mult, 3),
		Reason:     reason,
		WinRate:    round(wr, 3),
		AvgPnL:     round(st.AvgPnL, 4),
		Trades:     st.TotalTrades,
		Best:       round(st.BestTrade, 2),
		Worst:      round(st.WorstTrade, 2),
	}
}

// FactorScore composes per-factor win rates into a multiplier bounded to [0.7, 1.3].
func (b *Brain) FactorScore(factors []string) FactorIntel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.factorScore(factors)
}

func (b *Brain) factorScore(factors []string) FactorIntel {
	out := FactorIntel{Multiplier: 1}
	for _, f := range factors {
		key := NormalizeFactor(f)
		fs := b.mem.Factors[key]
		if fs == nil || fs.Total() < 2 {
			continue
		}
		wr := fs.WinRate()
		switch {
		case wr >= 0.6:
			out.Good = append(out.Good, key)
			out.Multiplier *= 1 + (wr-0.5)*0.2
		case wr <= 0.35:
			out.Bad = append(out.Bad, key)
			out.Multiplier *= 1 - (0.5-wr)*0.2
		}
	}
	out.Multiplier = round(clamp(out.Multiplier, 0.7, 1.3), 3)
	return out
}

func (b *Brain) RegimeScore(regime string) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.regimeScore(regime)
}

func (b *Brain) regimeScore(regime string) float64 {
	w := b.mem.Conditions.RegimeWins[regime]
	l := b.mem.Conditions.RegimeLosses[regime]
	return gatedScore(w, l, func(wr float64) float64 {
		return math.Min(1.2, 1+(wr-0.5)*0.4)
	}, func(wr float64) float64 {
		return math.Max(0.7, 1-(0.5-wr)*0.4)
	})
}

// TimeScore rates the current exchange-local hour.
func (b *Brain) TimeScore() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.timeScore()
}

func (b *Brain) timeScore() float64 {
	hour := fmt.Sprint(b.now().In(market.Exchange()).Hour())
	w := b.mem.Conditions.HourWins[hour]
	l := b.mem.Conditions.HourLosses[hour]
	return gatedScore(w, l, func(float64) float64 { return 1.1 }, func(float64) float64 { return 0.85 })
}

// gatedScore needs at least three observations before it leaves 1.0.
func gatedScore(wins, losses int, good, bad func(float64) float64) float64 {
	total := wins + losses
	if total < 3 {
		return 1
	}
	wr := float64(wins) / float64(total)
	switch {
	case wr >= 0.6:
		return good(wr)
	case wr <= 0.35:
		return bad(wr)
	}
	return 1
}

// Combined multiplies ticker, factor, regime and time scores, clamped to [0.5, 1.5].
func (b *Brain) Combined(ticker string, factors []string, regime string) Intel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ti := b.tickerScore(market.BaseTicker(ticker))
	fi := b.factorScore(factors)
	rm := b.regimeScore(regime)
	tm := b.timeScore()

	mult := clamp(ti.Multiplier*fi.Multiplier*rm*tm, 0.5, 1.5)
	reasons := []string{ti.Reason}
	if len(fi.Good) > 0 {
		reasons = append(reasons, "factors+:"+strings.Join(head(fi.Good, 3), ","))
	}
	if len(fi.Bad) > 0 {
		reasons = append(reasons, "factors-:"+strings.Join(head(fi.Bad, 3), ","))
	}
	if rm != 1 {
		reasons = append(reasons, fmt.Sprintf("regime:%s(%.2f)", regime, rm))
	}
	if tm != 1 {
		reasons = append(reasons, fmt.Sprintf("time(%.2f)", tm))
	}
	return Intel{
		Multiplier:    round(mult, 3),
		Reasons:       reasons,
		TickerTrades:  ti.Trades,
		TickerWinRate: ti.WinRate,
		TickerAvgPnL:  ti.AvgPnL,
	}
}

// Gate applies the adaptive threshold: penalized tickers lose 15% of their
// confidence, boosted tickers gain 5% (capped at 1).
func (b *Brain) Gate(ticker string, confidence float64) (float64, string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t := market.BaseTicker(ticker)
	if _, ok := b.mem.Params.PenaltyTickers[t]; ok {
		return confidence * 0.85, "penalized"
	}
	if _, ok := b.mem.Params.BoostTickers[t]; ok {
		return math.Min(1, confidence*1.05), "boosted"
	}
	return confidence, ""
}

// OptimalScoreMin is the learned entry-score floor.
func (b *Brain) OptimalScoreMin() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mem.Params.OptimalScoreMin
}

func (b *Brain) TotalTrades() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mem.TotalTrades
}

func head(xs []string, n int) []string {
	if len(xs) > n {
		return xs[:n]
	}
	return xs
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
