package risk

import (
	"context"
	"math"

	"smartbot/internal/analysis/indicator"
	"smartbot/internal/logger"
	"smartbot/internal/market"
)

// Kelly returns half of the Kelly fraction clamped to [lo, hi] before halving.
// A zero average win or loss yields the neutral 0.15.
func Kelly(winRate, avgWin, avgLoss, lo, hi float64) float64 {
	if avgWin == 0 || avgLoss == 0 || math.IsNaN(avgWin) || math.IsNaN(avgLoss) {
		return 0.15
	}
	b := avgWin / avgLoss
	f := (winRate*b - (1 - winRate)) / b
	if math.IsNaN(f) {
		f = lo
	}
	f = math.Max(lo, math.Min(hi, f))
	return f / 2
}

// Stats are trailing trade statistics, expressed as return fractions.
type Stats struct {
	WinRate float64 `json:"win_rate"`
	AvgWin  float64 `json:"avg_win"`
	AvgLoss float64 `json:"avg_loss"`
	Trades  int     `json:"trades"`
}

// DefaultStats are used until five closed trades exist.
var DefaultStats = Stats{WinRate: 0.55, AvgWin: 0.015, AvgLoss: 0.01}

// HistoricalStats summarizes closed-trade returns. Losses include flat trades.
func HistoricalStats(returns []float64) Stats {
	if len(returns) < 5 {
		s := DefaultStats
		s.Trades = len(returns)
		return s
	}
	var wins, losses []float64
	for _, r := range returns {
		if r > 0 {
			wins = append(wins, r)
		} else {
			losses = append(losses, math.Abs(r))
		}
	}
	return Stats{
		WinRate: float64(len(wins)) / float64(len(returns)),
		AvgWin:  mean(wins),
		AvgLoss: mean(losses),
		Trades:  len(returns),
	}
}

// KellyFor is Kelly over s using the configured band.
func (c Config) KellyFor(s Stats) float64 {
	return Kelly(s.WinRate, s.AvgWin, s.AvgLoss, c.KellyMin, c.KellyMax)
}

// RiskReward maps a per-ticker regime label to the target multiple of the stop distance.
func RiskReward(regime string) float64 {
	switch regime {
	case "trend":
		return 1.5
	case "range":
		return 0.8
	case "volatile":
		return 0.7
	}
	return 1.0
}

// ProfitTarget is entry + StopATRMult*atr*rr.
func (c Config) ProfitTarget(entry, atr, rr float64) float64 {
	return atrOffset(entry, atr, c.StopATRMult*rr)
}

// MarketRegime is the account-wide risk multiplier.
type MarketRegime struct {
	Name       string  `json:"name"`
	Multiplier float64 `json:"multiplier"`
	VIX        float64 `json:"vix"`
	Trend      float64 `json:"trend_strength"`
}

var NormalRegime = MarketRegime{Name: "NORMAL", Multiplier: 1.0}

// RegimeDetector classifies the market from the volatility index and the benchmark trend.
type RegimeDetector struct {
	Source    market.Source
	VIX       string
	Benchmark string
}

func NewRegimeDetector(src market.Source) *RegimeDetector {
	return &RegimeDetector{Source: src, VIX: "^VIX", Benchmark: "SPY"}
}

// Detect never fails; missing data yields NormalRegime.
func (d *RegimeDetector) Detect(ctx context.Context) MarketRegime {
	vixBars, err := d.Source.History(ctx, d.VIX, "5d", "1d")
	if err != nil || len(vixBars) == 0 {
		logger.Warnf("市场状态: VIX 不可用 (%v)，按 NORMAL 处理", err)
		return NormalRegime
	}
	spy, err := d.Source.History(ctx, d.Benchmark, "30d", "1d")
	if err != nil || len(spy) < 20 {
		logger.Warnf("市场状态: %s 数据不足，按 NORMAL 处理", d.Benchmark)
		return NormalRegime
	}
	vix := market.LastClose(vixBars)
	closes := market.Closes(spy)
	short := indicator.SMA(closes, 10)
	long := indicator.SMA(closes, 20)
	last := len(closes) - 1
	trend := 0.0
	if closes[last] > 0 && indicator.Valid(short[last]) && indicator.Valid(long[last]) {
		trend = math.Abs(short[last]-long[last]) / closes[last]
	}
	r := MarketRegime{VIX: vix, Trend: trend}
	switch {
	case vix > 30:
		r.Name, r.Multiplier = "VOLATILE", 0.5
	case vix > 20:
		r.Name, r.Multiplier = "CHOPPY", 0.75
	case trend > 0.03:
		r.Name, r.Multiplier = "TRENDING", 1.2
	default:
		r.Name, r.Multiplier = "NORMAL", 1.0
	}
	return r
}

// AdjustedRisk scales the dynamic risk by the regime, bounded to [0.01, MaxRisk].
// A tripped circuit breaker stays at zero.
func (c Config) AdjustedRisk(dynamic float64, r MarketRegime) float64 {
	if dynamic <= 0 {
		return 0
	}
	return math.Max(0.01, math.Min(c.MaxRisk, dynamic*r.Multiplier))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
