package booster

import (
	"context"
	"errors"
	"fmt"
	"math"

	"smartbot/internal/analysis/indicator"
	"smartbot/internal/market"
	"smartbot/internal/strategy/momentum"
)

// Ticker regimes.
const (
	RegimeTrend    = "trend"
	RegimeRange    = "range"
	RegimeVolatile = "volatile"
	RegimeNormal   = "normal"
)

// RegimeInfo classifies one ticker's recent behaviour.
type RegimeInfo struct {
	Regime        string  `json:"regime"`
	TrendStrength float64 `json:"trend_strength"`
	Vol           float64 `json:"vol"`
	Multiplier    float64 `json:"multiplier"`
}

const (
	regimeShort  = 20
	regimeLong   = 50
	regimeVolWin = 50
)

// ClassifyRegime uses SMA20/SMA50 separation and rolling return volatility.
// Fewer than 55 closes classify as normal.
func ClassifyRegime(closes []float64) RegimeInfo {
	normal := RegimeInfo{Regime: RegimeNormal, Multiplier: 1}
	if len(closes) < max(regimeLong, regimeVolWin)+5 {
		return normal
	}
	last := closes[len(closes)-1]
	if last <= 0 {
		return normal
	}
	short := indicator.SMA(closes, regimeShort)
	long := indicator.SMA(closes, regimeLong)
	trend := math.Abs(short[len(short)-1]-long[len(long)-1]) / last

	vols := indicator.ReturnsStd(closes, regimeVolWin)
	vol := vols[len(vols)-1]
	hist := validSorted(vols)
	low, high := vol, vol
	if len(hist) > 0 {
		low, high = quantile(hist, 0.25), quantile(hist, 0.75)
	}

	switch {
	case vol >= high*1.25:
		return RegimeInfo{Regime: RegimeVolatile, TrendStrength: trend, Vol: vol, Multiplier: 0.85}
	case trend >= 0.02:
		return RegimeInfo{Regime: RegimeTrend, TrendStrength: trend, Vol: vol, Multiplier: 1.10}
	case vol <= low*0.9:
		return RegimeInfo{Regime: RegimeRange, TrendStrength: trend, Vol: vol, Multiplier: 0.95}
	}
	return RegimeInfo{Regime: RegimeNormal, TrendStrength: trend, Vol: vol, Multiplier: 1}
}

// RegimeStage classifies the ticker on hourly bars and records the regime on
// the input. It does not move confidence; AlignmentStage does.
type RegimeStage struct {
	Source   market.Source
	Period   string
	Interval string
}

func NewRegimeStage(src market.Source) *RegimeStage {
	return &RegimeStage{Source: src, Period: "10d", Interval: "1h"}
}

func (s *RegimeStage) Name() string { return "regime" }

func (s *RegimeStage) Adjust(ctx context.Context, in *Input, _ float64) (float64, string, error) {
	in.Regime = RegimeNormal
	candles, err := s.Source.History(ctx, in.Ticker, s.Period, s.Interval)
	if err != nil {
		return 1, "", err
	}
	info := ClassifyRegime(market.Closes(candles))
	in.Regime = info.Regime
	in.RegimeMult = info.Multiplier
	return 1, fmt.Sprintf("Regime:%s T=%.3f", info.Regime, info.TrendStrength), nil
}

// AlignmentStage rewards buys in trending names and penalizes volatile ones.
type AlignmentStage struct{}

func (AlignmentStage) Name() string { return "alignment" }

func (AlignmentStage) Adjust(_ context.Context, in *Input, _ float64) (float64, string, error) {
	if in.Action() != momentum.ActionBuy {
		return 1, "", nil
	}
	switch in.Regime {
	case RegimeTrend:
		return 1.10, "Trend", nil
	case RegimeVolatile:
		return 0.80, "Volatile", nil
	}
	return 1, "", nil
}

// VolInfo is the volatility regime of a series.
type VolInfo struct {
	Regime     string  `json:"regime"`
	Vol        float64 `json:"vol"`
	Multiplier float64 `json:"multiplier"`
}

var errShortSeries = errors.New("series too short")

// VolatilityRegime compares the latest rolling return std against the
// quartiles of its own history: low x1.05, high x0.85.
func VolatilityRegime(closes []float64, window int) (VolInfo, error) {
	if len(closes) < window+1 {
		return VolInfo{Regime: "unknown", Multiplier: 1}, errShortSeries
	}
	vols := indicator.ReturnsStd(closes, window)
	vol := vols[len(vols)-1]
	hist := validSorted(vols)
	if len(hist) == 0 || !indicator.Valid(vol) {
		return VolInfo{Regime: "unknown", Multiplier: 1}, errShortSeries
	}
	switch {
	case vol <= quantile(hist, 0.25):
		return VolInfo{Regime: "low", Vol: vol, Multiplier: 1.05}, nil
	case vol >= quantile(hist, 0.75):
		return VolInfo{Regime: "high", Vol: vol, Multiplier: 0.85}, nil
	}
	return VolInfo{Regime: "normal", Vol: vol, Multiplier: 1}, nil
}

// VolatilityStage reads the primary frame.
type VolatilityStage struct {
	Window int
}

func (s VolatilityStage) Name() string { return "volatility" }

func (s VolatilityStage) Adjust(_ context.Context, in *Input, _ float64) (float64, string, error) {
	if in.Frame == nil {
		return 1, "", errShortSeries
	}
	window := s.Window
	if window <= 0 {
		window = 60
	}
	info, err := VolatilityRegime(market.Closes(in.Frame.Candles), window)
	if err != nil {
		return 1, "", err
	}
	in.VolMult = info.Multiplier
	if info.Multiplier == 1 {
		return 1, "", nil
	}
	return info.Multiplier, fmt.Sprintf("Vol:%s(%.4f)", info.Regime, info.Vol), nil
}
