package brain

import (
	"strconv"
	"strings"
	"time"
)

const (
	memoryVersion = 2
	maxScores     = 100
	maxLog        = 200
)

var knownRegimes = []string{"trend", "range", "volatile", "normal"}

// TickerStats 是单个标的的历史战绩。
type TickerStats struct {
	Wins         int       `json:"wins"`
	Losses       int       `json:"losses"`
	TotalTrades  int       `json:"total_trades"`
	TotalPnL     float64   `json:"total_pnl"`
	AvgPnL       float64   `json:"avg_pnl"`
	BestTrade    float64   `json:"best_trade"`
	WorstTrade   float64   `json:"worst_trade"`
	WinStreak    int       `json:"win_streak"`
	LoseStreak   int       `json:"lose_streak"`
	LastTrade    time.Time `json:"last_trade"`
	AvgHoldHours float64   `json:"avg_hold_hours"`
}

func (s *TickerStats) WinRate() float64 {
	if s == nil || s.TotalTrades == 0 {
		return 0.5
	}
	return float64(s.Wins) / float64(s.TotalTrades)
}

// FactorStats 按归一化因子名统计。
type FactorStats struct {
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	TotalPnL float64 `json:"total_pnl"`
	AvgPnL   float64 `json:"avg_pnl"`
}

func (s *FactorStats) Total() int { return s.Wins + s.Losses }

func (s *FactorStats) WinRate() float64 {
	if s.Total() == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Total())
}

// Conditions buckets outcomes by regime, exchange-local hour and weekday.
type Conditions struct {
	RegimeWins   map[string]int `json:"regime_wins"`
	RegimeLosses map[string]int `json:"regime_losses"`
	HourWins     map[string]int `json:"hour_wins"`
	HourLosses   map[string]int `json:"hour_losses"`
	DayWins      map[string]int `json:"day_wins"`
	DayLosses    map[string]int `json:"day_losses"`
}

type ScoreMemory struct {
	Winning []int `json:"winning_scores"`
	Losing  []int `json:"losing_scores"`
}

// Params are derived from the rest of the memory after every learning event.
type Params struct {
	OptimalScoreMin int                `json:"optimal_score_min"`
	BoostTickers    map[string]float64 `json:"confidence_boost_tickers"`
	PenaltyTickers  map[string]float64 `json:"confidence_penalty_tickers"`
	BestFactors     []string           `json:"best_factors"`
	WorstFactors    []string           `json:"worst_factors"`
	PreferredRegime string             `json:"preferred_regime"`
	LearningRate    float64            `json:"learning_rate"`
}

type LogEntry struct {
	Time      time.Time `json:"timestamp"`
	Ticker    string    `json:"ticker"`
	PnL       float64   `json:"pnl"`
	PnLPct    float64   `json:"pnl_pct"`
	Win       bool      `json:"win"`
	Score     int       `json:"score"`
	Factors   []string  `json:"factors"`
	RSI       float64   `json:"rsi"`
	Regime    string    `json:"regime"`
	HoldHours float64   `json:"hold_hours"`
	Reason    string    `json:"reason"`
}

// Memory is the whole persisted brain record.
type Memory struct {
	Version     int                     `json:"version"`
	Created     time.Time               `json:"created"`
	LastUpdated time.Time               `json:"last_updated"`
	TotalTrades int                     `json:"total_trades_learned"`
	Tickers     map[string]*TickerStats `json:"ticker_memory"`
	Factors     map[string]*FactorStats `json:"factor_memory"`
	Conditions  Conditions              `json:"condition_memory"`
	Scores      ScoreMemory             `json:"score_memory"`
	Params      Params                  `json:"adaptive_params"`
	Log         []LogEntry              `json:"trade_log"`
}

// NewMemory returns an empty brain.
func NewMemory(now time.Time) *Memory {
	m := &Memory{Version: memoryVersion, Created: now, LastUpdated: now}
	m.ensure()
	return m
}

// ensure fills nil maps so older or hand-edited records stay usable.
func (m *Memory) ensure() {
	if m.Version < memoryVersion {
		m.Version = memoryVersion
	}
	if m.Tickers == nil {
		m.Tickers = map[string]*TickerStats{}
	}
	if m.Factors == nil {
		m.Factors = map[string]*FactorStats{}
	}
	c := &m.Conditions
	if c.RegimeWins == nil {
		c.RegimeWins = map[string]int{}
	}
	if c.RegimeLosses == nil {
		c.RegimeLosses = map[string]int{}
	}
	for _, r := range knownRegimes {
		c.RegimeWins[r] += 0
		c.RegimeLosses[r] += 0
	}
	if c.HourWins == nil {
		c.HourWins = map[string]int{}
	}
	if c.HourLosses == nil {
		c.HourLosses = map[string]int{}
	}
	if c.DayWins == nil {
		c.DayWins = map[string]int{}
	}
	if c.DayLosses == nil {
		c.DayLosses = map[string]int{}
	}
	p := &m.Params
	if p.OptimalScoreMin == 0 {
		p.OptimalScoreMin = 50
	}
	if p.BoostTickers == nil {
		p.BoostTickers = map[string]float64{}
	}
	if p.PenaltyTickers == nil {
		p.PenaltyTickers = map[string]float64{}
	}
	if p.PreferredRegime == "" {
		p.PreferredRegime = "normal"
	}
	if p.LearningRate == 0 {
		p.LearningRate = 0.1
	}
}

// NormalizeFactor collapses magnitude-bearing labels into stable buckets,
// e.g. "RSI:45*" becomes "RSI:buy_zone" and "+0.7%" becomes "momentum:strong_up".
func NormalizeFactor(factor string) string {
	if rest, ok := strings.CutPrefix(factor, "RSI:"); ok {
		v, err := strconv.ParseFloat(strings.TrimRight(rest, "*!X"), 64)
		if err != nil {
			return factor
		}
		switch {
		case v < 30:
			return "RSI:oversold"
		case v <= 50:
			return "RSI:buy_zone"
		case v <= 65:
			return "RSI:neutral"
		default:
			return "RSI:overbought"
		}
	}
	if strings.HasPrefix(factor, "+") || strings.HasPrefix(factor, "-") {
		v, err := strconv.ParseFloat(strings.TrimRight(factor, "%!"), 64)
		if err != nil {
			return factor
		}
		switch {
		case v > 0.5:
			return "momentum:strong_up"
		case v > 0:
			return "momentum:up"
		case v < -0.5:
			return "momentum:strong_down"
		default:
			return "momentum:down"
		}
	}
	return factor
}
