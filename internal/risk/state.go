package risk

import (
	"math"
	"time"

	"smartbot/internal/market"
)

// State is the account-wide risk record.
type State struct {
	ConsecutiveWins   int       `json:"consecutive_wins"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
	DailyPnL          float64   `json:"daily_pnl"` // sum of closed-trade return fractions today
	LastUpdate        time.Time `json:"last_update"`
}

// rollDay zeroes DailyPnL when now is on a later exchange day than LastUpdate.
func (s *State) rollDay(now time.Time) bool {
	if !s.LastUpdate.IsZero() && market.SameTradingDay(s.LastUpdate, now) {
		return false
	}
	s.DailyPnL = 0
	s.LastUpdate = now
	return true
}

func (s *State) record(pnlFrac float64, now time.Time) {
	s.rollDay(now)
	s.DailyPnL += pnlFrac
	s.LastUpdate = now
	if pnlFrac > 0 {
		s.ConsecutiveWins++
		s.ConsecutiveLosses = 0
		return
	}
	s.ConsecutiveLosses++
	s.ConsecutiveWins = 0
}

// DynamicRisk derives the per-trade risk fraction from s. It is exactly zero
// once DailyPnL <= -cfg.MaxDailyLoss.
func DynamicRisk(s State, cfg Config) float64 {
	if s.DailyPnL <= -cfg.MaxDailyLoss {
		return 0
	}
	r := cfg.BaseRisk
	switch {
	case s.ConsecutiveLosses >= 3:
		r *= 0.6
	case s.ConsecutiveLosses >= 2:
		r *= 0.75
	}
	switch {
	case s.ConsecutiveWins >= 3:
		r = math.Min(r*1.3, cfg.WinStreakCap)
	case s.ConsecutiveWins >= 2:
		r *= 1.15
	}
	if s.DailyPnL > 0 {
		r = math.Min(r*(1+s.DailyPnL*0.05), cfg.MaxRisk)
	}
	return r
}
