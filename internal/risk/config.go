package risk

import "time"

// Config holds every threshold the Manager uses. Percent fields are in percent points.
type Config struct {
	BaseRisk     float64
	MaxRisk      float64
	WinStreakCap float64
	MaxDailyLoss float64
	MaxPositions int
	MaxPerSector int

	StopATRMult     float64
	BreakevenGain   float64 // fraction
	BreakevenATR    float64
	PartialRiskFrac float64 // partial target at entry + frac*stop distance
	PartialPortion  float64

	BigProfitPct     float64
	QuickProfitPct   float64
	QuickPortion     float64
	TrailActivatePct float64
	TrailATR         float64
	DeepLossPct      float64

	StaleAfter      time.Duration
	StaleMinMovePct float64

	KellyMin float64
	KellyMax float64
}

func DefaultConfig() Config {
	return Config{
		BaseRisk:         0.12,
		MaxRisk:          0.30,
		WinStreakCap:     0.28,
		MaxDailyLoss:     0.05,
		MaxPositions:     7,
		MaxPerSector:     2,
		StopATRMult:      2,
		BreakevenGain:    0.01,
		BreakevenATR:     0.5,
		PartialRiskFrac:  0.5,
		PartialPortion:   0.7,
		BigProfitPct:     15,
		QuickProfitPct:   5,
		QuickPortion:     0.5,
		TrailActivatePct: 3,
		TrailATR:         1.5,
		DeepLossPct:      -8,
		StaleAfter:       6 * time.Hour,
		StaleMinMovePct:  0.3,
		KellyMin:         0.05,
		KellyMax:         0.45,
	}
}
