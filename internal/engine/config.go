package engine

import (
	"time"

	"smartbot/internal/gateway/broker"
)

// Config are the per-cycle trading thresholds. A reloaded Config is applied at
// the start of the next cycle.
type Config struct {
	Universe     []string
	BrokerSuffix string

	Period   string
	Interval string
	MinBars  int
	TopN     int

	ConfidenceThreshold float64
	MinQuantity         float64
	MinOrderValue       float64
	MinAvgVolume        float64
	MaxATRPct           float64
	MaxQuantity         float64

	// TightCashFrac: below Total*TightCashFrac the budget is CashBuffer of free cash.
	TightCashFrac float64
	CashBuffer    float64
	// FractionalBelow switches to fractional quantities when free cash is under it.
	FractionalBelow float64

	KellyLookback   int
	RefreshPeriod   string
	RefreshInterval string

	EODMinPnLPct float64

	TickerDelay    time.Duration
	RateLimitPause time.Duration
	WaitForFill    bool
	Poll           broker.PollOptions
	DryRun         bool
}

func DefaultConfig() Config {
	return Config{
		BrokerSuffix:        "_US_EQ",
		Period:              "5d",
		Interval:            "15m",
		MinBars:             30,
		TopN:                10,
		ConfidenceThreshold: 0.40,
		MinQuantity:         0.2,
		MinOrderValue:       5,
		MinAvgVolume:        200000,
		MaxATRPct:           0.05,
		MaxQuantity:         100,
		TightCashFrac:       0.10,
		CashBuffer:          0.95,
		FractionalBelow:     10,
		KellyLookback:       100,
		RefreshPeriod:       "1d",
		RefreshInterval:     "1h",
		EODMinPnLPct:        -1,
		TickerDelay:         500 * time.Millisecond,
		RateLimitPause:      5 * time.Second,
		Poll:                broker.DefaultPollOptions(),
	}
}
