package app

import (
	"time"

	"smartbot/internal/brain"
	"smartbot/internal/config"
	"smartbot/internal/engine"
	"smartbot/internal/gateway/broker"
	"smartbot/internal/risk"
)

// engineConfig 把文件配置映射为引擎运行参数。
func engineConfig(cfg *config.Config) engine.Config {
	out := engine.DefaultConfig()
	out.Universe = append([]string(nil), cfg.Trading.Universe...)
	out.BrokerSuffix = cfg.Broker.TickerSuffix
	out.Period = cfg.Market.Period
	out.Interval = cfg.Market.Interval
	out.MinBars = cfg.Market.MinBars
	out.RefreshPeriod = cfg.Market.RefreshPeriod
	out.RefreshInterval = cfg.Market.RefreshInterval
	out.TopN = cfg.Trading.TopN
	out.ConfidenceThreshold = cfg.Trading.ConfidenceThreshold
	out.MinQuantity = cfg.Trading.MinQuantity
	out.MinOrderValue = cfg.Trading.MinOrderValue
	out.MinAvgVolume = cfg.Trading.MinAvgVolume
	out.MaxATRPct = cfg.Trading.MaxATRPct
	out.MaxQuantity = cfg.Broker.MaxQuantity
	out.TightCashFrac = cfg.Trading.TightCashFrac
	out.CashBuffer = cfg.Trading.CashBuffer
	out.FractionalBelow = cfg.Trading.FractionalBelow
	out.KellyLookback = cfg.Trading.KellyLookback
	out.EODMinPnLPct = cfg.Trading.EODMinPnLPct
	out.TickerDelay = time.Duration(cfg.Trading.TickerDelayMs) * time.Millisecond
	out.RateLimitPause = time.Duration(cfg.Trading.RateLimitPauseSec) * time.Second
	out.WaitForFill = cfg.Broker.WaitForFill
	out.DryRun = cfg.Trading.DryRun

	poll := broker.DefaultPollOptions()
	if cfg.Broker.FillTimeoutSec > 0 {
		poll.Timeout = time.Duration(cfg.Broker.FillTimeoutSec) * time.Second
	}
	out.Poll = poll
	return out
}

func riskConfig(cfg *config.Config) risk.Config {
	r, e := cfg.Risk, cfg.Exits
	return risk.Config{
		BaseRisk:         r.BaseRisk,
		MaxRisk:          r.MaxRisk,
		WinStreakCap:     r.WinStreakCap,
		MaxDailyLoss:     r.MaxDailyLoss,
		MaxPositions:     r.MaxPositions,
		MaxPerSector:     r.MaxPerSector,
		StopATRMult:      r.StopATRMult,
		BreakevenGain:    r.BreakevenGain,
		BreakevenATR:     r.BreakevenATR,
		PartialRiskFrac:  e.PartialRiskFrac,
		PartialPortion:   e.PartialPortion,
		BigProfitPct:     e.BigProfitPct,
		QuickProfitPct:   e.QuickProfitPct,
		QuickPortion:     e.QuickPortion,
		TrailActivatePct: e.TrailActivatePct,
		TrailATR:         e.TrailATR,
		DeepLossPct:      e.DeepLossPct,
		StaleAfter:       time.Duration(e.StaleAfterHours * float64(time.Hour)),
		StaleMinMovePct:  e.StaleMinMovePct,
		KellyMin:         r.KellyMin,
		KellyMax:         r.KellyMax,
	}
}

func brainFilter(cfg *config.Config) brain.FilterConfig {
	b := cfg.Brain
	return brain.FilterConfig{
		LowWinRate:        b.LowWinRate,
		LowWinRateTrades:  b.LowWinRateTrades,
		WeakWinRate:       b.WeakWinRate,
		WeakWinRateTrades: b.WeakWinRateTrades,
		LoseStreak:        b.LoseStreak,
		LoseStreakTrades:  b.LoseStreakTrades,
		PromoteWinRate:    b.PromoteWinRate,
		PromoteMinTrades:  b.PromoteMinTrades,
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
