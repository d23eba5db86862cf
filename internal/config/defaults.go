package config

import (
	"strings"
)

// 默认值常量
const (
	defaultAppEnv       = "dev"
	defaultAppLogLevel  = "info"
	defaultAppHTTPAddr  = ":9991"
	defaultAppLogPath   = "data/logs/smartbot.log"
	defaultBrokerMode   = "live"
	defaultBrokerURL    = "https://live.trading212.com"
	defaultBrokerSuffix = "_US_EQ"
	defaultPaperCash    = 10000
	defaultMarketURL    = "https://query1.finance.yahoo.com"
	defaultStoreDriver  = "sqlite"
	defaultStorePath    = "data/smartbot.db"
	defaultStoreDir     = "data/state"
	defaultEODTime      = "15:50"
)

var defaultUniverse = []string{"AAPL", "MSFT", "GOOG"}

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Broker.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Trading.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Exits.applyDefaults(keys)
	c.Brain.applyDefaults(keys)
	c.Boosters.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Scheduler.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (b *BrokerConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("broker.mode", &b.Mode, defaultBrokerMode),
		stringFieldDefault("broker.base_url", &b.BaseURL, defaultBrokerURL),
		stringFieldDefault("broker.ticker_suffix", &b.TickerSuffix, defaultBrokerSuffix),
		intFieldDefault("broker.timeout_seconds", &b.TimeoutSeconds, 10),
		floatFieldDefault("broker.rate_per_second", &b.RatePerSecond, 1),
		floatFieldDefault("broker.max_quantity", &b.MaxQuantity, 100),
		floatFieldDefault("broker.paper_cash", &b.PaperCash, defaultPaperCash),
		boolFieldDefault("broker.wait_for_fill", &b.WaitForFill, true),
		intFieldDefault("broker.fill_timeout_seconds", &b.FillTimeoutSec, 30),
	)
	b.Mode = strings.ToLower(strings.TrimSpace(b.Mode))
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.base_url", &m.BaseURL, defaultMarketURL),
		intFieldDefault("market.timeout_seconds", &m.TimeoutSeconds, 15),
		floatFieldDefault("market.rate_per_second", &m.RatePerSecond, 4),
		stringFieldDefault("market.period", &m.Period, "5d"),
		stringFieldDefault("market.interval", &m.Interval, "15m"),
		intFieldDefault("market.min_bars", &m.MinBars, 30),
		stringFieldDefault("market.refresh_period", &m.RefreshPeriod, "1d"),
		stringFieldDefault("market.refresh_interval", &m.RefreshInterval, "1h"),
	)
}

func (t *TradingConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "trading.universe",
			need:  func() bool { return len(t.Universe) == 0 },
			apply: func() { t.Universe = append([]string(nil), defaultUniverse...) },
		},
		intFieldDefault("trading.top_n", &t.TopN, 10),
		floatFieldDefault("trading.confidence_threshold", &t.ConfidenceThreshold, 0.40),
		floatFieldDefault("trading.min_quantity", &t.MinQuantity, 0.2),
		floatFieldDefault("trading.min_order_value", &t.MinOrderValue, 5),
		floatFieldDefault("trading.min_avg_volume", &t.MinAvgVolume, 200000),
		floatFieldDefault("trading.max_atr_pct", &t.MaxATRPct, 0.05),
		floatFieldDefault("trading.tight_cash_frac", &t.TightCashFrac, 0.10),
		floatFieldDefault("trading.cash_buffer", &t.CashBuffer, 0.95),
		floatFieldDefault("trading.fractional_below", &t.FractionalBelow, 10),
		intFieldDefault("trading.kelly_lookback", &t.KellyLookback, 100),
		intFieldDefault("trading.ticker_delay_ms", &t.TickerDelayMs, 500),
		intFieldDefault("trading.rate_limit_pause_seconds", &t.RateLimitPauseSec, 5),
		fieldDefault{
			key:   "trading.eod_min_pnl_pct",
			need:  func() bool { return t.EODMinPnLPct == 0 },
			apply: func() { t.EODMinPnLPct = -1 },
		},
	)
	t.Universe = normalizeTickers(t.Universe)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("risk.base_risk", &r.BaseRisk, 0.12),
		floatFieldDefault("risk.max_risk", &r.MaxRisk, 0.30),
		floatFieldDefault("risk.win_streak_cap", &r.WinStreakCap, 0.28),
		floatFieldDefault("risk.max_daily_loss", &r.MaxDailyLoss, 0.05),
		intFieldDefault("risk.max_positions", &r.MaxPositions, 7),
		intFieldDefault("risk.max_per_sector", &r.MaxPerSector, 2),
		floatFieldDefault("risk.stop_atr_mult", &r.StopATRMult, 2),
		floatFieldDefault("risk.breakeven_gain", &r.BreakevenGain, 0.01),
		floatFieldDefault("risk.breakeven_atr", &r.BreakevenATR, 0.5),
		floatFieldDefault("risk.kelly_min", &r.KellyMin, 0.05),
		floatFieldDefault("risk.kelly_max", &r.KellyMax, 0.45),
	)
}

func (e *ExitsConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("exits.partial_risk_frac", &e.PartialRiskFrac, 0.5),
		floatFieldDefault("exits.partial_portion", &e.PartialPortion, 0.7),
		floatFieldDefault("exits.big_profit_pct", &e.BigProfitPct, 15),
		floatFieldDefault("exits.quick_profit_pct", &e.QuickProfitPct, 5),
		floatFieldDefault("exits.quick_portion", &e.QuickPortion, 0.5),
		floatFieldDefault("exits.trail_activate_pct", &e.TrailActivatePct, 3),
		floatFieldDefault("exits.trail_atr", &e.TrailATR, 1.5),
		fieldDefault{
			key:   "exits.deep_loss_pct",
			need:  func() bool { return e.DeepLossPct == 0 },
			apply: func() { e.DeepLossPct = -8 },
		},
		floatFieldDefault("exits.stale_after_hours", &e.StaleAfterHours, 6),
		floatFieldDefault("exits.stale_min_move_pct", &e.StaleMinMovePct, 0.3),
	)
}

func (b *BrainConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("brain.low_win_rate", &b.LowWinRate, 0.28),
		intFieldDefault("brain.low_win_rate_trades", &b.LowWinRateTrades, 10),
		floatFieldDefault("brain.weak_win_rate", &b.WeakWinRate, 0.35),
		intFieldDefault("brain.weak_win_rate_trades", &b.WeakWinRateTrades, 20),
		intFieldDefault("brain.lose_streak", &b.LoseStreak, 5),
		intFieldDefault("brain.lose_streak_trades", &b.LoseStreakTrades, 5),
		floatFieldDefault("brain.promote_win_rate", &b.PromoteWinRate, 0.55),
		intFieldDefault("brain.promote_min_trades", &b.PromoteMinTrades, 10),
	)
}

func (b *BoostersConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("boosters.enabled", &b.Enabled, true),
		intFieldDefault("boosters.remote_timeout_seconds", &b.RemoteTimeoutSec, 5),
		intFieldDefault("boosters.vol_window", &b.VolWindow, 60),
		floatFieldDefault("boosters.watchlist_max_age_hours", &b.WatchlistMaxAgeH, 24),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.driver", &s.Driver, defaultStoreDriver),
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
		stringFieldDefault("store.dir", &s.Dir, defaultStoreDir),
	)
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
}

func (s *SchedulerConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("scheduler.interval_minutes", &s.IntervalMinutes, 15),
		intFieldDefault("scheduler.offset_seconds", &s.OffsetSeconds, 20),
		boolFieldDefault("scheduler.session_only", &s.SessionOnly, true),
		intFieldDefault("scheduler.cycle_timeout_seconds", &s.CycleTimeoutSeconds, 600),
		boolFieldDefault("scheduler.eod_enabled", &s.EODEnabled, true),
		stringFieldDefault("scheduler.eod_time", &s.EODTime, defaultEODTime),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target <= 0 },
		apply: func() { *target = def },
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target <= 0 },
		apply: func() { *target = def },
	}
}

// normalizeTickers 去空格、转大写并去重，保持顺序。
func normalizeTickers(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, t := range in {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
