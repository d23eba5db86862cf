package config

import (
	"fmt"
	"strconv"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Broker.validate(); err != nil {
		return err
	}
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Trading.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Exits.validate(); err != nil {
		return err
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	if err := c.Scheduler.validate(); err != nil {
		return err
	}
	return nil
}

func (b *BrokerConfig) validate() error {
	switch b.Mode {
	case "paper":
		if b.PaperCash <= 0 {
			return fmt.Errorf("broker.paper_cash must be > 0")
		}
	case "live":
		if strings.TrimSpace(b.BaseURL) == "" {
			return fmt.Errorf("broker.base_url cannot be empty")
		}
		if strings.TrimSpace(b.APIKey) == "" || strings.TrimSpace(b.APISecret) == "" {
			return fmt.Errorf("broker live mode requires api_key and api_secret (or SMARTBOT_BROKER_API_KEY/SECRET)")
		}
	default:
		return fmt.Errorf("broker.mode only supports 'live' or 'paper', got %q", b.Mode)
	}
	if b.MaxQuantity <= 0 {
		return fmt.Errorf("broker.max_quantity must be > 0")
	}
	return nil
}

func (m *MarketConfig) validate() error {
	for key, val := range map[string]string{
		"market.interval":         m.Interval,
		"market.refresh_interval": m.RefreshInterval,
		"market.period":           m.Period,
		"market.refresh_period":   m.RefreshPeriod,
	} {
		if !IsValidInterval(val) {
			return fmt.Errorf("%s invalid: %q", key, val)
		}
	}
	if m.MinBars < 2 {
		return fmt.Errorf("market.min_bars must be >= 2")
	}
	if m.Replay && strings.TrimSpace(m.ArchiveDir) == "" {
		return fmt.Errorf("market.replay requires market.archive_dir")
	}
	return nil
}

func (t *TradingConfig) validate() error {
	if len(t.Universe) == 0 {
		return fmt.Errorf("trading.universe requires at least one ticker")
	}
	if t.ConfidenceThreshold <= 0 || t.ConfidenceThreshold >= 1 {
		return fmt.Errorf("trading.confidence_threshold must be in (0, 1)")
	}
	if t.CashBuffer <= 0 || t.CashBuffer > 1 {
		return fmt.Errorf("trading.cash_buffer must be in (0, 1]")
	}
	if t.TightCashFrac < 0 || t.TightCashFrac >= 1 {
		return fmt.Errorf("trading.tight_cash_frac must be in [0, 1)")
	}
	if t.MaxATRPct <= 0 {
		return fmt.Errorf("trading.max_atr_pct must be > 0")
	}
	if t.TopN <= 0 {
		return fmt.Errorf("trading.top_n must be > 0")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.BaseRisk <= 0 || r.BaseRisk > r.MaxRisk || r.MaxRisk > 1 {
		return fmt.Errorf("risk.base_risk must be in (0, risk.max_risk] and max_risk <= 1")
	}
	if r.MaxDailyLoss <= 0 || r.MaxDailyLoss >= 1 {
		return fmt.Errorf("risk.max_daily_loss must be in (0, 1)")
	}
	if r.MaxPositions <= 0 || r.MaxPerSector <= 0 {
		return fmt.Errorf("risk.max_positions and risk.max_per_sector must be > 0")
	}
	if r.KellyMin <= 0 || r.KellyMin > r.KellyMax {
		return fmt.Errorf("risk.kelly_min must be in (0, risk.kelly_max]")
	}
	return nil
}

func (e *ExitsConfig) validate() error {
	if e.QuickPortion <= 0 || e.QuickPortion >= 1 || e.PartialPortion <= 0 || e.PartialPortion >= 1 {
		return fmt.Errorf("exits.quick_portion and exits.partial_portion must be in (0, 1)")
	}
	if e.QuickProfitPct >= e.BigProfitPct {
		return fmt.Errorf("exits.quick_profit_pct must be below exits.big_profit_pct")
	}
	if e.DeepLossPct >= 0 {
		return fmt.Errorf("exits.deep_loss_pct must be negative")
	}
	return nil
}

func (s *StoreConfig) validate() error {
	switch s.Driver {
	case "sqlite":
		if strings.TrimSpace(s.Path) == "" {
			return fmt.Errorf("store.path cannot be empty for sqlite")
		}
	case "file":
		if strings.TrimSpace(s.Dir) == "" {
			return fmt.Errorf("store.dir cannot be empty for file store")
		}
	default:
		return fmt.Errorf("store.driver only supports 'sqlite' or 'file', got %q", s.Driver)
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if n.Telegram.BotToken == "" || n.Telegram.ChatID == "" {
			return fmt.Errorf("telegram notification enabled but missing bot_token or chat_id")
		}
	}
	return nil
}

func (s *SchedulerConfig) validate() error {
	if s.IntervalMinutes <= 0 {
		return fmt.Errorf("scheduler.interval_minutes must be > 0")
	}
	if s.OffsetSeconds < 0 {
		return fmt.Errorf("scheduler.offset_seconds must be >= 0")
	}
	if s.EODEnabled {
		if _, _, err := ParseClock(s.EODTime); err != nil {
			return fmt.Errorf("scheduler.eod_time: %w", err)
		}
	}
	return nil
}

// ParseClock 解析 HH:MM。
func ParseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

// IsValidInterval 简易校验：以数字开头，以 m/h/d/w 结尾；另接受 mo/y（如 1mo、1y）。
func IsValidInterval(s string) bool {
	s = strings.TrimSpace(s)
	for _, suf := range []string{"mo", "m", "h", "d", "w", "y"} {
		if num, ok := strings.CutSuffix(s, suf); ok {
			if num == "" {
				return false
			}
			for i := 0; i < len(num); i++ {
				if num[i] < '0' || num[i] > '9' {
					return false
				}
			}
			return true
		}
	}
	return false
}
