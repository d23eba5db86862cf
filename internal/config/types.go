package config

import "strings"

// Config 是 SmartBot 的主配置载体。
type Config struct {
	App       AppConfig       `toml:"app"`
	Broker    BrokerConfig    `toml:"broker"`
	Market    MarketConfig    `toml:"market"`
	Trading   TradingConfig   `toml:"trading"`
	Risk      RiskConfig      `toml:"risk"`
	Exits     ExitsConfig     `toml:"exits"`
	Brain     BrainConfig     `toml:"brain"`
	Boosters  BoostersConfig  `toml:"boosters"`
	Store     StoreConfig     `toml:"store"`
	Notify    NotifyConfig    `toml:"notify"`
	Scheduler SchedulerConfig `toml:"scheduler"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// BrokerConfig 描述券商接口。mode=paper 时使用内存撮合，不需要凭证。
type BrokerConfig struct {
	Mode           string  `toml:"mode"` // live | paper
	BaseURL        string  `toml:"base_url"`
	APIKey         string  `toml:"api_key"`
	APISecret      string  `toml:"api_secret"`
	TickerSuffix   string  `toml:"ticker_suffix"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	RatePerSecond  float64 `toml:"rate_per_second"`
	MaxQuantity    float64 `toml:"max_quantity"`
	PaperCash      float64 `toml:"paper_cash"`
	WaitForFill    bool    `toml:"wait_for_fill"`
	FillTimeoutSec int     `toml:"fill_timeout_seconds"`
}

func (b BrokerConfig) Paper() bool {
	return strings.EqualFold(strings.TrimSpace(b.Mode), "paper")
}

// MarketConfig 描述行情源与历史K线参数。
type MarketConfig struct {
	BaseURL         string  `toml:"base_url"`
	TimeoutSeconds  int     `toml:"timeout_seconds"`
	RatePerSecond   float64 `toml:"rate_per_second"`
	Period          string  `toml:"period"`
	Interval        string  `toml:"interval"`
	MinBars         int     `toml:"min_bars"`
	RefreshPeriod   string  `toml:"refresh_period"`
	RefreshInterval string  `toml:"refresh_interval"`
	ArchiveDir      string  `toml:"archive_dir"` // 为空则不落盘
	Replay          bool    `toml:"replay"`      // 只从 archive_dir 读取
}

// TradingConfig 是入场阈值与候选池。
type TradingConfig struct {
	Universe            []string `toml:"universe"`
	TopN                int      `toml:"top_n"`
	ConfidenceThreshold float64  `toml:"confidence_threshold"`
	MinQuantity         float64  `toml:"min_quantity"`
	MinOrderValue       float64  `toml:"min_order_value"`
	MinAvgVolume        float64  `toml:"min_avg_volume"`
	MaxATRPct           float64  `toml:"max_atr_pct"`
	TightCashFrac       float64  `toml:"tight_cash_frac"`
	CashBuffer          float64  `toml:"cash_buffer"`
	FractionalBelow     float64  `toml:"fractional_below"`
	KellyLookback       int      `toml:"kelly_lookback"`
	TickerDelayMs       int      `toml:"ticker_delay_ms"`
	RateLimitPauseSec   int      `toml:"rate_limit_pause_seconds"`
	EODMinPnLPct        float64  `toml:"eod_min_pnl_pct"`
	DryRun              bool     `toml:"dry_run"`
}

// RiskConfig 是账户级风险参数。
type RiskConfig struct {
	BaseRisk      float64 `toml:"base_risk"`
	MaxRisk       float64 `toml:"max_risk"`
	WinStreakCap  float64 `toml:"win_streak_cap"`
	MaxDailyLoss  float64 `toml:"max_daily_loss"`
	MaxPositions  int     `toml:"max_positions"`
	MaxPerSector  int     `toml:"max_per_sector"`
	StopATRMult   float64 `toml:"stop_atr_mult"`
	BreakevenGain float64 `toml:"breakeven_gain"`
	BreakevenATR  float64 `toml:"breakeven_atr"`
	KellyMin      float64 `toml:"kelly_min"`
	KellyMax      float64 `toml:"kelly_max"`
	SectorsFile   string  `toml:"sectors_file"`
}

// ExitsConfig 是止盈止损规则的阈值，百分比字段单位为百分点。
type ExitsConfig struct {
	PartialRiskFrac  float64 `toml:"partial_risk_frac"`
	PartialPortion   float64 `toml:"partial_portion"`
	BigProfitPct     float64 `toml:"big_profit_pct"`
	QuickProfitPct   float64 `toml:"quick_profit_pct"`
	QuickPortion     float64 `toml:"quick_portion"`
	TrailActivatePct float64 `toml:"trail_activate_pct"`
	TrailATR         float64 `toml:"trail_atr"`
	DeepLossPct      float64 `toml:"deep_loss_pct"`
	StaleAfterHours  float64 `toml:"stale_after_hours"`
	StaleMinMovePct  float64 `toml:"stale_min_move_pct"`
}

type BrainConfig struct {
	LowWinRate        float64 `toml:"low_win_rate"`
	LowWinRateTrades  int     `toml:"low_win_rate_trades"`
	WeakWinRate       float64 `toml:"weak_win_rate"`
	WeakWinRateTrades int     `toml:"weak_win_rate_trades"`
	LoseStreak        int     `toml:"lose_streak"`
	LoseStreakTrades  int     `toml:"lose_streak_trades"`
	PromoteWinRate    float64 `toml:"promote_win_rate"`
	PromoteMinTrades  int     `toml:"promote_min_trades"`
}

// BoostersConfig 控制置信度增强管线。remote_url 为空时不启用 pattern/sentiment/ensemble。
type BoostersConfig struct {
	Enabled          bool    `toml:"enabled"`
	RemoteURL        string  `toml:"remote_url"`
	RemoteTimeoutSec int     `toml:"remote_timeout_seconds"`
	VolWindow        int     `toml:"vol_window"`
	WatchlistPath    string  `toml:"watchlist_path"`
	WatchlistMaxAgeH float64 `toml:"watchlist_max_age_hours"`
}

// StoreConfig 选择状态存储：sqlite（gorm）或 file（JSON 文件）。
type StoreConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"` // sqlite 文件
	Dir    string `toml:"dir"`  // file 存储目录
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// SchedulerConfig 控制周期调度与收盘平仓。
type SchedulerConfig struct {
	IntervalMinutes     int    `toml:"interval_minutes"`
	OffsetSeconds       int    `toml:"offset_seconds"`
	RunImmediately      bool   `toml:"run_immediately"`
	SessionOnly         bool   `toml:"session_only"`
	CycleTimeoutSeconds int    `toml:"cycle_timeout_seconds"`
	EODEnabled          bool   `toml:"eod_enabled"`
	EODTime             string `toml:"eod_time"` // HH:MM 交易所时间
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
