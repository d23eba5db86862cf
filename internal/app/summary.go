package app

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"smartbot/internal/brain"
	"smartbot/internal/config"
	"smartbot/internal/risk"
)

type StartupSummary struct {
	Universe  UniverseSummary
	Broker    BrokerSummary
	Schedule  ScheduleSummary
	Positions []PositionSummary
	Brain     BrainSummary
}

type UniverseSummary struct {
	Tickers   []string
	Interval  string
	Period    string
	TopN      int
	Threshold float64
	Boosters  bool
}

type BrokerSummary struct {
	Mode   string
	Store  string
	DryRun bool
}

type ScheduleSummary struct {
	IntervalMinutes int
	SessionOnly     bool
	EOD             string
}

type PositionSummary struct {
	Ticker   string
	Quantity float64
	Entry    float64
	Stop     float64
	Sector   string
}

type BrainSummary struct {
	Trades  int
	Blocked []string
}

func newStartupSummary(cfg *config.Config, r *risk.Manager, b *brain.Brain) *StartupSummary {
	s := &StartupSummary{
		Universe: UniverseSummary{
			Tickers:   cfg.Trading.Universe,
			Interval:  cfg.Market.Interval,
			Period:    cfg.Market.Period,
			TopN:      cfg.Trading.TopN,
			Threshold: cfg.Trading.ConfidenceThreshold,
			Boosters:  cfg.Boosters.Enabled,
		},
		Broker: BrokerSummary{
			Mode:   cfg.Broker.Mode,
			Store:  cfg.Store.Driver,
			DryRun: cfg.Trading.DryRun,
		},
		Schedule: ScheduleSummary{
			IntervalMinutes: cfg.Scheduler.IntervalMinutes,
			SessionOnly:     cfg.Scheduler.SessionOnly,
		},
	}
	if cfg.Scheduler.EODEnabled {
		s.Schedule.EOD = cfg.Scheduler.EODTime
	}
	for _, p := range r.Positions() {
		s.Positions = append(s.Positions, PositionSummary{
			Ticker:   p.Ticker,
			Quantity: p.Quantity,
			Entry:    p.EntryPrice,
			Stop:     p.StopLoss,
			Sector:   sectorOf(r, p.Ticker),
		})
	}
	sort.Slice(s.Positions, func(i, j int) bool { return s.Positions[i].Ticker < s.Positions[j].Ticker })
	s.Brain.Trades = b.TotalTrades()
	for ticker := range b.Filter(cfg.Trading.Universe).Blocked {
		s.Brain.Blocked = append(s.Brain.Blocked, ticker)
	}
	sort.Strings(s.Brain.Blocked)
	return s
}

func sectorOf(r *risk.Manager, ticker string) string {
	if sector, ok := r.SectorOf(ticker); ok {
		return sector
	}
	return "-"
}

func (s *StartupSummary) Print() {
	s.WriteTo(os.Stdout)
}

func (s *StartupSummary) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder
	line := func(format string, args ...any) { fmt.Fprintf(&sb, format+"\n", args...) }

	line("%s", strings.Repeat("=", 80))
	title := "启动配置摘要 (STARTUP SUMMARY)"
	line("%*s", 40+len(title)/2, title)
	line("%s", strings.Repeat("=", 80))

	line("[交易池 (UNIVERSE)]")
	line("  标的: %s", formatList(s.Universe.Tickers))
	line("  周期: %s / %s  top_n=%d  阈值=%.2f  boosters=%v",
		s.Universe.Interval, s.Universe.Period, s.Universe.TopN, s.Universe.Threshold, s.Universe.Boosters)
	line("")

	line("[券商与存储 (BROKER & STORE)]")
	line("  模式: %s  存储: %s  dry_run=%v", s.Broker.Mode, s.Broker.Store, s.Broker.DryRun)
	line("")

	line("[调度 (SCHEDULE)]")
	eod := s.Schedule.EOD
	if eod == "" {
		eod = "关闭"
	}
	line("  每 %d 分钟  仅交易时段=%v  收盘平仓=%s", s.Schedule.IntervalMinutes, s.Schedule.SessionOnly, eod)
	line("")

	line("[持仓 (POSITIONS)]")
	if len(s.Positions) == 0 {
		line("  (无)")
	}
	for _, p := range s.Positions {
		line("  > %-6s qty=%.4f entry=%.2f stop=%.2f sector=%s", p.Ticker, p.Quantity, p.Entry, p.Stop, p.Sector)
	}
	line("")

	line("[学习记忆 (BRAIN)]")
	line("  已学习交易: %d  屏蔽: %s", s.Brain.Trades, formatList(s.Brain.Blocked))
	line("%s", strings.Repeat("=", 80))

	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
