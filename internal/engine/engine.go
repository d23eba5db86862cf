// Package engine 是交易周期的编排器：撤销挂单、刷新持仓价格、执行退出、
// 过滤与排序候选、逐个评分并下单，最后持久化全部状态。
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"smartbot/internal/analysis/indicator"
	"smartbot/internal/booster"
	"smartbot/internal/brain"
	"smartbot/internal/gateway/broker"
	"smartbot/internal/gateway/notifier"
	"smartbot/internal/logger"
	"smartbot/internal/market"
	"smartbot/internal/metrics"
	"smartbot/internal/risk"
	"smartbot/internal/store"
	"smartbot/internal/strategy/momentum"
)

// SignalScorer produces the raw momentum verdict for the latest bar.
type SignalScorer interface {
	Score(ticker string, f *indicator.Frame, at time.Time) momentum.Signal
}

// Ranker narrows the candidate list.
type Ranker interface {
	Rank(ctx context.Context, tickers []string, topN int) []string
}

// RegimeDetector classifies the whole market for risk scaling.
type RegimeDetector interface {
	Detect(ctx context.Context) risk.MarketRegime
}

// Pipeline adjusts raw confidence through the booster stages.
type Pipeline interface {
	Run(ctx context.Context, in *booster.Input, conf float64) booster.Result
}

// cycleAware pipelines are told when a cycle starts.
type cycleAware interface {
	BeginCycle(list *booster.Watchlist)
}

// WatchlistLoader returns the current overnight watchlist; nil means none.
type WatchlistLoader func(now time.Time) (*booster.Watchlist, error)

// Store is the part of the state store the engine writes directly.
type Store interface {
	store.Journal
	store.OrderKeys
}

// Deps are the engine's collaborators. Broker, Market, Risk and Brain are required.
type Deps struct {
	Broker    broker.Broker
	Market    *market.CycleCache
	Risk      *risk.Manager
	Brain     *brain.Brain
	Store     Store
	Scorer    SignalScorer
	Ranker    Ranker
	Regime    RegimeDetector
	Boosters  Pipeline
	Watchlist WatchlistLoader
	Notifier  notifier.TextNotifier
	Metrics   *metrics.Registry
	Indicator indicator.Settings

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

type Engine struct {
	run sync.Mutex

	cfgMu   sync.RWMutex
	cfg     Config
	pending *Config

	d      Deps
	placer *broker.Placer

	lastMu sync.RWMutex
	last   *CycleResult
}

func New(cfg Config, d Deps) (*Engine, error) {
	switch {
	case d.Broker == nil:
		return nil, errors.New("engine: broker is required")
	case d.Market == nil:
		return nil, errors.New("engine: market source is required")
	case d.Risk == nil:
		return nil, errors.New("engine: risk manager is required")
	case d.Brain == nil:
		return nil, errors.New("engine: brain is required")
	}
	if d.Scorer == nil {
		d.Scorer = momentum.NewScorer()
	}
	if d.Ranker == nil {
		d.Ranker = momentum.NewRanker(d.Market)
	}
	if d.Regime == nil {
		d.Regime = risk.NewRegimeDetector(d.Market)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Sleep == nil {
		d.Sleep = sleepCtx
	}
	var keys broker.KeyStore
	if d.Store != nil {
		keys = d.Store
	}
	placer := broker.NewPlacer(d.Broker, keys, 0)
	placer.Now = d.Now
	return &Engine{cfg: cfg, d: d, placer: placer}, nil
}

// SetConfig stages cfg for the next cycle; a running cycle keeps its thresholds.
func (e *Engine) SetConfig(cfg Config) {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	e.pending = &cfg
}

func (e *Engine) Config() Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	if e.pending != nil {
		return *e.pending
	}
	return e.cfg
}

func (e *Engine) applyPending() Config {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	if e.pending != nil {
		e.cfg = *e.pending
		e.pending = nil
		logger.Infof("engine: 新配置已生效 (threshold=%.2f universe=%d)", e.cfg.ConfidenceThreshold, len(e.cfg.Universe))
	}
	return e.cfg
}

// LastCycle is the most recent completed cycle report.
func (e *Engine) LastCycle() (CycleResult, bool) {
	e.lastMu.RLock()
	defer e.lastMu.RUnlock()
	if e.last == nil {
		return CycleResult{}, false
	}
	return *e.last, true
}

func (e *Engine) setLast(r CycleResult) {
	e.lastMu.Lock()
	e.last = &r
	e.lastMu.Unlock()
}

// cycle carries the per-cycle mutable account view.
type cycle struct {
	cfg   Config
	id    string
	free  float64
	total float64
	kelly float64
	res   *CycleResult
}

// RunCycle runs one full cycle. Only an account-fetch failure aborts it; every
// per-ticker and per-order failure is recorded on the result and skipped.
func (e *Engine) RunCycle(ctx context.Context) (CycleResult, error) {
	e.run.Lock()
	defer e.run.Unlock()

	cfg := e.applyPending()
	res := &CycleResult{ID: uuid.NewString(), Started: e.d.Now(), DryRun: cfg.DryRun}
	c := &cycle{cfg: cfg, id: res.ID, res: res}

	err := e.runCycle(ctx, c)
	if err != nil {
		res.Err = err.Error()
	}
	res.Finished = e.d.Now()
	e.d.Metrics.ObserveCycle(res.Duration(), err)
	e.d.Metrics.Account(len(e.d.Risk.Positions()), res.DynamicRisk, res.Cash.Free, e.d.Brain.TotalTrades())

	logger.InfoBlock(strings.Join(res.Lines(), "\n"))
	notifier.Send(e.d.Notifier, notifier.CycleMessage("SmartBot cycle", res.Lines(), res.Finished))
	e.setLast(*res)
	return *res, err
}

func (e *Engine) runCycle(ctx context.Context, c *cycle) error {
	e.d.Market.Reset()
	list := e.loadWatchlist()
	if ca, ok := e.d.Boosters.(cycleAware); ok {
		ca.BeginCycle(list)
	}

	if n, err := broker.CancelStale(ctx, e.d.Broker); err != nil {
		logger.Warnf("engine: 撤销挂单失败: %v", err)
	} else {
		c.res.Cancelled = n
	}

	e.refreshPrices(ctx, c.cfg)
	e.runExits(ctx, c)

	cash, err := e.d.Broker.Cash(ctx)
	if err != nil {
		return fmt.Errorf("fetch account cash: %w", err)
	}
	c.res.Cash = cash
	c.free, c.total = cash.Free, cash.Total
	logger.Infof("engine: 账户 $%.2f total | $%.2f free", cash.Total, cash.Free)

	c.res.DynamicRisk = e.d.Risk.DynamicRisk()
	if c.res.DynamicRisk == 0 {
		c.res.CircuitBreaker = true
		logger.Warnf("engine: %v，本周期不开新仓", risk.ErrCircuitBreaker)
		return nil
	}
	rcfg := e.d.Risk.Config()
	c.res.Regime = e.d.Regime.Detect(ctx)
	c.res.AdjustedRisk = rcfg.AdjustedRisk(c.res.DynamicRisk, c.res.Regime)
	c.res.Stats = e.historicalStats(ctx, c.cfg)
	c.res.Kelly = min(rcfg.KellyFor(c.res.Stats), c.res.AdjustedRisk)
	c.kelly = c.res.Kelly
	logger.Infof("engine: risk %.1f%% x %.2f (%s) = %.1f%% | kelly %.1f%% (WR=%.0f%% n=%d)",
		c.res.DynamicRisk*100, c.res.Regime.Multiplier, c.res.Regime.Name, c.res.AdjustedRisk*100,
		c.kelly*100, c.res.Stats.WinRate*100, c.res.Stats.Trades)

	filtered := e.d.Brain.Filter(c.cfg.Universe)
	c.res.Blocked = filtered.Blocked
	e.d.Metrics.BlockedTickers(len(filtered.Blocked))
	ranked := e.d.Ranker.Rank(ctx, filtered.Allowed, c.cfg.TopN)
	if list.Len() > 0 {
		ranked = list.Resort(ranked)
	}
	c.res.Ranked = ranked
	logger.Infof("engine: 候选 %d -> 过滤 %d -> 排名 %v", len(c.cfg.Universe), len(filtered.Allowed), ranked)

	for i, ticker := range ranked {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.res.Decisions = append(c.res.Decisions, e.evaluate(ctx, c, ticker))
		if i < len(ranked)-1 && c.cfg.TickerDelay > 0 {
			if err := e.d.Sleep(ctx, c.cfg.TickerDelay); err != nil {
				return err
			}
		}
	}
	if err := e.d.Risk.Save(ctx); err != nil {
		logger.Errorf("engine: 保存风控状态失败: %v", err)
	}
	return nil
}

func (e *Engine) loadWatchlist() *booster.Watchlist {
	if e.d.Watchlist == nil {
		return nil
	}
	list, err := e.d.Watchlist(e.d.Now())
	if err != nil {
		logger.Warnf("engine: 隔夜观察列表不可用: %v", err)
		return nil
	}
	if list.Len() > 0 {
		logger.Infof("engine: 隔夜观察列表 %d 个标的", list.Len())
	}
	return list
}

// refreshPrices prefers broker quotes and falls back to the last market close.
func (e *Engine) refreshPrices(ctx context.Context, cfg Config) {
	positions := e.d.Risk.Positions()
	if len(positions) == 0 {
		return
	}
	quotes := map[string]float64{}
	if holdings, err := e.d.Broker.Portfolio(ctx); err != nil {
		logger.Warnf("engine: 获取持仓失败，改用行情价格: %v", err)
	} else {
		for _, h := range holdings {
			if h.CurrentPrice > 0 {
				quotes[market.BaseTicker(h.Ticker)] = h.CurrentPrice
			}
		}
	}
	for _, p := range positions {
		price, ok := quotes[p.Ticker]
		if !ok {
			candles, err := e.d.Market.History(ctx, p.Ticker, cfg.RefreshPeriod, cfg.RefreshInterval)
			if err != nil || len(candles) == 0 {
				logger.Warnf("engine: %s 价格刷新失败: %v", p.Ticker, err)
				continue
			}
			price = market.LastClose(candles)
		}
		e.d.Risk.UpdatePrice(p.Ticker, price)
	}
	if err := e.d.Risk.Save(ctx); err != nil {
		logger.Errorf("engine: 保存持仓失败: %v", err)
	}
}

func (e *Engine) historicalStats(ctx context.Context, cfg Config) risk.Stats {
	if e.d.Store == nil {
		return risk.HistoricalStats(nil)
	}
	returns, err := e.d.Store.ClosedReturns(ctx, cfg.KellyLookback)
	if err != nil {
		logger.Warnf("engine: 读取历史收益失败，使用默认统计: %v", err)
		return risk.HistoricalStats(nil)
	}
	return risk.HistoricalStats(returns)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
