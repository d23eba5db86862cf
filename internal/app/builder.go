package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"smartbot/internal/booster"
	"smartbot/internal/brain"
	"smartbot/internal/config"
	"smartbot/internal/engine"
	"smartbot/internal/gateway/broker"
	"smartbot/internal/gateway/notifier"
	"smartbot/internal/gateway/yahoo"
	"smartbot/internal/logger"
	"smartbot/internal/market"
	"smartbot/internal/market/archive"
	"smartbot/internal/metrics"
	"smartbot/internal/pkg/circuit"
	"smartbot/internal/risk"
	"smartbot/internal/store"
	"smartbot/internal/store/filestore"
	"smartbot/internal/store/sqlite"
	statushttp "smartbot/internal/transport/http/status"
)

// orderKeyRetention bounds how long idempotency keys are kept in sqlite.
const orderKeyRetention = 7 * 24 * time.Hour

type AppBuilder struct {
	cfg     *config.Config
	watcher *config.Watcher

	storeFn    func(*config.Config) (store.StateStore, error)
	sourceFn   func(*config.Config) (market.Source, func() error, error)
	brokerFn   func(*config.Config, market.Source) (broker.Broker, *circuit.CircuitBreaker, error)
	notifierFn func(*config.Config) notifier.TextNotifier

	now      func() time.Time
	skipLock bool
	dryRun   bool
}

type AppBuilderOption func(*AppBuilder)

// WithConfigWatcher 让 App 在配置文件变化时热更新引擎与风控参数。
func WithConfigWatcher(w *config.Watcher) AppBuilderOption {
	return func(b *AppBuilder) { b.watcher = w }
}

func WithStore(st store.StateStore) AppBuilderOption {
	return func(b *AppBuilder) {
		b.storeFn = func(*config.Config) (store.StateStore, error) { return st, nil }
	}
}

func WithMarketSource(src market.Source) AppBuilderOption {
	return func(b *AppBuilder) {
		b.sourceFn = func(*config.Config) (market.Source, func() error, error) { return src, nil, nil }
	}
}

func WithBroker(br broker.Broker) AppBuilderOption {
	return func(b *AppBuilder) {
		b.brokerFn = func(*config.Config, market.Source) (broker.Broker, *circuit.CircuitBreaker, error) {
			return br, nil, nil
		}
	}
}

func WithNotifier(n notifier.TextNotifier) AppBuilderOption {
	return func(b *AppBuilder) {
		b.notifierFn = func(*config.Config) notifier.TextNotifier { return n }
	}
}

func WithClock(now func() time.Time) AppBuilderOption {
	return func(b *AppBuilder) { b.now = now }
}

// WithDryRun 强制 dry run，热更新的配置也不会关闭它。
func WithDryRun() AppBuilderOption {
	return func(b *AppBuilder) { b.dryRun = true }
}

// WithoutLock 跳过单实例锁（只读命令使用）。
func WithoutLock() AppBuilderOption {
	return func(b *AppBuilder) { b.skipLock = true }
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		storeFn:    buildStore,
		sourceFn:   buildMarketSource,
		brokerFn:   buildBroker,
		notifierFn: buildNotifier,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (_ *App, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	if b.dryRun {
		cfg.Trading.DryRun = true
	}
	logger.SetLevel(cfg.App.LogLevel)

	var closers []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}()

	if path := lockPath(cfg.Store); path != "" && !b.skipLock {
		lock, lerr := store.AcquireLock(path)
		if lerr != nil {
			return nil, fmt.Errorf("另一个实例正在运行: %w", lerr)
		}
		closers = append(closers, lock.Release)
	}

	st, err := b.storeFn(cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化状态存储失败: %w", err)
	}
	closers = append(closers, st.Close)
	pruneOrderKeys(ctx, st, b.now())

	src, closeSrc, err := b.sourceFn(cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化行情源失败: %w", err)
	}
	if closeSrc != nil {
		closers = append(closers, closeSrc)
	}
	cache := market.NewCycleCache(src)

	br, breaker, err := b.brokerFn(cfg, src)
	if err != nil {
		return nil, fmt.Errorf("初始化券商客户端失败: %w", err)
	}

	sectors := risk.DefaultSectors()
	if path := strings.TrimSpace(cfg.Risk.SectorsFile); path != "" {
		if sectors, err = risk.LoadSectors(path); err != nil {
			return nil, fmt.Errorf("加载行业映射失败: %w", err)
		}
	}
	riskMgr := risk.NewManager(riskConfig(cfg), st, risk.WithClock(b.now), risk.WithSectors(sectors))
	if err = riskMgr.Load(ctx); err != nil {
		return nil, fmt.Errorf("加载风控状态失败: %w", err)
	}
	mind := brain.New(st, brain.WithClock(b.now), brain.WithFilter(brainFilter(cfg)))
	if err = mind.Load(ctx); err != nil {
		return nil, fmt.Errorf("加载学习记忆失败: %w", err)
	}

	reg := metrics.New()
	if breaker != nil {
		reg.TrackBreaker(breaker)
	}

	deps := engine.Deps{
		Broker:    br,
		Market:    cache,
		Risk:      riskMgr,
		Brain:     mind,
		Store:     st,
		Watchlist: watchlistLoader(cfg.Boosters),
		Notifier:  b.notifierFn(cfg),
		Metrics:   reg,
		Now:       b.now,
	}
	if cfg.Boosters.Enabled {
		var remote booster.SignalSource
		if url := strings.TrimSpace(cfg.Boosters.RemoteURL); url != "" {
			remote = booster.NewRemoteSignals(url, seconds(cfg.Boosters.RemoteTimeoutSec))
		}
		deps.Boosters = booster.NewStandard(cache, remote, cfg.Boosters.VolWindow)
	}
	eng, err := engine.New(engineConfig(cfg), deps)
	if err != nil {
		return nil, err
	}

	status, err := statushttp.NewServer(statushttp.ServerConfig{
		Addr:    cfg.App.HTTPAddr,
		Risk:    riskMgr,
		Brain:   mind,
		Cycles:  eng,
		Journal: st,
		Metrics: reg.Handler(),
	})
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		engine:  eng,
		risk:    riskMgr,
		brain:   mind,
		store:   st,
		status:  status,
		metrics: reg,
		watcher: b.watcher,
		dryRun:  b.dryRun,
		closers: closers,
		Summary: newStartupSummary(cfg, riskMgr, mind),
	}
	return a, nil
}

// lockPath is the single-writer pid file. The file store locks its own
// directory on Open, so it needs none here.
func lockPath(cfg config.StoreConfig) string {
	if cfg.Driver == "file" {
		return ""
	}
	return cfg.Path + ".lock"
}

func buildStore(cfg *config.Config) (store.StateStore, error) {
	switch cfg.Store.Driver {
	case "file":
		st, err := filestore.Open(cfg.Store.Dir)
		if err != nil {
			return nil, err
		}
		logger.Infof("✓ 状态存储: file %s", cfg.Store.Dir)
		return st, nil
	default:
		st, err := sqlite.NewSqliteStore(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		logger.Infof("✓ 状态存储: sqlite %s", cfg.Store.Path)
		return st, nil
	}
}

type orderKeyPruner interface {
	PruneOrderKeys(ctx context.Context, before time.Time) (int64, error)
}

func pruneOrderKeys(ctx context.Context, st store.StateStore, now time.Time) {
	p, ok := st.(orderKeyPruner)
	if !ok {
		return
	}
	n, err := p.PruneOrderKeys(ctx, now.Add(-orderKeyRetention))
	if err != nil {
		logger.Warnf("清理过期订单 key 失败: %v", err)
		return
	}
	if n > 0 {
		logger.Infof("已清理 %d 条过期订单 key", n)
	}
}

// buildMarketSource 返回 yahoo 行情源；配置了 archive_dir 时落盘，replay 模式只读归档。
func buildMarketSource(cfg *config.Config) (market.Source, func() error, error) {
	m := cfg.Market
	live := yahoo.NewClient(yahoo.Config{
		BaseURL:       m.BaseURL,
		Timeout:       seconds(m.TimeoutSeconds),
		RatePerSecond: m.RatePerSecond,
	})
	dir := strings.TrimSpace(m.ArchiveDir)
	if dir == "" {
		return live, nil, nil
	}
	bars, err := archive.NewStore(dir)
	if err != nil {
		return nil, nil, err
	}
	if m.Replay {
		logger.Infof("✓ 行情源: replay %s", dir)
		return archive.ReplaySource{Store: bars}, bars.Close, nil
	}
	logger.Infof("✓ 行情源: yahoo + archive %s", dir)
	return archive.RecordingSource{Live: live, Store: bars}, bars.Close, nil
}

func buildBroker(cfg *config.Config, src market.Source) (broker.Broker, *circuit.CircuitBreaker, error) {
	bc := cfg.Broker
	if bc.Paper() {
		logger.Infof("✓ 券商: paper (cash=%.2f)", bc.PaperCash)
		return broker.NewPaperBroker(bc.PaperCash, lastClose(src, cfg.Market)), nil, nil
	}
	client, err := broker.NewClient(broker.Config{
		BaseURL:       bc.BaseURL,
		APIKey:        bc.APIKey,
		APISecret:     bc.APISecret,
		Timeout:       seconds(bc.TimeoutSeconds),
		RatePerSecond: bc.RatePerSecond,
		MaxQuantity:   bc.MaxQuantity,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Infof("✓ 券商: live %s", bc.BaseURL)
	return client, client.Breaker(), nil
}

// lastClose prices paper fills at the latest bar close.
func lastClose(src market.Source, m config.MarketConfig) broker.PriceFunc {
	return func(ctx context.Context, ticker string) (float64, error) {
		candles, err := src.History(ctx, market.BaseTicker(ticker), m.Period, m.Interval)
		if err != nil {
			return 0, err
		}
		px := market.LastClose(candles)
		if px <= 0 {
			return 0, market.ErrNoData
		}
		return px, nil
	}
}

func buildNotifier(cfg *config.Config) notifier.TextNotifier {
	if cfg.Notify.Telegram.Enabled {
		return notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
	}
	return notifier.LogNotifier{}
}

func watchlistLoader(cfg config.BoostersConfig) engine.WatchlistLoader {
	path := strings.TrimSpace(cfg.WatchlistPath)
	if !cfg.Enabled || path == "" {
		return nil
	}
	maxAge := time.Duration(cfg.WatchlistMaxAgeH * float64(time.Hour))
	return func(now time.Time) (*booster.Watchlist, error) {
		return booster.LoadWatchlist(path, now, maxAge)
	}
}
