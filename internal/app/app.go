package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"smartbot/internal/brain"
	"smartbot/internal/config"
	"smartbot/internal/engine"
	"smartbot/internal/logger"
	"smartbot/internal/metrics"
	"smartbot/internal/risk"
	"smartbot/internal/scheduler"
	"smartbot/internal/store"
	statushttp "smartbot/internal/transport/http/status"
)

// App 负责应用级编排：周期调度、收盘平仓与状态服务。
type App struct {
	cfg     *config.Config
	engine  *engine.Engine
	risk    *risk.Manager
	brain   *brain.Brain
	store   store.StateStore
	status  *statushttp.Server
	metrics *metrics.Registry
	watcher *config.Watcher
	dryRun  bool
	closers []func() error

	Summary *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(ctx context.Context, cfg *config.Config, opts ...AppBuilderOption) (*App, error) {
	return NewAppBuilder(cfg, opts...).Build(ctx)
}

// Run 启动调度循环与状态服务，直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.engine == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	a.subscribeConfig()

	group, ctx := errgroup.WithContext(ctx)

	if a.status != nil && a.cfg.App.HTTPAddr != "" {
		group.Go(func() error {
			if err := a.status.Start(ctx); err != nil {
				return fmt.Errorf("status http server error: %w", err)
			}
			return nil
		})
	}

	sc := a.cfg.Scheduler
	cycles := scheduler.NewAlignedScheduler(time.Duration(sc.IntervalMinutes)*time.Minute, seconds(sc.OffsetSeconds))
	cycles.RunImmediately = sc.RunImmediately
	cycles.Timeout = seconds(sc.CycleTimeoutSeconds)
	if sc.SessionOnly {
		cycles.Gate = scheduler.SessionGate
	}
	group.Go(func() error {
		cycles.Start(ctx, a.runCycle)
		return nil
	})

	if sc.EODEnabled {
		hour, minute, err := config.ParseClock(sc.EODTime)
		if err != nil {
			return err
		}
		eod := scheduler.NewDailyScheduler("eod", hour, minute)
		group.Go(func() error {
			eod.Start(ctx, a.runEOD)
			return nil
		})
	}

	return group.Wait()
}

func (a *App) runCycle(ctx context.Context) error {
	_, err := a.engine.RunCycle(ctx)
	return err
}

func (a *App) runEOD(ctx context.Context) error {
	res, err := a.engine.CloseEndOfDay(ctx)
	if err != nil {
		return err
	}
	logger.Infof("EOD 完成: sells=%d holds=%d", res.Count(engine.DecisionSell), res.Count(engine.DecisionHold))
	return nil
}

// subscribeConfig 把热更新后的配置推给引擎与风控；均在下一轮生效。
func (a *App) subscribeConfig() {
	if a.watcher == nil {
		return
	}
	a.watcher.Subscribe(func(cfg *config.Config) {
		ec := engineConfig(cfg)
		ec.DryRun = ec.DryRun || a.dryRun
		a.engine.SetConfig(ec)
		a.risk.SetConfig(riskConfig(cfg))
		logger.SetLevel(cfg.App.LogLevel)
	})
}

// RunOnce 执行单个交易周期。
func (a *App) RunOnce(ctx context.Context) (engine.CycleResult, error) {
	return a.engine.RunCycle(ctx)
}

// EOD 立即执行收盘平仓。
func (a *App) EOD(ctx context.Context) (engine.CycleResult, error) {
	return a.engine.CloseEndOfDay(ctx)
}

func (a *App) Insights() string {
	return a.engine.Insights()
}

// Seed 用交易日志回灌学习记忆。
func (a *App) Seed(ctx context.Context) (int, error) {
	return a.engine.SeedBrain(ctx)
}

// StatusHandler exposes the status API router, mainly for tests.
func (a *App) StatusHandler() http.Handler {
	if a.status == nil {
		return nil
	}
	return a.status.Handler()
}

// Close 释放存储、归档与实例锁，按创建的逆序执行。
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
