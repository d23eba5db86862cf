package app

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartbot/internal/config"
	"smartbot/internal/gateway/notifier"
	"smartbot/internal/market"
	"smartbot/internal/store"
)

func paperConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(writePaperConfig(t, t.TempDir(), 0.40))
	require.NoError(t, err)
	return cfg
}

func writePaperConfig(t *testing.T, dir string, threshold float64) string {
	t.Helper()
	raw := `
broker:
  mode: paper
  paper_cash: 5000
store:
  driver: file
  dir: ` + filepath.Join(dir, "state") + `
trading:
  universe: [AAPL, MSFT]
  ticker_delay_ms: 1
  confidence_threshold: ` + strconv.FormatFloat(threshold, 'f', 2, 64) + `
boosters:
  enabled: false
app:
  http_addr: "127.0.0.1:0"
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))
	return path
}

var noData = market.SourceFunc(func(context.Context, string, string, string) ([]market.Candle, error) {
	return nil, market.ErrNoData
})

func fixedClock() time.Time {
	return time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
}

func buildApp(t *testing.T, cfg *config.Config, opts ...AppBuilderOption) *App {
	t.Helper()
	opts = append([]AppBuilderOption{
		WithMarketSource(noData),
		WithNotifier(notifier.LogNotifier{}),
		WithClock(fixedClock),
	}, opts...)
	a, err := NewApp(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestRunOnceWithoutMarketDataHolds(t *testing.T) {
	a := buildApp(t, paperConfig(t))

	res, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5000.0, res.Cash.Free)
	assert.False(t, res.CircuitBreaker)
	assert.Zero(t, res.Count("buy"))

	rec := httptest.NewRecorder()
	a.StatusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cycles/last", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), res.ID)
}

func TestBuildHoldsSingleInstanceLock(t *testing.T) {
	cfg := paperConfig(t)
	first := buildApp(t, cfg)

	_, err := NewApp(context.Background(), cfg, WithMarketSource(noData), WithClock(fixedClock))
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrLocked))

	require.NoError(t, first.Close())
	second, err := NewApp(context.Background(), cfg, WithMarketSource(noData), WithClock(fixedClock))
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestWithoutLockAllowsReaders(t *testing.T) {
	cfg := paperConfig(t)
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = filepath.Join(t.TempDir(), "smartbot.db")
	buildApp(t, cfg)

	_, err := NewApp(context.Background(), cfg, WithMarketSource(noData))
	require.ErrorIs(t, err, store.ErrLocked)

	reader := buildApp(t, cfg, WithoutLock())
	assert.Contains(t, reader.Insights(), "0 trades learned")
}

func TestSeedOnEmptyJournal(t *testing.T) {
	a := buildApp(t, paperConfig(t))
	n, err := a.Seed(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEODWithEmptyPortfolio(t *testing.T) {
	a := buildApp(t, paperConfig(t))
	res, err := a.EOD(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Decisions)
}

func TestEngineConfigConversion(t *testing.T) {
	cfg := paperConfig(t)
	cfg.Trading.TickerDelayMs = 250
	cfg.Trading.RateLimitPauseSec = 7
	cfg.Broker.FillTimeoutSec = 45

	ec := engineConfig(cfg)
	assert.Equal(t, []string{"AAPL", "MSFT"}, ec.Universe)
	assert.Equal(t, 250*time.Millisecond, ec.TickerDelay)
	assert.Equal(t, 7*time.Second, ec.RateLimitPause)
	assert.Equal(t, 45*time.Second, ec.Poll.Timeout)
	assert.Equal(t, cfg.Broker.MaxQuantity, ec.MaxQuantity)
	assert.True(t, ec.WaitForFill)

	cfg.Exits.StaleAfterHours = 1.5
	rc := riskConfig(cfg)
	assert.Equal(t, 90*time.Minute, rc.StaleAfter)
	assert.Equal(t, cfg.Exits.DeepLossPct, rc.DeepLossPct)
	assert.Equal(t, cfg.Risk.KellyMax, rc.KellyMax)
}

func TestLockPath(t *testing.T) {
	assert.Empty(t, lockPath(config.StoreConfig{Driver: "file", Dir: "data/state"}))
	assert.Equal(t, "data/smartbot.db.lock", lockPath(config.StoreConfig{Driver: "sqlite", Path: "data/smartbot.db"}))
}

func TestStartupSummary(t *testing.T) {
	a := buildApp(t, paperConfig(t))
	var buf bytes.Buffer
	_, err := a.Summary.WriteTo(&buf)
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "AAPL, MSFT")
	assert.Contains(t, out, "paper")
	assert.Contains(t, out, "15:50")
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := paperConfig(t)
	cfg.Scheduler.EODEnabled = false
	a := buildApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConfigReloadReachesEngineAndKeepsDryRun(t *testing.T) {
	dir := t.TempDir()
	path := writePaperConfig(t, dir, 0.40)
	watcher, err := config.Watch(path)
	require.NoError(t, err)

	a := buildApp(t, watcher.Current(), WithConfigWatcher(watcher), WithDryRun())
	a.subscribeConfig()
	assert.True(t, a.engine.Config().DryRun)

	writePaperConfig(t, dir, 0.55)
	assert.Eventually(t, func() bool {
		return a.engine.Config().ConfidenceThreshold == 0.55
	}, 5*time.Second, 20*time.Millisecond)
	assert.True(t, a.engine.Config().DryRun)
}
