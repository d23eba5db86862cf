package risk

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartbot/internal/market"
)

type memLedger struct {
	positions []Position
	state     State
	saves     int
}

func (l *memLedger) LoadPositions(context.Context) ([]Position, error) { return l.positions, nil }
func (l *memLedger) LoadRiskState(context.Context) (State, error)      { return l.state, nil }
func (l *memLedger) SavePositions(_ context.Context, p []Position) error {
	l.positions = p
	l.saves++
	return nil
}
func (l *memLedger) SaveRiskState(_ context.Context, s State) error {
	l.state = s
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(t *testing.T, ledger *memLedger) (*Manager, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2025, 3, 4, 10, 0, 0, 0, market.Exchange())}
	m := NewManager(DefaultConfig(), ledger, WithClock(c.now))
	require.NoError(t, m.Load(context.Background()))
	return m, c
}

func TestDynamicRisk(t *testing.T) {
	cfg := DefaultConfig()
	cases := []struct {
		name  string
		state State
		want  float64
	}{
		{"base", State{}, 0.12},
		{"two losses", State{ConsecutiveLosses: 2}, 0.09},
		{"three losses", State{ConsecutiveLosses: 3}, 0.072},
		{"two wins", State{ConsecutiveWins: 2}, 0.138},
		{"three wins", State{ConsecutiveWins: 3}, 0.156},
		{"three wins with profit", State{ConsecutiveWins: 3, DailyPnL: 0.5}, 0.156 * 1.025},
		{"reinvest below cap", State{ConsecutiveWins: 3, DailyPnL: 10}, 0.156 * 1.5},
		{"reinvest cap", State{ConsecutiveWins: 3, DailyPnL: 20}, 0.30},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, DynamicRisk(tc.state, cfg), 1e-9)
		})
	}
}

func TestCircuitBreakerZeroForAllStreaks(t *testing.T) {
	cfg := DefaultConfig()
	for wins := 0; wins < 5; wins++ {
		for losses := 0; losses < 5; losses++ {
			s := State{ConsecutiveWins: wins, ConsecutiveLosses: losses, DailyPnL: -0.06}
			assert.Zero(t, DynamicRisk(s, cfg))
			s.DailyPnL = -0.05
			assert.Zero(t, DynamicRisk(s, cfg))
		}
	}
}

func TestScenarioBCircuitBreakerFromLedger(t *testing.T) {
	now := time.Date(2025, 3, 4, 10, 0, 0, 0, market.Exchange())
	ledger := &memLedger{state: State{DailyPnL: -0.06, ConsecutiveWins: 4, LastUpdate: now.Add(-time.Hour)}}
	m := NewManager(DefaultConfig(), ledger, WithClock(func() time.Time { return now }))
	require.NoError(t, m.Load(context.Background()))
	assert.Zero(t, m.DynamicRisk())
	assert.Zero(t, DefaultConfig().AdjustedRisk(m.DynamicRisk(), MarketRegime{Multiplier: 1.2}))
}

func TestDailyPnLResetsOnNewDay(t *testing.T) {
	ledger := &memLedger{}
	m, c := newTestManager(t, ledger)
	require.NoError(t, m.RecordResult(context.Background(), -0.03))
	require.NoError(t, m.RecordResult(context.Background(), -0.03))
	assert.Zero(t, m.DynamicRisk())
	c.advance(24 * time.Hour)
	assert.InDelta(t, 0.12*0.75, m.DynamicRisk(), 1e-9, "streak survives the reset")
	assert.Zero(t, m.State().DailyPnL)
}

func TestKellyClamp(t *testing.T) {
	assert.InDelta(t, 0.125, Kelly(0.55, 0.015, 0.01, 0.05, 0.45), 1e-9)
	assert.Equal(t, 0.15, Kelly(0.9, 0, 0.01, 0.05, 0.45))
	assert.Equal(t, 0.15, Kelly(0.9, 0.02, 0, 0.05, 0.45))
	extremes := [][3]float64{
		{1, 1e9, 1e-9}, {0, 1e-9, 1e9}, {0.5, 1, 1}, {1, 1, 1e-12}, {-3, 5, 2}, {7, 5, 2},
	}
	for _, e := range extremes {
		k := Kelly(e[0], e[1], e[2], 0.05, 0.45)
		assert.GreaterOrEqual(t, k, 0.025)
		assert.LessOrEqual(t, k, 0.225)
	}
}

func TestHistoricalStats(t *testing.T) {
	assert.Equal(t, Stats{WinRate: 0.55, AvgWin: 0.015, AvgLoss: 0.01, Trades: 3}, HistoricalStats([]float64{1, 2, 3}))
	s := HistoricalStats([]float64{0.02, -0.01, 0.03, 0, -0.02})
	assert.InDelta(t, 0.4, s.WinRate, 1e-9)
	assert.InDelta(t, 0.025, s.AvgWin, 1e-9)
	assert.InDelta(t, 0.01, s.AvgLoss, 1e-9)
	assert.Equal(t, 5, s.Trades)
}

func TestTrailingStopNeverLoosensOnRisingPrices(t *testing.T) {
	m, _ := newTestManager(t, &memLedger{})
	_, err := m.Add(context.Background(), Entry{Ticker: "AAPL", Quantity: 1, Price: 100, ATR: 1})
	require.NoError(t, err)
	last := 0.0
	for price := 100.0; price <= 110; price += 0.25 {
		p, ok := m.UpdatePrice("AAPL", price)
		require.True(t, ok)
		assert.GreaterOrEqual(t, p.StopLoss, last, "price %.2f", price)
		last = p.StopLoss
	}
	assert.InDelta(t, 100.5, last, 1e-9)
}

func TestTrailingStopHoldsWhileInProfit(t *testing.T) {
	m, _ := newTestManager(t, &memLedger{})
	_, err := m.Add(context.Background(), Entry{Ticker: "NVDA", Quantity: 1, Price: 100, ATR: 1})
	require.NoError(t, err)

	p, _ := m.UpdatePrice("NVDA", 101.5)
	assert.InDelta(t, 100.5, p.StopLoss, 1e-9)

	p, _ = m.UpdatePrice("NVDA", 100.6)
	assert.InDelta(t, 100.5, p.StopLoss, 1e-9, "+0.6% keeps the ratcheted stop")
	assert.Empty(t, m.CheckExitSignals())

	p, _ = m.UpdatePrice("NVDA", 100.2)
	assert.InDelta(t, 100.5, p.StopLoss, 1e-9)
	exits := m.CheckExitSignals()
	require.Len(t, exits, 1)
	assert.Equal(t, RuleStopLoss, exits[0].Rule)
}

func TestScenarioCQuickThenBigProfit(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, &memLedger{})
	_, err := m.Add(ctx, Entry{Ticker: "TSLA", Quantity: 10, Price: 100, ATR: 1, ProfitTarget: 130})
	require.NoError(t, err)

	m.UpdatePrice("TSLA", 105)
	exits := MergeExits(m.IntradayExits(), m.StaleExits(), m.CheckExitSignals())
	require.Len(t, exits, 1)
	assert.Equal(t, RuleQuickProfit, exits[0].Rule)
	assert.Equal(t, ExitPartial, exits[0].Kind)
	assert.Equal(t, 0.5, exits[0].Portion)

	p, err := m.TakePartial(ctx, "TSLA", 5)
	require.NoError(t, err)
	assert.Equal(t, StatusPartialTaken, p.Status)
	assert.Equal(t, 5.0, p.Quantity)

	m.UpdatePrice("TSLA", 106)
	assert.Empty(t, m.IntradayExits(), "quick profit fires once")

	m.UpdatePrice("TSLA", 116)
	exits = MergeExits(m.IntradayExits(), m.StaleExits(), m.CheckExitSignals())
	require.Len(t, exits, 1)
	assert.Equal(t, RuleBigProfit, exits[0].Rule)
	assert.Equal(t, ExitFull, exits[0].Kind)
}

func TestScenarioDStopBoundary(t *testing.T) {
	m, _ := newTestManager(t, &memLedger{})
	_, err := m.Add(context.Background(), Entry{Ticker: "SOFI", Quantity: 4, Price: 50, ATR: 1})
	require.NoError(t, err)

	p, _ := m.UpdatePrice("SOFI", 50.6)
	assert.InDelta(t, 50.5, p.StopLoss, 1e-9)

	p, _ = m.UpdatePrice("SOFI", 48.5)
	assert.InDelta(t, 48.0, p.StopLoss, 1e-9)
	assert.Empty(t, m.IntradayExits(), "-3% is above the deep loss threshold")
	assert.Empty(t, m.CheckExitSignals())

	m.UpdatePrice("SOFI", 48.0)
	exits := m.CheckExitSignals()
	require.Len(t, exits, 1)
	assert.Equal(t, RuleStopLoss, exits[0].Rule)
}

func TestExitSignalPrecedence(t *testing.T) {
	m, _ := newTestManager(t, &memLedger{})
	ctx := context.Background()
	_, err := m.Add(ctx, Entry{Ticker: "AMD", Quantity: 2, Price: 100, ATR: 1, ProfitTarget: 101.5})
	require.NoError(t, err)

	m.UpdatePrice("AMD", 101.6)
	exits := m.CheckExitSignals()
	require.Len(t, exits, 1)
	assert.Equal(t, RulePartialTarget, exits[0].Rule, "partial wins over full target")
	assert.Equal(t, 0.7, exits[0].Portion)

	_, err = m.TakePartial(ctx, "AMD", 1.4)
	require.NoError(t, err)
	exits = m.CheckExitSignals()
	require.Len(t, exits, 1)
	assert.Equal(t, RuleFullTarget, exits[0].Rule)
}

func TestIntradayTrailingAndDeepLoss(t *testing.T) {
	m, _ := newTestManager(t, &memLedger{})
	ctx := context.Background()
	_, err := m.Add(ctx, Entry{Ticker: "PLTR", Quantity: 1, Price: 100, ATR: 1})
	require.NoError(t, err)
	_, err = m.Add(ctx, Entry{Ticker: "RIVN", Quantity: 1, Price: 100, ATR: 5})
	require.NoError(t, err)

	m.UpdatePrice("PLTR", 104)
	m.UpdatePrice("PLTR", 102.4)
	m.UpdatePrice("RIVN", 91.9)

	exits := m.IntradayExits()
	require.Len(t, exits, 2)
	assert.Equal(t, "PLTR", exits[0].Ticker)
	assert.Equal(t, RuleTrailingPeak, exits[0].Rule)
	assert.Equal(t, "RIVN", exits[1].Ticker)
	assert.Equal(t, RuleDeepLoss, exits[1].Rule)

	m.UpdatePrice("RIVN", 89.5)
	exits = m.IntradayExits()
	require.Len(t, exits, 2)
	assert.Equal(t, RuleStopLoss, exits[1].Rule, "stop beats deep loss")
}

func TestStaleExits(t *testing.T) {
	m, c := newTestManager(t, &memLedger{})
	ctx := context.Background()
	_, err := m.Add(ctx, Entry{Ticker: "ZM", Quantity: 1, Price: 100, ATR: 1})
	require.NoError(t, err)
	_, err = m.Add(ctx, Entry{Ticker: "SNAP", Quantity: 1, Price: 10, ATR: 0.1})
	require.NoError(t, err)
	m.UpdatePrice("ZM", 100.1)
	m.UpdatePrice("SNAP", 10.1)

	c.advance(5 * time.Hour)
	assert.Empty(t, m.StaleExits())
	c.advance(time.Hour)
	exits := m.StaleExits()
	require.Len(t, exits, 1)
	assert.Equal(t, "ZM", exits[0].Ticker)
	assert.Equal(t, RuleRecycle, exits[0].Rule)
}

func TestPositionLimits(t *testing.T) {
	m, _ := newTestManager(t, &memLedger{})
	ctx := context.Background()
	for _, tk := range []string{"AAPL_US_EQ", "MSFT_US_EQ"} {
		_, err := m.Add(ctx, Entry{Ticker: tk, Quantity: 1, Price: 10, ATR: 0.1})
		require.NoError(t, err)
	}
	assert.True(t, errors.Is(m.CheckPositionLimits("NVDA_US_EQ"), ErrSectorLimit))
	assert.NoError(t, m.CheckPositionLimits("TSLA_US_EQ"))
	assert.NoError(t, m.CheckPositionLimits("XYZ"))

	for _, tk := range []string{"TSLA", "COIN", "MARA", "RBLX", "PLTR"} {
		_, err := m.Add(ctx, Entry{Ticker: tk, Quantity: 1, Price: 10, ATR: 0.1})
		require.NoError(t, err)
	}
	assert.True(t, errors.Is(m.CheckPositionLimits("XYZ"), ErrPositionLimit))
}

func TestCloseUpdatesStateAndLedger(t *testing.T) {
	ledger := &memLedger{}
	m, c := newTestManager(t, ledger)
	ctx := context.Background()
	_, err := m.Add(ctx, Entry{Ticker: "HOOD", Quantity: 3, Price: 20, ATR: 0.5, Score: 62, Factors: []string{"SMA+"}})
	require.NoError(t, err)
	c.advance(90 * time.Minute)

	closed, err := m.Close(ctx, "HOOD", 21, RuleFullTarget)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, closed.PnLFrac, 1e-9)
	assert.InDelta(t, 3, closed.PnL, 1e-9)
	assert.InDelta(t, 1.5, closed.HoldHours, 1e-9)
	assert.Equal(t, StatusClosed, closed.Status)
	assert.Equal(t, 62, closed.Score)

	assert.Empty(t, ledger.positions)
	assert.Equal(t, 1, ledger.state.ConsecutiveWins)
	assert.InDelta(t, 0.05, ledger.state.DailyPnL, 1e-9)

	_, err = m.Close(ctx, "HOOD", 21, "again")
	assert.ErrorIs(t, err, ErrNoPosition)
}

func TestLoadPurgesInvalidPositions(t *testing.T) {
	ledger := &memLedger{positions: []Position{
		{Ticker: "A", Quantity: 1, Status: StatusOpen},
		{Ticker: "B", Quantity: 0, Status: StatusOpen},
		{Ticker: "C", Quantity: 2, Status: StatusClosed},
		{Ticker: "D", Quantity: 1, Status: StatusPartialTaken},
	}}
	m, _ := newTestManager(t, ledger)
	got := m.Positions()
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Ticker)
	assert.Equal(t, "D", got[1].Ticker)
}

func TestRegimeDetector(t *testing.T) {
	spy := make([]market.Candle, 30)
	for i := range spy {
		spy[i] = market.Candle{Close: 100 + float64(i)}
	}
	cases := []struct {
		name string
		vix  float64
		spy  []market.Candle
		want string
		mult float64
	}{
		{"volatile", 35, spy, "VOLATILE", 0.5},
		{"choppy", 25, spy, "CHOPPY", 0.75},
		{"trending", 15, spy, "TRENDING", 1.2},
		{"short benchmark", 15, spy[:10], "NORMAL", 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := market.SourceFunc(func(_ context.Context, ticker, _, _ string) ([]market.Candle, error) {
				if ticker == "^VIX" {
					return []market.Candle{{Close: tc.vix}}, nil
				}
				return tc.spy, nil
			})
			r := NewRegimeDetector(src).Detect(context.Background())
			assert.Equal(t, tc.want, r.Name)
			assert.Equal(t, tc.mult, r.Multiplier)
		})
	}

	failing := market.SourceFunc(func(context.Context, string, string, string) ([]market.Candle, error) {
		return nil, errors.New("offline")
	})
	assert.Equal(t, NormalRegime, NewRegimeDetector(failing).Detect(context.Background()))
}

func TestProfitTargetAndAdjustedRisk(t *testing.T) {
	cfg := DefaultConfig()
	assert.InDelta(t, 103, cfg.ProfitTarget(100, 1, RiskReward("trend")), 1e-9)
	assert.InDelta(t, 101.4, cfg.ProfitTarget(100, 1, RiskReward("volatile")), 1e-9)
	assert.InDelta(t, 102, cfg.ProfitTarget(100, 1, RiskReward("other")), 1e-9)
	assert.InDelta(t, 0.1, cfg.AdjustedRisk(0.2, MarketRegime{Multiplier: 0.5}), 1e-9)
	assert.InDelta(t, 0.01, cfg.AdjustedRisk(0.001, NormalRegime), 1e-9)
	assert.InDelta(t, 0.30, cfg.AdjustedRisk(0.28, MarketRegime{Multiplier: 1.2}), 1e-9)
}

func TestLoadSectors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sectors.yaml")
	require.NoError(t, os.WriteFile(path, []byte("MEME:\n  - GME\n  - AMC\nTECH: [AAPL]\n"), 0o644))
	s, err := LoadSectors(path)
	require.NoError(t, err)
	sector, ok := s.Of("GME_US_EQ")
	assert.True(t, ok)
	assert.Equal(t, "MEME", sector)

	_, err = LoadSectors(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
