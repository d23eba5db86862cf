package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartbot/internal/brain"
	"smartbot/internal/risk"
	"smartbot/internal/store"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	st, err := NewSqliteStore(filepath.Join(t.TempDir(), "state", "smartbot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestNewSqliteStoreRejectsEmptyPath(t *testing.T) {
	_, err := NewSqliteStore("  ")
	assert.Error(t, err)
}

func TestPositionsReplaceAll(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	entry := time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)

	first := []risk.Position{
		{Ticker: "AAPL", Quantity: 2.5, EntryPrice: 100, CurrentPrice: 101, ATR: 1, StopLoss: 98, ProfitTarget: 104,
			EntryTime: entry, Status: risk.StatusOpen, Score: 72, Factors: []string{"SMA+", "MACD+"}, RSI: 44, Regime: "trend"},
		{Ticker: "MSFT", Quantity: 1, EntryPrice: 400, Status: risk.StatusPartialTaken},
	}
	require.NoError(t, st.SavePositions(ctx, first))

	got, err := st.LoadPositions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "AAPL", got[0].Ticker)
	assert.Equal(t, 2.5, got[0].Quantity)
	assert.Equal(t, []string{"SMA+", "MACD+"}, got[0].Factors)
	assert.True(t, got[0].EntryTime.Equal(entry))
	assert.Equal(t, risk.StatusPartialTaken, got[1].Status)
	assert.True(t, got[1].EntryTime.IsZero())

	require.NoError(t, st.SavePositions(ctx, first[:1]))
	got, err = st.LoadPositions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.NoError(t, st.SavePositions(ctx, nil))
	got, err = st.LoadPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRiskStateUpsert(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	empty, err := st.LoadRiskState(ctx)
	require.NoError(t, err)
	assert.Equal(t, risk.State{}, empty)

	at := time.Date(2025, 3, 4, 18, 0, 0, 0, time.UTC)
	require.NoError(t, st.SaveRiskState(ctx, risk.State{ConsecutiveLosses: 2, DailyPnL: -0.03, LastUpdate: at}))
	require.NoError(t, st.SaveRiskState(ctx, risk.State{ConsecutiveWins: 1, DailyPnL: 0.01, LastUpdate: at}))

	got, err := st.LoadRiskState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ConsecutiveWins)
	assert.Equal(t, 0, got.ConsecutiveLosses)
	assert.InDelta(t, 0.01, got.DailyPnL, 1e-12)
	assert.True(t, got.LastUpdate.Equal(at))
}

func TestBrainRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	mem, err := st.LoadBrain(ctx)
	require.NoError(t, err)
	assert.Nil(t, mem)

	b := brain.New(st)
	require.NoError(t, b.Load(ctx))
	require.NoError(t, b.Learn(ctx, brain.Trade{Ticker: "NVDA", PnL: 12, PnLPct: 3, Score: 70, Factors: []string{"SMA+"}, Regime: "trend"}))

	loaded, err := st.LoadBrain(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 1, loaded.TotalTrades)
	assert.Equal(t, 1, loaded.Tickers["NVDA"].Wins)
	assert.Error(t, st.SaveBrain(ctx, nil))
}

func TestJournalOrderingAndReturns(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)

	trades := []store.Trade{
		{Time: base, Ticker: "AAPL", Action: store.ActionBuy, Quantity: 2, Price: 100, Score: 64, Factors: []string{"RSI:45*"}},
		{Time: base.Add(time.Hour), Ticker: "AAPL", Action: store.ActionPartial, Quantity: 1, Price: 105, PnLFrac: 0.05},
		{Time: base.Add(2 * time.Hour), Ticker: "AAPL", Action: store.ActionSell, Quantity: 1, Price: 103, PnLFrac: 0.03},
		{Time: base.Add(3 * time.Hour), Ticker: "TSLA", Action: store.ActionSell, Quantity: 1, Price: 90, PnLFrac: -0.1},
	}
	for _, tr := range trades {
		require.NoError(t, st.AppendTrade(ctx, tr))
	}
	assert.Error(t, st.AppendTrade(ctx, store.Trade{Ticker: "X"}))

	all, err := st.ListTrades(ctx, store.TradeQuery{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, store.ActionBuy, all[0].Action)
	assert.NotEmpty(t, all[0].ID)
	assert.Equal(t, 64, all[0].Score)
	assert.Equal(t, []string{"RSI:45*"}, all[0].Factors)

	aapl, err := st.ListTrades(ctx, store.TradeQuery{Ticker: "AAPL", Since: base.Add(30 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, aapl, 2)

	rets, err := st.ClosedReturns(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.03, -0.1}, rets)

	last, err := st.ClosedReturns(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{-0.1}, last)
}

func TestOrderKeysWindow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return now }

	_, ok, err := st.SeenOrderKey(ctx, "k1", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.RememberOrderKey(ctx, "k1", "ord-1", "AAPL", 5))
	id, ok, err := st.SeenOrderKey(ctx, "k1", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ord-1", id)

	_, ok, err = st.SeenOrderKey(ctx, "k1", now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := st.PruneOrderKeys(ctx, now.Add(time.Second))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Error(t, st.RememberOrderKey(ctx, "", "x", "AAPL", 1))

	require.NoError(t, st.RememberOrderKey(ctx, "k2", "ord-2", "MSFT", 1))
	require.NoError(t, st.ForgetOrderKey(ctx, "k2"))
	_, ok, err = st.SeenOrderKey(ctx, "k2", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, st.ForgetOrderKey(ctx, "missing"))
}
