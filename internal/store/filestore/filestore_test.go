package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartbot/internal/brain"
	"smartbot/internal/risk"
	"smartbot/internal/store"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, dir
}

func TestOpenHoldsLock(t *testing.T) {
	s, dir := openTemp(t)
	_, err := Open(dir)
	assert.ErrorIs(t, err, store.ErrLocked)

	require.NoError(t, s.Close())
	again, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestEmptyDirectoryDefaults(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	pos, err := s.LoadPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, pos)

	st, err := s.LoadRiskState(ctx)
	require.NoError(t, err)
	assert.Equal(t, risk.State{}, st)

	mem, err := s.LoadBrain(ctx)
	require.NoError(t, err)
	assert.Nil(t, mem)

	trades, err := s.ListTrades(ctx, store.TradeQuery{})
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestStateRoundTrip(t *testing.T) {
	s, dir := openTemp(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)

	positions := []risk.Position{{Ticker: "AAPL", Quantity: 1.5, EntryPrice: 100, StopLoss: 98, Status: risk.StatusOpen, EntryTime: at}}
	require.NoError(t, s.SavePositions(ctx, positions))
	got, err := s.LoadPositions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1.5, got[0].Quantity)
	assert.True(t, got[0].EntryTime.Equal(at))

	require.NoError(t, s.SaveRiskState(ctx, risk.State{ConsecutiveWins: 3, DailyPnL: 0.02, LastUpdate: at}))
	st, err := s.LoadRiskState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.ConsecutiveWins)

	mem := brain.NewMemory(at)
	mem.TotalTrades = 4
	require.NoError(t, s.SaveBrain(ctx, mem))
	loaded, err := s.LoadBrain(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 4, loaded.TotalTrades)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}

func TestCorruptFileIsAnError(t *testing.T) {
	s, dir := openTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, riskFile), []byte("{"), 0o644))
	_, err := s.LoadRiskState(context.Background())
	assert.Error(t, err)
}

func TestJournalSkipsTornLine(t *testing.T) {
	s, dir := openTemp(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)

	require.NoError(t, s.AppendTrade(ctx, store.Trade{Time: base, Ticker: "AAPL", Action: store.ActionBuy, Quantity: 1, Price: 100}))
	require.NoError(t, s.AppendTrade(ctx, store.Trade{Time: base.Add(time.Hour), Ticker: "AAPL", Action: store.ActionSell, Quantity: 1, Price: 102, PnLFrac: 0.02}))
	f, err := os.OpenFile(filepath.Join(dir, journalFile), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"ticker":"TS`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	trades, err := s.ListTrades(ctx, store.TradeQuery{})
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.NotEmpty(t, trades[0].ID)

	rets, err := s.ClosedReturns(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.02}, rets)
}

func TestOrderKeysExpire(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.RememberOrderKey(ctx, "old", "o-1", "AAPL", 1))
	now = now.Add(25 * time.Hour)
	require.NoError(t, s.RememberOrderKey(ctx, "new", "o-2", "MSFT", 2))

	_, ok, err := s.SeenOrderKey(ctx, "old", time.Time{})
	require.NoError(t, err)
	assert.False(t, ok)

	id, ok, err := s.SeenOrderKey(ctx, "new", now.Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "o-2", id)

	require.NoError(t, s.ForgetOrderKey(ctx, "new"))
	_, ok, err = s.SeenOrderKey(ctx, "new", now.Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
}
