package booster

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartbot/internal/market"
	"smartbot/internal/strategy/momentum"
)

func TestEdgeMultiplier(t *testing.T) {
	cases := []struct {
		edge, want float64
	}{
		{100, 1.5},
		{25, 1.15},
		{45, 1.25},
		{10, 1.05},
		{0, 1},
		{-15, 0.8},
		{-14.9, 1},
	}
	for _, c := range cases {
		assert.InDelta(t, c.want, EdgeMultiplier(c.edge), 1e-12, "edge %v", c.edge)
	}
}

func TestParseWatchlist(t *testing.T) {
	now := time.Date(2025, 3, 4, 9, 0, 0, 0, market.Exchange())
	raw := []byte(`{"timestamp":"2025-03-03T20:15:30.123456","watchlist":[
		{"symbol":"AAPL","edge_score":12,"recommendation":"WATCH"},
		{"symbol":"NVDA","edge_score":5,"recommendation":"PRIORITY BUY"},
		{"symbol":"TSLA","edge_score":40}]}`)

	wl, err := ParseWatchlist(raw, now, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 3, wl.Len())
	e, ok := wl.Get("AAPL_US_EQ")
	require.True(t, ok)
	assert.Equal(t, 12.0, e.EdgeScore)

	order := wl.Resort([]string{"MSFT_US_EQ", "AAPL_US_EQ", "TSLA_US_EQ", "NVDA_US_EQ"})
	assert.Equal(t, []string{"NVDA_US_EQ", "TSLA_US_EQ", "AAPL_US_EQ", "MSFT_US_EQ"}, order)

	stale, err := ParseWatchlist(raw, now.Add(48*time.Hour), 24*time.Hour)
	require.NoError(t, err)
	assert.Nil(t, stale)
	var none *Watchlist
	assert.Equal(t, []string{"A", "B"}, none.Resort([]string{"A", "B"}))
}

func TestParseWatchlistRejectsBadShape(t *testing.T) {
	_, err := ParseWatchlist([]byte(`{"watchlist":[{"edge_score":3}]}`), time.Now(), time.Hour)
	assert.Error(t, err)
	_, err = ParseWatchlist([]byte(`{"watchlist":"nope"}`), time.Now(), time.Hour)
	assert.Error(t, err)
	_, err = ParseWatchlist([]byte(`{`), time.Now(), time.Hour)
	assert.Error(t, err)
}

func TestLoadWatchlistFile(t *testing.T) {
	wl, err := LoadWatchlist(filepath.Join(t.TempDir(), "missing.json"), time.Now(), time.Hour)
	require.NoError(t, err)
	assert.Nil(t, wl)

	path := filepath.Join(t.TempDir(), "overnight.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"watchlist":[{"symbol":"AMD","edge_score":30}]}`), 0o644))
	wl, err = LoadWatchlist(path, time.Now(), time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, wl.Len())

	st := &OvernightStage{List: wl}
	in := &Input{Ticker: "AMD_US_EQ", Signal: momentum.Signal{Action: momentum.ActionBuy}}
	mult, why, err := st.Adjust(context.Background(), in, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 1.175, mult, 1e-12)
	assert.Equal(t, "Night:+30", why)

	in.Signal.Action = momentum.ActionHold
	mult, _, _ = st.Adjust(context.Background(), in, 0.5)
	assert.Equal(t, 1.0, mult)
}
