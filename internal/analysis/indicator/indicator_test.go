package indicator

import (
	"math"
	"testing"

	"smartbot/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rising(n int) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		c := 100 + float64(i)
		out[i] = market.Candle{Open: c - 0.5, High: c + 1, Low: c - 1, Close: c, Volume: 1000}
	}
	return out
}

func TestComputeSMAAndMasking(t *testing.T) {
	f, err := Compute(rising(40), DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, 40, f.Len())

	assert.True(t, math.IsNaN(f.SMAShort[8]))
	assert.InDelta(t, 104.5, f.SMAShort[9], 1e-9)
	assert.True(t, math.IsNaN(f.SMALong[28]))
	assert.InDelta(t, 114.5, f.SMALong[29], 1e-9)

	last := f.At(-1)
	assert.Greater(t, last.SMAShort, last.SMALong)
}

func TestRSIOnMonotoneSeries(t *testing.T) {
	f, err := Compute(rising(30), DefaultSettings())
	require.NoError(t, err)
	assert.True(t, math.IsNaN(f.RSI[13]))
	assert.Equal(t, 100.0, f.RSI[14])

	flat := make([]market.Candle, 30)
	for i := range flat {
		flat[i] = market.Candle{High: 10, Low: 10, Close: 10, Volume: 1}
	}
	f, err = Compute(flat, DefaultSettings())
	require.NoError(t, err)
	assert.False(t, Valid(f.At(-1).RSI))
	assert.Equal(t, 50.0, Or(f.At(-1).RSI, 50))
}

func TestATRAndVWAP(t *testing.T) {
	f, err := Compute(rising(20), DefaultSettings())
	require.NoError(t, err)
	// true range is 2 on every bar
	assert.InDelta(t, 2.0, f.ATR[13], 1e-9)
	assert.True(t, math.IsNaN(f.ATR[12]))
	// equal volumes: vwap is the mean typical price so far
	assert.InDelta(t, 100.0, f.VWAP[0], 1e-9)
	assert.InDelta(t, 109.5, f.VWAP[19], 1e-9)
	assert.InDelta(t, 1000.0, f.At(-1).VolumeMean, 1e-9)
}

func TestMACDWarmup(t *testing.T) {
	f, err := Compute(rising(60), DefaultSettings())
	require.NoError(t, err)
	assert.True(t, math.IsNaN(f.MACDHist[32]))
	assert.True(t, Valid(f.MACDHist[59]))
}

func TestComputeEmpty(t *testing.T) {
	_, err := Compute(nil, Settings{})
	assert.Error(t, err)
}

func TestReturnsStd(t *testing.T) {
	closes := []float64{100, 101, 100, 101, 100, 101}
	std := ReturnsStd(closes, 3)
	require.Len(t, std, 5)
	assert.True(t, math.IsNaN(std[1]))
	assert.Greater(t, std[4], 0.0)
}
