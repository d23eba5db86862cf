package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"smartbot/internal/market"
)

func series(n int, start, step float64) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		c := start + float64(i)*step
		out[i] = market.Candle{Open: c, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 1000}
	}
	return out
}

func TestAnalyzeUptrend(t *testing.T) {
	res := Analyze(series(30, 100, 1))
	assert.Equal(t, Bullish, res.Bias)
	assert.InDelta(t, 0.5, res.Confidence, 1e-9)
	assert.Greater(t, res.SlopePct, slopeThreshold)
	assert.Empty(t, res.Signals)
}

func TestAnalyzeDowntrend(t *testing.T) {
	res := Analyze(series(30, 130, -1))
	assert.Equal(t, Bearish, res.Bias)
	assert.Equal(t, "bearish", res.Bias.String())
}

func TestAnalyzeFlatCancelsOut(t *testing.T) {
	res := Analyze(series(30, 100, 0))
	assert.Equal(t, Neutral, res.Bias)
	assert.Zero(t, res.Confidence)
	// equal lows and highs read as both a double bottom and a double top
	assert.Len(t, res.Signals, 2)
}

func TestAnalyzeTooShort(t *testing.T) {
	assert.Equal(t, Result{}, Analyze(series(1, 100, 0)))
	assert.Equal(t, Result{}, Analyze(nil))
}

func TestDetectCompression(t *testing.T) {
	highs := make([]float64, 40)
	lows := make([]float64, 40)
	for i := range highs {
		width := 10.0
		if i >= 20 {
			width = 2
		}
		highs[i] = 100 + width/2
		lows[i] = 100 - width/2
	}
	_, ok := detectCompression(highs, lows)
	assert.True(t, ok)
	_, ok = detectCompression(highs[:30], lows[:30])
	assert.False(t, ok)
}
