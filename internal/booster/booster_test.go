package booster

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartbot/internal/analysis/indicator"
	"smartbot/internal/market"
	"smartbot/internal/strategy/momentum"
)

func candlesFrom(closes []float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{OpenTime: int64(i) * 60_000, Open: c, High: c, Low: c, Close: c, Volume: 1000}
	}
	return out
}

func linear(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

type fakeSource map[string][]market.Candle

func (f fakeSource) History(_ context.Context, ticker, period, interval string) ([]market.Candle, error) {
	c, ok := f[ticker+"|"+interval]
	if !ok {
		return nil, market.ErrNoData
	}
	return c, nil
}

type fixedSignals map[string]struct {
	dir  Direction
	conf float64
}

func (f fixedSignals) Signal(_ context.Context, kind, _ string) (Direction, float64, error) {
	s, ok := f[kind]
	if !ok {
		return Hold, 0, errors.New("down")
	}
	return s.dir, s.conf, nil
}

func buyInput() *Input {
	return &Input{Ticker: "AAPL", Signal: momentum.Signal{Ticker: "AAPL", Action: momentum.ActionBuy}}
}

func TestPipelineComposesAndIsolatesErrors(t *testing.T) {
	boom := StageFunc{ID: "boom", Fn: func(context.Context, *Input, float64) (float64, string, error) {
		return 3, "", errors.New("down")
	}}
	double := StageFunc{ID: "double", Fn: func(context.Context, *Input, float64) (float64, string, error) {
		return 2, "x2", nil
	}}
	nan := StageFunc{ID: "nan", Fn: func(context.Context, *Input, float64) (float64, string, error) {
		return math.NaN(), "", nil
	}}
	res := NewPipeline(boom, double, nan, Cap(1)).Run(context.Background(), buyInput(), 0.7)

	assert.InDelta(t, 1.0, res.Confidence, 1e-12)
	require.Len(t, res.Adjustments, 4)
	assert.Equal(t, 1.0, res.Adjustments[0].Multiplier)
	assert.Equal(t, "down", res.Adjustments[0].Err)
	assert.NotEmpty(t, res.Adjustments[2].Err)
	assert.InDelta(t, 1/1.4, res.Adjustments[3].Multiplier, 1e-12)
	assert.Equal(t, []string{"x2"}, res.Boosts())
	assert.Contains(t, res.Summary(), "double=2.00")

	var nilPipe *Pipeline
	assert.Equal(t, 0.5, nilPipe.Run(context.Background(), buyInput(), 0.5).Confidence)
}

func TestClassifyRegime(t *testing.T) {
	assert.Equal(t, RegimeNormal, ClassifyRegime(linear(54, 100, 1)).Regime)

	// steady climb: flat volatility, wide SMA gap
	up := ClassifyRegime(linear(80, 100, 1))
	assert.Equal(t, RegimeTrend, up.Regime)
	assert.Greater(t, up.TrendStrength, 0.02)

	// calm oscillation then a violent last bar
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 + 0.1*float64(i%2)
	}
	closes[79] = 120
	assert.Equal(t, RegimeVolatile, ClassifyRegime(closes).Regime)
}

func TestRegimeAndAlignmentStages(t *testing.T) {
	src := fakeSource{"AAPL|1h": candlesFrom(linear(80, 100, 1))}
	in := buyInput()
	mult, why, err := NewRegimeStage(src).Adjust(context.Background(), in, 0.6)
	require.NoError(t, err)
	assert.Equal(t, 1.0, mult)
	assert.Contains(t, why, "trend")
	assert.Equal(t, RegimeTrend, in.Regime)

	mult, _, _ = AlignmentStage{}.Adjust(context.Background(), in, 0.6)
	assert.Equal(t, 1.10, mult)
	in.Regime = RegimeVolatile
	mult, _, _ = AlignmentStage{}.Adjust(context.Background(), in, 0.6)
	assert.Equal(t, 0.80, mult)
	in.Signal.Action = momentum.ActionSell
	mult, _, _ = AlignmentStage{}.Adjust(context.Background(), in, 0.6)
	assert.Equal(t, 1.0, mult)

	missing := &Input{Ticker: "MSFT"}
	_, _, err = NewRegimeStage(src).Adjust(context.Background(), missing, 0.6)
	assert.Error(t, err)
	assert.Equal(t, RegimeNormal, missing.Regime)
}

func TestVolatilityRegime(t *testing.T) {
	_, err := VolatilityRegime(linear(60, 100, 1), 60)
	assert.Error(t, err)

	// swings widen over time: the latest window is the most volatile
	closes := make([]float64, 130)
	for i := range closes {
		closes[i] = 100 + (0.1+0.01*float64(i))*float64(i%2)
	}
	info, err := VolatilityRegime(closes, 60)
	require.NoError(t, err)
	assert.Equal(t, "high", info.Regime)
	assert.Equal(t, 0.85, info.Multiplier)

	// swings narrow over time: the latest window is the calmest
	calm := make([]float64, 130)
	for i := range calm {
		calm[i] = 100 + (1.4-0.01*float64(i))*float64(i%2)
	}
	info, err = VolatilityRegime(calm, 60)
	require.NoError(t, err)
	assert.Equal(t, "low", info.Regime)
	assert.Equal(t, 1.05, info.Multiplier)

	frame, err := indicator.Compute(candlesFrom(closes), indicator.Settings{})
	require.NoError(t, err)
	in := buyInput()
	in.Frame = frame
	mult, why, err := VolatilityStage{}.Adjust(context.Background(), in, 0.6)
	require.NoError(t, err)
	assert.Equal(t, 0.85, mult)
	assert.Contains(t, why, "high")
}

func TestTrendSignal(t *testing.T) {
	_, ok := TrendSignal(linear(19, 1, 1))
	assert.False(t, ok)
	s, ok := TrendSignal(linear(30, 1, 1))
	assert.True(t, ok)
	assert.Equal(t, 1, s)
	s, _ = TrendSignal(linear(30, 100, -1))
	assert.Equal(t, -1, s)
	flat := linear(30, 5, 0)
	s, _ = TrendSignal(flat)
	assert.Equal(t, 0, s)
}

func TestMTFStage(t *testing.T) {
	up := candlesFrom(linear(40, 10, 1))
	down := candlesFrom(linear(40, 100, -1))
	bull := fakeSource{"AAPL|5m": up, "AAPL|15m": up, "AAPL|1h": up, "AAPL|1d": up}
	mult, why, err := NewMTFStage(bull).Adjust(context.Background(), buyInput(), 0.6)
	require.NoError(t, err)
	assert.Equal(t, 1.2, mult)
	assert.Equal(t, "MTF:1.00", why)

	mixed := fakeSource{"AAPL|5m": up, "AAPL|15m": down, "AAPL|1h": up, "AAPL|1d": down}
	mult, _, err = NewMTFStage(mixed).Adjust(context.Background(), buyInput(), 0.6)
	require.NoError(t, err)
	assert.Equal(t, 0.8, mult)

	_, _, err = NewMTFStage(fakeSource{}).Adjust(context.Background(), buyInput(), 0.6)
	assert.Error(t, err)
}

func TestMoodStage(t *testing.T) {
	src := fakeSource{
		"^GSPC|1d": candlesFrom([]float64{100, 95, 90}),
		"^VIX|1d":  candlesFrom([]float64{20, 25, 24}),
	}
	st := NewMoodStage(src)
	mult, why, err := st.Adjust(context.Background(), buyInput(), 0.6)
	require.NoError(t, err)
	assert.Equal(t, 0.7, mult)
	assert.Contains(t, why, "bearish")

	st.Source = fakeSource{"^GSPC|1d": candlesFrom([]float64{100, 101})}
	mult, _, _ = st.Adjust(context.Background(), buyInput(), 0.6)
	assert.Equal(t, 0.7, mult, "read is cached until Reset")
	st.Reset()
	mult, _, err = st.Adjust(context.Background(), buyInput(), 0.6)
	require.NoError(t, err)
	assert.Equal(t, 1.0, mult)
}

func TestRemoteStages(t *testing.T) {
	src := fixedSignals{
		"pattern":   {Buy, 0.7},
		"sentiment": {Sell, 0.5},
		"ensemble":  {Sell, 0.9},
	}
	in := buyInput()
	mult, _, err := PatternStage{Source: src}.Adjust(context.Background(), in, 0.6)
	require.NoError(t, err)
	assert.Equal(t, 1.25, mult)

	mult, _, err = SentimentStage{Source: src}.Adjust(context.Background(), in, 0.6)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, mult, 1e-12)

	// ensemble needs enough bars
	mult, _, err = EnsembleStage{Source: src}.Adjust(context.Background(), in, 0.6)
	require.NoError(t, err)
	assert.Equal(t, 1.0, mult)

	frame, err := indicator.Compute(candlesFrom(linear(60, 100, 0.1)), indicator.Settings{})
	require.NoError(t, err)
	in.Frame = frame
	mult, _, err = EnsembleStage{Source: src}.Adjust(context.Background(), in, 0.6)
	require.NoError(t, err)
	assert.Equal(t, 0.7, mult)

	agree := fixedSignals{"ensemble": {Buy, 0.9}, "pattern": {Sell, 0.9}}
	mult, _, err = EnsembleStage{Source: agree}.Adjust(context.Background(), in, 0.9)
	require.NoError(t, err)
	assert.InDelta(t, 1/0.9, mult, 1e-12)
	mult, _, _ = PatternStage{Source: agree}.Adjust(context.Background(), in, 0.9)
	assert.Equal(t, 0.75, mult)

	_, _, err = PatternStage{Source: fixedSignals{}}.Adjust(context.Background(), in, 0.9)
	assert.Error(t, err)
}

func TestRemoteSignalsHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pattern":
			assert.Equal(t, "AAPL", r.URL.Query().Get("ticker"))
			_, _ = w.Write([]byte(`{"direction":"bullish","confidence":0.8}`))
		case "/ensemble":
			_, _ = w.Write([]byte(`{"signal":-1,"confidence":3}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	r := NewRemoteSignals(srv.URL+"/", time.Second)
	dir, conf, err := r.Signal(context.Background(), "pattern", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, Buy, dir)
	assert.Equal(t, 0.8, conf)

	dir, conf, err = r.Signal(context.Background(), "ensemble", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, Sell, dir)
	assert.Equal(t, 1.0, conf)

	_, _, err = r.Signal(context.Background(), "sentiment", "AAPL")
	assert.Error(t, err)

	_, _, err = ParseSignal([]byte(`{"confidence":1}`))
	assert.Error(t, err)
}

func TestChartPatternStage(t *testing.T) {
	buy := momentum.Signal{Action: momentum.ActionBuy}
	stage := ChartPatternStage{}

	down := &Input{Ticker: "AAPL", Signal: buy, Frame: &indicator.Frame{Candles: candlesFrom(linear(30, 130, -1))}}
	mult, why, err := stage.Adjust(context.Background(), down, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.75, mult)
	assert.Equal(t, "Chart:conflict", why)

	up := &Input{Ticker: "AAPL", Signal: buy, Frame: &indicator.Frame{Candles: candlesFrom(linear(30, 100, 1))}}
	mult, _, err = stage.Adjust(context.Background(), up, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 1.0, mult)

	short := &Input{Ticker: "AAPL", Signal: buy, Frame: &indicator.Frame{Candles: candlesFrom(linear(10, 130, -1))}}
	mult, _, _ = stage.Adjust(context.Background(), short, 0.5)
	assert.Equal(t, 1.0, mult)

	hold := &Input{Ticker: "AAPL", Frame: down.Frame}
	mult, _, _ = stage.Adjust(context.Background(), hold, 0.5)
	assert.Equal(t, 1.0, mult)
}
