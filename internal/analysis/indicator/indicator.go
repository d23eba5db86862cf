package indicator

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"smartbot/internal/market"
)

// Settings 描述指标参数；零值字段使用默认值。
type Settings struct {
	SMAShort     int     `json:"sma_short,omitempty"`
	SMALong      int     `json:"sma_long,omitempty"`
	RSIPeriod    int     `json:"rsi_period,omitempty"`
	MACDFast     int     `json:"macd_fast,omitempty"`
	MACDSlow     int     `json:"macd_slow,omitempty"`
	MACDSignal   int     `json:"macd_signal,omitempty"`
	BBPeriod     int     `json:"bb_period,omitempty"`
	BBDev        float64 `json:"bb_dev,omitempty"`
	ATRPeriod    int     `json:"atr_period,omitempty"`
	VolumePeriod int     `json:"volume_period,omitempty"`
}

func DefaultSettings() Settings {
	return Settings{
		SMAShort:     10,
		SMALong:      30,
		RSIPeriod:    14,
		MACDFast:     12,
		MACDSlow:     26,
		MACDSignal:   9,
		BBPeriod:     20,
		BBDev:        2,
		ATRPeriod:    14,
		VolumePeriod: 20,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.SMAShort <= 0 {
		s.SMAShort = d.SMAShort
	}
	if s.SMALong <= 0 {
		s.SMALong = d.SMALong
	}
	if s.RSIPeriod <= 0 {
		s.RSIPeriod = d.RSIPeriod
	}
	if s.MACDFast <= 0 {
		s.MACDFast = d.MACDFast
	}
	if s.MACDSlow <= 0 {
		s.MACDSlow = d.MACDSlow
	}
	if s.MACDSignal <= 0 {
		s.MACDSignal = d.MACDSignal
	}
	if s.BBPeriod <= 0 {
		s.BBPeriod = d.BBPeriod
	}
	if s.BBDev <= 0 {
		s.BBDev = d.BBDev
	}
	if s.ATRPeriod <= 0 {
		s.ATRPeriod = d.ATRPeriod
	}
	if s.VolumePeriod <= 0 {
		s.VolumePeriod = d.VolumePeriod
	}
	return s
}

// Frame 保存与 K 线逐根对齐的指标序列；未定义的位置为 NaN。
type Frame struct {
	Candles    []market.Candle
	SMAShort   []float64
	SMALong    []float64
	RSI        []float64
	MACD       []float64
	MACDSignal []float64
	MACDHist   []float64
	BBUpper    []float64
	BBMiddle   []float64
	BBLower    []float64
	ATR        []float64
	VWAP       []float64
	VolumeMean []float64
}

// Bar 是某一根 K 线上的全部指标快照。
type Bar struct {
	market.Candle
	SMAShort   float64
	SMALong    float64
	RSI        float64
	MACDHist   float64
	BBUpper    float64
	BBMiddle   float64
	BBLower    float64
	ATR        float64
	VWAP       float64
	VolumeMean float64
}

// Compute 计算全部指标。
func Compute(candles []market.Candle, s Settings) (*Frame, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candles")
	}
	s = s.withDefaults()
	closes := market.Closes(candles)
	highs := market.Highs(candles)
	lows := market.Lows(candles)
	volumes := market.Volumes(candles)

	f := &Frame{Candles: candles}
	f.SMAShort = sma(closes, s.SMAShort)
	f.SMALong = sma(closes, s.SMALong)
	f.RSI = meanRSI(closes, s.RSIPeriod)

	macdLookback := s.MACDSlow - 1 + s.MACDSignal - 1
	if len(closes) > macdLookback {
		macd, signal, hist := talib.Macd(closes, s.MACDFast, s.MACDSlow, s.MACDSignal)
		f.MACD = maskLookback(macd, macdLookback)
		f.MACDSignal = maskLookback(signal, macdLookback)
		f.MACDHist = maskLookback(hist, macdLookback)
	} else {
		f.MACD, f.MACDSignal, f.MACDHist = nanSeries(len(closes)), nanSeries(len(closes)), nanSeries(len(closes))
	}

	if len(closes) >= s.BBPeriod {
		upper, middle, lower := talib.BBands(closes, s.BBPeriod, s.BBDev, s.BBDev, talib.SMA)
		f.BBUpper = maskLookback(upper, s.BBPeriod-1)
		f.BBMiddle = maskLookback(middle, s.BBPeriod-1)
		f.BBLower = maskLookback(lower, s.BBPeriod-1)
	} else {
		f.BBUpper, f.BBMiddle, f.BBLower = nanSeries(len(closes)), nanSeries(len(closes)), nanSeries(len(closes))
	}

	f.ATR = meanATR(highs, lows, closes, s.ATRPeriod)
	f.VWAP = cumulativeVWAP(highs, lows, closes, volumes)
	f.VolumeMean = sma(volumes, s.VolumePeriod)
	return f, nil
}

func (f *Frame) Len() int { return len(f.Candles) }

// At returns the snapshot at index i; negative i counts from the end (-1 is the latest bar).
func (f *Frame) At(i int) Bar {
	if i < 0 {
		i = len(f.Candles) + i
	}
	return Bar{
		Candle:     f.Candles[i],
		SMAShort:   f.SMAShort[i],
		SMALong:    f.SMALong[i],
		RSI:        f.RSI[i],
		MACDHist:   f.MACDHist[i],
		BBUpper:    f.BBUpper[i],
		BBMiddle:   f.BBMiddle[i],
		BBLower:    f.BBLower[i],
		ATR:        f.ATR[i],
		VWAP:       f.VWAP[i],
		VolumeMean: f.VolumeMean[i],
	}
}

// Valid reports whether v is a usable number.
func Valid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Or returns v when valid, otherwise def.
func Or(v, def float64) float64 {
	if Valid(v) {
		return v
	}
	return def
}

// SMA exposes the masked simple moving average for callers outside the frame.
func SMA(series []float64, period int) []float64 {
	return sma(series, period)
}

// ReturnsStd returns the rolling sample standard deviation of close-to-close
// returns, aligned to the returns series (length len(closes)-1).
func ReturnsStd(closes []float64, window int) []float64 {
	if len(closes) < 2 || window < 2 {
		return nil
	}
	if len(closes)-1 < window {
		return nanSeries(len(closes) - 1)
	}
	rets := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			rets[i-1] = 0
			continue
		}
		rets[i-1] = closes[i]/closes[i-1] - 1
	}
	// talib.StdDev is a population estimate; rescale to the sample estimate.
	std := talib.StdDev(rets, window, 1)
	scale := math.Sqrt(float64(window) / float64(window-1))
	for i := range std {
		std[i] *= scale
	}
	return maskLookback(std, window-1)
}

func sma(series []float64, period int) []float64 {
	if period <= 0 || len(series) < period {
		return nanSeries(len(series))
	}
	return maskLookback(talib.Sma(series, period), period-1)
}

// meanRSI uses simple rolling means of gains and losses rather than Wilder smoothing.
func meanRSI(closes []float64, period int) []float64 {
	n := len(closes)
	out := nanSeries(n)
	if n <= period {
		return out
	}
	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}
	avgGain := talib.Sma(gains, period)
	avgLoss := talib.Sma(losses, period)
	for i := period; i < n; i++ {
		g, l := avgGain[i], avgLoss[i]
		switch {
		case l == 0 && g == 0:
			out[i] = math.NaN()
		case l == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+g/l)
		}
	}
	return out
}

func meanATR(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	if n < period {
		return nanSeries(n)
	}
	tr := talib.TRange(highs, lows, closes)
	tr[0] = highs[0] - lows[0]
	return maskLookback(talib.Sma(tr, period), period-1)
}

func cumulativeVWAP(highs, lows, closes, volumes []float64) []float64 {
	out := make([]float64, len(closes))
	var cumVol, cumPV float64
	for i := range closes {
		typical := (highs[i] + lows[i] + closes[i]) / 3
		cumVol += volumes[i]
		cumPV += typical * volumes[i]
		if cumVol == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = cumPV / cumVol
	}
	return out
}

// maskLookback replaces TA-Lib's zero-filled warmup region with NaN.
func maskLookback(series []float64, lookback int) []float64 {
	out := make([]float64, len(series))
	copy(out, series)
	for i := 0; i < lookback && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
