// Package pattern 在K线上识别简单的价格形态（双底、双顶、收敛三角、波动压缩），
// 并结合线性回归斜率给出方向倾向。
package pattern

import (
	"fmt"
	"math"

	"smartbot/internal/market"
)

type Bias int

const (
	Bearish Bias = -1
	Neutral Bias = 0
	Bullish Bias = 1
)

func (b Bias) String() string {
	switch b {
	case Bullish:
		return "bullish"
	case Bearish:
		return "bearish"
	}
	return "neutral"
}

// slopeThreshold is the per-bar regression slope, as a fraction of the mean
// close, above which the trend counts as directional.
const slopeThreshold = 0.0005

type Result struct {
	Bias       Bias     `json:"bias"`
	Confidence float64  `json:"confidence"`
	SlopePct   float64  `json:"slope_pct"`
	Signals    []string `json:"signals,omitempty"`
}

// Analyze 对 candles 做形态识别。Confidence 在 [0, 0.9]，
// 趋势方向每得到一个同向形态确认加 0.15，逆向形态扣 0.15。
func Analyze(candles []market.Candle) Result {
	if len(candles) < 2 {
		return Result{}
	}
	closes := market.Closes(candles)
	highs := market.Highs(candles)
	lows := market.Lows(candles)

	slope, _ := fitLine(closes)
	mean := meanOf(closes)
	res := Result{}
	if mean > 0 {
		res.SlopePct = slope / mean
	}
	switch {
	case res.SlopePct > slopeThreshold:
		res.Bias = Bullish
	case res.SlopePct < -slopeThreshold:
		res.Bias = Bearish
	}

	votes := 0
	if desc, ok := detectDoubleBottom(lows); ok {
		res.Signals = append(res.Signals, desc)
		votes++
	}
	if desc, ok := detectDoubleTop(highs); ok {
		res.Signals = append(res.Signals, desc)
		votes--
	}
	squeeze := false
	if desc, ok := detectTriangle(highs, lows); ok {
		res.Signals = append(res.Signals, desc)
		squeeze = true
	}
	if desc, ok := detectCompression(highs, lows); ok {
		res.Signals = append(res.Signals, desc)
		squeeze = true
	}

	if res.Bias == Neutral {
		// 无趋势时由反转形态决定方向
		switch {
		case votes > 0:
			res.Bias, res.Confidence = Bullish, 0.5
		case votes < 0:
			res.Bias, res.Confidence = Bearish, 0.5
		}
		return res
	}
	conf := 0.5 + 0.15*float64(votes)*float64(res.Bias)
	if squeeze {
		conf += 0.1
	}
	res.Confidence = math.Min(math.Max(conf, 0), 0.9)
	return res
}

func fitLine(series []float64) (slope, intercept float64) {
	if len(series) == 0 {
		return 0, 0
	}
	var sumX, sumY, sumXY, sumXX float64
	n := float64(len(series))
	for i, y := range series {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, series[len(series)-1]
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, v := range xs {
		s += v
	}
	return s / float64(len(xs))
}

// detectDoubleBottom 在后半段寻找两个相距至少 3 根、价差 ≤0.4% 的低点。
func detectDoubleBottom(lows []float64) (string, bool) {
	if len(lows) < 20 {
		return "", false
	}
	window := lows[len(lows)/2:]
	min1, idx1 := minWithIndex(window)
	masked := append([]float64(nil), window...)
	for i := max(idx1-2, 0); i <= idx1+2 && i < len(masked); i++ {
		masked[i] = math.MaxFloat64
	}
	min2, idx2 := minWithIndex(masked)
	if idx2 < 0 || absInt(idx2-idx1) < 3 {
		return "", false
	}
	if math.Abs(min1-min2)/math.Max(min1, 1) <= 0.004 {
		return fmt.Sprintf("double bottom ~%.2f", (min1+min2)/2), true
	}
	return "", false
}

func detectDoubleTop(highs []float64) (string, bool) {
	if len(highs) < 20 {
		return "", false
	}
	window := highs[len(highs)/2:]
	max1, idx1 := maxWithIndex(window)
	masked := append([]float64(nil), window...)
	for i := max(idx1-2, 0); i <= idx1+2 && i < len(masked); i++ {
		masked[i] = -math.MaxFloat64
	}
	max2, idx2 := maxWithIndex(masked)
	if idx2 < 0 || absInt(idx2-idx1) < 3 {
		return "", false
	}
	if math.Abs(max1-max2)/math.Max(max1, 1) <= 0.004 {
		return fmt.Sprintf("double top ~%.2f", (max1+max2)/2), true
	}
	return "", false
}

func detectTriangle(highs, lows []float64) (string, bool) {
	if len(highs) < 30 {
		return "", false
	}
	half := len(highs) / 2
	firstHigh, lastHigh := maxOf(highs[:half]), maxOf(highs[half:])
	firstLow, lastLow := minOf(lows[:half]), minOf(lows[half:])
	if lastHigh < firstHigh && lastLow > firstLow {
		widthDelta := (firstHigh - firstLow) - (lastHigh - lastLow)
		if widthDelta/firstHigh > 0.05 {
			return "converging range", true
		}
	}
	return "", false
}

func detectCompression(highs, lows []float64) (string, bool) {
	if len(highs) < 40 {
		return "", false
	}
	half := len(highs) / 2
	first := (maxOf(highs[:half]) - minOf(lows[:half])) / maxOf(highs[:half])
	second := (maxOf(highs[half:]) - minOf(lows[half:])) / maxOf(highs[half:])
	if second < first*0.65 {
		return "volatility squeeze", true
	}
	return "", false
}

func minOf(values []float64) float64 {
	m, _ := minWithIndex(values)
	return m
}

func maxOf(values []float64) float64 {
	m, _ := maxWithIndex(values)
	return m
}

func minWithIndex(values []float64) (float64, int) {
	m := math.MaxFloat64
	idx := -1
	for i, v := range values {
		if v < m {
			m = v
			idx = i
		}
	}
	return m, idx
}

func maxWithIndex(values []float64) (float64, int) {
	m := -math.MaxFloat64
	idx := -1
	for i, v := range values {
		if v > m {
			m = v
			idx = i
		}
	}
	return m, idx
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
