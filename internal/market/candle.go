package market

import "time"

// Candle is one OHLCV bar. Times are unix milliseconds.
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

func (c Candle) Time() time.Time {
	return time.UnixMilli(c.OpenTime)
}

// Closes extracts the close column.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func Highs(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

func Lows(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

// LastClose returns the most recent close, or 0 for an empty series.
func LastClose(candles []Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	return candles[len(candles)-1].Close
}

// ChangeOver returns the fractional close-to-close change across the last n bars
// (close[-1] vs close[-n]). ok is false when fewer than n bars exist.
func ChangeOver(candles []Candle, n int) (float64, bool) {
	if n < 2 || len(candles) < n {
		return 0, false
	}
	base := candles[len(candles)-n].Close
	if base == 0 {
		return 0, false
	}
	return (candles[len(candles)-1].Close - base) / base, true
}
