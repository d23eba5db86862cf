package market

import (
	"strconv"
	"strings"
	"time"
)

// ParseSpan parses "15m", "1h", "5d", "1w", "1mo" into a duration.
// Returns (0, false) on invalid input.
func ParseSpan(span string) (time.Duration, bool) {
	span = strings.ToLower(strings.TrimSpace(span))
	if span == "" {
		return 0, false
	}
	if strings.HasSuffix(span, "mo") {
		n, err := strconv.Atoi(strings.TrimSuffix(span, "mo"))
		if err != nil || n <= 0 {
			return 0, false
		}
		return time.Duration(n) * 30 * 24 * time.Hour, true
	}
	unit := span[len(span)-1]
	numStr := strings.TrimSpace(span[:len(span)-1])
	if numStr == "" {
		return 0, false
	}
	n, err := strconv.Atoi(numStr)
	if err != nil || n <= 0 {
		return 0, false
	}
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// BarsIn estimates how many interval bars fit into period; 0 when either is invalid.
func BarsIn(period, interval string) int {
	p, ok := ParseSpan(period)
	if !ok {
		return 0
	}
	i, ok := ParseSpan(interval)
	if !ok {
		return 0
	}
	return int(p / i)
}

const unclosedGrace = 10 * time.Second

// DropUnclosed drops the last bar if it is still forming at now.
func DropUnclosed(candles []Candle, interval time.Duration, now time.Time) []Candle {
	if len(candles) == 0 || interval <= 0 {
		return candles
	}
	last := candles[len(candles)-1]
	if last.OpenTime <= 0 {
		return candles
	}
	cutoff := last.OpenTime + interval.Milliseconds() + unclosedGrace.Milliseconds()
	if now.UnixMilli() < cutoff {
		return candles[:len(candles)-1]
	}
	return candles
}
