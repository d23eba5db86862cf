package market

import (
	"context"
	"errors"
	"strings"
)

// ErrNoData marks an empty or unavailable history; callers treat the ticker as "hold".
var ErrNoData = errors.New("market: no data")

// Source is the market-data collaborator.
type Source interface {
	// History returns bars for ticker covering period ("5d", "60d") at interval ("15m", "1h", "1d").
	History(ctx context.Context, ticker, period, interval string) ([]Candle, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, ticker, period, interval string) ([]Candle, error)

func (f SourceFunc) History(ctx context.Context, ticker, period, interval string) ([]Candle, error) {
	return f(ctx, ticker, period, interval)
}

var brokerSuffixes = []string{"_US_EQ", "_UK_EQ", "_DE_EQ"}

// BaseTicker strips broker instrument suffixes ("AAPL_US_EQ" -> "AAPL").
func BaseTicker(ticker string) string {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	for _, s := range brokerSuffixes {
		t = strings.TrimSuffix(t, s)
	}
	return t
}

// BrokerTicker maps a plain symbol onto the broker's instrument code.
func BrokerTicker(ticker, suffix string) string {
	base := BaseTicker(ticker)
	if suffix == "" {
		return base
	}
	return base + suffix
}
