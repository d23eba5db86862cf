package momentum

import (
	"context"
	"math"
	"sort"

	"smartbot/internal/logger"
	"smartbot/internal/market"
)

// Ranked is a ticker with its move relative to the benchmark, in percent points.
type Ranked struct {
	Ticker string  `json:"ticker"`
	RS     float64 `json:"rs"`
}

// Ranker orders candidates by how far they deviate from the benchmark.
type Ranker struct {
	Source    market.Source
	Benchmark string
	Period    string
	Interval  string
	Lookback  int
	TopN      int
}

func NewRanker(src market.Source) *Ranker {
	return &Ranker{
		Source:    src,
		Benchmark: "SPY",
		Period:    "2d",
		Interval:  "1h",
		Lookback:  5,
		TopN:      8,
	}
}

// Rank returns at most topN tickers (r.TopN when topN <= 0). If the benchmark
// cannot be fetched the input is returned unchanged.
func (r *Ranker) Rank(ctx context.Context, tickers []string, topN int) []string {
	ranked, ok := r.Scores(ctx, tickers)
	if !ok {
		return tickers
	}
	if topN <= 0 {
		topN = r.TopN
	}
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	out := make([]string, len(ranked))
	for i, item := range ranked {
		out[i] = item.Ticker
	}
	return out
}

// Scores computes RS for every ticker, sorted by |RS| descending. ok is false when
// the benchmark is unavailable.
func (r *Ranker) Scores(ctx context.Context, tickers []string) ([]Ranked, bool) {
	bench, err := r.Source.History(ctx, r.Benchmark, r.Period, r.Interval)
	if err != nil {
		logger.Warnf("RS 基准 %s 获取失败: %v", r.Benchmark, err)
		return nil, false
	}
	benchMove, ok := market.ChangeOver(bench, r.Lookback)
	if !ok {
		logger.Warnf("RS 基准 %s 数据不足 (%d 根)", r.Benchmark, len(bench))
		return nil, false
	}
	out := make([]Ranked, 0, len(tickers))
	for _, t := range tickers {
		item := Ranked{Ticker: t}
		candles, err := r.Source.History(ctx, t, r.Period, r.Interval)
		if err == nil {
			if move, ok := market.ChangeOver(candles, r.Lookback); ok {
				item.RS = (move - benchMove) * 100
			}
		}
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].RS) > math.Abs(out[j].RS)
	})
	return out, true
}
