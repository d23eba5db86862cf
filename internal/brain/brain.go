// Package brain keeps the adaptive trade memory and turns it into confidence
// multipliers and entry filters.
package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"smartbot/internal/logger"
	"smartbot/internal/market"
)

// Store persists the brain as a single record.
type Store interface {
	LoadBrain(ctx context.Context) (*Memory, error)
	SaveBrain(ctx context.Context, m *Memory) error
}

// Trade is a closed trade as reported to Learn.
type Trade struct {
	Ticker    string
	PnL       float64
	PnLPct    float64 // percent, e.g. 2.5 for +2.5%
	Score     int
	Factors   []string
	RSI       float64
	Regime    string
	HoldHours float64
	Time      time.Time
	Reason    string
}

// Brain is safe for concurrent readers; writers are expected to be the single engine loop.
type Brain struct {
	mu    sync.RWMutex
	mem   *Memory
	store Store
	cfg   FilterConfig
	now   func() time.Time
}

type Option func(*Brain)

func WithClock(now func() time.Time) Option {
	return func(b *Brain) { b.now = now }
}

func WithFilter(cfg FilterConfig) Option {
	return func(b *Brain) { b.cfg = cfg }
}

func New(store Store, opts ...Option) *Brain {
	b := &Brain{store: store, cfg: DefaultFilterConfig(), now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	b.mem = NewMemory(b.now())
	return b
}

// Load replaces the in-memory state with the persisted record. A missing record
// leaves a fresh, empty memory.
func (b *Brain) Load(ctx context.Context) error {
	if b.store == nil {
		return nil
	}
	m, err := b.store.LoadBrain(ctx)
	if err != nil {
		return fmt.Errorf("load brain: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if m == nil {
		m = NewMemory(b.now())
	}
	m.ensure()
	b.mem = m
	return nil
}

func (b *Brain) save(ctx context.Context) error {
	b.mem.LastUpdated = b.now()
	if b.store == nil {
		return nil
	}
	if err := b.store.SaveBrain(ctx, b.mem); err != nil {
		return fmt.Errorf("save brain: %w", err)
	}
	return nil
}

// Learn folds one closed trade into every memory table, recomputes the
// adaptive parameters and persists the result.
func (b *Brain) Learn(ctx context.Context, t Trade) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.learn(t)
	if err := b.save(ctx); err != nil {
		return err
	}
	outcome := "LOSS"
	if t.PnL > 0 {
		outcome = "WIN"
	}
	logger.Infof("brain 学习: %s %s $%+.2f (score=%d factors=%d regime=%s)",
		market.BaseTicker(t.Ticker), outcome, t.PnL, t.Score, len(t.Factors), t.Regime)
	return nil
}

func (b *Brain) learn(t Trade) {
	m := b.mem
	ticker := market.BaseTicker(t.Ticker)
	win := t.PnL > 0
	ts := t.Time
	if ts.IsZero() {
		ts = b.now()
	}
	regime := t.Regime
	if regime == "" {
		regime = "normal"
	}

	st := m.Tickers[ticker]
	if st == nil {
		st = &TickerStats{}
		m.Tickers[ticker] = st
	}
	st.TotalTrades++
	st.TotalPnL += t.PnL
	st.AvgPnL = st.TotalPnL / float64(st.TotalTrades)
	st.LastTrade = ts
	st.AvgHoldHours = (st.AvgHoldHours*float64(st.TotalTrades-1) + t.HoldHours) / float64(st.TotalTrades)
	if win {
		st.Wins++
		st.WinStreak++
		st.LoseStreak = 0
		st.BestTrade = math.Max(st.BestTrade, t.PnL)
	} else {
		st.Losses++
		st.LoseStreak++
		st.WinStreak = 0
		st.WorstTrade = math.Min(st.WorstTrade, t.PnL)
	}

	for _, f := range t.Factors {
		key := NormalizeFactor(f)
		fs := m.Factors[key]
		if fs == nil {
			fs = &FactorStats{}
			m.Factors[key] = fs
		}
		if win {
			fs.Wins++
		} else {
			fs.Losses++
		}
		fs.TotalPnL += t.PnL
		fs.AvgPnL = fs.TotalPnL / float64(fs.Total())
	}

	c := &m.Conditions
	et := ts.In(market.Exchange())
	hour := fmt.Sprint(et.Hour())
	day := et.Weekday().String()
	if win {
		if _, ok := c.RegimeWins[regime]; ok {
			c.RegimeWins[regime]++
		}
		c.HourWins[hour]++
		c.DayWins[day]++
		m.Scores.Winning = tail(append(m.Scores.Winning, t.Score), maxScores)
	} else {
		if _, ok := c.RegimeLosses[regime]; ok {
			c.RegimeLosses[regime]++
		}
		c.HourLosses[hour]++
		c.DayLosses[day]++
		m.Scores.Losing = tail(append(m.Scores.Losing, t.Score), maxScores)
	}

	factors := t.Factors
	if len(factors) > 6 {
		factors = factors[:6]
	}
	reason := t.Reason
	if len(reason) > 60 {
		reason = reason[:60]
	}
	m.Log = append(m.Log, LogEntry{
		Time:      ts,
		Ticker:    ticker,
		PnL:       round(t.PnL, 4),
		PnLPct:    round(t.PnLPct, 2),
		Win:       win,
		Score:     t.Score,
		Factors:   append([]string(nil), factors...),
		RSI:       round(t.RSI, 1),
		Regime:    regime,
		HoldHours: round(t.HoldHours, 1),
		Reason:    reason,
	})
	if len(m.Log) > maxLog {
		m.Log = append([]LogEntry(nil), m.Log[len(m.Log)-maxLog:]...)
	}
	m.TotalTrades++
	m.recompute()
}

// recompute derives Params from the accumulated tables.
func (m *Memory) recompute() {
	p := &m.Params
	p.LearningRate = math.Min(0.5, 0.05+float64(m.TotalTrades)*0.005)

	if len(m.Scores.Winning) >= 3 {
		lose := 50.0
		if len(m.Scores.Losing) > 0 {
			lose = meanInt(m.Scores.Losing)
		}
		optimal := int(math.Round((meanInt(m.Scores.Winning) + lose) / 2))
		p.OptimalScoreMin = max(40, min(70, optimal))
	}

	type ranked struct {
		name string
		wr   float64
	}
	var qualified []ranked
	for name, fs := range m.Factors {
		if fs.Total() >= 2 {
			qualified = append(qualified, ranked{name, fs.WinRate()})
		}
	}
	if len(qualified) > 0 {
		sort.Slice(qualified, func(i, j int) bool {
			if qualified[i].wr != qualified[j].wr {
				return qualified[i].wr > qualified[j].wr
			}
			return qualified[i].name < qualified[j].name
		})
		p.BestFactors = p.BestFactors[:0]
		for i := 0; i < len(qualified) && i < 5; i++ {
			p.BestFactors = append(p.BestFactors, qualified[i].name)
		}
		p.WorstFactors = p.WorstFactors[:0]
		for i := max(0, len(qualified)-5); i < len(qualified); i++ {
			p.WorstFactors = append(p.WorstFactors, qualified[i].name)
		}
	}

	p.BoostTickers = map[string]float64{}
	p.PenaltyTickers = map[string]float64{}
	for ticker, st := range m.Tickers {
		if st.TotalTrades < 2 {
			continue
		}
		wr := st.WinRate()
		switch {
		case wr >= 0.6 && st.AvgPnL > 0:
			p.BoostTickers[ticker] = round(1+math.Min(0.3, (wr-0.5)*p.LearningRate), 3)
		case wr <= 0.35 && st.AvgPnL < 0:
			p.PenaltyTickers[ticker] = round(1-math.Min(0.3, (0.5-wr)*p.LearningRate), 3)
		}
	}

	best, bestWR := "normal", 0.0
	for _, r := range knownRegimes {
		w, l := m.Conditions.RegimeWins[r], m.Conditions.RegimeLosses[r]
		if w+l < 2 {
			continue
		}
		if wr := float64(w) / float64(w+l); wr > bestWR {
			best, bestWR = r, wr
		}
	}
	p.PreferredRegime = best
}

// Snapshot returns a deep copy of the memory for read-only consumers.
func (b *Brain) Snapshot() Memory {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out Memory
	raw, err := json.Marshal(b.mem)
	if err == nil {
		err = json.Unmarshal(raw, &out)
	}
	if err != nil {
		logger.Warnf("brain snapshot 失败: %v", err)
	}
	out.ensure()
	return out
}

// Ticker returns a copy of the stats for ticker, if any.
func (b *Brain) Ticker(ticker string) (TickerStats, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.mem.Tickers[market.BaseTicker(ticker)]
	if !ok {
		return TickerStats{}, false
	}
	return *st, true
}

func tail(xs []int, n int) []int {
	if len(xs) <= n {
		return xs
	}
	return append([]int(nil), xs[len(xs)-n:]...)
}

func meanInt(xs []int) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0
	for _, x := range xs {
		sum += x
	}
	return float64(sum) / float64(len(xs))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
