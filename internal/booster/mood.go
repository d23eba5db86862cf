package booster

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"smartbot/internal/market"
)

// Mood is the broad-market read for the session.
type Mood struct {
	Score       float64 `json:"score"`
	VIX         float64 `json:"vix"`
	Tradeable   bool    `json:"tradeable"`
	Description string  `json:"description"`
}

// MoodStage applies Penalty to every ticker when the market is too bearish
// (mean 5d index move < -3%, VIX inverted) or VIX is above 30. The read is
// taken once per Reset.
type MoodStage struct {
	Source  market.Source
	Indices []string
	Penalty float64

	mu   sync.Mutex
	mood *Mood
	err  error
}

func NewMoodStage(src market.Source) *MoodStage {
	return &MoodStage{Source: src, Indices: []string{"^GSPC", "^DJI", "^IXIC", "^VIX"}, Penalty: 0.7}
}

func (s *MoodStage) Name() string { return "mood" }

// Reset forgets the cached read; called at cycle start.
func (s *MoodStage) Reset() {
	s.mu.Lock()
	s.mood, s.err = nil, nil
	s.mu.Unlock()
}

func (s *MoodStage) Read(ctx context.Context) (Mood, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mood != nil || s.err != nil {
		if s.err != nil {
			return Mood{}, s.err
		}
		return *s.mood, nil
	}
	var moves []float64
	vix := 0.0
	for _, sym := range s.Indices {
		candles, err := s.Source.History(ctx, sym, "5d", "1d")
		if err != nil || len(candles) < 2 || candles[0].Close <= 0 {
			continue
		}
		move := (candles[len(candles)-1].Close - candles[0].Close) / candles[0].Close
		if sym == "^VIX" {
			move = -move
			vix = market.LastClose(candles)
		}
		moves = append(moves, move)
	}
	if len(moves) == 0 {
		s.err = errors.New("no index data")
		return Mood{}, s.err
	}
	m := Mood{Score: meanLast(moves, len(moves)), VIX: vix, Tradeable: true}
	m.Description = describeMood(m.Score)
	if m.Score < -0.03 || vix > 30 {
		m.Tradeable = false
	}
	s.mood = &m
	return m, nil
}

func describeMood(v float64) string {
	switch {
	case v > 0.02:
		return "bullish"
	case v > 0.01:
		return "optimistic"
	case v > -0.01:
		return "neutral"
	case v > -0.02:
		return "cautious"
	}
	return "bearish"
}

func (s *MoodStage) Adjust(ctx context.Context, _ *Input, _ float64) (float64, string, error) {
	m, err := s.Read(ctx)
	if err != nil {
		return 1, "", err
	}
	if m.Tradeable {
		return 1, "", nil
	}
	return s.Penalty, fmt.Sprintf("Mood:%s(%.3f VIX=%.1f)", m.Description, m.Score, m.VIX), nil
}
