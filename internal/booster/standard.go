package booster

import (
	"sync"

	"smartbot/internal/market"
)

// Standard is the default stage order:
// mtf, regime, pattern, sentiment, volatility, alignment, mood, cap, ensemble, overnight, cap.
// Without remote, sentiment and ensemble are left out and pattern falls back
// to ChartPatternStage.
type Standard struct {
	*Pipeline
	Mood      *MoodStage
	Overnight *OvernightStage

	mu sync.Mutex
}

func NewStandard(src market.Source, remote SignalSource, volWindow int) *Standard {
	s := &Standard{
		Mood:      NewMoodStage(src),
		Overnight: &OvernightStage{},
	}
	stages := []Stage{NewMTFStage(src), NewRegimeStage(src)}
	if remote != nil {
		stages = append(stages, PatternStage{Source: remote}, SentimentStage{Source: remote})
	} else {
		stages = append(stages, ChartPatternStage{})
	}
	stages = append(stages, VolatilityStage{Window: volWindow}, AlignmentStage{}, s.Mood, Cap(1))
	if remote != nil {
		stages = append(stages, EnsembleStage{Source: remote})
	}
	stages = append(stages, s.Overnight, Cap(1))
	s.Pipeline = NewPipeline(stages...)
	return s
}

// BeginCycle drops the cached market mood and installs this cycle's watchlist.
func (s *Standard) BeginCycle(list *Watchlist) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Mood.Reset()
	s.Overnight.List = list
}
