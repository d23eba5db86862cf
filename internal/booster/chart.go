package booster

import (
	"context"
	"fmt"

	"smartbot/internal/analysis/pattern"
)

// ChartPatternStage is the local fallback for the pattern booster: it reads
// chart patterns off the scored frame instead of asking a remote predictor.
// Multipliers match PatternStage.
type ChartPatternStage struct {
	MinBars int
}

func (ChartPatternStage) Name() string { return "pattern" }

func (s ChartPatternStage) Adjust(_ context.Context, in *Input, _ float64) (float64, string, error) {
	want := directionOf(in.Action())
	if want == Hold || in.Frame == nil {
		return 1, "", nil
	}
	minBars := s.MinBars
	if minBars <= 0 {
		minBars = 20
	}
	if in.Frame.Len() < minBars {
		return 1, "", nil
	}
	res := pattern.Analyze(in.Frame.Candles)
	dir := Direction(res.Bias)
	switch {
	case dir == want && res.Confidence > 0.6:
		return 1.25, fmt.Sprintf("Chart:%.2f", res.Confidence), nil
	case dir != Hold && dir != want:
		return 0.75, "Chart:conflict", nil
	}
	return 1, "", nil
}
