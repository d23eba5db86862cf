package momentum

import (
	"fmt"

	"smartbot/internal/analysis/indicator"
)

// Inputs is everything a factor rule may look at for one bar.
type Inputs struct {
	Price            float64
	PrevClose        float64
	Prev2Close       float64
	SMAShort         float64
	SMALong          float64
	PrevSMAShort     float64
	PrevSMALong      float64
	RSI              float64
	MACDHist         float64
	PrevMACDHist     float64
	BBUpper          float64
	BBLower          float64
	Volume           float64
	VolumeMean       float64
	VWAP             float64
	Pct1             float64 // one-bar % change
	Pct2             float64 // two-bar % change
	MinutesSinceOpen float64
}

// BBPosition is the price location inside the bands, 0 at the lower band and 1 at the upper.
func (in Inputs) BBPosition() (float64, bool) {
	width := in.BBUpper - in.BBLower
	if !(width > 0) {
		return 0, false
	}
	return (in.Price - in.BBLower) / width, true
}

// Rule is one row of the factor table.
type Rule struct {
	Name   string
	Points int
	When   func(Inputs) bool
	Label  func(Inputs) string
}

// Group holds mutually exclusive rules; the first matching rule contributes.
type Group struct {
	Name  string
	Rules []Rule
}

// Hit records one rule that fired.
type Hit struct {
	Group  string `json:"group"`
	Rule   string `json:"rule"`
	Points int    `json:"points"`
	Label  string `json:"label"`
}

func fixed(label string) func(Inputs) string {
	return func(Inputs) string { return label }
}

func rsiLabel(suffix string) func(Inputs) string {
	return func(in Inputs) string { return fmt.Sprintf("RSI:%.0f%s", in.RSI, suffix) }
}

func bbWhen(pred func(float64) bool) func(Inputs) bool {
	return func(in Inputs) bool {
		p, ok := in.BBPosition()
		return ok && pred(p)
	}
}

// DefaultRules is the additive point table used by the scorer.
func DefaultRules() []Group {
	return []Group{
		{Name: "trend", Rules: []Rule{
			{Name: "sma_aligned", Points: 10, Label: fixed("SMA+"),
				When: func(in Inputs) bool { return in.SMAShort > in.SMALong }},
		}},
		{Name: "crossover", Rules: []Rule{
			{Name: "golden_cross", Points: 5, Label: fixed("GoldenX"),
				When: func(in Inputs) bool {
					return in.SMAShort > in.SMALong && in.PrevSMAShort <= in.PrevSMALong
				}},
		}},
		{Name: "rsi", Rules: []Rule{
			{Name: "recovery_zone", Points: 15, Label: rsiLabel("*"),
				When: func(in Inputs) bool { return in.RSI >= 30 && in.RSI <= 50 }},
			{Name: "bull_zone", Points: 10, Label: rsiLabel(""),
				When: func(in Inputs) bool { return in.RSI > 50 && in.RSI <= 65 }},
			{Name: "oversold", Points: 8, Label: rsiLabel("!"),
				When: func(in Inputs) bool { return in.RSI < 30 }},
			{Name: "overbought", Points: -5, Label: rsiLabel("X"),
				When: func(in Inputs) bool { return in.RSI > 75 }},
		}},
		{Name: "macd", Rules: []Rule{
			{Name: "hist_positive", Points: 8, Label: fixed("MACD+"),
				When: func(in Inputs) bool { return in.MACDHist > 0 }},
		}},
		{Name: "macd_accel", Rules: []Rule{
			{Name: "hist_rising", Points: 7, Label: fixed("MACD++"),
				When: func(in Inputs) bool { return in.MACDHist > 0 && in.MACDHist > in.PrevMACDHist }},
		}},
		{Name: "bollinger", Rules: []Rule{
			{Name: "mid_band", Points: 10, Label: fixed("BB:mid"), When: bbWhen(func(p float64) bool { return p >= 0.3 && p <= 0.6 })},
			{Name: "low_band", Points: 7, Label: fixed("BB:low"), When: bbWhen(func(p float64) bool { return p < 0.3 })},
			{Name: "upper_extreme", Points: -3, Label: fixed("BB:hi!"), When: bbWhen(func(p float64) bool { return p > 0.85 })},
		}},
		{Name: "volume", Rules: []Rule{
			{Name: "surge", Points: 10, Label: fixed("Vol+"),
				When: func(in Inputs) bool { return in.VolumeMean > 0 && in.Volume > in.VolumeMean*1.3 }},
			{Name: "above_mean", Points: 5, Label: fixed("Vol"),
				When: func(in Inputs) bool { return in.VolumeMean > 0 && in.Volume > in.VolumeMean }},
		}},
		{Name: "momentum", Rules: []Rule{
			{Name: "strong_up", Points: 10, When: func(in Inputs) bool { return in.Pct1 > 0.5 },
				Label: func(in Inputs) string { return fmt.Sprintf("+%.1f%%", in.Pct1) }},
			{Name: "up", Points: 6, When: func(in Inputs) bool { return in.Pct1 > 0.2 },
				Label: func(in Inputs) string { return fmt.Sprintf("+%.1f%%", in.Pct1) }},
			{Name: "strong_down", Points: -5, When: func(in Inputs) bool { return in.Pct1 < -0.5 },
				Label: func(in Inputs) string { return fmt.Sprintf("%.1f%%!", in.Pct1) }},
		}},
		{Name: "momentum_2bar", Rules: []Rule{
			{Name: "follow_through", Points: 5, Label: fixed("3h+"),
				When: func(in Inputs) bool { return in.Pct2 > 0.8 }},
		}},
		{Name: "vwap", Rules: []Rule{
			{Name: "discount", Points: 10, Label: fixed("VWAP:buy"),
				When: func(in Inputs) bool { return indicator.Valid(in.VWAP) && in.Price < in.VWAP*0.998 }},
			{Name: "at_vwap", Points: 5, Label: fixed("VWAP:at"),
				When: func(in Inputs) bool { return indicator.Valid(in.VWAP) && in.Price < in.VWAP*1.002 }},
			{Name: "premium", Points: -3, Label: fixed("VWAP:hi!"),
				When: func(in Inputs) bool { return indicator.Valid(in.VWAP) }},
		}},
		{Name: "open_surge", Rules: []Rule{
			{Name: "first_30m", Points: 10, Label: fixed("OpenSurge"),
				When: func(in Inputs) bool {
					return in.MinutesSinceOpen >= 0 && in.MinutesSinceOpen <= 30 && in.Pct1 > 0.1
				}},
		}},
	}
}

// Evaluate runs every group against in and returns the raw (unclamped) total and the hits.
func Evaluate(groups []Group, in Inputs) (int, []Hit) {
	total := 0
	var hits []Hit
	for _, g := range groups {
		for _, r := range g.Rules {
			if r.When == nil || !r.When(in) {
				continue
			}
			label := r.Name
			if r.Label != nil {
				label = r.Label(in)
			}
			total += r.Points
			hits = append(hits, Hit{Group: g.Name, Rule: r.Name, Points: r.Points, Label: label})
			break
		}
	}
	return total, hits
}
