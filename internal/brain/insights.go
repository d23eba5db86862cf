package brain

import (
	"fmt"
	"sort"
	"strings"
)

// Insights renders a plain-text report of what the brain has learned.
func (b *Brain) Insights() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m := b.mem
	var sb strings.Builder
	fmt.Fprintf(&sb, "SMARTBOT BRAIN: %d trades learned\n", m.TotalTrades)
	fmt.Fprintf(&sb, "  last updated: %s\n", m.LastUpdated.Format("2006-01-02 15:04"))

	if len(m.Tickers) > 0 {
		names := make([]string, 0, len(m.Tickers))
		for t := range m.Tickers {
			names = append(names, t)
		}
		sort.Slice(names, func(i, j int) bool {
			a, c := m.Tickers[names[i]], m.Tickers[names[j]]
			if a.AvgPnL != c.AvgPnL {
				return a.AvgPnL > c.AvgPnL
			}
			return names[i] < names[j]
		})
		sb.WriteString("\nTICKER RANKINGS (avg P&L):\n")
		for _, t := range names {
			st := m.Tickers[t]
			mark := "-"
			if st.AvgPnL > 0 {
				mark = "+"
			}
			fmt.Fprintf(&sb, "  %s %-6s WR:%3.0f%% Avg:$%+.3f Best:$%+.2f (%d trades)\n",
				mark, t, st.WinRate()*100, st.AvgPnL, st.BestTrade, st.TotalTrades)
		}
	}

	p := m.Params
	if len(p.BestFactors) > 0 {
		fmt.Fprintf(&sb, "\nBEST FACTORS: %s\n", strings.Join(p.BestFactors, ", "))
	}
	if len(p.WorstFactors) > 0 {
		fmt.Fprintf(&sb, "WORST FACTORS: %s\n", strings.Join(p.WorstFactors, ", "))
	}

	sb.WriteString("\nADAPTIVE SETTINGS:\n")
	fmt.Fprintf(&sb, "  optimal entry score: >=%d\n", p.OptimalScoreMin)
	fmt.Fprintf(&sb, "  preferred regime: %s\n", p.PreferredRegime)
	fmt.Fprintf(&sb, "  learning rate: %.3f\n", p.LearningRate)
	fmt.Fprintf(&sb, "  brain confidence: %s\n", confidenceLevel(m.TotalTrades))

	if len(p.BoostTickers) > 0 {
		fmt.Fprintf(&sb, "\nBOOSTED: %s\n", formatMults(p.BoostTickers))
	}
	if len(p.PenaltyTickers) > 0 {
		fmt.Fprintf(&sb, "PENALIZED: %s\n", formatMults(p.PenaltyTickers))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func confidenceLevel(trades int) string {
	switch {
	case trades < 10:
		return "LOW"
	case trades < 30:
		return "MEDIUM"
	}
	return "HIGH"
}

func formatMults(m map[string]float64) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=x%.3f", k, m[k])
	}
	return strings.Join(parts, " ")
}
