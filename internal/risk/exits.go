package risk

import (
	"fmt"
	"sort"
)

type ExitKind string

const (
	ExitFull    ExitKind = "SELL"
	ExitPartial ExitKind = "SELL_PARTIAL"
)

// Exit rule identifiers.
const (
	RuleStopLoss      = "STOP_LOSS"
	RulePartialTarget = "PROFIT_TARGET_PARTIAL"
	RuleFullTarget    = "PROFIT_TARGET_FULL"
	RuleBigProfit     = "BIG_PROFIT"
	RuleQuickProfit   = "QUICK_PROFIT"
	RuleTrailingPeak  = "TRAILING_STOP"
	RuleDeepLoss      = "DEEP_LOSS"
	RuleRecycle       = "RECYCLE"
)

// Exit is a sell intent produced by one of the scans.
type Exit struct {
	Ticker  string   `json:"ticker"`
	Kind    ExitKind `json:"kind"`
	Portion float64  `json:"portion,omitempty"`
	Rule    string   `json:"rule"`
	Reason  string   `json:"reason"`
	Price   float64  `json:"price"`
}

// CheckExitSignals evaluates stop, partial target and full target per
// position; the first match wins.
func (m *Manager) CheckExitSignals() []Exit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Exit
	for _, p := range m.sortedLocked() {
		price := p.CurrentPrice
		switch {
		case priceBreachedStop(price, p.StopLoss):
			out = append(out, Exit{Ticker: p.Ticker, Kind: ExitFull, Rule: RuleStopLoss, Price: price,
				Reason: fmt.Sprintf("stop %.2f hit at %.2f", p.StopLoss, price)})
		case p.Status == StatusOpen && targetHit(price, m.partialTarget(p)):
			out = append(out, Exit{Ticker: p.Ticker, Kind: ExitPartial, Portion: m.cfg.PartialPortion,
				Rule: RulePartialTarget, Price: price,
				Reason: fmt.Sprintf("partial target %.2f reached", m.partialTarget(p))})
		case targetHit(price, p.ProfitTarget):
			out = append(out, Exit{Ticker: p.Ticker, Kind: ExitFull, Rule: RuleFullTarget, Price: price,
				Reason: fmt.Sprintf("target %.2f reached", p.ProfitTarget)})
		}
	}
	return out
}

func (m *Manager) partialTarget(p *Position) float64 {
	return atrOffset(p.EntryPrice, p.ATR, m.cfg.StopATRMult*m.cfg.PartialRiskFrac)
}

// IntradayExits applies the percent-based profit and loss rules after the
// stop check: big profit, quick profit (once), trailing from peak, deep loss.
func (m *Manager) IntradayExits() []Exit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Exit
	for _, p := range m.sortedLocked() {
		if p.EntryPrice <= 0 || p.Quantity <= 0 {
			continue
		}
		price := p.CurrentPrice
		pnl := p.PnLPct()
		atr := p.ATR
		if atr <= 0 {
			atr = p.EntryPrice * 0.02
		}
		high := p.HighPrice
		if high < price {
			high = price
		}
		peakPct := pctChange(p.EntryPrice, high)
		switch {
		case priceBreachedStop(price, p.StopLoss):
			out = append(out, Exit{Ticker: p.Ticker, Kind: ExitFull, Rule: RuleStopLoss, Price: price,
				Reason: fmt.Sprintf("stop %.2f hit at %.2f", p.StopLoss, price)})
		case pnl >= m.cfg.BigProfitPct:
			out = append(out, Exit{Ticker: p.Ticker, Kind: ExitFull, Rule: RuleBigProfit, Price: price,
				Reason: fmt.Sprintf("big profit %+.1f%%", pnl)})
		case pnl >= m.cfg.QuickProfitPct && p.Status == StatusOpen:
			out = append(out, Exit{Ticker: p.Ticker, Kind: ExitPartial, Portion: m.cfg.QuickPortion,
				Rule: RuleQuickProfit, Price: price, Reason: fmt.Sprintf("quick profit %+.1f%%", pnl)})
		case peakPct > m.cfg.TrailActivatePct && price < high-m.cfg.TrailATR*atr:
			out = append(out, Exit{Ticker: p.Ticker, Kind: ExitFull, Rule: RuleTrailingPeak, Price: price,
				Reason: fmt.Sprintf("peaked %+.1f%%, dropped %.1f%% from high", peakPct, (high-price)/high*100)})
		case pnl <= m.cfg.DeepLossPct:
			out = append(out, Exit{Ticker: p.Ticker, Kind: ExitFull, Rule: RuleDeepLoss, Price: price,
				Reason: fmt.Sprintf("deep loss %+.1f%%", pnl)})
		}
	}
	return out
}

// StaleExits flags positions held longer than StaleAfter that have not moved
// at least StaleMinMovePct in favour.
func (m *Manager) StaleExits() []Exit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	var out []Exit
	for _, p := range m.sortedLocked() {
		held := p.HeldFor(now)
		if held < m.cfg.StaleAfter {
			continue
		}
		pnl := p.PnLPct()
		if pnl >= m.cfg.StaleMinMovePct {
			continue
		}
		out = append(out, Exit{Ticker: p.Ticker, Kind: ExitFull, Rule: RuleRecycle, Price: p.CurrentPrice,
			Reason: fmt.Sprintf("held %.1fh at %+.2f%%", held.Hours(), pnl)})
	}
	return out
}

// MergeExits concatenates scans keeping only the first intent per ticker.
func MergeExits(scans ...[]Exit) []Exit {
	seen := map[string]bool{}
	var out []Exit
	for _, scan := range scans {
		for _, e := range scan {
			if seen[e.Ticker] {
				continue
			}
			seen[e.Ticker] = true
			out = append(out, e)
		}
	}
	return out
}

func (m *Manager) sortedLocked() []*Position {
	out := make([]*Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}
