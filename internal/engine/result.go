package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"smartbot/internal/gateway/broker"
	"smartbot/internal/pkg/text"
	"smartbot/internal/risk"
)

// Decision kinds.
const (
	DecisionBuy      = "buy"
	DecisionSell     = "sell"
	DecisionPartial  = "partial"
	DecisionHold     = "hold"
	DecisionSkip     = "skip"
	DecisionSignal   = "sell_signal"
	DecisionError    = "error"
	DecisionReplayed = "replayed"
)

// Decision is the outcome for one ticker or one exit intent.
type Decision struct {
	Ticker     string   `json:"ticker"`
	Action     string   `json:"action"`
	Quantity   float64  `json:"quantity,omitempty"`
	Price      float64  `json:"price,omitempty"`
	Score      int      `json:"score,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	Rule       string   `json:"rule,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	OrderID    string   `json:"order_id,omitempty"`
	Boosts     []string `json:"boosts,omitempty"`
	Brain      []string `json:"brain,omitempty"`
	DryRun     bool     `json:"dry_run,omitempty"`
	Err        string   `json:"error,omitempty"`
}

// CycleResult is the report of one RunCycle.
type CycleResult struct {
	ID             string            `json:"id"`
	Started        time.Time         `json:"started"`
	Finished       time.Time         `json:"finished"`
	DryRun         bool              `json:"dry_run"`
	Cancelled      int               `json:"cancelled_orders"`
	Cash           broker.Cash       `json:"cash"`
	DynamicRisk    float64           `json:"dynamic_risk"`
	AdjustedRisk   float64           `json:"adjusted_risk"`
	Kelly          float64           `json:"kelly"`
	Stats          risk.Stats        `json:"stats"`
	Regime         risk.MarketRegime `json:"regime"`
	CircuitBreaker bool              `json:"circuit_breaker"`
	Blocked        map[string]string `json:"blocked,omitempty"`
	Ranked         []string          `json:"ranked,omitempty"`
	Exits          []Decision        `json:"exits,omitempty"`
	Decisions      []Decision        `json:"decisions,omitempty"`
	Err            string            `json:"error,omitempty"`
}

func (r *CycleResult) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// Count returns how many decisions (exits included) have action.
func (r *CycleResult) Count(action string) int {
	n := 0
	for _, d := range r.Exits {
		if d.Action == action {
			n++
		}
	}
	for _, d := range r.Decisions {
		if d.Action == action {
			n++
		}
	}
	return n
}

// Lines renders the summary block.
func (r *CycleResult) Lines() []string {
	lines := []string{
		fmt.Sprintf("cycle %s (%s)", shortID(r.ID), r.Duration().Round(time.Millisecond)),
		fmt.Sprintf("cash $%.2f free / $%.2f total", r.Cash.Free, r.Cash.Total),
		fmt.Sprintf("risk %.1f%% x %s %.2f -> %.1f%%, kelly %.1f%%",
			r.DynamicRisk*100, r.Regime.Name, r.Regime.Multiplier, r.AdjustedRisk*100, r.Kelly*100),
	}
	if r.CircuitBreaker {
		lines = append(lines, "circuit breaker: no new entries")
	}
	if len(r.Blocked) > 0 {
		names := make([]string, 0, len(r.Blocked))
		for t := range r.Blocked {
			names = append(names, t)
		}
		sort.Strings(names)
		lines = append(lines, "blocked: "+strings.Join(names, ", "))
	}
	for _, d := range append(append([]Decision(nil), r.Exits...), r.Decisions...) {
		if d.Action == DecisionHold {
			continue
		}
		line := fmt.Sprintf("%-8s %-8s", d.Ticker, strings.ToUpper(d.Action))
		if d.Quantity > 0 {
			line += fmt.Sprintf(" %.2f @ %.2f", d.Quantity, d.Price)
		}
		if d.Reason != "" {
			line += " " + text.Truncate(d.Reason, 48)
		}
		lines = append(lines, line)
	}
	if r.Err != "" {
		lines = append(lines, "error: "+r.Err)
	}
	return lines
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
