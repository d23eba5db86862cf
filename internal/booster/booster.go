// Package booster 把各类置信度调整拆成独立的命名阶段，每个阶段返回 (乘数, 理由)。
// 阶段失败按 ×1.0 处理，不会中断整条流水线。
package booster

import (
	"context"
	"fmt"
	"math"
	"strings"

	"smartbot/internal/analysis/indicator"
	"smartbot/internal/logger"
	"smartbot/internal/strategy/momentum"
)

// Input is what a stage sees for one ticker.
type Input struct {
	Ticker string
	Signal momentum.Signal
	// Frame is the primary intraday frame the signal was scored on.
	Frame *indicator.Frame
	// Regime is filled by RegimeStage and read by later stages.
	Regime string
	// RegimeMult and VolMult feed position sizing; zero means not measured.
	RegimeMult float64
	VolMult    float64
}

func (in *Input) Action() momentum.Action { return in.Signal.Action }

// SizeMultiplier is RegimeMult*VolMult with unmeasured factors counted as 1.
func (in *Input) SizeMultiplier() float64 {
	m := 1.0
	if in.RegimeMult > 0 {
		m *= in.RegimeMult
	}
	if in.VolMult > 0 {
		m *= in.VolMult
	}
	return m
}

// Stage adjusts confidence. conf is the running confidence before this stage.
type Stage interface {
	Name() string
	Adjust(ctx context.Context, in *Input, conf float64) (mult float64, rationale string, err error)
}

// StageFunc adapts a function to Stage.
type StageFunc struct {
	ID string
	Fn func(ctx context.Context, in *Input, conf float64) (float64, string, error)
}

func (s StageFunc) Name() string { return s.ID }

func (s StageFunc) Adjust(ctx context.Context, in *Input, conf float64) (float64, string, error) {
	return s.Fn(ctx, in, conf)
}

// Adjustment records one applied stage.
type Adjustment struct {
	Stage      string  `json:"stage"`
	Multiplier float64 `json:"multiplier"`
	Rationale  string  `json:"rationale,omitempty"`
	Err        string  `json:"error,omitempty"`
}

type Result struct {
	Confidence  float64      `json:"confidence"`
	Adjustments []Adjustment `json:"adjustments"`
}

// Boosts lists rationales of stages that moved confidence.
func (r Result) Boosts() []string {
	var out []string
	for _, a := range r.Adjustments {
		if a.Multiplier != 1 && a.Rationale != "" {
			out = append(out, a.Rationale)
		}
	}
	return out
}

// Pipeline applies stages in order.
type Pipeline struct {
	Stages []Stage
}

func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{Stages: stages}
}

func (p *Pipeline) Run(ctx context.Context, in *Input, conf float64) Result {
	res := Result{Confidence: conf}
	if p == nil {
		return res
	}
	for _, st := range p.Stages {
		mult, why, err := st.Adjust(ctx, in, res.Confidence)
		adj := Adjustment{Stage: st.Name(), Multiplier: 1, Rationale: why}
		switch {
		case err != nil:
			adj.Err = err.Error()
			logger.Debugf("booster: %s %s 跳过: %v", in.Ticker, st.Name(), err)
		case math.IsNaN(mult) || math.IsInf(mult, 0) || mult < 0:
			adj.Err = fmt.Sprintf("invalid multiplier %v", mult)
		default:
			adj.Multiplier = mult
			res.Confidence *= mult
		}
		if adj.Multiplier != 1 {
			logger.Debugf("booster: %s %s x%.3f %s", in.Ticker, st.Name(), adj.Multiplier, why)
		}
		res.Adjustments = append(res.Adjustments, adj)
	}
	return res
}

// Summary renders the applied multipliers for logs.
func (r Result) Summary() string {
	parts := make([]string, 0, len(r.Adjustments))
	for _, a := range r.Adjustments {
		if a.Multiplier == 1 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%.2f", a.Stage, a.Multiplier))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}

// Cap scales confidence down to max when above it.
func Cap(limit float64) Stage {
	return StageFunc{ID: "cap", Fn: func(_ context.Context, _ *Input, conf float64) (float64, string, error) {
		if conf > limit && conf > 0 {
			return limit / conf, "", nil
		}
		return 1, "", nil
	}}
}
