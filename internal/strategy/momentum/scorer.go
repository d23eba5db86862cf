// Package momentum 实现基于加权因子表的动量评分与相对强弱排序。
package momentum

import (
	"fmt"
	"math"
	"strings"
	"time"

	"smartbot/internal/analysis/indicator"
	"smartbot/internal/market"
)

type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Signal is the scorer's verdict for one ticker.
type Signal struct {
	Ticker     string   `json:"ticker"`
	Action     Action   `json:"action"`
	Score      int      `json:"score"`
	Confidence float64  `json:"confidence"`
	Price      float64  `json:"price"`
	StopLoss   float64  `json:"stop_loss"`
	ATR        float64  `json:"atr"`
	RSI        float64  `json:"rsi"`
	Pct1       float64  `json:"pct_1"`
	Factors    []string `json:"factors"`
	Hits       []Hit    `json:"-"`
	Reason     string   `json:"reason"`
}

// TopFactors returns at most n factor labels.
func (s Signal) TopFactors(n int) []string {
	if len(s.Factors) <= n {
		return append([]string(nil), s.Factors...)
	}
	return append([]string(nil), s.Factors[:n]...)
}

// Scorer turns an indicator frame into a Signal.
type Scorer struct {
	Rules        []Group
	MinBars      int
	BuyScore     int
	SellScore    int
	SellRSI      float64
	StopATRMult  float64
	FallbackATR  float64 // fraction of price used when ATR is undefined
	ReasonFactor int
}

func NewScorer() *Scorer {
	return &Scorer{
		Rules:        DefaultRules(),
		MinBars:      30,
		BuyScore:     50,
		SellScore:    15,
		SellRSI:      75,
		StopATRMult:  2,
		FallbackATR:  0.02,
		ReasonFactor: 6,
	}
}

// Score evaluates the latest bar of f. at is the evaluation time used for
// session-relative rules, so the same frame and time always give the same Signal.
func (s *Scorer) Score(ticker string, f *indicator.Frame, at time.Time) Signal {
	sig := Signal{Ticker: ticker, Action: ActionHold}
	if f == nil || f.Len() < s.MinBars {
		if f != nil && f.Len() > 0 {
			sig.Price = f.Candles[f.Len()-1].Close
		}
		sig.Reason = "insufficient data"
		return sig
	}
	in := s.inputs(f, at)
	cur := f.At(-1)

	raw, hits := Evaluate(s.Rules, in)
	score := clampInt(raw, 0, 100)

	atr := cur.ATR
	if !indicator.Valid(atr) {
		atr = in.Price * s.FallbackATR
	}

	sig.Score = score
	sig.Price = in.Price
	sig.ATR = atr
	sig.RSI = in.RSI
	sig.Pct1 = in.Pct1
	sig.Hits = hits
	sig.StopLoss = in.Price - s.StopATRMult*atr
	for _, h := range hits {
		sig.Factors = append(sig.Factors, h.Label)
	}

	switch {
	case score >= s.BuyScore:
		sig.Action = ActionBuy
		sig.Confidence = math.Min(1, 0.5+float64(score-s.BuyScore)/100)
	case score <= s.SellScore && in.RSI > s.SellRSI:
		sig.Action = ActionSell
		sig.Confidence = 0.7
	}

	summary := "No signals"
	if len(sig.Factors) > 0 {
		summary = strings.Join(sig.TopFactors(s.ReasonFactor), " + ")
	}
	sig.Reason = fmt.Sprintf("Score:%d/100 [%s]", score, summary)
	return sig
}

func (s *Scorer) inputs(f *indicator.Frame, at time.Time) Inputs {
	cur := f.At(-1)
	prev := f.At(-2)
	prev2 := f.At(-3)
	in := Inputs{
		Price:            cur.Close,
		PrevClose:        prev.Close,
		Prev2Close:       prev2.Close,
		SMAShort:         cur.SMAShort,
		SMALong:          cur.SMALong,
		PrevSMAShort:     prev.SMAShort,
		PrevSMALong:      prev.SMALong,
		RSI:              indicator.Or(cur.RSI, 50),
		MACDHist:         indicator.Or(cur.MACDHist, 0),
		PrevMACDHist:     indicator.Or(prev.MACDHist, 0),
		BBUpper:          cur.BBUpper,
		BBLower:          cur.BBLower,
		Volume:           cur.Volume,
		VolumeMean:       cur.VolumeMean,
		VWAP:             cur.VWAP,
		MinutesSinceOpen: market.MinutesSinceOpen(at),
	}
	if prev.Close > 0 {
		in.Pct1 = (cur.Close - prev.Close) / prev.Close * 100
	}
	if prev2.Close > 0 {
		in.Pct2 = (cur.Close - prev2.Close) / prev2.Close * 100
	}
	return in
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
