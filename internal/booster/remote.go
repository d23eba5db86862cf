package booster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"smartbot/internal/strategy/momentum"
)

// Direction of an external signal.
type Direction int

const (
	Sell Direction = -1
	Hold Direction = 0
	Buy  Direction = 1
)

func directionOf(a momentum.Action) Direction {
	switch a {
	case momentum.ActionBuy:
		return Buy
	case momentum.ActionSell:
		return Sell
	}
	return Hold
}

// SignalSource is an external predictor: pattern, sentiment, ensemble.
type SignalSource interface {
	Signal(ctx context.Context, kind, ticker string) (Direction, float64, error)
}

// RemoteSignals queries {base}/{kind}?ticker=T and expects
// {"direction": "buy"|"sell"|"hold" or 1|0|-1, "confidence": 0..1}.
type RemoteSignals struct {
	BaseURL string
	Client  *http.Client
}

func NewRemoteSignals(base string, timeout time.Duration) *RemoteSignals {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RemoteSignals{BaseURL: strings.TrimRight(base, "/"), Client: &http.Client{Timeout: timeout}}
}

func (r *RemoteSignals) Signal(ctx context.Context, kind, ticker string) (Direction, float64, error) {
	endpoint := fmt.Sprintf("%s/%s?ticker=%s", r.BaseURL, url.PathEscape(kind), url.QueryEscape(ticker))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Hold, 0, err
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return Hold, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Hold, 0, err
	}
	if resp.StatusCode >= 300 {
		return Hold, 0, fmt.Errorf("%s booster: %s", kind, resp.Status)
	}
	return ParseSignal(body)
}

// ParseSignal decodes a remote booster response.
func ParseSignal(body []byte) (Direction, float64, error) {
	if !gjson.ValidBytes(body) {
		return Hold, 0, errors.New("invalid booster response")
	}
	res := gjson.ParseBytes(body)
	d := res.Get("direction")
	if !d.Exists() {
		d = res.Get("signal")
	}
	if !d.Exists() {
		return Hold, 0, errors.New("booster response has no direction")
	}
	dir := Hold
	switch d.Type {
	case gjson.Number:
		switch {
		case d.Float() > 0:
			dir = Buy
		case d.Float() < 0:
			dir = Sell
		}
	default:
		switch strings.ToLower(d.String()) {
		case "buy", "bullish", "long":
			dir = Buy
		case "sell", "bearish", "short":
			dir = Sell
		}
	}
	conf := clamp01(res.Get("confidence").Float())
	return dir, conf, nil
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

// PatternStage: chart-pattern agreement x1.25 (confidence > 0.6), conflict x0.75.
type PatternStage struct {
	Source SignalSource
}

func (PatternStage) Name() string { return "pattern" }

func (s PatternStage) Adjust(ctx context.Context, in *Input, _ float64) (float64, string, error) {
	dir, conf, err := s.Source.Signal(ctx, "pattern", in.Ticker)
	if err != nil {
		return 1, "", err
	}
	want := directionOf(in.Action())
	switch {
	case dir == want && conf > 0.6:
		return 1.25, fmt.Sprintf("Pat:%.2f", conf), nil
	case dir != Hold && dir != want:
		return 0.75, "Pat:conflict", nil
	}
	return 1, "", nil
}

// SentimentStage: 1 + direction*confidence*0.2.
type SentimentStage struct {
	Source SignalSource
}

func (SentimentStage) Name() string { return "sentiment" }

func (s SentimentStage) Adjust(ctx context.Context, in *Input, _ float64) (float64, string, error) {
	dir, conf, err := s.Source.Signal(ctx, "sentiment", in.Ticker)
	if err != nil {
		return 1, "", err
	}
	boost := 1 + float64(dir)*conf*0.2
	if boost == 1 {
		return 1, "", nil
	}
	return boost, fmt.Sprintf("Sent:%.2f", boost), nil
}

// EnsembleStage runs only on buy/sell signals with at least MinBars bars.
// Agreement raises confidence by 15% but not past 1; a sell prediction
// against a buy cuts it by 30%.
type EnsembleStage struct {
	Source  SignalSource
	MinBars int
}

func (EnsembleStage) Name() string { return "ensemble" }

func (s EnsembleStage) Adjust(ctx context.Context, in *Input, conf float64) (float64, string, error) {
	want := directionOf(in.Action())
	if want == Hold {
		return 1, "", nil
	}
	minBars := s.MinBars
	if minBars <= 0 {
		minBars = 60
	}
	if in.Frame == nil || in.Frame.Len() < minBars {
		return 1, "", nil
	}
	dir, _, err := s.Source.Signal(ctx, "ensemble", in.Ticker)
	if err != nil {
		return 1, "", err
	}
	switch {
	case dir == want:
		if conf <= 0 {
			return 1, "", nil
		}
		return min(conf*1.15, 1) / conf, "Ens:agree", nil
	case want == Buy && dir == Sell:
		return 0.7, "Ens:conflict", nil
	}
	return 1, "", nil
}
