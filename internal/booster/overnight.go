package booster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"smartbot/internal/logger"
	"smartbot/internal/market"
	"smartbot/internal/strategy/momentum"
)

// RecommendationPriority moves a ticker to the front of the scan.
const RecommendationPriority = "PRIORITY BUY"

const watchlistSchema = `{
  "type": "object",
  "required": ["watchlist"],
  "properties": {
    "timestamp": {"type": "string"},
    "watchlist": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["symbol"],
        "properties": {
          "symbol": {"type": "string", "minLength": 1},
          "edge_score": {"type": "number"},
          "recommendation": {"type": "string"}
        }
      }
    }
  }
}`

var compiledWatchlistSchema = mustCompileSchema(watchlistSchema)

func mustCompileSchema(src string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("watchlist.json", strings.NewReader(src)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("watchlist.json")
}

// WatchEntry is one overnight pick.
type WatchEntry struct {
	Symbol         string  `json:"symbol"`
	EdgeScore      float64 `json:"edge_score"`
	Recommendation string  `json:"recommendation"`
}

// Watchlist maps base symbols to overnight edge data.
type Watchlist struct {
	Timestamp time.Time
	Entries   map[string]WatchEntry
}

func (w *Watchlist) Len() int {
	if w == nil {
		return 0
	}
	return len(w.Entries)
}

func (w *Watchlist) Get(ticker string) (WatchEntry, bool) {
	if w == nil {
		return WatchEntry{}, false
	}
	e, ok := w.Entries[market.BaseTicker(ticker)]
	return e, ok
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, market.Exchange()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// ParseWatchlist validates raw against the watchlist schema. A list older
// than maxAge relative to now yields (nil, nil).
func ParseWatchlist(raw []byte, now time.Time, maxAge time.Duration) (*Watchlist, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode watchlist: %w", err)
	}
	if err := compiledWatchlistSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("watchlist schema: %w", err)
	}
	var file struct {
		Timestamp string       `json:"timestamp"`
		Watchlist []WatchEntry `json:"watchlist"`
	}
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, err
	}
	wl := &Watchlist{Entries: make(map[string]WatchEntry, len(file.Watchlist))}
	if file.Timestamp != "" {
		ts, err := parseTimestamp(file.Timestamp)
		if err != nil {
			return nil, err
		}
		wl.Timestamp = ts
		if maxAge > 0 && now.Sub(ts) > maxAge {
			logger.Infof("overnight: watchlist stale (%s old), ignoring", now.Sub(ts).Round(time.Minute))
			return nil, nil
		}
	}
	for _, e := range file.Watchlist {
		wl.Entries[market.BaseTicker(e.Symbol)] = e
	}
	return wl, nil
}

// LoadWatchlist reads path. A missing file is not an error.
func LoadWatchlist(path string, now time.Time, maxAge time.Duration) (*Watchlist, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ParseWatchlist(raw, now, maxAge)
}

// Resort puts PRIORITY BUY tickers first, then higher edge. Ties keep their order.
func (w *Watchlist) Resort(tickers []string) []string {
	out := append([]string(nil), tickers...)
	if w.Len() == 0 {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, _ := w.Get(out[i])
		b, _ := w.Get(out[j])
		pa := a.Recommendation == RecommendationPriority
		pb := b.Recommendation == RecommendationPriority
		if pa != pb {
			return pa
		}
		return a.EdgeScore > b.EdgeScore
	})
	return out
}

// EdgeMultiplier applies to buys only.
func EdgeMultiplier(edge float64) float64 {
	switch {
	case edge >= 25:
		return min(1.15+(edge-25)/200, 1.5)
	case edge >= 10:
		return 1.05
	case edge <= -15:
		return 0.8
	}
	return 1
}

// OvernightStage boosts buys by the ticker's overnight edge score.
type OvernightStage struct {
	List *Watchlist
}

func (OvernightStage) Name() string { return "overnight" }

func (s *OvernightStage) Adjust(_ context.Context, in *Input, _ float64) (float64, string, error) {
	if in.Action() != momentum.ActionBuy {
		return 1, "", nil
	}
	e, ok := s.List.Get(in.Ticker)
	if !ok {
		return 1, "", nil
	}
	m := EdgeMultiplier(e.EdgeScore)
	if m == 1 {
		return 1, "", nil
	}
	return m, fmt.Sprintf("Night:%+.0f", e.EdgeScore), nil
}
