// Package yahoo fetches OHLCV history from a Yahoo-style chart API.
package yahoo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"smartbot/internal/market"
	"smartbot/internal/pkg/text"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

type Config struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64
	UserAgent     string
}

// Client implements market.Source.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
}

var _ market.Source = (*Client)(nil)

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 4
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 smartbot"
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		userAgent:  cfg.UserAgent,
	}
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) History(ctx context.Context, ticker, period, interval string) ([]market.Candle, error) {
	symbol := market.BaseTicker(ticker)
	if symbol == "" {
		return nil, errors.New("yahoo: empty ticker")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("range", period)
	q.Set("interval", interval)
	q.Set("includePrePost", "false")
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo %s: %w", symbol, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("yahoo %s: %w", symbol, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, market.ErrNoData
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("yahoo %s: %s: %s", symbol, resp.Status, text.Truncate(strings.TrimSpace(string(body)), 200))
	}
	step, _ := market.ParseSpan(interval)
	return ParseChart(body, step)
}

// ParseChart decodes a chart response. Bars with a missing close are dropped.
func ParseChart(body []byte, step time.Duration) ([]market.Candle, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("yahoo: invalid json")
	}
	root := gjson.ParseBytes(body)
	if desc := root.Get("chart.error.description"); desc.Exists() && desc.String() != "" {
		return nil, fmt.Errorf("yahoo: %s", desc.String())
	}
	res := root.Get("chart.result.0")
	if !res.Exists() {
		return nil, market.ErrNoData
	}
	ts := res.Get("timestamp").Array()
	quote := res.Get("indicators.quote.0")
	opens := quote.Get("open").Array()
	highs := quote.Get("high").Array()
	lows := quote.Get("low").Array()
	closes := quote.Get("close").Array()
	volumes := quote.Get("volume").Array()

	out := make([]market.Candle, 0, len(ts))
	for i, t := range ts {
		c, ok := at(closes, i)
		if !ok || c <= 0 {
			continue
		}
		open := time.Unix(t.Int(), 0)
		candle := market.Candle{
			OpenTime:  open.UnixMilli(),
			CloseTime: open.Add(step).UnixMilli(),
			Close:     c,
			Open:      valueOr(opens, i, c),
			High:      valueOr(highs, i, c),
			Low:       valueOr(lows, i, c),
			Volume:    valueOr(volumes, i, 0),
		}
		out = append(out, candle)
	}
	if len(out) == 0 {
		return nil, market.ErrNoData
	}
	return out, nil
}

func at(xs []gjson.Result, i int) (float64, bool) {
	if i >= len(xs) || xs[i].Type != gjson.Number {
		return 0, false
	}
	v := xs[i].Float()
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func valueOr(xs []gjson.Result, i int, def float64) float64 {
	if v, ok := at(xs, i); ok {
		return v
	}
	return def
}
