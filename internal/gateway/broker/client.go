package broker

import (
	"bytes"
	"context"
	"encoding/json"
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

	"smartbot/internal/logger"
	"smartbot/internal/pkg/circuit"
	"smartbot/internal/pkg/text"
)

// Config configures the REST client.
type Config struct {
	BaseURL        string
	APIKey         string
	APISecret      string
	Timeout        time.Duration
	RatePerSecond  float64
	Burst          int
	MaxQuantity    float64
	ReadRetries    int
	BreakerFailure int
	BreakerCooloff time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 1
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.MaxQuantity <= 0 {
		c.MaxQuantity = 100
	}
	if c.ReadRetries <= 0 {
		c.ReadRetries = 3
	}
	if c.BreakerFailure <= 0 {
		c.BreakerFailure = 5
	}
	if c.BreakerCooloff <= 0 {
		c.BreakerCooloff = time.Minute
	}
	return c
}

// Client talks to the broker's equity REST API with basic auth.
type Client struct {
	cfg        Config
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *circuit.CircuitBreaker
	sleep      func(ctx context.Context, d time.Duration) error
}

var _ Broker = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("broker.base_url 不能为空")
	}
	parsed, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("解析 broker.base_url 失败: %w", err)
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("broker credentials are not set")
	}
	return &Client{
		cfg:        cfg,
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		breaker:    circuit.NewCircuitBreaker("broker", cfg.BreakerFailure, cfg.BreakerCooloff),
		sleep:      sleepCtx,
	}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Breaker exposes the breaker state for the status API.
func (c *Client) Breaker() *circuit.CircuitBreaker { return c.breaker }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) Cash(ctx context.Context) (Cash, error) {
	body, err := c.read(ctx, "cash", "/equity/account/cash")
	if err != nil {
		return Cash{}, err
	}
	res := gjson.ParseBytes(body)
	if !res.IsObject() {
		return Cash{}, newError(KindValidation, "cash", 0, errors.New("malformed cash response"))
	}
	cash := Cash{Free: res.Get("free").Float(), Total: res.Get("total").Float()}
	if cash.Total <= 0 {
		cash.Total = cash.Free + res.Get("invested").Float()
	}
	return cash, nil
}

func (c *Client) Portfolio(ctx context.Context) ([]Holding, error) {
	body, err := c.read(ctx, "portfolio", "/equity/portfolio")
	if err != nil {
		return nil, err
	}
	var out []Holding
	res := gjson.ParseBytes(body)
	if !res.IsArray() {
		return nil, newError(KindValidation, "portfolio", 0, errors.New("malformed portfolio response"))
	}
	res.ForEach(func(_, v gjson.Result) bool {
		h := Holding{
			Ticker:       v.Get("ticker").String(),
			Quantity:     v.Get("quantity").Float(),
			AveragePrice: v.Get("averagePrice").Float(),
			CurrentPrice: v.Get("currentPrice").Float(),
			PPL:          v.Get("ppl").Float(),
			FxPPL:        v.Get("fxPpl").Float(),
		}
		if h.Ticker != "" {
			out = append(out, h)
		}
		return true
	})
	return out, nil
}

func (c *Client) GetOrder(ctx context.Context, id string) (Order, error) {
	if strings.TrimSpace(id) == "" {
		return Order{}, newError(KindValidation, "get_order", 0, errors.New("order id 必填"))
	}
	body, err := c.read(ctx, "get_order", "/equity/orders/"+url.PathEscape(id))
	if err != nil {
		return Order{}, err
	}
	return parseOrder(gjson.ParseBytes(body)), nil
}

func (c *Client) ListOrders(ctx context.Context) ([]Order, error) {
	body, err := c.read(ctx, "list_orders", "/equity/orders")
	if err != nil {
		return nil, err
	}
	var out []Order
	gjson.ParseBytes(body).ForEach(func(_, v gjson.Result) bool {
		out = append(out, parseOrder(v))
		return true
	})
	return out, nil
}

func (c *Client) CancelOrder(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return newError(KindValidation, "cancel_order", 0, errors.New("order id 必填"))
	}
	_, err := c.guarded(ctx, "cancel_order", http.MethodDelete, "/equity/orders/"+url.PathEscape(id), nil, nil)
	return err
}

// PlaceOrder submits a market order. Orders are never retried here; a
// transient failure is surfaced so the caller can decide.
func (c *Client) PlaceOrder(ctx context.Context, ticker string, quantity float64, key string) (Order, error) {
	const op = "place_order"
	if ticker == "" || quantity == 0 || math.IsNaN(quantity) {
		return Order{}, newError(KindValidation, op, 0, fmt.Errorf("invalid order %q qty=%v", ticker, quantity))
	}
	if math.Abs(quantity) > c.cfg.MaxQuantity {
		return Order{}, newError(KindValidation, op, 0,
			fmt.Errorf("quantity %.4f exceeds the maximum allowed %.0f", quantity, c.cfg.MaxQuantity))
	}
	headers := map[string]string{}
	if key != "" {
		headers["Idempotency-Key"] = key
	}
	payload := map[string]any{"ticker": ticker, "quantity": quantity}
	logger.Infof("broker: 下单 %s qty=%.4f key=%s", ticker, quantity, key)
	body, err := c.guarded(ctx, op, http.MethodPost, "/equity/orders/market", payload, headers)
	if err != nil {
		return Order{}, err
	}
	res := gjson.ParseBytes(body)
	if !res.IsObject() {
		return Order{}, newError(KindValidation, op, 0, errors.New("malformed order response"))
	}
	order := parseOrder(res)
	if order.ID == "" {
		return Order{}, newError(KindValidation, op, 0, fmt.Errorf("order response missing id: %s", truncate(body)))
	}
	if order.Ticker == "" {
		order.Ticker = ticker
	}
	if order.Quantity == 0 {
		order.Quantity = quantity
	}
	return order, nil
}

// read retries transient failures with a linear backoff.
func (c *Client) read(ctx context.Context, op, path string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.ReadRetries; attempt++ {
		body, err := c.guarded(ctx, op, http.MethodGet, path, nil, nil)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return nil, err
		}
		logger.Warnf("broker: %s transient failure (attempt %d/%d): %v", op, attempt+1, c.cfg.ReadRetries, err)
		if attempt+1 < c.cfg.ReadRetries {
			if serr := c.sleep(ctx, time.Duration(attempt+1)*500*time.Millisecond); serr != nil {
				return nil, serr
			}
		}
	}
	return nil, lastErr
}

func (c *Client) guarded(ctx context.Context, op, method, path string, payload any, headers map[string]string) ([]byte, error) {
	var body []byte
	err := c.breaker.Do(func() error {
		var err error
		body, err = c.do(ctx, op, method, path, payload, headers)
		return err
	}, IsTransient)
	if errors.Is(err, circuit.ErrOpen) {
		return nil, newError(KindTransient, op, 0, err)
	}
	return body, err
}

func (c *Client) do(ctx context.Context, op, method, path string, payload any, headers map[string]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var reader io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("序列化请求失败: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return nil, fmt.Errorf("构造请求失败: %w", err)
	}
	req.SetBasicAuth(c.cfg.APIKey, c.cfg.APISecret)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, newError(KindTransient, op, 0, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, newError(KindTransient, op, resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 {
		return nil, newError(classify(resp.StatusCode), op, resp.StatusCode, errors.New(truncate(data)))
	}
	return data, nil
}

func parseOrder(v gjson.Result) Order {
	return Order{
		ID:             v.Get("id").String(),
		Ticker:         v.Get("ticker").String(),
		Quantity:       v.Get("quantity").Float(),
		FilledQuantity: v.Get("filledQuantity").Float(),
		FilledValue:    v.Get("filledValue").Float(),
		Status:         strings.ToUpper(v.Get("status").String()),
	}
}

func truncate(b []byte) string {
	return text.Truncate(strings.TrimSpace(string(b)), 256)
}
