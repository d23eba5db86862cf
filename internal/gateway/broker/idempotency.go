package broker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"

	"smartbot/internal/logger"
)

var orderNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("smartbot/orders"))

// IdempotencyKey is a deterministic key for an order intent.
func IdempotencyKey(ticker string, quantity float64) string {
	sum := sha256.Sum256([]byte(ticker + ":" + strconv.FormatFloat(quantity, 'f', -1, 64)))
	return uuid.NewSHA1(orderNamespace, []byte(hex.EncodeToString(sum[:]))).String()
}

// KeyStore remembers submitted keys across restarts.
type KeyStore interface {
	SeenOrderKey(ctx context.Context, key string, since time.Time) (string, bool, error)
	RememberOrderKey(ctx context.Context, key, orderID, ticker string, qty float64) error
	ForgetOrderKey(ctx context.Context, key string) error
}

// Placer submits orders at most once per intent inside Window. A key lives
// from submission until Settle: a crash in between replays the intent
// instead of resending it.
type Placer struct {
	Broker Broker
	Keys   KeyStore
	Window time.Duration
	Now    func() time.Time
}

func NewPlacer(b Broker, keys KeyStore, window time.Duration) *Placer {
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &Placer{Broker: b, Keys: keys, Window: window, Now: time.Now}
}

func (p *Placer) Place(ctx context.Context, ticker string, quantity float64) (Order, error) {
	key := IdempotencyKey(ticker, quantity)
	if p.Keys != nil {
		id, seen, err := p.Keys.SeenOrderKey(ctx, key, p.Now().Add(-p.Window))
		if err != nil {
			logger.Warnf("broker: idempotency lookup failed for %s: %v", ticker, err)
		} else if seen {
			logger.Warnf("broker: %s qty=%.4f already submitted as %s, not resending", ticker, quantity, id)
			return Order{ID: id, Ticker: ticker, Quantity: quantity, Status: StatusUnknown, Replayed: true}, nil
		}
	}
	order, err := p.Broker.PlaceOrder(ctx, ticker, quantity, key)
	if err != nil {
		return Order{}, err
	}
	if p.Keys != nil {
		if err := p.Keys.RememberOrderKey(ctx, key, order.ID, ticker, quantity); err != nil {
			logger.Warnf("broker: remember idempotency key for %s: %v", ticker, err)
		}
	}
	return order, nil
}

// Settle forgets the intent once its fill is booked, or once the broker
// cancelled or rejected it, so the same ticker and quantity can trade again.
func (p *Placer) Settle(ctx context.Context, ticker string, quantity float64) {
	if p.Keys == nil {
		return
	}
	if err := p.Keys.ForgetOrderKey(ctx, IdempotencyKey(ticker, quantity)); err != nil {
		logger.Warnf("broker: forget idempotency key for %s: %v", ticker, err)
	}
}
