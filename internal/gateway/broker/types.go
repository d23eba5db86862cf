package broker

import (
	"context"
	"strings"
)

// Order statuses as reported by the broker. Comparisons are case-insensitive.
const (
	StatusNew       = "NEW"
	StatusPending   = "PENDING"
	StatusFilled    = "FILLED"
	StatusCancelled = "CANCELLED"
	StatusRejected  = "REJECTED"
	// StatusUnknown is reported when fill polling times out.
	StatusUnknown = "UNKNOWN"
)

// Cash is the account balance. Free is what can be spent now.
type Cash struct {
	Free  float64 `json:"free"`
	Total float64 `json:"total"`
}

// Holding is one broker-side position.
type Holding struct {
	Ticker       string  `json:"ticker"`
	Quantity     float64 `json:"quantity"`
	AveragePrice float64 `json:"averagePrice"`
	CurrentPrice float64 `json:"currentPrice"`
	PPL          float64 `json:"ppl"`
	FxPPL        float64 `json:"fxPpl"`
}

// PnLPct is the unrealized move from average price in percent.
func (h Holding) PnLPct() float64 {
	if h.AveragePrice <= 0 {
		return 0
	}
	return (h.CurrentPrice - h.AveragePrice) / h.AveragePrice * 100
}

// Order is the subset of order fields the engine reads.
type Order struct {
	ID             string  `json:"id"`
	Ticker         string  `json:"ticker"`
	Quantity       float64 `json:"quantity"`
	FilledQuantity float64 `json:"filledQuantity"`
	FilledValue    float64 `json:"filledValue"`
	Status         string  `json:"status"`
	// Replayed is set when the order was not sent because the same intent
	// was already submitted inside the idempotency window.
	Replayed bool `json:"-"`
}

func (o Order) Is(statuses ...string) bool {
	for _, s := range statuses {
		if strings.EqualFold(o.Status, s) {
			return true
		}
	}
	return false
}

// Broker is the brokerage collaborator. Quantity is signed: negative sells.
type Broker interface {
	Cash(ctx context.Context) (Cash, error)
	Portfolio(ctx context.Context) ([]Holding, error)
	PlaceOrder(ctx context.Context, ticker string, quantity float64, idempotencyKey string) (Order, error)
	GetOrder(ctx context.Context, id string) (Order, error)
	ListOrders(ctx context.Context) ([]Order, error)
	CancelOrder(ctx context.Context, id string) error
}
