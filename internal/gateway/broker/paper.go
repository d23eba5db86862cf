package broker

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"smartbot/internal/logger"
)

// PriceFunc quotes the latest price for ticker.
type PriceFunc func(ctx context.Context, ticker string) (float64, error)

// PaperBroker fills every market order instantly at the quoted price.
type PaperBroker struct {
	mu       sync.Mutex
	free     float64
	holdings map[string]*Holding
	orders   map[string]Order
	seq      int
	price    PriceFunc
}

var _ Broker = (*PaperBroker)(nil)

func NewPaperBroker(cash float64, price PriceFunc) *PaperBroker {
	return &PaperBroker{
		free:     cash,
		holdings: make(map[string]*Holding),
		orders:   make(map[string]Order),
		price:    price,
	}
}

func (p *PaperBroker) Cash(ctx context.Context) (Cash, error) {
	holdings, err := p.Portfolio(ctx)
	if err != nil {
		return Cash{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	total := p.free
	for _, h := range holdings {
		total += h.Quantity * h.CurrentPrice
	}
	return Cash{Free: p.free, Total: total}, nil
}

func (p *PaperBroker) Portfolio(ctx context.Context) ([]Holding, error) {
	p.mu.Lock()
	tickers := make([]string, 0, len(p.holdings))
	for t := range p.holdings {
		tickers = append(tickers, t)
	}
	p.mu.Unlock()
	sort.Strings(tickers)

	out := make([]Holding, 0, len(tickers))
	for _, t := range tickers {
		px, err := p.price(ctx, t)
		p.mu.Lock()
		h, ok := p.holdings[t]
		if !ok {
			p.mu.Unlock()
			continue
		}
		if err == nil && px > 0 {
			h.CurrentPrice = px
		}
		h.PPL = (h.CurrentPrice - h.AveragePrice) * h.Quantity
		out = append(out, *h)
		p.mu.Unlock()
	}
	return out, nil
}

func (p *PaperBroker) PlaceOrder(ctx context.Context, ticker string, quantity float64, key string) (Order, error) {
	const op = "place_order"
	if ticker == "" || quantity == 0 {
		return Order{}, newError(KindValidation, op, 0, fmt.Errorf("invalid order %q qty=%v", ticker, quantity))
	}
	px, err := p.price(ctx, ticker)
	if err != nil || px <= 0 {
		return Order{}, newError(KindRejected, op, 0, fmt.Errorf("no quote for %s: %v", ticker, err))
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	value := quantity * px
	h := p.holdings[ticker]
	switch {
	case quantity > 0:
		if value > p.free+1e-9 {
			return Order{}, newError(KindRejected, op, 0, fmt.Errorf("insufficient funds: need %.2f, free %.2f", value, p.free))
		}
		if h == nil {
			h = &Holding{Ticker: ticker}
			p.holdings[ticker] = h
		}
		h.AveragePrice = (h.AveragePrice*h.Quantity + value) / (h.Quantity + quantity)
		h.Quantity += quantity
		h.CurrentPrice = px
		p.free -= value
	default:
		if h == nil || -quantity > h.Quantity+1e-9 {
			return Order{}, newError(KindValidation, op, 0, fmt.Errorf("cannot sell %.4f %s", -quantity, ticker))
		}
		h.Quantity += quantity
		h.CurrentPrice = px
		p.free -= value
		if h.Quantity <= 1e-9 {
			delete(p.holdings, ticker)
		}
	}
	p.seq++
	order := Order{
		ID:             "PAPER-" + strconv.Itoa(p.seq),
		Ticker:         ticker,
		Quantity:       quantity,
		FilledQuantity: quantity,
		FilledValue:    value,
		Status:         StatusFilled,
	}
	p.orders[order.ID] = order
	logger.Infof("paper: filled %s qty=%.4f @ %.2f", ticker, quantity, px)
	return order, nil
}

func (p *PaperBroker) GetOrder(ctx context.Context, id string) (Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[id]
	if !ok {
		return Order{}, newError(KindRejected, "get_order", 404, fmt.Errorf("order %s not found", id))
	}
	return o, nil
}

// ListOrders returns nothing: paper orders never rest.
func (p *PaperBroker) ListOrders(ctx context.Context) ([]Order, error) {
	return nil, nil
}

func (p *PaperBroker) CancelOrder(ctx context.Context, id string) error {
	return nil
}
