package broker

import (
	"context"
	"time"

	"smartbot/internal/logger"
)

// PollOptions bounds WaitForStatus.
type PollOptions struct {
	Timeout    time.Duration
	Interval   time.Duration
	MaxBackoff time.Duration
}

func DefaultPollOptions() PollOptions {
	return PollOptions{Timeout: 30 * time.Second, Interval: 2 * time.Second, MaxBackoff: 8 * time.Second}
}

// WaitForStatus polls id until it reaches one of targets. On timeout it
// returns the last order with Status UNKNOWN and no error; only context
// cancellation is reported as an error.
func WaitForStatus(ctx context.Context, b Broker, id string, targets []string, opts PollOptions) (Order, error) {
	if len(targets) == 0 {
		targets = []string{StatusFilled}
	}
	def := DefaultPollOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = def.MaxBackoff
	}
	deadline := time.Now().Add(opts.Timeout)
	delay := opts.Interval
	last := Order{ID: id, Status: StatusUnknown}
	for {
		order, err := b.GetOrder(ctx, id)
		if err != nil {
			logger.Warnf("broker: poll order %s: %v", id, err)
		} else {
			last = order
			if order.Is(targets...) {
				return order, nil
			}
		}
		if !time.Now().Before(deadline) {
			logger.Warnf("broker: order %s did not reach %v in %s (last=%s)", id, targets, opts.Timeout, last.Status)
			last.Status = StatusUnknown
			return last, nil
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return last, err
		}
		delay = min(delay*2, opts.MaxBackoff)
	}
}

// CancelStale cancels orders still waiting to execute (NEW, PENDING or no status).
func CancelStale(ctx context.Context, b Broker) (int, error) {
	orders, err := b.ListOrders(ctx)
	if err != nil {
		return 0, err
	}
	cancelled := 0
	for _, o := range orders {
		if o.ID == "" || !o.Is(StatusNew, StatusPending, "") {
			continue
		}
		if err := b.CancelOrder(ctx, o.ID); err != nil {
			logger.Warnf("broker: cancel stale order %s (%s): %v", o.ID, o.Ticker, err)
			continue
		}
		logger.Infof("broker: 取消滞留订单 %s qty=%.4f", o.Ticker, o.Quantity)
		cancelled++
	}
	return cancelled, nil
}
