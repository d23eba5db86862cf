package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"smartbot/internal/brain"
	"smartbot/internal/gateway/broker"
	"smartbot/internal/gateway/notifier"
	"smartbot/internal/logger"
	"smartbot/internal/market"
	"smartbot/internal/risk"
	"smartbot/internal/store"
)

var errMissingOrderID = errors.New("broker returned no order id")

const qtyEpsilon = 1e-6

// runExits submits every exit intent before any new entry.
// Precedence: intraday rules, then stale recycling, then stop/target signals.
func (e *Engine) runExits(ctx context.Context, c *cycle) {
	exits := risk.MergeExits(e.d.Risk.IntradayExits(), e.d.Risk.StaleExits(), e.d.Risk.CheckExitSignals())
	for _, x := range exits {
		e.d.Metrics.Exit(x.Rule)
		pos, ok := e.d.Risk.Position(x.Ticker)
		if !ok || pos.Quantity <= 0 {
			continue
		}
		reason := fmt.Sprintf("%s: %s", x.Rule, x.Reason)
		if x.Kind == risk.ExitPartial {
			qty := math.Max(0.1, math.Round(pos.Quantity*x.Portion*10)/10)
			if qty < pos.Quantity {
				c.res.Exits = append(c.res.Exits, e.sellPartial(ctx, c, pos, qty, x.Price, x.Rule, reason))
				continue
			}
		}
		c.res.Exits = append(c.res.Exits, e.sellAll(ctx, c, pos, x.Price, x.Rule, reason))
	}
}

// submit places a signed market order through the idempotent placer. A 429
// pauses for RateLimitPause before the error is returned.
func (e *Engine) submit(ctx context.Context, cfg Config, ticker string, qty float64) (broker.Order, error) {
	symbol := market.BrokerTicker(ticker, cfg.BrokerSuffix)
	order, err := e.placer.Place(ctx, symbol, qty)
	if err != nil {
		if broker.IsRateLimited(err) && cfg.RateLimitPause > 0 {
			logger.Warnf("engine: %s 触发限流，暂停 %s", ticker, cfg.RateLimitPause)
			_ = e.d.Sleep(ctx, cfg.RateLimitPause)
		}
		return broker.Order{}, err
	}
	if order.ID == "" {
		return order, errMissingOrderID
	}
	if cfg.WaitForFill && !order.Replayed && !order.Is(broker.StatusFilled) {
		polled, err := broker.WaitForStatus(ctx, e.d.Broker, order.ID,
			[]string{broker.StatusFilled, broker.StatusCancelled, broker.StatusRejected}, cfg.Poll)
		if err != nil {
			return order, err
		}
		order = polled
		if order.Is(broker.StatusCancelled, broker.StatusRejected) {
			e.placer.Settle(ctx, symbol, qty)
			return order, fmt.Errorf("order %s %s", order.ID, order.Status)
		}
	}
	return order, nil
}

// settle releases the idempotency key of a booked intent.
func (e *Engine) settle(ctx context.Context, cfg Config, ticker string, qty float64) {
	e.placer.Settle(ctx, market.BrokerTicker(ticker, cfg.BrokerSuffix), qty)
}

// heldQuantity is the broker-side quantity of ticker.
func (e *Engine) heldQuantity(ctx context.Context, cfg Config, ticker string) (float64, error) {
	holdings, err := e.d.Broker.Portfolio(ctx)
	if err != nil {
		return 0, err
	}
	symbol := market.BrokerTicker(ticker, cfg.BrokerSuffix)
	held := 0.0
	for _, h := range holdings {
		if strings.EqualFold(h.Ticker, symbol) {
			held += h.Quantity
		}
	}
	return held, nil
}

// replayExecuted checks a replayed order against the portfolio. done says
// whether the held quantity shows the order already went through; only then
// is the ledger brought up to date.
func (e *Engine) replayExecuted(ctx context.Context, cfg Config, order broker.Order, ticker string, done func(held float64) bool) bool {
	held, err := e.heldQuantity(ctx, cfg, ticker)
	if err != nil {
		logger.Warnf("engine: %s 核对重放订单 %s 失败: %v", ticker, order.ID, err)
		return false
	}
	if !done(held) {
		logger.Warnf("engine: %s 订单 %s 已提交但持仓未变化 (held=%.4f)，等待下一轮", ticker, order.ID, held)
		return false
	}
	logger.Warnf("engine: %s 重放订单 %s 已成交，补记账 (held=%.4f)", ticker, order.ID, held)
	return true
}

// fillPrice uses the broker's average fill when known.
func fillPrice(o broker.Order, quoted float64) float64 {
	if o.FilledQuantity != 0 && o.FilledValue != 0 {
		return math.Abs(o.FilledValue / o.FilledQuantity)
	}
	return quoted
}

func (e *Engine) orderFailed(d Decision, side string, err error) Decision {
	d.Action = DecisionError
	d.Err = err.Error()
	e.d.Metrics.Order(side, "error")
	logger.Errorf("engine: %s %s 下单失败: %v", side, d.Ticker, err)
	return d
}

func (e *Engine) sellPartial(ctx context.Context, c *cycle, pos risk.Position, qty, price float64, rule, reason string) Decision {
	d := Decision{Ticker: pos.Ticker, Action: DecisionPartial, Quantity: qty, Price: price, Rule: rule, Reason: reason, DryRun: c.cfg.DryRun}
	logger.Infof("engine: 部分止盈 %s %.2f/%.2f @ %.2f (%s)", pos.Ticker, qty, pos.Quantity, price, reason)
	if c.cfg.DryRun {
		return d
	}
	order, err := e.submit(ctx, c.cfg, pos.Ticker, -qty)
	if err != nil {
		return e.orderFailed(d, "partial", err)
	}
	d.OrderID = order.ID
	if order.Replayed {
		remaining := pos.Quantity - qty
		if !e.replayExecuted(ctx, c.cfg, order, pos.Ticker, func(held float64) bool { return held <= remaining+qtyEpsilon }) {
			d.Action = DecisionReplayed
			return d
		}
		reason += " (reconciled)"
		d.Reason = reason
	}
	d.Price = fillPrice(order, price)
	if _, err := e.d.Risk.TakePartial(ctx, pos.Ticker, qty); err != nil {
		logger.Errorf("engine: %s 部分止盈记账失败: %v", pos.Ticker, err)
	}
	e.settle(ctx, c.cfg, pos.Ticker, -qty)
	pnlFrac := 0.0
	if pos.EntryPrice > 0 {
		pnlFrac = (d.Price - pos.EntryPrice) / pos.EntryPrice
	}
	e.journal(ctx, store.Trade{
		CycleID: c.id, Ticker: pos.Ticker, Action: store.ActionPartial, Quantity: qty, Price: d.Price,
		OrderID: order.ID, Reason: reason, PnL: (d.Price - pos.EntryPrice) * qty, PnLFrac: pnlFrac,
	})
	e.d.Metrics.Order("partial", "filled")
	notifier.Send(e.d.Notifier, notifier.TradeMessage("PARTIAL", pos.Ticker, qty, d.Price, reason, e.d.Now()))
	return d
}

// sellAll exits the whole position, teaches the brain and journals the round trip.
func (e *Engine) sellAll(ctx context.Context, c *cycle, pos risk.Position, price float64, rule, reason string) Decision {
	d := Decision{Ticker: pos.Ticker, Action: DecisionSell, Quantity: pos.Quantity, Price: price, Rule: rule, Reason: reason, DryRun: c.cfg.DryRun}
	logger.Infof("engine: 平仓 %s %.2f @ %.2f (%s)", pos.Ticker, pos.Quantity, price, reason)
	if c.cfg.DryRun {
		return d
	}
	order, err := e.submit(ctx, c.cfg, pos.Ticker, -pos.Quantity)
	if err != nil {
		return e.orderFailed(d, "sell", err)
	}
	d.OrderID = order.ID
	if order.Replayed {
		if !e.replayExecuted(ctx, c.cfg, order, pos.Ticker, func(held float64) bool { return held <= qtyEpsilon }) {
			d.Action = DecisionReplayed
			return d
		}
		reason += " (reconciled)"
		d.Reason = reason
	}
	d.Price = fillPrice(order, price)
	e.closePosition(ctx, c.id, pos.Ticker, d.Price, reason, order.ID)
	e.settle(ctx, c.cfg, pos.Ticker, -pos.Quantity)
	e.d.Metrics.Order("sell", "filled")
	notifier.Send(e.d.Notifier, notifier.TradeMessage("SELL", pos.Ticker, pos.Quantity, d.Price, reason, e.d.Now()))
	return d
}

// closePosition realizes a filled exit: risk state, brain and journal.
func (e *Engine) closePosition(ctx context.Context, cycleID, ticker string, price float64, reason, orderID string) {
	closed, err := e.d.Risk.Close(ctx, ticker, price, reason)
	if err != nil {
		logger.Errorf("engine: %s 平仓记账失败: %v", ticker, err)
		return
	}
	e.learn(ctx, closed)
	e.journal(ctx, store.Trade{
		CycleID: cycleID, Ticker: ticker, Action: store.ActionSell, Quantity: closed.Quantity, Price: price,
		OrderID: orderID, Reason: reason, PnL: closed.PnL, PnLFrac: closed.PnLFrac,
		Score: closed.Score, Factors: closed.Factors, RSI: closed.RSI, Regime: closed.Regime,
	})
}

func (e *Engine) learn(ctx context.Context, closed risk.Closed) {
	t := brain.Trade{
		Ticker:    closed.Ticker,
		PnL:       closed.PnL,
		PnLPct:    closed.PnLFrac * 100,
		Score:     closed.Score,
		Factors:   closed.Factors,
		RSI:       closed.RSI,
		Regime:    closed.Regime,
		HoldHours: closed.HoldHours,
		Time:      closed.CloseTime,
		Reason:    closed.Reason,
	}
	if t.Score == 0 {
		t.Score = 50
	}
	if t.RSI == 0 {
		t.RSI = 50
	}
	if t.Regime == "" {
		t.Regime = "normal"
	}
	if err := e.d.Brain.Learn(ctx, t); err != nil {
		logger.Errorf("engine: brain 学习失败 %s: %v", closed.Ticker, err)
	}
}

func (e *Engine) journal(ctx context.Context, t store.Trade) {
	if e.d.Store == nil {
		return
	}
	if t.Time.IsZero() {
		t.Time = e.d.Now()
	}
	if err := e.d.Store.AppendTrade(ctx, t); err != nil {
		logger.Errorf("engine: 写交易日志失败 %s %s: %v", t.Action, t.Ticker, err)
	}
}
