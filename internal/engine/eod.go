package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"smartbot/internal/gateway/notifier"
	"smartbot/internal/logger"
	"smartbot/internal/market"
	"smartbot/internal/store"
)

// CloseEndOfDay sells every broker holding that is in profit or down less than
// EODMinPnLPct; deeper losers are held overnight.
func (e *Engine) CloseEndOfDay(ctx context.Context) (CycleResult, error) {
	e.run.Lock()
	defer e.run.Unlock()

	cfg := e.applyPending()
	res := CycleResult{ID: uuid.NewString(), Started: e.d.Now(), DryRun: cfg.DryRun}
	holdings, err := e.d.Broker.Portfolio(ctx)
	if err != nil {
		res.Err = err.Error()
		res.Finished = e.d.Now()
		return res, fmt.Errorf("fetch portfolio: %w", err)
	}
	for _, h := range holdings {
		ticker := market.BaseTicker(h.Ticker)
		pct := h.PnLPct()
		d := Decision{Ticker: ticker, Quantity: h.Quantity, Price: h.CurrentPrice}
		if h.Quantity <= 0 {
			continue
		}
		if h.PPL+h.FxPPL <= 0 && pct <= cfg.EODMinPnLPct {
			d.Action = DecisionHold
			d.Reason = fmt.Sprintf("EOD hold %.2f%%", pct)
			logger.Infof("engine: EOD 持有 %s (%.2f%%)", ticker, pct)
			res.Exits = append(res.Exits, d)
			continue
		}
		d.Action = DecisionSell
		d.Reason = fmt.Sprintf("EOD close %+.2f%% ppl=%.2f", pct, h.PPL+h.FxPPL)
		d.DryRun = cfg.DryRun
		if cfg.DryRun {
			res.Exits = append(res.Exits, d)
			continue
		}
		order, err := e.submit(ctx, cfg, ticker, -h.Quantity)
		if err != nil {
			res.Exits = append(res.Exits, e.orderFailed(d, "sell", err))
			continue
		}
		d.OrderID = order.ID
		if order.Replayed {
			d.Action = DecisionReplayed
			res.Exits = append(res.Exits, d)
			continue
		}
		d.Price = fillPrice(order, h.CurrentPrice)
		if _, tracked := e.d.Risk.Position(ticker); tracked {
			e.closePosition(ctx, res.ID, ticker, d.Price, d.Reason, order.ID)
		} else {
			pnlFrac := 0.0
			if h.AveragePrice > 0 {
				pnlFrac = (d.Price - h.AveragePrice) / h.AveragePrice
			}
			e.journal(ctx, store.Trade{
				CycleID: res.ID, Ticker: ticker, Action: store.ActionSell, Quantity: h.Quantity, Price: d.Price,
				OrderID: order.ID, Reason: d.Reason, PnL: (d.Price - h.AveragePrice) * h.Quantity, PnLFrac: pnlFrac,
			})
		}
		e.settle(ctx, cfg, ticker, -h.Quantity)
		e.d.Metrics.Order("sell", "filled")
		res.Exits = append(res.Exits, d)
	}
	res.Finished = e.d.Now()
	logger.InfoBlock(strings.Join(res.Lines(), "\n"))
	notifier.Send(e.d.Notifier, notifier.CycleMessage("SmartBot EOD", res.Lines(), res.Finished))
	return res, nil
}

// Insights is the brain's human-readable report.
func (e *Engine) Insights() string {
	return e.d.Brain.Insights()
}

// SeedBrain replays the trade journal into the brain. Only useful on an empty memory.
func (e *Engine) SeedBrain(ctx context.Context) (int, error) {
	if e.d.Store == nil {
		return 0, fmt.Errorf("seed brain: no trade journal")
	}
	trades, err := e.d.Store.ListTrades(ctx, store.TradeQuery{})
	if err != nil {
		return 0, fmt.Errorf("seed brain: %w", err)
	}
	return e.d.Brain.SeedFromHistory(ctx, store.HistoryFromTrades(trades))
}
