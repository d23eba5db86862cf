package engine

import (
	"context"
	"errors"
	"fmt"

	"smartbot/internal/analysis/indicator"
	"smartbot/internal/booster"
	"smartbot/internal/gateway/notifier"
	"smartbot/internal/logger"
	"smartbot/internal/market"
	"smartbot/internal/risk"
	"smartbot/internal/store"
	"smartbot/internal/strategy/momentum"
)

const liquidityBars = 20

// evaluate runs scorer, boosters and brain for one ticker and acts on the verdict.
func (e *Engine) evaluate(ctx context.Context, c *cycle, ticker string) Decision {
	d := Decision{Ticker: ticker, Action: DecisionHold}

	candles, err := e.d.Market.History(ctx, ticker, c.cfg.Period, c.cfg.Interval)
	if err != nil || len(candles) < c.cfg.MinBars {
		d.Reason = "no data"
		logger.Infof("engine: %s 数据不足 (%d bars, err=%v)", ticker, len(candles), err)
		return d
	}
	frame, err := indicator.Compute(candles, e.d.Indicator)
	if err != nil {
		d.Reason = "indicators: " + err.Error()
		return d
	}

	sig := e.d.Scorer.Score(ticker, frame, e.d.Now())
	d.Score, d.Price, d.Reason = sig.Score, sig.Price, sig.Reason
	in := &booster.Input{Ticker: ticker, Signal: sig, Frame: frame}
	conf := sig.Confidence
	if e.d.Boosters != nil {
		br := e.d.Boosters.Run(ctx, in, conf)
		conf = br.Confidence
		d.Boosts = br.Boosts()
		logger.Debugf("engine: %s boosters %s", ticker, br.Summary())
	}
	regime := in.Regime
	if regime == "" {
		regime = booster.RegimeNormal
	}

	intel := e.d.Brain.Combined(ticker, sig.Factors, regime)
	if intel.TickerTrades > 0 {
		conf = min(conf*intel.Multiplier, 1)
		d.Brain = intel.Reasons
		if intel.Multiplier != 1 {
			logger.Infof("engine: %s brain x%.2f (%v) WR:%.0f%% avg:%+.3f",
				ticker, intel.Multiplier, intel.Reasons, intel.TickerWinRate*100, intel.TickerAvgPnL)
		}
	}
	if sig.Action == momentum.ActionBuy {
		var gate string
		conf, gate = e.d.Brain.Gate(ticker, conf)
		if gate != "" {
			d.Brain = append(d.Brain, "gate:"+gate)
		}
	}
	d.Confidence = conf
	logger.Infof("engine: %s %s score=%d conf=%.2f %s", ticker, sig.Action, sig.Score, conf, sig.Reason)

	switch sig.Action {
	case momentum.ActionBuy:
		if conf < c.cfg.ConfidenceThreshold {
			d.Reason = fmt.Sprintf("confidence %.2f < %.2f", conf, c.cfg.ConfidenceThreshold)
			return d
		}
		if _, held := e.d.Risk.Position(ticker); held {
			d.Reason = "already holding"
			return d
		}
		// 仓位与行业上限只限制新开仓
		if err := e.d.Risk.CheckPositionLimits(ticker); err != nil {
			d.Action, d.Reason = DecisionSkip, err.Error()
			logger.Infof("engine: %s 跳过: %v", ticker, err)
			return d
		}
		return e.enter(ctx, c, d, sig, in, regime, candles)
	case momentum.ActionSell:
		pos, held := e.d.Risk.Position(ticker)
		if !held {
			d.Action = DecisionSignal
			return d
		}
		return e.sellAll(ctx, c, pos, sig.Price, "SIGNAL", sig.Reason)
	}
	return d
}

func (e *Engine) enter(ctx context.Context, c *cycle, d Decision, sig momentum.Signal, in *booster.Input, regime string, candles []market.Candle) Decision {
	vols := market.Volumes(candles)
	if len(vols) > liquidityBars {
		vols = vols[len(vols)-liquidityBars:]
	}
	avgVol := 0.0
	for _, v := range vols {
		avgVol += v
	}
	if len(vols) > 0 {
		avgVol /= float64(len(vols))
	}

	sz, err := c.cfg.Size(SizeInput{
		Price:      sig.Price,
		ATR:        sig.ATR,
		AvgVolume:  avgVol,
		Confidence: d.Confidence,
		Free:       c.free,
		Total:      c.total,
		Kelly:      c.kelly,
		SizeMult:   in.SizeMultiplier(),
	})
	if err != nil {
		d.Action, d.Reason = DecisionSkip, err.Error()
		e.d.Metrics.Skip(SkipLabel(err))
		logger.Infof("engine: %s SKIP %v", sig.Ticker, err)
		return d
	}

	rcfg := e.d.Risk.Config()
	target := rcfg.ProfitTarget(sig.Price, sig.ATR, risk.RiskReward(regime))
	d.Action, d.Quantity = DecisionBuy, sz.Quantity
	logger.Infof("engine: BUY %s %.2f @ %.2f score=%d conf=%.0f%% stop=%.2f target=%.2f size x%.2f",
		sig.Ticker, sz.Quantity, sig.Price, sig.Score, d.Confidence*100, sig.StopLoss, target, sz.Multiplier)
	if c.cfg.DryRun {
		d.DryRun = true
		return d
	}

	order, err := e.submit(ctx, c.cfg, sig.Ticker, sz.Quantity)
	if err != nil {
		if errors.Is(err, errMissingOrderID) {
			logger.Errorf("engine: %s 下单未返回订单号", sig.Ticker)
		}
		return e.orderFailed(d, "buy", err)
	}
	d.OrderID = order.ID
	if order.Replayed {
		if !e.replayExecuted(ctx, c.cfg, order, sig.Ticker, func(held float64) bool { return held >= sz.Quantity-qtyEpsilon }) {
			d.Action = DecisionReplayed
			return d
		}
		d.Reason = sig.Reason + " (reconciled)"
	}
	d.Price = fillPrice(order, sig.Price)
	if _, err := e.d.Risk.Add(ctx, risk.Entry{
		Ticker:       sig.Ticker,
		Quantity:     sz.Quantity,
		Price:        d.Price,
		ATR:          sig.ATR,
		StrategyTag:  sig.Reason,
		StopLoss:     sig.StopLoss,
		ProfitTarget: target,
		Score:        sig.Score,
		Factors:      sig.TopFactors(6),
		RSI:          sig.RSI,
		Regime:       regime,
	}); err != nil {
		logger.Errorf("engine: %s 记录持仓失败: %v", sig.Ticker, err)
	}
	e.settle(ctx, c.cfg, sig.Ticker, sz.Quantity)
	e.journal(ctx, store.Trade{
		CycleID: c.id, Ticker: sig.Ticker, Action: store.ActionBuy, Quantity: sz.Quantity, Price: d.Price,
		OrderID: order.ID, Reason: sig.Reason, Score: sig.Score, Factors: sig.Factors, RSI: sig.RSI,
		Regime: regime, Confidence: d.Confidence,
	})
	e.d.Metrics.Order("buy", "filled")
	notifier.Send(e.d.Notifier, notifier.TradeMessage("BUY", sig.Ticker, sz.Quantity, d.Price, sig.Reason, e.d.Now()))
	if !order.Replayed {
		// a replayed fill is already in the cash fetched this cycle
		c.free -= sz.Cost
	}
	return d
}
