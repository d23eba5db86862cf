package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"smartbot/internal/store"
	"smartbot/internal/store/model"
)

func (s *SqliteStore) AppendTrade(ctx context.Context, t store.Trade) error {
	if t.Ticker == "" || t.Action == "" {
		return errors.New("trade needs ticker and action")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Time.IsZero() {
		t.Time = s.now()
	}
	meta, err := json.Marshal(model.TradeMeta{Score: t.Score, Factors: t.Factors, RSI: t.RSI, Regime: t.Regime})
	if err != nil {
		return err
	}
	row := model.TradeModel{
		ID:         t.ID,
		CycleID:    t.CycleID,
		TimeUnix:   t.Time.UnixMilli(),
		Ticker:     t.Ticker,
		Action:     t.Action,
		Quantity:   t.Quantity,
		Price:      t.Price,
		OrderID:    t.OrderID,
		Reason:     t.Reason,
		PnL:        t.PnL,
		PnLFrac:    t.PnLFrac,
		Confidence: t.Confidence,
		DryRun:     t.DryRun,
		MetaJSON:   meta,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *SqliteStore) ListTrades(ctx context.Context, q store.TradeQuery) ([]store.Trade, error) {
	db := s.db.WithContext(ctx).Model(&model.TradeModel{})
	if q.Ticker != "" {
		db = db.Where("ticker = ?", q.Ticker)
	}
	if len(q.Actions) > 0 {
		db = db.Where("action IN ?", q.Actions)
	}
	if !q.Since.IsZero() {
		db = db.Where("timestamp >= ?", q.Since.UnixMilli())
	}
	db = db.Order("timestamp DESC, id DESC")
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	var rows []model.TradeModel
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]store.Trade, len(rows))
	for i, r := range rows {
		t := store.Trade{
			ID:         r.ID,
			CycleID:    r.CycleID,
			Time:       time.UnixMilli(r.TimeUnix),
			Ticker:     r.Ticker,
			Action:     r.Action,
			Quantity:   r.Quantity,
			Price:      r.Price,
			OrderID:    r.OrderID,
			Reason:     r.Reason,
			PnL:        r.PnL,
			PnLFrac:    r.PnLFrac,
			Confidence: r.Confidence,
			DryRun:     r.DryRun,
		}
		var meta model.TradeMeta
		if len(r.MetaJSON) > 0 && json.Unmarshal(r.MetaJSON, &meta) == nil {
			t.Score, t.Factors, t.RSI, t.Regime = meta.Score, meta.Factors, meta.RSI, meta.Regime
		}
		// newest-first from SQL, oldest-first to callers
		out[len(rows)-1-i] = t
	}
	return out, nil
}

func (s *SqliteStore) ClosedReturns(ctx context.Context, limit int) ([]float64, error) {
	trades, err := s.ListTrades(ctx, store.TradeQuery{Actions: []string{store.ActionSell}, Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(trades))
	for i, t := range trades {
		out[i] = t.PnLFrac
	}
	return out, nil
}
