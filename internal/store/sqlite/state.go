package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"smartbot/internal/brain"
	"smartbot/internal/risk"
	"smartbot/internal/store/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const singletonID = 1

func (s *SqliteStore) LoadPositions(ctx context.Context) ([]risk.Position, error) {
	var rows []model.PositionModel
	if err := s.db.WithContext(ctx).Order("ticker").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]risk.Position, 0, len(rows))
	for _, r := range rows {
		p := risk.Position{
			Ticker:       r.Ticker,
			Quantity:     r.Quantity,
			EntryPrice:   r.EntryPrice,
			CurrentPrice: r.CurrentPrice,
			HighPrice:    r.HighPrice,
			ATR:          r.ATR,
			InitialStop:  r.InitialStop,
			StopLoss:     r.StopLoss,
			ProfitTarget: r.ProfitTarget,
			Status:       risk.Status(r.Status),
			StrategyTag:  r.StrategyTag,
			Score:        r.Score,
			RSI:          r.RSI,
			Regime:       r.Regime,
		}
		if r.EntryUnix > 0 {
			p.EntryTime = time.UnixMilli(r.EntryUnix)
		}
		if len(r.FactorsJSON) > 0 {
			if err := json.Unmarshal(r.FactorsJSON, &p.Factors); err != nil {
				return nil, fmt.Errorf("position %s factors: %w", r.Ticker, err)
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// SavePositions replaces the whole table in one transaction.
func (s *SqliteStore) SavePositions(ctx context.Context, positions []risk.Position) error {
	now := s.now().UnixMilli()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.PositionModel{}).Error; err != nil {
			return err
		}
		if len(positions) == 0 {
			return nil
		}
		rows := make([]model.PositionModel, 0, len(positions))
		for _, p := range positions {
			factors, err := json.Marshal(p.Factors)
			if err != nil {
				return err
			}
			row := model.PositionModel{
				Ticker:        p.Ticker,
				Quantity:      p.Quantity,
				EntryPrice:    p.EntryPrice,
				CurrentPrice:  p.CurrentPrice,
				HighPrice:     p.HighPrice,
				ATR:           p.ATR,
				InitialStop:   p.InitialStop,
				StopLoss:      p.StopLoss,
				ProfitTarget:  p.ProfitTarget,
				Status:        string(p.Status),
				StrategyTag:   p.StrategyTag,
				Score:         p.Score,
				FactorsJSON:   factors,
				RSI:           p.RSI,
				Regime:        p.Regime,
				UpdatedAtUnix: now,
			}
			if !p.EntryTime.IsZero() {
				row.EntryUnix = p.EntryTime.UnixMilli()
			}
			rows = append(rows, row)
		}
		return tx.Create(&rows).Error
	})
}

func (s *SqliteStore) LoadRiskState(ctx context.Context) (risk.State, error) {
	var row model.RiskStateModel
	err := s.db.WithContext(ctx).Where("id = ?", singletonID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return risk.State{}, nil
	}
	if err != nil {
		return risk.State{}, err
	}
	st := risk.State{
		ConsecutiveWins:   row.ConsecutiveWins,
		ConsecutiveLosses: row.ConsecutiveLosses,
		DailyPnL:          row.DailyPnL,
	}
	if row.LastUpdateUnix > 0 {
		st.LastUpdate = time.UnixMilli(row.LastUpdateUnix)
	}
	return st, nil
}

func (s *SqliteStore) SaveRiskState(ctx context.Context, st risk.State) error {
	row := model.RiskStateModel{
		ID:                singletonID,
		ConsecutiveWins:   st.ConsecutiveWins,
		ConsecutiveLosses: st.ConsecutiveLosses,
		DailyPnL:          st.DailyPnL,
	}
	if !st.LastUpdate.IsZero() {
		row.LastUpdateUnix = st.LastUpdate.UnixMilli()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

// LoadBrain returns nil when no memory has been saved yet.
func (s *SqliteStore) LoadBrain(ctx context.Context) (*brain.Memory, error) {
	var row model.BrainModel
	err := s.db.WithContext(ctx).Where("id = ?", singletonID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var mem brain.Memory
	if err := json.Unmarshal(row.MemoryJSON, &mem); err != nil {
		return nil, fmt.Errorf("decode brain memory: %w", err)
	}
	return &mem, nil
}

func (s *SqliteStore) SaveBrain(ctx context.Context, mem *brain.Memory) error {
	if mem == nil {
		return errors.New("brain memory cannot be nil")
	}
	raw, err := json.Marshal(mem)
	if err != nil {
		return err
	}
	row := model.BrainModel{ID: singletonID, MemoryJSON: raw, UpdatedAtUnix: s.now().UnixMilli()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
}
