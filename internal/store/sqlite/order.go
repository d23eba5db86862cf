package sqlite

import (
	"context"
	"errors"
	"time"

	"smartbot/internal/store/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeenOrderKey reports whether key was remembered at or after since.
func (s *SqliteStore) SeenOrderKey(ctx context.Context, key string, since time.Time) (string, bool, error) {
	var row model.OrderKeyModel
	err := s.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if row.CreatedAtUnix < since.UnixMilli() {
		return "", false, nil
	}
	return row.OrderID, true, nil
}

func (s *SqliteStore) RememberOrderKey(ctx context.Context, key, orderID, ticker string, qty float64) error {
	if key == "" {
		return errors.New("idempotency key cannot be empty")
	}
	row := model.OrderKeyModel{
		Key:           key,
		OrderID:       orderID,
		Ticker:        ticker,
		Quantity:      qty,
		CreatedAtUnix: s.now().UnixMilli(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		UpdateAll: true,
	}).Create(&row).Error
}

func (s *SqliteStore) ForgetOrderKey(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("idempotency_key = ?", key).Delete(&model.OrderKeyModel{}).Error
}

// PruneOrderKeys deletes keys older than before.
func (s *SqliteStore) PruneOrderKeys(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", before.UnixMilli()).Delete(&model.OrderKeyModel{})
	return res.RowsAffected, res.Error
}
