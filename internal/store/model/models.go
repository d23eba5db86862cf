package model

import (
	"gorm.io/datatypes"
)

// PositionModel maps to 'positions'; one row per active ticker.
type PositionModel struct {
	Ticker        string         `gorm:"column:ticker;primaryKey"`
	Quantity      float64        `gorm:"column:quantity"`
	EntryPrice    float64        `gorm:"column:entry_price"`
	CurrentPrice  float64        `gorm:"column:current_price"`
	HighPrice     float64        `gorm:"column:high_price"`
	ATR           float64        `gorm:"column:atr"`
	InitialStop   float64        `gorm:"column:initial_stop"`
	StopLoss      float64        `gorm:"column:stop_loss"`
	ProfitTarget  float64        `gorm:"column:profit_target"`
	EntryUnix     int64          `gorm:"column:entry_time"`
	Status        string         `gorm:"column:status"`
	StrategyTag   string         `gorm:"column:strategy"`
	Score         int            `gorm:"column:score"`
	FactorsJSON   datatypes.JSON `gorm:"column:factors_json;type:TEXT"`
	RSI           float64        `gorm:"column:rsi"`
	Regime        string         `gorm:"column:regime"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (PositionModel) TableName() string { return "positions" }

// RiskStateModel is a single-row table (ID 1).
type RiskStateModel struct {
	ID                int64   `gorm:"column:id;primaryKey"`
	ConsecutiveWins   int     `gorm:"column:consecutive_wins"`
	ConsecutiveLosses int     `gorm:"column:consecutive_losses"`
	DailyPnL          float64 `gorm:"column:daily_pnl"`
	LastUpdateUnix    int64   `gorm:"column:last_update"`
}

func (RiskStateModel) TableName() string { return "risk_state" }

// BrainModel stores the whole adaptive memory as one JSON document (ID 1).
type BrainModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	MemoryJSON    datatypes.JSON `gorm:"column:memory_json;type:TEXT"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (BrainModel) TableName() string { return "brain_memory" }

// OrderKeyModel maps to 'order_keys'.
type OrderKeyModel struct {
	Key           string  `gorm:"column:idempotency_key;primaryKey"`
	OrderID       string  `gorm:"column:order_id"`
	Ticker        string  `gorm:"column:ticker"`
	Quantity      float64 `gorm:"column:quantity"`
	CreatedAtUnix int64   `gorm:"column:created_at;index"`
}

func (OrderKeyModel) TableName() string { return "order_keys" }

// TradeModel maps to 'trade_journal'.
type TradeModel struct {
	ID         string         `gorm:"column:id;primaryKey"`
	CycleID    string         `gorm:"column:cycle_id"`
	TimeUnix   int64          `gorm:"column:timestamp;index"`
	Ticker     string         `gorm:"column:ticker;index"`
	Action     string         `gorm:"column:action"`
	Quantity   float64        `gorm:"column:quantity"`
	Price      float64        `gorm:"column:price"`
	OrderID    string         `gorm:"column:order_id"`
	Reason     string         `gorm:"column:reason"`
	PnL        float64        `gorm:"column:pnl"`
	PnLFrac    float64        `gorm:"column:pnl_frac"`
	Confidence float64        `gorm:"column:confidence"`
	DryRun     bool           `gorm:"column:dry_run"`
	MetaJSON   datatypes.JSON `gorm:"column:meta_json;type:TEXT"`
}

func (TradeModel) TableName() string { return "trade_journal" }

// TradeMeta is the entry context kept in TradeModel.MetaJSON.
type TradeMeta struct {
	Score   int      `json:"score,omitempty"`
	Factors []string `json:"factors,omitempty"`
	RSI     float64  `json:"rsi,omitempty"`
	Regime  string   `json:"regime,omitempty"`
}
