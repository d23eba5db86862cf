// Package risk owns open positions, the account risk state, exit policies and
// position sizing inputs.
package risk

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"smartbot/internal/logger"
)

// Ledger persists positions and the risk state, each as a whole record.
type Ledger interface {
	LoadPositions(ctx context.Context) ([]Position, error)
	SavePositions(ctx context.Context, positions []Position) error
	LoadRiskState(ctx context.Context) (State, error)
	SaveRiskState(ctx context.Context, s State) error
}

type Manager struct {
	mu        sync.RWMutex
	cfg       Config
	ledger    Ledger
	sectors   Sectors
	positions map[string]*Position
	state     State
	now       func() time.Time
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithSectors(s Sectors) Option {
	return func(m *Manager) { m.sectors = s }
}

func NewManager(cfg Config, ledger Ledger, opts ...Option) *Manager {
	m := &Manager{
		cfg:       cfg,
		ledger:    ledger,
		sectors:   DefaultSectors(),
		positions: map[string]*Position{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetConfig swaps thresholds; used when configuration is reloaded between cycles.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Load reads the ledger, dropping positions that are closed or have no quantity.
func (m *Manager) Load(ctx context.Context) error {
	if m.ledger == nil {
		return nil
	}
	positions, err := m.ledger.LoadPositions(ctx)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}
	state, err := m.ledger.LoadRiskState(ctx)
	if err != nil {
		return fmt.Errorf("load risk state: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = map[string]*Position{}
	purged := 0
	for i := range positions {
		p := positions[i]
		if !p.Active() || p.Quantity <= 0 {
			purged++
			continue
		}
		m.positions[p.Ticker] = &p
	}
	if purged > 0 {
		logger.Warnf("清理无效持仓 %d 个", purged)
	}
	m.state = state
	if m.state.rollDay(m.now()) {
		logger.Infof("新交易日，daily_pnl 归零")
	}
	return nil
}

// Save writes both records.
func (m *Manager) Save(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saveLocked(ctx)
}

func (m *Manager) saveLocked(ctx context.Context) error {
	if m.ledger == nil {
		return nil
	}
	if err := m.ledger.SavePositions(ctx, m.snapshotLocked()); err != nil {
		return fmt.Errorf("save positions: %w", err)
	}
	if err := m.ledger.SaveRiskState(ctx, m.state); err != nil {
		return fmt.Errorf("save risk state: %w", err)
	}
	return nil
}

func (m *Manager) snapshotLocked() []Position {
	out := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// Positions returns copies of all active positions sorted by ticker.
func (m *Manager) Positions() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Manager) Position(ticker string) (Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[ticker]
	if !ok {
		return Position{}, false
	}
	return p.clone(), true
}

// State returns the risk state after rolling the day boundary.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.rollDay(m.now())
	return m.state
}

// DynamicRisk is the current per-trade risk fraction; zero means the circuit breaker is tripped.
func (m *Manager) DynamicRisk() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.rollDay(m.now())
	r := DynamicRisk(m.state, m.cfg)
	if r == 0 {
		logger.Warnf("熔断: 当日亏损 %.1f%% 超过上限 %.1f%%", m.state.DailyPnL*100, m.cfg.MaxDailyLoss*100)
	}
	return r
}

// Add opens a position from a fill and persists the ledger.
func (m *Manager) Add(ctx context.Context, e Entry) (Position, error) {
	if e.Quantity <= 0 {
		return Position{}, ErrInvalidQty
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stop := e.StopLoss
	if stop <= 0 {
		stop = atrOffset(e.Price, e.ATR, -m.cfg.StopATRMult)
	}
	target := e.ProfitTarget
	if target <= 0 {
		target = atrOffset(e.Price, e.ATR, m.cfg.StopATRMult)
	}
	p := &Position{
		Ticker:       e.Ticker,
		Quantity:     e.Quantity,
		EntryPrice:   e.Price,
		CurrentPrice: e.Price,
		HighPrice:    e.Price,
		ATR:          e.ATR,
		InitialStop:  stop,
		StopLoss:     stop,
		ProfitTarget: target,
		EntryTime:    m.now(),
		Status:       StatusOpen,
		StrategyTag:  e.StrategyTag,
		Score:        e.Score,
		Factors:      append([]string(nil), e.Factors...),
		RSI:          e.RSI,
		Regime:       e.Regime,
	}
	m.positions[e.Ticker] = p
	logger.Infof("开仓 %s qty=%.2f @ %.2f stop=%.2f target=%.2f", e.Ticker, e.Quantity, e.Price, stop, target)
	return p.clone(), m.saveLocked(ctx)
}

// UpdatePrice refreshes the price, the running high and the trailing stop
// without persisting. Call Save once after a batch of updates.
func (m *Manager) UpdatePrice(ticker string, price float64) (Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[ticker]
	if !ok || price <= 0 {
		return Position{}, false
	}
	p.CurrentPrice = price
	if price > p.HighPrice {
		p.HighPrice = price
	}
	p.StopLoss = m.trailingStop(p, price)
	return p.clone(), true
}

// trailingStop moves the stop to at least breakeven once the gain reaches
// BreakevenGain and ratchets it there. While the position is in profit the
// stop only tightens; at or below entry the initial stop applies again.
func (m *Manager) trailingStop(p *Position, price float64) float64 {
	if p.EntryPrice <= 0 {
		return p.StopLoss
	}
	initial := p.InitialStop
	if initial <= 0 {
		initial = atrOffset(p.EntryPrice, p.ATR, -m.cfg.StopATRMult)
	}
	gain := pctChange(p.EntryPrice, price)
	if gain <= 0 {
		return initial
	}
	if gain < m.cfg.BreakevenGain*100 {
		return tighterStop(initial, p.StopLoss)
	}
	breakeven := atrOffset(p.EntryPrice, p.ATR, m.cfg.BreakevenATR)
	if breakeven < p.EntryPrice {
		breakeven = p.EntryPrice
	}
	return tighterStop(breakeven, p.StopLoss)
}

// TakePartial reduces the quantity after a partial sell fill and marks the
// position PARTIAL_TAKEN.
func (m *Manager) TakePartial(ctx context.Context, ticker string, soldQty float64) (Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[ticker]
	if !ok {
		return Position{}, fmt.Errorf("%s: %w", ticker, ErrNoPosition)
	}
	p.Quantity -= soldQty
	if p.Quantity <= 0 {
		delete(m.positions, ticker)
		logger.Warnf("部分止盈后 %s 数量归零，移除持仓", ticker)
		return Position{}, m.saveLocked(ctx)
	}
	p.Status = StatusPartialTaken
	logger.Infof("部分止盈 %s 卖出 %.2f 剩余 %.2f", ticker, soldQty, p.Quantity)
	return p.clone(), m.saveLocked(ctx)
}

// Close realizes the position at price, updates the risk state and persists both records.
func (m *Manager) Close(ctx context.Context, ticker string, price float64, reason string) (Closed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[ticker]
	if !ok {
		return Closed{}, fmt.Errorf("%s: %w", ticker, ErrNoPosition)
	}
	now := m.now()
	c := Closed{
		Position:   p.clone(),
		ClosePrice: price,
		CloseTime:  now,
		Reason:     reason,
		HoldHours:  p.HeldFor(now).Hours(),
	}
	c.Status = StatusClosed
	if p.EntryPrice > 0 {
		c.PnLFrac = (price - p.EntryPrice) / p.EntryPrice
	}
	c.PnL = (price - p.EntryPrice) * p.Quantity
	delete(m.positions, ticker)
	m.state.record(c.PnLFrac, now)
	logger.Infof("平仓 %s @ %.2f pnl=%.2f%% (%s) streak W%d/L%d",
		ticker, price, c.PnLFrac*100, reason, m.state.ConsecutiveWins, m.state.ConsecutiveLosses)
	return c, m.saveLocked(ctx)
}

// RecordResult applies a realized return fraction to the risk state without a tracked position.
func (m *Manager) RecordResult(ctx context.Context, pnlFrac float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.record(pnlFrac, m.now())
	if m.ledger == nil {
		return nil
	}
	return m.ledger.SaveRiskState(ctx, m.state)
}

// CheckPositionLimits returns ErrPositionLimit or ErrSectorLimit when a new
// entry in ticker would breach the concentration limits.
func (m *Manager) CheckPositionLimits(ticker string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.positions) >= m.cfg.MaxPositions {
		return fmt.Errorf("%d/%d: %w", len(m.positions), m.cfg.MaxPositions, ErrPositionLimit)
	}
	sector, ok := m.sectors.Of(ticker)
	if !ok {
		return nil
	}
	count := 0
	for t := range m.positions {
		if s, ok := m.sectors.Of(t); ok && s == sector {
			count++
		}
	}
	if count >= m.cfg.MaxPerSector {
		return fmt.Errorf("%s %d/%d: %w", sector, count, m.cfg.MaxPerSector, ErrSectorLimit)
	}
	return nil
}

// SectorOf exposes the sector lookup.
func (m *Manager) SectorOf(ticker string) (string, bool) {
	return m.sectors.Of(ticker)
}
