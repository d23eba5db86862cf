// Package filestore keeps the engine state as JSON files in one directory.
// Each record is overwritten whole through a tmp file and rename; the journal
// is an append-only JSON-lines file.
package filestore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"smartbot/internal/brain"
	"smartbot/internal/risk"
	"smartbot/internal/store"
)

const (
	positionsFile = "positions.json"
	riskFile      = "risk_state.json"
	brainFile     = "brain_memory.json"
	keysFile      = "order_keys.json"
	journalFile   = "trade_journal.jsonl"
	lockFile      = "smartbot.lock"
)

type orderKey struct {
	OrderID   string    `json:"order_id"`
	Ticker    string    `json:"ticker"`
	Quantity  float64   `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

// Store implements store.StateStore. It holds the directory lock until Close.
type Store struct {
	dir  string
	lock *store.Lock
	now  func() time.Time

	mu sync.Mutex
}

var _ store.StateStore = (*Store)(nil)

func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("filestore: directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	lock, err := store.AcquireLock(filepath.Join(dir, lockFile))
	if err != nil {
		return nil, err
	}
	return &Store{dir: dir, lock: lock, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.lock.Release()
}

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

// readJSON leaves v untouched when the file does not exist.
func (s *Store) readJSON(name string, v any) (bool, error) {
	raw, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

func (s *Store) writeJSON(name string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path(name), raw, 0o644)
}

// writeFileAtomic writes through a tmp file, fsyncs, renames, then syncs the directory.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

func (s *Store) LoadPositions(ctx context.Context) ([]risk.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []risk.Position
	_, err := s.readJSON(positionsFile, &out)
	return out, err
}

func (s *Store) SavePositions(ctx context.Context, positions []risk.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if positions == nil {
		positions = []risk.Position{}
	}
	return s.writeJSON(positionsFile, positions)
}

func (s *Store) LoadRiskState(ctx context.Context) (risk.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st risk.State
	_, err := s.readJSON(riskFile, &st)
	return st, err
}

func (s *Store) SaveRiskState(ctx context.Context, st risk.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(riskFile, st)
}

func (s *Store) LoadBrain(ctx context.Context) (*brain.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var mem brain.Memory
	found, err := s.readJSON(brainFile, &mem)
	if err != nil || !found {
		return nil, err
	}
	return &mem, nil
}

func (s *Store) SaveBrain(ctx context.Context, mem *brain.Memory) error {
	if mem == nil {
		return errors.New("brain memory cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(brainFile, mem)
}

func (s *Store) AppendTrade(ctx context.Context, t store.Trade) error {
	if t.Ticker == "" || t.Action == "" {
		return errors.New("trade needs ticker and action")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Time.IsZero() {
		t.Time = s.now()
	}
	line, err := json.Marshal(t)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path(journalFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *Store) ListTrades(ctx context.Context, q store.TradeQuery) ([]store.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trades, err := s.readJournal()
	if err != nil {
		return nil, err
	}
	return store.FilterTrades(trades, q), nil
}

func (s *Store) readJournal() ([]store.Trade, error) {
	f, err := os.Open(s.path(journalFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []store.Trade
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var t store.Trade
		// a torn last line after a crash is skipped
		if err := json.Unmarshal(sc.Bytes(), &t); err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, sc.Err()
}

func (s *Store) ClosedReturns(ctx context.Context, limit int) ([]float64, error) {
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

func (s *Store) SeenOrderKey(ctx context.Context, key string, since time.Time) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := map[string]orderKey{}
	if _, err := s.readJSON(keysFile, &keys); err != nil {
		return "", false, err
	}
	k, ok := keys[key]
	if !ok || k.CreatedAt.Before(since) {
		return "", false, nil
	}
	return k.OrderID, true, nil
}

func (s *Store) ForgetOrderKey(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := map[string]orderKey{}
	if _, err := s.readJSON(keysFile, &keys); err != nil {
		return err
	}
	if _, ok := keys[key]; !ok {
		return nil
	}
	delete(keys, key)
	return s.writeJSON(keysFile, keys)
}

// RememberOrderKey also drops keys older than a day to keep the file small.
func (s *Store) RememberOrderKey(ctx context.Context, key, orderID, ticker string, qty float64) error {
	if key == "" {
		return errors.New("idempotency key cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := map[string]orderKey{}
	if _, err := s.readJSON(keysFile, &keys); err != nil {
		return err
	}
	now := s.now()
	for k, v := range keys {
		if now.Sub(v.CreatedAt) > 24*time.Hour {
			delete(keys, k)
		}
	}
	keys[key] = orderKey{OrderID: orderID, Ticker: ticker, Quantity: qty, CreatedAt: now}
	return s.writeJSON(keysFile, keys)
}
