// Package archive keeps fetched OHLCV bars in per-ticker sqlite files so a
// session can be replayed without the live feed.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"smartbot/internal/market"

	_ "modernc.org/sqlite"
)

// Manifest summarises one ticker@interval file.
type Manifest struct {
	Ticker     string `json:"ticker"`
	Interval   string `json:"interval"`
	MinTime    int64  `json:"min_time"`
	MaxTime    int64  `json:"max_time"`
	Rows       int64  `json:"rows"`
	LastSyncAt int64  `json:"last_sync_at"`
	Path       string `json:"path"`
}

type Store struct {
	root string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

var _ market.BarStore = (*Store)(nil)

func NewStore(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("archive root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root, dbs: make(map[string]*sql.DB)}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for k, db := range s.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.dbs, k)
	}
	return firstErr
}

func (s *Store) db(ticker, interval string) (*sql.DB, string, error) {
	if ticker == "" || interval == "" {
		return nil, "", fmt.Errorf("ticker/interval is empty")
	}
	key := strings.ToUpper(ticker) + "@" + strings.ToLower(interval)
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.dbPath(ticker, interval)
	if db, ok := s.dbs[key]; ok {
		return db, path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, "", err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db, ticker, interval); err != nil {
		_ = db.Close()
		return nil, "", err
	}
	s.dbs[key] = db
	return db, path, nil
}

func (s *Store) dbPath(ticker, interval string) string {
	return filepath.Join(s.root, strings.ToUpper(ticker), strings.ToLower(interval)+".db")
}

// Save upserts bars keyed by open_time.
func (s *Store) Save(ctx context.Context, ticker, interval string, candles []market.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	db, _, err := s.db(market.BaseTicker(ticker), interval)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (open_time, close_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(open_time) DO UPDATE SET
		    close_time=excluded.close_time,
		    open=excluded.open,
		    high=excluded.high,
		    low=excluded.low,
		    close=excluded.close,
		    volume=excluded.volume`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, c.OpenTime, c.CloseTime, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return refreshManifest(ctx, db)
}

// Load returns the newest limit bars in ascending time order; limit <= 0 loads all.
func (s *Store) Load(ctx context.Context, ticker, interval string, limit int) ([]market.Candle, error) {
	db, _, err := s.db(market.BaseTicker(ticker), interval)
	if err != nil {
		return nil, err
	}
	query := `SELECT open_time, close_time, open, high, low, close, volume FROM candles ORDER BY open_time DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.Candle
	for rows.Next() {
		var c market.Candle
		if err := rows.Scan(&c.OpenTime, &c.CloseTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) Manifest(ctx context.Context, ticker, interval string) (Manifest, error) {
	db, path, err := s.db(market.BaseTicker(ticker), interval)
	if err != nil {
		return Manifest{}, err
	}
	row := db.QueryRowContext(ctx, `SELECT ticker, interval, min_time, max_time, rows, last_sync_at FROM manifest WHERE id=1`)
	var m Manifest
	if err := row.Scan(&m.Ticker, &m.Interval, &m.MinTime, &m.MaxTime, &m.Rows, &m.LastSyncAt); err != nil {
		return Manifest{}, err
	}
	m.Path = path
	return m, nil
}

func refreshManifest(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		UPDATE manifest
		SET min_time = (SELECT COALESCE(MIN(open_time), 0) FROM candles),
		    max_time = (SELECT COALESCE(MAX(open_time), 0) FROM candles),
		    rows = (SELECT COUNT(1) FROM candles),
		    last_sync_at = ?
		WHERE id = 1`, time.Now().UnixMilli())
	return err
}

func ensureSchema(db *sql.DB, ticker, interval string) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS candles (
			open_time  INTEGER PRIMARY KEY,
			close_time INTEGER NOT NULL,
			open       REAL NOT NULL,
			high       REAL NOT NULL,
			low        REAL NOT NULL,
			close      REAL NOT NULL,
			volume     REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS manifest (
			id           INTEGER PRIMARY KEY CHECK (id = 1),
			ticker       TEXT NOT NULL,
			interval     TEXT NOT NULL,
			min_time     INTEGER NOT NULL DEFAULT 0,
			max_time     INTEGER NOT NULL DEFAULT 0,
			rows         INTEGER NOT NULL DEFAULT 0,
			last_sync_at INTEGER NOT NULL DEFAULT 0
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	_, err := db.Exec(`INSERT OR IGNORE INTO manifest (id, ticker, interval) VALUES (1, ?, ?)`,
		strings.ToUpper(ticker), strings.ToLower(interval))
	return err
}
