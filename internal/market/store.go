package market

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store 把日线行情/信号表落到本地 SQLite，供回测与实盘共用。
// 上游流水线负责写入，引擎只读。
type Store struct {
	db   *sql.DB
	path string
}

func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("bar store 路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS bars (
		symbol     TEXT NOT NULL,
		date       TEXT NOT NULL,
		open       REAL NOT NULL,
		high       REAL NOT NULL,
		low        REAL NOT NULL,
		close      REAL NOT NULL,
		volume     REAL NOT NULL DEFAULT 0,
		vol_20d    REAL NOT NULL DEFAULT 0,
		sector     TEXT NOT NULL DEFAULT '',
		regime     REAL,
		score      REAL,
		is_test    INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (symbol, date)
	);`)
	return err
}

// InsertBars 批量写入（相同 symbol+date 覆盖）。
func (s *Store) InsertBars(ctx context.Context, bars []Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (symbol, date, open, high, low, close, volume, vol_20d, sector, regime, score, is_test)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET
		    open=excluded.open, high=excluded.high, low=excluded.low, close=excluded.close,
		    volume=excluded.volume, vol_20d=excluded.vol_20d, sector=excluded.sector,
		    regime=excluded.regime, score=excluded.score, is_test=excluded.is_test`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	count := 0
	for _, b := range bars {
		var regime, score any
		if b.HasRegime {
			regime = b.RegimeDist
		}
		if b.HasScore {
			score = b.Score
		}
		isTest := 0
		if b.IsTest {
			isTest = 1
		}
		if _, err := stmt.ExecContext(ctx, b.Symbol, string(b.Date), b.Open, b.High, b.Low, b.Close,
			b.Volume, b.Vol20, b.Sector, regime, score, isTest); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

// RangeBars 读取闭区间 [start, end] 内的全部行，按 (date, symbol) 升序。
func (s *Store) RangeBars(ctx context.Context, start, end Date) ([]Bar, error) {
	query := `SELECT symbol, date, open, high, low, close, volume, vol_20d, sector, regime, score, is_test
		FROM bars`
	args := []any{}
	switch {
	case !start.IsZero() && !end.IsZero():
		query += ` WHERE date BETWEEN ? AND ?`
		args = append(args, string(start), string(end))
	case !start.IsZero():
		query += ` WHERE date >= ?`
		args = append(args, string(start))
	case !end.IsZero():
		query += ` WHERE date <= ?`
		args = append(args, string(end))
	}
	query += ` ORDER BY date ASC, symbol ASC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Bar
	for rows.Next() {
		var (
			b      Bar
			date   string
			regime sql.NullFloat64
			score  sql.NullFloat64
			isTest int
		)
		if err := rows.Scan(&b.Symbol, &date, &b.Open, &b.High, &b.Low, &b.Close,
			&b.Volume, &b.Vol20, &b.Sector, &regime, &score, &isTest); err != nil {
			return nil, err
		}
		b.Date = Date(date)
		if regime.Valid {
			b.RegimeDist = regime.Float64
			b.HasRegime = true
		}
		if score.Valid {
			b.Score = score.Float64
			b.HasScore = true
		}
		b.IsTest = isTest != 0
		out = append(out, b)
	}
	return out, rows.Err()
}

// LoadDataset 读取区间并构建 Dataset。
func (s *Store) LoadDataset(ctx context.Context, start, end Date) (*Dataset, error) {
	bars, err := s.RangeBars(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("bar store 在区间 [%s, %s] 内没有数据", start, end)
	}
	return BuildDataset(bars), nil
}

// MaxDate 返回库中最新的交易日；空库返回空。
func (s *Store) MaxDate(ctx context.Context) (Date, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(date), '') FROM bars`)
	var d string
	if err := row.Scan(&d); err != nil {
		return "", err
	}
	return Date(d), nil
}
