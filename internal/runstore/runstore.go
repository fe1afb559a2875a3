// Package runstore 用 SQLite 登记每次模拟运行及其成交/权益序列。
// 回测结果可以跨运行对比，实盘的逐日记录也落在这里。
package runstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"quanttrade/internal/engine"
	"quanttrade/internal/market"
)

// RunRecord 是一次完整运行的登记行。
type RunRecord struct {
	ID         string         `gorm:"column:id;primaryKey"`
	Mode       string         `gorm:"column:mode;index"` // backtest | live
	StartedAt  time.Time      `gorm:"column:started_at"`
	FinishedAt time.Time      `gorm:"column:finished_at"`
	StartDate  string         `gorm:"column:start_date"`
	EndDate    string         `gorm:"column:end_date"`
	PolicyJSON datatypes.JSON `gorm:"column:policy_json;type:TEXT"`

	FinalEquity float64 `gorm:"column:final_equity"`
	TotalTrades int     `gorm:"column:total_trades"`
}

func (RunRecord) TableName() string { return "runs" }

// TradeRow 是归属于某次运行的成交行。
type TradeRow struct {
	ID         uint    `gorm:"primaryKey;autoIncrement"`
	RunID      string  `gorm:"column:run_id;index"`
	Symbol     string  `gorm:"column:symbol;index"`
	EntryDate  string  `gorm:"column:entry_date"`
	ExitDate   string  `gorm:"column:exit_date"`
	EntryPrice float64 `gorm:"column:entry_price"`
	ExitPrice  float64 `gorm:"column:exit_price"`
	Shares     int64   `gorm:"column:shares"`
	ReturnPct  float64 `gorm:"column:return_pct"`
	Reason     string  `gorm:"column:reason;index"`
	DaysHeld   int     `gorm:"column:days_held"`
}

func (TradeRow) TableName() string { return "trades" }

// EquityRow 是归属于某次运行的权益快照行。
type EquityRow struct {
	ID             uint    `gorm:"primaryKey;autoIncrement"`
	RunID          string  `gorm:"column:run_id;uniqueIndex:idx_run_date"`
	Date           string  `gorm:"column:date;uniqueIndex:idx_run_date"`
	Equity         float64 `gorm:"column:equity"`
	Cash           float64 `gorm:"column:cash"`
	PortfolioValue float64 `gorm:"column:portfolio_value"`
	DailyReturn    float64 `gorm:"column:daily_return"`
	NPositions     int     `gorm:"column:n_positions"`
	Drawdown       float64 `gorm:"column:drawdown"`
}

func (EquityRow) TableName() string { return "equity_curve" }

// Store 封装 gorm + SQLite 的运行登记库。
type Store struct {
	db *gorm.DB
}

func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("run store 路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(&sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&RunRecord{}, &TradeRow{}, &EquityRow{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// BeginRun 登记一次新运行并返回 run id。
func (s *Store) BeginRun(ctx context.Context, mode string, policy engine.Policy, start, end market.Date) (string, error) {
	policyJSON, err := json.Marshal(policy)
	if err != nil {
		return "", err
	}
	rec := RunRecord{
		ID:         uuid.NewString(),
		Mode:       mode,
		StartedAt:  time.Now().UTC(),
		StartDate:  string(start),
		EndDate:    string(end),
		PolicyJSON: datatypes.JSON(policyJSON),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", err
	}
	return rec.ID, nil
}

// FinishRun 回填运行的收尾信息。
func (s *Store) FinishRun(ctx context.Context, runID string, finalEquity float64, totalTrades int) error {
	return s.db.WithContext(ctx).Model(&RunRecord{}).Where("id = ?", runID).Updates(map[string]any{
		"finished_at":  time.Now().UTC(),
		"final_equity": finalEquity,
		"total_trades": totalTrades,
	}).Error
}

// SaveTrades 批量写入成交记录。
func (s *Store) SaveTrades(ctx context.Context, runID string, trades []engine.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}
	rows := make([]TradeRow, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, TradeRow{
			RunID:      runID,
			Symbol:     t.Symbol,
			EntryDate:  string(t.EntryDate),
			ExitDate:   string(t.ExitDate),
			EntryPrice: t.EntryPrice,
			ExitPrice:  t.ExitPrice,
			Shares:     t.Shares,
			ReturnPct:  t.ReturnPct,
			Reason:     string(t.Reason),
			DaysHeld:   t.DaysHeld,
		})
	}
	return s.db.WithContext(ctx).CreateInBatches(rows, 200).Error
}

// SaveEquity 写入权益序列。同一运行同一日期重写时覆盖，
// 实盘逐日追加和断点重跑都走这一条路径。
func (s *Store) SaveEquity(ctx context.Context, runID string, snaps []engine.EquitySnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	rows := make([]EquityRow, 0, len(snaps))
	for _, e := range snaps {
		rows = append(rows, EquityRow{
			RunID:          runID,
			Date:           string(e.Date),
			Equity:         e.Equity,
			Cash:           e.Cash,
			PortfolioValue: e.PortfolioValue,
			DailyReturn:    e.DailyReturn,
			NPositions:     e.NPositions,
			Drawdown:       e.Drawdown,
		})
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "run_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"equity", "cash", "portfolio_value", "daily_return", "n_positions", "drawdown",
		}),
	}).CreateInBatches(rows, 200).Error
}

// ListRuns 按开始时间倒序列出最近的运行。
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []RunRecord
	err := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// TradesByRun 取某次运行的全部成交，按入场日期升序。
func (s *Store) TradesByRun(ctx context.Context, runID string) ([]TradeRow, error) {
	var out []TradeRow
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).
		Order("entry_date ASC, id ASC").Find(&out).Error
	return out, err
}

// EquityByRun 取某次运行的权益曲线，按日期升序。
func (s *Store) EquityByRun(ctx context.Context, runID string) ([]EquityRow, error) {
	var out []EquityRow
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).
		Order("date ASC").Find(&out).Error
	return out, err
}
