// Package app 负责把配置装配成可运行的服务。
package app

import (
	"context"
	"fmt"

	"quanttrade/internal/config"
	"quanttrade/internal/logger"
	"quanttrade/internal/market"
)

// Mode 是命令行选择的运行模式。
type Mode string

const (
	ModeBacktest Mode = "backtest"
	ModeLive     Mode = "live"
	ModeImport   Mode = "import"
)

// App 持有一次进程生命周期内的全部装配结果。
type App struct {
	cfg  *config.Config
	mode Mode
}

func NewApp(cfg *config.Config, mode Mode) (*App, error) {
	switch mode {
	case ModeBacktest, ModeLive, ModeImport:
	default:
		return nil, fmt.Errorf("未知运行模式 %q (backtest|live|import)", mode)
	}
	return &App{cfg: cfg, mode: mode}, nil
}

func (a *App) Run(ctx context.Context) error {
	switch a.mode {
	case ModeBacktest:
		return a.runBacktest(ctx)
	case ModeLive:
		return a.runLive(ctx)
	case ModeImport:
		return a.runImport(ctx)
	}
	return nil
}

// loadDataset 按配置取数：优先 SQLite，退回 CSV。
// 缺的派生列（波动、regime）在这里补全。
func (a *App) loadDataset(ctx context.Context) (*market.Dataset, error) {
	ds, err := a.loadRaw(ctx)
	if err != nil {
		return nil, err
	}
	// 流水线漏掉的派生列在这里补全, 再做 test 窗口过滤。
	ds = market.BuildDataset(market.FillDerived(ds.Bars(), a.cfg.Data.IndexSymbol))
	if a.cfg.Data.TestOnly {
		ds = ds.TestWindow()
	}
	if ds.Len() == 0 {
		return nil, fmt.Errorf("过滤后没有任何交易日")
	}
	logger.Infof("数据加载完成: %d 个交易日 (%s ~ %s)",
		ds.Len(), ds.Dates()[0], ds.Dates()[ds.Len()-1])
	return ds, nil
}

func (a *App) loadRaw(ctx context.Context) (*market.Dataset, error) {
	d := a.cfg.Data
	if d.DBPath != "" {
		store, err := market.NewStore(d.DBPath)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.LoadDataset(ctx, market.Date(d.StartDate), market.Date(d.EndDate))
	}
	ds, err := market.LoadCSV(d.CSVPath)
	if err != nil {
		return nil, err
	}
	return a.clipDates(ds), nil
}

func (a *App) clipDates(ds *market.Dataset) *market.Dataset {
	start, end := market.Date(a.cfg.Data.StartDate), market.Date(a.cfg.Data.EndDate)
	if start.IsZero() && end.IsZero() {
		return ds
	}
	var bars []market.Bar
	for _, dt := range ds.Dates() {
		if !start.IsZero() && dt.Before(start) {
			continue
		}
		if !end.IsZero() && dt.After(end) {
			continue
		}
		day, _ := ds.Day(dt)
		for _, b := range day.Bars {
			bars = append(bars, b)
		}
	}
	return market.BuildDataset(bars)
}
