package app

import (
	"context"
	"time"

	"quanttrade/internal/checkpoint"
	"quanttrade/internal/engine"
	"quanttrade/internal/live"
	"quanttrade/internal/logger"
	"quanttrade/internal/market"
	"quanttrade/internal/runstore"
)

// runLive 从检查点续跑新增交易日。配置 watch 时常驻监视数据文件，
// 否则处理完当前积压就退出（适合 cron 驱动）。
func (a *App) runLive(ctx context.Context) error {
	store, err := checkpoint.NewStore(a.cfg.Live.CheckpointPath)
	if err != nil {
		return err
	}
	loader := func(ctx context.Context) (*market.Dataset, error) {
		return a.loadDataset(ctx)
	}
	rec := &engine.MemoryRecorder{}
	runner, err := live.NewRunner(a.cfg.Strategy.Policy(), loader, store, live.LogNotifier{}, rec)
	if err != nil {
		return err
	}

	n, err := runner.ProcessNew(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		if err := a.persistLiveBatch(ctx, rec); err != nil {
			return err
		}
	}
	if !a.cfg.Live.Watch {
		return nil
	}

	dataPath := a.cfg.Data.DBPath
	if dataPath == "" {
		dataPath = a.cfg.Data.CSVPath
	}
	logger.Infof("进入常驻监视模式")
	return runner.Watch(ctx, dataPath, time.Duration(a.cfg.Live.DebounceMS)*time.Millisecond)
}

// persistLiveBatch 把本轮处理的成交/权益登记进 run store（如有配置）。
func (a *App) persistLiveBatch(ctx context.Context, rec *engine.MemoryRecorder) error {
	if a.cfg.Report.DBPath == "" {
		return nil
	}
	rs, err := runstore.NewStore(a.cfg.Report.DBPath)
	if err != nil {
		return err
	}
	defer rs.Close()

	var start, end market.Date
	if len(rec.Equity) > 0 {
		start, end = rec.Equity[0].Date, rec.Equity[len(rec.Equity)-1].Date
	}
	runID, err := rs.BeginRun(ctx, "live", a.cfg.Strategy.Policy(), start, end)
	if err != nil {
		return err
	}
	if err := rs.SaveTrades(ctx, runID, rec.Trades); err != nil {
		return err
	}
	if err := rs.SaveEquity(ctx, runID, rec.Equity); err != nil {
		return err
	}
	final := 0.0
	if len(rec.Equity) > 0 {
		final = rec.Equity[len(rec.Equity)-1].Equity
	}
	if err := rs.FinishRun(ctx, runID, final, len(rec.ClosedTrades())); err != nil {
		return err
	}
	logger.Infof("实盘批次已登记: %s (%s ~ %s)", runID, start, end)
	return nil
}
