package app

import (
	"context"
	"fmt"

	"quanttrade/internal/engine"
	"quanttrade/internal/logger"
	"quanttrade/internal/report"
	"quanttrade/internal/runstore"
)

// runBacktest 跑一次完整的历史模拟并产出报告。
func (a *App) runBacktest(ctx context.Context) error {
	ds, err := a.loadDataset(ctx)
	if err != nil {
		return err
	}
	policy := a.cfg.Strategy.Policy()

	rec := &engine.MemoryRecorder{}
	eng, err := engine.New(policy, ds, rec)
	if err != nil {
		return err
	}
	if err := eng.Run(ctx); err != nil {
		return err
	}

	runID := "local"
	if a.cfg.Report.DBPath != "" {
		store, err := runstore.NewStore(a.cfg.Report.DBPath)
		if err != nil {
			return fmt.Errorf("打开 run store 失败: %w", err)
		}
		defer store.Close()

		dates := ds.Dates()
		runID, err = store.BeginRun(ctx, "backtest", policy, dates[0], dates[len(dates)-1])
		if err != nil {
			return err
		}
		if err := store.SaveTrades(ctx, runID, rec.Trades); err != nil {
			return err
		}
		if err := store.SaveEquity(ctx, runID, rec.Equity); err != nil {
			return err
		}
		final := 0.0
		if snap, ok := eng.LastSnapshot(); ok {
			final = snap.Equity
		}
		if err := store.FinishRun(ctx, runID, final, len(rec.ClosedTrades())); err != nil {
			return err
		}
		logger.Infof("运行已登记: %s", runID)
	}

	rep := report.Build(runID, "backtest", policy.InitialCapital, rec)
	if err := rep.WriteArtifacts(a.cfg.Report.OutputDir, a.cfg.Report.Chart); err != nil {
		return err
	}
	rep.LogSummary()
	return nil
}
