package app

import (
	"context"
	"fmt"

	"quanttrade/internal/logger"
	"quanttrade/internal/market"
)

// runImport 把 CSV 信号表灌进 SQLite bar store。
// 流水线产出 CSV 后跑一次, 之后回测/实盘都直接读库。
func (a *App) runImport(ctx context.Context) error {
	if a.cfg.Data.CSVPath == "" {
		return fmt.Errorf("import 模式需要 data.csv_path")
	}
	if a.cfg.Data.DBPath == "" {
		return fmt.Errorf("import 模式需要 data.db_path")
	}
	ds, err := market.LoadCSV(a.cfg.Data.CSVPath)
	if err != nil {
		return err
	}
	bars := market.FillDerived(ds.Bars(), a.cfg.Data.IndexSymbol)

	store, err := market.NewStore(a.cfg.Data.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.InsertBars(ctx, bars)
	if err != nil {
		return err
	}
	logger.Infof("导入完成: %d 行写入 %s", n, a.cfg.Data.DBPath)
	return nil
}
