// Package report 负责一次运行的产物输出：汇总指标、成交/权益 CSV、
// 运行清单和权益曲线图。
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"quanttrade/internal/engine"
	"quanttrade/internal/logger"
)

// Report 聚合一次运行的全部输出。
type Report struct {
	RunID   string
	Mode    string
	Summary Summary
	Trades  []engine.TradeRecord
	Equity  []engine.EquitySnapshot
}

// Build 组装报告。
func Build(runID, mode string, initial float64, rec *engine.MemoryRecorder) Report {
	return Report{
		RunID:   runID,
		Mode:    mode,
		Summary: Summarize(initial, rec.Equity, rec.Trades),
		Trades:  rec.Trades,
		Equity:  rec.Equity,
	}
}

// WriteArtifacts 把报告落到输出目录：
// summary.yaml / trades.csv / equity.csv，withChart 时加 equity.html。
func (r Report) WriteArtifacts(dir string, withChart bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := r.writeManifest(filepath.Join(dir, "summary.yaml")); err != nil {
		return fmt.Errorf("写运行清单失败: %w", err)
	}
	if err := r.writeTradesCSV(filepath.Join(dir, "trades.csv")); err != nil {
		return fmt.Errorf("写成交 CSV 失败: %w", err)
	}
	if err := r.writeEquityCSV(filepath.Join(dir, "equity.csv")); err != nil {
		return fmt.Errorf("写权益 CSV 失败: %w", err)
	}
	if withChart {
		title := fmt.Sprintf("权益曲线 %s", r.Summary.EndDate)
		if err := RenderEquityChart(filepath.Join(dir, "equity.html"), title, r.Equity); err != nil {
			return fmt.Errorf("渲染权益图失败: %w", err)
		}
	}
	logger.Infof("报告已写入 %s", dir)
	return nil
}

type manifest struct {
	RunID       string  `yaml:"run_id"`
	Mode        string  `yaml:"mode"`
	GeneratedAt string  `yaml:"generated_at"`
	Summary     Summary `yaml:"summary"`
}

func (r Report) writeManifest(path string) error {
	data, err := yaml.Marshal(manifest{
		RunID:       r.RunID,
		Mode:        r.Mode,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Summary:     r.Summary.Rounded(),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (r Report) writeTradesCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write([]string{
		"symbol", "entry_date", "exit_date", "entry_price", "exit_price",
		"shares", "return_pct", "reason", "days_held",
	}); err != nil {
		return err
	}
	for _, t := range r.Trades {
		row := []string{
			t.Symbol, string(t.EntryDate), string(t.ExitDate),
			formatFloat(t.EntryPrice, 4), formatFloat(t.ExitPrice, 4),
			strconv.FormatInt(t.Shares, 10),
			formatFloat(t.ReturnPct, 6),
			string(t.Reason),
			strconv.Itoa(t.DaysHeld),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (r Report) writeEquityCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write([]string{
		"date", "equity", "cash", "portfolio_value", "daily_return", "n_positions", "drawdown",
	}); err != nil {
		return err
	}
	for _, e := range r.Equity {
		row := []string{
			string(e.Date),
			formatFloat(e.Equity, 2), formatFloat(e.Cash, 2), formatFloat(e.PortfolioValue, 2),
			formatFloat(e.DailyReturn, 6),
			strconv.Itoa(e.NPositions),
			formatFloat(e.Drawdown, 6),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64, places int32) string {
	return strconv.FormatFloat(Round(v, places), 'f', -1, 64)
}

// LogSummary 把汇总打到日志，CLI 收尾时给人看的。
func (r Report) LogSummary() {
	s := r.Summary.Rounded()
	logger.InfoBlock(fmt.Sprintf(
		"===== 运行汇总 =====\n区间: %s ~ %s (%d 个交易日)\n期初: %.2f  期末: %.2f\n总收益: %.2f%%  年化: %.2f%%  夏普: %.3f  最大回撤: %.2f%%\n成交: %d 笔  胜率: %.1f%%  平均收益: %.2f%%  平均持有: %.1f 日",
		s.StartDate, s.EndDate, s.TradingDays,
		s.InitialEquity, s.FinalEquity,
		s.TotalReturn*100, s.CAGR*100, s.Sharpe, s.MaxDrawdown*100,
		s.TotalTrades, s.WinRate*100, s.AvgReturn*100, s.AvgHoldDays,
	))
}
