package report

import (
	"math"

	"github.com/shopspring/decimal"

	"quanttrade/internal/engine"
)

const tradingDaysPerYear = 252

// Summary 是一次运行的汇总指标。
type Summary struct {
	StartDate     string  `json:"start_date" yaml:"start_date"`
	EndDate       string  `json:"end_date" yaml:"end_date"`
	TradingDays   int     `json:"trading_days" yaml:"trading_days"`
	InitialEquity float64 `json:"initial_equity" yaml:"initial_equity"`
	FinalEquity   float64 `json:"final_equity" yaml:"final_equity"`
	TotalReturn   float64 `json:"total_return" yaml:"total_return"`
	CAGR          float64 `json:"cagr" yaml:"cagr"`
	Sharpe        float64 `json:"sharpe" yaml:"sharpe"`
	MaxDrawdown   float64 `json:"max_drawdown" yaml:"max_drawdown"`

	TotalTrades int     `json:"total_trades" yaml:"total_trades"`
	WinRate     float64 `json:"win_rate" yaml:"win_rate"`
	AvgReturn   float64 `json:"avg_return" yaml:"avg_return"`
	AvgHoldDays float64 `json:"avg_hold_days" yaml:"avg_hold_days"`

	ExitBreakdown map[string]int `json:"exit_breakdown" yaml:"exit_breakdown"`
}

// Summarize 从权益序列与成交台账算汇总指标。
func Summarize(initial float64, equity []engine.EquitySnapshot, trades []engine.TradeRecord) Summary {
	s := Summary{
		InitialEquity: initial,
		ExitBreakdown: make(map[string]int),
	}
	if len(equity) == 0 {
		return s
	}
	s.StartDate = string(equity[0].Date)
	s.EndDate = string(equity[len(equity)-1].Date)
	s.TradingDays = len(equity)
	s.FinalEquity = equity[len(equity)-1].Equity
	if initial > 0 {
		s.TotalReturn = s.FinalEquity/initial - 1
	}
	s.CAGR = cagr(initial, s.FinalEquity, len(equity))
	s.Sharpe = sharpe(equity)
	for _, snap := range equity {
		if snap.Drawdown < s.MaxDrawdown {
			s.MaxDrawdown = snap.Drawdown
		}
	}

	var closed []engine.TradeRecord
	for _, t := range trades {
		if t.IsClose() {
			closed = append(closed, t)
		}
	}
	s.TotalTrades = len(closed)
	if len(closed) > 0 {
		wins, retSum, daySum := 0, 0.0, 0
		for _, t := range closed {
			if t.ReturnPct > 0 {
				wins++
			}
			retSum += t.ReturnPct
			daySum += t.DaysHeld
			s.ExitBreakdown[string(t.Reason)]++
		}
		n := float64(len(closed))
		s.WinRate = float64(wins) / n
		s.AvgReturn = retSum / n
		s.AvgHoldDays = float64(daySum) / n
	}
	return s
}

// cagr 按 252 交易日/年折算复合年化收益。
func cagr(initial, final float64, days int) float64 {
	if initial <= 0 || final <= 0 || days <= 0 {
		return 0
	}
	years := float64(days) / tradingDaysPerYear
	if years <= 0 {
		return 0
	}
	return math.Pow(final/initial, 1/years) - 1
}

// sharpe 用日收益序列算年化夏普（无风险利率按 0 计）。
func sharpe(equity []engine.EquitySnapshot) float64 {
	if len(equity) < 2 {
		return 0
	}
	rets := make([]float64, 0, len(equity)-1)
	for _, snap := range equity[1:] {
		rets = append(rets, snap.DailyReturn)
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	variance := 0.0
	for _, r := range rets {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(rets))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(tradingDaysPerYear)
}

// Round 把指标统一舍入到固定小数位，报表输出用。
// 浮点直接 Printf 会带出 0.10000000000000002 这类噪声。
func Round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// Rounded 返回全部指标舍入后的副本。
func (s Summary) Rounded() Summary {
	out := s
	out.InitialEquity = Round(s.InitialEquity, 2)
	out.FinalEquity = Round(s.FinalEquity, 2)
	out.TotalReturn = Round(s.TotalReturn, 4)
	out.CAGR = Round(s.CAGR, 4)
	out.Sharpe = Round(s.Sharpe, 3)
	out.MaxDrawdown = Round(s.MaxDrawdown, 4)
	out.WinRate = Round(s.WinRate, 4)
	out.AvgReturn = Round(s.AvgReturn, 4)
	out.AvgHoldDays = Round(s.AvgHoldDays, 1)
	return out
}
