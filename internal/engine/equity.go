package engine

import (
	"quanttrade/internal/market"
)

// recordEquity 是每个交易日的收官步骤：持仓按 MarkPrice 估值
// （当日收盘价，停牌时沿用最近一次有行情的价格）。
func (e *Engine) recordEquity(day *market.Day) {
	value := 0.0
	for _, sym := range e.ledger.Symbols() {
		pos, _ := e.ledger.Position(sym)
		price, _ := e.MarkPrice(day, sym)
		value += float64(pos.Shares) * price
	}
	equity := e.ledger.Cash() + value

	dailyRet := 0.0
	if e.prevEquity > 0 {
		dailyRet = equity/e.prevEquity - 1
	}
	if equity > e.highWater {
		e.highWater = equity
	}
	drawdown := 0.0
	if e.highWater > 0 {
		drawdown = equity/e.highWater - 1
	}

	snap := EquitySnapshot{
		Date:           day.Date,
		Equity:         equity,
		Cash:           e.ledger.Cash(),
		PortfolioValue: value,
		DailyReturn:    dailyRet,
		NPositions:     e.ledger.PositionCount(),
		Drawdown:       drawdown,
	}
	e.prevEquity = equity
	e.lastSnapshot = snap
	e.recorder.RecordEquity(snap)
}

// LastSnapshot 返回最近一个已处理交易日的权益快照。
func (e *Engine) LastSnapshot() (EquitySnapshot, bool) {
	if e.lastSnapshot.Date.IsZero() {
		return EquitySnapshot{}, false
	}
	return e.lastSnapshot, true
}

// MarkPrice 返回符号当日的估值价：有行情用收盘，没有用最近价。
func (e *Engine) MarkPrice(day *market.Day, sym string) (float64, bool) {
	if bar, ok := day.Bar(sym); ok {
		return bar.Close, true
	}
	if pos, ok := e.ledger.Position(sym); ok {
		return pos.LastPrice, true
	}
	return 0, false
}
