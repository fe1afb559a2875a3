package engine

import (
	"quanttrade/internal/logger"
	"quanttrade/internal/market"
)

// settleOrders 是每个交易日的第一步：把到期挂单按当日开盘价结算。
// SELL 先于 BUY——轮换换仓的卖单必须先释放现金和仓位额度，
// 配对的买单才可能在同一天成交。无法成交的单顺延到下一个交易日。
func (e *Engine) settleOrders(day *market.Day) {
	due := e.ledger.TakeDue(day.Date)
	for _, o := range due {
		switch o.Side {
		case OrderSell:
			e.settleSell(day, o)
		case OrderBuy:
			e.settleBuy(day, o)
		}
	}
}

func (e *Engine) settleSell(day *market.Day, o PendingOrder) {
	pos, ok := e.ledger.Position(o.Symbol)
	if !ok {
		// 持仓已在挂单到期前被当日止损平掉，卖单作废。
		logger.Debugf("[%s] %s 卖单作废: 持仓已不存在 (%s)", day.Date, o.Symbol, o.Reason)
		return
	}
	bar, ok := day.Bar(o.Symbol)
	if !ok {
		e.deferOrder(day, o, "当日无行情")
		return
	}
	fill := computeSell(bar.Open, pos.Shares, e.policy.SlippageSell, e.policy.CommissionRate)
	e.ledger.ClosePosition(o.Symbol)
	e.ledger.Credit(fill.Net)
	e.recorder.RecordTrade(TradeRecord{
		Symbol:     pos.Symbol,
		EntryDate:  pos.EntryDate,
		ExitDate:   day.Date,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  fill.Price,
		Shares:     pos.Shares,
		ReturnPct:  tradeReturn(pos.EntryPrice, fill.Price),
		Reason:     o.Reason,
		DaysHeld:   pos.DaysHeld,
	})
	logger.Infof("[%s] 平仓 %s @%.4f x%d (%s, 持有 %d 日, 收益 %+.2f%%)",
		day.Date, pos.Symbol, fill.Price, pos.Shares, o.Reason, pos.DaysHeld,
		tradeReturn(pos.EntryPrice, fill.Price)*100)
}

func (e *Engine) settleBuy(day *market.Day, o PendingOrder) {
	if e.ledger.HasPosition(o.Symbol) {
		logger.Warnf("[%s] %s 买单作废: 已有持仓", day.Date, o.Symbol)
		return
	}
	if e.ledger.PositionCount() >= e.policy.MaxPositions {
		e.deferOrder(day, o, "仓位已满")
		return
	}
	bar, ok := day.Bar(o.Symbol)
	if !ok {
		e.deferOrder(day, o, "当日无行情")
		return
	}
	// 买单要么足额成交要么顺延，绝不按剩余现金缩水成交。
	capital := o.Capital
	if capital > e.ledger.Cash()+cashEpsilon {
		e.deferOrder(day, o, ErrInsufficientCash.Error())
		return
	}
	fill, ok := computeBuy(bar.Open, capital, e.policy.SlippageBuy, e.policy.CommissionRate)
	if !ok {
		// 资金买不起一股，这张单没有成交的意义，直接丢弃。
		logger.Warnf("[%s] %s 买单丢弃: %v (资金 %.2f, 开盘 %.4f)",
			day.Date, o.Symbol, ErrInvalidOrderSize, capital, bar.Open)
		return
	}
	if err := e.ledger.Debit(fill.Net); err != nil {
		e.deferOrder(day, o, err.Error())
		return
	}
	pos := &Position{
		Symbol:     o.Symbol,
		EntryPrice: fill.Price,
		Shares:     fill.Shares,
		EntryDate:  day.Date,
		DaysHeld:   0,
		LastPrice:  fill.Price,
		State:      PositionOpen,
	}
	if err := e.ledger.OpenPosition(pos); err != nil {
		// Debit 已通过、OpenPosition 失败只可能是重复持仓，前面已挡住。
		e.ledger.Credit(fill.Net)
		logger.Errorf("[%s] %s 开仓失败: %v", day.Date, o.Symbol, err)
		return
	}
	e.recorder.RecordTrade(TradeRecord{
		Symbol:     o.Symbol,
		EntryDate:  day.Date,
		EntryPrice: fill.Price,
		Shares:     fill.Shares,
		Reason:     o.Reason,
	})
	logger.Infof("[%s] 开仓 %s @%.4f x%d (投入 %.2f, %s)",
		day.Date, o.Symbol, fill.Price, fill.Shares, fill.Net, o.Reason)
}

// deferOrder 把当日无法结算的单顺延到下一个交易日；
// 超过顺延上限则取消并记日志（线上人工复核）。
func (e *Engine) deferOrder(day *market.Day, o PendingOrder, why string) {
	o.Deferrals++
	if o.Deferrals > e.policy.MaxDeferDays {
		logger.Warnf("[%s] %s %s 单取消: 顺延 %d 次仍无法成交 (%s)",
			day.Date, o.Symbol, o.Side, o.Deferrals-1, why)
		return
	}
	next := e.dataset.NextDate(day.Date)
	if next.IsZero() {
		logger.Warnf("[%s] %s %s 单取消: 已到数据末尾 (%s)", day.Date, o.Symbol, o.Side, why)
		return
	}
	o.TargetDate = next
	e.ledger.PushOrder(o)
	logger.Debugf("[%s] %s %s 单顺延至 %s: %s", day.Date, o.Symbol, o.Side, next, why)
}
