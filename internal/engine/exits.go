package engine

import (
	"sort"

	"quanttrade/internal/logger"
	"quanttrade/internal/market"
)

// stopLossPass 是唯一的当日执行路径：盘中最低价触及止损线立即平仓，
// 不等 T+1。跳空低开越过止损线时按开盘价成交，承受缺口损失。
// 同时推进所有存活持仓的持有天数并刷新最近价格。
func (e *Engine) stopLossPass(day *market.Day) {
	for _, sym := range e.ledger.Symbols() {
		pos, _ := e.ledger.Position(sym)
		bar, ok := day.Bar(sym)
		if !ok {
			// 停牌日也计入持有天数，时间退出按日历一致推进。
			pos.DaysHeld++
			continue
		}
		// 待平仓的持仓同样受止损保护：卖单顺延期间跌破止损线
		// 照样当日离场，残留的卖单在结算时作废。
		stopLevel := pos.EntryPrice * (1 + e.policy.StopLossPct)
		if bar.Low <= stopLevel {
			fill := computeStopSell(bar.Open, stopLevel, pos.Shares, e.policy.SlippageSell, e.policy.CommissionRate)
			e.ledger.ClosePosition(sym)
			e.ledger.Credit(fill.Net)
			e.recorder.RecordTrade(TradeRecord{
				Symbol:     sym,
				EntryDate:  pos.EntryDate,
				ExitDate:   day.Date,
				EntryPrice: pos.EntryPrice,
				ExitPrice:  fill.Price,
				Shares:     pos.Shares,
				ReturnPct:  tradeReturn(pos.EntryPrice, fill.Price),
				Reason:     ReasonStopLoss,
				DaysHeld:   pos.DaysHeld,
			})
			logger.Infof("[%s] 止损 %s @%.4f (止损线 %.4f, 最低 %.4f, 收益 %+.2f%%)",
				day.Date, sym, fill.Price, stopLevel, bar.Low,
				tradeReturn(pos.EntryPrice, fill.Price)*100)
			continue
		}
		pos.LastPrice = bar.Close
		pos.DaysHeld++
	}
}

// scheduleExits 是收盘后的退出决策：按 时间退出 → 模型止盈 → 分数轮换
// 的优先级为每笔 Open 持仓至多挂一张 T+1 卖单。
// topSet 是当日分数前 TopK 的符号集合，止盈只对跌出该集合的持仓生效。
func (e *Engine) scheduleExits(day *market.Day, next market.Date) {
	ranked := day.SymbolsByScore()
	topSet := make(map[string]bool, e.policy.TopK)
	for i, sym := range ranked {
		if i >= e.policy.TopK {
			break
		}
		topSet[sym] = true
	}

	for _, sym := range e.ledger.Symbols() {
		pos, _ := e.ledger.Position(sym)
		if pos.State != PositionOpen {
			continue
		}
		reason, ok := e.exitReason(day, pos, topSet)
		if !ok {
			continue
		}
		e.markPendingExit(pos, reason, next, day.Date)
	}

	e.scheduleRotation(day, next)
}

func (e *Engine) exitReason(day *market.Day, pos *Position, topSet map[string]bool) (ExitReason, bool) {
	if pos.DaysHeld >= e.policy.HorizonDays {
		return ReasonTimeExit, true
	}
	bar, ok := day.Bar(pos.Symbol)
	if !ok {
		return "", false
	}
	unrealized := tradeReturn(pos.EntryPrice, bar.Close)
	if unrealized >= e.policy.TakeProfitPct && !topSet[pos.Symbol] {
		// 已到止盈位但模型仍看好（前 TopK）时继续持有，让利润奔跑。
		return ReasonModelTP, true
	}
	return "", false
}

func (e *Engine) markPendingExit(pos *Position, reason ExitReason, next, today market.Date) {
	if next.IsZero() {
		logger.Debugf("[%s] %s 退出信号 (%s) 落在数据末尾，无法挂单", today, pos.Symbol, reason)
		return
	}
	pos.State = PositionPendingExit
	pos.ExitReason = reason
	e.ledger.PushOrder(PendingOrder{
		Side:       OrderSell,
		Symbol:     pos.Symbol,
		TargetDate: next,
		Reason:     reason,
	})
	logger.Debugf("[%s] %s 计划 %s, 次日 %s 开盘卖出", today, pos.Symbol, reason, next)
}

// rotationPair 是一组候选换仓：弱持仓换强候选。
type rotationPair struct {
	out string
	in  string
	gap float64
}

// scheduleRotation 做分数轮换：持仓分数跌破退出阈值、场外候选分数
// 高于进入阈值、且分差不小于最小门槛时，成对挂出 T+1 卖单+买单。
// 配对按分差降序贪心，一个符号只参与一组，最多 SwapLimit 组。
func (e *Engine) scheduleRotation(day *market.Day, next market.Date) {
	if next.IsZero() || e.policy.SwapLimit <= 0 {
		return
	}

	// 弱持仓：仍为 Open、当日有分数、分数低于退出阈值。
	var weak []string
	for _, sym := range e.ledger.Symbols() {
		pos, _ := e.ledger.Position(sym)
		if pos.State != PositionOpen {
			continue
		}
		bar, ok := day.Bar(sym)
		if !ok || !bar.HasScore {
			continue
		}
		if bar.Score < e.policy.RotationExitThreshold {
			weak = append(weak, sym)
		}
	}
	if len(weak) == 0 {
		return
	}

	// 强候选：场外、无挂单占用、分数高于进入阈值。
	pendingBuys := e.ledger.PendingBuySymbols()
	var strong []string
	for _, sym := range day.SymbolsByScore() {
		if e.ledger.HasPosition(sym) || pendingBuys[sym] {
			continue
		}
		bar, _ := day.Bar(sym)
		if bar.Score > e.policy.RotationEntryThreshold {
			strong = append(strong, sym)
		}
	}
	if len(strong) == 0 {
		return
	}

	var pairs []rotationPair
	for _, out := range weak {
		outBar, _ := day.Bar(out)
		for _, in := range strong {
			inBar, _ := day.Bar(in)
			gap := inBar.Score - outBar.Score
			if gap >= e.policy.RotationMinGap {
				pairs = append(pairs, rotationPair{out: out, in: in, gap: gap})
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].gap != pairs[j].gap {
			return pairs[i].gap > pairs[j].gap
		}
		if pairs[i].out != pairs[j].out {
			return pairs[i].out < pairs[j].out
		}
		return pairs[i].in < pairs[j].in
	})

	used := make(map[string]bool)
	swaps := 0
	for _, pr := range pairs {
		if swaps >= e.policy.SwapLimit {
			break
		}
		if used[pr.out] || used[pr.in] {
			continue
		}
		pos, _ := e.ledger.Position(pr.out)
		// 换仓资金按被换持仓的当前市值估算，实际成交额以次日开盘为准。
		capital := float64(pos.Shares) * pos.LastPrice
		e.markPendingExit(pos, ReasonRotation, next, day.Date)
		e.ledger.PushOrder(PendingOrder{
			Side:       OrderBuy,
			Symbol:     pr.in,
			TargetDate: next,
			Capital:    capital,
			Reason:     ReasonRotationEntry,
		})
		used[pr.out], used[pr.in] = true, true
		swaps++
		logger.Infof("[%s] 轮换计划: %s → %s (分差 %.3f)", day.Date, pr.out, pr.in, pr.gap)
	}
}
