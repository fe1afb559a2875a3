package engine

import (
	"math"

	"quanttrade/internal/logger"
	"quanttrade/internal/market"
)

// scheduleEntries 是收盘后的进场决策：按当日分数从高到低补满空余仓位，
// 为每个入选符号挂一张 T+1 买单。大盘 regime 决定当日是否进场与仓位倍率。
func (e *Engine) scheduleEntries(day *market.Day, next market.Date) {
	if next.IsZero() {
		return
	}
	scale, allowed := e.regimeScale(day)
	if !allowed {
		logger.Debugf("[%s] 大盘深度走弱 (dist=%.4f), 当日不进场", day.Date, day.Regime)
		return
	}

	// 空余额度 = 上限 − Open 持仓 − 已挂未成交的买单。
	// 已标记待平的持仓不占额度：它的卖单会在买单结算前释放仓位。
	free := e.policy.MaxPositions - e.ledger.OpenCount() - e.ledger.PendingBuyCount()
	if free <= 0 {
		return
	}

	// 候选 = 当日分数降序的前 free 名，排除已持有和已有买单占用的符号。
	// 进场不设分数门槛：有空余额度就按排名补满，阈值只属于轮换逻辑。
	pendingBuys := e.ledger.PendingBuySymbols()
	var picks []string
	for _, sym := range day.SymbolsByScore() {
		if len(picks) >= free {
			break
		}
		if e.ledger.HasPosition(sym) || pendingBuys[sym] {
			continue
		}
		picks = append(picks, sym)
	}
	if len(picks) == 0 {
		return
	}

	weights := e.allocate(day, picks, free)
	budget := e.ledger.Cash() * scale
	for _, sym := range picks {
		capital := budget * weights[sym]
		if capital <= 0 {
			continue
		}
		e.ledger.PushOrder(PendingOrder{
			Side:       OrderBuy,
			Symbol:     sym,
			TargetDate: next,
			Capital:    capital,
			Reason:     ReasonEntry,
		})
		logger.Debugf("[%s] 进场计划 %s: 资金 %.2f (权重 %.3f, 倍率 %.2f), 次日 %s 开盘买入",
			day.Date, sym, capital, weights[sym], scale, next)
	}
}

// regimeScale 返回当日的仓位倍率。缺 regime 值时放行并全额进场——
// 宁可少一层保护也不能让缺数据静默停掉整条进场路径。
func (e *Engine) regimeScale(day *market.Day) (float64, bool) {
	if !day.HasRegime {
		return 1, true
	}
	switch {
	case day.Regime <= e.policy.RegimeHardBear:
		return 0, false
	case day.Regime < e.policy.RegimeSoftBear:
		return e.policy.RegimeScale, true
	default:
		return 1, true
	}
}

// allocate 计算每个入选符号的资金权重。
// equal: 按空余额度均分（候选不足时多出来的份额留作现金）；
// inverse_vol: 波动倒数归一，再按单票上限截断，截断掉的部分
// 同样留作现金，不回填给其他符号。
func (e *Engine) allocate(day *market.Day, picks []string, free int) map[string]float64 {
	weights := make(map[string]float64, len(picks))
	if e.policy.Allocation != AllocInverseVol {
		w := 1.0 / float64(free)
		for _, sym := range picks {
			weights[sym] = w
		}
		return weights
	}
	const volFloor = 1e-6
	total := 0.0
	inv := make(map[string]float64, len(picks))
	for _, sym := range picks {
		bar, _ := day.Bar(sym)
		vol := math.Max(bar.Vol20, volFloor)
		inv[sym] = 1 / vol
		total += inv[sym]
	}
	for _, sym := range picks {
		w := inv[sym] / total
		if w > e.policy.MaxWeight {
			w = e.policy.MaxWeight
		}
		weights[sym] = w
	}
	return weights
}
