package engine

import "math"

// 成交价模型：买入在开盘价上方滑点成交，卖出在下方；
// 佣金按成交额比例计，买入计入成本、卖出从回款中扣除。

type buyFill struct {
	Price  float64 // 含滑点的成交价
	Shares int64
	Net    float64 // 含佣金的总现金流出
}

// computeBuy 按可用资金整股买入。股数对含佣金的有效价取整，
// 保证净流出不超过分配资金。股数为 0 时返回 ok=false。
func computeBuy(open, capital, slippage, commission float64) (buyFill, bool) {
	price := open * (1 + slippage)
	if price <= 0 {
		return buyFill{}, false
	}
	effective := price * (1 + commission)
	shares := int64(math.Floor(capital / effective))
	if shares <= 0 {
		return buyFill{}, false
	}
	cost := float64(shares) * price
	return buyFill{
		Price:  price,
		Shares: shares,
		Net:    cost * (1 + commission),
	}, true
}

type sellFill struct {
	Price float64 // 含滑点的成交价
	Net   float64 // 扣佣金后的净回款
}

// computeSell 按开盘价卖出全部股数。
func computeSell(open float64, shares int64, slippage, commission float64) sellFill {
	price := open * (1 - slippage)
	gross := float64(shares) * price
	return sellFill{
		Price: price,
		Net:   gross * (1 - commission),
	}
}

// computeStopSell 是止损专用：若当日跳空低开越过止损线，
// 按开盘价成交（承受缺口），否则按止损线价位成交。
func computeStopSell(open, stopLevel float64, shares int64, slippage, commission float64) sellFill {
	raw := stopLevel
	if open <= stopLevel {
		raw = open
	}
	price := raw * (1 - slippage)
	gross := float64(shares) * price
	return sellFill{
		Price: price,
		Net:   gross * (1 - commission),
	}
}

// tradeReturn 是成交价口径的单笔收益率（滑点已含、佣金不含）。
func tradeReturn(entryPrice, exitPrice float64) float64 {
	if entryPrice <= 0 {
		return 0
	}
	return exitPrice/entryPrice - 1
}
