package market

import (
	"sort"

	talib "github.com/markcheno/go-talib"
)

const (
	volWindow    = 20
	regimeWindow = 200
)

// FillDerived 补全流水线没给的派生列：每只股票 20 日收益波动，
// 以及基准指数相对 MA200 的距离（作为当日大盘 regime 值铺到全横截面）。
// 已有值的行不覆盖。indexSymbol 为空时跳过 regime 推导。
func FillDerived(bars []Bar, indexSymbol string) []Bar {
	bySymbol := make(map[string][]int)
	for i, b := range bars {
		bySymbol[b.Symbol] = append(bySymbol[b.Symbol], i)
	}
	for _, idxs := range bySymbol {
		sort.Slice(idxs, func(a, b int) bool { return bars[idxs[a]].Date < bars[idxs[b]].Date })
		fillVolatility(bars, idxs)
	}
	if indexSymbol != "" {
		if idxs, ok := bySymbol[NormalizeSymbol(indexSymbol)]; ok {
			regimeByDate := deriveRegime(bars, idxs)
			for i := range bars {
				if bars[i].HasRegime {
					continue
				}
				if v, ok := regimeByDate[bars[i].Date]; ok {
					bars[i].RegimeDist = v
					bars[i].HasRegime = true
				}
			}
		}
	}
	return bars
}

// fillVolatility 用 1 日收益率的滚动标准差补 vol_20d。
func fillVolatility(bars []Bar, idxs []int) {
	if len(idxs) < volWindow+1 {
		return
	}
	rets := make([]float64, len(idxs))
	for k := 1; k < len(idxs); k++ {
		prev := bars[idxs[k-1]].Close
		if prev > 0 {
			rets[k] = bars[idxs[k]].Close/prev - 1
		}
	}
	std := talib.StdDev(rets, volWindow, 1.0)
	for k, i := range idxs {
		if bars[i].Vol20 == 0 && k < len(std) && std[k] > 0 {
			bars[i].Vol20 = std[k]
		}
	}
}

// deriveRegime 计算指数收盘价相对 SMA200 的距离。
func deriveRegime(bars []Bar, idxs []int) map[Date]float64 {
	out := make(map[Date]float64)
	if len(idxs) < regimeWindow {
		return out
	}
	closes := make([]float64, len(idxs))
	for k, i := range idxs {
		closes[k] = bars[i].Close
	}
	sma := talib.Sma(closes, regimeWindow)
	for k, i := range idxs {
		if k < len(sma) && sma[k] > 0 {
			out[bars[i].Date] = closes[k]/sma[k] - 1
		}
	}
	return out
}
