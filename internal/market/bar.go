package market

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Date 是交易日（"2006-01-02"）。ISO 格式保证字符串比较即时间顺序。
type Date string

const dateLayout = "2006-01-02"

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return "", fmt.Errorf("无效日期 %q: %w", s, err)
	}
	return Date(t.Format(dateLayout)), nil
}

func (d Date) IsZero() bool       { return d == "" }
func (d Date) Before(o Date) bool { return d < o }
func (d Date) After(o Date) bool  { return d > o }
func (d Date) String() string     { return string(d) }

// Bar 是单只股票单日的行情 + 信号行，引擎的唯一输入单元。
type Bar struct {
	Symbol string  `json:"symbol"`
	Date   Date    `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`

	Vol20      float64 `json:"vol_20d"`       // 20 日收益率波动
	Sector     string  `json:"sector"`
	RegimeDist float64 `json:"regime_dist"`   // 大盘相对 MA200 的距离
	HasRegime  bool    `json:"has_regime"`
	Score      float64 `json:"score"`
	HasScore   bool    `json:"has_score"`
	IsTest     bool    `json:"is_test"`
}

// Validate 做行级完整性检查。坏行只影响自己：调用方跳过并继续。
func (b Bar) Validate() error {
	if b.Symbol == "" {
		return fmt.Errorf("symbol 为空")
	}
	if b.Date.IsZero() {
		return fmt.Errorf("date 为空")
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("%s %s: 存在非正价格", b.Symbol, b.Date)
	}
	if b.Low > b.High || b.Open > b.High || b.Open < b.Low || b.Close > b.High || b.Close < b.Low {
		return fmt.Errorf("%s %s: OHLC 顺序不一致", b.Symbol, b.Date)
	}
	if b.HasScore && (math.IsNaN(b.Score) || math.IsInf(b.Score, 0)) {
		return fmt.Errorf("%s %s: score 非法", b.Symbol, b.Date)
	}
	return nil
}

// Day 汇总一个交易日内所有符号的 Bar。
type Day struct {
	Date Date
	Bars map[string]Bar

	// Regime 是当日的大盘指标，整个横截面共享一个值。
	Regime    float64
	HasRegime bool
}

func (d *Day) Bar(symbol string) (Bar, bool) {
	b, ok := d.Bars[symbol]
	return b, ok
}

// SymbolsByScore 返回当日有有效分数的符号，按分数降序；
// 同分按符号名升序，保证跨运行确定性。
func (d *Day) SymbolsByScore() []string {
	syms := make([]string, 0, len(d.Bars))
	for sym, b := range d.Bars {
		if b.HasScore {
			syms = append(syms, sym)
		}
	}
	sort.Slice(syms, func(i, j int) bool {
		si, sj := d.Bars[syms[i]].Score, d.Bars[syms[j]].Score
		if si != sj {
			return si > sj
		}
		return syms[i] < syms[j]
	})
	return syms
}

// Dataset 是按日期升序排列的整张行情/信号表。
type Dataset struct {
	dates []Date
	days  map[Date]*Day
}

// BuildDataset 由 Bar 集合构建 Dataset。非法行在此之前应已被过滤。
func BuildDataset(bars []Bar) *Dataset {
	days := make(map[Date]*Day)
	for _, b := range bars {
		day, ok := days[b.Date]
		if !ok {
			day = &Day{Date: b.Date, Bars: make(map[string]Bar)}
			days[b.Date] = day
		}
		day.Bars[b.Symbol] = b
		if b.HasRegime && !day.HasRegime {
			day.Regime = b.RegimeDist
			day.HasRegime = true
		}
	}
	dates := make([]Date, 0, len(days))
	for dt := range days {
		dates = append(dates, dt)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i] < dates[j] })
	return &Dataset{dates: dates, days: days}
}

func (ds *Dataset) Len() int      { return len(ds.dates) }
func (ds *Dataset) Dates() []Date { return ds.dates }

// Bars 按 (date, symbol) 升序导出全部行。
func (ds *Dataset) Bars() []Bar {
	var out []Bar
	for _, dt := range ds.dates {
		day := ds.days[dt]
		syms := make([]string, 0, len(day.Bars))
		for s := range day.Bars {
			syms = append(syms, s)
		}
		sort.Strings(syms)
		for _, s := range syms {
			out = append(out, day.Bars[s])
		}
	}
	return out
}

func (ds *Dataset) Day(dt Date) (*Day, bool) {
	d, ok := ds.days[dt]
	return d, ok
}

// NextDate 返回严格晚于 dt 的下一个交易日；没有则返回空。
func (ds *Dataset) NextDate(dt Date) Date {
	idx := sort.Search(len(ds.dates), func(i int) bool { return ds.dates[i] > dt })
	if idx >= len(ds.dates) {
		return ""
	}
	return ds.dates[idx]
}

// DatesAfter 返回严格晚于 dt 的全部交易日（升序）。
func (ds *Dataset) DatesAfter(dt Date) []Date {
	idx := sort.Search(len(ds.dates), func(i int) bool { return ds.dates[i] > dt })
	return ds.dates[idx:]
}

// TestWindow 返回只保留 is_test 标记行的子集；若全表没有标记则原样返回。
func (ds *Dataset) TestWindow() *Dataset {
	tagged := false
	var bars []Bar
	for _, dt := range ds.dates {
		for _, b := range ds.days[dt].Bars {
			if b.IsTest {
				tagged = true
			}
			bars = append(bars, b)
		}
	}
	if !tagged {
		return ds
	}
	filtered := bars[:0]
	for _, b := range bars {
		if b.IsTest {
			filtered = append(filtered, b)
		}
	}
	return BuildDataset(filtered)
}
