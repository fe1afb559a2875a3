package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"quanttrade/internal/logger"
)

// BIST 符号含土耳其字符（İŞ、Ğ 等），必须用土耳其语大小写规则折叠，
// 否则 "istanbul" 会被错误地大写成 "ISTANBUL" 而不是 "İSTANBUL"。
var turkishUpper = cases.Upper(language.Turkish)

func NormalizeSymbol(s string) string {
	return turkishUpper.String(strings.TrimSpace(s))
}

// columnIndex 把表头映射到列下标，兼容流水线表的列名变体。
type columnIndex struct {
	date, symbol, open, high, low, close, volume int
	vol20, sector, regime, score, split          int
}

var columnAliases = map[string][]string{
	"date":   {"date"},
	"symbol": {"symbol", "ticker"},
	"open":   {"price_open", "open"},
	"high":   {"price_high", "high"},
	"low":    {"price_low", "low"},
	"close":  {"price_close", "close"},
	"volume": {"volume", "price_volume"},
	"vol20":  {"price_vol_20d", "vol_20d"},
	"sector": {"sector"},
	"regime": {"macro_bist100_distance_ma200", "regime_dist"},
	"score":  {"score"},
	"split":  {"dataset_split"},
}

func resolveColumns(header []string) (columnIndex, error) {
	lookup := make(map[string]int, len(header))
	for i, h := range header {
		lookup[strings.ToLower(strings.TrimSpace(h))] = i
	}
	find := func(key string) int {
		for _, alias := range columnAliases[key] {
			if idx, ok := lookup[alias]; ok {
				return idx
			}
		}
		return -1
	}
	ci := columnIndex{
		date: find("date"), symbol: find("symbol"),
		open: find("open"), high: find("high"), low: find("low"), close: find("close"),
		volume: find("volume"), vol20: find("vol20"), sector: find("sector"),
		regime: find("regime"), score: find("score"), split: find("split"),
	}
	for name, idx := range map[string]int{
		"date": ci.date, "symbol": ci.symbol,
		"open": ci.open, "high": ci.high, "low": ci.low, "close": ci.close,
	} {
		if idx < 0 {
			return ci, fmt.Errorf("信号表缺少必需列: %s", name)
		}
	}
	return ci, nil
}

// LoadCSV 读取日线行情+信号表。坏行（价格非正、OHLC 倒挂、NaN 分数等）
// 记日志后跳过，绝不让单行数据中断整个加载。
func LoadCSV(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

func ReadCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("读取表头失败: %w", err)
	}
	ci, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("读取数据行失败: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("信号表为空")
	}

	// 分片并行解析。解析发生在模拟开始之前，不影响逐日折叠的确定性。
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}
	if workers < 1 {
		workers = 1
	}
	chunk := (len(records) + workers - 1) / workers
	nChunks := (len(records) + chunk - 1) / chunk

	// 分片结果按分片序拼接，最终 bars 与文件行序一致：
	// 重复 (symbol, date) 行的后写覆盖结果必须跨运行稳定。
	parts := make([][]Bar, nChunks)
	skips := make([]int, nChunks)
	var g errgroup.Group
	for i := 0; i < nChunks; i++ {
		start := i * chunk
		end := start + chunk
		if end > len(records) {
			end = len(records)
		}
		idx, part := i, records[start:end]
		g.Go(func() error {
			local := make([]Bar, 0, len(part))
			for _, rec := range part {
				bar, err := parseRow(ci, rec)
				if err != nil {
					logger.Warnf("跳过坏行: %v", err)
					skips[idx]++
					continue
				}
				local = append(local, bar)
			}
			parts[idx] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var bars []Bar
	skipped := 0
	for i, part := range parts {
		bars = append(bars, part...)
		skipped += skips[i]
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("信号表没有任何有效行")
	}
	if skipped > 0 {
		logger.Infof("信号表加载完成: %d 行有效, %d 行被跳过", len(bars), skipped)
	}
	return BuildDataset(bars), nil
}

func parseRow(ci columnIndex, rec []string) (Bar, error) {
	field := func(idx int) string {
		if idx < 0 || idx >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[idx])
	}
	dt, err := ParseDate(field(ci.date))
	if err != nil {
		return Bar{}, err
	}
	bar := Bar{
		Symbol: NormalizeSymbol(field(ci.symbol)),
		Date:   dt,
		Sector: field(ci.sector),
	}
	bar.Open, err = parseFloat(field(ci.open))
	if err != nil {
		return Bar{}, fmt.Errorf("%s %s open: %w", bar.Symbol, dt, err)
	}
	bar.High, err = parseFloat(field(ci.high))
	if err != nil {
		return Bar{}, fmt.Errorf("%s %s high: %w", bar.Symbol, dt, err)
	}
	bar.Low, err = parseFloat(field(ci.low))
	if err != nil {
		return Bar{}, fmt.Errorf("%s %s low: %w", bar.Symbol, dt, err)
	}
	bar.Close, err = parseFloat(field(ci.close))
	if err != nil {
		return Bar{}, fmt.Errorf("%s %s close: %w", bar.Symbol, dt, err)
	}
	if v := field(ci.volume); v != "" {
		bar.Volume, _ = parseFloat(v)
	}
	if v := field(ci.vol20); v != "" {
		if f, err := parseFloat(v); err == nil {
			bar.Vol20 = f
		}
	}
	if v := field(ci.regime); v != "" {
		if f, err := parseFloat(v); err == nil {
			bar.RegimeDist = f
			bar.HasRegime = true
		}
	}
	if v := field(ci.score); v != "" {
		f, err := parseFloat(v)
		if err != nil {
			return Bar{}, fmt.Errorf("%s %s score: %w", bar.Symbol, dt, err)
		}
		bar.Score = f
		bar.HasScore = true
	}
	if v := field(ci.split); v != "" {
		bar.IsTest = strings.EqualFold(v, "test")
	}
	if err := bar.Validate(); err != nil {
		return Bar{}, err
	}
	return bar, nil
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("数值解析失败 %q", s)
	}
	return f, nil
}
