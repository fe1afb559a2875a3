package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBar(sym, date string) Bar {
	return Bar{Symbol: sym, Date: Date(date), Open: 10, High: 11, Low: 9, Close: 10.5}
}

func TestBarValidate(t *testing.T) {
	assert.NoError(t, validBar("THYAO", "2024-01-02").Validate())

	t.Run("non positive price", func(t *testing.T) {
		b := validBar("THYAO", "2024-01-02")
		b.Low = 0
		assert.Error(t, b.Validate())
	})
	t.Run("inverted ohlc", func(t *testing.T) {
		b := validBar("THYAO", "2024-01-02")
		b.Low, b.High = b.High, b.Low
		assert.Error(t, b.Validate())
	})
	t.Run("close outside range", func(t *testing.T) {
		b := validBar("THYAO", "2024-01-02")
		b.Close = 20
		assert.Error(t, b.Validate())
	})
	t.Run("empty symbol", func(t *testing.T) {
		b := validBar("", "2024-01-02")
		assert.Error(t, b.Validate())
	})
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-03-15")
	require.NoError(t, err)
	assert.Equal(t, Date("2024-03-15"), d)

	_, err = ParseDate("15/03/2024")
	assert.Error(t, err)
	_, err = ParseDate("2024-13-01")
	assert.Error(t, err)
}

func TestSymbolsByScoreOrdering(t *testing.T) {
	day := &Day{Date: "2024-01-02", Bars: map[string]Bar{
		"CCC": {Symbol: "CCC", Score: 0.7, HasScore: true},
		"AAA": {Symbol: "AAA", Score: 0.9, HasScore: true},
		"BBB": {Symbol: "BBB", Score: 0.9, HasScore: true},
		"DDD": {Symbol: "DDD"}, // 无分数, 不参与排序
	}}
	got := day.SymbolsByScore()
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, got, "分数降序, 同分按符号名升序")
}

func TestDatasetNavigation(t *testing.T) {
	ds := BuildDataset([]Bar{
		validBar("AAA", "2024-01-02"),
		validBar("AAA", "2024-01-03"),
		validBar("BBB", "2024-01-03"),
		validBar("AAA", "2024-01-05"),
	})
	assert.Equal(t, 3, ds.Len())
	assert.Equal(t, Date("2024-01-03"), ds.NextDate("2024-01-02"))
	assert.Equal(t, Date("2024-01-05"), ds.NextDate("2024-01-03"))
	assert.Equal(t, Date("2024-01-05"), ds.NextDate("2024-01-04"), "缺口日跳到下一个存在的交易日")
	assert.True(t, ds.NextDate("2024-01-05").IsZero())

	assert.Equal(t, []Date{"2024-01-03", "2024-01-05"}, ds.DatesAfter("2024-01-02"))
	assert.Empty(t, ds.DatesAfter("2024-01-05"))
	assert.Len(t, ds.DatesAfter(""), 3, "空日期表示从头处理")
}

func TestTestWindow(t *testing.T) {
	t.Run("untagged passes through", func(t *testing.T) {
		ds := BuildDataset([]Bar{validBar("AAA", "2024-01-02")})
		assert.Equal(t, ds, ds.TestWindow())
	})
	t.Run("tagged keeps only test rows", func(t *testing.T) {
		train := validBar("AAA", "2024-01-02")
		test := validBar("AAA", "2024-01-03")
		test.IsTest = true
		ds := BuildDataset([]Bar{train, test}).TestWindow()
		assert.Equal(t, 1, ds.Len())
		assert.Equal(t, []Date{"2024-01-03"}, ds.Dates())
	})
}

func TestDayRegimeSharedAcrossCrossSection(t *testing.T) {
	withRegime := validBar("XU100", "2024-01-02")
	withRegime.RegimeDist, withRegime.HasRegime = -0.015, true
	plain := validBar("THYAO", "2024-01-02")

	ds := BuildDataset([]Bar{plain, withRegime})
	day, ok := ds.Day("2024-01-02")
	require.True(t, ok)
	assert.True(t, day.HasRegime)
	assert.InDelta(t, -0.015, day.Regime, 1e-9)
}

func TestNormalizeSymbolTurkishFolding(t *testing.T) {
	assert.Equal(t, "İŞGYO", NormalizeSymbol("işgyo"))
	assert.Equal(t, "THYAO", NormalizeSymbol("  thyao "))
}
