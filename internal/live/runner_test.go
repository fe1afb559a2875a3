package live

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quanttrade/internal/checkpoint"
	"quanttrade/internal/engine"
	"quanttrade/internal/market"
)

type captureNotifier struct {
	dates []market.Date
}

func (c *captureNotifier) NotifyDay(date market.Date, _ []engine.PendingOrder, _ engine.EquitySnapshot) {
	c.dates = append(c.dates, date)
}

func bar(sym, date string, px, score float64) market.Bar {
	return market.Bar{
		Symbol: sym, Date: market.Date(date),
		Open: px, High: px, Low: px, Close: px,
		Score: score, HasScore: true,
	}
}

func policy() engine.Policy {
	p := engine.DefaultPolicy()
	p.MaxPositions = 1
	p.CommissionRate = 0
	p.SlippageBuy = 0
	p.SlippageSell = 0
	return p
}

func newRunner(t *testing.T, bars *[]market.Bar, notifier Notifier) (*Runner, *checkpoint.Store) {
	t.Helper()
	store, err := checkpoint.NewStore(filepath.Join(t.TempDir(), "ckpt.json"))
	require.NoError(t, err)
	load := func(context.Context) (*market.Dataset, error) {
		return market.BuildDataset(*bars), nil
	}
	r, err := NewRunner(policy(), load, store, notifier, nil)
	require.NoError(t, err)
	return r, store
}

func TestProcessNewFromScratchAndIncremental(t *testing.T) {
	bars := []market.Bar{
		bar("AAA", "2024-01-02", 100, 0.9),
		bar("AAA", "2024-01-03", 101, 0.9),
	}
	notifier := &captureNotifier{}
	r, store := newRunner(t, &bars, notifier)

	n, err := r.ProcessNew(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []market.Date{"2024-01-02", "2024-01-03"}, notifier.dates)

	ckpt, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, ckpt)
	assert.Equal(t, market.Date("2024-01-03"), ckpt.LastProcessedDate)
	require.Len(t, ckpt.Positions, 1, "d1 的买单应已在 d2 成交")
	assert.Equal(t, "AAA", ckpt.Positions[0].Symbol)

	// 数据没更新时再跑一轮: 什么都不做。
	n, err = r.ProcessNew(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	// 流水线追加一天后只处理新的那天。
	bars = append(bars, bar("AAA", "2024-01-04", 102, 0.9))
	notifier.dates = nil
	n, err = r.ProcessNew(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []market.Date{"2024-01-04"}, notifier.dates)

	ckpt, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, market.Date("2024-01-04"), ckpt.LastProcessedDate)
}

func TestResumeMatchesContinuousRun(t *testing.T) {
	all := []market.Bar{
		bar("AAA", "2024-01-02", 100, 0.9),
		bar("AAA", "2024-01-03", 103, 0.9),
		bar("AAA", "2024-01-04", 101, 0.4),
		bar("BBB", "2024-01-04", 50, 0.9),
		bar("AAA", "2024-01-05", 99, 0.4),
		bar("BBB", "2024-01-05", 52, 0.9),
	}

	// 基准: 引擎一口气跑完。
	baseRec := &engine.MemoryRecorder{}
	eng, err := engine.New(policy(), market.BuildDataset(all), baseRec)
	require.NoError(t, err)
	require.NoError(t, eng.Run(context.Background()))

	// 实盘: 先只喂前两天, 再补全, 两轮处理。
	bars := all[:2]
	r, _ := newRunner(t, &bars, &captureNotifier{})
	_, err = r.ProcessNew(context.Background())
	require.NoError(t, err)

	bars = all
	_, err = r.ProcessNew(context.Background())
	require.NoError(t, err)

	// 两条路径的期末状态逐字段一致。
	finalBase := eng.ExportState()
	ckptStore, err := checkpoint.NewStore(r.store.Path())
	require.NoError(t, err)
	ckpt, err := ckptStore.Load()
	require.NoError(t, err)
	assert.Equal(t, finalBase.LastProcessedDate, ckpt.LastProcessedDate)
	assert.InDelta(t, finalBase.Ledger.Cash, ckpt.Cash, 1e-9)
	assert.Equal(t, finalBase.Ledger.Positions, ckpt.Positions)
}

func TestRunnerRequiresLoaderAndStore(t *testing.T) {
	store, err := checkpoint.NewStore(filepath.Join(t.TempDir(), "c.json"))
	require.NoError(t, err)
	_, err = NewRunner(policy(), nil, store, nil, nil)
	assert.Error(t, err)

	load := func(context.Context) (*market.Dataset, error) { return market.BuildDataset(nil), nil }
	_, err = NewRunner(policy(), load, nil, nil, nil)
	assert.Error(t, err)
}
