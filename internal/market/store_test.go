package market

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "bars.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func storeBar(sym, date string, close float64) Bar {
	return Bar{Symbol: sym, Date: Date(date), Open: close, High: close, Low: close, Close: close}
}

func TestInsertAndRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	scored := storeBar("THYAO", "2024-01-03", 252)
	scored.Score, scored.HasScore = 0.8, true
	scored.RegimeDist, scored.HasRegime = -0.01, true

	n, err := s.InsertBars(ctx, []Bar{
		storeBar("THYAO", "2024-01-02", 250),
		scored,
		storeBar("ASELS", "2024-01-03", 48),
		storeBar("THYAO", "2024-01-04", 255),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	bars, err := s.RangeBars(ctx, "2024-01-03", "2024-01-03")
	require.NoError(t, err)
	require.Len(t, bars, 2)
	// (date, symbol) 升序。
	assert.Equal(t, "ASELS", bars[0].Symbol)
	assert.Equal(t, "THYAO", bars[1].Symbol)
	assert.True(t, bars[1].HasScore)
	assert.InDelta(t, 0.8, bars[1].Score, 1e-9)
	assert.True(t, bars[1].HasRegime)
	// 没写 score 的行读回来也没有。
	assert.False(t, bars[0].HasScore)

	maxDate, err := s.MaxDate(ctx)
	require.NoError(t, err)
	assert.Equal(t, Date("2024-01-04"), maxDate)
}

func TestInsertUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertBars(ctx, []Bar{storeBar("THYAO", "2024-01-02", 250)})
	require.NoError(t, err)
	_, err = s.InsertBars(ctx, []Bar{storeBar("THYAO", "2024-01-02", 260)})
	require.NoError(t, err)

	bars, err := s.RangeBars(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, bars, 1, "同 symbol+date 重写应覆盖")
	assert.InDelta(t, 260.0, bars[0].Close, 1e-9)
}

func TestLoadDataset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.InsertBars(ctx, []Bar{
		storeBar("THYAO", "2024-01-02", 250),
		storeBar("THYAO", "2024-01-03", 252),
	})
	require.NoError(t, err)

	ds, err := s.LoadDataset(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())

	_, err = s.LoadDataset(ctx, "2025-01-01", "2025-12-31")
	assert.Error(t, err, "空区间应报错而不是返回空数据集")
}

func TestEmptyStoreMaxDate(t *testing.T) {
	s := newTestStore(t)
	d, err := s.MaxDate(context.Background())
	require.NoError(t, err)
	assert.True(t, d.IsZero())
}
