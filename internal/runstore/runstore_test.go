package runstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quanttrade/internal/engine"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	runID, err := s.BeginRun(ctx, "backtest", engine.DefaultPolicy(), "2024-01-02", "2024-06-28")
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	trades := []engine.TradeRecord{
		{Symbol: "THYAO", EntryDate: "2024-01-03", EntryPrice: 250, Shares: 40, Reason: engine.ReasonEntry},
		{Symbol: "THYAO", EntryDate: "2024-01-03", ExitDate: "2024-01-25", EntryPrice: 250, ExitPrice: 270,
			Shares: 40, ReturnPct: 0.08, Reason: engine.ReasonTimeExit, DaysHeld: 20},
	}
	require.NoError(t, s.SaveTrades(ctx, runID, trades))
	require.NoError(t, s.SaveEquity(ctx, runID, []engine.EquitySnapshot{
		{Date: "2024-01-02", Equity: 100_000, Cash: 100_000},
		{Date: "2024-01-03", Equity: 100_120, Cash: 90_000, PortfolioValue: 10_120, NPositions: 1},
	}))
	require.NoError(t, s.FinishRun(ctx, runID, 100_120, 2))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "backtest", runs[0].Mode)
	assert.InDelta(t, 100_120.0, runs[0].FinalEquity, 1e-9)
	assert.Equal(t, 2, runs[0].TotalTrades)
	assert.Contains(t, string(runs[0].PolicyJSON), "MaxPositions")

	got, err := s.TradesByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "TIME_EXIT", got[1].Reason)

	curve, err := s.EquityByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, curve, 2)
	assert.Equal(t, "2024-01-02", curve[0].Date)
	assert.InDelta(t, 10_120.0, curve[1].PortfolioValue, 1e-9)
}

func TestSaveEquityOverwritesSameDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	runID, err := s.BeginRun(ctx, "live", engine.DefaultPolicy(), "2024-01-02", "")
	require.NoError(t, err)

	require.NoError(t, s.SaveEquity(ctx, runID, []engine.EquitySnapshot{{Date: "2024-01-02", Equity: 100}}))
	require.NoError(t, s.SaveEquity(ctx, runID, []engine.EquitySnapshot{{Date: "2024-01-02", Equity: 200}}))

	curve, err := s.EquityByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, curve, 1, "同日重写应覆盖而不是追加")
	assert.InDelta(t, 200.0, curve[0].Equity, 1e-9)
}

func TestEmptyPathRejected(t *testing.T) {
	_, err := NewStore("  ")
	assert.Error(t, err)
}
