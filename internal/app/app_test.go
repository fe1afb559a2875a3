package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quanttrade/internal/config"
)

func TestNewAppRejectsUnknownMode(t *testing.T) {
	cfg := config.Default()
	_, err := NewApp(cfg, Mode("paper"))
	assert.Error(t, err)

	for _, m := range []Mode{ModeBacktest, ModeLive, ModeImport} {
		_, err := NewApp(cfg, m)
		assert.NoError(t, err, string(m))
	}
}

func TestLoadDatasetClipsDateRange(t *testing.T) {
	csv := `date,symbol,price_open,price_high,price_low,price_close,score
2024-01-02,THYAO,250,255,248,252,0.8
2024-01-03,THYAO,252,258,251,257,0.8
2024-01-04,THYAO,257,260,255,259,0.8
`
	path := filepath.Join(t.TempDir(), "signals.csv")
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	cfg := config.Default()
	cfg.Data.CSVPath = path
	cfg.Data.StartDate = "2024-01-03"
	cfg.Data.EndDate = "2024-01-03"

	a, err := NewApp(cfg, ModeBacktest)
	require.NoError(t, err)
	ds, err := a.loadDataset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Len())
	assert.Equal(t, "2024-01-03", string(ds.Dates()[0]))
}

func TestImportThenLoadFromStore(t *testing.T) {
	csv := `date,symbol,price_open,price_high,price_low,price_close,score
2024-01-02,THYAO,250,255,248,252,0.8
2024-01-03,THYAO,252,258,251,257,0.8
`
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "signals.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(csv), 0o644))

	cfg := config.Default()
	cfg.Data.CSVPath = csvPath
	cfg.Data.DBPath = filepath.Join(dir, "bars.db")

	imp, err := NewApp(cfg, ModeImport)
	require.NoError(t, err)
	require.NoError(t, imp.Run(context.Background()))

	// 落库后直接从 SQLite 读。
	cfg2 := config.Default()
	cfg2.Data.DBPath = cfg.Data.DBPath
	a, err := NewApp(cfg2, ModeBacktest)
	require.NoError(t, err)
	ds, err := a.loadDataset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())
}
