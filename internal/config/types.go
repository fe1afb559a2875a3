package config

import "quanttrade/internal/engine"

// Config 是 quanttrade 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Data     DataConfig     `toml:"data"`
	Strategy StrategyConfig `toml:"strategy"`
	Live     LiveConfig     `toml:"live"`
	Report   ReportConfig   `toml:"report"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
}

// DataConfig 指定行情/信号数据来源。CSV 与 SQLite 二选一，
// 都给时以 SQLite 为准（流水线落库后 CSV 只是中间产物）。
type DataConfig struct {
	CSVPath     string `toml:"csv_path"`
	DBPath      string `toml:"db_path"`
	IndexSymbol string `toml:"index_symbol"`
	TestOnly    bool   `toml:"test_only"`
	StartDate   string `toml:"start_date"`
	EndDate     string `toml:"end_date"`
}

type StrategyConfig struct {
	MaxPositions   int     `toml:"max_positions"`
	StopLossPct    float64 `toml:"stop_loss_pct"`
	TakeProfitPct  float64 `toml:"take_profit_pct"`
	HorizonDays    int     `toml:"horizon_days"`
	CommissionRate float64 `toml:"commission_rate"`
	SlippageBuy    float64 `toml:"slippage_buy"`
	SlippageSell   float64 `toml:"slippage_sell"`

	EntryThreshold float64 `toml:"entry_threshold"`
	ExitThreshold  float64 `toml:"exit_threshold"`
	SwapMinGap     float64 `toml:"swap_min_gap"`
	SwapLimit      int     `toml:"swap_limit"`
	TopK           int     `toml:"top_k"`

	RegimeHardBear float64 `toml:"regime_hard_bear"`
	RegimeScale    float64 `toml:"regime_scale"`

	InitialCapital float64 `toml:"initial_capital"`
	Allocation     string  `toml:"allocation"` // equal | inverse_vol
	MaxWeight      float64 `toml:"max_weight"`
	MaxDeferDays   int     `toml:"max_defer_days"`
}

type LiveConfig struct {
	CheckpointPath string `toml:"checkpoint_path"`
	Watch          bool   `toml:"watch"`
	DebounceMS     int    `toml:"debounce_ms"`
}

type ReportConfig struct {
	OutputDir string `toml:"output_dir"`
	DBPath    string `toml:"db_path"`
	Chart     bool   `toml:"chart"`
}

// Policy 把策略配置翻译成引擎参数。
func (s StrategyConfig) Policy() engine.Policy {
	alloc := engine.AllocEqual
	if s.Allocation == string(engine.AllocInverseVol) {
		alloc = engine.AllocInverseVol
	}
	return engine.Policy{
		MaxPositions:           s.MaxPositions,
		StopLossPct:            s.StopLossPct,
		TakeProfitPct:          s.TakeProfitPct,
		HorizonDays:            s.HorizonDays,
		CommissionRate:         s.CommissionRate,
		SlippageBuy:            s.SlippageBuy,
		SlippageSell:           s.SlippageSell,
		RotationEntryThreshold: s.EntryThreshold,
		RotationExitThreshold:  s.ExitThreshold,
		RotationMinGap:         s.SwapMinGap,
		SwapLimit:              s.SwapLimit,
		RegimeHardBear:         s.RegimeHardBear,
		RegimeSoftBear:         0,
		RegimeScale:            s.RegimeScale,
		TopK:                   s.TopK,
		InitialCapital:         s.InitialCapital,
		Allocation:             alloc,
		MaxWeight:              s.MaxWeight,
		MaxDeferDays:           s.MaxDeferDays,
	}
}
