package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"quanttrade/internal/engine"
)

// Load 读取 yaml 配置。默认值预注册在 viper 里，按键是否出现决定
// 是否生效：yaml 里显式写 0（如零佣金）是合法配置，不会被默认值覆盖。
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败 (%s): %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, decodeOptions); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回不读任何文件的默认配置。
func Default() *Config {
	var cfg Config
	_ = newViper().Unmarshal(&cfg, decodeOptions)
	return &cfg
}

func decodeOptions(dc *mapstructure.DecoderConfig) {
	dc.TagName = "toml"
	dc.WeaklyTypedInput = true
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("app.env", "dev")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("data.index_symbol", "XU100")

	def := engine.DefaultPolicy()
	v.SetDefault("strategy.max_positions", def.MaxPositions)
	v.SetDefault("strategy.stop_loss_pct", def.StopLossPct)
	v.SetDefault("strategy.take_profit_pct", def.TakeProfitPct)
	v.SetDefault("strategy.horizon_days", def.HorizonDays)
	v.SetDefault("strategy.commission_rate", def.CommissionRate)
	v.SetDefault("strategy.slippage_buy", def.SlippageBuy)
	v.SetDefault("strategy.slippage_sell", def.SlippageSell)
	v.SetDefault("strategy.entry_threshold", def.RotationEntryThreshold)
	v.SetDefault("strategy.exit_threshold", def.RotationExitThreshold)
	v.SetDefault("strategy.swap_min_gap", def.RotationMinGap)
	v.SetDefault("strategy.swap_limit", def.SwapLimit)
	v.SetDefault("strategy.top_k", def.TopK)
	v.SetDefault("strategy.regime_hard_bear", def.RegimeHardBear)
	v.SetDefault("strategy.regime_scale", def.RegimeScale)
	v.SetDefault("strategy.initial_capital", def.InitialCapital)
	v.SetDefault("strategy.allocation", string(def.Allocation))
	v.SetDefault("strategy.max_weight", def.MaxWeight)
	v.SetDefault("strategy.max_defer_days", def.MaxDeferDays)

	v.SetDefault("live.checkpoint_path", "data/portfolio_checkpoint.json")
	v.SetDefault("live.debounce_ms", 500)
	v.SetDefault("report.output_dir", "output")
	return v
}

func validate(c *Config) error {
	if c.Data.CSVPath == "" && c.Data.DBPath == "" {
		return fmt.Errorf("data.csv_path 与 data.db_path 至少要配一个")
	}
	switch strings.ToLower(c.Strategy.Allocation) {
	case string(engine.AllocEqual), string(engine.AllocInverseVol):
	default:
		return fmt.Errorf("strategy.allocation 只能是 equal 或 inverse_vol: %q", c.Strategy.Allocation)
	}
	if c.Data.StartDate != "" && c.Data.EndDate != "" && c.Data.StartDate > c.Data.EndDate {
		return fmt.Errorf("data.start_date %s 晚于 end_date %s", c.Data.StartDate, c.Data.EndDate)
	}
	return nil
}
