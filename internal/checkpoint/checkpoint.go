// Package checkpoint 负责组合状态的落盘与恢复。
// 实盘每个交易日收盘处理完写一次，进程重启后从 last_processed_date 续跑。
package checkpoint

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"quanttrade/internal/engine"
	"quanttrade/internal/logger"
	"quanttrade/internal/market"
)

// Version 随检查点格式演进递增；不认识的版本拒绝加载。
const Version = 1

//go:embed schema.json
var schemaJSON string

var schema = jsonschema.MustCompileString("checkpoint/schema.json", schemaJSON)

// Checkpoint 是落盘的完整状态。字段齐全到足以让引擎
// 从任意交易日边界无损续跑。
type Checkpoint struct {
	Version           int                   `json:"version"`
	SavedAt           string                `json:"saved_at"`
	LastProcessedDate market.Date           `json:"last_processed_date"`
	Cash              float64               `json:"cash"`
	Positions         []engine.Position     `json:"positions"`
	PendingOrders     []engine.PendingOrder `json:"pending_orders"`
	PrevEquity        float64               `json:"prev_equity"`
	HighWater         float64               `json:"high_water"`
}

// FromState 把引擎导出状态包装成检查点。
func FromState(st engine.State) Checkpoint {
	return Checkpoint{
		Version:           Version,
		SavedAt:           time.Now().UTC().Format(time.RFC3339),
		LastProcessedDate: st.LastProcessedDate,
		Cash:              st.Ledger.Cash,
		Positions:         st.Ledger.Positions,
		PendingOrders:     st.Ledger.Orders,
		PrevEquity:        st.PrevEquity,
		HighWater:         st.HighWater,
	}
}

// State 还原为引擎状态。
func (c Checkpoint) State() engine.State {
	return engine.State{
		LastProcessedDate: c.LastProcessedDate,
		Ledger: engine.LedgerSnapshot{
			Cash:      c.Cash,
			Positions: c.Positions,
			Orders:    c.PendingOrders,
		},
		PrevEquity: c.PrevEquity,
		HighWater:  c.HighWater,
	}
}

// Store 管理单个检查点文件。
type Store struct {
	path string
}

func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("检查点路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &Store{path: path}, nil
}

func (s *Store) Path() string { return s.path }

// Save 原子写入：先写临时文件再 rename。写坏的进程崩溃
// 最多留下一个 .tmp 残骸，旧检查点永远不会损毁。
func (s *Store) Save(c Checkpoint) error {
	if c.Version == 0 {
		c.Version = Version
	}
	if c.SavedAt == "" {
		c.SavedAt = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化检查点失败: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("写临时检查点失败: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("替换检查点失败: %w", err)
	}
	logger.Debugf("检查点已保存: %s (截至 %s)", s.path, c.LastProcessedDate)
	return nil
}

// Load 读取并校验检查点。文件不存在返回 (nil, nil)——
// 首次启动没有检查点是正常状态，不是错误。
func (s *Store) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	c, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("检查点 %s 损坏: %w", s.path, err)
	}
	return c, nil
}

// Decode 解析并做 schema + 语义校验。
func Decode(data []byte) (*Checkpoint, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("JSON 解析失败: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("schema 校验失败: %w", err)
	}
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.Version != Version {
		return nil, fmt.Errorf("不支持的检查点版本 %d (当前 %d)", c.Version, Version)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Checkpoint) validate() error {
	if c.Cash < 0 {
		return fmt.Errorf("现金为负: %.6f", c.Cash)
	}
	seen := make(map[string]bool, len(c.Positions))
	for _, p := range c.Positions {
		if p.Symbol == "" || p.Shares <= 0 || p.EntryPrice <= 0 {
			return fmt.Errorf("非法持仓: %+v", p)
		}
		if seen[p.Symbol] {
			return fmt.Errorf("持仓符号重复: %s", p.Symbol)
		}
		seen[p.Symbol] = true
	}
	for _, o := range c.PendingOrders {
		if o.Symbol == "" || o.TargetDate.IsZero() {
			return fmt.Errorf("非法挂单: %+v", o)
		}
		if o.Side != engine.OrderBuy && o.Side != engine.OrderSell {
			return fmt.Errorf("非法挂单方向: %q", o.Side)
		}
	}
	return nil
}

// PeekLastDate 只提取 last_processed_date，不做完整解码。
// 启动时快速判断数据里有没有新交易日要处理。
func PeekLastDate(path string) (market.Date, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	v := gjson.GetBytes(data, "last_processed_date")
	if !v.Exists() {
		return "", fmt.Errorf("检查点 %s 缺少 last_processed_date", path)
	}
	d := strings.TrimSpace(v.String())
	if d == "" {
		return "", nil
	}
	return market.ParseDate(d)
}
