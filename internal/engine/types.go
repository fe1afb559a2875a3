package engine

import (
	"errors"

	"quanttrade/internal/market"
)

// PositionState 显式标注持仓在生命周期状态机中的位置：
// Open → PendingExit(reason) → 结算平仓，或 Open → 当日止损直接平仓。
type PositionState int

const (
	PositionOpen PositionState = iota
	PositionPendingExit
)

func (s PositionState) String() string {
	switch s {
	case PositionOpen:
		return "open"
	case PositionPendingExit:
		return "pending_exit"
	default:
		return "unknown"
	}
}

// ExitReason 是成交记录的平仓原因标签。
type ExitReason string

const (
	ReasonEntry         ExitReason = "ENTRY"
	ReasonRotationEntry ExitReason = "SWAP_ENTRY"
	ReasonStopLoss      ExitReason = "STOP_LOSS"
	ReasonTimeExit      ExitReason = "TIME_EXIT"
	ReasonModelTP       ExitReason = "MODEL_TP"
	ReasonRotation      ExitReason = "SCORE_ROTATION"
)

// Position 由 Ledger 独占持有；引擎外部只读快照。
type Position struct {
	Symbol     string        `json:"symbol"`
	EntryPrice float64       `json:"entry_price"`
	Shares     int64         `json:"shares"`
	EntryDate  market.Date   `json:"entry_date"`
	DaysHeld   int           `json:"days_held"`
	LastPrice  float64       `json:"last_price"`
	State      PositionState `json:"state"`
	ExitReason ExitReason    `json:"exit_reason,omitempty"`
}

// OrderSide 区分两类挂单。
type OrderSide string

const (
	OrderBuy  OrderSide = "BUY"
	OrderSell OrderSide = "SELL"
)

// PendingOrder 是 T+1 执行的挂单。每张单要么成交要么顺延，
// 顺延超过 MaxDeferDays 才会被取消（带日志）。
type PendingOrder struct {
	Side       OrderSide   `json:"side"`
	Symbol     string      `json:"symbol"`
	TargetDate market.Date `json:"target_date"`
	Capital    float64     `json:"capital,omitempty"` // 仅 BUY 使用
	Reason     ExitReason  `json:"reason"`
	Deferrals  int         `json:"deferrals,omitempty"`
}

// TradeRecord 是只追加的成交台账行。每次开仓写一条 ENTRY 信息行，
// 每次平仓恰好写一条带收益的记录。
type TradeRecord struct {
	Symbol     string      `json:"symbol"`
	EntryDate  market.Date `json:"entry_date"`
	ExitDate   market.Date `json:"exit_date,omitempty"`
	EntryPrice float64     `json:"entry_price"`
	ExitPrice  float64     `json:"exit_price,omitempty"`
	Shares     int64       `json:"shares"`
	ReturnPct  float64     `json:"return_pct"`
	Reason     ExitReason  `json:"reason"`
	DaysHeld   int         `json:"days_held"`
}

// IsClose 判断是否为平仓记录（ENTRY/SWAP_ENTRY 为开仓信息行）。
func (t TradeRecord) IsClose() bool {
	return t.Reason != ReasonEntry && t.Reason != ReasonRotationEntry
}

// EquitySnapshot 是每个模拟日的权益快照。
type EquitySnapshot struct {
	Date           market.Date `json:"date"`
	Equity         float64     `json:"equity"`
	Cash           float64     `json:"cash"`
	PortfolioValue float64     `json:"portfolio_value"`
	DailyReturn    float64     `json:"daily_return"`
	NPositions     int         `json:"n_positions"`
	Drawdown       float64     `json:"drawdown"`
}

// Recorder 消费引擎的输出流。实现方不得反向影响决策。
type Recorder interface {
	RecordTrade(TradeRecord)
	RecordEquity(EquitySnapshot)
}

// MemoryRecorder 把输出留在内存里，回测汇总与测试用。
type MemoryRecorder struct {
	Trades []TradeRecord
	Equity []EquitySnapshot
}

func (m *MemoryRecorder) RecordTrade(t TradeRecord) { m.Trades = append(m.Trades, t) }

func (m *MemoryRecorder) RecordEquity(e EquitySnapshot) { m.Equity = append(m.Equity, e) }

// ClosedTrades 只返回平仓记录。
func (m *MemoryRecorder) ClosedTrades() []TradeRecord {
	var out []TradeRecord
	for _, t := range m.Trades {
		if t.IsClose() {
			out = append(out, t)
		}
	}
	return out
}

// 错误分类（§错误处理）：全部可恢复，引擎内部用于路由 defer/skip/drop。
var (
	ErrEmptyDates       = errors.New("日期轴为空")
	ErrInsufficientCash = errors.New("现金不足")
	ErrMissingBar       = errors.New("当日无行情")
	ErrInvalidOrderSize = errors.New("计算股数为 0")
)

// AllocationPolicy 是资金分配策略开关：同一条代码路径，配置选择行为。
type AllocationPolicy string

const (
	AllocEqual      AllocationPolicy = "equal"
	AllocInverseVol AllocationPolicy = "inverse_vol"
)

// Policy 是一次运行的全部策略参数。变体是数据，不是新代码路径。
type Policy struct {
	MaxPositions   int
	StopLossPct    float64 // 负数，如 -0.05
	TakeProfitPct  float64
	HorizonDays    int
	CommissionRate float64
	SlippageBuy    float64
	SlippageSell   float64

	RotationEntryThreshold float64
	RotationExitThreshold  float64
	RotationMinGap         float64
	SwapLimit              int

	RegimeHardBear float64 // ≤ 此值当日不开新仓
	RegimeSoftBear float64 // < 此值按 RegimeScale 降权
	RegimeScale    float64
	TopK           int
	InitialCapital float64
	Allocation     AllocationPolicy
	MaxWeight      float64
	MaxDeferDays   int
}

// DefaultPolicy 的数值来自线上策略的既定参数。
func DefaultPolicy() Policy {
	return Policy{
		MaxPositions:           5,
		StopLossPct:            -0.05,
		TakeProfitPct:          0.10,
		HorizonDays:            20,
		CommissionRate:         0.002,
		SlippageBuy:            0.01,
		SlippageSell:           0.005,
		RotationEntryThreshold: 0.60,
		RotationExitThreshold:  0.45,
		RotationMinGap:         0.05,
		SwapLimit:              2,
		RegimeHardBear:         -0.02,
		RegimeSoftBear:         0,
		RegimeScale:            0.5,
		TopK:                   5,
		InitialCapital:         100_000,
		Allocation:             AllocEqual,
		MaxWeight:              0.20,
		MaxDeferDays:           5,
	}
}

// RoundTripCost 估算一次换仓来回的成本（两边滑点 + 两边佣金）。
// 轮换的最小分差必须高于它才值得付两次摩擦成本。
func (p Policy) RoundTripCost() float64 {
	return p.SlippageBuy + p.SlippageSell + 2*p.CommissionRate
}
