package engine

import (
	"context"
	"fmt"

	"quanttrade/internal/logger"
	"quanttrade/internal/market"
)

// Engine 是单线程的逐日折叠器：给定行情数据和策略参数，
// 从同一起点出发两次运行产出完全相同的成交与权益序列。
// 并发属于数据加载和报表层，不属于这里。
type Engine struct {
	policy   Policy
	dataset  *market.Dataset
	ledger   *Ledger
	recorder Recorder

	prevEquity   float64
	highWater    float64
	lastSnapshot EquitySnapshot
	lastDate     market.Date
}

func New(policy Policy, ds *market.Dataset, rec Recorder) (*Engine, error) {
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}
	if ds == nil || ds.Len() == 0 {
		return nil, ErrEmptyDates
	}
	if rec == nil {
		rec = &MemoryRecorder{}
	}
	return &Engine{
		policy:     policy,
		dataset:    ds,
		ledger:     NewLedger(policy.InitialCapital),
		recorder:   rec,
		prevEquity: policy.InitialCapital,
		highWater:  policy.InitialCapital,
	}, nil
}

func validatePolicy(p Policy) error {
	if p.MaxPositions <= 0 {
		return fmt.Errorf("max_positions 必须为正: %d", p.MaxPositions)
	}
	if p.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital 必须为正: %.2f", p.InitialCapital)
	}
	if p.StopLossPct >= 0 {
		return fmt.Errorf("stop_loss_pct 必须为负: %.4f", p.StopLossPct)
	}
	if p.HorizonDays <= 0 {
		return fmt.Errorf("horizon_days 必须为正: %d", p.HorizonDays)
	}
	if p.CommissionRate < 0 || p.SlippageBuy < 0 || p.SlippageSell < 0 {
		return fmt.Errorf("摩擦成本参数不能为负")
	}
	if p.RotationMinGap < p.RoundTripCost() {
		// 不拦截，只提醒：分差门槛低于来回成本时轮换会亏摩擦。
		logger.Warnf("轮换最小分差 %.4f 低于来回成本 %.4f, 换仓可能得不偿失",
			p.RotationMinGap, p.RoundTripCost())
	}
	return nil
}

// StepDay 处理单个交易日的完整生命周期，顺序固定：
// 结算挂单 → 止损扫描 → 退出决策 → 进场决策 → 权益快照 → 不变量校验。
// 决策只看当日及更早的数据，成交全部落在之后的交易日。
func (e *Engine) StepDay(dt market.Date) error {
	day, ok := e.dataset.Day(dt)
	if !ok {
		return fmt.Errorf("%s: %w", dt, ErrMissingBar)
	}
	next := e.dataset.NextDate(dt)

	e.settleOrders(day)
	e.stopLossPass(day)
	e.scheduleExits(day, next)
	e.scheduleEntries(day, next)
	e.recordEquity(day)
	e.lastDate = dt

	if err := e.ledger.CheckInvariants(e.policy.MaxPositions); err != nil {
		return fmt.Errorf("[%s] 账本不变量被破坏: %w", dt, err)
	}
	return nil
}

// Run 从头到尾折叠整个数据集。ctx 取消时在日界停下并返回。
func (e *Engine) Run(ctx context.Context) error {
	for _, dt := range e.dataset.Dates() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := e.StepDay(dt); err != nil {
			return err
		}
	}
	logger.Infof("模拟完成: %d 个交易日, 期末权益 %.2f, 现金 %.2f, 持仓 %d",
		e.dataset.Len(), e.lastSnapshot.Equity, e.ledger.Cash(), e.ledger.PositionCount())
	return nil
}

// RunFrom 只处理严格晚于 after 的交易日，实盘续跑用。
func (e *Engine) RunFrom(ctx context.Context, after market.Date) error {
	for _, dt := range e.dataset.DatesAfter(after) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := e.StepDay(dt); err != nil {
			return err
		}
	}
	return nil
}

// Ledger 暴露账本只读访问（检查点、报表）。
func (e *Engine) Ledger() *Ledger { return e.ledger }

// Policy 返回运行参数副本。
func (e *Engine) Policy() Policy { return e.policy }

// LastDate 返回最近处理完的交易日。
func (e *Engine) LastDate() market.Date { return e.lastDate }

// State 导出可序列化的引擎状态，检查点用。
type State struct {
	LastProcessedDate market.Date    `json:"last_processed_date"`
	Ledger            LedgerSnapshot `json:"ledger"`
	PrevEquity        float64        `json:"prev_equity"`
	HighWater         float64        `json:"high_water"`
}

func (e *Engine) ExportState() State {
	return State{
		LastProcessedDate: e.lastDate,
		Ledger:            e.ledger.Snapshot(),
		PrevEquity:        e.prevEquity,
		HighWater:         e.highWater,
	}
}

// RestoreState 用检查点状态覆盖引擎当前状态。
func (e *Engine) RestoreState(st State) {
	e.ledger = RestoreLedger(st.Ledger)
	e.prevEquity = st.PrevEquity
	e.highWater = st.HighWater
	e.lastDate = st.LastProcessedDate
}
