package engine

import (
	"fmt"
	"sort"

	"quanttrade/internal/market"
)

// Ledger 是组合的权威状态：现金、持仓、挂单。
// 所有变更都经过它的方法，保证不变量在每一步之后成立。
type Ledger struct {
	cash      float64
	positions map[string]*Position
	orders    []PendingOrder
}

func NewLedger(initialCash float64) *Ledger {
	return &Ledger{
		cash:      initialCash,
		positions: make(map[string]*Position),
	}
}

func (l *Ledger) Cash() float64 { return l.cash }

func (l *Ledger) Credit(amount float64) { l.cash += amount }

func (l *Ledger) Debit(amount float64) error {
	if amount > l.cash+cashEpsilon {
		return fmt.Errorf("%w: 需要 %.2f, 仅有 %.2f", ErrInsufficientCash, amount, l.cash)
	}
	l.cash -= amount
	return nil
}

const cashEpsilon = 1e-9

// Position 返回持仓指针；调用方通过 Ledger 的方法改状态。
func (l *Ledger) Position(symbol string) (*Position, bool) {
	p, ok := l.positions[symbol]
	return p, ok
}

func (l *Ledger) HasPosition(symbol string) bool {
	_, ok := l.positions[symbol]
	return ok
}

// OpenPosition 登记新持仓。同一符号最多一笔。
func (l *Ledger) OpenPosition(p *Position) error {
	if _, ok := l.positions[p.Symbol]; ok {
		return fmt.Errorf("%s 已有持仓", p.Symbol)
	}
	l.positions[p.Symbol] = p
	return nil
}

// ClosePosition 摘除持仓并返回它。
func (l *Ledger) ClosePosition(symbol string) (*Position, bool) {
	p, ok := l.positions[symbol]
	if ok {
		delete(l.positions, symbol)
	}
	return p, ok
}

// Symbols 返回全部持仓符号，升序。遍历持仓一律走这里，
// 绝不直接 range map——迭代顺序必须跨运行稳定。
func (l *Ledger) Symbols() []string {
	syms := make([]string, 0, len(l.positions))
	for s := range l.positions {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	return syms
}

func (l *Ledger) PositionCount() int { return len(l.positions) }

// OpenCount 只数 state==Open 的持仓（已标记待平的不占新仓额度口径）。
func (l *Ledger) OpenCount() int {
	n := 0
	for _, p := range l.positions {
		if p.State == PositionOpen {
			n++
		}
	}
	return n
}

// PushOrder 追加挂单。
func (l *Ledger) PushOrder(o PendingOrder) { l.orders = append(l.orders, o) }

// Orders 返回挂单只读视图。
func (l *Ledger) Orders() []PendingOrder { return l.orders }

// TakeDue 摘出 TargetDate ≤ today 的挂单，剩余保留。
// 返回顺序：先 SELL 后 BUY（平仓先释放现金和仓位额度），
// 同侧内按 (TargetDate, Symbol) 升序。
func (l *Ledger) TakeDue(today market.Date) []PendingOrder {
	var due, rest []PendingOrder
	for _, o := range l.orders {
		if !o.TargetDate.After(today) {
			due = append(due, o)
		} else {
			rest = append(rest, o)
		}
	}
	l.orders = rest
	sort.SliceStable(due, func(i, j int) bool {
		if due[i].Side != due[j].Side {
			return due[i].Side == OrderSell
		}
		if due[i].TargetDate != due[j].TargetDate {
			return due[i].TargetDate < due[j].TargetDate
		}
		return due[i].Symbol < due[j].Symbol
	})
	return due
}

// PendingBuyCount 统计未成交的 BUY 单数量，用于额度占用计算。
func (l *Ledger) PendingBuyCount() int {
	n := 0
	for _, o := range l.orders {
		if o.Side == OrderBuy {
			n++
		}
	}
	return n
}

// PendingBuySymbols 返回有未成交 BUY 单的符号集合。
func (l *Ledger) PendingBuySymbols() map[string]bool {
	out := make(map[string]bool)
	for _, o := range l.orders {
		if o.Side == OrderBuy {
			out[o.Symbol] = true
		}
	}
	return out
}

// CheckInvariants 在每个交易日末尾校验账本不变量，
// 违反说明引擎有 bug，立即终止比带着坏状态继续跑要好。
func (l *Ledger) CheckInvariants(maxPositions int) error {
	if l.cash < -cashEpsilon {
		return fmt.Errorf("现金为负: %.6f", l.cash)
	}
	if len(l.positions) > maxPositions {
		return fmt.Errorf("持仓数 %d 超过上限 %d", len(l.positions), maxPositions)
	}
	for sym, p := range l.positions {
		if p.Symbol != sym {
			return fmt.Errorf("持仓键 %s 与符号 %s 不一致", sym, p.Symbol)
		}
		if p.Shares <= 0 {
			return fmt.Errorf("%s 股数非正: %d", sym, p.Shares)
		}
	}
	return nil
}

// Snapshot 导出账本的可序列化快照，检查点用。
type LedgerSnapshot struct {
	Cash      float64        `json:"cash"`
	Positions []Position     `json:"positions"`
	Orders    []PendingOrder `json:"pending_orders"`
}

func (l *Ledger) Snapshot() LedgerSnapshot {
	snap := LedgerSnapshot{Cash: l.cash}
	for _, sym := range l.Symbols() {
		snap.Positions = append(snap.Positions, *l.positions[sym])
	}
	snap.Orders = append(snap.Orders, l.orders...)
	return snap
}

// RestoreLedger 从快照重建账本。
func RestoreLedger(snap LedgerSnapshot) *Ledger {
	l := NewLedger(snap.Cash)
	for i := range snap.Positions {
		p := snap.Positions[i]
		l.positions[p.Symbol] = &p
	}
	l.orders = append(l.orders, snap.Orders...)
	return l
}
