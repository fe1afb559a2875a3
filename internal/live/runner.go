// Package live 驱动实盘模式：每天流水线更新完行情/信号后，
// 从检查点续跑新增的交易日，并把次日要执行的挂单播报出去。
package live

import (
	"context"
	"fmt"
	"strings"

	"quanttrade/internal/checkpoint"
	"quanttrade/internal/engine"
	"quanttrade/internal/logger"
	"quanttrade/internal/market"
)

// DatasetLoader 重新加载最新的行情/信号表。
// 每轮处理都重读一次，流水线追加的新日期才能被看到。
type DatasetLoader func(ctx context.Context) (*market.Dataset, error)

// Notifier 接收每日处理结果的播报。
type Notifier interface {
	NotifyDay(date market.Date, orders []engine.PendingOrder, snap engine.EquitySnapshot)
}

// LogNotifier 把播报写进日志。没接真通知渠道时的默认实现。
type LogNotifier struct{}

func (LogNotifier) NotifyDay(date market.Date, orders []engine.PendingOrder, snap engine.EquitySnapshot) {
	if len(orders) == 0 {
		logger.Infof("[%s] 次日无挂单, 权益 %.2f (现金 %.2f, 持仓 %d)",
			date, snap.Equity, snap.Cash, snap.NPositions)
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] 次日执行清单 (%d 张):\n", date, len(orders))
	for _, o := range orders {
		if o.Side == engine.OrderBuy {
			fmt.Fprintf(&b, "  %s %s 资金 %.2f (%s)\n", o.Side, o.Symbol, o.Capital, o.Reason)
		} else {
			fmt.Fprintf(&b, "  %s %s (%s)\n", o.Side, o.Symbol, o.Reason)
		}
	}
	fmt.Fprintf(&b, "权益 %.2f (现金 %.2f, 持仓 %d)", snap.Equity, snap.Cash, snap.NPositions)
	logger.InfoBlock(b.String())
}

// Runner 串起 检查点 → 引擎 → 播报 的实盘回路。
type Runner struct {
	policy   engine.Policy
	load     DatasetLoader
	store    *checkpoint.Store
	notifier Notifier
	recorder engine.Recorder
}

func NewRunner(policy engine.Policy, load DatasetLoader, store *checkpoint.Store, notifier Notifier, rec engine.Recorder) (*Runner, error) {
	if load == nil {
		return nil, fmt.Errorf("dataset loader 不能为空")
	}
	if store == nil {
		return nil, fmt.Errorf("检查点 store 不能为空")
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Runner{policy: policy, load: load, store: store, notifier: notifier, recorder: rec}, nil
}

// ProcessNew 处理检查点之后新增的全部交易日，每处理完一天落一次盘。
// 进程在任意一天之后被杀，重启后从那一天继续，不重复、不跳日。
// 返回本轮处理的交易日数。
func (r *Runner) ProcessNew(ctx context.Context) (int, error) {
	ds, err := r.load(ctx)
	if err != nil {
		return 0, fmt.Errorf("加载行情数据失败: %w", err)
	}
	eng, err := engine.New(r.policy, ds, r.recorder)
	if err != nil {
		return 0, err
	}

	ckpt, err := r.store.Load()
	if err != nil {
		return 0, err
	}
	var after market.Date
	if ckpt != nil {
		eng.RestoreState(ckpt.State())
		after = ckpt.LastProcessedDate
		logger.Infof("从检查点恢复: 截至 %s, 现金 %.2f, 持仓 %d, 挂单 %d",
			after, ckpt.Cash, len(ckpt.Positions), len(ckpt.PendingOrders))
	} else {
		logger.Infof("没有检查点, 以初始资金 %.2f 全新起步", r.policy.InitialCapital)
	}

	todo := ds.DatesAfter(after)
	if len(todo) == 0 {
		logger.Infof("数据没有新交易日 (检查点截至 %s)", after)
		return 0, nil
	}

	processed := 0
	for _, dt := range todo {
		select {
		case <-ctx.Done():
			return processed, ctx.Err()
		default:
		}
		if err := eng.StepDay(dt); err != nil {
			return processed, err
		}
		if err := r.store.Save(checkpoint.FromState(eng.ExportState())); err != nil {
			return processed, fmt.Errorf("保存检查点失败: %w", err)
		}
		processed++

		snap, _ := eng.LastSnapshot()
		r.notifier.NotifyDay(dt, eng.Ledger().Orders(), snap)
	}
	logger.Infof("本轮处理 %d 个新交易日, 检查点截至 %s", processed, eng.LastDate())
	return processed, nil
}
