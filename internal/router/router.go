package router

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/senthilts9/smart-order-routing/internal/ledger"
	"github.com/senthilts9/smart-order-routing/internal/metrics"
	"github.com/senthilts9/smart-order-routing/internal/order"
	"github.com/senthilts9/smart-order-routing/internal/risk"
	"github.com/senthilts9/smart-order-routing/internal/scorer"
	"github.com/senthilts9/smart-order-routing/internal/venue"
)

// Config 控制编排器的重试与超时行为。
type Config struct {
	MaxRetries    int
	OrderDeadline time.Duration
	ChildTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.OrderDeadline <= 0 {
		c.OrderDeadline = 2 * time.Second
	}
	if c.ChildTimeout <= 0 {
		c.ChildTimeout = 500 * time.Millisecond
	}
	return c
}

// Router 为执行编排器：风控、打分、并发派发、部分成交与重试、
// 终态上报。每个订单的子订单集合由且仅由处理该订单的调用栈持有。
type Router struct {
	cfg      Config
	gate     *risk.Gate
	scorer   *scorer.Scorer
	registry *venue.Registry
	adapters map[string]venue.Adapter
	ledger   *ledger.Ledger
	ref      risk.ReferenceSource
	reporter metrics.Reporter
	logger   *zap.Logger

	mu     sync.Mutex
	active map[string]*activeOrder
}

type activeOrder struct {
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

// New 创建编排器。
func New(
	cfg Config,
	gate *risk.Gate,
	sc *scorer.Scorer,
	registry *venue.Registry,
	adapters []venue.Adapter,
	led *ledger.Ledger,
	ref risk.ReferenceSource,
	reporter metrics.Reporter,
	logger *zap.Logger,
) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reporter == nil {
		reporter = metrics.Nop{}
	}
	byVenue := make(map[string]venue.Adapter, len(adapters))
	for _, a := range adapters {
		byVenue[a.VenueID()] = a
	}
	return &Router{
		cfg:      cfg.withDefaults(),
		gate:     gate,
		scorer:   sc,
		registry: registry,
		adapters: byVenue,
		ledger:   led,
		ref:      ref,
		reporter: reporter,
		logger:   logger,
	}
}

// VenueProfiles 返回按 VenueID 排序的只读场所快照，供看板使用。
func (r *Router) VenueProfiles() []venue.Profile {
	return r.registry.Snapshot()
}

// CancelOrder 取消在途订单：停止后续派发，已上报的成交不会被丢弃。
func (r *Router) CancelOrder(orderID string) error {
	r.mu.Lock()
	entry, ok := r.active[orderID]
	r.mu.Unlock()
	if !ok {
		return ErrOrderNotFound
	}
	entry.cancelled.Store(true)
	if entry.cancel != nil {
		entry.cancel()
	}
	r.logger.Info("订单撤销请求已受理", zap.String("order_id", orderID))
	return nil
}

// SubmitOrder 执行一笔订单并返回唯一的终态回报。
// 同一 orderId 在途期间重复提交返回 ErrDuplicateOrder，不会产生第二次执行。
func (r *Router) SubmitOrder(ctx context.Context, o order.Order) (order.ExecutionReport, error) {
	if err := o.Validate(); err != nil {
		return order.ExecutionReport{}, err
	}
	if o.SubmittedAt.IsZero() {
		o.SubmittedAt = time.Now().UTC()
	}

	entry := &activeOrder{}
	r.mu.Lock()
	if r.active == nil {
		r.active = make(map[string]*activeOrder)
	}
	if _, exists := r.active[o.OrderID]; exists {
		r.mu.Unlock()
		r.reporter.IncCounter("orders.duplicate", 1, map[string]string{"symbol": o.Symbol})
		return order.ExecutionReport{}, ErrDuplicateOrder
	}
	r.active[o.OrderID] = entry
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.active, o.OrderID)
		r.mu.Unlock()
	}()

	started := time.Now()
	r.reporter.IncCounter("orders.submitted", 1, map[string]string{"symbol": o.Symbol})

	if err := r.gate.Check(o); err != nil {
		var rej *risk.Rejection
		reason := err.Error()
		if errors.As(err, &rej) {
			reason = fmt.Sprintf("%s: %s", rej.Reason, rej.Detail)
		}
		report := r.finalize(ctx, o, nil, order.StatusRejected, reason)
		r.reporter.IncCounter("orders.risk_rejected", 1, map[string]string{"symbol": o.Symbol})
		return report, err
	}

	orderCtx, cancel := context.WithTimeout(ctx, r.cfg.OrderDeadline)
	defer cancel()
	entry.cancel = cancel

	report, err := r.execute(orderCtx, entry, o)
	r.reporter.ObserveDuration("orders.execution_time", time.Since(started), map[string]string{
		"symbol": o.Symbol,
		"status": string(report.Status),
	})
	return report, err
}

// execute 驱动单个订单的状态机：ROUTING → DISPATCHED → 终态。
func (r *Router) execute(ctx context.Context, entry *activeOrder, o order.Order) (order.ExecutionReport, error) {
	var fills []order.Fill
	filledByVenue := make(map[string]int64)
	remaining := o.Quantity

	for attempt := 1; ; attempt++ {
		scored := o
		scored.Quantity = remaining

		decision, err := r.scorer.Decide(scored, r.eligibleProfiles(filledByVenue))
		if err != nil {
			if attempt == 1 {
				report := r.finalize(ctx, o, fills, order.StatusRejected, "没有可用场所")
				return report, err
			}
			// 重试途中场所耗尽：按已有成交收敛到终态。
			break
		}

		if ledgerErr := r.ledger.Append(ctx, ledger.EventRoutingDecision, o.OrderID, ledger.DecisionPayload{
			Decision: decision,
			Attempt:  attempt,
		}); ledgerErr != nil {
			report := r.finalize(ctx, o, fills, r.terminalStatus(entry, o, remaining, fills), "账本写入失败，停止派发")
			return report, ledgerErr
		}

		results, dispatchErr := r.dispatch(ctx, o, decision, attempt)
		for _, res := range results {
			if res.outcome.FilledQty <= 0 {
				continue
			}
			qty := res.outcome.FilledQty
			if qty > res.child.Quantity {
				qty = res.child.Quantity
			}
			fills = append(fills, order.Fill{
				ChildID:   res.child.ChildID,
				VenueID:   res.child.VenueID,
				FilledQty: qty,
				FillPrice: res.outcome.FillPrice,
				Fee:       res.outcome.Fee,
				FilledAt:  time.Now().UTC(),
			})
			filledByVenue[res.child.VenueID] += qty
			remaining -= qty
		}
		if remaining < 0 {
			remaining = 0
		}
		if dispatchErr != nil {
			report := r.finalize(ctx, o, fills, r.terminalStatus(entry, o, remaining, fills), "账本写入失败，停止派发")
			return report, dispatchErr
		}

		if o.TimeInForce == order.TIFFillOrKill {
			return r.finalizeFOK(ctx, o, fills, remaining)
		}
		if remaining == 0 {
			break
		}
		if o.TimeInForce == order.TIFImmediateOrCancel {
			break
		}
		if attempt > r.cfg.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	status := r.terminalStatus(entry, o, remaining, fills)
	reason := ""
	switch status {
	case order.StatusCancelled:
		if entry.cancelled.Load() {
			reason = "订单被撤销"
		} else {
			reason = "IOC 剩余数量已取消"
		}
	case order.StatusPartiallyFilled:
		reason = "重试额度或截止时间耗尽"
	case order.StatusRejected:
		reason = "全部场所拒单且重试耗尽"
	}
	report := r.finalize(ctx, o, fills, status, reason)
	return report, nil
}

// finalizeFOK 处理 FOK 终态：首轮未全成即整单拒绝，回报不携带成交；
// 击杀前已发生的模拟成交记入对账事件，等待人工核对。
func (r *Router) finalizeFOK(ctx context.Context, o order.Order, fills []order.Fill, remaining int64) (order.ExecutionReport, error) {
	if remaining == 0 {
		return r.finalize(ctx, o, fills, order.StatusFilled, ""), nil
	}

	if len(fills) > 0 {
		if err := r.ledger.Append(context.WithoutCancel(ctx), ledger.EventReconciliation, o.OrderID, ledger.ReconciliationPayload{
			Fills: fills,
			Note:  "FOK 未全额成交，击杀前的部分成交待对账",
		}); err != nil {
			return r.finalize(ctx, o, nil, order.StatusRejected, "FOK 未全额成交"), err
		}
	}

	report := r.finalize(ctx, o, nil, order.StatusRejected, "FOK 未全额成交")
	return report, nil
}

// terminalStatus 按剩余量、TIF 与撤销标记推导终态。
func (r *Router) terminalStatus(entry *activeOrder, o order.Order, remaining int64, fills []order.Fill) order.ReportStatus {
	switch {
	case remaining == 0:
		return order.StatusFilled
	case entry.cancelled.Load():
		return order.StatusCancelled
	case o.TimeInForce == order.TIFImmediateOrCancel:
		return order.StatusCancelled
	case len(fills) > 0:
		return order.StatusPartiallyFilled
	default:
		return order.StatusRejected
	}
}

// eligibleProfiles 过滤本订单已达深度上限的场所，重试按当前注册表状态重新打分。
func (r *Router) eligibleProfiles(filledByVenue map[string]int64) []venue.Profile {
	snapshot := r.registry.Snapshot()
	eligible := snapshot[:0]
	for _, p := range snapshot {
		if filled, ok := filledByVenue[p.VenueID]; ok && filled >= p.DepthEstimate {
			continue
		}
		eligible = append(eligible, p)
	}
	return eligible
}

type childResult struct {
	child   order.ChildOrder
	outcome venue.FillOutcome
}

// dispatch 把一次决策的全部子订单并发派发到各自场所并等待整组应答。
// 单个子订单的失败只进入重试池，绝不影响兄弟子订单；
// 返回的 error 仅来自账本写入失败。
func (r *Router) dispatch(ctx context.Context, o order.Order, decision scorer.RoutingDecision, attempt int) ([]childResult, error) {
	var mu sync.Mutex
	results := make([]childResult, 0, len(decision.Allocations))

	// 账本写入不跟随订单截止时间取消：与撤单竞态的成交同样必须入账。
	logCtx := context.WithoutCancel(ctx)

	group, groupCtx := errgroup.WithContext(ctx)

	for _, alloc := range decision.Allocations {
		child := order.ChildOrder{
			ChildID:       order.ChildID(o.OrderID, alloc.VenueID, attempt),
			ParentOrderID: o.OrderID,
			VenueID:       alloc.VenueID,
			Symbol:        o.Symbol,
			Side:          o.Side,
			Quantity:      alloc.Quantity,
			LimitPrice:    o.LimitPrice,
			TimeInForce:   o.TimeInForce,
			Attempt:       attempt,
			Status:        order.ChildPending,
			DispatchedAt:  time.Now().UTC(),
		}

		group.Go(func() error {
			if err := r.ledger.Append(logCtx, ledger.EventChildDispatch, o.OrderID, ledger.DispatchPayload{Child: child}); err != nil {
				return err
			}

			outcome := r.executeChild(groupCtx, child)
			child.Status = childStatus(outcome.Kind)

			r.observeOutcome(child, outcome)

			if err := r.ledger.Append(logCtx, ledger.EventFillOutcome, o.OrderID, ledger.OutcomePayload{
				ChildID: child.ChildID,
				VenueID: child.VenueID,
				Attempt: attempt,
				Outcome: outcome,
			}); err != nil {
				return err
			}

			mu.Lock()
			results = append(results, childResult{child: child, outcome: outcome})
			mu.Unlock()
			return nil
		})
	}

	err := group.Wait()
	return results, err
}

// executeChild 调用场所适配器并把适配器层错误归一化为拒单应答。
func (r *Router) executeChild(ctx context.Context, child order.ChildOrder) venue.FillOutcome {
	adapter, ok := r.adapters[child.VenueID]
	if !ok {
		return venue.FillOutcome{
			Kind:   venue.OutcomeRejected,
			Reason: fmt.Sprintf("场所 %s 没有适配器", child.VenueID),
		}
	}

	childCtx, cancel := context.WithTimeout(ctx, r.cfg.ChildTimeout)
	defer cancel()

	outcome, err := adapter.Execute(childCtx, child)
	if err != nil {
		r.logger.Warn("场所适配器返回错误",
			zap.String("venue", child.VenueID),
			zap.String("child_id", child.ChildID),
			zap.Error(err),
		)
		kind := venue.OutcomeRejected
		if venue.IsRetryable(err) || errors.Is(err, context.DeadlineExceeded) {
			kind = venue.OutcomeTimeout
		}
		return venue.FillOutcome{Kind: kind, Reason: err.Error()}
	}
	if outcome.FilledQty > child.Quantity {
		outcome.FilledQty = child.Quantity
	}
	return outcome
}

// observeOutcome 把应答回写注册表并上报指标。
func (r *Router) observeOutcome(child order.ChildOrder, outcome venue.FillOutcome) {
	latencyMs := float64(outcome.Latency.Microseconds()) / 1000

	switch outcome.Kind {
	case venue.OutcomeFilled, venue.OutcomePartial:
		r.registry.RecordFill(child.VenueID, latencyMs, r.slippageBps(child, outcome))
		r.reporter.IncCounter("fills.count", 1, map[string]string{"venue": child.VenueID})
		r.reporter.IncCounter("fills.quantity", outcome.FilledQty, map[string]string{"venue": child.VenueID})
		r.reporter.ObserveDuration("venue.latency", outcome.Latency, map[string]string{"venue": child.VenueID})
	case venue.OutcomeRejected, venue.OutcomeTimeout:
		r.registry.RecordRejection(child.VenueID, latencyMs)
		r.reporter.IncCounter("children.failed", 1, map[string]string{
			"venue":  child.VenueID,
			"reason": string(outcome.Kind),
		})
	}
}

// slippageBps 以参考价衡量本次成交的实际滑点。
func (r *Router) slippageBps(child order.ChildOrder, outcome venue.FillOutcome) float64 {
	if r.ref == nil || outcome.FillPrice <= 0 {
		return 0
	}
	ref, err := r.ref.RefPrice(child.Symbol)
	if err != nil || ref <= 0 {
		return 0
	}
	return math.Abs(outcome.FillPrice-ref) / ref * 10_000
}

// finalize 组装终态回报并写入账本。
func (r *Router) finalize(ctx context.Context, o order.Order, fills []order.Fill, status order.ReportStatus, reason string) order.ExecutionReport {
	var totalFees float64
	for _, f := range fills {
		totalFees += f.Fee
	}

	report := order.ExecutionReport{
		OrderID:        o.OrderID,
		Status:         status,
		Fills:          fills,
		TotalFilledQty: order.TotalFilled(fills),
		VWAP:           order.VWAP(fills),
		TotalFees:      totalFees,
		Reason:         reason,
		CompletedAt:    time.Now().UTC(),
	}

	if err := r.ledger.Append(context.WithoutCancel(ctx), ledger.EventExecutionReport, o.OrderID, ledger.ReportPayload{Report: report}); err != nil {
		// 终态事件落盘失败同样不允许静默，记入日志并抛给调用方关注。
		r.logger.Error("终态回报落盘失败", zap.String("order_id", o.OrderID), zap.Error(err))
	}

	r.reporter.IncCounter("orders.completed", 1, map[string]string{
		"symbol": o.Symbol,
		"status": string(status),
	})

	r.logger.Info("订单执行完成",
		zap.String("order_id", o.OrderID),
		zap.String("status", string(status)),
		zap.Int64("filled", report.TotalFilledQty),
		zap.Float64("vwap", report.VWAP),
	)

	return report
}

func childStatus(kind venue.OutcomeKind) order.ChildStatus {
	switch kind {
	case venue.OutcomeFilled:
		return order.ChildFilled
	case venue.OutcomePartial:
		return order.ChildPartial
	case venue.OutcomeTimeout:
		return order.ChildTimedOut
	default:
		return order.ChildRejected
	}
}
