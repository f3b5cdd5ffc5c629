package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/senthilts9/smart-order-routing/internal/order"
	"github.com/senthilts9/smart-order-routing/internal/scorer"
	"github.com/senthilts9/smart-order-routing/internal/venue"
)

// ErrLedgerWrite 表示账本落盘失败。该错误必须向上抛出：
// 分析结果的正确性依赖账本完整，绝不允许静默丢事件。
var ErrLedgerWrite = errors.New("ledger: 事件落盘失败")

// EventType 表示账本事件类型。
type EventType string

const (
	EventRoutingDecision EventType = "routing_decision"
	EventChildDispatch   EventType = "child_dispatch"
	EventFillOutcome     EventType = "fill_outcome"
	EventExecutionReport EventType = "execution_report"
	EventReconciliation  EventType = "reconciliation"
)

// Event 为账本中的一条记录，Seq 单调递增，写入后不可变。
type Event struct {
	Seq       int64       `json:"seq"`
	Type      EventType   `json:"type"`
	OrderID   string      `json:"order_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// DecisionPayload 记录一次路由决策。
type DecisionPayload struct {
	Decision scorer.RoutingDecision `json:"decision"`
	Attempt  int                    `json:"attempt"`
}

// DispatchPayload 记录一次子订单派发。
type DispatchPayload struct {
	Child order.ChildOrder `json:"child"`
}

// OutcomePayload 记录一次子订单应答。
type OutcomePayload struct {
	ChildID string            `json:"child_id"`
	VenueID string            `json:"venue_id"`
	Attempt int               `json:"attempt"`
	Outcome venue.FillOutcome `json:"outcome"`
}

// ReportPayload 记录父订单终态。
type ReportPayload struct {
	Report order.ExecutionReport `json:"report"`
}

// ReconciliationPayload 标记需要人工对账的成交，
// 目前仅用于 FOK 击杀前已部分成交的场景。
type ReconciliationPayload struct {
	Fills []order.Fill `json:"fills"`
	Note  string       `json:"note"`
}

// Sink 为可插拔的持久化出口。
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Ledger 为进程内只追加事件账本。追加顺序即真实事件完成顺序，
// 顺序回放可重建 VWAP、成交率与延迟分位数。
type Ledger struct {
	mu     sync.Mutex
	events []Event
	seq    int64

	sink   Sink
	logger *zap.Logger
}

// New 创建账本。sink 为空时仅保留进程内副本。
func New(sink Sink, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		events: make([]Event, 0, 1024),
		sink:   sink,
		logger: logger,
	}
}

// Append 追加一条事件。持久化失败时事件仍保留在内存账本中，
// 但错误包装为 ErrLedgerWrite 抛给调用方。
func (l *Ledger) Append(ctx context.Context, typ EventType, orderID string, payload interface{}) error {
	l.mu.Lock()
	l.seq++
	event := Event{
		Seq:       l.seq,
		Type:      typ,
		OrderID:   orderID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	l.events = append(l.events, event)
	sink := l.sink
	l.mu.Unlock()

	if sink != nil {
		if err := sink.Append(ctx, event); err != nil {
			l.logger.Error("账本事件落盘失败",
				zap.Int64("seq", event.Seq),
				zap.String("type", string(typ)),
				zap.String("order_id", orderID),
				zap.Error(err),
			)
			return fmt.Errorf("%w: seq=%d: %v", ErrLedgerWrite, event.Seq, err)
		}
	}

	return nil
}

// Snapshot 返回账本副本，供回放分析使用。
func (l *Ledger) Snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len 返回当前事件数。
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}
