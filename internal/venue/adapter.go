package venue

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/senthilts9/smart-order-routing/internal/order"
)

// OutcomeKind 表示单次子订单执行的结果类型。
type OutcomeKind string

const (
	OutcomeFilled   OutcomeKind = "FILLED"
	OutcomePartial  OutcomeKind = "PARTIAL"
	OutcomeRejected OutcomeKind = "REJECTED"
	OutcomeTimeout  OutcomeKind = "TIMEOUT"
)

// FillOutcome 为场所适配器对一笔子订单的应答。
type FillOutcome struct {
	Kind      OutcomeKind   `json:"kind"`
	FilledQty int64         `json:"filled_qty"`
	FillPrice float64       `json:"fill_price"`
	Fee       float64       `json:"fee"`
	Reason    string        `json:"reason,omitempty"`
	Latency   time.Duration `json:"latency"`
}

// Adapter 为场所能力接口，编排器只依赖该接口。
// 实现必须支持不同子订单的并发调用。
type Adapter interface {
	VenueID() string
	Execute(ctx context.Context, child order.ChildOrder) (FillOutcome, error)
}

// Throttled 用带权信号量为场所施加有界在途队列：
// 队列满时新的派发被推迟而不是丢弃，等待深度反馈到 Registry 的
// CurrentQueuePosition，供打分策略降权。
type Throttled struct {
	inner    Adapter
	sem      *semaphore.Weighted
	registry *Registry
	logger   *zap.Logger
}

// WithQueue 包装适配器并限制其并发在途子订单数。
func WithQueue(inner Adapter, capacity int64, registry *Registry, logger *zap.Logger) *Throttled {
	if capacity <= 0 {
		capacity = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Throttled{
		inner:    inner,
		sem:      semaphore.NewWeighted(capacity),
		registry: registry,
		logger:   logger,
	}
}

// VenueID 透传内层适配器标识。
func (t *Throttled) VenueID() string {
	return t.inner.VenueID()
}

// Execute 先排队再派发，排队期间计入场所队列深度。
func (t *Throttled) Execute(ctx context.Context, child order.ChildOrder) (FillOutcome, error) {
	t.registry.AdjustQueue(t.inner.VenueID(), 1)
	defer t.registry.AdjustQueue(t.inner.VenueID(), -1)

	if !t.sem.TryAcquire(1) {
		t.logger.Debug("场所队列已满，派发推迟",
			zap.String("venue", t.inner.VenueID()),
			zap.String("child_id", child.ChildID),
		)
		if err := t.sem.Acquire(ctx, 1); err != nil {
			return FillOutcome{Kind: OutcomeTimeout, Reason: "排队等待期间超时"}, nil
		}
	}
	defer t.sem.Release(1)

	return t.inner.Execute(ctx, child)
}
