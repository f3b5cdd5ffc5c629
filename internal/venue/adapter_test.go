package venue

import (
	"context"
	"testing"
	"time"

	"github.com/senthilts9/smart-order-routing/internal/order"
)

// blockingAdapter 阻塞到 release 关闭为止,用于制造队列饱和。
type blockingAdapter struct {
	id      string
	started chan struct{}
	release chan struct{}
}

func (b *blockingAdapter) VenueID() string { return b.id }

func (b *blockingAdapter) Execute(ctx context.Context, child order.ChildOrder) (FillOutcome, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	select {
	case <-b.release:
		return FillOutcome{Kind: OutcomeFilled, FilledQty: child.Quantity, FillPrice: 100}, nil
	case <-ctx.Done():
		return FillOutcome{Kind: OutcomeTimeout, Reason: "ctx done"}, nil
	}
}

func TestThrottled_PassesThroughWhenIdle(t *testing.T) {
	registry := NewRegistry(0.2)
	registry.Register(Profile{VenueID: "NYSE"})

	inner := &blockingAdapter{id: "NYSE", started: make(chan struct{}, 1), release: make(chan struct{})}
	close(inner.release)

	throttled := WithQueue(inner, 4, registry, nil)
	outcome, err := throttled.Execute(context.Background(), testChild(100, 0))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if outcome.Kind != OutcomeFilled || outcome.FilledQty != 100 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	p, _ := registry.Get("NYSE")
	if p.CurrentQueuePosition != 0 {
		t.Fatalf("queue position must return to zero, got %d", p.CurrentQueuePosition)
	}
}

func TestThrottled_QueuedDispatchReflectsInRegistry(t *testing.T) {
	registry := NewRegistry(0.2)
	registry.Register(Profile{VenueID: "NYSE"})

	inner := &blockingAdapter{id: "NYSE", started: make(chan struct{}, 1), release: make(chan struct{})}
	throttled := WithQueue(inner, 1, registry, nil)

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = throttled.Execute(context.Background(), testChild(100, 0))
	}()
	<-inner.started

	// 容量已被占满,第二笔派发应排队并计入队列深度。
	secondDone := make(chan struct{})
	go func() {
		defer close(secondDone)
		_, _ = throttled.Execute(context.Background(), testChild(100, 0))
	}()

	deadline := time.After(2 * time.Second)
	for {
		p, _ := registry.Get("NYSE")
		if p.CurrentQueuePosition == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("queued dispatch never showed up in registry, position=%d", p.CurrentQueuePosition)
		case <-time.After(5 * time.Millisecond):
		}
	}

	close(inner.release)
	<-firstDone
	<-secondDone

	p, _ := registry.Get("NYSE")
	if p.CurrentQueuePosition != 0 {
		t.Fatalf("queue position must drain to zero, got %d", p.CurrentQueuePosition)
	}
}

func TestThrottled_TimeoutWhileQueued(t *testing.T) {
	registry := NewRegistry(0.2)
	registry.Register(Profile{VenueID: "NYSE"})

	inner := &blockingAdapter{id: "NYSE", started: make(chan struct{}, 1), release: make(chan struct{})}
	throttled := WithQueue(inner, 1, registry, nil)

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = throttled.Execute(context.Background(), testChild(100, 0))
	}()
	<-inner.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	outcome, err := throttled.Execute(ctx, testChild(100, 0))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if outcome.Kind != OutcomeTimeout {
		t.Fatalf("expected timeout while queued, got %s", outcome.Kind)
	}

	close(inner.release)
	<-firstDone
}
