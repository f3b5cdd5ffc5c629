package venue

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/senthilts9/smart-order-routing/internal/order"
)

// PriceSource 提供标的参考价。
type PriceSource interface {
	RefPrice(symbol string) (float64, error)
}

// SimulatedOptions 控制模拟场所的行为参数。
type SimulatedOptions struct {
	BaseLatency time.Duration
	Depth       int64   // 单次请求可成交的名义深度上限
	FeeRate     float64 // 成交额比例费率
	SlippageBps float64 // 相对参考价的最大滑点（基点）
	RejectRate  float64 // [0,1) 随机拒单概率
}

// Simulated 按合成盘口模拟一个执行场所：
// 延迟为基础值叠加指数抖动，成交量受深度限制，价格围绕参考价滑动。
type Simulated struct {
	venueID string
	opts    SimulatedOptions
	prices  PriceSource
	logger  *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated 创建模拟场所适配器。rng 为空时使用时间种子。
func NewSimulated(venueID string, opts SimulatedOptions, prices PriceSource, rng *rand.Rand, logger *zap.Logger) *Simulated {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.BaseLatency <= 0 {
		opts.BaseLatency = 3 * time.Millisecond
	}
	if opts.Depth <= 0 {
		opts.Depth = 1000
	}
	return &Simulated{
		venueID: venueID,
		opts:    opts,
		prices:  prices,
		logger:  logger,
		rng:     rng,
	}
}

// VenueID 返回场所标识。
func (s *Simulated) VenueID() string {
	return s.venueID
}

// Execute 模拟一笔子订单的执行。
func (s *Simulated) Execute(ctx context.Context, child order.ChildOrder) (FillOutcome, error) {
	latency := s.drawLatency()

	timer := time.NewTimer(latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return FillOutcome{Kind: OutcomeTimeout, Reason: "场所应答超时", Latency: latency}, nil
	case <-timer.C:
	}

	ref, err := s.prices.RefPrice(child.Symbol)
	if err != nil || ref <= 0 {
		return FillOutcome{
			Kind:    OutcomeRejected,
			Reason:  fmt.Sprintf("标的 %s 不被支持", child.Symbol),
			Latency: latency,
		}, nil
	}

	s.mu.Lock()
	rejectDraw := s.rng.Float64()
	volumeScale := 0.6 + 0.4*s.rng.Float64()
	slipFrac := s.rng.Float64()
	s.mu.Unlock()

	if s.opts.RejectRate > 0 && rejectDraw < s.opts.RejectRate {
		return FillOutcome{Kind: OutcomeRejected, Reason: "场所拒单", Latency: latency}, nil
	}

	price := s.fillPrice(ref, child.Side, slipFrac)
	if child.LimitPrice > 0 {
		if child.Side == order.SideBuy && price > child.LimitPrice {
			return FillOutcome{Kind: OutcomeRejected, Reason: "买入价越过限价", Latency: latency}, nil
		}
		if child.Side == order.SideSell && price < child.LimitPrice {
			return FillOutcome{Kind: OutcomeRejected, Reason: "卖出价低于限价", Latency: latency}, nil
		}
	}

	available := int64(float64(s.opts.Depth) * volumeScale)
	if available <= 0 {
		available = 1
	}
	filled := child.Quantity
	kind := OutcomeFilled
	if available < filled {
		filled = available
		kind = OutcomePartial
	}

	return FillOutcome{
		Kind:      kind,
		FilledQty: filled,
		FillPrice: price,
		Fee:       float64(filled) * price * s.opts.FeeRate,
		Latency:   latency,
	}, nil
}

func (s *Simulated) drawLatency() time.Duration {
	s.mu.Lock()
	jitter := s.rng.ExpFloat64() * 2
	s.mu.Unlock()
	return s.opts.BaseLatency + time.Duration(jitter*float64(time.Millisecond))
}

func (s *Simulated) fillPrice(ref float64, side order.Side, slipFrac float64) float64 {
	slip := ref * s.opts.SlippageBps / 10_000 * slipFrac
	if side == order.SideBuy {
		return ref + slip
	}
	return ref - slip
}
