package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/senthilts9/smart-order-routing/internal/config"
	"github.com/senthilts9/smart-order-routing/internal/ledger"
	"github.com/senthilts9/smart-order-routing/internal/order"
	"github.com/senthilts9/smart-order-routing/internal/router"
)

// Result 汇总一次模拟交易会话的执行情况。
type Result struct {
	Submitted       int
	Filled          int
	PartiallyFilled int
	Rejected        int
	Cancelled       int
	TotalRequested  int64
	TotalFilled     int64
	Duration        time.Duration
}

// FillRate 返回会话内的总成交比例。
func (r Result) FillRate() float64 {
	if r.TotalRequested == 0 {
		return 0
	}
	return float64(r.TotalFilled) / float64(r.TotalRequested)
}

// Session 以随机订单流驱动路由核心，用于本地演练与压测。
type Session struct {
	cfg    config.SimulationConfig
	router *router.Router
	logger *zap.Logger
	rng    *rand.Rand
}

// NewSession 创建模拟会话。seed 固定时订单流可复现。
func NewSession(cfg config.SimulationConfig, rt *router.Router, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Session{
		cfg:    cfg,
		router: rt,
		logger: logger,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Run 按配置的节奏提交订单并等待全部终态。
// 单笔订单被拒绝不会终止会话,只有账本写入失败才会整体中断。
func (s *Session) Run(ctx context.Context) (Result, error) {
	count := s.cfg.Orders
	if count <= 0 {
		count = 50
	}
	symbols := s.cfg.Symbols
	if len(symbols) == 0 {
		symbols = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "TSLA"}
	}
	maxQty := s.cfg.MaxQty
	if maxQty < 100 {
		maxQty = 5000
	}
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}

	s.logger.Info("模拟交易会话开始",
		zap.Int("orders", count),
		zap.Strings("symbols", symbols),
	)

	started := time.Now()
	result := Result{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		o := order.Order{
			OrderID:     fmt.Sprintf("SIM_%06d", i),
			Symbol:      symbols[s.rng.Intn(len(symbols))],
			Side:        pickSide(s.rng),
			Quantity:    100 + s.rng.Int63n(maxQty-99),
			TimeInForce: order.TIFDay,
			SubmittedAt: time.Now().UTC(),
		}

		g.Go(func() error {
			report, err := s.router.SubmitOrder(gctx, o)
			if err != nil && !isExpected(err) {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			result.Submitted++
			result.TotalRequested += o.Quantity
			result.TotalFilled += report.TotalFilledQty
			switch report.Status {
			case order.StatusFilled:
				result.Filled++
			case order.StatusPartiallyFilled:
				result.PartiallyFilled++
			case order.StatusCancelled:
				result.Cancelled++
			default:
				result.Rejected++
			}
			return nil
		})

		select {
		case <-gctx.Done():
		case <-time.After(interval):
		}
	}

	err := g.Wait()
	result.Duration = time.Since(started)

	s.logger.Info("模拟交易会话结束",
		zap.Int("submitted", result.Submitted),
		zap.Int("filled", result.Filled),
		zap.Int("partially_filled", result.PartiallyFilled),
		zap.Int("rejected", result.Rejected),
		zap.Int("cancelled", result.Cancelled),
		zap.Float64("fill_rate", result.FillRate()),
		zap.Duration("duration", result.Duration),
	)
	return result, err
}

func pickSide(rng *rand.Rand) order.Side {
	if rng.Intn(2) == 0 {
		return order.SideBuy
	}
	return order.SideSell
}

// isExpected 判断错误是否属于单笔订单的正常拒绝,
// 账本写入失败与上下文取消视为会话级故障。
func isExpected(err error) bool {
	if errors.Is(err, ledger.ErrLedgerWrite) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
